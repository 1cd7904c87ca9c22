package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rentguru/internal/domain/incentive"
	"rentguru/internal/domain/resource"
	"rentguru/internal/domain/shared/daterange"
	"rentguru/internal/domain/shared/money"
	"rentguru/internal/infra/notify"
	"rentguru/internal/infra/storage/memory"
)

// seeder stores fixture aggregates in whichever backend is configured.
type seeder interface {
	PutResource(ctx context.Context, r resource.Resource) error
	PutAccount(ctx context.Context, a incentive.Account) error
	PutPartner(ctx context.Context, p incentive.Partner) error
	PutPromo(ctx context.Context, p incentive.PromoCode) error
}

type memorySeeder struct {
	store *memory.Store
}

func (s memorySeeder) PutResource(_ context.Context, r resource.Resource) error {
	s.store.PutResource(r)
	return nil
}

func (s memorySeeder) PutAccount(_ context.Context, a incentive.Account) error {
	s.store.PutAccount(a)
	return nil
}

func (s memorySeeder) PutPartner(_ context.Context, p incentive.Partner) error {
	s.store.PutPartner(p)
	return nil
}

func (s memorySeeder) PutPromo(_ context.Context, p incentive.PromoCode) error {
	s.store.PutPromo(p)
	return nil
}

type fixtureFile struct {
	Resources []resourceFixture `json:"resources"`
	Accounts  []accountFixture  `json:"accounts"`
	Partners  []partnerFixture  `json:"partners"`
	Promos    []promoFixture    `json:"promos"`
	Contacts  []notify.Contact  `json:"contacts"`
}

type resourceFixture struct {
	ID                string          `json:"id"`
	Kind              string          `json:"kind"`
	OwnerID           string          `json:"owner_id"`
	Title             string          `json:"title"`
	CommissionPercent int64           `json:"commission_percent"`
	Tariffs           []tariffFixture `json:"tariffs"`
	Windows           []windowFixture `json:"windows"`
	OnRequest         bool            `json:"on_request"`
	MinRentDays       int             `json:"min_rent_days"`
	MaxRentDays       int             `json:"max_rent_days"`
	Deposit           string          `json:"deposit"`
	DeliveryFee       string          `json:"delivery_fee"`
}

type tariffFixture struct {
	Period          string `json:"period"`
	Price           string `json:"price"`
	DiscountPercent int64  `json:"discount_percent"`
}

type windowFixture struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type accountFixture struct {
	UserID     string `json:"user_id"`
	Bonus      string `json:"bonus"`
	ReferredBy string `json:"referred_by"`
}

type partnerFixture struct {
	ID                string `json:"id"`
	CommissionPercent int64  `json:"commission_percent"`
	Balance           string `json:"balance"`
}

type promoFixture struct {
	Code      string `json:"code"`
	Kind      string `json:"kind"`
	Percent   int64  `json:"percent"`
	Cash      string `json:"cash"`
	PartnerID string `json:"partner_id"`
	ExpiresAt string `json:"expires_at"`
}

// loadFixtures imports the fixtures file. Invalid entries are logged and
// skipped; a missing file is not an error.
func loadFixtures(ctx context.Context, path string, s seeder, dir *notify.StaticDirectory, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}
	if len(data) == 0 {
		logger.Warn("fixtures file empty", "path", path)
		return nil
	}
	var fx fixtureFile
	if err := json.Unmarshal(data, &fx); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}

	for _, p := range fx.Partners {
		balance, err := parseMoney(p.Balance)
		if err != nil {
			logger.Error("fixture invalid", "partner_id", p.ID, "error", err)
			continue
		}
		partner := incentive.Partner{ID: incentive.PartnerID(p.ID), CommissionPercent: p.CommissionPercent, Balance: balance}
		if err := s.PutPartner(ctx, partner); err != nil {
			return fmt.Errorf("store partner %s: %w", p.ID, err)
		}
	}
	for _, a := range fx.Accounts {
		bonus, err := parseMoney(a.Bonus)
		if err != nil {
			logger.Error("fixture invalid", "user_id", a.UserID, "error", err)
			continue
		}
		account := incentive.Account{UserID: a.UserID, Bonus: bonus, ReferredBy: incentive.PartnerID(a.ReferredBy)}
		if err := s.PutAccount(ctx, account); err != nil {
			return fmt.Errorf("store account %s: %w", a.UserID, err)
		}
	}
	for _, p := range fx.Promos {
		promo, err := p.promo()
		if err != nil {
			logger.Error("fixture invalid", "promocode", p.Code, "error", err)
			continue
		}
		if err := s.PutPromo(ctx, promo); err != nil {
			return fmt.Errorf("store promocode %s: %w", p.Code, err)
		}
	}
	for _, r := range fx.Resources {
		res, err := r.resource()
		if err != nil {
			logger.Error("fixture invalid", "resource_id", r.ID, "error", err)
			continue
		}
		if err := s.PutResource(ctx, res); err != nil {
			return fmt.Errorf("store resource %s: %w", r.ID, err)
		}
		logger.Debug("resource fixture imported", "resource_id", r.ID, "kind", r.Kind)
	}
	for _, c := range fx.Contacts {
		dir.Put(c)
	}
	logger.Info("fixtures loaded",
		"resources", len(fx.Resources), "accounts", len(fx.Accounts),
		"partners", len(fx.Partners), "promocodes", len(fx.Promos), "contacts", len(fx.Contacts))
	return nil
}

func (r resourceFixture) resource() (resource.Resource, error) {
	inputs := make([]resource.TariffInput, 0, len(r.Tariffs))
	for _, t := range r.Tariffs {
		price, err := parseMoney(t.Price)
		if err != nil {
			return nil, fmt.Errorf("tariff %s: %w", t.Period, err)
		}
		inputs = append(inputs, resource.TariffInput{
			Period:          resource.Period(strings.ToLower(t.Period)),
			Price:           price,
			DiscountPercent: t.DiscountPercent,
		})
	}
	tariffs, err := resource.NewTariffTable(r.CommissionPercent, inputs...)
	if err != nil {
		return nil, err
	}

	calendar := resource.OpenToRequest()
	if !r.OnRequest {
		windows := make([]daterange.DateRange, 0, len(r.Windows))
		for _, w := range r.Windows {
			dr, err := daterange.Parse(w.Start, w.End)
			if err != nil {
				return nil, err
			}
			windows = append(windows, dr)
		}
		calendar = resource.Calendar(windows...)
	}

	deposit, err := parseMoney(r.Deposit)
	if err != nil {
		return nil, fmt.Errorf("deposit: %w", err)
	}
	delivery, err := parseMoney(r.DeliveryFee)
	if err != nil {
		return nil, fmt.Errorf("delivery fee: %w", err)
	}
	return resource.New(resource.Kind(strings.ToLower(r.Kind)), resource.Vehicle{
		ID:                resource.ID(r.ID),
		OwnerID:           r.OwnerID,
		Title:             r.Title,
		CommissionPercent: r.CommissionPercent,
		Tariffs:           tariffs,
		Calendar:          calendar,
		MinRentDays:       r.MinRentDays,
		MaxRentDays:       r.MaxRentDays,
		Deposit:           deposit,
		DeliveryFee:       delivery,
	})
}

func (p promoFixture) promo() (incentive.PromoCode, error) {
	cash, err := parseMoney(p.Cash)
	if err != nil {
		return incentive.PromoCode{}, err
	}
	promo := incentive.PromoCode{
		Code:      p.Code,
		Kind:      incentive.PromoKind(strings.ToLower(p.Kind)),
		Percent:   p.Percent,
		Cash:      cash,
		PartnerID: incentive.PartnerID(p.PartnerID),
	}
	if strings.TrimSpace(p.ExpiresAt) != "" {
		at, err := time.Parse(time.RFC3339, p.ExpiresAt)
		if err != nil {
			return incentive.PromoCode{}, fmt.Errorf("expires_at: %w", err)
		}
		promo.ExpiresAt = &at
	}
	return promo, promo.Validate()
}

func parseMoney(raw string) (money.Money, error) {
	if strings.TrimSpace(raw) == "" {
		return money.RUB(0), nil
	}
	return money.Parse(raw, money.DefaultCurrency)
}

func defaultFixturesPath() string {
	candidates := []string{
		filepath.Join("data", "fixtures.json"),
		filepath.Join("..", "..", "data", "fixtures.json"),
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return candidates[0]
}
