package mongo

import (
	"time"

	"rentguru/internal/domain/booking"
	"rentguru/internal/domain/chat"
	"rentguru/internal/domain/incentive"
	"rentguru/internal/domain/pricing"
	"rentguru/internal/domain/resource"
	"rentguru/internal/domain/shared/daterange"
	"rentguru/internal/domain/shared/money"
)

type moneyDocument struct {
	Amount   int64  `bson:"amount"`
	Currency string `bson:"currency"`
}

func newMoney(m money.Money) moneyDocument {
	return moneyDocument{Amount: m.Amount, Currency: m.Currency}
}

func (d moneyDocument) toMoney() money.Money {
	return money.Money{Amount: d.Amount, Currency: d.Currency}
}

type rangeDocument struct {
	Start int64 `bson:"start"`
	End   int64 `bson:"end"`
}

func newRange(r daterange.DateRange) rangeDocument {
	return rangeDocument{Start: r.Start.UnixMilli(), End: r.End.UnixMilli()}
}

func (d rangeDocument) toRange() daterange.DateRange {
	return daterange.DateRange{Start: timestampToTime(d.Start), End: timestampToTime(d.End)}
}

type clockDocument struct {
	Hour   int `bson:"hour"`
	Minute int `bson:"minute"`
}

func newClock(c *daterange.Clock) *clockDocument {
	if c == nil {
		return nil
	}
	return &clockDocument{Hour: c.Hour, Minute: c.Minute}
}

func (d *clockDocument) toClock() *daterange.Clock {
	if d == nil {
		return nil
	}
	return &daterange.Clock{Hour: d.Hour, Minute: d.Minute}
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func optionalTimestamp(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func optionalTime(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := timestampToTime(*ms)
	return &t
}

type tariffDocument struct {
	Period          string        `bson:"period"`
	Price           moneyDocument `bson:"price"`
	DiscountPercent int64         `bson:"discount_percent"`
	Total           moneyDocument `bson:"total"`
}

// resourceDocument stores every variant in one collection, tagged by kind.
type resourceDocument struct {
	ID                string           `bson:"_id"`
	Kind              string           `bson:"kind"`
	OwnerID           string           `bson:"owner_id"`
	Title             string           `bson:"title"`
	CommissionPercent int64            `bson:"commission_percent"`
	Tariffs           []tariffDocument `bson:"tariffs"`
	OnRequest         bool             `bson:"on_request"`
	Windows           []rangeDocument  `bson:"windows"`
	MinRentDays       int              `bson:"min_rent_days"`
	MaxRentDays       int              `bson:"max_rent_days"`
	Deposit           moneyDocument    `bson:"deposit"`
	DeliveryFee       moneyDocument    `bson:"delivery_fee"`
	Trips             int              `bson:"trips"`
	CanceledTrips     int              `bson:"canceled_trips"`
	UpdatedAt         int64            `bson:"updated_at"`
	Version           int64            `bson:"version"`

	Seats        int    `bson:"seats,omitempty"`
	Transmission string `bson:"transmission,omitempty"`
	EngineVolume int    `bson:"engine_volume,omitempty"`
	LengthMeters int    `bson:"length_meters,omitempty"`
	Cabins       int    `bson:"cabins,omitempty"`
	Passengers   int    `bson:"passengers,omitempty"`
	Purpose      string `bson:"purpose,omitempty"`
}

func newResourceDocument(r resource.Resource) resourceDocument {
	v := r.Base()
	doc := resourceDocument{
		ID:                string(v.ID),
		Kind:              string(r.Kind()),
		OwnerID:           v.OwnerID,
		Title:             v.Title,
		CommissionPercent: v.CommissionPercent,
		OnRequest:         v.Calendar.OnRequest,
		MinRentDays:       v.MinRentDays,
		MaxRentDays:       v.MaxRentDays,
		Deposit:           newMoney(v.Deposit),
		DeliveryFee:       newMoney(v.DeliveryFee),
		Trips:             v.Trips,
		CanceledTrips:     v.CanceledTrips,
		UpdatedAt:         v.UpdatedAt.UnixMilli(),
		Version:           v.Version,
	}
	for _, t := range v.Tariffs.Tariffs() {
		doc.Tariffs = append(doc.Tariffs, tariffDocument{
			Period:          string(t.Period),
			Price:           newMoney(t.Price),
			DiscountPercent: t.DiscountPercent,
			Total:           newMoney(t.Total),
		})
	}
	for _, w := range v.Calendar.Windows {
		doc.Windows = append(doc.Windows, newRange(w))
	}
	switch x := r.(type) {
	case *resource.Auto:
		doc.Seats, doc.Transmission = x.Seats, x.Transmission
	case *resource.Bike:
		doc.EngineVolume = x.EngineVolume
	case *resource.Ship:
		doc.LengthMeters, doc.Cabins = x.LengthMeters, x.Cabins
	case *resource.Helicopter:
		doc.Passengers = x.Passengers
	case *resource.SpecialTechnic:
		doc.Purpose = x.Purpose
	}
	return doc
}

func (d resourceDocument) toAggregate() (resource.Resource, error) {
	tariffs := make([]resource.Tariff, 0, len(d.Tariffs))
	for _, t := range d.Tariffs {
		tariffs = append(tariffs, resource.Tariff{
			Period:          resource.Period(t.Period),
			Price:           t.Price.toMoney(),
			DiscountPercent: t.DiscountPercent,
			Total:           t.Total.toMoney(),
		})
	}
	table, err := resource.RestoreTariffTable(tariffs)
	if err != nil {
		return nil, err
	}
	windows := make([]daterange.DateRange, 0, len(d.Windows))
	for _, w := range d.Windows {
		windows = append(windows, w.toRange())
	}
	base := resource.Vehicle{
		ID:                resource.ID(d.ID),
		OwnerID:           d.OwnerID,
		Title:             d.Title,
		CommissionPercent: d.CommissionPercent,
		Tariffs:           table,
		Calendar:          resource.Availability{OnRequest: d.OnRequest, Windows: windows},
		MinRentDays:       d.MinRentDays,
		MaxRentDays:       d.MaxRentDays,
		Deposit:           d.Deposit.toMoney(),
		DeliveryFee:       d.DeliveryFee.toMoney(),
		Trips:             d.Trips,
		CanceledTrips:     d.CanceledTrips,
		UpdatedAt:         timestampToTime(d.UpdatedAt),
		Version:           d.Version,
	}
	res, err := resource.New(resource.Kind(d.Kind), base)
	if err != nil {
		return nil, err
	}
	switch x := res.(type) {
	case *resource.Auto:
		x.Seats, x.Transmission = d.Seats, d.Transmission
	case *resource.Bike:
		x.EngineVolume = d.EngineVolume
	case *resource.Ship:
		x.LengthMeters, x.Cabins = d.LengthMeters, d.Cabins
	case *resource.Helicopter:
		x.Passengers = d.Passengers
	case *resource.SpecialTechnic:
		x.Purpose = d.Purpose
	}
	return res, nil
}

type windowDocument struct {
	Dates     rangeDocument  `bson:"dates"`
	StartTime *clockDocument `bson:"start_time,omitempty"`
	EndTime   *clockDocument `bson:"end_time,omitempty"`
}

type breakdownDocument struct {
	Total      moneyDocument `bson:"total"`
	Commission moneyDocument `bson:"commission"`
	Discount   moneyDocument `bson:"discount"`
	Bonus      moneyDocument `bson:"bonus"`
	Payable    moneyDocument `bson:"payable"`
}

type requestDocument struct {
	ID                string            `bson:"_id"`
	OrganizerID       string            `bson:"organizer_id"`
	OwnerID           string            `bson:"owner_id"`
	ResourceID        string            `bson:"resource_id"`
	ResourceKind      string            `bson:"resource_kind"`
	Window            windowDocument    `bson:"window"`
	Mode              string            `bson:"mode"`
	Delivery          bool              `bson:"delivery"`
	TotalCost         moneyDocument     `bson:"total_cost"`
	DepositCost       moneyDocument     `bson:"deposit_cost"`
	DeliveryCost      moneyDocument     `bson:"delivery_cost"`
	CommissionPercent int64             `bson:"commission_percent"`
	Financials        breakdownDocument `bson:"financials"`
	RequestedBonus    moneyDocument     `bson:"requested_bonus"`
	PromoCode         string            `bson:"promo_code,omitempty"`
	OnRequest         bool              `bson:"on_request"`
	TermsProposed     bool              `bson:"terms_proposed"`
	Status            string            `bson:"status"`
	DenyReason        string            `bson:"deny_reason,omitempty"`
	Deleted           bool              `bson:"deleted"`
	CreatedAt         int64             `bson:"created_at"`
	UpdatedAt         int64             `bson:"updated_at"`
	Version           int64             `bson:"version"`
}

func newRequestDocument(r *booking.RentalRequest) requestDocument {
	return requestDocument{
		ID:           string(r.ID),
		OrganizerID:  r.OrganizerID,
		OwnerID:      r.OwnerID,
		ResourceID:   string(r.ResourceID),
		ResourceKind: string(r.ResourceKind),
		Window: windowDocument{
			Dates:     newRange(r.Window.Dates),
			StartTime: newClock(r.Window.StartTime),
			EndTime:   newClock(r.Window.EndTime),
		},
		Mode:              string(r.Mode),
		Delivery:          r.Delivery,
		TotalCost:         newMoney(r.TotalCost),
		DepositCost:       newMoney(r.DepositCost),
		DeliveryCost:      newMoney(r.DeliveryCost),
		CommissionPercent: r.CommissionPercent,
		Financials: breakdownDocument{
			Total:      newMoney(r.Financials.Total),
			Commission: newMoney(r.Financials.Commission),
			Discount:   newMoney(r.Financials.Discount),
			Bonus:      newMoney(r.Financials.Bonus),
			Payable:    newMoney(r.Financials.Payable),
		},
		RequestedBonus: newMoney(r.RequestedBonus),
		PromoCode:      r.PromoCode,
		OnRequest:      r.OnRequest,
		TermsProposed:  r.TermsProposed,
		Status:         string(r.Status),
		DenyReason:     r.DenyReason,
		Deleted:        r.Deleted,
		CreatedAt:      r.CreatedAt.UnixMilli(),
		UpdatedAt:      r.UpdatedAt.UnixMilli(),
		Version:        r.Version,
	}
}

func (d requestDocument) toAggregate() *booking.RentalRequest {
	return &booking.RentalRequest{
		ID:           booking.RequestID(d.ID),
		OrganizerID:  d.OrganizerID,
		OwnerID:      d.OwnerID,
		ResourceID:   resource.ID(d.ResourceID),
		ResourceKind: resource.Kind(d.ResourceKind),
		Window: pricing.Window{
			Dates:     d.Window.Dates.toRange(),
			StartTime: d.Window.StartTime.toClock(),
			EndTime:   d.Window.EndTime.toClock(),
		},
		Mode:              pricing.Mode(d.Mode),
		Delivery:          d.Delivery,
		TotalCost:         d.TotalCost.toMoney(),
		DepositCost:       d.DepositCost.toMoney(),
		DeliveryCost:      d.DeliveryCost.toMoney(),
		CommissionPercent: d.CommissionPercent,
		Financials: incentive.Breakdown{
			Total:      d.Financials.Total.toMoney(),
			Commission: d.Financials.Commission.toMoney(),
			Discount:   d.Financials.Discount.toMoney(),
			Bonus:      d.Financials.Bonus.toMoney(),
			Payable:    d.Financials.Payable.toMoney(),
		},
		RequestedBonus: d.RequestedBonus.toMoney(),
		PromoCode:      d.PromoCode,
		OnRequest:      d.OnRequest,
		TermsProposed:  d.TermsProposed,
		Status:         booking.RequestStatus(d.Status),
		DenyReason:     d.DenyReason,
		Deleted:        d.Deleted,
		CreatedAt:      timestampToTime(d.CreatedAt),
		UpdatedAt:      timestampToTime(d.UpdatedAt),
		Version:        d.Version,
	}
}

type paymentDocument struct {
	ID             string        `bson:"_id"`
	RequestID      string        `bson:"request_id"`
	OrganizerID    string        `bson:"organizer_id"`
	Amount         moneyDocument `bson:"amount"`
	DiscountAmount moneyDocument `bson:"discount_amount"`
	BonusAmount    moneyDocument `bson:"bonus_amount"`
	PromoCode      string        `bson:"promo_code,omitempty"`
	Status         string        `bson:"status"`
	ChargeID       string        `bson:"charge_id"`
	RedirectURL    string        `bson:"redirect_url,omitempty"`
	OrderRef       string        `bson:"order_ref,omitempty"`
	ChargedAt      *int64        `bson:"charged_at,omitempty"`
	RefundPending  bool          `bson:"refund_pending"`
	CreatedAt      int64         `bson:"created_at"`
	UpdatedAt      int64         `bson:"updated_at"`
	Version        int64         `bson:"version"`
}

func newPaymentDocument(p *booking.Payment) paymentDocument {
	return paymentDocument{
		ID:             string(p.ID),
		RequestID:      string(p.RequestID),
		OrganizerID:    p.OrganizerID,
		Amount:         newMoney(p.Amount),
		DiscountAmount: newMoney(p.DiscountAmount),
		BonusAmount:    newMoney(p.BonusAmount),
		PromoCode:      p.PromoCode,
		Status:         string(p.Status),
		ChargeID:       p.ChargeID,
		RedirectURL:    p.RedirectURL,
		OrderRef:       p.OrderRef,
		ChargedAt:      optionalTimestamp(p.ChargedAt),
		RefundPending:  p.RefundPending,
		CreatedAt:      p.CreatedAt.UnixMilli(),
		UpdatedAt:      p.UpdatedAt.UnixMilli(),
		Version:        p.Version,
	}
}

func (d paymentDocument) toAggregate() *booking.Payment {
	return &booking.Payment{
		ID:             booking.PaymentID(d.ID),
		RequestID:      booking.RequestID(d.RequestID),
		OrganizerID:    d.OrganizerID,
		Amount:         d.Amount.toMoney(),
		DiscountAmount: d.DiscountAmount.toMoney(),
		BonusAmount:    d.BonusAmount.toMoney(),
		PromoCode:      d.PromoCode,
		Status:         booking.PaymentStatus(d.Status),
		ChargeID:       d.ChargeID,
		RedirectURL:    d.RedirectURL,
		OrderRef:       d.OrderRef,
		ChargedAt:      optionalTime(d.ChargedAt),
		RefundPending:  d.RefundPending,
		CreatedAt:      timestampToTime(d.CreatedAt),
		UpdatedAt:      timestampToTime(d.UpdatedAt),
		Version:        d.Version,
	}
}

type tripDocument struct {
	ID          string         `bson:"_id"`
	RequestID   string         `bson:"request_id"`
	PaymentID   string         `bson:"payment_id"`
	OrganizerID string         `bson:"organizer_id"`
	OwnerID     string         `bson:"owner_id"`
	ResourceID  string         `bson:"resource_id"`
	Dates       rangeDocument  `bson:"dates"`
	StartTime   *clockDocument `bson:"start_time,omitempty"`
	EndTime     *clockDocument `bson:"end_time,omitempty"`
	OnRequest   bool           `bson:"on_request"`
	Status      string         `bson:"status"`
	ClosedBy    string         `bson:"closed_by,omitempty"`
	CreatedAt   int64          `bson:"created_at"`
	UpdatedAt   int64          `bson:"updated_at"`
	Version     int64          `bson:"version"`
}

func newTripDocument(t *booking.Trip) tripDocument {
	return tripDocument{
		ID:          string(t.ID),
		RequestID:   string(t.RequestID),
		PaymentID:   string(t.PaymentID),
		OrganizerID: t.OrganizerID,
		OwnerID:     t.OwnerID,
		ResourceID:  string(t.ResourceID),
		Dates:       newRange(t.Dates),
		StartTime:   newClock(t.StartTime),
		EndTime:     newClock(t.EndTime),
		OnRequest:   t.OnRequest,
		Status:      string(t.Status),
		ClosedBy:    t.ClosedBy,
		CreatedAt:   t.CreatedAt.UnixMilli(),
		UpdatedAt:   t.UpdatedAt.UnixMilli(),
		Version:     t.Version,
	}
}

func (d tripDocument) toAggregate() *booking.Trip {
	return &booking.Trip{
		ID:          booking.TripID(d.ID),
		RequestID:   booking.RequestID(d.RequestID),
		PaymentID:   booking.PaymentID(d.PaymentID),
		OrganizerID: d.OrganizerID,
		OwnerID:     d.OwnerID,
		ResourceID:  resource.ID(d.ResourceID),
		Dates:       d.Dates.toRange(),
		StartTime:   d.StartTime.toClock(),
		EndTime:     d.EndTime.toClock(),
		OnRequest:   d.OnRequest,
		Status:      booking.TripStatus(d.Status),
		ClosedBy:    d.ClosedBy,
		CreatedAt:   timestampToTime(d.CreatedAt),
		UpdatedAt:   timestampToTime(d.UpdatedAt),
		Version:     d.Version,
	}
}

type accountDocument struct {
	UserID       string        `bson:"_id"`
	Bonus        moneyDocument `bson:"bonus"`
	ReferredBy   string        `bson:"referred_by,omitempty"`
	Trips        int           `bson:"trips"`
	Responses    int           `bson:"responses"`
	ResponseTime int64         `bson:"response_time_ms"`
	UpdatedAt    int64         `bson:"updated_at"`
}

func (d accountDocument) toAggregate() *incentive.Account {
	return &incentive.Account{
		UserID:       d.UserID,
		Bonus:        d.Bonus.toMoney(),
		ReferredBy:   incentive.PartnerID(d.ReferredBy),
		Trips:        d.Trips,
		Responses:    d.Responses,
		ResponseTime: time.Duration(d.ResponseTime) * time.Millisecond,
		UpdatedAt:    timestampToTime(d.UpdatedAt),
	}
}

type partnerDocument struct {
	ID                string        `bson:"_id"`
	CommissionPercent int64         `bson:"commission_percent"`
	Balance           moneyDocument `bson:"balance"`
}

type promoDocument struct {
	Code      string        `bson:"_id"`
	Kind      string        `bson:"kind"`
	Percent   int64         `bson:"percent,omitempty"`
	Cash      moneyDocument `bson:"cash"`
	PartnerID string        `bson:"partner_id,omitempty"`
	ExpiresAt *int64        `bson:"expires_at,omitempty"`
	Uses      int           `bson:"uses"`
}

func newPromoDocument(p incentive.PromoCode) promoDocument {
	return promoDocument{
		Code:      incentive.NormalizeCode(p.Code),
		Kind:      string(p.Kind),
		Percent:   p.Percent,
		Cash:      newMoney(p.Cash),
		PartnerID: string(p.PartnerID),
		ExpiresAt: optionalTimestamp(p.ExpiresAt),
		Uses:      p.Uses,
	}
}

func (d promoDocument) toPromo() incentive.PromoCode {
	return incentive.PromoCode{
		Code:      d.Code,
		Kind:      incentive.PromoKind(d.Kind),
		Percent:   d.Percent,
		Cash:      d.Cash.toMoney(),
		PartnerID: incentive.PartnerID(d.PartnerID),
		ExpiresAt: optionalTime(d.ExpiresAt),
		Uses:      d.Uses,
	}
}

type conversationDocument struct {
	ID                 string   `bson:"_id"`
	Kind               string   `bson:"kind"`
	RequestID          string   `bson:"request_id,omitempty"`
	OrganizerID        string   `bson:"organizer_id,omitempty"`
	OwnerID            string   `bson:"owner_id,omitempty"`
	CreatorID          string   `bson:"creator_id,omitempty"`
	Topic              string   `bson:"topic,omitempty"`
	Description        string   `bson:"description,omitempty"`
	Participants       []string `bson:"participants"`
	AwaitingOwnerSince *int64   `bson:"awaiting_owner_since,omitempty"`
	CreatedAt          int64    `bson:"created_at"`
	UpdatedAt          int64    `bson:"updated_at"`
}

func newConversationDocument(c *chat.Conversation) conversationDocument {
	return conversationDocument{
		ID:                 string(c.ID),
		Kind:               string(c.Kind),
		RequestID:          string(c.RequestID),
		OrganizerID:        c.OrganizerID,
		OwnerID:            c.OwnerID,
		CreatorID:          c.CreatorID,
		Topic:              c.Topic,
		Description:        c.Description,
		Participants:       append([]string(nil), c.Participants...),
		AwaitingOwnerSince: optionalTimestamp(c.AwaitingOwnerSince),
		CreatedAt:          c.CreatedAt.UnixMilli(),
		UpdatedAt:          c.UpdatedAt.UnixMilli(),
	}
}

func (d conversationDocument) toAggregate() *chat.Conversation {
	return &chat.Conversation{
		ID:                 chat.ConversationID(d.ID),
		Kind:               chat.Kind(d.Kind),
		RequestID:          booking.RequestID(d.RequestID),
		OrganizerID:        d.OrganizerID,
		OwnerID:            d.OwnerID,
		CreatorID:          d.CreatorID,
		Topic:              d.Topic,
		Description:        d.Description,
		Participants:       d.Participants,
		AwaitingOwnerSince: optionalTime(d.AwaitingOwnerSince),
		CreatedAt:          timestampToTime(d.CreatedAt),
		UpdatedAt:          timestampToTime(d.UpdatedAt),
	}
}
