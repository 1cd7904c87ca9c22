package memory

import (
	"context"
	"sort"
	"time"

	"rentguru/internal/domain/booking"
	"rentguru/internal/domain/chat"
	"rentguru/internal/domain/incentive"
	"rentguru/internal/domain/resource"
	"rentguru/internal/domain/shared/events"
	"rentguru/internal/domain/shared/money"
)

type resourceRepo struct{ u *Unit }

func (r resourceRepo) ByID(ctx context.Context, id resource.ID) (resource.Resource, error) {
	var out resource.Resource
	err := r.u.read(func(s *Store) error {
		res, ok := s.resources[id]
		if !ok {
			return resource.ErrNotFound
		}
		out = resource.Clone(res)
		return nil
	})
	return out, err
}

func (r resourceRepo) Save(ctx context.Context, res resource.Resource) error {
	return r.u.write(func(s *Store) (func(), error) {
		base := res.Base()
		stored, ok := s.resources[base.ID]
		var version int64
		if ok {
			version = stored.Base().Version
		}
		if err := checkVersion(version, ok, base.Version); err != nil {
			return nil, err
		}
		undo := snapshot(s.resources, base.ID)
		base.Version++
		s.resources[base.ID] = resource.Clone(res)
		return undo, nil
	})
}

type requestRepo struct{ u *Unit }

func cloneRequest(r *booking.RentalRequest) *booking.RentalRequest {
	c := *r
	c.EventRecorder = events.EventRecorder{}
	return &c
}

func (r requestRepo) ByID(ctx context.Context, id booking.RequestID) (*booking.RentalRequest, error) {
	var out *booking.RentalRequest
	err := r.u.read(func(s *Store) error {
		req, ok := s.requests[id]
		if !ok || req.Deleted {
			return booking.ErrRequestNotFound
		}
		out = cloneRequest(req)
		return nil
	})
	return out, err
}

func (r requestRepo) Save(ctx context.Context, req *booking.RentalRequest) error {
	return r.u.write(func(s *Store) (func(), error) {
		stored, ok := s.requests[req.ID]
		var version int64
		if ok {
			version = stored.Version
		}
		if err := checkVersion(version, ok, req.Version); err != nil {
			return nil, err
		}
		undo := snapshot(s.requests, req.ID)
		req.Version++
		s.requests[req.ID] = cloneRequest(req)
		return undo, nil
	})
}

type paymentRepo struct{ u *Unit }

func clonePayment(p *booking.Payment) *booking.Payment {
	c := *p
	c.EventRecorder = events.EventRecorder{}
	return &c
}

func (r paymentRepo) ByID(ctx context.Context, id booking.PaymentID) (*booking.Payment, error) {
	var out *booking.Payment
	err := r.u.read(func(s *Store) error {
		row, ok := s.payments[id]
		if !ok {
			return booking.ErrPaymentNotFound
		}
		out = clonePayment(row.payment)
		return nil
	})
	return out, err
}

func (r paymentRepo) ByChargeID(ctx context.Context, chargeID string) (*booking.Payment, error) {
	var out *booking.Payment
	err := r.u.read(func(s *Store) error {
		for _, row := range s.payments {
			if chargeID != "" && row.payment.ChargeID == chargeID {
				out = clonePayment(row.payment)
				return nil
			}
		}
		return booking.ErrPaymentNotFound
	})
	return out, err
}

func (r paymentRepo) LatestForRequest(ctx context.Context, requestID booking.RequestID) (*booking.Payment, error) {
	var out *booking.Payment
	err := r.u.read(func(s *Store) error {
		var latest paymentRow
		for _, row := range s.payments {
			if row.payment.RequestID == requestID && (latest.payment == nil || row.seq > latest.seq) {
				latest = row
			}
		}
		if latest.payment == nil {
			return booking.ErrPaymentNotFound
		}
		out = clonePayment(latest.payment)
		return nil
	})
	return out, err
}

func (r paymentRepo) ListPending(ctx context.Context, chargedBefore time.Time) ([]*booking.Payment, error) {
	return r.list(func(p *booking.Payment) bool {
		return p.Status == booking.PaymentPending && p.ChargeID != "" && p.ChargedAt != nil && p.ChargedAt.Before(chargedBefore)
	})
}

func (r paymentRepo) ListRefundPending(ctx context.Context) ([]*booking.Payment, error) {
	return r.list(func(p *booking.Payment) bool { return p.RefundPending })
}

func (r paymentRepo) list(match func(*booking.Payment) bool) ([]*booking.Payment, error) {
	var rows []paymentRow
	err := r.u.read(func(s *Store) error {
		for _, row := range s.payments {
			if match(row.payment) {
				rows = append(rows, paymentRow{payment: clonePayment(row.payment), seq: row.seq})
			}
		}
		return nil
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]*booking.Payment, len(rows))
	for i, row := range rows {
		out[i] = row.payment
	}
	return out, err
}

func (r paymentRepo) Save(ctx context.Context, p *booking.Payment) error {
	return r.u.write(func(s *Store) (func(), error) {
		stored, ok := s.payments[p.ID]
		var version int64
		if ok {
			version = stored.payment.Version
		}
		if err := checkVersion(version, ok, p.Version); err != nil {
			return nil, err
		}
		undo := snapshot(s.payments, p.ID)
		seq := stored.seq
		if !ok {
			s.seq++
			seq = s.seq
		}
		p.Version++
		s.payments[p.ID] = paymentRow{payment: clonePayment(p), seq: seq}
		return undo, nil
	})
}

type tripRepo struct{ u *Unit }

func cloneTrip(t *booking.Trip) *booking.Trip {
	c := *t
	c.EventRecorder = events.EventRecorder{}
	return &c
}

func (r tripRepo) ByID(ctx context.Context, id booking.TripID) (*booking.Trip, error) {
	var out *booking.Trip
	err := r.u.read(func(s *Store) error {
		t, ok := s.trips[id]
		if !ok {
			return booking.ErrTripNotFound
		}
		out = cloneTrip(t)
		return nil
	})
	return out, err
}

func (r tripRepo) ByRequest(ctx context.Context, requestID booking.RequestID) (*booking.Trip, error) {
	var out *booking.Trip
	err := r.u.read(func(s *Store) error {
		for _, t := range s.trips {
			if t.RequestID == requestID {
				out = cloneTrip(t)
				return nil
			}
		}
		return booking.ErrTripNotFound
	})
	return out, err
}

func (r tripRepo) Save(ctx context.Context, t *booking.Trip) error {
	return r.u.write(func(s *Store) (func(), error) {
		stored, ok := s.trips[t.ID]
		var version int64
		if ok {
			version = stored.Version
		}
		if err := checkVersion(version, ok, t.Version); err != nil {
			return nil, err
		}
		undo := snapshot(s.trips, t.ID)
		t.Version++
		s.trips[t.ID] = cloneTrip(t)
		return undo, nil
	})
}

type accountRepo struct{ u *Unit }

func (r accountRepo) ByUser(ctx context.Context, userID string) (*incentive.Account, error) {
	var out *incentive.Account
	err := r.u.read(func(s *Store) error {
		a, ok := s.accounts[userID]
		if !ok {
			return incentive.ErrAccountNotFound
		}
		c := *a
		out = &c
		return nil
	})
	return out, err
}

func (r accountRepo) Save(ctx context.Context, a *incentive.Account) error {
	return r.u.write(func(s *Store) (func(), error) {
		undo := snapshot(s.accounts, a.UserID)
		c := *a
		// the balance only moves through AdjustBonus
		if stored, ok := s.accounts[a.UserID]; ok {
			c.Bonus = stored.Bonus
		}
		s.accounts[a.UserID] = &c
		return undo, nil
	})
}

func (r accountRepo) AdjustBonus(ctx context.Context, userID string, delta money.Money) error {
	return r.u.write(func(s *Store) (func(), error) {
		a, ok := s.accounts[userID]
		if !ok {
			return nil, incentive.ErrAccountNotFound
		}
		next, err := a.Bonus.Add(delta)
		if err != nil {
			return nil, err
		}
		if next.IsNegative() {
			return nil, incentive.ErrInsufficientBonus
		}
		undo := snapshot(s.accounts, userID)
		c := *a
		c.Bonus = next
		s.accounts[userID] = &c
		return undo, nil
	})
}

type partnerRepo struct{ u *Unit }

func (r partnerRepo) ByID(ctx context.Context, id incentive.PartnerID) (incentive.Partner, error) {
	var out incentive.Partner
	err := r.u.read(func(s *Store) error {
		p, ok := s.partners[id]
		if !ok {
			return incentive.ErrPartnerNotFound
		}
		out = p
		return nil
	})
	return out, err
}

func (r partnerRepo) Credit(ctx context.Context, id incentive.PartnerID, amount money.Money) error {
	return r.u.write(func(s *Store) (func(), error) {
		p, ok := s.partners[id]
		if !ok {
			return nil, incentive.ErrPartnerNotFound
		}
		balance, err := p.Balance.Add(amount)
		if err != nil {
			return nil, err
		}
		undo := snapshot(s.partners, id)
		p.Balance = balance
		s.partners[id] = p
		return undo, nil
	})
}

type promoRepo struct{ u *Unit }

func (r promoRepo) ByCode(ctx context.Context, code string) (incentive.PromoCode, error) {
	var out incentive.PromoCode
	err := r.u.read(func(s *Store) error {
		p, ok := s.promos[incentive.NormalizeCode(code)]
		if !ok {
			return incentive.ErrPromoNotFound
		}
		out = p
		return nil
	})
	return out, err
}

type usageRepo struct{ u *Unit }

func usageKey(code, userID string) string {
	return incentive.NormalizeCode(code) + "|" + userID
}

func (r usageRepo) Claim(ctx context.Context, code, userID string, at time.Time) error {
	return r.u.write(func(s *Store) (func(), error) {
		key := usageKey(code, userID)
		if s.usages[key].Used {
			return nil, incentive.ErrPromoAlreadyUsed
		}
		undo := snapshot(s.usages, key)
		s.usages[key] = incentive.Usage{Code: incentive.NormalizeCode(code), UserID: userID, Used: true, ClaimedAt: at.UTC()}
		return undo, nil
	})
}

func (r usageRepo) Release(ctx context.Context, code, userID string) error {
	return r.u.write(func(s *Store) (func(), error) {
		key := usageKey(code, userID)
		usage, ok := s.usages[key]
		if !ok || !usage.Used {
			return nil, nil
		}
		undo := snapshot(s.usages, key)
		usage.Used = false
		s.usages[key] = usage
		return undo, nil
	})
}

func (r usageRepo) Used(ctx context.Context, code, userID string) (bool, error) {
	var used bool
	err := r.u.read(func(s *Store) error {
		used = s.usages[usageKey(code, userID)].Used
		return nil
	})
	return used, err
}

type conversationRepo struct{ u *Unit }

func cloneConversation(c *chat.Conversation) *chat.Conversation {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	return &out
}

func (r conversationRepo) ByID(ctx context.Context, id chat.ConversationID) (*chat.Conversation, error) {
	var out *chat.Conversation
	err := r.u.read(func(s *Store) error {
		c, ok := s.conversations[id]
		if !ok {
			return chat.ErrConversationNotFound
		}
		out = cloneConversation(c)
		return nil
	})
	return out, err
}

func (r conversationRepo) ByRequest(ctx context.Context, requestID booking.RequestID) (*chat.Conversation, error) {
	var out *chat.Conversation
	err := r.u.read(func(s *Store) error {
		for _, c := range s.conversations {
			if c.Kind == chat.KindBooking && c.RequestID == requestID {
				out = cloneConversation(c)
				return nil
			}
		}
		return chat.ErrConversationNotFound
	})
	return out, err
}

func (r conversationRepo) ListByParticipant(ctx context.Context, userID string) ([]*chat.Conversation, error) {
	var out []*chat.Conversation
	err := r.u.read(func(s *Store) error {
		for _, c := range s.conversations {
			if c.IsParticipant(userID) {
				out = append(out, cloneConversation(c))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r conversationRepo) Save(ctx context.Context, c *chat.Conversation) error {
	return r.u.write(func(s *Store) (func(), error) {
		undo := snapshot(s.conversations, c.ID)
		s.conversations[c.ID] = cloneConversation(c)
		return undo, nil
	})
}
