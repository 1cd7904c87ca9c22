package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"rentguru/internal/app/policies"
	"rentguru/internal/domain/shared/money"
)

var ErrChargeNotFound = errors.New("memory: charge not found")

// Gateway is a scriptable stand-in for the card processor used in local runs and tests.
type Gateway struct {
	mu      sync.Mutex
	charges map[string]*fakeCharge
	seq     int

	// FailCreate makes CreateCharge fail with the given error.
	FailCreate error
	// RefuseRefund makes CancelCharge answer false.
	RefuseRefund bool
	BaseURL      string
}

type fakeCharge struct {
	req      policies.ChargeRequest
	status   policies.ChargeStatus
	refunded bool
}

func NewGateway() *Gateway {
	return &Gateway{charges: make(map[string]*fakeCharge), BaseURL: "https://pay.local/form/"}
}

func (g *Gateway) CreateCharge(ctx context.Context, req policies.ChargeRequest) (policies.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailCreate != nil {
		return policies.Charge{}, g.FailCreate
	}
	g.seq++
	id := fmt.Sprintf("ch-%d", g.seq)
	g.charges[id] = &fakeCharge{req: req, status: policies.ChargeNew}
	return policies.Charge{ID: id, RedirectURL: g.BaseURL + id}, nil
}

func (g *Gateway) CancelCharge(ctx context.Context, chargeID string, amount money.Money) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.charges[chargeID]
	if !ok {
		return false, ErrChargeNotFound
	}
	if g.RefuseRefund {
		return false, nil
	}
	ch.refunded = true
	ch.status = policies.ChargeRefunded
	return true, nil
}

func (g *Gateway) ChargeState(ctx context.Context, chargeID string) (policies.ChargeStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.charges[chargeID]
	if !ok {
		return "", ErrChargeNotFound
	}
	return ch.status, nil
}

// SetState moves a charge, as the renter completing or abandoning the form would.
func (g *Gateway) SetState(chargeID string, status policies.ChargeStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ch, ok := g.charges[chargeID]; ok {
		ch.status = status
	}
}

// Charged returns the amount requested for a charge.
func (g *Gateway) Charged(chargeID string) (money.Money, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.charges[chargeID]
	if !ok {
		return money.Money{}, false
	}
	return ch.req.Amount, true
}

func (g *Gateway) Refunded(chargeID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.charges[chargeID]
	return ok && ch.refunded
}

// Notifier records notifications instead of sending them.
type Notifier struct {
	mu   sync.Mutex
	sent []Notification
}

type Notification struct {
	UserID string
	Text   string
	Link   string
}

func (n *Notifier) Notify(ctx context.Context, userID, text, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{UserID: userID, Text: text, Link: link})
	return nil
}

func (n *Notifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

var (
	_ policies.PaymentGateway = (*Gateway)(nil)
	_ policies.Notifier       = (*Notifier)(nil)
)
