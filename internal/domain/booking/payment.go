package booking

import (
	"context"
	"fmt"
	"time"

	"rentguru/internal/domain/shared/events"
	"rentguru/internal/domain/shared/money"
)

type PaymentID string

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentSuccess  PaymentStatus = "success"
	PaymentFailed   PaymentStatus = "failed"
	PaymentCanceled PaymentStatus = "canceled"
)

// Payment is one charge attempt for an accepted request. Amount and the
// discount figures are fixed at creation.
type Payment struct {
	ID             PaymentID
	RequestID      RequestID
	OrganizerID    string
	Amount         money.Money
	DiscountAmount money.Money
	BonusAmount    money.Money
	PromoCode      string
	Status         PaymentStatus
	ChargeID       string
	RedirectURL    string
	OrderRef       string
	ChargedAt      *time.Time
	RefundPending  bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Version        int64
	events.EventRecorder
}

type PaymentRepository interface {
	ByID(ctx context.Context, id PaymentID) (*Payment, error)
	ByChargeID(ctx context.Context, chargeID string) (*Payment, error)
	LatestForRequest(ctx context.Context, requestID RequestID) (*Payment, error)
	ListPending(ctx context.Context, chargedBefore time.Time) ([]*Payment, error)
	ListRefundPending(ctx context.Context) ([]*Payment, error)
	Save(ctx context.Context, payment *Payment) error
}

func newPayment(id PaymentID, r *RentalRequest, now time.Time) *Payment {
	return &Payment{
		ID:             id,
		RequestID:      r.ID,
		OrganizerID:    r.OrganizerID,
		Amount:         r.Financials.Payable,
		DiscountAmount: r.Financials.Discount,
		BonusAmount:    r.Financials.Bonus,
		PromoCode:      r.PromoCode,
		Status:         PaymentPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// AttachCharge stores the gateway charge created for this payment.
func (p *Payment) AttachCharge(chargeID, redirectURL, orderRef string, now time.Time) {
	at := now.UTC()
	p.ChargeID = chargeID
	p.RedirectURL = redirectURL
	p.OrderRef = orderRef
	p.ChargedAt = &at
	p.UpdatedAt = at
}

// OrderRefAt is the merchant order reference for a charge attempt.
func (p *Payment) OrderRefAt(now time.Time) string {
	return fmt.Sprintf("%s_%d", p.ID, now.Unix())
}

// Rebill clones the financial snapshot into a fresh pending payment. Only a
// failed or canceled payment that never succeeded can be re-billed.
func (p *Payment) Rebill(id PaymentID, now time.Time) (*Payment, error) {
	if p.Status != PaymentFailed && p.Status != PaymentCanceled {
		return nil, ErrRebillNotAllowed
	}
	now = now.UTC()
	return &Payment{
		ID:             id,
		RequestID:      p.RequestID,
		OrganizerID:    p.OrganizerID,
		Amount:         p.Amount,
		DiscountAmount: p.DiscountAmount,
		BonusAmount:    p.BonusAmount,
		PromoCode:      p.PromoCode,
		Status:         PaymentPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// SettlePayment moves a payment to success and opens the trip. The gateway's
// success confirmation both starts the trip and activates it, so the trip is
// stored as current; both steps are recorded as events.
func SettlePayment(r *RentalRequest, p *Payment, tripID TripID, now time.Time) (*Trip, []Effect, error) {
	switch p.Status {
	case PaymentSuccess:
		return nil, nil, ErrPaymentSettled
	case PaymentPending, PaymentFailed:
	default:
		return nil, nil, ErrInvalidTransition
	}
	if r.Status != StatusAccepted {
		return nil, nil, ErrInvalidTransition
	}
	now = now.UTC()
	p.Status = PaymentSuccess
	p.UpdatedAt = now
	p.Record(PaymentSucceeded{PaymentID: p.ID, RequestID: p.RequestID, Amount: p.Amount, At: now})

	trip := newTrip(tripID, r, p, now)
	if err := trip.Activate(p, now); err != nil {
		return nil, nil, err
	}
	return trip, []Effect{
		Notify{UserID: r.OrganizerID, Text: "Payment received, your trip is confirmed", Link: TripLink(trip.ID)},
		Notify{UserID: r.OwnerID, Text: "A rental of your vehicle has been paid", Link: TripLink(trip.ID)},
	}, nil
}

// SettleSurplusPayment records a charge confirmed for a request whose trip is
// already paid by another payment. The charge is kept as success with a full
// refund pending; no second trip is opened.
func SettleSurplusPayment(p *Payment, now time.Time) ([]Effect, error) {
	switch p.Status {
	case PaymentSuccess:
		return nil, ErrPaymentSettled
	case PaymentPending, PaymentFailed:
	default:
		return nil, ErrInvalidTransition
	}
	now = now.UTC()
	p.Status = PaymentSuccess
	p.RefundPending = true
	p.UpdatedAt = now
	p.Record(PaymentSucceeded{PaymentID: p.ID, RequestID: p.RequestID, Amount: p.Amount, At: now})
	return []Effect{
		RefundCharge{PaymentID: p.ID},
		Notify{UserID: p.OrganizerID, Text: "A second payment for this rental was received and will be refunded", Link: RequestLink(p.RequestID)},
	}, nil
}

// FailPayment records a rejected or canceled charge. Availability is not restored.
func FailPayment(r *RentalRequest, p *Payment, status PaymentStatus, now time.Time) ([]Effect, error) {
	if status != PaymentFailed && status != PaymentCanceled {
		return nil, ErrInvalidTransition
	}
	switch p.Status {
	case PaymentPending:
	case status:
		return nil, ErrPaymentSettled
	default:
		return nil, ErrInvalidTransition
	}
	now = now.UTC()
	p.Status = status
	p.UpdatedAt = now
	p.Record(PaymentFailedEvent{PaymentID: p.ID, RequestID: p.RequestID, Status: status, At: now})
	return []Effect{
		Notify{UserID: r.OrganizerID, Text: "Payment did not go through, you can try again", Link: RequestLink(r.ID)},
	}, nil
}

// ConfirmRefund completes a refund started on trip cancellation.
func (p *Payment) ConfirmRefund(now time.Time) error {
	if !p.RefundPending {
		return ErrInvalidTransition
	}
	p.RefundPending = false
	p.Status = PaymentCanceled
	p.UpdatedAt = now.UTC()
	return nil
}
