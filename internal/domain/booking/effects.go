package booking

import (
	"rentguru/internal/domain/resource"
	"rentguru/internal/domain/shared/daterange"
	"rentguru/internal/domain/shared/money"
)

// Effect is a side effect requested by a transition. Transitions return them in
// execution order; the orchestrator runs transactional effects inside the unit
// of work and deferred ones after commit.
type Effect interface {
	effect()
}

type ReserveWindow struct {
	ResourceID resource.ID
	Range      daterange.DateRange
}

type RestoreWindow struct {
	ResourceID resource.ID
	Range      daterange.DateRange
}

type ClaimPromo struct {
	Code   string
	UserID string
}

type ReleasePromo struct {
	Code   string
	UserID string
}

type DebitBonus struct {
	UserID string
	Amount money.Money
}

type CreditBonus struct {
	UserID string
	Amount money.Money
}

// RecordTripStats bumps the resource and owner counters for a terminal trip.
type RecordTripStats struct {
	ResourceID resource.ID
	OwnerID    string
	Outcome    TripStatus
}

type PayoutPartners struct {
	OrganizerID string
	OwnerID     string
	Amount      money.Money
}

type OpenConversation struct {
	RequestID    RequestID
	Participants []string
}

// InitiateCharge asks the gateway to create the charge for a pending payment.
type InitiateCharge struct {
	PaymentID PaymentID
}

// RefundCharge asks the gateway to cancel a successful charge.
type RefundCharge struct {
	PaymentID PaymentID
}

// PostBookingUpdate writes the current request snapshot into its conversation.
type PostBookingUpdate struct {
	RequestID RequestID
}

type Notify struct {
	UserID string
	Text   string
	Link   string
}

func (ReserveWindow) effect()     {}
func (RestoreWindow) effect()     {}
func (ClaimPromo) effect()        {}
func (ReleasePromo) effect()      {}
func (DebitBonus) effect()        {}
func (CreditBonus) effect()       {}
func (RecordTripStats) effect()   {}
func (PayoutPartners) effect()    {}
func (OpenConversation) effect()  {}
func (InitiateCharge) effect()    {}
func (RefundCharge) effect()      {}
func (PostBookingUpdate) effect() {}
func (Notify) effect()            {}

// Deferred reports whether the effect talks to the outside world and must run after commit.
func Deferred(e Effect) bool {
	switch e.(type) {
	case InitiateCharge, RefundCharge, PostBookingUpdate, Notify:
		return true
	default:
		return false
	}
}

// Split partitions effects into transactional and deferred, keeping order.
func Split(effects []Effect) (tx, deferred []Effect) {
	for _, e := range effects {
		if Deferred(e) {
			deferred = append(deferred, e)
		} else {
			tx = append(tx, e)
		}
	}
	return tx, deferred
}
