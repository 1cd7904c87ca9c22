package dto

import (
	"time"

	"rentguru/internal/domain/booking"
	"rentguru/internal/domain/resource"
	"rentguru/internal/domain/shared/daterange"
	"rentguru/internal/domain/shared/money"
)

// MoneyDTO renders amounts as two-decimal strings so they round-trip exactly.
type MoneyDTO struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func Money(m money.Money) MoneyDTO {
	currency := m.Currency
	if currency == "" {
		currency = money.DefaultCurrency
	}
	return MoneyDTO{Amount: m.Decimal(), Currency: currency}
}

type RequestView struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	OrganizerID   string    `json:"organizer_id"`
	OwnerID       string    `json:"owner_id"`
	ResourceID    string    `json:"vehicle_id"`
	ResourceKind  string    `json:"vehicle_type"`
	StartDate     string    `json:"start_date"`
	EndDate       string    `json:"end_date"`
	StartTime     string    `json:"start_time,omitempty"`
	EndTime       string    `json:"end_time,omitempty"`
	Billing       string    `json:"billing"`
	Delivery      bool      `json:"delivery"`
	OnRequest     bool      `json:"on_request"`
	TermsProposed bool      `json:"terms_proposed"`
	TotalCost     MoneyDTO  `json:"total_cost"`
	DepositCost   MoneyDTO  `json:"deposit_cost"`
	DeliveryCost  MoneyDTO  `json:"delivery_cost"`
	Commission    MoneyDTO  `json:"commission"`
	Discount      MoneyDTO  `json:"discount"`
	Bonus         MoneyDTO  `json:"bonus"`
	Payable       MoneyDTO  `json:"amount"`
	PromoCode     string    `json:"promocode,omitempty"`
	DenyReason    string    `json:"denied_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func Request(r *booking.RentalRequest) RequestView {
	view := RequestView{
		ID:            string(r.ID),
		Status:        string(r.Status),
		OrganizerID:   r.OrganizerID,
		OwnerID:       r.OwnerID,
		ResourceID:    string(r.ResourceID),
		ResourceKind:  string(r.ResourceKind),
		StartDate:     r.Window.Dates.Start.Format(daterange.Layout),
		EndDate:       r.Window.Dates.End.Format(daterange.Layout),
		Billing:       string(r.Mode),
		Delivery:      r.Delivery,
		OnRequest:     r.OnRequest,
		TermsProposed: r.TermsProposed,
		TotalCost:     Money(r.TotalCost),
		DepositCost:   Money(r.DepositCost),
		DeliveryCost:  Money(r.DeliveryCost),
		Commission:    Money(r.Financials.Commission),
		Discount:      Money(r.Financials.Discount),
		Bonus:         Money(r.Financials.Bonus),
		Payable:       Money(r.Financials.Payable),
		PromoCode:     r.PromoCode,
		DenyReason:    r.DenyReason,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.Window.StartTime != nil {
		view.StartTime = r.Window.StartTime.String()
	}
	if r.Window.EndTime != nil {
		view.EndTime = r.Window.EndTime.String()
	}
	return view
}

type PaymentView struct {
	ID             string   `json:"id"`
	RequestID      string   `json:"request_id"`
	Status         string   `json:"status"`
	Amount         MoneyDTO `json:"amount"`
	DiscountAmount MoneyDTO `json:"discount_amount"`
	BonusAmount    MoneyDTO `json:"bonus_amount"`
	PromoCode      string   `json:"promocode,omitempty"`
	RedirectURL    string   `json:"redirect_url,omitempty"`
	RefundPending  bool     `json:"refund_pending,omitempty"`
}

func Payment(p *booking.Payment) PaymentView {
	return PaymentView{
		ID:             string(p.ID),
		RequestID:      string(p.RequestID),
		Status:         string(p.Status),
		Amount:         Money(p.Amount),
		DiscountAmount: Money(p.DiscountAmount),
		BonusAmount:    Money(p.BonusAmount),
		PromoCode:      p.PromoCode,
		RedirectURL:    p.RedirectURL,
		RefundPending:  p.RefundPending,
	}
}

type TripView struct {
	ID          string `json:"id"`
	RequestID   string `json:"request_id"`
	PaymentID   string `json:"payment_id"`
	OrganizerID string `json:"organizer_id"`
	OwnerID     string `json:"owner_id"`
	ResourceID  string `json:"vehicle_id"`
	Status      string `json:"status"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	StartTime   string `json:"start_time,omitempty"`
	EndTime     string `json:"end_time,omitempty"`
	ClosedBy    string `json:"closed_by,omitempty"`
}

func Trip(t *booking.Trip) TripView {
	view := TripView{
		ID:          string(t.ID),
		RequestID:   string(t.RequestID),
		PaymentID:   string(t.PaymentID),
		OrganizerID: t.OrganizerID,
		OwnerID:     t.OwnerID,
		ResourceID:  string(t.ResourceID),
		Status:      string(t.Status),
		StartDate:   t.Dates.Start.Format(daterange.Layout),
		EndDate:     t.Dates.End.Format(daterange.Layout),
		ClosedBy:    t.ClosedBy,
	}
	if t.StartTime != nil {
		view.StartTime = t.StartTime.String()
	}
	if t.EndTime != nil {
		view.EndTime = t.EndTime.String()
	}
	return view
}

// Decision is the outcome of accepting a request or confirming proposed terms.
type Decision struct {
	Request RequestView  `json:"request"`
	Payment *PaymentView `json:"payment,omitempty"`
}

type Settlement struct {
	Payment PaymentView `json:"payment"`
	Trip    *TripView   `json:"trip,omitempty"`
}

type TripClosure struct {
	Trip    TripView    `json:"trip"`
	Payment PaymentView `json:"payment"`
}

type WindowView struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type AvailabilityView struct {
	ResourceID string       `json:"vehicle_id"`
	Kind       string       `json:"vehicle_type"`
	OnRequest  bool         `json:"on_request"`
	Windows    []WindowView `json:"windows"`
}

func Availability(r resource.Resource) AvailabilityView {
	cal := r.Availability()
	view := AvailabilityView{
		ResourceID: string(r.Base().ID),
		Kind:       string(r.Kind()),
		OnRequest:  cal.OnRequest,
		Windows:    make([]WindowView, 0, len(cal.Windows)),
	}
	for _, w := range cal.Windows {
		view.Windows = append(view.Windows, WindowView{Start: w.Start.Format(daterange.Layout), End: w.End.Format(daterange.Layout)})
	}
	return view
}

type AccountView struct {
	UserID string   `json:"user_id"`
	Bonus  MoneyDTO `json:"bonus"`
}

type ReconcileReport struct {
	Settled  int `json:"settled"`
	Failed   int `json:"failed"`
	Refunded int `json:"refunded"`
	Errors   int `json:"errors"`
}
