package uow

import (
	"context"

	"rentguru/internal/domain/booking"
	"rentguru/internal/domain/chat"
	"rentguru/internal/domain/incentive"
	"rentguru/internal/domain/resource"
)

// UnitOfWork coordinates repositories inside a transaction boundary.
type UnitOfWork interface {
	Resources() resource.Repository
	Requests() booking.RequestRepository
	Payments() booking.PaymentRepository
	Trips() booking.TripRepository
	Accounts() incentive.AccountRepository
	Partners() incentive.PartnerRepository
	Promos() incentive.PromoRepository
	PromoUsages() incentive.UsageRepository
	Conversations() chat.ConversationRepository

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

type TxOptions struct {
	ReadOnly bool
}

// ContextInjector is implemented by units that carry driver state (sessions) in context.
type ContextInjector interface {
	InjectContext(ctx context.Context) context.Context
}

// Inject returns ctx enriched with the unit's driver state when it has any.
func Inject(ctx context.Context, unit UnitOfWork) context.Context {
	if injector, ok := unit.(ContextInjector); ok {
		return injector.InjectContext(ctx)
	}
	return ctx
}
