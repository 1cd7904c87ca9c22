package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rentguru/internal/app/outbox"
	"rentguru/internal/app/policies"
	"rentguru/internal/app/uow"
	domainbooking "rentguru/internal/domain/booking"
	"rentguru/internal/domain/chat"
	"rentguru/internal/domain/resource"
	"rentguru/internal/domain/shared/events"
)

var ErrUnitOfWorkRequired = errors.New("booking: unit of work required")

// Engine executes booking transitions and the effects they return. Handlers
// share one Engine; every dependency except UoWFactory is optional.
type Engine struct {
	UoWFactory   uow.UoWFactory
	Gateway      policies.PaymentGateway
	Notifier     policies.Notifier
	Locker       policies.Locker
	Messages     chat.MessageStore
	Publisher    policies.MessagePublisher
	Outbox       outbox.Outbox
	Encoder      outbox.EventEncoder
	Logger       *slog.Logger
	RefundWindow time.Duration
	Now          func() time.Time
	NewID        func() string
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e *Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Engine) refundWindow() time.Duration {
	if e.RefundWindow > 0 {
		return e.RefundWindow
	}
	return domainbooking.DefaultRefundWindow
}

func (e *Engine) encoder() outbox.EventEncoder {
	if e.Encoder != nil {
		return e.Encoder
	}
	return outbox.JSONEventEncoder{}
}

// within runs fn inside the unit of work carried by ctx, or inside one it
// begins and commits itself. When no hooks collector is present it also
// releases locks and runs after-commit work once the unit is closed.
func (e *Engine) within(ctx context.Context, fn func(ctx context.Context, unit uow.UnitOfWork) error) error {
	outer := ctx
	hooks, hooked := uow.HooksFromContext(ctx)
	if !hooked {
		hooks = &uow.Hooks{}
		ctx = uow.ContextWithHooks(ctx, hooks)
	}

	unit, ok := uow.FromContext(ctx)
	managed := false
	if !ok {
		if e.UoWFactory == nil {
			return ErrUnitOfWorkRequired
		}
		var err error
		unit, err = e.UoWFactory.Begin(ctx, uow.TxOptions{})
		if err != nil {
			return err
		}
		ctx = uow.ContextWithUnitOfWork(uow.Inject(ctx, unit), unit)
		managed = true
	}

	err := fn(ctx, unit)
	if managed {
		if err == nil {
			err = unit.Commit(ctx)
		}
		if err != nil {
			_ = unit.Rollback(ctx)
		}
	}
	if hooked {
		return err
	}
	hooks.Release()
	if err != nil {
		hooks.Discard()
		return err
	}
	return hooks.RunAfterCommit(context.WithoutCancel(outer))
}

// read runs fn in a read-only unit.
func (e *Engine) read(ctx context.Context, fn func(ctx context.Context, unit uow.UnitOfWork) error) error {
	ctx, unit, release, err := uow.BeginReadOnly(ctx, e.UoWFactory)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, unit)
}

// peek reads through a unit of its own, outside the transaction carried by
// ctx. Callers use it to find what to lock before the transaction's first
// read, since a snapshot transaction would otherwise keep reading state from
// before the lock was granted.
func (e *Engine) peek(ctx context.Context, fn func(ctx context.Context, unit uow.UnitOfWork) error) error {
	if e.UoWFactory == nil {
		return ErrUnitOfWorkRequired
	}
	unit, err := e.UoWFactory.Begin(ctx, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	ctx = uow.ContextWithUnitOfWork(uow.Inject(ctx, unit), unit)
	defer func() { _ = unit.Rollback(ctx) }()
	return fn(ctx, unit)
}

func (e *Engine) afterCommit(ctx context.Context, fn func(ctx context.Context) error) {
	if hooks, ok := uow.HooksFromContext(ctx); ok {
		hooks.AfterCommit(fn)
	}
}

// lockResource serializes availability changes of one resource until the
// surrounding unit is closed.
func (e *Engine) lockResource(ctx context.Context, id resource.ID) error {
	if e.Locker == nil {
		return nil
	}
	hooks, ok := uow.HooksFromContext(ctx)
	if !ok {
		return errors.New("booking: resource lock requires a hooks collector")
	}
	unlock, err := e.Locker.Lock(ctx, policies.ResourceLockKey(string(id)))
	if err != nil {
		return err
	}
	hooks.OnRelease(unlock)
	return nil
}

func (e *Engine) record(ctx context.Context, sources ...events.Source) error {
	return outbox.RecordSources(ctx, e.Outbox, e.encoder(), sources...)
}
