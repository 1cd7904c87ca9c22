package uow

import (
	"context"
	"errors"
)

var ErrUnitOfWorkMissing = errors.New("uow: unit of work missing from context")

type ctxKey struct{}

func ContextWithUnitOfWork(ctx context.Context, unit UnitOfWork) context.Context {
	return context.WithValue(ctx, ctxKey{}, unit)
}

func FromContext(ctx context.Context) (UnitOfWork, bool) {
	unit, ok := ctx.Value(ctxKey{}).(UnitOfWork)
	return unit, ok
}

// BeginReadOnly opens a read-only unit and injects it into the returned context.
// The caller must call the returned release func.
func BeginReadOnly(ctx context.Context, factory UoWFactory) (context.Context, UnitOfWork, func(), error) {
	if unit, ok := FromContext(ctx); ok {
		return ctx, unit, func() {}, nil
	}
	if factory == nil {
		return ctx, nil, func() {}, ErrUnitOfWorkMissing
	}
	unit, err := factory.Begin(ctx, TxOptions{ReadOnly: true})
	if err != nil {
		return ctx, nil, func() {}, err
	}
	execCtx := ContextWithUnitOfWork(Inject(ctx, unit), unit)
	return execCtx, unit, func() { _ = unit.Rollback(execCtx) }, nil
}
