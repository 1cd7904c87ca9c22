package uow

import (
	"context"
	"errors"
	"sync"
)

// Hooks collects work that must run outside the transaction: release funcs
// (locks) run first, whatever the outcome, then after-commit funcs run only
// when the unit committed.
type Hooks struct {
	mu          sync.Mutex
	release     []func()
	afterCommit []func(ctx context.Context) error
}

type hooksKey struct{}

func ContextWithHooks(ctx context.Context, h *Hooks) context.Context {
	return context.WithValue(ctx, hooksKey{}, h)
}

func HooksFromContext(ctx context.Context) (*Hooks, bool) {
	h, ok := ctx.Value(hooksKey{}).(*Hooks)
	return h, ok
}

func (h *Hooks) OnRelease(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.release = append(h.release, fn)
}

func (h *Hooks) AfterCommit(fn func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.afterCommit = append(h.afterCommit, fn)
}

// Release runs release funcs in reverse registration order.
func (h *Hooks) Release() {
	h.mu.Lock()
	fns := h.release
	h.release = nil
	h.mu.Unlock()
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// Discard drops pending after-commit work, used when the unit rolled back.
func (h *Hooks) Discard() {
	h.mu.Lock()
	h.afterCommit = nil
	h.mu.Unlock()
}

// RunAfterCommit runs after-commit funcs in order and joins their errors.
func (h *Hooks) RunAfterCommit(ctx context.Context) error {
	h.mu.Lock()
	fns := h.afterCommit
	h.afterCommit = nil
	h.mu.Unlock()
	var errs []error
	for _, fn := range fns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
