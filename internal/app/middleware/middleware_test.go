package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentguru/internal/app/commands"
	"rentguru/internal/app/uow"
)

type payCommand struct {
	Actor string
	Key_  string
}

func (payCommand) Key() string              { return "test.pay" }
func (c payCommand) IdempotencyKey() string { return c.Key_ }
func (payCommand) ResultPrototype() any     { return &payResult{} }
func (c payCommand) ActorID() string        { return c.Actor }

type payResult struct {
	URL string `json:"url"`
}

type memStore struct {
	mu    sync.Mutex
	items map[string]IdempotencyRecord
}

func (s *memStore) Get(_ context.Context, key string) (IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[key]
	return rec, ok, nil
}

func (s *memStore) Save(_ context.Context, rec IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[rec.Key] = rec
	return nil
}

type kindError struct{ kind, msg string }

func (e kindError) Error() string { return e.msg }

type testErrors struct{}

func (testErrors) Kind(err error) string {
	var ke kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return ""
}

func (testErrors) Restore(kind, message string) error { return kindError{kind: kind, msg: message} }

func TestIdempotencyReplaysResultsAndDeterministicErrors(t *testing.T) {
	calls := 0
	var next error
	base := commandFunc(func(context.Context, commands.Command) (any, error) {
		calls++
		if next != nil {
			return nil, next
		}
		return &payResult{URL: "https://pay/1"}, nil
	})
	bus := ChainCommands(base, Idempotency(&memStore{items: map[string]IdempotencyRecord{}}, nil, testErrors{}))

	first, err := commands.Dispatch[payCommand, *payResult](context.Background(), bus, payCommand{Key_: "k1"})
	require.NoError(t, err)
	second, err := commands.Dispatch[payCommand, *payResult](context.Background(), bus, payCommand{Key_: "k1"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	next = kindError{kind: "conflict", msg: "promo already used"}
	_, err = bus.Dispatch(context.Background(), payCommand{Key_: "k2"})
	require.Error(t, err)
	_, err = bus.Dispatch(context.Background(), payCommand{Key_: "k2"})
	assert.Equal(t, kindError{kind: "conflict", msg: "promo already used"}, err)
	assert.Equal(t, 2, calls)

	next = errors.New("gateway timeout")
	_, _ = bus.Dispatch(context.Background(), payCommand{Key_: "k3"})
	_, _ = bus.Dispatch(context.Background(), payCommand{Key_: "k3"})
	assert.Equal(t, 4, calls, "transient failures are retried")
}

type fakeUnit struct {
	uow.UnitOfWork
	trace *[]string
	fail  bool
}

func (u *fakeUnit) Commit(context.Context) error {
	*u.trace = append(*u.trace, "commit")
	if u.fail {
		return errors.New("write conflict")
	}
	return nil
}

func (u *fakeUnit) Rollback(context.Context) error {
	*u.trace = append(*u.trace, "rollback")
	return nil
}

type fakeFactory struct {
	trace *[]string
	fail  bool
}

func (f fakeFactory) Begin(context.Context, uow.TxOptions) (uow.UnitOfWork, error) {
	*f.trace = append(*f.trace, "begin")
	return &fakeUnit{trace: f.trace, fail: f.fail}, nil
}

func TestHooksRunAroundTransaction(t *testing.T) {
	tests := []struct {
		name       string
		handlerErr error
		commitFail bool
		want       []string
	}{
		{name: "success", want: []string{"begin", "handle", "commit", "unlock", "charge"}},
		{name: "handler fails", handlerErr: errors.New("no longer available"), want: []string{"begin", "handle", "rollback", "unlock"}},
		{name: "commit fails", commitFail: true, want: []string{"begin", "handle", "commit", "rollback", "unlock"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var trace []string
			base := commandFunc(func(ctx context.Context, _ commands.Command) (any, error) {
				trace = append(trace, "handle")
				hooks, ok := uow.HooksFromContext(ctx)
				require.True(t, ok)
				_, ok = uow.FromContext(ctx)
				require.True(t, ok)
				hooks.OnRelease(func() { trace = append(trace, "unlock") })
				hooks.AfterCommit(func(context.Context) error { trace = append(trace, "charge"); return nil })
				return "ok", tt.handlerErr
			})
			bus := ChainCommands(base, Hooks(), Transaction(fakeFactory{trace: &trace, fail: tt.commitFail}, nil))
			_, _ = bus.Dispatch(context.Background(), payCommand{})
			assert.Equal(t, tt.want, trace)
		})
	}
}

func TestRequireActor(t *testing.T) {
	bus := ChainCommands(commandFunc(func(context.Context, commands.Command) (any, error) { return nil, nil }), Authorization(RequireActor{}))
	_, err := bus.Dispatch(context.Background(), payCommand{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = bus.Dispatch(context.Background(), payCommand{Actor: "u1"})
	assert.NoError(t, err)
}
