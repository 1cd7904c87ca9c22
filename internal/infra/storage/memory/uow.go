package memory

import (
	"context"
	"errors"
	"sync"

	"rentguru/internal/app/uow"
	"rentguru/internal/domain/booking"
	"rentguru/internal/domain/chat"
	"rentguru/internal/domain/incentive"
	"rentguru/internal/domain/resource"
)

var (
	ErrUnitClosed = errors.New("memory: unit of work already closed")
	ErrReadOnly   = errors.New("memory: write in a read-only unit of work")
)

// Store holds every aggregate of the booking engine. Stored values are
// snapshots: repositories hand out clones and replace entries on save, which
// keeps rollback a matter of putting the previous snapshot back.
type Store struct {
	mu sync.Mutex

	resources     map[resource.ID]resource.Resource
	requests      map[booking.RequestID]*booking.RentalRequest
	payments      map[booking.PaymentID]paymentRow
	trips         map[booking.TripID]*booking.Trip
	accounts      map[string]*incentive.Account
	partners      map[incentive.PartnerID]incentive.Partner
	promos        map[string]incentive.PromoCode
	usages        map[string]incentive.Usage
	conversations map[chat.ConversationID]*chat.Conversation
	seq           int64
}

type paymentRow struct {
	payment *booking.Payment
	seq     int64
}

func NewStore() *Store {
	return &Store{
		resources:     make(map[resource.ID]resource.Resource),
		requests:      make(map[booking.RequestID]*booking.RentalRequest),
		payments:      make(map[booking.PaymentID]paymentRow),
		trips:         make(map[booking.TripID]*booking.Trip),
		accounts:      make(map[string]*incentive.Account),
		partners:      make(map[incentive.PartnerID]incentive.Partner),
		promos:        make(map[string]incentive.PromoCode),
		usages:        make(map[string]incentive.Usage),
		conversations: make(map[chat.ConversationID]*chat.Conversation),
	}
}

// Factory opens units over a shared Store. Units see each other's uncommitted
// writes; optimistic version checks and the resource locker keep concurrent
// commands from clobbering each other.
type Factory struct {
	Store *Store
}

func NewFactory(store *Store) Factory {
	return Factory{Store: store}
}

func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.Store == nil {
		return nil, errors.New("memory: unit of work factory misconfigured")
	}
	return &Unit{store: f.Store, readOnly: opts.ReadOnly}, nil
}

// Unit records an undo entry for every write and replays them on rollback.
type Unit struct {
	store    *Store
	readOnly bool

	mu     sync.Mutex
	undo   []func()
	closed bool
}

func (u *Unit) Resources() resource.Repository             { return resourceRepo{u} }
func (u *Unit) Requests() booking.RequestRepository        { return requestRepo{u} }
func (u *Unit) Payments() booking.PaymentRepository        { return paymentRepo{u} }
func (u *Unit) Trips() booking.TripRepository              { return tripRepo{u} }
func (u *Unit) Accounts() incentive.AccountRepository      { return accountRepo{u} }
func (u *Unit) Partners() incentive.PartnerRepository      { return partnerRepo{u} }
func (u *Unit) Promos() incentive.PromoRepository          { return promoRepo{u} }
func (u *Unit) PromoUsages() incentive.UsageRepository     { return usageRepo{u} }
func (u *Unit) Conversations() chat.ConversationRepository { return conversationRepo{u} }

func (u *Unit) Commit(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return ErrUnitClosed
	}
	u.closed = true
	u.undo = nil
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	u.store.mu.Lock()
	for i := len(u.undo) - 1; i >= 0; i-- {
		u.undo[i]()
	}
	u.store.mu.Unlock()
	u.undo = nil
	return nil
}

// read runs fn under the store lock.
func (u *Unit) read(fn func(s *Store) error) error {
	u.mu.Lock()
	closed := u.closed
	u.mu.Unlock()
	if closed {
		return ErrUnitClosed
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	return fn(u.store)
}

// write runs fn under the store lock; fn returns the undo entry for its change.
func (u *Unit) write(fn func(s *Store) (func(), error)) error {
	if u.readOnly {
		return ErrReadOnly
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return ErrUnitClosed
	}
	u.store.mu.Lock()
	undo, err := fn(u.store)
	u.store.mu.Unlock()
	if err != nil {
		return err
	}
	if undo != nil {
		u.undo = append(u.undo, undo)
	}
	return nil
}

// snapshot captures the current entry so it can be put back.
func snapshot[K comparable, V any](m map[K]V, key K) func() {
	prev, existed := m[key]
	return func() {
		if existed {
			m[key] = prev
			return
		}
		delete(m, key)
	}
}

// checkVersion guards optimistic writes: a stored entry must carry the
// version the caller loaded.
func checkVersion(stored int64, exists bool, incoming int64) error {
	if exists && stored != incoming {
		return booking.ErrConcurrentUpdate
	}
	return nil
}

var (
	_ uow.UoWFactory = Factory{}
	_ uow.UnitOfWork = (*Unit)(nil)
)
