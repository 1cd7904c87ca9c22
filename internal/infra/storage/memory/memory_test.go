package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentguru/internal/app/middleware"
	"rentguru/internal/app/policies"
	"rentguru/internal/app/uow"
	"rentguru/internal/domain/booking"
	"rentguru/internal/domain/chat"
	"rentguru/internal/domain/incentive"
	"rentguru/internal/domain/resource"
	"rentguru/internal/domain/shared/daterange"
	"rentguru/internal/domain/shared/money"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func seededStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	car, err := resource.New(resource.KindAuto, resource.Vehicle{
		ID:       "car-1",
		OwnerID:  "owner",
		Calendar: resource.Calendar(daterange.MustParse("2024-03-01", "2024-03-31")),
	})
	require.NoError(t, err)
	s.PutResource(car)
	s.PutAccount(incentive.Account{UserID: "renter", Bonus: money.RUB(50)})
	return s
}

func TestRollbackRestoresSnapshots(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(seededStore(t))

	unit, err := f.Begin(ctx, uow.TxOptions{})
	require.NoError(t, err)
	res, err := unit.Resources().ByID(ctx, "car-1")
	require.NoError(t, err)
	require.NoError(t, res.Base().Reserve(daterange.MustParse("2024-03-05", "2024-03-06"), t0))
	require.NoError(t, unit.Resources().Save(ctx, res))
	require.NoError(t, unit.Accounts().AdjustBonus(ctx, "renter", money.RUB(-20)))
	require.NoError(t, unit.PromoUsages().Claim(ctx, "spring", "renter", t0))
	require.NoError(t, unit.Rollback(ctx))

	check, err := f.Begin(ctx, uow.TxOptions{ReadOnly: true})
	require.NoError(t, err)
	res, err = check.Resources().ByID(ctx, "car-1")
	require.NoError(t, err)
	assert.True(t, res.Base().Available(daterange.MustParse("2024-03-05", "2024-03-06")))
	acc, err := check.Accounts().ByUser(ctx, "renter")
	require.NoError(t, err)
	assert.Equal(t, money.RUB(50), acc.Bonus)
	used, err := check.PromoUsages().Used(ctx, "SPRING", "renter")
	require.NoError(t, err)
	assert.False(t, used)
}

func TestSaveDetectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(seededStore(t))

	a, _ := f.Begin(ctx, uow.TxOptions{})
	b, _ := f.Begin(ctx, uow.TxOptions{})
	resA, err := a.Resources().ByID(ctx, "car-1")
	require.NoError(t, err)
	resB, err := b.Resources().ByID(ctx, "car-1")
	require.NoError(t, err)

	require.NoError(t, a.Resources().Save(ctx, resA))
	require.NoError(t, a.Commit(ctx))
	assert.ErrorIs(t, b.Resources().Save(ctx, resB), booking.ErrConcurrentUpdate)
}

func TestAccountsAndPromos(t *testing.T) {
	ctx := context.Background()
	unit, _ := NewFactory(seededStore(t)).Begin(ctx, uow.TxOptions{})

	assert.ErrorIs(t, unit.Accounts().AdjustBonus(ctx, "renter", money.RUB(-51)), incentive.ErrInsufficientBonus)
	assert.ErrorIs(t, unit.Accounts().AdjustBonus(ctx, "ghost", money.RUB(1)), incentive.ErrAccountNotFound)

	acc, err := unit.Accounts().ByUser(ctx, "renter")
	require.NoError(t, err)
	require.NoError(t, unit.Accounts().AdjustBonus(ctx, "renter", money.RUB(-50)))
	acc.Trips = 3
	require.NoError(t, unit.Accounts().Save(ctx, acc))
	acc, _ = unit.Accounts().ByUser(ctx, "renter")
	assert.Equal(t, 3, acc.Trips)
	assert.True(t, acc.Bonus.IsZero(), "a stale account save does not resurrect the bonus")

	require.NoError(t, unit.PromoUsages().Claim(ctx, "spring", "renter", t0))
	assert.ErrorIs(t, unit.PromoUsages().Claim(ctx, " Spring ", "renter", t0), incentive.ErrPromoAlreadyUsed)
	require.NoError(t, unit.PromoUsages().Release(ctx, "SPRING", "renter"))
	require.NoError(t, unit.PromoUsages().Claim(ctx, "SPRING", "renter", t0))
}

func TestReadOnlyUnitRejectsWrites(t *testing.T) {
	ctx := context.Background()
	unit, _ := NewFactory(seededStore(t)).Begin(ctx, uow.TxOptions{ReadOnly: true})
	assert.ErrorIs(t, unit.Accounts().AdjustBonus(ctx, "renter", money.RUB(1)), ErrReadOnly)
}

func TestPaymentsLatestAndPending(t *testing.T) {
	ctx := context.Background()
	unit, _ := NewFactory(NewStore()).Begin(ctx, uow.TxOptions{})
	charged := t0
	require.NoError(t, unit.Payments().Save(ctx, &booking.Payment{ID: "p1", RequestID: "r1", Status: booking.PaymentFailed}))
	require.NoError(t, unit.Payments().Save(ctx, &booking.Payment{ID: "p2", RequestID: "r1", Status: booking.PaymentPending, ChargeID: "ch-2", ChargedAt: &charged}))

	latest, err := unit.Payments().LatestForRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, booking.PaymentID("p2"), latest.ID)

	pending, err := unit.Payments().ListPending(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	pending, _ = unit.Payments().ListPending(ctx, t0)
	assert.Empty(t, pending)

	byCharge, err := unit.Payments().ByChargeID(ctx, "ch-2")
	require.NoError(t, err)
	assert.Equal(t, booking.PaymentID("p2"), byCharge.ID)
	_, err = unit.Payments().LatestForRequest(ctx, "r2")
	assert.ErrorIs(t, err, booking.ErrPaymentNotFound)
}

func TestMessageStore(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore()
	for i, sender := range []string{"renter", "owner", "renter"} {
		m, err := chat.NewMessage(chat.MessageID(rune('a'+i)), "c1", sender, "hi", "", "ru", t0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.NoError(t, s.Append(ctx, m))
	}

	page, err := s.List(ctx, "c1", chat.Page{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, chat.MessageID("c"), page[0].ID)

	n, err := s.CountUnread(ctx, []chat.ConversationID{"c1", "c1"}, "owner")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.Mutate(ctx, "c1", "a", func(m *chat.Message) error {
		m.MarkRead("owner")
		return nil
	})
	require.NoError(t, err)
	_, err = s.Mutate(ctx, "c1", "b", func(m *chat.Message) error {
		return m.Edit(booking.Actor{UserID: "renter"}, "nope", t0)
	})
	assert.ErrorIs(t, err, chat.ErrNotSender)

	n, _ = s.CountUnread(ctx, []chat.ConversationID{"c1"}, "owner")
	assert.Equal(t, 1, n)
}

func TestLockerHonorsContext(t *testing.T) {
	l := NewLocker()
	unlock, err := l.Lock(context.Background(), "resource:car-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "resource:car-1")
	assert.ErrorIs(t, err, policies.ErrLockTimeout)

	unlock()
	unlock()
	again, err := l.Lock(context.Background(), "resource:car-1")
	require.NoError(t, err)
	again()
}

func TestBroadcasterDelivers(t *testing.T) {
	ctx := context.Background()
	b := NewBroadcaster()
	ch, cancel, err := b.Subscribe(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, policies.Delivery{ConversationID: "c1", Frame: []byte("x")}))
	require.NoError(t, b.Publish(ctx, policies.Delivery{ConversationID: "c2", Frame: []byte("y")}))

	got := <-ch
	assert.Equal(t, "x", string(got.Frame))
	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestIdempotencyFirstOutcomeWinsUntilExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewIdempotencyStore(time.Hour)
	s.Now = func() time.Time { return now }

	require.NoError(t, s.Save(ctx, middleware.IdempotencyRecord{Key: "k", Payload: []byte("first"), OccurredAt: now}))
	require.NoError(t, s.Save(ctx, middleware.IdempotencyRecord{Key: "k", Payload: []byte("second"), OccurredAt: now}))

	rec, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", string(rec.Payload))

	now = now.Add(2 * time.Hour)
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, middleware.IdempotencyRecord{Key: "k", Payload: []byte("third"), OccurredAt: now}))
	rec, ok, _ = s.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "third", string(rec.Payload))
}
