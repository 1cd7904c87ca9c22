package booking

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentguru/internal/app/policies"
	"rentguru/internal/app/uow"
	domainbooking "rentguru/internal/domain/booking"
	"rentguru/internal/domain/chat"
	"rentguru/internal/domain/incentive"
	"rentguru/internal/domain/resource"
	"rentguru/internal/domain/shared/daterange"
	"rentguru/internal/domain/shared/money"
	"rentguru/internal/infra/storage/memory"
)

var (
	renter  = domainbooking.Actor{UserID: "renter"}
	renter2 = domainbooking.Actor{UserID: "renter2"}
	owner   = domainbooking.Actor{UserID: "owner"}
	captain = domainbooking.Actor{UserID: "captain"}
)

type fixture struct {
	engine   *Engine
	store    *memory.Store
	gateway  *memory.Gateway
	notifier *memory.Notifier
	messages *memory.MessageStore
	outbox   *memory.Outbox

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	tariffs, err := resource.NewTariffTable(20, resource.TariffInput{Period: resource.PeriodDay, Price: money.RUB(100)})
	require.NoError(t, err)

	car, err := resource.New(resource.KindAuto, resource.Vehicle{
		ID:                "car-1",
		OwnerID:           owner.UserID,
		CommissionPercent: 20,
		Tariffs:           tariffs,
		Calendar:          resource.Calendar(daterange.MustParse("2024-01-01", "2024-01-31")),
	})
	require.NoError(t, err)
	boat, err := resource.New(resource.KindShip, resource.Vehicle{
		ID:                "boat-1",
		OwnerID:           captain.UserID,
		CommissionPercent: 20,
		Tariffs:           tariffs,
		Calendar:          resource.OpenToRequest(),
	})
	require.NoError(t, err)
	store.PutResource(car)
	store.PutResource(boat)
	store.PutAccount(incentive.Account{UserID: renter.UserID, Bonus: money.RUB(30)})
	store.PutPartner(incentive.Partner{ID: "partner-1", CommissionPercent: 10, Balance: money.RUB(0)})
	store.PutPromo(incentive.PromoCode{Code: "SPRING", Kind: incentive.PromoPercent, Percent: 10})
	store.PutPromo(incentive.PromoCode{Code: "WELCOME", Kind: incentive.PromoCash, Cash: money.RUB(50), PartnerID: "partner-1"})

	f := &fixture{
		store:    store,
		gateway:  memory.NewGateway(),
		notifier: &memory.Notifier{},
		messages: memory.NewMessageStore(),
		outbox:   memory.NewOutbox(),
		now:      time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	var seq int64
	f.engine = &Engine{
		UoWFactory: memory.NewFactory(store),
		Gateway:    f.gateway,
		Notifier:   f.notifier,
		Locker:     memory.NewLocker(),
		Messages:   f.messages,
		Outbox:     f.outbox,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:        f.clock,
		NewID: func() string {
			return fmt.Sprintf("id-%d", atomic.AddInt64(&seq, 1))
		},
	}
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) setNow(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

func (f *fixture) read(t *testing.T) uow.UnitOfWork {
	t.Helper()
	unit, err := f.engine.UoWFactory.Begin(context.Background(), uow.TxOptions{ReadOnly: true})
	require.NoError(t, err)
	return unit
}

func (f *fixture) create(t *testing.T, cmd CreateRequestCommand) *RequestResult {
	t.Helper()
	if cmd.Actor.UserID == "" {
		cmd.Actor = renter
	}
	if cmd.ResourceID == "" {
		cmd.ResourceID = "car-1"
	}
	out, err := CreateRequestHandler{f.engine}.Handle(context.Background(), cmd)
	require.NoError(t, err)
	return out
}

func (f *fixture) accept(t *testing.T, requestID string) *DecisionResult {
	t.Helper()
	out, err := AcceptRequestHandler{f.engine}.Handle(context.Background(), AcceptRequestCommand{Actor: owner, RequestID: requestID})
	require.NoError(t, err)
	return out
}

func (f *fixture) confirm(t *testing.T, chargeID string) *SettlementResult {
	t.Helper()
	amount, ok := f.gateway.Charged(chargeID)
	require.True(t, ok, "unknown charge %s", chargeID)
	f.gateway.SetState(chargeID, policies.ChargeConfirmed)
	out, err := SettleChargeHandler{f.engine}.Handle(context.Background(), SettleChargeCommand{ChargeID: chargeID, Status: string(policies.ChargeConfirmed), Amount: amount.Amount})
	require.NoError(t, err)
	return out
}

// book walks a request from creation to a paid trip.
func (f *fixture) book(t *testing.T, cmd CreateRequestCommand) (*bookedTrip, string) {
	t.Helper()
	req := f.create(t, cmd)
	decision := f.accept(t, req.ID)
	require.NotNil(t, decision.Payment)
	chargeID := f.chargeOf(t, decision.Payment.ID)
	settled := f.confirm(t, chargeID)
	require.NotNil(t, settled.Trip)
	return &bookedTrip{ID: settled.Trip.ID, PaymentID: settled.Payment.ID}, chargeID
}

type bookedTrip struct {
	ID        string
	PaymentID string
}

func (f *fixture) chargeOf(t *testing.T, paymentID string) string {
	t.Helper()
	p, err := f.read(t).Payments().ByID(context.Background(), domainbooking.PaymentID(paymentID))
	require.NoError(t, err)
	require.NotEmpty(t, p.ChargeID)
	return p.ChargeID
}

func (f *fixture) available(t *testing.T, id, start, end string) bool {
	t.Helper()
	res, err := f.read(t).Resources().ByID(context.Background(), resource.ID(id))
	require.NoError(t, err)
	return res.Base().Available(daterange.MustParse(start, end))
}

func (f *fixture) bonus(t *testing.T, userID string) money.Money {
	t.Helper()
	acct, err := f.read(t).Accounts().ByUser(context.Background(), userID)
	require.NoError(t, err)
	return acct.Bonus
}

func TestAcceptReservesRequestedWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.create(t, CreateRequestCommand{StartDate: "2024-01-05", EndDate: "2024-01-07"})
	assert.Equal(t, "250.00", req.TotalCost.Amount)
	assert.Equal(t, "50.00", req.Payable.Amount)
	assert.True(t, f.available(t, "car-1", "2024-01-05", "2024-01-07"), "creating a request reserves nothing")

	decision := f.accept(t, req.ID)
	assert.Equal(t, string(domainbooking.StatusAccepted), decision.Request.Status)
	require.NotNil(t, decision.Payment)
	assert.Equal(t, "50.00", decision.Payment.Amount.Amount)
	assert.NotEmpty(t, decision.Payment.RedirectURL, "charge is created after commit and reflected in the result")

	view, err := GetAvailabilityHandler{f.engine}.Handle(ctx, GetAvailabilityQuery{ResourceID: "car-1"})
	require.NoError(t, err)
	require.Len(t, view.Windows, 2)
	assert.Equal(t, "2024-01-01", view.Windows[0].Start)
	assert.Equal(t, "2024-01-04", view.Windows[0].End)
	assert.Equal(t, "2024-01-08", view.Windows[1].Start)
	assert.Equal(t, "2024-01-31", view.Windows[1].End)

	conv, err := f.read(t).Conversations().ByRequest(ctx, domainbooking.RequestID(req.ID))
	require.NoError(t, err)
	card, err := f.messages.Latest(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, card.Structured)
	assert.Contains(t, card.Content, `"status":"accept"`)

	unread, err := UnreadCountHandler{f.engine}.Handle(ctx, UnreadCountQuery{Actor: owner})
	require.NoError(t, err)
	assert.Equal(t, 1, unread.Count)

	sent := f.notifier.Sent()
	require.NotEmpty(t, sent)
	assert.Equal(t, owner.UserID, sent[0].UserID)
	require.NoError(t, f.outbox.Flush(ctx))
	assert.Contains(t, f.outbox.Published(), "booking.request_accepted")
}

func TestConcurrentAcceptsNeverDoubleBook(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, CreateRequestCommand{StartDate: "2024-01-05", EndDate: "2024-01-07"})
	second := f.create(t, CreateRequestCommand{Actor: renter2, StartDate: "2024-01-06", EndDate: "2024-01-08"})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = AcceptRequestHandler{f.engine}.Handle(context.Background(), AcceptRequestCommand{Actor: owner, RequestID: id})
		}(i, id)
	}
	wg.Wait()

	var ok, lost int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domainbooking.ErrWindowNoLongerAvailable)
		lost++
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, lost)

	unit := f.read(t)
	accepted := 0
	for _, id := range []string{first.ID, second.ID} {
		req, err := unit.Requests().ByID(context.Background(), domainbooking.RequestID(id))
		require.NoError(t, err)
		if req.Status == domainbooking.StatusAccepted {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted, "the losing accept is rolled back")
}

// stepLog records the order in which transactional units touch repositories
// and resource locks are granted.
type stepLog struct {
	mu    sync.Mutex
	steps []string
}

func (l *stepLog) add(step string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, step)
}

func (l *stepLog) reset() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.steps
	l.steps = nil
	return out
}

type loggingFactory struct {
	uow.UoWFactory
	log *stepLog
}

func (f loggingFactory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	unit, err := f.UoWFactory.Begin(ctx, opts)
	if err != nil || opts.ReadOnly {
		return unit, err
	}
	return loggingUnit{UnitOfWork: unit, log: f.log}, nil
}

type loggingUnit struct {
	uow.UnitOfWork
	log *stepLog
}

func (u loggingUnit) Requests() domainbooking.RequestRepository {
	u.log.add("tx")
	return u.UnitOfWork.Requests()
}

func (u loggingUnit) Trips() domainbooking.TripRepository {
	u.log.add("tx")
	return u.UnitOfWork.Trips()
}

func (u loggingUnit) Resources() resource.Repository {
	u.log.add("tx")
	return u.UnitOfWork.Resources()
}

type loggingLocker struct {
	policies.Locker
	log *stepLog
}

func (l loggingLocker) Lock(ctx context.Context, key string) (func(), error) {
	unlock, err := l.Locker.Lock(ctx, key)
	if err == nil {
		l.log.add("lock " + key)
	}
	return unlock, err
}

func TestResourceLockPrecedesTransactionalReads(t *testing.T) {
	f := newFixture(t)
	log := &stepLog{}
	f.engine.UoWFactory = loggingFactory{UoWFactory: f.engine.UoWFactory, log: log}
	f.engine.Locker = loggingLocker{Locker: f.engine.Locker, log: log}

	req := f.create(t, CreateRequestCommand{StartDate: "2024-01-05", EndDate: "2024-01-07"})
	log.reset()
	decision := f.accept(t, req.ID)
	steps := log.reset()
	require.NotEmpty(t, steps)
	assert.Equal(t, "lock resource:car-1", steps[0], "accept: %v", steps)
	assert.Contains(t, steps[1:], "tx")

	settled := f.confirm(t, f.chargeOf(t, decision.Payment.ID))
	require.NotNil(t, settled.Trip)
	log.reset()
	_, err := CancelTripHandler{f.engine}.Handle(context.Background(), CancelTripCommand{Actor: renter, TripID: settled.Trip.ID})
	require.NoError(t, err)
	steps = log.reset()
	require.NotEmpty(t, steps)
	assert.Equal(t, "lock resource:car-1", steps[0], "cancel: %v", steps)
}

func TestCancelTripRestoresAndRefundsByNotice(t *testing.T) {
	tests := []struct {
		name       string
		cancelAt   time.Time
		wantRefund bool
	}{
		{name: "72 hours ahead", cancelAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), wantRefund: true},
		{name: "10 hours ahead", cancelAt: time.Date(2024, 1, 4, 14, 0, 0, 0, time.UTC), wantRefund: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			trip, chargeID := f.book(t, CreateRequestCommand{StartDate: "2024-01-05", EndDate: "2024-01-07", PromoCode: "spring", Bonus: "20"})
			assert.Equal(t, money.RUB(10), f.bonus(t, renter.UserID))
			charged, _ := f.gateway.Charged(chargeID)
			assert.Equal(t, money.RUB(25), charged, "commission 50 less the 10 percent promo and 20 bonus")

			f.setNow(tt.cancelAt)
			out, err := CancelTripHandler{f.engine}.Handle(ctx, CancelTripCommand{Actor: renter, TripID: trip.ID})
			require.NoError(t, err)
			assert.Equal(t, string(domainbooking.TripCanceled), out.Trip.Status)
			assert.Equal(t, string(domainbooking.PaymentCanceled), out.Payment.Status)
			assert.False(t, out.Payment.RefundPending)
			assert.Equal(t, tt.wantRefund, f.gateway.Refunded(chargeID))

			assert.True(t, f.available(t, "car-1", "2024-01-01", "2024-01-31"))
			assert.Equal(t, money.RUB(30), f.bonus(t, renter.UserID))
			used, err := f.read(t).PromoUsages().Used(ctx, "SPRING", renter.UserID)
			require.NoError(t, err)
			assert.False(t, used)

			res, err := f.read(t).Resources().ByID(ctx, "car-1")
			require.NoError(t, err)
			assert.Equal(t, 1, res.Base().CanceledTrips)

			_, err = CancelTripHandler{f.engine}.Handle(ctx, CancelTripCommand{Actor: owner, TripID: trip.ID})
			assert.ErrorIs(t, err, domainbooking.ErrInvalidTransition)
		})
	}
}

func TestPercentPromoIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.create(t, CreateRequestCommand{StartDate: "2024-01-05", EndDate: "2024-01-06", PromoCode: "SPRING"})
	second := f.create(t, CreateRequestCommand{StartDate: "2024-01-20", EndDate: "2024-01-21", PromoCode: "SPRING"})

	f.accept(t, first.ID)

	_, err := CreateRequestHandler{f.engine}.Handle(ctx, CreateRequestCommand{Actor: renter, ResourceID: "car-1", StartDate: "2024-01-25", EndDate: "2024-01-26", PromoCode: "spring"})
	assert.ErrorIs(t, err, incentive.ErrPromoAlreadyUsed)

	_, err = AcceptRequestHandler{f.engine}.Handle(ctx, AcceptRequestCommand{Actor: owner, RequestID: second.ID})
	assert.ErrorIs(t, err, incentive.ErrPromoAlreadyUsed)
	assert.True(t, f.available(t, "car-1", "2024-01-20", "2024-01-21"), "a failed accept reserves nothing")
}

func TestPayReusesOrRebillsCharge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.create(t, CreateRequestCommand{StartDate: "2024-01-05", EndDate: "2024-01-07"})
	decision := f.accept(t, req.ID)
	firstCharge := f.chargeOf(t, decision.Payment.ID)

	pay := PayHandler{f.engine}
	again, err := pay.Handle(ctx, PayCommand{Actor: renter, RequestID: req.ID})
	require.NoError(t, err)
	assert.Equal(t, decision.Payment.ID, again.ID, "an open charge is reused")

	_, err = pay.Handle(ctx, PayCommand{Actor: owner, RequestID: req.ID})
	assert.ErrorIs(t, err, domainbooking.ErrForbidden)

	f.gateway.SetState(firstCharge, policies.ChargeRejected)
	rebilled, err := pay.Handle(ctx, PayCommand{Actor: renter, RequestID: req.ID})
	require.NoError(t, err)
	assert.NotEqual(t, decision.Payment.ID, rebilled.ID)
	assert.Equal(t, decision.Payment.Amount, rebilled.Amount)
	assert.NotEmpty(t, rebilled.RedirectURL)

	old, err := f.read(t).Payments().ByID(ctx, domainbooking.PaymentID(decision.Payment.ID))
	require.NoError(t, err)
	assert.Equal(t, domainbooking.PaymentFailed, old.Status)

	f.confirm(t, f.chargeOf(t, rebilled.ID))
	_, err = pay.Handle(ctx, PayCommand{Actor: renter, RequestID: req.ID})
	assert.ErrorIs(t, err, domainbooking.ErrPaymentSettled)
}

func TestLateConfirmationOfReplacedChargeIsRefunded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.create(t, CreateRequestCommand{StartDate: "2024-01-05", EndDate: "2024-01-07"})
	decision := f.accept(t, req.ID)
	firstCharge := f.chargeOf(t, decision.Payment.ID)

	f.gateway.SetState(firstCharge, policies.ChargeRejected)
	rebilled, err := PayHandler{f.engine}.Handle(ctx, PayCommand{Actor: renter, RequestID: req.ID})
	require.NoError(t, err)
	paid := f.confirm(t, f.chargeOf(t, rebilled.ID))
	require.NotNil(t, paid.Trip)

	late := f.confirm(t, firstCharge)
	require.NotNil(t, late.Trip)
	assert.Equal(t, paid.Trip.ID, late.Trip.ID, "no second trip is opened")
	assert.True(t, late.Payment.RefundPending)
	assert.True(t, f.gateway.Refunded(firstCharge))

	unit := f.read(t)
	trip, err := unit.Trips().ByRequest(ctx, domainbooking.RequestID(req.ID))
	require.NoError(t, err)
	assert.Equal(t, domainbooking.TripID(paid.Trip.ID), trip.ID)
	assert.Equal(t, domainbooking.PaymentID(rebilled.ID), trip.PaymentID)

	surplus, err := unit.Payments().ByID(ctx, domainbooking.PaymentID(decision.Payment.ID))
	require.NoError(t, err)
	assert.Equal(t, domainbooking.PaymentCanceled, surplus.Status)
	assert.False(t, surplus.RefundPending)

	kept, err := unit.Payments().ByID(ctx, domainbooking.PaymentID(rebilled.ID))
	require.NoError(t, err)
	assert.Equal(t, domainbooking.PaymentSuccess, kept.Status)
	assert.False(t, f.gateway.Refunded(f.chargeOf(t, rebilled.ID)))
}

func TestPayKeepsPaymentPendingWhenGatewayFails(t *testing.T) {
	f := newFixture(t)
	f.gateway.FailCreate = fmt.Errorf("connection reset")
	req := f.create(t, CreateRequestCommand{StartDate: "2024-01-05", EndDate: "2024-01-07"})
	decision := f.accept(t, req.ID)
	assert.Empty(t, decision.Payment.RedirectURL)

	_, err := PayHandler{f.engine}.Handle(context.Background(), PayCommand{Actor: renter, RequestID: req.ID})
	assert.ErrorIs(t, err, domainbooking.ErrGatewayPending)
	assert.Equal(t, domainbooking.KindGateway, domainbooking.KindOf(err))

	f.gateway.FailCreate = nil
	out, err := PayHandler{f.engine}.Handle(context.Background(), PayCommand{Actor: renter, RequestID: req.ID})
	require.NoError(t, err)
	assert.Equal(t, decision.Payment.ID, out.ID)
	assert.NotEmpty(t, out.RedirectURL)
}

func TestSettleChargeRepeatsAreHarmless(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.create(t, CreateRequestCommand{StartDate: "2024-01-05", EndDate: "2024-01-07"})
	decision := f.accept(t, req.ID)
	chargeID := f.chargeOf(t, decision.Payment.ID)

	_, err := SettleChargeHandler{f.engine}.Handle(ctx, SettleChargeCommand{ChargeID: chargeID, Status: "CONFIRMED", Amount: 1})
	assert.Equal(t, domainbooking.KindValidation, domainbooking.KindOf(err))

	first := f.confirm(t, chargeID)
	second := f.confirm(t, chargeID)
	require.NotNil(t, first.Trip)
	require.NotNil(t, second.Trip)
	assert.Equal(t, first.Trip.ID, second.Trip.ID)
	assert.Equal(t, string(domainbooking.TripCurrent), second.Trip.Status)

	trip, err := GetTripHandler{f.engine}.Handle(ctx, GetTripQuery{Actor: owner, TripID: first.Trip.ID})
	require.NoError(t, err)
	assert.Equal(t, req.ID, trip.RequestID)
	_, err = GetTripHandler{f.engine}.Handle(ctx, GetTripQuery{Actor: renter2, TripID: first.Trip.ID})
	assert.ErrorIs(t, err, domainbooking.ErrForbidden)
}

func TestReconcilerSettlesAndRetriesRefunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := &Reconciler{Engine: f.engine, After: 30 * time.Minute}

	req := f.create(t, CreateRequestCommand{StartDate: "2024-01-05", EndDate: "2024-01-07"})
	decision := f.accept(t, req.ID)
	chargeID := f.chargeOf(t, decision.Payment.ID)
	f.gateway.SetState(chargeID, policies.ChargeConfirmed)

	report, err := rec.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Settled, "fresh charges wait for their notification")

	f.setNow(f.clock().Add(time.Hour))
	report, err = rec.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Settled)
	trip, err := f.read(t).Trips().ByRequest(ctx, domainbooking.RequestID(req.ID))
	require.NoError(t, err)

	f.gateway.RefuseRefund = true
	out, err := CancelTripHandler{f.engine}.Handle(ctx, CancelTripCommand{Actor: renter, TripID: string(trip.ID)})
	require.NoError(t, err)
	assert.True(t, out.Payment.RefundPending)

	f.gateway.RefuseRefund = false
	report, err = rec.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Refunded)
	assert.True(t, f.gateway.Refunded(chargeID))
}

func TestFinishTripEarlyReturnsTailAndPaysPartner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acct, err := ApplyPromoHandler{f.engine}.Handle(ctx, ApplyPromoCommand{Actor: renter, Code: "welcome"})
	require.NoError(t, err)
	assert.Equal(t, "80.00", acct.Bonus.Amount)
	_, err = ApplyPromoHandler{f.engine}.Handle(ctx, ApplyPromoCommand{Actor: renter, Code: "WELCOME"})
	assert.ErrorIs(t, err, incentive.ErrPromoAlreadyUsed)

	trip, chargeID := f.book(t, CreateRequestCommand{StartDate: "2024-01-05", EndDate: "2024-01-10"})
	charged, _ := f.gateway.Charged(chargeID)

	f.setNow(time.Date(2024, 1, 7, 10, 0, 0, 0, time.UTC))
	out, err := FinishTripHandler{f.engine}.Handle(ctx, FinishTripCommand{Actor: owner, TripID: trip.ID})
	require.NoError(t, err)
	assert.Equal(t, string(domainbooking.TripFinished), out.Trip.Status)
	assert.Equal(t, string(domainbooking.PaymentSuccess), out.Payment.Status)

	assert.True(t, f.available(t, "car-1", "2024-01-07", "2024-01-31"))
	assert.False(t, f.available(t, "car-1", "2024-01-05", "2024-01-06"))

	unit := f.read(t)
	res, err := unit.Resources().ByID(ctx, "car-1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Base().Trips)
	ownerAcct, err := unit.Accounts().ByUser(ctx, owner.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, ownerAcct.Trips)
	partner, err := unit.Partners().ByID(ctx, "partner-1")
	require.NoError(t, err)
	assert.Equal(t, charged.Percent(10), partner.Balance)

	_, err = FinishTripHandler{f.engine}.Handle(ctx, FinishTripCommand{Actor: renter, TripID: trip.ID})
	assert.ErrorIs(t, err, domainbooking.ErrInvalidTransition)
}

func TestNegotiatedTerms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.create(t, CreateRequestCommand{ResourceID: "boat-1", StartDate: "2024-02-01", EndDate: "2024-02-03"})
	assert.True(t, req.OnRequest)

	conv, err := f.read(t).Conversations().ByRequest(ctx, domainbooking.RequestID(req.ID))
	require.NoError(t, err, "open-to-request vehicles start negotiating right away")
	assert.Equal(t, chat.KindBooking, conv.Kind)

	_, err = AcceptRequestHandler{f.engine}.Handle(ctx, AcceptRequestCommand{Actor: captain, RequestID: req.ID})
	assert.ErrorIs(t, err, domainbooking.ErrTermsNotProposed)
	_, err = ConfirmTermsHandler{f.engine}.Handle(ctx, ConfirmTermsCommand{Actor: renter, RequestID: req.ID})
	assert.ErrorIs(t, err, domainbooking.ErrTermsNotProposed)

	proposed, err := ProposeTermsHandler{f.engine}.Handle(ctx, ProposeTermsCommand{Actor: captain, RequestID: req.ID, StartDate: "2024-02-02", EndDate: "2024-02-04", TotalCost: "300"})
	require.NoError(t, err)
	assert.True(t, proposed.TermsProposed)
	assert.Equal(t, "300.00", proposed.TotalCost.Amount)
	assert.Equal(t, "60.00", proposed.Payable.Amount)
	assert.Equal(t, "2024-02-02", proposed.StartDate)

	_, err = ConfirmTermsHandler{f.engine}.Handle(ctx, ConfirmTermsCommand{Actor: captain, RequestID: req.ID})
	assert.ErrorIs(t, err, domainbooking.ErrForbidden)
	decision, err := ConfirmTermsHandler{f.engine}.Handle(ctx, ConfirmTermsCommand{Actor: renter, RequestID: req.ID})
	require.NoError(t, err)
	assert.Equal(t, "60.00", decision.Payment.Amount.Amount)

	other := f.create(t, CreateRequestCommand{Actor: renter2, ResourceID: "boat-1", StartDate: "2024-02-01", EndDate: "2024-02-03"})
	declined, err := DeclineTermsHandler{f.engine}.Handle(ctx, DeclineTermsCommand{Actor: renter2, RequestID: other.ID})
	require.NoError(t, err)
	assert.Equal(t, string(domainbooking.StatusDenied), declined.Status)
	assert.NotEmpty(t, declined.DenyReason)
}

func TestDenyAndReadRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.create(t, CreateRequestCommand{StartDate: "2024-01-05", EndDate: "2024-01-07"})

	_, err := DenyRequestHandler{f.engine}.Handle(ctx, DenyRequestCommand{Actor: owner, RequestID: req.ID})
	assert.ErrorIs(t, err, domainbooking.ErrReasonRequired)
	_, err = DenyRequestHandler{f.engine}.Handle(ctx, DenyRequestCommand{Actor: renter, RequestID: req.ID, Reason: "no"})
	assert.ErrorIs(t, err, domainbooking.ErrForbidden)

	denied, err := DenyRequestHandler{f.engine}.Handle(ctx, DenyRequestCommand{Actor: owner, RequestID: req.ID, Reason: "maintenance"})
	require.NoError(t, err)
	assert.Equal(t, "maintenance", denied.DenyReason)

	_, err = AcceptRequestHandler{f.engine}.Handle(ctx, AcceptRequestCommand{Actor: owner, RequestID: req.ID})
	assert.ErrorIs(t, err, domainbooking.ErrInvalidTransition)

	view, err := GetRequestHandler{f.engine}.Handle(ctx, GetRequestQuery{Actor: renter, RequestID: req.ID})
	require.NoError(t, err)
	assert.Equal(t, string(domainbooking.StatusDenied), view.Status)
	_, err = GetRequestHandler{f.engine}.Handle(ctx, GetRequestQuery{Actor: renter2, RequestID: req.ID})
	assert.ErrorIs(t, err, domainbooking.ErrForbidden)
	staff, err := GetRequestHandler{f.engine}.Handle(ctx, GetRequestQuery{Actor: domainbooking.Actor{UserID: "support", Staff: true}, RequestID: req.ID})
	require.NoError(t, err)
	assert.Equal(t, req.ID, staff.ID)
}

func TestCreateRequestRejections(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name    string
		cmd     CreateRequestCommand
		wantErr error
	}{
		{name: "own vehicle", cmd: CreateRequestCommand{Actor: owner, ResourceID: "car-1", StartDate: "2024-01-05", EndDate: "2024-01-07"}, wantErr: domainbooking.ErrOwnVehicle},
		{name: "outside calendar", cmd: CreateRequestCommand{Actor: renter, ResourceID: "car-1", StartDate: "2024-01-30", EndDate: "2024-02-02"}, wantErr: domainbooking.ErrWindowUnavailable},
		{name: "half a time window", cmd: CreateRequestCommand{Actor: renter, ResourceID: "car-1", StartDate: "2024-01-05", EndDate: "2024-01-05", StartTime: "09:00"}, wantErr: domainbooking.ErrIncompleteTimes},
		{name: "unknown vehicle", cmd: CreateRequestCommand{Actor: renter, ResourceID: "van-9", StartDate: "2024-01-05", EndDate: "2024-01-07"}, wantErr: resource.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateRequestHandler{f.engine}.Handle(context.Background(), tt.cmd)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBonusRedemptionIsBoundedByBalanceAndFloor(t *testing.T) {
	tests := []struct {
		name        string
		bonus       string
		wantBonus   string
		wantCharged money.Money
		wantLeft    money.Money
	}{
		{name: "within balance", bonus: "20", wantBonus: "20.00", wantCharged: money.RUB(30), wantLeft: money.RUB(10)},
		{name: "over balance redeems the balance", bonus: "31", wantBonus: "30.00", wantCharged: money.RUB(20), wantLeft: money.RUB(0)},
		{name: "over balance and cap", bonus: "500", wantBonus: "30.00", wantCharged: money.RUB(20), wantLeft: money.RUB(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := f.create(t, CreateRequestCommand{StartDate: "2024-01-05", EndDate: "2024-01-07", Bonus: tt.bonus})
			assert.Equal(t, tt.wantBonus, req.Bonus.Amount)
			decision := f.accept(t, req.ID)
			require.NotNil(t, decision.Payment)
			charged, ok := f.gateway.Charged(f.chargeOf(t, decision.Payment.ID))
			require.True(t, ok)
			assert.Equal(t, tt.wantCharged, charged)
			assert.Equal(t, tt.wantLeft, f.bonus(t, renter.UserID))
		})
	}
}

func TestOpenSupportConversation(t *testing.T) {
	f := newFixture(t)
	out, err := OpenSupportHandler{f.engine}.Handle(context.Background(), OpenSupportCommand{Actor: renter, Topic: "payment", Description: "charged twice"})
	require.NoError(t, err)
	assert.Equal(t, string(chat.KindSupport), out.Kind)

	_, err = OpenSupportHandler{f.engine}.Handle(context.Background(), OpenSupportCommand{Actor: renter})
	assert.Equal(t, domainbooking.KindValidation, domainbooking.KindOf(err))
}
