package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"

	"rentguru/internal/app/uow"
	"rentguru/internal/domain/booking"
	"rentguru/internal/domain/chat"
	"rentguru/internal/domain/incentive"
	"rentguru/internal/domain/resource"
)

const (
	colResources     = "agg_resources"
	colRequests      = "agg_requests"
	colPayments      = "agg_payments"
	colTrips         = "agg_trips"
	colAccounts      = "agg_accounts"
	colPartners      = "agg_partners"
	colConversations = "agg_conversations"
	colPromos        = "ref_promos"
	colUsages        = "ref_promo_usages"
)

// Factory wires Mongo transactions into the generic UnitOfWork interface.
type Factory struct {
	DB *mongo.Database
}

var ErrUnitOfWorkNotConfigured = errors.New("mongo: unit of work factory missing database")

// Begin starts a session. Writable units run inside a multi-document
// transaction; read-only units read from a snapshot without one.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	sessOpts := options.Session()
	if opts.ReadOnly {
		sessOpts = sessOpts.SetSnapshot(true)
	}
	session, err := f.DB.Client().StartSession(sessOpts)
	if err != nil {
		return nil, err
	}
	u := &Unit{db: f.DB, session: session, readOnly: opts.ReadOnly}
	if opts.ReadOnly {
		return u, nil
	}
	txnOpts := options.Transaction().SetReadConcern(readconcern.Snapshot()).SetWriteConcern(f.DB.WriteConcern())
	if err := session.StartTransaction(txnOpts); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	return u, nil
}

type Unit struct {
	db       *mongo.Database
	session  mongo.Session
	readOnly bool
}

// bind attaches the unit's session to ctx so every repository call joins the transaction.
func (u *Unit) bind(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, u.session)
}

func (u *Unit) col(name string) *mongo.Collection {
	return u.db.Collection(name)
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
	defer u.session.EndSession(ctx)
	if u.readOnly {
		return nil
	}
	return u.session.CommitTransaction(ctx)
}

func (u *Unit) Rollback(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	if u.readOnly {
		return nil
	}
	return u.session.AbortTransaction(ctx)
}

// InjectContext ensures the Mongo session is available in context for
// collaborators outside the unit, such as the outbox.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	return u.bind(ctx)
}

var (
	_ uow.UoWFactory      = Factory{}
	_ uow.UnitOfWork      = (*Unit)(nil)
	_ uow.ContextInjector = (*Unit)(nil)
)
