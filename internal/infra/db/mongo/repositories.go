package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rentguru/internal/domain/booking"
	"rentguru/internal/domain/chat"
	"rentguru/internal/domain/incentive"
	"rentguru/internal/domain/resource"
	"rentguru/internal/domain/shared/money"
)

const (
	// writeConflictCode is the server code for a transaction write conflict.
	writeConflictCode     = 112
	transientTxErrorLabel = "TransientTransactionError"
)

// isWriteConflict reports whether a concurrent transaction touched the same
// document first.
func isWriteConflict(err error) bool {
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return false
	}
	return se.HasErrorCode(writeConflictCode) || se.HasErrorLabel(transientTxErrorLabel)
}

// conflict maps write conflicts onto the domain error for the losing writer.
func conflict(err, onConflict error) error {
	if err != nil && isWriteConflict(err) {
		return onConflict
	}
	return err
}

// saveVersioned upserts doc only while the stored version still equals
// version. A newer stored version surfaces as a duplicate _id on upsert.
func saveVersioned(ctx context.Context, col *mongo.Collection, id string, version int64, update bson.M) error {
	filter := bson.M{"_id": id, "version": version}
	res, err := col.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return booking.ErrConcurrentUpdate
		}
		return conflict(err, booking.ErrConcurrentUpdate)
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return booking.ErrConcurrentUpdate
	}
	return nil
}

func findOne[D any](ctx context.Context, col *mongo.Collection, filter any, notFound error, opts ...*options.FindOneOptions) (D, error) {
	var doc D
	if err := col.FindOne(ctx, filter, opts...).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return doc, notFound
		}
		return doc, err
	}
	return doc, nil
}

type resourceRepo struct{ u *Unit }

func (r resourceRepo) ByID(ctx context.Context, id resource.ID) (resource.Resource, error) {
	doc, err := findOne[resourceDocument](r.u.bind(ctx), r.u.col(colResources), bson.M{"_id": string(id)}, resource.ErrNotFound)
	if err != nil {
		return nil, err
	}
	return doc.toAggregate()
}

func (r resourceRepo) Save(ctx context.Context, res resource.Resource) error {
	base := res.Base()
	doc := newResourceDocument(res)
	doc.Version = base.Version + 1
	if err := saveVersioned(r.u.bind(ctx), r.u.col(colResources), doc.ID, base.Version, bson.M{"$set": doc}); err != nil {
		return err
	}
	base.Version = doc.Version
	return nil
}

type requestRepo struct{ u *Unit }

func (r requestRepo) ByID(ctx context.Context, id booking.RequestID) (*booking.RentalRequest, error) {
	doc, err := findOne[requestDocument](r.u.bind(ctx), r.u.col(colRequests), bson.M{"_id": string(id)}, booking.ErrRequestNotFound)
	if err != nil {
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r requestRepo) Save(ctx context.Context, req *booking.RentalRequest) error {
	doc := newRequestDocument(req)
	doc.Version = req.Version + 1
	if err := saveVersioned(r.u.bind(ctx), r.u.col(colRequests), doc.ID, req.Version, bson.M{"$set": doc}); err != nil {
		return err
	}
	req.Version = doc.Version
	return nil
}

type paymentRepo struct{ u *Unit }

func (r paymentRepo) ByID(ctx context.Context, id booking.PaymentID) (*booking.Payment, error) {
	return r.one(ctx, bson.M{"_id": string(id)})
}

func (r paymentRepo) ByChargeID(ctx context.Context, chargeID string) (*booking.Payment, error) {
	if chargeID == "" {
		return nil, booking.ErrPaymentNotFound
	}
	return r.one(ctx, bson.M{"charge_id": chargeID})
}

func (r paymentRepo) LatestForRequest(ctx context.Context, requestID booking.RequestID) (*booking.Payment, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}})
	return r.one(ctx, bson.M{"request_id": string(requestID)}, opts)
}

func (r paymentRepo) one(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*booking.Payment, error) {
	doc, err := findOne[paymentDocument](r.u.bind(ctx), r.u.col(colPayments), filter, booking.ErrPaymentNotFound, opts...)
	if err != nil {
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r paymentRepo) ListPending(ctx context.Context, chargedBefore time.Time) ([]*booking.Payment, error) {
	return r.list(ctx, bson.M{
		"status":     string(booking.PaymentPending),
		"charge_id":  bson.M{"$gt": ""},
		"charged_at": bson.M{"$lt": chargedBefore.UnixMilli()},
	})
}

func (r paymentRepo) ListRefundPending(ctx context.Context) ([]*booking.Payment, error) {
	return r.list(ctx, bson.M{"refund_pending": true})
}

func (r paymentRepo) list(ctx context.Context, filter bson.M) ([]*booking.Payment, error) {
	ctx = r.u.bind(ctx)
	cur, err := r.u.col(colPayments).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []paymentDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*booking.Payment, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAggregate())
	}
	return out, nil
}

// Save keeps the insertion sequence that orders payments of one request.
func (r paymentRepo) Save(ctx context.Context, p *booking.Payment) error {
	doc := newPaymentDocument(p)
	doc.Version = p.Version + 1
	update := bson.M{
		"$set":         doc,
		"$setOnInsert": bson.M{"seq": time.Now().UnixNano()},
	}
	if err := saveVersioned(r.u.bind(ctx), r.u.col(colPayments), doc.ID, p.Version, update); err != nil {
		return err
	}
	p.Version = doc.Version
	return nil
}

type tripRepo struct{ u *Unit }

func (r tripRepo) ByID(ctx context.Context, id booking.TripID) (*booking.Trip, error) {
	return r.one(ctx, bson.M{"_id": string(id)})
}

func (r tripRepo) ByRequest(ctx context.Context, requestID booking.RequestID) (*booking.Trip, error) {
	return r.one(ctx, bson.M{"request_id": string(requestID)})
}

func (r tripRepo) one(ctx context.Context, filter bson.M) (*booking.Trip, error) {
	doc, err := findOne[tripDocument](r.u.bind(ctx), r.u.col(colTrips), filter, booking.ErrTripNotFound)
	if err != nil {
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r tripRepo) Save(ctx context.Context, t *booking.Trip) error {
	doc := newTripDocument(t)
	doc.Version = t.Version + 1
	if err := saveVersioned(r.u.bind(ctx), r.u.col(colTrips), doc.ID, t.Version, bson.M{"$set": doc}); err != nil {
		return err
	}
	t.Version = doc.Version
	return nil
}

type accountRepo struct{ u *Unit }

func (r accountRepo) ByUser(ctx context.Context, userID string) (*incentive.Account, error) {
	doc, err := findOne[accountDocument](r.u.bind(ctx), r.u.col(colAccounts), bson.M{"_id": userID}, incentive.ErrAccountNotFound)
	if err != nil {
		return nil, err
	}
	return doc.toAggregate(), nil
}

// Save writes everything but the bonus balance, which only moves through AdjustBonus.
func (r accountRepo) Save(ctx context.Context, a *incentive.Account) error {
	update := bson.M{
		"$set": bson.M{
			"referred_by":      string(a.ReferredBy),
			"trips":            a.Trips,
			"responses":        a.Responses,
			"response_time_ms": a.ResponseTime.Milliseconds(),
			"updated_at":       a.UpdatedAt.UnixMilli(),
		},
		"$setOnInsert": bson.M{"bonus": newMoney(a.Bonus)},
	}
	_, err := r.u.col(colAccounts).UpdateByID(r.u.bind(ctx), a.UserID, update, options.Update().SetUpsert(true))
	return err
}

// AdjustBonus applies delta atomically. Debits only match while the balance covers them.
func (r accountRepo) AdjustBonus(ctx context.Context, userID string, delta money.Money) error {
	ctx = r.u.bind(ctx)
	col := r.u.col(colAccounts)
	filter := bson.M{"_id": userID}
	if delta.IsNegative() {
		filter["bonus.amount"] = bson.M{"$gte": -delta.Amount}
	}
	update := bson.M{
		"$inc": bson.M{"bonus.amount": delta.Amount},
		"$set": bson.M{"bonus.currency": delta.Currency},
	}
	res, err := col.UpdateOne(ctx, filter, update)
	if err != nil {
		return conflict(err, booking.ErrConcurrentUpdate)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := col.CountDocuments(ctx, bson.M{"_id": userID})
	if err != nil {
		return err
	}
	if n == 0 {
		return incentive.ErrAccountNotFound
	}
	return incentive.ErrInsufficientBonus
}

type partnerRepo struct{ u *Unit }

func (r partnerRepo) ByID(ctx context.Context, id incentive.PartnerID) (incentive.Partner, error) {
	doc, err := findOne[partnerDocument](r.u.bind(ctx), r.u.col(colPartners), bson.M{"_id": string(id)}, incentive.ErrPartnerNotFound)
	if err != nil {
		return incentive.Partner{}, err
	}
	return incentive.Partner{ID: incentive.PartnerID(doc.ID), CommissionPercent: doc.CommissionPercent, Balance: doc.Balance.toMoney()}, nil
}

func (r partnerRepo) Credit(ctx context.Context, id incentive.PartnerID, amount money.Money) error {
	res, err := r.u.col(colPartners).UpdateByID(r.u.bind(ctx), string(id), bson.M{"$inc": bson.M{"balance.amount": amount.Amount}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return incentive.ErrPartnerNotFound
	}
	return nil
}

type promoRepo struct{ u *Unit }

func (r promoRepo) ByCode(ctx context.Context, code string) (incentive.PromoCode, error) {
	doc, err := findOne[promoDocument](r.u.bind(ctx), r.u.col(colPromos), bson.M{"_id": incentive.NormalizeCode(code)}, incentive.ErrPromoNotFound)
	if err != nil {
		return incentive.PromoCode{}, err
	}
	return doc.toPromo(), nil
}

type usageRepo struct{ u *Unit }

func usageKey(code, userID string) string {
	return incentive.NormalizeCode(code) + "|" + userID
}

// Claim only matches an unused row; a used one makes the upsert collide on _id.
func (r usageRepo) Claim(ctx context.Context, code, userID string, at time.Time) error {
	filter := bson.M{"_id": usageKey(code, userID), "used": bson.M{"$ne": true}}
	update := bson.M{"$set": bson.M{
		"code":       incentive.NormalizeCode(code),
		"user_id":    userID,
		"used":       true,
		"claimed_at": at.UTC().UnixMilli(),
	}}
	_, err := r.u.col(colUsages).UpdateOne(r.u.bind(ctx), filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return incentive.ErrPromoAlreadyUsed
	}
	return conflict(err, incentive.ErrPromoAlreadyUsed)
}

func (r usageRepo) Release(ctx context.Context, code, userID string) error {
	filter := bson.M{"_id": usageKey(code, userID), "used": true}
	_, err := r.u.col(colUsages).UpdateOne(r.u.bind(ctx), filter, bson.M{"$set": bson.M{"used": false}})
	return conflict(err, booking.ErrConcurrentUpdate)
}

func (r usageRepo) Used(ctx context.Context, code, userID string) (bool, error) {
	n, err := r.u.col(colUsages).CountDocuments(r.u.bind(ctx), bson.M{"_id": usageKey(code, userID), "used": true})
	return n > 0, err
}

type conversationRepo struct{ u *Unit }

func (r conversationRepo) ByID(ctx context.Context, id chat.ConversationID) (*chat.Conversation, error) {
	return r.one(ctx, bson.M{"_id": string(id)})
}

func (r conversationRepo) ByRequest(ctx context.Context, requestID booking.RequestID) (*chat.Conversation, error) {
	return r.one(ctx, bson.M{"kind": string(chat.KindBooking), "request_id": string(requestID)})
}

func (r conversationRepo) one(ctx context.Context, filter bson.M) (*chat.Conversation, error) {
	doc, err := findOne[conversationDocument](r.u.bind(ctx), r.u.col(colConversations), filter, chat.ErrConversationNotFound)
	if err != nil {
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r conversationRepo) ListByParticipant(ctx context.Context, userID string) ([]*chat.Conversation, error) {
	ctx = r.u.bind(ctx)
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := r.u.col(colConversations).Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, err
	}
	var docs []conversationDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*chat.Conversation, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAggregate())
	}
	return out, nil
}

func (r conversationRepo) Save(ctx context.Context, c *chat.Conversation) error {
	doc := newConversationDocument(c)
	_, err := r.u.col(colConversations).ReplaceOne(r.u.bind(ctx), bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return conflict(err, booking.ErrConcurrentUpdate)
}
