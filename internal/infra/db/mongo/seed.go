package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rentguru/internal/domain/incentive"
	"rentguru/internal/domain/resource"
)

// Seeder loads fixtures outside any transaction. Existing documents are
// overwritten, versions included.
type Seeder struct {
	DB *mongo.Database
}

func (s Seeder) upsert(ctx context.Context, col, id string, doc any) error {
	_, err := s.DB.Collection(col).ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s Seeder) PutResource(ctx context.Context, r resource.Resource) error {
	doc := newResourceDocument(r)
	return s.upsert(ctx, colResources, doc.ID, doc)
}

func (s Seeder) PutAccount(ctx context.Context, a incentive.Account) error {
	return s.upsert(ctx, colAccounts, a.UserID, accountDocument{
		UserID:       a.UserID,
		Bonus:        newMoney(a.Bonus),
		ReferredBy:   string(a.ReferredBy),
		Trips:        a.Trips,
		Responses:    a.Responses,
		ResponseTime: a.ResponseTime.Milliseconds(),
		UpdatedAt:    a.UpdatedAt.UnixMilli(),
	})
}

func (s Seeder) PutPartner(ctx context.Context, p incentive.Partner) error {
	return s.upsert(ctx, colPartners, string(p.ID), partnerDocument{
		ID:                string(p.ID),
		CommissionPercent: p.CommissionPercent,
		Balance:           newMoney(p.Balance),
	})
}

func (s Seeder) PutPromo(ctx context.Context, p incentive.PromoCode) error {
	doc := newPromoDocument(p)
	return s.upsert(ctx, colPromos, doc.Code, doc)
}
