package outbox

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appoutbox "rentguru/internal/app/outbox"
)

const (
	stateNew     = "NEW"
	stateClaimed = "CLAIMED"
	stateSent    = "SENT"
	stateFailed  = "FAILED"
	// stateDead records are kept for inspection and never retried.
	stateDead = "DEAD"

	defaultMaxAttempts  = 20
	defaultClaimTimeout = time.Minute
)

// Store is the Mongo outbox collection. Add joins the session transaction
// carried by ctx, so booking events commit together with the aggregates
// that raised them.
type Store struct {
	col *mongo.Collection
	// ClaimTimeout releases claims of workers that died mid-publish.
	ClaimTimeout time.Duration
	MaxAttempts  int
	Now          func() time.Time
}

func NewStore(ctx context.Context, db *mongo.Database) (*Store, error) {
	col := db.Collection("app_outbox")
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "state", Value: 1}, {Key: "next_attempt_at", Value: 1}}},
		{Keys: bson.D{{Key: "state", Value: 1}, {Key: "sent_at", Value: 1}}},
	})
	if err != nil {
		return nil, err
	}
	return &Store{col: col, ClaimTimeout: defaultClaimTimeout, MaxAttempts: defaultMaxAttempts}, nil
}

// EventDocument is one stored booking event and its delivery bookkeeping.
type EventDocument struct {
	ID          string            `bson:"_id"`
	Name        string            `bson:"name"`
	Payload     []byte            `bson:"payload"`
	OccurredAt  time.Time         `bson:"occurred_at"`
	Aggregate   string            `bson:"aggregate"`
	Headers     map[string]string `bson:"headers,omitempty"`
	State       string            `bson:"state"`
	Attempts    int               `bson:"attempts"`
	NextAttempt time.Time         `bson:"next_attempt_at"`
	ClaimedBy   string            `bson:"claimed_by,omitempty"`
	ClaimedAt   *time.Time        `bson:"claimed_at,omitempty"`
	SentAt      *time.Time        `bson:"sent_at,omitempty"`
	LastError   string            `bson:"last_error,omitempty"`
	CreatedAt   time.Time         `bson:"created_at"`
}

func (s *Store) Add(ctx context.Context, record appoutbox.EventRecord) error {
	now := s.now()
	_, err := s.col.InsertOne(ctx, EventDocument{
		ID:          record.ID,
		Name:        record.Name,
		Payload:     record.Payload,
		OccurredAt:  record.OccurredAt,
		Aggregate:   record.Aggregate,
		Headers:     record.Headers,
		State:       stateNew,
		NextAttempt: now,
		CreatedAt:   now,
	})
	return err
}

// Flush is a no-op: the relay worker publishes committed records.
func (s *Store) Flush(context.Context) error {
	return nil
}

// Claim leases the oldest due record to workerID. It returns nil when
// nothing is due.
func (s *Store) Claim(ctx context.Context, workerID string) (*EventDocument, error) {
	now := s.now()
	due := bson.M{"$or": bson.A{
		bson.M{"state": bson.M{"$in": bson.A{stateNew, stateFailed}}, "next_attempt_at": bson.M{"$lte": now}},
		bson.M{"state": stateClaimed, "claimed_at": bson.M{"$lte": now.Add(-s.claimTimeout())}},
	}}
	lease := bson.M{"$set": bson.M{"state": stateClaimed, "claimed_by": workerID, "claimed_at": now}}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{{Key: "next_attempt_at", Value: 1}})

	var doc EventDocument
	switch err := s.col.FindOneAndUpdate(ctx, due, lease, opts).Decode(&doc); {
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &doc, nil
}

func (s *Store) MarkSent(ctx context.Context, id string) error {
	_, err := s.col.UpdateByID(ctx, id, bson.M{
		"$set":   bson.M{"state": stateSent, "sent_at": s.now()},
		"$unset": bson.M{"claimed_by": "", "claimed_at": ""},
	})
	return err
}

// MarkFailed schedules the next attempt. A record that reaches MaxAttempts
// is parked as dead instead.
func (s *Store) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	attempts := bson.M{"$add": bson.A{"$attempts", 1}}
	pipeline := bson.A{
		bson.M{"$set": bson.M{
			"attempts":        attempts,
			"next_attempt_at": next,
			"last_error":      errMsg,
			"state": bson.M{"$cond": bson.A{
				bson.M{"$gte": bson.A{attempts, s.maxAttempts()}},
				stateDead,
				stateFailed,
			}},
		}},
		bson.M{"$unset": bson.A{"claimed_by", "claimed_at"}},
	}
	_, err := s.col.UpdateByID(ctx, id, pipeline)
	return err
}

// Purge deletes records delivered before the cutoff.
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.col.DeleteMany(ctx, bson.M{"state": stateSent, "sent_at": bson.M{"$lt": before}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *Store) claimTimeout() time.Duration {
	if s.ClaimTimeout <= 0 {
		return defaultClaimTimeout
	}
	return s.ClaimTimeout
}

func (s *Store) maxAttempts() int {
	if s.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return s.MaxAttempts
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

var (
	_ appoutbox.Outbox = (*Store)(nil)
	_ Queue            = (*Store)(nil)
)
