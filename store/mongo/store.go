package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	entitle "github.com/stayforge/entitle"
	"github.com/stayforge/entitle/id"
	"github.com/stayforge/entitle/payment"
	"github.com/stayforge/entitle/plan"
	entitlestore "github.com/stayforge/entitle/store"
	"github.com/stayforge/entitle/subscription"
	"github.com/stayforge/entitle/topup"
	"github.com/stayforge/entitle/usage"
)

// Collection name constants.
const (
	colSubscriptions = "entitle_subscriptions"
	colCounters      = "entitle_usage_counters"
	colTopUps        = "entitle_topup_credits"
	colSessions      = "entitle_payment_sessions"
)

// compile-time interface check
var _ entitlestore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM. Guarded filters
// on the update documents carry the quota bound and session terminality,
// matching the SQL stores' conditional UPDATEs.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all entitle collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("entitle/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Subscriptions ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return entitle.ErrAlreadyExists
		}
		return fmt.Errorf("entitle/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"tenant_id": tenantID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, entitle.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("entitle/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("entitle/mongo: update subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
		return entitle.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) ListExpiringSubscriptions(ctx context.Context, cutoff time.Time) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"status": bson.M{"$in": []string{
				string(subscription.StatusActive),
				string(subscription.StatusTrialing),
				string(subscription.StatusCancelled),
			}},
			"period_end": bson.M{"$lte": cutoff},
		}).
		Sort(bson.D{{Key: "period_end", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("entitle/mongo: list expiring subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

// ==================== Usage counters ====================

func (s *Store) GetCounter(ctx context.Context, tenantID string, resource plan.Resource) (*usage.Counter, error) {
	var m counterModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"tenant_id": tenantID, "resource": string(resource)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, entitle.ErrNotFound
		}
		return nil, fmt.Errorf("entitle/mongo: get counter: %w", err)
	}
	return fromCounterModel(&m)
}

func (s *Store) PutCounter(ctx context.Context, c *usage.Counter) error {
	m := toCounterModel(c)
	m.UpdatedAt = now()

	_, err := s.mdb.NewUpdate((*counterModel)(nil)).
		Filter(bson.M{"tenant_id": m.TenantID, "resource": m.Resource}).
		SetUpdate(bson.M{"$set": bson.M{
			"tenant_id":    m.TenantID,
			"resource":     m.Resource,
			"period_start": m.PeriodStart,
			"used":         m.Used,
			"quota_limit":  m.QuotaLimit,
			"updated_at":   m.UpdatedAt,
		}, "$setOnInsert": bson.M{
			"_id":        m.ID,
			"created_at": m.CreatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("entitle/mongo: put counter: %w", err)
	}
	return nil
}

func (s *Store) IncrementUsage(ctx context.Context, counterID id.CounterID, n int64) (bool, error) {
	res, err := s.mdb.NewUpdate((*counterModel)(nil)).
		Filter(bson.M{
			"_id":   counterID.String(),
			"$expr": bson.M{"$lte": bson.A{bson.M{"$add": bson.A{"$used", n}}, "$quota_limit"}},
		}).
		SetUpdate(bson.M{
			"$inc": bson.M{"used": n},
			"$set": bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("entitle/mongo: increment usage: %w", err)
	}
	return res.ModifiedCount() > 0, nil
}

func (s *Store) ReplaceCounters(ctx context.Context, tenantID string, counters []*usage.Counter) error {
	if _, err := s.mdb.NewDelete((*counterModel)(nil)).
		Filter(bson.M{"tenant_id": tenantID}).
		Exec(ctx); err != nil {
		return fmt.Errorf("entitle/mongo: replace counters: %w", err)
	}
	for _, c := range counters {
		m := toCounterModel(c)
		if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
			return fmt.Errorf("entitle/mongo: replace counters: %w", err)
		}
	}
	return nil
}

func (s *Store) SetCounterLimits(ctx context.Context, tenantID string, limits plan.Limits) error {
	t := now()
	for _, r := range plan.Resources() {
		limit := limits.For(r)
		_, err := s.mdb.NewUpdate((*counterModel)(nil)).
			Filter(bson.M{"tenant_id": tenantID, "resource": string(r)}).
			SetUpdate(bson.M{
				"$set": bson.M{"quota_limit": limit, "updated_at": t},
				"$min": bson.M{"used": limit},
			}).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("entitle/mongo: set counter limits: %w", err)
		}
	}
	return nil
}

// ==================== Top-up credits ====================

func (s *Store) GetTopUp(ctx context.Context, tenantID string, resource plan.Resource) (*topup.Credit, error) {
	var m topupModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"tenant_id": tenantID, "resource": string(resource)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, entitle.ErrNotFound
		}
		return nil, fmt.Errorf("entitle/mongo: get top-up: %w", err)
	}
	return fromTopUpModel(&m)
}

func (s *Store) AddTopUp(ctx context.Context, tenantID string, resource plan.Resource, credits int64) error {
	fresh := topup.NewCredit(tenantID, resource)
	_, err := s.mdb.NewUpdate((*topupModel)(nil)).
		Filter(bson.M{"tenant_id": tenantID, "resource": string(resource)}).
		SetUpdate(bson.M{
			"$inc": bson.M{"balance": credits},
			"$set": bson.M{"updated_at": now()},
			"$setOnInsert": bson.M{
				"_id":        fresh.ID.String(),
				"created_at": fresh.CreatedAt,
			},
		}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("entitle/mongo: add top-up: %w", err)
	}
	return nil
}

func (s *Store) ConsumeTopUp(ctx context.Context, tenantID string, resource plan.Resource, n int64) (bool, error) {
	res, err := s.mdb.NewUpdate((*topupModel)(nil)).
		Filter(bson.M{
			"tenant_id": tenantID,
			"resource":  string(resource),
			"balance":   bson.M{"$gte": n},
		}).
		SetUpdate(bson.M{
			"$inc": bson.M{"balance": -n},
			"$set": bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("entitle/mongo: consume top-up: %w", err)
	}
	return res.ModifiedCount() > 0, nil
}

// ==================== Payment sessions ====================

func (s *Store) CreateSession(ctx context.Context, sess *payment.Session) error {
	m := toSessionModel(sess)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return entitle.ErrCheckoutInFlight
		}
		return fmt.Errorf("entitle/mongo: create session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID id.SessionID) (*payment.Session, error) {
	var m sessionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": sessionID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, entitle.ErrSessionNotFound
		}
		return nil, fmt.Errorf("entitle/mongo: get session: %w", err)
	}
	return fromSessionModel(&m)
}

func (s *Store) GetOpenSession(ctx context.Context, tenantID string) (*payment.Session, error) {
	var m sessionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"tenant_id": tenantID, "status": string(payment.StatusInitiated)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, entitle.ErrSessionNotFound
		}
		return nil, fmt.Errorf("entitle/mongo: get open session: %w", err)
	}
	return fromSessionModel(&m)
}

func (s *Store) FinalizeSession(ctx context.Context, sessionID id.SessionID, status payment.Status, at time.Time) (bool, error) {
	res, err := s.mdb.NewUpdate((*sessionModel)(nil)).
		Filter(bson.M{
			"_id":    sessionID.String(),
			"status": string(payment.StatusInitiated),
		}).
		SetUpdate(bson.M{"$set": bson.M{
			"status":      string(status),
			"resolved_at": at,
			"updated_at":  at,
		}}).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("entitle/mongo: finalize session: %w", err)
	}
	return res.ModifiedCount() > 0, nil
}

func (s *Store) ListStaleSessions(ctx context.Context, cutoff time.Time) ([]*payment.Session, error) {
	var models []sessionModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"status":     string(payment.StatusInitiated),
			"created_at": bson.M{"$lte": cutoff},
		}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("entitle/mongo: list stale sessions: %w", err)
	}

	result := make([]*payment.Session, len(models))
	for i := range models {
		sess, err := fromSessionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sess
	}
	return result, nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all entitle collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colSubscriptions: {
			{
				Keys:    bson.D{{Key: "tenant_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "period_end", Value: 1}}},
		},
		colCounters: {
			{
				Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "resource", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colTopUps: {
			{
				Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "resource", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colSessions: {
			{
				Keys: bson.D{{Key: "tenant_id", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"status": string(payment.StatusInitiated)}),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
}
