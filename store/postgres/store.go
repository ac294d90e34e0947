package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	entitle "github.com/stayforge/entitle"
	"github.com/stayforge/entitle/id"
	"github.com/stayforge/entitle/payment"
	"github.com/stayforge/entitle/plan"
	entitlestore "github.com/stayforge/entitle/store"
	"github.com/stayforge/entitle/subscription"
	"github.com/stayforge/entitle/topup"
	"github.com/stayforge/entitle/usage"
)

// compile-time interface check
var _ entitlestore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM. The quota
// bound and session terminality are enforced by guarded UPDATEs, so they
// hold across concurrent processes sharing the database.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("entitle/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("entitle/postgres: migration failed: %w", err)
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
	res, err := s.pg.NewInsert(m).
		OnConflict("(tenant_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return entitle.ErrAlreadyExists
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("tenant_id = $1", tenantID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, entitle.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	m.UpdatedAt = now()
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return entitle.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) ListExpiringSubscriptions(ctx context.Context, cutoff time.Time) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	err := s.pg.NewSelect(&models).
		Where("status IN ($1, $2, $3)",
			string(subscription.StatusActive),
			string(subscription.StatusTrialing),
			string(subscription.StatusCancelled)).
		Where("period_end <= $4", cutoff).
		OrderExpr("period_end ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
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
	m := new(counterModel)
	err := s.pg.NewSelect(m).
		Where("tenant_id = $1", tenantID).
		Where("resource = $2", string(resource)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, entitle.ErrNotFound
		}
		return nil, err
	}
	return fromCounterModel(m)
}

func (s *Store) PutCounter(ctx context.Context, c *usage.Counter) error {
	m := toCounterModel(c)
	m.UpdatedAt = now()
	_, err := s.pg.NewInsert(m).
		OnConflict("(tenant_id, resource) DO UPDATE").
		Set("id = EXCLUDED.id").
		Set("period_start = EXCLUDED.period_start").
		Set("used = EXCLUDED.used").
		Set("quota_limit = EXCLUDED.quota_limit").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) IncrementUsage(ctx context.Context, counterID id.CounterID, n int64) (bool, error) {
	res, err := s.pg.NewUpdate((*counterModel)(nil)).
		Set("used = used + $1", n).
		Set("updated_at = $2", now()).
		Where("id = $3", counterID.String()).
		Where("used + $4 <= quota_limit", n).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *Store) ReplaceCounters(ctx context.Context, tenantID string, counters []*usage.Counter) error {
	if _, err := s.pg.NewDelete((*counterModel)(nil)).
		Where("tenant_id = $1", tenantID).
		Exec(ctx); err != nil {
		return err
	}
	if len(counters) == 0 {
		return nil
	}

	models := make([]counterModel, len(counters))
	for i, c := range counters {
		models[i] = *toCounterModel(c)
	}
	_, err := s.pg.NewInsert(&models).Exec(ctx)
	return err
}

func (s *Store) SetCounterLimits(ctx context.Context, tenantID string, limits plan.Limits) error {
	t := now()
	for _, r := range plan.Resources() {
		limit := limits.For(r)
		_, err := s.pg.NewUpdate((*counterModel)(nil)).
			Set("quota_limit = $1", limit).
			Set("used = LEAST(used, $2)", limit).
			Set("updated_at = $3", t).
			Where("tenant_id = $4", tenantID).
			Where("resource = $5", string(r)).
			Exec(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

// ==================== Top-up credits ====================

func (s *Store) GetTopUp(ctx context.Context, tenantID string, resource plan.Resource) (*topup.Credit, error) {
	m := new(topupModel)
	err := s.pg.NewSelect(m).
		Where("tenant_id = $1", tenantID).
		Where("resource = $2", string(resource)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, entitle.ErrNotFound
		}
		return nil, err
	}
	return fromTopUpModel(m)
}

func (s *Store) AddTopUp(ctx context.Context, tenantID string, resource plan.Resource, credits int64) error {
	c := topup.NewCredit(tenantID, resource)
	c.Balance = credits
	m := toTopUpModel(c)
	m.UpdatedAt = now()

	_, err := s.pg.NewInsert(m).
		OnConflict("(tenant_id, resource) DO UPDATE").
		Set("balance = entitle_topup_credits.balance + EXCLUDED.balance").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) ConsumeTopUp(ctx context.Context, tenantID string, resource plan.Resource, n int64) (bool, error) {
	res, err := s.pg.NewUpdate((*topupModel)(nil)).
		Set("balance = balance - $1", n).
		Set("updated_at = $2", now()).
		Where("tenant_id = $3", tenantID).
		Where("resource = $4", string(resource)).
		Where("balance >= $5", n).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ==================== Payment sessions ====================

func (s *Store) CreateSession(ctx context.Context, sess *payment.Session) error {
	m := toSessionModel(sess)
	res, err := s.pg.NewInsert(m).
		OnConflict("(tenant_id) WHERE status = 'initiated' DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return entitle.ErrCheckoutInFlight
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID id.SessionID) (*payment.Session, error) {
	m := new(sessionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", sessionID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, entitle.ErrSessionNotFound
		}
		return nil, err
	}
	return fromSessionModel(m)
}

func (s *Store) GetOpenSession(ctx context.Context, tenantID string) (*payment.Session, error) {
	m := new(sessionModel)
	err := s.pg.NewSelect(m).
		Where("tenant_id = $1", tenantID).
		Where("status = $2", string(payment.StatusInitiated)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, entitle.ErrSessionNotFound
		}
		return nil, err
	}
	return fromSessionModel(m)
}

func (s *Store) FinalizeSession(ctx context.Context, sessionID id.SessionID, status payment.Status, at time.Time) (bool, error) {
	res, err := s.pg.NewUpdate((*sessionModel)(nil)).
		Set("status = $1", string(status)).
		Set("resolved_at = $2", at).
		Set("updated_at = $3", at).
		Where("id = $4", sessionID.String()).
		Where("status = $5", string(payment.StatusInitiated)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *Store) ListStaleSessions(ctx context.Context, cutoff time.Time) ([]*payment.Session, error) {
	var models []sessionModel
	err := s.pg.NewSelect(&models).
		Where("status = $1", string(payment.StatusInitiated)).
		Where("created_at <= $2", cutoff).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
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

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
