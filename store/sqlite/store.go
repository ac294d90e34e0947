package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	entitle "github.com/stayforge/entitle"
	"github.com/stayforge/entitle/id"
	"github.com/stayforge/entitle/payment"
	"github.com/stayforge/entitle/plan"
	entitlestore "github.com/stayforge/entitle/store"
	"github.com/stayforge/entitle/subscription"
	"github.com/stayforge/entitle/topup"
	"github.com/stayforge/entitle/types"
	"github.com/stayforge/entitle/usage"
)

// compile-time interface check
var _ entitlestore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM. Suitable for
// single-node deployments and tests; the guarded UPDATEs carry the same
// quota and terminality bounds as the PostgreSQL store.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("entitle/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("entitle/sqlite: migration failed: %w", err)
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
	res, err := s.sdb.NewInsert(m).
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
	err := s.sdb.NewSelect(m).
		Where("tenant_id = ?", tenantID).
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
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
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
	err := s.sdb.NewSelect(&models).
		Where("status IN (?, ?, ?)",
			string(subscription.StatusActive),
			string(subscription.StatusTrialing),
			string(subscription.StatusCancelled)).
		Where("period_end <= ?", cutoff).
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
	err := s.sdb.NewSelect(m).
		Where("tenant_id = ?", tenantID).
		Where("resource = ?", string(resource)).
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
	_, err := s.sdb.NewInsert(m).
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
	res, err := s.sdb.NewUpdate((*counterModel)(nil)).
		Set("used = used + ?", n).
		Set("updated_at = ?", now()).
		Where("id = ?", counterID.String()).
		Where("used + ? <= quota_limit", n).
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
	if _, err := s.sdb.NewDelete((*counterModel)(nil)).
		Where("tenant_id = ?", tenantID).
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
	_, err := s.sdb.NewInsert(&models).Exec(ctx)
	return err
}

func (s *Store) SetCounterLimits(ctx context.Context, tenantID string, limits plan.Limits) error {
	t := now()
	for _, r := range plan.Resources() {
		limit := limits.For(r)
		_, err := s.sdb.NewUpdate((*counterModel)(nil)).
			Set("quota_limit = ?", limit).
			Set("used = MIN(used, ?)", limit).
			Set("updated_at = ?", t).
			Where("tenant_id = ?", tenantID).
			Where("resource = ?", string(r)).
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
	err := s.sdb.NewSelect(m).
		Where("tenant_id = ?", tenantID).
		Where("resource = ?", string(resource)).
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

	_, err := s.sdb.NewInsert(m).
		OnConflict("(tenant_id, resource) DO UPDATE").
		Set("balance = balance + EXCLUDED.balance").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) ConsumeTopUp(ctx context.Context, tenantID string, resource plan.Resource, n int64) (bool, error) {
	res, err := s.sdb.NewUpdate((*topupModel)(nil)).
		Set("balance = balance - ?", n).
		Set("updated_at = ?", now()).
		Where("tenant_id = ?", tenantID).
		Where("resource = ?", string(resource)).
		Where("balance >= ?", n).
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
	res, err := s.sdb.NewInsert(m).
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
	err := s.sdb.NewSelect(m).
		Where("id = ?", sessionID.String()).
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
	err := s.sdb.NewSelect(m).
		Where("tenant_id = ?", tenantID).
		Where("status = ?", string(payment.StatusInitiated)).
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
	res, err := s.sdb.NewUpdate((*sessionModel)(nil)).
		Set("status = ?", string(status)).
		Set("resolved_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", sessionID.String()).
		Where("status = ?", string(payment.StatusInitiated)).
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
	err := s.sdb.NewSelect(&models).
		Where("status = ?", string(payment.StatusInitiated)).
		Where("created_at <= ?", cutoff).
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

// ==================== Models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:entitle_subscriptions"`

	ID            string     `grove:"id,pk"`
	TenantID      string     `grove:"tenant_id"`
	PlanID        string     `grove:"plan_id"`
	Status        string     `grove:"status"`
	PeriodStart   time.Time  `grove:"period_start"`
	PeriodEnd     time.Time  `grove:"period_end"`
	ActivatedAt   *time.Time `grove:"activated_at"`
	CancelledAt   *time.Time `grove:"cancelled_at"`
	TrialEnd      *time.Time `grove:"trial_end"`
	GatewayRef    string     `grove:"gateway_ref"`
	PendingPlanID string     `grove:"pending_plan_id"`
	PriorStatus   string     `grove:"prior_status"`
	CreatedAt     time.Time  `grove:"created_at"`
	UpdatedAt     time.Time  `grove:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:            s.ID.String(),
		TenantID:      s.TenantID,
		PlanID:        s.PlanID,
		Status:        string(s.Status),
		PeriodStart:   s.PeriodStart,
		PeriodEnd:     s.PeriodEnd,
		ActivatedAt:   s.ActivatedAt,
		CancelledAt:   s.CancelledAt,
		TrialEnd:      s.TrialEnd,
		GatewayRef:    s.GatewayRef,
		PendingPlanID: s.PendingPlanID,
		PriorStatus:   string(s.PriorStatus),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}

	return &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            subID,
		TenantID:      m.TenantID,
		PlanID:        m.PlanID,
		Status:        subscription.Status(m.Status),
		PeriodStart:   m.PeriodStart,
		PeriodEnd:     m.PeriodEnd,
		ActivatedAt:   m.ActivatedAt,
		CancelledAt:   m.CancelledAt,
		TrialEnd:      m.TrialEnd,
		GatewayRef:    m.GatewayRef,
		PendingPlanID: m.PendingPlanID,
		PriorStatus:   subscription.Status(m.PriorStatus),
	}, nil
}

type counterModel struct {
	grove.BaseModel `grove:"table:entitle_usage_counters"`

	ID          string    `grove:"id,pk"`
	TenantID    string    `grove:"tenant_id"`
	Resource    string    `grove:"resource"`
	PeriodStart time.Time `grove:"period_start"`
	Used        int64     `grove:"used"`
	QuotaLimit  int64     `grove:"quota_limit"`
	CreatedAt   time.Time `grove:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"`
}

func toCounterModel(c *usage.Counter) *counterModel {
	return &counterModel{
		ID:          c.ID.String(),
		TenantID:    c.TenantID,
		Resource:    string(c.Resource),
		PeriodStart: c.PeriodStart,
		Used:        c.Used,
		QuotaLimit:  c.Limit,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func fromCounterModel(m *counterModel) (*usage.Counter, error) {
	counterID, err := id.ParseCounterID(m.ID)
	if err != nil {
		return nil, err
	}

	return &usage.Counter{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          counterID,
		TenantID:    m.TenantID,
		Resource:    plan.Resource(m.Resource),
		PeriodStart: m.PeriodStart,
		Used:        m.Used,
		Limit:       m.QuotaLimit,
	}, nil
}

type topupModel struct {
	grove.BaseModel `grove:"table:entitle_topup_credits"`

	ID        string    `grove:"id,pk"`
	TenantID  string    `grove:"tenant_id"`
	Resource  string    `grove:"resource"`
	Balance   int64     `grove:"balance"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toTopUpModel(c *topup.Credit) *topupModel {
	return &topupModel{
		ID:        c.ID.String(),
		TenantID:  c.TenantID,
		Resource:  string(c.Resource),
		Balance:   c.Balance,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func fromTopUpModel(m *topupModel) (*topup.Credit, error) {
	topupID, err := id.ParseTopUpID(m.ID)
	if err != nil {
		return nil, err
	}

	return &topup.Credit{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:       topupID,
		TenantID: m.TenantID,
		Resource: plan.Resource(m.Resource),
		Balance:  m.Balance,
	}, nil
}

type sessionModel struct {
	grove.BaseModel `grove:"table:entitle_payment_sessions"`

	ID             string     `grove:"id,pk"`
	TenantID       string     `grove:"tenant_id"`
	Kind           string     `grove:"kind"`
	Status         string     `grove:"status"`
	AmountCents    int64      `grove:"amount_cents"`
	AmountCurrency string     `grove:"amount_currency"`
	PlanID         string     `grove:"plan_id"`
	PackID         string     `grove:"pack_id"`
	Resource       string     `grove:"resource"`
	Credits        int64      `grove:"credits"`
	ResolvedAt     *time.Time `grove:"resolved_at"`
	ReturnURL      string     `grove:"return_url"`
	CancelURL      string     `grove:"cancel_url"`
	GatewayName    string     `grove:"gateway_name"`
	CreatedAt      time.Time  `grove:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"`
}

func toSessionModel(s *payment.Session) *sessionModel {
	return &sessionModel{
		ID:             s.ID.String(),
		TenantID:       s.TenantID,
		Kind:           string(s.Kind),
		Status:         string(s.Status),
		AmountCents:    s.Amount.Amount,
		AmountCurrency: s.Amount.Currency,
		PlanID:         s.PlanID,
		PackID:         s.PackID,
		Resource:       string(s.Resource),
		Credits:        s.Credits,
		ResolvedAt:     s.ResolvedAt,
		ReturnURL:      s.ReturnURL,
		CancelURL:      s.CancelURL,
		GatewayName:    s.GatewayName,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func fromSessionModel(m *sessionModel) (*payment.Session, error) {
	sessionID, err := id.ParseSessionID(m.ID)
	if err != nil {
		return nil, err
	}

	return &payment.Session{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          sessionID,
		TenantID:    m.TenantID,
		Kind:        payment.Kind(m.Kind),
		Status:      payment.Status(m.Status),
		Amount:      types.Money{Amount: m.AmountCents, Currency: m.AmountCurrency},
		PlanID:      m.PlanID,
		PackID:      m.PackID,
		Resource:    plan.Resource(m.Resource),
		Credits:     m.Credits,
		ResolvedAt:  m.ResolvedAt,
		ReturnURL:   m.ReturnURL,
		CancelURL:   m.CancelURL,
		GatewayName: m.GatewayName,
	}, nil
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
