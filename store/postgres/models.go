package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/stayforge/entitle/id"
	"github.com/stayforge/entitle/payment"
	"github.com/stayforge/entitle/plan"
	"github.com/stayforge/entitle/subscription"
	"github.com/stayforge/entitle/topup"
	"github.com/stayforge/entitle/types"
	"github.com/stayforge/entitle/usage"
)

// ==================== Subscription models ====================

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

// ==================== Usage counter models ====================

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

// ==================== Top-up credit models ====================

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

// ==================== Payment session models ====================

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
