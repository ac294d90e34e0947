// Package httpapi exposes the billing engine over HTTP. Tenants are
// identified by the X-Tenant-ID header; the webhook endpoint is the only
// route the gateway calls and carries no tenant header.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	entitle "github.com/stayforge/entitle"
	"github.com/stayforge/entitle/plan"
	"github.com/stayforge/entitle/reconcile"
)

// TenantHeader carries the tenant identifier on every tenant-scoped route.
const TenantHeader = "X-Tenant-ID"

// Handlers provides HTTP handlers for the billing API.
type Handlers struct {
	engine *entitle.Engine
}

// NewHandlers creates new billing handlers backed by the engine.
func NewHandlers(engine *entitle.Engine) *Handlers {
	return &Handlers{engine: engine}
}

// RegisterRoutes registers all billing routes under the router.
// Mount it on a subrouter to prefix the paths (e.g. /billing).
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	// Catalog
	r.HandleFunc("/plans", h.ListPlans).Methods("GET")
	r.HandleFunc("/packs", h.ListPacks).Methods("GET")

	// Subscription lifecycle
	r.HandleFunc("/subscription", h.GetSubscription).Methods("GET")
	r.HandleFunc("/subscribe", h.Subscribe).Methods("POST")
	r.HandleFunc("/subscribe/await", h.AwaitActivation).Methods("POST")
	r.HandleFunc("/trial", h.StartTrial).Methods("POST")
	r.HandleFunc("/cancel", h.Cancel).Methods("POST")

	// Top-ups
	r.HandleFunc("/topup", h.TopUp).Methods("POST")

	// Entitlements
	r.HandleFunc("/summary", h.Summary).Methods("GET")
	r.HandleFunc("/can-consume", h.CanConsume).Methods("POST")
	r.HandleFunc("/consume", h.Consume).Methods("POST")

	// Gateway confirmation callback
	r.HandleFunc("/webhook", h.Webhook).Methods("POST")
}

// ──────────────────────────────────────────────────
// Catalog
// ──────────────────────────────────────────────────

// ListPlans handles GET /plans.
func (h *Handlers) ListPlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version": h.engine.Catalog().Version(),
		"plans":   h.engine.Catalog().List(),
	})
}

// ListPacks handles GET /packs.
func (h *Handlers) ListPacks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"packs": h.engine.Packs()})
}

// ──────────────────────────────────────────────────
// Subscription lifecycle
// ──────────────────────────────────────────────────

// GetSubscription handles GET /subscription.
func (h *Handlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}

	sub, err := h.engine.Subscription(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

type subscribeRequest struct {
	PlanID    string `json:"plan_id"`
	ReturnURL string `json:"return_url"`
	CancelURL string `json:"cancel_url"`
}

// Subscribe handles POST /subscribe. The response carries the signed
// checkout handoff the client submits to the gateway.
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}

	var req subscribeRequest
	if !decode(w, r, &req) {
		return
	}

	intent, err := h.engine.RequestSubscribe(r.Context(), tenantID, req.PlanID, req.ReturnURL, req.CancelURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

type awaitRequest struct {
	Attempts int `json:"attempts"`
	// IntervalMS is the poll interval in milliseconds.
	IntervalMS int `json:"interval_ms"`
}

type awaitResponse struct {
	Outcome reconcile.Outcome `json:"outcome"`
}

// AwaitActivation handles POST /subscribe/await. It blocks polling the
// subscription until it leaves pending or the attempt budget runs out.
func (h *Handlers) AwaitActivation(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}

	var req awaitRequest
	if !decode(w, r, &req) {
		return
	}

	opts := reconcile.Options{Attempts: req.Attempts}
	if req.IntervalMS > 0 {
		opts.Interval = time.Duration(req.IntervalMS) * time.Millisecond
	}

	outcome, err := h.engine.AwaitActivation(r.Context(), tenantID, opts)
	if err != nil && !errors.Is(err, entitle.ErrReconciliationTimeout) {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, awaitResponse{Outcome: outcome})
}

type trialRequest struct {
	PlanID string `json:"plan_id"`
}

// StartTrial handles POST /trial.
func (h *Handlers) StartTrial(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}

	var req trialRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.engine.StartTrial(r.Context(), tenantID, req.PlanID); err != nil {
		writeError(w, err)
		return
	}

	sub, err := h.engine.Subscription(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// Cancel handles POST /cancel. The subscription stays entitled until the
// paid period runs out.
func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}

	if err := h.engine.RequestCancel(r.Context(), tenantID); err != nil {
		writeError(w, err)
		return
	}

	sub, err := h.engine.Subscription(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// ──────────────────────────────────────────────────
// Top-ups
// ──────────────────────────────────────────────────

type topUpRequest struct {
	PackID    string `json:"pack_id"`
	ReturnURL string `json:"return_url"`
	CancelURL string `json:"cancel_url"`
}

// TopUp handles POST /topup.
func (h *Handlers) TopUp(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}

	var req topUpRequest
	if !decode(w, r, &req) {
		return
	}

	intent, err := h.engine.RequestTopUp(r.Context(), tenantID, req.PackID, req.ReturnURL, req.CancelURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

// ──────────────────────────────────────────────────
// Entitlements
// ──────────────────────────────────────────────────

// Summary handles GET /summary.
func (h *Handlers) Summary(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}

	summary, err := h.engine.Summarize(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type consumeRequest struct {
	Resource string `json:"resource"`
	Amount   int64  `json:"amount"`
}

func (c consumeRequest) amount() int64 {
	if c.Amount == 0 {
		return 1
	}
	return c.Amount
}

// CanConsume handles POST /can-consume. It never mutates state.
func (h *Handlers) CanConsume(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}

	var req consumeRequest
	if !decode(w, r, &req) {
		return
	}

	d, err := h.engine.CanConsume(r.Context(), tenantID, plan.Resource(req.Resource), req.amount())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Consume handles POST /consume. A quota denial is reported as
// 402 Payment Required with the decision in the body.
func (h *Handlers) Consume(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}

	var req consumeRequest
	if !decode(w, r, &req) {
		return
	}

	d, err := h.engine.Consume(r.Context(), tenantID, plan.Resource(req.Resource), req.amount())
	if err != nil {
		if entitle.IsQuotaExceeded(err) {
			writeJSON(w, http.StatusPaymentRequired, d)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ──────────────────────────────────────────────────
// Gateway webhook
// ──────────────────────────────────────────────────

// Webhook handles POST /webhook, the gateway's server-to-server
// confirmation. Replays of an already settled session are acknowledged
// without reapplying effects.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("malformed form payload"))
		return
	}

	fields := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		fields[k] = r.PostForm.Get(k)
	}

	sess, err := h.engine.ConfirmPayment(r.Context(), fields)
	if err != nil {
		if entitle.IsStaleConfirmation(err) {
			writeJSON(w, http.StatusOK, sess)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func tenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := r.Header.Get(TenantHeader)
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("missing "+TenantHeader+" header"))
		return "", false
	}
	return tenantID, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("malformed JSON body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // headers already sent
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeError(w http.ResponseWriter, err error) {
	var verr entitle.ValidationError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &verr), errors.Is(err, entitle.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, entitle.ErrSignatureInvalid):
		status = http.StatusBadRequest
	case entitle.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, entitle.ErrCheckoutInFlight),
		errors.Is(err, entitle.ErrIllegalTransition),
		errors.Is(err, entitle.ErrTrialUnavailable),
		errors.Is(err, entitle.ErrStaleConfirmation),
		errors.Is(err, entitle.ErrAlreadyExists):
		status = http.StatusConflict
	case entitle.IsQuotaExceeded(err):
		status = http.StatusPaymentRequired
	case entitle.IsRetryable(err):
		status = http.StatusBadGateway
	}

	writeJSON(w, status, errorBody(err.Error()))
}
