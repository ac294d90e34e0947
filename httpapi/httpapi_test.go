package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	entitle "github.com/stayforge/entitle"
	"github.com/stayforge/entitle/gateway"
	"github.com/stayforge/entitle/httpapi"
	"github.com/stayforge/entitle/store/memory"
)

func newTestRouter(t *testing.T) (*mux.Router, *gateway.FormPost) {
	t.Helper()

	gw := gateway.NewFormPost("https://pay.example/checkout", "m-test", "test-secret")
	eng := entitle.New(memory.New(), gw)

	r := mux.NewRouter()
	httpapi.NewHandlers(eng).RegisterRoutes(r.PathPrefix("/billing").Subrouter())
	return r, gw
}

func doJSON(t *testing.T, r *mux.Router, method, path, tenantID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if tenantID != "" {
		req.Header.Set(httpapi.TenantHeader, tenantID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestMissingTenantHeader(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/billing/subscription", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSubscriptionCreatesFreeTier(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/billing/subscription", "t1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "free", body["status"])
	assert.Equal(t, "free", body["plan_id"])
}

func TestListPlansAndPacks(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/billing/plans", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Len(t, body["plans"], 3)

	w = doJSON(t, r, http.MethodGet, "/billing/packs", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Len(t, body["packs"], 2)
}

func TestConsumeDenialIsPaymentRequired(t *testing.T) {
	r, _ := newTestRouter(t)

	consume := map[string]any{"resource": "ai_generations", "amount": 1}
	for i := 0; i < 8; i++ {
		w := doJSON(t, r, http.MethodPost, "/billing/consume", "t1", consume)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doJSON(t, r, http.MethodPost, "/billing/consume", "t1", consume)
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, false, body["allowed"])
	assert.Equal(t, float64(8), body["used"])
	assert.Equal(t, float64(8), body["limit"])
}

func TestUnknownResourceRejected(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/billing/consume", "t1",
		map[string]any{"resource": "bogus", "amount": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscribeConflictWhilePending(t *testing.T) {
	r, _ := newTestRouter(t)

	sub := map[string]any{"plan_id": "starter"}
	w := doJSON(t, r, http.MethodPost, "/billing/subscribe", "t1", sub)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPost, "/billing/subscribe", "t1", sub)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUnknownPlanIsNotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/billing/subscribe", "t1",
		map[string]any{"plan_id": "enterprise"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubscribeWebhookActivates(t *testing.T) {
	r, gw := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/billing/subscribe", "t1",
		map[string]any{"plan_id": "growth"})
	require.Equal(t, http.StatusCreated, w.Code)

	body := decodeBody(t, w)
	sessionID, _ := body["session_id"].(string)
	require.NotEmpty(t, sessionID)

	w = postWebhook(t, r, gw, sessionID, 7900, "COMPLETE")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/billing/subscription", "t1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, "active", body["status"])
	assert.Equal(t, "growth", body["plan_id"])

	// The duplicate delivery is acknowledged without reapplying effects.
	w = postWebhook(t, r, gw, sessionID, 7900, "COMPLETE")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookBadSignatureRejected(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/billing/subscribe", "t1",
		map[string]any{"plan_id": "starter"})
	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	sessionID, _ := body["session_id"].(string)

	form := url.Values{}
	form.Set("m_payment_id", sessionID)
	form.Set("amount", "2900")
	form.Set("currency", "usd")
	form.Set("payment_status", "COMPLETE")
	form.Set("signature", "deadbeef")

	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The subscription stays pending.
	w = doJSON(t, r, http.MethodGet, "/billing/subscription", "t1", nil)
	body = decodeBody(t, w)
	assert.Equal(t, "pending", body["status"])
}

func TestTopUpAndSummary(t *testing.T) {
	r, gw := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/billing/topup", "t1",
		map[string]any{"pack_id": "ai-100"})
	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	sessionID, _ := body["session_id"].(string)

	w = postWebhook(t, r, gw, sessionID, 900, "COMPLETE")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/billing/summary", "t1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var summary struct {
		Usage []struct {
			Resource       string `json:"resource"`
			RemainingTopUp int64  `json:"remaining_topup"`
		} `json:"usage"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))

	var found bool
	for _, u := range summary.Usage {
		if u.Resource == "ai_generations" {
			found = true
			assert.Equal(t, int64(100), u.RemainingTopUp)
		}
	}
	assert.True(t, found)
}

func TestCancelEndpoint(t *testing.T) {
	r, gw := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/billing/subscribe", "t1",
		map[string]any{"plan_id": "starter"})
	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	sessionID, _ := body["session_id"].(string)

	w = postWebhook(t, r, gw, sessionID, 2900, "COMPLETE")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, "/billing/cancel", "t1", map[string]any{})
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, "cancelled", body["status"])

	// Cancelling twice is an illegal transition.
	w = doJSON(t, r, http.MethodPost, "/billing/cancel", "t1", map[string]any{})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func postWebhook(t *testing.T, r *mux.Router, gw *gateway.FormPost, sessionID string, cents int64, status string) *httptest.ResponseRecorder {
	t.Helper()

	fields := map[string]string{
		"m_payment_id":   sessionID,
		"amount":         strconv.FormatInt(cents, 10),
		"currency":       "usd",
		"payment_status": status,
	}
	fields["signature"] = gw.Sign(fields)

	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}

	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
