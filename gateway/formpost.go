package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/stayforge/entitle/types"
)

// Form field names of the hosted checkout protocol.
const (
	fieldMerchant  = "merchant_id"
	fieldReference = "m_payment_id"
	fieldTenant    = "custom_str1"
	fieldAmount    = "amount"
	fieldCurrency  = "currency"
	fieldItem      = "item_name"
	fieldReturnURL = "return_url"
	fieldCancelURL = "cancel_url"
	fieldStatus    = "payment_status"
	fieldSignature = "signature"
)

// Payment status values the provider posts back.
const (
	statusComplete  = "COMPLETE"
	statusFailed    = "FAILED"
	statusCancelled = "CANCELLED"
)

// FormPost is a Gateway for hosted-checkout providers that require an
// auto-submitted POST form instead of a plain redirect. Every outbound form
// and inbound notification carries an HMAC-SHA256 signature over the sorted
// field set.
type FormPost struct {
	endpoint   string
	merchantID string
	secret     []byte
}

var _ Gateway = (*FormPost)(nil)

// NewFormPost creates a form-post gateway posting to endpoint, signing with
// the shared secret.
func NewFormPost(endpoint, merchantID, secret string) *FormPost {
	return &FormPost{
		endpoint:   endpoint,
		merchantID: merchantID,
		secret:     []byte(secret),
	}
}

// Name implements Gateway.
func (g *FormPost) Name() string { return "formpost" }

// BuildCheckout implements Gateway.
func (g *FormPost) BuildCheckout(_ context.Context, req CheckoutRequest) (*Checkout, error) {
	if g.endpoint == "" || g.merchantID == "" || len(g.secret) == 0 {
		return nil, fmt.Errorf("%w: gateway not configured", ErrUnavailable)
	}
	if req.SessionID == "" || req.TenantID == "" {
		return nil, fmt.Errorf("%w: incomplete checkout request", ErrUnavailable)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: non-positive amount %s", ErrUnavailable, req.Amount)
	}

	fields := map[string]string{
		fieldMerchant:  g.merchantID,
		fieldReference: req.SessionID,
		fieldTenant:    req.TenantID,
		fieldAmount:    strconv.FormatInt(req.Amount.Amount, 10),
		fieldCurrency:  req.Amount.Currency,
		fieldItem:      req.ItemName,
		fieldReturnURL: req.ReturnURL,
		fieldCancelURL: req.CancelURL,
	}
	fields[fieldSignature] = g.sign(fields)

	return &Checkout{
		URL:    g.endpoint,
		Method: "POST",
		Fields: fields,
	}, nil
}

// VerifyConfirmation implements Gateway.
func (g *FormPost) VerifyConfirmation(_ context.Context, fields map[string]string) (*Confirmation, error) {
	got := fields[fieldSignature]
	if got == "" {
		return nil, fmt.Errorf("%w: missing signature", ErrSignature)
	}

	want := g.sign(fields)
	if !hmac.Equal([]byte(got), []byte(want)) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrSignature)
	}

	sessionID := fields[fieldReference]
	if sessionID == "" {
		return nil, fmt.Errorf("%w: missing payment reference", ErrSignature)
	}

	amount, err := strconv.ParseInt(fields[fieldAmount], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad amount %q", ErrSignature, fields[fieldAmount])
	}

	var outcome Outcome
	switch fields[fieldStatus] {
	case statusComplete:
		outcome = OutcomeComplete
	case statusCancelled:
		outcome = OutcomeCancelled
	case statusFailed, "":
		outcome = OutcomeFailed
	default:
		outcome = OutcomeFailed
	}

	raw := make(map[string]string, len(fields))
	for k, v := range fields {
		raw[k] = v
	}

	return &Confirmation{
		SessionID: sessionID,
		Outcome:   outcome,
		Amount:    types.Money{Amount: amount, Currency: fields[fieldCurrency]},
		Raw:       raw,
	}, nil
}

// Sign computes the provider-side signature for a notification field set.
// Exposed for sandbox simulation and tests; production notifications arrive
// already signed.
func (g *FormPost) Sign(fields map[string]string) string {
	return g.sign(fields)
}

// sign computes the hex HMAC-SHA256 over the field set, excluding the
// signature field itself, with keys in sorted order.
func (g *FormPost) sign(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == fieldSignature {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
	}

	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}
