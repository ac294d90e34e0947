package gateway_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stayforge/entitle/gateway"
	"github.com/stayforge/entitle/types"
)

func newTestGateway() *gateway.FormPost {
	return gateway.NewFormPost("https://pay.example.com/process", "merchant-1", "s3cret")
}

func TestBuildCheckout(t *testing.T) {
	g := newTestGateway()

	co, err := g.BuildCheckout(context.Background(), gateway.CheckoutRequest{
		SessionID: "pay_01h2xcejqtf2nbrexx3vqjhp41",
		TenantID:  "tenant-1",
		Amount:    types.USD(7900),
		ItemName:  "Growth plan",
		ReturnURL: "https://app.example.com/billing/return",
		CancelURL: "https://app.example.com/billing/cancel",
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if !co.RequiresForm() {
		t.Error("form-post checkout should require a form")
	}
	if co.URL != "https://pay.example.com/process" {
		t.Errorf("unexpected endpoint %q", co.URL)
	}
	if co.Fields["m_payment_id"] != "pay_01h2xcejqtf2nbrexx3vqjhp41" {
		t.Errorf("unexpected payment reference %q", co.Fields["m_payment_id"])
	}
	if co.Fields["amount"] != "7900" {
		t.Errorf("unexpected amount %q", co.Fields["amount"])
	}
	if co.Fields["signature"] == "" {
		t.Error("checkout should be signed")
	}
}

func TestBuildCheckoutUnavailable(t *testing.T) {
	tests := []struct {
		name string
		g    *gateway.FormPost
		req  gateway.CheckoutRequest
	}{
		{
			"unconfigured",
			gateway.NewFormPost("", "", ""),
			gateway.CheckoutRequest{SessionID: "pay_1", TenantID: "t", Amount: types.USD(100)},
		},
		{
			"missing session",
			newTestGateway(),
			gateway.CheckoutRequest{TenantID: "t", Amount: types.USD(100)},
		},
		{
			"zero amount",
			newTestGateway(),
			gateway.CheckoutRequest{SessionID: "pay_1", TenantID: "t", Amount: types.Zero("usd")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.g.BuildCheckout(context.Background(), tt.req)
			if !errors.Is(err, gateway.ErrUnavailable) {
				t.Errorf("expected ErrUnavailable, got %v", err)
			}
		})
	}
}

// confirmationFields round-trips a checkout into the notification the
// provider would post back, signed with the given gateway's secret.
func confirmationFields(t *testing.T, g *gateway.FormPost, status string) map[string]string {
	t.Helper()

	co, err := g.BuildCheckout(context.Background(), gateway.CheckoutRequest{
		SessionID: "pay_01h2xcejqtf2nbrexx3vqjhp41",
		TenantID:  "tenant-1",
		Amount:    types.USD(7900),
		ItemName:  "Growth plan",
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	fields := map[string]string{
		"merchant_id":    co.Fields["merchant_id"],
		"m_payment_id":   co.Fields["m_payment_id"],
		"custom_str1":    co.Fields["custom_str1"],
		"amount":         co.Fields["amount"],
		"currency":       co.Fields["currency"],
		"payment_status": status,
	}
	fields["signature"] = g.Sign(fields)
	return fields
}

func TestVerifyConfirmation(t *testing.T) {
	g := newTestGateway()

	tests := []struct {
		name    string
		status  string
		outcome gateway.Outcome
	}{
		{"complete", "COMPLETE", gateway.OutcomeComplete},
		{"cancelled", "CANCELLED", gateway.OutcomeCancelled},
		{"failed", "FAILED", gateway.OutcomeFailed},
		{"unknown maps to failed", "WEIRD", gateway.OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := confirmationFields(t, g, tt.status)

			conf, err := g.VerifyConfirmation(context.Background(), fields)
			if err != nil {
				t.Fatalf("verify failed: %v", err)
			}
			if conf.Outcome != tt.outcome {
				t.Errorf("expected outcome %q, got %q", tt.outcome, conf.Outcome)
			}
			if conf.SessionID != "pay_01h2xcejqtf2nbrexx3vqjhp41" {
				t.Errorf("unexpected session id %q", conf.SessionID)
			}
			if !conf.Amount.Equal(types.USD(7900)) {
				t.Errorf("unexpected amount %v", conf.Amount)
			}
		})
	}
}

func TestVerifyConfirmationRejections(t *testing.T) {
	g := newTestGateway()

	t.Run("missing signature", func(t *testing.T) {
		_, err := g.VerifyConfirmation(context.Background(), map[string]string{
			"m_payment_id": "pay_1", "amount": "7900",
		})
		if !errors.Is(err, gateway.ErrSignature) {
			t.Errorf("expected ErrSignature, got %v", err)
		}
	})

	t.Run("tampered amount", func(t *testing.T) {
		fields := confirmationFields(t, g, "COMPLETE")
		fields["amount"] = "1"
		if _, err := g.VerifyConfirmation(context.Background(), fields); !errors.Is(err, gateway.ErrSignature) {
			t.Errorf("expected ErrSignature, got %v", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := gateway.NewFormPost("https://pay.example.com/process", "merchant-1", "different")
		fields := confirmationFields(t, other, "COMPLETE")
		if _, err := g.VerifyConfirmation(context.Background(), fields); !errors.Is(err, gateway.ErrSignature) {
			t.Errorf("expected ErrSignature, got %v", err)
		}
	})
}
