package id_test

import (
	"strings"
	"testing"

	"github.com/stayforge/entitle/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"SubscriptionID", id.NewSubscriptionID, "sub_"},
		{"SessionID", id.NewSessionID, "pay_"},
		{"TopUpID", id.NewTopUpID, "tpc_"},
		{"CounterID", id.NewCounterID, "uct_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	i := id.New(id.PrefixSession)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixSession {
		t.Errorf("expected prefix %q, got %q", id.PrefixSession, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"SubscriptionID", id.NewSubscriptionID, id.ParseSubscriptionID},
		{"SessionID", id.NewSessionID, id.ParseSessionID},
		{"TopUpID", id.NewTopUpID, id.ParseTopUpID},
		{"CounterID", id.NewCounterID, id.ParseCounterID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	subID := id.NewSubscriptionID()

	if _, err := id.ParseSessionID(subID.String()); err == nil {
		t.Error("expected error parsing a subscription ID as a session ID")
	}
	if _, err := id.ParseTopUpID(subID.String()); err == nil {
		t.Error("expected error parsing a subscription ID as a top-up ID")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty string", ""},
		{"garbage", "not-a-typeid"},
		{"bad suffix", "sub_!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := id.Parse(tt.input); err == nil {
				t.Errorf("expected error for %q", tt.input)
			}
		})
	}
}

func TestNilID(t *testing.T) {
	var nilID id.ID

	if !nilID.IsNil() {
		t.Error("zero value should be nil")
	}
	if nilID.String() != "" {
		t.Errorf("nil ID should render empty, got %q", nilID.String())
	}
	if nilID.Prefix() != "" {
		t.Errorf("nil ID should have empty prefix, got %q", nilID.Prefix())
	}
}

func TestTextMarshaling(t *testing.T) {
	original := id.NewSessionID()

	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded id.ID
	if err := decoded.UnmarshalText(data); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded.String() != original.String() {
		t.Errorf("round-trip mismatch: %q != %q", decoded.String(), original.String())
	}
}

func TestUnmarshalEmptyIsNil(t *testing.T) {
	var decoded id.ID
	if err := decoded.UnmarshalText(nil); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !decoded.IsNil() {
		t.Error("unmarshal of empty text should yield the nil ID")
	}
}

func TestSQLValueScan(t *testing.T) {
	original := id.NewTopUpID()

	v, err := original.Value()
	if err != nil {
		t.Fatalf("value failed: %v", err)
	}

	var scanned id.ID
	if err := scanned.Scan(v); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if scanned.String() != original.String() {
		t.Errorf("round-trip mismatch: %q != %q", scanned.String(), original.String())
	}

	var fromNil id.ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("scan nil failed: %v", err)
	}
	if !fromNil.IsNil() {
		t.Error("scan of NULL should yield the nil ID")
	}

	if err := scanned.Scan(42); err == nil {
		t.Error("expected error scanning an int")
	}
}
