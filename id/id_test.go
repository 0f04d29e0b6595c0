package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/clearing/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"AccountID", id.NewAccountID, "acct_"},
		{"CredexID", id.NewCredexID, "cdx_"},
		{"DayNodeID", id.NewDayNodeID, "day_"},
		{"LoopAnchorID", id.NewLoopAnchorID, "loop_"},
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
	i := id.New(id.PrefixCredex)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixCredex {
		t.Errorf("expected prefix %q, got %q", id.PrefixCredex, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"AccountID", id.NewAccountID, id.ParseAccountID},
		{"CredexID", id.NewCredexID, id.ParseCredexID},
		{"DayNodeID", id.NewDayNodeID, id.ParseDayNodeID},
		{"LoopAnchorID", id.NewLoopAnchorID, id.ParseLoopAnchorID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round trip mismatch: got %q, want %q", parsed.String(), original.String())
			}
		})
	}
}

func TestParseWithPrefixMismatch(t *testing.T) {
	acct := id.NewAccountID()
	if _, err := id.ParseCredexID(acct.String()); err == nil {
		t.Error("expected error parsing account ID with credex prefix")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error parsing empty string")
	}
}

func TestNilID(t *testing.T) {
	var nilID id.ID
	if !nilID.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if nilID.String() != "" {
		t.Errorf("nil ID String() should be empty, got %q", nilID.String())
	}
	if nilID.Prefix() != "" {
		t.Errorf("nil ID Prefix() should be empty, got %q", nilID.Prefix())
	}
}

func TestTextMarshalRoundTrip(t *testing.T) {
	original := id.NewCredexID()

	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded id.ID
	if err := decoded.UnmarshalText(data); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.String() != original.String() {
		t.Errorf("round trip mismatch: got %q, want %q", decoded.String(), original.String())
	}
}

func TestScanNil(t *testing.T) {
	decoded := id.NewAccountID()
	if err := decoded.Scan(nil); err != nil {
		t.Fatalf("scan nil failed: %v", err)
	}
	if !decoded.IsNil() {
		t.Error("scanning nil should produce the Nil ID")
	}
}

func TestKSortable(t *testing.T) {
	// IDs generated later must not sort before earlier ones.
	first := id.NewCredexID()
	second := id.NewCredexID()
	if second.String() < first.String() {
		t.Errorf("expected %q >= %q", second.String(), first.String())
	}
}
