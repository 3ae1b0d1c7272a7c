package models

import (
	"errors"
	"testing"
)

func TestOrderKindPrefix(t *testing.T) {
	cases := map[OrderKind]string{
		OrderKindProcurement:    "PO",
		OrderKindInbound:        "IN",
		OrderKindOutbound:       "OUT",
		OrderKindInventoryCheck: "CHK",
	}
	for kind, want := range cases {
		if got := kind.Prefix(); got != want {
			t.Errorf("%s prefix: got %q, want %q", kind, got, want)
		}
	}
	if OrderKind("Bogus").Prefix() != "" {
		t.Error("unknown kind should have empty prefix")
	}
	if _, err := OrderKind("Bogus").Value(); err == nil {
		t.Error("unknown kind should not serialize")
	}
}

func TestParseOrderStatus(t *testing.T) {
	status, err := ParseOrderStatus("Picking")
	if err != nil || status != OrderStatusPicking {
		t.Fatalf("ParseOrderStatus(Picking): %v, %v", status, err)
	}
	_, err = ParseOrderStatus("picking") // case sensitive
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown status, got %v", err)
	}
}
