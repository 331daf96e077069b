package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"copytraderv1/internal/model"
)

func TestRuleSet_Allows(t *testing.T) {
	rs := NewRuleSet([]string{"MARKET", "LIMIT", "SL"}, []string{"MIS", "NRML"})

	cases := []struct {
		orderType string
		product   string
		want      bool
	}{
		{"MARKET", "MIS", true},
		{"LIMIT", "NRML", true},
		{"SL", "MIS", true},
		{"SL-M", "MIS", false},   // order type not allowed
		{"MARKET", "CNC", false}, // product not allowed
		{"", "", false},
	}

	for _, tc := range cases {
		ev := model.OrderEvent{OrderType: tc.orderType, Product: tc.product}
		if got := rs.Allows(ev); got != tc.want {
			t.Errorf("Allows(%s/%s) = %v, want %v", tc.orderType, tc.product, got, tc.want)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowed_order_types.json")
	content := `[{"order_types": ["MARKET"], "product_types": ["MIS"]}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !rs.Allows(model.OrderEvent{OrderType: "MARKET", Product: "MIS"}) {
		t.Error("expected MARKET/MIS to be allowed")
	}
	if rs.Allows(model.OrderEvent{OrderType: "LIMIT", Product: "MIS"}) {
		t.Error("LIMIT should not be allowed from this file")
	}
}

func TestLoadFile_MissingFallsBackToDefault(t *testing.T) {
	rs, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))

	var cle *model.ConfigLoadError
	if !errors.As(err, &cle) {
		t.Fatalf("expected ConfigLoadError, got %v", err)
	}
	// Defaults still usable.
	if !rs.Allows(model.OrderEvent{OrderType: "SL", Product: "NRML"}) {
		t.Error("default rules should allow SL/NRML")
	}
	if rs.Allows(model.OrderEvent{OrderType: "MARKET", Product: "CNC"}) {
		t.Error("default rules should not allow CNC")
	}
}

func TestLoadFile_MalformedFallsBackToDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	rs, err := LoadFile(path)
	if err == nil {
		t.Fatal("expected an error for malformed file")
	}
	if !rs.Allows(model.OrderEvent{OrderType: "MARKET", Product: "MIS"}) {
		t.Error("default rules should allow MARKET/MIS")
	}
}
