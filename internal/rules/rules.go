// Package rules holds the allow-list gating which order and product
// types may be replicated. The rule set is loaded once and treated as
// immutable during a replication run.
package rules

import (
	"encoding/json"
	"errors"
	"os"

	"copytraderv1/internal/model"
)

// RuleSet is the eligibility allow-list. An event qualifies only if
// both its order type and its product type are members.
type RuleSet struct {
	orderTypes   map[string]struct{}
	productTypes map[string]struct{}
}

// NewRuleSet builds a rule set from explicit type lists.
func NewRuleSet(orderTypes, productTypes []string) RuleSet {
	rs := RuleSet{
		orderTypes:   make(map[string]struct{}, len(orderTypes)),
		productTypes: make(map[string]struct{}, len(productTypes)),
	}
	for _, ot := range orderTypes {
		rs.orderTypes[ot] = struct{}{}
	}
	for _, pt := range productTypes {
		rs.productTypes[pt] = struct{}{}
	}
	return rs
}

// Default is the built-in fallback used when the rules file cannot be
// read: intraday and normal-margin market, limit and stop orders.
func Default() RuleSet {
	return NewRuleSet(
		[]string{model.OrderTypeMarket, model.OrderTypeLimit, model.OrderTypeSL},
		[]string{model.ProductMIS, model.ProductNRML},
	)
}

// Allows reports whether the event passes the eligibility gate.
func (rs RuleSet) Allows(ev model.OrderEvent) bool {
	if _, ok := rs.orderTypes[ev.OrderType]; !ok {
		return false
	}
	_, ok := rs.productTypes[ev.Product]
	return ok
}

// OrderTypes returns the allowed order types (for display).
func (rs RuleSet) OrderTypes() []string { return keys(rs.orderTypes) }

// ProductTypes returns the allowed product types (for display).
func (rs RuleSet) ProductTypes() []string { return keys(rs.productTypes) }

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// fileShape matches the rules config file: a single-element JSON array
// wrapping the two named lists.
type fileShape struct {
	OrderTypes   []string `json:"order_types"`
	ProductTypes []string `json:"product_types"`
}

// LoadFile reads the rule set from the given JSON file. On any failure
// it returns the Default set together with a ConfigLoadError so the
// caller can log and continue.
func LoadFile(path string) (RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Default(), &model.ConfigLoadError{Path: path, Err: err}
	}
	var entries []fileShape
	if err := json.Unmarshal(raw, &entries); err != nil {
		return Default(), &model.ConfigLoadError{Path: path, Err: err}
	}
	if len(entries) == 0 {
		return Default(), &model.ConfigLoadError{Path: path, Err: errors.New("empty rules file")}
	}
	return NewRuleSet(entries[0].OrderTypes, entries[0].ProductTypes), nil
}
