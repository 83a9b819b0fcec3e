package filter

import (
	"strings"
	"testing"
)

func floatPtr(f float64) *float64 { return &f }

// --- Range tests ---

func TestNewRangeBounds_Valid(t *testing.T) {
	tests := []struct {
		name     string
		gte, lte *float64
	}{
		{"gte only", floatPtr(50), nil},
		{"lte only", nil, floatPtr(200)},
		{"gte+lte", floatPtr(50), floatPtr(200)},
		{"equal bounds", floatPtr(100), floatPtr(100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRangeBounds(tt.gte, tt.lte)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (r.GTE() == nil) != (tt.gte == nil) {
				t.Error("GTE() mismatch")
			}
			if (r.LTE() == nil) != (tt.lte == nil) {
				t.Error("LTE() mismatch")
			}
		})
	}
}

func TestNewRangeBounds_NoBoundary(t *testing.T) {
	_, err := NewRangeBounds(nil, nil)
	if err == nil {
		t.Fatal("expected error for no boundary")
	}
	if !strings.Contains(err.Error(), "at least one") {
		t.Errorf("error = %q", err)
	}
}

func TestNewRangeBounds_Inverted(t *testing.T) {
	_, err := NewRangeBounds(floatPtr(200), floatPtr(50))
	if err == nil {
		t.Fatal("expected error for inverted bounds")
	}
}

// --- Condition tests ---

func TestNewMatch_Valid(t *testing.T) {
	c, err := NewMatch("brand", "Nike")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Key() != "brand" {
		t.Errorf("Key() = %q", c.Key())
	}
	if c.Match() != "Nike" {
		t.Errorf("Match() = %q", c.Match())
	}
	if !c.IsMatch() {
		t.Error("IsMatch() = false")
	}
	if c.IsRange() {
		t.Error("IsRange() = true for match condition")
	}
}

func TestNewMatch_EmptyKey(t *testing.T) {
	if _, err := NewMatch("", "Nike"); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestNewMatch_EmptyValue(t *testing.T) {
	if _, err := NewMatch("brand", ""); err == nil {
		t.Fatal("expected error for empty value")
	}
}

func TestNewRange_Valid(t *testing.T) {
	r, err := NewRangeBounds(floatPtr(50), floatPtr(150))
	if err != nil {
		t.Fatalf("NewRangeBounds: %v", err)
	}
	c, err := NewRange("price", r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.IsRange() {
		t.Error("IsRange() = false")
	}
	if c.IsMatch() {
		t.Error("IsMatch() = true for range condition")
	}
	if *c.Range().GTE() != 50 || *c.Range().LTE() != 150 {
		t.Errorf("Range() bounds = %v..%v", c.Range().GTE(), c.Range().LTE())
	}
}

// --- Expression tests ---

func TestNewExpression(t *testing.T) {
	c, _ := NewMatch("brand", "Adidas")
	e, err := NewExpression(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.IsEmpty() {
		t.Error("IsEmpty() = true")
	}
	if len(e.Conditions()) != 1 {
		t.Errorf("Conditions() len = %d", len(e.Conditions()))
	}
}

func TestNewExpression_Empty(t *testing.T) {
	e, err := NewExpression()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.IsEmpty() {
		t.Error("IsEmpty() = false for empty expression")
	}
}

func TestNewExpression_TooMany(t *testing.T) {
	conditions := make([]Condition, MaxConditions+1)
	for i := range conditions {
		c, _ := NewMatch("brand", "Nike")
		conditions[i] = c
	}
	if _, err := NewExpression(conditions...); err == nil {
		t.Fatal("expected error for too many conditions")
	}
}
