package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestEffect(t *testing.T) {
	income := &Category{ID: "c1", Name: "Salary", Type: Income, OwnerID: "u1"}
	expense := &Category{ID: "c2", Name: "Food", Type: Expense, OwnerID: "u1"}

	cases := []struct {
		name     string
		amount   string
		category *Category
		want     string
	}{
		{"income adds", "500.00", income, "500.00"},
		{"expense subtracts", "200.00", expense, "-200.00"},
		{"no category is neutral", "999.99", nil, "0"},
		{"zero amount income", "0", income, "0"},
		{"zero amount expense", "0", expense, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			amount, _ := decimal.NewFromString(tc.amount)
			want, _ := decimal.NewFromString(tc.want)
			got := Effect(amount, tc.category)
			if !got.Equal(want) {
				t.Fatalf("Effect(%s, %v) = %s, want %s", tc.amount, tc.category, got, want)
			}
		})
	}
}

func TestDefaultCategoriesShape(t *testing.T) {
	if len(DefaultCategories) != 16 {
		t.Fatalf("expected 16 default categories, got %d", len(DefaultCategories))
	}
	seen := make(map[string]bool, len(DefaultCategories))
	for _, dc := range DefaultCategories {
		if !dc.Type.Valid() {
			t.Fatalf("category %q has invalid type %q", dc.Name, dc.Type)
		}
		key := dc.Name + "|" + string(dc.Type)
		if seen[key] {
			t.Fatalf("duplicate default category %q", key)
		}
		seen[key] = true
	}
}
