package services

import (
	"testing"

	"github.com/expense-track/apiserver/types"
)

func amount(t *testing.T, value string) types.Amount {
	t.Helper()
	parsed, err := types.ParseAmount(value)
	if err != nil {
		t.Fatalf("parse amount %q: %v", value, err)
	}
	return parsed
}

func TestAggregate(t *testing.T) {
	cases := []struct {
		name        string
		amounts     []string
		wantTotal   string
		wantAverage string
	}{
		{"two expenses", []string{"300.00", "100.00"}, "400.00", "200.00"},
		{"single expense", []string{"666.00"}, "666.00", "666.00"},
		{"cent amounts stay exact", []string{"0.10", "0.10", "0.10"}, "0.30", "0.10"},
		{"uneven division", []string{"100.00", "0.01"}, "100.01", "50.01"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			amounts := make([]types.Amount, 0, len(tc.amounts))
			for _, raw := range tc.amounts {
				amounts = append(amounts, amount(t, raw))
			}

			total, average, ok := Aggregate(amounts)
			if !ok {
				t.Fatal("Aggregate reported empty input")
			}
			if total.String() != tc.wantTotal {
				t.Errorf("total = %s, want %s", total, tc.wantTotal)
			}
			if average.String() != tc.wantAverage {
				t.Errorf("average = %s, want %s", average, tc.wantAverage)
			}
		})
	}
}

func TestAggregateEmpty(t *testing.T) {
	if _, _, ok := Aggregate(nil); ok {
		t.Error("Aggregate of no amounts must report absence")
	}
}
