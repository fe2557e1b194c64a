package services

import (
	"github.com/shopspring/decimal"

	"github.com/expense-track/apiserver/types"
)

// Report holds the weekly aggregate of a user's expenses. Total and
// Average are nil when no expense fell in the requested week.
type Report struct {
	Week    int
	Total   *types.Amount
	Average *types.Amount
}

// Aggregate computes the sum and arithmetic mean of the given amounts
// using exact decimal arithmetic. ok is false for an empty input, in
// which case both results are undefined.
func Aggregate(amounts []types.Amount) (total, average types.Amount, ok bool) {
	if len(amounts) == 0 {
		return types.Amount{}, types.Amount{}, false
	}

	sum := decimal.Zero
	for _, amount := range amounts {
		sum = sum.Add(amount.Decimal)
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(amounts))))
	return types.NewAmount(sum), types.NewAmount(mean), true
}
