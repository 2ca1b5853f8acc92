package pipeline

import (
	"fmt"

	"github.com/shopspring/decimal"

	"golang-regulatory-report/internal/models"
	"golang-regulatory-report/pkg/errors"
)

// Tier is one average-amount bucket with a closed upper bound
type Tier struct {
	UpperBound decimal.Decimal
	Code       string
}

// Tiers are evaluated in order, first match wins
var Tiers = []Tier{
	{UpperBound: decimal.NewFromInt(500), Code: "94560000001"},
	{UpperBound: decimal.NewFromInt(1000), Code: "94560000002"},
	{UpperBound: decimal.NewFromInt(2000), Code: "94560000003"},
	{UpperBound: decimal.NewFromInt(5000), Code: "94560000004"},
	{UpperBound: decimal.NewFromInt(10000), Code: "94560000005"},
	{UpperBound: decimal.NewFromInt(30000), Code: "94560000006"},
}

// OverflowBucket is the code for averages above the last tier
const OverflowBucket = "94560000007"

// BucketFor maps an average amount to its bucket code
func BucketFor(average decimal.Decimal) string {
	for _, tier := range Tiers {
		if average.LessThanOrEqual(tier.UpperBound) {
			return tier.Code
		}
	}
	return OverflowBucket
}

// Bucketize returns copies of rows with terminal_average_amount_range set
func Bucketize(rows []*models.SummaryRow) ([]*models.SummaryRow, error) {
	out := make([]*models.SummaryRow, len(rows))
	for i, row := range rows {
		if row.Number <= 0 {
			return nil, errors.InternalError(errors.CodeInvariantViolation, "bucketing",
				fmt.Errorf("summary row has number=%d", row.Number)).
				WithContext("row", row.String())
		}

		average := row.Amount.DivRound(decimal.NewFromInt(row.Number), 16)

		bucketed := *row
		bucketed.TerminalAverageAmountRange = BucketFor(average)
		out[i] = &bucketed
	}
	return out, nil
}
