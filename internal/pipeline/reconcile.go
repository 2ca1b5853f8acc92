package pipeline

import (
	"fmt"

	"github.com/shopspring/decimal"

	"golang-regulatory-report/internal/models"
	"golang-regulatory-report/pkg/errors"
)

// DataQuality counts records whose lookups left a reported field null. These
// are accepted outcomes, reported so they are never hidden.
type DataQuality struct {
	NullTransactionType      int64 `json:"null_transaction_type"`
	NullMerchantBusinessType int64 `json:"null_merchant_business_type"`
	NullMerchantCategoryCode int64 `json:"null_merchant_category_code"`
}

// Reconciliation is the outcome of comparing the summary against the input
type Reconciliation struct {
	InputTotal  decimal.Decimal `json:"input_total"`
	OutputTotal decimal.Decimal `json:"output_total"`
	Difference  decimal.Decimal `json:"difference"`
	Tolerance   decimal.Decimal `json:"tolerance"`
	InputCount  int64           `json:"input_count"`
	OutputCount int64           `json:"output_count"`
	Passed      bool            `json:"passed"`
	DataQuality DataQuality     `json:"data_quality"`
}

// Reconcile checks that the summary rows account for every input record and
// every unit of amount. A mismatch returns the filled Reconciliation together
// with a reconciliation error.
func Reconcile(input []*models.TransactionRecord, rows []*models.SummaryRow, tolerance decimal.Decimal) (*Reconciliation, error) {
	rec := &Reconciliation{
		InputTotal:  decimal.Zero,
		OutputTotal: decimal.Zero,
		Tolerance:   tolerance,
		InputCount:  int64(len(input)),
	}

	for _, r := range input {
		rec.InputTotal = rec.InputTotal.Add(r.Amount)
	}

	for _, row := range rows {
		rec.OutputTotal = rec.OutputTotal.Add(row.Amount)
		rec.OutputCount += row.Number

		if row.TransactionType.IsNull() {
			rec.DataQuality.NullTransactionType += row.Number
		}
		if row.MerchantBusinessType.IsNull() {
			rec.DataQuality.NullMerchantBusinessType += row.Number
		}
		if row.MerchantCategoryCode.IsNull() {
			rec.DataQuality.NullMerchantCategoryCode += row.Number
		}
	}

	rec.Difference = rec.OutputTotal.Sub(rec.InputTotal)
	amountsMatch := models.CompareAmountsWithTolerance(rec.InputTotal, rec.OutputTotal, tolerance)
	countsMatch := rec.InputCount == rec.OutputCount
	rec.Passed = amountsMatch && countsMatch

	if rec.Passed {
		return rec, nil
	}

	var cause error
	if !amountsMatch {
		cause = fmt.Errorf("summary amount %s differs from input amount %s by %s",
			rec.OutputTotal.StringFixed(2), rec.InputTotal.StringFixed(2), rec.Difference.String())
	} else {
		cause = fmt.Errorf("summary rows count %d records, input holds %d", rec.OutputCount, rec.InputCount)
	}

	return rec, errors.ReconciliationError(errors.CodeDataInconsistent, "amount reconciliation", cause).
		WithContext("input_total", rec.InputTotal.String()).
		WithContext("output_total", rec.OutputTotal.String()).
		WithContext("difference", rec.Difference.String()).
		WithContext("input_count", rec.InputCount).
		WithContext("output_count", rec.OutputCount)
}
