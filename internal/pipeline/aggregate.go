package pipeline

import (
	"sort"

	"github.com/shopspring/decimal"

	"golang-regulatory-report/internal/models"
)

// Aggregate groups records by their summary key, summing amount and counting
// members. Null key fields group with null. Rows come back sorted by key.
func Aggregate(records []models.EnrichedRecord) []*models.SummaryRow {
	groups := make(map[models.SummaryKey]*models.SummaryRow)

	for i := range records {
		key := records[i].Key()
		row, ok := groups[key]
		if !ok {
			row = &models.SummaryRow{SummaryKey: key, Amount: decimal.Zero}
			groups[key] = row
		}
		row.Amount = row.Amount.Add(records[i].Amount)
		row.Number++
	}

	rows := make([]*models.SummaryRow, 0, len(groups))
	for _, row := range groups {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].SummaryKey.Compare(rows[j].SummaryKey) < 0
	})
	return rows
}
