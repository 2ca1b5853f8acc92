package pipeline

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-regulatory-report/internal/lookup"
	"golang-regulatory-report/internal/models"
	"golang-regulatory-report/pkg/errors"
)

var null = models.NullString{}

func s(v string) models.NullString { return models.Str(v) }

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func date(y, m, d int) civil.Date {
	return civil.Date{Year: y, Month: time.Month(m), Day: d}
}

func testTables(t *testing.T) *lookup.Tables {
	t.Helper()
	tables, err := lookup.NewTables(lookup.Inputs{
		TransactionTypes: []models.TransactionTypeRow{
			{Country: s("Local"), CardType: s("credit"), CardBrand: s("visa"), TransactionTypeCode: s("010101")},
			{Country: s("Inter"), CardType: s("credit"), CardBrand: s("visa"), TransactionTypeCode: s("020202")},
		},
		TransactionTypesBackend: []models.TransactionTypeBackendRow{
			{BackendName: s("backend_x"), TransactionTypeCode: s("040404")},
		},
		MerchantBusinessTypes: []models.MerchantBusinessTypeRow{
			{CardBrand: s("visa"), MerchantBusinessTypeCode: s("MBT01")},
		},
		MCC: []models.MCCRow{
			{ID: s("5411"), Code: s("5411")},
			{ID: s("7011"), Code: null},
		},
	}, nil)
	require.NoError(t, err)
	return tables
}

func cardPayment(d civil.Date, amount string) *models.TransactionRecord {
	return &models.TransactionRecord{
		Date:                  d,
		PaymentMethod:         s("payment01"),
		CardBrand:             s("visa"),
		CardType:              s("credit"),
		CardCountryIssuerCode: s("A029"),
		MerchantCategoryID:    s("5411"),
		Amount:                dec(amount),
	}
}

func backendPayment(d civil.Date, backend models.NullString, amount string) *models.TransactionRecord {
	return &models.TransactionRecord{
		Date:          d,
		PaymentMethod: s("wallet"),
		BackendName:   backend,
		Amount:        dec(amount),
	}
}

func TestRules_Validate(t *testing.T) {
	assert.NoError(t, DefaultRules().Validate())

	rules := DefaultRules()
	rules.FICode = ""
	err := rules.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FICode is required")

	rules = DefaultRules()
	rules.DefaultTransactionType = "09x"
	err = rules.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be numeric")
}

func TestDerive(t *testing.T) {
	rules := DefaultRules()

	tests := []struct {
		name        string
		record      *models.TransactionRecord
		wantSST     models.ServiceSystemType
		wantCountry models.Country
		wantDate    civil.Date
	}{
		{
			name:        "primary method with domestic issuer",
			record:      cardPayment(date(2018, 12, 5), "300"),
			wantSST:     models.ServiceSystemCPF,
			wantCountry: models.CountryLocal,
			wantDate:    date(2018, 12, 31),
		},
		{
			name: "foreign issuer",
			record: &models.TransactionRecord{
				Date: date(2020, 2, 10), PaymentMethod: s("payment01"), CardCountryIssuerCode: s("B001"), Amount: dec("1"),
			},
			wantSST:     models.ServiceSystemCPF,
			wantCountry: models.CountryInter,
			wantDate:    date(2020, 2, 29),
		},
		{
			name:        "null issuer and null method",
			record:      &models.TransactionRecord{Date: date(2019, 4, 1), Amount: dec("1")},
			wantSST:     models.ServiceSystemOTH,
			wantCountry: models.CountryInter,
			wantDate:    date(2019, 4, 30),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Derive(rules, tt.record)
			assert.Equal(t, "42", got.FICode)
			assert.Equal(t, tt.wantSST, got.ServiceSystemType)
			assert.Equal(t, tt.wantCountry, got.Country)
			assert.Equal(t, tt.wantDate, got.Date)
			assert.True(t, got.TransactionType.IsNull())
			assert.True(t, got.MerchantBusinessType.IsNull())
			assert.True(t, got.MerchantCategoryCode.IsNull())
			assert.True(t, got.Amount.Equal(tt.record.Amount))
		})
	}
}

func TestPartition_IsLossless(t *testing.T) {
	rules := DefaultRules()
	d := date(2021, 1, 15)
	records := DeriveAll(rules, []*models.TransactionRecord{
		cardPayment(d, "1"),
		backendPayment(d, s("backend_x"), "2"),
		{Date: d, Amount: dec("3")},
		cardPayment(d, "4"),
	})

	card, backend := Partition(rules, records)
	assert.Len(t, card, 2)
	assert.Len(t, backend, 2)
	assert.Equal(t, len(records), len(card)+len(backend))
	for _, r := range card {
		assert.Equal(t, models.ServiceSystemCPF, r.ServiceSystemType)
	}
	for _, r := range backend {
		assert.Equal(t, models.ServiceSystemOTH, r.ServiceSystemType)
	}
}

func TestCardResolver(t *testing.T) {
	rules := DefaultRules()
	resolver := &CardResolver{Rules: rules, Tables: testTables(t)}
	d := date(2021, 3, 3)

	matched := cardPayment(d, "10")
	foreign := cardPayment(d, "10")
	foreign.CardCountryIssuerCode = s("B001")
	missingType := cardPayment(d, "10")
	missingType.CardType = null
	missingIssuer := cardPayment(d, "10")
	missingIssuer.CardCountryIssuerCode = null
	unknown := cardPayment(d, "10")
	unknown.CardType = s("prepaid")

	out, stats := resolver.Resolve(DeriveAll(rules, []*models.TransactionRecord{matched, foreign, missingType, missingIssuer, unknown}))
	require.Len(t, out, 5)

	assert.Equal(t, s("010101"), out[0].TransactionType)
	assert.Equal(t, s("020202"), out[1].TransactionType)
	assert.Equal(t, s("099999"), out[2].TransactionType)
	assert.Equal(t, s("099999"), out[3].TransactionType)
	assert.True(t, out[4].TransactionType.IsNull())

	assert.Equal(t, PathStats{Records: 5, Matched: 2, Defaulted: 2, Unresolved: 1}, stats)
	assert.Equal(t, stats.Records, stats.Matched+stats.Defaulted+stats.Unresolved)
}

func TestBackendResolver(t *testing.T) {
	rules := DefaultRules()
	resolver := &BackendResolver{Tables: testTables(t)}
	d := date(2021, 3, 3)

	out, stats := resolver.Resolve(DeriveAll(rules, []*models.TransactionRecord{
		backendPayment(d, s("backend_x"), "1"),
		backendPayment(d, s("backend_unknown"), "1"),
		backendPayment(d, null, "1"),
	}))
	require.Len(t, out, 3)

	assert.Equal(t, s("040404"), out[0].TransactionType)
	assert.True(t, out[1].TransactionType.IsNull())
	assert.True(t, out[2].TransactionType.IsNull())
	assert.Equal(t, PathStats{Records: 3, Matched: 1, Unresolved: 2}, stats)
}

func TestResolveTransactionTypes(t *testing.T) {
	rules := DefaultRules()
	d := date(2021, 5, 9)
	records := DeriveAll(rules, []*models.TransactionRecord{
		backendPayment(d, s("backend_x"), "1"),
		cardPayment(d, "2"),
	})

	out, stats, err := ResolveTransactionTypes(context.Background(), rules, testTables(t), records)
	require.NoError(t, err)
	require.Len(t, out, 2)

	// card path first
	assert.Equal(t, models.ServiceSystemCPF, out[0].ServiceSystemType)
	assert.Equal(t, s("010101"), out[0].TransactionType)
	assert.Equal(t, s("040404"), out[1].TransactionType)
	assert.Equal(t, 1, stats.Card.Records)
	assert.Equal(t, 1, stats.Backend.Records)

	// input untouched
	assert.True(t, records[0].TransactionType.IsNull())
}

func TestResolveTransactionTypes_Cancelled(t *testing.T) {
	rules := DefaultRules()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := ResolveTransactionTypes(ctx, rules, testTables(t),
		DeriveAll(rules, []*models.TransactionRecord{cardPayment(date(2021, 1, 1), "1")}))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryInternal))
}

func TestEnrichMerchants(t *testing.T) {
	rules := DefaultRules()
	tables := testTables(t)
	d := date(2022, 7, 1)

	cpf := cardPayment(d, "1")
	cpfNullID := cardPayment(d, "1")
	cpfNullID.MerchantCategoryID = null
	cpfNullCode := cardPayment(d, "1")
	cpfNullCode.MerchantCategoryID = s("7011")
	cpfUnknownID := cardPayment(d, "1")
	cpfUnknownID.MerchantCategoryID = s("0000")
	oth := backendPayment(d, s("backend_x"), "1")
	oth.CardBrand = s("visa")
	othWithID := backendPayment(d, s("backend_x"), "1")
	othWithID.MerchantCategoryID = s("5411")

	out, stats := EnrichMerchants(rules, tables, DeriveAll(rules, []*models.TransactionRecord{
		cpf, cpfNullID, cpfNullCode, cpfUnknownID, oth, othWithID,
	}))
	require.Len(t, out, 6)

	assert.Equal(t, s("MBT01"), out[0].MerchantBusinessType)
	assert.Equal(t, s("5411"), out[0].MerchantCategoryCode)
	assert.Equal(t, s("9999"), out[1].MerchantCategoryCode)
	assert.Equal(t, s("9999"), out[2].MerchantCategoryCode)
	assert.Equal(t, s("9999"), out[3].MerchantCategoryCode)

	// OTH never has a business type and keeps null category codes
	assert.True(t, out[4].MerchantBusinessType.IsNull())
	assert.True(t, out[4].MerchantCategoryCode.IsNull())
	assert.Equal(t, s("5411"), out[5].MerchantCategoryCode)

	assert.Equal(t, 6, stats.Records)
	assert.Equal(t, 4, stats.BusinessTypeMatched)
	assert.Equal(t, 2, stats.OTHWithoutBusinessType)
	assert.Equal(t, 3, stats.CategoryCodeDefaulted)
	assert.Equal(t, 1, stats.OTHWithoutCategoryCode)
}

func TestAggregate(t *testing.T) {
	d := date(2018, 12, 31)
	base := models.EnrichedRecord{FICode: "42", Date: d, ServiceSystemType: models.ServiceSystemCPF, TransactionType: s("010101")}

	a, b, c, n := base, base, base, base
	a.Amount = dec("600")
	b.Amount = dec("1500")
	c.Amount = dec("5")
	c.Date = date(2018, 11, 30)
	n.TransactionType = null
	n.Amount = dec("7")

	rows := Aggregate([]models.EnrichedRecord{a, b, c, n})
	require.Len(t, rows, 3)

	// sorted by date, then nulls first
	assert.Equal(t, date(2018, 11, 30), rows[0].Date)
	assert.True(t, rows[1].TransactionType.IsNull())
	assert.Equal(t, int64(1), rows[1].Number)
	assert.Equal(t, "2100.00", rows[2].Amount.StringFixed(2))
	assert.Equal(t, int64(2), rows[2].Number)
}

func TestBucketFor_Boundaries(t *testing.T) {
	tests := []struct {
		average string
		want    string
	}{
		{"0", "94560000001"},
		{"500", "94560000001"},
		{"500.01", "94560000002"},
		{"1000", "94560000002"},
		{"2000", "94560000003"},
		{"2000.0000001", "94560000004"},
		{"5000", "94560000004"},
		{"10000", "94560000005"},
		{"30000", "94560000006"},
		{"30000.01", "94560000007"},
		{"-10", "94560000001"},
	}

	for _, tt := range tests {
		t.Run(tt.average, func(t *testing.T) {
			assert.Equal(t, tt.want, BucketFor(dec(tt.average)))
		})
	}
}

func TestBucketize(t *testing.T) {
	rows := []*models.SummaryRow{
		{Amount: dec("2100"), Number: 2},
		{Amount: dec("1000.02"), Number: 2},
	}

	out, err := Bucketize(rows)
	require.NoError(t, err)
	assert.Equal(t, "94560000003", out[0].TerminalAverageAmountRange)
	assert.Equal(t, "94560000002", out[1].TerminalAverageAmountRange)
	assert.Empty(t, rows[0].TerminalAverageAmountRange)

	_, err = Bucketize([]*models.SummaryRow{{Amount: dec("1"), Number: 0}})
	require.Error(t, err)
	re, ok := errors.AsReportError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeInvariantViolation, re.Code)
}

func TestReconcile(t *testing.T) {
	input := []*models.TransactionRecord{
		{Amount: dec("600")},
		{Amount: dec("1500")},
	}

	t.Run("balanced", func(t *testing.T) {
		rec, err := Reconcile(input, []*models.SummaryRow{{Amount: dec("2100.00"), Number: 2}}, decimal.Zero)
		require.NoError(t, err)
		assert.True(t, rec.Passed)
		assert.True(t, rec.Difference.IsZero())
		assert.Equal(t, int64(2), rec.DataQuality.NullTransactionType)
	})

	t.Run("amount mismatch", func(t *testing.T) {
		rec, err := Reconcile(input, []*models.SummaryRow{{Amount: dec("2099.99"), Number: 2}}, decimal.Zero)
		require.Error(t, err)
		require.NotNil(t, rec)
		assert.False(t, rec.Passed)
		assert.Equal(t, "-0.01", rec.Difference.String())
		assert.True(t, errors.IsCategory(err, errors.CategoryReconciliation))
	})

	t.Run("within tolerance", func(t *testing.T) {
		rec, err := Reconcile(input, []*models.SummaryRow{{Amount: dec("2099.99"), Number: 2}}, dec("0.01"))
		require.NoError(t, err)
		assert.True(t, rec.Passed)
	})

	t.Run("count mismatch", func(t *testing.T) {
		rec, err := Reconcile(input, []*models.SummaryRow{{Amount: dec("2100"), Number: 3}}, decimal.Zero)
		require.Error(t, err)
		assert.False(t, rec.Passed)
		assert.Contains(t, err.Error(), "count 3 records")
	})
}

func TestPipeline_Execute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state := &State{Tables: testTables(t)}
	err := NewReportPipeline(DefaultRules(), decimal.Zero).Execute(ctx, state)
	require.Error(t, err)
	re, ok := errors.AsReportError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeCancelled, re.Code)
	assert.Empty(t, state.Timings)
}

func TestService_Run(t *testing.T) {
	service, err := NewService(nil)
	require.NoError(t, err)

	t.Run("single domestic card payment", func(t *testing.T) {
		result, err := service.Run(context.Background(),
			[]*models.TransactionRecord{cardPayment(date(2018, 12, 5), "300")}, testTables(t))
		require.NoError(t, err)
		require.Len(t, result.Rows, 1)

		row := result.Rows[0]
		assert.Equal(t, "42", row.FICode)
		assert.Equal(t, date(2018, 12, 31), row.Date)
		assert.Equal(t, models.ServiceSystemCPF, row.ServiceSystemType)
		assert.Equal(t, s("010101"), row.TransactionType)
		assert.Equal(t, s("MBT01"), row.MerchantBusinessType)
		assert.Equal(t, s("5411"), row.MerchantCategoryCode)
		assert.Equal(t, "300.00", row.Amount.StringFixed(2))
		assert.Equal(t, int64(1), row.Number)
		assert.Equal(t, "94560000001", row.TerminalAverageAmountRange)

		assert.NotEmpty(t, result.RunID)
		assert.True(t, result.Reconciliation.Passed)
		assert.Len(t, result.Stages, 6)
		assert.Equal(t, 1, result.Stats.Dates)
	})

	t.Run("two payments in one group", func(t *testing.T) {
		result, err := service.Run(context.Background(), []*models.TransactionRecord{
			cardPayment(date(2018, 12, 5), "600"),
			cardPayment(date(2018, 12, 20), "1500"),
		}, testTables(t))
		require.NoError(t, err)
		require.Len(t, result.Rows, 1)
		assert.Equal(t, "2100.00", result.Rows[0].Amount.StringFixed(2))
		assert.Equal(t, int64(2), result.Rows[0].Number)
		assert.Equal(t, "94560000003", result.Rows[0].TerminalAverageAmountRange)
		assert.Equal(t, 1, result.Stats.Buckets["94560000003"])
	})

	t.Run("unresolved backend stays null", func(t *testing.T) {
		result, err := service.Run(context.Background(), []*models.TransactionRecord{
			backendPayment(date(2019, 1, 2), s("backend_unknown"), "12.50"),
			cardPayment(date(2019, 2, 2), "3"),
		}, testTables(t))
		require.NoError(t, err)
		require.Len(t, result.Rows, 2)
		assert.True(t, result.Rows[0].TransactionType.IsNull())
		assert.Equal(t, int64(1), result.Reconciliation.DataQuality.NullTransactionType)
		assert.Equal(t, 2, result.Stats.Dates)
	})

	t.Run("missing tables", func(t *testing.T) {
		_, err := service.Run(context.Background(), nil, nil)
		assert.Error(t, err)
	})
}

// dropFirstRowStep loses one summary row between bucketing and reconciliation
type dropFirstRowStep struct{}

func (dropFirstRowStep) Name() string { return "drop_first_row" }

func (dropFirstRowStep) Execute(ctx context.Context, state *State) error {
	if len(state.Bucketed) > 0 {
		state.Bucketed = state.Bucketed[1:]
	}
	return nil
}

func TestService_Run_ReconciliationFailure(t *testing.T) {
	service, err := NewService(nil)
	require.NoError(t, err)

	rules := DefaultRules()
	service.WithPipeline(NewPipeline(
		&DeriveStep{Rules: rules},
		&ResolveStep{Rules: rules},
		&EnrichStep{Rules: rules},
		&AggregateStep{},
		&BucketizeStep{},
		dropFirstRowStep{},
		&ReconcileStep{Tolerance: decimal.Zero},
	))

	result, err := service.Run(context.Background(), []*models.TransactionRecord{
		cardPayment(date(2018, 11, 5), "12"),
		cardPayment(date(2018, 12, 5), "300"),
	}, testTables(t))

	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryReconciliation))

	require.NotNil(t, result)
	require.NotNil(t, result.Reconciliation)
	assert.False(t, result.Reconciliation.Passed)
	assert.Equal(t, int64(2), result.Reconciliation.InputCount)
	assert.Equal(t, int64(1), result.Reconciliation.OutputCount)
	assert.Len(t, result.Rows, 1)
	assert.Equal(t, 1, result.Stats.SummaryRows)
}

func TestService_Run_ReportsReferenceConflicts(t *testing.T) {
	tables, err := lookup.NewTables(lookup.Inputs{
		TransactionTypes: []models.TransactionTypeRow{
			{Country: s("Local"), CardType: s("credit"), CardBrand: s("visa"), TransactionTypeCode: s("1")},
			{Country: s("Local"), CardType: s("credit"), CardBrand: s("visa"), TransactionTypeCode: s("2")},
		},
	}, nil)
	require.NoError(t, err)

	service, err := NewService(nil)
	require.NoError(t, err)

	result, err := service.Run(context.Background(),
		[]*models.TransactionRecord{cardPayment(date(2018, 12, 5), "10")}, tables)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	assert.Equal(t, s("1"), result.Rows[0].TransactionType)
	assert.Equal(t, 1, result.Stats.Reference.TransactionTypes.Conflicts)
	assert.Equal(t, 1, result.Stats.Reference.TotalConflicts())
	assert.Zero(t, result.Stats.Reference.MCC.Conflicts)
}

func TestNewService_InvalidConfig(t *testing.T) {
	config := DefaultConfig()
	config.AmountTolerance = dec("-1")
	_, err := NewService(config)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	config = DefaultConfig()
	config.Rules.PrimaryPaymentMethod = ""
	_, err = NewService(config)
	assert.Error(t, err)
}
