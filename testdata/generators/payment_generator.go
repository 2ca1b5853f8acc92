package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
)

var (
	cardBrands  = []string{"visa", "master", "jcb", "amex"}
	cardTypes   = []string{"credit", "debit", "prepaid"}
	issuerCodes = []string{"A029", "A029", "A029", "B001", "C113", ""}
	backends    = []string{"backend_a", "backend_b", "backend_c"}
	methods     = []string{"payment01", "payment01", "payment01", "wallet", "bank_transfer", ""}
	categoryIDs = []string{"5411", "5812", "7011", "4111", "5999"}
)

// PaymentGenerator generates payment data and the matching reference tables
type PaymentGenerator struct {
	Count     int
	StartDate time.Time
	EndDate   time.Time
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
	// MissRatio is the share of rows whose lookup keys are absent from the reference tables
	MissRatio float64

	rng *rand.Rand
}

// PaymentTemplate represents one payment row
type PaymentTemplate struct {
	Date               time.Time
	PaymentMethod      string
	CardBrand          string
	CardType           string
	IssuerCode         string
	BackendName        string
	MerchantCategoryID string
	Amount             decimal.Decimal
}

func main() {
	var (
		outputDir = flag.String("output-dir", "generated", "Output directory for the payment and reference CSV files")
		count     = flag.Int("count", 1000, "Number of payments to generate")
		startDate = flag.String("start-date", "2018-10-01", "Start date (YYYY-MM-DD)")
		endDate   = flag.String("end-date", "2018-12-31", "End date (YYYY-MM-DD)")
		minAmount = flag.Float64("min-amount", 1.00, "Minimum payment amount")
		maxAmount = flag.Float64("max-amount", 80000.00, "Maximum payment amount")
		missRatio = flag.Float64("miss-ratio", 0.05, "Share of payments with unknown brands, backends or categories")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "Random seed for reproducible generation")
		pattern   = flag.String("pattern", "random", "Generation pattern: random, month-end, micro")
	)
	flag.Parse()

	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		log.Fatalf("Invalid start date: %v", err)
	}
	end, err := time.Parse("2006-01-02", *endDate)
	if err != nil {
		log.Fatalf("Invalid end date: %v", err)
	}
	if !end.After(start) {
		log.Fatalf("End date %s must be after start date %s", *endDate, *startDate)
	}

	generator := &PaymentGenerator{
		Count:     *count,
		StartDate: start,
		EndDate:   end,
		MinAmount: decimal.NewFromFloat(*minAmount),
		MaxAmount: decimal.NewFromFloat(*maxAmount),
		MissRatio: *missRatio,
		rng:       rand.New(rand.NewSource(*seed)),
	}

	var payments []PaymentTemplate
	switch *pattern {
	case "month-end":
		payments = generator.GenerateMonthEnd()
	case "micro":
		generator.MinAmount = decimal.NewFromFloat(0.01)
		generator.MaxAmount = decimal.NewFromFloat(10.0)
		payments = generator.GenerateRandom()
	default:
		payments = generator.GenerateRandom()
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	if err := generator.WritePayments(filepath.Join(*outputDir, "payments.csv"), payments); err != nil {
		log.Fatalf("Failed to write payments: %v", err)
	}
	if err := WriteReferenceTables(*outputDir); err != nil {
		log.Fatalf("Failed to write reference tables: %v", err)
	}

	fmt.Printf("Generated %d payments in %s\n", len(payments), *outputDir)
	fmt.Printf("Date range: %s to %s\n", start.Format("2006-01-02"), end.Format("2006-01-02"))
	fmt.Printf("Amount range: %.2f to %.2f\n", *minAmount, *maxAmount)
	fmt.Printf("Seed used: %d\n", *seed)
}

func (pg *PaymentGenerator) pick(values []string) string {
	return values[pg.rng.Intn(len(values))]
}

func (pg *PaymentGenerator) amount() decimal.Decimal {
	amountRange := pg.MaxAmount.Sub(pg.MinAmount)
	return decimal.NewFromFloat(pg.rng.Float64()).Mul(amountRange).Add(pg.MinAmount).Round(2)
}

func (pg *PaymentGenerator) payment(date time.Time) PaymentTemplate {
	p := PaymentTemplate{
		Date:               date,
		PaymentMethod:      pg.pick(methods),
		MerchantCategoryID: pg.pick(categoryIDs),
		Amount:             pg.amount(),
	}

	if p.PaymentMethod == "payment01" {
		p.CardBrand = pg.pick(cardBrands)
		p.CardType = pg.pick(cardTypes)
		p.IssuerCode = pg.pick(issuerCodes)
	} else {
		p.BackendName = pg.pick(backends)
	}

	if pg.rng.Float64() < pg.MissRatio {
		switch pg.rng.Intn(3) {
		case 0:
			p.CardBrand = "unknown_brand"
		case 1:
			p.BackendName = "unknown_backend"
		default:
			p.MerchantCategoryID = "0000"
		}
	}

	return p
}

// GenerateRandom spreads payments evenly across the date range
func (pg *PaymentGenerator) GenerateRandom() []PaymentTemplate {
	payments := make([]PaymentTemplate, pg.Count)
	days := int(pg.EndDate.Sub(pg.StartDate).Hours()/24) + 1

	for i := range payments {
		payments[i] = pg.payment(pg.StartDate.AddDate(0, 0, pg.rng.Intn(days)))
	}
	return payments
}

// GenerateMonthEnd concentrates payments in the last five days of each month
func (pg *PaymentGenerator) GenerateMonthEnd() []PaymentTemplate {
	var monthEnds []time.Time
	for month := time.Date(pg.StartDate.Year(), pg.StartDate.Month(), 1, 0, 0, 0, 0, time.UTC); !month.After(pg.EndDate); month = month.AddDate(0, 1, 0) {
		monthEnds = append(monthEnds, month.AddDate(0, 1, -1))
	}

	payments := make([]PaymentTemplate, pg.Count)
	for i := range payments {
		last := monthEnds[pg.rng.Intn(len(monthEnds))]
		payments[i] = pg.payment(last.AddDate(0, 0, -pg.rng.Intn(5)))
	}
	return payments
}

// WritePayments writes payments to a CSV file
func (pg *PaymentGenerator) WritePayments(filename string, payments []PaymentTemplate) error {
	rows := [][]string{{
		"date", "payment_method", "card_brand", "card_type", "card_country_issuer_code",
		"backend_name", "merchant_category_id", "amount",
	}}
	for _, p := range payments {
		rows = append(rows, []string{
			p.Date.Format("2006-01-02"),
			p.PaymentMethod,
			p.CardBrand,
			p.CardType,
			p.IssuerCode,
			p.BackendName,
			p.MerchantCategoryID,
			p.Amount.StringFixed(2),
		})
	}
	return writeCSV(filename, rows)
}

// WriteReferenceTables writes the four reference tables covering every generated key
func WriteReferenceTables(dir string) error {
	transactionTypes := [][]string{{"country", "card_type", "card_brand", "backend_name", "transaction_type_code"}}
	code := 1
	for _, country := range []string{"Local", "Inter"} {
		for _, cardType := range cardTypes {
			for _, brand := range cardBrands {
				transactionTypes = append(transactionTypes, []string{country, cardType, brand, "", fmt.Sprintf("%06d", code)})
				code++
			}
		}
	}

	backendTypes := [][]string{{"backend_name", "transaction_type_code"}}
	for i, backend := range backends {
		backendTypes = append(backendTypes, []string{backend, fmt.Sprintf("%06d", 500+i)})
	}

	businessTypes := [][]string{{"card_brand", "merchant_business_type_code"}}
	for i, brand := range cardBrands {
		businessTypes = append(businessTypes, []string{brand, fmt.Sprintf("MBT%02d", i+1)})
	}

	categories := [][]string{{"id", "code"}}
	for _, id := range categoryIDs {
		categories = append(categories, []string{id, id})
	}

	tables := map[string][][]string{
		"transaction_types.csv":         transactionTypes,
		"transaction_types_backend.csv": backendTypes,
		"merchant_business_types.csv":   businessTypes,
		"mcc.csv":                       categories,
	}
	for name, rows := range tables {
		if err := writeCSV(filepath.Join(dir, name), rows); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func writeCSV(filename string, rows [][]string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return file.Close()
}
