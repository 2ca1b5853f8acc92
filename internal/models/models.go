package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// NullString is a text cell that may be absent. An empty or whitespace-only
// CSV cell is read as null.
type NullString struct {
	Value string
	Valid bool
}

// NewNullString trims s and returns a valid NullString unless the result is empty
func NewNullString(s string) NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return NullString{}
	}
	return NullString{Value: s, Valid: true}
}

// Str returns a valid NullString holding s as-is
func Str(s string) NullString {
	return NullString{Value: s, Valid: true}
}

// IsNull reports whether the value is absent
func (n NullString) IsNull() bool {
	return !n.Valid
}

// Is reports whether the value is present and equal to s. Null never equals anything.
func (n NullString) Is(s string) bool {
	return n.Valid && n.Value == s
}

// String returns the value, or the empty string for null
func (n NullString) String() string {
	if !n.Valid {
		return ""
	}
	return n.Value
}

// Compare orders null before any value, values lexically
func (n NullString) Compare(other NullString) int {
	switch {
	case !n.Valid && !other.Valid:
		return 0
	case !n.Valid:
		return -1
	case !other.Valid:
		return 1
	default:
		return strings.Compare(n.Value, other.Value)
	}
}

// MarshalJSON writes null or the string value
func (n NullString) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// ServiceSystemType classifies a payment by its payment method
type ServiceSystemType string

const (
	// ServiceSystemCPF marks payments made with the primary payment method
	ServiceSystemCPF ServiceSystemType = "CPF"
	// ServiceSystemOTH marks every other payment
	ServiceSystemOTH ServiceSystemType = "OTH"
)

// String returns the string representation of ServiceSystemType
func (s ServiceSystemType) String() string {
	return string(s)
}

// Country classifies the card issuer as domestic or international
type Country string

const (
	CountryLocal Country = "Local"
	CountryInter Country = "Inter"
)

// String returns the string representation of Country
func (c Country) String() string {
	return string(c)
}

// TransactionRecord is one raw payment event as read from the payment file
type TransactionRecord struct {
	Date                  civil.Date      `json:"date"`
	PaymentMethod         NullString      `json:"payment_method"`
	CardBrand             NullString      `json:"card_brand"`
	CardType              NullString      `json:"card_type"`
	CardCountryIssuerCode NullString      `json:"card_country_issuer_code"`
	BackendName           NullString      `json:"backend_name"`
	MerchantCategoryID    NullString      `json:"merchant_category_id"`
	Amount                decimal.Decimal `json:"amount"`
	Line                  int             `json:"line,omitempty"`
}

// Validate performs basic validation on the TransactionRecord
func (r *TransactionRecord) Validate() error {
	if !r.Date.IsValid() {
		return fmt.Errorf("transaction date is not a valid calendar date: %s", r.Date)
	}
	return nil
}

// String returns a string representation of the TransactionRecord
func (r *TransactionRecord) String() string {
	return fmt.Sprintf("TransactionRecord{Date: %s, PaymentMethod: %s, Brand: %s, Type: %s, Issuer: %s, Amount: %s}",
		r.Date, r.PaymentMethod, r.CardBrand, r.CardType, r.CardCountryIssuerCode, r.Amount.String())
}

// EnrichedRecord is the fixed column set carried through the pipeline. Right
// after derivation the lookup fields (TransactionType, MerchantBusinessType,
// MerchantCategoryCode) are null; each later stage fills exactly its own fields
// on a copy.
type EnrichedRecord struct {
	FICode                string            `json:"fi_code"`
	Date                  civil.Date        `json:"date"`
	ServiceSystemType     ServiceSystemType `json:"service_system_type"`
	Country               Country           `json:"country"`
	PaymentMethod         NullString        `json:"payment_method"`
	CardBrand             NullString        `json:"card_brand"`
	CardType              NullString        `json:"card_type"`
	CardCountryIssuerCode NullString        `json:"card_country_issuer_code"`
	BackendName           NullString        `json:"backend_name"`
	TransactionType       NullString        `json:"transaction_type"`
	MerchantCategoryID    NullString        `json:"merchant_category_id"`
	MerchantBusinessType  NullString        `json:"merchant_business_type"`
	MerchantCategoryCode  NullString        `json:"merchant_category_code"`
	Amount                decimal.Decimal   `json:"amount"`
}

// Key returns the aggregation key of the record
func (r *EnrichedRecord) Key() SummaryKey {
	return SummaryKey{
		FICode:               r.FICode,
		Date:                 r.Date,
		ServiceSystemType:    r.ServiceSystemType,
		TransactionType:      r.TransactionType,
		MerchantBusinessType: r.MerchantBusinessType,
		MerchantCategoryCode: r.MerchantCategoryCode,
	}
}

// TransactionTypeRow maps (country, card type, card brand) to a transaction type code
type TransactionTypeRow struct {
	Country             NullString
	CardType            NullString
	CardBrand           NullString
	BackendName         NullString
	TransactionTypeCode NullString
}

// TransactionTypeBackendRow maps a backend name to a transaction type code
type TransactionTypeBackendRow struct {
	BackendName         NullString
	TransactionTypeCode NullString
}

// MerchantBusinessTypeRow maps a card brand to a merchant business type code.
// Every row applies to the CPF service system type only.
type MerchantBusinessTypeRow struct {
	CardBrand                NullString
	MerchantBusinessTypeCode NullString
}

// MCCRow maps a merchant category id to a merchant category code
type MCCRow struct {
	ID   NullString
	Code NullString
}

// SummaryKey is the aggregation key. It is comparable and null-safe: two
// null fields compare equal.
type SummaryKey struct {
	FICode               string            `json:"fi_code"`
	Date                 civil.Date        `json:"date"`
	ServiceSystemType    ServiceSystemType `json:"service_system_type"`
	TransactionType      NullString        `json:"transaction_type"`
	MerchantBusinessType NullString        `json:"merchant_business_type"`
	MerchantCategoryCode NullString        `json:"merchant_category_code"`
}

// Compare orders keys by date, then field by field in column order
func (k SummaryKey) Compare(other SummaryKey) int {
	if c := k.Date.Compare(other.Date); c != 0 {
		return c
	}
	if c := strings.Compare(k.FICode, other.FICode); c != 0 {
		return c
	}
	if c := strings.Compare(string(k.ServiceSystemType), string(other.ServiceSystemType)); c != 0 {
		return c
	}
	if c := k.TransactionType.Compare(other.TransactionType); c != 0 {
		return c
	}
	if c := k.MerchantBusinessType.Compare(other.MerchantBusinessType); c != 0 {
		return c
	}
	return k.MerchantCategoryCode.Compare(other.MerchantCategoryCode)
}

// SummaryRow is one aggregated output row
type SummaryRow struct {
	SummaryKey
	Amount                     decimal.Decimal `json:"amount"`
	Number                     int64           `json:"number"`
	TerminalAverageAmountRange string          `json:"terminal_average_amount_range"`
}

// String returns a string representation of the SummaryRow
func (r *SummaryRow) String() string {
	return fmt.Sprintf("SummaryRow{Date: %s, SST: %s, TT: %s, MBT: %s, MCC: %s, Amount: %s, Number: %d, Range: %s}",
		r.Date, r.ServiceSystemType, r.TransactionType, r.MerchantBusinessType, r.MerchantCategoryCode,
		r.Amount.StringFixed(2), r.Number, r.TerminalAverageAmountRange)
}

// ParseDecimalFromString parses a decimal value from string with validation
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	// Remove common currency symbols and thousand separators
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// CompareAmountsWithTolerance compares two amounts within a tolerance
func CompareAmountsWithTolerance(a, b, tolerance decimal.Decimal) bool {
	diff := a.Sub(b).Abs()
	return diff.LessThanOrEqual(tolerance)
}

// ParseTimeWithFormats attempts to parse time from string using multiple common formats
func ParseTimeWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	formats := []string{
		"2006-01-02",
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006/01/02",
		"01/02/2006",
		"01/02/2006 15:04:05",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}

// ParseDate parses a calendar date, discarding any time-of-day component
func ParseDate(s string) (civil.Date, error) {
	t, err := ParseTimeWithFormats(s)
	if err != nil {
		return civil.Date{}, err
	}
	return civil.DateOf(t), nil
}

// LastDayOfMonth returns the last calendar day of the month containing d
func LastDayOfMonth(d civil.Date) civil.Date {
	// day 0 of the next month normalises to the last day of this one
	return civil.DateOf(time.Date(d.Year, d.Month+1, 0, 0, 0, 0, 0, time.UTC))
}

// CreateTransactionRecordFromCSV creates a TransactionRecord from CSV field values
func CreateTransactionRecordFromCSV(dateStr, paymentMethod, cardBrand, cardType, issuer, backend, mccID, amountStr string) (*TransactionRecord, error) {
	date, err := ParseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("invalid date in CSV: %w", err)
	}

	amount, err := ParseDecimalFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("invalid amount in CSV: %w", err)
	}

	record := &TransactionRecord{
		Date:                  date,
		PaymentMethod:         NewNullString(paymentMethod),
		CardBrand:             NewNullString(cardBrand),
		CardType:              NewNullString(cardType),
		CardCountryIssuerCode: NewNullString(issuer),
		BackendName:           NewNullString(backend),
		MerchantCategoryID:    NewNullString(mccID),
		Amount:                amount,
	}

	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transaction data: %w", err)
	}

	return record, nil
}
