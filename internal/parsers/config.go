package parsers

import (
	"fmt"
	"strings"
)

// PaymentParserConfig holds configuration for parsing the payment data file
type PaymentParserConfig struct {
	DateColumn               string            `json:"date_column" mapstructure:"date_column"`
	PaymentMethodColumn      string            `json:"payment_method_column" mapstructure:"payment_method_column"`
	CardBrandColumn          string            `json:"card_brand_column" mapstructure:"card_brand_column"`
	CardTypeColumn           string            `json:"card_type_column" mapstructure:"card_type_column"`
	IssuerCodeColumn         string            `json:"card_country_issuer_code_column" mapstructure:"card_country_issuer_code_column"`
	BackendNameColumn        string            `json:"backend_name_column" mapstructure:"backend_name_column"`
	MerchantCategoryIDColumn string            `json:"merchant_category_id_column" mapstructure:"merchant_category_id_column"`
	AmountColumn             string            `json:"amount_column" mapstructure:"amount_column"`
	HasHeader                bool              `json:"has_header" mapstructure:"has_header"`
	Delimiter                rune              `json:"delimiter" mapstructure:"delimiter"`
	ColumnAliases            map[string]string `json:"column_aliases,omitempty" mapstructure:"column_aliases"`

	// AllowInvalidRows excludes rows with an unparseable date or amount
	// instead of failing the whole file.
	AllowInvalidRows bool `json:"allow_invalid_rows" mapstructure:"allow_invalid_rows"`
}

// Validate checks if the payment parser configuration is valid
func (c *PaymentParserConfig) Validate() error {
	columns := map[string]string{
		"date column":                     c.DateColumn,
		"payment method column":           c.PaymentMethodColumn,
		"card brand column":               c.CardBrandColumn,
		"card type column":                c.CardTypeColumn,
		"card country issuer code column": c.IssuerCodeColumn,
		"backend name column":             c.BackendNameColumn,
		"merchant category id column":     c.MerchantCategoryIDColumn,
		"amount column":                   c.AmountColumn,
	}
	for name, value := range columns {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
	}

	if c.Delimiter == 0 || c.Delimiter == '\n' || c.Delimiter == '\r' || c.Delimiter == '"' {
		return fmt.Errorf("invalid delimiter %q", c.Delimiter)
	}

	return nil
}

// GetColumnName returns the actual column name, checking aliases first
func (c *PaymentParserConfig) GetColumnName(standardName string) string {
	if alias, exists := c.ColumnAliases[standardName]; exists {
		return alias
	}

	switch standardName {
	case "date":
		return c.DateColumn
	case "payment_method":
		return c.PaymentMethodColumn
	case "card_brand":
		return c.CardBrandColumn
	case "card_type":
		return c.CardTypeColumn
	case "card_country_issuer_code":
		return c.IssuerCodeColumn
	case "backend_name":
		return c.BackendNameColumn
	case "merchant_category_id":
		return c.MerchantCategoryIDColumn
	case "amount":
		return c.AmountColumn
	default:
		return standardName
	}
}

// DefaultPaymentParserConfig returns a configuration with standard defaults
func DefaultPaymentParserConfig() *PaymentParserConfig {
	return &PaymentParserConfig{
		DateColumn:               "date",
		PaymentMethodColumn:      "payment_method",
		CardBrandColumn:          "card_brand",
		CardTypeColumn:           "card_type",
		IssuerCodeColumn:         "card_country_issuer_code",
		BackendNameColumn:        "backend_name",
		MerchantCategoryIDColumn: "merchant_category_id",
		AmountColumn:             "amount",
		HasHeader:                true,
		Delimiter:                ',',
		ColumnAliases:            make(map[string]string),
	}
}

// ReferenceTableConfig describes the layout of one reference table file
type ReferenceTableConfig struct {
	Name            string            `json:"name"`
	RequiredColumns []string          `json:"required_columns"`
	OptionalColumns []string          `json:"optional_columns,omitempty"`
	HasHeader       bool              `json:"has_header"`
	Delimiter       rune              `json:"delimiter"`
	ColumnAliases   map[string]string `json:"column_aliases,omitempty"`
	Description     string            `json:"description,omitempty"`
}

// Validate checks if the reference table configuration is valid
func (rc *ReferenceTableConfig) Validate() error {
	if strings.TrimSpace(rc.Name) == "" {
		return fmt.Errorf("reference table name cannot be empty")
	}

	if len(rc.RequiredColumns) == 0 {
		return fmt.Errorf("reference table %s must declare at least one required column", rc.Name)
	}

	for _, column := range rc.RequiredColumns {
		if strings.TrimSpace(column) == "" {
			return fmt.Errorf("reference table %s has an empty column name", rc.Name)
		}
	}

	if rc.Delimiter == 0 || rc.Delimiter == '\n' || rc.Delimiter == '\r' || rc.Delimiter == '"' {
		return fmt.Errorf("invalid delimiter %q", rc.Delimiter)
	}

	return nil
}

// GetColumnName returns the actual column name, checking aliases first
func (rc *ReferenceTableConfig) GetColumnName(standardName string) string {
	if alias, exists := rc.ColumnAliases[standardName]; exists {
		return alias
	}
	return standardName
}

// requiredHeaders returns the header names the file must contain, after aliasing
func (rc *ReferenceTableConfig) requiredHeaders() []string {
	headers := make([]string, 0, len(rc.RequiredColumns))
	for _, column := range rc.RequiredColumns {
		headers = append(headers, rc.GetColumnName(column))
	}
	return headers
}

// Reference table names
const (
	TableTransactionTypes        = "transaction_types"
	TableTransactionTypesBackend = "transaction_types_backend"
	TableMerchantBusinessTypes   = "merchant_business_types"
	TableMCC                     = "mcc"
)

// DefaultTransactionTypeTableConfig describes the card-based transaction type table
func DefaultTransactionTypeTableConfig() *ReferenceTableConfig {
	return &ReferenceTableConfig{
		Name:            TableTransactionTypes,
		RequiredColumns: []string{"country", "card_type", "card_brand", "transaction_type_code"},
		OptionalColumns: []string{"backend_name"},
		HasHeader:       true,
		Delimiter:       ',',
		ColumnAliases:   make(map[string]string),
		Description:     "transaction type by country, card type and card brand",
	}
}

// DefaultTransactionTypeBackendTableConfig describes the backend transaction type table
func DefaultTransactionTypeBackendTableConfig() *ReferenceTableConfig {
	return &ReferenceTableConfig{
		Name:            TableTransactionTypesBackend,
		RequiredColumns: []string{"backend_name", "transaction_type_code"},
		HasHeader:       true,
		Delimiter:       ',',
		ColumnAliases:   make(map[string]string),
		Description:     "transaction type by backend name",
	}
}

// DefaultMerchantBusinessTypeTableConfig describes the merchant business type table
func DefaultMerchantBusinessTypeTableConfig() *ReferenceTableConfig {
	return &ReferenceTableConfig{
		Name:            TableMerchantBusinessTypes,
		RequiredColumns: []string{"card_brand", "merchant_business_type_code"},
		HasHeader:       true,
		Delimiter:       ',',
		ColumnAliases:   make(map[string]string),
		Description:     "merchant business type by card brand",
	}
}

// DefaultMCCTableConfig describes the merchant category code table
func DefaultMCCTableConfig() *ReferenceTableConfig {
	return &ReferenceTableConfig{
		Name:            TableMCC,
		RequiredColumns: []string{"id", "code"},
		HasHeader:       true,
		Delimiter:       ',',
		ColumnAliases:   make(map[string]string),
		Description:     "merchant category code by merchant category id",
	}
}

// GetReferenceTableConfig returns the default configuration of a reference table by name
func GetReferenceTableConfig(name string) *ReferenceTableConfig {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case TableTransactionTypes:
		return DefaultTransactionTypeTableConfig()
	case TableTransactionTypesBackend:
		return DefaultTransactionTypeBackendTableConfig()
	case TableMerchantBusinessTypes:
		return DefaultMerchantBusinessTypeTableConfig()
	case TableMCC:
		return DefaultMCCTableConfig()
	default:
		return nil
	}
}
