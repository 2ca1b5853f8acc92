package config

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"golang-regulatory-report/internal/lookup"
	"golang-regulatory-report/internal/parsers"
	"golang-regulatory-report/internal/pipeline"
	"golang-regulatory-report/internal/reporter"
	"golang-regulatory-report/pkg/logger"
)

// InputFiles are the five files a report run reads
type InputFiles struct {
	PaymentData                string
	TransactionTypeData        string
	TransactionTypeBackendData string
	MerchantBusinessTypeData   string
	MerchantCategoryCodeData   string
}

// Descriptions pairs every input path with a human readable name, in flag order
func (f InputFiles) Descriptions() [][2]string {
	return [][2]string{
		{f.PaymentData, "payment data file"},
		{f.TransactionTypeData, "transaction type file"},
		{f.TransactionTypeBackendData, "transaction type backend file"},
		{f.MerchantBusinessTypeData, "merchant business type file"},
		{f.MerchantCategoryCodeData, "merchant category code file"},
	}
}

// ParseDelimiter converts a delimiter flag value into a single rune. The
// words "tab" and "pipe" are accepted for convenience.
func ParseDelimiter(value string) (rune, error) {
	switch strings.ToLower(value) {
	case "tab", `\t`:
		return '\t', nil
	case "pipe":
		return '|', nil
	}

	if utf8.RuneCountInString(value) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", value)
	}
	r, _ := utf8.DecodeRuneInString(value)
	return r, nil
}

// CreatePaymentParserConfig creates the payment parser configuration
func CreatePaymentParserConfig(delimiter rune, allowInvalidRows bool) (*parsers.PaymentParserConfig, error) {
	config := parsers.DefaultPaymentParserConfig()
	config.Delimiter = delimiter
	config.AllowInvalidRows = allowInvalidRows
	config.ColumnAliases = map[string]string{}

	// Aliases from the config file, e.g. payment_columns.amount: amt
	for standard, actual := range viper.GetStringMapString("payment_columns") {
		config.ColumnAliases[standard] = actual
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid payment parser config: %w", err)
	}
	return config, nil
}

// CreateReferenceTableConfigs creates the configuration of every reference
// table, keyed by table name
func CreateReferenceTableConfigs(delimiter rune) (map[string]*parsers.ReferenceTableConfig, error) {
	names := []string{
		parsers.TableTransactionTypes,
		parsers.TableTransactionTypesBackend,
		parsers.TableMerchantBusinessTypes,
		parsers.TableMCC,
	}

	configs := make(map[string]*parsers.ReferenceTableConfig, len(names))
	for _, name := range names {
		config := parsers.GetReferenceTableConfig(name)
		if config == nil {
			return nil, fmt.Errorf("unknown reference table: %s", name)
		}
		config.Delimiter = delimiter
		if aliases := viper.GetStringMapString("reference_columns." + name); len(aliases) > 0 {
			config.ColumnAliases = aliases
		}
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config for reference table %s: %w", name, err)
		}
		configs[name] = config
	}
	return configs, nil
}

// CreateLookupConfig creates the reference table indexing configuration
func CreateLookupConfig(strictKeys bool) *lookup.Config {
	config := lookup.DefaultConfig()
	config.StrictKeys = strictKeys
	return config
}

// LoadRules reads the rule codes from the rules section of the configuration,
// keeping the default for every code that is not set
func LoadRules() (pipeline.Rules, error) {
	rules := pipeline.DefaultRules()
	if err := viper.UnmarshalKey("rules", &rules); err != nil {
		return rules, fmt.Errorf("failed to read rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return rules, fmt.Errorf("invalid rules: %w", err)
	}
	return rules, nil
}

// ParseAmountTolerance parses the reconciliation tolerance. An empty value means exact.
func ParseAmountTolerance(value string) (decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return decimal.Zero, nil
	}

	tolerance, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount tolerance %q: %w", value, err)
	}
	if tolerance.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount tolerance cannot be negative, got %s", tolerance)
	}
	return tolerance, nil
}

// CreatePipelineConfig creates the report service configuration
func CreatePipelineConfig(rules pipeline.Rules, tolerance decimal.Decimal) *pipeline.Config {
	config := pipeline.DefaultConfig()
	config.Rules = rules
	config.AmountTolerance = tolerance
	return config
}

// CreateExportConfig creates the per-date exporter configuration
func CreateExportConfig(outputDir, filePrefix string) *reporter.ExportConfig {
	config := reporter.DefaultExportConfig()
	if outputDir != "" {
		config.OutputDir = outputDir
	}
	if filePrefix != "" {
		config.FilePrefix = filePrefix
	}
	if n := viper.GetInt("export.concurrency"); n > 0 {
		config.Concurrency = n
	}
	return config
}

// CreateReportConfig creates a run summary configuration for the specified format
func CreateReportConfig(format string) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()

	switch format {
	case "console":
		config.Format = reporter.FormatConsole
		config.IncludeStages = viper.GetBool("verbose")
		config.IncludeBuckets = true
	case "json":
		config.Format = reporter.FormatJSON
		config.IncludeStages = true
		config.IncludeRows = false
	default:
		config.Format = reporter.OutputFormat(format)
	}

	return config
}

// CreateLoggerConfig creates the logger configuration from the global flags
func CreateLoggerConfig(verbose bool, format string) *logger.Config {
	config := logger.DefaultConfig()
	if verbose {
		config = logger.DebugConfig()
	}
	if format != "" {
		config.Format = logger.Format(format)
	}
	return config
}
