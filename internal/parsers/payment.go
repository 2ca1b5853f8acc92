package parsers

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang-regulatory-report/internal/models"
	"golang-regulatory-report/pkg/errors"
	"golang-regulatory-report/pkg/logger"
)

// PaymentParser handles parsing of the payment data CSV file
type PaymentParser struct {
	*BaseParser
	config *PaymentParserConfig
	logger logger.Logger
}

// NewPaymentParser creates a new PaymentParser with the given configuration
func NewPaymentParser(config *PaymentParserConfig) (*PaymentParser, error) {
	if config == nil {
		config = DefaultPaymentParserConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"payment_parser_config",
			config,
			err,
		).WithSuggestion("check the payment parser configuration values")
	}

	parseConfig := DefaultParseConfig()
	parseConfig.HasHeader = config.HasHeader
	parseConfig.Delimiter = config.Delimiter

	log := logger.WithComponent("payment_parser")
	log.WithFields(logger.Fields{
		"has_header":         config.HasHeader,
		"delimiter":          string(config.Delimiter),
		"allow_invalid_rows": config.AllowInvalidRows,
	}).Debug("Created payment parser")

	return &PaymentParser{
		BaseParser: NewBaseParser(parseConfig),
		config:     config,
		logger:     log,
	}, nil
}

// ParsePayments parses a CSV file containing payment records
func (pp *PaymentParser) ParsePayments(filePath string) ([]*models.TransactionRecord, *ParseStats, error) {
	return pp.ParsePaymentsWithContext(context.Background(), filePath)
}

// ParsePaymentsWithContext parses payment records with cancellation support.
// Rows with an unparseable date or amount are collected in the stats; unless
// AllowInvalidRows is set, any such row fails the whole file.
func (pp *PaymentParser) ParsePaymentsWithContext(ctx context.Context, filePath string) ([]*models.TransactionRecord, *ParseStats, error) {
	pp.logger.WithFields(logger.Fields{
		"file_path": filePath,
		"operation": "parse_payments",
	}).Info("Starting payment parsing")

	file, reader, err := pp.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	parseCtx := NewParseContext(ctx, filePath)
	stats := NewParseStats(filePath)

	if err := pp.ReadHeaders(reader, parseCtx, pp.getRequiredHeaders()); err != nil {
		return nil, stats, err
	}

	progress := logger.NewProgressTracker(logger.ProgressConfig{
		Operation:   "parse_payments",
		LogInterval: 5 * time.Second,
		Logger:      pp.logger,
	})

	var records []*models.TransactionRecord

	for {
		record, err := pp.ReadRecord(reader, parseCtx)
		if err != nil {
			if err == io.EOF {
				break
			}
			if errors.IsCategory(err, errors.CategoryInternal) {
				return nil, stats, err
			}

			stats.AddError(recordError(parseCtx, "record", "", errors.WrapIfNeeded(err,
				errors.CategoryParse, errors.CodeInvalidFormat, fmt.Sprintf("malformed CSV record at line %d", parseCtx.LineNumber))))
			continue
		}

		stats.RecordsParsed++
		progress.Increment()

		payment, parseErr := pp.parsePaymentFromRecord(record, parseCtx)
		if parseErr != nil {
			stats.AddError(parseErr)
			continue
		}

		records = append(records, payment)
		stats.RecordsValid++
	}

	progress.Complete()
	stats.TotalLines = parseCtx.LineNumber

	pp.logger.WithFields(logger.Fields{
		"file_path":      filePath,
		"total_lines":    stats.TotalLines,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    stats.ErrorCount,
	}).Info("Payment parsing completed")

	if stats.HasErrors() {
		pp.logger.WithField("sample_errors", stats.GetSampleErrors(3)).Warn("Encountered invalid payment rows")

		if !pp.config.AllowInvalidRows {
			return nil, stats, errors.Wrap(
				stats.Errors[0],
				errors.CategoryParse,
				errors.CodeInvalidData,
				fmt.Sprintf("%d invalid rows in payment file %s", stats.ErrorCount, filePath),
			).WithSuggestion("fix the listed rows or rerun with --allow-invalid-rows to exclude them").
				WithContext("file", filePath).
				WithContext("invalid_rows", stats.ErrorCount)
		}
	}

	return records, stats, nil
}

// getRequiredHeaders returns the list of required header names
func (pp *PaymentParser) getRequiredHeaders() []string {
	return []string{
		pp.config.GetColumnName("date"),
		pp.config.GetColumnName("payment_method"),
		pp.config.GetColumnName("card_brand"),
		pp.config.GetColumnName("card_type"),
		pp.config.GetColumnName("card_country_issuer_code"),
		pp.config.GetColumnName("backend_name"),
		pp.config.GetColumnName("merchant_category_id"),
		pp.config.GetColumnName("amount"),
	}
}

// parsePaymentFromRecord creates a TransactionRecord from a CSV record
func (pp *PaymentParser) parsePaymentFromRecord(record []string, parseCtx *ParseContext) (*models.TransactionRecord, *ParseError) {
	values := make(map[string]string, 8)
	for _, name := range []string{
		"date", "payment_method", "card_brand", "card_type",
		"card_country_issuer_code", "backend_name", "merchant_category_id", "amount",
	} {
		column := pp.config.GetColumnName(name)
		value, err := pp.GetFieldValue(record, parseCtx, column)
		if err != nil {
			return nil, recordError(parseCtx, column, "", err)
		}
		values[name] = value
	}

	dateColumn := pp.config.GetColumnName("date")
	date, err := models.ParseDate(values["date"])
	if err != nil {
		return nil, recordError(parseCtx, dateColumn, values["date"], errors.ParseError(
			errors.CodeInvalidData,
			parseCtx.FilePath,
			parseCtx.LineNumber,
			dateColumn,
			values["date"],
			err,
		).WithSuggestion("use date format YYYY-MM-DD"))
	}

	amountColumn := pp.config.GetColumnName("amount")
	amount, err := models.ParseDecimalFromString(values["amount"])
	if err != nil {
		return nil, recordError(parseCtx, amountColumn, values["amount"], errors.ParseError(
			errors.CodeInvalidData,
			parseCtx.FilePath,
			parseCtx.LineNumber,
			amountColumn,
			values["amount"],
			err,
		).WithSuggestion("check the amount format - use decimal numbers like '123.45'"))
	}

	payment := &models.TransactionRecord{
		Date:                  date,
		PaymentMethod:         models.NewNullString(values["payment_method"]),
		CardBrand:             models.NewNullString(values["card_brand"]),
		CardType:              models.NewNullString(values["card_type"]),
		CardCountryIssuerCode: models.NewNullString(values["card_country_issuer_code"]),
		BackendName:           models.NewNullString(values["backend_name"]),
		MerchantCategoryID:    models.NewNullString(values["merchant_category_id"]),
		Amount:                amount,
		Line:                  parseCtx.LineNumber,
	}

	if err := payment.Validate(); err != nil {
		return nil, recordError(parseCtx, dateColumn, values["date"],
			errors.ValidationError(errors.CodeInvalidDate, dateColumn, values["date"], err))
	}

	return payment, nil
}
