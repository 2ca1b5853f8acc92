package parsers

import (
	"context"
	"fmt"
	"io"

	"golang-regulatory-report/internal/models"
	"golang-regulatory-report/pkg/errors"
	"golang-regulatory-report/pkg/logger"
)

// Row is one data line of a reference table keyed by standard column name
type Row struct {
	Line   int
	values map[string]models.NullString
}

// Get returns the cell of the named column, null when absent or empty
func (r Row) Get(column string) models.NullString {
	return r.values[column]
}

// ReferenceParser handles parsing of reference table CSV files
type ReferenceParser struct {
	*BaseParser
	config *ReferenceTableConfig
	logger logger.Logger
}

// NewReferenceParser creates a new ReferenceParser for the given table layout
func NewReferenceParser(config *ReferenceTableConfig) (*ReferenceParser, error) {
	if config == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "reference_table_config", nil, nil)
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"reference_table_config",
			config.Name,
			err,
		)
	}

	parseConfig := DefaultParseConfig()
	parseConfig.HasHeader = config.HasHeader
	parseConfig.Delimiter = config.Delimiter

	return &ReferenceParser{
		BaseParser: NewBaseParser(parseConfig),
		config:     config,
		logger:     logger.WithComponent("reference_parser").WithField("table", config.Name),
	}, nil
}

// Config returns the table layout of the parser
func (rp *ReferenceParser) Config() *ReferenceTableConfig {
	return rp.config
}

// ParseRowsWithContext reads every data row of the table. Reference tables
// must be clean: any malformed row fails the file.
func (rp *ReferenceParser) ParseRowsWithContext(ctx context.Context, filePath string) ([]Row, *ParseStats, error) {
	rp.logger.WithField("file_path", filePath).Info("Starting reference table parsing")

	file, reader, err := rp.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	parseCtx := NewParseContext(ctx, filePath)
	stats := NewParseStats(filePath)

	if err := rp.ReadHeaders(reader, parseCtx, rp.config.requiredHeaders()); err != nil {
		return nil, stats, err
	}

	columns := append(append([]string{}, rp.config.RequiredColumns...), rp.config.OptionalColumns...)
	var rows []Row

	for {
		record, err := rp.ReadRecord(reader, parseCtx)
		if err != nil {
			if err == io.EOF {
				break
			}
			if errors.IsCategory(err, errors.CategoryInternal) {
				return nil, stats, err
			}
			stats.AddError(recordError(parseCtx, "record", "", err))
			continue
		}

		stats.RecordsParsed++

		row := Row{Line: parseCtx.LineNumber, values: make(map[string]models.NullString, len(columns))}
		var rowErr *ParseError
		for _, column := range columns {
			value, err := rp.GetNullableField(record, parseCtx, rp.config.GetColumnName(column))
			if err != nil {
				rowErr = recordError(parseCtx, column, "", err)
				break
			}
			row.values[column] = value
		}
		if rowErr != nil {
			stats.AddError(rowErr)
			continue
		}

		rows = append(rows, row)
		stats.RecordsValid++
	}

	stats.TotalLines = parseCtx.LineNumber

	rp.logger.WithFields(logger.Fields{
		"file_path":      filePath,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    stats.ErrorCount,
	}).Info("Reference table parsing completed")

	if stats.HasErrors() {
		return nil, stats, errors.Wrap(
			stats.Errors[0],
			errors.CategoryParse,
			errors.CodeInvalidData,
			fmt.Sprintf("%d malformed rows in reference table %s (%s)", stats.ErrorCount, rp.config.Name, filePath),
		).WithSuggestion("check that all rows have the same number of columns as the header").
			WithContext("file", filePath)
	}

	return rows, stats, nil
}

func parseTable[T any](ctx context.Context, filePath string, config *ReferenceTableConfig, convert func(Row) T) ([]T, *ParseStats, error) {
	parser, err := NewReferenceParser(config)
	if err != nil {
		return nil, nil, err
	}

	rows, stats, err := parser.ParseRowsWithContext(ctx, filePath)
	if err != nil {
		return nil, stats, err
	}

	out := make([]T, 0, len(rows))
	for _, row := range rows {
		out = append(out, convert(row))
	}
	return out, stats, nil
}

// ParseTransactionTypeTable loads the card-based transaction type table
func ParseTransactionTypeTable(ctx context.Context, filePath string, config *ReferenceTableConfig) ([]models.TransactionTypeRow, *ParseStats, error) {
	if config == nil {
		config = DefaultTransactionTypeTableConfig()
	}
	return parseTable(ctx, filePath, config, func(r Row) models.TransactionTypeRow {
		return models.TransactionTypeRow{
			Country:             r.Get("country"),
			CardType:            r.Get("card_type"),
			CardBrand:           r.Get("card_brand"),
			BackendName:         r.Get("backend_name"),
			TransactionTypeCode: r.Get("transaction_type_code"),
		}
	})
}

// ParseTransactionTypeBackendTable loads the backend transaction type table
func ParseTransactionTypeBackendTable(ctx context.Context, filePath string, config *ReferenceTableConfig) ([]models.TransactionTypeBackendRow, *ParseStats, error) {
	if config == nil {
		config = DefaultTransactionTypeBackendTableConfig()
	}
	return parseTable(ctx, filePath, config, func(r Row) models.TransactionTypeBackendRow {
		return models.TransactionTypeBackendRow{
			BackendName:         r.Get("backend_name"),
			TransactionTypeCode: r.Get("transaction_type_code"),
		}
	})
}

// ParseMerchantBusinessTypeTable loads the merchant business type table
func ParseMerchantBusinessTypeTable(ctx context.Context, filePath string, config *ReferenceTableConfig) ([]models.MerchantBusinessTypeRow, *ParseStats, error) {
	if config == nil {
		config = DefaultMerchantBusinessTypeTableConfig()
	}
	return parseTable(ctx, filePath, config, func(r Row) models.MerchantBusinessTypeRow {
		return models.MerchantBusinessTypeRow{
			CardBrand:                r.Get("card_brand"),
			MerchantBusinessTypeCode: r.Get("merchant_business_type_code"),
		}
	})
}

// ParseMCCTable loads the merchant category code table
func ParseMCCTable(ctx context.Context, filePath string, config *ReferenceTableConfig) ([]models.MCCRow, *ParseStats, error) {
	if config == nil {
		config = DefaultMCCTableConfig()
	}
	return parseTable(ctx, filePath, config, func(r Row) models.MCCRow {
		return models.MCCRow{
			ID:   r.Get("id"),
			Code: r.Get("code"),
		}
	})
}
