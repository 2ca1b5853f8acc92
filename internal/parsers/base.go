// Package parsers loads the report inputs from CSV files.
//
// Two kinds of files are read: the payment file, one row per payment event,
// and the four reference tables that drive the lookups. Both share the
// BaseParser machinery: header mapping with case-insensitive lookup and
// column aliases, empty-row skipping, UTF-8 validation and per-line error
// collection in ParseStats.
//
// Empty cells are read as null (models.NullString with Valid=false), so a
// blank card_type and a missing card_type behave the same downstream.
//
// Example usage:
//
//	parser, err := NewPaymentParser(DefaultPaymentParserConfig())
//	records, stats, err := parser.ParsePaymentsWithContext(ctx, "payments.csv")
//
//	rows, stats, err := ParseMCCTable(ctx, "mcc.csv", DefaultMCCTableConfig())
package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang-regulatory-report/internal/models"
	"golang-regulatory-report/pkg/errors"
	"golang-regulatory-report/pkg/logger"
)

// ParseError represents an error that occurred during CSV parsing
type ParseError struct {
	Line    int
	Column  int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error at line %d, column %d (%s='%s'): %s: %v",
			e.Line, e.Column, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("parse error at line %d, column %d (%s='%s'): %s",
		e.Line, e.Column, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseConfig holds configuration for CSV parsing
type ParseConfig struct {
	HasHeader        bool
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	MaxFieldSize     int
	ValidateEncoding bool
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		HasHeader:        true,
		Delimiter:        ',',
		Comment:          0,
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     1000000, // 1MB per field
		ValidateEncoding: true,
	}
}

// BaseParser provides common CSV parsing functionality
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	log := logger.WithComponent("base_parser")
	log.WithFields(logger.Fields{
		"has_header":        config.HasHeader,
		"delimiter":         string(config.Delimiter),
		"validate_encoding": config.ValidateEncoding,
		"max_field_size":    config.MaxFieldSize,
	}).Debug("Created base parser")

	return &BaseParser{
		config: config,
		logger: log,
	}
}

// ParseContext holds state during parsing operations
type ParseContext struct {
	FilePath    string
	LineNumber  int
	Headers     []string
	HeaderMap   map[string]int
	RecordCount int
	ctx         context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context, filePath string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		FilePath:  filePath,
		Headers:   make([]string, 0),
		HeaderMap: make(map[string]int),
		ctx:       ctx,
	}
}

// IsCancelled checks if the parsing context has been cancelled
func (pc *ParseContext) IsCancelled() bool {
	select {
	case <-pc.ctx.Done():
		return true
	default:
		return false
	}
}

// GetColumnIndex returns the index of a column by name, or -1 if not found
func (pc *ParseContext) GetColumnIndex(name string) int {
	if index, exists := pc.HeaderMap[name]; exists {
		return index
	}

	// Try case-insensitive lookup
	for header, index := range pc.HeaderMap {
		if strings.EqualFold(header, name) {
			return index
		}
	}

	return -1
}

// OpenFile opens a CSV file and returns a csv.Reader
func (bp *BaseParser) OpenFile(filePath string) (*os.File, *csv.Reader, error) {
	bp.logger.WithField("file_path", filePath).Debug("Opening CSV file")

	file, err := os.Open(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open CSV file")

		if os.IsNotExist(err) {
			return nil, nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
		}
		if os.IsPermission(err) {
			return nil, nil, errors.FileError(errors.CodeFilePermission, filePath, err)
		}

		return nil, nil, errors.FileError(errors.CodeDirectoryError, filePath, err)
	}

	if bp.config.ValidateEncoding {
		if err := bp.validateEncoding(file, filePath); err != nil {
			file.Close()
			bp.logger.WithError(err).WithField("file_path", filePath).Error("File encoding validation failed")
			return nil, nil, err
		}

		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, nil, errors.FileError(errors.CodeFileCorrupted, filePath, err)
		}
	}

	reader := csv.NewReader(file)
	bp.configureReader(reader)

	return file, reader, nil
}

// configureReader sets up the CSV reader with our configuration
func (bp *BaseParser) configureReader(reader *csv.Reader) {
	reader.Comma = bp.config.Delimiter
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1 // Variable number of fields
	reader.ReuseRecord = false
}

// validateEncoding checks if the file contains valid UTF-8 text
func (bp *BaseParser) validateEncoding(file *os.File, filePath string) error {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), bp.scanLimit())
	lineNum := 0

	for scanner.Scan() && lineNum < 100 { // Check first 100 lines
		lineNum++
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(
				errors.CodeEncodingError,
				filePath,
				lineNum,
				"encoding",
				"",
				fmt.Errorf("invalid UTF-8 encoding detected"),
			)
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, filePath, err)
	}

	return nil
}

func (bp *BaseParser) scanLimit() int {
	if bp.config.MaxFieldSize > 64*1024 {
		return bp.config.MaxFieldSize
	}
	return 64 * 1024
}

// ReadHeaders reads and validates the header row
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, parseCtx *ParseContext, requiredHeaders []string) error {
	if !bp.config.HasHeader {
		// Without a header row the required headers give the column order
		parseCtx.Headers = make([]string, len(requiredHeaders))
		copy(parseCtx.Headers, requiredHeaders)
		bp.buildHeaderMap(parseCtx)
		return nil
	}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			bp.logger.WithField("file_path", parseCtx.FilePath).Error("File is empty or contains no data")
			return errors.ParseError(
				errors.CodeMissingColumn,
				parseCtx.FilePath,
				1,
				"headers",
				"",
				fmt.Errorf("file is empty"),
			).WithSuggestion("ensure the file contains a header row")
		}

		return errors.ParseError(
			errors.CodeInvalidFormat,
			parseCtx.FilePath,
			1,
			"headers",
			"",
			err,
		).WithSuggestion("check the file format and ensure it's a valid CSV")
	}

	parseCtx.LineNumber++
	parseCtx.Headers = bp.cleanHeaders(headers)
	bp.buildHeaderMap(parseCtx)

	bp.logger.WithField("headers", parseCtx.Headers).Debug("Successfully read headers")

	missing := bp.findMissingHeaders(parseCtx, requiredHeaders)
	if len(missing) > 0 {
		bp.logger.WithFields(logger.Fields{
			"missing_headers":   missing,
			"available_headers": parseCtx.Headers,
		}).Error("Required headers are missing")

		return errors.ParseError(
			errors.CodeMissingColumn,
			parseCtx.FilePath,
			parseCtx.LineNumber,
			strings.Join(missing, ", "),
			"",
			nil,
		).WithSuggestion(fmt.Sprintf("ensure the CSV file contains these headers: %s", strings.Join(missing, ", ")))
	}

	return nil
}

// cleanHeaders removes whitespace and a UTF-8 byte order mark from header names
func (bp *BaseParser) cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		if i == 0 {
			header = strings.TrimPrefix(header, "\ufeff")
		}
		cleaned[i] = strings.TrimSpace(header)
	}
	return cleaned
}

// buildHeaderMap creates a map from header names to column indices
func (bp *BaseParser) buildHeaderMap(parseCtx *ParseContext) {
	parseCtx.HeaderMap = make(map[string]int)
	for i, header := range parseCtx.Headers {
		parseCtx.HeaderMap[header] = i
	}
}

// findMissingHeaders returns a list of required headers that are not present
func (bp *BaseParser) findMissingHeaders(parseCtx *ParseContext, required []string) []string {
	var missing []string
	for _, header := range required {
		if parseCtx.GetColumnIndex(header) == -1 {
			missing = append(missing, header)
		}
	}
	return missing
}

// ReadRecord reads the next non-empty CSV record. io.EOF marks the end of the file.
func (bp *BaseParser) ReadRecord(reader *csv.Reader, parseCtx *ParseContext) ([]string, error) {
	for {
		if parseCtx.IsCancelled() {
			return nil, errors.InternalError(errors.CodeCancelled, "csv parsing", parseCtx.ctx.Err())
		}

		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, err
			}
			var csvErr *csv.ParseError
			if stderrors.As(err, &csvErr) {
				parseCtx.LineNumber = csvErr.StartLine
			}
			return nil, err
		}

		// physical line, so skipped blank lines still count
		parseCtx.LineNumber, _ = reader.FieldPos(0)

		if bp.config.SkipEmptyRows && bp.isEmptyRecord(record) {
			continue
		}

		if bp.config.MaxFieldSize > 0 {
			for i, field := range record {
				if len(field) > bp.config.MaxFieldSize {
					return nil, errors.ParseError(
						errors.CodeInvalidData,
						parseCtx.FilePath,
						parseCtx.LineNumber,
						fmt.Sprintf("field_%d", i),
						truncate(field, 50),
						fmt.Errorf("field size limit of %d bytes exceeded", bp.config.MaxFieldSize),
					)
				}
			}
		}

		parseCtx.RecordCount++
		return record, nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// isEmptyRecord checks if all fields in a record are empty or whitespace
func (bp *BaseParser) isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// GetFieldValue safely retrieves a trimmed field value by name
func (bp *BaseParser) GetFieldValue(record []string, parseCtx *ParseContext, fieldName string) (string, error) {
	index := parseCtx.GetColumnIndex(fieldName)
	if index == -1 {
		return "", errors.ParseError(
			errors.CodeMissingColumn,
			parseCtx.FilePath,
			parseCtx.LineNumber,
			fieldName,
			"",
			fmt.Errorf("field '%s' not found in headers", fieldName),
		).WithSuggestion(fmt.Sprintf("check the CSV headers. Available headers: %v", parseCtx.Headers))
	}

	if index >= len(record) {
		return "", errors.ParseError(
			errors.CodeInvalidData,
			parseCtx.FilePath,
			parseCtx.LineNumber,
			fieldName,
			"",
			fmt.Errorf("field '%s' (index %d) not present in record with %d fields", fieldName, index, len(record)),
		).WithSuggestion("check that all rows have the same number of columns as the header")
	}

	return strings.TrimSpace(record[index]), nil
}

// GetNullableField retrieves a field as a NullString. A column absent from the
// header reads as null; a row too short for a present column is an error.
func (bp *BaseParser) GetNullableField(record []string, parseCtx *ParseContext, fieldName string) (models.NullString, error) {
	if parseCtx.GetColumnIndex(fieldName) == -1 {
		return models.NullString{}, nil
	}
	value, err := bp.GetFieldValue(record, parseCtx, fieldName)
	if err != nil {
		return models.NullString{}, err
	}
	return models.NewNullString(value), nil
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	FilePath      string
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	ErrorCount    int
	Errors        []*ParseError
}

// NewParseStats creates a new ParseStats instance
func NewParseStats(filePath string) *ParseStats {
	return &ParseStats{
		FilePath: filePath,
		Errors:   make([]*ParseError, 0),
	}
}

// AddError adds an error to the parsing statistics
func (ps *ParseStats) AddError(err *ParseError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount)
}

// GetSampleErrors returns a sample of the parsing errors for logging/debugging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	if len(ps.Errors) == 0 {
		return nil
	}

	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}

	return samples
}

// recordError turns err into a ParseError for the current line
func recordError(parseCtx *ParseContext, field, value string, err error) *ParseError {
	message := "invalid record"
	if reportErr, ok := errors.AsReportError(err); ok {
		message = reportErr.Message
	}
	return &ParseError{
		Line:    parseCtx.LineNumber,
		Column:  parseCtx.GetColumnIndex(field),
		Field:   field,
		Value:   value,
		Message: message,
		Err:     err,
	}
}
