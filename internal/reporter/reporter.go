// Package reporter writes the outputs of a report run.
//
// The regulator files are produced by the Exporter, one pipe-separated file
// per reporting date. Alongside them a run summary can be rendered for
// operators, and optional side outputs capture the same rows in a workbook
// and the run counters in a Prometheus textfile.
//
// Supported summary formats:
//   - Console: human-readable sections for terminal display
//   - JSON: structured data for programmatic consumption
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = generator.GenerateReport(result, files, os.Stdout)
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"golang-regulatory-report/internal/pipeline"
)

// OutputFormat represents the supported summary output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for summary generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	IncludeStages    bool `json:"include_stages"`
	IncludeBuckets   bool `json:"include_buckets"`
	IncludeRows      bool `json:"include_rows"`
	MaxRowsInConsole int  `json:"max_rows_in_console"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:           FormatConsole,
		IncludeStages:    true,
		IncludeBuckets:   true,
		IncludeRows:      false,
		MaxRowsInConsole: 20,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.MaxRowsInConsole < 0 {
		return fmt.Errorf("max rows in console cannot be negative, got %d", c.MaxRowsInConsole)
	}

	return nil
}

// ReportGenerator renders run summaries
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport writes the summary of a run to the provided writer. Exported
// files may be nil when export was skipped.
func (rg *ReportGenerator) GenerateReport(result *pipeline.Result, files []ExportedFile, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("run result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, files, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, files, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(result *pipeline.Result, files []ExportedFile, writer io.Writer) error {
	fmt.Fprintf(writer, "REGULATORY REPORT RUN\n")
	fmt.Fprintf(writer, "Run ID: %s\n", result.RunID)
	fmt.Fprintf(writer, "Started: %s\n", result.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Processing Duration: %v\n\n", result.Duration)

	fmt.Fprintf(writer, "=== RECONCILIATION ===\n")
	rg.printReconciliation(result.Reconciliation, writer)
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummary(result.Stats, writer)
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== LOOKUPS ===\n")
	rg.printLookups(result.Stats, writer)
	fmt.Fprintf(writer, "\n")

	if rg.config.IncludeBuckets && len(result.Stats.Buckets) > 0 {
		fmt.Fprintf(writer, "=== AVERAGE AMOUNT RANGES ===\n")
		rg.printBuckets(result.Stats.Buckets, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeRows && len(result.Rows) > 0 {
		fmt.Fprintf(writer, "=== SUMMARY ROWS ===\n")
		rg.printRows(result, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeStages && len(result.Stages) > 0 {
		fmt.Fprintf(writer, "=== STAGES ===\n")
		for _, stage := range result.Stages {
			fmt.Fprintf(writer, "  %-10s %8d records  %v\n", stage.Stage, stage.Records, stage.Duration)
		}
		fmt.Fprintf(writer, "\n")
	}

	fmt.Fprintf(writer, "=== OUTPUT FILES ===\n")
	if files == nil {
		fmt.Fprintf(writer, "Export skipped\n")
		return nil
	}
	for _, f := range files {
		fmt.Fprintf(writer, "  %s (%d rows)\n", f.Path, f.Rows)
	}

	return nil
}

func (rg *ReportGenerator) generateJSONReport(result *pipeline.Result, files []ExportedFile, writer io.Writer) error {
	output := map[string]interface{}{
		"run_id":         result.RunID,
		"started_at":     result.StartedAt,
		"duration":       result.Duration.String(),
		"reconciliation": result.Reconciliation,
		"stats":          result.Stats,
		"files":          files,
	}

	if rg.config.IncludeStages {
		output["stages"] = result.Stages
	}

	if rg.config.IncludeRows {
		output["rows"] = result.Rows
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(output)
}

func (rg *ReportGenerator) printReconciliation(rec *pipeline.Reconciliation, writer io.Writer) {
	if rec == nil {
		fmt.Fprintf(writer, "Not run\n")
		return
	}

	status := "PASSED"
	if !rec.Passed {
		status = "FAILED"
	}

	fmt.Fprintf(writer, "Status:         %s\n", status)
	fmt.Fprintf(writer, "Input Amount:   %s\n", rec.InputTotal.StringFixed(2))
	fmt.Fprintf(writer, "Summary Amount: %s\n", rec.OutputTotal.StringFixed(2))
	fmt.Fprintf(writer, "Difference:     %s\n", rec.Difference.String())
	if !rec.Tolerance.IsZero() {
		fmt.Fprintf(writer, "Tolerance:      %s\n", rec.Tolerance.String())
	}
	fmt.Fprintf(writer, "Input Records:  %d\n", rec.InputCount)
	fmt.Fprintf(writer, "Summary Number: %d\n", rec.OutputCount)

	dq := rec.DataQuality
	if dq.NullTransactionType+dq.NullMerchantBusinessType+dq.NullMerchantCategoryCode > 0 {
		fmt.Fprintf(writer, "\nRecords with null fields:\n")
		fmt.Fprintf(writer, "  transaction_type:       %d (%.1f%%)\n",
			dq.NullTransactionType, rg.calculatePercentage(dq.NullTransactionType, rec.InputCount))
		fmt.Fprintf(writer, "  merchant_business_type: %d (%.1f%%)\n",
			dq.NullMerchantBusinessType, rg.calculatePercentage(dq.NullMerchantBusinessType, rec.InputCount))
		fmt.Fprintf(writer, "  merchant_category_code: %d (%.1f%%)\n",
			dq.NullMerchantCategoryCode, rg.calculatePercentage(dq.NullMerchantCategoryCode, rec.InputCount))
	}
}

func (rg *ReportGenerator) printSummary(stats pipeline.Stats, writer io.Writer) {
	fmt.Fprintf(writer, "Input Records: %d\n", stats.InputRecords)
	fmt.Fprintf(writer, "Summary Rows:  %d\n", stats.SummaryRows)
	fmt.Fprintf(writer, "Dates:         %d\n", stats.Dates)
}

func (rg *ReportGenerator) printLookups(stats pipeline.Stats, writer io.Writer) {
	card := stats.Resolve.Card
	backend := stats.Resolve.Backend

	fmt.Fprintf(writer, "Card path (CPF):     %d records, %d matched, %d defaulted, %d unresolved\n",
		card.Records, card.Matched, card.Defaulted, card.Unresolved)
	fmt.Fprintf(writer, "Backend path (OTH):  %d records, %d matched, %d unresolved\n",
		backend.Records, backend.Matched, backend.Unresolved)

	enrich := stats.Enrich
	fmt.Fprintf(writer, "Business type:       %d matched, %d CPF without\n",
		enrich.BusinessTypeMatched, enrich.CPFWithoutBusinessType)
	fmt.Fprintf(writer, "Category code:       %d matched, %d defaulted, %d OTH without\n",
		enrich.CategoryCodeMatched, enrich.CategoryCodeDefaulted, enrich.OTHWithoutCategoryCode)

	ref := stats.Reference
	fmt.Fprintf(writer, "Reference keys:      %d duplicates, %d conflicts (first row kept)\n",
		ref.TotalDuplicates(), ref.TotalConflicts())
	if ref.TotalConflicts() > 0 {
		tables := ref.ByTable()
		names := make([]string, 0, len(tables))
		for name := range tables {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if n := tables[name].Conflicts; n > 0 {
				fmt.Fprintf(writer, "  %s: %d conflicting keys\n", name, n)
			}
		}
	}
}

func (rg *ReportGenerator) printBuckets(buckets map[string]int, writer io.Writer) {
	codes := make([]string, 0, len(buckets))
	for code := range buckets {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		fmt.Fprintf(writer, "  %s: %d rows\n", code, buckets[code])
	}
}

func (rg *ReportGenerator) printRows(result *pipeline.Result, writer io.Writer) {
	for i, row := range result.Rows {
		if rg.config.MaxRowsInConsole > 0 && i >= rg.config.MaxRowsInConsole {
			fmt.Fprintf(writer, "  ... and %d more\n", len(result.Rows)-i)
			break
		}
		fmt.Fprintf(writer, "  %d. %s\n", i+1, row.String())
	}
}

func (rg *ReportGenerator) calculatePercentage(part, total int64) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}
