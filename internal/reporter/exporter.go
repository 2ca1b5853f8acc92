package reporter

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"cloud.google.com/go/civil"
	"golang.org/x/sync/errgroup"

	"golang-regulatory-report/internal/models"
	"golang-regulatory-report/pkg/errors"
	"golang-regulatory-report/pkg/logger"
)

// Columns is the header of every exported file, in output order
var Columns = []string{
	"fi_code",
	"date",
	"service_system_type",
	"transaction_type",
	"merchant_business_type",
	"merchant_category_code",
	"amount",
	"number",
	"terminal_average_amount_range",
}

// ExportConfig holds configuration options for the per-date exporter
type ExportConfig struct {
	OutputDir   string `json:"output_dir" mapstructure:"output_dir"`
	FilePrefix  string `json:"file_prefix" mapstructure:"file_prefix"`
	Concurrency int    `json:"concurrency" mapstructure:"concurrency"`
}

// DefaultExportConfig returns a default exporter configuration
func DefaultExportConfig() *ExportConfig {
	return &ExportConfig{
		OutputDir:   ".",
		FilePrefix:  "ACME",
		Concurrency: 4,
	}
}

// Validate validates the exporter configuration
func (c *ExportConfig) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}
	if c.FilePrefix == "" {
		return fmt.Errorf("file prefix cannot be empty")
	}
	if filepath.Base(c.FilePrefix) != c.FilePrefix {
		return fmt.Errorf("file prefix cannot contain a path separator: %q", c.FilePrefix)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	return nil
}

// DatePartition holds the summary rows of one reporting date
type DatePartition struct {
	Date civil.Date
	Rows []*models.SummaryRow
}

// PartitionByDate groups rows by date. Partitions come back in date order and
// keep the relative order of their rows.
func PartitionByDate(rows []*models.SummaryRow) []DatePartition {
	index := make(map[civil.Date]int)
	var partitions []DatePartition

	for _, row := range rows {
		i, ok := index[row.Date]
		if !ok {
			i = len(partitions)
			index[row.Date] = i
			partitions = append(partitions, DatePartition{Date: row.Date})
		}
		partitions[i].Rows = append(partitions[i].Rows, row)
	}

	sort.Slice(partitions, func(i, j int) bool {
		return partitions[i].Date.Before(partitions[j].Date)
	})
	return partitions
}

// ExportedFile describes one written report file
type ExportedFile struct {
	Date civil.Date `json:"date"`
	Path string     `json:"path"`
	Rows int        `json:"rows"`
}

// Exporter writes one pipe-separated file per reporting date
type Exporter struct {
	config *ExportConfig
	logger logger.Logger
}

// NewExporter creates a new exporter with the specified configuration
func NewExporter(config *ExportConfig) (*Exporter, error) {
	if config == nil {
		config = DefaultExportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "export", config.OutputDir, err)
	}

	return &Exporter{
		config: config,
		logger: logger.WithComponent("exporter"),
	}, nil
}

// FileName returns the report file name for a date, e.g. ACME_20181231.csv
func (e *Exporter) FileName(date civil.Date) string {
	return fmt.Sprintf("%s_%04d%02d%02d.csv", e.config.FilePrefix, date.Year, int(date.Month), date.Day)
}

// Export writes every date partition to its own file. Files are first written
// under a temporary name and renamed once complete.
func (e *Exporter) Export(ctx context.Context, rows []*models.SummaryRow) ([]ExportedFile, error) {
	if err := os.MkdirAll(e.config.OutputDir, 0o755); err != nil {
		return nil, errors.FileError(errors.CodeDirectoryError, e.config.OutputDir, err)
	}

	partitions := PartitionByDate(rows)
	files := make([]ExportedFile, len(partitions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Concurrency)

	for i, partition := range partitions {
		i, partition := i, partition
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return errors.InternalError(errors.CodeCancelled, "export", err)
			}

			path := filepath.Join(e.config.OutputDir, e.FileName(partition.Date))
			if err := writeFileAtomic(path, partition.Rows); err != nil {
				return err
			}

			files[i] = ExportedFile{Date: partition.Date, Path: path, Rows: len(partition.Rows)}
			e.logger.WithFields(logger.Fields{
				"date": partition.Date.String(),
				"file": path,
				"rows": len(partition.Rows),
			}).Info("Report file written")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.WithField("files", len(files)).Info("Export completed")
	return files, nil
}

func writeFileAtomic(path string, rows []*models.SummaryRow) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.ExportError(errors.CodeWriteFailed, path, err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteRows(tmp, rows); err != nil {
		tmp.Close()
		return errors.ExportError(errors.CodeWriteFailed, path, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.ExportError(errors.CodeWriteFailed, path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.ExportError(errors.CodeWriteFailed, path, err)
	}
	return nil
}

// WriteRows writes the header and rows in the regulator file format: pipe
// separated, CRLF terminated, amount with two decimals and nulls as empty cells.
func WriteRows(w io.Writer, rows []*models.SummaryRow) error {
	writer := csv.NewWriter(w)
	writer.Comma = '|'
	writer.UseCRLF = true

	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, row := range rows {
		if err := writer.Write(formatRow(row)); err != nil {
			return fmt.Errorf("failed to write row %s: %w", row.String(), err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatRow(row *models.SummaryRow) []string {
	return []string{
		row.FICode,
		row.Date.String(),
		row.ServiceSystemType.String(),
		row.TransactionType.String(),
		row.MerchantBusinessType.String(),
		row.MerchantCategoryCode.String(),
		row.Amount.StringFixed(2),
		strconv.FormatInt(row.Number, 10),
		row.TerminalAverageAmountRange,
	}
}
