package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"golang-regulatory-report/cmd/regreport/config"
	"golang-regulatory-report/internal/lookup"
	"golang-regulatory-report/internal/models"
	"golang-regulatory-report/internal/parsers"
	"golang-regulatory-report/internal/pipeline"
	"golang-regulatory-report/internal/reporter"
	"golang-regulatory-report/pkg/errors"
	"golang-regulatory-report/pkg/logger"
)

// Flags for the generate command
var (
	inputs              config.InputFiles
	outputDir           string
	filePrefix          string
	delimiter           string
	summaryFormat       string
	summaryFile         string
	xlsxFile            string
	metricsFile         string
	allowInvalidRows    bool
	amountTolerance     string
	strictReferenceKeys bool
)

// reportPipeline builds the step chain a generate run executes
var reportPipeline = pipeline.NewReportPipeline

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the regulatory aggregate report",
	Long: `Generate reads the payment data and the four reference tables, builds the
aggregate summary and writes one report file per reporting date.

The summary is reconciled against the input before anything is written: when
the summary amount or record count differs from the input, the run fails and
no report file is produced.

This command requires:
- A payment data file (CSV)
- The transaction type, transaction type backend, merchant business type and
  merchant category code reference tables (CSV)

Examples:
  # Basic run into the current directory
  regreport generate --payment-data payments.csv \
    --transaction-type-data tt.csv --transaction-type-backend-data ttb.csv \
    --merchant-business-type-data mbt.csv --mcc-data mcc.csv

  # JSON summary, workbook and metrics alongside the report files
  regreport generate ... --output-dir out --summary-format json \
    --summary-file out/summary.json --xlsx out/report.xlsx \
    --metrics-file /var/lib/node_exporter/regreport.prom

  # Skip unparseable payment rows and fail on conflicting reference keys
  regreport generate ... --allow-invalid-rows --strict-reference-keys`,

	PreRunE: validateGenerateFlags,
	RunE:    runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	// Required flags
	generateCmd.Flags().StringVar(&inputs.PaymentData, "payment-data", "", "path to the payment data CSV file (required)")
	generateCmd.Flags().StringVar(&inputs.TransactionTypeData, "transaction-type-data", "", "path to the transaction type CSV file (required)")
	generateCmd.Flags().StringVar(&inputs.TransactionTypeBackendData, "transaction-type-backend-data", "", "path to the transaction type backend CSV file (required)")
	generateCmd.Flags().StringVar(&inputs.MerchantBusinessTypeData, "merchant-business-type-data", "", "path to the merchant business type CSV file (required)")
	generateCmd.Flags().StringVar(&inputs.MerchantCategoryCodeData, "mcc-data", "", "path to the merchant category code CSV file (required)")

	// Input flags
	generateCmd.Flags().StringVar(&delimiter, "delimiter", ",", "input field delimiter (single character, 'tab' or 'pipe')")
	generateCmd.Flags().BoolVar(&allowInvalidRows, "allow-invalid-rows", false, "exclude payment rows with an unparseable date or amount instead of failing")
	generateCmd.Flags().BoolVar(&strictReferenceKeys, "strict-reference-keys", false, "fail when a reference table maps one key to different codes")

	// Output flags
	generateCmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "directory for the per-date report files")
	generateCmd.Flags().StringVar(&filePrefix, "file-prefix", "ACME", "report file name prefix")
	generateCmd.Flags().StringVarP(&summaryFormat, "summary-format", "f", "console", "run summary format: console, json")
	generateCmd.Flags().StringVar(&summaryFile, "summary-file", "", "run summary file path (default: stdout)")
	generateCmd.Flags().StringVar(&xlsxFile, "xlsx", "", "also write the summary rows to this xlsx workbook")
	generateCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write run metrics to this Prometheus textfile")

	// Reconciliation flags
	generateCmd.Flags().StringVar(&amountTolerance, "amount-tolerance", "0", "accepted absolute difference between input and summary totals")

	for _, name := range []string{
		"payment-data", "transaction-type-data", "transaction-type-backend-data",
		"merchant-business-type-data", "mcc-data",
	} {
		generateCmd.MarkFlagRequired(name)
	}

	for _, name := range []string{
		"payment-data", "transaction-type-data", "transaction-type-backend-data",
		"merchant-business-type-data", "mcc-data", "delimiter", "allow-invalid-rows",
		"strict-reference-keys", "output-dir", "file-prefix", "summary-format",
		"summary-file", "xlsx", "metrics-file", "amount-tolerance",
	} {
		viper.BindPFlag(name, generateCmd.Flags().Lookup(name))
	}
}

func validateGenerateFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file)
	inputs = config.InputFiles{
		PaymentData:                viper.GetString("payment-data"),
		TransactionTypeData:        viper.GetString("transaction-type-data"),
		TransactionTypeBackendData: viper.GetString("transaction-type-backend-data"),
		MerchantBusinessTypeData:   viper.GetString("merchant-business-type-data"),
		MerchantCategoryCodeData:   viper.GetString("mcc-data"),
	}
	outputDir = viper.GetString("output-dir")
	filePrefix = viper.GetString("file-prefix")
	delimiter = viper.GetString("delimiter")
	summaryFormat = viper.GetString("summary-format")
	summaryFile = viper.GetString("summary-file")
	xlsxFile = viper.GetString("xlsx")
	metricsFile = viper.GetString("metrics-file")
	allowInvalidRows = viper.GetBool("allow-invalid-rows")
	strictReferenceKeys = viper.GetBool("strict-reference-keys")
	amountTolerance = viper.GetString("amount-tolerance")

	for _, input := range inputs.Descriptions() {
		if err := validateFileExists(input[0], input[1]); err != nil {
			return err
		}
	}

	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[summaryFormat] {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "summary-format", summaryFormat,
			fmt.Errorf("invalid summary format '%s'. Valid formats: console, json", summaryFormat))
	}

	if _, err := config.ParseDelimiter(delimiter); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "delimiter", delimiter, err)
	}

	if _, err := config.ParseAmountTolerance(amountTolerance); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "amount-tolerance", amountTolerance, err)
	}

	if err := config.CreateExportConfig(outputDir, filePrefix).Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output", outputDir, err)
	}

	for _, path := range []string{summaryFile, xlsxFile, metricsFile} {
		if path == "" {
			continue
		}
		dir := filepath.Dir(path)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return errors.FileError(errors.CodeDirectoryError, dir, fmt.Errorf("output directory does not exist: %s", dir))
			}
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, description, "",
			fmt.Errorf("%s path cannot be empty", description))
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, fmt.Errorf("%s does not exist: %s", description, filePath))
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, fmt.Errorf("error accessing %s: %w", description, err))
	}

	if info.IsDir() {
		return errors.FileError(errors.CodeDirectoryError, filePath, fmt.Errorf("%s is a directory, expected a file: %s", description, filePath))
	}

	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, fmt.Errorf("%s is not readable: %w", description, err))
	}
	file.Close()

	return nil
}

// loadedInputs holds everything read from disk before the pipeline runs
type loadedInputs struct {
	payments []*models.TransactionRecord
	tables   lookup.Inputs
}

// loadInputs reads the payment file and the four reference tables concurrently
func loadInputs(ctx context.Context, files config.InputFiles, sep rune, allowInvalid bool) (*loadedInputs, error) {
	paymentConfig, err := config.CreatePaymentParserConfig(sep, allowInvalid)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "payment parser", string(sep), err)
	}
	paymentParser, err := parsers.NewPaymentParser(paymentConfig)
	if err != nil {
		return nil, err
	}

	tableConfigs, err := config.CreateReferenceTableConfigs(sep)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reference tables", string(sep), err)
	}

	log := logger.WithComponent("loader")
	loaded := &loadedInputs{}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		records, stats, err := paymentParser.ParsePaymentsWithContext(gctx, files.PaymentData)
		if err != nil {
			return err
		}
		if stats.HasErrors() {
			log.WithFields(logger.Fields{
				"file":     files.PaymentData,
				"excluded": stats.ErrorCount,
				"samples":  stats.GetSampleErrors(3),
			}).Warn("Invalid payment rows excluded")
		}
		loaded.payments = records
		return nil
	})

	g.Go(func() error {
		rows, _, err := parsers.ParseTransactionTypeTable(gctx, files.TransactionTypeData, tableConfigs[parsers.TableTransactionTypes])
		loaded.tables.TransactionTypes = rows
		return err
	})

	g.Go(func() error {
		rows, _, err := parsers.ParseTransactionTypeBackendTable(gctx, files.TransactionTypeBackendData, tableConfigs[parsers.TableTransactionTypesBackend])
		loaded.tables.TransactionTypesBackend = rows
		return err
	})

	g.Go(func() error {
		rows, _, err := parsers.ParseMerchantBusinessTypeTable(gctx, files.MerchantBusinessTypeData, tableConfigs[parsers.TableMerchantBusinessTypes])
		loaded.tables.MerchantBusinessTypes = rows
		return err
	})

	g.Go(func() error {
		rows, _, err := parsers.ParseMCCTable(gctx, files.MerchantCategoryCodeData, tableConfigs[parsers.TableMCC])
		loaded.tables.MCC = rows
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.WithFields(logger.Fields{
		"payments":                  len(loaded.payments),
		"transaction_types":         len(loaded.tables.TransactionTypes),
		"transaction_types_backend": len(loaded.tables.TransactionTypesBackend),
		"merchant_business_types":   len(loaded.tables.MerchantBusinessTypes),
		"mcc":                       len(loaded.tables.MCC),
	}).Info("Inputs loaded")

	return loaded, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.WithComponent("generate")

	sep, err := config.ParseDelimiter(delimiter)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "delimiter", delimiter, err)
	}
	tolerance, err := config.ParseAmountTolerance(amountTolerance)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "amount-tolerance", amountTolerance, err)
	}
	rules, err := config.LoadRules()
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "rules", nil, err)
	}

	service, err := pipeline.NewService(config.CreatePipelineConfig(rules, tolerance))
	if err != nil {
		return err
	}
	service.WithPipeline(reportPipeline(rules, tolerance))
	exporter, err := reporter.NewExporter(config.CreateExportConfig(outputDir, filePrefix))
	if err != nil {
		return err
	}
	generator, err := reporter.NewReportGenerator(config.CreateReportConfig(summaryFormat))
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "summary-format", summaryFormat, err)
	}

	loaded, err := loadInputs(ctx, inputs, sep, allowInvalidRows)
	if err != nil {
		return err
	}

	tables, err := lookup.NewTables(loaded.tables, config.CreateLookupConfig(strictReferenceKeys))
	if err != nil {
		return err
	}

	result, runErr := service.Run(ctx, loaded.payments, tables)
	if result == nil {
		return runErr
	}

	var files []reporter.ExportedFile
	if runErr == nil {
		files, err = exporter.Export(ctx, result.Rows)
		if err != nil {
			return err
		}

		if xlsxFile != "" {
			if err := reporter.WriteWorkbook(xlsxFile, result.Rows); err != nil {
				return err
			}
			log.WithField("file", xlsxFile).Info("Workbook written")
		}
	} else {
		log.Warn("Reconciliation failed, report files were not written")
	}

	if metricsFile != "" {
		metrics := reporter.NewRunMetrics()
		metrics.Observe(result, files)
		if err := metrics.WriteTextfile(metricsFile); err != nil {
			return err
		}
	}

	if err := writeSummary(generator, result, files, cmd.OutOrStdout()); err != nil {
		return err
	}

	return runErr
}

func writeSummary(generator *reporter.ReportGenerator, result *pipeline.Result, files []reporter.ExportedFile, stdout io.Writer) error {
	output := stdout
	if summaryFile != "" {
		f, err := os.Create(summaryFile)
		if err != nil {
			return errors.ExportError(errors.CodeWriteFailed, summaryFile, err)
		}
		defer f.Close()
		output = f
	}

	if err := generator.GenerateReport(result, files, output); err != nil {
		return errors.ExportError(errors.CodeWriteFailed, summaryFile, err)
	}
	return nil
}
