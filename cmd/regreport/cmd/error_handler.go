package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"golang-regulatory-report/pkg/errors"
	"golang-regulatory-report/pkg/logger"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
	out     io.Writer
}

// NewCLIErrorHandler creates a new CLI error handler writing to stderr
func NewCLIErrorHandler() *CLIErrorHandler {
	return NewCLIErrorHandlerWithWriter(os.Stderr)
}

// NewCLIErrorHandlerWithWriter creates a CLI error handler writing to out
func NewCLIErrorHandlerWithWriter(out io.Writer) *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
		out:     out,
	}
}

// HandleError prints err and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Error("Command failed")

	if reportErr, ok := errors.AsReportError(err); ok {
		return h.handleReportError(reportErr)
	}

	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleReportError(err *errors.ReportError) int {
	if err.Category == errors.CategoryReconciliation {
		fmt.Fprintf(h.out, "RECONCILIATION FAILED: %s\n", err.Message)
	} else {
		fmt.Fprintf(h.out, "Error: %s\n", err.Message)
	}

	if len(err.Context) > 0 {
		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range err.ContextKeys() {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.out, "\n%s\n", h.getCategoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	if h.isFileNotFoundError(err) {
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	}

	if h.isPermissionError(err) {
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	}

	if h.isDiskFullError(err) {
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 6
	}

	// cobra flag errors, e.g. a missing required flag
	fmt.Fprintf(h.out, "Error: %v\n", err)
	fmt.Fprintf(h.out, "Run 'regreport generate --help' for usage.\n")

	return 1
}

func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check that every input file exists and is readable
• Verify the file paths (use absolute paths if needed)
• Ensure the output directory exists and is writable`

	case errors.CategoryParse:
		return `Parse error help:
• Verify the CSV header row names the expected columns
• Dates must be calendar dates, e.g. 2018-12-05
• Amounts must be decimal numbers
• Use --allow-invalid-rows to exclude unparseable payment rows`

	case errors.CategoryValidation:
		return `Validation error help:
• A reference table maps the same key to different codes
• Remove the conflicting rows or run without --strict-reference-keys`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and arguments
• Verify configuration file syntax if using --config
• Use 'regreport generate --help' to see all available options`

	case errors.CategoryReconciliation:
		return `Reconciliation error help:
• The summary does not account for every input record or amount
• No report file was written
• Inspect the totals above and rerun with --verbose for stage counts`

	case errors.CategoryExport:
		return `Export error help:
• Check that the output directory is writable
• Check available disk space`

	default:
		return `For more help:
• Use 'regreport --help' for general help
• Use 'regreport generate --help' for command-specific help
• Rerun with --verbose for detailed logs`
	}
}

func (h *CLIErrorHandler) isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory")
}

func (h *CLIErrorHandler) isPermissionError(err error) bool {
	return os.IsPermission(err) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func (h *CLIErrorHandler) isDiskFullError(err error) bool {
	if err == syscall.ENOSPC {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}
