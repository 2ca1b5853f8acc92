package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"golang-regulatory-report/internal/lookup"
	"golang-regulatory-report/internal/models"
	"golang-regulatory-report/pkg/errors"
	"golang-regulatory-report/pkg/logger"
)

// Config holds configuration options for the report service
type Config struct {
	Rules Rules `json:"rules" mapstructure:"rules" validate:"required"`

	// AmountTolerance is the largest accepted difference between input and
	// summary totals. Zero means exact.
	AmountTolerance decimal.Decimal `json:"amount_tolerance" mapstructure:"-"`
}

// DefaultConfig returns a default configuration for the report service
func DefaultConfig() *Config {
	return &Config{
		Rules:           DefaultRules(),
		AmountTolerance: decimal.Zero,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}
	if c.AmountTolerance.IsNegative() {
		return fmt.Errorf("amount tolerance cannot be negative, got %s", c.AmountTolerance)
	}
	return nil
}

// Stats summarises one run for reporting
type Stats struct {
	InputRecords int               `json:"input_records"`
	SummaryRows  int               `json:"summary_rows"`
	Dates        int               `json:"dates"`
	Resolve      ResolveStats      `json:"resolve"`
	Enrich       EnrichStats       `json:"enrich"`
	Reference    lookup.IndexStats `json:"reference"`
	Buckets      map[string]int    `json:"buckets"`
}

// Result contains the outcome of one run
type Result struct {
	RunID          string               `json:"run_id"`
	StartedAt      time.Time            `json:"started_at"`
	Duration       time.Duration        `json:"duration"`
	Rows           []*models.SummaryRow `json:"-"`
	Reconciliation *Reconciliation      `json:"reconciliation"`
	Stats          Stats                `json:"stats"`
	Stages         []StageTiming        `json:"stages"`
}

// Service runs the report pipeline over loaded inputs
type Service struct {
	config   *Config
	pipeline *Pipeline
	logger   logger.Logger
}

// NewService creates a new report service
func NewService(config *Config) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "pipeline", "rules", err)
	}

	return &Service{
		config:   config,
		pipeline: NewReportPipeline(config.Rules, config.AmountTolerance),
		logger:   logger.WithComponent("report_service"),
	}, nil
}

// WithPipeline replaces the standard step chain used by Run
func (s *Service) WithPipeline(p *Pipeline) *Service {
	s.pipeline = p
	return s
}

// GetConfig returns the service configuration
func (s *Service) GetConfig() *Config {
	return s.config
}

// Run transforms payment records into bucketed summary rows and reconciles
// them. When reconciliation fails the Result is still returned, alongside the
// error, so the caller can report both totals.
func (s *Service) Run(ctx context.Context, input []*models.TransactionRecord, tables *lookup.Tables) (*Result, error) {
	if tables == nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "report run", fmt.Errorf("reference tables are required"))
	}

	state := &State{
		RunID:  uuid.NewString(),
		Input:  input,
		Tables: tables,
	}
	start := time.Now()

	log := s.logger.WithField("run_id", state.RunID)
	log.WithField("input_records", len(input)).Info("Starting report run")

	if ref := tables.GetIndexStats(); ref.TotalConflicts() > 0 {
		log.WithFields(logger.Fields{
			"transaction_types":         ref.TransactionTypes.Conflicts,
			"transaction_types_backend": ref.TransactionTypesBackend.Conflicts,
			"merchant_business_types":   ref.MerchantBusinessTypes.Conflicts,
			"mcc":                       ref.MCC.Conflicts,
		}).Warn("Reference tables hold conflicting keys, first row kept")
	}

	err := s.pipeline.Execute(ctx, state)

	result := &Result{
		RunID:          state.RunID,
		StartedAt:      start,
		Duration:       time.Since(start),
		Rows:           state.Bucketed,
		Reconciliation: state.Reconciliation,
		Stages:         state.Timings,
		Stats:          buildStats(state),
	}

	if err != nil {
		if errors.IsCategory(err, errors.CategoryReconciliation) {
			log.WithError(err).Error("Reconciliation failed")
			return result, err
		}
		return nil, err
	}

	log.WithFields(logger.Fields{
		"summary_rows":          len(result.Rows),
		"dates":                 result.Stats.Dates,
		"null_transaction_type": result.Reconciliation.DataQuality.NullTransactionType,
		"duration":              result.Duration.String(),
	}).Info("Report run completed")

	if n := result.Reconciliation.DataQuality.NullTransactionType; n > 0 {
		log.WithField("records", n).Warn("Records without transaction type after backend lookup")
	}

	return result, nil
}

func buildStats(state *State) Stats {
	stats := Stats{
		InputRecords: len(state.Input),
		SummaryRows:  len(state.Bucketed),
		Resolve:      state.ResolveStats,
		Enrich:       state.EnrichStats,
		Reference:    state.Tables.GetIndexStats(),
		Buckets:      make(map[string]int),
	}

	dates := make(map[string]struct{})
	for _, row := range state.Bucketed {
		dates[row.Date.String()] = struct{}{}
		stats.Buckets[row.TerminalAverageAmountRange]++
	}
	stats.Dates = len(dates)
	return stats
}
