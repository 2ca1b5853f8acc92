package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"golang-regulatory-report/internal/lookup"
	"golang-regulatory-report/internal/models"
	"golang-regulatory-report/pkg/errors"
	"golang-regulatory-report/pkg/logger"
)

// Step is a single stage of the report pipeline
type Step interface {
	Name() string
	Execute(ctx context.Context, state *State) error
}

// State holds the record sets passed between steps. Each step reads the
// previous set and stores a new one.
type State struct {
	RunID  string
	Input  []*models.TransactionRecord
	Tables *lookup.Tables

	Derived        []models.EnrichedRecord
	Resolved       []models.EnrichedRecord
	Enriched       []models.EnrichedRecord
	Summary        []*models.SummaryRow
	Bucketed       []*models.SummaryRow
	Reconciliation *Reconciliation

	ResolveStats ResolveStats
	EnrichStats  EnrichStats
	Timings      []StageTiming
}

// StageTiming records how long a step took and how many records it produced
type StageTiming struct {
	Stage    string        `json:"stage"`
	Records  int           `json:"records"`
	Duration time.Duration `json:"duration"`
}

// DeriveStep computes the classification columns
type DeriveStep struct {
	Rules Rules
}

func (s *DeriveStep) Name() string { return "derive" }

func (s *DeriveStep) Execute(ctx context.Context, state *State) error {
	state.Derived = DeriveAll(s.Rules, state.Input)
	return nil
}

// ResolveStep assigns transaction types through the card and backend paths
type ResolveStep struct {
	Rules Rules
}

func (s *ResolveStep) Name() string { return "resolve" }

func (s *ResolveStep) Execute(ctx context.Context, state *State) error {
	resolved, stats, err := ResolveTransactionTypes(ctx, s.Rules, state.Tables, state.Derived)
	if err != nil {
		return err
	}
	state.Resolved = resolved
	state.ResolveStats = stats
	return nil
}

// EnrichStep fills the merchant fields
type EnrichStep struct {
	Rules Rules
}

func (s *EnrichStep) Name() string { return "enrich" }

func (s *EnrichStep) Execute(ctx context.Context, state *State) error {
	state.Enriched, state.EnrichStats = EnrichMerchants(s.Rules, state.Tables, state.Resolved)
	return nil
}

// AggregateStep groups the enriched records into summary rows
type AggregateStep struct{}

func (s *AggregateStep) Name() string { return "aggregate" }

func (s *AggregateStep) Execute(ctx context.Context, state *State) error {
	state.Summary = Aggregate(state.Enriched)
	return nil
}

// BucketizeStep assigns the average amount range
type BucketizeStep struct{}

func (s *BucketizeStep) Name() string { return "bucketize" }

func (s *BucketizeStep) Execute(ctx context.Context, state *State) error {
	bucketed, err := Bucketize(state.Summary)
	if err != nil {
		return err
	}
	state.Bucketed = bucketed
	return nil
}

// ReconcileStep compares the bucketed summary against the input
type ReconcileStep struct {
	Tolerance decimal.Decimal
}

func (s *ReconcileStep) Name() string { return "reconcile" }

func (s *ReconcileStep) Execute(ctx context.Context, state *State) error {
	rec, err := Reconcile(state.Input, state.Bucketed, s.Tolerance)
	state.Reconciliation = rec
	return err
}

// Pipeline executes a sequence of steps in order
type Pipeline struct {
	steps  []Step
	logger logger.Logger
}

// NewPipeline creates a new pipeline with the given steps
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{
		steps:  steps,
		logger: logger.WithComponent("pipeline"),
	}
}

// NewReportPipeline creates the standard six-step report pipeline
func NewReportPipeline(rules Rules, tolerance decimal.Decimal) *Pipeline {
	return NewPipeline(
		&DeriveStep{Rules: rules},
		&ResolveStep{Rules: rules},
		&EnrichStep{Rules: rules},
		&AggregateStep{},
		&BucketizeStep{},
		&ReconcileStep{Tolerance: tolerance},
	)
}

// Execute runs all steps sequentially. Cancellation is checked between steps.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return errors.InternalError(errors.CodeCancelled, "report pipeline", err).
				WithContext("step", step.Name())
		}

		log := p.logger.WithFields(logger.Fields{"run_id": state.RunID, "step": step.Name()})
		elapsed, err := logger.TimedOperation(step.Name(), log, func() error {
			return step.Execute(ctx, state)
		})
		if err != nil {
			if _, ok := errors.AsReportError(err); ok {
				return err
			}
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}

		records := state.recordCount(step.Name())
		state.Timings = append(state.Timings, StageTiming{Stage: step.Name(), Records: records, Duration: elapsed})
		log.WithField("records", records).Info("Step completed")
	}
	return nil
}

func (s *State) recordCount(stage string) int {
	switch stage {
	case "derive":
		return len(s.Derived)
	case "resolve":
		return len(s.Resolved)
	case "enrich":
		return len(s.Enriched)
	case "aggregate":
		return len(s.Summary)
	case "bucketize", "reconcile":
		return len(s.Bucketed)
	default:
		return 0
	}
}
