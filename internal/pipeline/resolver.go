package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"golang-regulatory-report/internal/lookup"
	"golang-regulatory-report/internal/models"
	"golang-regulatory-report/pkg/errors"
)

// Resolver assigns transaction_type to the records of one lookup path
type Resolver interface {
	Name() string
	Resolve(records []models.EnrichedRecord) ([]models.EnrichedRecord, PathStats)
}

// PathStats counts lookup outcomes for one resolver path
type PathStats struct {
	Records    int `json:"records"`
	Matched    int `json:"matched"`
	Defaulted  int `json:"defaulted"`
	Unresolved int `json:"unresolved"`
}

// ResolveStats summarises both resolver paths
type ResolveStats struct {
	Card    PathStats `json:"card"`
	Backend PathStats `json:"backend"`
}

// CardResolver resolves primary-method payments by (country, card_type,
// card_brand). A record missing any card attribute gets the default code.
type CardResolver struct {
	Rules  Rules
	Tables *lookup.Tables
}

// Name returns the path name
func (c *CardResolver) Name() string { return "card" }

// Resolve implements Resolver
func (c *CardResolver) Resolve(records []models.EnrichedRecord) ([]models.EnrichedRecord, PathStats) {
	stats := PathStats{Records: len(records)}
	out := make([]models.EnrichedRecord, len(records))

	for i, r := range records {
		code, _ := c.Tables.TransactionType(r.Country, r.CardType, r.CardBrand)

		// every record lands in exactly one of defaulted, matched or unresolved
		switch {
		case r.CardType.IsNull() || r.CardCountryIssuerCode.IsNull() || r.CardBrand.IsNull():
			code = models.Str(c.Rules.DefaultTransactionType)
			stats.Defaulted++
		case code.Valid:
			stats.Matched++
		default:
			stats.Unresolved++
		}

		r.TransactionType = code
		out[i] = r
	}
	return out, stats
}

// BackendResolver resolves every other payment by backend_name. There is no
// default: a miss leaves transaction_type null.
type BackendResolver struct {
	Tables *lookup.Tables
}

// Name returns the path name
func (b *BackendResolver) Name() string { return "backend" }

// Resolve implements Resolver
func (b *BackendResolver) Resolve(records []models.EnrichedRecord) ([]models.EnrichedRecord, PathStats) {
	stats := PathStats{Records: len(records)}
	out := make([]models.EnrichedRecord, len(records))

	for i, r := range records {
		code, _ := b.Tables.BackendTransactionType(r.BackendName)
		if code.Valid {
			stats.Matched++
		} else {
			stats.Unresolved++
		}
		r.TransactionType = code
		out[i] = r
	}
	return out, stats
}

// Partition splits records into the card path (primary payment method) and
// the backend path (everything else, null payment_method included).
func Partition(rules Rules, records []models.EnrichedRecord) (card, backend []models.EnrichedRecord) {
	for _, r := range records {
		if r.PaymentMethod.Is(rules.PrimaryPaymentMethod) {
			card = append(card, r)
		} else {
			backend = append(backend, r)
		}
	}
	return card, backend
}

// ResolveTransactionTypes partitions the records, resolves both paths
// concurrently and unions the results, card path first.
func ResolveTransactionTypes(ctx context.Context, rules Rules, tables *lookup.Tables, records []models.EnrichedRecord) ([]models.EnrichedRecord, ResolveStats, error) {
	cardIn, backendIn := Partition(rules, records)
	if len(cardIn)+len(backendIn) != len(records) {
		return nil, ResolveStats{}, errors.InternalError(errors.CodeInvariantViolation, "transaction type partition",
			fmt.Errorf("partition produced %d+%d records from %d", len(cardIn), len(backendIn), len(records)))
	}

	resolvers := []Resolver{
		&CardResolver{Rules: rules, Tables: tables},
		&BackendResolver{Tables: tables},
	}
	inputs := [][]models.EnrichedRecord{cardIn, backendIn}
	outputs := make([][]models.EnrichedRecord, len(resolvers))
	pathStats := make([]PathStats, len(resolvers))

	g, gctx := errgroup.WithContext(ctx)
	for i, resolver := range resolvers {
		i, resolver := i, resolver
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return errors.InternalError(errors.CodeCancelled, resolver.Name()+" transaction type resolution", err)
			}
			outputs[i], pathStats[i] = resolver.Resolve(inputs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, ResolveStats{}, err
	}

	union := make([]models.EnrichedRecord, 0, len(records))
	for _, out := range outputs {
		union = append(union, out...)
	}

	if len(union) != len(records) {
		return nil, ResolveStats{}, errors.InternalError(errors.CodeInvariantViolation, "transaction type union",
			fmt.Errorf("union holds %d records, input held %d", len(union), len(records)))
	}

	return union, ResolveStats{Card: pathStats[0], Backend: pathStats[1]}, nil
}
