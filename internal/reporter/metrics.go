package reporter

import (
	"github.com/prometheus/client_golang/prometheus"

	"golang-regulatory-report/internal/pipeline"
	"golang-regulatory-report/pkg/errors"
)

const metricsNamespace = "regreport"

// RunMetrics holds the gauges describing one report run. Each run gets its
// own registry so the textfile only contains this run.
type RunMetrics struct {
	registry *prometheus.Registry

	inputRecords   prometheus.Gauge
	summaryRows    prometheus.Gauge
	dates          prometheus.Gauge
	filesWritten   prometheus.Gauge
	inputAmount    prometheus.Gauge
	outputAmount   prometheus.Gauge
	reconciled     prometheus.Gauge
	nullFields     *prometheus.GaugeVec
	lookupOutcomes *prometheus.GaugeVec
	bucketRows     *prometheus.GaugeVec
	refConflicts   *prometheus.GaugeVec
	stageSeconds   *prometheus.GaugeVec
	lastRun        prometheus.Gauge
}

// NewRunMetrics creates and registers the run gauges
func NewRunMetrics() *RunMetrics {
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		inputRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "input_records",
			Help: "Payment records loaded for the run.",
		}),
		summaryRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "summary_rows",
			Help: "Summary rows produced by aggregation.",
		}),
		dates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "report_dates",
			Help: "Distinct reporting dates in the output.",
		}),
		filesWritten: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "files_written",
			Help: "Per-date report files written.",
		}),
		inputAmount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "input_amount",
			Help: "Sum of input payment amounts.",
		}),
		outputAmount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "summary_amount",
			Help: "Sum of summary row amounts.",
		}),
		reconciled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "reconciliation_passed",
			Help: "1 when the summary reconciled with the input, 0 otherwise.",
		}),
		nullFields: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "null_field_records",
			Help: "Records whose reported field stayed null.",
		}, []string{"field"}),
		lookupOutcomes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "transaction_type_lookups",
			Help: "Transaction type lookup outcomes by resolver path.",
		}, []string{"path", "outcome"}),
		refConflicts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "reference_key_conflicts",
			Help: "Reference keys mapped to more than one code; the first row was kept.",
		}, []string{"table"}),
		bucketRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "bucket_rows",
			Help: "Summary rows per average amount range.",
		}, []string{"bucket"}),
		stageSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "stage_duration_seconds",
			Help: "Wall time of each pipeline stage.",
		}, []string{"stage"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "last_run_timestamp_seconds",
			Help: "Unix time the run started.",
		}),
	}

	m.registry.MustRegister(
		m.inputRecords, m.summaryRows, m.dates, m.filesWritten,
		m.inputAmount, m.outputAmount, m.reconciled,
		m.nullFields, m.lookupOutcomes, m.refConflicts, m.bucketRows, m.stageSeconds, m.lastRun,
	)
	return m
}

// Observe records a run result and the files it produced
func (m *RunMetrics) Observe(result *pipeline.Result, files []ExportedFile) {
	m.inputRecords.Set(float64(result.Stats.InputRecords))
	m.summaryRows.Set(float64(result.Stats.SummaryRows))
	m.dates.Set(float64(result.Stats.Dates))
	m.filesWritten.Set(float64(len(files)))
	m.lastRun.Set(float64(result.StartedAt.Unix()))

	if rec := result.Reconciliation; rec != nil {
		in, _ := rec.InputTotal.Float64()
		out, _ := rec.OutputTotal.Float64()
		m.inputAmount.Set(in)
		m.outputAmount.Set(out)
		if rec.Passed {
			m.reconciled.Set(1)
		} else {
			m.reconciled.Set(0)
		}
		m.nullFields.WithLabelValues("transaction_type").Set(float64(rec.DataQuality.NullTransactionType))
		m.nullFields.WithLabelValues("merchant_business_type").Set(float64(rec.DataQuality.NullMerchantBusinessType))
		m.nullFields.WithLabelValues("merchant_category_code").Set(float64(rec.DataQuality.NullMerchantCategoryCode))
	}

	for path, stats := range map[string]pipeline.PathStats{
		"card":    result.Stats.Resolve.Card,
		"backend": result.Stats.Resolve.Backend,
	} {
		m.lookupOutcomes.WithLabelValues(path, "matched").Set(float64(stats.Matched))
		m.lookupOutcomes.WithLabelValues(path, "defaulted").Set(float64(stats.Defaulted))
		m.lookupOutcomes.WithLabelValues(path, "unresolved").Set(float64(stats.Unresolved))
	}

	for table, stats := range result.Stats.Reference.ByTable() {
		m.refConflicts.WithLabelValues(table).Set(float64(stats.Conflicts))
	}

	for bucket, rows := range result.Stats.Buckets {
		m.bucketRows.WithLabelValues(bucket).Set(float64(rows))
	}

	for _, stage := range result.Stages {
		m.stageSeconds.WithLabelValues(stage.Stage).Set(stage.Duration.Seconds())
	}
}

// Registry exposes the underlying registry
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the metrics in the node exporter textfile format
func (m *RunMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.ExportError(errors.CodeWriteFailed, path, err)
	}
	return nil
}
