package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the batch metrics of one starload process
type Metrics struct {
	registry *prometheus.Registry

	StatementDuration *prometheus.HistogramVec
	RowsAffected      *prometheus.CounterVec
	StatementErrors   *prometheus.CounterVec
	StagedRows        *prometheus.CounterVec
	JoinMisses        prometheus.Gauge
	PipelineState     prometheus.Gauge
	LastSuccess       prometheus.Gauge
}

// NewMetrics registers the starload metrics on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		StatementDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "starload_statement_duration_seconds",
			Help:    "Duration of warehouse statements by stage and table",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"stage", "table"}),
		RowsAffected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "starload_rows_affected_total",
			Help: "Rows written by warehouse statements",
		}, []string{"stage", "table"}),
		StatementErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "starload_statement_errors_total",
			Help: "Failed warehouse statements by stage",
		}, []string{"stage"}),
		StagedRows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "starload_staged_rows_total",
			Help: "Rows loaded into staging tables by the client-side loader",
		}, []string{"table"}),
		JoinMisses: factory.NewGauge(prometheus.GaugeOpts{
			Name: "starload_songplay_join_misses",
			Help: "NextSong events with no matching (artist, title) in staged songs",
		}),
		PipelineState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "starload_pipeline_state",
			Help: "Ordinal of the last pipeline state reached (0 idle .. 5 complete, -1 failed)",
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "starload_last_success_timestamp_seconds",
			Help: "Unix time of the last complete run",
		}),
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStatement records one executed statement
func (m *Metrics) ObserveStatement(stage, table string, took time.Duration, rows int64, err error) {
	m.StatementDuration.WithLabelValues(stage, table).Observe(took.Seconds())
	if err != nil {
		m.StatementErrors.WithLabelValues(stage).Inc()
		return
	}
	if rows > 0 {
		m.RowsAffected.WithLabelValues(stage, table).Add(float64(rows))
	}
}

// MarkSuccess stamps the completion time of a full run
func (m *Metrics) MarkSuccess(at time.Time) {
	m.LastSuccess.Set(float64(at.Unix()))
}

// WriteTextfile writes all metrics in the text exposition format, suitable
// for node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
