package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for reprobox
type Metrics struct {
	// Command execution metrics
	CommandExecutions *prometheus.CounterVec
	CommandDuration   *prometheus.HistogramVec
	CommandErrors     *prometheus.CounterVec

	// Pack metrics
	PacksCreated  *prometheus.CounterVec
	PackMembers   prometheus.Histogram
	PackSizeBytes prometheus.Histogram

	// Setup metrics
	SetupDuration  prometheus.Histogram
	ExtractedFiles prometheus.Histogram
	ExtractedBytes prometheus.Counter

	// Replay metrics
	RunsExecuted   *prometheus.CounterVec
	ReplayDuration prometheus.Histogram
	ReplayResults  *prometheus.CounterVec

	// File substitution metrics
	Uploads   *prometheus.CounterVec
	Downloads prometheus.Counter

	// Registry metrics
	RegistryOperations *prometheus.CounterVec
	RegistryDuration   *prometheus.HistogramVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		// Command metrics
		CommandExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reprobox_command_executions_total",
				Help: "Total number of command executions",
			},
			[]string{"command", "success"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reprobox_command_duration_seconds",
				Help:    "Command execution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		CommandErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reprobox_command_errors_total",
				Help: "Total number of command errors",
			},
			[]string{"command", "error_code"},
		),

		// Pack metrics
		PacksCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reprobox_packs_created_total",
				Help: "Total number of packs written",
			},
			[]string{"trace"},
		),
		PackMembers: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reprobox_pack_members",
				Help:    "Number of members per pack",
				Buckets: prometheus.ExponentialBuckets(10, 4, 8),
			},
		),
		PackSizeBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reprobox_pack_size_bytes",
				Help:    "Compressed size of written packs",
				Buckets: prometheus.ExponentialBuckets(1<<20, 4, 8),
			},
		),

		// Setup metrics
		SetupDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reprobox_setup_duration_seconds",
				Help:    "Time to unpack a pack into a replay target",
				Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
			},
		),
		ExtractedFiles: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reprobox_setup_extracted_files",
				Help:    "Number of files extracted per setup",
				Buckets: prometheus.ExponentialBuckets(10, 4, 8),
			},
		),
		ExtractedBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "reprobox_setup_extracted_bytes_total",
				Help: "Total bytes extracted into replay roots",
			},
		),

		// Replay metrics
		RunsExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reprobox_runs_executed_total",
				Help: "Total number of recorded runs replayed",
			},
			[]string{"run"},
		),
		ReplayDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reprobox_replay_duration_seconds",
				Help:    "Wall time of replay invocations",
				Buckets: prometheus.DefBuckets,
			},
		),
		ReplayResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reprobox_replay_results_total",
				Help: "Replay invocations by outcome",
			},
			[]string{"outcome"},
		),

		// File substitution metrics
		Uploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reprobox_uploads_total",
				Help: "Input file substitutions",
			},
			[]string{"kind"},
		),
		Downloads: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "reprobox_downloads_total",
				Help: "Output files copied out of replay roots",
			},
		),

		// Registry metrics
		RegistryOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reprobox_registry_operations_total",
				Help: "Pack push/pull operations",
			},
			[]string{"operation", "success"},
		),
		RegistryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reprobox_registry_duration_seconds",
				Help:    "Pack push/pull duration in seconds",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"operation"},
		),

		// Error metrics
		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reprobox_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code"},
		),
	}
}

// RecordCommand records one CLI command. code is the error code of a
// failed command, empty on success.
func (m *Metrics) RecordCommand(command string, duration time.Duration, code string) {
	m.CommandExecutions.WithLabelValues(command, strconv.FormatBool(code == "")).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(duration.Seconds())
	if code != "" {
		m.CommandErrors.WithLabelValues(command, code).Inc()
		m.Errors.WithLabelValues(code).Inc()
	}
}

// RecordPack records a written pack.
func (m *Metrics) RecordPack(members int, size int64, hasTrace bool) {
	m.PacksCreated.WithLabelValues(strconv.FormatBool(hasTrace)).Inc()
	m.PackMembers.Observe(float64(members))
	m.PackSizeBytes.Observe(float64(size))
}

// RecordSetup records an unpacked target.
func (m *Metrics) RecordSetup(duration time.Duration, files int, bytes int64) {
	m.SetupDuration.Observe(duration.Seconds())
	m.ExtractedFiles.Observe(float64(files))
	m.ExtractedBytes.Add(float64(bytes))
}

// RecordReplay records one replay invocation of runs. outcome is
// "success", "failure", "signaled" or "stopped".
func (m *Metrics) RecordReplay(runs []int, duration time.Duration, outcome string) {
	for _, r := range runs {
		m.RunsExecuted.WithLabelValues(strconv.Itoa(r)).Inc()
	}
	m.ReplayDuration.Observe(duration.Seconds())
	m.ReplayResults.WithLabelValues(outcome).Inc()
}

// RecordRegistry records a push or pull.
func (m *Metrics) RecordRegistry(operation string, duration time.Duration, success bool) {
	m.RegistryOperations.WithLabelValues(operation, strconv.FormatBool(success)).Inc()
	m.RegistryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
