package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"deepresearch/internal/server/ports"
)

// PipelineMetrics exposes Prometheus collectors that report research pipeline activity.
type PipelineMetrics struct {
	stageDuration  *prometheus.HistogramVec
	stageFailures  *prometheus.CounterVec
	adapterRetries *prometheus.CounterVec
	tasksActive    prometheus.Gauge
	tasksFinished  *prometheus.CounterVec
	evidenceTotal  prometheus.Counter
}

// MustNewPipelineMetrics registers the pipeline collectors with reg. Collectors
// already registered under the same name are reused so repeated construction
// against the default registry does not panic.
func MustNewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PipelineMetrics{
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "deepresearch",
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Duration spent in each research stage.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage", "status"},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "deepresearch",
				Subsystem: "pipeline",
				Name:      "stage_failures_total",
				Help:      "Total number of steps that finished as failed.",
			},
			[]string{"stage"},
		),
		adapterRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "deepresearch",
				Subsystem: "adapter",
				Name:      "retries_total",
				Help:      "Number of times an adapter call was retried.",
			},
			[]string{"adapter"},
		),
		tasksActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "deepresearch",
				Subsystem: "pipeline",
				Name:      "tasks_active",
				Help:      "Number of research tasks currently being executed.",
			},
		),
		tasksFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "deepresearch",
				Subsystem: "pipeline",
				Name:      "tasks_finished_total",
				Help:      "Research tasks that reached a terminal status.",
			},
			[]string{"status"},
		),
		evidenceTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "deepresearch",
				Subsystem: "pipeline",
				Name:      "evidence_cards_total",
				Help:      "Evidence cards recorded across all tasks.",
			},
		),
	}

	m.stageDuration = register(reg, m.stageDuration)
	m.stageFailures = register(reg, m.stageFailures)
	m.adapterRetries = register(reg, m.adapterRetries)
	m.tasksActive = register(reg, m.tasksActive)
	m.tasksFinished = register(reg, m.tasksFinished)
	m.evidenceTotal = register(reg, m.evidenceTotal)
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) T {
	if err := reg.Register(collector); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

// ObserveStageDuration records the time spent in a stage with the provided status label.
func (m *PipelineMetrics) ObserveStageDuration(stage, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
}

// IncStageFailure increments the failure counter for the given stage.
func (m *PipelineMetrics) IncStageFailure(stage string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage).Inc()
}

// IncAdapterRetry counts one retry of the named adapter.
func (m *PipelineMetrics) IncAdapterRetry(adapter string) {
	if m == nil {
		return
	}
	m.adapterRetries.WithLabelValues(adapter).Inc()
}

// TaskStarted increments the active task gauge.
func (m *PipelineMetrics) TaskStarted() {
	if m == nil {
		return
	}
	m.tasksActive.Inc()
}

// TaskFinished decrements the active task gauge and counts the outcome.
func (m *PipelineMetrics) TaskFinished(status ports.TaskStatus) {
	if m == nil {
		return
	}
	m.tasksActive.Dec()
	m.tasksFinished.WithLabelValues(string(status)).Inc()
}

// AddEvidence counts newly recorded evidence cards.
func (m *PipelineMetrics) AddEvidence(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evidenceTotal.Add(float64(n))
}

// OnStep records stage durations and failures as steps settle.
func (m *PipelineMetrics) OnStep(_ string, step ports.Step) {
	if m == nil || step.Status == ports.StepStatusRunning {
		return
	}
	if step.FinishedAt != nil && !step.StartedAt.IsZero() {
		m.ObserveStageDuration(string(step.Kind), string(step.Status), step.FinishedAt.Sub(step.StartedAt))
	}
	if step.Status == ports.StepStatusFailed {
		m.IncStageFailure(string(step.Kind))
	}
}
