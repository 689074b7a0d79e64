package prometheus

import (
	"errors"
	"fmt"

	"github.com/Swind/go-rtos/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	CompactionBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	contextSwitchTotal *prom.CounterVec
	compactionBytes    prom.Histogram
	timerFiredTotal    *prom.CounterVec
	rebaseTotal        prom.Counter
	timeOffsetMs       prom.Gauge
	fatalTotal         *prom.CounterVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "rtos"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.CompactionBuckets
	if len(buckets) == 0 {
		buckets = prom.ExponentialBuckets(16, 2, 10)
	}

	switchVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "context_switch_total",
		Help:      "Total number of context switches.",
	}, []string{"from", "to"})
	compaction := prom.NewHistogram(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "compaction_bytes",
		Help:      "Bytes moved by each stack arena compaction.",
		Buckets:   buckets,
	})
	timerVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "timer_fired_total",
		Help:      "Total number of software timer dispatches.",
	}, []string{"timer"})
	rebase := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "clock_rebase_total",
		Help:      "Total number of clock rebases.",
	})
	offset := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "clock_offset_ms",
		Help:      "Milliseconds moved out of the tick clock by rebasing.",
	})
	fatalVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "fatal_total",
		Help:      "Total number of kernel halts.",
	}, []string{"reason"})

	var err error
	if switchVec, err = registerCollector(reg, switchVec); err != nil {
		return nil, err
	}
	if compaction, err = registerCollector(reg, compaction); err != nil {
		return nil, err
	}
	if timerVec, err = registerCollector(reg, timerVec); err != nil {
		return nil, err
	}
	if rebase, err = registerCollector(reg, rebase); err != nil {
		return nil, err
	}
	if offset, err = registerCollector(reg, offset); err != nil {
		return nil, err
	}
	if fatalVec, err = registerCollector(reg, fatalVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		contextSwitchTotal: switchVec,
		compactionBytes:    compaction,
		timerFiredTotal:    timerVec,
		rebaseTotal:        rebase,
		timeOffsetMs:       offset,
		fatalTotal:         fatalVec,
	}, nil
}

// RecordContextSwitch records a switch between two tasks.
func (m *MetricsExporter) RecordContextSwitch(from, to string) {
	if m == nil {
		return
	}
	m.contextSwitchTotal.WithLabelValues(normalizeLabel(from, "boot"), normalizeLabel(to, "unknown")).Inc()
}

// RecordCompaction records the bytes moved by one compaction.
func (m *MetricsExporter) RecordCompaction(bytes int) {
	if m == nil {
		return
	}
	m.compactionBytes.Observe(float64(bytes))
}

// RecordTimerFired records one timer dispatch.
func (m *MetricsExporter) RecordTimerFired(name string) {
	if m == nil {
		return
	}
	m.timerFiredTotal.WithLabelValues(normalizeLabel(name, "unknown")).Inc()
}

// RecordRebase records a clock rebase.
func (m *MetricsExporter) RecordRebase(offsetMs uint32) {
	if m == nil {
		return
	}
	m.rebaseTotal.Inc()
	m.timeOffsetMs.Set(float64(offsetMs))
}

// RecordFatal records a kernel halt.
func (m *MetricsExporter) RecordFatal(reason string) {
	if m == nil {
		return
	}
	m.fatalTotal.WithLabelValues(normalizeLabel(reason, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
