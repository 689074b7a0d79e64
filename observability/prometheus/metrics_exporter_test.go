package prometheus

import (
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("rtos", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordContextSwitch("", "blink")
	exporter.RecordContextSwitch("blink", "idle")
	exporter.RecordCompaction(48)
	exporter.RecordTimerFired("heartbeat")
	exporter.RecordTimerFired("heartbeat")
	exporter.RecordRebase(1296000000)
	exporter.RecordFatal("stack arena too small")

	if got := testutil.ToFloat64(exporter.contextSwitchTotal.WithLabelValues("boot", "blink")); got != 1 {
		t.Fatalf("boot switch total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.timerFiredTotal.WithLabelValues("heartbeat")); got != 2 {
		t.Fatalf("timer fired total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(exporter.rebaseTotal); got != 1 {
		t.Fatalf("rebase total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.timeOffsetMs); got != 1296000000 {
		t.Fatalf("clock offset = %v, want 1296000000", got)
	}
	if got := testutil.ToFloat64(exporter.fatalTotal.WithLabelValues("stack arena too small")); got != 1 {
		t.Fatalf("fatal total = %v, want 1", got)
	}

	histCount, histSum, err := histogramSample(exporter.compactionBytes)
	if err != nil {
		t.Fatalf("histogramSample failed: %v", err)
	}
	if histCount != 1 || histSum != 48 {
		t.Fatalf("compaction samples = %d/%v, want 1/48", histCount, histSum)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("rtos", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("rtos", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordTimerFired("blink")
	second.RecordTimerFired("blink")

	got := testutil.ToFloat64(first.timerFiredTotal.WithLabelValues("blink"))
	if got != 2 {
		t.Fatalf("shared timer counter = %v, want 2", got)
	}
}

func TestMetricsExporter_NilSafe(t *testing.T) {
	var exporter *MetricsExporter

	exporter.RecordContextSwitch("a", "b")
	exporter.RecordCompaction(1)
	exporter.RecordTimerFired("t")
	exporter.RecordRebase(1)
	exporter.RecordFatal("x")
}

func histogramSample(collector prom.Collector) (uint64, float64, error) {
	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), msg.Histogram.GetSampleSum(), nil
		}
	}
	return 0, 0, nil
}
