package core

import (
	"bytes"
	"errors"
	"log"
	"os"
	"strings"
	"testing"
)

func TestDefaultFatalHandler(t *testing.T) {
	// Given: A DefaultFatalHandler
	handler := &DefaultFatalHandler{}

	// When: HandleFatal is called with and without a task
	handler.HandleFatal(ErrIdleDelay, "idle")
	handler.HandleFatal(ErrArenaTooSmall, "")

	// Then: No panic should occur
}

func TestNilMetrics(t *testing.T) {
	// Given: NilMetrics
	var m Metrics = &NilMetrics{}

	// When: every method is called
	m.RecordContextSwitch("a", "b")
	m.RecordCompaction(64)
	m.RecordTimerFired("t")
	m.RecordRebase(1)
	m.RecordFatal("x")

	// Then: nothing happens
}

// TestDefaultKernelConfig verifies default handlers and values
func TestDefaultKernelConfig(t *testing.T) {
	config := DefaultKernelConfig()

	if config.Logger == nil || config.Metrics == nil || config.FatalHandler == nil {
		t.Fatal("expected default handlers")
	}
	if config.TickQuantum != 1 {
		t.Errorf("expected tick quantum 1, got %d", config.TickQuantum)
	}
	if config.HistorySize != 64 {
		t.Errorf("expected history size 64, got %d", config.HistorySize)
	}
}

// TestNewKernel_NilConfig verifies a nil config falls back to defaults
func TestNewKernel_NilConfig(t *testing.T) {
	p := newFakePlatform()
	k := NewKernel(p, nil)

	if k.logger == nil || k.metrics == nil || k.fatalHandler == nil {
		t.Fatal("expected defaults for nil config")
	}
	if k.tickQuantum != 1 {
		t.Errorf("expected tick quantum 1, got %d", k.tickQuantum)
	}
	if p.tick == nil || p.pendSV == nil {
		t.Error("expected handlers attached to the platform")
	}
	if k.Current() != NoTask {
		t.Errorf("expected NoTask before boot, got %d", k.Current())
	}
}

// TestKernel_MetricsAndHistory verifies switches are reported
// Main test items:
// 1. Each switch is recorded in metrics with task names
// 2. Compactions report moved bytes
// 3. RecentSwitches returns the newest switch first
func TestKernel_MetricsAndHistory(t *testing.T) {
	// Arrange
	k := newTestKernel(t)
	k.RegisterTask(nopTask, 3, "t1", nil)
	k.RegisterTask(nopTask, 3, "t2", nil)
	k.boot(t, 1024)

	// Act
	k.Yield()
	k.Yield()

	// Assert
	want := []string{"->t1", "t1->t2", "t2->t1"}
	if strings.Join(k.metrics.switches, ",") != strings.Join(want, ",") {
		t.Errorf("expected switches %v, got %v", want, k.metrics.switches)
	}
	if len(k.metrics.compactions) == 0 {
		t.Error("expected compactions recorded")
	}
	recent := k.RecentSwitches(2)
	if len(recent) != 2 || recent[0].From != "t2" || recent[0].To != "t1" {
		t.Errorf("unexpected recent switches %+v", recent)
	}
	if all := k.RecentSwitches(0); len(all) != 3 {
		t.Errorf("expected 3 switches in history, got %d", len(all))
	}

	k.refreshStats()
	stats := k.Stats()
	if stats.Switches != 3 || stats.Current != "t1" {
		t.Errorf("unexpected stats %+v", stats)
	}
	if len(stats.Tasks) != 3 || stats.Tasks[2].Name != "idle" {
		t.Errorf("expected 3 tasks ending with idle, got %+v", stats.Tasks)
	}
	if !stats.Tasks[0].Pinned {
		t.Error("expected t1 pinned")
	}
	if stats.ArenaFree != stats.ArenaSize-2*k.arena.FrameSize() {
		t.Errorf("expected two saved frames, free %d of %d", stats.ArenaFree, stats.ArenaSize)
	}
	if got := k.Task(1); got.Name != "t2" || got.Status != TaskSuspended {
		t.Errorf("unexpected task snapshot %+v", got)
	}
	if got := k.Task(7); got.ID != NoTask {
		t.Errorf("expected NoTask for an unknown id, got %+v", got)
	}
}

// TestSwitchHistory_Wraps verifies the ring keeps the newest records
func TestSwitchHistory_Wraps(t *testing.T) {
	h := newSwitchHistory(3)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		h.Add(SwitchRecord{To: name})
	}

	got := h.Recent(10)
	if len(got) != 3 || got[0].To != "e" || got[2].To != "c" {
		t.Errorf("unexpected history %+v", got)
	}
	empty := newSwitchHistory(0)
	if empty.Recent(1) != nil {
		t.Error("expected no records")
	}
}

// TestLogger_FormatLine verifies the default line layout
func TestLogger_FormatLine(t *testing.T) {
	line := formatLine("rtos", "INFO", "booted", []Field{F("tasks", 3), F("pinned", "blink")})

	if line != "rtos: [INFO] booted {tasks: 3, pinned: blink}" {
		t.Errorf("unexpected line %q", line)
	}
	if got := formatLine("", "WARN", "w", nil); got != "[WARN] w" {
		t.Errorf("unexpected line %q", got)
	}
}

// TestDefaultLogger_Verbose verifies debug output is gated
func TestDefaultLogger_Verbose(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	l := NewDefaultLogger()
	l.Debug("hidden")
	l.Error("shown", F("error", errors.New("boom")))
	l.Verbose = true
	l.Debug("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("expected debug dropped when not verbose")
	}
	if !strings.Contains(out, "[ERROR] shown {error: boom}") || !strings.Contains(out, "visible") {
		t.Errorf("unexpected output %q", out)
	}
}
