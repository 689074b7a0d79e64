package core

import (
	"fmt"
)

// =============================================================================
// FatalHandler: Interface for observing kernel halts
// =============================================================================

// FatalHandler is called once, right before the platform halts the system on
// a violated kernel invariant. It runs with kernel state suspect and must not
// call back into the kernel.
type FatalHandler interface {
	// HandleFatal is called with the halt reason.
	//
	// Parameters:
	// - err: The violated invariant (matchable with errors.Is)
	// - task: The name of the task that was running, or "" before boot
	HandleFatal(err error, task string)
}

// DefaultFatalHandler prints the halt reason to stdout.
type DefaultFatalHandler struct{}

// HandleFatal prints the halt reason to stdout.
func (h *DefaultFatalHandler) HandleFatal(err error, task string) {
	if task != "" {
		fmt.Printf("[Task %s] Fatal: %v\n", task, err)
	} else {
		fmt.Printf("[Kernel] Fatal: %v\n", err)
	}
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting kernel metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods are called from kernel context with interrupts masked; they must be
// non-blocking and fast.
type Metrics interface {
	// RecordContextSwitch records a switch between two tasks.
	//
	// Parameters:
	// - from: The name of the task switched out ("" for the boot context)
	// - to: The name of the task switched in
	RecordContextSwitch(from, to string)

	// RecordCompaction records the bytes moved by one arena compaction.
	RecordCompaction(bytes int)

	// RecordTimerFired records one software timer callback dispatch.
	RecordTimerFired(name string)

	// RecordRebase records a clock rebase and the accumulated offset after it.
	RecordRebase(offsetMs uint32)

	// RecordFatal records that the kernel halted.
	RecordFatal(reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordContextSwitch is a no-op.
func (m *NilMetrics) RecordContextSwitch(from, to string) {}

// RecordCompaction is a no-op.
func (m *NilMetrics) RecordCompaction(bytes int) {}

// RecordTimerFired is a no-op.
func (m *NilMetrics) RecordTimerFired(name string) {}

// RecordRebase is a no-op.
func (m *NilMetrics) RecordRebase(offsetMs uint32) {}

// RecordFatal is a no-op.
func (m *NilMetrics) RecordFatal(reason string) {}

// =============================================================================
// KernelConfig: Configuration for Kernel
// =============================================================================

const (
	defaultTickQuantum = 1
	defaultHistorySize = 64
)

// KernelConfig holds configuration options for Kernel.
// All fields are optional; zero values fall back to defaults.
type KernelConfig struct {
	// Logger receives boot, rebase and fatal messages. Defaults to DefaultLogger.
	Logger Logger

	// Metrics is called to record kernel metrics. Defaults to NilMetrics.
	Metrics Metrics

	// FatalHandler is called before the platform halts. Defaults to DefaultFatalHandler.
	FatalHandler FatalHandler

	// TickQuantum is the number of milliseconds one Tick advances the clock. Defaults to 1.
	TickQuantum uint32

	// HistorySize is the number of context switches kept for RecentSwitches. Defaults to 64.
	HistorySize int
}

// DefaultKernelConfig returns a config with default handlers.
func DefaultKernelConfig() *KernelConfig {
	return &KernelConfig{
		Logger:       NewDefaultLogger(),
		Metrics:      &NilMetrics{},
		FatalHandler: &DefaultFatalHandler{},
		TickQuantum:  defaultTickQuantum,
		HistorySize:  defaultHistorySize,
	}
}
