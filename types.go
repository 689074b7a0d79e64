package rtos

import "github.com/Swind/go-rtos/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the rtos package for most use cases.

// Kernel is the scheduler, time base and soft timer subsystem
type Kernel = core.Kernel

// KernelConfig configures a Kernel
type KernelConfig = core.KernelConfig

// TaskFunc is the entry point of a task
type TaskFunc = core.TaskFunc

// TimerFunc is the callback of a soft timer
type TimerFunc = core.TimerFunc

// TaskID identifies a registered task
type TaskID = core.TaskID

// TimerID identifies a registered timer
type TimerID = core.TimerID

// TaskStatus is the lifecycle state of a task
type TaskStatus = core.TaskStatus

// KernelStats is a point-in-time snapshot of a kernel
type KernelStats = core.KernelStats

// Logger receives kernel log messages
type Logger = core.Logger

// Metrics receives kernel metrics
type Metrics = core.Metrics

// FatalHandler is called before the system halts
type FatalHandler = core.FatalHandler

// HaltError carries the reason the system halted
type HaltError = core.HaltError

// Task states
const (
	TaskReady     = core.TaskReady
	TaskRunning   = core.TaskRunning
	TaskBlocked   = core.TaskBlocked
	TaskSuspended = core.TaskSuspended
	TaskStop      = core.TaskStop
)

// Limits
const (
	NoTask          = core.NoTask
	NoTimer         = core.NoTimer
	MaxPriority     = core.MaxPriority
	MaxTasks        = core.MaxTasks
	MaxTimerPeriod  = core.MaxTimerPeriod
	RebaseThreshold = core.RebaseThreshold
)

// Halt reasons, matched with errors.Is on the error returned by Run.
var (
	ErrInvalidPriority = core.ErrInvalidPriority
	ErrInvalidPeriod   = core.ErrInvalidPeriod
	ErrArenaTooSmall   = core.ErrArenaTooSmall
	ErrStackOverflow   = core.ErrStackOverflow
	ErrDelayTooLong    = core.ErrDelayTooLong
	ErrAlreadyRunning  = core.ErrAlreadyRunning
	ErrTimerNotFound   = core.ErrTimerNotFound
)

// Convenience constructors
var (
	DefaultKernelConfig = core.DefaultKernelConfig
	NewDefaultLogger    = core.NewDefaultLogger
	NewNoOpLogger       = core.NewNoOpLogger
)

// GetCurrentKernel retrieves the running Kernel from a task's context
var GetCurrentKernel = core.GetCurrentKernel
