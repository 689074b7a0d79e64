package core

import (
	"context"
	"fmt"
)

// TaskFunc is the entry point of a kernel task.
// param is the opaque value given at registration. Returning from a TaskFunc
// is the same as calling Exit.
type TaskFunc func(ctx context.Context, param any)

// TaskID is the dense registration index of a task.
type TaskID int

// NoTask is returned by Current before the first context switch.
const NoTask TaskID = -1

const (
	// MaxPriority is the highest static priority a task may be registered with.
	MaxPriority uint8 = 8

	// IdlePriority is reserved for the kernel's idle task.
	IdlePriority uint8 = 0

	// MaxTasks bounds the task table, idle task included.
	MaxTasks = 255
)

// =============================================================================
// TaskStatus: lifecycle of a task
// =============================================================================

type TaskStatus uint8

const (
	// TaskReady: eligible for selection
	TaskReady TaskStatus = iota

	// TaskRunning: owns the CPU; exactly one task at a time
	TaskRunning

	// TaskBlocked: waiting for its absolute timeout
	TaskBlocked

	// TaskSuspended: gave its turn to a same-priority peer via Yield
	TaskSuspended

	// TaskStop: exited; terminal
	TaskStop
)

func (s TaskStatus) String() string {
	switch s {
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskBlocked:
		return "blocked"
	case TaskSuspended:
		return "suspended"
	case TaskStop:
		return "stop"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// =============================================================================
// Task: descriptor + state pair
// =============================================================================

// TaskDescriptor is the immutable part of a task, fixed at registration.
type TaskDescriptor struct {
	Entry    TaskFunc
	Priority uint8
	Name     string
	Param    any
}

// TaskState is the mutable part of a task.
//
// SP and StackBase are offsets into the kernel arena. Used is the number of
// live bytes the task holds in the arena: one saved frame while switched out,
// zero while it runs.
type TaskState struct {
	SP           int
	Used         int
	Timeout      uint32
	StackBase    int
	StackSize    int
	Status       TaskStatus
	StatusBackup TaskStatus
	Index        int
}

// Task pairs a descriptor with its state.
type Task struct {
	Desc  TaskDescriptor
	State TaskState

	dispatching bool // inside a timer callback
}

// ID returns the task's registration index.
func (t *Task) ID() TaskID {
	return TaskID(t.State.Index)
}

func (t *Task) setStatus(s TaskStatus) {
	t.State.StatusBackup = t.State.Status
	t.State.Status = s
}

// =============================================================================
// Context Helper
// =============================================================================
type kernelKeyType struct{}

var kernelKey kernelKeyType

// GetCurrentKernel returns the kernel that started the task owning ctx, or nil.
func GetCurrentKernel(ctx context.Context) *Kernel {
	if v := ctx.Value(kernelKey); v != nil {
		return v.(*Kernel)
	}
	return nil
}

func withKernel(ctx context.Context, k *Kernel) context.Context {
	return context.WithValue(ctx, kernelKey, k)
}
