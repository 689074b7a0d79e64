package core

import (
	"context"
	"fmt"
	"math"
)

// TimerFunc is a software timer callback. It runs from the timer sweep with
// interrupts enabled and must not call DelayMs.
type TimerFunc func(ctx context.Context, param any)

// TimerID is the dense registration index of a timer.
type TimerID int

// NoTimer is returned with lookup and registration errors.
const NoTimer TimerID = -1

const (
	// MaxTimerPeriod is the longest period or delay, 30 days in ms.
	MaxTimerPeriod uint32 = 30 * 24 * 60 * 60 * 1000

	// RebaseThreshold is the clock value that triggers a rebase, 15 days in ms.
	RebaseThreshold uint32 = 15 * 24 * 60 * 60 * 1000

	noTimeout uint32 = math.MaxUint32
)

// TimerDescriptor is the immutable part of a timer.
type TimerDescriptor struct {
	Entry   TimerFunc
	Period  uint32
	OneShot bool
	Name    string
	Param   any
}

// TimerState is the mutable part of a timer. Time is the absolute fire time
// while Running; Remaining holds the time left while paused.
type TimerState struct {
	Time      uint32
	Remaining uint32
	Running   bool
	Paused    bool
	Fired     uint64
	Index     int
}

// Timer pairs a descriptor with its state.
type Timer struct {
	Desc  TimerDescriptor
	State TimerState
}

// ID returns the timer's registration index.
func (tm *Timer) ID() TimerID {
	return TimerID(tm.State.Index)
}

func (tm *Timer) arm(now, after uint32) {
	tm.State.Time = now + after
	tm.State.Running = true
	tm.State.Paused = false
	tm.State.Remaining = 0
}

// =============================================================================
// Timer control
// =============================================================================

// FindTimer returns the id of the timer registered under name, or
// ErrTimerNotFound.
func (k *Kernel) FindTimer(name string) (TimerID, error) {
	return k.registry.FindTimer(name)
}

// TimerStart arms a stopped timer for one period from now. A running timer is
// left untouched.
func (k *Kernel) TimerStart(id TimerID) {
	tm := k.timer(id)
	k.cs.Enter()
	if !tm.State.Running {
		tm.arm(k.time, tm.Desc.Period)
		k.updateTimeOutMin()
	}
	k.cs.Exit()
}

// TimerPause stops a running timer and keeps the time it had left.
func (k *Kernel) TimerPause(id TimerID) {
	tm := k.timer(id)
	k.cs.Enter()
	if tm.State.Running {
		left := uint32(0)
		if tm.State.Time > k.time {
			left = tm.State.Time - k.time
		}
		tm.State.Running = false
		tm.State.Paused = true
		tm.State.Remaining = left
		k.updateTimeOutMin()
	}
	k.cs.Exit()
}

// TimerContinue resumes a paused timer with the time it had left. A timer
// that was never paused starts with a full period.
func (k *Kernel) TimerContinue(id TimerID) {
	tm := k.timer(id)
	k.cs.Enter()
	if !tm.State.Running {
		after := tm.Desc.Period
		if tm.State.Paused {
			after = tm.State.Remaining
		}
		tm.arm(k.time, after)
		k.updateTimeOutMin()
	}
	k.cs.Exit()
}

// TimerReset re-arms a timer for a full period from now, running or not.
func (k *Kernel) TimerReset(id TimerID) {
	tm := k.timer(id)
	k.cs.Enter()
	tm.arm(k.time, tm.Desc.Period)
	k.updateTimeOutMin()
	k.cs.Exit()
}

// TimerRunning reports whether the timer is armed.
func (k *Kernel) TimerRunning(id TimerID) bool {
	tm := k.timer(id)
	k.cs.Enter()
	running := tm.State.Running
	k.cs.Exit()
	return running
}

func (k *Kernel) timer(id TimerID) *Timer {
	tm := k.registry.Timer(id)
	if tm == nil {
		k.fatal(fmt.Errorf("timer %d of %d: %w", id, k.registry.TimerCount(), ErrInvalidTimer))
	}
	return tm
}

// updateTimeOutMin recomputes the earliest fire time over running timers.
// Caller holds the critical section.
func (k *Kernel) updateTimeOutMin() {
	earliest := noTimeout
	for _, tm := range k.registry.timers {
		if tm.State.Running && tm.State.Time < earliest {
			earliest = tm.State.Time
		}
	}
	k.timeOutMin = earliest
}
