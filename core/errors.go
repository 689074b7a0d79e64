package core

import (
	"errors"
	"fmt"
)

// Kernel halt reasons. The kernel never returns these to task code; they are
// passed to the fatal path and can be matched with errors.Is on the error
// returned by Run or carried by a HaltError.
var (
	ErrInvalidPriority = errors.New("invalid task priority")
	ErrInvalidPeriod   = errors.New("invalid timer period")
	ErrNilEntry        = errors.New("nil entry function")
	ErrTooManyTasks    = errors.New("too many tasks")
	ErrDuplicateTimer  = errors.New("duplicate timer name")
	ErrRegistryClosed  = errors.New("registration after init")
	ErrArenaTooSmall   = errors.New("stack arena too small")
	ErrStackOverflow   = errors.New("task stack exceeds its slice")
	ErrInvalidTimer    = errors.New("timer id out of range")
	ErrIdleDelay       = errors.New("delay called from the idle task")
	ErrDelayTooLong    = errors.New("delay exceeds the wraparound threshold")
	ErrDelayInTimer    = errors.New("delay called from a timer callback")
	ErrNoCurrentTask   = errors.New("kernel call outside a task")
	ErrNotInitialized  = errors.New("kernel not initialized")
	ErrAlreadyRunning  = errors.New("kernel already running")
	ErrCorruptFrame    = errors.New("corrupt saved frame")
	ErrHalted          = errors.New("kernel halted")
)

// ErrTimerNotFound is the only recoverable kernel error: FindTimer returns it
// when no timer carries the requested name.
var ErrTimerNotFound = errors.New("timer not found")

// HaltError carries the reason a platform stopped the kernel.
type HaltError struct {
	Err error
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("kernel halted: %v", e.Err)
}

func (e *HaltError) Unwrap() error {
	return e.Err
}

// CatchHalt runs fn and turns a HaltError panic raised on this goroutine into
// the halt reason. Any other panic is re-raised.
func CatchHalt(fn func()) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		var he *HaltError
		if e, ok := r.(error); ok && errors.As(e, &he) {
			err = he.Err
			return
		}
		panic(r)
	}()
	fn()
	return nil
}
