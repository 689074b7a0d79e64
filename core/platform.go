package core

import "context"

// Platform is the architecture boundary of the kernel. One implementation
// exists per target; the kernel never touches registers or raw stacks itself.
type Platform interface {
	InterruptController

	// Attach installs the kernel's tick handler and its deferred-switch
	// handler. The platform calls tick once per timer interrupt and pendSV
	// after PendSwitch, once interrupts are enabled and no tick is pending.
	Attach(tick, pendSV func())

	// PendSwitch requests a deferred call to the pendSV handler.
	PendSwitch()

	// WaitForInterrupt sleeps until an interrupt is pending. It is called
	// with interrupts masked; the interrupt is serviced on the next unmask.
	WaitForInterrupt()

	// FrameSize is the number of bytes one saved register frame occupies.
	FrameSize() int

	// Alignment is the stack address and size alignment of the target.
	Alignment() int

	// InitFrame writes t's first frame at t.SP so that switching to t starts
	// entry. entry begins with the critical section held by the switch.
	InitFrame(a *Arena, t *TaskState, entry func())

	// Switch transfers the CPU. If from is not nil its registers are saved
	// as a frame pushed below from.SP; then move (if any) is applied with
	// Arena.Compact exactly once; then to's frame is popped and to resumes.
	// Switch returns in from's context when from is resumed later. A task
	// whose status is TaskStop never returns from Switch.
	Switch(a *Arena, from, to *TaskState, move *CompactionMove)

	// Boot runs start as the first CPU context. On hardware it never
	// returns; hosted platforms return once halted.
	Boot(ctx context.Context, start func()) error

	// Halt stops the system with err. It does not return.
	Halt(err error)
}
