// Package rtos provides a small preemptive real-time kernel for a single CPU.
//
// Tasks are registered statically with a priority, then the kernel is booted
// and hands the CPU to the highest-priority task that is ready. Tasks of equal
// priority share the CPU by yielding to each other. All task stacks live in
// one shared arena that the kernel compacts on every context switch, so a task
// can use most of the free memory while it runs.
//
// # Quick Start
//
// Create a system backed by the host platform, register tasks and run it:
//
//	sys := rtos.NewSystem(rtos.DefaultConfig())
//
//	sys.RegisterTask(func(ctx context.Context, param any) {
//		k := rtos.GetCurrentKernel(ctx)
//		for {
//			println("tick")
//			k.DelayMs(500)
//		}
//	}, 2, "blink", nil)
//
//	if err := sys.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # Key Concepts
//
// Kernel: owns the task table, the time base and the soft timers. Every call
// a task makes (Yield, DelayMs, Exit, the Timer* family) goes through it.
//
// Platform: the boundary to the CPU. The host platform in platform/host runs
// each task on its own goroutine and passes a single CPU baton between them;
// a board support package would implement the same interface in assembly.
//
// Soft timers: callbacks run by the idle task, one-shot or periodic, with
// periods up to 30 days. The internal tick clock is rebased every 15 days so
// deadlines never wrap. TimeMs adds the rebased offset back and is a uint32,
// so it wraps after about 49.7 days of uptime.
//
// # Failure Model
//
// Misuse is fatal: a bad priority, a delay from the idle task, an arena too
// small for its tasks or a stack that outgrows its slice halts the system.
// On the host platform Run returns the halt reason, which can be matched with
// errors.Is against the Err* values.
//
// For more details, see https://github.com/Swind/go-rtos
package rtos
