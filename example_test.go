package rtos_test

import (
	"context"
	"fmt"
	"time"

	rtos "github.com/Swind/go-rtos"
)

// ExampleSystem demonstrates two equal-priority tasks sharing the CPU.
func ExampleSystem() {
	sys := rtos.NewSystem(&rtos.Config{
		ArenaSize:    1024,
		TickInterval: time.Millisecond,
		Kernel:       &rtos.KernelConfig{Logger: rtos.NewNoOpLogger()},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := func(ctx context.Context, param any) {
		k := rtos.GetCurrentKernel(ctx)
		for i := 1; i <= 2; i++ {
			fmt.Printf("%s step %d\n", param, i)
			k.Yield()
		}
	}

	sys.RegisterTask(worker, 3, "ping", "ping")
	sys.RegisterTask(worker, 3, "pong", "pong")

	// Lower priority: runs once both workers are out of the way
	sys.RegisterTask(func(ctx context.Context, param any) {
		fmt.Println("done")
		cancel()
	}, 1, "reporter", nil)

	if err := sys.Run(ctx); err != nil {
		fmt.Println("halted:", err)
	}

	// Output:
	// ping step 1
	// pong step 1
	// ping step 2
	// pong step 2
	// done
}

// ExampleKernel_DelayMs demonstrates a task sleeping on the tick clock.
func ExampleKernel_DelayMs() {
	sys := rtos.NewSystem(&rtos.Config{
		ArenaSize:    1024,
		TickInterval: time.Millisecond,
		Kernel:       &rtos.KernelConfig{Logger: rtos.NewNoOpLogger()},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sys.RegisterTask(func(ctx context.Context, param any) {
		k := rtos.GetCurrentKernel(ctx)
		start := k.TimeMs()
		k.DelayMs(5)
		fmt.Println("slept at least 5ms:", k.TimeMs()-start >= 5)
		cancel()
	}, 2, "sleeper", nil)

	if err := sys.Run(ctx); err != nil {
		fmt.Println("halted:", err)
	}

	// Output:
	// slept at least 5ms: true
}

// ExampleSystem_RegisterTimer demonstrates a one-shot soft timer.
func ExampleSystem_RegisterTimer() {
	sys := rtos.NewSystem(&rtos.Config{
		ArenaSize:    1024,
		TickInterval: time.Millisecond,
		Kernel:       &rtos.KernelConfig{Logger: rtos.NewNoOpLogger()},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sys.RegisterTimer(func(ctx context.Context, param any) {
		fmt.Println("timer", param)
		cancel()
	}, 3, true, "once", "fired")

	sys.RegisterTask(func(ctx context.Context, param any) {
		k := rtos.GetCurrentKernel(ctx)
		id, err := k.FindTimer("once")
		if err != nil {
			fmt.Println(err)
			return
		}
		k.TimerStart(id)
	}, 1, "starter", nil)

	if err := sys.Run(ctx); err != nil {
		fmt.Println("halted:", err)
	}

	// Output:
	// timer fired
}
