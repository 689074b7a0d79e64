package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Swind/go-rtos/core"
	"github.com/Swind/go-rtos/platform/host"
	"github.com/urfave/cli/v2"
)

func layoutCommand() *cli.Command {
	return &cli.Command{
		Name:    "layout",
		Aliases: []string{"l"},
		Usage:   "Print how the arena is split into stack slices without booting",

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "priorities",
				Aliases:  []string{"p"},
				Required: true,
				Usage:    "Comma-separated task priorities in registration order (e.g. 2,5,1)",
			},
			&cli.IntFlag{
				Name:  "arena",
				Value: 4096,
				Usage: "Shared stack arena size in bytes",
			},
			&cli.IntFlag{
				Name:  "frame",
				Value: 16,
				Usage: "Saved frame size in bytes",
			},
		},

		Action: layoutAction,
	}
}

func layoutAction(c *cli.Context) error {
	// 1. Get flags
	priorities, err := parsePriorities(c.String("priorities"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	arena := c.Int("arena")

	// 2. Validate (format only)
	if arena <= 0 {
		return cli.Exit("arena must be positive", 1)
	}

	// 3. Lay out the kernel
	p := host.New(&host.Config{FrameSize: c.Int("frame"), Logger: core.NewNoOpLogger()})
	k := core.NewKernel(p, &core.KernelConfig{
		Logger:       core.NewNoOpLogger(),
		FatalHandler: silentFatalHandler{},
	})

	var stats core.KernelStats
	if err := core.CatchHalt(func() {
		for i, prio := range priorities {
			k.RegisterTask(func(ctx context.Context, param any) {}, prio, fmt.Sprintf("task-%d", i), nil)
		}
		k.Init(make([]byte, arena))
		stats = k.Stats()
	}); err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	// 4. Format output
	fmt.Printf("✓ Arena %dB, free %dB\n", stats.ArenaSize, stats.ArenaFree)
	fmt.Printf("%-10s %4s %6s %6s\n", "TASK", "PRIO", "SLICE", "USED")
	for _, t := range stats.Tasks {
		name := t.Name
		if t.Pinned {
			name += "*"
		}
		fmt.Printf("%-10s %4d %6d %6d\n", name, t.Priority, t.StackSize, t.StackUsed)
	}
	return nil
}

func parsePriorities(s string) ([]uint8, error) {
	parts := strings.Split(s, ",")
	out := make([]uint8, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid priority %q", part)
		}
		out = append(out, uint8(v))
	}
	return out, nil
}

type silentFatalHandler struct{}

func (silentFatalHandler) HandleFatal(err error, task string) {}
