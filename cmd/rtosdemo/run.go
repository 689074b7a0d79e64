package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	rtos "github.com/Swind/go-rtos"
	obs "github.com/Swind/go-rtos/observability/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Run a synthetic task set for a while and print kernel stats",

		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "tasks",
				Aliases: []string{"n"},
				Value:   4,
				Usage:   "Number of worker tasks",
			},
			&cli.IntFlag{
				Name:  "levels",
				Value: 2,
				Usage: "Number of distinct priorities the workers are spread over",
			},
			&cli.IntFlag{
				Name:  "arena",
				Value: 4096,
				Usage: "Shared stack arena size in bytes",
			},
			&cli.DurationFlag{
				Name:  "tick",
				Value: time.Millisecond,
				Usage: "Host tick interval",
			},
			&cli.DurationFlag{
				Name:    "duration",
				Aliases: []string{"d"},
				Value:   2 * time.Second,
				Usage:   "How long to run; 0 runs until interrupted",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address (e.g. :2112)",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log kernel debug messages",
			},
		},

		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	// 1. Get flags
	tasks := c.Int("tasks")
	levels := c.Int("levels")
	arena := c.Int("arena")
	tick := c.Duration("tick")
	duration := c.Duration("duration")
	metricsAddr := c.String("metrics-addr")

	// 2. Validate (format only)
	if tasks < 1 || tasks >= rtos.MaxTasks {
		return cli.Exit(fmt.Sprintf("tasks must be between 1 and %d", rtos.MaxTasks-1), 1)
	}
	if levels < 1 || levels > int(rtos.MaxPriority) {
		return cli.Exit(fmt.Sprintf("levels must be between 1 and %d", rtos.MaxPriority), 1)
	}
	if tick <= 0 {
		return cli.Exit("tick must be positive", 1)
	}

	// 3. Build the system
	logger := rtos.NewDefaultLogger()
	logger.Verbose = c.Bool("verbose")
	config := &rtos.KernelConfig{Logger: logger}

	reg := prom.NewRegistry()
	var poller *obs.SnapshotPoller
	if metricsAddr != "" {
		exporter, err := obs.NewMetricsExporter("rtos", reg, obs.ExporterOptions{})
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
		}
		poller, err = obs.NewSnapshotPoller(reg, 100*time.Millisecond)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
		}
		config.Metrics = exporter
	}

	sys := rtos.NewSystem(&rtos.Config{
		ID:           "rtosdemo",
		ArenaSize:    arena,
		TickInterval: tick,
		Kernel:       config,
	})

	for i := range tasks {
		priority := uint8(1 + i%levels)
		period := uint32(3 + 2*i)
		if _, err := sys.RegisterTask(worker, priority, fmt.Sprintf("worker-%d", i), period); err != nil {
			return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
		}
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	if poller != nil {
		poller.AddKernel(sys.ID(), sys)
		poller.Start(ctx)
		defer poller.Stop()

		server := serveMetrics(metricsAddr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
		fmt.Printf("Serving metrics on %s/metrics\n", metricsAddr)
	}

	// 4. Run
	if err := sys.Run(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("Kernel halted: %v", err), 2)
	}

	// 5. Format output
	printStats(sys.Stats())
	return nil
}

// worker sleeps for param ms in a loop, so every tick can wake a different
// task and force a compaction.
func worker(ctx context.Context, param any) {
	k := rtos.GetCurrentKernel(ctx)
	period := param.(uint32)
	for {
		k.DelayMs(period)
	}
}

func serveMetrics(addr string, reg *prom.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
		}
	}()
	return server
}

func printStats(s rtos.KernelStats) {
	fmt.Printf("✓ Ran to %dms: %d switches, %d compactions, %dB moved, %d timer fires\n",
		s.TimeMs, s.Switches, s.Compactions, s.CompactedBytes, s.TimerFires)
	fmt.Printf("%-10s %4s %-10s %6s %6s\n", "TASK", "PRIO", "STATUS", "SLICE", "USED")
	for _, t := range s.Tasks {
		name := t.Name
		if t.Pinned {
			name += "*"
		}
		fmt.Printf("%-10s %4d %-10s %6d %6d\n", name, t.Priority, t.Status, t.StackSize, t.StackUsed)
	}
}
