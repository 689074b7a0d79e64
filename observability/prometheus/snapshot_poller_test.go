package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-rtos/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type kernelStub struct {
	stats core.KernelStats
}

func (s kernelStub) Stats() core.KernelStats { return s.stats }

func TestSnapshotPoller_CollectsKernelStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddKernel("mcu", kernelStub{stats: core.KernelStats{
		TimeMs:         1500,
		ArenaSize:      4096,
		ArenaFree:      4032,
		CompactedBytes: 640,
		Tasks: []core.TaskStats{
			{Name: "blink", Status: core.TaskBlocked, StackSize: 2032, StackUsed: 16},
			{Name: "idle", Status: core.TaskRunning, StackSize: 2048},
		},
		Timers: []core.TimerStats{
			{Name: "heartbeat", Running: true, Fired: 3},
		},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		clock := testutil.ToFloat64(poller.clockMs.WithLabelValues("mcu"))
		free := testutil.ToFloat64(poller.arenaFree.WithLabelValues("mcu"))
		return clock == 1500 && free == 4032
	})

	if got := testutil.ToFloat64(poller.taskStatus.WithLabelValues("mcu", "blink", "blocked")); got != 1 {
		t.Fatalf("blink blocked gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.taskStatus.WithLabelValues("mcu", "blink", "running")); got != 0 {
		t.Fatalf("blink running gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(poller.taskStackUsed.WithLabelValues("mcu", "blink")); got != 16 {
		t.Fatalf("blink stack used = %v, want 16", got)
	}
	if got := testutil.ToFloat64(poller.timerRunning.WithLabelValues("mcu", "heartbeat")); got != 1 {
		t.Fatalf("timer running gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.timerFired.WithLabelValues("mcu", "heartbeat")); got != 3 {
		t.Fatalf("timer fired gauge = %v, want 3", got)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
