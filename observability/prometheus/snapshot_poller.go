package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-rtos/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// KernelSnapshotProvider provides current kernel stats snapshots.
type KernelSnapshotProvider interface {
	Stats() core.KernelStats
}

var taskStatuses = []core.TaskStatus{
	core.TaskReady,
	core.TaskRunning,
	core.TaskBlocked,
	core.TaskSuspended,
	core.TaskStop,
}

// SnapshotPoller periodically exports kernel Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	kernelsMu sync.RWMutex
	kernels   map[string]KernelSnapshotProvider

	clockMs        *prom.GaugeVec
	arenaSize      *prom.GaugeVec
	arenaFree      *prom.GaugeVec
	compactedBytes *prom.GaugeVec

	taskStatus    *prom.GaugeVec
	taskStackSize *prom.GaugeVec
	taskStackUsed *prom.GaugeVec

	timerRunning *prom.GaugeVec
	timerFired   *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	clockMs := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "rtos",
		Name:      "kernel_time_ms",
		Help:      "Kernel wall clock in milliseconds.",
	}, []string{"kernel"})
	arenaSize := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "rtos",
		Name:      "arena_size_bytes",
		Help:      "Usable size of the shared stack arena.",
	}, []string{"kernel"})
	arenaFree := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "rtos",
		Name:      "arena_free_bytes",
		Help:      "Arena bytes not held by any task.",
	}, []string{"kernel"})
	compactedBytes := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "rtos",
		Name:      "arena_compacted_bytes",
		Help:      "Bytes moved by compaction since boot.",
	}, []string{"kernel"})

	taskStatus := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "rtos",
		Name:      "task_status",
		Help:      "Task lifecycle state (1 for the current state).",
	}, []string{"kernel", "task", "status"})
	taskStackSize := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "rtos",
		Name:      "task_stack_size_bytes",
		Help:      "Size of the task's stack slice.",
	}, []string{"kernel", "task"})
	taskStackUsed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "rtos",
		Name:      "task_stack_used_bytes",
		Help:      "Live bytes the task holds in the arena.",
	}, []string{"kernel", "task"})

	timerRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "rtos",
		Name:      "timer_running",
		Help:      "Timer armed state (1=running, 0=stopped).",
	}, []string{"kernel", "timer"})
	timerFired := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "rtos",
		Name:      "timer_fired",
		Help:      "Timer dispatch count snapshot.",
	}, []string{"kernel", "timer"})

	var err error
	if clockMs, err = registerCollector(reg, clockMs); err != nil {
		return nil, err
	}
	if arenaSize, err = registerCollector(reg, arenaSize); err != nil {
		return nil, err
	}
	if arenaFree, err = registerCollector(reg, arenaFree); err != nil {
		return nil, err
	}
	if compactedBytes, err = registerCollector(reg, compactedBytes); err != nil {
		return nil, err
	}
	if taskStatus, err = registerCollector(reg, taskStatus); err != nil {
		return nil, err
	}
	if taskStackSize, err = registerCollector(reg, taskStackSize); err != nil {
		return nil, err
	}
	if taskStackUsed, err = registerCollector(reg, taskStackUsed); err != nil {
		return nil, err
	}
	if timerRunning, err = registerCollector(reg, timerRunning); err != nil {
		return nil, err
	}
	if timerFired, err = registerCollector(reg, timerFired); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:       interval,
		kernels:        make(map[string]KernelSnapshotProvider),
		clockMs:        clockMs,
		arenaSize:      arenaSize,
		arenaFree:      arenaFree,
		compactedBytes: compactedBytes,
		taskStatus:     taskStatus,
		taskStackSize:  taskStackSize,
		taskStackUsed:  taskStackUsed,
		timerRunning:   timerRunning,
		timerFired:     timerFired,
	}, nil
}

// AddKernel adds or replaces a kernel snapshot provider by name.
func (p *SnapshotPoller) AddKernel(name string, provider KernelSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "kernel")
	p.kernelsMu.Lock()
	p.kernels[name] = provider
	p.kernelsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.kernelsMu.RLock()
	defer p.kernelsMu.RUnlock()

	for name, provider := range p.kernels {
		stats := provider.Stats()
		p.clockMs.WithLabelValues(name).Set(float64(stats.TimeMs))
		p.arenaSize.WithLabelValues(name).Set(float64(stats.ArenaSize))
		p.arenaFree.WithLabelValues(name).Set(float64(stats.ArenaFree))
		p.compactedBytes.WithLabelValues(name).Set(float64(stats.CompactedBytes))

		for _, task := range stats.Tasks {
			taskName := normalizeLabel(task.Name, "unknown")
			for _, status := range taskStatuses {
				v := 0.0
				if task.Status == status {
					v = 1
				}
				p.taskStatus.WithLabelValues(name, taskName, status.String()).Set(v)
			}
			p.taskStackSize.WithLabelValues(name, taskName).Set(float64(task.StackSize))
			p.taskStackUsed.WithLabelValues(name, taskName).Set(float64(task.StackUsed))
		}

		for _, timer := range stats.Timers {
			timerName := normalizeLabel(timer.Name, "unknown")
			if timer.Running {
				p.timerRunning.WithLabelValues(name, timerName).Set(1)
			} else {
				p.timerRunning.WithLabelValues(name, timerName).Set(0)
			}
			p.timerFired.WithLabelValues(name, timerName).Set(float64(timer.Fired))
		}
	}
}
