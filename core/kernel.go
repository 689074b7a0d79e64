package core

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Kernel is the scheduler, time base and soft timer subsystem of one CPU.
//
// All mutable state is owned by the kernel and changed only inside its
// critical section. A Kernel is built with NewKernel, populated with
// RegisterTask/RegisterTimer, laid out with Init and started with Run.
type Kernel struct {
	platform     Platform
	logger       Logger
	metrics      Metrics
	fatalHandler FatalHandler
	tickQuantum  uint32

	cs       *CriticalSection
	registry *Registry
	ctx      context.Context

	tasks  []*Task
	timers []*Timer
	arena  *Arena
	idle   *Task
	pinned *Task

	current *Task
	next    *Task
	owner   int // task index that owns the arena gap

	time       uint32
	timeOffset uint32
	timeOutMin uint32
	lastSweep  uint32

	initialized bool
	running     bool
	halted      atomic.Bool

	switches       uint64
	compactions    uint64
	compactedBytes uint64
	rebases        uint64
	timerFires     uint64

	history switchHistory
	stats   atomic.Pointer[KernelStats]
}

// NewKernel creates a kernel on top of platform.
func NewKernel(platform Platform, config *KernelConfig) *Kernel {
	if config == nil {
		config = DefaultKernelConfig()
	}

	k := &Kernel{
		platform:     platform,
		logger:       config.Logger,
		metrics:      config.Metrics,
		fatalHandler: config.FatalHandler,
		tickQuantum:  config.TickQuantum,
		cs:           NewCriticalSection(platform),
		registry:     NewRegistry(),
		timeOutMin:   noTimeout,
		history:      newSwitchHistory(config.HistorySize),
	}

	// Use defaults if not provided
	if k.logger == nil {
		k.logger = NewDefaultLogger()
	}
	if k.metrics == nil {
		k.metrics = &NilMetrics{}
	}
	if k.fatalHandler == nil {
		k.fatalHandler = &DefaultFatalHandler{}
	}
	if k.tickQuantum == 0 {
		k.tickQuantum = defaultTickQuantum
	}

	k.ctx = withKernel(context.Background(), k)
	platform.Attach(k.Tick, k.preempt)
	return k
}

// RegisterTask adds a task to the static table. It halts the system on an
// invalid descriptor or when called after Init.
func (k *Kernel) RegisterTask(entry TaskFunc, priority uint8, name string, param any) TaskID {
	id, err := k.registry.RegisterTask(entry, priority, name, param)
	if err != nil {
		k.fatal(err)
	}
	return id
}

// RegisterTimer adds a software timer to the static table. It halts the
// system on an invalid descriptor or when called after Init.
func (k *Kernel) RegisterTimer(entry TimerFunc, period uint32, oneShot bool, name string, param any) TimerID {
	id, err := k.registry.RegisterTimer(entry, period, oneShot, name, param)
	if err != nil {
		k.fatal(err)
	}
	return id
}

// Init seals the registry, appends the idle task and partitions arena into
// stack slices. It halts the system when the arena cannot hold every task.
func (k *Kernel) Init(arena []byte) {
	if k.initialized {
		k.fatal(fmt.Errorf("init called twice: %w", ErrAlreadyRunning))
	}

	pinned := k.registry.pinnedIndex()
	k.idle = k.registry.seal(k.idleLoop)
	k.tasks = k.registry.tasks
	k.timers = k.registry.timers

	states := make([]*TaskState, len(k.tasks))
	for i, t := range k.tasks {
		states[i] = &t.State
	}
	a, err := NewArena(arena, states, pinned, k.platform.FrameSize(), k.platform.Alignment())
	if err != nil {
		k.fatal(err)
	}
	k.arena = a
	k.owner = len(k.tasks)
	if pinned >= 0 {
		k.pinned = k.tasks[pinned]
	}
	k.initialized = true

	pinnedName := ""
	if k.pinned != nil {
		pinnedName = k.pinned.Desc.Name
	}
	k.logger.Info("kernel initialized",
		F("tasks", len(k.tasks)),
		F("timers", len(k.timers)),
		F("arena", a.Size()),
		F("frame", a.FrameSize()),
		F("pinned", pinnedName))
	k.refreshStats()
}

// Run starts every task and hands the CPU to the highest-priority one. On
// hardware it never returns; hosted platforms return the halt reason once the
// system stops or ctx is done.
func (k *Kernel) Run(ctx context.Context) error {
	if !k.initialized {
		k.fatal(ErrNotInitialized)
	}
	if k.running {
		return ErrAlreadyRunning
	}
	k.running = true
	k.ctx = withKernel(ctx, k)

	for _, t := range k.tasks {
		t := t
		k.platform.InitFrame(k.arena, &t.State, func() { k.trampoline(t) })
	}
	return k.platform.Boot(ctx, k.start)
}

// start performs the first switch out of the boot context.
func (k *Kernel) start() {
	k.cs.Enter()
	k.schedule()
}

// trampoline is the first code every task runs.
func (k *Kernel) trampoline(t *Task) {
	// The switch that started us still holds the critical section.
	k.cs.Exit()
	t.Desc.Entry(k.ctx, t.Desc.Param)
	k.Exit()
}

// idleLoop is the body of the idle task: sweep the time base, give the CPU to
// whatever became ready, and sleep when nothing moved.
func (k *Kernel) idleLoop(ctx context.Context, _ any) {
	for {
		k.sweep()
		k.refreshStats()

		k.cs.Enter()
		k.schedule()
		if k.time == k.lastSweep {
			k.platform.WaitForInterrupt()
		}
		k.cs.Exit()
	}
}

// fatal halts the system. It never returns.
func (k *Kernel) fatal(err error) {
	name := ""
	if k.current != nil {
		name = k.current.Desc.Name
	}
	k.halted.Store(true)
	k.logger.Error("kernel halted", F("error", err), F("task", name))
	k.metrics.RecordFatal(err.Error())
	k.fatalHandler.HandleFatal(err, name)
	k.platform.Halt(err)
	panic(&HaltError{Err: err})
}

// Current returns the id of the running task, or NoTask before boot.
func (k *Kernel) Current() TaskID {
	if k.current == nil {
		return NoTask
	}
	return k.current.ID()
}

// Halted reports whether the kernel went through its fatal path.
func (k *Kernel) Halted() bool {
	return k.halted.Load()
}

// Stats returns the last published snapshot. It is safe to call from any
// goroutine; the idle task refreshes it on every pass.
func (k *Kernel) Stats() KernelStats {
	if s := k.stats.Load(); s != nil {
		return *s
	}
	return KernelStats{}
}

// Task returns task id from the last published snapshot. Unknown ids yield a
// TaskStats whose ID is NoTask.
func (k *Kernel) Task(id TaskID) TaskStats {
	s := k.Stats()
	if id < 0 || int(id) >= len(s.Tasks) {
		return TaskStats{ID: NoTask}
	}
	return s.Tasks[id]
}

// RecentSwitches returns up to limit context switches, newest first.
func (k *Kernel) RecentSwitches(limit int) []SwitchRecord {
	return k.history.Recent(limit)
}

// refreshStats publishes a snapshot of the kernel.
func (k *Kernel) refreshStats() {
	k.cs.Enter()
	s := &KernelStats{
		TimeMs:         k.timeOffset + k.time,
		Time:           k.time,
		TimeOffset:     k.timeOffset,
		TimeOutMin:     k.timeOutMin,
		Switches:       k.switches,
		Compactions:    k.compactions,
		CompactedBytes: k.compactedBytes,
		Rebases:        k.rebases,
		TimerFires:     k.timerFires,
		Tasks:          make([]TaskStats, 0, len(k.tasks)),
		Timers:         make([]TimerStats, 0, len(k.timers)),
	}
	if k.current != nil {
		s.Current = k.current.Desc.Name
	}
	if k.arena != nil {
		s.ArenaSize = k.arena.Size()
		s.ArenaFree = k.arena.Free()
	}
	for _, t := range k.tasks {
		s.Tasks = append(s.Tasks, TaskStats{
			ID:        t.ID(),
			Name:      t.Desc.Name,
			Priority:  t.Desc.Priority,
			Status:    t.State.Status,
			StackSize: t.State.StackSize,
			StackUsed: t.State.Used,
			Pinned:    t == k.pinned,
		})
	}
	for _, tm := range k.timers {
		s.Timers = append(s.Timers, TimerStats{
			ID:      tm.ID(),
			Name:    tm.Desc.Name,
			Period:  tm.Desc.Period,
			OneShot: tm.Desc.OneShot,
			Running: tm.State.Running,
			Fired:   tm.State.Fired,
		})
	}
	k.cs.Exit()
	k.stats.Store(s)
}
