package rtos

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-rtos/core"
	"github.com/Swind/go-rtos/platform/host"
)

const defaultArenaSize = 4096

// Config holds configuration options for System.
// All fields are optional; zero values fall back to defaults.
type Config struct {
	// ID names the system in logs and metrics. Defaults to "rtos".
	ID string

	// ArenaSize is the size of the shared stack arena in bytes. Defaults to 4096.
	ArenaSize int

	// TickInterval is the period of the host tick. Zero disables the
	// internal ticker; ticks must then be raised with Platform().RaiseTick.
	TickInterval time.Duration

	// FrameSize is the size of one saved frame. Defaults to the host default.
	FrameSize int

	// Kernel configures the kernel. Defaults to core.DefaultKernelConfig.
	Kernel *core.KernelConfig
}

// DefaultConfig returns a config with a 4KiB arena and a 1ms tick.
func DefaultConfig() *Config {
	return &Config{
		ID:           "rtos",
		ArenaSize:    defaultArenaSize,
		TickInterval: time.Millisecond,
		Kernel:       core.DefaultKernelConfig(),
	}
}

// System is a kernel bound to the host platform and its arena.
type System struct {
	id       string
	kernel   *core.Kernel
	platform *host.Platform
	arena    []byte

	cancel    context.CancelFunc
	done      chan struct{}
	err       error
	running   bool
	booted    bool
	runningMu sync.RWMutex
}

// NewSystem creates a System. Tasks and timers are registered on it before
// Run or Start.
func NewSystem(config *Config) *System {
	if config == nil {
		config = DefaultConfig()
	}

	id := config.ID
	if id == "" {
		id = "rtos"
	}
	size := config.ArenaSize
	if size <= 0 {
		size = defaultArenaSize
	}
	kcfg := config.Kernel
	if kcfg == nil {
		kcfg = core.DefaultKernelConfig()
	}

	p := host.New(&host.Config{
		FrameSize:    config.FrameSize,
		TickInterval: config.TickInterval,
		Logger:       kcfg.Logger,
	})

	return &System{
		id:       id,
		kernel:   core.NewKernel(p, kcfg),
		platform: p,
		arena:    make([]byte, size),
	}
}

// ID returns the ID of the system
func (s *System) ID() string {
	return s.id
}

// Kernel returns the underlying kernel.
func (s *System) Kernel() *core.Kernel {
	return s.kernel
}

// Platform returns the host platform the kernel runs on.
func (s *System) Platform() *host.Platform {
	return s.platform
}

// RegisterTask adds a task. A registration error halts the system and is
// returned; the system cannot be started afterwards.
func (s *System) RegisterTask(entry TaskFunc, priority uint8, name string, param any) (TaskID, error) {
	id := NoTask
	err := core.CatchHalt(func() {
		id = s.kernel.RegisterTask(entry, priority, name, param)
	})
	return id, err
}

// RegisterTimer adds a soft timer with the same halt semantics as
// RegisterTask.
func (s *System) RegisterTimer(entry TimerFunc, period uint32, oneShot bool, name string, param any) (TimerID, error) {
	id := NoTimer
	err := core.CatchHalt(func() {
		id = s.kernel.RegisterTimer(entry, period, oneShot, name, param)
	})
	return id, err
}

// Run lays out the arena, boots the kernel and blocks until the system halts
// or ctx is done. It returns the halt reason, or nil when ctx ended the run.
// A System boots once.
func (s *System) Run(ctx context.Context) error {
	s.runningMu.Lock()
	if s.booted {
		s.runningMu.Unlock()
		return core.ErrAlreadyRunning
	}
	s.booted = true
	s.running = true
	s.runningMu.Unlock()

	err := s.run(ctx)

	s.runningMu.Lock()
	s.running = false
	s.err = err
	s.runningMu.Unlock()
	return err
}

func (s *System) run(ctx context.Context) error {
	var runErr error
	err := core.CatchHalt(func() {
		s.kernel.Init(s.arena)
		runErr = s.kernel.Run(ctx)
	})
	if err != nil {
		return err
	}
	return runErr
}

// Start runs the system in the background. Repeated calls are no-ops.
func (s *System) Start(ctx context.Context) {
	s.runningMu.Lock()
	if s.done != nil {
		s.runningMu.Unlock()
		return // Already started
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	done := make(chan struct{})
	s.done = done
	s.runningMu.Unlock()

	go func() {
		defer close(done)
		_ = s.Run(runCtx)
	}()
}

// Stop ends a system started with Start and returns its halt reason.
func (s *System) Stop() error {
	s.runningMu.RLock()
	cancel := s.cancel
	s.runningMu.RUnlock()

	if cancel != nil {
		cancel()
	}
	return s.Join()
}

// Join waits for a system started with Start to finish.
func (s *System) Join() error {
	s.runningMu.RLock()
	done := s.done
	s.runningMu.RUnlock()

	if done != nil {
		<-done
	}
	return s.Err()
}

// IsRunning returns whether the kernel is booted
func (s *System) IsRunning() bool {
	s.runningMu.RLock()
	defer s.runningMu.RUnlock()
	return s.running
}

// Err returns the reason the last run ended, if any.
func (s *System) Err() error {
	s.runningMu.RLock()
	defer s.runningMu.RUnlock()
	return s.err
}

// Stats returns the kernel's last published snapshot.
func (s *System) Stats() KernelStats {
	return s.kernel.Stats()
}

// =============================================================================
// Global System Helper (Singleton)
// =============================================================================

var (
	globalSystem *System
	globalMu     sync.Mutex
)

// InitGlobalSystem creates the global system from config. Tasks are
// registered on GetGlobalSystem() before StartGlobalSystem.
func InitGlobalSystem(config *Config) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalSystem != nil {
		return // Already initialized
	}
	globalSystem = NewSystem(config)
}

// GetGlobalSystem returns the global system instance.
// It panics if InitGlobalSystem has not been called.
func GetGlobalSystem() *System {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalSystem == nil {
		panic("GlobalSystem not initialized. Call InitGlobalSystem() first.")
	}
	return globalSystem
}

// StartGlobalSystem boots the global system in the background.
func StartGlobalSystem(ctx context.Context) {
	GetGlobalSystem().Start(ctx)
}

// ShutdownGlobalSystem stops the global system and forgets it. It returns
// the halt reason of the last run.
func ShutdownGlobalSystem() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalSystem == nil {
		return nil
	}
	err := globalSystem.Stop()
	globalSystem = nil
	return err
}
