// Package host runs the kernel on a regular Go process.
//
// Every kernel task is backed by a goroutine, but only one of them holds the
// simulated CPU at a time: Switch hands the CPU over through per-task resume
// channels, so kernel state is only ever touched by one goroutine. Timer
// interrupts are latched by RaiseTick (or an internal ticker) and serviced by
// the goroutine holding the CPU when it next unmasks interrupts, or while the
// idle task waits for an interrupt.
//
// A task that never calls into the kernel is never preempted on this
// platform.
package host

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Swind/go-rtos/core"
)

const (
	defaultFrameSize = 16
	defaultAlignment = 8
)

// Config holds configuration options for Platform.
// All fields are optional; zero values fall back to defaults.
type Config struct {
	// FrameSize is the size of one saved frame; at least 16 bytes. Defaults to 16.
	FrameSize int

	// Alignment is the stack alignment. Defaults to 8.
	Alignment int

	// TickInterval drives RaiseTick from a ticker while booted. Zero leaves
	// ticks to the caller.
	TickInterval time.Duration

	// Logger receives halt messages. Defaults to core.DefaultLogger.
	Logger core.Logger
}

// DefaultConfig returns a config with default values and a 1ms tick.
func DefaultConfig() *Config {
	return &Config{
		FrameSize:    defaultFrameSize,
		Alignment:    defaultAlignment,
		TickInterval: time.Millisecond,
		Logger:       core.NewDefaultLogger(),
	}
}

type thread struct {
	index  int
	entry  func()
	resume chan struct{}
	seq    uint64
}

// Platform is a core.Platform backed by goroutines.
type Platform struct {
	frameSize    int
	alignment    int
	tickInterval time.Duration
	logger       core.Logger

	// Owned by the goroutine that holds the CPU.
	inHandler bool
	pendSV    bool
	onTick    func()
	onPendSV  func()
	threads   map[int]*thread

	pendingTicks atomic.Int32
	wake         chan struct{}
	booted       atomic.Bool

	haltOnce sync.Once
	halted   chan struct{}
	errMu    sync.Mutex
	err      error
	wg       sync.WaitGroup
}

var _ core.Platform = (*Platform)(nil)

// New creates a host platform.
func New(config *Config) *Platform {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Platform{
		frameSize:    config.FrameSize,
		alignment:    config.Alignment,
		tickInterval: config.TickInterval,
		logger:       config.Logger,
		threads:      make(map[int]*thread),
		wake:         make(chan struct{}, 1),
		halted:       make(chan struct{}),
	}

	// Use defaults if not provided
	if p.frameSize < frameHeaderSize {
		p.frameSize = defaultFrameSize
	}
	if p.alignment < 1 {
		p.alignment = defaultAlignment
	}
	if p.logger == nil {
		p.logger = core.NewDefaultLogger()
	}
	return p
}

// =============================================================================
// Interrupts
// =============================================================================

// DisableInterrupts masks the simulated interrupt line. Latched ticks wait
// for the next EnableInterrupts.
func (p *Platform) DisableInterrupts() {
	p.checkHalted()
}

// EnableInterrupts unmasks the interrupt line and services every latched
// tick, then a pended switch.
func (p *Platform) EnableInterrupts() {
	p.checkHalted()
	if p.inHandler {
		return
	}

	p.inHandler = true
	for {
		if p.pendingTicks.Load() > 0 {
			p.pendingTicks.Add(-1)
			if p.onTick != nil {
				p.onTick()
			}
			continue
		}
		if p.pendSV {
			p.pendSV = false
			if p.onPendSV != nil {
				p.onPendSV()
			}
			continue
		}
		break
	}
	p.inHandler = false
}

// Attach installs the kernel's interrupt handlers.
func (p *Platform) Attach(tick, pendSV func()) {
	p.onTick = tick
	p.onPendSV = pendSV
}

// PendSwitch requests a deferred switch once pending ticks are serviced.
func (p *Platform) PendSwitch() {
	p.pendSV = true
}

// RaiseTick latches one timer interrupt. It is safe to call from any
// goroutine.
func (p *Platform) RaiseTick() {
	p.pendingTicks.Add(1)
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// WaitForInterrupt parks the CPU until a tick is latched.
func (p *Platform) WaitForInterrupt() {
	for p.pendingTicks.Load() == 0 {
		select {
		case <-p.wake:
		case <-p.halted:
			runtime.Goexit()
		}
	}
}

// =============================================================================
// Frames and switching
// =============================================================================

// FrameSize returns the size of one saved frame.
func (p *Platform) FrameSize() int { return p.frameSize }

// Alignment returns the stack alignment.
func (p *Platform) Alignment() int { return p.alignment }

// InitFrame writes t's first frame and prepares the goroutine that runs
// entry once t is switched in.
func (p *Platform) InitFrame(a *core.Arena, t *core.TaskState, entry func()) {
	p.threads[t.Index] = &thread{
		index:  t.Index,
		entry:  entry,
		resume: make(chan struct{}, 1),
	}
	a.WriteFrame(t, encodeFrame(p.frameSize, t.Index, 0))
}

// Switch saves from, applies move, restores to and hands it the CPU. The
// calling goroutine parks until from is switched in again. The boot context
// and stopped tasks never come back.
func (p *Platform) Switch(a *core.Arena, from, to *core.TaskState, move *core.CompactionMove) {
	p.checkHalted()

	var self *thread
	stopped := false
	if from != nil {
		self = p.threads[from.Index]
		self.seq++
		if err := a.Push(from, encodeFrame(p.frameSize, from.Index, self.seq)); err != nil {
			p.Halt(err)
		}
		stopped = from.Status == core.TaskStop
	}

	a.Compact(move)

	next := p.threads[to.Index]
	if next == nil {
		p.Halt(fmt.Errorf("task %d has no frame: %w", to.Index, core.ErrCorruptFrame))
	}
	if err := decodeFrame(a.Pop(to), to.Index, next.seq); err != nil {
		p.Halt(err)
	}

	inHandler := p.inHandler
	next.resume <- struct{}{}
	if self == nil || stopped {
		runtime.Goexit()
	}

	select {
	case <-self.resume:
	case <-p.halted:
		runtime.Goexit()
	}
	p.inHandler = inHandler
}

func (p *Platform) run(th *thread) {
	defer p.wg.Done()
	defer p.recoverHalt()

	select {
	case <-th.resume:
	case <-p.halted:
		return
	}
	p.inHandler = false
	th.entry()
}

// =============================================================================
// Boot and halt
// =============================================================================

// Boot starts every task goroutine, runs start as the first CPU context and
// blocks until the system halts or ctx is done. It returns the halt reason,
// or nil when ctx ended the run.
func (p *Platform) Boot(ctx context.Context, start func()) error {
	p.booted.Store(true)
	defer p.booted.Store(false)

	for _, th := range p.threads {
		p.wg.Add(1)
		go p.run(th)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.recoverHalt()
		start()
	}()

	if p.tickInterval > 0 {
		p.wg.Add(1)
		go p.ticker()
	}

	select {
	case <-p.halted:
	case <-ctx.Done():
		p.stop(nil)
	}
	p.wg.Wait()
	return p.Err()
}

// Halt stops the system with err and unwinds the calling goroutine.
func (p *Platform) Halt(err error) {
	p.stop(err)
	panic(&core.HaltError{Err: err})
}

// Err returns the reason the platform halted, if any.
func (p *Platform) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

// Done is closed once the platform halts or its boot context ends.
func (p *Platform) Done() <-chan struct{} {
	return p.halted
}

func (p *Platform) stop(err error) {
	p.haltOnce.Do(func() {
		p.errMu.Lock()
		p.err = err
		p.errMu.Unlock()
		if err != nil {
			p.logger.Error("platform halted", core.F("error", err))
		} else {
			p.logger.Debug("platform stopped")
		}
		close(p.halted)
	})
}

func (p *Platform) recoverHalt() {
	r := recover()
	if r == nil {
		return
	}
	if he, ok := r.(*core.HaltError); ok {
		p.stop(he.Err)
		return
	}
	p.stop(fmt.Errorf("task panic: %v", r))
}

// checkHalted ends the calling CPU goroutine once the system is down.
func (p *Platform) checkHalted() {
	if !p.booted.Load() {
		return
	}
	select {
	case <-p.halted:
		runtime.Goexit()
	default:
	}
}

func (p *Platform) ticker() {
	defer p.wg.Done()

	t := time.NewTicker(p.tickInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			p.RaiseTick()
		case <-p.halted:
			return
		}
	}
}
