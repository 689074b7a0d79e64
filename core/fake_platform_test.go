package core

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// =============================================================================
// Fake platform
// =============================================================================

const (
	fakeFrameSize = 16
	fakeAlignment = 8
)

// fakePlatform is a synchronous platform: Switch saves and restores frames in
// the arena and returns at once, so the calling test simply continues as the
// task that was switched in.
type fakePlatform struct {
	enabled      bool
	disables     int
	enables      int
	pendSwitches int
	pendPending  bool
	waits        int

	tick   func()
	pendSV func()

	seq      map[int]uint64
	entries  map[int]func()
	switches int
	moves    []CompactionMove
	corrupt  []string
	halted   error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		enabled: true,
		seq:     make(map[int]uint64),
		entries: make(map[int]func()),
	}
}

func (p *fakePlatform) DisableInterrupts() {
	p.enabled = false
	p.disables++
}

func (p *fakePlatform) EnableInterrupts() {
	p.enabled = true
	p.enables++
}

func (p *fakePlatform) Attach(tick, pendSV func()) {
	p.tick = tick
	p.pendSV = pendSV
}

func (p *fakePlatform) PendSwitch() {
	p.pendSwitches++
	p.pendPending = true
}

func (p *fakePlatform) WaitForInterrupt() { p.waits++ }

func (p *fakePlatform) FrameSize() int { return fakeFrameSize }

func (p *fakePlatform) Alignment() int { return fakeAlignment }

func (p *fakePlatform) InitFrame(a *Arena, t *TaskState, entry func()) {
	p.entries[t.Index] = entry
	a.WriteFrame(t, p.frame(t.Index))
}

func (p *fakePlatform) Switch(a *Arena, from, to *TaskState, move *CompactionMove) {
	p.switches++
	if from != nil {
		p.seq[from.Index]++
		if err := a.Push(from, p.frame(from.Index)); err != nil {
			panic(err)
		}
	}
	if move != nil {
		p.moves = append(p.moves, *move)
	}
	a.Compact(move)

	want := p.frame(to.Index)
	if got := a.Pop(to); !bytes.Equal(got, want) {
		p.corrupt = append(p.corrupt, fmt.Sprintf("task %d: got %x want %x", to.Index, got, want))
	}
}

func (p *fakePlatform) Boot(ctx context.Context, start func()) error {
	start()
	return nil
}

func (p *fakePlatform) Halt(err error) {
	if p.halted == nil {
		p.halted = err
	}
}

// frame is the expected content of a task's newest saved frame.
func (p *fakePlatform) frame(index int) []byte {
	b := make([]byte, fakeFrameSize)
	binary.LittleEndian.PutUint64(b[0:8], uint64(index+1))
	binary.LittleEndian.PutUint64(b[8:16], p.seq[index])
	return b
}

// deliver runs a pended switch the way the platform would after a tick.
func (p *fakePlatform) deliver() {
	if p.pendPending {
		p.pendPending = false
		p.pendSV()
	}
}

// =============================================================================
// Recording handlers
// =============================================================================

type recordingFatalHandler struct {
	mu    sync.Mutex
	errs  []error
	tasks []string
}

func (h *recordingFatalHandler) HandleFatal(err error, task string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
	h.tasks = append(h.tasks, task)
}

func (h *recordingFatalHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.errs)
}

type recordingMetrics struct {
	mu          sync.Mutex
	switches    []string
	compactions []int
	timers      []string
	rebases     []uint32
	fatals      []string
}

func (m *recordingMetrics) RecordContextSwitch(from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.switches = append(m.switches, from+"->"+to)
}

func (m *recordingMetrics) RecordCompaction(bytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compactions = append(m.compactions, bytes)
}

func (m *recordingMetrics) RecordTimerFired(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers = append(m.timers, name)
}

func (m *recordingMetrics) RecordRebase(offsetMs uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rebases = append(m.rebases, offsetMs)
}

func (m *recordingMetrics) RecordFatal(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fatals = append(m.fatals, reason)
}

// =============================================================================
// Helpers
// =============================================================================

type testKernel struct {
	*Kernel
	platform *fakePlatform
	fatals   *recordingFatalHandler
	metrics  *recordingMetrics
}

func newTestKernel(t *testing.T) *testKernel {
	t.Helper()
	p := newFakePlatform()
	fatals := &recordingFatalHandler{}
	metrics := &recordingMetrics{}
	k := NewKernel(p, &KernelConfig{
		Logger:       NewNoOpLogger(),
		Metrics:      metrics,
		FatalHandler: fatals,
	})
	return &testKernel{Kernel: k, platform: p, fatals: fatals, metrics: metrics}
}

func nopTask(ctx context.Context, param any) {}

func nopTimer(ctx context.Context, param any) {}

// boot lays out an arena of size bytes and performs the first switch. The
// test then acts as the task that was switched in.
func (k *testKernel) boot(t *testing.T, size int) {
	t.Helper()
	k.Init(make([]byte, size))
	if err := k.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// The trampoline of the first task leaves the critical section.
	k.cs.Exit()
}

// advance ticks the clock ms times, delivering pended switches like the
// platform does when interrupts are re-enabled.
func (k *testKernel) advance(ms int) {
	for range ms {
		k.Tick()
		k.platform.deliver()
	}
}

func (k *testKernel) status(id TaskID) TaskStatus {
	return k.registry.Task(id).State.Status
}

func (k *testKernel) checkArena(t *testing.T) {
	t.Helper()
	if err := k.arena.Check(); err != nil {
		t.Fatalf("arena layout broken: %v", err)
	}
	if len(k.platform.corrupt) > 0 {
		t.Fatalf("corrupted frames: %v", k.platform.corrupt)
	}
}

// expectHalt runs fn and asserts that it ends in the fatal path with target.
func expectHalt(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		he, ok := r.(*HaltError)
		if !ok {
			t.Fatalf("expected *HaltError panic, got %v", r)
		}
		if !errors.Is(he, target) {
			t.Fatalf("expected halt with %v, got %v", target, he)
		}
	}()
	fn()
}
