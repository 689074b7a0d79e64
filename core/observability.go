package core

import "time"

// SwitchRecord captures one context switch.
type SwitchRecord struct {
	From       string
	To         string
	TimeMs     uint32
	MovedBytes int
	At         time.Time
}

// TaskStats is a snapshot of one task.
type TaskStats struct {
	ID        TaskID
	Name      string
	Priority  uint8
	Status    TaskStatus
	StackSize int
	StackUsed int
	Pinned    bool
}

// TimerStats is a snapshot of one software timer.
type TimerStats struct {
	ID      TimerID
	Name    string
	Period  uint32
	OneShot bool
	Running bool
	Fired   uint64
}

// KernelStats represents runtime observability state for a kernel.
type KernelStats struct {
	TimeMs         uint32
	Time           uint32
	TimeOffset     uint32
	TimeOutMin     uint32
	Current        string
	Switches       uint64
	Compactions    uint64
	CompactedBytes uint64
	Rebases        uint64
	TimerFires     uint64
	ArenaSize      int
	ArenaFree      int
	Tasks          []TaskStats
	Timers         []TimerStats
}
