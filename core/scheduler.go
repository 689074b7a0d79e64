package core

import (
	"fmt"
	"time"
)

// =============================================================================
// Selection
// =============================================================================

// selectNext returns the task that should own the CPU: the highest-priority
// task that is Ready or still Running. Among equal priorities the lowest index
// wins, whether or not it is the running task. The idle task is the fallback
// and never competes.
// Caller holds the critical section.
func (k *Kernel) selectNext() *Task {
	var best *Task
	for _, t := range k.tasks {
		if t == k.idle {
			continue
		}
		if t.State.Status != TaskReady && t.State.Status != TaskRunning {
			continue
		}
		if best == nil || t.Desc.Priority > best.Desc.Priority {
			best = t
		}
	}
	if best == nil {
		return k.idle
	}
	return best
}

// schedule hands the CPU to the task selectNext picks. Every piece of
// bookkeeping is done before the platform switch; when Switch returns the
// caller has been resumed by some later schedule and must only leave the
// critical section.
// Caller holds the critical section.
func (k *Kernel) schedule() {
	next := k.selectNext()
	cur := k.current
	if next == cur {
		next.State.Status = TaskRunning
		return
	}

	var from *TaskState
	if cur != nil {
		from = &cur.State
		if cur.State.Status == TaskRunning {
			cur.setStatus(TaskReady)
		}
		if need := cur.State.Used + k.arena.FrameSize(); need > cur.State.StackSize {
			k.fatal(fmt.Errorf("task %q needs %d bytes, slice is %d: %w",
				cur.Desc.Name, need, cur.State.StackSize, ErrStackOverflow))
		}
	}

	move := k.planSwitch(cur, next)
	next.setStatus(TaskRunning)
	k.next = next
	k.current = next
	k.recordSwitch(cur, next, move)

	k.platform.Switch(k.arena, from, &next.State, move)
}

// planSwitch computes the compaction for a switch from cur to next and moves
// the gap ownership accordingly. The pinned task runs in place and never
// takes the gap.
func (k *Kernel) planSwitch(cur, next *Task) *CompactionMove {
	if next == k.pinned {
		return nil
	}
	pending := 0
	if cur != nil && cur.State.Index == k.owner {
		pending = k.arena.FrameSize()
	}
	move := k.arena.Plan(k.owner, next.State.Index, pending)
	k.owner = next.State.Index
	return move
}

func (k *Kernel) recordSwitch(from, to *Task, move *CompactionMove) {
	fromName := ""
	if from != nil {
		fromName = from.Desc.Name
	}
	moved := 0
	if move != nil {
		moved = move.Len
		k.compactions++
		k.compactedBytes += uint64(move.Len)
		k.metrics.RecordCompaction(move.Len)
	}
	k.switches++
	k.metrics.RecordContextSwitch(fromName, to.Desc.Name)
	k.history.Add(SwitchRecord{
		From:       fromName,
		To:         to.Desc.Name,
		TimeMs:     k.timeOffset + k.time,
		MovedBytes: moved,
		At:         time.Now(),
	})
}

// =============================================================================
// Task API
// =============================================================================

// Yield ends the caller's turn. A Suspended task of the same priority is
// promoted to Ready and the caller becomes Suspended. When there is no such
// peer the caller is still suspended, and only the fallback to lower
// priorities or idle keeps the CPU busy.
func (k *Kernel) Yield() {
	k.sweep()

	k.cs.Enter()
	cur := k.mustCurrent()
	if peer := k.suspendedPeer(cur); peer != nil {
		peer.setStatus(TaskReady)
	}
	cur.setStatus(TaskSuspended)
	k.schedule()
	k.cs.Exit()
}

// suspendedPeer finds the next Suspended task at cur's priority, scanning
// round-robin from the index after cur.
func (k *Kernel) suspendedPeer(cur *Task) *Task {
	n := len(k.tasks)
	for i := 1; i < n; i++ {
		t := k.tasks[(cur.State.Index+i)%n]
		if t.State.Status == TaskSuspended && t.Desc.Priority == cur.Desc.Priority {
			return t
		}
	}
	return nil
}

// DelayMs blocks the caller for ms milliseconds. A zero delay is a Yield.
// Calling it from a timer callback (ErrDelayInTimer, checked first, also for
// callbacks on the idle task), from the idle task itself (ErrIdleDelay) or with
// a delay longer than MaxTimerPeriod halts the system.
func (k *Kernel) DelayMs(ms uint32) {
	k.cs.Enter()
	cur := k.mustCurrent()
	switch {
	case cur.dispatching:
		k.fatal(fmt.Errorf("task %q: %w", cur.Desc.Name, ErrDelayInTimer))
	case cur == k.idle:
		k.fatal(ErrIdleDelay)
	case ms > MaxTimerPeriod:
		k.fatal(fmt.Errorf("%dms (max %d): %w", ms, MaxTimerPeriod, ErrDelayTooLong))
	}
	if ms == 0 {
		k.cs.Exit()
		k.Yield()
		return
	}

	cur.State.Timeout = k.time + ms
	cur.setStatus(TaskBlocked)
	k.schedule()
	k.cs.Exit()
}

// Exit stops the calling task for good. On a hosted platform the task's
// goroutine ends inside this call.
func (k *Kernel) Exit() {
	k.cs.Enter()
	cur := k.mustCurrent()
	if cur == k.idle {
		k.fatal(fmt.Errorf("idle task exited: %w", ErrNoCurrentTask))
	}
	k.logger.Debug("task exited", F("task", cur.Desc.Name))
	cur.setStatus(TaskStop)
	k.schedule()
	k.cs.Exit()
}

// preempt is the deferred switch handler, run by the platform after a tick
// found a due timeout.
func (k *Kernel) preempt() {
	k.cs.Enter()
	k.wakeExpired()
	k.schedule()
	k.cs.Exit()
}

// wakeExpired readies every blocked task whose timeout has passed.
// Caller holds the critical section.
func (k *Kernel) wakeExpired() int {
	woken := 0
	for _, t := range k.tasks {
		if t.State.Status == TaskBlocked && t.State.Timeout <= k.time {
			t.setStatus(TaskReady)
			woken++
		}
	}
	return woken
}

// blockedDue reports whether any blocked task is ready to wake.
// Caller holds the critical section.
func (k *Kernel) blockedDue() bool {
	for _, t := range k.tasks {
		if t.State.Status == TaskBlocked && t.State.Timeout <= k.time {
			return true
		}
	}
	return false
}

func (k *Kernel) mustCurrent() *Task {
	if k.current == nil {
		k.fatal(ErrNoCurrentTask)
	}
	return k.current
}
