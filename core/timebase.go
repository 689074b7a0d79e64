package core

// Tick advances the clock by one quantum. The platform calls it once per
// timer interrupt. When a blocked task became due it requests a deferred
// switch so that the task can preempt whatever runs.
func (k *Kernel) Tick() {
	k.cs.Enter()
	k.time += k.tickQuantum
	if k.running && k.blockedDue() {
		k.platform.PendSwitch()
	}
	k.cs.Exit()
}

// TimeMs returns milliseconds since boot. Rebases do not move it, but as a
// uint32 it wraps after about 49.7 days.
func (k *Kernel) TimeMs() uint32 {
	k.cs.Enter()
	now := k.timeOffset + k.time
	k.cs.Exit()
	return now
}

// sweep catches the time base up with the clock: it wakes due tasks, rebases
// the clock once it reaches RebaseThreshold and dispatches due timers. Timer
// callbacks run with interrupts enabled. It repeats while ticks arrive during
// the pass.
func (k *Kernel) sweep() {
	for {
		k.cs.Enter()
		if k.time == k.lastSweep {
			k.cs.Exit()
			return
		}
		k.lastSweep = k.time
		k.wakeExpired()
		if k.time >= RebaseThreshold {
			k.rebase()
		}
		var due []*Timer
		if k.time >= k.timeOutMin {
			due = k.collectDue()
		}
		k.cs.Exit()

		for _, tm := range due {
			k.fire(tm)
		}
	}
}

// collectDue returns the timers whose fire time has been reached and
// reschedules them before they run, so a callback may restart or pause its
// own timer. A periodic timer fires at most once per sweep; a late period is
// picked up by the next one.
// Caller holds the critical section.
func (k *Kernel) collectDue() []*Timer {
	var due []*Timer
	for _, tm := range k.timers {
		if !tm.State.Running || tm.State.Time > k.time {
			continue
		}
		if tm.Desc.OneShot {
			tm.State.Running = false
		} else {
			tm.State.Time += tm.Desc.Period
		}
		tm.State.Fired++
		k.timerFires++
		due = append(due, tm)
	}
	k.updateTimeOutMin()
	return due
}

func (k *Kernel) fire(tm *Timer) {
	cur := k.current
	if cur != nil {
		cur.dispatching = true
	}
	tm.Desc.Entry(k.ctx, tm.Desc.Param)
	if cur != nil {
		cur.dispatching = false
	}
	k.metrics.RecordTimerFired(tm.Desc.Name)
}

// rebase shifts every absolute deadline down by the current clock value and
// moves that amount into timeOffset. Relative order and TimeMs are unchanged.
// Caller holds the critical section.
func (k *Kernel) rebase() {
	elapsed := k.time
	for _, t := range k.tasks {
		if t.State.Status == TaskBlocked {
			t.State.Timeout = subClamp(t.State.Timeout, elapsed)
		}
	}
	for _, tm := range k.timers {
		if tm.State.Running {
			tm.State.Time = subClamp(tm.State.Time, elapsed)
		}
	}
	k.timeOffset += elapsed
	k.time = 0
	k.lastSweep = 0
	k.updateTimeOutMin()
	k.rebases++

	k.logger.Info("clock rebased", F("elapsed", elapsed), F("offset", k.timeOffset))
	k.metrics.RecordRebase(k.timeOffset)
}

func subClamp(v, d uint32) uint32 {
	if v < d {
		return 0
	}
	return v - d
}
