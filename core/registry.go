package core

import "fmt"

// Registry is the static table of tasks and timers.
// It is filled before Init and sealed afterwards; nothing is registered or
// removed once the kernel has booted.
type Registry struct {
	tasks      []*Task
	timers     []*Timer
	timerNames map[string]TimerID
	closed     bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{timerNames: make(map[string]TimerID)}
}

// RegisterTask appends a task descriptor. The returned id is the task's index
// and defines the order of its stack slice in the arena.
func (r *Registry) RegisterTask(entry TaskFunc, priority uint8, name string, param any) (TaskID, error) {
	if r.closed {
		return NoTask, ErrRegistryClosed
	}
	if entry == nil {
		return NoTask, fmt.Errorf("task %q: %w", name, ErrNilEntry)
	}
	if priority == IdlePriority || priority > MaxPriority {
		return NoTask, fmt.Errorf("task %q priority %d (want 1..%d): %w", name, priority, MaxPriority, ErrInvalidPriority)
	}
	// One slot stays free for the idle task.
	if len(r.tasks) >= MaxTasks-1 {
		return NoTask, fmt.Errorf("task %q: %w", name, ErrTooManyTasks)
	}

	t := &Task{
		Desc: TaskDescriptor{
			Entry:    entry,
			Priority: priority,
			Name:     resolveFuncName(entry, name),
			Param:    param,
		},
	}
	t.State.Index = len(r.tasks)
	r.tasks = append(r.tasks, t)
	return t.ID(), nil
}

// RegisterTimer appends a software timer descriptor. Timers are registered
// stopped; use TimerStart to arm them.
func (r *Registry) RegisterTimer(entry TimerFunc, period uint32, oneShot bool, name string, param any) (TimerID, error) {
	if r.closed {
		return NoTimer, ErrRegistryClosed
	}
	if entry == nil {
		return NoTimer, fmt.Errorf("timer %q: %w", name, ErrNilEntry)
	}
	if period == 0 || period > MaxTimerPeriod {
		return NoTimer, fmt.Errorf("timer %q period %dms (want 1..%d): %w", name, period, MaxTimerPeriod, ErrInvalidPeriod)
	}
	if name != "" {
		if _, dup := r.timerNames[name]; dup {
			return NoTimer, fmt.Errorf("timer %q: %w", name, ErrDuplicateTimer)
		}
	}

	tm := &Timer{
		Desc: TimerDescriptor{
			Entry:   entry,
			Period:  period,
			OneShot: oneShot,
			Name:    resolveFuncName(entry, name),
			Param:   param,
		},
	}
	tm.State.Index = len(r.timers)
	r.timers = append(r.timers, tm)
	if _, dup := r.timerNames[tm.Desc.Name]; !dup {
		r.timerNames[tm.Desc.Name] = tm.ID()
	}
	return tm.ID(), nil
}

// TaskCount returns the number of registered tasks.
func (r *Registry) TaskCount() int { return len(r.tasks) }

// TimerCount returns the number of registered timers.
func (r *Registry) TimerCount() int { return len(r.timers) }

// Task returns the task registered under id, or nil.
func (r *Registry) Task(id TaskID) *Task {
	if id < 0 || int(id) >= len(r.tasks) {
		return nil
	}
	return r.tasks[id]
}

// Timer returns the timer registered under id, or nil.
func (r *Registry) Timer(id TimerID) *Timer {
	if id < 0 || int(id) >= len(r.timers) {
		return nil
	}
	return r.timers[id]
}

// FindTimer looks a timer up by name.
func (r *Registry) FindTimer(name string) (TimerID, error) {
	if id, ok := r.timerNames[name]; ok {
		return id, nil
	}
	return NoTimer, fmt.Errorf("%q: %w", name, ErrTimerNotFound)
}

// seal appends the idle task and closes the registry.
func (r *Registry) seal(idle TaskFunc) *Task {
	t := &Task{
		Desc: TaskDescriptor{
			Entry:    idle,
			Priority: IdlePriority,
			Name:     "idle",
		},
	}
	t.State.Index = len(r.tasks)
	r.tasks = append(r.tasks, t)
	r.closed = true
	return t
}

// pinnedIndex returns the task with the highest static priority; the lowest
// index wins a tie.
func (r *Registry) pinnedIndex() int {
	best := -1
	for i, t := range r.tasks {
		if best < 0 || t.Desc.Priority > r.tasks[best].Desc.Priority {
			best = i
		}
	}
	return best
}
