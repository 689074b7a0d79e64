package core

import (
	"fmt"
	"unsafe"
)

// CompactionMove describes the single memory move performed during a context
// switch. Len bytes at arena offset Src are moved to Dst (regions may
// overlap); the saved stack pointers of tasks First..Last move with them.
type CompactionMove struct {
	Src   int
	Dst   int
	Len   int
	First int
	Last  int
}

// Delta is the signed distance the moved blocks travel.
func (m CompactionMove) Delta() int {
	return m.Dst - m.Src
}

func (m CompactionMove) String() string {
	return fmt.Sprintf("move %d bytes %d->%d (tasks %d..%d)", m.Len, m.Src, m.Dst, m.First, m.Last)
}

// Arena is the shared stack region all tasks live in.
//
// Every task owns a slice of the arena (StackBase/StackSize) that bounds how
// many live bytes it may hold. Live bytes are not kept inside the slices:
// stacks grow downward and the blocks are packed around a single free gap.
// With gap owner g, blocks of tasks below g are packed from the arena base in
// index order, blocks of tasks g and above are packed against the arena end,
// and the gap lies directly below g's block so that g can grow into it.
// Before the first switch the owner is len(tasks) and all blocks sit at the
// base.
type Arena struct {
	mem   []byte
	tasks []*TaskState
	frame int
	align int
}

// NewArena partitions mem into one slice per task.
//
// The pinned task receives a single frame; the remaining capacity is divided
// among the other tasks in index order, each taking an aligned share of what
// is left and the last one taking the remainder. Initial frames are laid out
// packed from the arena base.
func NewArena(mem []byte, tasks []*TaskState, pinned, frameSize, align int) (*Arena, error) {
	if align < 1 {
		align = 1
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("no tasks: %w", ErrArenaTooSmall)
	}
	if pinned >= len(tasks) {
		pinned = -1
	}

	mem = alignRegion(mem, align)
	mem = mem[:alignDown(len(mem), align)]
	frame := alignUp(frameSize, align)
	if frame <= 0 {
		return nil, fmt.Errorf("frame size %d: %w", frameSize, ErrArenaTooSmall)
	}
	if need := frame * len(tasks); len(mem) < need {
		return nil, fmt.Errorf("%d bytes for %d tasks, need at least %d: %w", len(mem), len(tasks), need, ErrArenaTooSmall)
	}

	remaining := len(mem)
	left := len(tasks)
	if pinned >= 0 {
		remaining -= frame
		left--
	}

	base := 0
	for i, t := range tasks {
		size := frame
		if i != pinned {
			if left == 1 {
				size = remaining
			} else {
				size = alignDown(remaining/left, align)
			}
			remaining -= size
			left--
		}
		if size < frame {
			return nil, fmt.Errorf("task %d slice %d < frame %d: %w", i, size, frame, ErrArenaTooSmall)
		}
		t.StackBase = base
		t.StackSize = size
		t.SP = i * frame
		t.Used = frame
		base += size
	}

	return &Arena{mem: mem, tasks: tasks, frame: frame, align: align}, nil
}

// Size returns the usable arena size after alignment.
func (a *Arena) Size() int { return len(a.mem) }

// FrameSize returns the aligned size of one saved frame.
func (a *Arena) FrameSize() int { return a.frame }

// Free returns the number of bytes not held by any task.
func (a *Arena) Free() int {
	used := 0
	for _, t := range a.tasks {
		used += t.Used
	}
	return len(a.mem) - used
}

// Plan computes the move that hands the gap from owner to next. pending is
// the number of bytes the owner pushes before the move runs (its frame when
// it is the task being switched out). A nil result means nothing moves.
func (a *Arena) Plan(owner, next, pending int) *CompactionMove {
	if owner == next {
		return nil
	}

	ownerSP := len(a.mem)
	if owner < len(a.tasks) {
		ownerSP = a.tasks[owner].SP - pending
	}
	gapBottom := 0
	if owner > 0 {
		below := a.tasks[owner-1]
		gapBottom = below.SP + below.Used
	}

	var m CompactionMove
	if next < owner {
		// Blocks next..owner-1 climb to sit under the owner's block.
		src := a.tasks[next].SP
		n := gapBottom - src
		m = CompactionMove{Src: src, Dst: ownerSP - n, Len: n, First: next, Last: owner - 1}
	} else {
		// Blocks owner..next-1 drop to the base side of the gap.
		n := a.tasks[next].SP - ownerSP
		m = CompactionMove{Src: ownerSP, Dst: gapBottom, Len: n, First: owner, Last: next - 1}
	}
	if m.Src == m.Dst {
		return nil
	}
	return &m
}

// Compact performs the move. It is the only place live stack bytes of other
// tasks are relocated; callers must hold the critical section and no task in
// First..Last may be running.
func (a *Arena) Compact(m *CompactionMove) {
	if m == nil || m.Len == 0 {
		return
	}
	copy(a.mem[m.Dst:m.Dst+m.Len], a.mem[m.Src:m.Src+m.Len])
	d := m.Delta()
	for i := m.First; i <= m.Last; i++ {
		a.tasks[i].SP += d
	}
}

// Push stores a frame below t's stack pointer.
func (a *Arena) Push(t *TaskState, frame []byte) error {
	if t.Used+len(frame) > t.StackSize {
		return fmt.Errorf("task %d holds %d bytes, slice is %d: %w", t.Index, t.Used+len(frame), t.StackSize, ErrStackOverflow)
	}
	sp := t.SP - len(frame)
	if sp < 0 {
		return fmt.Errorf("task %d sp %d: %w", t.Index, sp, ErrStackOverflow)
	}
	copy(a.mem[sp:t.SP], frame)
	t.SP = sp
	t.Used += len(frame)
	return nil
}

// Pop removes t's saved bytes and returns a copy of them.
func (a *Arena) Pop(t *TaskState) []byte {
	out := make([]byte, t.Used)
	copy(out, a.mem[t.SP:t.SP+t.Used])
	t.SP += t.Used
	t.Used = 0
	return out
}

// WriteFrame overwrites t's live bytes in place; used for initial frames.
func (a *Arena) WriteFrame(t *TaskState, frame []byte) {
	copy(a.mem[t.SP:t.SP+t.Used], frame)
}

// Check validates the layout: blocks in index order, inside the arena, never
// overlapping.
func (a *Arena) Check() error {
	end := 0
	for _, t := range a.tasks {
		if t.SP < end {
			return fmt.Errorf("task %d block at %d overlaps previous block ending at %d", t.Index, t.SP, end)
		}
		if t.SP+t.Used > len(a.mem) {
			return fmt.Errorf("task %d block [%d,%d) outside arena of %d bytes", t.Index, t.SP, t.SP+t.Used, len(a.mem))
		}
		end = t.SP + t.Used
	}
	return nil
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}

func alignDown(n, align int) int {
	return n / align * align
}

// alignRegion drops leading bytes until the region's base address is aligned.
func alignRegion(mem []byte, align int) []byte {
	if len(mem) == 0 || align <= 1 {
		return mem
	}
	addr := uintptr(unsafe.Pointer(&mem[0]))
	skip := int((uintptr(align) - addr%uintptr(align)) % uintptr(align))
	if skip >= len(mem) {
		return mem[:0]
	}
	return mem[skip:]
}
