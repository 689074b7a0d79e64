package host

import (
	"encoding/binary"
	"fmt"

	"github.com/Swind/go-rtos/core"
)

// A saved frame stands in for the callee-saved registers of a hardware
// target. Its header identifies the owning task and the switch it was saved
// by, so a frame damaged or misplaced by compaction is caught on restore.
//
//	offset 0  uint32 magic
//	offset 4  uint32 task index
//	offset 8  uint64 save sequence
const (
	frameMagic      uint32 = 0x534f5452 // "RTOS"
	frameHeaderSize        = 16
)

func encodeFrame(size, index int, seq uint64) []byte {
	if size < frameHeaderSize {
		size = frameHeaderSize
	}
	b := make([]byte, size)
	binary.LittleEndian.PutUint32(b[0:4], frameMagic)
	binary.LittleEndian.PutUint32(b[4:8], uint32(index))
	binary.LittleEndian.PutUint64(b[8:16], seq)
	return b
}

func decodeFrame(b []byte, index int, seq uint64) error {
	if len(b) < frameHeaderSize {
		return fmt.Errorf("task %d: %d byte frame: %w", index, len(b), core.ErrCorruptFrame)
	}
	if magic := binary.LittleEndian.Uint32(b[0:4]); magic != frameMagic {
		return fmt.Errorf("task %d: magic %#x: %w", index, magic, core.ErrCorruptFrame)
	}
	if owner := binary.LittleEndian.Uint32(b[4:8]); owner != uint32(index) {
		return fmt.Errorf("task %d: frame belongs to task %d: %w", index, owner, core.ErrCorruptFrame)
	}
	if got := binary.LittleEndian.Uint64(b[8:16]); got != seq {
		return fmt.Errorf("task %d: frame from switch %d, want %d: %w", index, got, seq, core.ErrCorruptFrame)
	}
	return nil
}
