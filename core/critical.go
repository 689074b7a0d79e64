package core

// InterruptController is the global interrupt mask of the platform.
type InterruptController interface {
	DisableInterrupts()
	EnableInterrupts()
}

// CriticalSection is a nestable interrupt-disable guard.
// The first Enter masks interrupts; the Exit that brings the nesting count
// back to zero unmasks them. An unbalanced Exit clamps the count at zero.
type CriticalSection struct {
	irq     InterruptController
	nesting int32
}

// NewCriticalSection creates a guard over irq.
func NewCriticalSection(irq InterruptController) *CriticalSection {
	return &CriticalSection{irq: irq}
}

// Enter masks interrupts on the outermost call.
func (c *CriticalSection) Enter() {
	c.nesting++
	if c.nesting == 1 {
		c.irq.DisableInterrupts()
	}
}

// Exit unmasks interrupts once every Enter has been matched.
func (c *CriticalSection) Exit() {
	c.nesting--
	if c.nesting <= 0 {
		c.nesting = 0
		c.irq.EnableInterrupts()
	}
}

// Nesting returns the current depth.
func (c *CriticalSection) Nesting() int {
	return int(c.nesting)
}
