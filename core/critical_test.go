package core

import "testing"

type countingIRQ struct {
	enabled  bool
	disables int
	enables  int
}

func (c *countingIRQ) DisableInterrupts() {
	c.enabled = false
	c.disables++
}

func (c *countingIRQ) EnableInterrupts() {
	c.enabled = true
	c.enables++
}

// TestCriticalSection_Nesting verifies nested enter/exit pairs
// Main test items:
// 1. Only the outermost Enter masks interrupts
// 2. Interrupts are unmasked exactly once, at the last Exit
func TestCriticalSection_Nesting(t *testing.T) {
	for _, depth := range []int{1, 2, 5, 32} {
		// Arrange
		irq := &countingIRQ{enabled: true}
		cs := NewCriticalSection(irq)

		// Act
		for range depth {
			cs.Enter()
		}
		if cs.Nesting() != depth {
			t.Fatalf("depth %d: nesting %d", depth, cs.Nesting())
		}
		for i := range depth {
			if irq.enabled {
				t.Fatalf("depth %d: interrupts enabled after %d exits", depth, i)
			}
			cs.Exit()
		}

		// Assert
		if irq.disables != 1 || irq.enables != 1 {
			t.Errorf("depth %d: %d disables, %d enables; want 1 each", depth, irq.disables, irq.enables)
		}
		if !irq.enabled {
			t.Errorf("depth %d: interrupts left masked", depth)
		}
	}
}

// TestCriticalSection_UnbalancedExit verifies the count clamps at zero
func TestCriticalSection_UnbalancedExit(t *testing.T) {
	irq := &countingIRQ{enabled: true}
	cs := NewCriticalSection(irq)

	cs.Exit()
	cs.Exit()
	if cs.Nesting() != 0 {
		t.Fatalf("expected nesting 0, got %d", cs.Nesting())
	}

	// A following pair still masks and unmasks once
	cs.Enter()
	if irq.enabled {
		t.Error("expected interrupts masked")
	}
	cs.Exit()
	if !irq.enabled || cs.Nesting() != 0 {
		t.Errorf("expected interrupts enabled at nesting 0, got %v/%d", irq.enabled, cs.Nesting())
	}
}
