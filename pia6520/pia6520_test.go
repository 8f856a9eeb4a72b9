package pia6520

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-test/deep"
)

// level is a trivial memio.PortIn1 double whose value a test can flip
// between Tick calls.
type level struct {
	b bool
}

func (l *level) Input() bool { return l.b }

// in8 is a trivial memio.PortIn8 double.
type in8 struct{ v uint8 }

func (i *in8) Input() uint8 { return i.v }

func newTestChip(t *testing.T) (*Chip, *level, *in8) {
	t.Helper()
	ca1 := &level{}
	pa := &in8{}
	c, err := Init(&ChipDef{PortA: pa, CA1: ca1})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return c, ca1, pa
}

func tick(t *testing.T, c *Chip) {
	t.Helper()
	if err := c.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	c.TickDone()
}

// TestDDRORAlias verifies CRA bit2 selects whether address 0 reads/writes
// the data direction register or the output register.
func TestDDRORAlias(t *testing.T) {
	c, _, _ := newTestChip(t)

	// CRA bit2 clear: DDR selected.
	c.Write(kCRA, 0x00)
	tick(t, c)
	c.Write(kORA_DDRA, 0xF0)
	tick(t, c)
	if got := c.Read(kORA_DDRA); got != 0xF0 {
		t.Errorf("DDRA = 0x%.2X, want 0xF0", got)
	}

	// CRA bit2 set: OR selected, DDR value from above persists underneath.
	c.Write(kCRA, kCR_OR_SELECT)
	tick(t, c)
	c.Write(kORA_DDRA, 0x0F)
	tick(t, c)
	// Bits 4-7 are DDR outputs driving 0 (the OR's high nibble is 0), bits
	// 0-3 are inputs (DDR=0) so they reflect PortA's input level, which the
	// test double drives as 0.
	if got := c.Read(kORA_DDRA); got != 0x00 {
		t.Errorf("ORA = 0x%.2X, want 0x00", got)
	}
}

// TestCA1IRQAssertAndClear walks CA1 through an active edge and confirms
// IRQA asserts, then clears the moment the Output Register is read.
func TestCA1IRQAssertAndClear(t *testing.T) {
	c, ca1, _ := newTestChip(t)

	// CRA: C1 IRQ enabled, active edge = high-to-low (bit1 clear), OR
	// selected so ORA reads clear the flag.
	c.Write(kCRA, kCR_C1_IRQ_ENABLE|kCR_OR_SELECT)
	tick(t, c)

	ca1.b = true
	tick(t, c)
	if c.IRQA() {
		t.Fatalf("IRQA asserted before an active edge")
	}

	ca1.b = false // high-to-low edge
	tick(t, c)
	if !c.IRQA() {
		t.Fatalf("IRQA not asserted after active CA1 edge")
	}

	c.Read(kORA_DDRA)
	tick(t, c)
	if c.IRQA() {
		t.Errorf("IRQA still asserted after reading ORA")
	}
}

// TestCA1IRQDisabled confirms the flag still latches in CRA even when the
// enable bit is clear, but IRQA never asserts.
func TestCA1IRQDisabled(t *testing.T) {
	c, ca1, _ := newTestChip(t)
	c.Write(kCRA, kCR_OR_SELECT) // enable bit clear
	tick(t, c)

	ca1.b = true
	tick(t, c)
	ca1.b = false
	tick(t, c)

	if c.IRQA() {
		t.Fatalf("IRQA asserted with C1 IRQ enable bit clear")
	}
	if c.Read(kCRA)&kCR_IRQ1 == 0 {
		t.Errorf("IRQ1 flag not latched in CRA despite enable bit being clear")
	}
}

// TestCA2HandshakeOutput exercises CA2 configured as a handshake output:
// reading RA should drive CA2 low, and the next active CA1 edge should
// restore it high.
func TestCA2HandshakeOutput(t *testing.T) {
	c, ca1, _ := newTestChip(t)
	// CA2 output, handshake mode (output bit set, SUB2=0, SUB1=0), OR
	// selected, C1 active edge low-to-high so it doesn't fire from our
	// read-triggered low->high set up below.
	c.Write(kCRA, kCR_OR_SELECT|kCR_C2_OUTPUT|kCR_C1_POSITIVE)
	tick(t, c)

	if !c.CA2Output() {
		t.Fatalf("CA2 not idling high before any read")
	}

	c.Read(kORA_DDRA)
	tick(t, c)
	if c.CA2Output() {
		t.Errorf("CA2 still high immediately after the triggering read")
	}

	ca1.b = true // low-to-high active edge restores the handshake line
	tick(t, c)
	if !c.CA2Output() {
		t.Errorf("CA2 not restored high after the active CA1 edge")
	}
}

// TestCA2PulseOutput exercises CA2 configured as a pulse output: the strobe
// self-clears exactly one cycle after the triggering read, with no CA1
// involvement.
func TestCA2PulseOutput(t *testing.T) {
	c, _, _ := newTestChip(t)
	c.Write(kCRA, kCR_OR_SELECT|kCR_C2_OUTPUT|kCR_C2_SUB1)
	tick(t, c)

	c.Read(kORA_DDRA)
	tick(t, c)
	if c.CA2Output() {
		t.Errorf("CA2 still high immediately after the triggering read")
	}

	tick(t, c)
	if !c.CA2Output() {
		t.Errorf("CA2 pulse didn't self-clear one cycle later")
	}
}

// TestPowerOnIsQuiescent confirms a freshly initialized chip asserts
// nothing and holds its state across a Tick with no inputs changing.
func TestPowerOnIsQuiescent(t *testing.T) {
	c, _, _ := newTestChip(t)
	if c.Raised() {
		t.Fatalf("IRQ asserted immediately after power on")
	}
	before := spew.Sdump(c)
	tick(t, c)
	after := spew.Sdump(c)
	if diff := deep.Equal(before, after); diff != nil {
		t.Errorf("state changed on a quiescent tick: %v", diff)
	}
}
