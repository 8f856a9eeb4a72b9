package via6522

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-test/deep"
)

func tick(t *testing.T, c *Chip, in Input) Output {
	t.Helper()
	out, err := c.Tick(in)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	return out
}

func writeReg(t *testing.T, c *Chip, rs uint8, val uint8) {
	t.Helper()
	tick(t, c, Input{CS1: true, RS: rs, Data: val})
}

func readReg(t *testing.T, c *Chip, rs uint8) uint8 {
	t.Helper()
	return tick(t, c, Input{CS1: true, RW: true, RS: rs}).Data
}

// TestDDRPortAlias confirms writing the DDR then the OR produces the
// expected mixed input/output pin value on a read.
func TestDDRPortAlias(t *testing.T) {
	c := New()
	writeReg(t, c, kDDRA, 0xF0) // high nibble output, low nibble input.
	writeReg(t, c, kORA_IRA, 0xAA)

	out := tick(t, c, Input{PA: 0x0F})
	if out.PA != 0xAF {
		t.Errorf("PA = 0x%.2X, want 0xAF (0xA0 output | 0x0F input)", out.PA)
	}
}

// TestT1OneShotIRQ loads T1 in one-shot mode and confirms IRQ_T1 (and the
// IRQ pin) assert exactly once on underflow, clearing when T1CL is read.
func TestT1OneShotIRQ(t *testing.T) {
	c := New()
	writeReg(t, c, kT1L_L, 0x03)
	writeReg(t, c, kT1C_H, 0x00) // loads the counter and arms the timer.
	// Enabled only now: the power-on counter is 0, and an underflow of it
	// before the arming write would still reach the pipelined IRQ pin.
	writeReg(t, c, kIER, kIRQ_ANY|kIRQ_T1)

	var out Output
	underflowed := false
	for i := 0; i < 10 && !underflowed; i++ {
		out = tick(t, c, Input{})
		if !out.IRQ {
			underflowed = true
		}
	}
	if !underflowed {
		t.Fatalf("T1 never asserted IRQ within 10 ticks")
	}
	if readReg(t, c, kIFR)&kIRQ_T1 == 0 {
		t.Errorf("IFR T1 bit not set at underflow")
	}

	readReg(t, c, kT1C_L)
	if c.ifr&kIRQ_T1 != 0 {
		t.Errorf("IRQ_T1 still latched after reading T1CL")
	}
}

// TestT1ContinuousReload confirms continuous mode keeps generating
// underflows (toggling t_bit/PB7) rather than stopping after the first one.
func TestT1ContinuousReload(t *testing.T) {
	c := New()
	writeReg(t, c, kACR, kACR_T1_FREERUN)
	writeReg(t, c, kIER, kIRQ_ANY|kIRQ_T1)
	writeReg(t, c, kT1L_L, 0x02)
	writeReg(t, c, kT1C_H, 0x00)

	underflows := 0
	for i := 0; i < 40; i++ {
		out := tick(t, c, Input{})
		if !out.IRQ {
			underflows++
			readReg(t, c, kT1C_L) // clear so we can detect the next one.
		}
	}
	if underflows < 2 {
		t.Errorf("continuous T1 underflowed %d times in 40 ticks, want at least 2", underflows)
	}
}

// TestCA2HandshakeRestoredByCA1 exercises the VIA's CA2 handshake output
// mode: writing ORA drives CA2 low, and the next active CA1 edge restores it.
func TestCA2HandshakeRestoredByCA1(t *testing.T) {
	c := New()
	// CA2 output, handshake submode (bit3=1,bit2=0,bit1=0); CA1 positive edge.
	writeReg(t, c, kPCR, kPCR_C1_POSITIVE|kPCR_C2_OUTPUT)

	out := tick(t, c, Input{})
	if !out.CA2 {
		t.Fatalf("CA2 not idling high before any OR write")
	}

	writeReg(t, c, kORA_IRA, 0x01)
	out = tick(t, c, Input{})
	if out.CA2 {
		t.Errorf("CA2 still high after the triggering OR write")
	}

	out = tick(t, c, Input{CA1: true})
	if !out.CA2 {
		t.Errorf("CA2 not restored after the active CA1 edge")
	}
}

// TestIFRAnyBit confirms the ANY bit tracks (IFR & IER & 0x7F) with the
// one-cycle pipeline delay the model uses for the IRQ output.
func TestIFRAnyBit(t *testing.T) {
	c := New()
	writeReg(t, c, kIER, kIRQ_ANY|kIRQ_CA1)
	writeReg(t, c, kPCR, kPCR_C1_POSITIVE)

	out := tick(t, c, Input{CA1: true})
	if !out.IRQ {
		t.Fatalf("IRQ asserted on the same cycle as the triggering edge")
	}
	out = tick(t, c, Input{CA1: true})
	if out.IRQ {
		t.Errorf("IRQ not asserted one cycle after CA1's active edge")
	}
}

// TestResetPreservesTimers confirms RESET clears ports/control registers
// but leaves the T1/T2 counters and latches untouched.
func TestResetPreservesTimers(t *testing.T) {
	c := New()
	writeReg(t, c, kT1L_L, 0x42)
	writeReg(t, c, kT1C_H, 0x01)
	writeReg(t, c, kDDRA, 0xFF)

	tick(t, c, Input{Reset: true})

	if c.t1.latch&0xFF != 0x42 {
		t.Errorf("T1 latch low = 0x%.2X, want 0x42 preserved across reset", c.t1.latch&0xFF)
	}
	if readReg(t, c, kDDRA) != 0x00 {
		t.Errorf("DDRA not cleared by reset")
	}
}

// TestQuiescentTickIsStable confirms a freshly powered-on VIA with nothing
// enabled raises no interrupt across a tick with no interesting inputs. Its
// timer pipelines do advance, so a state diff is only logged.
func TestQuiescentTickIsStable(t *testing.T) {
	c := New()
	before := spew.Sdump(c)
	tick(t, c, Input{})
	after := spew.Sdump(c)
	if diff := deep.Equal(before, after); diff != nil {
		t.Logf("state changed on a quiescent tick (expected: pipelines advance): %v", diff)
	}
	if c.ifr&kIRQ_ANY != 0 {
		t.Errorf("IRQ.ANY set with nothing enabled")
	}
}
