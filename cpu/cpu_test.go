package cpu

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-test/deep"
)

// flatMemory implements memio.Ram as a flat 64K address space for testing.
type flatMemory struct {
	addr [65536]uint8
}

func (r *flatMemory) Read(addr uint16) uint8       { return r.addr[addr] }
func (r *flatMemory) Write(addr uint16, val uint8) { r.addr[addr] = val }
func (r *flatMemory) PowerOn()                     {}

func newTestChip(t *testing.T, fill uint8) (*Chip, *flatMemory) {
	t.Helper()
	ram := &flatMemory{}
	for i := range ram.addr {
		ram.addr[i] = fill
	}
	ram.addr[RESET_VECTOR] = 0x00
	ram.addr[RESET_VECTOR+1] = 0x80
	ram.addr[IRQ_VECTOR] = 0x00
	ram.addr[IRQ_VECTOR+1] = 0x90
	ram.addr[NMI_VECTOR] = 0x00
	ram.addr[NMI_VECTOR+1] = 0xA0
	c := New(ram)
	return c, ram
}

// runReset drives Input.Reset true until the chip leaves its reset
// sequence, returning the number of Ticks consumed.
func runReset(t *testing.T, c *Chip) int {
	t.Helper()
	ticks := 0
	for c.Resetting() {
		if _, err := c.Tick(Input{Reset: true, Ready: true}); err != nil {
			t.Fatalf("reset tick %d: unexpected error %v", ticks, err)
		}
		ticks++
		if ticks > 10 {
			t.Fatalf("reset didn't complete in 10 ticks")
		}
	}
	return ticks
}

// step runs Ticks (with no interrupt lines asserted) until the in-flight
// instruction completes, returning the cycle count it took.
func step(t *testing.T, c *Chip) (int, Output) {
	t.Helper()
	var out Output
	var err error
	cycles := 0
	for {
		out, err = c.Tick(Input{Ready: true})
		cycles++
		if err != nil {
			t.Fatalf("unexpected error on tick %d: %v", cycles, err)
		}
		if c.InstructionDone() {
			return cycles, out
		}
		if cycles > 10 {
			t.Fatalf("instruction didn't complete in 10 ticks")
		}
	}
}

func TestReset(t *testing.T) {
	c, _ := newTestChip(t, 0xEA)
	ticks := runReset(t, c)
	if ticks != 6 {
		t.Errorf("reset took %d ticks, want 6", ticks)
	}
	if c.PC != 0x8000 {
		t.Errorf("PC after reset = 0x%.4X, want 0x8000", c.PC)
	}
	if c.P&P_INTERRUPT == 0 {
		t.Errorf("P_INTERRUPT not set after reset")
	}
}

// TestLDASTA walks through the classic "LDA #imm then STA abs" scenario:
// 2 cycles for the load, 4 for the store, with the byte landing correctly.
func TestLDASTA(t *testing.T) {
	c, ram := newTestChip(t, 0xEA)
	runReset(t, c)

	ram.addr[0x8000] = 0xA9 // LDA #$42
	ram.addr[0x8001] = 0x42
	ram.addr[0x8002] = 0x8D // STA $0200
	ram.addr[0x8003] = 0x00
	ram.addr[0x8004] = 0x02

	cycles, _ := step(t, c)
	if cycles != 2 {
		t.Errorf("LDA #imm took %d cycles, want 2", cycles)
	}
	if c.A != 0x42 {
		t.Errorf("A = 0x%.2X, want 0x42", c.A)
	}

	cycles, _ = step(t, c)
	if cycles != 4 {
		t.Errorf("STA abs took %d cycles, want 4", cycles)
	}
	if got := ram.addr[0x0200]; got != 0x42 {
		t.Errorf("RAM[0x0200] = 0x%.2X, want 0x42", got)
	}
}

func TestDecimalADC(t *testing.T) {
	c, ram := newTestChip(t, 0xEA)
	runReset(t, c)

	ram.addr[0x8000] = 0xF8 // SED
	ram.addr[0x8001] = 0x18 // CLC
	ram.addr[0x8002] = 0xA9 // LDA #$58
	ram.addr[0x8003] = 0x58
	ram.addr[0x8004] = 0x69 // ADC #$46
	ram.addr[0x8005] = 0x46

	step(t, c) // SED
	step(t, c) // CLC
	step(t, c) // LDA
	step(t, c) // ADC
	if c.A != 0x04 {
		t.Errorf("58+46 BCD = 0x%.2X, want 0x04 (with carry set)", c.A)
	}
	if c.P&P_CARRY == 0 {
		t.Errorf("carry not set after decimal overflow")
	}
}

// TestJMPIndirectPageWrap verifies the classic hardware bug: JMP ($xxFF)
// fetches its high byte from ($xx00), not the following page.
func TestJMPIndirectPageWrap(t *testing.T) {
	c, ram := newTestChip(t, 0xEA)
	runReset(t, c)

	ram.addr[0x8000] = 0x6C // JMP ($30FF)
	ram.addr[0x8001] = 0xFF
	ram.addr[0x8002] = 0x30
	ram.addr[0x30FF] = 0x34
	ram.addr[0x3000] = 0x12 // wrong-page byte that should be used
	ram.addr[0x3100] = 0x99 // correct-page byte that must NOT be used

	step(t, c)
	if c.PC != 0x1234 {
		t.Errorf("PC after JMP ($30FF) = 0x%.4X, want 0x1234 (page-wrap bug)", c.PC)
	}
}

func TestIRQRespectsInterruptFlag(t *testing.T) {
	c, ram := newTestChip(t, 0xEA)
	runReset(t, c)
	c.P |= P_INTERRUPT

	ram.addr[0x8000] = 0xEA // NOP, run with IRQ held asserted.
	for i := 0; i < 10; i++ {
		if _, err := c.Tick(Input{IRQ: true, Ready: true}); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if c.InstructionDone() {
			break
		}
	}
	if c.runningInterrupt {
		t.Fatalf("IRQ serviced while I flag set")
	}

	c.P &^= P_INTERRUPT
	for i := 0; i < 8; i++ {
		if _, err := c.Tick(Input{IRQ: true, Ready: true}); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if c.InstructionDone() {
			break
		}
	}
	if c.PC != 0x9000 {
		t.Errorf("PC after IRQ = 0x%.4X, want 0x9000", c.PC)
	}
}

// TestNMIHijacksBRK checks that an NMI arriving mid-BRK-sequence steals the
// vector even though the sequence started out heading for IRQ_VECTOR.
func TestNMIHijacksBRK(t *testing.T) {
	c, ram := newTestChip(t, 0xEA)
	runReset(t, c)

	ram.addr[0x8000] = 0x00 // BRK
	ram.addr[0x8001] = 0xEA

	if _, err := c.Tick(Input{Ready: true}); err != nil { // cycle 1: fetch BRK
		t.Fatalf("tick 1: %v", err)
	}
	if _, err := c.Tick(Input{NMI: true, Ready: true}); err != nil { // cycle 2: NMI edge arrives
		t.Fatalf("tick 2: %v", err)
	}
	for !c.InstructionDone() {
		if _, err := c.Tick(Input{Ready: true}); err != nil {
			t.Fatalf("draining BRK: %v", err)
		}
	}
	if c.PC != 0xA000 {
		t.Errorf("PC after hijacked BRK = 0x%.4X, want 0xA000 (NMI vector)", c.PC)
	}
}

func TestUndocumentedSLO(t *testing.T) {
	c, ram := newTestChip(t, 0xEA)
	runReset(t, c)

	ram.addr[0x8000] = 0x07 // SLO $10
	ram.addr[0x8001] = 0x10
	ram.addr[0x0010] = 0x81
	c.A = 0x01

	step(t, c)
	if got := ram.addr[0x0010]; got != 0x02 {
		t.Errorf("RAM[0x10] after SLO = 0x%.2X, want 0x02", got)
	}
	if c.A != 0x03 {
		t.Errorf("A after SLO = 0x%.2X, want 0x03 (ORA'd with shifted value)", c.A)
	}
	if c.P&P_CARRY == 0 {
		t.Errorf("carry not set from the shifted-out bit")
	}
}

func TestHaltOpcode(t *testing.T) {
	c, ram := newTestChip(t, 0xEA)
	runReset(t, c)
	ram.addr[0x8000] = 0x02 // JAM

	_, err := c.Tick(Input{Ready: true})
	if err != nil {
		t.Fatalf("unexpected error on opcode fetch: %v", err)
	}
	_, err = c.Tick(Input{Ready: true})
	if _, ok := err.(HaltOpcode); !ok {
		t.Fatalf("err = %v (%T), want HaltOpcode", err, err)
	}
	// Once halted, it stays halted.
	if _, err = c.Tick(Input{Ready: true}); err == nil {
		t.Errorf("expected chip to remain halted")
	}
}

func TestReadyPausesCPU(t *testing.T) {
	c, ram := newTestChip(t, 0xEA)
	runReset(t, c)
	ram.addr[0x8000] = 0xA9 // LDA #$01
	ram.addr[0x8001] = 0x01

	before := spew.Sdump(c)
	if _, err := c.Tick(Input{Ready: false}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := spew.Sdump(c)
	if diff := deep.Equal(before, after); diff != nil {
		t.Errorf("state changed while RDY held low: %v", diff)
	}
}
