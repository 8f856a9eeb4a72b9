// Package cpu implements a cycle-accurate model of the MOS 6502 (NMOS,
// undocumented opcodes included). The chip is a pure state machine: each
// call to Tick advances it by exactly one clock edge, consuming the Input
// pins and producing the Output pins driven for that cycle. No memory
// array, ROM loader, clock driver, or inter-chip glue lives here - a host
// wires a memio.Ram and drives Tick in a loop.
//
// 65C02/6510/Rockwell-WDC variants, sub-cycle bus modeling, and real-time
// scheduling are out of scope; see the package-level tests for the
// properties this model is expected to hold.
package cpu

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/mkarlsson/6502core/memio"
)

const (
	NMI_VECTOR   = uint16(0xFFFA)
	RESET_VECTOR = uint16(0xFFFC)
	IRQ_VECTOR   = uint16(0xFFFE)

	P_NEGATIVE  = uint8(0x80)
	P_OVERFLOW  = uint8(0x40)
	P_S1        = uint8(0x20) // Always 1.
	P_B         = uint8(0x10) // Only set in the byte pushed during BRK.
	P_DECIMAL   = uint8(0x8)
	P_INTERRUPT = uint8(0x4)
	P_ZERO      = uint8(0x2)
	P_CARRY     = uint8(0x1)

	NEGATIVE_ONE = uint8(0xFF)
)

// vecType names which vector an in-flight BRK/interrupt sequence is
// currently heading towards. A sequence already pushing its return address
// can be hijacked mid-flight by a higher priority interrupt before the
// vector bytes are actually fetched.
type vecType int

const (
	vecNone vecType = iota
	vecIRQ
	vecNMI
)

// brk_flags bits record which interrupt source(s) a sequence is servicing.
// Exposed as constants since a future bus-snooping peripheral may want to
// reason about why the CPU is mid-sequence.
const (
	brkIRQ   = uint8(1 << 0)
	brkNMI   = uint8(1 << 1)
	brkReset = uint8(1 << 2)
)

// InvalidState reports an internal precondition failure: a cycle count or
// bus state the chip should never actually reach. Once returned the chip
// is halted exactly as for HaltOpcode.
type InvalidState struct {
	Reason string
}

func (e InvalidState) Error() string {
	return fmt.Sprintf("invalid CPU state: %s", e.Reason)
}

// HaltOpcode reports that a JAM/HLT opcode was executed. Once halted the
// chip keeps returning this same error on every subsequent Tick.
type HaltOpcode struct {
	Opcode uint8
}

func (e HaltOpcode) Error() string {
	return fmt.Sprintf("HALT(0x%.2X) executed", e.Opcode)
}

// Input is the pin bundle driven into the CPU for one clock edge.
type Input struct {
	// Reset, held true, forces (and while held, holds) the chip in its
	// power-on reset sequence.
	Reset bool
	// NMI is edge triggered: a low-to-high transition latches a pending
	// non-maskable interrupt regardless of the I flag.
	NMI bool
	// IRQ is level triggered and gated by the I flag.
	IRQ bool
	// Ready, when false, pauses the chip for this Tick (time does not
	// advance). Every cycle is paused this way, write cycles as well as
	// read cycles.
	Ready bool
}

// Output is the pin bundle the CPU is driving as of the end of the last
// Tick call.
type Output struct {
	Addr uint16
	Data uint8
	// RW is true for a read cycle, false for a write cycle.
	RW bool
	// Sync is true during the cycle that fetches an opcode (including the
	// throwaway fetch at the start of an interrupt sequence).
	Sync bool
}

// Chip is a MOS 6502 NMOS core, undocumented opcodes included. The 65C02,
// 6510, and WDC variants are Non-goals and not modeled.
type Chip struct {
	A  uint8
	X  uint8
	Y  uint8
	S  uint8
	P  uint8
	PC uint16

	ram memio.Ram

	opcode   uint8  // current working opcode; IR is opcode<<3|cycle.
	val      uint8  // AD scratch: the byte fetched right after the opcode.
	cycle    int    // cycle index within the current opcode/interrupt/reset sequence.
	ad       uint16 // AD scratch: address under computation for this instruction.
	opDone   bool
	addrDone bool

	skipInterrupt     bool // a taken branch defers interrupt recognition by one instruction.
	prevSkipInterrupt bool

	pendingVec       vecType // which vector an in-flight BRK/interrupt sequence targets.
	runningInterrupt bool
	inReset          bool

	irqPip  uint8 // level-triggered IRQ recognition pipeline.
	nmiPip  uint8 // edge-triggered NMI recognition pipeline.
	lastNMI bool  // NMI line as sampled on the previous Tick.

	brkFlags uint8 // brkIRQ|brkNMI|brkReset currently being serviced or pending.

	halted bool
	haltOp uint8

	out Output
}

// New returns a 6502 wired to ram. The chip starts powered on with A, X,
// Y, S and the D flag randomized (real SRAM and flip-flops have no defined
// power-on state) and immediately begins a reset sequence; the caller
// should drive Input.Reset true for the first Tick or two to mirror real
// hardware holding RESET low on power-up, but the reset sequence will run
// to completion (6 cycles) even if Reset is left false throughout.
func New(ram memio.Ram) *Chip {
	rand.Seed(time.Now().UnixNano())
	p := &Chip{
		ram: ram,
		A:   uint8(rand.Intn(256)),
		X:   uint8(rand.Intn(256)),
		Y:   uint8(rand.Intn(256)),
		S:   uint8(rand.Intn(256)),
		P:   P_S1,
	}
	if rand.Float32() > 0.5 {
		p.P |= P_DECIMAL
	}
	p.inReset = true
	p.brkFlags |= brkReset
	return p
}

// InstructionDone reports whether the cycle just processed was the last
// one of the current instruction (or interrupt/reset sequence).
func (p *Chip) InstructionDone() bool {
	return p.opDone
}

// Resetting reports whether the chip is still inside its power-on/reset
// sequence.
func (p *Chip) Resetting() bool {
	return p.inReset
}

// busRead performs a read and records it as this cycle's bus activity.
func (p *Chip) busRead(addr uint16) uint8 {
	v := p.ram.Read(addr)
	p.out.Addr, p.out.Data, p.out.RW = addr, v, true
	return v
}

// busWrite performs a write and records it as this cycle's bus activity.
func (p *Chip) busWrite(addr uint16, val uint8) {
	p.ram.Write(addr, val)
	p.out.Addr, p.out.Data, p.out.RW = addr, val, false
}

// runReset implements the 6 cycle reset sequence. Like an interrupt this
// moves the stack pointer down 3 as if PC/P had been pushed, but every one
// of those cycles is a read - real hardware disables the write line during
// reset, so nothing in RAM is disturbed.
func (p *Chip) runReset() {
	switch p.cycle {
	case 1:
		_ = p.busRead(p.PC)
		p.P |= P_INTERRUPT
		p.halted = false
		p.haltOp = 0
		p.pendingVec = vecNone
	case 2, 3, 4:
		_ = p.busRead(0x0100 + uint16(p.S))
		p.S--
	case 5:
		p.val = p.busRead(RESET_VECTOR)
	default: // case 6
		p.PC = (uint16(p.busRead(RESET_VECTOR+1)) << 8) + uint16(p.val)
		p.inReset = false
		p.cycle = 0
		p.brkFlags &^= brkReset
	}
}

// Tick advances the chip by one clock edge, consuming in and returning the
// pins now being driven. An error indicates the chip has halted (either an
// explicit JAM opcode or an internal precondition failure) and will keep
// being returned on every subsequent call until the chip is replaced.
func (p *Chip) Tick(in Input) (Output, error) {
	// Recognition pipelines: sampled every cycle, even mid-sequence (which
	// is what lets a higher priority interrupt hijack one already running)
	// and even while RDY holds the CPU paused below. nmiPip is the one
	// exception - it stays frozen across a RDY stall so the edge position
	// it's tracking isn't lost, and only resumes shifting once RDY returns.
	nmiEdge := in.NMI && !p.lastNMI
	p.lastNMI = in.NMI
	p.irqPip = (p.irqPip << 1) & 0x3
	if in.IRQ {
		p.irqPip |= 0x1
	}

	if !in.Ready {
		return p.out, nil
	}
	if p.halted {
		return p.out, HaltOpcode{p.haltOp}
	}

	p.nmiPip = (p.nmiPip << 1) & 0x3
	if nmiEdge {
		p.nmiPip |= 0x1
	}
	if in.Reset {
		p.brkFlags |= brkReset
	}
	if p.nmiPip&0x2 != 0 {
		p.brkFlags |= brkNMI
	}

	p.cycle++
	p.out.Sync = false

	if p.inReset {
		p.runReset()
		return p.out, nil
	}

	switch {
	case p.cycle == 1:
		p.out.Sync = true
		p.opcode = p.busRead(p.PC)
		p.opDone = false
		p.addrDone = false

		if p.brkFlags&brkReset != 0 {
			p.inReset = true
			p.cycle = 0
			return p.out, nil
		}

		irqLevel := p.irqPip&0x2 != 0 && p.P&P_INTERRUPT == 0
		pending := p.pendingVec != vecNone
		if !pending && (p.brkFlags&brkNMI != 0 || irqLevel) {
			pending = true
			if p.brkFlags&brkNMI != 0 {
				p.pendingVec = vecNMI
				p.brkFlags |= brkNMI
			} else {
				p.pendingVec = vecIRQ
				p.brkFlags |= brkIRQ
			}
		}
		if pending && !p.skipInterrupt {
			p.runningInterrupt = true
		} else {
			p.runningInterrupt = false
			p.PC++
		}
		return p.out, nil
	case p.cycle == 2:
		p.val = p.busRead(p.PC)
		p.prevSkipInterrupt = false
		if p.skipInterrupt {
			p.skipInterrupt = false
			p.prevSkipInterrupt = true
		}
	case p.cycle > 8:
		p.opDone = true
		p.halted = true
		p.haltOp = p.opcode
		return p.out, InvalidState{fmt.Sprintf("cycle %d too large (> 8)", p.cycle)}
	}

	// Re-sample every cycle of an in-flight sequence: an NMI arriving after
	// an IRQ (or BRK) sequence has started hijacks the vector it uses.
	if p.brkFlags&brkNMI != 0 {
		p.pendingVec = vecNMI
	}

	var err error
	if p.runningInterrupt {
		addr := IRQ_VECTOR
		if p.pendingVec == vecNMI {
			addr = NMI_VECTOR
		}
		p.opDone, err = p.runInterrupt(addr, true)
	} else {
		p.opDone, err = p.processOpcode()
	}

	if p.halted {
		p.haltOp = p.opcode
		p.opDone = true
		return p.out, HaltOpcode{p.opcode}
	}
	if err != nil {
		p.haltOp = p.opcode
		p.halted = true
		p.opDone = true
		return p.out, err
	}
	if p.opDone {
		p.cycle = 0
		if p.runningInterrupt {
			p.brkFlags &^= brkNMI | brkIRQ
			p.pendingVec = vecNone
		}
		p.runningInterrupt = false
	}
	return p.out, nil
}

func (p *Chip) processOpcode() (bool, error) {
	// Opcode matric taken from:
	// http://wiki.nesdev.com/w/index.php/CPU_unofficial_opcodes#Games_using_unofficial_opcodes
	//
	// NOTE: The above lists 0xAB as LAX #i but we call it OAL since it has odd behavior and needs
	//       it's own code compared to other LAX. See 6502-NMOS.extra.opcodes below.
	//
	// Description of undocumented opcodes:
	//
	// http://www.ffd2.com/fridge/docs/6502-NMOS.extra.opcodes
	// http://nesdev.com/6502_cpu.txt
	// http://visual6502.org/wiki/index.php?title=6502_Opcode_8B_(XAA,_ANE)
	//
	// Opcode descriptions/timing/etc:
	// http://obelisk.me.uk/6502/reference.html

	// Preset (just in case). There is no default below since all cases are covered.
	var err error
	err = InvalidState{"Invalid CPU state"}

	switch p.opcode {
	case 0x00:
		// BRK #i
		p.opDone, err = p.iBRK()
	case 0x01:
		// ORA (d,x)
		p.opDone, err = p.loadInstruction(p.addrIndirectX, p.iORA)
	case 0x02:
		// HLT
		p.halted = true
	case 0x03:
		// SLO (d,x)
		p.opDone, err = p.rmwInstruction(p.addrIndirectX, p.iSLO)
	case 0x04:
		// NOP d
		p.opDone, err = p.addrZP(kLOAD_INSTRUCTION)
	case 0x05:
		// ORA d
		p.opDone, err = p.loadInstruction(p.addrZP, p.iORA)
	case 0x06:
		// ASL d
		p.opDone, err = p.rmwInstruction(p.addrZP, p.iASL)
	case 0x07:
		// SLO d
		p.opDone, err = p.rmwInstruction(p.addrZP, p.iSLO)
	case 0x08:
		// PHP
		p.opDone, err = p.iPHP()
	case 0x09:
		// ORA #i
		p.opDone, err = p.loadInstruction(p.addrImmediate, p.iORA)
	case 0x0A:
		// ASL
		p.opDone, err = p.iASLAcc()
	case 0x0B:
		// ANC #i
		p.opDone, err = p.loadInstruction(p.addrImmediate, p.iANC)
	case 0x0C:
		// NOP a
		p.opDone, err = p.addrAbsolute(kLOAD_INSTRUCTION)
	case 0x0D:
		// ORA a
		p.opDone, err = p.loadInstruction(p.addrAbsolute, p.iORA)
	case 0x0E:
		// ASL a
		p.opDone, err = p.rmwInstruction(p.addrAbsolute, p.iASL)
	case 0x0F:
		// SLO a
		p.opDone, err = p.rmwInstruction(p.addrAbsolute, p.iSLO)
	case 0x10:
		// BPL *+r
		p.opDone, err = p.iBPL()
	case 0x11:
		// ORA (d),y
		p.opDone, err = p.loadInstruction(p.addrIndirectY, p.iORA)
	case 0x12:
		// HLT
		p.halted = true
	case 0x13:
		// SLO (d),y
		p.opDone, err = p.rmwInstruction(p.addrIndirectY, p.iSLO)
	case 0x14:
		// NOP d,x
		p.opDone, err = p.addrZPX(kLOAD_INSTRUCTION)
	case 0x15:
		// ORA d,x
		p.opDone, err = p.loadInstruction(p.addrZPX, p.iORA)
	case 0x16:
		// ASL d,x
		p.opDone, err = p.rmwInstruction(p.addrZPX, p.iASL)
	case 0x17:
		// SLO d,x
		p.opDone, err = p.rmwInstruction(p.addrZPX, p.iSLO)
	case 0x18:
		// CLC
		p.opDone, err = p.iCLC()
	case 0x19:
		// ORA a,y
		p.opDone, err = p.loadInstruction(p.addrAbsoluteY, p.iORA)
	case 0x1A:
		// NOP
		p.opDone, err = true, nil
	case 0x1B:
		// SLO a,y
		p.opDone, err = p.rmwInstruction(p.addrAbsoluteY, p.iSLO)
	case 0x1C:
		// NOP a,x
		p.opDone, err = p.addrAbsoluteX(kLOAD_INSTRUCTION)
	case 0x1D:
		// ORA a,x
		p.opDone, err = p.loadInstruction(p.addrAbsoluteX, p.iORA)
	case 0x1E:
		// ASL a,x
		p.opDone, err = p.rmwInstruction(p.addrAbsoluteX, p.iASL)
	case 0x1F:
		// SLO a,x
		p.opDone, err = p.rmwInstruction(p.addrAbsoluteX, p.iSLO)
	case 0x20:
		// JSR a
		p.opDone, err = p.iJSR()
	case 0x21:
		// AND (d,x)
		p.opDone, err = p.loadInstruction(p.addrIndirectX, p.iAND)
	case 0x22:
		// HLT
		p.halted = true
	case 0x23:
		// RLA (d,x)
		p.opDone, err = p.rmwInstruction(p.addrIndirectX, p.iRLA)
	case 0x24:
		// BIT d
		p.opDone, err = p.loadInstruction(p.addrZP, p.iBIT)
	case 0x25:
		// AND d
		p.opDone, err = p.loadInstruction(p.addrZP, p.iAND)
	case 0x26:
		// ROL d
		p.opDone, err = p.rmwInstruction(p.addrZP, p.iROL)
	case 0x27:
		// RLA d
		p.opDone, err = p.rmwInstruction(p.addrZP, p.iRLA)
	case 0x28:
		// PLP
		p.opDone, err = p.iPLP()
	case 0x29:
		// AND #i
		p.opDone, err = p.loadInstruction(p.addrImmediate, p.iAND)
	case 0x2A:
		// ROL
		p.opDone, err = p.iROLAcc()
	case 0x2B:
		// ANC #i
		p.opDone, err = p.loadInstruction(p.addrImmediate, p.iANC)
	case 0x2C:
		// BIT a
		p.opDone, err = p.loadInstruction(p.addrAbsolute, p.iBIT)
	case 0x2D:
		// AND a
		p.opDone, err = p.loadInstruction(p.addrAbsolute, p.iAND)
	case 0x2E:
		// ROL a
		p.opDone, err = p.rmwInstruction(p.addrAbsolute, p.iROL)
	case 0x2F:
		// RLA a
		p.opDone, err = p.rmwInstruction(p.addrAbsolute, p.iRLA)
	case 0x30:
		// BMI *+r
		p.opDone, err = p.iBMI()
	case 0x31:
		// AND (d),y
		p.opDone, err = p.loadInstruction(p.addrIndirectY, p.iAND)
	case 0x32:
		// HLT
		p.halted = true
	case 0x33:
		// RLA (d),y
		p.opDone, err = p.rmwInstruction(p.addrIndirectY, p.iRLA)
	case 0x34:
		// NOP d,x
		p.opDone, err = p.addrZPX(kLOAD_INSTRUCTION)
	case 0x35:
		// AND d,x
		p.opDone, err = p.loadInstruction(p.addrZPX, p.iAND)
	case 0x36:
		// ROL d,x
		p.opDone, err = p.rmwInstruction(p.addrZPX, p.iROL)
	case 0x37:
		// RLA d,x
		p.opDone, err = p.rmwInstruction(p.addrZPX, p.iRLA)
	case 0x38:
		// SEC
		p.opDone, err = p.iSEC()
	case 0x39:
		// AND a,y
		p.opDone, err = p.loadInstruction(p.addrAbsoluteY, p.iAND)
	case 0x3A:
		// NOP
		p.opDone, err = true, nil
	case 0x3B:
		// RLA a,y
		p.opDone, err = p.rmwInstruction(p.addrAbsoluteY, p.iRLA)
	case 0x3C:
		// NOP a,x
		p.opDone, err = p.addrAbsoluteX(kLOAD_INSTRUCTION)
	case 0x3D:
		// AND a,x
		p.opDone, err = p.loadInstruction(p.addrAbsoluteX, p.iAND)
	case 0x3E:
		// ROL a,x
		p.opDone, err = p.rmwInstruction(p.addrAbsoluteX, p.iROL)
	case 0x3F:
		// RLA a,x
		p.opDone, err = p.rmwInstruction(p.addrAbsoluteX, p.iRLA)
	case 0x40:
		// RTI
		p.opDone, err = p.iRTI()
	case 0x41:
		// EOR (d,x)
		p.opDone, err = p.loadInstruction(p.addrIndirectX, p.iEOR)
	case 0x42:
		// HLT
		p.halted = true
	case 0x43:
		// SRE (d,x)
		p.opDone, err = p.rmwInstruction(p.addrIndirectX, p.iSRE)
	case 0x44:
		// NOP d
		p.opDone, err = p.addrZP(kLOAD_INSTRUCTION)
	case 0x45:
		// EOR d
		p.opDone, err = p.loadInstruction(p.addrZP, p.iEOR)
	case 0x46:
		// LSR d
		p.opDone, err = p.rmwInstruction(p.addrZP, p.iLSR)
	case 0x47:
		// SRE d
		p.opDone, err = p.rmwInstruction(p.addrZP, p.iSRE)
	case 0x48:
		// PHA
		p.opDone, err = p.iPHA()
	case 0x49:
		// EOR #i
		p.opDone, err = p.loadInstruction(p.addrImmediate, p.iEOR)
	case 0x4A:
		// LSR
		p.opDone, err = p.iLSRAcc()
	case 0x4B:
		// ALR #i
		p.opDone, err = p.loadInstruction(p.addrImmediate, p.iALR)
	case 0x4C:
		// JMP a
		p.opDone, err = p.iJMP()
	case 0x4D:
		// EOR a
		p.opDone, err = p.loadInstruction(p.addrAbsolute, p.iEOR)
	case 0x4E:
		// LSR a
		p.opDone, err = p.rmwInstruction(p.addrAbsolute, p.iLSR)
	case 0x4F:
		// SRE a
		p.opDone, err = p.rmwInstruction(p.addrAbsolute, p.iSRE)
	case 0x50:
		// BVC *+r
		p.opDone, err = p.iBVC()
	case 0x51:
		// EOR (d),y
		p.opDone, err = p.loadInstruction(p.addrIndirectY, p.iEOR)
	case 0x52:
		// HLT
		p.halted = true
	case 0x53:
		// SRE (d),y
		p.opDone, err = p.rmwInstruction(p.addrIndirectY, p.iSRE)
	case 0x54:
		// NOP d,x
		p.opDone, err = p.addrZPX(kLOAD_INSTRUCTION)
	case 0x55:
		// EOR d,x
		p.opDone, err = p.loadInstruction(p.addrZPX, p.iEOR)
	case 0x56:
		// LSR d,x
		p.opDone, err = p.rmwInstruction(p.addrZPX, p.iLSR)
	case 0x57:
		// SRE d,x
		p.opDone, err = p.rmwInstruction(p.addrZPX, p.iSRE)
	case 0x58:
		// CLI
		p.opDone, err = p.iCLI()
	case 0x59:
		// EOR a,y
		p.opDone, err = p.loadInstruction(p.addrAbsoluteY, p.iEOR)
	case 0x5A:
		// NOP
		p.opDone, err = true, nil
	case 0x5B:
		// SRE a,y
		p.opDone, err = p.rmwInstruction(p.addrAbsoluteY, p.iSRE)
	case 0x5C:
		// NOP a,x
		p.opDone, err = p.addrAbsoluteX(kLOAD_INSTRUCTION)
	case 0x5D:
		// EOR a,x
		p.opDone, err = p.loadInstruction(p.addrAbsoluteX, p.iEOR)
	case 0x5E:
		// LSR a,x
		p.opDone, err = p.rmwInstruction(p.addrAbsoluteX, p.iLSR)
	case 0x5F:
		// SRE a,x
		p.opDone, err = p.rmwInstruction(p.addrAbsoluteX, p.iSRE)
	case 0x60:
		// RTS
		p.opDone, err = p.iRTS()
	case 0x61:
		// ADC (d,x)
		p.opDone, err = p.loadInstruction(p.addrIndirectX, p.iADC)
	case 0x62:
		// HLT
		p.halted = true
	case 0x63:
		// RRA (d,x)
		p.opDone, err = p.rmwInstruction(p.addrIndirectX, p.iRRA)
	case 0x64:
		// NOP d
		p.opDone, err = p.addrZP(kLOAD_INSTRUCTION)
	case 0x65:
		// ADC d
		p.opDone, err = p.loadInstruction(p.addrZP, p.iADC)
	case 0x66:
		// ROR d
		p.opDone, err = p.rmwInstruction(p.addrZP, p.iROR)
	case 0x67:
		// RRA d
		p.opDone, err = p.rmwInstruction(p.addrZP, p.iRRA)
	case 0x68:
		// PLA
		p.opDone, err = p.iPLA()
	case 0x69:
		// ADC #i
		p.opDone, err = p.loadInstruction(p.addrImmediate, p.iADC)
	case 0x6A:
		// ROR
		p.opDone, err = p.iRORAcc()
	case 0x6B:
		// ARR #i
		p.opDone, err = p.loadInstruction(p.addrImmediate, p.iARR)
	case 0x6C:
		// JMP (a)
		p.opDone, err = p.iJMPIndirect()
	case 0x6D:
		// ADC a
		p.opDone, err = p.loadInstruction(p.addrAbsolute, p.iADC)
	case 0x6E:
		// ROR a
		p.opDone, err = p.rmwInstruction(p.addrAbsolute, p.iROR)
	case 0x6F:
		// RRA a
		p.opDone, err = p.rmwInstruction(p.addrAbsolute, p.iRRA)
	case 0x70:
		// BVS *+r
		p.opDone, err = p.iBVS()
	case 0x71:
		// ADC (d),y
		p.opDone, err = p.loadInstruction(p.addrIndirectY, p.iADC)
	case 0x72:
		// HLT
		p.halted = true
	case 0x73:
		// RRA (d),y
		p.opDone, err = p.rmwInstruction(p.addrIndirectY, p.iRRA)
	case 0x74:
		// NOP d,x
		p.opDone, err = p.addrZPX(kLOAD_INSTRUCTION)
	case 0x75:
		// ADC d,x
		p.opDone, err = p.loadInstruction(p.addrZPX, p.iADC)
	case 0x76:
		// ROR d,x
		p.opDone, err = p.rmwInstruction(p.addrZPX, p.iROR)
	case 0x77:
		// RRA d,x
		p.opDone, err = p.rmwInstruction(p.addrZPX, p.iRRA)
	case 0x78:
		// SEI
		p.opDone, err = p.iSEI()
	case 0x79:
		// ADC a,y
		p.opDone, err = p.loadInstruction(p.addrAbsoluteY, p.iADC)
	case 0x7A:
		// NOP
		p.opDone, err = true, nil
	case 0x7B:
		// RRA a,y
		p.opDone, err = p.rmwInstruction(p.addrAbsoluteY, p.iRRA)
	case 0x7C:
		// NOP a,x
		p.opDone, err = p.addrAbsoluteX(kLOAD_INSTRUCTION)
	case 0x7D:
		// ADC a,x
		p.opDone, err = p.loadInstruction(p.addrAbsoluteX, p.iADC)
	case 0x7E:
		// ROR a,x
		p.opDone, err = p.rmwInstruction(p.addrAbsoluteX, p.iROR)
	case 0x7F:
		// RRA a,x
		p.opDone, err = p.rmwInstruction(p.addrAbsoluteX, p.iRRA)
	case 0x80:
		// NOP #i
		p.opDone, err = p.addrImmediate(kLOAD_INSTRUCTION)
	case 0x81:
		// STA (d,x)
		p.opDone, err = p.storeInstruction(p.addrIndirectX, p.A)
	case 0x82:
		// NOP #i
		p.opDone, err = p.addrImmediate(kLOAD_INSTRUCTION)
	case 0x83:
		// SAX (d,x)
		p.opDone, err = p.storeInstruction(p.addrIndirectX, p.A&p.X)
	case 0x84:
		// STY d
		p.opDone, err = p.storeInstruction(p.addrZP, p.Y)
	case 0x85:
		// STA d
		p.opDone, err = p.storeInstruction(p.addrZP, p.A)
	case 0x86:
		// STX d
		p.opDone, err = p.storeInstruction(p.addrZP, p.X)
	case 0x87:
		// SAX d
		p.opDone, err = p.storeInstruction(p.addrZP, p.A&p.X)
	case 0x88:
		// DEY
		p.opDone, err = p.loadRegister(&p.Y, p.Y-1)
	case 0x89:
		// NOP #i
		p.opDone, err = p.addrImmediate(kLOAD_INSTRUCTION)
	case 0x8A:
		// TXA
		p.opDone, err = p.loadRegister(&p.A, p.X)
	case 0x8B:
		// XAA #i
		p.opDone, err = p.loadInstruction(p.addrImmediate, p.iXAA)
	case 0x8C:
		// STY a
		p.opDone, err = p.storeInstruction(p.addrAbsolute, p.Y)
	case 0x8D:
		// STA a
		p.opDone, err = p.storeInstruction(p.addrAbsolute, p.A)
	case 0x8E:
		// STX a
		p.opDone, err = p.storeInstruction(p.addrAbsolute, p.X)
	case 0x8F:
		// SAX a
		p.opDone, err = p.storeInstruction(p.addrAbsolute, p.A&p.X)
	case 0x90:
		// BCC *+d
		p.opDone, err = p.iBCC()
	case 0x91:
		// STA (d),y
		p.opDone, err = p.storeInstruction(p.addrIndirectY, p.A)
	case 0x92:
		// HLT
		p.halted = true
	case 0x93:
		// AHX (d),y
		p.opDone, err = p.iAHX(p.addrIndirectY)
	case 0x94:
		// STY d,x
		p.opDone, err = p.storeInstruction(p.addrZPX, p.Y)
	case 0x95:
		// STA d,x
		p.opDone, err = p.storeInstruction(p.addrZPX, p.A)
	case 0x96:
		// STX d,y
		p.opDone, err = p.storeInstruction(p.addrZPY, p.X)
	case 0x97:
		// SAX d,y
		p.opDone, err = p.storeInstruction(p.addrZPY, p.A&p.X)
	case 0x98:
		// TYA
		p.opDone, err = p.loadRegister(&p.A, p.Y)
	case 0x99:
		// STA a,y
		p.opDone, err = p.storeInstruction(p.addrAbsoluteY, p.A)
	case 0x9A:
		// TXS
		p.opDone, err, p.S = true, nil, p.X
	case 0x9B:
		// TAS a,y
		p.opDone, err = p.iTAS()
	case 0x9C:
		// SHY a,x
		p.opDone, err = p.iSHY(p.addrAbsoluteX)
	case 0x9D:
		// STA a,x
		p.opDone, err = p.storeInstruction(p.addrAbsoluteX, p.A)
	case 0x9E:
		// SHX a,y
		p.opDone, err = p.iSHX(p.addrAbsoluteY)
	case 0x9F:
		// AHX a,y
		p.opDone, err = p.iAHX(p.addrAbsoluteY)
	case 0xA0:
		// LDY #i
		p.opDone, err = p.loadInstruction(p.addrImmediate, p.loadRegisterY)
	case 0xA1:
		// LDA (d,x)
		p.opDone, err = p.loadInstruction(p.addrIndirectX, p.loadRegisterA)
	case 0xA2:
		// LDX #i
		p.opDone, err = p.loadInstruction(p.addrImmediate, p.loadRegisterX)
	case 0xA3:
		// LAX (d,x)
		p.opDone, err = p.loadInstruction(p.addrIndirectX, p.iLAX)
	case 0xA4:
		// LDY d
		p.opDone, err = p.loadInstruction(p.addrZP, p.loadRegisterY)
	case 0xA5:
		// LDA d
		p.opDone, err = p.loadInstruction(p.addrZP, p.loadRegisterA)
	case 0xA6:
		// LDX d
		p.opDone, err = p.loadInstruction(p.addrZP, p.loadRegisterX)
	case 0xA7:
		// LAX d
		p.opDone, err = p.loadInstruction(p.addrZP, p.iLAX)
	case 0xA8:
		// TAY
		p.opDone, err = p.loadRegister(&p.Y, p.A)
	case 0xA9:
		// LDA #i
		p.opDone, err = p.loadInstruction(p.addrImmediate, p.loadRegisterA)
	case 0xAA:
		// TAX
		p.opDone, err = p.loadRegister(&p.X, p.A)
	case 0xAB:
		// OAL #i
		p.opDone, err = p.loadInstruction(p.addrImmediate, p.iOAL)
	case 0xAC:
		// LDY a
		p.opDone, err = p.loadInstruction(p.addrAbsolute, p.loadRegisterY)
	case 0xAD:
		// LDA a
		p.opDone, err = p.loadInstruction(p.addrAbsolute, p.loadRegisterA)
	case 0xAE:
		// LDX a
		p.opDone, err = p.loadInstruction(p.addrAbsolute, p.loadRegisterX)
	case 0xAF:
		// LAX a
		p.opDone, err = p.loadInstruction(p.addrAbsolute, p.iLAX)
	case 0xB0:
		// BCS *+d
		p.opDone, err = p.iBCS()
	case 0xB1:
		// LDA (d),y
		p.opDone, err = p.loadInstruction(p.addrIndirectY, p.loadRegisterA)
	case 0xB2:
		// HLT
		p.halted = true
	case 0xB3:
		// LAX (d),y
		p.opDone, err = p.loadInstruction(p.addrIndirectY, p.iLAX)
	case 0xB4:
		// LDY d,x
		p.opDone, err = p.loadInstruction(p.addrZPX, p.loadRegisterY)
	case 0xB5:
		// LDA d,x
		p.opDone, err = p.loadInstruction(p.addrZPX, p.loadRegisterA)
	case 0xB6:
		// LDX d,y
		p.opDone, err = p.loadInstruction(p.addrZPY, p.loadRegisterX)
	case 0xB7:
		// LAX d,y
		p.opDone, err = p.loadInstruction(p.addrZPY, p.iLAX)
	case 0xB8:
		// CLV
		p.opDone, err = p.iCLV()
	case 0xB9:
		// LDA a,y
		p.opDone, err = p.loadInstruction(p.addrAbsoluteY, p.loadRegisterA)
	case 0xBA:
		// TSX
		p.opDone, err = p.loadRegister(&p.X, p.S)
	case 0xBB:
		// LAS a,y
		p.opDone, err = p.loadInstruction(p.addrAbsoluteY, p.iLAS)
	case 0xBC:
		// LDY a,x
		p.opDone, err = p.loadInstruction(p.addrAbsoluteX, p.loadRegisterY)
	case 0xBD:
		// LDA a,x
		p.opDone, err = p.loadInstruction(p.addrAbsoluteX, p.loadRegisterA)
	case 0xBE:
		// LDX a,y
		p.opDone, err = p.loadInstruction(p.addrAbsoluteY, p.loadRegisterX)
	case 0xBF:
		// LAX a,y
		p.opDone, err = p.loadInstruction(p.addrAbsoluteY, p.iLAX)
	case 0xC0:
		// CPY #i
		p.opDone, err = p.loadInstruction(p.addrImmediate, p.compareY)
	case 0xC1:
		// CMP (d,x)
		p.opDone, err = p.loadInstruction(p.addrIndirectX, p.compareA)
	case 0xC2:
		// NOP #i
		p.opDone, err = p.addrImmediate(kLOAD_INSTRUCTION)
	case 0xC3:
		// DCP (d,X)
		p.opDone, err = p.rmwInstruction(p.addrIndirectX, p.iDCP)
	case 0xC4:
		// CPY d
		p.opDone, err = p.loadInstruction(p.addrZP, p.compareY)
	case 0xC5:
		// CMP d
		p.opDone, err = p.loadInstruction(p.addrZP, p.compareA)
	case 0xC6:
		// DEC d
		p.opDone, err = p.rmwInstruction(p.addrZP, p.iDEC)
	case 0xC7:
		// DCP d
		p.opDone, err = p.rmwInstruction(p.addrZP, p.iDCP)
	case 0xC8:
		// INY
		p.opDone, err = p.loadRegister(&p.Y, p.Y+1)
	case 0xC9:
		// CMP #i
		p.opDone, err = p.loadInstruction(p.addrImmediate, p.compareA)
	case 0xCA:
		// DEX
		p.opDone, err = p.loadRegister(&p.X, p.X-1)
	case 0xCB:
		// AXS #i
		p.opDone, err = p.loadInstruction(p.addrImmediate, p.iAXS)
	case 0xCC:
		// CPY a
		p.opDone, err = p.loadInstruction(p.addrAbsolute, p.compareY)
	case 0xCD:
		// CMP a
		p.opDone, err = p.loadInstruction(p.addrAbsolute, p.compareA)
	case 0xCE:
		// DEC a
		p.opDone, err = p.rmwInstruction(p.addrAbsolute, p.iDEC)
	case 0xCF:
		// DCP a
		p.opDone, err = p.rmwInstruction(p.addrAbsolute, p.iDCP)
	case 0xD0:
		// BNE *+r
		p.opDone, err = p.iBNE()
	case 0xD1:
		// CMP (d),y
		p.opDone, err = p.loadInstruction(p.addrIndirectY, p.compareA)
	case 0xD2:
		// HLT
		p.halted = true
	case 0xD3:
		// DCP (d),y
		p.opDone, err = p.rmwInstruction(p.addrIndirectY, p.iDCP)
	case 0xD4:
		// NOP d,x
		p.opDone, err = p.addrZPX(kLOAD_INSTRUCTION)
	case 0xD5:
		// CMP d,x
		p.opDone, err = p.loadInstruction(p.addrZPX, p.compareA)
	case 0xD6:
		// DEC d,x
		p.opDone, err = p.rmwInstruction(p.addrZPX, p.iDEC)
	case 0xD7:
		// DCP d,x
		p.opDone, err = p.rmwInstruction(p.addrZPX, p.iDCP)
	case 0xD8:
		// CLD
		p.opDone, err = p.iCLD()
	case 0xD9:
		// CMP a,y
		p.opDone, err = p.loadInstruction(p.addrAbsoluteY, p.compareA)
	case 0xDA:
		// NOP
		p.opDone, err = true, nil
	case 0xDB:
		// DCP a,y
		p.opDone, err = p.rmwInstruction(p.addrAbsoluteY, p.iDCP)
	case 0xDC:
		// NOP a,x
		p.opDone, err = p.addrAbsoluteX(kLOAD_INSTRUCTION)
	case 0xDD:
		// CMP a,x
		p.opDone, err = p.loadInstruction(p.addrAbsoluteX, p.compareA)
	case 0xDE:
		// DEC a,x
		p.opDone, err = p.rmwInstruction(p.addrAbsoluteX, p.iDEC)
	case 0xDF:
		// DCP a,x
		p.opDone, err = p.rmwInstruction(p.addrAbsoluteX, p.iDCP)
	case 0xE0:
		// CPX #i
		p.opDone, err = p.loadInstruction(p.addrImmediate, p.compareX)
	case 0xE1:
		// SBC (d,x)
		p.opDone, err = p.loadInstruction(p.addrIndirectX, p.iSBC)
	case 0xE2:
		// NOP #i
		p.opDone, err = p.addrImmediate(kLOAD_INSTRUCTION)
	case 0xE3:
		// ISC (d,x)
		p.opDone, err = p.rmwInstruction(p.addrIndirectX, p.iISC)
	case 0xE4:
		// CPX d
		p.opDone, err = p.loadInstruction(p.addrZP, p.compareX)
	case 0xE5:
		// SBC d
		p.opDone, err = p.loadInstruction(p.addrZP, p.iSBC)
	case 0xE6:
		// INC d
		p.opDone, err = p.rmwInstruction(p.addrZP, p.iINC)
	case 0xE7:
		// ISC d
		p.opDone, err = p.rmwInstruction(p.addrZP, p.iISC)
	case 0xE8:
		// INX
		p.opDone, err = p.loadRegister(&p.X, p.X+1)
	case 0xE9:
		// SBC #i
		p.opDone, err = p.loadInstruction(p.addrImmediate, p.iSBC)
	case 0xEA:
		// NOP
		p.opDone, err = true, nil
	case 0xEB:
		// SBC #i
		p.opDone, err = p.loadInstruction(p.addrImmediate, p.iSBC)
	case 0xEC:
		// CPX a
		p.opDone, err = p.loadInstruction(p.addrAbsolute, p.compareX)
	case 0xED:
		// SBC a
		p.opDone, err = p.loadInstruction(p.addrAbsolute, p.iSBC)
	case 0xEE:
		// INC a
		p.opDone, err = p.rmwInstruction(p.addrAbsolute, p.iINC)
	case 0xEF:
		// ISC a
		p.opDone, err = p.rmwInstruction(p.addrAbsolute, p.iISC)
	case 0xF0:
		// BEQ *+d
		p.opDone, err = p.iBEQ()
	case 0xF1:
		// SBC (d),y
		p.opDone, err = p.loadInstruction(p.addrIndirectY, p.iSBC)
	case 0xF2:
		// HLT
		p.halted = true
	case 0xF3:
		// ISC (d),y
		p.opDone, err = p.rmwInstruction(p.addrIndirectY, p.iISC)
	case 0xF4:
		// NOP d,x
		p.opDone, err = p.addrZPX(kLOAD_INSTRUCTION)
	case 0xF5:
		// SBC d,x
		p.opDone, err = p.loadInstruction(p.addrZPX, p.iSBC)
	case 0xF6:
		// INC d,x
		p.opDone, err = p.rmwInstruction(p.addrZPX, p.iINC)
	case 0xF7:
		// ISC d,x
		p.opDone, err = p.rmwInstruction(p.addrZPX, p.iISC)
	case 0xF8:
		// SED
		p.opDone, err = p.iSED()
	case 0xF9:
		// SBC a,y
		p.opDone, err = p.loadInstruction(p.addrAbsoluteY, p.iSBC)
	case 0xFA:
		// NOP
		p.opDone, err = true, nil
	case 0xFB:
		// ISC a,y
		p.opDone, err = p.rmwInstruction(p.addrAbsoluteY, p.iISC)
	case 0xFC:
		// NOP a,x
		p.opDone, err = p.addrAbsoluteX(kLOAD_INSTRUCTION)
	case 0xFD:
		// SBC a,x
		p.opDone, err = p.loadInstruction(p.addrAbsoluteX, p.iSBC)
	case 0xFE:
		// INC a,x
		p.opDone, err = p.rmwInstruction(p.addrAbsoluteX, p.iINC)
	case 0xFF:
		// ISC a,x
		p.opDone, err = p.rmwInstruction(p.addrAbsoluteX, p.iISC)
	}
	return p.opDone, err
}

// zeroCheck sets the Z flag based on the register contents.
func (p *Chip) zeroCheck(reg uint8) {
	p.P &^= P_ZERO
	if reg == 0 {
		p.P |= P_ZERO
	}
}

// negativeCheck sets the N flag based on the register contents.
func (p *Chip) negativeCheck(reg uint8) {
	p.P &^= P_NEGATIVE
	if (reg & P_NEGATIVE) == 0x80 {
		p.P |= P_NEGATIVE
	}
}

// carryCheck sets the C flag if the result of an 8 bit ALU operation
// (passed as a 16 bit result) caused a carry out by generating a value >= 0x100.
// NOTE: normally this just means masking 0x100 but in some overflow cases for BCD
//       math the value can be 0x200 here so it's still a carry.
func (p *Chip) carryCheck(res uint16) {
	p.P &^= P_CARRY
	if res >= 0x100 {
		p.P |= P_CARRY
	}
}

// overflowCheck sets the V flag if the result of the ALU operation
// caused a two's complement sign change.
// Taken from http://www.righto.com/2012/12/the-6502-overflow-flag-explained.html
func (p *Chip) overflowCheck(reg uint8, arg uint8, res uint8) {
	p.P &^= P_OVERFLOW
	// If the originals signs differ from the end sign bit
	if (reg^res)&(arg^res)&0x80 != 0x00 {
		p.P |= P_OVERFLOW
	}
}

// instructionMode is an enumeration indicating the type of instruction being processed.
// Used below in addressing modes.
type instructionMode int

const (
	kLOAD_INSTRUCTION instructionMode = iota
	kRMW_INSTRUCTION
	kSTORE_INSTRUCTION
)

// addrImmediate implements immediate mode - #i
// returning the value in p.val
// NOTE: This has no W or RMW mode so the argument is ignored.
// Returns error on invalid tick.
// The bool return value is true if this tick ends address processing.
func (p *Chip) addrImmediate(instructionMode) (bool, error) {
	if p.cycle != 2 {
		return true, InvalidState{fmt.Sprintf("addrImmediate invalid opTick %d, not 2", p.cycle)}
	}
	// This mode consumed the opVal so increment the PC.
	p.PC++
	return true, nil
}

// addrZP implements Zero page mode - d
// returning the value in p.val and the address read in p.ad (so RW operations can do things without having to
// reread memory incorrectly to compute a storage address).
// If mode is RMW then another tick will occur that writes the read value back to the same address due to how
// the 6502 operates.
// Returns error on invalid tick.
// The bool return value is true if this tick ends address processing.
func (p *Chip) addrZP(mode instructionMode) (bool, error) {
	switch {
	case p.cycle <= 1 || p.cycle > 4:
		return true, InvalidState{fmt.Sprintf("addrZP invalid opTick %d", p.cycle)}
	case p.cycle == 2:
		// Already read the value but need to bump the PC
		p.ad = uint16(0x00FF & p.val)
		p.PC++
		done := false
		// For a store we're done since we have the address needed.
		if mode == kSTORE_INSTRUCTION {
			done = true
		}
		return done, nil
	case p.cycle == 3:
		p.val = p.busRead(p.ad)
		done := true
		if mode == kRMW_INSTRUCTION {
			done = false
		}
		return done, nil
	}
	// case p.cycle == 4:
	p.busWrite(p.ad, p.val)
	return true, nil
}

// addrZPX implements Zero page plus X mode - d,x
// returning the value in p.val and the address read in p.ad (so RW operations can do things without having to
// reread memory incorrectly to compute a storage address).
// If mode is RMW then another tick will occur that writes the read value back to the same address due to how
// the 6502 operates.
// Returns error on invalid tick.
// The bool return value is true if this tick ends address processing.
func (p *Chip) addrZPX(mode instructionMode) (bool, error) {
	return p.addrZPXY(mode, p.X)
}

// addrZPY implements Zero page plus Y mode - d,y
// returning the value in p.val and the address read in p.ad (so RW operations can do things without having to
// reread memory incorrectly to compute a storage address).
// If mode is RMW then another tick will occur that writes the read value back to the same address due to how
// the 6502 operates.
// Returns error on invalid tick.
// The bool return value is true if this tick ends address processing.
func (p *Chip) addrZPY(mode instructionMode) (bool, error) {
	return p.addrZPXY(mode, p.Y)
}

// addrZPXY implements the details for addrZPX and addrZPY since they only differ based on the register used.
// See those functions for arg/return specifics.
func (p *Chip) addrZPXY(mode instructionMode, reg uint8) (bool, error) {
	switch {
	case p.cycle <= 1 || p.cycle > 5:
		return true, InvalidState{fmt.Sprintf("addrZPXY invalid opTick: %d", p.cycle)}
	case p.cycle == 2:
		// Already read the value but need to bump the PC
		p.ad = uint16(0x00FF & p.val)
		p.PC++
		return false, nil
	case p.cycle == 3:
		// Read from the ZP addr and then add the register for the real read later.
		_ = p.busRead(p.ad)
		// Does this as a uint8 so it wraps as needed.
		p.ad = uint16(uint8(p.val + reg))
		done := false
		// For a store we're done since we have the address needed.
		if mode == kSTORE_INSTRUCTION {
			done = true
		}
		return done, nil
	case p.cycle == 4:
		// Now read from the final address.
		p.val = p.busRead(p.ad)
		done := true
		if mode == kRMW_INSTRUCTION {
			done = false
		}
		return done, nil
	}
	// case p.cycle == 5:
	p.busWrite(p.ad, p.val)
	return true, nil
}

// addrIndirectX implements Zero page indirect plus X mode - (d,x)
// returning the value in p.val and the address read in p.ad (so RW operations can do things without having to
// reread memory incorrectly to compute a storage address).
// If mode is RMW then another tick will occur that writes the read value back to the same address due to how
// the 6502 operates.
// Returns error on invalid tick.
// The bool return value is true if this tick ends address processing.
func (p *Chip) addrIndirectX(mode instructionMode) (bool, error) {
	switch {
	case p.cycle <= 1 || p.cycle > 7:
		return true, InvalidState{fmt.Sprintf("addrIndirectX invalid opTick: %d", p.cycle)}
	case p.cycle == 2:
		// Already read the value but need to bump the PC
		p.ad = uint16(0x00FF & p.val)
		p.PC++
		return false, nil
	case p.cycle == 3:
		// Read from the ZP addr. We'll add the X register as well for the real read next.
		_ = p.busRead(p.ad)
		// Does this as a uint8 so it wraps as needed.
		p.ad = uint16(uint8(p.val + p.X))
		return false, nil
	case p.cycle == 4:
		// Read effective addr low byte.
		p.val = p.busRead(p.ad)
		// Setup opAddr for next read and handle wrapping
		p.ad = uint16(uint8(p.ad&0x00FF) + 1)
		return false, nil
	case p.cycle == 5:
		p.ad = (uint16(p.busRead(p.ad)) << 8) + uint16(p.val)
		done := false
		// For a store we're done since we have the address needed.
		if mode == kSTORE_INSTRUCTION {
			done = true
		}
		return done, nil
	case p.cycle == 6:
		p.val = p.busRead(p.ad)
		done := true
		if mode == kRMW_INSTRUCTION {
			done = false
		}
		return done, nil
	}
	// case p.cycle == 7:
	p.busWrite(p.ad, p.val)
	return true, nil
}

// addrIndirectY implements Zero page indirect plus Y mode - (d),y
// returning the value in p.val and the address read in p.ad (so RW operations can do things without having to
// reread memory incorrectly to compute a storage address).
// If mode is RMW then another tick will occur that writes the read value back to the same address due to how
// the 6502 operates.
// Returns error on invalid tick.
// The bool return value is true if this tick ends address processing.
func (p *Chip) addrIndirectY(mode instructionMode) (bool, error) {
	switch {
	case p.cycle <= 1 || p.cycle > 7:
		return true, InvalidState{fmt.Sprintf("addrIndirectY invalid opTick: %d", p.cycle)}
	case p.cycle == 2:
		// Already read the value but need to bump the PC
		p.ad = uint16(0x00FF & p.val)
		p.PC++
		return false, nil
	case p.cycle == 3:
		// Read from the ZP addr to start building our pointer.
		p.val = p.busRead(p.ad)
		// Setup opAddr for next read and handle wrapping
		p.ad = uint16(uint8(p.ad&0x00FF) + 1)
		return false, nil
	case p.cycle == 4:
		// Compute effective address and then add Y to it (possibly wrongly).
		p.ad = (uint16(p.busRead(p.ad)) << 8) + uint16(p.val)
		// Add Y but do it in a way which won't page wrap (if needed)
		a := (p.ad & 0xFF00) + uint16(uint8(p.ad&0xFF)+p.Y)
		p.val = 0
		if a != (p.ad + uint16(p.Y)) {
			// Signal for next phase we got it wrong.
			p.val = 1
		}
		p.ad = a
		return false, nil
	case p.cycle == 5:
		t := p.val
		p.val = p.busRead(p.ad)

		// Check old opVal to see if it's non-zero. If so it means the Y addition
		// crosses a page boundary and we'll have to fixup.
		// For a load operation that means another tick to read the correct
		// address.
		// For RMW it doesn't matter (we always do the extra tick).
		// For Store we're done. Just fixup p.ad so the return value is correct.
		done := true
		if t != 0 {
			p.ad += 0x0100
			if mode == kLOAD_INSTRUCTION {
				done = false
			}
		}
		// For RMW it doesn't matter, we tick again.
		if mode == kRMW_INSTRUCTION {
			done = false
		}
		return done, nil
	case p.cycle == 6:
		// Optional (on load) in case adding Y went past a page boundary.
		p.val = p.busRead(p.ad)
		done := true
		if mode == kRMW_INSTRUCTION {
			done = false
		}
		return done, nil
	}
	// case p.cycle == 7:
	p.busWrite(p.ad, p.val)
	return true, nil
}

// addrAbsolute implements absolute mode - a
// returning the value in p.val and the address read in p.ad (so RW operations can do things without having to
// reread memory incorrectly to compute a storage address).
// If mode is RMW then another tick will occur that writes the read value back to the same address due to how
// the 6502 operates.
// Returns error on invalid tick.
// The bool return value is true if this tick ends address processing.
func (p *Chip) addrAbsolute(mode instructionMode) (bool, error) {
	switch {
	case p.cycle <= 1 || p.cycle > 5:
		return true, InvalidState{fmt.Sprintf("addrAbsolute invalid opTick: %d", p.cycle)}
	case p.cycle == 2:
		// opVal has already been read so start constructing the address
		p.ad = 0x00FF & uint16(p.val)
		p.PC++
		return false, nil
	case p.cycle == 3:
		p.val = p.busRead(p.PC)
		p.PC++
		p.ad |= (uint16(p.val) << 8)
		done := false
		if mode == kSTORE_INSTRUCTION {
			done = true
		}
		return done, nil
	case p.cycle == 4:
		// For load and RMW instructions
		p.val = p.busRead(p.ad)
		done := true
		if mode == kRMW_INSTRUCTION {
			done = false
		}
		return done, nil
	}
	// case p.cycle == 5:
	p.busWrite(p.ad, p.val)
	return true, nil
}

// addrAbsoluteX implements absolute plus X mode - a,x
// returning the value in p.val and the address read in p.ad (so RW operations can do things without having to
// reread memory incorrectly to compute a storage address).
// If mode is RMW then another tick will occur that writes the read value back to the same address due to how
// the 6502 operates.
// Returns error on invalid tick.
// The bool return value is true if this tick ends address processing.
func (p *Chip) addrAbsoluteX(mode instructionMode) (bool, error) {
	return p.addrAbsoluteXY(mode, p.X)
}

// addrAbsoluteY implements absolute plus Y mode - a,y
// returning the value in p.val and the address read in p.ad (so RW operations can do things without having to
// reread memory incorrectly to compute a storage address).
// If mode is RMW then another tick will occur that writes the read value back to the same address due to how
// the 6502 operates.
// Returns error on invalid tick.
// The bool return value is true if this tick ends address processing.
func (p *Chip) addrAbsoluteY(mode instructionMode) (bool, error) {
	return p.addrAbsoluteXY(mode, p.Y)
}

// addrAbsoluteXY implements the details for addrAbsoluteX and addrAbsoluteY since they only differ based on the register used.
// See those functions for arg/return specifics.
func (p *Chip) addrAbsoluteXY(mode instructionMode, reg uint8) (bool, error) {
	switch {
	case p.cycle <= 1 || p.cycle > 6:
		return true, InvalidState{fmt.Sprintf("addrAbsoluteX invalid opTick: %d", p.cycle)}
	case p.cycle == 2:
		// opVal has already been read so start constructing the address
		p.ad = 0x00FF & uint16(p.val)
		p.PC++
		return false, nil
	case p.cycle == 3:
		p.val = p.busRead(p.PC)
		p.PC++
		p.ad |= (uint16(p.val) << 8)
		// Add X but do it in a way which won't page wrap (if needed)
		a := (p.ad & 0xFF00) + uint16(uint8(p.ad&0x00FF)+reg)
		p.val = 0
		if a != (p.ad + uint16(reg)) {
			// Signal for next phase we got it wrong.
			p.val = 1
		}
		p.ad = a
		return false, nil
	case p.cycle == 4:
		t := p.val
		p.val = p.busRead(p.ad)
		// Check old opVal to see if it's non-zero. If so it means the X addition
		// crosses a page boundary and we'll have to fixup.
		// For a load operation that means another tick to read the correct
		// address.
		// For RMW it doesn't matter (we always do the extra tick).
		// For Store we're done. Just fixup p.ad so the return value is correct.
		done := true
		if t != 0 {
			p.ad += 0x0100
			if mode == kLOAD_INSTRUCTION {
				done = false
			}
		}
		// For RMW it doesn't matter, we tick again.
		if mode == kRMW_INSTRUCTION {
			done = false
		}
		return done, nil
	case p.cycle == 5:
		// Optional (on load) in case adding X went past a page boundary.
		p.val = p.busRead(p.ad)
		done := true
		if mode == kRMW_INSTRUCTION {
			done = false
		}
		return done, nil
	}
	// case p.cycle == 6:
	p.busWrite(p.ad, p.val)
	return true, nil
}

// loadRegister takes the val and inserts it into the register passed in. It then does
// Z and N checks against the new value.
// Always returns true and no error since this is a single tick operation.
func (p *Chip) loadRegister(reg *uint8, val uint8) (bool, error) {
	*reg = val
	p.zeroCheck(*reg)
	p.negativeCheck(*reg)
	return true, nil
}

// loadRegisterA is the curried version of loadRegister that uses p.val and A implicitly.
// This way it can be used as the opFunc argument during load/rmw instructions.
// Always returns true and no error since this is a single tick operation.
func (p *Chip) loadRegisterA() (bool, error) {
	p.loadRegister(&p.A, p.val)
	return true, nil
}

// loadRegisterX is the curried version of loadRegister that uses p.val and X implicitly.
// This way it can be used as the opFunc argument during load/rmw instructions.
// Always returns true and no error since this is a single tick operation.
func (p *Chip) loadRegisterX() (bool, error) {
	return p.loadRegister(&p.X, p.val)
}

// loadRegisterY is the curried version of loadRegister that uses p.val and Y implicitly.
// This way it can be used as the opFunc argument during load/rmw instructions.
// Always returns true and no error since this is a single tick operation.
func (p *Chip) loadRegisterY() (bool, error) {
	return p.loadRegister(&p.Y, p.val)
}

// pushStack pushes the given byte onto the stack and adjusts the stack pointer accordingly.
func (p *Chip) pushStack(val uint8) {
	p.busWrite(0x0100+uint16(p.S), val)
	p.S--
}

// popStack pops the top byte off the stack and adjusts the stack pointer accordingly.
func (p *Chip) popStack() uint8 {
	p.S++
	return p.busRead(0x0100 + uint16(p.S))
}

// branchNOP reads the next byte as the branch offset and increments the PC.
// Used for the 2rd tick when branches aren't taken.
func (p *Chip) branchNOP() (bool, error) {
	if p.cycle <= 1 || p.cycle > 3 {
		return true, InvalidState{fmt.Sprintf("branchNOP invalid opTick %d", p.cycle)}
	}
	p.PC++
	return true, nil
}

// performBranch does the heavy lifting for branching by
// computing the new PC and computing appropriate cycle costs.
// It returns true when the instruction is done and error if the tick
// becomes invalid.
func (p *Chip) performBranch() (bool, error) {
	switch {
	case p.cycle <= 1 || p.cycle > 4:
		return true, InvalidState{fmt.Sprintf("performBranch invalid opTick %d", p.cycle)}
	case p.cycle == 2:
		// Increment the PC
		p.PC++
		return false, nil
	case p.cycle == 3:
		// We only skip if the last instruction didn't. This way a branch always doesn't prevent interrupt processing
		// since real silicon this is what happens (just a delay in the pipelining).
		if !p.prevSkipInterrupt {
			p.skipInterrupt = true
		}
		// Per http://www.6502.org/tutorials/6502opcodes.html
		// the wrong page is defined as the a different page than
		// the next byte after the jump. i.e. current PC at the moment.

		// Now compute the new PC but possibly wrong page.
		// Stash the old one in p.ad so we can use in tick 4 if needed.
		p.ad = p.PC
		p.PC = (p.PC & 0xFF00) + uint16(uint8(p.PC&0x00FF)+p.val)
		// It always triggers a bus read of the PC.
		_ = p.busRead(p.PC)
		if p.PC == (p.ad + uint16(int16(int8(p.val)))) {
			return true, nil
		}
		return false, nil
	}
	// case p.cycle == 4:
	// Set correct PC value
	p.PC = p.ad + uint16(int16(int8(p.val)))
	// Always read the next opcode
	_ = p.busRead(p.PC)
	return true, nil
}

const BRK = uint8(0x00)

// runInterrupt does all the heavy lifting for any interrupt processing.
// i.e. pushing values onto the stack and loading PC with the right address.
// Pass in the vector to be used for loading the PC (which means for BRK
// it can change if an NMI happens before we get to the load ticks).
// Returns true when complete (and PC is correct). Can return an error on an
// invalid tick count.
func (p *Chip) runInterrupt(addr uint16, irq bool) (bool, error) {
	switch {
	case p.cycle < 1 || p.cycle > 7:
		return true, InvalidState{fmt.Sprintf("runInterrupt invalid opTick: %d", p.cycle)}
	case p.cycle == 2:
		// Increment the PC on a non IRQ (i.e. BRK) since that changes where returns happen.
		if !irq {
			p.PC++
		}
		return false, nil
	case p.cycle == 3:
		p.pushStack(uint8((p.PC & 0xFF00) >> 8))
		return false, nil
	case p.cycle == 4:
		p.pushStack(uint8(p.PC & 0xFF))
		return false, nil
	case p.cycle == 5:
		push := p.P
		// S1 is always set
		push |= P_S1
		// B always set unless this triggered due to IRQ
		push |= P_B
		if irq {
			push &^= P_B
		}
		p.P |= P_INTERRUPT
		p.pushStack(push)
		return false, nil
	case p.cycle == 6:
		p.val = p.busRead(addr)
		return false, nil
	}
	// case p.cycle == 7:
	p.PC = (uint16(p.busRead(addr+1)) << 8) + uint16(p.val)
	// If we didn't previously skip an interrupt from processing make sure we execute the first instruction of
	// a handler before firing again.
	if irq && !p.prevSkipInterrupt {
		p.skipInterrupt = true
	}
	return true, nil
}

// iADC implements the ADC/SBC instructions and sets all associated flags.
// For SBC (non BCD) simply ones-complement p.val before calling.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iADC() (bool, error) {
	// Pull the carry bit out which thankfully is the low bit so can be
	// used directly.
	carry := p.P & P_CARRY

	// The Ricoh version didn't implement BCD (used in NES)
	if (p.P & P_DECIMAL) != 0x00 {
		// BCD details - http://6502.org/tutorials/decimal_mode.html
		// Also http://nesdev.com/6502_cpu.txt but it has errors
		aL := (p.A & 0x0F) + (p.val & 0x0F) + carry
		// Low nibble fixup
		if aL >= 0x0A {
			aL = ((aL + 0x06) & 0x0f) + 0x10
		}
		sum := uint16(p.A&0xF0) + uint16(p.val&0xF0) + uint16(aL)
		// High nibble fixup
		if sum >= 0xA0 {
			sum += 0x60
		}
		res := uint8(sum & 0xFF)
		seq := (p.A & 0xF0) + (p.val & 0xF0) + aL
		bin := p.A + p.val + carry
		p.overflowCheck(p.A, p.val, seq)
		p.carryCheck(sum)
		// TODO(jchacon): CMOS gets N/Z set correctly and needs implementing.
		p.negativeCheck(seq)
		p.zeroCheck(bin)
		p.A = res
		return true, nil
	}

	// Otherwise do normal binary math.
	sum := p.A + p.val + carry
	p.overflowCheck(p.A, p.val, sum)
	// Yes, could do bit checks here like the hardware but
	// just treating as uint16 math is simpler to code.
	p.carryCheck(uint16(p.A) + uint16(p.val) + uint16(carry))

	// Now set the accumulator so the other flag checks are against the result.
	p.loadRegister(&p.A, sum)
	return true, nil
}

// iASLAcc implements the ASL instruction directly on the accumulator.
// It then sets all associated flags and adjust cycles as needed.
// Always returns true since accumulator mode is done on tick 2 and never returns an error.
func (p *Chip) iASLAcc() (bool, error) {
	p.carryCheck(uint16(p.A) << 1)
	p.loadRegister(&p.A, p.A<<1)
	return true, nil
}

// iASL implements the ASL instruction on the given memory location in p.ad.
// It then sets all associated flags and adjust cycles as needed.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iASL() (bool, error) {
	new := p.val << 1
	p.busWrite(p.ad, new)
	p.carryCheck(uint16(p.val) << 1)
	p.zeroCheck(new)
	p.negativeCheck(new)
	return true, nil
}

// iBCC implements the BCC instruction and branches if C is clear.
// Returns true when the branch has set the correct PC. Returns error on an invalid tick.
func (p *Chip) iBCC() (bool, error) {
	if p.P&P_CARRY == 0x00 {
		return p.performBranch()
	}
	return p.branchNOP()
}

// iBCS implements the BCS instruction and branches if C is set.
// Returns true when the branch has set the correct PC. Returns error on an invalid tick.
func (p *Chip) iBCS() (bool, error) {
	if p.P&P_CARRY != 0x00 {
		return p.performBranch()
	}
	return p.branchNOP()
}

// iBEQ implements the BEQ instruction and branches if Z is set.
// Returns true when the branch has set the correct PC. Returns error on an invalid tick.
func (p *Chip) iBEQ() (bool, error) {
	if p.P&P_ZERO != 0x00 {
		return p.performBranch()
	}
	return p.branchNOP()
}

// iBIT implements the BIT instruction for AND'ing against A
// and setting N/V based on the value.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iBIT() (bool, error) {
	p.zeroCheck(p.A & p.val)
	p.negativeCheck(p.val)
	// Copy V from bit 6
	p.P &^= P_OVERFLOW
	if p.val&P_OVERFLOW != 0x00 {
		p.P |= P_OVERFLOW
	}
	return true, nil
}

// iBMI implements the BMI instructions and branches if N is set.
// Returns true when the branch has set the correct PC. Returns error on an invalid tick.
func (p *Chip) iBMI() (bool, error) {
	if p.P&P_NEGATIVE != 0x00 {
		return p.performBranch()
	}
	return p.branchNOP()
}

// iBNE implements the BNE instructions and branches if Z is clear.
// Returns true when the branch has set the correct PC. Returns error on an invalid tick.
func (p *Chip) iBNE() (bool, error) {
	if p.P&P_ZERO == 0x00 {
		return p.performBranch()
	}
	return p.branchNOP()
}

// iBPL implements the BPL instructions and branches if N is clear.
// Returns true when the branch has set the correct PC. Returns error on an invalid tick.
func (p *Chip) iBPL() (bool, error) {
	if p.P&P_NEGATIVE == 0x00 {
		return p.performBranch()
	}
	return p.branchNOP()
}

// iBRK implements the BRK instruction and sets up and then calls the interrupt
// handler referenced at IRQ_VECTOR (normally).
// Returns true when on the correct PC. Returns error on an invalid tick.
func (p *Chip) iBRK() (bool, error) {
	// Basically this is the same code as an interrupt handler so can change
	// change if interrupt state changes on a per tick basis. i.e. we might
	// push P with P_B set but go to NMI vector on the right timing.
	// PC comes from IRQ_VECTOR normally unless we've raised an NMI
	vec := IRQ_VECTOR
	if p.pendingVec == vecNMI {
		vec = NMI_VECTOR
	}
	itr := false
	if p.pendingVec != vecNone {
		itr = true
	}
	done, err := p.runInterrupt(vec, itr)
	if done {
		// Eat any pending interrupt since BRK is special.
		p.pendingVec = vecNone
		p.brkFlags &^= brkNMI | brkIRQ
	}
	return done, err
}

// iBVC implements the BVC instructions and branches if V is clear.
// Returns true when the branch has set the correct PC. Returns error on an invalid tick.
func (p *Chip) iBVC() (bool, error) {
	if p.P&P_OVERFLOW == 0x00 {
		return p.performBranch()
	}
	return p.branchNOP()
}

// iBVS implements the BVS instructions and branches if V is set.
// Returns true when the branch has set the correct PC. Returns error on an invalid tick.
func (p *Chip) iBVS() (bool, error) {
	if p.P&P_OVERFLOW != 0x00 {
		return p.performBranch()
	}
	return p.branchNOP()
}

// compare implements the logic for all CMP/CPX/CPY instructions and
// sets flags accordingly from the results.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) compare(reg uint8, val uint8) (bool, error) {
	p.zeroCheck(reg - val)
	p.negativeCheck(reg - val)
	// A-M done as 2's complement addition by ones complement and add 1
	// This way we get valid sign extension and a carry bit test.
	p.carryCheck(uint16(reg) + uint16(^val) + uint16(1))
	return true, nil
}

// compareA is a curried version of compare that references A and uses p.val for the value.
// This way it can be used as the opFunc in loadInstruction.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) compareA() (bool, error) {
	return p.compare(p.A, p.val)
}

// compareX is a curried version of compare that references X and uses p.val for the value.
// This way it can be used as the opFunc in loadInstruction.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) compareX() (bool, error) {
	return p.compare(p.X, p.val)
}

// compareY is a curried version of compare that references Y and uses p.val for the value.
// This way it can be used as the opFunc in loadInstruction.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) compareY() (bool, error) {
	return p.compare(p.Y, p.val)
}

// iJMP implments the JMP instruction for jumping to a new address.
// Doesn't use addressing mode functions since it's technically not a load/rmw/store
// instruction so doesn't fit exactly.
// Returns true when the PC is correct. Returns an error on an invalid tick.
func (p *Chip) iJMP() (bool, error) {
	switch {
	case p.cycle <= 1 || p.cycle > 3:
		return true, InvalidState{fmt.Sprintf("JMP invalid opTick %d", p.cycle)}
	case p.cycle == 2:
		// We've already read opVal which is the new PCL so increment the PC for the next tick.
		p.PC++
		return false, nil
	}
	// case p.cycle == 3:
	// Get the next bit of the PC and assemble it.
	v := p.busRead(p.PC)
	p.ad = (uint16(v) << 8) + uint16(p.val)
	p.PC = p.ad
	return true, nil
}

// iJMPIndirect implements the indirect JMP instruction for jumping through a pointer to a new address.
// Assumes address is in p.ad correctly.
// Returns true when the PC is correct. Returns an error on an invalid tick.
func (p *Chip) iJMPIndirect() (bool, error) {
	// First 3 ticks are the same as an absolute address
	if p.cycle < 4 {
		return p.addrAbsolute(kLOAD_INSTRUCTION)
	}
	switch {
	case p.cycle > 5:
		return true, InvalidState{fmt.Sprintf("iJMPIndirect invalid cycle: %d", p.cycle)}
	case p.cycle == 4:
		// Read the low byte of the pointer and stash it in val.
		p.val = p.busRead(p.ad)
		return false, nil
	}
	// case p.cycle == 5:
	// The classic page-wrap bug: the high byte is fetched from the same page
	// as the low byte instead of the next page, so ($xxFF) wraps to ($xx00).
	a := (p.ad & 0xFF00) + uint16(uint8(p.ad&0xFF)+1)
	v := p.busRead(a)
	p.ad = (uint16(v) << 8) + uint16(p.val)
	p.PC = p.ad
	return true, nil
}

// iJSR implments the JSR instruction for jumping to a subroutine.
// Returns true when the PC is correct. Returns an error on an invalid tick.
func (p *Chip) iJSR() (bool, error) {
	switch {
	case p.cycle <= 1 || p.cycle > 6:
		return true, InvalidState{fmt.Sprintf("JSR invalid opTick %d", p.cycle)}
	case p.cycle == 2:
		// Nothing happens here except to make the PC correct.
		// NOTE: This means the PC pushed below is actually pointing in the middle of
		//       the address. RTS handles this by adding one to the popped PC value.
		p.PC++
		return false, nil
	case p.cycle == 3:
		// Not 100% sure what happens on this cycle.
		// Per http://nesdev.com/6502_cpu.txt we read the current stack
		// value because there needs to be a tick to make S correct.
		p.S--
		_ = p.popStack()
		return false, nil
	case p.cycle == 4:
		p.pushStack(uint8((p.PC & 0xFF00) >> 8))
		return false, nil
	case p.cycle == 5:
		p.pushStack(uint8(p.PC & 0xFF))
		return false, nil
	}
	// case p.cycle == 6:
	p.PC = (uint16(p.busRead(p.PC)) << 8) + uint16(p.val)
	return true, nil
}

// iLSRAcc implements the LSR instruction directly on the accumulator.
// It then sets all associated flags and adjust cycles as needed.
// Always returns true since accumulator mode is done on tick 2 and never returns an error.
func (p *Chip) iLSRAcc() (bool, error) {
	// Get bit0 from A but in a 16 bit value and then shift it up into
	// the carry position
	p.carryCheck(uint16(p.A&0x01) << 8)
	p.loadRegister(&p.A, p.A>>1)
	return true, nil
}

// iLSR implements the LSR instruction on p.ad.
// It then sets all associated flags and adjust cycles as needed.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iLSR() (bool, error) {
	new := p.val >> 1
	p.busWrite(p.ad, new)
	// Get bit0 from orig but in a 16 bit value and then shift it up into
	// the carry position
	p.carryCheck(uint16(p.val&0x01) << 8)
	p.zeroCheck(new)
	p.negativeCheck(new)
	return true, nil
}

// iPHA implements the PHA instruction and pushs A onto the stack.
// Returns true when done. Returns error on an invalid tick.
func (p *Chip) iPHA() (bool, error) {
	switch {
	case p.cycle <= 1 || p.cycle > 3:
		return true, InvalidState{fmt.Sprintf("PHA invalid opTick %d", p.cycle)}
	case p.cycle == 2:
		// Nothing else happens here
		return false, nil
	}
	// case p.cycle == 3:
	p.pushStack(p.A)
	return true, nil
}

// iPLA implements the PLA instruction and pops the stock into the accumulator.
// Returns true when done. Returns error on an invalid tick.
func (p *Chip) iPLA() (bool, error) {
	switch {
	case p.cycle <= 1 || p.cycle > 4:
		return true, InvalidState{fmt.Sprintf("PLA invalid opTick %d", p.cycle)}
	case p.cycle == 2:
		// Nothing else happens here
		return false, nil
	case p.cycle == 3:
		// A read of the current stack happens while the CPU is incrementing S.
		// Since our popStack does both of these together on this cycle it's just
		// a throw away read.
		p.S--
		_ = p.popStack()
		return false, nil
	}
	// case p.cycle == 4:
	// The real read
	p.loadRegister(&p.A, p.popStack())
	return true, nil
}

// iPHP implements the PHP instructions for pushing P onto the stacks.
// Returns true when done. Returns error on an invalid tick.
func (p *Chip) iPHP() (bool, error) {
	switch {
	case p.cycle <= 1 || p.cycle > 3:
		return true, InvalidState{fmt.Sprintf("PHP invalid opTick %d", p.cycle)}
	case p.cycle == 2:
		// Nothing else happens here
		return false, nil
	}
	// case p.cycle == 3:
	push := p.P
	// This bit is always set no matter what.
	push |= P_S1

	// PHP always sets this bit where-as IRQ/NMI won't.
	push |= P_B
	p.pushStack(push)
	return true, nil
}

// iPLP implements the PLP instruction and pops the stack into the flags.
// Returns true when done. Returns error on an invalid tick.
func (p *Chip) iPLP() (bool, error) {
	switch {
	case p.cycle <= 1 || p.cycle > 4:
		return true, InvalidState{fmt.Sprintf("PLP invalid opTick %d", p.cycle)}
	case p.cycle == 2:
		// Nothing else happens here
		return false, nil
	case p.cycle == 3:
		// A read of the current stack happens while the CPU is incrementing S.
		// Since our popStack does both of these together on this cycle it's just
		// a throw away read.
		p.S--
		_ = p.popStack()
		return false, nil
	}
	// case p.cycle == 4:
	// The real read
	p.P = p.popStack()
	// The actual flags register always has S1 set to one
	p.P |= P_S1
	// And the B bit is never set in the register
	p.P &^= P_B
	return true, nil
}

// iROLAcc implements the ROL instruction directly on the accumulator.
// It then sets all associated flags and adjust cycles as needed.
// Always returns true since accumulator mode is done on tick 2 and never returns an error.
func (p *Chip) iROLAcc() (bool, error) {
	carry := p.P & P_CARRY
	p.carryCheck(uint16(p.A) << 1)
	p.loadRegister(&p.A, (p.A<<1)|carry)
	return true, nil
}

// iROL implements the ROL instruction on p.ad.
// It then sets all associated flags and adjust cycles as needed.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iROL() (bool, error) {
	carry := p.P & P_CARRY
	new := (p.val << 1) | carry
	p.busWrite(p.ad, new)
	p.carryCheck(uint16(p.val) << 1)
	p.zeroCheck(new)
	p.negativeCheck(new)
	return true, nil
}

// iRORAcc implements the ROR instruction directly on the accumulator.
// It then sets all associated flags and adjust cycles as needed.
// Always returns true since accumulator mode is done on tick 2 and never returns an error.
func (p *Chip) iRORAcc() (bool, error) {
	carry := (p.P & P_CARRY) << 7
	// Just see if carry is set or not.
	p.carryCheck((uint16(p.A) << 8) & 0x0100)
	p.loadRegister(&p.A, (p.A>>1)|carry)
	return true, nil
}

// iROR implements the ROR instruction on p.ad.
// It then sets all associated flags and adjust cycles as needed.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iROR() (bool, error) {
	carry := (p.P & P_CARRY) << 7
	new := (p.val >> 1) | carry
	p.busWrite(p.ad, new)
	// Just see if carry is set or not.
	p.carryCheck((uint16(p.val) << 8) & 0x0100)
	p.zeroCheck(new)
	p.negativeCheck(new)
	return true, nil
}

// iRTI implements the RTI instruction and pops the flags and PC off the stack for returning from an interrupt.
// Returns true when done. Returns error on an invalid tick.
func (p *Chip) iRTI() (bool, error) {
	switch {
	case p.cycle <= 1 || p.cycle > 6:
		return true, InvalidState{fmt.Sprintf("RTI invalid opTick %d", p.cycle)}
	case p.cycle == 2:
		// Nothing else happens here
		return false, nil
	case p.cycle == 3:
		// A read of the current stack happens while the CPU is incrementing S.
		// Since our popStack does both of these together on this cycle it's just
		// a throw away read.
		p.S--
		_ = p.popStack()
		return false, nil
	case p.cycle == 4:
		// The real read for P
		p.P = p.popStack()
		// The actual flags register always has S1 set to one
		p.P |= P_S1
		// And the B bit is never set in the register
		p.P &^= P_B
		return false, nil
	case p.cycle == 5:
		// PCL
		p.val = p.popStack()
		return false, nil
	}
	// case p.cycle == 6:
	// PCH
	p.PC = (uint16(p.popStack()) << 8) + uint16(p.val)
	return true, nil
}

// iRTS implements the RTS instruction and pops the PC off the stack adding one to it.
func (p *Chip) iRTS() (bool, error) {
	switch {
	case p.cycle <= 1 || p.cycle > 6:
		return true, InvalidState{fmt.Sprintf("RTS invalid opTick %d", p.cycle)}
	case p.cycle == 2:
		// Nothing else happens here
		return false, nil
	case p.cycle == 3:
		// A read of the current stack happens while the CPU is incrementing S.
		// Since our popStack does both of these together on this cycle it's just
		// a throw away read.
		p.S--
		_ = p.popStack()
		return false, nil
	case p.cycle == 4:
		// PCL
		p.val = p.popStack()
		return false, nil
	case p.cycle == 5:
		// PCH
		p.PC = (uint16(p.popStack()) << 8) + uint16(p.val)
		return false, nil
	}
	// case p.cycle == 6:
	// Read the current PC and then get it incremented for the next instruction.
	_ = p.busRead(p.PC)
	p.PC++
	return true, nil
}

// iSBC implements the SBC instruction for both binary and BCD modes (if implemented) and sets all associated flags.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iSBC() (bool, error) {
	// The Ricoh version didn't implement BCD (used in NES)
	if (p.P & P_DECIMAL) != 0x00 {
		// Pull the carry bit out which thankfully is the low bit so can be
		// used directly.
		carry := p.P & P_CARRY

		// BCD details - http://6502.org/tutorials/decimal_mode.html
		// Also http://nesdev.com/6502_cpu.txt but it has errors
		aL := int8(p.A&0x0F) - int8(p.val&0x0F) + int8(carry) - 1
		// Low nibble fixup
		if aL < 0 {
			aL = ((aL - 0x06) & 0x0F) - 0x10
		}
		sum := int16(p.A&0xF0) - int16(p.val&0xF0) + int16(aL)
		// High nibble fixup
		if sum < 0x0000 {
			sum -= 0x60
		}
		res := uint8(sum & 0xFF)

		// Do normal binary math to set C,N,Z
		b := p.A + ^p.val + carry
		p.overflowCheck(p.A, ^p.val, b)
		p.negativeCheck(b)
		// Yes, could do bit checks here like the hardware but
		// just treating as uint16 math is simpler to code.
		p.carryCheck(uint16(p.A) + uint16(^p.val) + uint16(carry))
		p.zeroCheck(b)
		p.A = res
		return true, nil
	}

	// Otherwise binary mode is just ones complement p.val and ADC.
	p.val = ^p.val
	return p.iADC()
}

// iALR implements the undocumented opcode for ALR. This does AND #i (p.val) and then LSR setting all associated flags.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iALR() (bool, error) {
	p.loadRegister(&p.A, p.A&p.val)
	return p.iLSRAcc()
}

// iANC implements the undocumented opcode for ANC. This does AND #i (p.val) and then sets carry based on bit 7 (sign extend).
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iANC() (bool, error) {
	p.loadRegister(&p.A, p.A&p.val)
	p.carryCheck(uint16(p.A) << 1)
	return true, nil
}

// iARR implements the undocumented opcode for ARR. This does AND #i (p.val) and then ROR except some flags are set differently.
// Implemented as described in http://nesdev.com/6502_cpu.txt
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iARR() (bool, error) {
	t := p.A & p.val
	p.loadRegister(&p.A, t)
	p.iRORAcc()
	// Flags are different based on BCD or not (since the ALU acts different).
	if p.P&P_DECIMAL != 0x00 {
		// If bit 6 changed state between AND output and rotate outut then set V.
		if (t^p.A)&0x40 != 0x00 {
			p.P |= P_OVERFLOW
		} else {
			p.P &^= P_OVERFLOW
		}
		// Now do possible odd BCD fixups and set C
		ah := t >> 4
		al := t & 0x0F
		if (al + (al & 0x01)) > 5 {
			p.A = (p.A & 0xF0) | ((p.A + 6) & 0x0F)
		}
		if (ah + (ah & 1)) > 5 {
			p.P |= P_CARRY
			p.A += 0x60
		} else {
			p.P &^= P_CARRY
		}
		return true, nil
	}
	// C is bit 6
	p.carryCheck((uint16(p.A) << 2) & 0x0100)
	// V is bit 5 ^ bit 6
	if ((p.A&0x40)>>6)^((p.A&0x20)>>5) != 0x00 {
		p.P |= P_OVERFLOW
	} else {
		p.P &^= P_OVERFLOW
	}
	return true, nil
}

// iAXS implements the undocumented opcode for AXS. (A AND X) - p.val (no borrow) setting all associated flags post SBC.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iAXS() (bool, error) {
	// Save A off to restore later
	a := p.A
	p.loadRegister(&p.A, p.A&p.X)
	// Carry is always set
	p.P |= P_CARRY
	// Save D & V state since it's always ignored for this but needs to keep values.
	d := p.P & P_DECIMAL
	v := p.P & P_OVERFLOW
	// Clear D so SBC never uses BCD mode (we'll reset it later from saved state).
	p.P &^= P_DECIMAL
	p.iSBC()
	// Clear V now in case SBC set it so we can properly restore it below.
	p.P &^= P_OVERFLOW
	// Save A in a temp so we can load registers in the right order to set flags (based on X, not old A)
	x := p.A
	p.loadRegister(&p.A, a)
	p.loadRegister(&p.X, x)
	// Restore D & V from our initial state.
	p.P |= d | v
	return true, nil
}

// iLAX implements the undocumented opcode for LAX. This loads A and X with the same value and sets all associated flags.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iLAX() (bool, error) {
	p.loadRegister(&p.A, p.val)
	p.loadRegister(&p.X, p.val)
	return true, nil
}

// iDCP implements the undocumented opcode for DCP. This decrements p.ad and then does a CMP with A setting associated flags.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iDCP() (bool, error) {
	p.val -= 1
	p.busWrite(p.ad, p.val)
	return p.compareA()
}

// iISC implements the undocumented opcode for ISC. This increments the value at p.ad and then does an SBC with setting associated flags.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iISC() (bool, error) {
	p.val += 1
	p.busWrite(p.ad, p.val)
	return p.iSBC()
}

// iSLO implements the undocumented opcode for SLO. This does an ASL on p.ad and then OR's it against A. Sets flags and carry.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iSLO() (bool, error) {
	p.busWrite(p.ad, p.val<<1)
	p.carryCheck(uint16(p.val) << 1)
	p.loadRegister(&p.A, (p.val<<1)|p.A)
	return true, nil
}

// iRLA implements the undocumented opcode for RLA. This does a ROL on p.ad address and then AND's it against A. Sets flags and carry.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iRLA() (bool, error) {
	n := p.val<<1 | (p.P & P_CARRY)
	p.busWrite(p.ad, n)
	p.carryCheck(uint16(p.val) << 1)
	p.loadRegister(&p.A, n&p.A)
	return true, nil
}

// iSRE implements the undocumented opcode for SRE. This does a LSR on p.ad and then EOR's it against A. Sets flags and carry.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iSRE() (bool, error) {
	p.busWrite(p.ad, p.val>>1)
	// Old bit 0 becomes carry
	p.carryCheck(uint16(p.val) << 8)
	p.loadRegister(&p.A, (p.val>>1)^p.A)
	return true, nil
}

// iRRA implements the undocumented opcode for RRA. This does a ROR on p.ad and then ADC's it against A. Sets flags and carry.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iRRA() (bool, error) {
	n := ((p.P & P_CARRY) << 7) | p.val>>1
	p.busWrite(p.ad, n)
	// Old bit 0 becomes carry
	p.carryCheck((uint16(p.val) << 8) & 0x0100)
	p.val = n
	return p.iADC()
}

// iXAA implements the undocumented opcode for XAA. We'll go with http://visual6502.org/wiki/index.php?title=6502_Opcode_8B_(XAA,_ANE)
// for implementation and pick 0xEE as the constant. According to VICE this may break so might need to change it to 0xFF
// https://sourceforge.net/tracker/?func=detail&aid=2110948&group_id=223021&atid=1057617
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iXAA() (bool, error) {
	p.loadRegister(&p.A, (p.A|0xEE)&p.X&p.val)
	return true, nil
}

// iOAL implements the undocumented opcode for OAL. This one acts a bit randomly. It somtimes does XAA and sometimes
// does A=X=A&val.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iOAL() (bool, error) {
	if rand.Float32() >= 0.5 {
		return p.iXAA()
	}
	v := p.A & p.val
	p.loadRegister(&p.A, v)
	p.loadRegister(&p.X, v)
	return true, nil
}

// store implements the STA/STX/STY instruction for storing a value (from a register) in RAM.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) store(val uint8, addr uint16) (bool, error) {
	p.busWrite(addr, val)
	return true, nil
}

// storeWithFlags stores the val to the given addr and also sets Z/N flags accordingly.
// Generally used to implmenet INC/DEC.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) storeWithFlags(val uint8, addr uint16) (bool, error) {
	p.zeroCheck(val)
	p.negativeCheck(val)
	return p.store(val, addr)
}

// iCLV implements the CLV instruction clearing the V status bit.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iCLV() (bool, error) {
	p.P &^= P_OVERFLOW
	return true, nil
}

// iCLD implements the CLD instruction clearing the D status bit.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iCLD() (bool, error) {
	p.P &^= P_DECIMAL
	return true, nil
}

// iCLC implements the CLC instruction clearing the C status bit.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iCLC() (bool, error) {
	p.P &^= P_CARRY
	return true, nil
}

// iCLI implements the CLI instruction clearing the I status bit.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iCLI() (bool, error) {
	p.P &^= P_INTERRUPT
	return true, nil
}

// iSED implements the SED instruction setting the D status bit.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iSED() (bool, error) {
	p.P |= P_DECIMAL
	return true, nil
}

// iSEC implements the SEC instruction setting the C status bit.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iSEC() (bool, error) {
	p.P |= P_CARRY
	return true, nil
}

// iSEI implements the SEI instruction setting the I status bit.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iSEI() (bool, error) {
	p.P |= P_INTERRUPT
	return true, nil
}

// iORA implements the ORA instruction which ORs p.val with A.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iORA() (bool, error) {
	return p.loadRegister(&p.A, p.A|p.val)
}

// iAND implements the AND instruction which ANDs p.val with A.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iAND() (bool, error) {
	return p.loadRegister(&p.A, p.A&p.val)
}

// iEOR implements the EOR instruction which EORs p.val with A.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iEOR() (bool, error) {
	return p.loadRegister(&p.A, p.A^p.val)
}

// iDEC implements the DEC instruction by decrementing the value (p.val) at p.ad.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iDEC() (bool, error) {
	return p.storeWithFlags(p.val-1, p.ad)
}

// iINC implements the INC instruction by incrementing the value (p.val) at p.ad.
// Always returns true since this takes one tick and never returns an error.
func (p *Chip) iINC() (bool, error) {
	return p.storeWithFlags(p.val+1, p.ad)
}

// iAHX implements the undocumented AHX instruction based on the addressing mode passed in.
// The value stored is (A & X & (ADDR_HI + 1))
// Returns true when complete and any error.
func (p *Chip) iAHX(addrFunc func(instructionMode) (bool, error)) (bool, error) {
	// This is a store but we can't use storeInstruction since it depends on knowing p.ad
	// for the final computed value so we have to do the addressing mode ourselves.
	var err error
	if !p.addrDone {
		p.addrDone, err = addrFunc(kSTORE_INSTRUCTION)
		return false, err
	}
	val := p.A & p.X & uint8((p.ad>>8)+1)
	return p.store(val, p.ad)
}

// iSHY implements the undocumented SHY instruction based on the addressing mode passed in.
// The value stored is (Y & (ADDR_HI + 1))
// Returns true when complete and any error.
func (p *Chip) iSHY(addrFunc func(instructionMode) (bool, error)) (bool, error) {
	// This is a store but we can't use storeInstruction since it depends on knowing p.ad
	// for the final computed value so we have to do the addressing mode ourselves.
	var err error
	if !p.addrDone {
		p.addrDone, err = addrFunc(kSTORE_INSTRUCTION)
		return false, err
	}
	val := p.Y & uint8((p.ad>>8)+1)
	return p.store(val, p.ad)
}

// iSHX implements the undocumented SHX instruction based on the addressing mode passed in.
// The value stored is (X & (ADDR_HI + 1))
// Returns true when complete and any error.
func (p *Chip) iSHX(addrFunc func(instructionMode) (bool, error)) (bool, error) {
	// This is a store but we can't use storeInstruction since it depends on knowing p.ad
	// for the final computed value so we have to do the addressing mode ourselves.
	var err error
	if !p.addrDone {
		p.addrDone, err = addrFunc(kSTORE_INSTRUCTION)
		return false, err
	}
	val := p.X & uint8((p.ad>>8)+1)
	return p.store(val, p.ad)
}

// iTAS implements the undocumented TAS instruction which only has one addressing more.
// This does the same operations as AHX above but then also sets S = A&X
// Returns true when complete and any error.
func (p *Chip) iTAS() (bool, error) {
	p.S = p.A & p.X
	return p.iAHX(p.addrAbsoluteY)
}

// iLAS implements the undocumented LAS instruction.
// This take opVal and ANDs it with S and then stores that in A,X,S setting flags accordingly.
// Always returns true because it cannot error.
func (p *Chip) iLAS() (bool, error) {
	p.S = p.S & p.val
	p.loadRegister(&p.X, p.S)
	p.loadRegister(&p.A, p.S)
	return true, nil
}

// loadInstruction abstracts all load instruction opcodes. The address mode function is used to get the proper values loaded into p.ad and p.val.
// Then on the same tick this is done the opFunc is called to load the appropriate register.
// Returns true when complete and any error.
func (p *Chip) loadInstruction(addrFunc func(instructionMode) (bool, error), opFunc func() (bool, error)) (bool, error) {
	var err error
	if !p.addrDone {
		p.addrDone, err = addrFunc(kLOAD_INSTRUCTION)
	}
	if err != nil {
		return true, err
	}
	if p.addrDone {
		return opFunc()
	}
	return false, nil
}

// rmwInstruction abstracts all rmw instruction opcodes. The address mode function is used to get the proper values loaded into p.ad and p.val.
// This assumes the address mode function also handle the extra write rmw instructions perform.
// Then on the next tick the opFunc is called to perform the final write operation.
// Returns true when complete and any error.
func (p *Chip) rmwInstruction(addrFunc func(instructionMode) (bool, error), opFunc func() (bool, error)) (bool, error) {
	var err error
	if !p.addrDone {
		p.addrDone, err = addrFunc(kRMW_INSTRUCTION)
		return false, err
	}
	return opFunc()
}

// storeInstruction abstracts all store instruction opcodes. The address mode function is used to get the proper values loaded into p.ad and p.val.
// Then on the next tick the val passed is stored to p.ad.
// Returns true when complete and any error.
func (p *Chip) storeInstruction(addrFunc func(instructionMode) (bool, error), val uint8) (bool, error) {
	var err error
	if !p.addrDone {
		p.addrDone, err = addrFunc(kSTORE_INSTRUCTION)
		return false, err
	}
	return p.store(val, p.ad)
}
