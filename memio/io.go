// Package memio defines the basic interfaces for working with a 6502 family
// memory map and the bi-directional I/O ports the peripheral chips expose.
// Implementations call the input callbacks (if provided) whenever they sample
// a line, which need not be every clock tick, and account for the fact that
// output won't mirror input for a cycle (to account for latches being loaded).
package memio

// PortIn8 is an 8-bit input pin bundle (e.g. a VIA/PIA port wired to a
// joystick, keyboard matrix, or other peripheral).
type PortIn8 interface {
	// Input returns the current value being driven onto the port.
	Input() uint8
}

// PortOut8 is an 8-bit output pin bundle.
type PortOut8 interface {
	// Output returns the value currently being driven by the chip.
	Output() uint8
}

// PortIn1 is a single-bit input line (a control line such as CA1/CA2 or a
// single joystick direction).
type PortIn1 interface {
	Input() bool
}
