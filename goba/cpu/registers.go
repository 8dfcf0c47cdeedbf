package cpu

// Mode is the processor mode encoded in the low 5 bits of the status
// word. It determines which physical slots back logical registers
// 8-14 and which saved-status slot is visible.
type Mode uint8

const (
	ModeUser       Mode = 0x10
	ModeFIQ        Mode = 0x11
	ModeIRQ        Mode = 0x12
	ModeSupervisor Mode = 0x13
	ModeAbort      Mode = 0x17
	ModeUndefined  Mode = 0x1B
	ModeSystem     Mode = 0x1F
)

func (m Mode) valid() bool {
	switch m {
	case ModeUser, ModeFIQ, ModeIRQ, ModeSupervisor, ModeAbort, ModeUndefined, ModeSystem:
		return true
	}
	return false
}

// privModeIndex maps the four "simple" privileged modes (not FIQ, not
// User/System) to an index 0-3 for the r13/r14 overlay banks and the
// saved-status slots.
func privModeIndex(m Mode) (idx int, ok bool) {
	switch m {
	case ModeIRQ:
		return 0, true
	case ModeSupervisor:
		return 1, true
	case ModeAbort:
		return 2, true
	case ModeUndefined:
		return 3, true
	}
	return 0, false
}

// Registers is the banked register file: one base bank of 16 slots,
// an FIQ overlay for slots 8-14, and a 13/14 overlay per the four
// remaining privileged modes. Mode-transition cost is O(1): Get/Set
// consult the current mode once per access.
type Registers struct {
	base   [16]uint32 // User/System bank, also the fallback for r0-r7, r15
	fiq    [7]uint32  // r8-r14 while in FIQ mode
	priv   [4][2]uint32 // r13-r14 for IRQ, Supervisor, Abort, Undefined
	spsr   [5]uint32    // saved status for FIQ, IRQ, Supervisor, Abort, Undefined
	cpsr   uint32
}

// NewRegisters returns a register file reset to System mode, all zero.
func NewRegisters() *Registers {
	r := &Registers{}
	r.cpsr = uint32(ModeSystem) // BIOS hands control to System mode at reset in this design
	return r
}

// CPSR returns the current status word.
func (r *Registers) CPSR() uint32 { return r.cpsr }

// SetCPSR overwrites the whole status word, including the mode bits;
// mode-dependent banking takes effect immediately (atomically, from the
// caller's point of view -- there is no intermediate state observable
// between instructions).
func (r *Registers) SetCPSR(value uint32) { r.cpsr = value }

// Mode returns the processor mode encoded in the low 5 bits of CPSR.
func (r *Registers) Mode() Mode { return Mode(r.cpsr & 0x1F) }

// SetMode rewrites only the mode bits of CPSR.
func (r *Registers) SetMode(m Mode) {
	r.cpsr = (r.cpsr &^ 0x1F) | uint32(m)
}

// Thumb reports whether the T bit is set (compact-instruction mode).
func (r *Registers) Thumb() bool { return r.cpsr&(1<<5) != 0 }

// SetThumb sets or clears the T bit.
func (r *Registers) SetThumb(on bool) {
	if on {
		r.cpsr |= 1 << 5
	} else {
		r.cpsr &^= 1 << 5
	}
}

// IRQDisabled / FIQDisabled report the I/F control bits.
func (r *Registers) IRQDisabled() bool { return r.cpsr&(1<<7) != 0 }
func (r *Registers) FIQDisabled() bool { return r.cpsr&(1<<6) != 0 }

func (r *Registers) SetIRQDisabled(on bool) { r.setBit(7, on) }
func (r *Registers) SetFIQDisabled(on bool) { r.setBit(6, on) }

func (r *Registers) setBit(pos uint8, on bool) {
	if on {
		r.cpsr |= 1 << pos
	} else {
		r.cpsr &^= 1 << pos
	}
}

// Condition flags, bits 31-28.
const (
	flagN uint32 = 1 << 31
	flagZ uint32 = 1 << 30
	flagC uint32 = 1 << 29
	flagV uint32 = 1 << 28
)

func (r *Registers) N() bool { return r.cpsr&flagN != 0 }
func (r *Registers) Z() bool { return r.cpsr&flagZ != 0 }
func (r *Registers) C() bool { return r.cpsr&flagC != 0 }
func (r *Registers) V() bool { return r.cpsr&flagV != 0 }

func (r *Registers) SetN(on bool) { r.setFlag(flagN, on) }
func (r *Registers) SetZ(on bool) { r.setFlag(flagZ, on) }
func (r *Registers) SetC(on bool) { r.setFlag(flagC, on) }
func (r *Registers) SetV(on bool) { r.setFlag(flagV, on) }

func (r *Registers) setFlag(mask uint32, on bool) {
	if on {
		r.cpsr |= mask
	} else {
		r.cpsr &^= mask
	}
}

// SetNZ sets N and Z from a 32-bit result, the common case for every
// data-processing and load instruction that updates flags.
func (r *Registers) SetNZ(result uint32) {
	r.SetN(result&0x8000_0000 != 0)
	r.SetZ(result == 0)
}

// Get reads logical register n (0-15) under the current mode's bank.
func (r *Registers) Get(n uint8) uint32 {
	switch {
	case n <= 7, n == 15:
		return r.base[n]
	case n >= 8 && n <= 12:
		if r.Mode() == ModeFIQ {
			return r.fiq[n-8]
		}
		return r.base[n]
	default: // 13, 14
		if r.Mode() == ModeFIQ {
			return r.fiq[n-8]
		}
		if idx, ok := privModeIndex(r.Mode()); ok {
			return r.priv[idx][n-13]
		}
		return r.base[n]
	}
}

// Set writes logical register n (0-15) under the current mode's bank.
func (r *Registers) Set(n uint8, value uint32) {
	switch {
	case n <= 7, n == 15:
		r.base[n] = value
	case n >= 8 && n <= 12:
		if r.Mode() == ModeFIQ {
			r.fiq[n-8] = value
			return
		}
		r.base[n] = value
	default: // 13, 14
		if r.Mode() == ModeFIQ {
			r.fiq[n-8] = value
			return
		}
		if idx, ok := privModeIndex(r.Mode()); ok {
			r.priv[idx][n-13] = value
			return
		}
		r.base[n] = value
	}
}

// GetUser reads a register from the User/System bank regardless of
// current mode, used by LDM/STM's user-bank-transfer form.
func (r *Registers) GetUser(n uint8) uint32 {
	if n >= 8 && n <= 14 {
		return r.base[n]
	}
	return r.base[n]
}

// SetUser writes a register into the User/System bank regardless of
// current mode.
func (r *Registers) SetUser(n uint8, value uint32) {
	r.base[n] = value
}

// PC returns the r15 slot directly, the same value Get(15) returns.
func (r *Registers) PC() uint32 { return r.base[15] }

// SetPC writes the program counter slot directly.
func (r *Registers) SetPC(value uint32) { r.base[15] = value }

// SPSR returns the saved status for the current privileged mode. Valid
// only in FIQ/IRQ/Supervisor/Abort/Undefined modes.
func (r *Registers) SPSR() uint32 {
	if idx, ok := r.spsrIndex(); ok {
		return r.spsr[idx]
	}
	return r.cpsr
}

// SetSPSR writes the saved status for the current privileged mode.
func (r *Registers) SetSPSR(value uint32) {
	if idx, ok := r.spsrIndex(); ok {
		r.spsr[idx] = value
	}
}

func (r *Registers) spsrIndex() (int, bool) {
	switch r.Mode() {
	case ModeFIQ:
		return 4, true
	case ModeIRQ:
		return 0, true
	case ModeSupervisor:
		return 1, true
	case ModeAbort:
		return 2, true
	case ModeUndefined:
		return 3, true
	}
	return 0, false
}

// HasSPSR reports whether the current mode has a saved-status slot.
func (r *Registers) HasSPSR() bool {
	_, ok := r.spsrIndex()
	return ok
}

// RegisterSnapshot is the gob-serializable image of the full banked
// register file, used by package core's save-state support.
type RegisterSnapshot struct {
	Base [16]uint32
	FIQ  [7]uint32
	Priv [4][2]uint32
	SPSR [5]uint32
	CPSR uint32
}

// Snapshot captures every bank, not just the currently-visible one.
func (r *Registers) Snapshot() RegisterSnapshot {
	return RegisterSnapshot{Base: r.base, FIQ: r.fiq, Priv: r.priv, SPSR: r.spsr, CPSR: r.cpsr}
}

// Restore installs a previously captured snapshot verbatim.
func (r *Registers) Restore(s RegisterSnapshot) {
	r.base, r.fiq, r.priv, r.spsr, r.cpsr = s.Base, s.FIQ, s.Priv, s.SPSR, s.CPSR
}
