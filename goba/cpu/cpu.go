// Package cpu implements the two interpreters (32-bit "wide"/ARM and
// 16-bit "compact"/THUMB) over a common CPU value, grounded on the
// handler-per-opcode style of the teacher's jeebie/cpu/opcodes.go (one
// function per instruction). Decode is an ordered chain of mask/value
// checks, first match wins; each handler reports whether it altered
// control flow, and access costs are charged through the bus.
package cpu

import (
	"fmt"

	"github.com/shelvric/goba/goba/irq"
)

// CPU holds the two banked register files are modeled in Registers;
// this struct adds the pipeline/fetch bookkeeping and ties execution to
// the bus and interrupt controller.
type CPU struct {
	Regs *Registers
	bus  Bus
	irqC *irq.Controller

	// nextFetchAddr is the physical address of the instruction that will
	// be fetched on the next Step call. flushPending marks that the next
	// fetch follows a PC-altering event and must be charged as
	// non-sequential plus a pipeline-refill sequential fetch, per the
	// two-slot instruction buffer described in the data model.
	nextFetchAddr uint32
	flushPending  bool

	// currentOpcode mirrors the teacher's cpu.currentOpcode field: it
	// records the opcode being executed and is not read by the
	// interpreters.
	currentOpcode uint32
}

// New creates a CPU wired to the given bus and interrupt controller,
// reset to System mode with an empty pipeline (so the first Step fetches
// non-sequentially from address 0).
func New(bus Bus, irqC *irq.Controller) *CPU {
	c := &CPU{
		Regs:         NewRegisters(),
		bus:          bus,
		irqC:         irqC,
		flushPending: true,
	}
	return c
}

// ResetTo sets the program counter and re-arms the pipeline flush, used
// by boot-ROM handoff and by unit tests that want a clean starting PC.
func (c *CPU) ResetTo(pc uint32) {
	c.nextFetchAddr = pc
	c.flushPending = true
}

// Snapshot is the gob-serializable image of pipeline state not already
// covered by Regs.Snapshot, used by package core's save-state support.
type Snapshot struct {
	Registers     RegisterSnapshot
	NextFetchAddr uint32
	FlushPending  bool
}

func (c *CPU) Snapshot() Snapshot {
	return Snapshot{Registers: c.Regs.Snapshot(), NextFetchAddr: c.nextFetchAddr, FlushPending: c.flushPending}
}

func (c *CPU) Restore(s Snapshot) {
	c.Regs.Restore(s.Registers)
	c.nextFetchAddr = s.NextFetchAddr
	c.flushPending = s.FlushPending
}

// GetPC returns the address of the instruction that will execute next
// (the "raw" PC, not the +8/+4 pipeline-ahead value an instruction sees
// when it reads register 15).
func (c *CPU) GetPC() uint32 { return c.nextFetchAddr }

// Halted reports whether the CPU is parked in the HALT state.
func (c *CPU) Halted() bool { return c.irqC.Halted() }

// CheckInterrupts vectors to IRQ if the interrupt controller reports a
// pending, enabled, unmasked request and the CPU hasn't masked IRQs
// itself. Called by the core loop between instructions, per spec §4.5.
func (c *CPU) CheckInterrupts() {
	c.irqC.WakeIfPending()
	if c.irqC.Halted() {
		c.bus.Internal(1)
		return
	}
	if !c.irqC.ShouldVector() || c.Regs.IRQDisabled() {
		return
	}
	c.enterException(ModeIRQ, 0x18, 4)
}

// enterException performs the common exception-entry sequence: bank to
// newMode, save CPSR to the new mode's SPSR, save the return address
// (the next fetch address plus returnAdj) to LR, disable IRQs, and
// vector by writing the vector address into r15 and the next fetch.
func (c *CPU) enterException(newMode Mode, vector uint32, returnAdj uint32) {
	oldCPSR := c.Regs.CPSR()
	returnAddr := c.nextFetchAddr + returnAdj
	c.Regs.SetMode(newMode)
	c.Regs.SetSPSR(oldCPSR)
	c.Regs.Set(14, returnAddr)
	c.Regs.SetIRQDisabled(true)
	c.Regs.SetThumb(false)
	c.Regs.Set(15, vector)
	c.nextFetchAddr = vector
	c.flushPending = true
}

// Step executes exactly one instruction (wide or compact, depending on
// the T bit) and returns. Fetch cost is charged to the bus inline.
func (c *CPU) Step() {
	if c.irqC.Halted() {
		c.bus.Internal(1)
		return
	}

	if c.Regs.Thumb() {
		c.stepThumb()
	} else {
		c.stepARM()
	}
}

func (c *CPU) stepARM() {
	instrAddr := c.nextFetchAddr
	kind := Sequential
	if c.flushPending {
		kind = NonSequential
	}
	opcode := c.bus.Read32(instrAddr, kind)
	c.currentOpcode = opcode

	// Visible PC during execution is instrAddr+8; operand reads of r15
	// observe this value.
	c.Regs.SetPC(instrAddr + 8)

	cond := uint8(opcode >> 28)
	if !c.evalCondition(cond) {
		c.advanceARM(instrAddr)
		return
	}

	branched := c.executeARM(opcode)
	if branched {
		c.onBranch(false)
	} else {
		c.advanceARM(instrAddr)
	}
}

func (c *CPU) advanceARM(instrAddr uint32) {
	c.nextFetchAddr = instrAddr + 4
	c.flushPending = false
}

func (c *CPU) stepThumb() {
	instrAddr := c.nextFetchAddr
	kind := Sequential
	if c.flushPending {
		kind = NonSequential
	}
	opcode := c.bus.Read16(instrAddr, kind)
	c.currentOpcode = uint32(opcode)

	c.Regs.SetPC(instrAddr + 4)

	branched := c.executeThumb(opcode)
	if branched {
		c.onBranch(true)
	} else {
		c.nextFetchAddr = instrAddr + 2
		c.flushPending = false
	}
}

// onBranch charges the pipeline-refill cost (non-sequential then
// sequential fetch from the new address) and sets nextFetchAddr from
// whatever the instruction semantics left in r15.
func (c *CPU) onBranch(thumb bool) {
	target := c.Regs.Get(15)
	c.nextFetchAddr = target
	c.flushPending = true
	if thumb {
		c.bus.Read16(target, NonSequential)
	} else {
		c.bus.Read32(target, NonSequential)
	}
}

// evalCondition implements the 16-entry condition truth table keyed by
// {N,Z,C,V}. Condition 0xF ("never") always fails; a skipped instruction
// still charges one sequential prefetch cycle via the normal fetch path
// in stepARM/stepThumb (the fetch already happened before this check).
func (c *CPU) evalCondition(cond uint8) bool {
	n, z, ca, v := c.Regs.N(), c.Regs.Z(), c.Regs.C(), c.Regs.V()
	switch cond {
	case 0x0: // EQ
		return z
	case 0x1: // NE
		return !z
	case 0x2: // CS/HS
		return ca
	case 0x3: // CC/LO
		return !ca
	case 0x4: // MI
		return n
	case 0x5: // PL
		return !n
	case 0x6: // VS
		return v
	case 0x7: // VC
		return !v
	case 0x8: // HI
		return ca && !z
	case 0x9: // LS
		return !ca || z
	case 0xA: // GE
		return n == v
	case 0xB: // LT
		return n != v
	case 0xC: // GT
		return !z && n == v
	case 0xD: // LE
		return z || n != v
	case 0xE: // AL
		return true
	default: // 0xF never
		return false
	}
}

// Read/Write/Internal forward to the bus, used by instruction handlers.
func (c *CPU) read8(address uint32, kind AccessKind) uint8   { return c.bus.Read8(address, kind) }
func (c *CPU) read16(address uint32, kind AccessKind) uint16 { return c.bus.Read16(address, kind) }
func (c *CPU) read32(address uint32, kind AccessKind) uint32 { return c.bus.Read32(address, kind) }
func (c *CPU) write8(address uint32, kind AccessKind, v uint8) { c.bus.Write8(address, kind, v) }
func (c *CPU) write16(address uint32, kind AccessKind, v uint16) { c.bus.Write16(address, kind, v) }
func (c *CPU) write32(address uint32, kind AccessKind, v uint32) { c.bus.Write32(address, kind, v) }
func (c *CPU) internal(cycles int)                             { c.bus.Internal(cycles) }

func (c *CPU) softwareInterrupt(returnAdj uint32) {
	c.enterException(ModeSupervisor, 0x08, returnAdj)
}

func (c *CPU) undefinedInstruction(returnAdj uint32) {
	c.enterException(ModeUndefined, 0x04, returnAdj)
}

func (c *CPU) unreachable(opcode uint32) {
	panic(fmt.Sprintf("goba/cpu: no decode entry matched opcode 0x%08X", opcode))
}

// addWithFlags computes a+b+carryIn and reports the N/Z/C/V flags using
// two's-complement carry/overflow rules (carry = unsigned overflow,
// overflow = signed overflow).
func addWithFlags(a, b uint32, carryIn uint32) (result uint32, c, v bool) {
	sum := uint64(a) + uint64(b) + uint64(carryIn)
	result = uint32(sum)
	c = sum > 0xFFFF_FFFF
	v = (^(a ^ b) & (a ^ result) & 0x8000_0000) != 0
	return
}

// subWithFlags computes a-b-borrowIn (borrowIn=0 means no initial
// borrow); C is the inverted borrow per spec (C=1 means no borrow, i.e.
// the subtraction did not underflow).
func subWithFlags(a, b uint32, borrowIn uint32) (result uint32, c, v bool) {
	carryIn := uint32(1) - borrowIn
	bInv := ^b
	sum := uint64(a) + uint64(bInv) + uint64(carryIn)
	result = uint32(sum)
	c = sum > 0xFFFF_FFFF
	v = ((a ^ b) & (a ^ result) & 0x8000_0000) != 0
	return
}
