package cpu

import "github.com/shelvric/goba/goba/bit"

// executeARM runs one already-condition-passed 32-bit instruction. It
// returns true if the instruction altered control flow in a way that
// requires the pipeline-refill charge (branch, BX, data-processing into
// PC, LDR into PC, block transfer into PC, SWI, undefined) — in every
// such case the handler itself writes the new address into r15.
//
// Decode follows the mask/value table of spec §4.2 in order; the first
// match wins, mirroring the teacher's per-opcode handler functions
// (jeebie/cpu/opcodes.go) generalized from an 8-bit map to inline
// pattern checks since the 32-bit encoding space does not compress into
// a single flat byte index the way the Game Boy's do.
func (c *CPU) executeARM(opcode uint32) bool {
	switch {
	case opcode&0x0FFF_FFF0 == 0x012F_FF10:
		return c.armBranchExchange(opcode)
	case opcode&0x0FC0_00F0 == 0x0000_0090:
		return c.armMultiply(opcode)
	case opcode&0x0F80_00F0 == 0x0080_0090:
		return c.armMultiplyLong(opcode)
	case opcode&0x0FB0_0FF0 == 0x0100_0090:
		return c.armSingleDataSwap(opcode)
	case opcode&0x0E00_0090 == 0x0000_0090 && opcode&0x60 != 0:
		return c.armHalfwordTransfer(opcode)
	case opcode&0x0FBF_0FFF == 0x010F_0000:
		return c.armMRS(opcode)
	case opcode&0x0FB0_FFF0 == 0x0120_F000:
		return c.armMSR(opcode, false)
	case opcode&0x0FB0_F000 == 0x0320_F000:
		return c.armMSR(opcode, true)
	case opcode&0x0C00_0000 == 0x0000_0000:
		return c.armDataProcessing(opcode)
	case opcode&0x0C00_0000 == 0x0400_0000:
		return c.armSingleDataTransfer(opcode)
	case opcode&0x0E00_0000 == 0x0800_0000:
		return c.armBlockDataTransfer(opcode)
	case opcode&0x0E00_0000 == 0x0A00_0000:
		return c.armBranch(opcode)
	case opcode&0x0F00_0000 == 0x0F00_0000:
		c.softwareInterrupt(4)
		return true
	default:
		c.undefinedInstruction(4)
		return true
	}
}

func (c *CPU) operand(n uint8, pcExtra uint32) uint32 {
	if n == 15 {
		return c.Regs.Get(15) + pcExtra
	}
	return c.Regs.Get(n)
}

// armBranchExchange: BX Rm. Jumps to Rm, switching to Thumb if bit 0 is set.
func (c *CPU) armBranchExchange(opcode uint32) bool {
	rm := uint8(opcode & 0xF)
	target := c.operand(rm, 0)
	thumb := target&1 != 0
	c.Regs.SetThumb(thumb)
	if thumb {
		target &^= 1
	} else {
		target &^= 3
	}
	c.Regs.Set(15, target)
	return true
}

// armMultiply: MUL/MLA. Rd = Rm*Rs(+Rn). 32-bit result only.
func (c *CPU) armMultiply(opcode uint32) bool {
	accumulate := bit.IsSet(21, opcode)
	setFlags := bit.IsSet(20, opcode)
	rd := uint8((opcode >> 16) & 0xF)
	rn := uint8((opcode >> 12) & 0xF)
	rs := uint8((opcode >> 8) & 0xF)
	rm := uint8(opcode & 0xF)

	result := c.Regs.Get(rm) * c.Regs.Get(rs)
	if accumulate {
		result += c.Regs.Get(rn)
	}
	c.Regs.Set(rd, result)

	if setFlags {
		c.Regs.SetNZ(result)
	}

	cycles := mulCycles(c.Regs.Get(rs))
	if accumulate {
		cycles++
	}
	c.internal(cycles)
	return false
}

func mulCycles(rs uint32) int {
	switch {
	case rs&0xFFFF_FF00 == 0 || rs&0xFFFF_FF00 == 0xFFFF_FF00:
		return 1
	case rs&0xFFFF_0000 == 0 || rs&0xFFFF_0000 == 0xFFFF_0000:
		return 2
	case rs&0xFF00_0000 == 0 || rs&0xFF00_0000 == 0xFF00_0000:
		return 3
	default:
		return 4
	}
}

// armMultiplyLong: signed/unsigned 64-bit multiply with optional 64-bit
// accumulator split across RdHi:RdLo.
func (c *CPU) armMultiplyLong(opcode uint32) bool {
	signed := bit.IsSet(22, opcode)
	accumulate := bit.IsSet(21, opcode)
	setFlags := bit.IsSet(20, opcode)
	rdHi := uint8((opcode >> 16) & 0xF)
	rdLo := uint8((opcode >> 12) & 0xF)
	rs := uint8((opcode >> 8) & 0xF)
	rm := uint8(opcode & 0xF)

	var result uint64
	if signed {
		result = uint64(int64(int32(c.Regs.Get(rm))) * int64(int32(c.Regs.Get(rs))))
	} else {
		result = uint64(c.Regs.Get(rm)) * uint64(c.Regs.Get(rs))
	}
	if accumulate {
		acc := uint64(c.Regs.Get(rdHi))<<32 | uint64(c.Regs.Get(rdLo))
		result += acc
	}

	c.Regs.Set(rdLo, uint32(result))
	c.Regs.Set(rdHi, uint32(result>>32))

	if setFlags {
		c.Regs.SetN(result&0x8000_0000_0000_0000 != 0)
		c.Regs.SetZ(result == 0)
	}

	cycles := mulCycles(c.Regs.Get(rs)) + 1
	if accumulate {
		cycles++
	}
	c.internal(cycles)
	return false
}

// armSingleDataSwap: SWP/SWPB. Atomic read-then-write at one address.
func (c *CPU) armSingleDataSwap(opcode uint32) bool {
	byteSwap := bit.IsSet(22, opcode)
	rn := uint8((opcode >> 16) & 0xF)
	rd := uint8((opcode >> 12) & 0xF)
	rm := uint8(opcode & 0xF)

	address := c.operand(rn, 0)
	if byteSwap {
		old := c.read8(address, NonSequential)
		c.write8(address, Sequential, uint8(c.operand(rm, 0)))
		c.Regs.Set(rd, uint32(old))
	} else {
		old := c.read32(address, NonSequential)
		old = bit.RotateRight32(old, uint8((address&3)*8))
		c.write32(address, Sequential, c.operand(rm, 0))
		c.Regs.Set(rd, old)
	}
	c.internal(1)
	return false
}

// armHalfwordTransfer: LDRH/STRH/LDRSB/LDRSH with pre/post indexing.
func (c *CPU) armHalfwordTransfer(opcode uint32) bool {
	pre := bit.IsSet(24, opcode)
	up := bit.IsSet(23, opcode)
	immediateOffset := bit.IsSet(22, opcode)
	writeback := bit.IsSet(21, opcode)
	load := bit.IsSet(20, opcode)
	rn := uint8((opcode >> 16) & 0xF)
	rd := uint8((opcode >> 12) & 0xF)
	sh := uint8((opcode >> 5) & 0x3)

	var offset uint32
	if immediateOffset {
		offset = ((opcode >> 4) & 0xF0) | (opcode & 0xF)
	} else {
		rm := uint8(opcode & 0xF)
		offset = c.Regs.Get(rm)
	}

	base := c.operand(rn, 0)
	address := base
	if pre {
		if up {
			address = base + offset
		} else {
			address = base - offset
		}
	}

	access := NonSequential
	if load {
		var value uint32
		switch sh {
		case 1: // unsigned halfword
			value = uint32(c.read16(address, access))
		case 2: // signed byte
			value = uint32(bit.SignExtend(uint32(c.read8(address, access)), 8))
		case 3: // signed halfword
			value = uint32(bit.SignExtend(uint32(c.read16(address, access)), 16))
		default:
			value = uint32(c.read16(address, access))
		}
		c.internal(1)
		if rd == 15 {
			c.Regs.Set(15, value&^3)
			writebackAddr(c, rn, base, offset, up, pre, writeback)
			return true
		}
		c.Regs.Set(rd, value)
	} else {
		value := c.operand(rd, 4)
		c.write16(address, access, uint16(value))
	}

	writebackAddr(c, rn, base, offset, up, pre, writeback)
	return false
}

// writebackAddr applies post-indexed addressing and/or the writeback bit
// shared by the halfword-transfer handler, so an LDR-into-PC path can
// still perform the base update before reporting a branch.
func writebackAddr(c *CPU, rn uint8, base, offset uint32, up, pre, writeback bool) {
	var final uint32
	if !pre {
		if up {
			final = base + offset
		} else {
			final = base - offset
		}
		c.Regs.Set(rn, final)
		return
	}
	if writeback {
		if up {
			final = base + offset
		} else {
			final = base - offset
		}
		c.Regs.Set(rn, final)
	}
}

// armMRS: move current or saved status register to Rd.
func (c *CPU) armMRS(opcode uint32) bool {
	rd := uint8((opcode >> 12) & 0xF)
	useSPSR := bit.IsSet(22, opcode)
	if useSPSR {
		c.Regs.Set(rd, c.Regs.SPSR())
	} else {
		c.Regs.Set(rd, c.Regs.CPSR())
	}
	return false
}

// armMSR: write a masked value to CPSR or SPSR. Mask bits (19:16) select
// which byte fields (flags/status/extension/control) are written; User
// mode may only ever alter the flags field regardless of the mask.
func (c *CPU) armMSR(opcode uint32, immediate bool) bool {
	useSPSR := bit.IsSet(22, opcode)
	fieldMask := (opcode >> 16) & 0xF

	var value uint32
	if immediate {
		imm8 := opcode & 0xFF
		rotate := uint8((opcode >> 8) & 0xF)
		value, _ = rotateImmediate(imm8, rotate)
	} else {
		rm := uint8(opcode & 0xF)
		value = c.operand(rm, 0)
	}

	var writeMask uint32
	isPriv := c.Regs.Mode() != ModeUser
	if fieldMask&0x8 != 0 {
		writeMask |= 0xFF00_0000 // flags (bits 31:24)
	}
	if isPriv {
		if fieldMask&0x4 != 0 {
			writeMask |= 0x00FF_0000 // status
		}
		if fieldMask&0x2 != 0 {
			writeMask |= 0x0000_FF00 // extension
		}
		if fieldMask&0x1 != 0 {
			writeMask |= 0x0000_00FF // control
		}
	}

	if useSPSR {
		if c.Regs.HasSPSR() {
			cur := c.Regs.SPSR()
			c.Regs.SetSPSR((cur &^ writeMask) | (value & writeMask))
		}
		return false
	}

	cur := c.Regs.CPSR()
	c.Regs.SetCPSR((cur &^ writeMask) | (value & writeMask))
	return false
}

// aluOpcode enumerates the 16 data-processing operations encoded in
// bits 24:21.
type aluOpcode uint8

const (
	aluAND aluOpcode = iota
	aluEOR
	aluSUB
	aluRSB
	aluADD
	aluADC
	aluSBC
	aluRSC
	aluTST
	aluTEQ
	aluCMP
	aluCMN
	aluORR
	aluMOV
	aluBIC
	aluMVN
)

func (op aluOpcode) isArithmetic() bool {
	switch op {
	case aluSUB, aluRSB, aluADD, aluADC, aluSBC, aluRSC, aluCMP, aluCMN:
		return true
	}
	return false
}

func (op aluOpcode) isLogical() bool {
	switch op {
	case aluAND, aluEOR, aluTST, aluTEQ, aluORR, aluMOV, aluBIC, aluMVN:
		return true
	}
	return false
}

func (op aluOpcode) isTestOnly() bool {
	switch op {
	case aluTST, aluTEQ, aluCMP, aluCMN:
		return true
	}
	return false
}

// armDataProcessing implements operation group 7 of spec §4.2: the 16
// ALU ops against an immediate or shifted-register operand 2.
func (c *CPU) armDataProcessing(opcode uint32) bool {
	op := aluOpcode((opcode >> 21) & 0xF)
	setFlags := bit.IsSet(20, opcode)
	rn := uint8((opcode >> 16) & 0xF)
	rd := uint8((opcode >> 12) & 0xF)
	immediate := bit.IsSet(25, opcode)

	var op2 uint32
	var shifterCarry bool
	carryIn := c.Regs.C()
	shiftByReg := false

	if immediate {
		imm8 := opcode & 0xFF
		rotate := uint8((opcode >> 8) & 0xF)
		op2, shifterCarry = rotateImmediate(imm8, rotate)
		if rotate == 0 {
			shifterCarry = carryIn
		}
	} else {
		rm := uint8(opcode & 0xF)
		kind := ShiftType((opcode >> 5) & 0x3)
		shiftByReg = bit.IsSet(4, opcode)
		var amount uint8
		pcExtra := uint32(0)
		if shiftByReg {
			rs := uint8((opcode >> 8) & 0xF)
			amount = uint8(c.Regs.Get(rs) & 0xFF)
			c.internal(1)
			pcExtra = 4
		} else {
			amount = uint8((opcode >> 7) & 0x1F)
		}
		value := c.operand(rm, pcExtra)
		op2, shifterCarry = shift(kind, value, amount, carryIn, !shiftByReg)
	}

	pcExtraForRn := uint32(0)
	if shiftByReg {
		pcExtraForRn = 4
	}
	rnVal := c.operand(rn, pcExtraForRn)

	var result uint32
	var carryOut, overflowOut bool
	carryOut = carryIn

	switch op {
	case aluAND:
		result = rnVal & op2
		carryOut = shifterCarry
	case aluEOR:
		result = rnVal ^ op2
		carryOut = shifterCarry
	case aluSUB:
		result, carryOut, overflowOut = subWithFlags(rnVal, op2, 0)
	case aluRSB:
		result, carryOut, overflowOut = subWithFlags(op2, rnVal, 0)
	case aluADD:
		result, carryOut, overflowOut = addWithFlags(rnVal, op2, 0)
	case aluADC:
		result, carryOut, overflowOut = addWithFlags(rnVal, op2, boolToBit(carryIn))
	case aluSBC:
		result, carryOut, overflowOut = subWithFlags(rnVal, op2, 1-boolToBit(carryIn))
	case aluRSC:
		result, carryOut, overflowOut = subWithFlags(op2, rnVal, 1-boolToBit(carryIn))
	case aluTST:
		result = rnVal & op2
		carryOut = shifterCarry
	case aluTEQ:
		result = rnVal ^ op2
		carryOut = shifterCarry
	case aluCMP:
		result, carryOut, overflowOut = subWithFlags(rnVal, op2, 0)
	case aluCMN:
		result, carryOut, overflowOut = addWithFlags(rnVal, op2, 0)
	case aluORR:
		result = rnVal | op2
		carryOut = shifterCarry
	case aluMOV:
		result = op2
		carryOut = shifterCarry
	case aluBIC:
		result = rnVal &^ op2
		carryOut = shifterCarry
	case aluMVN:
		result = ^op2
		carryOut = shifterCarry
	}

	branched := false
	if !op.isTestOnly() {
		if rd == 15 {
			branched = true
			if setFlags && c.Regs.HasSPSR() {
				c.Regs.SetCPSR(c.Regs.SPSR())
			}
			c.Regs.Set(15, result&^3)
		} else {
			c.Regs.Set(rd, result)
		}
	}

	if setFlags {
		c.Regs.SetNZ(result)
		c.Regs.SetC(carryOut)
		if op.isArithmetic() {
			c.Regs.SetV(overflowOut)
		}
	}

	return branched
}

// armSingleDataTransfer: LDR/STR byte or word, pre/post indexed, with
// optional writeback. The post-indexed "force user mode" bit (W=1 with
// P=0) is decoded but not implemented, per the open question in spec §9.
func (c *CPU) armSingleDataTransfer(opcode uint32) bool {
	immediate := !bit.IsSet(25, opcode)
	pre := bit.IsSet(24, opcode)
	up := bit.IsSet(23, opcode)
	byteAccess := bit.IsSet(22, opcode)
	writeback := bit.IsSet(21, opcode)
	load := bit.IsSet(20, opcode)
	rn := uint8((opcode >> 16) & 0xF)
	rd := uint8((opcode >> 12) & 0xF)

	var offset uint32
	if immediate {
		offset = opcode & 0xFFF
	} else {
		rm := uint8(opcode & 0xF)
		kind := ShiftType((opcode >> 5) & 0x3)
		amount := uint8((opcode >> 7) & 0x1F)
		offset, _ = shift(kind, c.Regs.Get(rm), amount, c.Regs.C(), true)
	}

	base := c.operand(rn, 0)
	address := base
	if pre {
		if up {
			address = base + offset
		} else {
			address = base - offset
		}
	}

	branched := false
	if load {
		var value uint32
		if byteAccess {
			value = uint32(c.read8(address, NonSequential))
		} else {
			word := c.read32(address, NonSequential)
			value = bit.RotateRight32(word, uint8((address&3)*8))
		}
		c.internal(1)
		if rd == 15 {
			c.Regs.Set(15, value&^3)
			branched = true
		} else {
			c.Regs.Set(rd, value)
		}
	} else {
		value := c.operand(rd, 4)
		if byteAccess {
			c.write8(address, NonSequential, uint8(value))
		} else {
			c.write32(address, NonSequential, value)
		}
	}

	if !pre {
		var final uint32
		if up {
			final = base + offset
		} else {
			final = base - offset
		}
		c.Regs.Set(rn, final)
	} else if writeback {
		c.Regs.Set(rn, address)
	}

	return branched
}

// armBlockDataTransfer: LDM/STM of the 16 logical registers in ascending
// register-number order, four addressing modes, S-bit user-bank
// behavior, and the empty-list special case.
func (c *CPU) armBlockDataTransfer(opcode uint32) bool {
	pre := bit.IsSet(24, opcode)
	up := bit.IsSet(23, opcode)
	sBit := bit.IsSet(22, opcode)
	writeback := bit.IsSet(21, opcode)
	load := bit.IsSet(20, opcode)
	rn := uint8((opcode >> 16) & 0xF)
	list := opcode & 0xFFFF

	base := c.Regs.Get(rn)
	pcInList := list&(1<<15) != 0
	useUserBank := sBit && !(load && pcInList)

	var regs []uint8
	for i := uint8(0); i < 16; i++ {
		if list&(1<<i) != 0 {
			regs = append(regs, i)
		}
	}

	count := len(regs)
	if count == 0 {
		count = 16 // empty list transfers PC alone; the base moves by 0x40
	}

	// Transfers always proceed low-to-high address order regardless of
	// mode; only the placement of the lowest address relative to the
	// base, and the writeback value, depend on up/pre (GBATEK IA/IB/DA/DB).
	var lowAddr, final uint32
	if up {
		final = base + uint32(count)*4
		if pre {
			lowAddr = base + 4
		} else {
			lowAddr = base
		}
	} else {
		final = base - uint32(count)*4
		if pre {
			lowAddr = base - uint32(count)*4
		} else {
			lowAddr = base - uint32(count)*4 + 4
		}
	}

	branched := false
	access := NonSequential

	doTransferAt := func(address uint32, reg uint8) {
		if load {
			value := c.read32(address, access)
			if reg == 15 {
				c.Regs.Set(15, value&^3)
				branched = true
			} else if useUserBank {
				c.Regs.SetUser(reg, value)
			} else {
				c.Regs.Set(reg, value)
			}
		} else {
			var value uint32
			if useUserBank {
				value = c.Regs.GetUser(reg)
			} else if reg == 15 {
				value = c.operand(15, 4)
			} else {
				value = c.Regs.Get(reg)
			}
			c.write32(address, access, value)
		}
		access = Sequential
	}

	if len(regs) == 0 {
		doTransferAt(lowAddr, 15)
	} else {
		cur := lowAddr
		for _, reg := range regs {
			doTransferAt(cur, reg)
			cur += 4
		}
	}

	if writeback {
		if !(load && list&(1<<rn) != 0) {
			c.Regs.Set(rn, final)
		}
	}

	if load && pcInList && sBit && c.Regs.HasSPSR() {
		c.Regs.SetCPSR(c.Regs.SPSR())
	}

	return branched
}

// armBranch: B/BL. Sign-extended 24-bit offset shifted left 2, added to
// the visible PC (instrAddr+8); BL additionally writes the return
// address (instrAddr+4) to LR.
func (c *CPU) armBranch(opcode uint32) bool {
	link := bit.IsSet(24, opcode)
	offset := bit.SignExtend(opcode&0xFF_FFFF, 24) << 2
	base := c.Regs.Get(15)
	if link {
		c.Regs.Set(14, base-4)
	}
	c.Regs.Set(15, uint32(int64(base)+int64(offset)))
	return true
}
