package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shelvric/goba/goba/addr"
	"github.com/shelvric/goba/goba/irq"
)

// flatBus is a trivial linear-memory Bus used to exercise CPU semantics
// in isolation, independent of the real wait-state engine.
type flatBus struct {
	mem       [1 << 20]byte
	requested []addr.Interrupt
}

func newFlatBus() *flatBus { return &flatBus{} }

func (b *flatBus) Read8(address uint32, kind AccessKind) uint8 { return b.mem[address&0xFFFFF] }
func (b *flatBus) Read16(address uint32, kind AccessKind) uint16 {
	a := address & 0xFFFFF
	return uint16(b.mem[a]) | uint16(b.mem[a+1])<<8
}
func (b *flatBus) Read32(address uint32, kind AccessKind) uint32 {
	a := address & 0xFFFFF
	return uint32(b.mem[a]) | uint32(b.mem[a+1])<<8 | uint32(b.mem[a+2])<<16 | uint32(b.mem[a+3])<<24
}
func (b *flatBus) Write8(address uint32, kind AccessKind, v uint8) { b.mem[address&0xFFFFF] = v }
func (b *flatBus) Write16(address uint32, kind AccessKind, v uint16) {
	a := address & 0xFFFFF
	b.mem[a] = byte(v)
	b.mem[a+1] = byte(v >> 8)
}
func (b *flatBus) Write32(address uint32, kind AccessKind, v uint32) {
	a := address & 0xFFFFF
	b.mem[a] = byte(v)
	b.mem[a+1] = byte(v >> 8)
	b.mem[a+2] = byte(v >> 16)
	b.mem[a+3] = byte(v >> 24)
}
func (b *flatBus) Internal(cycles int) {}
func (b *flatBus) RequestInterrupt(source addr.Interrupt) {
	b.requested = append(b.requested, source)
}

func (b *flatBus) putARM(address uint32, opcode uint32) {
	b.Write32(address, NonSequential, opcode)
}

func (b *flatBus) putThumb(address uint32, opcode uint16) {
	b.Write16(address, NonSequential, opcode)
}

func newTestCPU() (*CPU, *flatBus) {
	bus := newFlatBus()
	c := New(bus, irq.New())
	c.ResetTo(0)
	return c, bus
}

func TestStepARM_DataProcessingAddImmediate(t *testing.T) {
	c, bus := newTestCPU()
	c.Regs.Set(0, 5)
	// ADD r1, r0, #10 (AL condition, immediate operand 2)
	bus.putARM(0, 0xE280_100A)

	c.Step()

	assert.Equal(t, uint32(15), c.Regs.Get(1))
	assert.Equal(t, uint32(4), c.GetPC())
}

func TestStepARM_CmpImmediateSetsFlags(t *testing.T) {
	c, bus := newTestCPU()
	c.Regs.Set(0, 5)
	// CMP r0, #5 (AL condition, S implied by opcode for CMP)
	bus.putARM(0, 0xE350_0005)

	c.Step()

	assert.True(t, c.Regs.Z())
	assert.True(t, c.Regs.C())
}

func TestStepARM_BranchExchangeToThumb(t *testing.T) {
	c, bus := newTestCPU()
	c.Regs.Set(2, 0x1001) // odd target selects Thumb mode
	// BX r2
	bus.putARM(0, 0xE12F_FF12)

	c.Step()

	assert.True(t, c.Regs.Thumb())
	assert.Equal(t, uint32(0x1000), c.GetPC())
}

func TestStepARM_BranchLinkSetsReturnAddress(t *testing.T) {
	c, bus := newTestCPU()
	// BL #0 at address 0: offset field is 0, so target is PC(=8) + 0.
	bus.putARM(0, 0xEB00_0000)

	c.Step()

	assert.Equal(t, uint32(8), c.GetPC())
	assert.Equal(t, uint32(4), c.Regs.Get(14))
}

func TestStepARM_LoadByteWithPreIndexWriteback(t *testing.T) {
	c, bus := newTestCPU()
	bus.Write8(0x1004, NonSequential, 0x7F)
	c.Regs.Set(0, 0x1000)
	// LDRB r1, [r0, #4]!
	bus.putARM(0, 0xE5F0_1004)

	c.Step()

	assert.Equal(t, uint32(0x7F), c.Regs.Get(1))
	assert.Equal(t, uint32(0x1004), c.Regs.Get(0))
}

func TestStepARM_MSRFlagsOnlyInUserMode(t *testing.T) {
	c, bus := newTestCPU()
	c.Regs.SetMode(ModeUser)
	c.Regs.Set(0, 0xF000_0000) // N,Z,C,V all set in the flags byte
	// MSR CPSR_flg, r0
	bus.putARM(0, 0xE128_F000)

	c.Step()

	assert.True(t, c.Regs.N())
	assert.True(t, c.Regs.Z())
	assert.True(t, c.Regs.C())
	assert.True(t, c.Regs.V())
	assert.Equal(t, ModeUser, c.Regs.Mode(), "User mode MSR must never alter the mode field")
}

func TestStepThumb_MoveImmediateAndAdd(t *testing.T) {
	c, bus := newTestCPU()
	c.Regs.SetThumb(true)
	c.ResetTo(0)
	bus.putThumb(0, 0x2005) // MOV r0, #5
	bus.putThumb(2, 0x1C40) // ADD r0, r0, #1 (format2, imm3=1, rs=r0, rd=r0)

	c.Step()
	assert.Equal(t, uint32(5), c.Regs.Get(0))

	c.Step()
	assert.Equal(t, uint32(6), c.Regs.Get(0))
}

func TestConditionCodes_EqualAndNotEqual(t *testing.T) {
	c, _ := newTestCPU()
	c.Regs.SetZ(true)
	assert.True(t, c.evalCondition(0x0))
	assert.False(t, c.evalCondition(0x1))
	c.Regs.SetZ(false)
	assert.False(t, c.evalCondition(0x0))
	assert.True(t, c.evalCondition(0x1))
}

func TestIRQException_EntersIRQModeAndSavesReturnAddress(t *testing.T) {
	c, bus := newTestCPU()
	c.ResetTo(0x100)
	bus.putARM(0x100, 0xE1A0_0000) // MOV r0, r0 (no-op)

	controller := irq.New()
	c.irqC = controller
	controller.WriteIE(1 << 0)
	controller.WriteIME(1)
	controller.Request(addr.IRQVBlank)

	c.CheckInterrupts()

	assert.Equal(t, ModeIRQ, c.Regs.Mode())
	assert.Equal(t, uint32(0x18), c.GetPC())
	assert.Equal(t, uint32(0x104), c.Regs.Get(14))
	assert.True(t, c.Regs.IRQDisabled())
}
