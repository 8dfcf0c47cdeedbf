package dma

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shelvric/goba/goba/addr"
	"github.com/shelvric/goba/goba/cpu"
)

type fakeBus struct {
	mem       [1 << 20]byte
	requested []addr.Interrupt
}

func (b *fakeBus) Read8(a uint32, k cpu.AccessKind) uint8 { return b.mem[a&0xFFFFF] }
func (b *fakeBus) Read16(a uint32, k cpu.AccessKind) uint16 {
	a &= 0xFFFFF
	return uint16(b.mem[a]) | uint16(b.mem[a+1])<<8
}
func (b *fakeBus) Read32(a uint32, k cpu.AccessKind) uint32 {
	a &= 0xFFFFF
	return uint32(b.mem[a]) | uint32(b.mem[a+1])<<8 | uint32(b.mem[a+2])<<16 | uint32(b.mem[a+3])<<24
}
func (b *fakeBus) Write8(a uint32, k cpu.AccessKind, v uint8) { b.mem[a&0xFFFFF] = v }
func (b *fakeBus) Write16(a uint32, k cpu.AccessKind, v uint16) {
	a &= 0xFFFFF
	b.mem[a], b.mem[a+1] = byte(v), byte(v>>8)
}
func (b *fakeBus) Write32(a uint32, k cpu.AccessKind, v uint32) {
	a &= 0xFFFFF
	b.mem[a], b.mem[a+1], b.mem[a+2], b.mem[a+3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}
func (b *fakeBus) Internal(cycles int) {}
func (b *fakeBus) RequestInterrupt(source addr.Interrupt) {
	b.requested = append(b.requested, source)
}

func TestImmediateTransferCopiesWords(t *testing.T) {
	bus := &fakeBus{}
	bus.Write32(0x1000, cpu.NonSequential, 0xDEADBEEF)
	c := New(bus, nil)

	c.WriteIO(addr.DMA0SAD, 0x1000)
	c.WriteIO(addr.DMA0SAD+2, 0)
	c.WriteIO(addr.DMA0SAD+4, 0x2000)
	c.WriteIO(addr.DMA0SAD+6, 0)
	c.WriteIO(addr.DMA0SAD+8, 1)     // count = 1
	c.WriteIO(addr.DMA0SAD+10, 0x8400) // enable, 32-bit, immediate trigger

	assert.True(t, c.Run())
	assert.Equal(t, uint32(0xDEADBEEF), bus.Read32(0x2000, cpu.NonSequential))
	assert.False(t, c.ch[0].enabled, "non-repeat channel disables itself after transfer")
}

func TestEnableEdgeLatchesRegisters(t *testing.T) {
	bus := &fakeBus{}
	c := New(bus, nil)

	c.WriteIO(addr.DMA1SAD, 0x3000)
	c.WriteIO(addr.DMA1SAD+4, 0x4000)
	c.WriteIO(addr.DMA1SAD+8, 4)
	c.WriteIO(addr.DMA1SAD+10, 0x8000) // enable, vblank not set -> immediate

	assert.Equal(t, uint32(0x3000), c.ch[1].srcLatch)
	assert.Equal(t, uint32(0x4000), c.ch[1].dstLatch)
	assert.Equal(t, uint32(4), c.ch[1].countLatch)

	// Rewriting SAD before the transfer runs must not affect the latch.
	c.WriteIO(addr.DMA1SAD, 0x9000)
	assert.Equal(t, uint32(0x3000), c.ch[1].srcLatch)
}

func TestRepeatChannelRelatchesCountOnly(t *testing.T) {
	bus := &fakeBus{}
	c := New(bus, nil)

	c.WriteIO(addr.DMA2SAD, 0x1000)
	c.WriteIO(addr.DMA2SAD+4, 0x2000)
	c.WriteIO(addr.DMA2SAD+8, 2)
	c.WriteIO(addr.DMA2SAD+10, 0x0300|0x8000|0x1000) // repeat, vblank trigger, enable

	c.OnVBlank()
	assert.True(t, c.Run())
	assert.True(t, c.ch[2].enabled, "repeat channel stays enabled")
	assert.Equal(t, uint32(2), c.ch[2].countLatch)
}

func TestPriorityOrderFavorsLowerChannelIndex(t *testing.T) {
	bus := &fakeBus{}
	c := New(bus, nil)

	c.WriteIO(addr.DMA1SAD+8, 1)
	c.WriteIO(addr.DMA1SAD+10, 0x8000)
	c.WriteIO(addr.DMA0SAD+8, 1)
	c.WriteIO(addr.DMA0SAD+10, 0x8000)

	c.Run()
	assert.False(t, c.ch[0].ready)
	assert.True(t, c.ch[1].ready, "channel 1 should still be waiting behind channel 0's priority")
}
