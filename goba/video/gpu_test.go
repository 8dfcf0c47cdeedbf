package video

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shelvric/goba/goba/addr"
)

type fakeIRQ struct{ requested []addr.Interrupt }

func (f *fakeIRQ) RequestInterrupt(source addr.Interrupt) {
	f.requested = append(f.requested, source)
}

type fakeDMA struct{ vblanks, hblanks int }

func (f *fakeDMA) OnVBlank() { f.vblanks++ }
func (f *fakeDMA) OnHBlank() { f.hblanks++ }

func newTestGPU() (*GPU, *fakeIRQ, *fakeDMA) {
	irq := &fakeIRQ{}
	dma := &fakeDMA{}
	g := New(make([]byte, 0x18000), make([]byte, 0x400), make([]byte, 0x400), irq, dma)
	return g, irq, dma
}

func TestHBlankFlagSetsAtDocumentedDot(t *testing.T) {
	g, _, dma := newTestGPU()
	g.WriteIO(addr.DISPSTAT, 0x0010) // h-blank IRQ enable

	g.Tick((hblankStartDot - 1) * cyclesPerDot)
	assert.Equal(t, uint16(0), g.ReadIO(addr.DISPSTAT)&0x0002)

	g.Tick(cyclesPerDot)
	assert.NotEqual(t, uint16(0), g.ReadIO(addr.DISPSTAT)&0x0002)
	assert.Equal(t, 1, dma.hblanks)
}

func TestVBlankFiresAtLine160(t *testing.T) {
	g, irq, dma := newTestGPU()
	g.WriteIO(addr.DISPSTAT, 0x0008) // v-blank IRQ enable

	g.Tick(dotsPerLine * cyclesPerDot * visibleLines)

	assert.Equal(t, uint16(visibleLines), g.ReadIO(addr.VCOUNT))
	assert.Contains(t, irq.requested, addr.IRQVBlank)
	assert.Equal(t, 1, dma.vblanks)
	assert.True(t, g.FrameReady())
	assert.False(t, g.FrameReady(), "FrameReady clears itself once read")
}

func TestVCountMatchFiresInterrupt(t *testing.T) {
	g, irq, _ := newTestGPU()
	g.WriteIO(addr.DISPSTAT, 0x0020|(50<<8)) // v-count IRQ enable, compare=50

	g.Tick(dotsPerLine * cyclesPerDot * 50)

	assert.Contains(t, irq.requested, addr.IRQVCount)
	assert.NotEqual(t, uint16(0), g.ReadIO(addr.DISPSTAT)&0x0004)
}

func TestMode3BitmapReadsVRAMDirectly(t *testing.T) {
	g, _, _ := newTestGPU()
	g.WriteIO(addr.DISPCNT, 3)
	g.vram[0] = 0xFF
	g.vram[1] = 0x7F // white, BGR555

	var out [FramebufferWidth]Color15
	g.renderBitmapMode3(0, out[:])
	assert.Equal(t, Color15(0x7FFF), out[0])
}

func TestAffineReferencePointsLatchOnceAtFrameStart(t *testing.T) {
	g, _, _ := newTestGPU()
	g.regs[addr.BG2X/2] = 0x0100
	g.regs[addr.BG2X/2+1] = 0
	g.latchAffineReferencePoints()
	assert.Equal(t, int32(0x0100), g.refX[0])

	g.regs[int(addr.BG2PB)/2] = 0x0010 // dmx per-scanline step
	g.advanceAffineReferencePoints()
	assert.Equal(t, int32(0x0110), g.refX[0])
}
