package video

import (
	"github.com/shelvric/goba/goba/addr"
)

const (
	dotsPerLine    = 308
	linesPerFrame  = 228
	visibleLines   = 160
	hblankStartDot = 250 // spec §9 open question: follows original_source's literal value
	cyclesPerDot   = 4
)

// regCount covers the documented video I/O window, DISPCNT (0x000)
// through BLDY (0x054), in 16-bit slots.
const regCount = (int(addr.BLDY) + 2) / 2

// IRQRequester is the minimal surface the GPU needs from the interrupt
// controller.
type IRQRequester interface {
	RequestInterrupt(source addr.Interrupt)
}

// DMANotifier lets the GPU arm v-blank/h-blank-triggered DMA channels
// without importing package dma (bus wires the two together).
type DMANotifier interface {
	OnVBlank()
	OnHBlank()
}

// GPU is the pixel pipeline: register file, scanline/dot timing, and
// the renderer. Grounded on jeebie/video.GPU's role as a bus.Peripheral
// that owns both register storage and the framebuffer.
type GPU struct {
	regs [regCount]uint16

	vram, oam, palette []byte

	fb         *FrameBuffer
	backBuffer *FrameBuffer

	dot  int
	line int

	accumCycles int

	refX, refY       [2]int32 // latched affine reference points, bg2=0, bg3=1
	spriteBuf        SpritePriorityBuffer
	frameReady       bool

	irq IRQRequester
	dma DMANotifier
}

// New returns a GPU reading/writing the given VRAM/OAM/palette byte
// slices directly (aliased to the bus's storage, bypassing wait-state
// charging the way real PPU hardware reads VRAM out-of-band).
func New(vram, oam, palette []byte, irq IRQRequester, dma DMANotifier) *GPU {
	return &GPU{
		vram:       vram,
		oam:        oam,
		palette:    palette,
		fb:         NewFrameBuffer(),
		backBuffer: NewFrameBuffer(),
		irq:        irq,
		dma:        dma,
	}
}

func (g *GPU) InRange(offset uint16) bool { return offset < addr.BLDY+2 }

func (g *GPU) ReadIO(offset uint16) uint16 {
	switch offset {
	case addr.VCOUNT:
		return uint16(g.line)
	default:
		return g.regs[offset/2]
	}
}

func (g *GPU) WriteIO(offset uint16, value uint16) {
	switch offset {
	case addr.VCOUNT:
		return // read-only
	case addr.DISPSTAT:
		// Low 3 bits are status (read-only from the CPU's perspective);
		// only the IRQ-enable and v-count-compare fields are writable.
		g.regs[offset/2] = g.regs[offset/2]&0x0007 | value&0xFFF8
	default:
		g.regs[offset/2] = value
	}
}

func (g *GPU) dispcnt() uint16  { return g.regs[addr.DISPCNT/2] }
func (g *GPU) dispstat() uint16 { return g.regs[addr.DISPSTAT/2] }
func (g *GPU) setDispstat(bit uint16, set bool) {
	if set {
		g.regs[addr.DISPSTAT/2] |= bit
	} else {
		g.regs[addr.DISPSTAT/2] &^= bit
	}
}

func (g *GPU) bgControl(idx int) uint16 { return g.regs[(int(addr.BG0CNT)+idx*2)/2] }
func (g *GPU) bgScroll(idx int) (h, v uint16) {
	base := int(addr.BG0HOFS) + idx*4
	return g.regs[base/2], g.regs[(base+2)/2]
}

// affineParams returns the four signed 8.8 fixed-point parameters
// (dx, dmx, dy, dmy) for affine background idx (0 => BG2, 1 => BG3).
func (g *GPU) affineParams(idx int) (dx, dmx, dy, dmy int32) {
	base := int(addr.BG2PA) + idx*0x10
	dx = int32(int16(g.regs[base/2]))
	dmx = int32(int16(g.regs[(base+2)/2]))
	dy = int32(int16(g.regs[(base+4)/2]))
	dmy = int32(int16(g.regs[(base+6)/2]))
	return
}

func (g *GPU) refPoint32(reg uint16) int32 {
	lo := uint32(g.regs[reg/2])
	hi := uint32(g.regs[reg/2+1])
	v := lo | hi<<16
	// sign-extend from bit 27 (19.8 fixed point = 28 significant bits).
	v <<= 4
	return int32(v) >> 4
}

// Tick advances the pixel pipeline by the given number of CPU cycles,
// rendering scanlines and updating status flags at their documented
// dot offsets.
func (g *GPU) Tick(cycles int) {
	g.accumCycles += cycles
	for g.accumCycles >= cyclesPerDot {
		g.accumCycles -= cyclesPerDot
		g.advanceDot()
	}
}

func (g *GPU) advanceDot() {
	if g.dot == 0 && g.line < visibleLines {
		g.renderScanline(g.line)
	}

	g.dot++

	if g.dot == hblankStartDot {
		g.setDispstat(0x0002, true)
		if g.dispstat()&0x0010 != 0 {
			g.irq.RequestInterrupt(addr.IRQHBlank)
		}
		if g.line < visibleLines {
			g.dma.OnHBlank()
		}
	}

	if g.dot >= dotsPerLine {
		g.dot = 0
		g.setDispstat(0x0002, false)
		g.line++

		if g.line == visibleLines {
			g.setDispstat(0x0001, true)
			if g.dispstat()&0x0008 != 0 {
				g.irq.RequestInterrupt(addr.IRQVBlank)
			}
			g.dma.OnVBlank()
			g.backBuffer, g.fb = g.fb, g.backBuffer
			g.frameReady = true
		}
		if g.line >= linesPerFrame {
			g.line = 0
			g.setDispstat(0x0001, false)
			g.latchAffineReferencePoints()
		}

		g.checkVCounterMatch()
	}
}

func (g *GPU) latchAffineReferencePoints() {
	g.refX[0] = g.refPoint32(addr.BG2X)
	g.refY[0] = g.refPoint32(addr.BG2Y)
	g.refX[1] = g.refPoint32(addr.BG3X)
	g.refY[1] = g.refPoint32(addr.BG3Y)
}

func (g *GPU) checkVCounterMatch() {
	compare := (g.dispstat() >> 8) & 0xFF
	match := uint16(g.line) == compare
	g.setDispstat(0x0004, match)
	if match && g.dispstat()&0x0020 != 0 {
		g.irq.RequestInterrupt(addr.IRQVCount)
	}
}

// FrameReady reports (and clears) whether a new frame has been
// completed since the last call, letting the core loop know when to
// hand the buffer off to the backend.
func (g *GPU) FrameReady() bool {
	r := g.frameReady
	g.frameReady = false
	return r
}

// CurrentFrame returns the most recently completed frame buffer.
func (g *GPU) CurrentFrame() *FrameBuffer { return g.backBuffer }

// Snapshot is the gob-serializable image of register and timing state;
// VRAM/OAM/palette are snapshotted separately since the GPU only
// aliases the bus's backing arrays.
type Snapshot struct {
	Regs        [regCount]uint16
	Dot, Line   int
	AccumCycles int
	RefX, RefY  [2]int32
	FrameReady  bool
}

func (g *GPU) Snapshot() Snapshot {
	return Snapshot{Regs: g.regs, Dot: g.dot, Line: g.line, AccumCycles: g.accumCycles,
		RefX: g.refX, RefY: g.refY, FrameReady: g.frameReady}
}

func (g *GPU) Restore(s Snapshot) {
	g.regs, g.dot, g.line, g.accumCycles = s.Regs, s.Dot, s.Line, s.AccumCycles
	g.refX, g.refY, g.frameReady = s.RefX, s.RefY, s.FrameReady
}
