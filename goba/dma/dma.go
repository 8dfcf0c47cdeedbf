// Package dma implements the four-channel DMA controller, grounded on
// the latch-on-enable-edge and fixed-priority rules of spec §4.6. It
// has no teacher analogue (the Game Boy has no DMA controller beyond
// OAM DMA); the channel/control-word shape and the special audio-FIFO
// and video-capture trigger modes are grounded on
// original_source/core/src/io/dma.rs.
package dma

import (
	"log/slog"

	"github.com/shelvric/goba/goba/addr"
	"github.com/shelvric/goba/goba/cpu"
)

const channelCount = 4

// addressPolicy mirrors the 2-bit destination/source control fields of
// DMAxCNT_H.
type addressPolicy uint8

const (
	policyIncrement addressPolicy = iota
	policyDecrement
	policyFixed
	policyIncrementReload
)

// trigger mirrors the 2-bit start-timing field of DMAxCNT_H.
type trigger uint8

const (
	triggerImmediate trigger = iota
	triggerVBlank
	triggerHBlank
	triggerSpecial
)

type channel struct {
	sad, dad   uint32
	cntL       uint16
	cntH       uint16
	srcLatch   uint32
	dstLatch   uint32
	countLatch uint32
	enabled    bool
	ready      bool
}

func (c *channel) srcPolicy() addressPolicy { return addressPolicy((c.cntH >> 7) & 0x3) }
func (c *channel) dstPolicy() addressPolicy { return addressPolicy((c.cntH >> 5) & 0x3) }
func (c *channel) repeat() bool             { return c.cntH&0x0200 != 0 }
func (c *channel) wide() bool               { return c.cntH&0x0400 != 0 }
func (c *channel) irqEnable() bool          { return c.cntH&0x4000 != 0 }
func (c *channel) trig() trigger            { return trigger((c.cntH >> 12) & 0x3) }

// Controller owns the four DMA channels and is both a bus.Peripheral
// (for register I/O) and the active party that performs transfers
// against the bus, per spec §4.6's "controller transfers its latched
// count" wording.
type Controller struct {
	bus  cpu.Bus
	ch   [channelCount]channel
	log  *slog.Logger
	masks struct {
		src, dst [channelCount]uint32
		count    [channelCount]uint32
	}
}

// New returns a controller wired to bus for transfer accesses. The
// source/destination masks follow real hardware: channel 0 cannot
// source from cart ROM, the others can; every channel's destination
// is limited to internal memory except channel 3's.
func New(bus cpu.Bus, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{bus: bus, log: log}
	c.masks.src = [channelCount]uint32{0x07FF_FFFF, 0x0FFF_FFFF, 0x0FFF_FFFF, 0x0FFF_FFFF}
	c.masks.dst = [channelCount]uint32{0x07FF_FFFF, 0x07FF_FFFF, 0x07FF_FFFF, 0x0FFF_FFFF}
	c.masks.count = [channelCount]uint32{0x3FFF, 0x3FFF, 0x3FFF, 0xFFFF}
	return c
}

func (c *Controller) InRange(offset uint16) bool {
	return offset >= addr.DMA0SAD && offset < addr.DMA3SAD+12
}

func chanAndReg(offset uint16) (idx int, reg uint16) {
	rel := offset - addr.DMA0SAD
	return int(rel / 12), rel % 12
}

func (c *Controller) ReadIO(offset uint16) uint16 {
	idx, reg := chanAndReg(offset)
	ch := &c.ch[idx]
	switch reg {
	case 8:
		return ch.cntL
	case 10:
		return ch.cntH
	default:
		// SAD/DAD are write-only on real hardware.
		return 0
	}
}

func (c *Controller) WriteIO(offset uint16, value uint16) {
	idx, reg := chanAndReg(offset)
	ch := &c.ch[idx]
	switch reg {
	case 0:
		ch.sad = ch.sad&0xFFFF_0000 | uint32(value)
	case 2:
		ch.sad = ch.sad&0x0000_FFFF | uint32(value)<<16
	case 4:
		ch.dad = ch.dad&0xFFFF_0000 | uint32(value)
	case 6:
		ch.dad = ch.dad&0x0000_FFFF | uint32(value)<<16
	case 8:
		ch.cntL = value
	case 10:
		c.writeControl(idx, value)
	}
}

func (c *Controller) writeControl(idx int, value uint16) {
	ch := &c.ch[idx]
	wasEnabled := ch.enabled
	ch.cntH = value
	ch.enabled = value&0x8000 != 0

	if ch.enabled && !wasEnabled {
		c.latch(idx)
		if ch.trig() == triggerImmediate {
			ch.ready = true
		}
	}
}

func (c *Controller) latch(idx int) {
	ch := &c.ch[idx]
	ch.srcLatch = ch.sad & c.masks.src[idx]
	ch.dstLatch = ch.dad & c.masks.dst[idx]
	ch.countLatch = uint32(ch.cntL) & c.masks.count[idx]
	if ch.countLatch == 0 {
		ch.countLatch = c.masks.count[idx] + 1
	}
}

// OnVBlank arms every enabled channel whose trigger is v-blank, called
// once at the start of v-blank (dot 0 of line 160).
func (c *Controller) OnVBlank() { c.armTrigger(triggerVBlank) }

// OnHBlank arms every enabled channel whose trigger is h-blank, called
// once per scanline at h-blank start.
func (c *Controller) OnHBlank() { c.armTrigger(triggerHBlank) }

func (c *Controller) armTrigger(t trigger) {
	for i := range c.ch {
		if c.ch[i].enabled && c.ch[i].trig() == t {
			c.ch[i].ready = true
		}
	}
}

// RequestFIFORefill arms channel 1 or 2 if it is enabled with a special
// trigger, called by the audio mixer when a DMA sound FIFO has drained
// to half full or less.
func (c *Controller) RequestFIFORefill(channel int) {
	if channel != 1 && channel != 2 {
		return
	}
	ch := &c.ch[channel]
	if ch.enabled && ch.trig() == triggerSpecial {
		ch.ready = true
	}
}

// Run performs the highest-priority ready channel's entire transfer
// and returns true if one ran. Called between CPU instructions, per
// spec §4.6 and the pre-emption model in §9: the transfer is never
// interrupted once started.
func (c *Controller) Run() bool {
	for i := range c.ch {
		if c.ch[i].ready {
			c.run(i)
			return true
		}
	}
	return false
}

func (c *Controller) run(idx int) {
	ch := &c.ch[idx]
	ch.ready = false

	switch {
	case idx == 3 && ch.trig() == triggerSpecial:
		c.log.Warn("dma: video capture (channel 3 special) not implemented, treated as no-op")
	case (idx == 1 || idx == 2) && ch.trig() == triggerSpecial:
		c.runFIFORefill(idx)
	default:
		c.runNormal(idx)
	}

	c.finish(idx)
}

// runFIFORefill transfers exactly four 32-bit words to the fixed FIFO
// address regardless of the latched count, per spec §4.6.
func (c *Controller) runFIFORefill(idx int) {
	ch := &c.ch[idx]
	dst := uint32(addr.IORegisters) + uint32(addr.FIFO_A)
	if idx == 2 {
		dst = uint32(addr.IORegisters) + uint32(addr.FIFO_B)
	}
	kind := cpu.NonSequential
	for i := 0; i < 4; i++ {
		v := c.bus.Read32(ch.srcLatch, kind)
		c.bus.Write32(dst, kind, v)
		ch.srcLatch += 4
		kind = cpu.Sequential
	}
}

func (c *Controller) runNormal(idx int) {
	ch := &c.ch[idx]
	width := uint32(2)
	if ch.wide() {
		width = 4
	}
	srcStep := stepFor(ch.srcPolicy(), width)
	dstStep := stepFor(ch.dstPolicy(), width)

	kind := cpu.NonSequential
	for i := uint32(0); i < ch.countLatch; i++ {
		if ch.wide() {
			v := c.bus.Read32(ch.srcLatch, kind)
			c.bus.Write32(ch.dstLatch, kind, v)
		} else {
			v := c.bus.Read16(ch.srcLatch, kind)
			c.bus.Write16(ch.dstLatch, kind, v)
		}
		ch.srcLatch = uint32(int64(ch.srcLatch) + int64(srcStep))
		ch.dstLatch = uint32(int64(ch.dstLatch) + int64(dstStep))
		kind = cpu.Sequential
	}
}

func stepFor(p addressPolicy, width uint32) int32 {
	switch p {
	case policyDecrement:
		return -int32(width)
	case policyFixed:
		return 0
	default: // increment, increment-reload
		return int32(width)
	}
}

func (c *Controller) finish(idx int) {
	ch := &c.ch[idx]
	c.bus.Internal(2)
	if ch.irqEnable() {
		c.bus.RequestInterrupt(addr.IRQDMA0 + addr.Interrupt(idx))
	}

	if ch.repeat() && ch.trig() != triggerImmediate {
		ch.countLatch = uint32(ch.cntL) & c.masks.count[idx]
		if ch.countLatch == 0 {
			ch.countLatch = c.masks.count[idx] + 1
		}
		if ch.dstPolicy() == policyIncrementReload {
			ch.dstLatch = ch.dad & c.masks.dst[idx]
		}
		return
	}

	ch.enabled = false
	ch.cntH &^= 0x8000
}

// ChannelSnapshot is the gob-serializable image of one channel's
// registers and latched transfer state.
type ChannelSnapshot struct {
	SAD, DAD                         uint32
	CntL, CntH                       uint16
	SrcLatch, DstLatch, CountLatch   uint32
	Enabled, Ready                   bool
}

// Snapshot captures all four channels, used by package core's
// save-state support.
func (c *Controller) Snapshot() [channelCount]ChannelSnapshot {
	var out [channelCount]ChannelSnapshot
	for i, ch := range c.ch {
		out[i] = ChannelSnapshot{
			SAD: ch.sad, DAD: ch.dad, CntL: ch.cntL, CntH: ch.cntH,
			SrcLatch: ch.srcLatch, DstLatch: ch.dstLatch, CountLatch: ch.countLatch,
			Enabled: ch.enabled, Ready: ch.ready,
		}
	}
	return out
}

// Restore installs a previously captured snapshot verbatim.
func (c *Controller) Restore(s [channelCount]ChannelSnapshot) {
	for i, cs := range s {
		c.ch[i] = channel{
			sad: cs.SAD, dad: cs.DAD, cntL: cs.CntL, cntH: cs.CntH,
			srcLatch: cs.SrcLatch, dstLatch: cs.DstLatch, countLatch: cs.CountLatch,
			enabled: cs.Enabled, ready: cs.Ready,
		}
	}
}
