// Package audio implements the mixer: four PSG channels (2 square, 1
// wave, 1 noise) carried over almost unchanged from the DMG APU this
// hardware is descended from, plus the two DMA-fed digital FIFOs this
// platform adds. Grounded on jeebie/audio/apu.go's tick/frame-sequencer
// structure and provider.go's host-facing interface, generalized from
// 8-bit split registers to this platform's 16-bit combined ones.
package audio

import (
	"github.com/shelvric/goba/goba/addr"
)

// cyclesPerStep is the frame-sequencer period: 512Hz at the 2^24 Hz
// system clock.
const cyclesPerStep = 1 << 24 / 512

const waveRAMSize = 16

// Provider is the host-facing surface, unchanged in shape from
// jeebie/audio.Provider.
type Provider interface {
	GetSamples(count int) []int16
	ToggleChannel(channel int)
	SoloChannel(channel int)
	GetChannelStatus() (ch1, ch2, ch3, ch4 bool)
}

var _ Provider = (*APU)(nil)

// DMARequester lets the two FIFO channels ask package dma to refill
// them, without APU importing dma.
type DMARequester interface {
	RequestFIFORefill(channel int)
}

type pulseChannel struct {
	enabled       bool
	left, right   bool
	duty          uint8
	length        uint16
	lengthEnable  bool
	volume        uint8
	envelopeUp    bool
	envelopePace  uint8
	envelopeCtr   uint8
	envelopeDone  bool
	period        uint16
	freqTimer     int
	dutyStep      uint8
	dacEnabled    bool
	muted         bool

	sweepPeriod, sweepStep uint8
	sweepDown              bool
	sweepEnabled           bool
	sweepTimer             uint8
	shadowFreq             uint16
	sweepNegUsed           bool
	hasSweep               bool
}

type waveChannel struct {
	enabled      bool
	left, right  bool
	length       uint16
	lengthEnable bool
	volumeShift  uint8
	period       uint16
	freqTimer    int
	waveIndex    uint8
	dacEnabled   bool
	muted        bool
	ram          [waveRAMSize]uint8
}

type noiseChannel struct {
	enabled      bool
	left, right  bool
	length       uint16
	lengthEnable bool
	volume       uint8
	envelopeUp   bool
	envelopePace uint8
	envelopeCtr  uint8
	envelopeDone bool
	shift        uint8
	use7bit      bool
	divider      uint8
	lfsr         uint16
	noiseTimer   int
	dacEnabled   bool
	muted        bool
}

type fifoChannel struct {
	samples  [32]int8
	head     int
	count    int
	current  int8
	volumeHalf bool // false=50%, true=100% per SOUNDCNT_H bit
	left, right bool
}

// APU owns the four PSG generators, the two FIFOs, register storage,
// and sample mixing/resampling to the host's output rate.
type APU struct {
	enabled bool

	sq1, sq2 pulseChannel
	wave     waveChannel
	noise    noiseChannel
	fifoA, fifoB fifoChannel

	vinLeft, vinRight bool
	volLeft, volRight uint8

	step   int
	cycles int

	mixLeftAcc, mixRightAcc int64
	mixAccumCycles          int
	pcmBuffer               []int16
	pcmCursor               int
	pcmCycleAcc             float64
	pcmCyclesPerSample      float64
	hostSampleRate          int

	regs [0x20]uint16 // SOUND1CNT_L..SOUNDBIAS, 16-bit slots

	dma DMARequester
}

func New(dma DMARequester) *APU {
	a := &APU{hostSampleRate: 44100, dma: dma}
	a.pcmCyclesPerSample = float64(1<<24) / float64(a.hostSampleRate)
	a.sq1.hasSweep = true
	return a
}

func (a *APU) InRange(offset uint16) bool {
	return offset >= addr.SOUND1CNT_L && offset <= addr.FIFO_B+3
}

func (a *APU) regIndex(offset uint16) int { return int(offset-addr.SOUND1CNT_L) / 2 }

func (a *APU) ReadIO(offset uint16) uint16 {
	switch {
	case offset >= addr.WaveRAM && offset < addr.WaveRAM+waveRAMSize:
		i := offset - addr.WaveRAM
		return uint16(a.wave.ram[i]) | uint16(a.wave.ram[i+1])<<8
	case offset == addr.SOUNDCNT_X:
		status := uint16(0x0070)
		if a.enabled {
			status |= 0x80
		}
		if a.sq1.enabled {
			status |= 0x1
		}
		if a.sq2.enabled {
			status |= 0x2
		}
		if a.wave.enabled {
			status |= 0x4
		}
		if a.noise.enabled {
			status |= 0x8
		}
		return status
	}
	if idx := a.regIndex(offset); idx >= 0 && idx < len(a.regs) {
		return a.regs[idx]
	}
	return 0
}

func (a *APU) WriteIO(offset uint16, value uint16) {
	switch {
	case offset >= addr.WaveRAM && offset < addr.WaveRAM+waveRAMSize:
		i := offset - addr.WaveRAM
		a.wave.ram[i] = byte(value)
		a.wave.ram[i+1] = byte(value >> 8)
		return
	case offset == addr.FIFO_A || offset == addr.FIFO_A+2:
		a.pushFIFO(&a.fifoA, value)
		return
	case offset == addr.FIFO_B || offset == addr.FIFO_B+2:
		a.pushFIFO(&a.fifoB, value)
		return
	case offset == addr.SOUNDCNT_X:
		wasEnabled := a.enabled
		a.enabled = value&0x80 != 0
		if wasEnabled && !a.enabled {
			a.powerOff()
		}
		return
	}

	if idx := a.regIndex(offset); idx >= 0 && idx < len(a.regs) {
		a.regs[idx] = value
	}
	a.mapRegistersToState(offset)
}

func (a *APU) powerOff() {
	for i := range a.regs {
		a.regs[i] = 0
	}
	a.sq1 = pulseChannel{hasSweep: true}
	a.sq2 = pulseChannel{}
	a.wave.enabled, a.wave.dacEnabled = false, false
	a.noise.enabled, a.noise.dacEnabled = false, false
}

func (a *APU) pushFIFO(f *fifoChannel, value uint16) {
	if f.count+2 > len(f.samples) {
		return
	}
	lo, hi := int8(value), int8(value>>8)
	f.samples[(f.head+f.count)%len(f.samples)] = lo
	f.samples[(f.head+f.count+1)%len(f.samples)] = hi
	f.count += 2
}

// OnTimerOverflow pops one sample from the FIFO clocked by the given
// timer index (0 or 1, selected by SOUNDCNT_H) and requests a DMA
// refill once the FIFO drops to half capacity.
func (a *APU) OnTimerOverflow(timerIdx int) {
	soundcntH := a.regs[a.regIndex(addr.SOUNDCNT_H)]
	for ch, f := range [2]*fifoChannel{&a.fifoA, &a.fifoB} {
		timerSel := int(soundcntH >> uint(10+ch*4) & 1)
		if timerSel != timerIdx {
			continue
		}
		if f.count > 0 {
			f.current = f.samples[f.head]
			f.head = (f.head + 1) % len(f.samples)
			f.count--
		}
		if f.count <= 16 && a.dma != nil {
			a.dma.RequestFIFORefill(ch + 1)
		}
	}
}

// PulseSnapshot, WaveSnapshot, NoiseSnapshot and FIFOSnapshot mirror
// the unexported channel structs field-for-field: gob only encodes
// exported fields, so save-state needs an exported copy of each.
type PulseSnapshot struct {
	Enabled, Left, Right                 bool
	Duty                                 uint8
	Length                               uint16
	LengthEnable                         bool
	Volume                               uint8
	EnvelopeUp                           bool
	EnvelopePace, EnvelopeCtr            uint8
	EnvelopeDone                         bool
	Period                               uint16
	FreqTimer                            int
	DutyStep                             uint8
	DACEnabled, Muted                    bool
	SweepPeriod, SweepStep               uint8
	SweepDown, SweepEnabled              bool
	SweepTimer                           uint8
	ShadowFreq                           uint16
	SweepNegUsed, HasSweep               bool
}

func snapshotPulse(p *pulseChannel) PulseSnapshot {
	return PulseSnapshot{
		Enabled: p.enabled, Left: p.left, Right: p.right, Duty: p.duty, Length: p.length,
		LengthEnable: p.lengthEnable, Volume: p.volume, EnvelopeUp: p.envelopeUp,
		EnvelopePace: p.envelopePace, EnvelopeCtr: p.envelopeCtr, EnvelopeDone: p.envelopeDone,
		Period: p.period, FreqTimer: p.freqTimer, DutyStep: p.dutyStep, DACEnabled: p.dacEnabled,
		Muted: p.muted, SweepPeriod: p.sweepPeriod, SweepStep: p.sweepStep, SweepDown: p.sweepDown,
		SweepEnabled: p.sweepEnabled, SweepTimer: p.sweepTimer, ShadowFreq: p.shadowFreq,
		SweepNegUsed: p.sweepNegUsed, HasSweep: p.hasSweep,
	}
}

func restorePulse(p *pulseChannel, s PulseSnapshot) {
	*p = pulseChannel{
		enabled: s.Enabled, left: s.Left, right: s.Right, duty: s.Duty, length: s.Length,
		lengthEnable: s.LengthEnable, volume: s.Volume, envelopeUp: s.EnvelopeUp,
		envelopePace: s.EnvelopePace, envelopeCtr: s.EnvelopeCtr, envelopeDone: s.EnvelopeDone,
		period: s.Period, freqTimer: s.FreqTimer, dutyStep: s.DutyStep, dacEnabled: s.DACEnabled,
		muted: s.Muted, sweepPeriod: s.SweepPeriod, sweepStep: s.SweepStep, sweepDown: s.SweepDown,
		sweepEnabled: s.SweepEnabled, sweepTimer: s.SweepTimer, shadowFreq: s.ShadowFreq,
		sweepNegUsed: s.SweepNegUsed, hasSweep: s.HasSweep,
	}
}

type WaveSnapshot struct {
	Enabled, Left, Right   bool
	Length                 uint16
	LengthEnable           bool
	VolumeShift            uint8
	Period                 uint16
	FreqTimer              int
	WaveIndex              uint8
	DACEnabled, Muted      bool
	RAM                    [waveRAMSize]uint8
}

type NoiseSnapshot struct {
	Enabled, Left, Right      bool
	Length                    uint16
	LengthEnable              bool
	Volume                    uint8
	EnvelopeUp                bool
	EnvelopePace, EnvelopeCtr uint8
	EnvelopeDone              bool
	Shift                     uint8
	Use7Bit                   bool
	Divider                   uint8
	LFSR                      uint16
	NoiseTimer                int
	DACEnabled, Muted         bool
}

type FIFOSnapshot struct {
	Samples           [32]int8
	Head, Count       int
	Current           int8
	VolumeHalf        bool
	Left, Right       bool
}

// Snapshot is the gob-serializable image of the whole mixer, used by
// package core's save-state support.
type Snapshot struct {
	Enabled           bool
	SQ1, SQ2          PulseSnapshot
	Wave              WaveSnapshot
	Noise             NoiseSnapshot
	FifoA, FifoB      FIFOSnapshot
	VinLeft, VinRight bool
	VolLeft, VolRight uint8
	Step, Cycles      int
	Regs              [0x20]uint16
}

func (a *APU) Snapshot() Snapshot {
	return Snapshot{
		Enabled: a.enabled,
		SQ1:     snapshotPulse(&a.sq1),
		SQ2:     snapshotPulse(&a.sq2),
		Wave: WaveSnapshot{Enabled: a.wave.enabled, Left: a.wave.left, Right: a.wave.right,
			Length: a.wave.length, LengthEnable: a.wave.lengthEnable, VolumeShift: a.wave.volumeShift,
			Period: a.wave.period, FreqTimer: a.wave.freqTimer, WaveIndex: a.wave.waveIndex,
			DACEnabled: a.wave.dacEnabled, Muted: a.wave.muted, RAM: a.wave.ram},
		Noise: NoiseSnapshot{Enabled: a.noise.enabled, Left: a.noise.left, Right: a.noise.right,
			Length: a.noise.length, LengthEnable: a.noise.lengthEnable, Volume: a.noise.volume,
			EnvelopeUp: a.noise.envelopeUp, EnvelopePace: a.noise.envelopePace, EnvelopeCtr: a.noise.envelopeCtr,
			EnvelopeDone: a.noise.envelopeDone, Shift: a.noise.shift, Use7Bit: a.noise.use7bit,
			Divider: a.noise.divider, LFSR: a.noise.lfsr, NoiseTimer: a.noise.noiseTimer,
			DACEnabled: a.noise.dacEnabled, Muted: a.noise.muted},
		FifoA: FIFOSnapshot{Samples: a.fifoA.samples, Head: a.fifoA.head, Count: a.fifoA.count,
			Current: a.fifoA.current, VolumeHalf: a.fifoA.volumeHalf, Left: a.fifoA.left, Right: a.fifoA.right},
		FifoB: FIFOSnapshot{Samples: a.fifoB.samples, Head: a.fifoB.head, Count: a.fifoB.count,
			Current: a.fifoB.current, VolumeHalf: a.fifoB.volumeHalf, Left: a.fifoB.left, Right: a.fifoB.right},
		VinLeft: a.vinLeft, VinRight: a.vinRight, VolLeft: a.volLeft, VolRight: a.volRight,
		Step: a.step, Cycles: a.cycles, Regs: a.regs,
	}
}

func (a *APU) Restore(s Snapshot) {
	a.enabled = s.Enabled
	restorePulse(&a.sq1, s.SQ1)
	restorePulse(&a.sq2, s.SQ2)
	a.wave = waveChannel{enabled: s.Wave.Enabled, left: s.Wave.Left, right: s.Wave.Right,
		length: s.Wave.Length, lengthEnable: s.Wave.LengthEnable, volumeShift: s.Wave.VolumeShift,
		period: s.Wave.Period, freqTimer: s.Wave.FreqTimer, waveIndex: s.Wave.WaveIndex,
		dacEnabled: s.Wave.DACEnabled, muted: s.Wave.Muted, ram: s.Wave.RAM}
	a.noise = noiseChannel{enabled: s.Noise.Enabled, left: s.Noise.Left, right: s.Noise.Right,
		length: s.Noise.Length, lengthEnable: s.Noise.LengthEnable, volume: s.Noise.Volume,
		envelopeUp: s.Noise.EnvelopeUp, envelopePace: s.Noise.EnvelopePace, envelopeCtr: s.Noise.EnvelopeCtr,
		envelopeDone: s.Noise.EnvelopeDone, shift: s.Noise.Shift, use7bit: s.Noise.Use7Bit,
		divider: s.Noise.Divider, lfsr: s.Noise.LFSR, noiseTimer: s.Noise.NoiseTimer,
		dacEnabled: s.Noise.DACEnabled, muted: s.Noise.Muted}
	a.fifoA = fifoChannel{samples: s.FifoA.Samples, head: s.FifoA.Head, count: s.FifoA.Count,
		current: s.FifoA.Current, volumeHalf: s.FifoA.VolumeHalf, left: s.FifoA.Left, right: s.FifoA.Right}
	a.fifoB = fifoChannel{samples: s.FifoB.Samples, head: s.FifoB.Head, count: s.FifoB.Count,
		current: s.FifoB.Current, volumeHalf: s.FifoB.VolumeHalf, left: s.FifoB.Left, right: s.FifoB.Right}
	a.vinLeft, a.vinRight, a.volLeft, a.volRight = s.VinLeft, s.VinRight, s.VolLeft, s.VolRight
	a.step, a.cycles, a.regs = s.Step, s.Cycles, s.Regs
}
