package audio

import "github.com/shelvric/goba/goba/addr"

var dutyPatterns = [4][8]int64{
	{0, 1, 0, 0, 0, 0, 0, 0},
	{0, 1, 1, 0, 0, 0, 0, 0},
	{0, 1, 1, 1, 1, 0, 0, 0},
	{1, 0, 0, 1, 1, 1, 1, 1},
}

var noiseDividers = [8]int{8, 16, 32, 48, 64, 80, 96, 112}

const sampleScale = 32767.0 / 15.0

// Tick advances the APU by CPU cycles, driving generators, the frame
// sequencer and the host-rate resampler, mirroring apu.go's Tick.
func (a *APU) Tick(cycles int) {
	if !a.enabled {
		return
	}
	a.tickGenerators(cycles)

	a.cycles += cycles
	for a.cycles >= cyclesPerStep {
		a.cycles -= cyclesPerStep
		a.tickSequence()
	}
}

func (a *APU) tickGenerators(cycles int) {
	if cycles <= 0 {
		return
	}
	var left, right int64

	if a.sq1.enabled && a.sq1.dacEnabled && !a.sq1.muted {
		l := a.stepSquare(&a.sq1, cycles)
		if a.sq1.left {
			left += l
		}
		if a.sq1.right {
			right += l
		}
	}
	if a.sq2.enabled && a.sq2.dacEnabled && !a.sq2.muted {
		l := a.stepSquare(&a.sq2, cycles)
		if a.sq2.left {
			left += l
		}
		if a.sq2.right {
			right += l
		}
	}
	if a.wave.enabled && a.wave.dacEnabled && !a.wave.muted {
		l := a.stepWave(cycles)
		if a.wave.left {
			left += l
		}
		if a.wave.right {
			right += l
		}
	}
	if a.noise.enabled && a.noise.dacEnabled && !a.noise.muted {
		l := a.stepNoise(cycles)
		if a.noise.left {
			left += l
		}
		if a.noise.right {
			right += l
		}
	}

	soundcntH := a.regs[a.regIndex(addr.SOUNDCNT_H)]
	fifoShift := int64(2)
	if soundcntH&0x4 == 0 {
		fifoShift = 1
	}
	left += int64(a.fifoA.current) * fifoShift * boolToInt(soundcntH&0x200 != 0)
	right += int64(a.fifoA.current) * fifoShift * boolToInt(soundcntH&0x100 != 0)
	fifoShiftB := int64(2)
	if soundcntH&0x8 == 0 {
		fifoShiftB = 1
	}
	left += int64(a.fifoB.current) * fifoShiftB * boolToInt(soundcntH&0x2000 != 0)
	right += int64(a.fifoB.current) * fifoShiftB * boolToInt(soundcntH&0x1000 != 0)

	a.mixLeftAcc += left * int64(cycles)
	a.mixRightAcc += right * int64(cycles)
	a.mixAccumCycles += cycles
	a.flushMix(cycles)
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (a *APU) flushMix(cycles int) {
	if a.hostSampleRate <= 0 || a.pcmCyclesPerSample == 0 {
		return
	}
	a.pcmCycleAcc += float64(cycles)
	if a.pcmCycleAcc < a.pcmCyclesPerSample {
		return
	}
	a.pcmCycleAcc -= a.pcmCyclesPerSample

	left, right := a.exportMixedSample()
	a.pcmBuffer = append(a.pcmBuffer, left, right)
}

func (a *APU) exportMixedSample() (int16, int16) {
	if a.mixAccumCycles == 0 {
		return 0, 0
	}
	leftAvg := float64(a.mixLeftAcc) / float64(a.mixAccumCycles)
	rightAvg := float64(a.mixRightAcc) / float64(a.mixAccumCycles)
	left, right := scaleToPCM(leftAvg, a.volLeft), scaleToPCM(rightAvg, a.volRight)
	a.mixLeftAcc, a.mixRightAcc, a.mixAccumCycles = 0, 0, 0
	return left, right
}

func scaleToPCM(avg float64, masterVol uint8) int16 {
	gain := float64(masterVol+1) / 8.0
	value := avg * gain * sampleScale
	if value > 32767 {
		value = 32767
	} else if value < -32768 {
		value = -32768
	}
	return int16(value)
}

func (a *APU) squarePeriodCycles(period uint16) int {
	p := 2048 - int(period&0x7FF)
	if p <= 0 {
		return 0
	}
	return p * 4
}

func (a *APU) stepSquare(ch *pulseChannel, cycles int) int64 {
	period := a.squarePeriodCycles(ch.period)
	if period == 0 {
		return 0
	}
	if ch.freqTimer <= 0 {
		ch.freqTimer = period
	}
	ch.freqTimer -= cycles
	for ch.freqTimer <= 0 {
		ch.freqTimer += period
		ch.dutyStep = (ch.dutyStep + 1) & 0x7
	}
	if ch.volume == 0 {
		return 0
	}
	level := int64(ch.volume)
	if dutyPatterns[ch.duty&0x3][ch.dutyStep] == 0 {
		return -level
	}
	return level
}

func (a *APU) wavePeriodCycles(period uint16) int {
	p := 2048 - int(period&0x7FF)
	if p <= 0 {
		return 0
	}
	return p * 2
}

func (a *APU) stepWave(cycles int) int64 {
	ch := &a.wave
	period := a.wavePeriodCycles(ch.period)
	if period == 0 {
		return 0
	}
	if ch.freqTimer <= 0 {
		ch.freqTimer = period
	}
	ch.freqTimer -= cycles
	for ch.freqTimer <= 0 {
		ch.freqTimer += period
		ch.waveIndex = (ch.waveIndex + 1) & 0x1F
	}

	byteIdx := ch.waveIndex >> 1
	raw := ch.ram[byteIdx]
	var nibble uint8
	if ch.waveIndex&1 == 0 {
		nibble = raw >> 4
	} else {
		nibble = raw & 0xF
	}
	sample := int64(nibble) - 8

	switch ch.volumeShift & 0x3 {
	case 0:
		return 0
	case 1:
		return sample
	case 2:
		return sample / 2
	default:
		return sample / 4
	}
}

func (a *APU) noisePeriodCycles(ch *noiseChannel) int {
	div := noiseDividers[ch.divider&0x7]
	p := div << ch.shift
	if p <= 0 {
		return 0
	}
	return p
}

func (a *APU) stepNoise(cycles int) int64 {
	ch := &a.noise
	period := a.noisePeriodCycles(ch)
	if period == 0 {
		return 0
	}
	if ch.lfsr == 0 {
		ch.lfsr = 0x7FFF
	}
	if ch.noiseTimer <= 0 {
		ch.noiseTimer = period
	}
	ch.noiseTimer -= cycles
	for ch.noiseTimer <= 0 {
		ch.noiseTimer += period
		bit := (ch.lfsr & 1) ^ ((ch.lfsr >> 1) & 1)
		ch.lfsr = (ch.lfsr >> 1) | (bit << 14)
		if ch.use7bit {
			ch.lfsr = (ch.lfsr &^ (1 << 6)) | (bit << 6)
		}
	}
	if ch.volume == 0 {
		return 0
	}
	level := int64(ch.volume)
	if ch.lfsr&1 != 0 {
		return -level
	}
	return level
}

// tickSequence advances the shared 512Hz frame sequencer: length at
// 256Hz (every even step), sweep at 128Hz (steps 2 and 6), envelope at
// 64Hz (step 7), identical cadence to jeebie/audio.APU.tickSequence.
func (a *APU) tickSequence() {
	switch a.step {
	case 0, 4:
		a.tickLength()
	case 2, 6:
		a.tickLength()
		a.tickSweep()
	case 7:
		a.tickEnvelope()
	}
	a.step = (a.step + 1) % 8
}

func (a *APU) tickLength() {
	tickOne := func(enable bool, length *uint16, enabled *bool) {
		if enable && *length > 0 {
			*length--
			if *length == 0 {
				*enabled = false
			}
		}
	}
	tickOne(a.sq1.lengthEnable, &a.sq1.length, &a.sq1.enabled)
	tickOne(a.sq2.lengthEnable, &a.sq2.length, &a.sq2.enabled)
	tickOne(a.wave.lengthEnable, &a.wave.length, &a.wave.enabled)
	tickOne(a.noise.lengthEnable, &a.noise.length, &a.noise.enabled)
}

func (a *APU) tickSweep() {
	ch := &a.sq1
	if !ch.sweepEnabled {
		return
	}
	ch.sweepTimer--
	if ch.sweepTimer > 0 {
		return
	}
	ch.sweepTimer = ch.sweepPeriod
	if ch.sweepTimer == 0 {
		ch.sweepTimer = 8
	}
	if ch.sweepPeriod == 0 {
		return
	}
	newFreq, overflow := a.sweepTarget(ch)
	if overflow {
		ch.enabled = false
		return
	}
	if ch.sweepDown {
		ch.sweepNegUsed = true
	}
	if ch.sweepStep == 0 {
		return
	}
	ch.shadowFreq = newFreq
	ch.period = newFreq
	if _, overflow := a.sweepTarget(ch); overflow {
		ch.enabled = false
	}
}

func (a *APU) sweepTarget(ch *pulseChannel) (newFreq uint16, overflow bool) {
	change := ch.shadowFreq >> ch.sweepStep
	if ch.sweepDown {
		if change > ch.shadowFreq {
			newFreq = 0
		} else {
			newFreq = ch.shadowFreq - change
		}
	} else {
		newFreq = ch.shadowFreq + change
	}
	return newFreq, newFreq > 2047
}

func (a *APU) tickEnvelope() {
	tickOne := func(pace uint8, up bool, ctr *uint8, done *bool, volume *uint8) {
		if *done {
			return
		}
		p := pace
		if p == 0 {
			p = 8
		}
		if *ctr == 0 {
			*ctr = p
		}
		*ctr--
		if *ctr > 0 {
			return
		}
		if up {
			if *volume < 15 {
				*volume++
				*ctr = p
			} else {
				*done = true
			}
		} else {
			if *volume > 0 {
				*volume--
				*ctr = p
			} else {
				*done = true
			}
		}
	}
	tickOne(a.sq1.envelopePace, a.sq1.envelopeUp, &a.sq1.envelopeCtr, &a.sq1.envelopeDone, &a.sq1.volume)
	tickOne(a.sq2.envelopePace, a.sq2.envelopeUp, &a.sq2.envelopeCtr, &a.sq2.envelopeDone, &a.sq2.volume)
	tickOne(a.noise.envelopePace, a.noise.envelopeUp, &a.noise.envelopeCtr, &a.noise.envelopeDone, &a.noise.volume)
}

// GetSamples returns interleaved stereo samples, draining the
// resampled buffer the way jeebie/audio.APU.GetSamples does.
func (a *APU) GetSamples(count int) []int16 {
	if count <= 0 {
		return nil
	}
	needed := count * 2
	available := len(a.pcmBuffer) - a.pcmCursor
	if available <= 0 {
		return make([]int16, needed)
	}
	out := make([]int16, needed)
	toCopy := available
	if toCopy > needed {
		toCopy = needed
	}
	copy(out, a.pcmBuffer[a.pcmCursor:a.pcmCursor+toCopy])
	a.pcmCursor += toCopy
	if a.pcmCursor >= len(a.pcmBuffer) {
		a.pcmBuffer = a.pcmBuffer[:0]
		a.pcmCursor = 0
	}
	return out
}

func (a *APU) ToggleChannel(idx int) {
	switch idx {
	case 0:
		a.sq1.muted = !a.sq1.muted
	case 1:
		a.sq2.muted = !a.sq2.muted
	case 2:
		a.wave.muted = !a.wave.muted
	case 3:
		a.noise.muted = !a.noise.muted
	}
}

func (a *APU) SoloChannel(idx int) {
	muted := [4]*bool{&a.sq1.muted, &a.sq2.muted, &a.wave.muted, &a.noise.muted}
	if idx < 0 || idx >= 4 {
		return
	}
	if !*muted[idx] {
		for _, m := range muted {
			*m = false
		}
	}
	for i, m := range muted {
		*m = i != idx
	}
}

func (a *APU) GetChannelStatus() (ch1, ch2, ch3, ch4 bool) {
	return a.sq1.enabled, a.sq2.enabled, a.wave.enabled, a.noise.enabled
}
