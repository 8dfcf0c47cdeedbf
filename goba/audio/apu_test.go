package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shelvric/goba/goba/addr"
)

type fakeDMA struct{ requested []int }

func (f *fakeDMA) RequestFIFORefill(channel int) { f.requested = append(f.requested, channel) }

func TestSquareChannelTriggerEnablesChannel(t *testing.T) {
	dma := &fakeDMA{}
	a := New(dma)
	a.WriteIO(addr.SOUNDCNT_X, 0x80) // master enable
	a.WriteIO(addr.SOUNDCNT_L, 0x1177) // full volume, ch1 to both speakers
	a.WriteIO(addr.SOUND1CNT_H, 0xF000) // volume 15, duty 0
	a.WriteIO(addr.SOUND1CNT_X, 0x8700) // trigger, period=0x700

	a.Tick(1000)
	ch1, _, _, _ := a.GetChannelStatus()
	assert.True(t, ch1)
}

func TestMasterDisableSilencesChannels(t *testing.T) {
	dma := &fakeDMA{}
	a := New(dma)
	a.WriteIO(addr.SOUNDCNT_X, 0x80)
	a.WriteIO(addr.SOUND1CNT_H, 0xF000)
	a.WriteIO(addr.SOUND1CNT_X, 0x8700)
	assert.True(t, a.sq1.enabled)

	a.WriteIO(addr.SOUNDCNT_X, 0x0000)
	assert.False(t, a.sq1.enabled)
}

func TestFIFORefillRequestedWhenHalfEmpty(t *testing.T) {
	dma := &fakeDMA{}
	a := New(dma)
	a.WriteIO(addr.SOUNDCNT_X, 0x80)
	a.WriteIO(addr.SOUNDCNT_H, 0x0B04) // timer0 for A, enable both speakers, 100%

	a.OnTimerOverflow(0)
	assert.Contains(t, dma.requested, 1)
}

func TestLengthCounterDisablesChannelAt256Hz(t *testing.T) {
	dma := &fakeDMA{}
	a := New(dma)
	a.WriteIO(addr.SOUNDCNT_X, 0x80)
	a.WriteIO(addr.SOUND1CNT_H, 0xF03F) // volume 15, length=64-63=1
	a.WriteIO(addr.SOUND1CNT_X, 0xC700) // trigger, length-enable, period=0x700

	a.Tick(cyclesPerStep) // one frame-sequencer step: length ticks on step 0
	ch1, _, _, _ := a.GetChannelStatus()
	assert.False(t, ch1, "length reaching zero disables the channel")
}
