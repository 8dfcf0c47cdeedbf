package input

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shelvric/goba/goba/addr"
)

type fakeIRQ struct{ requested []addr.Interrupt }

func (f *fakeIRQ) RequestInterrupt(source addr.Interrupt) {
	f.requested = append(f.requested, source)
}

func TestKeyInputIsActiveLow(t *testing.T) {
	irq := &fakeIRQ{}
	k := New(irq)
	assert.Equal(t, uint16(0x3FF), k.ReadIO(addr.KEYINPUT))

	k.Push(Event{Key: KeyA, Pressed: true})
	k.DrainFrame()
	assert.Equal(t, uint16(0x3FF&^1), k.ReadIO(addr.KEYINPUT))
}

func TestKeypadIRQFiresOnAnyMatch(t *testing.T) {
	irq := &fakeIRQ{}
	k := New(irq)
	k.WriteIO(addr.KEYCNT, 0x4001) // irq enable, select KeyA, any-mode

	k.Push(Event{Key: KeyA, Pressed: true})
	k.DrainFrame()

	assert.Contains(t, irq.requested, addr.IRQKeypad)
}

func TestQueueDropsEventsPastCapacity(t *testing.T) {
	irq := &fakeIRQ{}
	k := New(irq)
	for i := 0; i < queueCapacity+10; i++ {
		k.Push(Event{Key: KeyA, Pressed: true})
	}
	assert.Equal(t, queueCapacity, k.count)
}
