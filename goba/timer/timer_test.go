package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shelvric/goba/goba/addr"
	"github.com/shelvric/goba/goba/scheduler"
)

type fakeIRQ struct{ requested []addr.Interrupt }

func (f *fakeIRQ) RequestInterrupt(source addr.Interrupt) {
	f.requested = append(f.requested, source)
}

func TestTimerOverflowFiresAtScheduledCycle(t *testing.T) {
	sched := scheduler.New()
	irq := &fakeIRQ{}
	c := New(sched, irq)

	c.WriteIO(addr.TM0CNT_L, 0xFFFE) // reload: overflow after 2 ticks
	c.WriteIO(addr.TM0CNT_H, 0x00C0) // enable, irq-enable, prescaler /1

	sched.Advance(1)
	assert.Equal(t, uint16(0xFFFF), c.counter(0, sched.Cycle()))
	sched.Advance(1)
	assert.Len(t, irq.requested, 1)
	assert.Equal(t, addr.IRQTimer0, irq.requested[0])
}

func TestCountUpTimerTicksOnPredecessorOverflow(t *testing.T) {
	sched := scheduler.New()
	irq := &fakeIRQ{}
	c := New(sched, irq)

	c.WriteIO(addr.TM0CNT_L, 0xFFFF) // overflow after 1 tick
	c.WriteIO(addr.TM0CNT_H, 0x0080) // enable, no irq, prescaler /1
	c.WriteIO(addr.TM1CNT_L, 0)
	c.WriteIO(addr.TM1CNT_H, 0x0084) // enable, count-up

	sched.Advance(1)
	assert.Equal(t, uint16(1), c.counter(1, sched.Cycle()), "timer1 ticks once on timer0's overflow")
}

func TestStoppingTimerSnapshotsCounter(t *testing.T) {
	sched := scheduler.New()
	irq := &fakeIRQ{}
	c := New(sched, irq)

	c.WriteIO(addr.TM2CNT_L, 0)
	c.WriteIO(addr.TM2CNT_H, 0x0080) // enable, prescaler /1

	sched.Advance(10)
	c.WriteIO(addr.TM2CNT_H, 0x0000) // stop
	sched.Advance(100)

	assert.Equal(t, uint16(10), c.counter(2, sched.Cycle()), "a stopped timer does not keep counting")
}
