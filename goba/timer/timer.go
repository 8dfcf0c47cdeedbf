// Package timer implements the four cascadable 16-bit timers,
// grounded on the edge-detection and overflow-rescheduling style of
// the teacher's Emulator.updateTimers (jeebie/core.go) but generalized
// from the Game Boy's single DIV-driven TIMA/TMA/TAC registers to four
// independent, scheduler-driven counters with prescaler selection and
// count-up cascading, per spec §4.7.
package timer

import (
	"github.com/shelvric/goba/goba/addr"
	"github.com/shelvric/goba/goba/scheduler"
)

const timerCount = 4

var prescalers = [4]uint64{1, 64, 256, 1024}
var overflowTags = [4]scheduler.Tag{
	scheduler.TagTimer0Overflow,
	scheduler.TagTimer1Overflow,
	scheduler.TagTimer2Overflow,
	scheduler.TagTimer3Overflow,
}

type timerUnit struct {
	reload  uint16
	control uint16
	started bool

	// startCycle/startCounter let Read() derive the live counter value
	// from elapsed scheduler cycles instead of polling every tick.
	startCycle   uint64
	startCounter uint16
}

func (t *timerUnit) prescaler() uint64   { return prescalers[t.control&0x3] }
func (t *timerUnit) countUp() bool       { return t.control&0x04 != 0 }
func (t *timerUnit) irqEnable() bool     { return t.control&0x40 != 0 }
func (t *timerUnit) enabled() bool       { return t.control&0x80 != 0 }

// Bus is the minimal surface the timers need, RequestInterrupt, which
// bus.Bus satisfies structurally; the shared scheduler is passed
// separately.
type Bus interface {
	RequestInterrupt(source addr.Interrupt)
}

// Controller owns the four timer units and the scheduler that drives
// their overflow events.
type Controller struct {
	units [timerCount]timerUnit
	sched *scheduler.Scheduler
	bus   Bus
}

// New returns a controller wired to the shared scheduler (owned by the
// bus) and the interrupt controller reached via bus.
func New(sched *scheduler.Scheduler, bus Bus) *Controller {
	return &Controller{sched: sched, bus: bus}
}

func (c *Controller) InRange(offset uint16) bool {
	return offset >= addr.TM0CNT_L && offset <= addr.TM3CNT_H+1
}

func (c *Controller) indexAndReg(offset uint16) (idx int, isControl bool) {
	rel := offset - addr.TM0CNT_L
	return int(rel / 4), (rel % 4) == 2
}

func (c *Controller) ReadIO(offset uint16) uint16 {
	idx, isControl := c.indexAndReg(offset)
	if isControl {
		return c.units[idx].control
	}
	return c.counter(idx, c.sched.Cycle())
}

func (c *Controller) WriteIO(offset uint16, value uint16) {
	idx, isControl := c.indexAndReg(offset)
	if !isControl {
		c.units[idx].reload = value
		return
	}
	c.writeControl(idx, value)
}

// counter derives the live 16-bit counter value of a running,
// non-count-up timer from the cycles elapsed since it was (re)started;
// count-up timers and stopped timers just return their snapshot.
func (c *Controller) counter(idx int, now uint64) uint16 {
	u := &c.units[idx]
	if !u.started || u.countUp() {
		return u.startCounter
	}
	elapsed := (now - u.startCycle) / u.prescaler()
	return u.startCounter + uint16(elapsed)
}

func (c *Controller) writeControl(idx int, value uint16) {
	u := &c.units[idx]
	wasEnabled := u.enabled()
	// Snapshot the live counter before any state changes so a
	// disable-then-reconfigure sequence observes the right value.
	snapshot := c.counter(idx, c.sched.Cycle())
	u.control = value

	switch {
	case u.enabled() && !wasEnabled:
		u.startCounter = u.reload
		u.startCycle = c.sched.Cycle()
		u.started = true
		if !u.countUp() {
			c.scheduleOverflow(idx)
		} else {
			c.sched.Remove(overflowTags[idx])
		}
	case !u.enabled() && wasEnabled:
		u.startCounter = snapshot
		u.started = false
		c.sched.Remove(overflowTags[idx])
	}
}

// scheduleOverflow arms the next overflow event at
// cycle + prescaler*(0x10000 - reload), per spec §4.7. first-clock-offset
// is folded into startCycle already being the cycle the start bit was set.
func (c *Controller) scheduleOverflow(idx int) {
	u := &c.units[idx]
	c.sched.Remove(overflowTags[idx])
	remaining := uint64(0x10000-uint32(u.reload)) * u.prescaler()
	c.sched.Add(u.startCycle+remaining, overflowTags[idx], func(firedAt uint64) {
		c.onOverflow(idx, firedAt)
	})
}

func (c *Controller) onOverflow(idx int, firedAt uint64) {
	u := &c.units[idx]
	u.startCounter = u.reload
	u.startCycle = firedAt

	if u.irqEnable() {
		c.bus.RequestInterrupt(addr.Interrupt(int(addr.IRQTimer0) + idx))
	}

	next := idx + 1
	if next < timerCount && c.units[next].enabled() && c.units[next].countUp() {
		c.tickCountUp(next)
	}

	if u.enabled() && !u.countUp() {
		c.scheduleOverflow(idx)
	}
}

// tickCountUp increments a count-up timer by one on the preceding
// timer's overflow, cascading into its own overflow (and the next
// timer's count-up tick) when it wraps.
func (c *Controller) tickCountUp(idx int) {
	u := &c.units[idx]
	u.startCounter++
	if u.startCounter != 0 {
		return
	}
	c.onOverflow(idx, c.sched.Cycle())
}

// UnitSnapshot is the gob-serializable image of one timer's registers
// and live-counter bookkeeping.
type UnitSnapshot struct {
	Reload, Control            uint16
	Started                    bool
	StartCycle                 uint64
	StartCounter               uint16
}

// Snapshot captures all four timer units, used by package core's
// save-state support.
func (c *Controller) Snapshot() [timerCount]UnitSnapshot {
	var out [timerCount]UnitSnapshot
	for i, u := range c.units {
		out[i] = UnitSnapshot{Reload: u.reload, Control: u.control, Started: u.started,
			StartCycle: u.startCycle, StartCounter: u.startCounter}
	}
	return out
}

// Restore installs a previously captured snapshot and re-arms any
// pending overflow events the running timers need.
func (c *Controller) Restore(s [timerCount]UnitSnapshot) {
	for i := range c.units {
		c.sched.Remove(overflowTags[i])
	}
	for i, us := range s {
		c.units[i] = timerUnit{reload: us.Reload, control: us.Control, started: us.Started,
			startCycle: us.StartCycle, startCounter: us.StartCounter}
	}
	for i := range c.units {
		u := &c.units[i]
		if u.started && !u.countUp() {
			c.scheduleOverflow(i)
		}
	}
}
