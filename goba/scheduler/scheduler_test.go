package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdvanceFiresInTargetCycleOrder(t *testing.T) {
	s := New()
	var order []int

	s.Add(10, TagTimer0Overflow, func(uint64) { order = append(order, 0) })
	s.Add(5, TagTimer1Overflow, func(uint64) { order = append(order, 1) })
	s.Add(8, TagTimer2Overflow, func(uint64) { order = append(order, 2) })

	s.Advance(10)

	assert.Equal(t, []int{1, 2, 0}, order)
}

func TestAdvanceBreaksEqualCycleTiesByInsertionOrder(t *testing.T) {
	s := New()
	var order []int

	s.Add(5, TagTimer0Overflow, func(uint64) { order = append(order, 0) })
	s.Add(5, TagTimer1Overflow, func(uint64) { order = append(order, 1) })
	s.Add(5, TagTimer2Overflow, func(uint64) { order = append(order, 2) })
	s.Add(5, TagTimer3Overflow, func(uint64) { order = append(order, 3) })

	s.Advance(5)

	assert.Equal(t, []int{0, 1, 2, 3}, order)
}

func TestEventsPostedDuringAdvanceFireOnlyOnLaterAdvance(t *testing.T) {
	s := New()
	var order []int

	s.Add(5, TagTimer0Overflow, func(uint64) {
		order = append(order, 0)
		s.Add(5, TagTimer1Overflow, func(uint64) { order = append(order, 1) })
	})

	s.Advance(5)
	assert.Equal(t, []int{0}, order)

	s.Advance(0)
	assert.Equal(t, []int{0, 1}, order)
}

func TestRemoveCancelsOnlyMatchingTag(t *testing.T) {
	s := New()
	var fired []int

	s.Add(5, TagTimer0Overflow, func(uint64) { fired = append(fired, 0) })
	s.Add(5, TagTimer1Overflow, func(uint64) { fired = append(fired, 1) })

	removed := s.Remove(TagTimer0Overflow)
	assert.Equal(t, 1, removed)
	assert.False(t, s.Pending(TagTimer0Overflow))
	assert.True(t, s.Pending(TagTimer1Overflow))

	s.Advance(5)
	assert.Equal(t, []int{1}, fired)
}

func TestSetCycleOverwritesAbsoluteCycle(t *testing.T) {
	s := New()
	s.Advance(100)
	assert.Equal(t, uint64(100), s.Cycle())

	s.SetCycle(42)
	assert.Equal(t, uint64(42), s.Cycle())
}

func TestAddRelativeSchedulesFromCurrentCycle(t *testing.T) {
	s := New()
	s.Advance(10)

	var fired bool
	s.AddRelative(5, TagTimer0Overflow, func(uint64) { fired = true })

	s.Advance(4)
	assert.False(t, fired)

	s.Advance(1)
	assert.True(t, fired)
}
