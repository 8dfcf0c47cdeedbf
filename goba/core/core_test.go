package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shelvric/goba/goba/addr"
	"github.com/shelvric/goba/goba/input"
)

// infiniteLoopROM is a single ARM instruction, B $ (branch to self),
// so RunFrame terminates purely on the GPU's own frame-ready signal
// rather than depending on any particular program behavior.
func infiniteLoopROM() []byte {
	rom := make([]byte, 0x1000)
	rom[0], rom[1], rom[2], rom[3] = 0xFE, 0xFF, 0xFF, 0xEA
	return rom
}

func TestRunFrameCompletesOneFrame(t *testing.T) {
	e := New(nil)
	e.LoadROM(infiniteLoopROM())

	e.RunFrame()

	assert.Equal(t, uint64(1), e.FrameCount())
	assert.Greater(t, e.InstructionCount(), uint64(0))
}

func TestPauseStopsExecution(t *testing.T) {
	e := New(nil)
	e.LoadROM(infiniteLoopROM())
	e.Pause()

	e.RunFrame()

	assert.Equal(t, uint64(0), e.FrameCount())
	assert.Equal(t, uint64(0), e.InstructionCount())
}

func TestStepExecutesExactlyOneInstruction(t *testing.T) {
	e := New(nil)
	e.LoadROM(infiniteLoopROM())
	e.RequestStep()

	e.RunFrame()

	assert.Equal(t, uint64(1), e.InstructionCount())
	assert.Equal(t, ModePaused, e.Mode())
}

func TestKeypadEventsApplyBeforeNextFrame(t *testing.T) {
	e := New(nil)
	e.LoadROM(infiniteLoopROM())
	e.PushKey(input.Event{Key: input.KeyA, Pressed: true})

	e.RunFrame()

	assert.Equal(t, uint16(0x3FF&^1), e.Keypad.ReadIO(addr.KEYINPUT))
}

func TestSaveStateRoundTripsCPUAndMemory(t *testing.T) {
	e := New(nil)
	e.LoadROM(infiniteLoopROM())
	e.RunFrame()
	e.RunFrame()

	data, err := e.SaveState()
	assert.NoError(t, err)

	fresh := New(nil)
	fresh.LoadROM(infiniteLoopROM())
	assert.NoError(t, fresh.LoadState(data))

	assert.Equal(t, e.CPU.GetPC(), fresh.CPU.GetPC())
	assert.Equal(t, e.FrameCount(), fresh.FrameCount())
	assert.Equal(t, e.Bus.Scheduler.Cycle(), fresh.Bus.Scheduler.Cycle())
}
