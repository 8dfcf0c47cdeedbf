// Package core wires the CPU, bus and every peripheral into a runnable
// machine and drives the per-instruction loop, grounded on
// jeebie.Emulator's RunUntilFrame/DebuggerState shape (mutex-guarded
// run mode, step/step-frame one-shot flags) but generalized from the
// Game Boy's single DIV-driven timer update to this platform's
// DMA-check/interrupt-check/instruction loop per spec §2, and extended
// with encoding/gob save-state support per spec §3.
package core

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shelvric/goba/goba/addr"
	"github.com/shelvric/goba/goba/audio"
	"github.com/shelvric/goba/goba/backend"
	"github.com/shelvric/goba/goba/bus"
	"github.com/shelvric/goba/goba/cart"
	"github.com/shelvric/goba/goba/cpu"
	"github.com/shelvric/goba/goba/dma"
	"github.com/shelvric/goba/goba/input"
	"github.com/shelvric/goba/goba/serial"
	"github.com/shelvric/goba/goba/timer"
	"github.com/shelvric/goba/goba/video"
)

// cyclesPerFrame is 228 scanlines * 308 dots/line * 4 cycles/dot.
const cyclesPerFrame = 228 * 308 * 4

// RunMode is the debugger's run state, mirroring jeebie.DebuggerState.
type RunMode int

const (
	ModeRunning RunMode = iota
	ModePaused
	ModeStep
	ModeStepFrame
)

func (m RunMode) String() string {
	switch m {
	case ModePaused:
		return "paused"
	case ModeStep:
		return "step"
	case ModeStepFrame:
		return "step-frame"
	default:
		return "running"
	}
}

var _ backend.DebugProvider = (*Emulator)(nil)

// Emulator is the root struct: it owns the bus and every peripheral
// and drives them from RunFrame.
type Emulator struct {
	Bus     *bus.Bus
	CPU     *cpu.CPU
	DMA     *dma.Controller
	Timers  *timer.Controller
	GPU     *video.GPU
	APU     *audio.APU
	Keypad  *input.Keypad
	Debug   *serial.DebugPort
	backup  cart.Backup

	log *slog.Logger

	mu               sync.RWMutex
	mode             RunMode
	stepRequested    bool
	frameRequested   bool
	instructionCount uint64
	frameCount       uint64
}

// New wires a fresh machine: bus, CPU, DMA, timers, video, audio,
// keypad and debug port, with no ROM loaded yet.
func New(log *slog.Logger) *Emulator {
	if log == nil {
		log = slog.Default()
	}
	b := bus.New(log)
	c := cpu.New(b, b.IRQ)

	d := dma.New(b, log)
	t := timer.New(b.Scheduler, b)
	gpu := video.New(b.VRAMBytes(), b.OAMBytes(), b.PaletteBytes(), b, d)
	apu := audio.New(d)
	keypad := input.New(b)
	debugPort := serial.New(log)

	b.AddPeripheral(d)
	b.AddPeripheral(t)
	b.AddPeripheral(gpu)
	b.AddPeripheral(apu)
	b.AddPeripheral(keypad)
	b.AddPeripheral(debugPort)
	b.Backup = cart.NoBackup{}

	return &Emulator{
		Bus: b, CPU: c, DMA: d, Timers: t, GPU: gpu, APU: apu,
		Keypad: keypad, Debug: debugPort, backup: cart.NoBackup{}, log: log,
	}
}

// LoadROM installs cartridge ROM bytes, auto-detects its backup type
// from the embedded ID string, and resets the CPU to the cartridge
// entry point (BIOS boot is out of scope; spec §2's frame loop starts
// execution at 0x08000000 directly, per the Non-goals on boot-ROM
// emulation).
func (e *Emulator) LoadROM(data []byte) {
	e.Bus.LoadROM(data)
	e.backup = cart.DetectBackup(data)
	e.Bus.Backup = e.backup
	e.CPU.ResetTo(addr.CartROM0)
	e.log.Info("rom loaded", "size", len(data), "backup", fmt.Sprintf("%T", e.backup))
}

// LoadBIOS installs the BIOS image and resets the CPU to address 0 so
// it boots through the real reset vector instead of jumping straight
// to cartridge code.
func (e *Emulator) LoadBIOS(data []byte) {
	e.Bus.LoadBIOS(data)
	e.CPU.ResetTo(0)
}

// PushKey enqueues a keypad event for the next frame's DrainFrame.
func (e *Emulator) PushKey(ev input.Event) { e.Keypad.Push(ev) }

// CurrentFrame returns the most recently completed frame.
func (e *Emulator) CurrentFrame() *video.FrameBuffer { return e.GPU.CurrentFrame() }

// Mode returns the current run mode.
func (e *Emulator) Mode() RunMode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

func (e *Emulator) setMode(m RunMode) {
	e.mu.Lock()
	e.mode = m
	e.mu.Unlock()
	e.log.Debug("run mode changed", "mode", m)
}

// Pause switches to ModePaused; RunFrame becomes a no-op until resumed.
func (e *Emulator) Pause() { e.setMode(ModePaused) }

// Resume switches to ModeRunning.
func (e *Emulator) Resume() { e.setMode(ModeRunning) }

// RequestStep arms a single-instruction step, consumed by the next
// RunFrame call.
func (e *Emulator) RequestStep() {
	e.mu.Lock()
	e.stepRequested = true
	e.mode = ModeStep
	e.mu.Unlock()
}

// RequestStepFrame arms a single full-frame step, consumed by the next
// RunFrame call.
func (e *Emulator) RequestStepFrame() {
	e.mu.Lock()
	e.frameRequested = true
	e.mode = ModeStepFrame
	e.mu.Unlock()
}

// RunFrame advances the machine according to the current run mode: a
// full frame when running or step-framing, one instruction when
// stepping, nothing when paused. Per spec §2, each instruction slot is
// DMA-check, interrupt-check, then one CPU step; the GPU and APU are
// ticked by the bus cycles each slot actually consumed.
func (e *Emulator) RunFrame() {
	switch e.Mode() {
	case ModePaused:
		return
	case ModeStep:
		e.mu.Lock()
		requested := e.stepRequested
		e.stepRequested = false
		e.mu.Unlock()
		if !requested {
			return
		}
		e.stepOnce()
		e.Keypad.DrainFrame()
		e.setMode(ModePaused)
		return
	case ModeStepFrame:
		e.mu.Lock()
		requested := e.frameRequested
		e.frameRequested = false
		e.mu.Unlock()
		if !requested {
			return
		}
		e.runUntilFrameReady()
		e.setMode(ModePaused)
		return
	default:
		e.runUntilFrameReady()
	}
}

func (e *Emulator) runUntilFrameReady() {
	for {
		e.stepOnce()
		if e.GPU.FrameReady() {
			e.frameCount++
			e.Keypad.DrainFrame()
			return
		}
	}
}

// stepOnce runs the DMA-check/interrupt-check/CPU-step slot and ticks
// the cycle-driven peripherals by however many cycles it consumed.
func (e *Emulator) stepOnce() {
	start := e.Bus.Scheduler.Cycle()

	if !e.DMA.Run() {
		e.CPU.CheckInterrupts()
		e.CPU.Step()
	}
	e.instructionCount++

	elapsed := int(e.Bus.Scheduler.Cycle() - start)
	e.GPU.Tick(elapsed)
	e.APU.Tick(elapsed)
}

// InstructionCount and FrameCount report run totals; FrameCount also
// feeds the debug snapshot.
func (e *Emulator) InstructionCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.instructionCount
}

func (e *Emulator) FrameCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.frameCount
}

// ExtractDebugSnapshot satisfies backend.DebugProvider.
func (e *Emulator) ExtractDebugSnapshot() backend.DebugSnapshot {
	mode := e.Mode()
	return backend.DebugSnapshot{
		PC:              e.CPU.GetPC(),
		SP:              e.CPU.Regs.Get(13),
		CPSR:            e.CPU.Regs.CPSR(),
		IE:              e.Bus.IRQ.ReadIE(),
		IF:              e.Bus.IRQ.ReadIF(),
		IME:             e.Bus.IRQ.ReadIME() != 0,
		Paused:          mode == ModePaused,
		InstructionStep: mode == ModeStep,
		FrameCount:      e.FrameCount(),
	}
}

// SaveBackup returns the cartridge backup's current bytes, or nil if
// the cartridge has no backup or it hasn't been written to.
func (e *Emulator) SaveBackup() []byte {
	if !e.backup.Dirty() {
		return nil
	}
	return e.backup.Bytes()
}

// LoadBackup restores previously saved backup bytes. Call after
// LoadROM so the backup type has already been detected.
func (e *Emulator) LoadBackup(data []byte) {
	if loader, ok := e.backup.(interface{ LoadBytes([]byte) }); ok {
		loader.LoadBytes(data)
	}
}

// saveState is the gob-serializable image of the whole machine.
type saveState struct {
	Bus     bus.Snapshot
	CPU     cpu.Snapshot
	DMA     [4]dma.ChannelSnapshot
	Timers  [4]timer.UnitSnapshot
	GPU     video.Snapshot
	APU     audio.Snapshot
	Keypad  input.Snapshot
	Debug   serial.Snapshot
	Backup  []byte
	Frames  uint64
}

// SaveState serializes the entire machine (registers, memory, every
// peripheral's live state, and the cartridge backup's bytes) via
// encoding/gob, per spec §3.
func (e *Emulator) SaveState() ([]byte, error) {
	s := saveState{
		Bus:    e.Bus.Snapshot(),
		CPU:    e.CPU.Snapshot(),
		DMA:    e.DMA.Snapshot(),
		Timers: e.Timers.Snapshot(),
		GPU:    e.GPU.Snapshot(),
		APU:    e.APU.Snapshot(),
		Keypad: e.Keypad.Snapshot(),
		Debug:  e.Debug.Snapshot(),
		Backup: e.backup.Bytes(),
		Frames: e.FrameCount(),
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&s); err != nil {
		return nil, fmt.Errorf("encode save state: %w", err)
	}
	return buf.Bytes(), nil
}

// LoadState restores a machine previously captured by SaveState. The
// bus is restored first so the scheduler's absolute cycle count is
// correct before timers re-arm their pending overflow events against
// it.
func (e *Emulator) LoadState(data []byte) error {
	var s saveState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return fmt.Errorf("decode save state: %w", err)
	}
	e.Bus.Restore(s.Bus)
	e.CPU.Restore(s.CPU)
	e.DMA.Restore(s.DMA)
	e.Timers.Restore(s.Timers)
	e.GPU.Restore(s.GPU)
	e.APU.Restore(s.APU)
	e.Keypad.Restore(s.Keypad)
	e.Debug.Restore(s.Debug)
	if len(s.Backup) > 0 {
		e.LoadBackup(s.Backup)
	}
	e.mu.Lock()
	e.frameCount = s.Frames
	e.mu.Unlock()
	return nil
}
