// Package backend implements the pluggable frontends an emulator
// session renders to, grounded on jeebie/backend.Backend's
// Init/Update/Cleanup lifecycle, generalized from the Game Boy's
// single-pattern InputEvent/action dispatch to this platform's raw
// input.Event stream.
package backend

import (
	"github.com/shelvric/goba/goba/audio"
	"github.com/shelvric/goba/goba/input"
	"github.com/shelvric/goba/goba/video"
)

// Backend represents a complete presentation target: it renders frames
// and reports input events captured from its platform.
type Backend interface {
	// Init configures the backend; must be called before Update.
	Init(config Config) error

	// Update renders frame and returns whatever input events the
	// platform captured since the previous call.
	Update(frame *video.FrameBuffer) ([]input.Event, error)

	// Cleanup releases backend resources on shutdown.
	Cleanup() error
}

// DebugProvider is the minimal surface a backend needs to render
// CPU/memory debug overlays, without depending on package core.
type DebugProvider interface {
	ExtractDebugSnapshot() DebugSnapshot
}

// DebugSnapshot is a point-in-time render of CPU/run-mode state for
// backends that display it (currently just the terminal backend).
type DebugSnapshot struct {
	PC, SP          uint32
	CPSR            uint32
	IE, IF          uint16
	IME             bool
	Paused          bool
	InstructionStep bool
	FrameCount      uint64
}

// Config holds backend setup parameters, passed once via Init.
type Config struct {
	Title       string
	ShowDebug   bool
	TestPattern bool
	Provider    DebugProvider
	APU         *audio.APU
}
