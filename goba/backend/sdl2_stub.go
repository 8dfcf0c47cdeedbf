//go:build !sdl2

package backend

import (
	"fmt"

	"github.com/shelvric/goba/goba/input"
	"github.com/shelvric/goba/goba/video"
)

// SDL2 stub for builds without the sdl2 tag (and without SDL2
// development libraries installed), grounded on
// jeebie/backend.SDL2Backend's sdl2_stub.go.
type SDL2 struct{}

func NewSDL2() *SDL2 { return &SDL2{} }

func (s *SDL2) Init(config Config) error {
	return fmt.Errorf("sdl2 backend not available: compile with -tags sdl2 and install SDL2 development libraries")
}

func (s *SDL2) Update(frame *video.FrameBuffer) ([]input.Event, error) {
	return nil, fmt.Errorf("sdl2 backend not available")
}

func (s *SDL2) Cleanup() error { return nil }
