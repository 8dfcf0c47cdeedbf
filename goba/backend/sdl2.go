//go:build sdl2

package backend

import (
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/shelvric/goba/goba/input"
	"github.com/shelvric/goba/goba/video"
)

const (
	windowScale = 3
)

// SDL2 implements Backend with hardware-accelerated rendering,
// grounded on jeebie/backend.SDL2Backend, generalized from the Game
// Boy's 160x144 window to this platform's 240x160 framebuffer and
// widened key bindings for the extra R/L/Select buttons.
//
// Building this file requires SDL2 development libraries and the sdl2
// build tag; default builds use the stub in sdl2_stub.go instead.
type SDL2 struct {
	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture
	running  bool
}

func NewSDL2() *SDL2 { return &SDL2{} }

var sdlKeyMapping = map[sdl.Keycode]input.Key{
	sdl.K_UP:     input.KeyUp,
	sdl.K_DOWN:   input.KeyDown,
	sdl.K_LEFT:   input.KeyLeft,
	sdl.K_RIGHT:  input.KeyRight,
	sdl.K_RETURN: input.KeyStart,
	sdl.K_TAB:    input.KeySelect,
	sdl.K_z:      input.KeyA,
	sdl.K_x:      input.KeyB,
	sdl.K_a:      input.KeyL,
	sdl.K_s:      input.KeyR,
}

func (s *SDL2) Init(config Config) error {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return fmt.Errorf("init sdl2: %w", err)
	}

	window, err := sdl.CreateWindow(
		config.Title,
		sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
		video.FramebufferWidth*windowScale, video.FramebufferHeight*windowScale,
		sdl.WINDOW_SHOWN,
	)
	if err != nil {
		sdl.Quit()
		return fmt.Errorf("create window: %w", err)
	}
	s.window = window

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		window.Destroy()
		sdl.Quit()
		return fmt.Errorf("create renderer: %w", err)
	}
	s.renderer = renderer

	texture, err := renderer.CreateTexture(sdl.PIXELFORMAT_RGBA8888, sdl.TEXTUREACCESS_STREAMING,
		video.FramebufferWidth, video.FramebufferHeight)
	if err != nil {
		renderer.Destroy()
		window.Destroy()
		sdl.Quit()
		return fmt.Errorf("create texture: %w", err)
	}
	s.texture = texture
	s.running = true

	slog.Info("sdl2 backend initialized")
	return nil
}

func (s *SDL2) Update(frame *video.FrameBuffer) ([]input.Event, error) {
	var events []input.Event
	if !s.running {
		return events, nil
	}

	for ev := sdl.PollEvent(); ev != nil; ev = sdl.PollEvent() {
		switch e := ev.(type) {
		case *sdl.QuitEvent:
			s.running = false
		case *sdl.KeyboardEvent:
			if e.Keysym.Sym == sdl.K_ESCAPE && e.Type == sdl.KEYDOWN {
				s.running = false
				continue
			}
			if k, ok := sdlKeyMapping[e.Keysym.Sym]; ok {
				events = append(events, input.Event{Key: k, Pressed: e.Type == sdl.KEYDOWN})
			}
		}
	}
	if !s.running {
		return events, nil
	}

	if err := s.renderFrame(frame); err != nil {
		return events, err
	}
	return events, nil
}

func (s *SDL2) renderFrame(frame *video.FrameBuffer) error {
	pixels := make([]byte, video.FramebufferWidth*video.FramebufferHeight*4)
	for i, c := range frame.ToSlice() {
		r, g, b := expandColor15(c)
		pixels[i*4] = r
		pixels[i*4+1] = g
		pixels[i*4+2] = b
		pixels[i*4+3] = 0xFF
	}
	if err := s.texture.Update(nil, unsafe.Pointer(&pixels[0]), video.FramebufferWidth*4); err != nil {
		return fmt.Errorf("update texture: %w", err)
	}
	s.renderer.Clear()
	s.renderer.Copy(s.texture, nil, nil)
	s.renderer.Present()
	return nil
}

// IsDone reports whether the user closed the window or pressed Escape.
func (s *SDL2) IsDone() bool { return s.window != nil && !s.running }

func (s *SDL2) Cleanup() error {
	if s.texture != nil {
		s.texture.Destroy()
	}
	if s.renderer != nil {
		s.renderer.Destroy()
	}
	if s.window != nil {
		s.window.Destroy()
	}
	sdl.Quit()
	return nil
}
