package backend

import (
	"fmt"
	"log/slog"

	"github.com/gdamore/tcell/v2"

	"github.com/shelvric/goba/goba/input"
	"github.com/shelvric/goba/goba/video"
)

// keyMapping binds terminal keys to keypad buttons, grounded on
// jeebie/backend/terminal.Terminal's key-to-action table, generalized
// from the Game Boy's 8-button layout to this platform's 10 buttons.
var keyMapping = map[tcell.Key]input.Key{
	tcell.KeyUp:    input.KeyUp,
	tcell.KeyDown:  input.KeyDown,
	tcell.KeyLeft:  input.KeyLeft,
	tcell.KeyRight: input.KeyRight,
	tcell.KeyEnter: input.KeyStart,
	tcell.KeyTab:   input.KeySelect,
}

var runeMapping = map[rune]input.Key{
	'z': input.KeyA,
	'x': input.KeyB,
	'a': input.KeyL,
	's': input.KeyR,
}

// Terminal renders each frame as half-block characters over the
// nearest ANSI color, grounded on jeebie/backend/terminal.Backend but
// simplified: no disassembly/register panes, since this machine's
// debug overlay is reported through DebugProvider instead of a
// memory.MMU-shaped snapshot.
type Terminal struct {
	screen  tcell.Screen
	config  Config
	running bool
}

func NewTerminal() *Terminal { return &Terminal{} }

func (t *Terminal) Init(config Config) error {
	t.config = config

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	t.screen = screen
	t.running = true

	t.screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	t.screen.Clear()
	slog.Info("terminal backend initialized")
	return nil
}

func (t *Terminal) Update(frame *video.FrameBuffer) ([]input.Event, error) {
	var events []input.Event

	for t.screen.HasPendingEvent() {
		switch ev := t.screen.PollEvent().(type) {
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyCtrlC || ev.Key() == tcell.KeyEscape {
				t.running = false
				continue
			}
			if k, ok := keyMapping[ev.Key()]; ok {
				events = append(events, input.Event{Key: k, Pressed: true}, input.Event{Key: k, Pressed: false})
				continue
			}
			if k, ok := runeMapping[ev.Rune()]; ok {
				events = append(events, input.Event{Key: k, Pressed: true}, input.Event{Key: k, Pressed: false})
			}
		case *tcell.EventResize:
			t.screen.Sync()
		}
	}

	if !t.running {
		return events, nil
	}

	t.render(frame)
	t.screen.Show()
	return events, nil
}

// IsDone reports whether the user has requested to quit (Ctrl-C or Esc).
func (t *Terminal) IsDone() bool { return t.screen != nil && !t.running }

func (t *Terminal) Cleanup() error {
	if t.screen != nil {
		t.screen.Fini()
	}
	return nil
}

func (t *Terminal) render(frame *video.FrameBuffer) {
	t.screen.Clear()
	for y := 0; y < video.FramebufferHeight; y += 2 {
		for x := 0; x < video.FramebufferWidth; x++ {
			top := colorToTcell(frame.GetPixel(x, y))
			bottom := tcell.ColorBlack
			if y+1 < video.FramebufferHeight {
				bottom = colorToTcell(frame.GetPixel(x, y+1))
			}
			style := tcell.StyleDefault.Foreground(top).Background(bottom)
			t.screen.SetContent(x, y/2, '▀', nil, style)
		}
	}
}

func colorToTcell(c video.Color15) tcell.Color {
	r5 := uint8(c & 0x1F)
	g5 := uint8((c >> 5) & 0x1F)
	b5 := uint8((c >> 10) & 0x1F)
	return tcell.NewRGBColor(int32(r5<<3|r5>>2), int32(g5<<3|g5>>2), int32(b5<<3|b5>>2))
}
