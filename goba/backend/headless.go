package backend

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shelvric/goba/goba/input"
	"github.com/shelvric/goba/goba/video"
)

// SnapshotConfig configures periodic PNG snapshotting, grounded on
// jeebie/backend.SnapshotConfig and jeebie/debug.SaveFramePNGToDir.
type SnapshotConfig struct {
	Enabled   bool
	Interval  int
	Directory string
	ROMName   string
}

// NewSnapshotConfig builds a SnapshotConfig from CLI parameters,
// creating the output directory (or a temp one) up front.
func NewSnapshotConfig(interval int, directory, romPath string) (SnapshotConfig, error) {
	cfg := SnapshotConfig{Enabled: interval > 0, Interval: interval}
	if !cfg.Enabled {
		return cfg, nil
	}
	if directory == "" {
		dir, err := os.MkdirTemp("", "goba-snapshots-*")
		if err != nil {
			return cfg, fmt.Errorf("create snapshot dir: %w", err)
		}
		cfg.Directory = dir
	} else {
		if err := os.MkdirAll(directory, 0o755); err != nil {
			return cfg, fmt.Errorf("create snapshot dir: %w", err)
		}
		cfg.Directory = directory
	}
	cfg.ROMName = filepath.Base(romPath)
	return cfg, nil
}

// Headless implements Backend for batch/automated runs: no rendering
// surface, just optional periodic PNG snapshots and a frame budget.
type Headless struct {
	config     Config
	snapshot   SnapshotConfig
	maxFrames  int
	frameCount int
	Done       bool
}

func NewHeadless(maxFrames int, snapshot SnapshotConfig) *Headless {
	return &Headless{maxFrames: maxFrames, snapshot: snapshot}
}

func (h *Headless) Init(config Config) error {
	h.config = config
	if config.TestPattern {
		slog.Info("headless test pattern mode, exiting immediately")
		h.Done = true
		return nil
	}
	slog.Info("running headless", "frames", h.maxFrames, "snapshot_interval", h.snapshot.Interval)
	return nil
}

func (h *Headless) Update(frame *video.FrameBuffer) ([]input.Event, error) {
	h.frameCount++

	if h.snapshot.Enabled && h.frameCount%h.snapshot.Interval == 0 {
		h.saveSnapshot(frame)
	}
	if h.frameCount%60 == 0 {
		slog.Info("frame progress", "completed", h.frameCount, "total", h.maxFrames)
	}

	if h.maxFrames > 0 && h.frameCount >= h.maxFrames {
		if h.snapshot.Enabled && h.frameCount%h.snapshot.Interval != 0 {
			h.saveSnapshot(frame)
		}
		h.Done = true
	}
	return nil, nil
}

// IsDone reports whether the configured frame budget has been reached.
func (h *Headless) IsDone() bool { return h.Done }

func (h *Headless) Cleanup() error { return nil }

func (h *Headless) saveSnapshot(frame *video.FrameBuffer) {
	name := fmt.Sprintf("%s_frame_%d_%s.png", h.snapshot.ROMName, h.frameCount, time.Now().Format("150405"))
	path := filepath.Join(h.snapshot.Directory, name)
	if err := saveFramePNG(frame, path); err != nil {
		slog.Error("failed to save snapshot", "frame", h.frameCount, "error", err)
	}
}

// saveFramePNG renders a BGR555 framebuffer to an 8-bit PNG, expanding
// each 5-bit channel to 8 bits by replicating the top 3 bits.
func saveFramePNG(frame *video.FrameBuffer, path string) error {
	img := image.NewRGBA(image.Rect(0, 0, video.FramebufferWidth, video.FramebufferHeight))
	for y := 0; y < video.FramebufferHeight; y++ {
		for x := 0; x < video.FramebufferWidth; x++ {
			r, g, b := expandColor15(frame.GetPixel(x, y))
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 0xFF})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func expandColor15(c video.Color15) (r, g, b uint8) {
	r5 := uint8(c & 0x1F)
	g5 := uint8((c >> 5) & 0x1F)
	b5 := uint8((c >> 10) & 0x1F)
	return r5<<3 | r5>>2, g5<<3 | g5>>2, b5<<3 | b5>>2
}
