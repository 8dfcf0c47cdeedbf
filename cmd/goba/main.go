package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli"

	"github.com/shelvric/goba/goba/backend"
	"github.com/shelvric/goba/goba/core"
)

func main() {
	app := cli.NewApp()
	app.Name = "goba"
	app.Description = "A Game Boy Advance emulator"
	app.Usage = "goba [options] <ROM file>"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rom",
			Usage: "Path to the ROM file",
		},
		cli.StringFlag{
			Name:  "bios",
			Usage: "Path to a BIOS image (boots through the reset vector instead of the cartridge entry point)",
		},
		cli.BoolFlag{
			Name:  "headless",
			Usage: "Run the emulator without a graphical interface",
		},
		cli.BoolFlag{
			Name:  "sdl",
			Usage: "Use the SDL2 backend instead of the terminal backend",
		},
		cli.IntFlag{
			Name:  "frames",
			Usage: "Number of frames to run in headless mode (required for headless)",
			Value: 0,
		},
		cli.BoolFlag{
			Name:  "test-pattern",
			Usage: "Allow starting without a ROM (no backend draws a test pattern; headless mode ends at once)",
		},
		cli.IntFlag{
			Name:  "snapshot-interval",
			Usage: "Save frame snapshots every N frames in headless mode (0 = disabled)",
			Value: 0,
		},
		cli.StringFlag{
			Name:  "snapshot-dir",
			Usage: "Directory to save frame snapshots (default: temp directory)",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "Show a CPU/register debug overlay (terminal backend only)",
		},
	}
	app.Action = runEmulator

	if err := app.Run(os.Args); err != nil {
		slog.Error("error running emulator", "error", err)
		os.Exit(1)
	}
}

func runEmulator(c *cli.Context) error {
	level := slog.LevelInfo
	if c.Bool("headless") {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	romPath := c.String("rom")
	if romPath == "" && c.NArg() > 0 {
		romPath = c.Args().Get(0)
	}
	if romPath == "" && !c.Bool("test-pattern") {
		cli.ShowAppHelp(c)
		return errors.New("no ROM path provided")
	}

	emu := core.New(logger)

	if romPath != "" {
		data, err := os.ReadFile(romPath)
		if err != nil {
			return fmt.Errorf("read rom: %w", err)
		}
		emu.LoadROM(data)
	}

	if biosPath := c.String("bios"); biosPath != "" {
		data, err := os.ReadFile(biosPath)
		if err != nil {
			return fmt.Errorf("read bios: %w", err)
		}
		emu.LoadBIOS(data)
	}

	var b backend.Backend
	if c.Bool("headless") {
		frames := c.Int("frames")
		if frames <= 0 && !c.Bool("test-pattern") {
			return errors.New("headless mode requires --frames option with a positive value")
		}
		snapshot, err := backend.NewSnapshotConfig(c.Int("snapshot-interval"), c.String("snapshot-dir"), romPath)
		if err != nil {
			return err
		}
		b = backend.NewHeadless(frames, snapshot)
	} else if c.Bool("sdl") {
		b = backend.NewSDL2()
	} else {
		b = backend.NewTerminal()
	}

	cfg := backend.Config{
		Title:       "goba",
		ShowDebug:   c.Bool("debug"),
		TestPattern: c.Bool("test-pattern"),
		Provider:    emu,
		APU:         emu.APU,
	}
	if err := b.Init(cfg); err != nil {
		return fmt.Errorf("init backend: %w", err)
	}
	defer b.Cleanup()

	return runLoop(emu, b)
}

// runLoop drives the emulator one frame at a time, feeding each
// backend's captured input back into the keypad, until the backend
// reports through IsDone that it is done (headless mode reaching its
// frame budget, or the terminal/SDL2 backend's quit key) or Update
// returns an error.
func runLoop(emu *core.Emulator, b backend.Backend) error {
	type doner interface{ IsDone() bool }

	for {
		emu.RunFrame()

		events, err := b.Update(emu.CurrentFrame())
		if err != nil {
			return err
		}
		for _, ev := range events {
			emu.PushKey(ev)
		}

		if d, ok := b.(doner); ok && d.IsDone() {
			return nil
		}
	}
}
