// Package serial implements the emulator's test-hook debug port: a
// memory-mapped message buffer test ROMs (and the core loop's own
// diagnostics) can write to and flush with a severity tag, logged
// through slog the way jeebie/serial.LogSink buffers and flushes
// outgoing bytes, generalized from single-byte SB/SC transfers to a
// 256-byte buffer plus a flush register per spec §6.
package serial

import (
	"context"
	"log/slog"

	"github.com/shelvric/goba/goba/addr"
)

const bufferSize = 256

// DebugPort owns the 256-byte message buffer and the flush register;
// a write to DebugFlush logs the buffer's contents so far at the
// written severity and resets the write cursor.
type DebugPort struct {
	enabled bool
	buf     [bufferSize]byte
	cursor  int
	log     *slog.Logger
}

func New(log *slog.Logger) *DebugPort {
	if log == nil {
		log = slog.Default()
	}
	return &DebugPort{log: log}
}

func (p *DebugPort) InRange(offset uint16) bool {
	return offset == addr.DebugEnable ||
		(offset >= addr.DebugBuffer && offset < addr.DebugBuffer+bufferSize) ||
		offset == addr.DebugFlush
}

func (p *DebugPort) ReadIO(offset uint16) uint16 {
	switch {
	case offset == addr.DebugEnable:
		if p.enabled {
			return 1
		}
		return 0
	case offset >= addr.DebugBuffer && offset < addr.DebugBuffer+bufferSize:
		i := offset - addr.DebugBuffer
		return uint16(p.buf[i]) | uint16(p.buf[i+1])<<8
	}
	return 0
}

func (p *DebugPort) WriteIO(offset uint16, value uint16) {
	switch {
	case offset == addr.DebugEnable:
		p.enabled = value != 0
	case offset >= addr.DebugBuffer && offset < addr.DebugBuffer+bufferSize:
		i := offset - addr.DebugBuffer
		p.buf[i] = byte(value)
		p.buf[i+1] = byte(value >> 8)
		if int(i)+2 > p.cursor {
			p.cursor = int(i) + 2
		}
	case offset == addr.DebugFlush:
		p.flush(addr.DebugSeverity(value))
	}
}

func (p *DebugPort) flush(severity addr.DebugSeverity) {
	if !p.enabled || p.cursor == 0 {
		p.cursor = 0
		return
	}
	msg := nulTerminated(p.buf[:p.cursor])
	level := severityToLevel(severity)
	p.log.Log(context.Background(), level, "debug port", "message", msg)
	p.cursor = 0
}

func nulTerminated(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Snapshot is the gob-serializable image of the buffer and cursor,
// used by package core's save-state support.
type Snapshot struct {
	Enabled bool
	Buf     [bufferSize]byte
	Cursor  int
}

func (p *DebugPort) Snapshot() Snapshot {
	return Snapshot{Enabled: p.enabled, Buf: p.buf, Cursor: p.cursor}
}

func (p *DebugPort) Restore(s Snapshot) {
	p.enabled, p.buf, p.cursor = s.Enabled, s.Buf, s.Cursor
}

func severityToLevel(s addr.DebugSeverity) slog.Level {
	switch s {
	case addr.SeverityFatal, addr.SeverityError:
		return slog.LevelError
	case addr.SeverityWarn:
		return slog.LevelWarn
	case addr.SeverityDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
