package serial

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shelvric/goba/goba/addr"
)

func TestFlushLogsBufferedMessageAtSeverity(t *testing.T) {
	var out bytes.Buffer
	log := slog.New(slog.NewTextHandler(&out, nil))
	p := New(log)

	p.WriteIO(addr.DebugEnable, 1)
	p.WriteIO(addr.DebugBuffer, uint16('h')|uint16('i')<<8)
	p.WriteIO(addr.DebugFlush, uint16(addr.SeverityWarn))

	assert.Contains(t, out.String(), "hi")
	assert.Contains(t, out.String(), "WARN")
}

func TestFlushWithoutEnableIsANoop(t *testing.T) {
	var out bytes.Buffer
	log := slog.New(slog.NewTextHandler(&out, nil))
	p := New(log)

	p.WriteIO(addr.DebugBuffer, uint16('x'))
	p.WriteIO(addr.DebugFlush, uint16(addr.SeverityInfo))

	assert.Empty(t, out.String())
}

func TestCursorResetsAfterFlush(t *testing.T) {
	var out bytes.Buffer
	log := slog.New(slog.NewTextHandler(&out, nil))
	p := New(log)
	p.WriteIO(addr.DebugEnable, 1)

	p.WriteIO(addr.DebugBuffer, uint16('a'))
	p.WriteIO(addr.DebugFlush, uint16(addr.SeverityInfo))
	assert.Equal(t, 0, p.cursor)
}
