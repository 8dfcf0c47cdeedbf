package cpu

import "github.com/shelvric/goba/goba/addr"

// AccessKind classifies a bus transaction for wait-state and prefetch
// accounting, per spec §4.1.
type AccessKind uint8

const (
	Sequential AccessKind = iota
	NonSequential
	InternalAccess
)

// Bus is the minimal surface the CPU needs from the bus/wait-state
// engine. bus.Bus satisfies this interface structurally; the cpu
// package does not import bus, avoiding an import cycle.
type Bus interface {
	Read8(address uint32, kind AccessKind) uint8
	Read16(address uint32, kind AccessKind) uint16
	Read32(address uint32, kind AccessKind) uint32
	Write8(address uint32, kind AccessKind, value uint8)
	Write16(address uint32, kind AccessKind, value uint16)
	Write32(address uint32, kind AccessKind, value uint32)
	Internal(cycles int)
	RequestInterrupt(source addr.Interrupt)
}
