package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectBackupFindsSignatureAnywhereInROM(t *testing.T) {
	rom := make([]byte, 0x1000)
	copy(rom[0x200:], []byte("SRAM_V110"))

	b := DetectBackup(rom)
	_, isSRAM := b.(*SRAM)
	assert.True(t, isSRAM)
}

func TestDetectBackupDefaultsToNoBackup(t *testing.T) {
	rom := make([]byte, 0x100)
	b := DetectBackup(rom)
	_, isNoBackup := b.(NoBackup)
	assert.True(t, isNoBackup)
}

func TestSRAMRoundTripsThroughBytes(t *testing.T) {
	s := NewSRAM()
	s.Write(10, 0x42)
	assert.True(t, s.Dirty())
	assert.False(t, s.Dirty(), "Dirty clears on read")

	saved := append([]byte(nil), s.Bytes()...)

	restored := NewSRAM()
	restored.LoadBytes(saved)
	assert.Equal(t, uint8(0x42), restored.Read(10))
}

func TestFlashIdentifyCommandSequence(t *testing.T) {
	f := NewFlash(0x10000)
	f.Write(0x5555, 0xAA)
	f.Write(0x2AAA, 0x55)
	f.Write(0x5555, 0x90)

	assert.Equal(t, uint8(flashManufacturerID), f.Read(0))
	assert.Equal(t, uint8(flashDeviceID), f.Read(1))
}

func TestFlashSectorErase(t *testing.T) {
	f := NewFlash(0x10000)
	f.mem[0x1000] = 0x55

	f.Write(0x5555, 0xAA)
	f.Write(0x2AAA, 0x55)
	f.Write(0x5555, 0x80)
	f.Write(0x5555, 0xAA)
	f.Write(0x2AAA, 0x55)
	f.Write(0x1000, 0x30)

	assert.Equal(t, uint8(0xFF), f.Read(0x1000))
	assert.True(t, f.Dirty())
}

func TestFlashRoundTripsThroughBytes(t *testing.T) {
	f := NewFlash(0x10000)
	f.Write(0x5555, 0xAA)
	f.Write(0x2AAA, 0x55)
	f.Write(0x5555, 0xA0)
	f.Write(0x1234, 0x99)

	saved := append([]byte(nil), f.Bytes()...)

	restored := NewFlash(0x10000)
	restored.LoadBytes(saved)
	assert.Equal(t, uint8(0x99), restored.Read(0x1234))
}

// writeEEPROMByte drives the bit-serial write protocol for one
// 8-byte-block write: handshake, 6-bit address, 64 data bits, stop bit.
func writeEEPROMByte(e *EEPROM, addr int, data [8]byte) {
	e.WriteBit(1) // request
	e.WriteBit(0) // write select
	for i := e.addrBits - 1; i >= 0; i-- {
		e.WriteBit(uint16(addr >> uint(i) & 1))
	}
	for _, b := range data {
		for bit := 7; bit >= 0; bit-- {
			e.WriteBit(uint16(b >> uint(bit) & 1))
		}
	}
	e.WriteBit(0) // stop bit
}

func TestEEPROMRoundTripsThroughBytes(t *testing.T) {
	e := NewEEPROM()
	var block [8]byte
	copy(block[:], []byte("ABCDEFGH"))
	writeEEPROMByte(e, 3, block)
	assert.True(t, e.Dirty())

	saved := append([]byte(nil), e.Bytes()...)
	restored := NewEEPROM()
	restored.LoadBytes(saved)

	restored.WriteBit(1)
	restored.WriteBit(1) // read select
	for i := restored.addrBits - 1; i >= 0; i-- {
		restored.WriteBit(uint16(3 >> uint(i) & 1))
	}
	for i := 0; i < 4; i++ {
		restored.ReadBit() // stall bits before the 64 data bits
	}
	var got [8]byte
	for i := range got {
		var b byte
		for bit := 0; bit < 8; bit++ {
			b = b<<1 | byte(restored.ReadBit())
		}
		got[i] = b
	}
	assert.Equal(t, block, got)
}
