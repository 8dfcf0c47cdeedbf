package cart

const sramSize = 0x8000

// SRAM is the trivial battery-backed backend: a flat byte array with
// no command protocol, grounded on sram.rs.
type SRAM struct {
	mem   [sramSize]byte
	dirty bool
}

func NewSRAM() *SRAM { return &SRAM{} }

func (s *SRAM) Read(address uint32) uint8 {
	if address >= sramSize {
		return 0
	}
	return s.mem[address]
}

func (s *SRAM) Write(address uint32, value uint8) {
	if address >= sramSize {
		return
	}
	s.mem[address] = value
	s.dirty = true
}

func (s *SRAM) Dirty() bool {
	d := s.dirty
	s.dirty = false
	return d
}

func (s *SRAM) Size() int     { return sramSize }
func (s *SRAM) Bytes() []byte { return s.mem[:] }

// LoadBytes restores a previously saved image, sized to match.
func (s *SRAM) LoadBytes(data []byte) {
	copy(s.mem[:], data)
}
