package cart

// Flash manufacturer/device IDs match the Sanyo part the original
// targets, so rom_backup-chip autodetect tools see a familiar chip.
const (
	flashManufacturerID = 0x62
	flashDeviceID       = 0x13

	flashCommandAddr  = 0x5555
	flashCommand1Addr = 0x2AAA

	bankSize = 0x10000
)

type flashCommand int

const (
	flashCommand0 flashCommand = iota
	flashCommand1
	flashCommand2
)

type flashMode int

const (
	flashModeReady flashMode = iota
	flashModeErase
	flashModeWrite
	flashModeSetBank
)

// Flash implements the Sanyo 5555/2AAA command-sequence protocol:
// Command0 -[0xAA@0x5555]-> Command1 -[0x55@0x2AAA]-> Command2, which
// dispatches on the next byte into identify/erase/write/set-bank
// modes. Grounded on flash.rs.
type Flash struct {
	mem       []byte
	command   flashCommand
	mode      flashMode
	bank      int
	chipIdent bool
	dirty     bool
}

// NewFlash returns a Flash backend sized for the 64KiB (FLASH_V /
// FLASH512_V) or 128KiB (FLASH1M_V, bank-switched) variant.
func NewFlash(size int) *Flash {
	mem := make([]byte, size)
	for i := range mem {
		mem[i] = 0xFF
	}
	return &Flash{mem: mem}
}

func (f *Flash) Read(address uint32) uint8 {
	if f.chipIdent {
		switch address {
		case 0:
			return flashManufacturerID
		case 1:
			return flashDeviceID
		}
	}
	off := f.bank*bankSize + int(address)
	if off < 0 || off >= len(f.mem) {
		return 0xFF
	}
	return f.mem[off]
}

func (f *Flash) Write(address uint32, value uint8) {
	switch f.mode {
	case flashModeWrite:
		off := f.bank*bankSize + int(address)
		if off >= 0 && off < len(f.mem) {
			f.mem[off] = value
			f.dirty = true
		}
		f.mode = flashModeReady
		return
	case flashModeSetBank:
		if len(f.mem) > bankSize {
			f.bank = int(value & 1)
		}
		f.mode = flashModeReady
		return
	}

	switch f.command {
	case flashCommand0:
		if address != flashCommandAddr || value != 0xAA {
			return
		}
		f.command = flashCommand1
		return
	case flashCommand1:
		if address != flashCommand1Addr || value != 0x55 {
			f.command = flashCommand0
			return
		}
		f.command = flashCommand2
		return
	case flashCommand2:
		f.command = flashCommand0
	}

	switch f.mode {
	case flashModeReady:
		if address != flashCommandAddr {
			return
		}
		switch value {
		case 0x90:
			f.chipIdent = true
		case 0xF0:
			f.chipIdent = false
		case 0x80:
			f.mode = flashModeErase
		case 0xA0:
			f.mode = flashModeWrite
		case 0xB0:
			f.mode = flashModeSetBank
		}
	case flashModeErase:
		switch value {
		case 0x10: // chip erase
			for i := range f.mem {
				f.mem[i] = 0xFF
			}
			f.dirty = true
		case 0x30: // sector erase, 4KiB aligned
			sector := f.bank*bankSize + int(address&^0xFFF)
			if sector >= 0 && sector+0x1000 <= len(f.mem) {
				for i := sector; i < sector+0x1000; i++ {
					f.mem[i] = 0xFF
				}
				f.dirty = true
			}
		}
		f.mode = flashModeReady
	}
}

func (f *Flash) Dirty() bool {
	d := f.dirty
	f.dirty = false
	return d
}

func (f *Flash) Size() int     { return len(f.mem) }
func (f *Flash) Bytes() []byte { return f.mem }

func (f *Flash) LoadBytes(data []byte) {
	if len(data) == len(f.mem) {
		copy(f.mem, data)
	}
}
