package video

const (
	oamEntryCount = 128
	oamEntrySize  = 8
)

var spriteSizeTable = [4][4][2]int{
	{{8, 8}, {16, 16}, {32, 32}, {64, 64}},   // square
	{{16, 8}, {32, 8}, {32, 16}, {64, 32}},   // horizontal
	{{8, 16}, {8, 32}, {16, 32}, {32, 64}},   // vertical
	{{8, 8}, {8, 8}, {8, 8}, {8, 8}},         // reserved, unused
}

type spriteAttrs struct {
	y, x           int
	affine         bool
	doubleSize     bool
	disabled       bool
	mode           int // 0 normal, 1 alpha-blend, 2 window, 3 invalid
	mosaic         bool
	is8bpp         bool
	shape, size    int
	tileIndex      int
	priority       int
	paletteBank    int
	affineParamIdx int
	flipX, flipY   bool
}

func (g *GPU) readSprite(index int) spriteAttrs {
	base := index * oamEntrySize
	attr0 := uint16(g.oamByte(base)) | uint16(g.oamByte(base+1))<<8
	attr1 := uint16(g.oamByte(base+2)) | uint16(g.oamByte(base+3))<<8
	attr2 := uint16(g.oamByte(base+4)) | uint16(g.oamByte(base+5))<<8

	var a spriteAttrs
	a.y = int(attr0 & 0xFF)
	a.affine = attr0&0x0100 != 0
	a.doubleSize = a.affine && attr0&0x0200 != 0
	a.disabled = !a.affine && attr0&0x0200 != 0
	a.mode = int(attr0 >> 10 & 0x3)
	a.mosaic = attr0&0x1000 != 0
	a.is8bpp = attr0&0x2000 != 0
	a.shape = int(attr0 >> 14 & 0x3)

	a.x = int(attr1 & 0x1FF)
	if a.x >= 240 {
		a.x -= 512
	}
	a.affineParamIdx = int(attr1 >> 9 & 0x1F)
	a.flipX = !a.affine && attr1&0x1000 != 0
	a.flipY = !a.affine && attr1&0x2000 != 0
	a.size = int(attr1 >> 14 & 0x3)

	a.tileIndex = int(attr2 & 0x3FF)
	a.priority = int(attr2 >> 10 & 0x3)
	a.paletteBank = int(attr2 >> 12 & 0xF)
	return a
}

func (g *GPU) oamByte(offset int) byte {
	if offset < 0 || offset >= len(g.oam) {
		return 0
	}
	return g.oam[offset]
}

// renderSprites scans OAM back-to-front (highest index drawn first so
// lower indices win ties) and claims pixels in the shared priority
// buffer, writing color output for whichever sprite ends up owning
// each pixel.
func (g *GPU) renderSprites(line int, out []Color15, opaque []bool) {
	if g.dispcnt()&0x1000 == 0 {
		return
	}
	g.spriteBuf.Clear()

	for i := oamEntryCount - 1; i >= 0; i-- {
		a := g.readSprite(i)
		if a.disabled {
			continue
		}
		w, h := spriteSizeTable[a.shape][a.size][0], spriteSizeTable[a.shape][a.size][1]
		boundsW, boundsH := w, h
		if a.doubleSize {
			boundsW, boundsH = w*2, h*2
		}

		relY := line - a.y
		if relY < 0 {
			relY += 256
		}
		if relY >= boundsH {
			continue
		}

		tilesPerRow := w / 8

		for sx := 0; sx < boundsW; sx++ {
			screenX := a.x + sx
			if screenX < 0 || screenX >= FramebufferWidth {
				continue
			}
			if !g.spriteBuf.TryClaimPixel(screenX, i, a.priority) {
				continue
			}

			localX, localY := sx, relY
			if a.doubleSize {
				localX = sx - (boundsW-w)/2
				localY = relY - (boundsH-h)/2
				if localX < 0 || localY < 0 || localX >= w || localY >= h {
					continue
				}
			}
			if a.flipX {
				localX = w - 1 - localX
			}
			if a.flipY {
				localY = h - 1 - localY
			}

			tileCol := localX / 8
			tileRow := localY / 8
			fineX, fineY := localX%8, localY%8

			var colorIndex int
			if a.is8bpp {
				tileNum := a.tileIndex/2 + tileRow*tilesPerRow + tileCol
				tileAddr := 0x10000 + tileNum*64 + fineY*8 + fineX
				colorIndex = int(g.vramByte(tileAddr))
			} else {
				tileNum := a.tileIndex + tileRow*tilesPerRow + tileCol
				tileAddr := 0x10000 + tileNum*32 + fineY*4 + fineX/2
				b := g.vramByte(tileAddr)
				if fineX&1 == 0 {
					colorIndex = int(b & 0xF)
				} else {
					colorIndex = int(b >> 4)
				}
				if colorIndex != 0 {
					colorIndex += a.paletteBank * 16
				}
			}

			if colorIndex == 0 {
				continue
			}
			out[screenX] = g.paletteColor(colorIndex, true)
			opaque[screenX] = true
		}
	}
}
