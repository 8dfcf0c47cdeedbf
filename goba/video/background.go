package video

// textScreenSize returns the tile-map size in tiles (w,h) for a text
// background's screen-size control bits (bgcnt bits 14-15).
func textScreenSize(screenSize uint16) (w, h int) {
	switch screenSize {
	case 0:
		return 32, 32
	case 1:
		return 64, 32
	case 2:
		return 32, 64
	default:
		return 64, 64
	}
}

// renderTextBackground fills out[0:240] with the palette-resolved
// color of background bgIndex at the given scanline, or leaves an
// entry untouched (transparent) where the tile pixel is index 0.
func (g *GPU) renderTextBackground(bgIndex, line int, out []Color15, opaque []bool) {
	cnt := g.bgControl(bgIndex)
	hofs, vofs := g.bgScroll(bgIndex)
	charBase := int(cnt>>2&0x3) * 0x4000
	screenBase := int(cnt>>8&0x1F) * 0x800
	is8bpp := cnt&0x80 != 0
	tilesW, tilesH := textScreenSize(cnt >> 14 & 0x3)

	y := (line + int(vofs)) % (tilesH * 8)
	tileRow := y / 8
	fineY := y % 8

	for x := 0; x < FramebufferWidth; x++ {
		sx := (x + int(hofs)) % (tilesW * 8)
		tileCol := sx / 8
		fineX := sx % 8

		screenBlock := (tileCol / 32) + (tileRow/32)*(tilesW/32)
		entryAddr := screenBase + screenBlock*0x800 + ((tileRow%32)*32+(tileCol%32))*2
		entry := g.vramRead16(entryAddr)

		tileIndex := int(entry & 0x3FF)
		flipX := entry&0x0400 != 0
		flipY := entry&0x0800 != 0
		paletteBank := int(entry >> 12 & 0xF)

		px, py := fineX, fineY
		if flipX {
			px = 7 - px
		}
		if flipY {
			py = 7 - py
		}

		var colorIndex int
		if is8bpp {
			tileAddr := charBase + tileIndex*64 + py*8 + px
			colorIndex = int(g.vramByte(tileAddr))
		} else {
			tileAddr := charBase + tileIndex*32 + py*4 + px/2
			b := g.vramByte(tileAddr)
			if px&1 == 0 {
				colorIndex = int(b & 0xF)
			} else {
				colorIndex = int(b >> 4)
			}
			if colorIndex != 0 {
				colorIndex += paletteBank * 16
			}
		}

		if colorIndex == 0 {
			continue
		}
		out[x] = g.paletteColor(colorIndex, false)
		opaque[x] = true
	}
}

// renderAffineBackground renders one scanline of an affine background
// (bgIdx 0 => BG2, 1 => BG3) using the GPU's latched reference point,
// advanced per spec's latch-at-frame-start-then-increment-per-scanline
// model: the caller is responsible for incrementing refX/refY after
// each call.
func (g *GPU) renderAffineBackground(bgIdx, bgControlIndex, line int, out []Color15, opaque []bool) {
	cnt := g.bgControl(bgControlIndex)
	charBase := int(cnt>>2&0x3) * 0x4000
	screenBase := int(cnt>>8&0x1F) * 0x800
	sizeTiles := [4]int{16, 32, 64, 128}[cnt>>14&0x3]
	sizePixels := sizeTiles * 8
	wraps := cnt&0x2000 != 0

	pa, _, pc, _ := g.affineParams(bgIdx)

	refX, refY := g.refX[bgIdx], g.refY[bgIdx]

	for x := 0; x < FramebufferWidth; x++ {
		tx := (refX + int32(x)*pa) >> 8
		ty := (refY + int32(x)*pc) >> 8

		if wraps {
			tx = ((tx % int32(sizePixels)) + int32(sizePixels)) % int32(sizePixels)
			ty = ((ty % int32(sizePixels)) + int32(sizePixels)) % int32(sizePixels)
		} else if tx < 0 || ty < 0 || int(tx) >= sizePixels || int(ty) >= sizePixels {
			continue
		}

		tileCol := int(tx) / 8
		tileRow := int(ty) / 8
		fineX := int(tx) % 8
		fineY := int(ty) % 8

		entryAddr := screenBase + (tileRow*sizeTiles+tileCol)
		tileIndex := int(g.vramByte(entryAddr))

		tileAddr := charBase + tileIndex*64 + fineY*8 + fineX
		colorIndex := int(g.vramByte(tileAddr))
		if colorIndex == 0 {
			continue
		}
		out[x] = g.paletteColor(colorIndex, false)
		opaque[x] = true
	}
}

// advanceAffineReferencePoints steps BG2/BG3 reference points by one
// scanline's worth of the dmx/dmy parameters, per the latch-then-
// increment affine model.
func (g *GPU) advanceAffineReferencePoints() {
	for idx := 0; idx < 2; idx++ {
		_, dmx, _, dmy := g.affineParams(idx)
		g.refX[idx] += dmx
		g.refY[idx] += dmy
	}
}

func (g *GPU) renderBitmapMode3(line int, out []Color15) {
	rowBase := line * FramebufferWidth * 2
	for x := 0; x < FramebufferWidth; x++ {
		addr := rowBase + x*2
		out[x] = Color15(g.vramRead16(addr))
	}
}

func (g *GPU) renderBitmapMode4(line int, out []Color15) {
	frameBase := 0
	if g.dispcnt()&0x0010 != 0 {
		frameBase = 0xA000
	}
	rowBase := frameBase + line*FramebufferWidth
	for x := 0; x < FramebufferWidth; x++ {
		idx := int(g.vramByte(rowBase + x))
		out[x] = g.paletteColor(idx, false)
	}
}

func (g *GPU) renderBitmapMode5(line int, out []Color15) {
	const w, h = 160, 128
	if line >= h {
		return
	}
	frameBase := 0
	if g.dispcnt()&0x0010 != 0 {
		frameBase = 0xA000
	}
	rowBase := frameBase + line*w*2
	for x := 0; x < w; x++ {
		out[x] = Color15(g.vramRead16(rowBase + x*2))
	}
}

func (g *GPU) vramByte(offset int) byte {
	if offset < 0 || offset >= len(g.vram) {
		return 0
	}
	return g.vram[offset]
}

func (g *GPU) vramRead16(offset int) uint16 {
	if offset < 0 || offset+1 >= len(g.vram) {
		return 0
	}
	return uint16(g.vram[offset]) | uint16(g.vram[offset+1])<<8
}

// paletteColor resolves a palette index to a Color15, reading from the
// sprite palette bank (second 256 entries) when sprite is true.
func (g *GPU) paletteColor(index int, sprite bool) Color15 {
	base := 0
	if sprite {
		base = 0x200
	}
	off := base + index*2
	if off+1 >= len(g.palette) {
		return 0
	}
	return Color15(uint16(g.palette[off]) | uint16(g.palette[off+1])<<8)
}
