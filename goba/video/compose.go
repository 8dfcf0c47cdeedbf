package video

// layer indexes the composited sources a window or blend effect can
// target: backgrounds 0-3, then sprites.
const (
	layerBG0 = iota
	layerBG1
	layerBG2
	layerBG3
	layerSprite
	layerCount
)

type windowState struct {
	enabled  [2]bool
	x1, x2   [2]int
	y1, y2   [2]int
	layers   [2][layerCount]bool
	objWin   bool
	outside  [layerCount]bool
}

func (g *GPU) windowConfig() windowState {
	var w windowState
	dispcnt := g.dispcnt()
	w.enabled[0] = dispcnt&0x2000 != 0
	w.enabled[1] = dispcnt&0x4000 != 0
	w.objWin = dispcnt&0x8000 != 0

	win0h := g.ReadIO(0x040)
	win1h := g.ReadIO(0x042)
	win0v := g.ReadIO(0x044)
	win1v := g.ReadIO(0x046)
	w.x1[0], w.x2[0] = int(win0h>>8), int(win0h&0xFF)
	w.x1[1], w.x2[1] = int(win1h>>8), int(win1h&0xFF)
	w.y1[0], w.y2[0] = int(win0v>>8), int(win0v&0xFF)
	w.y1[1], w.y2[1] = int(win1v>>8), int(win1v&0xFF)

	winin := g.ReadIO(0x048)
	winout := g.ReadIO(0x04A)
	for l := 0; l < layerCount; l++ {
		w.layers[0][l] = winin&(1<<uint(l)) != 0
		w.layers[1][l] = winin&(1<<uint(l+8)) != 0
		w.outside[l] = winout&(1<<uint(l)) != 0
	}
	return w
}

func inRange(v, lo, hi int) bool {
	if lo <= hi {
		return v >= lo && v < hi
	}
	return v >= lo || v < hi // wraps around the screen
}

// layerEnabled reports whether layer l is visible at (x,y): true
// unconditionally when no window is enabled, otherwise resolved from
// the highest-priority window containing the pixel, or the "outside"
// set when none do.
func (w *windowState) layerEnabled(x, y, l int) bool {
	if !w.enabled[0] && !w.enabled[1] {
		return true
	}
	for i := 0; i < 2; i++ {
		if !w.enabled[i] {
			continue
		}
		if inRange(x, w.x1[i], w.x2[i]) && inRange(y, w.y1[i], w.y2[i]) {
			return w.layers[i][l]
		}
	}
	return w.outside[l]
}

// renderScanline renders one visible scanline into the active frame
// buffer, dispatching over the six render modes and running the
// sprite and window/blend compositor passes.
func (g *GPU) renderScanline(line int) {
	mode := g.dispcnt() & 0x7

	var layers [4][FramebufferWidth]Color15
	var opaque [4][FramebufferWidth]bool

	switch mode {
	case 0:
		for bg := 0; bg < 4; bg++ {
			if g.dispcnt()&(0x100<<uint(bg)) != 0 {
				g.renderTextBackground(bg, line, layers[bg][:], opaque[bg][:])
			}
		}
	case 1:
		for bg := 0; bg < 2; bg++ {
			if g.dispcnt()&(0x100<<uint(bg)) != 0 {
				g.renderTextBackground(bg, line, layers[bg][:], opaque[bg][:])
			}
		}
		if g.dispcnt()&0x400 != 0 {
			g.renderAffineBackground(0, 2, line, layers[2][:], opaque[2][:])
		}
	case 2:
		if g.dispcnt()&0x400 != 0 {
			g.renderAffineBackground(0, 2, line, layers[2][:], opaque[2][:])
		}
		if g.dispcnt()&0x800 != 0 {
			g.renderAffineBackground(1, 3, line, layers[3][:], opaque[3][:])
		}
	case 3:
		g.renderBitmapMode3(line, layers[2][:])
		for x := range opaque[2] {
			opaque[2][x] = true
		}
	case 4:
		g.renderBitmapMode4(line, layers[2][:])
		for x := range opaque[2] {
			opaque[2][x] = true
		}
	case 5:
		g.renderBitmapMode5(line, layers[2][:])
		for x := 0; x < 160; x++ {
			opaque[2][x] = true
		}
	}

	if mode >= 1 {
		g.advanceAffineReferencePoints()
	}

	var spriteLine [FramebufferWidth]Color15
	var spriteOpaque [FramebufferWidth]bool
	g.renderSprites(line, spriteLine[:], spriteOpaque[:])

	win := g.windowConfig()
	backdrop := g.paletteColor(0, false)

	for x := 0; x < FramebufferWidth; x++ {
		color := backdrop
		bestPriority := 5

		if spriteOpaque[x] && win.layerEnabled(x, line, layerSprite) {
			color = spriteLine[x]
			bestPriority = g.spriteBuf.ownerPriority[x]
		}
		for bg := 3; bg >= 0; bg-- {
			if !opaque[bg][x] || !win.layerEnabled(x, line, bg) {
				continue
			}
			prio := int(g.bgControl(bg) & 0x3)
			if prio <= bestPriority {
				color = layers[bg][x]
				bestPriority = prio
			}
		}

		g.fb.SetPixel(x, line, g.applyBlend(x, line, color))
	}
}

// applyBlend applies BLDCNT's brightness increase/decrease effects to
// the already-resolved top pixel. Alpha blending (effect 1) is not
// applied: the pixel is returned unchanged. BLDCNT's target-layer bits
// and the windows' effect-enable bits are not consulted, so a
// brightness effect applies to every pixel.
func (g *GPU) applyBlend(x, y int, top Color15) Color15 {
	bldcnt := g.ReadIO(0x050)
	effect := bldcnt >> 6 & 0x3
	if effect == 0 {
		return top
	}
	bldy := g.ReadIO(0x054) & 0x1F
	r := int(top>>10) & 0x1F
	gC := int(top>>5) & 0x1F
	b := int(top) & 0x1F

	switch effect {
	case 2: // brightness increase
		r += ((31 - r) * int(bldy)) / 16
		gC += ((31 - gC) * int(bldy)) / 16
		b += ((31 - b) * int(bldy)) / 16
	case 3: // brightness decrease
		r -= (r * int(bldy)) / 16
		gC -= (gC * int(bldy)) / 16
		b -= (b * int(bldy)) / 16
	default:
		return top
	}
	return clampColor(r, gC, b)
}

func clampColor(r, g, b int) Color15 {
	clamp := func(v int) int {
		if v < 0 {
			return 0
		}
		if v > 31 {
			return 31
		}
		return v
	}
	r, g, b = clamp(r), clamp(g), clamp(b)
	return Color15(r<<10 | g<<5 | b)
}
