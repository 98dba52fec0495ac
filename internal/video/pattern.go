package video

import (
	"math"
	"sync"
)

// barColors are the classic 75% colour bars, in RGB. Fully saturated red
// and cyan fall outside the chroma range of the conversion matrix.
var barColors = [8][3]float64{
	{0.75, 0.75, 0.75}, // white
	{0.75, 0.75, 0},    // yellow
	{0, 0.75, 0.75},    // cyan
	{0, 0.75, 0},       // green
	{0.75, 0, 0.75},    // magenta
	{0.75, 0, 0},       // red
	{0, 0, 0.75},       // blue
	{0, 0, 0},          // black
}

// markerColor is drawn over the bars at the current pts.
var markerColor = [3]float64{1, 1, 1}

// RGBToYUV is the inverse of YUVToRGB, returning bytes with chroma centred
// on 128.
func RGBToYUV(r, g, b float64) (y, u, v byte) {
	yf := 0.299*r + 0.587*g + 0.114*b
	uf := (b-yf)/CoeffBU + 0.5
	vf := (r-yf)/CoeffRV + 0.5
	return toByte(yf), toByte(uf), toByte(vf)
}

func toByte(f float64) byte {
	return byte(math.Round(clamp01(f) * 255))
}

// PatternSource produces colour bar frames with a white marker that moves
// with the frame's pts. Rows are padded by Padding bytes so consumers see
// a stride wider than the picture, as real decoders produce.
type PatternSource struct {
	Width   int
	Height  int
	Padding int

	pool sync.Pool
}

// NewPatternSource returns a source for width x height frames.
func NewPatternSource(width, height, padding int) *PatternSource {
	return &PatternSource{Width: width, Height: height, Padding: max(padding, 0)}
}

// Frame renders the pattern for pts. The frame's planes are recycled once
// it is released.
func (p *PatternSource) Frame(pts int64) *Frame {
	var stride [NumPlanes]int
	sizes := 0
	for i := range stride {
		w, h := PlaneSize(p.Width, p.Height, i)
		stride[i] = w + p.Padding
		sizes += stride[i] * h
	}

	bp, _ := p.pool.Get().(*[]byte)
	if bp == nil || cap(*bp) < sizes {
		b := make([]byte, sizes)
		bp = &b
	}
	buf := (*bp)[:sizes]

	var data [NumPlanes][]byte
	off := 0
	for i := range data {
		_, h := PlaneSize(p.Width, p.Height, i)
		data[i] = buf[off : off+stride[i]*h]
		off += stride[i] * h
	}

	marker := -1
	if p.Width > 0 {
		marker = int(pts/10) % p.Width
	}
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			c := barColors[x*len(barColors)/p.Width]
			if x == marker {
				c = markerColor
			}
			yy, u, v := RGBToYUV(c[0], c[1], c[2])
			data[PlaneY][y*stride[PlaneY]+x] = yy
			if x%2 == 0 && y%2 == 0 && x/2 < p.Width/2 && y/2 < p.Height/2 {
				data[PlaneU][y/2*stride[PlaneU]+x/2] = u
				data[PlaneV][y/2*stride[PlaneV]+x/2] = v
			}
		}
	}

	return NewFrame(p.Width, p.Height, data, stride, pts, func() {
		p.pool.Put(bp)
	})
}
