package video

import "sync/atomic"

// Plane indices of a planar YUV 4:2:0 image.
const (
	PlaneY = iota
	PlaneU
	PlaneV
	NumPlanes
)

// Frame is a decoded planar YUV 4:2:0 picture. Stride holds the byte
// length of one row in each plane, which may exceed the plane width when
// the decoder pads rows.
type Frame struct {
	Width  int
	Height int
	Data   [NumPlanes][]byte
	Stride [NumPlanes]int
	PTS    int64 // milliseconds

	release  func()
	released atomic.Bool
}

// NewFrame wraps decoded planes. release, if not nil, is called once when
// the frame is released.
func NewFrame(width, height int, data [NumPlanes][]byte, stride [NumPlanes]int, pts int64, release func()) *Frame {
	return &Frame{
		Width:   width,
		Height:  height,
		Data:    data,
		Stride:  stride,
		PTS:     pts,
		release: release,
	}
}

// Release hands the frame back to its producer. Only the first call has an
// effect.
func (f *Frame) Release() {
	if f == nil || !f.released.CompareAndSwap(false, true) {
		return
	}
	if f.release != nil {
		f.release()
	}
}

// Released reports whether Release has been called.
func (f *Frame) Released() bool {
	return f.released.Load()
}

// PlaneSize returns the dimensions of plane i for a width x height image.
// Chroma planes are subsampled by two in both directions.
func PlaneSize(width, height, plane int) (w, h int) {
	if plane == PlaneY {
		return width, height
	}
	return width / 2, height / 2
}
