// SPDX-License-Identifier: MIT
package video

import (
	"sync"
	"sync/atomic"

	applog "player/internal/log"
)

var log = applog.Logger("VIDEO")

// textureOwner is implemented by the renderer. Its methods are called with
// the store mutex held and must not touch the GPU.
type textureOwner interface {
	invalidateTexturesLocked()
}

// StoreStats counts frames offered to CopyIn.
type StoreStats struct {
	Accepted  uint64
	Discarded uint64
}

// FrameStore holds the most recent decoded picture in three tightly packed
// planes. The same mutex guards the planes and the renderer's textures, so
// Init, CopyIn and Draw never overlap.
type FrameStore struct {
	mtx      sync.Mutex
	width    int
	height   int
	planes   [NumPlanes][]byte
	hasFrame bool
	owner    textureOwner
	onRedraw func()

	accepted  atomic.Uint64
	discarded atomic.Uint64
}

// NewFrameStore returns an unallocated store. onRedraw, if not nil, is
// called after every accepted frame.
func NewFrameStore(onRedraw func()) *FrameStore {
	return &FrameStore{onRedraw: onRedraw}
}

// SetRedraw replaces the callback fired after an accepted frame.
func (s *FrameStore) SetRedraw(fn func()) {
	s.mtx.Lock()
	s.onRedraw = fn
	s.mtx.Unlock()
}

func (s *FrameStore) attach(owner textureOwner) {
	s.mtx.Lock()
	s.owner = owner
	s.mtx.Unlock()
}

// Init reallocates the planes for a width x height picture. Negative sizes
// are treated as zero. The previous picture is dropped. Init may be called
// from any goroutine: it makes no GPU calls and only marks the renderer's
// textures stale, so they are recreated at the new size by the next InitGL
// or Draw on the render goroutine.
func (s *FrameStore) Init(width, height int) {
	width = max(width, 0)
	height = max(height, 0)

	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.width = width
	s.height = height
	for i := range s.planes {
		w, h := PlaneSize(width, height, i)
		s.planes[i] = make([]byte, w*h)
	}
	s.hasFrame = false

	if s.owner != nil {
		s.owner.invalidateTexturesLocked()
	}
	log.Debugf("Frame store initialised at %dx%d", width, height)
}

// CopyIn copies frame into the store and releases it. Frames are dropped
// when the store is unallocated, when the size differs from the last Init
// or when a plane is shorter than its stride implies.
func (s *FrameStore) CopyIn(frame *Frame) {
	if frame == nil {
		return
	}
	defer frame.Release()

	s.mtx.Lock()
	if s.width*s.height == 0 || frame.Width != s.width || frame.Height != s.height {
		s.mtx.Unlock()
		s.discarded.Add(1)
		log.Debugf("Dropping %dx%d frame at %dms, store is %dx%d",
			frame.Width, frame.Height, frame.PTS, s.width, s.height)
		return
	}

	if !planesFit(frame, s.width, s.height) {
		s.mtx.Unlock()
		s.discarded.Add(1)
		log.Debugf("Dropping frame at %dms, plane data shorter than its stride", frame.PTS)
		return
	}

	for i := range s.planes {
		w, h := PlaneSize(s.width, s.height, i)
		copyPlane(s.planes[i], frame.Data[i], w, h, frame.Stride[i])
	}
	s.hasFrame = true
	redraw := s.onRedraw
	s.mtx.Unlock()

	s.accepted.Add(1)
	if redraw != nil {
		redraw()
	}
}

// planesFit reports whether every plane of f holds at least w x h pixels
// at its stride.
func planesFit(f *Frame, width, height int) bool {
	for i := 0; i < NumPlanes; i++ {
		w, h := PlaneSize(width, height, i)
		if h == 0 || w == 0 {
			continue
		}
		if f.Stride[i] < w || len(f.Data[i]) < (h-1)*f.Stride[i]+w {
			return false
		}
	}
	return true
}

// copyPlane packs a w x h plane read at stride into dst.
func copyPlane(dst, src []byte, w, h, stride int) {
	if stride == w {
		copy(dst, src[:w*h])
		return
	}
	for row := 0; row < h; row++ {
		copy(dst[row*w:(row+1)*w], src[row*stride:row*stride+w])
	}
}

// Width returns the width set by the last Init.
func (s *FrameStore) Width() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.width
}

// Height returns the height set by the last Init.
func (s *FrameStore) Height() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.height
}

// HasFrame reports whether a frame was accepted since the last Init.
func (s *FrameStore) HasFrame() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.hasFrame
}

// Planes returns a copy of the stored planes.
func (s *FrameStore) Planes() [NumPlanes][]byte {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var out [NumPlanes][]byte
	for i, p := range s.planes {
		out[i] = append([]byte(nil), p...)
	}
	return out
}

// Stats returns the accepted and discarded frame counts.
func (s *FrameStore) Stats() StoreStats {
	return StoreStats{
		Accepted:  s.accepted.Load(),
		Discarded: s.discarded.Load(),
	}
}
