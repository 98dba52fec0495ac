// SPDX-License-Identifier: MIT
package video

import "fmt"

// Renderer uploads the frame store's planes to three textures and draws
// them through the YUV to RGB shader. Its GPU state is guarded by the
// store mutex and only touched from InitGL, Draw, Resize and Release, all
// of which run on the render goroutine.
type Renderer struct {
	store *FrameStore
	gpu   GPU

	program     ProgramID
	hasProgram  bool
	textures    [NumPlanes]TextureID
	hasTextures bool
	stale       bool
	samplers    [NumPlanes]int32
}

// NewRenderer attaches a renderer to store. Nothing touches the GPU until
// InitGL.
func NewRenderer(store *FrameStore, gpu GPU) *Renderer {
	r := &Renderer{store: store, gpu: gpu}
	store.attach(r)
	return r
}

// InitGL builds the shader program and the quad. It must be called once
// the host's rendering context exists. Textures are created right away if
// the store is already allocated.
func (r *Renderer) InitGL() error {
	r.store.mtx.Lock()
	defer r.store.mtx.Unlock()

	if r.hasProgram {
		return nil
	}

	attribs := map[string]uint32{
		"vertexIn":  AttribVertex,
		"textureIn": AttribTexcoord,
	}
	program, err := r.gpu.CreateProgram(vertexShader, fragmentShader, attribs)
	if err != nil {
		return fmt.Errorf("failed to build YUV program: %w", err)
	}
	r.program = program
	r.hasProgram = true

	r.gpu.UseProgram(program)
	r.gpu.SetQuad(AttribVertex, quadVertices, AttribTexcoord, quadTexcoords)
	for i, name := range SamplerNames {
		r.samplers[i] = r.gpu.UniformLocation(program, name)
		if r.samplers[i] < 0 {
			log.Warnf("Sampler %s not found in YUV program", name)
		}
	}

	r.rebuildTexturesLocked()
	log.Debugf("YUV program ready")
	return nil
}

// invalidateTexturesLocked is called by FrameStore.Init, possibly from a
// decoder goroutine. It only marks the textures stale; the next InitGL or
// Draw rebuilds them on the render goroutine.
func (r *Renderer) invalidateTexturesLocked() {
	r.stale = true
}

// rebuildTexturesLocked replaces the plane textures with ones sized for
// the store's current picture. An unallocated store leaves no textures.
func (r *Renderer) rebuildTexturesLocked() {
	r.stale = false
	r.deleteTexturesLocked()
	width, height := r.store.width, r.store.height
	if width*height == 0 {
		return
	}
	for i := range r.textures {
		w, h := PlaneSize(width, height, i)
		r.textures[i] = r.gpu.CreateTexture(w, h)
	}
	r.hasTextures = true
}

func (r *Renderer) deleteTexturesLocked() {
	if !r.hasTextures {
		return
	}
	for i, t := range r.textures {
		r.gpu.DeleteTexture(t)
		r.textures[i] = 0
	}
	r.hasTextures = false
}

// Draw uploads the current planes and draws the quad. It is a no-op until
// a frame has been stored and InitGL has run. Drawing twice without a new
// frame produces the same image.
func (r *Renderer) Draw() {
	s := r.store
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if !r.hasProgram {
		return
	}
	if r.stale {
		r.rebuildTexturesLocked()
	}
	if !s.hasFrame || !r.hasTextures {
		return
	}

	r.gpu.UseProgram(r.program)
	for i := range r.textures {
		w, h := PlaneSize(s.width, s.height, i)
		r.gpu.ActiveTexture(i)
		r.gpu.BindTexture(r.textures[i])
		r.gpu.TexSubImage(w, h, s.planes[i])
		r.gpu.Uniform1i(r.samplers[i], int32(i))
	}
	r.gpu.DrawQuad()
}

// Resize records a new surface size. The store keeps its own size.
func (r *Renderer) Resize(width, height int) {
	r.store.mtx.Lock()
	defer r.store.mtx.Unlock()

	log.Debugf("Surface resized to %dx%d", width, height)
	r.gpu.Viewport(0, 0, width, height)
}

// Release frees the textures and the program.
func (r *Renderer) Release() {
	r.store.mtx.Lock()
	defer r.store.mtx.Unlock()

	r.deleteTexturesLocked()
	if r.hasProgram {
		r.gpu.DeleteProgram(r.program)
		r.hasProgram = false
	}
}
