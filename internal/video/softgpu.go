package video

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"sync"
)

// softUnits is the number of texture units SoftGPU emulates.
const softUnits = 8

type softTexture struct {
	w, h int
	pix  []byte
}

type softProgram struct {
	attribs  map[string]uint32
	uniforms map[string]int32
}

// SoftGPU implements GPU on the CPU. It draws into an RGBA image using the
// same YUV to RGB matrix as the fragment shader, and keeps a log of calls
// so callers can check what a renderer did.
type SoftGPU struct {
	mu sync.Mutex

	calls    []string
	nextID   uint32
	programs map[ProgramID]*softProgram
	current  ProgramID
	uniforms map[int32]int32
	textures map[TextureID]*softTexture
	units    [softUnits]TextureID
	active   int

	vertices  []float32
	texcoords []float32
	viewport  image.Rectangle
	target    *image.RGBA

	// CompileErr, when set, makes CreateProgram fail.
	CompileErr error
}

// NewSoftGPU returns a software GPU drawing into a width x height surface.
func NewSoftGPU(width, height int) *SoftGPU {
	return &SoftGPU{
		programs: make(map[ProgramID]*softProgram),
		uniforms: make(map[int32]int32),
		textures: make(map[TextureID]*softTexture),
		viewport: image.Rect(0, 0, width, height),
		target:   image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

func (g *SoftGPU) record(format string, args ...interface{}) {
	g.calls = append(g.calls, fmt.Sprintf(format, args...))
}

func (g *SoftGPU) newID() uint32 {
	g.nextID++
	return g.nextID
}

func (g *SoftGPU) CreateProgram(vertexSrc, fragmentSrc string, attribs map[string]uint32) (ProgramID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.record("CreateProgram")
	if g.CompileErr != nil {
		return 0, g.CompileErr
	}
	for name := range attribs {
		if !strings.Contains(vertexSrc, "attribute vec") || !strings.Contains(vertexSrc, name) {
			return 0, fmt.Errorf("attribute %q not declared", name)
		}
	}

	p := &softProgram{attribs: attribs, uniforms: make(map[string]int32)}
	for _, name := range SamplerNames {
		if strings.Contains(fragmentSrc, "uniform sampler2D "+name+";") {
			p.uniforms[name] = int32(g.newID())
		}
	}
	id := ProgramID(g.newID())
	g.programs[id] = p
	return id, nil
}

func (g *SoftGPU) DeleteProgram(p ProgramID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("DeleteProgram %d", p)
	delete(g.programs, p)
	if g.current == p {
		g.current = 0
	}
}

func (g *SoftGPU) UseProgram(p ProgramID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("UseProgram %d", p)
	g.current = p
}

func (g *SoftGPU) UniformLocation(p ProgramID, name string) int32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("UniformLocation %s", name)
	prog, ok := g.programs[p]
	if !ok {
		return -1
	}
	if loc, ok := prog.uniforms[name]; ok {
		return loc
	}
	return -1
}

func (g *SoftGPU) Uniform1i(location int32, v int32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("Uniform1i %d %d", location, v)
	if location >= 0 {
		g.uniforms[location] = v
	}
}

func (g *SoftGPU) SetQuad(vertexLoc uint32, vertices []float32, texcoordLoc uint32, texcoords []float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("SetQuad %d %d", vertexLoc, texcoordLoc)
	g.vertices = append([]float32(nil), vertices...)
	g.texcoords = append([]float32(nil), texcoords...)
}

func (g *SoftGPU) Viewport(x, y, width, height int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("Viewport %d %d %d %d", x, y, width, height)
	g.viewport = image.Rect(x, y, x+width, y+height)
	if !g.viewport.In(g.target.Bounds()) {
		g.target = image.NewRGBA(image.Rect(0, 0, x+width, y+height))
	}
}

func (g *SoftGPU) CreateTexture(width, height int) TextureID {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := TextureID(g.newID())
	g.record("CreateTexture %dx%d", width, height)
	g.textures[id] = &softTexture{w: width, h: height, pix: make([]byte, width*height)}
	return id
}

func (g *SoftGPU) DeleteTexture(t TextureID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("DeleteTexture %d", t)
	delete(g.textures, t)
	for i := range g.units {
		if g.units[i] == t {
			g.units[i] = 0
		}
	}
}

func (g *SoftGPU) ActiveTexture(unit int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("ActiveTexture %d", unit)
	if unit >= 0 && unit < softUnits {
		g.active = unit
	}
}

func (g *SoftGPU) BindTexture(t TextureID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("BindTexture %d", t)
	g.units[g.active] = t
}

func (g *SoftGPU) TexSubImage(width, height int, pix []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("TexSubImage %dx%d", width, height)
	tex, ok := g.textures[g.units[g.active]]
	if !ok {
		return
	}
	w, h := min(width, tex.w), min(height, tex.h)
	for row := 0; row < h; row++ {
		copy(tex.pix[row*tex.w:row*tex.w+w], pix[row*width:row*width+w])
	}
}

// DrawQuad rasterises the quad over the viewport, sampling the textures
// bound to the units named by the program's sampler uniforms.
func (g *SoftGPU) DrawQuad() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("DrawQuad")

	prog, ok := g.programs[g.current]
	if !ok || len(g.vertices) < 8 || len(g.texcoords) < 8 {
		return
	}
	var planes [NumPlanes]*softTexture
	for i, name := range SamplerNames {
		loc, ok := prog.uniforms[name]
		if !ok {
			return
		}
		unit := g.uniforms[loc]
		if unit < 0 || unit >= softUnits {
			return
		}
		if planes[i], ok = g.textures[g.units[unit]]; !ok {
			return
		}
	}

	v, tc := g.vertices, g.texcoords
	vw, vh := g.viewport.Dx(), g.viewport.Dy()
	for py := 0; py < vh; py++ {
		// Image rows grow downwards, clip space y grows upwards.
		ny := 1 - (float32(py)+0.5)/float32(vh)*2
		fy := (ny - v[1]) / (v[5] - v[1])
		for px := 0; px < vw; px++ {
			nx := (float32(px)+0.5)/float32(vw)*2 - 1
			fx := (nx - v[0]) / (v[2] - v[0])
			if fx < 0 || fx > 1 || fy < 0 || fy > 1 {
				continue
			}
			s := tc[0] + fx*(tc[2]-tc[0]) + fy*(tc[4]-tc[0])
			t := tc[1] + fx*(tc[3]-tc[1]) + fy*(tc[5]-tc[1])

			r, gg, b := YUVToRGB(
				planes[PlaneY].sample(s, t),
				planes[PlaneU].sample(s, t),
				planes[PlaneV].sample(s, t))
			g.target.SetRGBA(g.viewport.Min.X+px, g.viewport.Min.Y+py, color.RGBA{
				R: uint8(math.Round(r * 255)),
				G: uint8(math.Round(gg * 255)),
				B: uint8(math.Round(b * 255)),
				A: 255,
			})
		}
	}
}

// sample reads the texture at normalized coordinates with bilinear
// filtering and clamp to edge, returning a value in [0, 1].
func (t *softTexture) sample(s, u float32) float64 {
	if t.w == 0 || t.h == 0 {
		return 0
	}
	x := float64(s)*float64(t.w) - 0.5
	y := float64(u)*float64(t.h) - 0.5
	x0, y0 := math.Floor(x), math.Floor(y)
	fx, fy := x-x0, y-y0

	at := func(xi, yi int) float64 {
		xi = min(max(xi, 0), t.w-1)
		yi = min(max(yi, 0), t.h-1)
		return float64(t.pix[yi*t.w+xi])
	}
	ix, iy := int(x0), int(y0)
	top := at(ix, iy)*(1-fx) + at(ix+1, iy)*fx
	bottom := at(ix, iy+1)*(1-fx) + at(ix+1, iy+1)*fx
	return (top*(1-fy) + bottom*fy) / 255
}

// Image returns a copy of the drawing surface.
func (g *SoftGPU) Image() *image.RGBA {
	g.mu.Lock()
	defer g.mu.Unlock()
	img := image.NewRGBA(g.target.Bounds())
	copy(img.Pix, g.target.Pix)
	return img
}

// Calls returns the log of GPU calls made so far.
func (g *SoftGPU) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

// ResetCalls clears the call log.
func (g *SoftGPU) ResetCalls() {
	g.mu.Lock()
	g.calls = nil
	g.mu.Unlock()
}

// LiveTextures returns the number of textures not yet deleted.
func (g *SoftGPU) LiveTextures() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.textures)
}

// LivePrograms returns the number of programs not yet deleted.
func (g *SoftGPU) LivePrograms() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.programs)
}

// TexturePixels returns a copy of a texture's contents.
func (g *SoftGPU) TexturePixels(t TextureID) []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	if tex, ok := g.textures[t]; ok {
		return append([]byte(nil), tex.pix...)
	}
	return nil
}
