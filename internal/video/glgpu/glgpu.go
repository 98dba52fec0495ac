// Package glgpu implements video.GPU on OpenGL 2.1.
//
// All methods must run on the goroutine that owns the current GL context,
// which the host window toolkit creates and makes current before calling
// New.
package glgpu

import (
	"fmt"
	"strings"

	"player/internal/video"

	"github.com/go-gl/gl/v2.1/gl"
)

var _ video.GPU = (*GPU)(nil)

// glInit loads GL function pointers; tests replace it.
var glInit = gl.Init

// GPU issues OpenGL calls. Textures are single channel luminance with
// linear filtering.
//
// Its methods need a live GL context, so only New is tested here. The call
// sequence the renderer issues, and the pixels it should produce, are
// covered against video.SoftGPU in the video package's renderer tests;
// each method here mirrors the SoftGPU method of the same name.
type GPU struct {
	quad    [2]uint32
	hasQuad bool
}

// New loads the GL entry points for the current context.
func New() (*GPU, error) {
	if err := glInit(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	return &GPU{}, nil
}

// Version returns the driver's GL_VERSION string.
func (g *GPU) Version() string {
	return gl.GoStr(gl.GetString(gl.VERSION))
}

func compileShader(source string, kind uint32) (uint32, error) {
	shader := gl.CreateShader(kind)
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		info := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(info))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("failed to compile shader: %s", strings.TrimRight(info, "\x00"))
	}
	return shader, nil
}

func (g *GPU) CreateProgram(vertexSrc, fragmentSrc string, attribs map[string]uint32) (video.ProgramID, error) {
	vs, err := compileShader(vertexSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(vs)

	fs, err := compileShader(fragmentSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(fs)

	program := gl.CreateProgram()
	gl.AttachShader(program, vs)
	gl.AttachShader(program, fs)
	for name, loc := range attribs {
		gl.BindAttribLocation(program, loc, gl.Str(name+"\x00"))
	}
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		info := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(info))
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("failed to link program: %s", strings.TrimRight(info, "\x00"))
	}
	return video.ProgramID(program), nil
}

func (g *GPU) DeleteProgram(p video.ProgramID) {
	gl.DeleteProgram(uint32(p))
	if g.hasQuad {
		gl.DeleteBuffers(2, &g.quad[0])
		g.hasQuad = false
	}
}

func (g *GPU) UseProgram(p video.ProgramID) {
	gl.UseProgram(uint32(p))
}

func (g *GPU) UniformLocation(p video.ProgramID, name string) int32 {
	return gl.GetUniformLocation(uint32(p), gl.Str(name+"\x00"))
}

func (g *GPU) Uniform1i(location int32, v int32) {
	gl.Uniform1i(location, v)
}

func (g *GPU) SetQuad(vertexLoc uint32, vertices []float32, texcoordLoc uint32, texcoords []float32) {
	if !g.hasQuad {
		gl.GenBuffers(2, &g.quad[0])
		g.hasQuad = true
	}
	upload := func(buf, loc uint32, data []float32) {
		gl.BindBuffer(gl.ARRAY_BUFFER, buf)
		gl.BufferData(gl.ARRAY_BUFFER, len(data)*4, gl.Ptr(data), gl.STATIC_DRAW)
		gl.VertexAttribPointer(loc, 2, gl.FLOAT, false, 0, gl.PtrOffset(0))
		gl.EnableVertexAttribArray(loc)
	}
	upload(g.quad[0], vertexLoc, vertices)
	upload(g.quad[1], texcoordLoc, texcoords)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
}

func (g *GPU) DrawQuad() {
	gl.DrawArrays(gl.TRIANGLE_STRIP, 0, 4)
}

func (g *GPU) Viewport(x, y, width, height int) {
	gl.Viewport(int32(x), int32(y), int32(width), int32(height))
}

func (g *GPU) CreateTexture(width, height int) video.TextureID {
	var tex uint32
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.LUMINANCE, int32(width), int32(height), 0,
		gl.LUMINANCE, gl.UNSIGNED_BYTE, nil)
	return video.TextureID(tex)
}

func (g *GPU) DeleteTexture(t video.TextureID) {
	tex := uint32(t)
	gl.DeleteTextures(1, &tex)
}

func (g *GPU) ActiveTexture(unit int) {
	gl.ActiveTexture(gl.TEXTURE0 + uint32(unit))
}

func (g *GPU) BindTexture(t video.TextureID) {
	gl.BindTexture(gl.TEXTURE_2D, uint32(t))
}

func (g *GPU) TexSubImage(width, height int, pix []byte) {
	if width*height == 0 || len(pix) < width*height {
		return
	}
	// Plane rows are tightly packed and may have odd widths.
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(width), int32(height),
		gl.LUMINANCE, gl.UNSIGNED_BYTE, gl.Ptr(pix))
}
