package video

// TextureID is an opaque handle to a GPU texture.
type TextureID uint32

// ProgramID is an opaque handle to a linked shader program.
type ProgramID uint32

// GPU is the small slice of a graphics API the renderer needs. Every
// method must be called on the goroutine that owns the host's rendering
// context.
type GPU interface {
	// CreateProgram compiles and links the two shaders, binding each named
	// vertex attribute to its location before linking.
	CreateProgram(vertexSrc, fragmentSrc string, attribs map[string]uint32) (ProgramID, error)
	DeleteProgram(p ProgramID)
	UseProgram(p ProgramID)
	// UniformLocation returns -1 when the program has no such uniform.
	UniformLocation(p ProgramID, name string) int32
	Uniform1i(location int32, v int32)

	// SetQuad uploads a four vertex triangle strip: 2D positions for the
	// vertex attribute and 2D texture coordinates for the texcoord one.
	SetQuad(vertexLoc uint32, vertices []float32, texcoordLoc uint32, texcoords []float32)
	DrawQuad()
	Viewport(x, y, width, height int)

	// CreateTexture allocates a single channel, linear filtered texture.
	CreateTexture(width, height int) TextureID
	DeleteTexture(t TextureID)
	ActiveTexture(unit int)
	BindTexture(t TextureID)
	// TexSubImage replaces the bound texture's pixels, one byte each.
	TexSubImage(width, height int, pix []byte)
}
