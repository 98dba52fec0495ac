package video

// Attribute locations bound before the program is linked.
const (
	AttribVertex   = 3
	AttribTexcoord = 4
)

// BT.601 style YUV to RGB coefficients, applied to chroma centred on 0.5.
const (
	CoeffRV = 1.13983
	CoeffGU = -0.39465
	CoeffGV = -0.58060
	CoeffBU = 2.03211
)

// SamplerNames are the per-plane sampler uniforms, in plane order.
var SamplerNames = [NumPlanes]string{"tex_y", "tex_u", "tex_v"}

const vertexShader = `
attribute vec4 vertexIn;
attribute vec2 textureIn;
varying vec2 textureOut;

void main(void) {
	gl_Position = vertexIn;
	textureOut = textureIn;
}
`

const fragmentShader = `
varying vec2 textureOut;
uniform sampler2D tex_y;
uniform sampler2D tex_u;
uniform sampler2D tex_v;

void main(void) {
	vec3 yuv;
	yuv.x = texture2D(tex_y, textureOut).r;
	yuv.y = texture2D(tex_u, textureOut).r - 0.5;
	yuv.z = texture2D(tex_v, textureOut).r - 0.5;
	vec3 rgb = mat3(1.0, 1.0, 1.0,
	                0.0, -0.39465, 2.03211,
	                1.13983, -0.58060, 0.0) * yuv;
	gl_FragColor = vec4(rgb, 1.0);
}
`

// quadVertices covers the viewport as a triangle strip.
var quadVertices = []float32{
	-1, -1,
	1, -1,
	-1, 1,
	1, 1,
}

// quadTexcoords flips v so texture row 0 lands at the top of the viewport.
var quadTexcoords = []float32{
	0, 1,
	1, 1,
	0, 0,
	1, 0,
}

// YUVToRGB converts one pixel with the same matrix as the fragment shader.
// Inputs and outputs are normalized to [0, 1]; outputs are clamped.
func YUVToRGB(y, u, v float64) (r, g, b float64) {
	u -= 0.5
	v -= 0.5
	r = clamp01(y + CoeffRV*v)
	g = clamp01(y + CoeffGU*u + CoeffGV*v)
	b = clamp01(y + CoeffBU*u)
	return r, g, b
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
