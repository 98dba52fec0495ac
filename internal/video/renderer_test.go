package video

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"slices"
	"strings"
	"sync"
	"testing"
)

func newTestRenderer(t *testing.T, width, height int) (*FrameStore, *Renderer, *SoftGPU) {
	t.Helper()
	store := NewFrameStore(nil)
	gpu := NewSoftGPU(width, height)
	return store, NewRenderer(store, gpu), gpu
}

func countCalls(calls []string, prefix string) int {
	n := 0
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func TestInitGLBindsAttributesAndSamplers(t *testing.T) {
	_, r, gpu := newTestRenderer(t, 16, 16)
	if err := r.InitGL(); err != nil {
		t.Fatalf("InitGL: %v", err)
	}

	calls := gpu.Calls()
	if !slices.Contains(calls, fmt.Sprintf("SetQuad %d %d", AttribVertex, AttribTexcoord)) {
		t.Errorf("quad not uploaded at attribute locations 3/4: %v", calls)
	}
	for i, name := range SamplerNames {
		if r.samplers[i] < 0 {
			t.Errorf("sampler %s not found", name)
		}
	}
	if n := countCalls(calls, "CreateTexture"); n != 0 {
		t.Errorf("%d textures created before the store was allocated", n)
	}

	gpu.ResetCalls()
	if err := r.InitGL(); err != nil {
		t.Fatalf("second InitGL: %v", err)
	}
	if len(gpu.Calls()) != 0 {
		t.Errorf("second InitGL touched the GPU: %v", gpu.Calls())
	}
}

func TestInitGLCompileError(t *testing.T) {
	_, r, gpu := newTestRenderer(t, 16, 16)
	gpu.CompileErr = errors.New("GLSL 1.10 not supported")

	if err := r.InitGL(); err == nil {
		t.Fatal("InitGL succeeded with a failing compiler")
	}
	if gpu.LivePrograms() != 0 {
		t.Error("program left behind after a failed InitGL")
	}
}

func TestInitGLAfterStoreInitCreatesTextures(t *testing.T) {
	store, r, gpu := newTestRenderer(t, 16, 16)
	store.Init(64, 48)
	if gpu.LiveTextures() != 0 {
		t.Fatal("textures created before InitGL")
	}

	if err := r.InitGL(); err != nil {
		t.Fatal(err)
	}
	calls := gpu.Calls()
	for _, want := range []string{"CreateTexture 64x48", "CreateTexture 32x24"} {
		if !slices.Contains(calls, want) {
			t.Errorf("missing %q in %v", want, calls)
		}
	}
	if gpu.LiveTextures() != NumPlanes {
		t.Errorf("LiveTextures() = %d, want %d", gpu.LiveTextures(), NumPlanes)
	}
}

func TestStoreInitRecreatesTextures(t *testing.T) {
	store, r, gpu := newTestRenderer(t, 16, 16)
	if err := r.InitGL(); err != nil {
		t.Fatal(err)
	}
	store.Init(64, 48)
	r.Draw()

	gpu.ResetCalls()
	store.Init(32, 24)
	if calls := gpu.Calls(); len(calls) != 0 {
		t.Fatalf("Init touched the GPU: %v", calls)
	}

	r.Draw()
	calls := gpu.Calls()
	if n := countCalls(calls, "DeleteTexture"); n != NumPlanes {
		t.Errorf("%d textures deleted, want %d", n, NumPlanes)
	}
	if !slices.Contains(calls, "CreateTexture 32x24") || !slices.Contains(calls, "CreateTexture 16x12") {
		t.Errorf("textures not recreated at 32x24: %v", calls)
	}
	if gpu.LiveTextures() != NumPlanes {
		t.Errorf("LiveTextures() = %d, want %d", gpu.LiveTextures(), NumPlanes)
	}

	gpu.ResetCalls()
	r.Draw()
	if n := countCalls(gpu.Calls(), "CreateTexture"); n != 0 {
		t.Errorf("second Draw recreated %d textures", n)
	}
}

func TestStoreInitOffRenderGoroutine(t *testing.T) {
	store, r, gpu := newTestRenderer(t, 16, 16)
	store.Init(16, 16)
	if err := r.InitGL(); err != nil {
		t.Fatal(err)
	}
	gpu.ResetCalls()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		store.Init(64, 48)
		f, _ := filledFrame(64, 48, 0, [NumPlanes]byte{90, 100, 110})
		store.CopyIn(f)
	}()
	wg.Wait()

	if calls := gpu.Calls(); len(calls) != 0 {
		t.Fatalf("decoder goroutine touched the GPU: %v", calls)
	}

	r.Draw()
	calls := gpu.Calls()
	want := []string{"CreateTexture 64x48", "CreateTexture 32x24", "TexSubImage 64x48", "DrawQuad"}
	for _, c := range want {
		if !slices.Contains(calls, c) {
			t.Errorf("missing %q in %v", c, calls)
		}
	}
	if first, last := slices.Index(calls, "CreateTexture 64x48"), slices.Index(calls, "DrawQuad"); first > last {
		t.Errorf("textures created after drawing: %v", calls)
	}
	if gpu.LiveTextures() != NumPlanes {
		t.Errorf("LiveTextures() = %d, want %d", gpu.LiveTextures(), NumPlanes)
	}
}

func TestCopyInBeforeInitIsNoop(t *testing.T) {
	store, r, gpu := newTestRenderer(t, 16, 16)
	if err := r.InitGL(); err != nil {
		t.Fatal(err)
	}
	gpu.ResetCalls()

	f, releases := filledFrame(64, 48, 0, [NumPlanes]byte{1, 2, 3})
	store.CopyIn(f)
	r.Draw()

	calls := gpu.Calls()
	for _, prefix := range []string{"CreateTexture", "BindTexture", "TexSubImage", "DrawQuad"} {
		if n := countCalls(calls, prefix); n != 0 {
			t.Errorf("%d %s calls on an unallocated store: %v", n, prefix, calls)
		}
	}
	if releases.Load() != 1 || !f.Released() {
		t.Errorf("frame released %d times, want 1", releases.Load())
	}
	if store.HasFrame() {
		t.Error("unallocated store accepted a frame")
	}
}

func TestDrawIsNoopWithoutFrame(t *testing.T) {
	store, r, gpu := newTestRenderer(t, 16, 16)

	// Neither a program nor a frame.
	r.Draw()
	if len(gpu.Calls()) != 0 {
		t.Fatalf("Draw before InitGL touched the GPU: %v", gpu.Calls())
	}

	store.Init(8, 8)
	if err := r.InitGL(); err != nil {
		t.Fatal(err)
	}
	gpu.ResetCalls()
	r.Draw()
	if len(gpu.Calls()) != 0 {
		t.Errorf("Draw before the first frame touched the GPU: %v", gpu.Calls())
	}
}

func TestDrawWithoutProgramIsNoop(t *testing.T) {
	store, r, gpu := newTestRenderer(t, 16, 16)
	store.Init(8, 8)
	f, _ := filledFrame(8, 8, 0, [NumPlanes]byte{1, 2, 3})
	store.CopyIn(f)

	r.Draw()
	if len(gpu.Calls()) != 0 {
		t.Errorf("Draw without a program touched the GPU: %v", gpu.Calls())
	}
}

func TestDrawUploadsEveryPlane(t *testing.T) {
	store, r, gpu := newTestRenderer(t, 16, 16)
	store.Init(8, 4)
	if err := r.InitGL(); err != nil {
		t.Fatal(err)
	}
	f, _ := filledFrame(8, 4, 3, [NumPlanes]byte{100, 110, 120})
	store.CopyIn(f)

	gpu.ResetCalls()
	r.Draw()

	var want []string
	want = append(want, fmt.Sprintf("UseProgram %d", r.program))
	for i := 0; i < NumPlanes; i++ {
		w, h := PlaneSize(8, 4, i)
		want = append(want,
			fmt.Sprintf("ActiveTexture %d", i),
			fmt.Sprintf("BindTexture %d", r.textures[i]),
			fmt.Sprintf("TexSubImage %dx%d", w, h),
			fmt.Sprintf("Uniform1i %d %d", r.samplers[i], i))
	}
	want = append(want, "DrawQuad")

	if got := gpu.Calls(); !slices.Equal(got, want) {
		t.Errorf("Draw calls:\n got  %v\n want %v", got, want)
	}
	for i, v := range []byte{100, 110, 120} {
		for _, p := range gpu.TexturePixels(r.textures[i]) {
			if p != v {
				t.Fatalf("texture %d holds %d, want %d", i, p, v)
			}
		}
	}
}

func TestDrawTwiceIsIdempotent(t *testing.T) {
	store, r, gpu := newTestRenderer(t, 32, 24)
	store.Init(32, 24)
	if err := r.InitGL(); err != nil {
		t.Fatal(err)
	}
	store.CopyIn(NewPatternSource(32, 24, 8).Frame(0))

	r.Draw()
	first := gpu.Image()
	r.Draw()
	second := gpu.Image()

	if !slices.Equal(first.Pix, second.Pix) {
		t.Error("second Draw changed the image")
	}
}

func TestDrawColourMatrix(t *testing.T) {
	tests := []struct {
		name string
		rgb  [3]float64
	}{
		{"white", [3]float64{1, 1, 1}},
		{"red", [3]float64{0.75, 0, 0}},
		{"green", [3]float64{0, 0.75, 0}},
		{"blue", [3]float64{0, 0, 0.75}},
		{"grey", [3]float64{0.5, 0.5, 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, r, gpu := newTestRenderer(t, 8, 8)
			store.Init(8, 8)
			if err := r.InitGL(); err != nil {
				t.Fatal(err)
			}
			y, u, v := RGBToYUV(tt.rgb[0], tt.rgb[1], tt.rgb[2])
			f, _ := filledFrame(8, 8, 0, [NumPlanes]byte{y, u, v})
			store.CopyIn(f)
			r.Draw()

			got := gpu.Image().RGBAAt(4, 4)
			want := color.RGBA{
				R: uint8(math.Round(tt.rgb[0] * 255)),
				G: uint8(math.Round(tt.rgb[1] * 255)),
				B: uint8(math.Round(tt.rgb[2] * 255)),
				A: 255,
			}
			if !closeColour(got, want, 4) {
				t.Errorf("pixel = %v, want about %v", got, want)
			}
		})
	}
}

func closeColour(a, b color.RGBA, tol int) bool {
	d := func(x, y uint8) bool {
		diff := int(x) - int(y)
		return diff <= tol && diff >= -tol
	}
	return d(a.R, b.R) && d(a.G, b.G) && d(a.B, b.B) && a.A == b.A
}

func TestYUVToRGBCoefficients(t *testing.T) {
	r, g, b := YUVToRGB(0.5, 0.6, 0.4)
	if want := clamp01(0.5 + CoeffRV*-0.1); r != want {
		t.Errorf("r = %v, want %v", r, want)
	}
	if want := clamp01(0.5 + CoeffGU*0.1 + CoeffGV*-0.1); g != want {
		t.Errorf("g = %v, want %v", g, want)
	}
	if want := clamp01(0.5 + CoeffBU*0.1); b != want {
		t.Errorf("b = %v, want %v", b, want)
	}
	if r, _, _ := YUVToRGB(1, 0.5, 1); r != 1 {
		t.Errorf("r not clamped: %v", r)
	}
}

func TestResizeKeepsStoreSize(t *testing.T) {
	store, r, gpu := newTestRenderer(t, 16, 16)
	store.Init(64, 48)
	r.Resize(1280, 720)

	if !slices.Contains(gpu.Calls(), "Viewport 0 0 1280 720") {
		t.Errorf("viewport not set: %v", gpu.Calls())
	}
	if store.Width() != 64 || store.Height() != 48 {
		t.Errorf("Resize changed the store to %dx%d", store.Width(), store.Height())
	}
	if b := gpu.Image().Bounds(); b.Dx() != 1280 || b.Dy() != 720 {
		t.Errorf("surface is %v", b)
	}
}

func TestReleaseFreesGPUState(t *testing.T) {
	store, r, gpu := newTestRenderer(t, 16, 16)
	store.Init(16, 16)
	if err := r.InitGL(); err != nil {
		t.Fatal(err)
	}
	r.Release()

	if gpu.LiveTextures() != 0 || gpu.LivePrograms() != 0 {
		t.Errorf("live textures=%d programs=%d after Release", gpu.LiveTextures(), gpu.LivePrograms())
	}

	// The store keeps working, and a later Init does not recreate textures.
	store.Init(8, 8)
	if gpu.LiveTextures() != 0 {
		t.Error("Init recreated textures after Release")
	}
	r.Draw()
}
