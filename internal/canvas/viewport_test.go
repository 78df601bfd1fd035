package canvas

import (
	"math"
	"math/rand"
	"testing"

	"gwi.com/drawing-analyzer/internal/annotation"
)

const eps = 1e-9

func near(a, b annotation.Point, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol*math.Max(1, math.Abs(b.X)) &&
		math.Abs(a.Y-b.Y) <= tol*math.Max(1, math.Abs(b.Y))
}

func TestViewportRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		v := Viewport{
			Scale:   math.Exp(rng.Float64()*8 - 4),
			OffsetX: rng.Float64()*4000 - 2000,
			OffsetY: rng.Float64()*4000 - 2000,
		}
		p := annotation.Point{X: rng.Float64()*5000 - 2500, Y: rng.Float64()*5000 - 2500}
		if got := v.ToImage(v.ToScreen(p)); !near(got, p, eps) {
			t.Fatalf("round trip through %+v: %v -> %v", v, p, got)
		}
	}
}

func TestViewportKnownValues(t *testing.T) {
	v := Viewport{Scale: 2, OffsetX: 100, OffsetY: 50}
	if got := v.ToScreen(annotation.Point{X: 10, Y: 10}); got != (annotation.Point{X: 120, Y: 70}) {
		t.Errorf("ToScreen = %v", got)
	}
	if got := v.ToImage(annotation.Point{X: 120, Y: 70}); got != (annotation.Point{X: 10, Y: 10}) {
		t.Errorf("ToImage = %v", got)
	}
}

func TestZoomAtKeepsCursorFixed(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	v := IdentityViewport()
	for i := 0; i < 200; i++ {
		pointer := annotation.Point{X: rng.Float64() * 800, Y: rng.Float64() * 600}
		delta := -1.0
		if rng.Intn(2) == 0 {
			delta = 1
		}
		before := v.ToImage(pointer)
		next := v.ZoomAt(pointer, delta)
		after := next.ToImage(pointer)
		if !near(before, after, 1e-6) {
			t.Fatalf("cursor point moved: %v -> %v (scale %v -> %v)", before, after, v.Scale, next.Scale)
		}
		v = next
	}
}

func TestZoomAtDirection(t *testing.T) {
	v := IdentityViewport()
	in := v.ZoomAt(annotation.Point{}, -120)
	if math.Abs(in.Scale-ZoomStep) > eps {
		t.Errorf("scroll up scale = %v, want %v", in.Scale, ZoomStep)
	}
	out := v.ZoomAt(annotation.Point{}, 120)
	if math.Abs(out.Scale-1/ZoomStep) > eps {
		t.Errorf("scroll down scale = %v, want %v", out.Scale, 1/ZoomStep)
	}
	if same := v.ZoomAt(annotation.Point{X: 5, Y: 5}, 0); same != v {
		t.Errorf("zero delta changed viewport: %+v", same)
	}
}

func TestPanLeavesScale(t *testing.T) {
	v := Viewport{Scale: 3}.Pan(10, -4)
	if v.Scale != 3 || v.OffsetX != 10 || v.OffsetY != -4 {
		t.Errorf("Pan = %+v", v)
	}
}
