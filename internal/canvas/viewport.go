package canvas

import (
	"math"

	"gwi.com/drawing-analyzer/internal/annotation"
)

// ZoomStep is the multiplicative scale change applied per wheel notch.
const ZoomStep = 1.05

// Viewport maps image-space onto screen-space:
//
//	screen = image*Scale + Offset
//	image  = (screen - Offset) / Scale
type Viewport struct {
	Scale   float64 `json:"scale"`
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
}

func IdentityViewport() Viewport {
	return Viewport{Scale: 1}
}

func (v Viewport) ToImage(p annotation.Point) annotation.Point {
	return annotation.Point{
		X: (p.X - v.OffsetX) / v.Scale,
		Y: (p.Y - v.OffsetY) / v.Scale,
	}
}

func (v Viewport) ToScreen(p annotation.Point) annotation.Point {
	return annotation.Point{
		X: p.X*v.Scale + v.OffsetX,
		Y: p.Y*v.Scale + v.OffsetY,
	}
}

// ZoomAt applies one wheel notch anchored at the screen point under the
// pointer, keeping that point visually fixed. Positive deltaY zooms out.
// There is no scale clamp; a step that would leave the transform
// non-invertible is refused and v is returned unchanged.
func (v Viewport) ZoomAt(pointer annotation.Point, deltaY float64) Viewport {
	if deltaY == 0 {
		return v
	}
	newScale := v.Scale * ZoomStep
	if deltaY > 0 {
		newScale = v.Scale / ZoomStep
	}
	if newScale <= 0 || math.IsNaN(newScale) || math.IsInf(newScale, 0) {
		return v
	}
	ratio := newScale / v.Scale
	return Viewport{
		Scale:   newScale,
		OffsetX: pointer.X - (pointer.X-v.OffsetX)*ratio,
		OffsetY: pointer.Y - (pointer.Y-v.OffsetY)*ratio,
	}
}

// Pan shifts the offset by a screen-space delta.
func (v Viewport) Pan(dx, dy float64) Viewport {
	v.OffsetX += dx
	v.OffsetY += dy
	return v
}
