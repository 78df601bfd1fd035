package annotation

import "math"

// MinBoxSize is the smallest committed box edge, in image-space pixels.
const MinBoxSize = 10.0

type BoundingBox struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Label  Label   `json:"label"`
	Color  Color   `json:"color"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Normalize flips the origin of any negative dimension so width and height
// are non-negative. Identity fields are left as they are.
func Normalize(b BoundingBox) BoundingBox {
	if b.Width < 0 {
		b.X += b.Width
		b.Width = -b.Width
	}
	if b.Height < 0 {
		b.Y += b.Height
		b.Height = -b.Height
	}
	return b
}

// ClampMinSize normalizes b and reports whether both edges are strictly
// larger than minPx. A false result means the box must be discarded.
func ClampMinSize(b BoundingBox, minPx float64) (BoundingBox, bool) {
	b = Normalize(b)
	if !finite(b.X, b.Y, b.Width, b.Height) {
		return b, false
	}
	if b.Width <= minPx || b.Height <= minPx {
		return b, false
	}
	return b, true
}

// HoldsMinSize normalizes b and reports whether both edges are at least
// minPx. Edits of stored boxes use this check: a resize clamps each edge to
// minPx, so an edge of exactly minPx stays valid.
func HoldsMinSize(b BoundingBox, minPx float64) (BoundingBox, bool) {
	b = Normalize(b)
	if !finite(b.X, b.Y, b.Width, b.Height) {
		return b, false
	}
	return b, b.Width >= minPx && b.Height >= minPx
}

// Contains reports whether p lies inside b, edges included.
func Contains(b BoundingBox, p Point) bool {
	n := Normalize(b)
	return p.X >= n.X && p.X <= n.X+n.Width && p.Y >= n.Y && p.Y <= n.Y+n.Height
}

// HitTest returns the index of the topmost box containing p. Later boxes
// render on top, so the search runs back to front.
func HitTest(boxes []BoundingBox, p Point) (int, bool) {
	for i := len(boxes) - 1; i >= 0; i-- {
		if Contains(boxes[i], p) {
			return i, true
		}
	}
	return -1, false
}

func Translate(b BoundingBox, dx, dy float64) BoundingBox {
	b.X += dx
	b.Y += dy
	return b
}

// Handle identifies one of the eight resize grips around a selected box.
type Handle int

const (
	HandleNone Handle = iota
	HandleTopLeft
	HandleTop
	HandleTopRight
	HandleRight
	HandleBottomRight
	HandleBottom
	HandleBottomLeft
	HandleLeft
)

var handleNames = map[Handle]string{
	HandleNone:        "none",
	HandleTopLeft:     "top-left",
	HandleTop:         "top",
	HandleTopRight:    "top-right",
	HandleRight:       "right",
	HandleBottomRight: "bottom-right",
	HandleBottom:      "bottom",
	HandleBottomLeft:  "bottom-left",
	HandleLeft:        "left",
}

func (h Handle) String() string {
	if name, ok := handleNames[h]; ok {
		return name
	}
	return "unknown"
}

// HandleAnchors returns the image-space position of every grip of a
// normalized box, keyed by handle.
func HandleAnchors(b BoundingBox) map[Handle]Point {
	b = Normalize(b)
	midX, midY := b.X+b.Width/2, b.Y+b.Height/2
	right, bottom := b.X+b.Width, b.Y+b.Height
	return map[Handle]Point{
		HandleTopLeft:     {b.X, b.Y},
		HandleTop:         {midX, b.Y},
		HandleTopRight:    {right, b.Y},
		HandleRight:       {right, midY},
		HandleBottomRight: {right, bottom},
		HandleBottom:      {midX, bottom},
		HandleBottomLeft:  {b.X, bottom},
		HandleLeft:        {b.X, midY},
	}
}

// Resize moves the edges addressed by h by (dx, dy). The result is not
// normalized; dragging an edge past its opposite yields a negative size.
func Resize(b BoundingBox, h Handle, dx, dy float64) BoundingBox {
	switch h {
	case HandleTopLeft, HandleLeft, HandleBottomLeft:
		b.X += dx
		b.Width -= dx
	case HandleTopRight, HandleRight, HandleBottomRight:
		b.Width += dx
	}
	switch h {
	case HandleTopLeft, HandleTop, HandleTopRight:
		b.Y += dy
		b.Height -= dy
	case HandleBottomLeft, HandleBottom, HandleBottomRight:
		b.Height += dy
	}
	return b
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
