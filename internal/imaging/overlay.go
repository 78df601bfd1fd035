package imaging

import (
	"fmt"
	"image/color"
	"io"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"gwi.com/drawing-analyzer/internal/annotation"
)

const (
	outlineWidth = 2.0
	labelPadding = 3.0
)

// Render draws every box outline and its label over the image and writes
// the result as PNG.
func Render(w io.Writer, src *Source, boxes []annotation.BoundingBox) error {
	dc := gg.NewContextForImage(src.Image)
	dc.SetFontFace(basicfont.Face7x13)

	for _, b := range boxes {
		b = annotation.Normalize(b)
		r, g, bl, a := b.Color.RGBA()
		stroke := color.NRGBA{R: r, G: g, B: bl, A: a}

		dc.SetLineWidth(outlineWidth)
		dc.SetColor(stroke)
		dc.DrawRectangle(b.X, b.Y, b.Width, b.Height)
		dc.Stroke()

		label := string(b.Label)
		if label == "" {
			continue
		}
		tw, th := dc.MeasureString(label)
		ty := b.Y - th - 2*labelPadding
		if ty < 0 {
			ty = b.Y
		}
		dc.SetColor(stroke)
		dc.DrawRectangle(b.X, ty, tw+2*labelPadding, th+2*labelPadding)
		dc.Fill()
		dc.SetColor(color.White)
		dc.DrawStringAnchored(label, b.X+labelPadding, ty+labelPadding, 0, 1)
	}

	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("failed to encode overlay: %w", err)
	}
	return nil
}
