package core

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"gwi.com/drawing-analyzer/internal/annotation"
	"gwi.com/drawing-analyzer/internal/imaging"
)

// Normalized box_2d coordinates run from 0 to this value on both axes.
const box2DRange = 1000.0

// Frame relates the image the model saw to image-space. Width and Height
// are the native dimensions; ScaleX and ScaleY map sent-image pixels back.
type Frame struct {
	Width, Height  float64
	ScaleX, ScaleY float64
}

func FrameFor(src *imaging.Source, p imaging.Payload) Frame {
	return Frame{
		Width:  float64(src.Width),
		Height: float64(src.Height),
		ScaleX: p.ScaleX,
		ScaleY: p.ScaleY,
	}
}

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment  = regexp.MustCompile(`(?m)(^|\s)//.*$`)
	reTrailing     = regexp.MustCompile(`,(\s*[}\]])`)
	reArraySpan    = regexp.MustCompile(`(?s)\[.*\]`)

	reObject  = regexp.MustCompile(`\{[^{}]*\}`)
	reNumeric = regexp.MustCompile(`(?i)["{,\s](width|height|x|y|w|h)"?\s*:\s*"?(-?\d+(?:\.\d+)?)`)
	reBox2D   = regexp.MustCompile(`(?i)box_2d"?\s*:\s*\[([^\]]*)\]`)
	reText    = regexp.MustCompile(`(?i)["{,\s](id|label|color)"?\s*:\s*"([^"]*)"`)
)

// ParseDetections extracts boxes from free model text. It takes the first
// bracketed span, decodes it as a JSON array of box records and, when that
// fails, scrapes fields object by object. Boxes come back in image-space,
// normalized, with ids assigned and undersized entries removed. Any text
// that yields nothing returns an empty slice.
func ParseDetections(text string, frame Frame) []annotation.BoundingBox {
	span := reArraySpan.FindString(sanitizeModelJSON(text))
	if span == "" {
		return nil
	}

	records, ok := decodeRecords(span)
	if !ok {
		records = scrapeRecords(span)
	}

	out := make([]annotation.BoundingBox, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		b, ok := r.toBox(frame)
		if !ok {
			continue
		}
		if b.ID == "" || seen[b.ID] {
			b.ID = "det_" + uuid.NewString()
		}
		seen[b.ID] = true
		out = append(out, b)
	}
	return out
}

// sanitizeModelJSON removes block comments, line comments and trailing commas.
func sanitizeModelJSON(raw string) string {
	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "$1")
	return reTrailing.ReplaceAllString(raw, "$1")
}

// number accepts a JSON number or a numeric string.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*n = number(f)
	return nil
}

type record struct {
	ID     string   `json:"id"`
	X      *number  `json:"x"`
	Y      *number  `json:"y"`
	Width  *number  `json:"width"`
	Height *number  `json:"height"`
	W      *number  `json:"w"`
	H      *number  `json:"h"`
	Box2D  []number `json:"box_2d"`
	Label  string   `json:"label"`
	Color  string   `json:"color"`
}

func decodeRecords(span string) ([]record, bool) {
	var records []record
	if err := json.Unmarshal([]byte(span), &records); err == nil {
		return records, true
	}
	// A wrapper object such as {"bounding_boxes": [...]} puts the array one
	// level deeper than the span captured.
	var wrapped []struct {
		BoundingBoxes []record `json:"bounding_boxes"`
	}
	if err := json.Unmarshal([]byte(span), &wrapped); err == nil {
		for _, w := range wrapped {
			records = append(records, w.BoundingBoxes...)
		}
		return records, len(records) > 0
	}
	return nil, false
}

func scrapeRecords(span string) []record {
	var records []record
	for _, obj := range reObject.FindAllString(span, -1) {
		var r record
		for _, m := range reNumeric.FindAllStringSubmatch(obj, -1) {
			f, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				continue
			}
			v := number(f)
			switch strings.ToLower(m[1]) {
			case "x":
				r.X = &v
			case "y":
				r.Y = &v
			case "width":
				r.Width = &v
			case "height":
				r.Height = &v
			case "w":
				r.W = &v
			case "h":
				r.H = &v
			}
		}
		if m := reBox2D.FindStringSubmatch(obj); m != nil {
			for _, part := range strings.Split(m[1], ",") {
				f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
				if err != nil {
					break
				}
				r.Box2D = append(r.Box2D, number(f))
			}
		}
		for _, m := range reText.FindAllStringSubmatch(obj, -1) {
			switch strings.ToLower(m[1]) {
			case "id":
				r.ID = m[2]
			case "label":
				r.Label = m[2]
			case "color":
				r.Color = m[2]
			}
		}
		records = append(records, r)
	}
	return records
}

func (r record) toBox(f Frame) (annotation.BoundingBox, bool) {
	sx, sy := f.ScaleX, f.ScaleY
	if sx <= 0 {
		sx = 1
	}
	if sy <= 0 {
		sy = 1
	}

	var b annotation.BoundingBox
	switch {
	case len(r.Box2D) == 4 && f.Width > 0 && f.Height > 0:
		ymin, xmin, ymax, xmax := float64(r.Box2D[0]), float64(r.Box2D[1]), float64(r.Box2D[2]), float64(r.Box2D[3])
		b.X = xmin / box2DRange * f.Width
		b.Y = ymin / box2DRange * f.Height
		b.Width = (xmax - xmin) / box2DRange * f.Width
		b.Height = (ymax - ymin) / box2DRange * f.Height
	case r.X != nil && r.Y != nil:
		w, h := r.Width, r.Height
		if w == nil {
			w = r.W
		}
		if h == nil {
			h = r.H
		}
		if w == nil || h == nil {
			return b, false
		}
		b.X = float64(*r.X) * sx
		b.Y = float64(*r.Y) * sy
		b.Width = float64(*w) * sx
		b.Height = float64(*h) * sy
	default:
		return b, false
	}

	b.ID = strings.TrimSpace(r.ID)
	b.Label = annotation.ParseLabel(r.Label)
	b.Color = annotation.ParseColor(r.Color)
	return annotation.ClampMinSize(b, annotation.MinBoxSize)
}
