package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var ErrEmptyRef = errors.New("empty image reference")

// Source is a decoded drawing. Width and Height are the native pixel
// dimensions, which define image-space.
type Source struct {
	Image  image.Image
	Width  int
	Height int
}

// Payload is the encoded image sent to a vision model. ScaleX and ScaleY map
// pixel coordinates in the sent image back to image-space.
type Payload struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
	ScaleX   float64
	ScaleY   float64
}

// Decode accepts a data URL ("data:image/png;base64,...") or a local file
// path.
func Decode(ref string) (*Source, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrEmptyRef
	}

	var img image.Image
	var err error
	if strings.HasPrefix(ref, "data:") {
		var data []byte
		data, err = decodeDataURL(ref)
		if err != nil {
			return nil, err
		}
		img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	} else {
		img, err = imaging.Open(ref, imaging.AutoOrientation(true))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("image has no pixels")
	}
	return &Source{Image: img, Width: b.Dx(), Height: b.Dy()}, nil
}

func decodeDataURL(ref string) ([]byte, error) {
	comma := strings.IndexByte(ref, ',')
	if comma < 0 {
		return nil, fmt.Errorf("malformed data URL")
	}
	meta := ref[len("data:"):comma]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("data URL is not base64 encoded")
	}
	if mime := strings.TrimSuffix(meta, ";base64"); mime != "" && !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("data URL is not an image: %s", mime)
	}
	data, err := base64.StdEncoding.DecodeString(ref[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("invalid base64 in data URL: %w", err)
	}
	return data, nil
}

// Payload fits the image within maxEdge pixels on its longest side (never
// upscaling) and PNG-encodes it. maxEdge <= 0 sends the native size.
func (s *Source) Payload(maxEdge int) (Payload, error) {
	img := s.Image
	if maxEdge > 0 && (s.Width > maxEdge || s.Height > maxEdge) {
		img = imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Payload{}, fmt.Errorf("failed to encode image: %w", err)
	}
	b := img.Bounds()
	return Payload{
		Data:     buf.Bytes(),
		MimeType: "image/png",
		Width:    b.Dx(),
		Height:   b.Dy(),
		ScaleX:   float64(s.Width) / float64(b.Dx()),
		ScaleY:   float64(s.Height) / float64(b.Dy()),
	}, nil
}

// DataURL encodes img as a PNG data URL.
func DataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
