package imaging

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// DefaultQuality is the JPEG quality used when the caller passes 0.
const DefaultQuality = 80

// Recompress decodes an image (PNG, GIF or JPEG), scales it down to fit
// within maxDim by maxDim while preserving aspect ratio, and re-encodes it as
// JPEG at the given quality. Images already within bounds are never enlarged,
// only re-encoded. maxDim <= 0 disables resizing.
func Recompress(data []byte, maxDim, quality int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("imaging: empty input")
	}
	if quality <= 0 {
		quality = DefaultQuality
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	targetW, targetH := fitWithin(width, height, maxDim)

	if targetW != width || targetH != height {
		dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fitWithin computes the largest dimensions at most maxDim on each side that
// preserve the aspect ratio, without enlarging.
func fitWithin(width, height, maxDim int) (int, int) {
	if maxDim <= 0 || (width <= maxDim && height <= maxDim) {
		return width, height
	}

	if width >= height {
		scaled := height * maxDim / width
		if scaled < 1 {
			scaled = 1
		}
		return maxDim, scaled
	}

	scaled := width * maxDim / height
	if scaled < 1 {
		scaled = 1
	}
	return scaled, maxDim
}
