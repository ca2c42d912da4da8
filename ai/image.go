package ai

import (
	"bytes"
	"image/jpeg"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// maxImageEdge is the longest edge an image is scaled down to before
// embedding or identification. CLIP-style models see small inputs
// anyway; shipping multi-megabyte photos upstream only burns latency.
const maxImageEdge = 512

// NormalizeImage decodes a photo, scales it down to fit maxImageEdge
// (never scaling up) and re-encodes it as JPEG.
func NormalizeImage(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxImageEdge || bounds.Dy() > maxImageEdge {
		img = imaging.Fit(img, maxImageEdge, maxImageEdge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, errors.Wrap(err, "failed to encode image")
	}
	return buf.Bytes(), nil
}
