package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// EncodedImage contains an image encoded as base64 PNG.
type EncodedImage struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// CropRegion copies the part of r that lies inside img into a new image with
// origin (0,0). r is relative to the image origin, so (0,0) is always the top-left
// pixel regardless of img.Bounds().Min.
//
// Regions partly outside the image are clipped. A region entirely outside the
// image yields an empty image (zero width and height), never an error.
func CropRegion(img image.Image, r image.Rectangle) *image.NRGBA {
	abs := r.Add(img.Bounds().Min)
	return imaging.Crop(img, abs)
}

// Clone returns an independent copy of img with origin (0,0).
// Later writes to img are not visible through the copy.
func Clone(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

// SameSize reports whether two images have identical width and height.
func SameSize(a, b image.Image) bool {
	return a.Bounds().Dx() == b.Bounds().Dx() && a.Bounds().Dy() == b.Bounds().Dy()
}

// Resize scales img to exactly width x height using a linear filter.
func Resize(img image.Image, width, height int) *image.NRGBA {
	return imaging.Resize(img, width, height, imaging.Linear)
}

// EncodePNGBase64 encodes img as PNG and wraps it for JSON transport.
func EncodePNGBase64(img image.Image) (*EncodedImage, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return &EncodedImage{
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// Save writes img to path; the format is chosen from the file extension.
func Save(img image.Image, path string) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save image %s: %w", path, err)
	}
	return nil
}
