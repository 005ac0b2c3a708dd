package detection

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/segment"
	"github.com/disintegration/imaging"
)

// MinSpotSize is the exclusive lower bound, in pixels, on a spot's scaled width
// and height. Smaller components are treated as mask noise.
const MinSpotSize = 10

var (
	// ErrMaskLoad is returned when the mask image cannot be read or is empty.
	ErrMaskLoad = errors.New("mask load failed")

	// ErrInvalidMask is returned when no component survives size filtering.
	ErrInvalidMask = errors.New("mask contains no valid parking spots")
)

// Spot is one parking space: a stable ordinal index plus its bounding box in
// operating-frame pixel space. Spots are immutable after extraction.
type Spot struct {
	// Index is the 0-based ordinal assigned at extraction time.
	Index int `json:"index"`

	// X is the left edge of the spot (inclusive).
	X int `json:"x"`

	// Y is the top edge of the spot (inclusive).
	Y int `json:"y"`

	// Width is the horizontal extent in pixels.
	Width int `json:"width"`

	// Height is the vertical extent in pixels.
	Height int `json:"height"`
}

// Rect returns the spot as an image.Rectangle.
func (s Spot) Rect() image.Rectangle {
	return image.Rect(s.X, s.Y, s.X+s.Width, s.Y+s.Height)
}

// point is a pixel coordinate used by the flood fill.
type point struct {
	x, y int
}

// box is an inclusive bounding box accumulated during labeling.
type box struct {
	minX, minY, maxX, maxY int
}

// LoadMask reads a mask image from disk.
//
// Supported formats are those registered with the imaging package (PNG, JPEG, GIF,
// BMP, TIFF). A mask with zero width or height is rejected.
//
// # Errors
//
//   - Returns an error wrapping ErrMaskLoad if the file cannot be opened or decoded
//   - Returns an error wrapping ErrMaskLoad if the decoded image is empty
func LoadMask(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMaskLoad, path, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: %s: empty image", ErrMaskLoad, path)
	}
	return img, nil
}

// ExtractFile loads the mask at path and extracts its spots.
func ExtractFile(path string, scale float64) ([]Spot, error) {
	mask, err := LoadMask(path)
	if err != nil {
		return nil, err
	}
	return Extract(mask, scale)
}

// Extract turns a spot mask into an ordered list of spots.
//
// Parameters:
//   - mask: Mask image. Any pixel whose luminance is non-zero is spot area.
//   - scale: Ratio of operating-frame resolution to mask resolution. Applied to
//     x, y, width and height before size filtering. Values <= 0 are treated as 1.
//
// Returns:
//   - []Spot: Spots in labeling discovery order, re-indexed from 0 after filtering.
//   - error: Wraps ErrMaskLoad for a nil or empty mask, ErrInvalidMask when no
//     component is larger than MinSpotSize in both dimensions.
//
// Extract is deterministic: repeated calls on the same mask return identical
// results.
func Extract(mask image.Image, scale float64) ([]Spot, error) {
	if mask == nil || mask.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty mask", ErrMaskLoad)
	}
	if scale <= 0 {
		scale = 1
	}

	binary := binarize(mask)
	boxes := labelComponents(binary)

	spots := make([]Spot, 0, len(boxes))
	for _, b := range boxes {
		x := int(float64(b.minX) * scale)
		y := int(float64(b.minY) * scale)
		w := int(float64(b.maxX-b.minX+1) * scale)
		h := int(float64(b.maxY-b.minY+1) * scale)

		if w <= MinSpotSize || h <= MinSpotSize {
			continue
		}

		spots = append(spots, Spot{
			Index:  len(spots),
			X:      x,
			Y:      y,
			Width:  w,
			Height: h,
		})
	}

	if len(spots) == 0 {
		return nil, fmt.Errorf("%w: %d components, none larger than %dpx", ErrInvalidMask, len(boxes), MinSpotSize)
	}

	return spots, nil
}

// binarize converts the mask to a 0/255 grayscale image with origin at (0,0).
// Every non-zero grey value is foreground, so 0/1 label masks work.
//
// Drawing into an opaque Gray first keeps transparent pixels black; bild's
// threshold would otherwise treat fully transparent pixels as white.
func binarize(mask image.Image) *image.Gray {
	b := mask.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), mask, b.Min, draw.Src)

	// bild ranks by weighted luminance and truncates, which drops value 1.
	spread := adjust.Apply(gray, func(c color.RGBA) color.RGBA {
		if c.R != 0 || c.G != 0 || c.B != 0 {
			return color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
		}
		return color.RGBA{A: 0xFF}
	})
	return segment.Threshold(spread, 128)
}

// labelComponents finds the 4-connected foreground components of a binary image
// in raster discovery order and returns their inclusive bounding boxes.
func labelComponents(bin *image.Gray) []box {
	width := bin.Rect.Dx()
	height := bin.Rect.Dy()
	visited := make([]bool, width*height)

	boxes := make([]box, 0)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			if visited[i] || bin.Pix[y*bin.Stride+x] == 0 {
				continue
			}
			boxes = append(boxes, floodFill(bin, visited, x, y))
		}
	}
	return boxes
}

// floodFill marks the component containing (startX, startY) as visited and
// returns its bounding box.
//
// Uses an explicit stack rather than recursion so large spots cannot overflow
// the goroutine stack. Neighbors are 4-connected (no diagonals).
func floodFill(bin *image.Gray, visited []bool, startX, startY int) box {
	width := bin.Rect.Dx()
	height := bin.Rect.Dy()

	b := box{minX: startX, minY: startY, maxX: startX, maxY: startY}
	stack := []point{{startX, startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.x < 0 || p.x >= width || p.y < 0 || p.y >= height {
			continue
		}
		i := p.y*width + p.x
		if visited[i] || bin.Pix[p.y*bin.Stride+p.x] == 0 {
			continue
		}
		visited[i] = true

		if p.x < b.minX {
			b.minX = p.x
		}
		if p.x > b.maxX {
			b.maxX = p.x
		}
		if p.y < b.minY {
			b.minY = p.y
		}
		if p.y > b.maxY {
			b.maxY = p.y
		}

		stack = append(stack,
			point{p.x + 1, p.y},
			point{p.x - 1, p.y},
			point{p.x, p.y + 1},
			point{p.x, p.y - 1},
		)
	}

	return b
}
