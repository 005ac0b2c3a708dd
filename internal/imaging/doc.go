// Package imaging provides the pixel-level operations used by the occupancy engine
// and the frame annotator.
//
// This package implements region cropping, mean-intensity measurement, change
// magnitude between two crops, color parsing, simple overlay drawing and PNG
// encoding. All operations work with standard Go image.Image types and use a
// coordinate system where (0,0) is at the top-left corner of the image bounds,
// X increases rightward, and Y increases downward.
//
// # Coordinate System
//
// Rectangles passed to this package are relative to the image origin:
//   - (Min.X, Min.Y) is inclusive (top-left)
//   - (Max.X, Max.Y) is exclusive (bottom-right)
//   - Parts of a rectangle outside the image are clipped, never padded
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. Individual image operations
// are stateless and can be called concurrently on different images. Operations
// on the same image should be synchronized by the caller if the image is mutable.
//
// # Intensity
//
// Mean intensity is the arithmetic mean of every 8-bit R, G and B channel value in
// a region, so a region that is half black and half white has intensity 127.5.
// Alpha is ignored.
package imaging
