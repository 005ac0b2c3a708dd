// Package detection extracts parking spot regions from a binary spot mask.
//
// A spot mask is a single-channel (or color, converted to luminance) image of the
// parking lot where every non-zero pixel belongs to some parking spot. Each maximal
// 4-connected group of non-zero pixels becomes one spot, described by its axis-aligned
// bounding box.
//
// # Algorithm Overview
//
//  1. Binarization: convert the mask to grayscale and threshold at 1 so that any
//     non-zero pixel is foreground
//  2. Labeling: raster-scan the mask and flood-fill each unvisited foreground pixel
//     using 4-connectivity, recording the component's bounding box
//  3. Scaling: multiply the four box values by the scale factor (operating frame
//     resolution / mask resolution) and truncate toward zero
//  4. Filtering: drop boxes whose scaled width or height is 10 pixels or less
//
// # Ordering
//
// Components are numbered in the order the raster scan first touches them. The
// order is deterministic for a fixed mask and becomes each spot's permanent index
// for the run. It is not guaranteed to be a meaningful spatial order.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//   - A spot covers [X, X+Width) x [Y, Y+Height)
package detection
