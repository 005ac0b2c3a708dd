// Package annotate renders spot statuses onto a frame for humans to look at.
//
// Annotation is presentational only. It works on a copy of the frame and never
// touches engine state, so callers may skip it entirely without affecting
// tracking.
package annotate

import (
	"fmt"
	"image"
	"image/color"

	"github.com/ironsheep/parkwatch-mcp/internal/detection"
	"github.com/ironsheep/parkwatch-mcp/internal/imaging"
	"github.com/ironsheep/parkwatch-mcp/internal/occupancy"
)

// Banner geometry, in frame pixels.
var (
	BannerRect = image.Rect(80, 20, 550, 100)
	TextOrigin = image.Pt(100, 47)
)

const (
	// DefaultThickness is the spot outline width in pixels.
	DefaultThickness = 2
	// DefaultTextScale enlarges the 7x13 banner font.
	DefaultTextScale = 2
)

// Style controls annotation colors and sizes.
type Style struct {
	EmptyColor    color.Color
	OccupiedColor color.Color
	BannerColor   color.Color
	TextColor     color.Color
	Thickness     int
	TextScale     int
}

// DefaultStyle draws empty spots green and everything else red.
func DefaultStyle() Style {
	return Style{
		EmptyColor:    color.RGBA{0, 255, 0, 255},
		OccupiedColor: color.RGBA{255, 0, 0, 255},
		BannerColor:   color.RGBA{0, 0, 0, 255},
		TextColor:     color.RGBA{255, 255, 255, 255},
		Thickness:     DefaultThickness,
		TextScale:     DefaultTextScale,
	}
}

// ParseStyle builds a style from hex color strings. Empty strings keep the
// default color.
func ParseStyle(emptyHex, occupiedHex string) (Style, error) {
	s := DefaultStyle()
	if emptyHex != "" {
		c, err := imaging.ParseHexColor(emptyHex)
		if err != nil {
			return s, fmt.Errorf("empty color: %w", err)
		}
		s.EmptyColor = c
	}
	if occupiedHex != "" {
		c, err := imaging.ParseHexColor(occupiedHex)
		if err != nil {
			return s, fmt.Errorf("occupied color: %w", err)
		}
		s.OccupiedColor = c
	}
	return s, nil
}

// BannerText formats the availability summary shown in the banner.
func BannerText(st occupancy.Statistics) string {
	return fmt.Sprintf("Available spots: %d / %d", st.Available, st.Total)
}

// Annotate returns a copy of frame with one outline per spot and the summary
// banner. statuses is indexed like spots; missing entries render as occupied.
// The returned image always has origin (0,0).
func Annotate(frame image.Image, spots []detection.Spot, statuses []occupancy.Status, style Style) *image.RGBA {
	canvas := imaging.NewCanvas(frame)

	for i, s := range spots {
		c := style.OccupiedColor
		if i < len(statuses) && statuses[i] == occupancy.StatusEmpty {
			c = style.EmptyColor
		}
		imaging.StrokeRect(canvas, s.Rect(), c, style.Thickness)
	}

	imaging.FillRect(canvas, BannerRect, style.BannerColor)
	imaging.DrawText(canvas, TextOrigin.X, TextOrigin.Y, BannerText(occupancy.Aggregate(statuses)), style.TextColor, style.TextScale)

	return canvas
}
