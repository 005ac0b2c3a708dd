package occupancy

import (
	"errors"
	"fmt"
)

var (
	// ErrFrameShapeMismatch is returned when a frame's dimensions differ from the
	// run's frame size. The frame is counted but otherwise ignored.
	ErrFrameShapeMismatch = errors.New("frame shape mismatch")

	// ErrReleased is returned for any frame submitted after Release.
	ErrReleased = errors.New("engine released")

	// ErrNoSpots is returned by New when the spot list is empty.
	ErrNoSpots = errors.New("no parking spots")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid engine config")
)

// SpotError records a classifier failure for one spot on one frame. The engine
// recovers from it by marking the spot occupied.
type SpotError struct {
	Index       int
	FrameNumber uint64
	Err         error
}

func (e *SpotError) Error() string {
	return fmt.Sprintf("spot %d, frame %d: %v", e.Index, e.FrameNumber, e.Err)
}

func (e *SpotError) Unwrap() error {
	return e.Err
}
