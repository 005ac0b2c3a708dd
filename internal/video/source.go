// Package video provides frame sources for the occupancy monitor.
//
// A Source yields decoded frames one at a time and reports io.EOF once the
// input is exhausted. Sources are not safe for concurrent use; the monitor pulls
// from a single goroutine.
package video

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("video source closed")

// Source yields frames in presentation order.
type Source interface {
	// Next returns the next frame, or io.EOF when there are no more. The
	// returned image belongs to the caller.
	Next(ctx context.Context) (image.Image, error)

	// Close releases the source. It is safe to call more than once.
	Close() error
}

// Info describes a video input.
type Info struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
	Frames int     `json:"frames"`
}

// SliceSource replays a fixed list of frames. It is used for tests and for
// pushing a handful of still images through the monitor loop.
type SliceSource struct {
	mu     sync.Mutex
	frames []image.Image
	next   int
	closed bool
}

// NewSliceSource returns a source over frames.
func NewSliceSource(frames ...image.Image) *SliceSource {
	return &SliceSource{frames: frames}
}

// Next implements Source.
func (s *SliceSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.next >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

// Close implements Source.
func (s *SliceSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.frames = nil
	s.mu.Unlock()
	return nil
}
