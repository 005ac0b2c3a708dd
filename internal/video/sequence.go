package video

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
)

var frameExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// ImageSequence reads still images from a directory in lexical file name order,
// the usual layout of frames dumped by `ffmpeg -i in.mp4 frame_%05d.png`.
type ImageSequence struct {
	mu     sync.Mutex
	files  []string
	next   int
	closed bool
}

// NewImageSequence lists the image files in dir. Subdirectories and other files
// are ignored. A directory with no images is an error.
func NewImageSequence(dir string) (*ImageSequence, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading frames dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no image files in %s", dir)
	}
	sort.Strings(files)
	return &ImageSequence{files: files}, nil
}

// Len returns the number of frames in the sequence.
func (s *ImageSequence) Len() int {
	return len(s.files)
}

// Next implements Source.
func (s *ImageSequence) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.next >= len(s.files) {
		return nil, io.EOF
	}
	path := s.files[s.next]
	s.next++

	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loading frame %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// Close implements Source.
func (s *ImageSequence) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
