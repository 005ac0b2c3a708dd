package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrInvalidVideo is returned when a video reports no frame rate or no frames.
var ErrInvalidVideo = errors.New("invalid video properties")

// FFmpegOptions locates the ffmpeg tools. Empty fields use the names on PATH.
type FFmpegOptions struct {
	FFmpegPath  string
	FFprobePath string
}

func (o FFmpegOptions) ffmpeg() string {
	if o.FFmpegPath != "" {
		return o.FFmpegPath
	}
	return "ffmpeg"
}

func (o FFmpegOptions) ffprobe() string {
	if o.FFprobePath != "" {
		return o.FFprobePath
	}
	return "ffprobe"
}

// CheckTools reports whether ffmpeg and ffprobe can be found.
func (o FFmpegOptions) CheckTools() error {
	if _, err := exec.LookPath(o.ffmpeg()); err != nil {
		return fmt.Errorf("ffmpeg binary not found: %w", err)
	}
	if _, err := exec.LookPath(o.ffprobe()); err != nil {
		return fmt.Errorf("ffprobe binary not found: %w", err)
	}
	return nil
}

// Probe reads the first video stream's geometry, frame rate and frame count.
func Probe(ctx context.Context, path string, opts FFmpegOptions) (Info, error) {
	cmd := exec.CommandContext(ctx, opts.ffprobe(),
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,nb_frames,duration",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Info{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Info{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbe(out)
}

// parseProbe decodes ffprobe's JSON output and rejects unusable videos.
func parseProbe(data []byte) (Info, error) {
	var raw struct {
		Streams []struct {
			Width        int    `json:"width"`
			Height       int    `json:"height"`
			RFrameRate   string `json:"r_frame_rate"`
			AvgFrameRate string `json:"avg_frame_rate"`
			NbFrames     string `json:"nb_frames"`
			Duration     string `json:"duration"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Info{}, fmt.Errorf("parsing ffprobe output: %w", err)
	}
	if len(raw.Streams) == 0 {
		return Info{}, fmt.Errorf("%w: no video stream", ErrInvalidVideo)
	}
	s := raw.Streams[0]

	fps := parseFrameRate(s.AvgFrameRate)
	if fps <= 0 {
		fps = parseFrameRate(s.RFrameRate)
	}

	frames, _ := strconv.Atoi(s.NbFrames)
	if frames <= 0 && fps > 0 {
		if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
			frames = int(d * fps)
		}
	}

	info := Info{Width: s.Width, Height: s.Height, FPS: fps, Frames: frames}
	if info.FPS <= 0 || info.Frames <= 0 {
		return info, fmt.Errorf("%w: fps=%.2f frames=%d", ErrInvalidVideo, info.FPS, info.Frames)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return info, fmt.Errorf("%w: size %dx%d", ErrInvalidVideo, info.Width, info.Height)
	}
	return info, nil
}

// parseFrameRate parses "30000/1001" or "25" style rates; 0 on failure.
func parseFrameRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// FFmpegSource decodes a video file with an ffmpeg child process that writes raw
// RGBA frames to a pipe.
//
// Close may be called while Next is blocked on the pipe; the pending Next then
// returns ErrClosed.
type FFmpegSource struct {
	info Info
	cmd  *exec.Cmd
	out  io.ReadCloser

	readMu sync.Mutex // serializes Next; guards done
	done   bool
	closed atomic.Bool

	waitOnce sync.Once
	waitErr  error
}

// OpenFFmpeg probes path and starts decoding it. ctx bounds the lifetime of the
// ffmpeg process.
func OpenFFmpeg(ctx context.Context, path string, opts FFmpegOptions) (*FFmpegSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("video file: %w", err)
	}
	info, err := Probe(ctx, path, opts)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, opts.ffmpeg(),
		"-v", "error",
		"-i", path,
		"-map", "0:v:0",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}

	return &FFmpegSource{info: info, cmd: cmd, out: out}, nil
}

// Info returns the probed video properties.
func (s *FFmpegSource) Info() Info {
	return s.info
}

// Next implements Source.
func (s *FFmpegSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.readMu.Lock()
	defer s.readMu.Unlock()
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if s.done {
		return nil, io.EOF
	}

	img := image.NewRGBA(image.Rect(0, 0, s.info.Width, s.info.Height))
	if _, err := io.ReadFull(s.out, img.Pix); err != nil {
		if s.closed.Load() {
			return nil, ErrClosed
		}
		s.done = true
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if werr := s.wait(); werr != nil {
				return nil, fmt.Errorf("ffmpeg wait error: %w", werr)
			}
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading frame: %w", err)
	}
	return img, nil
}

// Close stops ffmpeg if it is still running. It does not wait for a pending
// Next to finish reading.
func (s *FFmpegSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.out.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.wait()
	return nil
}

// wait reaps the ffmpeg process once, whichever of Next and Close gets there
// first.
func (s *FFmpegSource) wait() error {
	s.waitOnce.Do(func() {
		if s.cmd.Process != nil {
			s.waitErr = s.cmd.Wait()
		}
	})
	return s.waitErr
}

// Open picks a source for path: a directory becomes an ImageSequence, anything
// else is decoded with ffmpeg.
func Open(ctx context.Context, path string, opts FFmpegOptions) (Source, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("video input: %w", err)
	}
	if st.IsDir() {
		seq, err := NewImageSequence(path)
		if err != nil {
			return nil, err
		}
		return seq, nil
	}
	src, err := OpenFFmpeg(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	return src, nil
}
