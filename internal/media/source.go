package media

import (
	"context"
	"fmt"
	"image"
	"io"

	"github.com/andresmejia3/voxclip/internal/utils"
)

// Source is an open video container with a stateful frame cursor.
//
// Frames come from a single long-lived ffmpeg decoder. Reading forward skips
// frames on the pipe; reading backwards restarts the decoder from the first
// frame. A Source is owned by one caller and must not be used concurrently.
type Source struct {
	tools *Tools
	ctx   context.Context
	path  string
	info  Info

	dec    *utils.SafeCommand
	out    io.ReadCloser
	cursor int // index of the next frame the decoder will emit
}

// Open probes path and prepares a Source. The decoder starts lazily on the first read.
func (t *Tools) Open(ctx context.Context, path string) (*Source, error) {
	info, err := t.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	t.logger.Debug().
		Str("input", path).
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("fps", info.FPS).
		Int("frames", info.FrameCount).
		Msg("opened source")
	return &Source{tools: t, ctx: ctx, path: path, info: info}, nil
}

// Info returns the probed container metadata.
func (s *Source) Info() Info { return s.info }

// Path returns the container path.
func (s *Source) Path() string { return s.path }

func (s *Source) frameSize() int { return s.info.Width * s.info.Height * 4 }

// ReadFrame decodes frame i. It returns ErrFrameUnavailable for an index outside
// [0, FrameCount) and for any decode failure.
func (s *Source) ReadFrame(i int) (*image.RGBA, error) {
	if i < 0 || i >= s.info.FrameCount {
		return nil, fmt.Errorf("%w: index %d outside [0, %d)", ErrFrameUnavailable, i, s.info.FrameCount)
	}

	if s.dec == nil || i < s.cursor {
		if err := s.restart(); err != nil {
			return nil, err
		}
	}

	if err := discardFrames(s.out, i-s.cursor, s.frameSize()); err != nil {
		s.stop()
		return nil, fmt.Errorf("%w: seek to %d: %v", ErrFrameUnavailable, i, err)
	}
	s.cursor = i

	buf := make([]byte, s.frameSize())
	if _, err := io.ReadFull(s.out, buf); err != nil {
		s.stop()
		return nil, fmt.Errorf("%w: read %d: %v", ErrFrameUnavailable, i, err)
	}
	s.cursor = i + 1

	// Zero-Copy: Wrap the raw bytes in an image.RGBA struct
	return &image.RGBA{
		Pix:    buf,
		Stride: s.info.Width * 4,
		Rect:   image.Rect(0, 0, s.info.Width, s.info.Height),
	}, nil
}

func (s *Source) restart() error {
	s.stop()

	dec := s.tools.newFFmpegRawDecoder(s.ctx, s.path)
	out, err := dec.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: decoder pipe: %v", ErrFrameUnavailable, err)
	}
	if err := dec.Start(); err != nil {
		return fmt.Errorf("%w: start decoder: %v", ErrFrameUnavailable, err)
	}
	s.tools.logger.Debug().Str("input", s.path).Msg("decoder started")
	s.dec, s.out, s.cursor = dec, out, 0
	return nil
}

func (s *Source) stop() {
	if s.dec == nil {
		return
	}
	s.out.Close()
	if s.dec.Process != nil {
		_ = s.dec.Process.Kill()
	}
	_ = s.dec.Wait()
	s.dec, s.out, s.cursor = nil, nil, 0
}

// Close releases the decoder process. It is safe to call more than once.
func (s *Source) Close() error {
	s.stop()
	return nil
}
