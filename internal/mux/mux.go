// Package mux encodes a cropped clip and joins it with its audio.
package mux

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/voxclip/internal/audio"
	"github.com/andresmejia3/voxclip/internal/crop"
	"github.com/rs/zerolog"
)

// ErrMuxFailure means the audio/video combine step failed.
var ErrMuxFailure = errors.New("mux failed")

// Transcoder runs the external encode and combine steps. *media.Tools implements it.
type Transcoder interface {
	EncodeFrames(ctx context.Context, frames []*image.RGBA, fps float64, outputPath string) error
	CombineAV(ctx context.Context, videoPath, audioPath, outputPath string) error
}

// AudioTrack is the normalized waveform muxed next to a clip.
type AudioTrack struct {
	Samples    []float64
	SampleRate int
}

// Muxer writes clips to disk.
type Muxer struct {
	T      Transcoder
	Logger zerolog.Logger
}

// TempPaths returns the intermediate video and wav names derived from outputPath.
func TempPaths(outputPath string) (video, wav string) {
	ext := filepath.Ext(outputPath)
	base := strings.TrimSuffix(outputPath, ext)
	return base + "_t" + ext, base + "_t.wav"
}

// Write encodes clip to outputPath, muxing track when it is non-nil.
// Intermediate files never outlive the call, and outputPath is removed on failure.
func (m *Muxer) Write(ctx context.Context, clip *crop.Clip, outputPath string, track *AudioTrack) (err error) {
	if clip == nil || clip.Len() == 0 {
		return errors.New("mux: empty clip")
	}
	defer func() {
		if err != nil {
			if rmErr := os.Remove(outputPath); rmErr != nil && !os.IsNotExist(rmErr) {
				m.Logger.Warn().Err(rmErr).Str("output", outputPath).Msg("failed to remove partial output")
			}
		}
	}()

	if track == nil {
		return m.T.EncodeFrames(ctx, clip.Frames, clip.FPS, outputPath)
	}

	tmpVideo, tmpWav := TempPaths(outputPath)
	defer os.Remove(tmpVideo)
	defer os.Remove(tmpWav)

	if err := m.T.EncodeFrames(ctx, clip.Frames, clip.FPS, tmpVideo); err != nil {
		return err
	}
	if err := audio.WriteWAV(tmpWav, track.Samples, track.SampleRate); err != nil {
		return fmt.Errorf("write temp wav: %w", err)
	}
	if err := m.T.CombineAV(ctx, tmpVideo, tmpWav, outputPath); err != nil {
		return fmt.Errorf("%w: %v", ErrMuxFailure, err)
	}
	m.Logger.Debug().Str("output", outputPath).Int("frames", clip.Len()).Msg("muxed clip")
	return nil
}
