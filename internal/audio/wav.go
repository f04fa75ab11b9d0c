package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// resampleQuality is passed to beep.Resample; 4 is beep's recommended default.
const resampleQuality = 4

// Extractor writes the audio track of a container to a mono PCM WAV file.
type Extractor interface {
	ExtractAudio(ctx context.Context, videoPath, outputPath string, sampleRate int) error
}

// Converter transcodes a WAV file into the format implied by the output extension.
type Converter interface {
	ConvertAudio(ctx context.Context, inputPath, outputPath string) error
}

// LoadSidecar decodes a WAV file into a mono Buffer at sampleRate.
// Multi-channel input is averaged; a differing file rate is resampled.
func LoadSidecar(path string, sampleRate int) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAudioLoad, err)
	}
	defer f.Close()

	buf, err := Decode(f, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAudioLoad, path, err)
	}
	return buf, nil
}

// Extract pulls the audio of videoPath through ffmpeg into "<video>_t.wav",
// decodes it and removes the temporary file.
func Extract(ctx context.Context, ex Extractor, videoPath string, sampleRate int) (*Buffer, error) {
	tmp := strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + "_t.wav"
	defer os.Remove(tmp)

	if err := ex.ExtractAudio(ctx, videoPath, tmp, sampleRate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAudioLoad, err)
	}
	return LoadSidecar(tmp, sampleRate)
}

// Decode reads a WAV stream into a mono Buffer at sampleRate.
func Decode(r io.Reader, sampleRate int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	streamer, format, err := wav.Decode(r)
	if err != nil {
		return nil, err
	}
	defer streamer.Close()

	var s beep.Streamer = streamer
	if int(format.SampleRate) != sampleRate {
		s = beep.Resample(resampleQuality, format.SampleRate, beep.SampleRate(sampleRate), streamer)
	}

	samples, err := drain(s)
	if err != nil {
		return nil, err
	}
	if g := pcmGain(format.Precision); g != 1 {
		for i := range samples {
			samples[i] *= g
		}
	}
	return &Buffer{Samples: samples, SampleRate: sampleRate}, nil
}

// pcmGain restores full scale for 16 and 24-bit PCM. beep/wav divides those
// samples by 2^(8p)-1 instead of 2^(8p-1), halving their amplitude.
func pcmGain(precision int) float64 {
	if precision != 2 && precision != 3 {
		return 1
	}
	return float64(int64(1)<<(8*precision)-1) / float64(int64(1)<<(8*precision-1))
}

// drain reads a streamer to exhaustion, averaging the two channels.
// beep duplicates mono sources onto both channels, so this is exact for mono input.
func drain(s beep.Streamer) ([]float64, error) {
	var out []float64
	chunk := make([][2]float64, 4096)
	for {
		n, ok := s.Stream(chunk)
		for _, frame := range chunk[:n] {
			out = append(out, (frame[0]+frame[1])/2)
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteWAV writes mono samples as 24-bit PCM.
func WriteWAV(path string, samples []float64, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	format := beep.Format{
		SampleRate:  beep.SampleRate(sampleRate),
		NumChannels: 1,
		Precision:   3,
	}
	if err := wav.Encode(f, &sliceStreamer{samples: samples}, format); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("encode wav: %w", err)
	}
	return f.Close()
}

// WriteFile writes samples to path. A ".wav" path is written directly; any other
// extension goes through a temporary "<base>_t.wav" and conv.
func WriteFile(ctx context.Context, conv Converter, path string, samples []float64, sampleRate int) error {
	ext := filepath.Ext(path)
	if strings.EqualFold(ext, ".wav") {
		return WriteWAV(path, samples, sampleRate)
	}
	if conv == nil {
		return fmt.Errorf("no converter for %s output", ext)
	}

	tmp := strings.TrimSuffix(path, ext) + "_t.wav"
	defer os.Remove(tmp)
	if err := WriteWAV(tmp, samples, sampleRate); err != nil {
		return err
	}
	if err := conv.ConvertAudio(ctx, tmp, path); err != nil {
		os.Remove(path)
		return fmt.Errorf("convert %s: %w", ext, err)
	}
	return nil
}

// sliceStreamer plays a mono slice on both channels, clipped to [-1, 1].
type sliceStreamer struct {
	samples []float64
	pos     int
}

func (s *sliceStreamer) Stream(out [][2]float64) (int, bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}
	n := copyClipped(out, s.samples[s.pos:])
	s.pos += n
	return n, true
}

func (s *sliceStreamer) Err() error { return nil }

func copyClipped(out [][2]float64, in []float64) int {
	n := min(len(out), len(in))
	for i := 0; i < n; i++ {
		v := max(-1, min(1, in[i]))
		out[i] = [2]float64{v, v}
	}
	return n
}
