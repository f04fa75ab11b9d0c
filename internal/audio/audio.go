// Package audio holds the mono waveform of a source file and cuts
// loudness-normalized spans out of it.
package audio

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrAudioLoad means the waveform could not be decoded or extracted. File-level.
	ErrAudioLoad = errors.New("audio load failed")
	// ErrAudioRangeExceeded means the requested span is empty or runs past the buffer.
	ErrAudioRangeExceeded = errors.New("audio range exceeded")
	// ErrSilentAudio means the span has zero RMS and cannot be normalized.
	ErrSilentAudio = errors.New("silent audio")
)

// Buffer is a mono waveform at a fixed sample rate. It is not modified after loading.
type Buffer struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Slice returns a copy of samples [int(start·sr), int(end·sr)).
func (b *Buffer) Slice(start, end float64) ([]float64, error) {
	s := int(start * float64(b.SampleRate))
	e := int(end * float64(b.SampleRate))
	if e > len(b.Samples) {
		return nil, fmt.Errorf("%w: end sample %d > %d", ErrAudioRangeExceeded, e, len(b.Samples))
	}
	if s < 0 || e <= s {
		return nil, fmt.Errorf("%w: empty span [%d, %d)", ErrAudioRangeExceeded, s, e)
	}
	out := make([]float64, e-s)
	copy(out, b.Samples[s:e])
	return out, nil
}

// Crop cuts [start, end) seconds and scales it to the RMS of loudnessDBFS.
func Crop(b *Buffer, start, end, loudnessDBFS float64) ([]float64, error) {
	x, err := b.Slice(start, end)
	if err != nil {
		return nil, err
	}
	if err := Normalize(x, DBToLinear(loudnessDBFS)); err != nil {
		return nil, err
	}
	return x, nil
}

// Normalize scales x in place so its RMS equals targetRMS.
func Normalize(x []float64, targetRMS float64) error {
	cur := RMS(x)
	if cur == 0 {
		return ErrSilentAudio
	}
	gain := targetRMS / cur
	for i := range x {
		x[i] *= gain
	}
	return nil
}

// RMS is the root mean square of x. An empty slice has RMS 0.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

// DBToLinear converts dBFS to a linear amplitude.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}
