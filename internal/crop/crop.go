// Package crop turns a face track and a time interval into square,
// resized frames at the output frame rate.
package crop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/andresmejia3/voxclip/internal/facetrack"
	"github.com/andresmejia3/voxclip/internal/media"
	"github.com/andresmejia3/voxclip/internal/types"
	"golang.org/x/image/draw"
)

// ErrDegenerateCrop means a bbox has zero width or height after scaling to pixels.
var ErrDegenerateCrop = errors.New("degenerate crop")

// padGray is the constant fill used when a box runs past the frame edge.
var padGray = color.RGBA{R: 110, G: 110, B: 110, A: 255}

// FrameSource is the part of media.Source the cropper reads from.
type FrameSource interface {
	Info() media.Info
	ReadFrame(i int) (*image.RGBA, error)
}

// Clip is a cropped segment held in memory until it is muxed.
type Clip struct {
	Frames []*image.RGBA
	FPS    float64
	Size   int
}

// Len returns the number of frames.
func (c *Clip) Len() int { return len(c.Frames) }

// Timestamp returns the presentation time of frame i in seconds.
func (c *Clip) Timestamp(i int) float64 { return float64(i) / c.FPS }

// Release drops the frame buffers.
func (c *Clip) Release() {
	if c != nil {
		c.Frames = nil
	}
}

// Step maps one native frame index to the annotated frame whose box is used.
type Step struct {
	Frame    int
	BoxFrame int
	Box      types.BBox
}

// FrameRange returns the half-open native frame range [floor(start·fps), floor(end·fps)).
func FrameRange(start, end, fps float64) (int, int) {
	return int(math.Floor(start * fps)), int(math.Floor(end * fps))
}

// Plan lists the bbox used for every native frame of [start, end).
// Frames outside the annotated span reuse the nearest boundary box.
func Plan(track *facetrack.Track, start, end, fps float64) []Step {
	if track == nil || track.Len() == 0 {
		return nil
	}
	lo, hi := FrameRange(start, end, fps)
	steps := make([]Step, 0, max(hi-lo, 0))
	for i := lo; i < hi; i++ {
		bf := track.Clamp(i)
		box, _ := track.Box(bf)
		steps = append(steps, Step{Frame: i, BoxFrame: bf, Box: box})
	}
	return steps
}

// CropTrack reads, crops and resizes every native frame of [start, end), then
// resamples the sequence to outFPS. Any failure discards the partial clip.
func CropTrack(ctx context.Context, src FrameSource, track *facetrack.Track, start, end float64, outSize int, outFPS float64) (*Clip, error) {
	if outSize <= 0 || outFPS <= 0 {
		return nil, fmt.Errorf("invalid output %dpx @ %v fps", outSize, outFPS)
	}
	native := src.Info().FPS
	steps := Plan(track, start, end, native)
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: no frames in [%.3f, %.3f)", media.ErrFrameUnavailable, start, end)
	}

	frames := make([]*image.RGBA, 0, len(steps))
	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := src.ReadFrame(st.Frame)
		if err != nil {
			return nil, err
		}
		cropped, err := cropFrame(raw, st.Box)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", st.Frame, err)
		}
		frames = append(frames, resize(cropped, outSize))
	}

	return &Clip{
		Frames: resampleFrames(frames, native, outFPS),
		FPS:    outFPS,
		Size:   outSize,
	}, nil
}

// pixelBox denormalizes b against a w×h frame, truncating toward zero.
func pixelBox(b types.BBox, w, h int) image.Rectangle {
	return image.Rectangle{
		Min: image.Point{X: int(b[0] * float64(w)), Y: int(b[1] * float64(h))},
		Max: image.Point{X: int(b[2] * float64(w)), Y: int(b[3] * float64(h))},
	}
}

// overflow is how far r reaches past the frame on its worst side, or 0.
func overflow(r, frame image.Rectangle) int {
	return max(frame.Min.X-r.Min.X, frame.Min.Y-r.Min.Y, r.Max.X-frame.Max.X, r.Max.Y-frame.Max.Y, 0)
}

// cropFrame cuts the exact pixel span of b out of f. The box is never clamped:
// whatever lies outside the frame reads as gray border, as if f had been padded
// on every side by the overflow plus a margin.
func cropFrame(f *image.RGBA, b types.BBox) (*image.RGBA, error) {
	bounds := f.Bounds()
	r := pixelBox(b, bounds.Dx(), bounds.Dy()).Add(bounds.Min)
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return nil, fmt.Errorf("%w: %v -> %v", ErrDegenerateCrop, b, r)
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	if overflow(r, bounds) > 0 {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(padGray), image.Point{}, draw.Src)
	}
	inside := r.Intersect(bounds)
	if !inside.Empty() {
		draw.Draw(dst, inside.Sub(r.Min), f, inside.Min, draw.Src)
	}
	return dst, nil
}

func resize(src *image.RGBA, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// resampleFrames picks in[min(floor(i·native/out), len-1)] for
// i < floor(len·out/native). Equal rates return the input.
func resampleFrames(in []*image.RGBA, native, out float64) []*image.RGBA {
	if len(in) == 0 || math.Abs(native-out) < 1e-9 {
		return in
	}
	n := int(math.Floor(float64(len(in)) * out / native))
	res := make([]*image.RGBA, n)
	for i := range res {
		j := min(int(math.Floor(float64(i)*native/out)), len(in)-1)
		res[i] = in[j]
	}
	return res
}
