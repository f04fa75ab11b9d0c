package crop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/andresmejia3/voxclip/internal/facetrack"
	"github.com/andresmejia3/voxclip/internal/media"
	"github.com/andresmejia3/voxclip/internal/types"
)

// fakeSource serves solid frames whose red channel is the frame index.
type fakeSource struct {
	info   media.Info
	failAt int
	reads  []int
}

func newFakeSource(w, h int, fps float64, count int) *fakeSource {
	return &fakeSource{info: media.Info{Width: w, Height: h, FPS: fps, FrameCount: count}, failAt: -1}
}

func (f *fakeSource) Info() media.Info { return f.info }

func (f *fakeSource) ReadFrame(i int) (*image.RGBA, error) {
	f.reads = append(f.reads, i)
	if i == f.failAt || i < 0 || i >= f.info.FrameCount {
		return nil, fmt.Errorf("%w: %d", media.ErrFrameUnavailable, i)
	}
	img := image.NewRGBA(image.Rect(0, 0, f.info.Width, f.info.Height))
	fill(img, color.RGBA{R: uint8(i), A: 255})
	return img, nil
}

func fill(img *image.RGBA, c color.RGBA) {
	for p := 0; p < len(img.Pix); p += 4 {
		img.Pix[p], img.Pix[p+1], img.Pix[p+2], img.Pix[p+3] = c.R, c.G, c.B, c.A
	}
}

// trackAt builds a single track 0 over frames [first, last] at fps, box i/100 wide.
func trackAt(t *testing.T, first, last int, fps float64) *facetrack.Set {
	t.Helper()
	entry := types.FaceTrackEntry{TrackIndex: 0}
	for f := first; f <= last; f++ {
		entry.Frame = append(entry.Frame, f)
		x := float64(f-first) / 100
		entry.BBox = append(entry.BBox, []float64{x, 0.1, x + 0.5, 0.9})
	}
	set, err := facetrack.FromFile(types.FaceTrackFile{FPS: fps, FaceTracks: []types.FaceTrackEntry{entry}})
	if err != nil {
		t.Fatal(err)
	}
	return set
}

func TestCropFramePadsInsteadOfClamping(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 100, 100))
	red := color.RGBA{R: 255, A: 255}
	fill(frame, red)

	out, err := cropFrame(frame, types.BBox{-0.05, 0.1, 0.5, 0.9})
	if err != nil {
		t.Fatalf("cropFrame failed: %v", err)
	}
	if got := out.Bounds().Size(); got != image.Pt(55, 80) {
		t.Fatalf("crop size = %v, want 55x80", got)
	}
	for y := 0; y < 80; y++ {
		for x := 0; x < 55; x++ {
			want := red
			if x < 5 {
				want = padGray
			}
			if got := out.RGBAAt(x, y); got != want {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestCropFrameInside(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 100, 100))
	frame.SetRGBA(20, 30, color.RGBA{G: 200, A: 255})

	out, err := cropFrame(frame, types.BBox{0.2, 0.3, 0.6, 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if got := out.Bounds().Size(); got != image.Pt(40, 20) {
		t.Errorf("crop size = %v, want 40x20", got)
	}
	if got := out.RGBAAt(0, 0); got.G != 200 {
		t.Errorf("top-left pixel = %v, want source (20,30)", got)
	}
}

func TestCropFrameDegenerate(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 100, 100))
	tests := map[string]types.BBox{
		"Zero width":  {0.5, 0.1, 0.5, 0.9},
		"Zero height": {0.1, 0.4, 0.9, 0.404},
		"Inverted":    {0.8, 0.1, 0.2, 0.9},
	}
	for name, b := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := cropFrame(frame, b); !errors.Is(err, ErrDegenerateCrop) {
				t.Errorf("cropFrame() error = %v, want ErrDegenerateCrop", err)
			}
		})
	}
}

func TestResampleFrames(t *testing.T) {
	tests := []struct {
		n           int
		native, out float64
	}{
		{50, 25, 25},
		{50, 25, 30},
		{50, 30, 25},
		{7, 29.97, 25},
		{1, 25, 50},
		{3, 60, 25},
	}
	for _, tt := range tests {
		in := make([]*image.RGBA, tt.n)
		pos := map[*image.RGBA]int{}
		for i := range in {
			in[i] = image.NewRGBA(image.Rect(0, 0, 1, 1))
			pos[in[i]] = i
		}

		got := resampleFrames(in, tt.native, tt.out)
		wantLen := int(float64(tt.n) * tt.out / tt.native)
		if tt.native == tt.out {
			wantLen = tt.n
		}
		if len(got) != wantLen {
			t.Errorf("%d@%v->%v: len = %d, want %d", tt.n, tt.native, tt.out, len(got), wantLen)
		}
		last := -1
		for i, f := range got {
			if pos[f] < last {
				t.Errorf("%d@%v->%v: source index went backwards at %d", tt.n, tt.native, tt.out, i)
			}
			last = pos[f]
		}
	}
}

func TestCropTrackScenario(t *testing.T) {
	// frames 10..20 annotated at 5 fps, 25 fps video, 25 fps output, [0s, 2s).
	set := facetrack.Resample(trackAt(t, 10, 20, 5), 25)
	track := set.Tracks[0]
	src := newFakeSource(64, 48, 25, 600)

	clip, err := CropTrack(context.Background(), src, track, 0, 2, 224, 25)
	if err != nil {
		t.Fatalf("CropTrack failed: %v", err)
	}
	if clip.Len() != 50 {
		t.Fatalf("expected 50 frames, got %d", clip.Len())
	}
	for i, f := range clip.Frames {
		if f.Bounds().Size() != image.Pt(224, 224) {
			t.Fatalf("frame %d size %v", i, f.Bounds().Size())
		}
		if i > 0 && clip.Timestamp(i) <= clip.Timestamp(i-1) {
			t.Fatalf("timestamps not increasing at %d", i)
		}
	}
	// All native frames lie before the track, so each reuses the first annotated box.
	for _, st := range Plan(track, 0, 2, 25) {
		if st.BoxFrame != track.First() || st.Box != track.Boxes[0] {
			t.Fatalf("frame %d used box of %d", st.Frame, st.BoxFrame)
		}
	}
	if len(src.reads) != 50 || src.reads[0] != 0 || src.reads[49] != 49 {
		t.Errorf("unexpected read pattern %v", src.reads)
	}
}

func TestPlanNearestBoxes(t *testing.T) {
	set := facetrack.Resample(trackAt(t, 10, 20, 5), 25)
	track := set.Tracks[0]

	steps := Plan(track, 2, 4, 25)
	if len(steps) != 50 {
		t.Fatalf("expected 50 steps, got %d", len(steps))
	}
	for _, st := range steps {
		orig := int(float64(track.Clamp(st.Frame))*5/25 + 0.5)
		orig = min(max(orig, 10), 20)
		want := types.BBox{float64(orig-10) / 100, 0.1, float64(orig-10)/100 + 0.5, 0.9}
		if st.Box != want {
			t.Errorf("frame %d box = %v, want %v (annotated frame %d)", st.Frame, st.Box, want, orig)
		}
	}
}

func TestCropTrackOutputRate(t *testing.T) {
	set := trackAt(t, 0, 100, 30)
	src := newFakeSource(32, 32, 30, 300)

	clip, err := CropTrack(context.Background(), src, set.Tracks[0], 1, 2, 16, 25)
	if err != nil {
		t.Fatal(err)
	}
	if clip.Len() != 25 || clip.FPS != 25 {
		t.Errorf("clip = %d frames @ %v, want 25 @ 25", clip.Len(), clip.FPS)
	}
	// First output frame is native frame 30, whose red channel survives the resize.
	if got := clip.Frames[0].RGBAAt(8, 8).R; got != 30 {
		t.Errorf("first frame red = %d, want 30", got)
	}
}

func TestCropTrackReadFailure(t *testing.T) {
	set := trackAt(t, 0, 100, 25)
	src := newFakeSource(32, 32, 25, 300)
	src.failAt = 12

	clip, err := CropTrack(context.Background(), src, set.Tracks[0], 0, 1, 16, 25)
	if !errors.Is(err, media.ErrFrameUnavailable) {
		t.Fatalf("CropTrack() error = %v, want ErrFrameUnavailable", err)
	}
	if clip != nil {
		t.Error("expected no clip after a read failure")
	}
	if last := src.reads[len(src.reads)-1]; last != 12 {
		t.Errorf("reading continued past failure to %d", last)
	}
}

func TestCropTrackEmptyAndCancelled(t *testing.T) {
	set := trackAt(t, 0, 100, 25)
	src := newFakeSource(32, 32, 25, 300)

	if _, err := CropTrack(context.Background(), src, set.Tracks[0], 1, 1, 16, 25); !errors.Is(err, media.ErrFrameUnavailable) {
		t.Errorf("empty interval error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := CropTrack(ctx, src, set.Tracks[0], 0, 1, 16, 25); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled error = %v", err)
	}
}
