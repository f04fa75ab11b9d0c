package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/voxclip/internal/audio"
	"github.com/andresmejia3/voxclip/internal/facetrack"
	"github.com/andresmejia3/voxclip/internal/media"
	"github.com/andresmejia3/voxclip/internal/mux"
	"github.com/andresmejia3/voxclip/internal/types"
	"github.com/rs/zerolog"
)

type fakeSource struct {
	info   media.Info
	reads  []int
	closed int
}

func (f *fakeSource) Info() media.Info { return f.info }

func (f *fakeSource) ReadFrame(i int) (*image.RGBA, error) {
	f.reads = append(f.reads, i)
	if i < 0 || i >= f.info.FrameCount {
		return nil, fmt.Errorf("%w: %d", media.ErrFrameUnavailable, i)
	}
	return image.NewRGBA(image.Rect(0, 0, f.info.Width, f.info.Height)), nil
}

func (f *fakeSource) Close() error {
	f.closed++
	return nil
}

type fakeExtractor struct{ seconds int }

func (f fakeExtractor) ExtractAudio(_ context.Context, _, out string, rate int) error {
	s := make([]float64, f.seconds*rate)
	for i := range s {
		s[i] = 0.2 * math.Sin(float64(i)/10)
	}
	return audio.WriteWAV(out, s, rate)
}

func (fakeExtractor) ConvertAudio(context.Context, string, string) error { return nil }

type fakeTranscoder struct{}

func (fakeTranscoder) EncodeFrames(_ context.Context, _ []*image.RGBA, _ float64, out string) error {
	return os.WriteFile(out, []byte("v"), 0644)
}

func (fakeTranscoder) CombineAV(_ context.Context, _, _, out string) error {
	return os.WriteFile(out, []byte("av"), 0644)
}

// fixture writes a face track file with tracks 0 (frames 0..100) and 1 (frames 150..200) at fps.
func fixture(t *testing.T, fps float64) (FileJob, *fakeSource, Deps) {
	t.Helper()
	dir := t.TempDir()
	file := types.FaceTrackFile{FPS: fps}
	for id, span := range [][2]int{{0, 100}, {150, 200}} {
		e := types.FaceTrackEntry{TrackIndex: id}
		for f := span[0]; f <= span[1]; f++ {
			e.Frame = append(e.Frame, f)
			e.BBox = append(e.BBox, []float64{0.25, 0.25, 0.75, 0.75})
		}
		file.FaceTracks = append(file.FaceTracks, e)
	}
	data, err := json.Marshal(file)
	if err != nil {
		t.Fatal(err)
	}
	trackPath := filepath.Join(dir, "talk.json")
	if err := os.WriteFile(trackPath, data, 0644); err != nil {
		t.Fatal(err)
	}

	src := &fakeSource{info: media.Info{Width: 32, Height: 32, FPS: 25, FrameCount: 250}}
	deps := Deps{
		Open: func(context.Context, string) (VideoSource, error) {
			return src, nil
		},
		Audio:  fakeExtractor{seconds: 10},
		Muxer:  &mux.Muxer{T: fakeTranscoder{}, Logger: zerolog.Nop()},
		Logger: zerolog.Nop(),
	}
	job := FileJob{Name: "talk", VideoPath: filepath.Join(dir, "talk.mp4"), TrackPath: trackPath}
	return job, src, deps
}

func defaultOptions() Options {
	return Options{OutSize: 16, OutFPS: 25, SampleRate: 16000, Loudness: -20, AudioInVideo: true}
}

func TestOpenResamplesTracks(t *testing.T) {
	job, _, deps := fixture(t, 5)
	s, err := Open(context.Background(), deps, defaultOptions(), job)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if s.Tracks().FPS != 25 {
		t.Errorf("tracks at %v fps, want 25", s.Tracks().FPS)
	}
	if first := s.Tracks().Tracks[1].First(); first != 750 {
		t.Errorf("track 1 starts at %d, want 750", first)
	}
}

func TestOpenFileLevelFailures(t *testing.T) {
	t.Run("Source not found", func(t *testing.T) {
		job, _, deps := fixture(t, 25)
		deps.Open = func(context.Context, string) (VideoSource, error) {
			return nil, fmt.Errorf("%w: gone", media.ErrSourceNotFound)
		}
		_, err := Open(context.Background(), deps, defaultOptions(), job)
		if !errors.Is(err, media.ErrSourceNotFound) || !IsFileLevel(err) {
			t.Errorf("Open() error = %v", err)
		}
	})

	t.Run("Corrupt annotation releases source", func(t *testing.T) {
		job, src, deps := fixture(t, 25)
		if err := os.WriteFile(job.TrackPath, []byte(`{"FPS": 25, "face_tracks": [{"track_index": 0, "frame": [3, 2], "bbox": [[0,0,1,1],[0,0,1,1]]}]}`), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := Open(context.Background(), deps, defaultOptions(), job)
		if !errors.Is(err, facetrack.ErrAnnotationCorrupt) || !IsFileLevel(err) {
			t.Errorf("Open() error = %v", err)
		}
		if src.closed != 1 {
			t.Errorf("source closed %d times, want 1", src.closed)
		}
	})

	t.Run("Audio load", func(t *testing.T) {
		job, src, deps := fixture(t, 25)
		deps.Audio = failingExtractor{}
		_, err := Open(context.Background(), deps, defaultOptions(), job)
		if !errors.Is(err, audio.ErrAudioLoad) || !IsFileLevel(err) {
			t.Errorf("Open() error = %v", err)
		}
		if src.closed != 1 {
			t.Errorf("source closed %d times, want 1", src.closed)
		}
	})
}

type failingExtractor struct{ fakeExtractor }

func (failingExtractor) ExtractAudio(context.Context, string, string, int) error {
	return errors.New("no audio stream")
}

func TestRunContinuesAfterSegmentErrors(t *testing.T) {
	job, src, deps := fixture(t, 25)
	s, err := Open(context.Background(), deps, defaultOptions(), job)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	out := t.TempDir()
	reqs := []Request{
		{SegmentIndex: 3, TrackID: 1, Start: 6.0, End: 7.0, OutputPath: filepath.Join(out, "3.mp4")},
		{SegmentIndex: 2, TrackID: 9, Start: 4.0, End: 5.0, OutputPath: filepath.Join(out, "2.mp4")},
		{SegmentIndex: 4, TrackID: 1, Start: 9.5, End: 11.0, OutputPath: filepath.Join(out, "4.mp4")},
		{SegmentIndex: 1, TrackID: 0, Start: 1.0, End: 2.0, OutputPath: filepath.Join(out, "1.mp4"), WavPath: filepath.Join(out, "1.wav")},
	}
	results := s.Run(context.Background(), reqs)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}

	wantOrder := []int{1, 2, 3, 4}
	for i, r := range results {
		if r.SegmentIndex != wantOrder[i] {
			t.Fatalf("result %d is segment %d, want %d", i, r.SegmentIndex, wantOrder[i])
		}
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("unexpected errors: %v, %v", results[0].Err, results[2].Err)
	}
	if !errors.Is(results[1].Err, ErrTrackUnavailable) || IsFileLevel(results[1].Err) {
		t.Errorf("segment 2 error = %v, want ErrTrackUnavailable", results[1].Err)
	}
	// 11s is past both the 10s waveform and the 250-frame video.
	if results[3].Err == nil || IsFileLevel(results[3].Err) {
		t.Errorf("segment 4 error = %v, want a segment-level error", results[3].Err)
	}

	for _, name := range []string{"1.mp4", "1.wav", "3.mp4"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("missing output %s", name)
		}
	}
	for _, name := range []string{"2.mp4", "4.mp4"} {
		if _, err := os.Stat(filepath.Join(out, name)); !os.IsNotExist(err) {
			t.Errorf("failed segment left %s behind", name)
		}
	}

	for i := 1; i < len(src.reads); i++ {
		if src.reads[i] < src.reads[i-1] {
			t.Fatalf("decoder moved backwards: %d after %d", src.reads[i], src.reads[i-1])
		}
	}
}

func TestFailedClipRemovesWAV(t *testing.T) {
	job, _, deps := fixture(t, 25)
	s, err := Open(context.Background(), deps, defaultOptions(), job)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	out := t.TempDir()
	reqs := []Request{
		{SegmentIndex: 1, TrackID: 9, Start: 1.0, End: 2.0, OutputPath: filepath.Join(out, "1.mp4"), WavPath: filepath.Join(out, "1.wav")},
		{SegmentIndex: 2, TrackID: 0, Start: 2.0, End: 3.0, WavPath: filepath.Join(out, "2.wav")},
	}
	results := s.Run(context.Background(), reqs)
	if !errors.Is(results[0].Err, ErrTrackUnavailable) {
		t.Fatalf("segment 1 error = %v, want ErrTrackUnavailable", results[0].Err)
	}
	if results[1].Err != nil {
		t.Fatalf("unexpected error: %v", results[1].Err)
	}
	for _, name := range []string{"1.wav", "1.mp4"} {
		if _, err := os.Stat(filepath.Join(out, name)); !os.IsNotExist(err) {
			t.Errorf("failed segment left %s behind", name)
		}
	}
	if _, err := os.Stat(filepath.Join(out, "2.wav")); err != nil {
		t.Errorf("audio-only segment lost its wav: %v", err)
	}
}

func TestWriteWAVNormalizes(t *testing.T) {
	job, _, deps := fixture(t, 25)
	s, err := Open(context.Background(), deps, defaultOptions(), job)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	path := filepath.Join(t.TempDir(), "seg.wav")
	if err := s.WriteWAV(context.Background(), Request{Start: 2, End: 4}, path); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}
	buf, err := audio.LoadSidecar(path, 16000)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf.Samples) != 32000 {
		t.Errorf("expected 32000 samples, got %d", len(buf.Samples))
	}
	if got, want := audio.RMS(buf.Samples), audio.DBToLinear(-20); math.Abs(got-want) > 1e-4 {
		t.Errorf("RMS = %v, want %v", got, want)
	}

	if err := s.WriteWAV(context.Background(), Request{Start: 9, End: 12}, filepath.Join(t.TempDir(), "late.wav")); !errors.Is(err, audio.ErrAudioRangeExceeded) {
		t.Errorf("WriteWAV() error = %v, want ErrAudioRangeExceeded", err)
	}
}

func TestAudioOnlySession(t *testing.T) {
	job, src, deps := fixture(t, 25)
	opts := defaultOptions()
	opts.NoVideo = true

	s, err := Open(context.Background(), deps, opts, job)
	if err != nil {
		t.Fatal(err)
	}
	if s.Tracks() != nil {
		t.Error("audio-only session loaded face tracks")
	}
	res := s.Run(context.Background(), []Request{{SegmentIndex: 1, Start: 0, End: 1, OutputPath: filepath.Join(t.TempDir(), "x.mp4")}})
	if res[0].Err != nil {
		t.Errorf("unexpected error: %v", res[0].Err)
	}
	if len(src.reads) != 0 {
		t.Error("audio-only session decoded video")
	}
	s.Close()
}

func TestCloseIsIdempotent(t *testing.T) {
	job, src, deps := fixture(t, 25)
	s, err := Open(context.Background(), deps, defaultOptions(), job)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
	s.Close()
	if src.closed != 1 {
		t.Errorf("source closed %d times, want 1", src.closed)
	}
}
