// Package facetrack parses face track annotations into frame-indexed bounding boxes
// and resamples them between frame rates.
//
// Resampling is nearest-neighbor: a resampled frame copies the box of the closest
// annotated source frame verbatim. Boxes are never interpolated.
package facetrack

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/andresmejia3/voxclip/internal/types"
)

// ErrAnnotationCorrupt marks an annotation file that cannot be trusted. It is a
// file-level failure: no track of the file is used once one is known to be bad.
var ErrAnnotationCorrupt = errors.New("face track annotation corrupt")

// fpsTolerance decides when two frame rates are considered equal.
const fpsTolerance = 1e-6

// Track is one face followed across frames. Frames are strictly increasing and
// parallel to Boxes and Times.
type Track struct {
	ID     int
	FPS    float64
	Frames []int
	Boxes  []types.BBox
	Times  []float64

	index map[int]int
}

// Set holds every track of one video at a shared frame rate.
type Set struct {
	FPS    float64
	Tracks map[int]*Track
}

// TimedBox is a box with its timestamp in seconds.
type TimedBox struct {
	Time float64
	Box  types.BBox
}

// MarshalJSON encodes a TimedBox as [timestamp, [x1,y1,x2,y2]].
func (tb TimedBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{tb.Time, tb.Box})
}

// Load reads and validates an annotation file.
func Load(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrAnnotationCorrupt, path, err)
	}
	defer f.Close()

	set, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// Parse decodes annotation JSON and validates every track.
func Parse(r io.Reader) (*Set, error) {
	var raw types.FaceTrackFile
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrAnnotationCorrupt, err)
	}
	return FromFile(raw)
}

// FromFile builds a Set from an already decoded annotation.
func FromFile(raw types.FaceTrackFile) (*Set, error) {
	if raw.FPS <= 0 || math.IsNaN(raw.FPS) || math.IsInf(raw.FPS, 0) {
		return nil, fmt.Errorf("%w: invalid FPS %v", ErrAnnotationCorrupt, raw.FPS)
	}

	set := &Set{FPS: raw.FPS, Tracks: make(map[int]*Track, len(raw.FaceTracks))}
	for _, entry := range raw.FaceTracks {
		if _, dup := set.Tracks[entry.TrackIndex]; dup {
			return nil, fmt.Errorf("%w: duplicate track %d", ErrAnnotationCorrupt, entry.TrackIndex)
		}
		tr, err := buildTrack(entry, raw.FPS)
		if err != nil {
			return nil, err
		}
		set.Tracks[tr.ID] = tr
	}
	return set, nil
}

func buildTrack(entry types.FaceTrackEntry, fps float64) (*Track, error) {
	id := entry.TrackIndex
	if len(entry.Frame) == 0 {
		return nil, fmt.Errorf("%w: track %d has no frames", ErrAnnotationCorrupt, id)
	}
	if len(entry.Frame) != len(entry.BBox) {
		return nil, fmt.Errorf("%w: track %d has %d frames but %d boxes", ErrAnnotationCorrupt, id, len(entry.Frame), len(entry.BBox))
	}

	tr := &Track{
		ID:     id,
		FPS:    fps,
		Frames: make([]int, len(entry.Frame)),
		Boxes:  make([]types.BBox, len(entry.Frame)),
		Times:  make([]float64, len(entry.Frame)),
	}
	for i, f := range entry.Frame {
		if i > 0 && f <= entry.Frame[i-1] {
			return nil, fmt.Errorf("%w: track %d frames not increasing at %d (%d after %d)", ErrAnnotationCorrupt, id, i, f, entry.Frame[i-1])
		}
		if len(entry.BBox[i]) != 4 {
			return nil, fmt.Errorf("%w: track %d frame %d bbox has %d values", ErrAnnotationCorrupt, id, f, len(entry.BBox[i]))
		}
		tr.Frames[i] = f
		copy(tr.Boxes[i][:], entry.BBox[i])
		tr.Times[i] = float64(f) / fps
	}
	tr.reindex()
	return tr, nil
}

func (t *Track) reindex() {
	t.index = make(map[int]int, len(t.Frames))
	for i, f := range t.Frames {
		t.index[f] = i
	}
}

// Len returns the number of annotated frames.
func (t *Track) Len() int { return len(t.Frames) }

// First returns the first annotated frame. The track must not be empty.
func (t *Track) First() int { return t.Frames[0] }

// Last returns the last annotated frame. The track must not be empty.
func (t *Track) Last() int { return t.Frames[len(t.Frames)-1] }

// Clamp pins a frame index into the annotated span [First, Last].
func (t *Track) Clamp(frame int) int {
	return min(max(frame, t.First()), t.Last())
}

// Box returns the box annotated at frame. When the frame falls into a gap of the
// annotation, the nearest annotated frame is used (the earlier one on a tie).
// It reports false only for an empty track.
func (t *Track) Box(frame int) (types.BBox, bool) {
	if len(t.Frames) == 0 {
		return types.BBox{}, false
	}
	if i, ok := t.index[frame]; ok {
		return t.Boxes[i], true
	}
	return t.Boxes[t.nearest(frame)], true
}

func (t *Track) nearest(frame int) int {
	i := sort.SearchInts(t.Frames, frame)
	switch {
	case i == 0:
		return 0
	case i == len(t.Frames):
		return len(t.Frames) - 1
	case frame-t.Frames[i-1] <= t.Frames[i]-frame:
		return i - 1
	default:
		return i
	}
}

// BoxesBetween returns every annotated (timestamp, box) pair with start <= ts <= end.
// With inScreen set, boxes are clipped to the unit square.
func (t *Track) BoxesBetween(start, end float64, inScreen bool) []TimedBox {
	var out []TimedBox
	for i, ts := range t.Times {
		if ts < start || ts > end {
			continue
		}
		b := t.Boxes[i]
		if inScreen {
			b = ClipToScreen(b)
		}
		out = append(out, TimedBox{Time: ts, Box: b})
	}
	return out
}

// ClipToScreen clamps a normalized box to [0, 1].
func ClipToScreen(b types.BBox) types.BBox {
	return types.BBox{max(b[0], 0), max(b[1], 0), min(b[2], 1), min(b[3], 1)}
}

// Matches reports whether the set was annotated at videoFPS.
func Matches(set *Set, videoFPS float64) bool {
	return math.Abs(set.FPS-videoFPS) < fpsTolerance
}
