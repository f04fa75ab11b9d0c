package facetrack

import (
	"math"

	"github.com/andresmejia3/voxclip/internal/types"
)

// Resample returns a new Set at targetFPS. The input set is not modified.
//
// A track spanning source frames [f0, f1] at fps a becomes frames
// floor(f0*t/a) .. floor(f1*t/a)-1 at fps t, each copying the box of source frame
// clamp(round(g*a/t), f0, f1) and stamped g/t seconds.
func Resample(set *Set, targetFPS float64) *Set {
	out := &Set{FPS: targetFPS, Tracks: make(map[int]*Track, len(set.Tracks))}
	for id, tr := range set.Tracks {
		out.Tracks[id] = resampleTrack(tr, targetFPS)
	}
	return out
}

func resampleTrack(tr *Track, targetFPS float64) *Track {
	src := tr.FPS
	out := &Track{ID: tr.ID, FPS: targetFPS}
	if tr.Len() == 0 {
		out.reindex()
		return out
	}

	f0, f1 := tr.First(), tr.Last()
	g0 := int(math.Floor(float64(f0) * targetFPS / src))
	g1 := int(math.Floor(float64(f1) * targetFPS / src))

	n := max(g1-g0, 0)
	out.Frames = make([]int, 0, n)
	out.Boxes = make([]types.BBox, 0, n)
	out.Times = make([]float64, 0, n)
	for g := g0; g < g1; g++ {
		srcFrame := int(math.Round(float64(g) * src / targetFPS))
		box, _ := tr.Box(tr.Clamp(srcFrame))
		out.Frames = append(out.Frames, g)
		out.Boxes = append(out.Boxes, box)
		out.Times = append(out.Times, float64(g)/targetFPS)
	}
	out.reindex()
	return out
}

// ForVideo returns set unchanged when it was annotated at videoFPS, otherwise a
// resampled copy.
func ForVideo(set *Set, videoFPS float64) *Set {
	if Matches(set, videoFPS) {
		return set
	}
	return Resample(set, videoFPS)
}
