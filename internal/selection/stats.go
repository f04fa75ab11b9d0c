package selection

import (
	"github.com/andresmejia3/voxclip/internal/types"
)

// Summary counts segments, their duration and distinct speakers.
type Summary struct {
	Segments         int
	Duration         float64
	OnScreenDuration float64
	speakers         map[string]struct{}
}

// Speakers returns the number of distinct speakers seen.
func (s *Summary) Speakers() int { return len(s.speakers) }

func (s *Summary) addSpeaker(id string) {
	if s.speakers == nil {
		s.speakers = make(map[string]struct{})
	}
	s.speakers[id] = struct{}{}
}

func (s *Summary) add(seg types.Segment) {
	s.Segments++
	s.Duration += seg.Duration()
	if seg.OnScreen {
		s.OnScreenDuration += seg.Duration()
	}
	s.addSpeaker(seg.SpeakerID)
}

// Stats accumulates one selection run. Excluded holds seconds per Reason.
type Stats struct {
	Total    Summary
	Selected Summary
	Excluded map[Reason]float64
}

// NewStats returns an empty accumulator.
func NewStats() *Stats {
	return &Stats{Excluded: make(map[Reason]float64)}
}

// Selector applies a Filter file by file and keeps the Stats.
type Selector struct {
	Filter Filter
	Stats  *Stats
}

// NewSelector returns a Selector with fresh Stats.
func NewSelector(f Filter) *Selector {
	return &Selector{Filter: f, Stats: NewStats()}
}

// Select returns the segments of meta that pass the filter. Totals come from the
// precomputed metadata statistics, speakers from every segment.
func (s *Selector) Select(meta *types.Metadata) []types.Segment {
	s.Stats.Total.Segments += meta.Statistics.SegmentNum
	s.Stats.Total.Duration += meta.Statistics.UtteranceDuration
	s.Stats.Total.OnScreenDuration += meta.Statistics.OnScreenDuration

	var kept []types.Segment
	for _, seg := range meta.Segments {
		s.Stats.Total.addSpeaker(seg.SpeakerID)
		reason := s.Filter.Check(seg)
		if reason != Keep {
			s.Stats.Excluded[reason] += seg.Duration()
			continue
		}
		s.Stats.Selected.add(seg)
		kept = append(kept, seg)
	}
	return kept
}
