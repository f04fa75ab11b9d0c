// Package selection decides which annotated segments are worth extracting and
// keeps a tally of what was excluded and why.
package selection

import (
	"regexp"
	"strings"

	"github.com/andresmejia3/voxclip/internal/types"
)

// Reason names why a segment was excluded. The empty Reason means kept.
type Reason string

const (
	Keep             Reason = ""
	Duration         Reason = "duration"
	Singing          Reason = "singing"
	Overlap          Reason = "overlap"
	OffScreen        Reason = "off-screen"
	PartialOnScreen  Reason = "partially on-screen"
	MultipleOnScreen Reason = "scene changed on-screen"
	Noise            Reason = "background noise"
	Inaudible        Reason = "inaudible"
	Uncertain        Reason = "uncertain"
	Interjection     Reason = "interjection"
	Disfluency       Reason = "disfluency"
	Marked           Reason = "marked"
	WordCount        Reason = "word count"
)

// Reasons lists every exclusion reason in report order.
var Reasons = []Reason{
	Singing, Overlap, OffScreen, PartialOnScreen, MultipleOnScreen, Noise,
	Inaudible, Uncertain, Interjection, Disfluency, Marked, Duration, WordCount,
}

// tokenPattern splits a transcript into annotated spans and plain words:
// !abbrev!, {interjection}, (inaudible) or (digits/spoken), [uncertain], <disfluency>.
var tokenPattern = regexp.MustCompile(`![^!]*!|\{[^}]*\}|\([^/][^)]*\)|\[[^\]]*\]|<[^>]*>|[\p{L}\p{N}_]+`)

// trackEdgeTolerance is how far a face track may start late or end early, in seconds,
// before a segment counts as partially on screen.
const trackEdgeTolerance = 0.01

// Filter holds the selection rules.
type Filter struct {
	MinDuration float64 `yaml:"min_duration" toml:"min_duration"`
	MaxDuration float64 `yaml:"max_duration" toml:"max_duration"`
	NoSinging   bool    `yaml:"no_singing" toml:"no_singing"`
	NoOverlap   bool    `yaml:"no_overlap" toml:"no_overlap"`

	OnlyOnScreen        bool `yaml:"only_on_screen" toml:"only_on_screen"`
	NoPartiallyOnScreen bool `yaml:"no_partially_on_screen" toml:"no_partially_on_screen"`
	NoMultipleOnScreen  bool `yaml:"no_multiple_on_screen" toml:"no_multiple_on_screen"`

	BackgroundNoise []string `yaml:"background_noise_list" toml:"background_noise_list"`

	ScriptFilter            bool    `yaml:"script_filter" toml:"script_filter"`
	MinWord                 float64 `yaml:"min_word" toml:"min_word"`
	MaxWord                 float64 `yaml:"max_word" toml:"max_word"`
	CountInterjectionAsWord bool    `yaml:"count_interjection_as_word" toml:"count_interjection_as_word"`
	CountUncertainAsWord    bool    `yaml:"count_uncertain_as_word" toml:"count_uncertain_as_word"`
	CountDisfluencyAsWord   bool    `yaml:"count_disfluency_as_word" toml:"count_disfluency_as_word"`
	NoInaudible             bool    `yaml:"no_inaudible" toml:"no_inaudible"`
	NoUncertain             bool    `yaml:"no_uncertain" toml:"no_uncertain"`
	NoInterjection          bool    `yaml:"no_interjection" toml:"no_interjection"`
	NoDisfluency            bool    `yaml:"no_disfluency" toml:"no_disfluency"`
}

// DefaultFilter returns the stock selection rules.
func DefaultFilter() Filter {
	return Filter{
		MinDuration:  1.5,
		MaxDuration:  30,
		NoSinging:    true,
		NoOverlap:    true,
		ScriptFilter: true,
		MinWord:      3,
		MaxWord:      80,
		NoInaudible:  true,
		NoUncertain:  true,
		NoDisfluency: true,
	}
}

// Check returns why seg is excluded, or Keep.
func (f Filter) Check(seg types.Segment) Reason {
	d := seg.Duration()
	switch {
	case d >= f.MaxDuration || d <= f.MinDuration:
		return Duration
	case seg.Singing && f.NoSinging:
		return Singing
	case seg.OverlappedDuration > 0 && f.NoOverlap:
		return Overlap
	}

	if seg.OnScreen {
		if len(seg.FaceTrack) != 1 && f.NoMultipleOnScreen {
			return MultipleOnScreen
		}
		if f.NoPartiallyOnScreen {
			for _, tr := range seg.FaceTrack {
				if tr.Timestamp[0]-seg.Start > trackEdgeTolerance || seg.End-tr.Timestamp[1] > trackEdgeTolerance {
					return PartialOnScreen
				}
			}
		}
	} else if f.OnlyOnScreen {
		return OffScreen
	}

	if seg.BackgroundNoise.Has(f.BackgroundNoise) {
		return Noise
	}

	if f.ScriptFilter {
		return f.checkScript(seg.Text)
	}
	return Keep
}

func (f Filter) checkScript(text string) Reason {
	words := 0
	for _, tok := range tokenPattern.FindAllString(text, -1) {
		switch {
		case tok == "(inaudible)":
			if f.NoInaudible {
				return Inaudible
			}
			words++
		case strings.HasPrefix(tok, "["):
			if f.NoUncertain {
				return Uncertain
			}
			if f.CountUncertainAsWord {
				words += len(strings.Fields(strings.Trim(tok, "[]")))
			}
		case strings.HasPrefix(tok, "{"):
			if f.NoInterjection {
				return Interjection
			}
			if f.CountInterjectionAsWord {
				words += len(strings.Fields(strings.Trim(tok, "{}")))
			}
		case strings.HasPrefix(tok, "<"):
			if f.NoDisfluency {
				return Disfluency
			}
			if f.CountDisfluencyAsWord {
				words += len(strings.Fields(strings.Trim(tok, "<>")))
			}
		case strings.HasPrefix(tok, "(") && strings.Contains(tok, "/"):
			// (1.5/one point five) counts the spoken form.
			spoken := strings.Trim(tok, "()")
			spoken = spoken[strings.LastIndex(spoken, "/")+1:]
			words += len(strings.Fields(spoken))
		case strings.Contains(tok, "*"):
			return Marked
		default:
			words++
		}
	}

	if float64(words) >= f.MaxWord || float64(words) <= f.MinWord {
		return WordCount
	}
	return Keep
}
