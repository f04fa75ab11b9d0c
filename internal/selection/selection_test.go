package selection

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/andresmejia3/voxclip/internal/types"
)

func seg(start, end float64, text string) types.Segment {
	return types.Segment{
		SpeakerID: "id00001",
		Start:     start,
		End:       end,
		Text:      text,
		OnScreen:  true,
		FaceTrack: []types.SegmentTrack{{Index: 0, Timestamp: [2]float64{start, end}}},
	}
}

func TestFilterCheck(t *testing.T) {
	f := DefaultFilter()
	f.OnlyOnScreen = true
	f.NoPartiallyOnScreen = true
	f.NoMultipleOnScreen = true
	f.BackgroundNoise = []string{"music"}

	noisy := seg(0, 5, "one two three four five")
	if err := json.Unmarshal([]byte(`{"music": [[0.0, 1.0]]}`), &noisy.BackgroundNoise); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		seg  types.Segment
		want Reason
	}{
		{"Kept", seg(0, 5, "one two three four five"), Keep},
		{"Too short", seg(0, 1.5, "one two three four five"), Duration},
		{"Too long", seg(0, 30, "one two three four five"), Duration},
		{"Singing", func() types.Segment { s := seg(0, 5, "la la la la"); s.Singing = true; return s }(), Singing},
		{"Overlap", func() types.Segment { s := seg(0, 5, "a b c d"); s.OverlappedDuration = 0.3; return s }(), Overlap},
		{"Off screen", func() types.Segment { s := seg(0, 5, "a b c d"); s.OnScreen = false; return s }(), OffScreen},
		{"Two tracks", func() types.Segment {
			s := seg(0, 5, "a b c d")
			s.FaceTrack = append(s.FaceTrack, s.FaceTrack[0])
			return s
		}(), MultipleOnScreen},
		{"Track starts late", func() types.Segment {
			s := seg(0, 5, "a b c d")
			s.FaceTrack[0].Timestamp[0] = 0.5
			return s
		}(), PartialOnScreen},
		{"Noise", noisy, Noise},
		{"Inaudible", seg(0, 5, "we went (inaudible) there today"), Inaudible},
		{"Uncertain", seg(0, 5, "we went [to the] market today"), Uncertain},
		{"Disfluency", seg(0, 5, "we <th th> went to the market"), Disfluency},
		{"Interjection allowed", seg(0, 5, "{hmm} we went to the market"), Keep},
		{"Too few words", seg(0, 5, "yes indeed sir"), WordCount},
		{"Numeric counts spoken form", seg(0, 5, "it cost (1.5/one point five)"), Keep},
		{"Abbreviation is one word", seg(0, 5, "!tv! is on"), WordCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Check(tt.seg); got != tt.want {
				t.Errorf("Check() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFilterCountsAnnotatedWords(t *testing.T) {
	f := DefaultFilter()
	f.NoUncertain = false
	f.NoDisfluency = false
	s := seg(0, 5, "[maybe so] <uh um> go")

	// Only "go" counts by default.
	if got := f.Check(s); got != WordCount {
		t.Errorf("Check() = %q, want %q", got, WordCount)
	}
	f.CountUncertainAsWord = true
	f.CountDisfluencyAsWord = true
	if got := f.Check(s); got != Keep {
		t.Errorf("Check() = %q, want kept with 5 words", got)
	}
}

func TestFilterCountsInaudible(t *testing.T) {
	f := DefaultFilter()
	f.NoInaudible = false

	// Four words with the marker, three without it.
	if got := f.Check(seg(0, 5, "we (inaudible) went home")); got != Keep {
		t.Errorf("Check() = %q, want kept with 4 words", got)
	}
	if got := f.Check(seg(0, 5, "we went home")); got != WordCount {
		t.Errorf("Check() = %q, want %q", got, WordCount)
	}
}

func TestSelectorStats(t *testing.T) {
	meta := &types.Metadata{
		Segments: []types.Segment{
			seg(0, 5, "one two three four five"),
			func() types.Segment { s := seg(5, 8, "la la la la"); s.Singing = true; s.SpeakerID = "id00002"; return s }(),
			seg(10, 11, "one two three four"),
		},
		Statistics: types.Statistics{UtteranceDuration: 9, OnScreenDuration: 9, SegmentNum: 3},
	}
	sel := NewSelector(DefaultFilter())
	kept := sel.Select(meta)

	if len(kept) != 1 || kept[0].Start != 0 {
		t.Fatalf("unexpected selection %+v", kept)
	}
	st := sel.Stats
	if st.Total.Segments != 3 || st.Total.Speakers() != 2 {
		t.Errorf("total = %d segments, %d speakers", st.Total.Segments, st.Total.Speakers())
	}
	if st.Selected.Segments != 1 || st.Selected.Duration != 5 || st.Selected.Speakers() != 1 {
		t.Errorf("selected = %+v, %d speakers", st.Selected, st.Selected.Speakers())
	}
	if math.Abs(st.Excluded[Singing]-3) > 1e-9 || math.Abs(st.Excluded[Duration]-1) > 1e-9 {
		t.Errorf("excluded = %v", st.Excluded)
	}
}

func TestSegmentList(t *testing.T) {
	in := "talkA 3 \ntalkB 1\n\ntalkA 7\n"
	list, err := ParseList(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ParseList failed: %v", err)
	}
	groups, order := list.Group()
	if len(order) != 2 || order[0] != "talkA" || order[1] != "talkB" {
		t.Errorf("order = %v", order)
	}
	if got := groups["talkA"]; len(got) != 2 || got[0] != 3 || got[1] != 7 {
		t.Errorf("talkA = %v", got)
	}

	var buf bytes.Buffer
	for _, e := range list {
		if err := WriteEntry(&buf, e); err != nil {
			t.Fatal(err)
		}
	}
	if buf.String() != "talkA 3\ntalkB 1\ntalkA 7\n" {
		t.Errorf("written list = %q", buf.String())
	}

	for _, bad := range []string{"talkA\n", "talkA x\n"} {
		if _, err := ParseList(strings.NewReader(bad)); err == nil {
			t.Errorf("ParseList(%q) expected error", bad)
		}
	}
}
