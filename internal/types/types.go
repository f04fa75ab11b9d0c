package types

import (
	"bytes"
	"encoding/json"
)

// BBox is a face box as [x1, y1, x2, y2], normalized to the frame (top-left, bottom-right).
type BBox [4]float64

// FaceTrackFile matches the per-video face track annotation JSON.
type FaceTrackFile struct {
	FPS        float64          `json:"FPS"`
	FaceTracks []FaceTrackEntry `json:"face_tracks"`
}

// FaceTrackEntry is one track inside a FaceTrackFile. Frame and BBox are parallel lists.
type FaceTrackEntry struct {
	TrackIndex int         `json:"track_index"`
	Frame      []int       `json:"frame"`
	BBox       [][]float64 `json:"bbox"`
}

// Metadata matches the per-video dataset metadata JSON (metadata/<file>.json).
type Metadata struct {
	MetadataVersion string     `json:"metadata_version"`
	VideoInfos      VideoInfos `json:"video_infos"`
	Segments        []Segment  `json:"segments"`
	Statistics      Statistics `json:"statistics"`
}

// VideoInfos identifies the source recording.
type VideoInfos struct {
	FileName string `json:"file_name"`
	Index    int    `json:"index"`
}

// Segment is one annotated utterance.
type Segment struct {
	SegmentIndex       int             `json:"segment_index"`
	SpeakerID          string          `json:"speaker_id"`
	Start              float64         `json:"start"`
	End                float64         `json:"end"`
	Text               string          `json:"text"`
	Singing            bool            `json:"singing"`
	OverlappedDuration float64         `json:"overlapped_duration"`
	OnScreen           bool            `json:"on-screen"`
	FaceTrack          []SegmentTrack  `json:"face_track"`
	BackgroundNoise    BackgroundNoise `json:"background_noise"`
}

// SegmentTrack references a face track visible during a segment.
type SegmentTrack struct {
	Index     int        `json:"index"`
	Timestamp [2]float64 `json:"timestamp"`
}

// Statistics holds per-file totals precomputed in the metadata.
type Statistics struct {
	UtteranceDuration float64 `json:"utterance_duration"`
	OnScreenDuration  float64 `json:"on-screen_duration"`
	SegmentNum        int     `json:"segment_num"`
}

// Duration returns End - Start in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// BackgroundNoise lists the noise labels of a segment. The metadata encodes
// "no noise" as the string "N/A" and otherwise as an object keyed by label.
type BackgroundNoise struct {
	Labels map[string]json.RawMessage
}

// UnmarshalJSON accepts either "N/A" (or null) or an object.
func (b *BackgroundNoise) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) || data[0] == '"' {
		b.Labels = nil
		return nil
	}
	return json.Unmarshal(data, &b.Labels)
}

// MarshalJSON writes "N/A" for an empty label set.
func (b BackgroundNoise) MarshalJSON() ([]byte, error) {
	if len(b.Labels) == 0 {
		return []byte(`"N/A"`), nil
	}
	return json.Marshal(b.Labels)
}

// Has reports whether any of the given labels is present.
func (b BackgroundNoise) Has(labels []string) bool {
	for _, l := range labels {
		if _, ok := b.Labels[l]; ok {
			return true
		}
	}
	return false
}
