// Package dataset knows the on-disk layout of the source corpus and of the
// extracted dataset.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/andresmejia3/voxclip/internal/types"
)

// SupportedVersion is the metadata version this tool was written against.
const SupportedVersion = "1.0.x"

// Styles of the extracted dataset.
const (
	LibriSpeech = "librispeech"
	LRS3        = "lrs3"
)

// Corpus is a source dataset root holding metadata/, video/, face_track/ and wav/.
type Corpus string

// MetadataPath returns metadata/<name>.json.
func (c Corpus) MetadataPath(name string) string {
	return filepath.Join(string(c), "metadata", name+".json")
}

// VideoPath returns video/<name>.mp4.
func (c Corpus) VideoPath(name string) string {
	return filepath.Join(string(c), "video", name+".mp4")
}

// TrackPath returns face_track/<name>.json.
func (c Corpus) TrackPath(name string) string {
	return filepath.Join(string(c), "face_track", name+".json")
}

// WavPath returns wav/<name>.wav.
func (c Corpus) WavPath(name string) string {
	return filepath.Join(string(c), "wav", name+".wav")
}

// LoadMetadata reads the metadata of one file.
func (c Corpus) LoadMetadata(name string) (*types.Metadata, error) {
	data, err := os.ReadFile(c.MetadataPath(name))
	if err != nil {
		return nil, err
	}
	var m types.Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse metadata %s: %w", name, err)
	}
	return &m, nil
}

// VersionSupported reports whether version matches SupportedVersion up to its
// last character, so any 1.0 patch release passes.
func VersionSupported(version string) bool {
	if version == "" {
		return false
	}
	return version[:len(version)-1] == SupportedVersion[:len(SupportedVersion)-1]
}

// Paths are the output files of one segment.
type Paths struct {
	Wav   string
	Video string
	Text  string
}

// Destination returns where a segment of file goes under outDir.
//
//	librispeech: <spk>/<file>/<spk>-<file>-<%04d>.flac, .mp4 and <spk>-<file>.trans.txt
//	lrs3:        <file>/<%05d>.wav, .mp4 and .txt
func Destination(file string, seg types.Segment, outDir, style string) (Paths, error) {
	switch style {
	case LibriSpeech:
		spk, err := strconv.Atoi(strings.ReplaceAll(seg.SpeakerID, "id", ""))
		if err != nil {
			return Paths{}, fmt.Errorf("speaker id %q: %w", seg.SpeakerID, err)
		}
		dir := filepath.Join(outDir, strconv.Itoa(spk), file)
		stem := fmt.Sprintf("%d-%s-%04d", spk, file, seg.SegmentIndex)
		return Paths{
			Wav:   filepath.Join(dir, stem+".flac"),
			Video: filepath.Join(dir, stem+".mp4"),
			Text:  filepath.Join(dir, fmt.Sprintf("%d-%s.trans.txt", spk, file)),
		}, nil
	case LRS3:
		base := filepath.Join(outDir, file, fmt.Sprintf("%05d", seg.SegmentIndex))
		return Paths{Wav: base + ".wav", Video: base + ".mp4", Text: base + ".txt"}, nil
	default:
		return Paths{}, fmt.Errorf("invalid dataset style %q", style)
	}
}
