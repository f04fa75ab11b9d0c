package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/andresmejia3/voxclip/internal/utils"
)

var (
	// ErrSourceNotFound means the source container is missing or cannot be opened. File-level.
	ErrSourceNotFound = errors.New("source video not found")
	// ErrFrameUnavailable means a frame index is outside [0, FrameCount) or failed to decode.
	ErrFrameUnavailable = errors.New("frame unavailable")
)

// Info is the container metadata the cropper needs.
type Info struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int
	Duration   float64
	HasAudio   bool
}

// probeResult matches ffprobe JSON output structure
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType     string `json:"codec_type"`
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		RFrameRate    string `json:"r_frame_rate"`
		AvgFrameRate  string `json:"avg_frame_rate"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
		Duration      string `json:"duration"`
	} `json:"streams"`
}

// Probe reads width, height, fps and frame count of the first video stream.
func (t *Tools) Probe(ctx context.Context, path string) (Info, error) {
	if _, err := os.Stat(path); err != nil {
		return Info{}, fmt.Errorf("%w: %s: %v", ErrSourceNotFound, path, err)
	}

	cmd := utils.NewSafeCommand(ctx, t.FFprobe, "-v", "error", "-show_format", "-show_streams", "-of", "json", "--", path)
	out, err := cmd.Output()
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrSourceNotFound, cmd.Fail("ffprobe", err))
	}

	info, err := parseProbe(out)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s: %v", ErrSourceNotFound, path, err)
	}

	if info.FrameCount <= 0 {
		// Slow path: container metadata is missing, count packets.
		t.logger.Debug().Str("input", path).Msg("nb_frames missing, counting packets")
		if n, err := t.countPackets(ctx, path); err == nil && n > 0 {
			info.FrameCount = n
		} else if info.Duration > 0 {
			info.FrameCount = int(math.Floor(info.Duration * info.FPS))
		}
	}
	if info.FrameCount <= 0 {
		return Info{}, fmt.Errorf("%w: %s: cannot determine frame count", ErrSourceNotFound, path)
	}
	return info, nil
}

func (t *Tools) countPackets(ctx context.Context, path string) (int, error) {
	cmd := utils.NewSafeCommand(ctx, t.FFprobe, "-v", "error", "-select_streams", "v:0", "-count_packets",
		"-show_entries", "stream=nb_read_packets", "-of", "json", "--", path)
	out, err := cmd.Output()
	if err != nil {
		return 0, cmd.Fail("ffprobe count packets", err)
	}
	var res probeResult
	if err := json.Unmarshal(out, &res); err != nil {
		return 0, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}
	if len(res.Streams) == 0 {
		return 0, errors.New("no video stream")
	}
	return strconv.Atoi(res.Streams[0].NbReadPackets)
}

func parseProbe(data []byte) (Info, error) {
	var res probeResult
	if err := json.Unmarshal(data, &res); err != nil {
		return Info{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var info Info
	foundVideo := false
	for _, s := range res.Streams {
		switch s.CodecType {
		case "video":
			if foundVideo {
				continue
			}
			foundVideo = true
			info.Width = s.Width
			info.Height = s.Height
			info.FPS = ParseFrameRate(s.AvgFrameRate)
			if info.FPS <= 0 {
				info.FPS = ParseFrameRate(s.RFrameRate)
			}
			if n, err := strconv.Atoi(s.NbFrames); err == nil {
				info.FrameCount = n
			}
			if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
				info.Duration = d
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if !foundVideo {
		return Info{}, errors.New("no video stream")
	}
	if info.Width <= 0 || info.Height <= 0 {
		return Info{}, fmt.Errorf("invalid dimensions %dx%d", info.Width, info.Height)
	}
	if info.FPS <= 0 {
		return Info{}, errors.New("cannot determine frame rate")
	}
	if info.Duration <= 0 {
		if d, err := strconv.ParseFloat(res.Format.Duration, 64); err == nil {
			info.Duration = d
		}
	}
	return info, nil
}

// ParseFrameRate parses ffprobe rates such as "30000/1001" or "25". It returns 0 when unknown.
func ParseFrameRate(rate string) float64 {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return 0
	}
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
