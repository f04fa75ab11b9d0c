package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"

	"github.com/andresmejia3/voxclip/internal/utils"
	"github.com/rs/zerolog"
)

// Tools locates ffmpeg/ffprobe and runs them.
type Tools struct {
	FFmpeg     string
	FFprobe    string
	VideoCodec string
	logger     zerolog.Logger
}

// NewTools resolves the binaries in PATH. Empty names default to ffmpeg/ffprobe.
func NewTools(ffmpegPath, ffprobePath, videoCodec string, logger zerolog.Logger) (*Tools, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if videoCodec == "" {
		videoCodec = "libx264"
	}

	ff, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	fp, err := exec.LookPath(ffprobePath)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	return &Tools{
		FFmpeg:     ff,
		FFprobe:    fp,
		VideoCodec: videoCodec,
		logger:     logger.With().Str("component", "ffmpeg").Logger(),
	}, nil
}

// newFFmpegRawDecoder creates a decoder pipe that emits raw RGBA frames on stdout,
// one per source frame (no duplication or dropping).
func (t *Tools) newFFmpegRawDecoder(ctx context.Context, inputPath string) *utils.SafeCommand {
	return utils.NewSafeCommand(ctx, t.FFmpeg,
		"-hide_banner", "-loglevel", "error",
		"-noautorotate",
		"-i", inputPath,
		"-map", "0:v:0",
		"-fps_mode", "passthrough",
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-",
	)
}

// newFFmpegEncoder creates an encoder that reads raw RGBA frames from stdin.
func (t *Tools) newFFmpegEncoder(ctx context.Context, outputPath string, fps float64, width, height int) *utils.SafeCommand {
	return utils.NewSafeCommand(ctx, t.FFmpeg,
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-",
		"-an",
		"-c:v", t.VideoCodec,
		"-pix_fmt", "yuv420p",
		outputPath,
	)
}

// EncodeFrames writes frames as a video at fps. All frames must share the first frame's size.
func (t *Tools) EncodeFrames(ctx context.Context, frames []*image.RGBA, fps float64, outputPath string) error {
	if len(frames) == 0 {
		return errors.New("encode: no frames")
	}
	b := frames[0].Bounds()
	enc := t.newFFmpegEncoder(ctx, outputPath, fps, b.Dx(), b.Dy())
	t.logger.Debug().Strs("args", enc.Args).Msg("executing ffmpeg encoder")

	stdin, err := enc.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create encoder pipe: %w", err)
	}
	if err := enc.Start(); err != nil {
		return fmt.Errorf("failed to start encoder: %w", err)
	}

	var writeErr error
	for i, f := range frames {
		if f.Bounds().Size() != b.Size() {
			writeErr = fmt.Errorf("frame %d is %v, want %v", i, f.Bounds().Size(), b.Size())
			break
		}
		if _, err := stdin.Write(frameBytes(f)); err != nil {
			writeErr = err
			break
		}
	}
	stdin.Close()

	// A broken pipe usually means ffmpeg exited; its own error is more useful.
	if err := enc.Wait(); err != nil {
		return enc.Fail("ffmpeg encode", err)
	}
	if writeErr != nil {
		return fmt.Errorf("ffmpeg encode: %w", writeErr)
	}
	return nil
}

// frameBytes returns the tightly packed RGBA bytes of f.
func frameBytes(f *image.RGBA) []byte {
	w, h := f.Rect.Dx(), f.Rect.Dy()
	if f.Stride == w*4 && len(f.Pix) == w*h*4 {
		return f.Pix
	}
	out := make([]byte, 0, w*h*4)
	for y := 0; y < h; y++ {
		off := y * f.Stride
		out = append(out, f.Pix[off:off+w*4]...)
	}
	return out
}

// CombineAV muxes a video file and an audio file, copying video and encoding audio to AAC.
func (t *Tools) CombineAV(ctx context.Context, videoPath, audioPath, outputPath string) error {
	cmd := utils.NewSafeCommand(ctx, t.FFmpeg,
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		outputPath,
	)
	t.logger.Debug().Strs("args", cmd.Args).Msg("executing ffmpeg combine")
	if err := cmd.Run(); err != nil {
		return cmd.Fail("ffmpeg combine", err)
	}
	return nil
}

// ExtractAudio writes the first audio stream of a container as mono 16-bit PCM WAV at sampleRate.
func (t *Tools) ExtractAudio(ctx context.Context, videoPath, outputPath string, sampleRate int) error {
	t.logger.Info().
		Str("input", videoPath).
		Str("output", outputPath).
		Int("sample_rate", sampleRate).
		Msg("extracting audio")

	cmd := utils.NewSafeCommand(ctx, t.FFmpeg,
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-vn",
		"-ac", "1",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		outputPath,
	)
	if err := cmd.Run(); err != nil {
		return cmd.Fail("ffmpeg extract audio", err)
	}
	return nil
}

// ConvertAudio re-encodes an audio file into the format implied by outputPath's extension.
func (t *Tools) ConvertAudio(ctx context.Context, inputPath, outputPath string) error {
	cmd := utils.NewSafeCommand(ctx, t.FFmpeg,
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", inputPath,
		outputPath,
	)
	if err := cmd.Run(); err != nil {
		return cmd.Fail("ffmpeg convert audio", err)
	}
	return nil
}

// discardFrames skips n frames of size frameSize on r.
func discardFrames(r io.Reader, n, frameSize int) error {
	if n <= 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, r, int64(n)*int64(frameSize))
	return err
}
