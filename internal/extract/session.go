// Package extract drives one source file through cropping, audio cutting and
// muxing. A Session owns every per-file resource and is used by a single worker.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/andresmejia3/voxclip/internal/audio"
	"github.com/andresmejia3/voxclip/internal/crop"
	"github.com/andresmejia3/voxclip/internal/facetrack"
	"github.com/andresmejia3/voxclip/internal/media"
	"github.com/andresmejia3/voxclip/internal/mux"
	"github.com/rs/zerolog"
)

// ErrTrackUnavailable means the requested track id is unknown or has no frames
// at the video frame rate.
var ErrTrackUnavailable = errors.New("face track unavailable")

// VideoSource is a decoder owned by one Session.
type VideoSource interface {
	crop.FrameSource
	Close() error
}

// SourceOpener opens the container of a file.
type SourceOpener func(ctx context.Context, path string) (VideoSource, error)

// AudioTools pulls audio out of containers and converts written clips.
type AudioTools interface {
	audio.Extractor
	audio.Converter
}

// Deps are the collaborators shared by every Session of a run.
type Deps struct {
	Open   SourceOpener
	Audio  AudioTools
	Muxer  *mux.Muxer
	Logger zerolog.Logger
}

// NewDeps wires Deps to ffmpeg.
func NewDeps(tools *media.Tools, logger zerolog.Logger) Deps {
	return Deps{
		Open: func(ctx context.Context, path string) (VideoSource, error) {
			src, err := tools.Open(ctx, path)
			if err != nil {
				return nil, err
			}
			return src, nil
		},
		Audio:  tools,
		Muxer:  &mux.Muxer{T: tools, Logger: logger.With().Str("component", "mux").Logger()},
		Logger: logger,
	}
}

// Options are the output settings shared by every segment.
type Options struct {
	OutSize      int
	OutFPS       float64
	SampleRate   int
	Loudness     float64 // target RMS in dBFS
	AudioInVideo bool
	NoVideo      bool
	NoWav        bool
}

// wantsAudio reports whether the waveform has to be loaded at all.
func (o Options) wantsAudio() bool {
	return !o.NoWav || (!o.NoVideo && o.AudioInVideo)
}

// FileJob names the inputs of one source file.
type FileJob struct {
	Name      string
	VideoPath string
	TrackPath string
	// AudioPath is an optional WAV sidecar. When empty or missing, audio is
	// extracted from VideoPath.
	AudioPath string
}

// Request is one segment to cut from a file.
type Request struct {
	SegmentIndex int
	TrackID      int
	Start        float64
	End          float64
	OutputPath   string
	WavPath      string
}

// Result is the outcome of one Request. Err is nil on success.
type Result struct {
	Request
	Err error
}

// IsFileLevel reports whether err stops the whole file rather than one segment.
func IsFileLevel(err error) bool {
	return errors.Is(err, media.ErrSourceNotFound) ||
		errors.Is(err, facetrack.ErrAnnotationCorrupt) ||
		errors.Is(err, audio.ErrAudioLoad)
}

// Session holds the decoder, waveform and tracks of one file.
type Session struct {
	deps   Deps
	opts   Options
	job    FileJob
	logger zerolog.Logger

	src    VideoSource
	audio  *audio.Buffer
	tracks *facetrack.Set
}

// Open acquires every resource of job. On failure, whatever was already
// acquired is released and a file-level error is returned.
func Open(ctx context.Context, deps Deps, opts Options, job FileJob) (s *Session, err error) {
	s = &Session{
		deps:   deps,
		opts:   opts,
		job:    job,
		logger: deps.Logger.With().Str("file", job.Name).Logger(),
	}
	defer func() {
		if err != nil {
			s.Close()
			s = nil
		}
	}()

	if !opts.NoVideo {
		if s.src, err = deps.Open(ctx, job.VideoPath); err != nil {
			return s, fmt.Errorf("%s: %w", job.Name, err)
		}
		set, err := facetrack.Load(job.TrackPath)
		if err != nil {
			return s, fmt.Errorf("%s: %w", job.Name, err)
		}
		fps := s.src.Info().FPS
		if !facetrack.Matches(set, fps) {
			s.logger.Debug().Float64("from", set.FPS).Float64("to", fps).Msg("resampling face tracks")
		}
		s.tracks = facetrack.ForVideo(set, fps)
	}

	if opts.wantsAudio() {
		if s.audio, err = s.loadAudio(ctx); err != nil {
			return s, fmt.Errorf("%s: %w", job.Name, err)
		}
	}
	return s, nil
}

func (s *Session) loadAudio(ctx context.Context) (*audio.Buffer, error) {
	if s.job.AudioPath != "" {
		buf, err := audio.LoadSidecar(s.job.AudioPath, s.opts.SampleRate)
		if err == nil {
			return buf, nil
		}
		s.logger.Warn().Err(err).Str("wav", s.job.AudioPath).Msg("sidecar unusable, extracting audio from video")
	}
	return audio.Extract(ctx, s.deps.Audio, s.job.VideoPath, s.opts.SampleRate)
}

// Tracks returns the face tracks at the video frame rate, or nil in audio-only mode.
func (s *Session) Tracks() *facetrack.Set { return s.tracks }

// Process cuts one face clip: crop, then audio, then mux.
func (s *Session) Process(ctx context.Context, req Request) Result {
	res := Result{Request: req}
	if s.src == nil {
		res.Err = errors.New("session has no video source")
		return res
	}

	track, ok := s.tracks.Tracks[req.TrackID]
	if !ok || track.Len() == 0 {
		res.Err = fmt.Errorf("%w: track %d", ErrTrackUnavailable, req.TrackID)
		return res
	}

	clip, err := crop.CropTrack(ctx, s.src, track, req.Start, req.End, s.opts.OutSize, s.opts.OutFPS)
	if err != nil {
		res.Err = err
		return res
	}
	defer clip.Release()

	var at *mux.AudioTrack
	if s.opts.AudioInVideo && s.audio != nil {
		samples, err := audio.Crop(s.audio, req.Start, req.End, s.opts.Loudness)
		if err != nil {
			res.Err = err
			return res
		}
		at = &mux.AudioTrack{Samples: samples, SampleRate: s.audio.SampleRate}
	}

	res.Err = s.deps.Muxer.Write(ctx, clip, req.OutputPath, at)
	return res
}

// WriteWAV writes the normalized audio of req to path. The extension picks the
// format: ".wav" is 24-bit PCM, anything else (".flac") is converted by ffmpeg.
func (s *Session) WriteWAV(ctx context.Context, req Request, path string) error {
	if s.audio == nil {
		return errors.New("session has no audio")
	}
	samples, err := audio.Crop(s.audio, req.Start, req.End, s.opts.Loudness)
	if err != nil {
		return err
	}
	return audio.WriteFile(ctx, s.deps.Audio, path, samples, s.audio.SampleRate)
}

// Run handles reqs in start-time order so the decoder only moves forward.
// Each request writes its wav (WavPath set, unless NoWav) and then its clip
// (OutputPath set, unless NoVideo). Segment errors are logged and collected.
func (s *Session) Run(ctx context.Context, reqs []Request) []Result {
	ordered := append([]Request(nil), reqs...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	results := make([]Result, 0, len(ordered))
	for _, req := range ordered {
		if err := ctx.Err(); err != nil {
			results = append(results, Result{Request: req, Err: err})
			continue
		}
		res := s.runOne(ctx, req)
		log := s.logger.With().Int("segment", req.SegmentIndex).Int("track", req.TrackID).Logger()
		if res.Err != nil {
			log.Error().Err(res.Err).Msg("segment skipped")
		} else {
			log.Debug().Msg("segment done")
		}
		results = append(results, res)
	}
	return results
}

// runOne writes the wav and then the clip of req. A failed clip removes the
// wav so a failed segment leaves no outputs.
func (s *Session) runOne(ctx context.Context, req Request) Result {
	wrote := false
	if !s.opts.NoWav && req.WavPath != "" {
		if err := s.WriteWAV(ctx, req, req.WavPath); err != nil {
			return Result{Request: req, Err: err}
		}
		wrote = true
	}
	if !s.opts.NoVideo && req.OutputPath != "" {
		res := s.Process(ctx, req)
		if res.Err != nil && wrote {
			os.Remove(req.WavPath)
		}
		return res
	}
	return Result{Request: req}
}

// Close releases the decoder, waveform and tracks. It is safe to call twice.
func (s *Session) Close() error {
	var err error
	if s.src != nil {
		err = s.src.Close()
		s.src = nil
	}
	s.audio = nil
	s.tracks = nil
	return err
}
