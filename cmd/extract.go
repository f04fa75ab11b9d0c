package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/andresmejia3/voxclip/internal/config"
	"github.com/andresmejia3/voxclip/internal/dataset"
	"github.com/andresmejia3/voxclip/internal/extract"
	"github.com/andresmejia3/voxclip/internal/logging"
	"github.com/andresmejia3/voxclip/internal/media"
	"github.com/andresmejia3/voxclip/internal/selection"
	"github.com/andresmejia3/voxclip/internal/store"
	"github.com/andresmejia3/voxclip/internal/utils"
	"github.com/andresmejia3/voxclip/internal/worker"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// errNoSingleTrack marks a segment whose video was not cut because it has zero
// or several face tracks. Its wav is still written.
var errNoSingleTrack = errors.New("zero or multiple face tracks")

var extractCmd = &cobra.Command{
	Use:         "extract",
	Short:       "Cut face clips and normalized audio for every segment in the segment lists",
	Annotations: needsLedger,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runExtract(cmd.Context(), cfg)
	},
}

func init() {
	addIOFlags(extractCmd)
	f := extractCmd.Flags()
	f.StringSliceVarP((*[]string)(&flagCfg.SegmentListPaths), "segment-list-paths", "s", nil, "Segment lists to extract (\"<file> <segment_index>\" per line)")
	f.IntVarP(&flagCfg.NumWorkers, "num-worker", "w", flagCfg.NumWorkers, "Number of files processed in parallel")
	f.StringVar(&flagCfg.DatasetStyle, "dataset-style", flagCfg.DatasetStyle, "Output layout (librispeech, lrs3)")
	f.BoolVar(&flagCfg.UseVidIndex, "use-vid-index", flagCfg.UseVidIndex, "Name outputs by video index instead of file name")
	f.BoolVar(&flagCfg.NoWav, "no-wav", flagCfg.NoWav, "Do not write cropped audio files")
	f.IntVar(&flagCfg.SampleRate, "sample-rate", flagCfg.SampleRate, "Audio sample rate")
	f.Float64Var(&flagCfg.Volume, "volume", flagCfg.Volume, "Target audio RMS in dBFS")
	f.BoolVar(&flagCfg.NoVideo, "no-video", flagCfg.NoVideo, "Do not write face track videos")
	f.IntVar(&flagCfg.TrackSize, "track-size", flagCfg.TrackSize, "Side of the square face track video")
	f.Float64Var(&flagCfg.TrackFramerate, "track-framerate", flagCfg.TrackFramerate, "Frame rate of the face track video")
	f.BoolVar(&flagCfg.AudioInVideo, "audio-in-video", flagCfg.AudioInVideo, "Mux the normalized audio into the face track video")
	f.StringVar(&flagCfg.FFmpeg, "ffmpeg", flagCfg.FFmpeg, "ffmpeg binary")
	f.StringVar(&flagCfg.FFprobe, "ffprobe", flagCfg.FFprobe, "ffprobe binary")
	f.StringVar(&flagCfg.VideoCodec, "video-codec", flagCfg.VideoCodec, "Video encoder")
	rootCmd.AddCommand(extractCmd)
}

// extractOptions maps the config onto per-segment output settings.
func extractOptions(c config.Config) extract.Options {
	return extract.Options{
		OutSize:      c.TrackSize,
		OutFPS:       c.TrackFramerate,
		SampleRate:   c.SampleRate,
		Loudness:     c.Volume,
		AudioInVideo: c.AudioInVideo,
		NoVideo:      c.NoVideo,
		NoWav:        c.NoWav,
	}
}

// runExtract plans every segment list, runs the worker pool over the files and
// records each segment outcome in the ledger.
func runExtract(ctx context.Context, c config.Config) error {
	if len(c.SegmentListPaths) == 0 {
		return errors.New("no segment lists given (--segment-list-paths or segment_list_paths)")
	}
	if c.NoWav && c.NoVideo {
		return errors.New("nothing to extract: both no_wav and no_video are set")
	}
	if err := os.MkdirAll(c.OutputDir, 0755); err != nil {
		return err
	}

	lock := flock.New(filepath.Join(c.OutputDir, ".voxclip.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire output lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("output directory %s is in use by another run", c.OutputDir)
	}
	defer lock.Unlock()

	started := time.Now()
	runID := uuid.NewString()
	logger := logging.WithComponent("extract").With().Str("run_id", runID).Logger()

	tools, err := media.NewTools(c.FFmpeg, c.FFprobe, c.VideoCodec, logger)
	if err != nil {
		utils.ShowError("ffmpeg is required", err, nil)
		return err
	}

	var jobs []worker.Job
	for _, listPath := range c.SegmentListPaths {
		planned, err := planJobs(c, listPath, logger)
		if err != nil {
			return err
		}
		jobs = append(jobs, planned...)
	}
	for i := range jobs {
		jobs[i].Index = i
	}
	logger.Info().Int("files", len(jobs)).Int("workers", c.NumWorkers).Msg("starting extraction")

	bar := progressbar.NewOptions(len(jobs),
		progressbar.OptionSetDescription("Extracting"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetVisibility(stderrIsTerminal()),
	)

	opts := extractOptions(c)
	pool := &worker.Pool{
		NumWorkers: c.NumWorkers,
		Handle:     worker.SessionHandler(extract.NewDeps(tools, logger), opts),
	}

	// Outcomes are recorded even after Ctrl+C so the ledger shows what was cut.
	recordCtx := context.WithoutCancel(ctx)
	var tally runTally
	pool.Run(ctx, jobs, func(o worker.Outcome) {
		clips := outcomeClips(runID, o, opts.NoVideo)
		if vid, err := utils.GenerateVideoID(o.Job.File.VideoPath); err == nil {
			if err := Ledger.EnsureVideoMetadata(recordCtx, vid, o.Job.File.VideoPath); err != nil {
				logger.Warn().Err(err).Str("file", o.Job.File.Name).Msg("failed to register video")
			} else {
				for i := range clips {
					clips[i].VideoID = vid
				}
			}
		}
		for _, clip := range clips {
			tally.add(clip.Status)
			if err := Ledger.RecordClip(recordCtx, clip); err != nil {
				logger.Warn().Err(err).Str("file", clip.File).Int("segment", clip.SegmentIndex).Msg("failed to record clip")
			}
		}
		bar.Add(1)
	})
	bar.Finish()

	fmt.Fprintf(os.Stderr, "\n🏁 %d files processed in %s: %d segments ok, %d failed, %d skipped (run %s)\n",
		len(jobs), utils.FmtTime(time.Since(started).Seconds()), tally.ok, tally.failed, tally.skipped, runID)
	return ctx.Err()
}

// planJobs turns one segment list into per-file jobs. Outputs go under
// <output_dir>/<list name>/ in the configured dataset style.
func planJobs(c config.Config, listPath string, logger zerolog.Logger) ([]worker.Job, error) {
	list, err := selection.LoadList(listPath)
	if err != nil {
		return nil, fmt.Errorf("segment list: %w", err)
	}
	base := filepath.Base(listPath)
	outDir := filepath.Join(c.OutputDir, strings.TrimSuffix(base, filepath.Ext(base)))
	corpus := dataset.Corpus(c.CorpusDir)

	groups, order := list.Group()
	var jobs []worker.Job
	for _, name := range order {
		meta, err := corpus.LoadMetadata(name)
		if err != nil {
			logger.Error().Err(err).Str("file", name).Msg("metadata unreadable, file skipped")
			continue
		}
		if !dataset.VersionSupported(meta.MetadataVersion) {
			logger.Warn().
				Str("file", name).
				Str("version", meta.MetadataVersion).
				Str("supported", dataset.SupportedVersion).
				Msg("metadata version differs from the supported one")
		}

		wanted := make(map[int]bool, len(groups[name]))
		for _, idx := range groups[name] {
			wanted[idx] = true
		}
		destName := name
		if c.UseVidIndex {
			destName = strconv.Itoa(meta.VideoInfos.Index)
		}

		var reqs []extract.Request
		for _, seg := range meta.Segments {
			if !wanted[seg.SegmentIndex] {
				continue
			}
			paths, err := dataset.Destination(destName, seg, outDir, c.DatasetStyle)
			if err != nil {
				logger.Error().Err(err).Str("file", name).Int("segment", seg.SegmentIndex).Msg("segment skipped")
				continue
			}
			req := extract.Request{SegmentIndex: seg.SegmentIndex, Start: seg.Start, End: seg.End}
			if !c.NoWav {
				req.WavPath = paths.Wav
			}
			if !c.NoVideo {
				if len(seg.FaceTrack) == 1 {
					req.TrackID = seg.FaceTrack[0].Index
					req.OutputPath = paths.Video
				} else {
					logger.Warn().
						Str("file", name).
						Int("segment", seg.SegmentIndex).
						Int("tracks", len(seg.FaceTrack)).
						Msg("zero or multiple face tracks, video skipped")
				}
			}
			for _, p := range []string{req.WavPath, req.OutputPath} {
				if p == "" {
					continue
				}
				if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
					return nil, err
				}
			}
			reqs = append(reqs, req)
		}
		if len(reqs) == 0 {
			continue
		}

		jobs = append(jobs, worker.Job{
			File: extract.FileJob{
				Name:      name,
				VideoPath: corpus.VideoPath(name),
				TrackPath: corpus.TrackPath(name),
				AudioPath: corpus.WavPath(name),
			},
			Requests: reqs,
		})
	}
	return jobs, nil
}

// outcomeClips converts a worker outcome into ledger rows. A file-level failure
// fails every planned segment of the file.
func outcomeClips(runID string, o worker.Outcome, noVideo bool) []store.Clip {
	results := o.Results
	if o.Err != nil {
		results = make([]extract.Result, len(o.Job.Requests))
		for i, req := range o.Job.Requests {
			results[i] = extract.Result{Request: req, Err: o.Err}
		}
	}

	clips := make([]store.Clip, 0, len(results))
	for _, r := range results {
		clip := store.Clip{
			RunID:        runID,
			File:         o.Job.File.Name,
			SegmentIndex: r.SegmentIndex,
			TrackID:      r.TrackID,
			Start:        r.Start,
			End:          r.End,
			OutputPath:   clipKey(o.Job.File.Name, r.Request),
			Status:       store.StatusOK,
		}
		switch {
		case r.Err != nil:
			clip.Status = store.StatusFailed
			clip.Error = r.Err.Error()
		case !noVideo && r.OutputPath == "":
			clip.Status = store.StatusSkipped
			clip.Error = errNoSingleTrack.Error()
		}
		clips = append(clips, clip)
	}
	return clips
}

// clipKey is the ledger key of a segment: its video, else its wav, else file#segment.
func clipKey(file string, r extract.Request) string {
	switch {
	case r.OutputPath != "":
		return r.OutputPath
	case r.WavPath != "":
		return r.WavPath
	default:
		return fmt.Sprintf("%s#%d", file, r.SegmentIndex)
	}
}

type runTally struct {
	ok, failed, skipped int
}

func (t *runTally) add(status string) {
	switch status {
	case store.StatusOK:
		t.ok++
	case store.StatusFailed:
		t.failed++
	case store.StatusSkipped:
		t.skipped++
	}
}

func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
