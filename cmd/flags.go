package cmd

import (
	"strings"

	"github.com/andresmejia3/voxclip/internal/config"
	"github.com/spf13/cobra"
)

// overrides copies one flag value from src into dst. Keys are flag names.
var overrides = map[string]func(dst, src *config.Config){
	"db":         func(d, s *config.Config) { d.DB = s.DB },
	"log-level":  func(d, s *config.Config) { d.LogLevel = s.LogLevel },
	"log-format": func(d, s *config.Config) { d.LogFormat = s.LogFormat },

	"voxmm-dir":          func(d, s *config.Config) { d.CorpusDir = s.CorpusDir },
	"output-dir":         func(d, s *config.Config) { d.OutputDir = s.OutputDir },
	"file-list-paths":    func(d, s *config.Config) { d.FileListPaths = joinList(s.FileListPaths) },
	"segment-list-paths": func(d, s *config.Config) { d.SegmentListPaths = joinList(s.SegmentListPaths) },
	"num-worker":         func(d, s *config.Config) { d.NumWorkers = s.NumWorkers },
	"dataset-style":      func(d, s *config.Config) { d.DatasetStyle = s.DatasetStyle },
	"use-vid-index":      func(d, s *config.Config) { d.UseVidIndex = s.UseVidIndex },
	"no-wav":             func(d, s *config.Config) { d.NoWav = s.NoWav },
	"sample-rate":        func(d, s *config.Config) { d.SampleRate = s.SampleRate },
	"volume":             func(d, s *config.Config) { d.Volume = s.Volume },
	"no-video":           func(d, s *config.Config) { d.NoVideo = s.NoVideo },
	"track-size":         func(d, s *config.Config) { d.TrackSize = s.TrackSize },
	"track-framerate":    func(d, s *config.Config) { d.TrackFramerate = s.TrackFramerate },
	"audio-in-video":     func(d, s *config.Config) { d.AudioInVideo = s.AudioInVideo },
	"ffmpeg":             func(d, s *config.Config) { d.FFmpeg = s.FFmpeg },
	"ffprobe":            func(d, s *config.Config) { d.FFprobe = s.FFprobe },
	"video-codec":        func(d, s *config.Config) { d.VideoCodec = s.VideoCodec },

	"min-duration":               func(d, s *config.Config) { d.MinDuration = s.MinDuration },
	"max-duration":               func(d, s *config.Config) { d.MaxDuration = s.MaxDuration },
	"no-singing":                 func(d, s *config.Config) { d.NoSinging = s.NoSinging },
	"no-overlap":                 func(d, s *config.Config) { d.NoOverlap = s.NoOverlap },
	"only-on-screen":             func(d, s *config.Config) { d.OnlyOnScreen = s.OnlyOnScreen },
	"no-partially-on-screen":     func(d, s *config.Config) { d.NoPartiallyOnScreen = s.NoPartiallyOnScreen },
	"no-multiple-on-screen":      func(d, s *config.Config) { d.NoMultipleOnScreen = s.NoMultipleOnScreen },
	"background-noise-list":      func(d, s *config.Config) { d.BackgroundNoise = joinList(s.BackgroundNoise) },
	"script-filter":              func(d, s *config.Config) { d.ScriptFilter = s.ScriptFilter },
	"min-word":                   func(d, s *config.Config) { d.MinWord = s.MinWord },
	"max-word":                   func(d, s *config.Config) { d.MaxWord = s.MaxWord },
	"count-interjection-as-word": func(d, s *config.Config) { d.CountInterjectionAsWord = s.CountInterjectionAsWord },
	"count-uncertain-as-word":    func(d, s *config.Config) { d.CountUncertainAsWord = s.CountUncertainAsWord },
	"count-disfluency-as-word":   func(d, s *config.Config) { d.CountDisfluencyAsWord = s.CountDisfluencyAsWord },
	"no-inaudible":               func(d, s *config.Config) { d.NoInaudible = s.NoInaudible },
	"no-uncertain":               func(d, s *config.Config) { d.NoUncertain = s.NoUncertain },
	"no-interjection":            func(d, s *config.Config) { d.NoInterjection = s.NoInterjection },
	"no-disfluency":              func(d, s *config.Config) { d.NoDisfluency = s.NoDisfluency },
}

// applyFlags copies every flag the user set on cmd from flagCfg into c.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	for name, apply := range overrides {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			apply(c, &flagCfg)
		}
	}
}

// joinList re-splits slice flag values so "[a, b]" works on the command line too.
func joinList[S ~[]string](items S) S {
	return S(config.ParseStringList(strings.Join(items, ",")))
}

// addIOFlags registers the corpus and output flags shared by select and extract.
func addIOFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&flagCfg.CorpusDir, "voxmm-dir", flagCfg.CorpusDir, "Source corpus root (metadata/, video/, face_track/, wav/)")
	f.StringVarP(&flagCfg.OutputDir, "output-dir", "o", flagCfg.OutputDir, "Root for generated files")
}

// addFilterFlags registers the segment selection rules.
func addFilterFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	fc := &flagCfg.Filter
	f.Float64Var(&fc.MinDuration, "min-duration", fc.MinDuration, "Exclude segments not longer than this (seconds)")
	f.Float64Var(&fc.MaxDuration, "max-duration", fc.MaxDuration, "Exclude segments not shorter than this (seconds)")
	f.BoolVar(&fc.NoSinging, "no-singing", fc.NoSinging, "Exclude singing")
	f.BoolVar(&fc.NoOverlap, "no-overlap", fc.NoOverlap, "Exclude overlapped speech")
	f.BoolVar(&fc.OnlyOnScreen, "only-on-screen", fc.OnlyOnScreen, "Exclude off-screen speakers")
	f.BoolVar(&fc.NoPartiallyOnScreen, "no-partially-on-screen", fc.NoPartiallyOnScreen, "Exclude segments whose face track does not cover them")
	f.BoolVar(&fc.NoMultipleOnScreen, "no-multiple-on-screen", fc.NoMultipleOnScreen, "Exclude on-screen segments without exactly one face track")
	f.StringSliceVar(&fc.BackgroundNoise, "background-noise-list", fc.BackgroundNoise, "Background noise labels to exclude")
	f.BoolVar(&fc.ScriptFilter, "script-filter", fc.ScriptFilter, "Apply the transcript rules below")
	f.Float64Var(&fc.MinWord, "min-word", fc.MinWord, "Exclude segments with at most this many words")
	f.Float64Var(&fc.MaxWord, "max-word", fc.MaxWord, "Exclude segments with at least this many words")
	f.BoolVar(&fc.CountInterjectionAsWord, "count-interjection-as-word", fc.CountInterjectionAsWord, "Count {interjections} as words")
	f.BoolVar(&fc.CountUncertainAsWord, "count-uncertain-as-word", fc.CountUncertainAsWord, "Count [uncertain] words")
	f.BoolVar(&fc.CountDisfluencyAsWord, "count-disfluency-as-word", fc.CountDisfluencyAsWord, "Count <disfluencies> as words")
	f.BoolVar(&fc.NoInaudible, "no-inaudible", fc.NoInaudible, "Exclude segments with (inaudible) parts")
	f.BoolVar(&fc.NoUncertain, "no-uncertain", fc.NoUncertain, "Exclude segments with [uncertain] words")
	f.BoolVar(&fc.NoInterjection, "no-interjection", fc.NoInterjection, "Exclude segments with {interjections}")
	f.BoolVar(&fc.NoDisfluency, "no-disfluency", fc.NoDisfluency, "Exclude segments with <disfluencies>")
}
