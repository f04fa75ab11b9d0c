package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/voxclip/internal/facetrack"
	"github.com/spf13/cobra"
)

type bboxOptions struct {
	TrackID  int
	Start    float64
	End      float64
	FPS      float64
	InScreen bool
}

var bboxOpts bboxOptions

var bboxCmd = &cobra.Command{
	Use:   "bbox <face_track.json>",
	Short: "Print the [timestamp, bbox] list of a face track over an interval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runBBox(args[0], bboxOpts, os.Stdout)
	},
}

func init() {
	bboxCmd.Flags().IntVarP(&bboxOpts.TrackID, "track", "t", 0, "Face track index")
	bboxCmd.Flags().Float64Var(&bboxOpts.Start, "start", 0, "Interval start in seconds")
	bboxCmd.Flags().Float64Var(&bboxOpts.End, "end", 0, "Interval end in seconds")
	bboxCmd.Flags().Float64Var(&bboxOpts.FPS, "fps", 0, "Resample the track to this frame rate first (0 keeps the annotation rate)")
	bboxCmd.Flags().BoolVar(&bboxOpts.InScreen, "in-screen", true, "Clamp boxes to the frame")
	bboxCmd.MarkFlagRequired("track")
	bboxCmd.MarkFlagRequired("end")
	rootCmd.AddCommand(bboxCmd)
}

func runBBox(path string, opts bboxOptions, out io.Writer) error {
	if opts.End < opts.Start {
		return fmt.Errorf("end %v is before start %v", opts.End, opts.Start)
	}
	set, err := facetrack.Load(path)
	if err != nil {
		return err
	}
	if opts.FPS > 0 {
		set = facetrack.ForVideo(set, opts.FPS)
	}
	track, ok := set.Tracks[opts.TrackID]
	if !ok {
		return fmt.Errorf("track %d not found in %s", opts.TrackID, path)
	}

	boxes := track.BoxesBetween(opts.Start, opts.End, opts.InScreen)
	if boxes == nil {
		boxes = []facetrack.TimedBox{}
	}
	enc := json.NewEncoder(out)
	return enc.Encode(boxes)
}
