package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/voxclip/internal/config"
	"github.com/andresmejia3/voxclip/internal/dataset"
	"github.com/andresmejia3/voxclip/internal/logging"
	"github.com/andresmejia3/voxclip/internal/selection"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Filter annotated segments into segment lists",
	Long: "Reads every file named in the file lists, applies the selection rules to its segments and " +
		"writes <output-dir>/segment_list/<file list name> with one \"<file> <segment_index>\" line per kept segment.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runSelect(cfg, os.Stdout)
	},
}

func init() {
	addIOFlags(selectCmd)
	selectCmd.Flags().StringSliceVarP((*[]string)(&flagCfg.FileListPaths), "file-list-paths", "f", nil, "File lists to select from (one file name per line)")
	addFilterFlags(selectCmd)
	rootCmd.AddCommand(selectCmd)
}

func runSelect(c config.Config, out io.Writer) error {
	if len(c.FileListPaths) == 0 {
		return errors.New("no file lists given (--file-list-paths or file_list_paths)")
	}
	outDir := filepath.Join(c.OutputDir, "segment_list")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}
	logger := logging.WithComponent("select")
	corpus := dataset.Corpus(c.CorpusDir)

	for _, listPath := range c.FileListPaths {
		names, err := readFileList(listPath)
		if err != nil {
			return err
		}

		sel := selection.NewSelector(c.Filter)
		dst := filepath.Join(outDir, filepath.Base(listPath))
		if err := writeSelection(corpus, names, sel, dst, func(name, version string) {
			logger.Warn().
				Str("file", name).
				Str("version", version).
				Str("supported", dataset.SupportedVersion).
				Msg("metadata version differs from the supported one")
		}); err != nil {
			return err
		}
		logger.Info().Str("list", listPath).Str("output", dst).Int("selected", sel.Stats.Selected.Segments).Msg("segment list written")

		fmt.Fprintf(out, "\nResults for %s\n", listPath)
		fmt.Fprintln(out, renderSummary(sel.Stats))
		fmt.Fprintln(out, renderExcluded(sel.Stats))
	}
	return nil
}

// writeSelection runs sel over names and writes the kept segments to dst.
func writeSelection(corpus dataset.Corpus, names []string, sel *selection.Selector, dst string, versionWarning func(name, version string)) (err error) {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	w := bufio.NewWriter(f)

	for _, name := range names {
		meta, err := corpus.LoadMetadata(name)
		if err != nil {
			return fmt.Errorf("metadata for %s: %w", name, err)
		}
		if !dataset.VersionSupported(meta.MetadataVersion) {
			versionWarning(name, meta.MetadataVersion)
		}
		for _, seg := range sel.Select(meta) {
			if err := selection.WriteEntry(w, selection.Entry{File: name, Segment: seg.SegmentIndex}); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

// readFileList returns the trimmed, non-empty lines of path.
func readFileList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("file list: %w", err)
	}
	var names []string
	for _, line := range strings.Split(string(data), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func renderSummary(s *selection.Stats) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"", "Segments", "Duration (hrs)", "Speakers"})
	for _, r := range []struct {
		name string
		sum  *selection.Summary
	}{
		{"Total", &s.Total},
		{"Selected", &s.Selected},
	} {
		tw.AppendRow(table.Row{r.name, r.sum.Segments, fmt.Sprintf("%.2f", r.sum.Duration/3600), r.sum.Speakers()})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	return tw.Render()
}

func renderExcluded(s *selection.Stats) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Excluded", "Duration (mins)"})
	for _, reason := range selection.Reasons {
		tw.AppendRow(table.Row{string(reason), fmt.Sprintf("%.2f", s.Excluded[reason]/60)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	return tw.Render()
}
