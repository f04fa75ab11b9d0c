package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/voxclip/internal/store"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var listFilter store.Filter

var listCmd = &cobra.Command{
	Use:         "list",
	Short:       "List recorded clips, newest first",
	Annotations: needsLedger,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runList(cmd.Context(), Ledger, listFilter, os.Stdout)
	},
}

func init() {
	listCmd.Flags().StringVar(&listFilter.RunID, "run", "", "Only clips of this run id")
	listCmd.Flags().StringVar(&listFilter.File, "file", "", "Only clips of this source file")
	listCmd.Flags().StringVar(&listFilter.Status, "status", "", "Only clips with this status (ok, failed, skipped)")
	listCmd.Flags().IntVarP(&listFilter.Limit, "limit", "n", 50, "Maximum rows (0 for all)")
	rootCmd.AddCommand(listCmd)
}

func runList(ctx context.Context, ledger store.Ledger, f store.Filter, out io.Writer) error {
	clips, err := ledger.ListClips(ctx, f)
	if err != nil {
		return fmt.Errorf("failed to list clips: %w", err)
	}

	if len(clips) == 0 {
		fmt.Fprintln(out, "No clips recorded.")
		return nil
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"File", "Segment", "Track", "Interval", "Status", "Output", "Created"})
	for _, c := range clips {
		status := c.Status
		if c.Error != "" {
			status += ": " + c.Error
		}
		tw.AppendRow(table.Row{
			c.File,
			c.SegmentIndex,
			c.TrackID,
			fmt.Sprintf("%.2f-%.2f", c.Start, c.End),
			status,
			c.OutputPath,
			c.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 5, WidthMax: 60},
	})
	fmt.Fprintln(out, tw.Render())
	return nil
}
