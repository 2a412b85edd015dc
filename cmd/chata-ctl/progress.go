package main

import (
	"fmt"
	"io"
	"strings"

	"chata-intake/internal/progress"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const barWidth = 20

var progressCmd = &cobra.Command{
	Use:   "progress <chata-id>",
	Short: "Show per-form progress for a draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := state.forms.Progress(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		renderProgress(cmd.OutOrStdout(), args[0], b)
		return nil
	},
}

func renderProgress(w io.Writer, chataID string, b progress.Breakdown) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(w, "\n%s %s\n\n", cyan("Progress"), chataID)
	for _, p := range b.Parts {
		fmt.Fprintf(w, "  %-22s %s %3d%%  %5.1f/%d\n", p.Type, bar(p.Percent, barWidth), p.Percent, p.Contribution, p.Share)
	}
	fmt.Fprintf(w, "\n  %-22s %s %3d%%\n\n", "total", bar(b.Total, barWidth), b.Total)
}

// bar draws pct (0..100) as a fixed-width block
func bar(pct, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func init() {
	rootCmd.AddCommand(progressCmd)
}
