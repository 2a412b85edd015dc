package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"chata-intake/internal/repository"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var submissionsCmd = &cobra.Command{
	Use:   "submissions",
	Short: "Browse the submission archive",
}

var submissionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived submissions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		size, _ := cmd.Flags().GetInt("size")
		items, total, err := state.backends.Submissions.ListSubmissions(cmd.Context(), page, size)
		if err != nil {
			return fmt.Errorf("failed to list submissions: %w", err)
		}
		renderSubmissions(cmd.OutOrStdout(), items, total)
		return nil
	},
}

func renderSubmissions(w io.Writer, items []*repository.Submission, total int) {
	gray := color.New(color.FgHiBlack).SprintFunc()
	if len(items) == 0 {
		fmt.Fprintf(w, "%s\n", gray("No submissions"))
		return
	}
	cyan := color.New(color.FgCyan).SprintFunc()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCHILD\tCLINICIAN\tPROGRESS\tROW\tSUBMITTED")
	for _, s := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%3d%%\t%d\t%s\n",
			cyan(s.ChataID),
			s.ChildName,
			s.ClinicianEmail,
			s.Progress,
			s.SheetRowID,
			s.SubmittedAt.Local().Format(time.DateTime),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "%s\n", gray(fmt.Sprintf("%d of %d", len(items), total)))
}

func init() {
	submissionsListCmd.Flags().Int("page", 1, "page number")
	submissionsListCmd.Flags().Int("size", 50, "page size")
	submissionsCmd.AddCommand(submissionsListCmd)
	rootCmd.AddCommand(submissionsCmd)
}
