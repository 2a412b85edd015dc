package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"chata-intake/internal/domain"
	"chata-intake/internal/export"
	"chata-intake/internal/submission"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var draftsCmd = &cobra.Command{
	Use:   "drafts",
	Short: "Inspect, export and clear saved drafts",
}

var draftsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved drafts with status and progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ids, err := state.drafts.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list drafts: %w", err)
		}
		records := make([]*domain.FormState, 0, len(ids))
		for _, id := range ids {
			st, err := state.drafts.Load(ctx, id)
			if err != nil {
				state.log.Warn("Skipping unreadable draft", zap.String("chata_id", id), zap.Error(err))
				continue
			}
			records = append(records, st)
		}
		renderDraftList(cmd.OutOrStdout(), records)
		return nil
	},
}

var draftsShowCmd = &cobra.Command{
	Use:   "show <chata-id>",
	Short: "Print a draft as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := state.forms.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	},
}

var draftsExportCmd = &cobra.Command{
	Use:   "export <chata-id>...",
	Short: "Write one or more drafts to an Excel workbook",
	Long: `Export drafts in the spreadsheet column layout used for submission.

Examples:
  chata-ctl drafts export CHATA-1A2B3C4D -o sam.xlsx
  chata-ctl drafts export --all -o drafts.xlsx`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out, _ := cmd.Flags().GetString("output")
		all, _ := cmd.Flags().GetBool("all")

		ids := args
		if all {
			var err error
			if ids, err = state.drafts.List(ctx); err != nil {
				return err
			}
		}
		if len(ids) == 0 {
			return fmt.Errorf("no drafts selected; pass ids or --all")
		}

		formatter := submission.NewFormatter(state.catalog, state.cfg.Sheety.MaxFieldLength)
		records := make([]submission.Record, 0, len(ids))
		for _, id := range ids {
			st, err := state.forms.Get(ctx, id)
			if err != nil {
				return err
			}
			rec, err := formatter.Format(st, submission.Charts{})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}

		data, err := export.XLSX(records)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(cmd.OutOrStdout(), "%s Exported %d draft(s) to %s\n", green("✓"), len(records), out)
		return nil
	},
}

var draftsClearCmd = &cobra.Command{
	Use:   "clear <chata-id>",
	Short: "Delete a draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := state.forms.Clear(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", args[0])
		return nil
	},
}

func renderDraftList(w io.Writer, records []*domain.FormState) {
	if len(records) == 0 {
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Fprintf(w, "%s\n", gray("No drafts"))
		return
	}
	cyan := color.New(color.FgCyan).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPROGRESS\tCLINICIAN\tUPDATED")
	for _, st := range records {
		status := yellow(string(st.Status))
		if !st.IsDraft() {
			status = green(string(st.Status))
		}
		fmt.Fprintf(tw, "%s\t%s\t%3d%%\t%s\t%s\n",
			cyan(st.ChataID),
			status,
			st.Progress,
			st.Clinician.Email,
			st.LastUpdated.Local().Format(time.DateTime),
		)
	}
	tw.Flush()
}

func init() {
	draftsExportCmd.Flags().StringP("output", "o", "chata-drafts.xlsx", "output file")
	draftsExportCmd.Flags().Bool("all", false, "export every saved draft")

	draftsCmd.AddCommand(draftsListCmd, draftsShowCmd, draftsExportCmd, draftsClearCmd)
	rootCmd.AddCommand(draftsCmd)
}
