package main

import (
	"fmt"
	"os"

	"chata-intake/internal/submission"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit <chata-id>",
	Short: "Submit a draft to the results spreadsheet",
	Long: `Submit runs the same workflow as the HTTP submit endpoint: the draft is
formatted, posted to Sheety with retry, locked as submitted, archived and
announced. Chart images are optional PNG files.

Examples:
  chata-ctl submit CHATA-1A2B3C4D
  chata-ctl submit CHATA-1A2B3C4D --sensory-chart sensory.png`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		charts, err := readCharts(cmd)
		if err != nil {
			return err
		}

		cfg := state.cfg
		if cfg.Sheety.Project == "" {
			return fmt.Errorf("SHEETY_PROJECT is not set")
		}
		sheety := submission.NewSheetyClient(submission.SheetyConfig{
			BaseURL:   cfg.Sheety.BaseURL,
			Project:   cfg.Sheety.Project,
			Sheet:     cfg.Sheety.Sheet,
			Token:     cfg.Sheety.Token,
			Timeout:   cfg.Sheety.Timeout,
			Retry:     cfg.Sheety.Retry,
			RateLimit: cfg.Sheety.RateLimit,
			Burst:     cfg.Sheety.Burst,
		}, state.log)
		formatter := submission.NewFormatter(state.catalog, cfg.Sheety.MaxFieldLength)
		submitter := submission.NewSubmitter(state.forms, formatter, sheety, state.backends.Submissions, state.backends.Events, state.log)

		res, err := submitter.Submit(cmd.Context(), args[0], charts)
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Fprintf(cmd.OutOrStdout(), "%s Submitted %s\n", green("✓"), res.ChataID)
		fmt.Fprintf(cmd.OutOrStdout(), "  %s %d\n", gray("row:"), res.RowID)
		fmt.Fprintf(cmd.OutOrStdout(), "  %s %d\n", gray("attempts:"), res.Attempts)
		fmt.Fprintf(cmd.OutOrStdout(), "  %s %d%%\n", gray("progress:"), res.Progress)
		if res.SubmissionID != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", gray("archive:"), res.SubmissionID)
		}
		return nil
	},
}

func readCharts(cmd *cobra.Command) (submission.Charts, error) {
	var charts submission.Charts
	for flag, dst := range map[string]*[]byte{
		"sensory-chart":  &charts.Sensory,
		"social-chart":   &charts.Social,
		"behavior-chart": &charts.Behavior,
	} {
		path, _ := cmd.Flags().GetString(flag)
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return charts, fmt.Errorf("failed to read --%s: %w", flag, err)
		}
		*dst = data
	}
	return charts, nil
}

func init() {
	submitCmd.Flags().String("sensory-chart", "", "PNG chart for the sensory profile")
	submitCmd.Flags().String("social-chart", "", "PNG chart for social communication")
	submitCmd.Flags().String("behavior-chart", "", "PNG chart for behavior and interests")
	rootCmd.AddCommand(submitCmd)
}
