package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/systmms/credkeeper/internal/config"
	"github.com/systmms/credkeeper/internal/monitor"
	"github.com/systmms/credkeeper/internal/report"
)

func NewCheckCommand(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput bool
		saveReport bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report credentials approaching or past expiration",
		Long: `Scan every registered credential type, classify it by days until
expiration, and print a report grouped by urgency. The scan is read-only
and always exits zero; use "rotate --auto" to act on the findings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}

			warnings, err := rt.monitor.Scan()
			if err != nil {
				return err
			}

			if jsonOutput {
				out, err := json.MarshalIndent(warnings, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode warnings: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			} else {
				fmt.Fprint(cmd.OutOrStdout(), report.Render(warnings, time.Now()))
			}

			if saveReport {
				path, err := report.Save(cfg.Definition.ReportDir(), report.Render(warnings, time.Now()), time.Now())
				if err != nil {
					return err
				}
				cfg.Logger.Info("Report saved to %s", path)
			}

			if n := actionable(warnings); n > 0 {
				cfg.Logger.Warn("%d credential(s) need rotation", n)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output warnings as JSON")
	cmd.Flags().BoolVar(&saveReport, "report", false, "Save the report under the data directory")

	return cmd
}

func actionable(warnings []monitor.Warning) int {
	count := 0
	for _, w := range warnings {
		if w.Tier.Actionable() {
			count++
		}
	}
	return count
}
