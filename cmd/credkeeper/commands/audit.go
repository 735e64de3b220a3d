package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/systmms/credkeeper/internal/config"
)

func NewAuditCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail",
	}

	cmd.AddCommand(newAuditListCommand(cfg))
	return cmd
}

func newAuditListCommand(cfg *config.Config) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded operations, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}

			records, err := rt.audit.List(limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				out, err := json.MarshalIndent(records, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode records: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}

			if len(records) == 0 {
				cfg.Logger.Info("No audit records yet")
				return nil
			}
			for _, rec := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s %-7s %s\n",
					rec.TimestampStart.Format("2006-01-02 15:04:05"), rec.ActionType, rec.Status, rec.OperationID)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of records to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output records as JSON")

	return cmd
}
