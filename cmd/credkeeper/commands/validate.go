package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/systmms/credkeeper/internal/config"
	"github.com/systmms/credkeeper/internal/strength"
)

func NewValidateCommand(cfg *config.Config) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "validate TYPE",
		Short: "Score a candidate credential against a type's policy",
		Long: `Read a candidate value from stdin and score it against the named
credential type's strength rules. The value is never passed as a
command-line argument so it stays out of shell history and process
listings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}

			pol, err := rt.policies.Policy(args[0])
			if err != nil {
				return err
			}

			if !cfg.NonInteractive {
				fmt.Fprintf(os.Stderr, "Enter candidate value for %s: ", pol.TypeID)
			}
			reader := bufio.NewReader(cmd.InOrStdin())
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read candidate from stdin: %w", err)
			}
			candidate := strings.TrimRight(line, "\r\n")

			result := strength.Score(candidate, pol)

			if jsonOutput {
				out, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode result: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "score: %d/100\n", result.Score)
				for _, issue := range result.Issues {
					fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", issue)
				}
			}

			if !result.Valid {
				return fmt.Errorf("candidate does not meet the policy for %s", pol.TypeID)
			}
			if result.Score < pol.RequiredScore() {
				return fmt.Errorf("score %d is below the required %d for %s", result.Score, pol.RequiredScore(), pol.TypeID)
			}
			cfg.Logger.Info("Candidate meets the policy for %s", pol.TypeID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the result as JSON")

	return cmd
}
