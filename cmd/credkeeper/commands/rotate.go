package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/systmms/credkeeper/internal/config"
	"github.com/systmms/credkeeper/internal/rotation"
)

func NewRotateCommand(cfg *config.Config) *cobra.Command {
	var (
		auto       bool
		wait       bool
		skipSecond bool
	)

	cmd := &cobra.Command{
		Use:   "rotate [TYPE...]",
		Short: "Rotate credentials",
		Long: `Generate a replacement value for each named credential type, validate
it, and write it to the storage backend. With --auto, rotate every
credential whose expiration tier calls for action instead of naming
types explicitly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if auto && len(args) > 0 {
				return fmt.Errorf("--auto cannot be combined with explicit credential types")
			}
			if !auto && len(args) == 0 {
				return fmt.Errorf("name at least one credential type, or use --auto")
			}

			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}

			typeIDs := args
			if auto {
				warnings, err := rt.monitor.Scan()
				if err != nil {
					return err
				}
				for _, w := range warnings {
					if w.Tier.Actionable() {
						typeIDs = append(typeIDs, w.TypeID)
					}
				}
				if len(typeIDs) == 0 {
					cfg.Logger.Info("No credentials need rotation")
					return nil
				}
			}

			// An unattended sweep cannot answer a confirmation prompt.
			opts := rotation.Options{WaitForLock: wait, SkipSecondFactor: skipSecond || auto}
			attempts, err := rt.engine.RotateDue(cmd.Context(), typeIDs, opts)
			if err != nil {
				return err
			}

			failed := 0
			for _, a := range attempts {
				if a.Outcome != rotation.OutcomeAccepted {
					failed++
					cfg.Logger.Error("%s: %s", a.TypeID, a.Outcome)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d rotation(s) did not complete", failed, len(attempts))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&auto, "auto", false, "Rotate every credential whose expiry tier needs action")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for concurrent rotations instead of failing fast")
	cmd.Flags().BoolVar(&skipSecond, "skip-second-factor", false, "Bypass second-factor confirmation (recorded in the audit trail)")

	return cmd
}
