package commands

import (
	"github.com/spf13/cobra"
	"github.com/systmms/credkeeper/internal/config"
)

func NewInitCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new credkeeper configuration",
		Long:  "Create a credkeeper.yaml file with the default credential policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(cfg.Path); err != nil {
				return err
			}

			cfg.Logger.Info("Created %s with the default credential policies", cfg.Path)
			cfg.Logger.Info("Next steps:")
			cfg.Logger.Info("  1. Edit %s to match your credential types and storage backend", cfg.Path)
			cfg.Logger.Info("  2. Run 'credkeeper check' to see expiration status")
			cfg.Logger.Info("  3. Run 'credkeeper rotate <TYPE>' to rotate a credential")

			return nil
		},
	}

	return cmd
}
