package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakechorley/incident-desk/pkg/core/services"
)

// BackupCmd creates the backup command
func BackupCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a JSON snapshot of users, reports and the audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = app.Cfg.Backup.Dir
			}
			if dir == "" {
				return fmt.Errorf("no backup directory: set backup.dir or pass --dir")
			}

			path, err := services.Backup(app.Ctx, app.Database, app.Clock, app.Logger, dir, app.Cfg.Backup.Retention)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Backup written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().String("dir", "", "Directory to write to (defaults to backup.dir)")
	return cmd
}
