package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/incident-desk/internal/httpapi"
	"github.com/jakechorley/incident-desk/pkg/jobs"
)

// ServeCmd creates the serve command
func ServeCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and the backup job when enabled)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")
			if migrate {
				applied, err := app.Database.RunMigrations(app.Ctx, app.Logger)
				if err != nil {
					return fmt.Errorf("failed to run migrations: %w", err)
				}
				app.Logger.Info("Migrations applied", zap.Int("count", applied))
			}

			if app.Cfg.Backup.Enabled {
				loc, err := app.Cfg.Location()
				if err != nil {
					return fmt.Errorf("failed to load timezone: %w", err)
				}
				err = jobs.StartBackupJob(app.Ctx, jobs.BackupSchedule{
					RRule:     app.Cfg.Backup.RRule,
					Location:  loc,
					Dir:       app.Cfg.Backup.Dir,
					Retention: app.Cfg.Backup.Retention,
					Timeout:   app.Cfg.BackupTimeout(),
				}, app.Database, app.Clock, app.Logger)
				if err != nil {
					return fmt.Errorf("failed to start backup job: %w", err)
				}
			}

			server := httpapi.NewServer(httpapi.Deps{
				Cfg:      app.Cfg,
				Store:    app.Database,
				Sessions: app.Sessions,
				Catalog:  app.Catalog,
				Checker:  app.Checker,
				Clock:    app.Clock,
				Logger:   app.Logger,
			})
			httpServer := &http.Server{
				Addr:              app.Cfg.Server.Addr,
				Handler:           server.Router(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				app.Logger.Info("HTTP API listening", zap.String("addr", app.Cfg.Server.Addr))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server error: %w", err)
				}
				return nil
			case <-app.Ctx.Done():
			}

			app.Logger.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shut down: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().Bool("migrate", true, "Apply pending migrations before serving")
	return cmd
}
