package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/incident-desk/cmd/cli/commands"
	"github.com/jakechorley/incident-desk/internal/config"
	"github.com/jakechorley/incident-desk/pkg/core/clock"
	"github.com/jakechorley/incident-desk/pkg/core/eligibility"
	"github.com/jakechorley/incident-desk/pkg/core/schedule"
	"github.com/jakechorley/incident-desk/pkg/postgres"
	"github.com/jakechorley/incident-desk/pkg/session"
	"github.com/jakechorley/incident-desk/pkg/sqlite"
	"github.com/jakechorley/incident-desk/pkg/utils/logging"
)

var (
	env    string
	logDir string
	app    = &commands.AppContext{}

	redisClient *redis.Client
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	app.Ctx = ctx

	rootCmd := &cobra.Command{
		Use:   "cli",
		Short: "Incident desk - shift-gated incident reporting",
		Long:  `Runs the incident report API and the maintenance tasks around it: migrations, accounts, backups and shift checks.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeApp()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (required: dev, prod, etc.)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "logs", "Directory for JSON log files (empty disables them)")
	rootCmd.MarkPersistentFlagRequired("env")

	rootCmd.AddCommand(commands.ServeCmd(app))
	rootCmd.AddCommand(commands.MigrateCmd(app))
	rootCmd.AddCommand(commands.CheckShiftCmd(app))
	rootCmd.AddCommand(commands.ListShiftsCmd(app))
	rootCmd.AddCommand(commands.CreateUserCmd(app))
	rootCmd.AddCommand(commands.BackupCmd(app))

	if err := rootCmd.Execute(); err != nil {
		closeApp()
		os.Exit(1)
	}
}

// initApp sets up logger, config, the shift checker, the database and sessions
func initApp() error {
	var err error

	app.Logger, err = logging.InitLogger(env, logDir)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.Logger.Info("Starting application", zap.String("environment", env))

	app.Logger.Info("Loading configuration")
	app.Cfg, err = config.LoadWithEnv(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.Logger.Debug("Configuration loaded successfully")

	loc, err := app.Cfg.Location()
	if err != nil {
		return fmt.Errorf("failed to load timezone: %w", err)
	}

	app.Clock = clock.System{}
	app.Catalog = schedule.DefaultCatalog()
	app.Checker, err = eligibility.NewChecker(app.Catalog, loc, app.Cfg.Grace(), app.Clock)
	if err != nil {
		return fmt.Errorf("failed to create shift checker: %w", err)
	}

	app.Logger.Info("Connecting to database", zap.String("driver", app.Cfg.Database.Driver))
	app.Database, err = openDatabase(app.Ctx, app.Cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.Logger.Info("Database initialized successfully")

	if app.Cfg.Redis.Addr == "" {
		app.Logger.Info("No Redis address configured, keeping sessions in process")
		app.Sessions = session.NewMemoryStore(app.Cfg.SessionTTL())
		return nil
	}

	redisClient = redis.NewClient(&redis.Options{
		Addr:     app.Cfg.Redis.Addr,
		Password: app.Cfg.Redis.Password,
		DB:       app.Cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(app.Ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	app.Sessions = session.NewRedisStore(redisClient, app.Cfg.SessionTTL())
	app.Logger.Info("Session store connected", zap.String("redis_addr", app.Cfg.Redis.Addr))

	return nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (commands.Store, error) {
	switch cfg.Driver {
	case "postgres":
		database, err := postgres.NewDB(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return database, nil
	case "sqlite":
		database, err := sqlite.NewDB(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return database, nil
	}
	return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
}

func closeApp() {
	if redisClient != nil {
		if err := redisClient.Close(); err != nil && app.Logger != nil {
			app.Logger.Warn("Failed to close redis client", zap.Error(err))
		}
		redisClient = nil
	}
	if app.Database != nil {
		app.Database.Close()
		app.Database = nil
	}
	if app.Logger != nil {
		app.Logger.Sync()
	}
}
