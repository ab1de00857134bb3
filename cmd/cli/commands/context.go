package commands

import (
	"context"

	"go.uber.org/zap"

	"github.com/jakechorley/incident-desk/internal/config"
	"github.com/jakechorley/incident-desk/pkg/core/clock"
	"github.com/jakechorley/incident-desk/pkg/core/eligibility"
	"github.com/jakechorley/incident-desk/pkg/core/schedule"
	"github.com/jakechorley/incident-desk/pkg/db"
	"github.com/jakechorley/incident-desk/pkg/session"
)

// Store is a database backend that can also migrate its own schema.
// Both postgres.DB and sqlite.DB satisfy it.
type Store interface {
	db.Database
	RunMigrations(ctx context.Context, logger *zap.Logger) (int, error)
}

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Cfg      *config.Config
	Database Store
	Sessions session.Store
	Catalog  *schedule.Catalog
	Checker  *eligibility.Checker
	Clock    clock.Clock
	Logger   *zap.Logger
	Ctx      context.Context
}
