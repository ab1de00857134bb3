package db

import (
	"context"
	"errors"

	"github.com/jakechorley/incident-desk/pkg/core/model"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")

	// ErrStaleState is returned by conditional writes when the record's state
	// no longer matches the state the caller read
	ErrStaleState = errors.New("stale state")

	// ErrConflict is returned when an insert collides with an existing key
	ErrConflict = errors.New("already exists")
)

// ReportFilter narrows report listings. Zero values match everything.
type ReportFilter struct {
	CreatedBy string
	State     model.State
}

// AuditFilter narrows audit log listings
type AuditFilter struct {
	ReportID int64
	Actor    string
	Limit    int
}

// ReportStore defines the interface for incident report operations
type ReportStore interface {
	// InsertReport stores a new report and assigns its ID (one above the current maximum)
	InsertReport(ctx context.Context, report *model.IncidentReport) error
	GetReport(ctx context.Context, id int64) (model.IncidentReport, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]model.IncidentReport, error)

	// UpdateReport writes every mutable column of report in a single statement that
	// only matches while the stored state equals expected. ErrStaleState otherwise.
	UpdateReport(ctx context.Context, report model.IncidentReport, expected model.State) error
}

// UserStore defines the interface for account operations
type UserStore interface {
	InsertUser(ctx context.Context, user model.User) error
	GetUser(ctx context.Context, username string) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateUser(ctx context.Context, user model.User) error
}

// AuditStore defines the interface for the append-only audit log
type AuditStore interface {
	InsertAudit(ctx context.Context, entry model.AuditEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]model.AuditEntry, error)
}

// Database defines the interface for all database operations.
// Both postgres.DB and sqlite.DB implement this interface.
type Database interface {
	ReportStore
	UserStore
	AuditStore
	Close() error
}
