package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/incident-desk/pkg/core/clock"
	"github.com/jakechorley/incident-desk/pkg/core/model"
	"github.com/jakechorley/incident-desk/pkg/db"
)

const (
	backupPrefix     = "incident_desk_backup_"
	backupTimeFormat = "20060102T150405Z"
)

// BackupStore is the persistence a snapshot reads from
type BackupStore interface {
	ListUsers(ctx context.Context) ([]model.User, error)
	ListReports(ctx context.Context, filter db.ReportFilter) ([]model.IncidentReport, error)
	ListAudit(ctx context.Context, filter db.AuditFilter) ([]model.AuditEntry, error)
}

// BackupUser is an account as written to a snapshot. Password hashes are left out.
type BackupUser struct {
	Username  string     `json:"username"`
	Role      model.Role `json:"role"`
	ShiftID   string     `json:"shift_id"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
}

// Snapshot is the content of one backup file
type Snapshot struct {
	TakenAt time.Time              `json:"taken_at"`
	Users   []BackupUser           `json:"users"`
	Reports []model.IncidentReport `json:"reports"`
	Audit   []model.AuditEntry     `json:"audit"`
}

// Backup writes a JSON snapshot of the database into dir and removes the oldest
// snapshots beyond retention. A retention of zero keeps every snapshot.
// Returns the path written.
func Backup(ctx context.Context, store BackupStore, clk clock.Clock, logger *zap.Logger, dir string, retention int) (string, error) {
	now := clk.Now().UTC()
	logger.Debug("Taking backup", zap.String("dir", dir), zap.Time("at", now))

	users, err := store.ListUsers(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list users: %w", err)
	}
	reports, err := store.ListReports(ctx, db.ReportFilter{})
	if err != nil {
		return "", fmt.Errorf("failed to list reports: %w", err)
	}
	audit, err := store.ListAudit(ctx, db.AuditFilter{})
	if err != nil {
		return "", fmt.Errorf("failed to list audit log: %w", err)
	}

	snapshot := Snapshot{TakenAt: now, Reports: reports, Audit: audit}
	for _, u := range users {
		snapshot.Users = append(snapshot.Users, BackupUser{
			Username:  u.Username,
			Role:      u.Role,
			ShiftID:   u.ShiftID,
			Active:    u.Active,
			CreatedAt: u.CreatedAt,
		})
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	path := filepath.Join(dir, backupPrefix+now.Format(backupTimeFormat)+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to finalise snapshot: %w", err)
	}

	logger.Info("Backup written",
		zap.String("path", path),
		zap.Int("users", len(snapshot.Users)),
		zap.Int("reports", len(reports)),
		zap.Int("audit_entries", len(audit)))

	if retention > 0 {
		if err := pruneBackups(dir, retention, logger); err != nil {
			return path, err
		}
	}

	return path, nil
}

// pruneBackups removes the oldest snapshot files in dir so that at most keep remain
func pruneBackups(dir string, keep int, logger *zap.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read backup directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, name)
	}
	if len(names) <= keep {
		return nil
	}

	// Timestamps in the names sort chronologically
	sort.Strings(names)
	for _, name := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", name, err)
		}
		logger.Debug("Removed old backup", zap.String("file", name))
	}
	return nil
}
