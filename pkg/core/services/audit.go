package services

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/incident-desk/pkg/core/model"
	"github.com/jakechorley/incident-desk/pkg/db"
)

// Audit actions besides the lifecycle events, which are recorded under their own names
const (
	ActionLogin        = "login"
	ActionLoginRefused = "login_refused"
	ActionCreateReport = "create_report"
	ActionUpdateReport = "update_report"
	ActionCreateUser   = "create_user"
	ActionUpdateUser   = "update_user"
)

type auditWriter interface {
	InsertAudit(ctx context.Context, entry model.AuditEntry) error
}

// appendAudit records entry. The action it describes has already been committed,
// so a failure here is logged rather than returned.
func appendAudit(ctx context.Context, store auditWriter, logger *zap.Logger, entry model.AuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if err := store.InsertAudit(ctx, entry); err != nil {
		logger.Error("Failed to append audit entry",
			zap.String("action", entry.Action),
			zap.String("actor", entry.Actor),
			zap.Int64("report_id", entry.ReportID),
			zap.Error(err))
	}
}

// ListAudit returns audit entries. Only admins and autoridad may read the log.
func ListAudit(ctx context.Context, store db.AuditStore, logger *zap.Logger, actor model.Principal, filter db.AuditFilter) ([]model.AuditEntry, error) {
	if !slices.Contains([]model.Role{model.RoleAdmin, model.RoleAutoridad}, actor.Role) {
		return nil, fmt.Errorf("%w: role %q cannot read the audit log", ErrPermissionDenied, actor.Role)
	}

	entries, err := store.ListAudit(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit log: %w", err)
	}

	logger.Debug("Listed audit log", zap.Int("count", len(entries)), zap.Int64("report_id", filter.ReportID))
	return entries, nil
}
