package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/jakechorley/incident-desk/pkg/core/model"
	"github.com/jakechorley/incident-desk/pkg/db"
)

// InsertAudit appends an entry to the audit log
func (d *DB) InsertAudit(ctx context.Context, entry model.AuditEntry) error {
	var reportID any
	if entry.ReportID != 0 {
		reportID = entry.ReportID
	}
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO audit_log (id, at, actor, action, report_id, detail)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.At.UTC(), entry.Actor, entry.Action, reportID, entry.Detail)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// ListAudit retrieves audit entries matching filter, oldest first
func (d *DB) ListAudit(ctx context.Context, filter db.AuditFilter) ([]model.AuditEntry, error) {
	var conditions []string
	var args []any
	if filter.ReportID != 0 {
		conditions = append(conditions, "report_id = ?")
		args = append(args, filter.ReportID)
	}
	if filter.Actor != "" {
		conditions = append(conditions, "actor = ?")
		args = append(args, filter.Actor)
	}

	query := `SELECT id, at, actor, action, COALESCE(report_id, 0), detail FROM audit_log`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY at, rowid`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var entry model.AuditEntry
		if err := rows.Scan(&entry.ID, &entry.At, &entry.Actor, &entry.Action, &entry.ReportID, &entry.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log: %w", err)
	}

	return entries, nil
}
