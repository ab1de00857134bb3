package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jakechorley/incident-desk/pkg/core/model"
	"github.com/jakechorley/incident-desk/pkg/db"
)

const reportColumns = `id, state, created_by, created_at, updated_at,
	incident_type, location, description, occurred_at, people_affected,
	observations, property_manager,
	submitted_at, submitted_by, approved_at, approved_by,
	rejected_at, rejected_by, reject_reason, closed_at, closed_by`

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (model.IncidentReport, error) {
	var r model.IncidentReport
	var state string
	var occurred, submitted, approved, rejected, closed sql.NullTime
	err := row.Scan(
		&r.ID, &state, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt,
		&r.IncidentType, &r.Location, &r.Description, &occurred, &r.PeopleAffected,
		&r.Observations, &r.PropertyManager,
		&submitted, &r.SubmittedBy, &approved, &r.ApprovedBy,
		&rejected, &r.RejectedBy, &r.RejectReason, &closed, &r.ClosedBy,
	)
	if err != nil {
		return model.IncidentReport{}, err
	}
	r.State = model.State(state)
	r.OccurredAt = nullTime(occurred)
	r.SubmittedAt = nullTime(submitted)
	r.ApprovedAt = nullTime(approved)
	r.RejectedAt = nullTime(rejected)
	r.ClosedAt = nullTime(closed)
	return r, nil
}

// InsertReport inserts a new report with ID one above the current maximum
func (d *DB) InsertReport(ctx context.Context, report *model.IncidentReport) error {
	res, err := d.conn.ExecContext(ctx, `
		INSERT INTO reports (id, state, created_by, created_at, updated_at,
			incident_type, location, description, occurred_at, people_affected,
			observations, property_manager)
		VALUES ((SELECT COALESCE(MAX(id), 0) + 1 FROM reports), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, string(report.State), report.CreatedBy, report.CreatedAt.UTC(), report.UpdatedAt.UTC(),
		report.IncidentType, report.Location, report.Description, utc(report.OccurredAt), report.PeopleAffected,
		report.Observations, report.PropertyManager,
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read report id: %w", err)
	}
	report.ID = id
	return nil
}

// GetReport retrieves a report by ID
func (d *DB) GetReport(ctx context.Context, id int64) (model.IncidentReport, error) {
	row := d.conn.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.IncidentReport{}, fmt.Errorf("report %d: %w", id, db.ErrNotFound)
	}
	if err != nil {
		return model.IncidentReport{}, fmt.Errorf("failed to get report %d: %w", id, err)
	}
	return report, nil
}

// ListReports retrieves reports matching filter, newest first
func (d *DB) ListReports(ctx context.Context, filter db.ReportFilter) ([]model.IncidentReport, error) {
	var conditions []string
	var args []any
	if filter.CreatedBy != "" {
		conditions = append(conditions, "created_by = ?")
		args = append(args, filter.CreatedBy)
	}
	if filter.State != "" {
		conditions = append(conditions, "state = ?")
		args = append(args, string(filter.State))
	}

	query := `SELECT ` + reportColumns + ` FROM reports`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY id DESC`

	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []model.IncidentReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, report)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}

	return reports, nil
}

// UpdateReport writes the mutable columns only while the stored state equals expected
func (d *DB) UpdateReport(ctx context.Context, report model.IncidentReport, expected model.State) error {
	res, err := d.conn.ExecContext(ctx, `
		UPDATE reports SET
			state = ?, updated_at = ?,
			incident_type = ?, location = ?, description = ?, occurred_at = ?, people_affected = ?,
			observations = ?, property_manager = ?,
			submitted_at = ?, submitted_by = ?, approved_at = ?, approved_by = ?,
			rejected_at = ?, rejected_by = ?, reject_reason = ?, closed_at = ?, closed_by = ?
		WHERE id = ? AND state = ?
	`, string(report.State), report.UpdatedAt.UTC(),
		report.IncidentType, report.Location, report.Description, utc(report.OccurredAt), report.PeopleAffected,
		report.Observations, report.PropertyManager,
		utc(report.SubmittedAt), report.SubmittedBy, utc(report.ApprovedAt), report.ApprovedBy,
		utc(report.RejectedAt), report.RejectedBy, report.RejectReason, utc(report.ClosedAt), report.ClosedBy,
		report.ID, string(expected),
	)
	if err != nil {
		return fmt.Errorf("failed to update report %d: %w", report.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := d.conn.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM reports WHERE id = ?)`, report.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check report %d: %w", report.ID, err)
	}
	if !exists {
		return fmt.Errorf("report %d: %w", report.ID, db.ErrNotFound)
	}
	return fmt.Errorf("report %d is no longer %s: %w", report.ID, expected, db.ErrStaleState)
}

// utc converts an optional timestamp for storage, keeping nil as NULL
func utc(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
