package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/incident-desk/pkg/core/model"
	"github.com/jakechorley/incident-desk/pkg/db"
)

const reportColumns = `id, state, created_by, created_at, updated_at,
	incident_type, location, description, occurred_at, people_affected,
	observations, property_manager,
	submitted_at, submitted_by, approved_at, approved_by,
	rejected_at, rejected_by, reject_reason, closed_at, closed_by`

func scanReport(row pgx.Row) (model.IncidentReport, error) {
	var r model.IncidentReport
	var state string
	err := row.Scan(
		&r.ID, &state, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt,
		&r.IncidentType, &r.Location, &r.Description, &r.OccurredAt, &r.PeopleAffected,
		&r.Observations, &r.PropertyManager,
		&r.SubmittedAt, &r.SubmittedBy, &r.ApprovedAt, &r.ApprovedBy,
		&r.RejectedAt, &r.RejectedBy, &r.RejectReason, &r.ClosedAt, &r.ClosedBy,
	)
	r.State = model.State(state)
	return r, err
}

// InsertReport inserts a new report; the identity column assigns the next ID
func (d *DB) InsertReport(ctx context.Context, report *model.IncidentReport) error {
	err := d.pool.QueryRow(ctx, `
		INSERT INTO reports (state, created_by, created_at, updated_at,
			incident_type, location, description, occurred_at, people_affected,
			observations, property_manager)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, string(report.State), report.CreatedBy, report.CreatedAt.UTC(), report.UpdatedAt.UTC(),
		report.IncidentType, report.Location, report.Description, report.OccurredAt, report.PeopleAffected,
		report.Observations, report.PropertyManager,
	).Scan(&report.ID)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// GetReport retrieves a report by ID
func (d *DB) GetReport(ctx context.Context, id int64) (model.IncidentReport, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id)
	report, err := scanReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
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
		args = append(args, filter.CreatedBy)
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", len(args)))
	}
	if filter.State != "" {
		args = append(args, string(filter.State))
		conditions = append(conditions, fmt.Sprintf("state = $%d", len(args)))
	}

	query := `SELECT ` + reportColumns + ` FROM reports`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY id DESC`

	rows, err := d.pool.Query(ctx, query, args...)
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
	tag, err := d.pool.Exec(ctx, `
		UPDATE reports SET
			state = $3, updated_at = $4,
			incident_type = $5, location = $6, description = $7, occurred_at = $8, people_affected = $9,
			observations = $10, property_manager = $11,
			submitted_at = $12, submitted_by = $13, approved_at = $14, approved_by = $15,
			rejected_at = $16, rejected_by = $17, reject_reason = $18, closed_at = $19, closed_by = $20
		WHERE id = $1 AND state = $2
	`, report.ID, string(expected),
		string(report.State), report.UpdatedAt.UTC(),
		report.IncidentType, report.Location, report.Description, report.OccurredAt, report.PeopleAffected,
		report.Observations, report.PropertyManager,
		report.SubmittedAt, report.SubmittedBy, report.ApprovedAt, report.ApprovedBy,
		report.RejectedAt, report.RejectedBy, report.RejectReason, report.ClosedAt, report.ClosedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to update report %d: %w", report.ID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := d.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reports WHERE id = $1)`, report.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check report %d: %w", report.ID, err)
	}
	if !exists {
		return fmt.Errorf("report %d: %w", report.ID, db.ErrNotFound)
	}
	return fmt.Errorf("report %d is no longer %s: %w", report.ID, expected, db.ErrStaleState)
}
