package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/incident-desk/pkg/core/clock"
	"github.com/jakechorley/incident-desk/pkg/core/incident"
	"github.com/jakechorley/incident-desk/pkg/core/model"
	"github.com/jakechorley/incident-desk/pkg/db"
)

// ReportStore is the persistence the report use cases need
type ReportStore interface {
	db.ReportStore
	InsertAudit(ctx context.Context, entry model.AuditEntry) error
}

// NewReport carries the content of a report being opened
type NewReport struct {
	IncidentType    string
	Location        string
	Description     string
	OccurredAt      *time.Time
	PeopleAffected  int
	Observations    string
	PropertyManager string
}

// ReportPatch is a partial update. Nil fields are left alone. Unrecognised holds
// any other field names the caller sent, so they are rejected rather than ignored.
type ReportPatch struct {
	State           *model.State
	IncidentType    *string
	Location        *string
	Description     *string
	OccurredAt      *time.Time
	PeopleAffected  *int
	Observations    *string
	PropertyManager *string

	// Reason accompanies a change back to draft
	Reason string

	Unrecognised []string
}

// Fields lists the names of the fields the patch sets
func (p ReportPatch) Fields() []string {
	var fields []string
	if p.State != nil {
		fields = append(fields, model.FieldState)
	}
	if p.IncidentType != nil {
		fields = append(fields, model.FieldIncidentType)
	}
	if p.Location != nil {
		fields = append(fields, model.FieldLocation)
	}
	if p.Description != nil {
		fields = append(fields, model.FieldDescription)
	}
	if p.OccurredAt != nil {
		fields = append(fields, model.FieldOccurredAt)
	}
	if p.PeopleAffected != nil {
		fields = append(fields, model.FieldPeopleAffected)
	}
	if p.Observations != nil {
		fields = append(fields, model.FieldObservations)
	}
	if p.PropertyManager != nil {
		fields = append(fields, model.FieldPropertyManager)
	}
	return append(fields, p.Unrecognised...)
}

// applyContent copies the non-state fields of the patch onto r
func (p ReportPatch) applyContent(r *model.IncidentReport) {
	if p.IncidentType != nil {
		r.IncidentType = *p.IncidentType
	}
	if p.Location != nil {
		r.Location = *p.Location
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.OccurredAt != nil {
		at := *p.OccurredAt
		r.OccurredAt = &at
	}
	if p.PeopleAffected != nil {
		r.PeopleAffected = *p.PeopleAffected
	}
	if p.Observations != nil {
		r.Observations = *p.Observations
	}
	if p.PropertyManager != nil {
		r.PropertyManager = *p.PropertyManager
	}
}

// validateContent checks the content fields that are set. Nil means not being changed.
func validateContent(incidentType *string, peopleAffected *int) error {
	if incidentType != nil && strings.TrimSpace(*incidentType) == "" {
		return fmt.Errorf("%w: incident type is required", ErrInvalidInput)
	}
	if peopleAffected != nil && *peopleAffected < 0 {
		return fmt.Errorf("%w: people affected must not be negative", ErrInvalidInput)
	}
	return nil
}

// CreateReport opens a new report in draft owned by actor
func CreateReport(ctx context.Context, store ReportStore, clk clock.Clock, logger *zap.Logger, actor model.Principal, input NewReport) (*model.IncidentReport, error) {
	if err := incident.CanCreate(actor); err != nil {
		return nil, err
	}
	if err := validateContent(&input.IncidentType, &input.PeopleAffected); err != nil {
		return nil, err
	}

	now := clk.Now()
	report := &model.IncidentReport{
		State:           model.StateDraft,
		CreatedBy:       actor.Username,
		CreatedAt:       now,
		UpdatedAt:       now,
		IncidentType:    input.IncidentType,
		Location:        input.Location,
		Description:     input.Description,
		OccurredAt:      input.OccurredAt,
		PeopleAffected:  input.PeopleAffected,
		Observations:    input.Observations,
		PropertyManager: input.PropertyManager,
	}

	if err := store.InsertReport(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to insert report: %w", err)
	}

	appendAudit(ctx, store, logger, model.AuditEntry{
		At:       now,
		Actor:    actor.Username,
		Action:   ActionCreateReport,
		ReportID: report.ID,
	})

	logger.Debug("Report created", zap.Int64("report_id", report.ID), zap.String("created_by", actor.Username))
	return report, nil
}

// GetReport returns a report actor is allowed to see
func GetReport(ctx context.Context, store db.ReportStore, actor model.Principal, id int64) (*model.IncidentReport, error) {
	report, err := store.GetReport(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	if !incident.CanView(report, actor) {
		return nil, fmt.Errorf("%w: report %d is not visible to %s", ErrPermissionDenied, id, actor.Username)
	}
	return &report, nil
}

// ListReports returns the reports visible to actor, optionally narrowed to one state
func ListReports(ctx context.Context, store db.ReportStore, logger *zap.Logger, actor model.Principal, state model.State) ([]model.IncidentReport, error) {
	if state != "" && !state.IsValid() {
		return nil, fmt.Errorf("%w: unknown state %q", ErrInvalidInput, state)
	}

	filter := db.ReportFilter{State: state}
	switch {
	case incident.SeesAll(actor):
	case actor.Role == model.RoleBrigadista:
		filter.CreatedBy = actor.Username
	default:
		return nil, fmt.Errorf("%w: role %q cannot list reports", ErrPermissionDenied, actor.Role)
	}

	reports, err := store.ListReports(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	logger.Debug("Listed reports",
		zap.String("actor", actor.Username),
		zap.String("state", string(state)),
		zap.Int("count", len(reports)))
	return reports, nil
}

// UpdateReport applies a partial update. A patch that names state is routed through
// the lifecycle table; other fields are checked against the per-role edit rules.
// The write only lands if the report is still in the state it was read in.
func UpdateReport(ctx context.Context, store ReportStore, machine *incident.Machine, clk clock.Clock, logger *zap.Logger, actor model.Principal, id int64, patch ReportPatch) (*model.IncidentReport, error) {
	current, err := store.GetReport(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	fields := patch.Fields()
	if err := incident.AuthorizeUpdate(current, actor, fields); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return &current, nil
	}
	if err := validateContent(patch.IncidentType, patch.PeopleAffected); err != nil {
		return nil, err
	}

	now := clk.Now()
	next := current
	patch.applyContent(&next)
	next.UpdatedAt = now

	action := ActionUpdateReport
	detail := strings.Join(fields, ",")
	if patch.State != nil && *patch.State != current.State {
		event, err := incident.EventFor(current.State, *patch.State)
		if err != nil {
			return nil, err
		}
		result, err := machine.Apply(next, event, actor, now, patch.Reason)
		if err != nil {
			return nil, err
		}
		next = result.Report
		action = string(event)
	}

	if err := store.UpdateReport(ctx, next, current.State); err != nil {
		return nil, fmt.Errorf("failed to update report: %w", err)
	}

	appendAudit(ctx, store, logger, model.AuditEntry{
		At:       now,
		Actor:    actor.Username,
		Action:   action,
		ReportID: id,
		Detail:   detail,
	})

	logger.Debug("Report updated",
		zap.Int64("report_id", id),
		zap.String("actor", actor.Username),
		zap.Strings("fields", fields),
		zap.String("state", string(next.State)))
	return &next, nil
}

// TransitionReport runs a lifecycle event against a report. The guard check and the
// conditional write together make concurrent decisions on one report resolve to a
// single winner; the loser gets db.ErrStaleState.
func TransitionReport(ctx context.Context, store ReportStore, machine *incident.Machine, clk clock.Clock, logger *zap.Logger, actor model.Principal, id int64, event model.Event, reason string) (*model.IncidentReport, error) {
	current, err := store.GetReport(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	now := clk.Now()
	result, err := machine.Apply(current, event, actor, now, reason)
	if err != nil {
		return nil, err
	}

	if err := store.UpdateReport(ctx, result.Report, result.From); err != nil {
		if errors.Is(err, db.ErrStaleState) {
			logger.Info("Report changed before transition could be written",
				zap.Int64("report_id", id),
				zap.String("event", string(event)),
				zap.String("expected_state", string(result.From)))
		}
		return nil, fmt.Errorf("failed to %s report: %w", event, err)
	}

	var detail string
	if event == model.EventReject {
		detail = result.Report.RejectReason
	}
	appendAudit(ctx, store, logger, model.AuditEntry{
		At:       now,
		Actor:    actor.Username,
		Action:   string(event),
		ReportID: id,
		Detail:   detail,
	})

	logger.Debug("Report transitioned",
		zap.Int64("report_id", id),
		zap.String("event", string(event)),
		zap.String("from", string(result.From)),
		zap.String("to", string(result.Report.State)))
	return &result.Report, nil
}
