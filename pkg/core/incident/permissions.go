package incident

import (
	"fmt"
	"slices"

	"github.com/jakechorley/incident-desk/pkg/core/model"
)

// editableFields are the report fields a partial update may name
var editableFields = map[string]bool{
	model.FieldState:           true,
	model.FieldIncidentType:    true,
	model.FieldLocation:        true,
	model.FieldDescription:     true,
	model.FieldOccurredAt:      true,
	model.FieldPeopleAffected:  true,
	model.FieldObservations:    true,
	model.FieldPropertyManager: true,
}

var immutableFields = map[string]bool{
	model.FieldID:        true,
	model.FieldCreatedBy: true,
}

// CanCreate reports whether actor may open new reports
func CanCreate(actor model.Principal) error {
	if actor.Role == model.RoleBrigadista || actor.Role == model.RoleAdmin {
		return nil
	}
	return fmt.Errorf("%w: role %q cannot create reports", ErrPermissionDenied, actor.Role)
}

// CanView reports whether actor may read report. Brigadistas only see their own.
func CanView(report model.IncidentReport, actor model.Principal) bool {
	switch actor.Role {
	case model.RoleBrigadista:
		return report.CreatedBy == actor.Username
	case model.RoleCoordinador, model.RoleAutoridad, model.RoleAdmin:
		return true
	}
	return false
}

// SeesAll reports whether actor's listings are unfiltered
func SeesAll(actor model.Principal) bool {
	return actor.Role == model.RoleCoordinador || actor.Role == model.RoleAutoridad || actor.Role == model.RoleAdmin
}

// AuthorizeUpdate checks that actor may change fields of report in its current state.
// A change to state is additionally subject to the transition table.
func AuthorizeUpdate(report model.IncidentReport, actor model.Principal, fields []string) error {
	for _, field := range fields {
		if immutableFields[field] {
			return fmt.Errorf("%w: field %q cannot be changed", ErrPermissionDenied, field)
		}
		if !editableFields[field] {
			return fmt.Errorf("%w: %q", ErrUnknownField, field)
		}
	}
	if len(fields) == 0 {
		return nil
	}

	if report.State == model.StateCerrado {
		return fmt.Errorf("%w: report %d is closed", ErrPermissionDenied, report.ID)
	}

	switch actor.Role {
	case model.RoleAdmin:
		return nil
	case model.RoleCoordinador:
		for _, field := range fields {
			if field != model.FieldState {
				return fmt.Errorf("%w: coordinators may only change %q, not %q", ErrPermissionDenied, model.FieldState, field)
			}
		}
		return nil
	case model.RoleBrigadista:
		if report.CreatedBy != actor.Username {
			return fmt.Errorf("%w: report %d belongs to another user", ErrPermissionDenied, report.ID)
		}
		if report.State != model.StateDraft {
			return fmt.Errorf("%w: report %d is %s and can no longer be edited", ErrPermissionDenied, report.ID, report.State)
		}
		return nil
	}
	return fmt.Errorf("%w: role %q cannot modify reports", ErrPermissionDenied, actor.Role)
}

// HasStateChange reports whether fields includes the state field
func HasStateChange(fields []string) bool {
	return slices.Contains(fields, model.FieldState)
}
