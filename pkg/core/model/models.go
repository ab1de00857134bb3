package model

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleBrigadista  Role = "brigadista"
	RoleCoordinador Role = "coordinador"
	RoleAutoridad   Role = "autoridad"
	RoleAdmin       Role = "admin"
)

// roleAliases maps the naming used by each deployment onto the canonical roles
var roleAliases = map[string]Role{
	"brigadista":    RoleBrigadista,
	"paramedico":    RoleBrigadista,
	"coordinador":   RoleCoordinador,
	"jefe_turno":    RoleCoordinador,
	"autoridad":     RoleAutoridad,
	"admin":         RoleAdmin,
	"administrador": RoleAdmin,
}

// ParseRole normalises a role name, accepting the deployment aliases
func ParseRole(s string) (Role, error) {
	role, ok := roleAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return role, nil
}

func (r Role) IsValid() bool {
	switch r {
	case RoleBrigadista, RoleCoordinador, RoleAutoridad, RoleAdmin:
		return true
	}
	return false
}

type State string

const (
	StateDraft      State = "draft"
	StateEnRevision State = "en_revision"
	StateAprobado   State = "aprobado"
	StateCerrado    State = "cerrado"
)

func (s State) IsValid() bool {
	switch s {
	case StateDraft, StateEnRevision, StateAprobado, StateCerrado:
		return true
	}
	return false
}

type Event string

const (
	EventSubmit  Event = "submit"
	EventApprove Event = "approve"
	EventReject  Event = "reject"
	EventClose   Event = "close"
)

// DefaultRejectReason is stored when a report is rejected without a reason
const DefaultRejectReason = "Sin especificar"

// Principal is the authenticated actor of a request
type Principal struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
	ShiftID  string `json:"shift_id"`
}

// IncidentReport represents an emergency incident report and its review trail
type IncidentReport struct {
	ID        int64     `json:"id"`
	State     State     `json:"state"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	IncidentType   string     `json:"incident_type"`
	Location       string     `json:"location"`
	Description    string     `json:"description"`
	OccurredAt     *time.Time `json:"occurred_at,omitempty"`
	PeopleAffected int        `json:"people_affected"`

	// Sensitive free text
	Observations    string `json:"observations"`
	PropertyManager string `json:"property_manager"`

	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	SubmittedBy  string     `json:"submitted_by,omitempty"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	ApprovedBy   string     `json:"approved_by,omitempty"`
	RejectedAt   *time.Time `json:"rejected_at,omitempty"`
	RejectedBy   string     `json:"rejected_by,omitempty"`
	RejectReason string     `json:"reject_reason,omitempty"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	ClosedBy     string     `json:"closed_by,omitempty"`
}

// Report field names as accepted by partial updates
const (
	FieldID              = "id"
	FieldState           = "state"
	FieldCreatedBy       = "created_by"
	FieldIncidentType    = "incident_type"
	FieldLocation        = "location"
	FieldDescription     = "description"
	FieldOccurredAt      = "occurred_at"
	FieldPeopleAffected  = "people_affected"
	FieldObservations    = "observations"
	FieldPropertyManager = "property_manager"
)

// User represents an account able to log in
type User struct {
	Username     string
	PasswordHash string
	Role         Role
	ShiftID      string
	Active       bool
	CreatedAt    time.Time
}

// Principal returns the request principal for this user
func (u User) Principal() Principal {
	return Principal{Username: u.Username, Role: u.Role, ShiftID: u.ShiftID}
}

// AuditEntry is an append-only record of an action taken in the system
type AuditEntry struct {
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
	Actor    string    `json:"actor"`
	Action   string    `json:"action"`
	ReportID int64     `json:"report_id,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}
