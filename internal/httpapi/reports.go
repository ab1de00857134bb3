package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jakechorley/incident-desk/pkg/core/model"
	"github.com/jakechorley/incident-desk/pkg/core/services"
	"github.com/jakechorley/incident-desk/pkg/db"
)

var errBadRequest = errors.New("bad request")

type createReportRequest struct {
	IncidentType    string     `json:"incident_type" validate:"required"`
	Location        string     `json:"location"`
	Description     string     `json:"description"`
	OccurredAt      *time.Time `json:"occurred_at"`
	PeopleAffected  int        `json:"people_affected" validate:"min=0"`
	Observations    string     `json:"observations"`
	PropertyManager string     `json:"property_manager"`
}

type transitionRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func reportID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid report id", services.ErrInvalidInput)
	}
	return id, nil
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	actor := principalFromContext(r.Context())
	state := model.State(r.URL.Query().Get("state"))

	reports, err := services.ListReports(r.Context(), s.store, s.logger, actor, state)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if reports == nil {
		reports = []model.IncidentReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var req createReportRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	report, err := services.CreateReport(r.Context(), s.store, s.clock, s.logger, principalFromContext(r.Context()), services.NewReport{
		IncidentType:    req.IncidentType,
		Location:        req.Location,
		Description:     req.Description,
		OccurredAt:      req.OccurredAt,
		PeopleAffected:  req.PeopleAffected,
		Observations:    req.Observations,
		PropertyManager: req.PropertyManager,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id, err := reportID(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	report, err := services.GetReport(r.Context(), s.store, principalFromContext(r.Context()), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handlePatchReport(w http.ResponseWriter, r *http.Request) {
	id, err := reportID(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	patch, err := parseReportPatch(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	report, err := services.UpdateReport(r.Context(), s.store, s.machine, s.clock, s.logger, principalFromContext(r.Context()), id, patch)
	if patch.State != nil {
		s.metrics.observeTransition(model.Event("patch"), err)
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

var knownPatchKeys = map[string]bool{
	model.FieldState:           true,
	model.FieldIncidentType:    true,
	model.FieldLocation:        true,
	model.FieldDescription:     true,
	model.FieldOccurredAt:      true,
	model.FieldPeopleAffected:  true,
	model.FieldObservations:    true,
	model.FieldPropertyManager: true,
	"reason":                   true,
}

// parseReportPatch decodes each known key into its patch field. Keys it does not
// know are kept as Unrecognised so the update is refused rather than half applied.
func parseReportPatch(body map[string]json.RawMessage) (services.ReportPatch, error) {
	var patch services.ReportPatch
	keys := make([]string, 0, len(body))
	for key := range body {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw := body[key]
		if knownPatchKeys[key] && bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return services.ReportPatch{}, fmt.Errorf("%w: field %s must not be null", errBadRequest, key)
		}
		var err error
		switch key {
		case model.FieldState:
			err = json.Unmarshal(raw, &patch.State)
		case model.FieldIncidentType:
			err = json.Unmarshal(raw, &patch.IncidentType)
		case model.FieldLocation:
			err = json.Unmarshal(raw, &patch.Location)
		case model.FieldDescription:
			err = json.Unmarshal(raw, &patch.Description)
		case model.FieldOccurredAt:
			err = json.Unmarshal(raw, &patch.OccurredAt)
		case model.FieldPeopleAffected:
			err = json.Unmarshal(raw, &patch.PeopleAffected)
		case model.FieldObservations:
			err = json.Unmarshal(raw, &patch.Observations)
		case model.FieldPropertyManager:
			err = json.Unmarshal(raw, &patch.PropertyManager)
		case "reason":
			err = json.Unmarshal(raw, &patch.Reason)
		default:
			patch.Unrecognised = append(patch.Unrecognised, key)
		}
		if err != nil {
			return services.ReportPatch{}, fmt.Errorf("%w: field %s: %v", errBadRequest, key, err)
		}
	}
	return patch, nil
}

func (s *Server) handleTransition(event model.Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := reportID(r)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}

		// The body is optional, so an empty one (of any transfer encoding) decodes to no reason
		var req transitionRequest
		if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
			s.metrics.observeTransition(event, errBadRequest)
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		if err := s.validate.Struct(req); err != nil {
			s.metrics.observeTransition(event, errBadRequest)
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}

		report, err := services.TransitionReport(r.Context(), s.store, s.machine, s.clock, s.logger, principalFromContext(r.Context()), id, event, req.Reason)
		s.metrics.observeTransition(event, err)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := db.AuditFilter{Actor: query.Get("actor"), Limit: 100}

	if v := query.Get("report_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		filter.ReportID = id
	}
	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 || limit > 1000 {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		filter.Limit = limit
	}

	entries, err := services.ListAudit(r.Context(), s.store, s.logger, principalFromContext(r.Context()), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
