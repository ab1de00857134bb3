package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jakechorley/incident-desk/pkg/core/schedule"
)

type shiftResponse struct {
	ID               string   `json:"id"`
	Start            string   `json:"start,omitempty"`
	End              string   `json:"end,omitempty"`
	Days             []string `json:"days,omitempty"`
	EveningDays      []string `json:"evening_days,omitempty"`
	MorningDays      []string `json:"morning_days,omitempty"`
	CrossesMidnight  bool     `json:"crosses_midnight"`
	IncludesHolidays bool     `json:"includes_holidays"`
	Unrestricted     bool     `json:"unrestricted"`
}

type eligibilityResponse struct {
	ShiftID  string    `json:"shift_id"`
	At       time.Time `json:"at"`
	Eligible bool      `json:"eligible"`
	Holiday  bool      `json:"holiday"`
}

func dayNames(days []time.Weekday) []string {
	if len(days) == 0 {
		return nil
	}
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.String()
	}
	return names
}

func toShiftResponse(def schedule.ShiftDefinition) shiftResponse {
	resp := shiftResponse{
		ID:               def.ID,
		Days:             dayNames(def.ActiveWeekdays),
		EveningDays:      dayNames(def.EveningDays),
		MorningDays:      dayNames(def.MorningDays),
		CrossesMidnight:  def.CrossesMidnight,
		IncludesHolidays: def.IncludesHolidays,
		Unrestricted:     def.Unrestricted,
	}
	if !def.Unrestricted {
		resp.Start = def.Start.String()
		resp.End = def.End.String()
	}
	return resp
}

func (s *Server) handleListShifts(w http.ResponseWriter, _ *http.Request) {
	defs := s.catalog.List()
	resp := make([]shiftResponse, 0, len(defs))
	for _, def := range defs {
		resp = append(resp, toShiftResponse(def))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleShiftEligibility answers whether the holder of a shift could log in at the
// given instant (RFC 3339 "at" query parameter, defaulting to now)
func (s *Server) handleShiftEligibility(w http.ResponseWriter, r *http.Request) {
	shiftID := chi.URLParam(r, "id")

	at := s.clock.Now()
	if v := r.URL.Query().Get("at"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		at = parsed
	}

	eligible, err := s.checker.Check(shiftID, at)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	var holiday bool
	if s.cfg != nil {
		holiday, err = s.cfg.IsHoliday(at, s.checker.Location())
		if err != nil {
			s.logger.Warn("Failed to evaluate holidays", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, eligibilityResponse{
		ShiftID:  shiftID,
		At:       at.In(s.checker.Location()),
		Eligible: eligible,
		Holiday:  holiday,
	})
}
