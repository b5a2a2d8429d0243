package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/practice-scheduling/internal/appointment"
	"github.com/hackgods/practice-scheduling/internal/booking"
	"github.com/hackgods/practice-scheduling/internal/calendar"
	"github.com/hackgods/practice-scheduling/internal/practice"
	"github.com/hackgods/practice-scheduling/internal/reportschedule"
	"github.com/hackgods/practice-scheduling/internal/slots"
	"github.com/hackgods/practice-scheduling/internal/waitlist"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", firstValidationError(err))
		return false
	}
	return true
}

func parseUUID(w http.ResponseWriter, raw, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalUUID(w http.ResponseWriter, raw, field string) (*uuid.UUID, bool) {
	if raw == "" {
		return nil, true
	}
	id, ok := parseUUID(w, raw, field)
	if !ok {
		return nil, false
	}
	return &id, true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	return parseUUID(w, chi.URLParam(r, "id"), "id")
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// parseDays reads the inclusive start/end date range from the query string.
func parseDays(w http.ResponseWriter, r *http.Request, maxDays int) (calendar.DateRange, bool) {
	q := r.URL.Query()
	start, err := parseDate(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start", "start must be a date (YYYY-MM-DD) or RFC 3339 time")
		return calendar.DateRange{}, false
	}
	end := start
	if raw := q.Get("end"); raw != "" {
		if end, err = parseDate(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end", "end must be a date (YYYY-MM-DD) or RFC 3339 time")
			return calendar.DateRange{}, false
		}
	}

	days, err := calendar.NewDateRange(start, end)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
		return calendar.DateRange{}, false
	}
	if n := int(days.End.Sub(days.Start).Hours()/24) + 1; n > maxDays {
		writeError(w, http.StatusBadRequest, "invalid_range", fmt.Sprintf("range spans %d days, at most %d allowed", n, maxDays))
		return calendar.DateRange{}, false
	}
	return days, true
}

// writeServiceError maps the domain error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, practice.ErrResourceNotFound):
		writeError(w, http.StatusNotFound, "resource_not_found", err.Error())
	case errors.Is(err, practice.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, waitlist.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "waitlist_entry_not_found", err.Error())
	case errors.Is(err, reportschedule.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, "schedule_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, booking.ErrResourceBusy):
		writeError(w, http.StatusConflict, "resource_busy", err.Error())
	case errors.Is(err, booking.ErrInvalidInput),
		errors.Is(err, slots.ErrInvalidDuration),
		errors.Is(err, waitlist.ErrInvalidEntry),
		errors.Is(err, reportschedule.ErrInvalidSchedule):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
