package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/practice-scheduling/internal/appointment"
	"github.com/hackgods/practice-scheduling/internal/booking"
	"github.com/hackgods/practice-scheduling/internal/slots"
	"github.com/hackgods/practice-scheduling/internal/waitlist"
)

func availabilityHandler(finder AvailabilityFinder, maxDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		resourceID, ok := parseOptionalUUID(w, q.Get("resourceId"), "resourceId")
		if !ok {
			return
		}
		var companyID uuid.UUID
		if raw := q.Get("companyId"); raw != "" || resourceID == nil {
			if companyID, ok = parseUUID(w, raw, "companyId"); !ok {
				return
			}
		}

		days, ok := parseDays(w, r, maxDays)
		if !ok {
			return
		}

		duration := 0
		if raw := q.Get("duration"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be a whole number of minutes")
				return
			}
			duration = n
		}
		duration, err := finder.Duration(duration)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		result, err := finder.Find(r.Context(), slots.Query{
			CompanyID:       companyID,
			ResourceID:      resourceID,
			Role:            q.Get("role"),
			Days:            days,
			DurationMinutes: duration,
			OnlyAvailable:   q.Get("available") == "true",
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			StartDate:       days.Start.Format(time.DateOnly),
			EndDate:         days.End.Format(time.DateOnly),
			DurationMinutes: duration,
			Slots:           result,
		})
	}
}

func createBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		companyID, ok := parseUUID(w, req.CompanyID, "company_id")
		if !ok {
			return
		}
		resourceID, ok := parseUUID(w, req.ResourceID, "resource_id")
		if !ok {
			return
		}
		patientID, ok := parseUUID(w, req.PatientID, "patient_id")
		if !ok {
			return
		}
		roomID, ok := parseOptionalUUID(w, req.RoomID, "room_id")
		if !ok {
			return
		}

		appt, err := svc.CreateBooking(r.Context(), booking.Request{
			CompanyID:       companyID,
			ResourceID:      resourceID,
			PatientID:       patientID,
			AppointmentType: req.AppointmentType,
			Start:           req.Start,
			DurationMinutes: req.DurationMinutes,
			RoomID:          roomID,
			Notes:           req.Notes,
			SelfService:     req.SelfService,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, appt)
	}
}

func getBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, appt)
	}
}

func cancelBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var req CancelBookingRequest
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.CancelAppointment(r.Context(), id, req.Reason)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, appt)
	}
}

// transitionHandler serves the body-less status transitions.
func transitionHandler(apply func(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		appt, err := apply(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, appt)
	}
}

func statsHandler(reporter StatsReporter, maxDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resourceID, ok := parseUUID(w, r.URL.Query().Get("resourceId"), "resourceId")
		if !ok {
			return
		}
		days, ok := parseDays(w, r, maxDays)
		if !ok {
			return
		}

		rep, err := reporter.Report(r.Context(), resourceID, days)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, rep)
	}
}

func createWaitlistHandler(svc WaitlistService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateWaitlistRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		var companyID uuid.UUID
		if req.CompanyID != "" {
			id, ok := parseUUID(w, req.CompanyID, "company_id")
			if !ok {
				return
			}
			companyID = id
		}
		patientID, ok := parseUUID(w, req.PatientID, "patient_id")
		if !ok {
			return
		}
		resourceID, ok := parseOptionalUUID(w, req.ResourceID, "resource_id")
		if !ok {
			return
		}

		entry, err := svc.Create(r.Context(), waitlist.CreateRequest{
			CompanyID:        companyID,
			PatientID:        patientID,
			ResourceID:       resourceID,
			AppointmentType:  req.AppointmentType,
			PreferredWindows: req.PreferredWindows,
			DurationMinutes:  req.DurationMinutes,
			Priority:         req.Priority,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, entry)
	}
}

func listWaitlistHandler(svc WaitlistService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resourceID, ok := parseUUID(w, r.URL.Query().Get("resourceId"), "resourceId")
		if !ok {
			return
		}

		entries, err := svc.ListPending(r.Context(), resourceID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if entries == nil {
			entries = []waitlist.Entry{}
		}

		writeJSON(w, http.StatusOK, WaitlistResponse{ResourceID: resourceID, Entries: entries})
	}
}
