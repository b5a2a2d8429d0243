package api

import (
	"net/http"

	"github.com/hackgods/practice-scheduling/internal/reportschedule"
)

func createScheduleHandler(svc ReportScheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reportschedule.CreateRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		s, err := svc.Create(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, s)
	}
}

func listSchedulesHandler(svc ReportScheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyID, ok := parseUUID(w, r.URL.Query().Get("companyId"), "companyId")
		if !ok {
			return
		}

		list, err := svc.List(r.Context(), companyID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if list == nil {
			list = []reportschedule.Schedule{}
		}

		writeJSON(w, http.StatusOK, list)
	}
}

func getScheduleHandler(svc ReportScheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		s, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, s)
	}
}

func updateScheduleHandler(svc ReportScheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req reportschedule.UpdateRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		s, err := svc.Update(r.Context(), id, req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, s)
	}
}

func deleteScheduleHandler(svc ReportScheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), id); err != nil {
			writeServiceError(w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
