package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/clinical-workflow-scheduling/internal/appointment"
)

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var draft appointment.Draft
		if !decodeJSON(w, r, &draft) {
			return
		}

		appt, err := svc.Create(r.Context(), draft)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, appt)
	}
}

// bookAppointmentHandler creates the appointment against a provider's declared slot.
func bookAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var draft appointment.Draft
		if !decodeJSON(w, r, &draft) {
			return
		}

		appt, err := svc.Book(r.Context(), draft)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, appt)
	}
}

// listAppointmentsHandler serves ?date=YYYY-MM-DD, ?q=text, or everything newest first.
func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			list []appointment.Appointment
			err  error
		)

		q := r.URL.Query()
		switch {
		case q.Get("date") != "":
			list, err = svc.ListByDate(r.Context(), q.Get("date"))
		case q.Has("q"):
			list, err = svc.Search(r.Context(), q.Get("q"))
		default:
			list, err = svc.All(r.Context())
		}
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, listOf(list))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func updateAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch appointment.Patch
		if !decodeJSON(w, r, &patch) {
			return
		}

		appt, err := svc.Update(r.Context(), chi.URLParam(r, "id"), patch)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func deleteAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func appointmentStatsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Stats())
	}
}
