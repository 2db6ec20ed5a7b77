package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/clinical-workflow-scheduling/internal/appointment"
	"github.com/hackgods/clinical-workflow-scheduling/internal/availability"
	"github.com/hackgods/clinical-workflow-scheduling/internal/calendar"
	"github.com/hackgods/clinical-workflow-scheduling/internal/notify"
)

func monthViewHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, err := strconv.Atoi(chi.URLParam(r, "year"))
		if err != nil || year < 1 || year > 9999 {
			writeError(w, http.StatusBadRequest, "invalid_year", "year must be between 1 and 9999")
			return
		}
		month, err := strconv.Atoi(chi.URLParam(r, "month"))
		if err != nil || month < 1 || month > 12 {
			writeError(w, http.StatusBadRequest, "invalid_month", "month must be between 1 and 12")
			return
		}

		days, err := svc.MonthView(r.Context(), year, time.Month(month), r.URL.Query().Get("provider"))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, MonthResponse{
			Label:    calendar.MonthLabel(year, time.Month(month)),
			Weekdays: calendar.WeekdayHeaders(),
			Days:     days,
		})
	}
}

func getScheduleHandler(book *availability.Book) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		date, err := calendar.ParseDateKey(chi.URLParam(r, "date"))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, scheduleResponse(provider, book.Day(provider, date.Key())))
	}
}

// declareScheduleHandler replaces the provider's slots for one day.
func declareScheduleHandler(book *availability.Book, pub notify.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		date, err := calendar.ParseDateKey(chi.URLParam(r, "date"))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		var req DeclareScheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		ds := availability.DaySchedule{Date: date, Slots: req.Slots}
		if err := book.Declare(r.Context(), provider, ds); err != nil {
			writeDomainError(w, r, err)
			return
		}

		pub.Publish(r.Context(), notify.Event{
			EntityType: notify.EntityAvailability,
			EntityID:   provider + "/" + string(date.Key()),
			Action:     "declared",
			Message:    fmt.Sprintf("%d slot(s) published for %s on %s", len(req.Slots), provider, date),
		})

		writeJSON(w, http.StatusOK, scheduleResponse(provider, book.Day(provider, date.Key())))
	}
}

func scheduleResponse(provider string, ds availability.DaySchedule) ScheduleResponse {
	slots := ds.Slots
	if slots == nil {
		slots = []availability.TimeSlot{}
	}
	open := availability.AvailableSlots(ds)
	if open == nil {
		open = []availability.TimeSlot{}
	}
	return ScheduleResponse{
		Provider:    provider,
		Date:        ds.Date.Key(),
		Slots:       slots,
		Available:   open,
		FullyBooked: len(ds.Slots) > 0 && availability.IsDateFullyBooked(ds),
	}
}
