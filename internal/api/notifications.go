package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinical-workflow-scheduling/internal/clock"
	"github.com/hackgods/clinical-workflow-scheduling/internal/identity"
	"github.com/hackgods/clinical-workflow-scheduling/internal/notify"
)

func listNotificationsHandler(log *notify.Log) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items := log.List()
		if items == nil {
			items = []notify.NotificationEvent{}
		}
		writeJSON(w, http.StatusOK, NotificationsResponse{Items: items, Unread: log.UnreadCount()})
	}
}

func markNotificationReadHandler(log *notify.Log) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := log.MarkRead(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func markAllNotificationsReadHandler(log *notify.Log) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.MarkAllRead(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteNotificationHandler(log *notify.Log) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Delete(r.Context(), chi.URLParam(r, "id"))
		w.WriteHeader(http.StatusNoContent)
	}
}

func meHandler(profile identity.Profile, clk clock.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, MeResponse{Profile: profile, Greeting: profile.Greeting(clk.Now())})
	}
}

// eventsHandler streams change events as server-sent events until the
// client goes away.
func eventsHandler(hub *notify.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer cannot stream")
			return
		}

		events, unsubscribe := hub.Subscribe(32)
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, ": connected\n\n")
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				data, err := json.Marshal(ev)
				if err != nil {
					zerolog.Ctx(r.Context()).Error().Err(err).Str("event_id", ev.ID).Msg("failed to encode event")
					continue
				}
				fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.EntityType, data)
				flusher.Flush()
			}
		}
	}
}
