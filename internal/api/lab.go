package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinical-workflow-scheduling/internal/labflow"
	"github.com/hackgods/clinical-workflow-scheduling/internal/task"
)

func createTestRequestHandler(engine *labflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var order labflow.Order
		if !decodeJSON(w, r, &order) {
			return
		}

		req, err := engine.Create(r.Context(), order)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, req)
	}
}

func listTestRequestsHandler(engine *labflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var status labflow.RequestStatus
		if raw := r.URL.Query().Get("status"); raw != "" {
			st, err := labflow.ParseRequestStatus(raw)
			if err != nil {
				writeDomainError(w, r, err)
				return
			}
			status = st
		}

		writeJSON(w, http.StatusOK, listOf(engine.List(r.Context(), status)))
	}
}

func getTestRequestHandler(engine *labflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := engine.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// labActionHandler dispatches POST /lab/requests/{id}/{action}. The report
// and send actions accept ?async=true and answer 202 while the simulated
// backend works.
func labActionHandler(engine *labflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "id")
		action := chi.URLParam(r, "action")
		async, _ := strconv.ParseBool(r.URL.Query().Get("async"))

		var (
			result any
			err    error
		)

		switch action {
		case "accept":
			result, err = engine.Accept(ctx, id)
		case "reject":
			var req RejectRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			result, err = engine.Reject(ctx, id, req.Reason)
		case "assign":
			var req AssignRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			result, err = engine.AssignTechnician(ctx, id, req.Technician)
		case "collect":
			var req labflow.SampleDetails
			if !decodeJSON(w, r, &req) {
				return
			}
			sample, labels, cerr := engine.CollectSample(ctx, id, req)
			result, err = map[string]any{"sample": sample, "labels": labels}, cerr
		case "confirm-collection":
			var req ConfirmCollectionRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			result, err = engine.ConfirmCollection(ctx, id, req.Volume)
		case "start":
			result, err = engine.StartProcessing(ctx, id)
		case "complete":
			result, err = engine.CompleteProcessing(ctx, id)
		case "report":
			var req GenerateReportRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			if async {
				awaitInBackground(zerolog.Ctx(ctx), id, action, engine.GenerateReportAsync(ctx, id, req.Results))
				writeJSON(w, http.StatusAccepted, PendingResponse{TestRequestID: id, Action: action, State: string(task.StatePending)})
				return
			}
			result, err = engine.GenerateReport(ctx, id, req.Results)
		case "approve":
			result, err = engine.ApproveReport(ctx, id)
		case "send":
			if async {
				awaitInBackground(zerolog.Ctx(ctx), id, action, engine.SendReportAsync(ctx, id))
				writeJSON(w, http.StatusAccepted, PendingResponse{TestRequestID: id, Action: action, State: string(task.StatePending)})
				return
			}
			result, err = engine.SendReport(ctx, id)
		case "invoice":
			result, err = engine.GenerateInvoice(ctx, id)
		default:
			writeError(w, http.StatusNotFound, "unknown_action", "unknown lab action "+strconv.Quote(action))
			return
		}

		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// awaitInBackground logs the outcome of a simulated backend task. The
// caller learns about success through the change feed.
func awaitInBackground(logger *zerolog.Logger, id, action string, f *task.Future[labflow.LabReport]) {
	go func() {
		if _, err := f.Wait(context.Background()); err != nil {
			logger.Warn().Err(err).Str("test_request_id", id).Str("action", action).Msg("background lab action failed")
		}
	}()
}

func labStatsHandler(engine *labflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, engine.Stats())
	}
}

func labCatalogHandler(engine *labflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, listOf(engine.Catalog().Names()))
	}
}
