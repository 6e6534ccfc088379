package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/openpledge/pledged/internal/domain"
	"github.com/openpledge/pledged/internal/service"
)

// POST /v1/pledges
func createPledgeHandler(svc *service.PledgeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.PledgeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		sched, err := svc.CreatePledge(r.Context(), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, sched)
	}
}

// GET /v1/pledges/{pledgeID}/schedule
func getScheduleHandler(svc *service.PledgeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pledgeID := chi.URLParam(r, "pledgeID")

		sched, err := svc.GetSchedule(r.Context(), pledgeID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sched)
	}
}

// GET /v1/pledges/{pledgeID}/installments/open?limit=n
func listOpenInstallmentsHandler(svc *service.PledgeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pledgeID := chi.URLParam(r, "pledgeID")

		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		installments, err := svc.ListOldestOpen(r.Context(), pledgeID, limit)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"installments": installments})
	}
}

// PATCH /v1/pledges/{pledgeID}/installments/statuses
func refreshStatusesHandler(svc *service.PledgeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pledgeID := chi.URLParam(r, "pledgeID")

		sched, err := svc.UpdateInstallmentStatuses(r.Context(), pledgeID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sched)
	}
}

// PATCH /v1/installments/{installmentID}/status
func setInstallmentStatusHandler(svc *service.PledgeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		installmentID := chi.URLParam(r, "installmentID")

		var req struct {
			Status domain.Status `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		inst, err := svc.SetInstallmentStatus(r.Context(), installmentID, req.Status)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, inst)
	}
}

// POST /v1/installments/{installmentID}/reminders
func markRemindedHandler(svc *service.PledgeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		installmentID := chi.URLParam(r, "installmentID")

		inst, err := svc.MarkReminded(r.Context(), installmentID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, inst)
	}
}

// POST /v1/pledges/{pledgeID}/cancel
func cancelPledgeHandler(svc *service.PledgeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pledgeID := chi.URLParam(r, "pledgeID")

		sched, err := svc.CancelPledge(r.Context(), pledgeID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sched)
	}
}

// DELETE /v1/pledges/{pledgeID}
func deletePledgeHandler(svc *service.PledgeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pledgeID := chi.URLParam(r, "pledgeID")

		if err := svc.DeletePledge(r.Context(), pledgeID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
