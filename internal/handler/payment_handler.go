package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/openpledge/pledged/internal/domain"
	"github.com/openpledge/pledged/internal/service"
)

// POST /v1/pledges/{pledgeID}/payments
func applyPaymentHandler(svc *service.PledgeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pledgeID := chi.URLParam(r, "pledgeID")

		var app domain.PaymentApplication
		if err := json.NewDecoder(r.Body).Decode(&app); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		sched, err := svc.ApplyPayment(r.Context(), pledgeID, app)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sched)
	}
}

// POST /v1/payment-events
//
// Webhook form of the queue listener: accepts the same event envelope and
// feeds it through the same idempotent handling.
func paymentEventHandler(svc *service.PledgeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var event domain.PaymentEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := svc.HandlePaymentEvent(r.Context(), event); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "processed"})
	}
}
