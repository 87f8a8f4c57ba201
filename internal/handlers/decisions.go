package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rfqs/models"
)

type decisionResult struct {
	Success bool `json:"success"`
}

// AwardHandler обрабатывает PUT /api/rfqs/{rfqId}/award — ручное назначение
// победителя покупателем.
func (h *Handler) AwardHandler(w http.ResponseWriter, r *http.Request) {
	rfqID := chi.URLParam(r, "rfqId")
	buyerID := callerID(r)
	if rfqID == "" || buyerID == "" {
		http.Error(w, "Missing rfqId or caller identity", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 65536)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req models.AwardRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Resolver.AwardToSupplier(r.Context(), rfqID, buyerID, req.ProviderID); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, decisionResult{Success: true})
}

// ReleaseHoldHandler обрабатывает PUT /api/rfqs/{rfqId}/release_hold
func (h *Handler) ReleaseHoldHandler(w http.ResponseWriter, r *http.Request) {
	h.decision(w, r, h.Resolver.ReleaseHold)
}

// CloseRFQHandler обрабатывает PUT /api/rfqs/{rfqId}/close
func (h *Handler) CloseRFQHandler(w http.ResponseWriter, r *http.Request) {
	h.decision(w, r, h.Resolver.Close)
}

// CancelRFQHandler обрабатывает PUT /api/rfqs/{rfqId}/cancel
func (h *Handler) CancelRFQHandler(w http.ResponseWriter, r *http.Request) {
	h.decision(w, r, h.Resolver.Cancel)
}

// decision runs one body-less buyer operation and maps the outcome.
func (h *Handler) decision(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, rfqID, buyerID string) error) {
	rfqID := chi.URLParam(r, "rfqId")
	buyerID := callerID(r)
	if rfqID == "" || buyerID == "" {
		http.Error(w, "Missing rfqId or caller identity", http.StatusBadRequest)
		return
	}

	if err := op(r.Context(), rfqID, buyerID); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, decisionResult{Success: true})
}
