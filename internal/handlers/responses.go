package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rfqs/models"
)

// RespondHandler обрабатывает POST /api/rfqs/{rfqId}/respond — один ответ
// поставщика. Losing a commodity race is a 200 with awarded:false, not an
// error: the response row is recorded either way.
func (h *Handler) RespondHandler(w http.ResponseWriter, r *http.Request) {
	rfqID := chi.URLParam(r, "rfqId")
	supplierID := callerID(r)
	tenantID := callerTenant(r)
	if rfqID == "" || supplierID == "" || tenantID == "" {
		http.Error(w, "Missing rfqId or caller identity", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1048576)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req models.RespondRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.Resolver.Respond(r.Context(), rfqID, supplierID, tenantID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}
