package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"rfqs/internal/apperr"
	"rfqs/internal/award"
)

// Handler wires the storage and the award resolver to the HTTP surface.
type Handler struct {
	Store    StorageInterface
	Resolver *award.Resolver
	Log      *logrus.Logger
	validate *validator.Validate
}

func NewHandler(store StorageInterface, resolver *award.Resolver, log *logrus.Logger) *Handler {
	return &Handler{
		Store:    store,
		Resolver: resolver,
		Log:      log,
		validate: validator.New(),
	}
}

// PingHandler отвечает "ok" для проверки сервера
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Auth is an external collaborator: the gateway resolves the session and
// forwards the caller identity in headers.
func callerID(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}

func callerTenant(r *http.Request) string {
	return r.Header.Get("X-Tenant-Id")
}

type PaginationParams struct {
	Limit  int
	Offset int
}

// parsePaginationParams парсит limit и offset из query, с дефолтами и ограничениями
func parsePaginationParams(r *http.Request) PaginationParams {
	params := PaginationParams{Limit: 20, Offset: 0}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			params.Limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			params.Offset = o
		}
	}
	return params
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Log.WithError(err).Error("failed to encode response")
	}
}

// writeError maps taxonomy errors to status codes. Unknown errors are not
// leaked to the client.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.Log.WithError(err).Error("internal error")
		msg = "internal error"
	}
	http.Error(w, msg, status)
}
