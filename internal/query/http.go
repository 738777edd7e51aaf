package query

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"BetLedger/internal/ledger"
)

// Handler serves the query API as HTTP/JSON.
type Handler struct {
	svc *Service
	log zerolog.Logger
}

func NewHandler(svc *Service, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Register mounts the query routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/users/{id}/balance", h.balance)
	mux.HandleFunc("GET /v1/users/{id}/transactions", h.transactions)
	mux.HandleFunc("GET /v1/users/{id}/matches/{key}/wagers", h.userWagers)
	mux.HandleFunc("GET /v1/matches/{key}", h.match)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	resp, err := h.svc.Balance(r.Context(), userID)
	h.reply(w, resp, err)
}

func (h *Handler) transactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	resp, err := h.svc.Transactions(r.Context(), userID)
	h.reply(w, resp, err)
}

func (h *Handler) userWagers(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	status := ledger.WagerStatusConfirmed
	if q := r.URL.Query().Get("status"); q != "" {
		parsed, err := ledger.ParseWagerStatus(q)
		if err != nil {
			h.error(w, http.StatusBadRequest, "unknown status")
			return
		}
		status = parsed
	}
	resp, err := h.svc.UserWagers(r.Context(), userID, r.PathValue("key"), status)
	h.reply(w, resp, err)
}

func (h *Handler) match(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Match(r.Context(), r.PathValue("key"))
	if err == nil && resp == nil {
		h.error(w, http.StatusNotFound, "unknown match")
		return
	}
	h.reply(w, resp, err)
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.error(w, http.StatusBadRequest, "malformed user id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) reply(w http.ResponseWriter, body any, err error) {
	if errors.Is(err, ErrUnknownUser) {
		h.error(w, http.StatusNotFound, "unknown user")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("query failed")
		h.error(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("encode response")
	}
}

func (h *Handler) error(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
