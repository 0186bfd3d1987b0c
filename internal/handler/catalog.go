package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/boost-marketplace/internal/domain"
	"github.com/boost-marketplace/internal/pricing"
)

// ListGames returns the supported games without their ladders
func (h *Handler) ListGames(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.catalog.Games())
}

// ListRanks returns a game's ladder in ascending order
func (h *Handler) ListRanks(w http.ResponseWriter, r *http.Request) {
	game := domain.Game(chi.URLParam(r, "game"))

	info, err := h.catalog.Lookup(game)
	if err != nil {
		h.writeServiceError(w, r, "look up game", err)
		return
	}

	h.writeSuccess(w, info)
}

// ListUrgencies returns the urgency tiers with their multipliers and ETAs
func (h *Handler) ListUrgencies(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.catalog.Urgencies())
}

// Quote prices a prospective order. An invalid rank pair yields a zero
// price with submittable false rather than an error.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req pricing.QuoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if !h.catalog.HasGame(req.Game) {
		h.writeError(w, http.StatusNotFound, domain.ErrUnknownGame)
		return
	}
	if req.Urgency != "" && !req.Urgency.Valid() {
		h.writeError(w, http.StatusBadRequest, &domain.ValidationError{Field: "urgency", Reason: "is not a known tier"})
		return
	}

	h.writeSuccess(w, h.pricing.Quote(req))
}
