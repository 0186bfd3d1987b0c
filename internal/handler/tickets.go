package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/boost-marketplace/internal/auth"
	"github.com/boost-marketplace/internal/domain"
)

// RespondRequest is the body of a ticket response
type RespondRequest struct {
	Message string `json:"message"`
}

// StatusRequest is the body of a ticket status change
type StatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// CreateTicket opens a support ticket for the caller
func (h *Handler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTicketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	ticket, err := h.tickets.Create(r.Context(), auth.SessionFrom(r.Context()), req)
	if err != nil {
		h.writeServiceError(w, r, "create ticket", err)
		return
	}

	h.writeCreated(w, ticket)
}

// ListTickets returns the caller's tickets, or every ticket for admins
func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.tickets.List(r.Context(), auth.SessionFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, "list tickets", err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"tickets": tickets,
		"count":   len(tickets),
	})
}

// GetTicket returns a ticket with its responses
func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.tickets.Get(r.Context(), auth.SessionFrom(r.Context()), chi.URLParam(r, "ticketID"))
	if err != nil {
		h.writeServiceError(w, r, "get ticket", err)
		return
	}

	h.writeSuccess(w, ticket)
}

// RespondTicket appends a response to an open ticket
func (h *Handler) RespondTicket(w http.ResponseWriter, r *http.Request) {
	var req RespondRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	ticket, err := h.tickets.Respond(r.Context(), auth.SessionFrom(r.Context()), chi.URLParam(r, "ticketID"), req.Message)
	if err != nil {
		h.writeServiceError(w, r, "respond to ticket", err)
		return
	}

	h.writeCreated(w, ticket)
}

// SetTicketStatus moves a ticket through its workflow (admin only)
func (h *Handler) SetTicketStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	ticket, err := h.tickets.SetStatus(r.Context(), auth.SessionFrom(r.Context()), chi.URLParam(r, "ticketID"), req.Status)
	if err != nil {
		h.writeServiceError(w, r, "update ticket status", err)
		return
	}

	h.writeSuccess(w, ticket)
}
