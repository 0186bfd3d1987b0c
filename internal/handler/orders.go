package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/boost-marketplace/internal/auth"
	"github.com/boost-marketplace/internal/domain"
)

// SubmitOrder creates a pending order priced by the server
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	order, err := h.orders.Submit(r.Context(), auth.SessionFrom(r.Context()), req)
	if err != nil {
		h.writeServiceError(w, r, "submit order", err)
		return
	}

	h.writeCreated(w, h.catalog.DecorateOrder(*order))
}

// ListOrders returns the orders visible to the caller, optionally by status
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	status := domain.OrderStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		h.writeError(w, http.StatusBadRequest, &domain.ValidationError{Field: "status", Reason: "is not a known status"})
		return
	}

	orders, err := h.orders.List(r.Context(), auth.SessionFrom(r.Context()), status)
	if err != nil {
		h.writeServiceError(w, r, "list orders", err)
		return
	}

	views := make([]domain.OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, h.catalog.DecorateOrder(o))
	}

	h.writeSuccess(w, map[string]interface{}{
		"orders": views,
		"count":  len(views),
	})
}

// GetOrder returns a single order visible to the caller
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), auth.SessionFrom(r.Context()), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeServiceError(w, r, "get order", err)
		return
	}

	h.writeSuccess(w, h.catalog.DecorateOrder(*order))
}

// AcceptOrder claims a pending order for the calling booster
func (h *Handler) AcceptOrder(w http.ResponseWriter, r *http.Request) {
	h.transitionOrder(w, r, "accept order", h.orders.Accept)
}

// CompleteOrder marks the caller's in-progress order as completed
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	h.transitionOrder(w, r, "complete order", h.orders.Complete)
}

// CancelOrder cancels a pending order
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.transitionOrder(w, r, "cancel order", h.orders.Cancel)
}

type orderAction func(ctx context.Context, sess domain.Session, id string) (*domain.BoostOrder, error)

func (h *Handler) transitionOrder(w http.ResponseWriter, r *http.Request, action string, fn orderAction) {
	order, err := fn(r.Context(), auth.SessionFrom(r.Context()), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeServiceError(w, r, action, err)
		return
	}

	h.writeSuccess(w, h.catalog.DecorateOrder(*order))
}
