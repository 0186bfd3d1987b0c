package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/boost-marketplace/internal/auth"
	"github.com/boost-marketplace/internal/domain"
)

// VisitRequest is the body of a navigation history entry
type VisitRequest struct {
	Path string `json:"path"`
}

// RoleRequest is the body of an admin role change
type RoleRequest struct {
	Role domain.Role `json:"role"`
}

// Me returns the caller's profile
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.Me(r.Context(), auth.SessionFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, "load profile", err)
		return
	}

	h.writeSuccess(w, domain.NewProfileView(*profile))
}

// GetHistory returns the caller's recent navigation, oldest first
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.preferences.History(r.Context(), auth.SessionFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, "load history", err)
		return
	}

	h.writeSuccess(w, history)
}

// RecordVisit appends a path to the caller's navigation history
func (h *Handler) RecordVisit(w http.ResponseWriter, r *http.Request) {
	var req VisitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.preferences.RecordVisit(r.Context(), auth.SessionFrom(r.Context()), req.Path); err != nil {
		h.writeServiceError(w, r, "record visit", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetPreferences returns the caller's stored preferences
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.preferences.All(r.Context(), auth.SessionFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, "load preferences", err)
		return
	}

	h.writeSuccess(w, prefs)
}

// SetPreferences stores each key of the body and returns the full set
func (h *Handler) SetPreferences(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	sess := auth.SessionFrom(r.Context())
	for key, value := range req {
		if err := h.preferences.Set(r.Context(), sess, key, value); err != nil {
			h.writeServiceError(w, r, "save preference", err)
			return
		}
	}

	h.GetPreferences(w, r)
}

// ListProfiles returns every profile with role counts
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profiles.List(r.Context(), auth.SessionFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, "list profiles", err)
		return
	}

	views := make([]domain.ProfileView, 0, len(profiles))
	for _, p := range profiles {
		views = append(views, domain.NewProfileView(p))
	}

	h.writeSuccess(w, map[string]interface{}{
		"profiles": views,
		"stats":    domain.CountRoles(profiles),
	})
}

// UpdateRole changes a profile's role
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	profile, err := h.profiles.UpdateRole(r.Context(), auth.SessionFrom(r.Context()), chi.URLParam(r, "profileID"), req.Role)
	if err != nil {
		h.writeServiceError(w, r, "update role", err)
		return
	}

	h.writeSuccess(w, domain.NewProfileView(*profile))
}
