package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boost-marketplace/internal/domain"
)

// maxPreferenceKeyLen bounds preference keys accepted from clients.
const maxPreferenceKeyLen = 64

// PreferenceService exposes a user's own navigation history and preferences
type PreferenceService struct {
	store LocalStore
	now   func() time.Time
}

// NewPreferenceService creates a new preference service
func NewPreferenceService(store LocalStore) *PreferenceService {
	return &PreferenceService{store: store, now: time.Now}
}

// RecordVisit appends a visited path to the session's history.
func (s *PreferenceService) RecordVisit(ctx context.Context, sess domain.Session, path string) error {
	if !sess.Authenticated() {
		return domain.ErrUnauthenticated
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return domain.Required("path")
	}
	if !strings.HasPrefix(path, "/") {
		return &domain.ValidationError{Field: "path", Reason: "must start with /"}
	}

	entry := domain.NavigationEntry{Path: path, Timestamp: s.now().UTC()}
	if err := s.store.AppendHistory(ctx, sess.UserID, entry); err != nil {
		return fmt.Errorf("recording visit: %w", err)
	}
	return nil
}

// History returns the session's recent navigation, oldest first.
func (s *PreferenceService) History(ctx context.Context, sess domain.Session) ([]domain.NavigationEntry, error) {
	if !sess.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	entries, err := s.store.History(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("getting history: %w", err)
	}
	return entries, nil
}

// Set stores one preference for the session's user.
func (s *PreferenceService) Set(ctx context.Context, sess domain.Session, key, value string) error {
	if !sess.Authenticated() {
		return domain.ErrUnauthenticated
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.Required("key")
	}
	if len(key) > maxPreferenceKeyLen {
		return &domain.ValidationError{Field: "key", Reason: "is too long"}
	}
	if err := s.store.SetPreference(ctx, sess.UserID, key, value); err != nil {
		return fmt.Errorf("setting preference: %w", err)
	}
	return nil
}

// All returns the session's stored preferences.
func (s *PreferenceService) All(ctx context.Context, sess domain.Session) (map[string]string, error) {
	if !sess.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	prefs, err := s.store.Preferences(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("getting preferences: %w", err)
	}
	return prefs, nil
}
