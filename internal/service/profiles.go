package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/boost-marketplace/internal/domain"
)

// ProfileService manages user profiles and roles
type ProfileService struct {
	store  ProfileStore
	admins map[string]struct{}
	logger *slog.Logger
	now    func() time.Time
}

// NewProfileService creates a new profile service. Identities listed in
// adminIDs are promoted to admin the first time they are seen.
func NewProfileService(store ProfileStore, adminIDs []string, logger *slog.Logger) *ProfileService {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		if id != "" {
			admins[id] = struct{}{}
		}
	}
	return &ProfileService{
		store:  store,
		admins: admins,
		logger: logger,
		now:    time.Now,
	}
}

// Ensure returns the profile for a verified identity, creating it with the
// user role on first sight. The session's role is ignored.
func (s *ProfileService) Ensure(ctx context.Context, sess domain.Session) (*domain.Profile, error) {
	if !sess.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	_, seeded := s.admins[sess.UserID]
	role := domain.RoleUser
	if seeded {
		role = domain.RoleAdmin
	}

	p, err := s.store.EnsureProfile(ctx, domain.Profile{
		ID:        sess.UserID,
		Email:     sess.Email,
		Name:      sess.Name,
		Role:      role,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("ensuring profile: %w", err)
	}

	// profile existed before the id was configured as an admin
	if seeded && p.Role != domain.RoleAdmin {
		if err := s.store.UpdateRole(ctx, p.ID, domain.RoleAdmin); err != nil {
			return nil, fmt.Errorf("seeding admin role: %w", err)
		}
		s.logger.Info("configured admin promoted", "profile_id", p.ID, "previous_role", p.Role)
		p.Role = domain.RoleAdmin
	}
	return p, nil
}

// Me returns the session's own profile.
func (s *ProfileService) Me(ctx context.Context, sess domain.Session) (*domain.Profile, error) {
	if !sess.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	p, err := s.store.GetProfile(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return p, nil
}

// List returns every profile, newest first. Admin only.
func (s *ProfileService) List(ctx context.Context, sess domain.Session) ([]domain.Profile, error) {
	if err := requireAdmin(sess); err != nil {
		return nil, err
	}
	profiles, err := s.store.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	return profiles, nil
}

// UpdateRole changes a profile's role. Admin only.
func (s *ProfileService) UpdateRole(ctx context.Context, sess domain.Session, id string, role domain.Role) (*domain.Profile, error) {
	if err := requireAdmin(sess); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, &domain.ValidationError{Field: "role", Reason: "must be user, booster or admin"}
	}

	if err := s.store.UpdateRole(ctx, id, role); err != nil {
		return nil, fmt.Errorf("updating role: %w", err)
	}
	s.logger.Info("profile role updated", "profile_id", id, "role", role, "admin_id", sess.UserID)

	p, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return p, nil
}

func requireAdmin(sess domain.Session) error {
	if !sess.Authenticated() {
		return domain.ErrUnauthenticated
	}
	if !sess.IsAdmin() {
		return domain.ErrForbidden
	}
	return nil
}
