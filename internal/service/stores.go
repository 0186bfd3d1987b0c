package service

import (
	"context"
	"time"

	"github.com/boost-marketplace/internal/domain"
)

// OrderStore persists boost orders. Implemented by postgres.Repository and redis.Store.
type OrderStore interface {
	CreateOrder(ctx context.Context, order domain.BoostOrder) error
	GetOrder(ctx context.Context, id string) (*domain.BoostOrder, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.BoostOrder, error)
	TransitionOrder(ctx context.Context, t domain.Transition, at time.Time) (*domain.BoostOrder, error)
}

// TicketStore persists support tickets and their responses.
type TicketStore interface {
	CreateTicket(ctx context.Context, ticket domain.SupportTicket) error
	GetTicket(ctx context.Context, id string) (*domain.SupportTicket, error)
	ListTickets(ctx context.Context, userID string) ([]domain.SupportTicket, error)
	AppendResponse(ctx context.Context, ticketID string, resp domain.SupportResponse) error
	UpdateTicketStatus(ctx context.Context, id string, from, to domain.TicketStatus) error
}

// ProfileStore persists user profiles.
type ProfileStore interface {
	EnsureProfile(ctx context.Context, profile domain.Profile) (*domain.Profile, error)
	GetProfile(ctx context.Context, id string) (*domain.Profile, error)
	ListProfiles(ctx context.Context) ([]domain.Profile, error)
	UpdateRole(ctx context.Context, id string, role domain.Role) error
}

// LocalStore keeps per-user browsing state.
type LocalStore interface {
	AppendHistory(ctx context.Context, userID string, entry domain.NavigationEntry) error
	History(ctx context.Context, userID string) ([]domain.NavigationEntry, error)
	SetPreference(ctx context.Context, userID, key, value string) error
	Preferences(ctx context.Context, userID string) (map[string]string, error)
}

// EventPublisher delivers order events to live subscribers.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error
}
