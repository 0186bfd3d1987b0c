package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/boost-marketplace/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]domain.BoostOrder
	// lastFilter records what the service asked the store for.
	lastFilter domain.OrderFilter
	failCreate error
}

func newMemOrders() *memOrders {
	return &memOrders{orders: map[string]domain.BoostOrder{}}
}

func (m *memOrders) CreateOrder(_ context.Context, o domain.BoostOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}
	m.orders[o.ID] = o
	return nil
}

func (m *memOrders) GetOrder(_ context.Context, id string) (*domain.BoostOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return &o, nil
}

func (m *memOrders) ListOrders(_ context.Context, f domain.OrderFilter) ([]domain.BoostOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = f
	out := []domain.BoostOrder{}
	for _, o := range m.orders {
		if f.Matches(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memOrders) TransitionOrder(_ context.Context, t domain.Transition, at time.Time) (*domain.BoostOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[t.OrderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	if o.Status != t.From {
		return nil, domain.ErrOrderConflict
	}
	o = t.Apply(o, at)
	m.orders[o.ID] = o
	return &o, nil
}

type memTickets struct {
	mu      sync.Mutex
	tickets map[string]domain.SupportTicket
}

func newMemTickets() *memTickets {
	return &memTickets{tickets: map[string]domain.SupportTicket{}}
}

func (m *memTickets) CreateTicket(_ context.Context, t domain.SupportTicket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.ID] = t
	return nil
}

func (m *memTickets) GetTicket(_ context.Context, id string) (*domain.SupportTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	t.Responses = append([]domain.SupportResponse(nil), t.Responses...)
	return &t, nil
}

func (m *memTickets) ListTickets(_ context.Context, userID string) ([]domain.SupportTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.SupportTicket{}
	for _, t := range m.tickets {
		if userID == "" || t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memTickets) AppendResponse(_ context.Context, id string, r domain.SupportResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return domain.ErrTicketNotFound
	}
	if t.Status == domain.TicketStatusClosed {
		return domain.ErrTicketClosed
	}
	t.Responses = append(t.Responses, r)
	m.tickets[id] = t
	return nil
}

func (m *memTickets) UpdateTicketStatus(_ context.Context, id string, from, to domain.TicketStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return domain.ErrTicketNotFound
	}
	if t.Status != from {
		return domain.ErrInvalidTransition
	}
	t.Status = to
	m.tickets[id] = t
	return nil
}

type memProfiles struct {
	mu       sync.Mutex
	profiles map[string]domain.Profile
}

func newMemProfiles(seed ...domain.Profile) *memProfiles {
	m := &memProfiles{profiles: map[string]domain.Profile{}}
	for _, p := range seed {
		m.profiles[p.ID] = p
	}
	return m
}

func (m *memProfiles) EnsureProfile(_ context.Context, p domain.Profile) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.profiles[p.ID]; ok {
		return &existing, nil
	}
	m.profiles[p.ID] = p
	return &p, nil
}

func (m *memProfiles) GetProfile(_ context.Context, id string) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return &p, nil
}

func (m *memProfiles) ListProfiles(_ context.Context) ([]domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memProfiles) UpdateRole(_ context.Context, id string, role domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return domain.ErrProfileNotFound
	}
	p.Role = role
	m.profiles[id] = p
	return nil
}

type memLocal struct {
	mu      sync.Mutex
	history map[string][]domain.NavigationEntry
	prefs   map[string]map[string]string
}

func newMemLocal() *memLocal {
	return &memLocal{
		history: map[string][]domain.NavigationEntry{},
		prefs:   map[string]map[string]string{},
	}
}

func (m *memLocal) AppendHistory(_ context.Context, userID string, e domain.NavigationEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[userID] = append(m.history[userID], e)
	return nil
}

func (m *memLocal) History(_ context.Context, userID string) ([]domain.NavigationEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.NavigationEntry{}, m.history[userID]...), nil
}

func (m *memLocal) SetPreference(_ context.Context, userID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prefs[userID] == nil {
		m.prefs[userID] = map[string]string{}
	}
	m.prefs[userID][key] = value
	return nil
}

func (m *memLocal) Preferences(_ context.Context, userID string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for k, v := range m.prefs[userID] {
		out[k] = v
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, e domain.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Events() []domain.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.OrderEvent(nil), p.events...)
}
