package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/boost-marketplace/internal/domain"
	"github.com/boost-marketplace/internal/metrics"
)

// TicketService provides business logic for support tickets
type TicketService struct {
	store  TicketStore
	logger *slog.Logger
	now    func() time.Time
}

// NewTicketService creates a new ticket service
func NewTicketService(store TicketStore, logger *slog.Logger) *TicketService {
	return &TicketService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Create files a new open ticket for the session's user.
func (s *TicketService) Create(ctx context.Context, sess domain.Session, req domain.CreateTicketRequest) (*domain.SupportTicket, error) {
	if !sess.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ticket := domain.SupportTicket{
		ID:        uuid.NewString(),
		UserID:    sess.UserID,
		Subject:   domain.TicketSubject(req.Category, req.Subject),
		Message:   req.Message,
		Category:  req.Category,
		Status:    domain.TicketStatusOpen,
		CreatedAt: s.now().UTC(),
		Responses: []domain.SupportResponse{},
	}
	if err := s.store.CreateTicket(ctx, ticket); err != nil {
		return nil, fmt.Errorf("creating ticket: %w", err)
	}

	metrics.RecordTicketCreated()
	s.logger.Info("ticket created", "ticket_id", ticket.ID, "user_id", ticket.UserID, "category", ticket.Category)
	return &ticket, nil
}

// List returns the session's own tickets, or every ticket for an admin.
func (s *TicketService) List(ctx context.Context, sess domain.Session) ([]domain.SupportTicket, error) {
	if !sess.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}

	userID := sess.UserID
	if sess.IsAdmin() {
		userID = ""
	}
	tickets, err := s.store.ListTickets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing tickets: %w", err)
	}

	visible := tickets[:0]
	for _, t := range tickets {
		if domain.CanViewTicket(sess, t) {
			visible = append(visible, t)
		}
	}
	return visible, nil
}

// Get returns a ticket visible to the session.
func (s *TicketService) Get(ctx context.Context, sess domain.Session, id string) (*domain.SupportTicket, error) {
	if !sess.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}

	t, err := s.store.GetTicket(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting ticket: %w", err)
	}
	if !domain.CanViewTicket(sess, *t) {
		return nil, domain.ErrTicketNotFound
	}
	return t, nil
}

// Respond appends a reply from the ticket owner or an admin.
func (s *TicketService) Respond(ctx context.Context, sess domain.Session, ticketID, message string) (*domain.SupportTicket, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, domain.Required("message")
	}

	if _, err := s.Get(ctx, sess, ticketID); err != nil {
		return nil, err
	}

	resp := domain.SupportResponse{
		ID:        uuid.NewString(),
		AuthorID:  sess.UserID,
		Message:   message,
		IsAdmin:   sess.IsAdmin(),
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.AppendResponse(ctx, ticketID, resp); err != nil {
		return nil, fmt.Errorf("appending response: %w", err)
	}

	return s.Get(ctx, sess, ticketID)
}

// SetStatus moves a ticket forward. Admin only.
func (s *TicketService) SetStatus(ctx context.Context, sess domain.Session, id string, status domain.TicketStatus) (*domain.SupportTicket, error) {
	if !sess.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	if !sess.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if !status.Valid() {
		return nil, &domain.ValidationError{Field: "status", Reason: "must be open, in-progress or closed"}
	}

	t, err := s.Get(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if !t.Status.CanTransition(status) {
		return nil, domain.ErrInvalidTransition
	}

	if err := s.store.UpdateTicketStatus(ctx, id, t.Status, status); err != nil {
		return nil, fmt.Errorf("updating ticket status: %w", err)
	}
	s.logger.Info("ticket status changed", "ticket_id", id, "from", t.Status, "to", status)

	t.Status = status
	return t, nil
}
