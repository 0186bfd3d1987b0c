package domain

import (
	"fmt"
	"strings"
	"time"
)

// TicketStatus represents the state of a support ticket
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in-progress"
	TicketStatusClosed     TicketStatus = "closed"
)

// CanTransition reports whether moving from s to next is allowed.
func (s TicketStatus) CanTransition(next TicketStatus) bool {
	switch s {
	case TicketStatusOpen:
		return next == TicketStatusInProgress || next == TicketStatusClosed
	case TicketStatusInProgress:
		return next == TicketStatusClosed
	}
	return false
}

// Valid reports whether s is a known ticket status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusClosed:
		return true
	}
	return false
}

// DefaultTicketCategory is used when a ticket is filed without a category.
const DefaultTicketCategory = "general"

// SupportTicket represents a user support request
type SupportTicket struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Subject   string            `json:"subject"`
	Message   string            `json:"message"`
	Category  string            `json:"category"`
	Status    TicketStatus      `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	Responses []SupportResponse `json:"responses"`
}

// SupportResponse is one reply appended to a ticket
type SupportResponse struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Message   string    `json:"message"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateTicketRequest is the form state for a new ticket
type CreateTicketRequest struct {
	Subject  string `json:"subject"`
	Message  string `json:"message"`
	Category string `json:"category,omitempty"`
}

// Normalize trims input and applies the default category.
func (r *CreateTicketRequest) Normalize() {
	r.Subject = strings.TrimSpace(r.Subject)
	r.Message = strings.TrimSpace(r.Message)
	r.Category = strings.ToLower(strings.TrimSpace(r.Category))
	if r.Category == "" {
		r.Category = DefaultTicketCategory
	}
}

// Validate checks that subject and message are present.
func (r *CreateTicketRequest) Validate() error {
	if r.Subject == "" {
		return Required("subject")
	}
	if r.Message == "" {
		return Required("message")
	}
	return nil
}

// TicketSubject prefixes the subject with its upper-cased category.
func TicketSubject(category, subject string) string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(category), subject)
}

// CanViewTicket reports whether the session may see the ticket.
func CanViewTicket(s Session, t SupportTicket) bool {
	if !s.Authenticated() {
		return false
	}
	return s.IsAdmin() || t.UserID == s.UserID
}

// NavigationEntry records a visited path
type NavigationEntry struct {
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

// MaxNavigationHistory is the number of entries kept per user.
const MaxNavigationHistory = 50
