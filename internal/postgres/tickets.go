package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/boost-marketplace/internal/domain"
)

const ticketColumns = `id, user_id, subject, message, category, status, created_at`

const responseColumns = `id, ticket_id, author_id, message, is_admin, created_at`

func scanTicket(row rowScanner) (*domain.SupportTicket, error) {
	var (
		t      domain.SupportTicket
		status string
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Subject, &t.Message, &t.Category, &status, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Status = domain.TicketStatus(status)
	t.Responses = []domain.SupportResponse{}
	return &t, nil
}

const insertTicketQuery = `
	INSERT INTO tickets (` + ticketColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

const insertResponseQuery = `
	INSERT INTO ticket_responses (` + responseColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6)
`

func ticketArgs(t domain.SupportTicket) []any {
	return []any{t.ID, t.UserID, t.Subject, t.Message, t.Category, string(t.Status), t.CreatedAt}
}

func responseArgs(ticketID string, resp domain.SupportResponse) []any {
	return []any{resp.ID, ticketID, resp.AuthorID, resp.Message, resp.IsAdmin, resp.CreatedAt}
}

// CreateTicket inserts a new ticket
func (r *Repository) CreateTicket(ctx context.Context, ticket domain.SupportTicket) error {
	if _, err := r.pool.Exec(ctx, insertTicketQuery, ticketArgs(ticket)...); err != nil {
		return fmt.Errorf("creating ticket: %w", err)
	}
	return nil
}

// GetTicket retrieves a ticket with its responses
func (r *Repository) GetTicket(ctx context.Context, id string) (*domain.SupportTicket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`
	t, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, fmt.Errorf("getting ticket: %w", err)
	}

	responses, err := r.responsesFor(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	t.Responses = append(t.Responses, responses[id]...)
	return t, nil
}

// ListTickets retrieves tickets newest first. An empty userID lists every ticket.
func (r *Repository) ListTickets(ctx context.Context, userID string) ([]domain.SupportTicket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tickets: %w", err)
	}
	defer rows.Close()

	tickets := []domain.SupportTicket{}
	var ids []string
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ticket: %w", err)
		}
		tickets = append(tickets, *t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tickets: %w", err)
	}
	if len(ids) == 0 {
		return tickets, nil
	}

	responses, err := r.responsesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range tickets {
		tickets[i].Responses = append(tickets[i].Responses, responses[tickets[i].ID]...)
	}
	return tickets, nil
}

func (r *Repository) responsesFor(ctx context.Context, ticketIDs []string) (map[string][]domain.SupportResponse, error) {
	query := `SELECT ` + responseColumns + ` FROM ticket_responses WHERE ticket_id = ANY($1) ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, ticketIDs)
	if err != nil {
		return nil, fmt.Errorf("listing ticket responses: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.SupportResponse, len(ticketIDs))
	for rows.Next() {
		var (
			resp     domain.SupportResponse
			ticketID string
		)
		if err := rows.Scan(&resp.ID, &ticketID, &resp.AuthorID, &resp.Message, &resp.IsAdmin, &resp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning ticket response: %w", err)
		}
		out[ticketID] = append(out[ticketID], resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ticket responses: %w", err)
	}
	return out, nil
}

// AppendResponse adds a response to a ticket that is not closed
func (r *Repository) AppendResponse(ctx context.Context, ticketID string, resp domain.SupportResponse) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM tickets WHERE id = $1 FOR UPDATE`, ticketID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrTicketNotFound
		}
		return fmt.Errorf("locking ticket: %w", err)
	}
	if domain.TicketStatus(status) == domain.TicketStatusClosed {
		return domain.ErrTicketClosed
	}

	if _, err := tx.Exec(ctx, insertResponseQuery, responseArgs(ticketID, resp)...); err != nil {
		return fmt.Errorf("appending response: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing response: %w", err)
	}
	return nil
}

// UpdateTicketStatus moves a ticket from one status to another if it is still in from
func (r *Repository) UpdateTicketStatus(ctx context.Context, id string, from, to domain.TicketStatus) error {
	query := `UPDATE tickets SET status = $1 WHERE id = $2 AND status = $3`
	result, err := r.pool.Exec(ctx, query, string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("updating ticket status: %w", err)
	}
	if result.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking ticket existence: %w", err)
	}
	if !exists {
		return domain.ErrTicketNotFound
	}
	return domain.ErrInvalidTransition
}

// ImportTickets inserts tickets and their responses that are not yet stored
func (r *Repository) ImportTickets(ctx context.Context, tickets []domain.SupportTicket) (int, error) {
	if len(tickets) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, t := range tickets {
		batch.Queue(insertTicketQuery+` ON CONFLICT (id) DO NOTHING`, ticketArgs(t)...)
		for _, resp := range t.Responses {
			batch.Queue(insertResponseQuery+` ON CONFLICT (id) DO NOTHING`, responseArgs(t.ID, resp)...)
		}
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	imported := 0
	for _, t := range tickets {
		tag, err := br.Exec()
		if err != nil {
			return imported, fmt.Errorf("importing tickets: %w", err)
		}
		imported += int(tag.RowsAffected())
		for range t.Responses {
			if _, err := br.Exec(); err != nil {
				return imported, fmt.Errorf("importing ticket responses: %w", err)
			}
		}
	}
	return imported, nil
}
