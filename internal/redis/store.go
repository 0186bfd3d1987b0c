package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/boost-marketplace/internal/config"
	"github.com/boost-marketplace/internal/domain"
)

// maxWatchRetries bounds optimistic retries when a watched key changes underneath us.
const maxWatchRetries = 5

// Store keeps orders, tickets and per-user browsing state in Redis. Each
// order and ticket is a JSON value under its own key, listed through a
// sorted-set index scored by creation time.
type Store struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewStore creates a new Redis-backed local store
func NewStore(cfg *config.RedisConfig, logger *slog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return newStore(client, cfg.KeyPrefix, logger), nil
}

func newStore(client *redis.Client, prefix string, logger *slog.Logger) *Store {
	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) ordersIndexKey() string {
	return fmt.Sprintf("%s:orders", s.prefix)
}

func (s *Store) orderKey(id string) string {
	return fmt.Sprintf("%s:order:%s", s.prefix, id)
}

func (s *Store) ticketsIndexKey() string {
	return fmt.Sprintf("%s:tickets", s.prefix)
}

func (s *Store) ticketKey(id string) string {
	return fmt.Sprintf("%s:ticket:%s", s.prefix, id)
}

func (s *Store) responsesKey(ticketID string) string {
	return fmt.Sprintf("%s:ticket:%s:responses", s.prefix, ticketID)
}

func (s *Store) historyKey(userID string) string {
	return fmt.Sprintf("%s:user:%s:history", s.prefix, userID)
}

func (s *Store) preferencesKey(userID string) string {
	return fmt.Sprintf("%s:user:%s:preferences", s.prefix, userID)
}

// indexScore orders records by creation time. Microseconds stay exact in a float64 score.
func indexScore(t time.Time) float64 {
	return float64(t.UnixMicro())
}

// update runs fn inside a WATCH on a single record key and retries when
// another writer changed that record first. conflict is returned once the
// retries are spent.
func (s *Store) update(ctx context.Context, key string, conflict error, fn func(tx *redis.Tx) error) error {
	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := s.client.Watch(ctx, fn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		s.logger.Debug("watched key changed, retrying", "key", key, "attempt", attempt+1)
	}
	return conflict
}

// CreateOrder stores a new order and adds it to the creation-time index
func (s *Store) CreateOrder(ctx context.Context, order domain.BoostOrder) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encoding order: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.orderKey(order.ID), data, 0)
		pipe.ZAdd(ctx, s.ordersIndexKey(), redis.Z{Score: indexScore(order.CreatedAt), Member: order.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("creating order: %w", err)
	}
	return nil
}

func decodeOrder(raw []byte) (*domain.BoostOrder, error) {
	var o domain.BoostOrder
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("decoding order: %w", err)
	}
	return &o, nil
}

func getOrder(ctx context.Context, c redis.Cmdable, key string) (*domain.BoostOrder, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}
	return decodeOrder(raw)
}

// GetOrder retrieves an order by ID
func (s *Store) GetOrder(ctx context.Context, id string) (*domain.BoostOrder, error) {
	return getOrder(ctx, s.client, s.orderKey(id))
}

// AllOrders returns every stored order, newest first
func (s *Store) AllOrders(ctx context.Context) ([]domain.BoostOrder, error) {
	ids, err := s.client.ZRevRange(ctx, s.ordersIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	if len(ids) == 0 {
		return []domain.BoostOrder{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.orderKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("loading orders: %w", err)
	}

	orders := make([]domain.BoostOrder, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// indexed but deleted
			continue
		}
		o, err := decodeOrder([]byte(raw))
		if err != nil {
			s.logger.Warn("skipping undecodable order", "order_id", ids[i], "error", err)
			continue
		}
		orders = append(orders, *o)
	}
	return orders, nil
}

// ListOrders retrieves orders matching the filter, newest first
func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.BoostOrder, error) {
	all, err := s.AllOrders(ctx)
	if err != nil {
		return nil, err
	}
	orders := all[:0]
	for _, o := range all {
		if filter.Matches(o) {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

// TransitionOrder applies a status change only if the order is still in the
// transition's From status. Only writes to the same order can conflict.
func (s *Store) TransitionOrder(ctx context.Context, t domain.Transition, at time.Time) (*domain.BoostOrder, error) {
	key := s.orderKey(t.OrderID)
	var updated domain.BoostOrder

	err := s.update(ctx, key, domain.ErrOrderConflict, func(tx *redis.Tx) error {
		o, err := getOrder(ctx, tx, key)
		if err != nil {
			return err
		}
		if o.Status != t.From {
			return domain.ErrOrderConflict
		}
		updated = t.Apply(*o, at)

		data, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("encoding order: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// CreateTicket stores a new ticket. Responses live in their own list so
// replies never rewrite the ticket record.
func (s *Store) CreateTicket(ctx context.Context, ticket domain.SupportTicket) error {
	responses := ticket.Responses
	ticket.Responses = nil
	data, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("encoding ticket: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.ticketKey(ticket.ID), data, 0)
		for _, resp := range responses {
			raw, err := json.Marshal(resp)
			if err != nil {
				return fmt.Errorf("encoding response: %w", err)
			}
			pipe.RPush(ctx, s.responsesKey(ticket.ID), raw)
		}
		pipe.ZAdd(ctx, s.ticketsIndexKey(), redis.Z{Score: indexScore(ticket.CreatedAt), Member: ticket.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("creating ticket: %w", err)
	}
	return nil
}

func decodeTicket(raw []byte, responses []string) (*domain.SupportTicket, error) {
	var t domain.SupportTicket
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decoding ticket: %w", err)
	}
	t.Responses = make([]domain.SupportResponse, 0, len(responses))
	for _, r := range responses {
		var resp domain.SupportResponse
		if err := json.Unmarshal([]byte(r), &resp); err != nil {
			return nil, fmt.Errorf("decoding response of ticket %s: %w", t.ID, err)
		}
		t.Responses = append(t.Responses, resp)
	}
	return &t, nil
}

// getTicketRecord reads the ticket without its responses
func getTicketRecord(ctx context.Context, c redis.Cmdable, key string) (*domain.SupportTicket, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, fmt.Errorf("getting ticket: %w", err)
	}
	return decodeTicket(raw, nil)
}

// GetTicket retrieves a ticket and its responses by ID
func (s *Store) GetTicket(ctx context.Context, id string) (*domain.SupportTicket, error) {
	tickets, err := s.loadTickets(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, domain.ErrTicketNotFound
	}
	return &tickets[0], nil
}

// loadTickets reads tickets and their responses in one round trip. Ids
// without a ticket record are skipped.
func (s *Store) loadTickets(ctx context.Context, ids []string) ([]domain.SupportTicket, error) {
	type pending struct {
		record    *redis.StringCmd
		responses *redis.StringSliceCmd
	}
	cmds := make([]pending, len(ids))

	pipe := s.client.Pipeline()
	for i, id := range ids {
		cmds[i] = pending{
			record:    pipe.Get(ctx, s.ticketKey(id)),
			responses: pipe.LRange(ctx, s.responsesKey(id), 0, -1),
		}
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("loading tickets: %w", err)
	}

	tickets := make([]domain.SupportTicket, 0, len(ids))
	for i, c := range cmds {
		raw, err := c.record.Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("getting ticket: %w", err)
		}
		t, err := decodeTicket(raw, c.responses.Val())
		if err != nil {
			s.logger.Warn("skipping undecodable ticket", "ticket_id", ids[i], "error", err)
			continue
		}
		tickets = append(tickets, *t)
	}
	return tickets, nil
}

// AllTickets returns every stored ticket, newest first
func (s *Store) AllTickets(ctx context.Context) ([]domain.SupportTicket, error) {
	ids, err := s.client.ZRevRange(ctx, s.ticketsIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing tickets: %w", err)
	}
	if len(ids) == 0 {
		return []domain.SupportTicket{}, nil
	}
	return s.loadTickets(ctx, ids)
}

// ListTickets returns the tickets filed by userID, or all tickets when userID is empty
func (s *Store) ListTickets(ctx context.Context, userID string) ([]domain.SupportTicket, error) {
	all, err := s.AllTickets(ctx)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return all, nil
	}
	tickets := all[:0]
	for _, t := range all {
		if t.UserID == userID {
			tickets = append(tickets, t)
		}
	}
	return tickets, nil
}

// AppendResponse adds a response to a ticket that is not closed. The ticket
// record is watched so a concurrent close is never missed; replies only push
// to the response list and do not conflict with each other.
func (s *Store) AppendResponse(ctx context.Context, ticketID string, resp domain.SupportResponse) error {
	key := s.ticketKey(ticketID)
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}

	return s.update(ctx, key, domain.ErrTicketConflict, func(tx *redis.Tx) error {
		t, err := getTicketRecord(ctx, tx, key)
		if err != nil {
			return err
		}
		if t.Status == domain.TicketStatusClosed {
			return domain.ErrTicketClosed
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, s.responsesKey(ticketID), data)
			return nil
		})
		return err
	})
}

// UpdateTicketStatus moves a ticket from one status to another if it is still in from
func (s *Store) UpdateTicketStatus(ctx context.Context, id string, from, to domain.TicketStatus) error {
	key := s.ticketKey(id)
	return s.update(ctx, key, domain.ErrTicketConflict, func(tx *redis.Tx) error {
		t, err := getTicketRecord(ctx, tx, key)
		if err != nil {
			return err
		}
		if t.Status != from {
			return domain.ErrInvalidTransition
		}
		t.Status = to
		t.Responses = nil

		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encoding ticket: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	})
}

// AppendHistory records a visited path, keeping only the most recent entries
func (s *Store) AppendHistory(ctx context.Context, userID string, entry domain.NavigationEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding history entry: %w", err)
	}

	key := s.historyKey(userID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -domain.MaxNavigationHistory, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending history: %w", err)
	}
	return nil
}

// History returns a user's navigation history, oldest first
func (s *Store) History(ctx context.Context, userID string) ([]domain.NavigationEntry, error) {
	values, err := s.client.LRange(ctx, s.historyKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("getting history: %w", err)
	}

	entries := make([]domain.NavigationEntry, 0, len(values))
	for _, v := range values {
		var e domain.NavigationEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// SetPreference stores a single user preference
func (s *Store) SetPreference(ctx context.Context, userID, key, value string) error {
	if err := s.client.HSet(ctx, s.preferencesKey(userID), key, value).Err(); err != nil {
		return fmt.Errorf("setting preference: %w", err)
	}
	return nil
}

// Preferences returns all of a user's stored preferences
func (s *Store) Preferences(ctx context.Context, userID string) (map[string]string, error) {
	prefs, err := s.client.HGetAll(ctx, s.preferencesKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting preferences: %w", err)
	}
	return prefs, nil
}
