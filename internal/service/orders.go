package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/boost-marketplace/internal/catalog"
	"github.com/boost-marketplace/internal/domain"
	"github.com/boost-marketplace/internal/metrics"
	"github.com/boost-marketplace/internal/pricing"
)

// OrderService provides business logic for boost orders
type OrderService struct {
	store     OrderStore
	catalog   *catalog.Catalog
	engine    *pricing.Engine
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewOrderService creates a new order service. publisher may be nil.
func NewOrderService(
	store OrderStore,
	cat *catalog.Catalog,
	engine *pricing.Engine,
	publisher EventPublisher,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		store:     store,
		catalog:   cat,
		engine:    engine,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit validates and prices a new order and stores it as pending.
func (s *OrderService) Submit(ctx context.Context, sess domain.Session, req domain.SubmitOrderRequest) (*domain.BoostOrder, error) {
	if !sess.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !s.catalog.HasGame(req.Game) {
		return nil, &domain.ValidationError{Field: "game", Reason: "unknown game"}
	}

	price := s.engine.Price(req.Game, req.CurrentRank, req.DesiredRank, req.Urgency)
	if price == 0 {
		return nil, domain.ErrInvalidRankOrder
	}

	now := s.now().UTC()
	order := domain.BoostOrder{
		ID:          uuid.NewString(),
		UserID:      sess.UserID,
		Game:        req.Game,
		CurrentRank: req.CurrentRank,
		DesiredRank: req.DesiredRank,
		Budget:      req.Budget,
		Price:       price,
		Urgency:     req.Urgency,
		Status:      domain.OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}

	metrics.RecordOrderSubmitted(string(order.Game), string(order.Urgency), order.Price)
	s.logger.Info("order submitted",
		"order_id", order.ID,
		"user_id", order.UserID,
		"game", order.Game,
		"price", order.Price,
	)
	s.publish(ctx, domain.OrderEventCreated, order, sess.UserID)

	return &order, nil
}

// List returns the orders the session is entitled to see, newest first.
func (s *OrderService) List(ctx context.Context, sess domain.Session, status domain.OrderStatus) ([]domain.BoostOrder, error) {
	if !sess.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}

	filter := domain.FilterFor(sess)
	filter.Status = status

	orders, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return domain.VisibleOrders(orders, sess), nil
}

// Get returns a single order. Orders the session may not see are reported as missing.
func (s *OrderService) Get(ctx context.Context, sess domain.Session, id string) (*domain.BoostOrder, error) {
	if !sess.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}

	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	if !domain.CanViewOrder(sess, *o) {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

// Accept assigns a pending order to the calling booster.
func (s *OrderService) Accept(ctx context.Context, sess domain.Session, id string) (*domain.BoostOrder, error) {
	return s.transition(ctx, sess, id, domain.PlanAccept)
}

// Complete marks an in-progress order as completed.
func (s *OrderService) Complete(ctx context.Context, sess domain.Session, id string) (*domain.BoostOrder, error) {
	return s.transition(ctx, sess, id, domain.PlanComplete)
}

// Cancel withdraws a pending order.
func (s *OrderService) Cancel(ctx context.Context, sess domain.Session, id string) (*domain.BoostOrder, error) {
	return s.transition(ctx, sess, id, domain.PlanCancel)
}

type planFunc func(domain.Session, domain.BoostOrder) (domain.Transition, error)

func (s *OrderService) transition(ctx context.Context, sess domain.Session, id string, plan planFunc) (*domain.BoostOrder, error) {
	current, err := s.Get(ctx, sess, id)
	if err != nil {
		return nil, err
	}

	t, err := plan(sess, *current)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.TransitionOrder(ctx, t, s.now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrOrderConflict) {
			metrics.RecordTransition(string(t.To), "conflict")
			s.logger.Warn("order transition lost a race",
				"order_id", id,
				"to", t.To,
				"user_id", sess.UserID,
			)
		}
		return nil, fmt.Errorf("transitioning order: %w", err)
	}

	metrics.RecordTransition(string(t.To), "applied")
	s.logger.Info("order status changed",
		"order_id", updated.ID,
		"from", t.From,
		"to", updated.Status,
		"user_id", sess.UserID,
	)
	s.publish(ctx, domain.OrderEventUpdated, *updated, sess.UserID)

	return updated, nil
}

func (s *OrderService) publish(ctx context.Context, typ domain.OrderEventType, order domain.BoostOrder, actorID string) {
	if s.publisher == nil {
		return
	}
	event := domain.OrderEvent{
		Type:      typ,
		Order:     order,
		ActorID:   actorID,
		Timestamp: s.now().UTC(),
	}
	if err := s.publisher.PublishOrderEvent(ctx, event); err != nil {
		// The order is already stored; subscribers catch up on their next listing.
		s.logger.Warn("failed to publish order event", "order_id", order.ID, "type", typ, "error", err)
	}
}
