package domain

import (
	"strings"
	"time"
)

// OrderStatus represents the lifecycle state of a boost order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusInProgress OrderStatus = "in-progress"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// CanTransition reports whether moving from s to next is allowed.
// No transition is reversible.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusInProgress || next == OrderStatusCancelled
	case OrderStatusInProgress:
		return next == OrderStatusCompleted
	}
	return false
}

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusInProgress, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// BoostOrder represents a rank-boosting request
type BoostOrder struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	BoosterID   string      `json:"booster_id,omitempty"`
	Game        Game        `json:"game"`
	CurrentRank string      `json:"current_rank"`
	DesiredRank string      `json:"desired_rank"`
	Budget      float64     `json:"budget"`
	Price       int64       `json:"price"`
	Urgency     Urgency     `json:"urgency"`
	Status      OrderStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// SubmitOrderRequest is the form state collected for a new order
type SubmitOrderRequest struct {
	Game        Game    `json:"game"`
	CurrentRank string  `json:"current_rank"`
	DesiredRank string  `json:"desired_rank"`
	Budget      float64 `json:"budget"`
	Urgency     Urgency `json:"urgency,omitempty"`
}

// Normalize trims identifiers and applies the default urgency.
func (r *SubmitOrderRequest) Normalize() {
	r.Game = Game(strings.TrimSpace(string(r.Game)))
	r.CurrentRank = strings.TrimSpace(r.CurrentRank)
	r.DesiredRank = strings.TrimSpace(r.DesiredRank)
	if r.Urgency == "" {
		r.Urgency = UrgencyNormal
	}
}

// Validate checks that every required field is present.
func (r *SubmitOrderRequest) Validate() error {
	switch {
	case r.Game == "":
		return Required("game")
	case r.CurrentRank == "":
		return Required("current_rank")
	case r.DesiredRank == "":
		return Required("desired_rank")
	case r.Budget <= 0:
		return &ValidationError{Field: "budget", Reason: "must be greater than zero"}
	case !r.Urgency.Valid():
		return &ValidationError{Field: "urgency", Reason: "must be normal, fast or express"}
	}
	return nil
}

// Transition is a conditional status change. Stores apply it only while the
// order is still in From.
type Transition struct {
	OrderID   string
	From      OrderStatus
	To        OrderStatus
	BoosterID string
}

// PlanAccept validates a booster taking a pending order.
func PlanAccept(s Session, o BoostOrder) (Transition, error) {
	if !s.Authenticated() {
		return Transition{}, ErrUnauthenticated
	}
	if !s.IsStaff() {
		return Transition{}, ErrForbidden
	}
	if !o.Status.CanTransition(OrderStatusInProgress) {
		return Transition{}, ErrInvalidTransition
	}
	return Transition{
		OrderID:   o.ID,
		From:      OrderStatusPending,
		To:        OrderStatusInProgress,
		BoosterID: s.UserID,
	}, nil
}

// PlanComplete validates finishing an in-progress order. Only the assigned
// booster or an admin may complete it.
func PlanComplete(s Session, o BoostOrder) (Transition, error) {
	if !s.Authenticated() {
		return Transition{}, ErrUnauthenticated
	}
	if !s.IsStaff() {
		return Transition{}, ErrForbidden
	}
	if !o.Status.CanTransition(OrderStatusCompleted) {
		return Transition{}, ErrInvalidTransition
	}
	if !s.IsAdmin() && o.BoosterID != s.UserID {
		return Transition{}, ErrBoosterMismatch
	}
	return Transition{
		OrderID: o.ID,
		From:    OrderStatusInProgress,
		To:      OrderStatusCompleted,
	}, nil
}

// PlanCancel validates withdrawing a pending order by its owner or an admin.
func PlanCancel(s Session, o BoostOrder) (Transition, error) {
	if !s.Authenticated() {
		return Transition{}, ErrUnauthenticated
	}
	if !s.IsAdmin() && o.UserID != s.UserID {
		return Transition{}, ErrForbidden
	}
	if !o.Status.CanTransition(OrderStatusCancelled) {
		return Transition{}, ErrInvalidTransition
	}
	return Transition{
		OrderID: o.ID,
		From:    OrderStatusPending,
		To:      OrderStatusCancelled,
	}, nil
}

// Apply returns the order as it looks after t.
func (t Transition) Apply(o BoostOrder, at time.Time) BoostOrder {
	o.Status = t.To
	if t.BoosterID != "" && o.BoosterID == "" {
		o.BoosterID = t.BoosterID
	}
	o.UpdatedAt = at
	return o
}

// OrderFilter restricts an order listing. An empty UserID means all orders.
type OrderFilter struct {
	UserID string
	Status OrderStatus
}

// FilterFor derives the listing filter a session is entitled to.
func FilterFor(s Session) OrderFilter {
	if s.IsStaff() {
		return OrderFilter{}
	}
	return OrderFilter{UserID: s.UserID}
}

// Matches reports whether o passes the filter.
func (f OrderFilter) Matches(o BoostOrder) bool {
	if f.UserID != "" && o.UserID != f.UserID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	return true
}

// CanViewOrder reports whether the session may see the order.
func CanViewOrder(s Session, o BoostOrder) bool {
	if !s.Authenticated() {
		return false
	}
	return s.IsStaff() || o.UserID == s.UserID
}

// VisibleOrders returns the subset of orders the session may see, preserving order.
func VisibleOrders(orders []BoostOrder, s Session) []BoostOrder {
	visible := make([]BoostOrder, 0, len(orders))
	for _, o := range orders {
		if CanViewOrder(s, o) {
			visible = append(visible, o)
		}
	}
	return visible
}

var statusBadges = map[OrderStatus]Badge{
	OrderStatusPending:    {Label: "Pending", Style: "yellow"},
	OrderStatusInProgress: {Label: "In Progress", Style: "blue"},
	OrderStatusCompleted:  {Label: "Completed", Style: "green"},
	OrderStatusCancelled:  {Label: "Cancelled", Style: "red"},
}

// StatusBadge returns the badge for an order status. Unknown statuses render as pending.
func StatusBadge(s OrderStatus) Badge {
	if b, ok := statusBadges[s]; ok {
		return b
	}
	return statusBadges[OrderStatusPending]
}

// OrderView is an order decorated for display
type OrderView struct {
	BoostOrder
	CurrentRankName string `json:"current_rank_name"`
	DesiredRankName string `json:"desired_rank_name"`
	Badge           Badge  `json:"badge"`
}

// OrderEventType names an order lifecycle event
type OrderEventType string

const (
	OrderEventCreated OrderEventType = "order_created"
	OrderEventUpdated OrderEventType = "order_updated"
)

// OrderEvent is published whenever an order is created or changes status
type OrderEvent struct {
	Type      OrderEventType `json:"type"`
	Order     BoostOrder     `json:"order"`
	ActorID   string         `json:"actor_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
