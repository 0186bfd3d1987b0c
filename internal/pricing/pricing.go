// Package pricing computes rank-boost quotes from the catalog.
package pricing

import (
	"math"

	"github.com/boost-marketplace/internal/catalog"
	"github.com/boost-marketplace/internal/domain"
)

// QuoteRequest identifies a rank climb to price
type QuoteRequest struct {
	Game        domain.Game    `json:"game"`
	CurrentRank string         `json:"current_rank"`
	DesiredRank string         `json:"desired_rank"`
	Urgency     domain.Urgency `json:"urgency,omitempty"`
}

// Quote is the priced result of a QuoteRequest
type Quote struct {
	QuoteRequest
	CurrentRankName string  `json:"current_rank_name,omitempty"`
	DesiredRankName string  `json:"desired_rank_name,omitempty"`
	Steps           int     `json:"steps"`
	Subtotal        int64   `json:"subtotal"`
	Multiplier      float64 `json:"multiplier"`
	Price           int64   `json:"price"`
	ETA             string  `json:"eta,omitempty"`
	Submittable     bool    `json:"submittable"`
}

// Engine prices orders. It holds no mutable state.
type Engine struct {
	catalog *catalog.Catalog
}

// NewEngine creates a pricing engine over a catalog
func NewEngine(c *catalog.Catalog) *Engine {
	return &Engine{catalog: c}
}

// Price returns the whole-unit price of climbing from currentRank to
// desiredRank, or 0 when the climb is not billable.
func (e *Engine) Price(game domain.Game, currentRank, desiredRank string, urgency domain.Urgency) int64 {
	return e.Quote(QuoteRequest{
		Game:        game,
		CurrentRank: currentRank,
		DesiredRank: desiredRank,
		Urgency:     urgency,
	}).Price
}

// Quote prices a request and reports the details shown before submission.
func (e *Engine) Quote(req QuoteRequest) Quote {
	if req.Urgency == "" {
		req.Urgency = domain.UrgencyNormal
	}
	q := Quote{QuoteRequest: req}

	tier, ok := e.catalog.Urgency(req.Urgency)
	if !ok {
		return q
	}
	q.Multiplier = tier.Multiplier
	q.ETA = tier.ETA

	from, okFrom := e.catalog.IndexOf(req.Game, req.CurrentRank)
	to, okTo := e.catalog.IndexOf(req.Game, req.DesiredRank)
	if okFrom {
		q.CurrentRankName = e.catalog.RankName(req.Game, req.CurrentRank)
	}
	if okTo {
		q.DesiredRankName = e.catalog.RankName(req.Game, req.DesiredRank)
	}
	if !okFrom || !okTo || to <= from {
		return q
	}

	var subtotal int64
	for _, p := range e.catalog.StepPrices(req.Game, from, to) {
		subtotal += p
	}

	q.Steps = to - from
	q.Subtotal = subtotal
	q.Price = int64(math.Round(float64(subtotal) * tier.Multiplier))
	q.Submittable = q.Price > 0
	return q
}
