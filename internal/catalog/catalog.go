// Package catalog holds the static per-game rank ladders and urgency tiers.
// A Catalog is built once at start-up and never mutated, so it is safe to
// share between goroutines.
package catalog

import (
	"fmt"

	"github.com/boost-marketplace/internal/config"
	"github.com/boost-marketplace/internal/domain"
)

// Catalog is a read-only lookup of rank ladders and urgency tiers
type Catalog struct {
	games     []domain.GameInfo
	ranks     map[domain.Game][]domain.Rank
	index     map[domain.Game]map[string]int
	urgencies map[domain.Urgency]domain.UrgencyTier
}

// New builds a catalog from configuration.
func New(cfg *config.CatalogConfig) (*Catalog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating catalog: %w", err)
	}

	c := &Catalog{
		games:     make([]domain.GameInfo, 0, len(cfg.Games)),
		ranks:     make(map[domain.Game][]domain.Rank, len(cfg.Games)),
		index:     make(map[domain.Game]map[string]int, len(cfg.Games)),
		urgencies: make(map[domain.Urgency]domain.UrgencyTier, len(cfg.Urgencies)),
	}

	for _, g := range cfg.Games {
		ranks := make([]domain.Rank, len(g.Ranks))
		copy(ranks, g.Ranks)
		idx := make(map[string]int, len(ranks))
		for i, r := range ranks {
			idx[r.ID] = i
		}
		c.ranks[g.ID] = ranks
		c.index[g.ID] = idx
		c.games = append(c.games, domain.GameInfo{ID: g.ID, Name: g.Name})
	}

	for _, u := range cfg.Urgencies {
		c.urgencies[u.ID] = domain.UrgencyTier{
			Urgency:    u.ID,
			Label:      u.Label,
			Multiplier: u.Multiplier,
			ETA:        u.ETA,
		}
	}

	return c, nil
}

// Default builds a catalog from the stock configuration.
func Default() *Catalog {
	cfg := config.CatalogConfig{
		Games:     config.DefaultGames(),
		Urgencies: config.DefaultUrgencies(),
	}
	c, err := New(&cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// Ranks returns the ordered ladder for a game, or nil for an unknown game.
// The returned slice is a copy.
func (c *Catalog) Ranks(game domain.Game) []domain.Rank {
	ranks, ok := c.ranks[game]
	if !ok {
		return nil
	}
	out := make([]domain.Rank, len(ranks))
	copy(out, ranks)
	return out
}

// Games lists the configured games in configuration order.
func (c *Catalog) Games() []domain.GameInfo {
	out := make([]domain.GameInfo, len(c.games))
	copy(out, c.games)
	return out
}

// Lookup returns a game with its ladder.
func (c *Catalog) Lookup(game domain.Game) (domain.GameInfo, error) {
	for _, g := range c.games {
		if g.ID == game {
			g.Ranks = c.Ranks(game)
			return g, nil
		}
	}
	return domain.GameInfo{}, domain.ErrUnknownGame
}

// HasGame reports whether the game is configured.
func (c *Catalog) HasGame(game domain.Game) bool {
	_, ok := c.ranks[game]
	return ok
}

// IndexOf returns the position of a rank in its game's ladder.
func (c *Catalog) IndexOf(game domain.Game, rankID string) (int, bool) {
	idx, ok := c.index[game]
	if !ok {
		return -1, false
	}
	i, ok := idx[rankID]
	if !ok {
		return -1, false
	}
	return i, true
}

// RankName returns the display name of a rank, or the id itself when unknown.
func (c *Catalog) RankName(game domain.Game, rankID string) string {
	i, ok := c.IndexOf(game, rankID)
	if !ok {
		return rankID
	}
	return c.ranks[game][i].Name
}

// StepPrices returns the step costs for ranks in [from, to).
func (c *Catalog) StepPrices(game domain.Game, from, to int) []int64 {
	ranks := c.ranks[game]
	if from < 0 || to > len(ranks) || from >= to {
		return nil
	}
	out := make([]int64, 0, to-from)
	for _, r := range ranks[from:to] {
		out = append(out, r.Price)
	}
	return out
}

// Urgency returns the tier for an urgency.
func (c *Catalog) Urgency(u domain.Urgency) (domain.UrgencyTier, bool) {
	t, ok := c.urgencies[u]
	return t, ok
}

// Urgencies lists the tiers from slowest to fastest.
func (c *Catalog) Urgencies() []domain.UrgencyTier {
	out := make([]domain.UrgencyTier, 0, len(c.urgencies))
	for _, u := range domain.Urgencies {
		if t, ok := c.urgencies[u]; ok {
			out = append(out, t)
		}
	}
	return out
}

// DecorateOrder attaches rank names and the status badge to an order.
func (c *Catalog) DecorateOrder(o domain.BoostOrder) domain.OrderView {
	return domain.OrderView{
		BoostOrder:      o,
		CurrentRankName: c.RankName(o.Game, o.CurrentRank),
		DesiredRankName: c.RankName(o.Game, o.DesiredRank),
		Badge:           domain.StatusBadge(o.Status),
	}
}
