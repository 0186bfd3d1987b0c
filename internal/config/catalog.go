package config

import (
	"fmt"

	"github.com/boost-marketplace/internal/domain"
)

// CatalogConfig holds the rank tables and urgency tiers. These are business
// values and are expected to change without code changes.
type CatalogConfig struct {
	Games     []GameConfig    `yaml:"games"`
	Urgencies []UrgencyConfig `yaml:"urgencies"`
}

// GameConfig is one game's ordered rank ladder
type GameConfig struct {
	ID    domain.Game   `yaml:"id"`
	Name  string        `yaml:"name"`
	Ranks []domain.Rank `yaml:"ranks"`
}

// UrgencyConfig is one delivery-speed tier
type UrgencyConfig struct {
	ID         domain.Urgency `yaml:"id"`
	Label      string         `yaml:"label"`
	Multiplier float64        `yaml:"multiplier"`
	ETA        string         `yaml:"eta"`
}

func (c *CatalogConfig) applyDefaults() {
	if len(c.Games) == 0 {
		c.Games = DefaultGames()
	}
	if len(c.Urgencies) == 0 {
		c.Urgencies = DefaultUrgencies()
	}
}

// Validate rejects rank tables and tiers the pricing engine cannot use.
func (c *CatalogConfig) Validate() error {
	seenGames := make(map[domain.Game]bool, len(c.Games))
	for _, g := range c.Games {
		if g.ID == "" {
			return fmt.Errorf("game with empty id")
		}
		if seenGames[g.ID] {
			return fmt.Errorf("duplicate game %q", g.ID)
		}
		seenGames[g.ID] = true
		if len(g.Ranks) == 0 {
			return fmt.Errorf("game %q has no ranks", g.ID)
		}
		seenRanks := make(map[string]bool, len(g.Ranks))
		for _, r := range g.Ranks {
			if r.ID == "" {
				return fmt.Errorf("game %q: rank with empty id", g.ID)
			}
			if seenRanks[r.ID] {
				return fmt.Errorf("game %q: duplicate rank %q", g.ID, r.ID)
			}
			seenRanks[r.ID] = true
			if r.Price < 0 {
				return fmt.Errorf("game %q: rank %q has negative price", g.ID, r.ID)
			}
		}
	}

	byID := make(map[domain.Urgency]float64, len(c.Urgencies))
	for _, u := range c.Urgencies {
		if !u.ID.Valid() {
			return fmt.Errorf("unknown urgency %q", u.ID)
		}
		if u.Multiplier < 1 {
			return fmt.Errorf("urgency %q: multiplier must be at least 1", u.ID)
		}
		byID[u.ID] = u.Multiplier
	}
	prev := 0.0
	for _, id := range domain.Urgencies {
		m, ok := byID[id]
		if !ok {
			return fmt.Errorf("urgency %q is not configured", id)
		}
		if m < prev {
			return fmt.Errorf("urgency %q: multiplier %.2f is below a slower tier", id, m)
		}
		prev = m
	}
	return nil
}

// DefaultUrgencies returns the stock delivery tiers.
func DefaultUrgencies() []UrgencyConfig {
	return []UrgencyConfig{
		{ID: domain.UrgencyNormal, Label: "Normal (7-10 days)", Multiplier: 1.0, ETA: "7-10 days"},
		{ID: domain.UrgencyFast, Label: "Fast (3-5 days)", Multiplier: 1.5, ETA: "3-5 days"},
		{ID: domain.UrgencyExpress, Label: "Express (1-2 days)", Multiplier: 2.0, ETA: "1-2 days"},
	}
}

// DefaultGames returns the stock rank ladders.
func DefaultGames() []GameConfig {
	return []GameConfig{
		{
			ID:   domain.GameRocketLeague,
			Name: "Rocket League",
			Ranks: []domain.Rank{
				{ID: "bronze", Name: "Bronze", Price: 8},
				{ID: "silver", Name: "Silver", Price: 10},
				{ID: "gold", Name: "Gold", Price: 14},
				{ID: "platinum", Name: "Platinum", Price: 18},
				{ID: "diamond", Name: "Diamond", Price: 25},
				{ID: "champion", Name: "Champion", Price: 40},
				{ID: "grand-champion", Name: "Grand Champion", Price: 60},
				{ID: "supersonic-legend", Name: "Supersonic Legend", Price: 90},
			},
		},
		{
			ID:   domain.GameCSGO,
			Name: "CS:GO",
			Ranks: []domain.Rank{
				{ID: "silver", Name: "Silver", Price: 8},
				{ID: "gold-nova", Name: "Gold Nova", Price: 12},
				{ID: "master-guardian", Name: "Master Guardian", Price: 18},
				{ID: "legendary-eagle", Name: "Legendary Eagle", Price: 28},
				{ID: "supreme", Name: "Supreme Master First Class", Price: 40},
				{ID: "global-elite", Name: "Global Elite", Price: 60},
			},
		},
		{
			ID:   domain.GameValorant,
			Name: "Valorant",
			Ranks: []domain.Rank{
				{ID: "iron", Name: "Iron", Price: 10},
				{ID: "bronze", Name: "Bronze", Price: 15},
				{ID: "silver", Name: "Silver", Price: 20},
				{ID: "gold", Name: "Gold", Price: 25},
				{ID: "platinum", Name: "Platinum", Price: 35},
				{ID: "diamond", Name: "Diamond", Price: 50},
				{ID: "ascendant", Name: "Ascendant", Price: 70},
				{ID: "immortal", Name: "Immortal", Price: 100},
				{ID: "radiant", Name: "Radiant", Price: 150},
			},
		},
		{
			ID:   domain.GameFortnite,
			Name: "Fortnite",
			Ranks: []domain.Rank{
				{ID: "bronze", Name: "Bronze", Price: 6},
				{ID: "silver", Name: "Silver", Price: 8},
				{ID: "gold", Name: "Gold", Price: 12},
				{ID: "platinum", Name: "Platinum", Price: 16},
				{ID: "diamond", Name: "Diamond", Price: 22},
				{ID: "elite", Name: "Elite", Price: 30},
				{ID: "champion", Name: "Champion", Price: 45},
				{ID: "unreal", Name: "Unreal", Price: 70},
			},
		},
		{
			ID:   domain.GameLoL,
			Name: "League of Legends",
			Ranks: []domain.Rank{
				{ID: "iron", Name: "Iron", Price: 10},
				{ID: "bronze", Name: "Bronze", Price: 12},
				{ID: "silver", Name: "Silver", Price: 15},
				{ID: "gold", Name: "Gold", Price: 20},
				{ID: "platinum", Name: "Platinum", Price: 28},
				{ID: "emerald", Name: "Emerald", Price: 35},
				{ID: "diamond", Name: "Diamond", Price: 50},
				{ID: "master", Name: "Master", Price: 80},
				{ID: "grandmaster", Name: "Grandmaster", Price: 120},
				{ID: "challenger", Name: "Challenger", Price: 200},
			},
		},
		{
			ID:   domain.GameApex,
			Name: "Apex Legends",
			Ranks: []domain.Rank{
				{ID: "rookie", Name: "Rookie", Price: 5},
				{ID: "bronze", Name: "Bronze", Price: 8},
				{ID: "silver", Name: "Silver", Price: 12},
				{ID: "gold", Name: "Gold", Price: 16},
				{ID: "platinum", Name: "Platinum", Price: 22},
				{ID: "diamond", Name: "Diamond", Price: 35},
				{ID: "master", Name: "Master", Price: 55},
				{ID: "predator", Name: "Apex Predator", Price: 90},
			},
		},
	}
}
