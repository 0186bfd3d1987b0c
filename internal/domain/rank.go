package domain

// Game identifies a title with its own competitive ladder.
type Game string

const (
	GameRocketLeague Game = "rocket-league"
	GameCSGO         Game = "csgo"
	GameValorant     Game = "valorant"
	GameFortnite     Game = "fortnite"
	GameLoL          Game = "lol"
	GameApex         Game = "apex"
)

// Rank is a tier within a game's ladder. Price is the step cost charged for
// climbing out of this rank into the next one.
type Rank struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Price int64  `json:"price" yaml:"price"`
}

// GameInfo describes a game available for boosting
type GameInfo struct {
	ID    Game   `json:"id"`
	Name  string `json:"name"`
	Ranks []Rank `json:"ranks,omitempty"`
}

// Urgency is the delivery-speed tier of an order
type Urgency string

const (
	UrgencyNormal  Urgency = "normal"
	UrgencyFast    Urgency = "fast"
	UrgencyExpress Urgency = "express"
)

// Urgencies lists the tiers from slowest to fastest.
var Urgencies = []Urgency{UrgencyNormal, UrgencyFast, UrgencyExpress}

// Valid reports whether u is a known tier.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyNormal, UrgencyFast, UrgencyExpress:
		return true
	}
	return false
}

// UrgencyTier carries the pricing multiplier and delivery estimate for an urgency.
type UrgencyTier struct {
	Urgency    Urgency `json:"urgency"`
	Label      string  `json:"label"`
	Multiplier float64 `json:"multiplier"`
	ETA        string  `json:"eta"`
}
