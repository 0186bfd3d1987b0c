package domain

import "time"

// Role is the authorization tier of a profile
type Role string

const (
	RoleUser    Role = "user"
	RoleBooster Role = "booster"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleBooster, RoleAdmin:
		return true
	}
	return false
}

// Profile represents a registered user
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Badge is a display label with a style token.
type Badge struct {
	Label string `json:"label"`
	Style string `json:"style"`
}

var roleBadges = map[Role]Badge{
	RoleUser:    {Label: "User", Style: "gray"},
	RoleBooster: {Label: "Booster", Style: "blue"},
	RoleAdmin:   {Label: "Admin", Style: "red"},
}

// RoleBadge returns the badge for a role. Unknown roles render as a user.
func RoleBadge(r Role) Badge {
	if b, ok := roleBadges[r]; ok {
		return b
	}
	return roleBadges[RoleUser]
}

// ProfileView is a profile decorated with its badge
type ProfileView struct {
	Profile
	Badge Badge `json:"badge"`
}

// NewProfileView wraps a profile for presentation.
func NewProfileView(p Profile) ProfileView {
	return ProfileView{Profile: p, Badge: RoleBadge(p.Role)}
}

// ProfileStats counts profiles per role
type ProfileStats struct {
	Total    int `json:"total"`
	Users    int `json:"users"`
	Boosters int `json:"boosters"`
	Admins   int `json:"admins"`
}

// CountRoles tallies profiles by role.
func CountRoles(profiles []Profile) ProfileStats {
	stats := ProfileStats{Total: len(profiles)}
	for _, p := range profiles {
		switch p.Role {
		case RoleBooster:
			stats.Boosters++
		case RoleAdmin:
			stats.Admins++
		default:
			stats.Users++
		}
	}
	return stats
}
