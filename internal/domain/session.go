package domain

// Session is the acting identity for a request. It is passed explicitly to
// every operation that needs to know who is calling.
type Session struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Role   Role   `json:"role"`
}

// Authenticated reports whether the session carries a user.
func (s Session) Authenticated() bool {
	return s.UserID != ""
}

// IsStaff reports whether the session may see every order.
func (s Session) IsStaff() bool {
	return s.Role == RoleBooster || s.Role == RoleAdmin
}

// IsAdmin reports whether the session has the admin role.
func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}
