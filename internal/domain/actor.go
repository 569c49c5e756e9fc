package domain

// Role differentiates requesters from support staff.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleAdmin:
		return true
	}
	return false
}

// Actor is the authenticated identity performing a request.
type Actor struct {
	ID   string
	Role Role
}

// IsStaff reports whether the actor is an agent or admin.
func (a Actor) IsStaff() bool {
	return a.Role == RoleAgent || a.Role == RoleAdmin
}
