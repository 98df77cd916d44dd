package model

import "time"

// Role determines which leads an operator receives and what they may do.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleCloser    Role = "CLOSER"
	RoleQualifier Role = "QUALIFIER"
)

// Operator is a human user who works leads.
type Operator struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"is_active"`
	MaxLeads  int       `json:"max_leads"`
	CreatedAt time.Time `json:"created_at"`
}

// OperatorLoad pairs an operator with their live active-lead count.
type OperatorLoad struct {
	Operator
	ActiveLeads int `json:"active_leads"`
}

// SystemActorID is the reserved identity for machine-driven transitions
// and activities. It exists as a real operator row so audit joins stay
// type-safe instead of relying on a magic string.
const SystemActorID = "00000000-0000-0000-0000-000000000000"

// Actor identifies who performs a transition or writes an activity.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// SystemActor returns the sentinel actor used by pipeline stages.
func SystemActor() Actor {
	return Actor{ID: SystemActorID, Role: RoleAdmin}
}

// Privileged reports whether the actor may force transitions outside the
// allowed graph.
func (a Actor) Privileged() bool {
	return a.ID == SystemActorID || a.Role == RoleAdmin
}
