package entity

import "strings"

// Actor is a principal performing an operation or receiving an assignment
type Actor struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Contact string `json:"contact,omitempty"`
	Role    string `json:"role,omitempty"`
}

// SystemActor is attributed to transitions the engine performs on its own
var SystemActor = Actor{ID: "system", Name: "System", Role: RoleSystem}

// AnonymousActor is attributed to unauthenticated callers
var AnonymousActor = Actor{ID: "anonymous", Name: "Anonymous", Role: RolePublic}

// IsReserved reports whether the identity belongs to a built-in principal
// that stands for more than one caller
func (a Actor) IsReserved() bool {
	id := strings.TrimSpace(a.ID)
	return id == SystemActor.ID || id == AnonymousActor.ID
}

// IsZero reports whether the actor carries no identity
func (a Actor) IsZero() bool {
	return strings.TrimSpace(a.ID) == ""
}

// DisplayName returns the name, falling back to the identity
func (a Actor) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}
