package domain

import (
	"slices"

	"github.com/google/uuid"
)

// User is the authenticated identity the engine acts on behalf of. It is
// produced by the authentication collaborator and never persisted here.
type User struct {
	ID   uuid.UUID
	Role Role
	Type UserType
	// Grants are explicit "entity:action" permissions on top of the role matrix.
	Grants []string
}

// IsInternal reports whether the user belongs to the firm.
func (u User) IsInternal() bool {
	return u.Type == UserTypeInternal
}

// HasGrant reports whether an explicit grant exists for entity and action.
func (u User) HasGrant(entity string, action Action) bool {
	return slices.Contains(u.Grants, entity+":"+string(action))
}
