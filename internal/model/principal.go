package model

import "github.com/google/uuid"

// Principal is the authenticated identity extracted from the access token.
type Principal struct {
	UserID uuid.UUID
	Name   string
	Role   UserRole
}

func (p Principal) IsAdmin() bool {
	return p.Role == UserRoleAdmin
}
