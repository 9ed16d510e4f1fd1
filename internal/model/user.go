package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRole string

const (
	UserRoleAdmin UserRole = "ADMIN"
	UserRoleStaff UserRole = "STAFF"
)

type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	Name         string     `gorm:"size:200;not null" json:"name"`
	Email        string     `gorm:"size:200;not null;uniqueIndex:idx_users_email,where:deleted_at IS NULL" json:"email"`
	PasswordHash string     `gorm:"size:100;not null" json:"-"`
	Role         UserRole   `gorm:"type:user_role;not null;default:STAFF" json:"role"`
	Active       bool       `gorm:"not null;default:true" json:"active"`
	FailedLogins int        `gorm:"not null;default:0" json:"-"`
	LockedUntil  *time.Time `json:"-"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	DeletedBy    *uuid.UUID `gorm:"type:uuid" json:"deleted_by,omitempty"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Locked reports whether the account is throttled after repeated failed
// logins. Disabled accounts use the explicit Active flag instead.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}
