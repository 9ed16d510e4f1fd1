package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Mechanic struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	Name      string     `gorm:"size:200;not null" json:"name"`
	Specialty string     `gorm:"size:200" json:"specialty"`
	Phone     string     `gorm:"size:32" json:"phone"`
	Active    bool       `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy *uuid.UUID `gorm:"type:uuid" json:"deleted_by,omitempty"`
}

func (Mechanic) TableName() string {
	return "mechanics"
}

func (m *Mechanic) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
