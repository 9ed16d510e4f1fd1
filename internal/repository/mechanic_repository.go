package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"workshop-service/internal/model"
)

type MechanicRepository struct {
	db *gorm.DB
}

func NewMechanicRepository(db *gorm.DB) *MechanicRepository {
	return &MechanicRepository{db: db}
}

func (r *MechanicRepository) Create(ctx context.Context, mechanic *model.Mechanic) error {
	return r.db.WithContext(ctx).Create(mechanic).Error
}

func (r *MechanicRepository) GetByID(ctx context.Context, id string) (*model.Mechanic, error) {
	var mechanic model.Mechanic
	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&mechanic).Error
	if err != nil {
		return nil, err
	}
	return &mechanic, nil
}

type MechanicListFilter struct {
	ActiveOnly bool
	Page       Page
}

func (r *MechanicRepository) List(ctx context.Context, filter MechanicListFilter) ([]model.Mechanic, error) {
	var mechanics []model.Mechanic
	query := r.db.WithContext(ctx).Model(&model.Mechanic{}).Where("deleted_at IS NULL")

	if filter.ActiveOnly {
		query = query.Where("active = TRUE")
	}

	err := query.Order("name ASC").
		Limit(filter.Page.limit()).
		Offset(filter.Page.offset()).
		Find(&mechanics).Error
	if err != nil {
		return nil, err
	}
	return mechanics, nil
}

func (r *MechanicRepository) Update(ctx context.Context, mechanic *model.Mechanic) error {
	res := r.db.WithContext(ctx).Model(&model.Mechanic{}).
		Where("id = ? AND deleted_at IS NULL", mechanic.ID).
		Updates(map[string]interface{}{
			"name":      mechanic.Name,
			"specialty": mechanic.Specialty,
			"phone":     mechanic.Phone,
			"active":    mechanic.Active,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *MechanicRepository) SoftDelete(ctx context.Context, mechanicID string, actor uuid.UUID, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Mechanic{}).
		Where("id = ? AND deleted_at IS NULL", mechanicID).
		Updates(map[string]interface{}{
			"deleted_at": now,
			"deleted_by": actor,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
