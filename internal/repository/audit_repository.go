package repository

import (
	"context"

	"gorm.io/gorm"

	"workshop-service/internal/model"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Record(ctx context.Context, entry *model.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

type AuditListFilter struct {
	ActorID    *string
	Action     *string
	EntityType *string
	EntityID   *string
	Page       Page
}

func (r *AuditRepository) List(ctx context.Context, filter AuditListFilter) ([]model.AuditLog, error) {
	var entries []model.AuditLog
	query := r.db.WithContext(ctx).Model(&model.AuditLog{})

	if filter.ActorID != nil {
		query = query.Where("actor_id = ?", *filter.ActorID)
	}
	if filter.Action != nil {
		query = query.Where("action = ?", *filter.Action)
	}
	if filter.EntityType != nil {
		query = query.Where("entity_type = ?", *filter.EntityType)
	}
	if filter.EntityID != nil {
		query = query.Where("entity_id = ?", *filter.EntityID)
	}

	err := query.Order("created_at DESC").
		Limit(filter.Page.limit()).
		Offset(filter.Page.offset()).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
