package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"workshop-service/internal/model"
)

type ClientRepository struct {
	db *gorm.DB
}

func NewClientRepository(db *gorm.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) Create(ctx context.Context, client *model.Client) error {
	return r.db.WithContext(ctx).Create(client).Error
}

func (r *ClientRepository) GetByID(ctx context.Context, id string) (*model.Client, error) {
	var client model.Client
	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&client).Error
	if err != nil {
		return nil, err
	}
	return &client, nil
}

type ClientListFilter struct {
	Search string
	Page   Page
}

func (r *ClientRepository) List(ctx context.Context, filter ClientListFilter) ([]model.Client, error) {
	var clients []model.Client
	query := r.db.WithContext(ctx).Model(&model.Client{}).Where("deleted_at IS NULL")

	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where("name ILIKE ? OR phone ILIKE ? OR email ILIKE ?", pattern, pattern, pattern)
	}

	err := query.Order("name ASC").
		Limit(filter.Page.limit()).
		Offset(filter.Page.offset()).
		Find(&clients).Error
	if err != nil {
		return nil, err
	}
	return clients, nil
}

func (r *ClientRepository) Update(ctx context.Context, client *model.Client) error {
	res := r.db.WithContext(ctx).Model(&model.Client{}).
		Where("id = ? AND deleted_at IS NULL", client.ID).
		Updates(map[string]interface{}{
			"name":    client.Name,
			"phone":   client.Phone,
			"email":   client.Email,
			"address": client.Address,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *ClientRepository) SoftDelete(ctx context.Context, clientID string, actor uuid.UUID, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Client{}).
		Where("id = ? AND deleted_at IS NULL", clientID).
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
