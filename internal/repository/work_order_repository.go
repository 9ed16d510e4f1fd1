package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"workshop-service/internal/model"
)

type WorkOrderRepository struct {
	db *gorm.DB
}

func NewWorkOrderRepository(db *gorm.DB) *WorkOrderRepository {
	return &WorkOrderRepository{db: db}
}

func (r *WorkOrderRepository) GetByID(ctx context.Context, id string) (*model.WorkOrder, error) {
	var order model.WorkOrder
	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetByIDWithHistory loads the order together with its status history and
// notification log, oldest first.
func (r *WorkOrderRepository) GetByIDWithHistory(ctx context.Context, id string) (*model.WorkOrder, error) {
	var order model.WorkOrder
	err := r.db.WithContext(ctx).
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Notifications", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

type WorkOrderListFilter struct {
	Status     *model.WorkOrderStatus
	MechanicID *string
	ClientID   *string
	Page       Page
}

func (r *WorkOrderRepository) List(ctx context.Context, filter WorkOrderListFilter) ([]model.WorkOrder, error) {
	var orders []model.WorkOrder
	query := r.db.WithContext(ctx).Model(&model.WorkOrder{}).Where("deleted_at IS NULL")

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.MechanicID != nil {
		query = query.Where("mechanic_id = ?", *filter.MechanicID)
	}
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}

	err := query.Order("created_at DESC").
		Limit(filter.Page.limit()).
		Offset(filter.Page.offset()).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateFields persists editable fields. Status is never touched here;
// that goes through ChangeStatus only.
func (r *WorkOrderRepository) UpdateFields(ctx context.Context, orderID string, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&model.WorkOrder{}).
		Where("id = ? AND deleted_at IS NULL", orderID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// StatusUpdate describes one transition: the status the caller validated
// against, the target, the history entry to append and any extra column
// writes that must land in the same transaction (mechanic assignment,
// delivery timestamp).
type StatusUpdate struct {
	From  model.WorkOrderStatus
	To    model.WorkOrderStatus
	Entry model.StatusChange
	Extra map[string]interface{}
}

// ChangeStatus applies a validated transition with compare-and-swap
// semantics: the UPDATE only matches while the order is still in upd.From,
// so a transition never commits against a state the caller did not see.
// The history entry is written in the same transaction; neither exists
// without the other.
func (r *WorkOrderRepository) ChangeStatus(ctx context.Context, orderID string, upd StatusUpdate) (*model.WorkOrder, error) {
	var order model.WorkOrder

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{"status": upd.To}
		for k, v := range upd.Extra {
			updates[k] = v
		}

		res := tx.Model(&model.WorkOrder{}).
			Where("id = ? AND status = ? AND deleted_at IS NULL", orderID, upd.From).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleStatus
		}

		entry := upd.Entry
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		return tx.Where("id = ?", orderID).First(&order).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// RecordNotification appends a notification-log entry. markSent also flips
// the ready flag so a later save cannot trigger a duplicate; it is only
// set on confirmed delivery, leaving failed attempts retryable.
func (r *WorkOrderRepository) RecordNotification(ctx context.Context, n *model.Notification, markSent bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(n).Error; err != nil {
			return err
		}
		if !markSent {
			return nil
		}
		return tx.Model(&model.WorkOrder{}).
			Where("id = ?", n.WorkOrderID).
			Update("ready_email_sent", true).Error
	})
}

func (r *WorkOrderRepository) SoftDelete(ctx context.Context, orderID string, actor uuid.UUID, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.WorkOrder{}).
		Where("id = ? AND status = ? AND deleted_at IS NULL",
			orderID, model.WorkOrderStatusPendingAssignment).
		Updates(map[string]interface{}{
			"deleted_at": now,
			"deleted_by": actor,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r *WorkOrderRepository) CountByStatus(ctx context.Context) (map[model.WorkOrderStatus]int64, error) {
	type row struct {
		Status model.WorkOrderStatus
		Total  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&model.WorkOrder{}).
		Select("status, COUNT(*) AS total").
		Where("deleted_at IS NULL").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[model.WorkOrderStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}

// DeliveredRevenue sums final costs of delivered orders for the dashboard.
func (r *WorkOrderRepository) DeliveredRevenue(ctx context.Context) (float64, error) {
	var total *float64
	err := r.db.WithContext(ctx).Model(&model.WorkOrder{}).
		Select("SUM(COALESCE(final_cost, estimated_cost))").
		Where("status = ? AND deleted_at IS NULL", model.WorkOrderStatusDelivered).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// HasUndeliveredForClient backs the client soft-delete guard.
func (r *WorkOrderRepository) HasUndeliveredForClient(ctx context.Context, clientID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.WorkOrder{}).
		Where("client_id = ? AND status <> ? AND deleted_at IS NULL", clientID, model.WorkOrderStatusDelivered).
		Count(&count).Error
	return count > 0, err
}

// HasOpenForMechanic backs the mechanic soft-delete guard.
func (r *WorkOrderRepository) HasOpenForMechanic(ctx context.Context, mechanicID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.WorkOrder{}).
		Where("mechanic_id = ? AND status <> ? AND deleted_at IS NULL", mechanicID, model.WorkOrderStatusDelivered).
		Count(&count).Error
	return count > 0, err
}
