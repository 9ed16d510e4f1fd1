package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"workshop-service/internal/model"
)

type QuoteRepository struct {
	db *gorm.DB
}

func NewQuoteRepository(db *gorm.DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

func (r *QuoteRepository) Create(ctx context.Context, quote *model.Quote) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var number int64
		if err := tx.Raw("SELECT nextval('quote_number_seq')").Scan(&number).Error; err != nil {
			return err
		}
		quote.Number = number
		return tx.Create(quote).Error
	})
}

func (r *QuoteRepository) GetByID(ctx context.Context, id string) (*model.Quote, error) {
	var quote model.Quote
	err := r.db.WithContext(ctx).
		Preload("Tokens").
		Where("id = ? AND deleted_at IS NULL", id).
		First(&quote).Error
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

type QuoteListFilter struct {
	Status   *model.QuoteStatus
	ClientID *string
	Page     Page
}

func (r *QuoteRepository) List(ctx context.Context, filter QuoteListFilter) ([]model.Quote, error) {
	var quotes []model.Quote
	query := r.db.WithContext(ctx).Model(&model.Quote{}).Where("deleted_at IS NULL")

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}

	err := query.Order("created_at DESC").
		Limit(filter.Page.limit()).
		Offset(filter.Page.offset()).
		Find(&quotes).Error
	if err != nil {
		return nil, err
	}
	return quotes, nil
}

// Update persists edits to a pending quote's fields. The caller enforces
// the pending-only rule; the WHERE clause re-checks it so a racing
// approval cannot be overwritten.
func (r *QuoteRepository) Update(ctx context.Context, quote *model.Quote) error {
	res := r.db.WithContext(ctx).Model(&model.Quote{}).
		Where("id = ? AND status = ? AND deleted_at IS NULL", quote.ID, model.QuoteStatusPending).
		Updates(map[string]interface{}{
			"client_id":       quote.ClientID,
			"vehicle_brand":   quote.Vehicle.Brand,
			"vehicle_model":   quote.Vehicle.Model,
			"vehicle_year":    quote.Vehicle.Year,
			"vehicle_plate":   quote.Vehicle.Plate,
			"vehicle_mileage": quote.Vehicle.Mileage,
			"problem":         quote.Problem,
			"proposed_work":   quote.ProposedWork,
			"estimated_cost":  quote.EstimatedCost,
			"valid_until":     quote.ValidUntil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// ReplaceTokens swaps the quote's token pair for a fresh one. Old tokens
// stop existing, so links from earlier emails go dead. The swap only
// happens while the quote is still pending.
func (r *QuoteRepository) ReplaceTokens(ctx context.Context, quoteID uuid.UUID, tokens []model.QuoteToken) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var quote model.Quote
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND deleted_at IS NULL", quoteID).
			First(&quote).Error; err != nil {
			return err
		}
		if quote.Status != model.QuoteStatusPending {
			return model.ErrQuoteProcessed
		}

		if err := tx.Where("quote_id = ?", quoteID).Delete(&model.QuoteToken{}).Error; err != nil {
			return err
		}
		for i := range tokens {
			if err := tx.Create(&tokens[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkEmailResult bumps the dispatch attempt counter and, on success,
// stamps the sent flag and timestamp.
func (r *QuoteRepository) MarkEmailResult(ctx context.Context, quoteID uuid.UUID, sent bool, now time.Time) error {
	updates := map[string]interface{}{
		"email_attempts": gorm.Expr("email_attempts + 1"),
	}
	if sent {
		updates["email_sent"] = true
		updates["email_sent_at"] = now
	}
	return r.db.WithContext(ctx).Model(&model.Quote{}).
		Where("id = ?", quoteID).
		Updates(updates).Error
}

// TokenUsage carries the request metadata stamped onto a redeemed token.
type TokenUsage struct {
	IP        string
	UserAgent string
}

// Approve marks the quote approved and creates its work order as one
// transaction. presented is the redeemed token string, nil for the manual
// staff path. The quote row is locked for the duration, so concurrent
// redemptions of the same pair serialize and the loser sees the final
// state, not a stale one. buildOrder receives the locked quote and the
// next order number and returns the order to create.
func (r *QuoteRepository) Approve(
	ctx context.Context,
	quoteID string,
	presented *string,
	usage TokenUsage,
	now time.Time,
	buildOrder func(q *model.Quote, orderNumber int64) *model.WorkOrder,
) (*model.Quote, *model.WorkOrder, error) {
	var (
		quote model.Quote
		order *model.WorkOrder
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockQuote(tx, quoteID, &quote); err != nil {
			return err
		}

		if err := r.consumeTokens(tx, &quote, presented, model.TokenActionApprove, usage, now); err != nil {
			return err
		}

		var number int64
		if err := tx.Raw("SELECT nextval('work_order_number_seq')").Scan(&number).Error; err != nil {
			return err
		}

		order = buildOrder(&quote, number)
		if err := tx.Create(order).Error; err != nil {
			return err
		}

		entry := &model.StatusChange{
			WorkOrderID: order.ID,
			FromStatus:  model.WorkOrderStatusPendingAssignment,
			ToStatus:    model.WorkOrderStatusPendingAssignment,
			ActorLabel:  "system",
			Note:        "orden creada por aprobación de presupuesto",
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}

		quote.Status = model.QuoteStatusApproved
		quote.WorkOrderID = &order.ID
		return tx.Model(&model.Quote{}).Where("id = ?", quote.ID).Updates(map[string]interface{}{
			"status":        model.QuoteStatusApproved,
			"work_order_id": order.ID,
		}).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &quote, order, nil
}

// Reject marks the quote rejected. Same locking discipline as Approve; no
// further entities are created.
func (r *QuoteRepository) Reject(
	ctx context.Context,
	quoteID string,
	presented *string,
	usage TokenUsage,
	now time.Time,
) (*model.Quote, error) {
	var quote model.Quote

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockQuote(tx, quoteID, &quote); err != nil {
			return err
		}

		if err := r.consumeTokens(tx, &quote, presented, model.TokenActionReject, usage, now); err != nil {
			return err
		}

		quote.Status = model.QuoteStatusRejected
		return tx.Model(&model.Quote{}).Where("id = ?", quote.ID).
			Update("status", model.QuoteStatusRejected).Error
	})
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func lockQuote(tx *gorm.DB, quoteID string, quote *model.Quote) error {
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND deleted_at IS NULL", quoteID).
		First(quote).Error; err != nil {
		return err
	}
	return tx.Where("quote_id = ?", quote.ID).Find(&quote.Tokens).Error
}

// consumeTokens re-validates the presented token against the locked quote
// and burns the whole pair. With no token (manual staff action) only the
// pending check applies; any remaining tokens are still burned so old
// email links die with the decision.
func (r *QuoteRepository) consumeTokens(
	tx *gorm.DB,
	quote *model.Quote,
	presented *string,
	action model.TokenAction,
	usage TokenUsage,
	now time.Time,
) error {
	if presented == nil {
		if quote.Status != model.QuoteStatusPending {
			return model.ErrQuoteProcessed
		}
	} else {
		// CheckToken applies the failure precedence itself: unknown
		// token, then reuse, then expiry, then processed quote.
		tok, err := quote.CheckToken(*presented, now)
		if err != nil {
			return err
		}
		if tok.Action != action {
			return model.ErrTokenInvalid
		}

		if err := tx.Model(&model.QuoteToken{}).
			Where("id = ?", tok.ID).
			Updates(map[string]interface{}{
				"used_at":         now,
				"used_ip":         usage.IP,
				"used_user_agent": usage.UserAgent,
			}).Error; err != nil {
			return err
		}
	}

	return tx.Model(&model.QuoteToken{}).
		Where("quote_id = ? AND used_at IS NULL", quote.ID).
		Update("used_at", now).Error
}

func (r *QuoteRepository) SoftDelete(ctx context.Context, quoteID string, actor uuid.UUID, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Quote{}).
		Where("id = ? AND status = ? AND work_order_id IS NULL AND deleted_at IS NULL",
			quoteID, model.QuoteStatusPending).
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

func (r *QuoteRepository) CountByStatus(ctx context.Context) (map[model.QuoteStatus]int64, error) {
	type row struct {
		Status model.QuoteStatus
		Total  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&model.Quote{}).
		Select("status, COUNT(*) AS total").
		Where("deleted_at IS NULL").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[model.QuoteStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}

// HasActiveForClient reports whether the client still has pending quotes,
// used by the client soft-delete guard.
func (r *QuoteRepository) HasActiveForClient(ctx context.Context, clientID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Quote{}).
		Where("client_id = ? AND status = ? AND deleted_at IS NULL", clientID, model.QuoteStatusPending).
		Count(&count).Error
	return count > 0, err
}
