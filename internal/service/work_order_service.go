package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"workshop-service/internal/cache"
	"workshop-service/internal/model"
	"workshop-service/internal/notify"
	"workshop-service/internal/repository"
)

const maxStatusNoteLength = 500

type WorkOrderStore interface {
	GetByID(ctx context.Context, id string) (*model.WorkOrder, error)
	GetByIDWithHistory(ctx context.Context, id string) (*model.WorkOrder, error)
	List(ctx context.Context, filter repository.WorkOrderListFilter) ([]model.WorkOrder, error)
	UpdateFields(ctx context.Context, orderID string, fields map[string]interface{}) error
	ChangeStatus(ctx context.Context, orderID string, upd repository.StatusUpdate) (*model.WorkOrder, error)
	RecordNotification(ctx context.Context, n *model.Notification, markSent bool) error
	SoftDelete(ctx context.Context, orderID string, actor uuid.UUID, now time.Time) error
}

type MechanicGetter interface {
	GetByID(ctx context.Context, id string) (*model.Mechanic, error)
}

type WorkOrderService struct {
	orders    WorkOrderStore
	mechanics MechanicGetter
	clients   ClientGetter
	mailer    notify.Mailer

	sideEffects
}

func NewWorkOrderService(
	orders WorkOrderStore,
	mechanics MechanicGetter,
	clients ClientGetter,
	mailer notify.Mailer,
	audit AuditStore,
	invalidator Invalidator,
	log zerolog.Logger,
) *WorkOrderService {
	return &WorkOrderService{
		orders:      orders,
		mechanics:   mechanics,
		clients:     clients,
		mailer:      mailer,
		sideEffects: sideEffects{audit: audit, cache: invalidator, log: log},
	}
}

func (s *WorkOrderService) Get(ctx context.Context, id string) (*model.WorkOrder, error) {
	order, err := s.orders.GetByIDWithHistory(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *WorkOrderService) List(ctx context.Context, filter repository.WorkOrderListFilter) ([]model.WorkOrder, error) {
	return s.orders.List(ctx, filter)
}

// validateTransition is the pure transition check: table reachability plus
// the mechanic guard for starting work. It never mutates anything.
func validateTransition(order *model.WorkOrder, target model.WorkOrderStatus) error {
	if !model.ValidWorkOrderStatus(target) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, target)
	}
	if !model.CanTransition(order.Status, target) {
		return fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidTransition, order.Status, target)
	}
	if target == model.WorkOrderStatusInProgress && order.MechanicID == nil {
		return fmt.Errorf("%w: a mechanic must be assigned before starting work", ErrInvalidTransition)
	}
	return nil
}

type StatusChangeInput struct {
	Target model.WorkOrderStatus
	Note   string
}

// ChangeStatus validates and applies one transition. The store re-checks
// the starting status with compare-and-swap, so a transition validated
// against a stale state fails with a conflict instead of committing. The
// history entry lands in the same transaction as the status write.
func (s *WorkOrderService) ChangeStatus(ctx context.Context, principal model.Principal, orderID string, input StatusChangeInput) (*model.WorkOrder, error) {
	if len(input.Note) > maxStatusNoteLength {
		return nil, fmt.Errorf("%w: note exceeds %d characters", ErrInvalidInput, maxStatusNoteLength)
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := validateTransition(order, input.Target); err != nil {
		return nil, err
	}

	now := time.Now()
	upd := repository.StatusUpdate{
		From: order.Status,
		To:   input.Target,
		Entry: model.StatusChange{
			WorkOrderID: order.ID,
			FromStatus:  order.Status,
			ToStatus:    input.Target,
			ActorID:     &principal.UserID,
			ActorLabel:  principal.Name,
			Note:        input.Note,
		},
		Extra: map[string]interface{}{},
	}

	switch input.Target {
	case model.WorkOrderStatusDelivered:
		upd.Extra["delivered_at"] = now
	case model.WorkOrderStatusPendingAssignment:
		// Stepping back to awaiting-assignment releases the mechanic.
		upd.Extra["mechanic_id"] = nil
	}

	updated, err := s.orders.ChangeStatus(ctx, orderID, upd)
	if err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, fmt.Errorf("%w: order status changed concurrently", ErrConflict)
		}
		return nil, err
	}

	if input.Target == model.WorkOrderStatusReady && !updated.ReadyEmailSent {
		s.sendReadyNotification(ctx, updated)
		updated, err = s.orders.GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
	}

	s.recordAudit(ctx, &model.AuditLog{
		ActorID:    &principal.UserID,
		ActorLabel: principal.Name,
		Action:     "work_order.status_change",
		EntityType: "work_order",
		EntityID:   updated.ID,
		Metadata: auditMetadata(map[string]interface{}{
			"from": string(upd.From),
			"to":   string(upd.To),
		}),
	})
	s.invalidate(ctx, cache.PrefixOrders, cache.PrefixDashboard)

	return updated, nil
}

// sendReadyNotification makes exactly one dispatch attempt cycle for the
// "ready for pickup" email. Failures are recorded and swallowed; the
// status change stands either way. The ready flag is only set on success,
// so a later re-entry into listo retries a failed send but never repeats a
// successful one.
func (s *WorkOrderService) sendReadyNotification(ctx context.Context, order *model.WorkOrder) {
	record := func(status model.NotificationStatus, attempts int, sendErr error) {
		n := &model.Notification{
			WorkOrderID: order.ID,
			Kind:        "ready",
			Status:      status,
			Attempts:    attempts,
		}
		if sendErr != nil {
			msg := sendErr.Error()
			n.Error = &msg
		}
		if err := s.orders.RecordNotification(ctx, n, status == model.NotificationStatusSent); err != nil {
			s.log.Error().Err(err).Str("work_order_id", order.ID.String()).
				Msg("failed to record ready notification")
		}
	}

	client, err := s.clients.GetByID(ctx, order.ClientID.String())
	if err != nil {
		record(model.NotificationStatusFailed, 0, fmt.Errorf("load client: %w", err))
		return
	}
	if client.Email == "" {
		record(model.NotificationStatusFailed, 0, errors.New("client has no email address"))
		return
	}

	msg := notify.ReadyEmail(order, client.Name, client.Email)
	attempts, sendErr := notify.Dispatch(ctx, s.mailer, msg)
	if sendErr != nil {
		s.log.Warn().Err(sendErr).Str("work_order_id", order.ID.String()).Int("attempts", attempts).
			Msg("ready notification failed")
		record(model.NotificationStatusFailed, attempts, sendErr)
		return
	}
	record(model.NotificationStatusSent, attempts, nil)
}

// AssignMechanic moves an awaiting order to asignada with the mechanic
// set, as a single transition.
func (s *WorkOrderService) AssignMechanic(ctx context.Context, principal model.Principal, orderID, mechanicID, note string) (*model.WorkOrder, error) {
	mechUUID, err := uuid.Parse(mechanicID)
	if err != nil {
		return nil, ErrInvalidInput
	}

	mechanic, err := s.mechanics.GetByID(ctx, mechanicID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !mechanic.Active {
		return nil, fmt.Errorf("%w: mechanic is inactive", ErrConflict)
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := validateTransition(order, model.WorkOrderStatusAssigned); err != nil {
		return nil, err
	}

	if note == "" {
		note = fmt.Sprintf("asignada a %s", mechanic.Name)
	}
	upd := repository.StatusUpdate{
		From: order.Status,
		To:   model.WorkOrderStatusAssigned,
		Entry: model.StatusChange{
			WorkOrderID: order.ID,
			FromStatus:  order.Status,
			ToStatus:    model.WorkOrderStatusAssigned,
			ActorID:     &principal.UserID,
			ActorLabel:  principal.Name,
			Note:        note,
		},
		Extra: map[string]interface{}{"mechanic_id": mechUUID},
	}

	updated, err := s.orders.ChangeStatus(ctx, orderID, upd)
	if err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, fmt.Errorf("%w: order status changed concurrently", ErrConflict)
		}
		return nil, err
	}

	s.recordAudit(ctx, &model.AuditLog{
		ActorID:    &principal.UserID,
		ActorLabel: principal.Name,
		Action:     "work_order.assign",
		EntityType: "work_order",
		EntityID:   updated.ID,
		Metadata:   auditMetadata(map[string]interface{}{"mechanic_id": mechanicID}),
	})
	s.invalidate(ctx, cache.PrefixOrders, cache.PrefixDashboard)

	return updated, nil
}

type WorkOrderUpdateInput struct {
	Description       *string
	EstimatedCost     *float64
	FinalCost         *float64
	EstimatedDelivery *time.Time
}

// Update edits order fields. Delivered orders are frozen. Status never
// changes here.
func (s *WorkOrderService) Update(ctx context.Context, principal model.Principal, orderID string, input WorkOrderUpdateInput) (*model.WorkOrder, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if order.Status == model.WorkOrderStatusDelivered {
		return nil, fmt.Errorf("%w: delivered orders cannot be edited", ErrConflict)
	}

	fields := map[string]interface{}{}
	if input.Description != nil {
		if *input.Description == "" {
			return nil, ErrInvalidInput
		}
		fields["description"] = *input.Description
	}
	if input.EstimatedCost != nil {
		if *input.EstimatedCost <= 0 {
			return nil, ErrInvalidInput
		}
		fields["estimated_cost"] = *input.EstimatedCost
	}
	if input.FinalCost != nil {
		if *input.FinalCost < 0 {
			return nil, ErrInvalidInput
		}
		fields["final_cost"] = *input.FinalCost
	}
	if input.EstimatedDelivery != nil {
		fields["estimated_delivery"] = *input.EstimatedDelivery
	}
	if len(fields) == 0 {
		return nil, ErrInvalidInput
	}

	if err := s.orders.UpdateFields(ctx, orderID, fields); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.recordAudit(ctx, &model.AuditLog{
		ActorID:    &principal.UserID,
		ActorLabel: principal.Name,
		Action:     "work_order.update",
		EntityType: "work_order",
		EntityID:   order.ID,
	})
	s.invalidate(ctx, cache.PrefixOrders, cache.PrefixDashboard)

	return s.orders.GetByID(ctx, orderID)
}

// Delete soft-deletes an order, allowed only while awaiting assignment.
func (s *WorkOrderService) Delete(ctx context.Context, principal model.Principal, orderID string) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	if err := s.orders.SoftDelete(ctx, orderID, principal.UserID, time.Now()); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return fmt.Errorf("%w: only orders awaiting assignment can be deleted", ErrConflict)
		}
		return err
	}

	s.recordAudit(ctx, &model.AuditLog{
		ActorID:    &principal.UserID,
		ActorLabel: principal.Name,
		Action:     "work_order.delete",
		EntityType: "work_order",
		EntityID:   order.ID,
	})
	s.invalidate(ctx, cache.PrefixOrders, cache.PrefixDashboard)

	return nil
}
