package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WorkOrderStatus string

// Status names are kept in the workshop's own language; they appear verbatim
// in the API and in printed paperwork.
const (
	WorkOrderStatusPendingAssignment WorkOrderStatus = "pendiente_asignacion"
	WorkOrderStatusAssigned          WorkOrderStatus = "asignada"
	WorkOrderStatusInProgress        WorkOrderStatus = "en_progreso"
	WorkOrderStatusReady             WorkOrderStatus = "listo"
	WorkOrderStatusDelivered         WorkOrderStatus = "entregado"
)

// statusTransitions is the fixed table of allowed moves. Delivered is
// terminal. Backward moves exist so staff can undo one step at a time;
// skipping states is never allowed.
var statusTransitions = map[WorkOrderStatus][]WorkOrderStatus{
	WorkOrderStatusPendingAssignment: {WorkOrderStatusAssigned},
	WorkOrderStatusAssigned:          {WorkOrderStatusInProgress, WorkOrderStatusPendingAssignment},
	WorkOrderStatusInProgress:        {WorkOrderStatusReady, WorkOrderStatusAssigned},
	WorkOrderStatusReady:             {WorkOrderStatusDelivered, WorkOrderStatusInProgress},
	WorkOrderStatusDelivered:         nil,
}

// ValidWorkOrderStatus reports whether s is one of the five known statuses.
func ValidWorkOrderStatus(s WorkOrderStatus) bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransition reports whether the fixed table allows moving from one
// status to another. It knows nothing about mechanics; the caller layers
// the assignment guard on top.
func CanTransition(from, to WorkOrderStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from the given one.
func AllowedTransitions(from WorkOrderStatus) []WorkOrderStatus {
	return statusTransitions[from]
}

// WorkOrder is the authorized repair job created when a quote is approved.
// The vehicle fields are a snapshot taken at approval time and never track
// later edits to the quote.
type WorkOrder struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	Number            int64           `gorm:"not null;uniqueIndex" json:"number"`
	QuoteID           uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"quote_id"`
	ClientID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"client_id"`
	MechanicID        *uuid.UUID      `gorm:"type:uuid;index" json:"mechanic_id,omitempty"`
	Vehicle           Vehicle         `gorm:"embedded;embeddedPrefix:vehicle_" json:"vehicle"`
	Description       string          `gorm:"type:text;not null" json:"description"`
	EstimatedCost     float64         `gorm:"not null" json:"estimated_cost"`
	FinalCost         *float64        `json:"final_cost,omitempty"`
	Status            WorkOrderStatus `gorm:"type:work_order_status;not null;default:pendiente_asignacion" json:"status"`
	StatusHistory     []StatusChange  `gorm:"foreignKey:WorkOrderID" json:"status_history,omitempty"`
	Notifications     []Notification  `gorm:"foreignKey:WorkOrderID" json:"notifications,omitempty"`
	ReadyEmailSent    bool            `gorm:"not null;default:false" json:"ready_email_sent"`
	EstimatedDelivery *time.Time      `json:"estimated_delivery,omitempty"`
	DeliveredAt       *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         *time.Time      `json:"deleted_at,omitempty"`
	DeletedBy         *uuid.UUID      `gorm:"type:uuid" json:"deleted_by,omitempty"`
}

func (WorkOrder) TableName() string {
	return "work_orders"
}

func (o *WorkOrder) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// StatusChange is one immutable entry in a work order's status history.
type StatusChange struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	WorkOrderID uuid.UUID       `gorm:"type:uuid;not null;index" json:"work_order_id"`
	FromStatus  WorkOrderStatus `gorm:"type:work_order_status;not null" json:"from_status"`
	ToStatus    WorkOrderStatus `gorm:"type:work_order_status;not null" json:"to_status"`
	ActorID     *uuid.UUID      `gorm:"type:uuid" json:"actor_id,omitempty"`
	ActorLabel  string          `gorm:"size:200;not null" json:"actor_label"`
	Note        string          `gorm:"size:500" json:"note"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (StatusChange) TableName() string {
	return "work_order_status_changes"
}

func (s *StatusChange) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

type NotificationStatus string

const (
	NotificationStatusSent   NotificationStatus = "sent"
	NotificationStatusFailed NotificationStatus = "failed"
)

// Notification records one outbound email attempt outcome for a work order.
type Notification struct {
	ID          uuid.UUID          `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	WorkOrderID uuid.UUID          `gorm:"type:uuid;not null;index" json:"work_order_id"`
	Kind        string             `gorm:"size:50;not null" json:"kind"`
	Status      NotificationStatus `gorm:"type:notification_status;not null" json:"status"`
	Attempts    int                `gorm:"not null;default:1" json:"attempts"`
	Error       *string            `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time          `gorm:"autoCreateTime" json:"created_at"`
}

func (Notification) TableName() string {
	return "work_order_notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
