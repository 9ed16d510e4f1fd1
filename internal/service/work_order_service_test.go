package service

import (
	"context"
	"strings"
	"time"

	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"workshop-service/internal/model"
	"workshop-service/internal/repository"
)

type fakeMechanics struct {
	mechanics map[string]*model.Mechanic
}

func (m *fakeMechanics) GetByID(_ context.Context, id string) (*model.Mechanic, error) {
	mech, ok := m.mechanics[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return mech, nil
}

// fakeWorkOrderStore mirrors the real store's compare-and-swap transition
// semantics in memory.
type fakeWorkOrderStore struct {
	orders map[string]*model.WorkOrder
}

func newFakeWorkOrderStore() *fakeWorkOrderStore {
	return &fakeWorkOrderStore{orders: map[string]*model.WorkOrder{}}
}

func (f *fakeWorkOrderStore) GetByID(_ context.Context, id string) (*model.WorkOrder, error) {
	order, ok := f.orders[id]
	if !ok || order.DeletedAt != nil {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *order
	return &copied, nil
}

func (f *fakeWorkOrderStore) GetByIDWithHistory(ctx context.Context, id string) (*model.WorkOrder, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeWorkOrderStore) List(_ context.Context, _ repository.WorkOrderListFilter) ([]model.WorkOrder, error) {
	var out []model.WorkOrder
	for _, o := range f.orders {
		if o.DeletedAt == nil {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeWorkOrderStore) UpdateFields(_ context.Context, orderID string, fields map[string]interface{}) error {
	order, ok := f.orders[orderID]
	if !ok || order.DeletedAt != nil {
		return gorm.ErrRecordNotFound
	}
	for k, v := range fields {
		switch k {
		case "description":
			order.Description = v.(string)
		case "estimated_cost":
			order.EstimatedCost = v.(float64)
		case "final_cost":
			cost := v.(float64)
			order.FinalCost = &cost
		case "estimated_delivery":
			when := v.(time.Time)
			order.EstimatedDelivery = &when
		}
	}
	return nil
}

func (f *fakeWorkOrderStore) ChangeStatus(_ context.Context, orderID string, upd repository.StatusUpdate) (*model.WorkOrder, error) {
	order, ok := f.orders[orderID]
	if !ok || order.DeletedAt != nil {
		return nil, gorm.ErrRecordNotFound
	}
	if order.Status != upd.From {
		return nil, repository.ErrStaleStatus
	}

	order.Status = upd.To
	for k, v := range upd.Extra {
		switch k {
		case "delivered_at":
			when := v.(time.Time)
			order.DeliveredAt = &when
		case "mechanic_id":
			if v == nil {
				order.MechanicID = nil
			} else {
				id := v.(uuid.UUID)
				order.MechanicID = &id
			}
		}
	}

	entry := upd.Entry
	entry.CreatedAt = time.Now()
	order.StatusHistory = append(order.StatusHistory, entry)

	copied := *order
	return &copied, nil
}

func (f *fakeWorkOrderStore) RecordNotification(_ context.Context, n *model.Notification, markSent bool) error {
	order, ok := f.orders[n.WorkOrderID.String()]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	order.Notifications = append(order.Notifications, *n)
	if markSent {
		order.ReadyEmailSent = true
	}
	return nil
}

func (f *fakeWorkOrderStore) SoftDelete(_ context.Context, orderID string, actor uuid.UUID, now time.Time) error {
	order, ok := f.orders[orderID]
	if !ok || order.DeletedAt != nil {
		return gorm.ErrRecordNotFound
	}
	if order.Status != model.WorkOrderStatusPendingAssignment {
		return repository.ErrStaleStatus
	}
	order.DeletedAt = &now
	order.DeletedBy = &actor
	return nil
}

type orderFixture struct {
	svc      *WorkOrderService
	store    *fakeWorkOrderStore
	mailer   *fakeMailer
	mechanic *model.Mechanic
	order    *model.WorkOrder
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()

	client := &model.Client{ID: uuid.New(), Name: "Carlos", Email: "carlos@example.com"}
	clients := &fakeClients{clients: map[string]*model.Client{client.ID.String(): client}}

	mechanic := &model.Mechanic{ID: uuid.New(), Name: "Pedro", Active: true}
	mechanics := &fakeMechanics{mechanics: map[string]*model.Mechanic{mechanic.ID.String(): mechanic}}

	store := newFakeWorkOrderStore()
	order := &model.WorkOrder{
		ID:            uuid.New(),
		Number:        1001,
		QuoteID:       uuid.New(),
		ClientID:      client.ID,
		Vehicle:       model.Vehicle{Brand: "Toyota", Model: "Corolla", Year: 2019, Plate: "AB123CD"},
		Description:   "cambio de bujes y alineación",
		EstimatedCost: 100000,
		Status:        model.WorkOrderStatusPendingAssignment,
	}
	store.orders[order.ID.String()] = order

	mailer := &fakeMailer{}
	svc := NewWorkOrderService(store, mechanics, clients, mailer, &fakeAudit{}, nil, zerolog.Nop())

	return &orderFixture{svc: svc, store: store, mailer: mailer, mechanic: mechanic, order: order}
}

// advance walks the order through transitions the fixture already trusts.
func (fx *orderFixture) advance(t *testing.T, targets ...model.WorkOrderStatus) {
	t.Helper()
	ctx := context.Background()
	for _, target := range targets {
		if target == model.WorkOrderStatusAssigned && fx.store.orders[fx.order.ID.String()].MechanicID == nil {
			_, err := fx.svc.AssignMechanic(ctx, testPrincipal(), fx.order.ID.String(), fx.mechanic.ID.String(), "")
			require.NoError(t, err)
			continue
		}
		_, err := fx.svc.ChangeStatus(ctx, testPrincipal(), fx.order.ID.String(), StatusChangeInput{Target: target})
		require.NoError(t, err)
	}
}

func TestWorkOrderService_AssignMechanic(t *testing.T) {
	fx := newOrderFixture(t)

	updated, err := fx.svc.AssignMechanic(context.Background(), testPrincipal(), fx.order.ID.String(), fx.mechanic.ID.String(), "")
	require.NoError(t, err)

	assert.Equal(t, model.WorkOrderStatusAssigned, updated.Status)
	require.NotNil(t, updated.MechanicID)
	assert.Equal(t, fx.mechanic.ID, *updated.MechanicID)

	stored := fx.store.orders[fx.order.ID.String()]
	require.Len(t, stored.StatusHistory, 1)
	assert.Equal(t, "asignada a Pedro", stored.StatusHistory[0].Note)
}

func TestWorkOrderService_AssignInactiveMechanic(t *testing.T) {
	fx := newOrderFixture(t)
	fx.mechanic.Active = false

	_, err := fx.svc.AssignMechanic(context.Background(), testPrincipal(), fx.order.ID.String(), fx.mechanic.ID.String(), "")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestWorkOrderService_CannotSkipStates(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	// Straight from awaiting assignment to ready skips two states.
	_, err := fx.svc.ChangeStatus(ctx, testPrincipal(), fx.order.ID.String(), StatusChangeInput{Target: model.WorkOrderStatusReady})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	fx.advance(t, model.WorkOrderStatusAssigned)
	_, err = fx.svc.ChangeStatus(ctx, testPrincipal(), fx.order.ID.String(), StatusChangeInput{Target: model.WorkOrderStatusReady})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestWorkOrderService_UnknownStatusRejected(t *testing.T) {
	fx := newOrderFixture(t)

	_, err := fx.svc.ChangeStatus(context.Background(), testPrincipal(), fx.order.ID.String(), StatusChangeInput{Target: "finalizado"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestWorkOrderService_StartWorkRequiresMechanic(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	fx.advance(t, model.WorkOrderStatusAssigned)

	// Unassigning steps the order back and releases the mechanic.
	updated, err := fx.svc.ChangeStatus(ctx, testPrincipal(), fx.order.ID.String(), StatusChangeInput{Target: model.WorkOrderStatusPendingAssignment})
	require.NoError(t, err)
	assert.Nil(t, updated.MechanicID)

	// Force the inconsistent shape directly: asignada with no mechanic.
	fx.store.orders[fx.order.ID.String()].Status = model.WorkOrderStatusAssigned
	_, err = fx.svc.ChangeStatus(ctx, testPrincipal(), fx.order.ID.String(), StatusChangeInput{Target: model.WorkOrderStatusInProgress})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestWorkOrderService_DeliveredStampsTimestampAndIsTerminal(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	fx.advance(t, model.WorkOrderStatusAssigned, model.WorkOrderStatusInProgress, model.WorkOrderStatusReady)

	updated, err := fx.svc.ChangeStatus(ctx, testPrincipal(), fx.order.ID.String(), StatusChangeInput{Target: model.WorkOrderStatusDelivered})
	require.NoError(t, err)
	require.NotNil(t, updated.DeliveredAt)
	assert.WithinDuration(t, time.Now(), *updated.DeliveredAt, time.Minute)

	for _, target := range []model.WorkOrderStatus{
		model.WorkOrderStatusPendingAssignment,
		model.WorkOrderStatusAssigned,
		model.WorkOrderStatusInProgress,
		model.WorkOrderStatusReady,
	} {
		_, err := fx.svc.ChangeStatus(ctx, testPrincipal(), fx.order.ID.String(), StatusChangeInput{Target: target})
		assert.ErrorIs(t, err, ErrInvalidTransition, "entregado -> %s", target)
	}
}

func TestWorkOrderService_ReadySendsExactlyOneNotification(t *testing.T) {
	fx := newOrderFixture(t)

	fx.advance(t, model.WorkOrderStatusAssigned, model.WorkOrderStatusInProgress, model.WorkOrderStatusReady)

	assert.Equal(t, 1, fx.mailer.sentCount())
	stored := fx.store.orders[fx.order.ID.String()]
	assert.True(t, stored.ReadyEmailSent)
	require.Len(t, stored.Notifications, 1)
	assert.Equal(t, model.NotificationStatusSent, stored.Notifications[0].Status)

	// Bouncing back and re-entering listo does not repeat the email.
	fx.advance(t, model.WorkOrderStatusInProgress, model.WorkOrderStatusReady)
	assert.Equal(t, 1, fx.mailer.sentCount())
	assert.Len(t, fx.store.orders[fx.order.ID.String()].Notifications, 1)
}

func TestWorkOrderService_ReadyNotificationFailureIsNonFatal(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	fx.advance(t, model.WorkOrderStatusAssigned, model.WorkOrderStatusInProgress)

	// Exhaust the full retry budget so the dispatch fails outright.
	fx.mailer.fails = 3
	updated, err := fx.svc.ChangeStatus(ctx, testPrincipal(), fx.order.ID.String(), StatusChangeInput{Target: model.WorkOrderStatusReady})
	require.NoError(t, err)

	assert.Equal(t, model.WorkOrderStatusReady, updated.Status)
	assert.False(t, updated.ReadyEmailSent)

	stored := fx.store.orders[fx.order.ID.String()]
	require.Len(t, stored.Notifications, 1)
	assert.Equal(t, model.NotificationStatusFailed, stored.Notifications[0].Status)
	require.NotNil(t, stored.Notifications[0].Error)

	// Re-entering listo retries the failed send.
	fx.advance(t, model.WorkOrderStatusInProgress, model.WorkOrderStatusReady)
	assert.Equal(t, 1, fx.mailer.sentCount())
	assert.True(t, fx.store.orders[fx.order.ID.String()].ReadyEmailSent)
	assert.Len(t, fx.store.orders[fx.order.ID.String()].Notifications, 2)
}

func TestWorkOrderService_NoteLengthLimit(t *testing.T) {
	fx := newOrderFixture(t)

	_, err := fx.svc.ChangeStatus(context.Background(), testPrincipal(), fx.order.ID.String(), StatusChangeInput{
		Target: model.WorkOrderStatusAssigned,
		Note:   strings.Repeat("x", maxStatusNoteLength+1),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestWorkOrderService_StaleTransitionConflicts(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	fx.advance(t, model.WorkOrderStatusAssigned)

	// Another actor moves the order between this caller's read and write.
	stored := fx.store.orders[fx.order.ID.String()]
	before, err := fx.svc.Get(ctx, fx.order.ID.String())
	require.NoError(t, err)
	assert.Equal(t, model.WorkOrderStatusAssigned, before.Status)

	stored.Status = model.WorkOrderStatusInProgress

	_, err = fx.store.ChangeStatus(ctx, fx.order.ID.String(), repository.StatusUpdate{
		From: model.WorkOrderStatusAssigned,
		To:   model.WorkOrderStatusInProgress,
	})
	assert.ErrorIs(t, err, repository.ErrStaleStatus)
}

func TestWorkOrderService_HistoryAppendsPerTransition(t *testing.T) {
	fx := newOrderFixture(t)

	fx.advance(t, model.WorkOrderStatusAssigned, model.WorkOrderStatusInProgress, model.WorkOrderStatusReady, model.WorkOrderStatusDelivered)

	stored := fx.store.orders[fx.order.ID.String()]
	require.Len(t, stored.StatusHistory, 4)
	assert.Equal(t, model.WorkOrderStatusPendingAssignment, stored.StatusHistory[0].FromStatus)
	assert.Equal(t, model.WorkOrderStatusDelivered, stored.StatusHistory[3].ToStatus)
	for _, entry := range stored.StatusHistory {
		assert.NotEmpty(t, entry.ActorLabel)
	}
}

func TestWorkOrderService_UpdateValidation(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Update(ctx, testPrincipal(), fx.order.ID.String(), WorkOrderUpdateInput{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	badCost := -5.0
	_, err = fx.svc.Update(ctx, testPrincipal(), fx.order.ID.String(), WorkOrderUpdateInput{FinalCost: &badCost})
	assert.ErrorIs(t, err, ErrInvalidInput)

	finalCost := 120000.0
	updated, err := fx.svc.Update(ctx, testPrincipal(), fx.order.ID.String(), WorkOrderUpdateInput{FinalCost: &finalCost})
	require.NoError(t, err)
	require.NotNil(t, updated.FinalCost)
	assert.Equal(t, finalCost, *updated.FinalCost)
}

func TestWorkOrderService_DeliveredOrdersAreFrozen(t *testing.T) {
	fx := newOrderFixture(t)

	fx.advance(t, model.WorkOrderStatusAssigned, model.WorkOrderStatusInProgress, model.WorkOrderStatusReady, model.WorkOrderStatusDelivered)

	desc := "trabajo extra"
	_, err := fx.svc.Update(context.Background(), testPrincipal(), fx.order.ID.String(), WorkOrderUpdateInput{Description: &desc})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestWorkOrderService_DeleteOnlyWhileAwaitingAssignment(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	fx.advance(t, model.WorkOrderStatusAssigned)
	err := fx.svc.Delete(ctx, testPrincipal(), fx.order.ID.String())
	assert.ErrorIs(t, err, ErrConflict)

	fx.advance(t, model.WorkOrderStatusPendingAssignment)
	require.NoError(t, fx.svc.Delete(ctx, testPrincipal(), fx.order.ID.String()))

	_, err = fx.svc.Get(ctx, fx.order.ID.String())
	assert.ErrorIs(t, err, ErrNotFound)
}
