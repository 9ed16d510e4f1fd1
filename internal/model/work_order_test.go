package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_AllowedMoves(t *testing.T) {
	allowed := [][2]WorkOrderStatus{
		{WorkOrderStatusPendingAssignment, WorkOrderStatusAssigned},
		{WorkOrderStatusAssigned, WorkOrderStatusInProgress},
		{WorkOrderStatusAssigned, WorkOrderStatusPendingAssignment},
		{WorkOrderStatusInProgress, WorkOrderStatusReady},
		{WorkOrderStatusInProgress, WorkOrderStatusAssigned},
		{WorkOrderStatusReady, WorkOrderStatusDelivered},
		{WorkOrderStatusReady, WorkOrderStatusInProgress},
	}

	for _, pair := range allowed {
		assert.True(t, CanTransition(pair[0], pair[1]), "%s -> %s should be allowed", pair[0], pair[1])
	}
}

func TestCanTransition_RejectsEverythingElse(t *testing.T) {
	statuses := []WorkOrderStatus{
		WorkOrderStatusPendingAssignment,
		WorkOrderStatusAssigned,
		WorkOrderStatusInProgress,
		WorkOrderStatusReady,
		WorkOrderStatusDelivered,
	}

	allowed := map[[2]WorkOrderStatus]bool{
		{WorkOrderStatusPendingAssignment, WorkOrderStatusAssigned}: true,
		{WorkOrderStatusAssigned, WorkOrderStatusInProgress}:        true,
		{WorkOrderStatusAssigned, WorkOrderStatusPendingAssignment}: true,
		{WorkOrderStatusInProgress, WorkOrderStatusReady}:           true,
		{WorkOrderStatusInProgress, WorkOrderStatusAssigned}:        true,
		{WorkOrderStatusReady, WorkOrderStatusDelivered}:            true,
		{WorkOrderStatusReady, WorkOrderStatusInProgress}:           true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			got := CanTransition(from, to)
			assert.Equal(t, allowed[[2]WorkOrderStatus{from, to}], got, "%s -> %s", from, to)
		}
	}
}

func TestCanTransition_DeliveredIsTerminal(t *testing.T) {
	assert.Empty(t, AllowedTransitions(WorkOrderStatusDelivered))
}

func TestCanTransition_UnknownStatus(t *testing.T) {
	assert.False(t, CanTransition("garbage", WorkOrderStatusAssigned))
	assert.False(t, ValidWorkOrderStatus("garbage"))
	assert.True(t, ValidWorkOrderStatus(WorkOrderStatusReady))
}
