// internal/workers/delivery/notification-status/handler_test.go
package notificationstatus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"notification-engine/internal/common/logger"
	"notification-engine/internal/models"
	"notification-engine/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockNotificationGetter struct {
	GetByIDFunc func(ctx context.Context, id string) (*models.Notification, error)
}

func (m *MockNotificationGetter) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	return m.GetByIDFunc(ctx, id)
}

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}

func statusNotification(id string, recipients []models.RecipientStatus) *models.Notification {
	created := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	return &models.Notification{
		ID:         id,
		RuleID:     "rule-001",
		BusinessID: "biz-001",
		EventType:  "rating_low",
		Channel:    models.ChannelEmail,
		Recipients: recipients,
		Status:     models.StatusProcessing,
		Priority:   models.PriorityNormal,
		RetryCount: 1,
		MaxRetries: models.DefaultMaxRetries,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func newTestHandler(t *testing.T, getter NotificationGetter) *Handler {
	t.Helper()
	handler, err := NewHandler(createTestConfig(), getter, logger.NewTestLogger(t))
	require.NoError(t, err)
	return handler
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_ReturnsFullStatus(t *testing.T) {
	n := statusNotification("notif-001", []models.RecipientStatus{
		{Type: "email", Value: "a@example.com", Status: models.RecipientSent},
		{Type: "email", Value: "b@example.com", Status: models.RecipientDelivered},
		{Type: "email", Value: "c@example.com", Status: models.RecipientFailed, RetryCount: 2},
		{Type: "email", Value: "d@example.com", Status: models.RecipientPending},
	})

	getter := &MockNotificationGetter{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Notification, error) {
			assert.Equal(t, "notif-001", id)
			return n, nil
		},
	}

	handler := newTestHandler(t, getter)
	output, err := handler.Execute(context.Background(), &Input{NotificationID: "notif-001"})

	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, output.Status)
	// Delivered counts toward the rate alongside sent.
	assert.Equal(t, 50.0, output.SuccessRate)
	assert.Equal(t, 1, output.RetryCount)
	assert.Equal(t, models.DefaultMaxRetries, output.MaxRetries)
	require.Len(t, output.Recipients, 4)
	assert.Equal(t, RecipientOutput{Value: "a@example.com", Status: models.RecipientSent}, output.Recipients[0])
	assert.Equal(t, RecipientOutput{Value: "c@example.com", Status: models.RecipientFailed, RetryCount: 2}, output.Recipients[2])
}

func TestHandler_Execute_RoundsSuccessRate(t *testing.T) {
	n := statusNotification("notif-002", []models.RecipientStatus{
		{Type: "email", Value: "a@example.com", Status: models.RecipientSent},
		{Type: "email", Value: "b@example.com", Status: models.RecipientSent},
		{Type: "email", Value: "c@example.com", Status: models.RecipientFailed},
	})

	getter := &MockNotificationGetter{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Notification, error) {
			return n, nil
		},
	}

	handler := newTestHandler(t, getter)
	output, err := handler.Execute(context.Background(), &Input{NotificationID: "notif-002"})

	require.NoError(t, err)
	assert.Equal(t, 66.67, output.SuccessRate)
}

func TestHandler_Execute_NoRecipients(t *testing.T) {
	n := statusNotification("notif-003", nil)
	n.Status = models.StatusPending
	n.RetryCount = 0

	getter := &MockNotificationGetter{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Notification, error) {
			return n, nil
		},
	}

	handler := newTestHandler(t, getter)
	output, err := handler.Execute(context.Background(), &Input{NotificationID: "notif-003"})

	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, output.Status)
	assert.Equal(t, 0.0, output.SuccessRate)
	assert.NotNil(t, output.Recipients)
	assert.Empty(t, output.Recipients)
}

func TestHandler_Execute_NotFound(t *testing.T) {
	getter := &MockNotificationGetter{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Notification, error) {
			return nil, fmt.Errorf("load notification: %w", store.ErrNotificationNotFound)
		},
	}

	handler := newTestHandler(t, getter)
	output, err := handler.Execute(context.Background(), &Input{NotificationID: "missing"})

	require.Error(t, err)
	assert.Nil(t, output)
	assert.ErrorIs(t, err, store.ErrNotificationNotFound)
}

func TestHandler_Execute_MissingID(t *testing.T) {
	storeHit := false
	getter := &MockNotificationGetter{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Notification, error) {
			storeHit = true
			return nil, nil
		},
	}

	handler := newTestHandler(t, getter)
	output, err := handler.Execute(context.Background(), &Input{})

	require.Error(t, err)
	assert.Nil(t, output)
	assert.ErrorIs(t, err, ErrMissingNotificationID)
	assert.False(t, storeHit)
}

// ==========================
// Constructor Tests
// ==========================

func TestNewHandler_RequiresStore(t *testing.T) {
	handler, err := NewHandler(createTestConfig(), nil, logger.NewTestLogger(t))

	require.Error(t, err)
	assert.Nil(t, handler)
	assert.Contains(t, err.Error(), "requires a notification store")
}
