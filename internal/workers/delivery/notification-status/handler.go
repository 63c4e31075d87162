// internal/workers/delivery/notification-status/handler.go
package notificationstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"notification-engine/internal/common/logger"
	"notification-engine/internal/lifecycle"
	"notification-engine/internal/models"
	"notification-engine/internal/store"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "notification-status"
)

var (
	ErrMissingNotificationID = errors.New("notificationId is required")
)

// NotificationGetter is the read-only slice of the store this worker needs.
type NotificationGetter interface {
	GetByID(ctx context.Context, id string) (*models.Notification, error)
}

type Handler struct {
	config *Config
	store  NotificationGetter
	logger logger.Logger
}

func NewHandler(config *Config, store NotificationGetter, log logger.Logger) (*Handler, error) {
	if store == nil {
		return nil, fmt.Errorf("%s requires a notification store", TaskType)
	}

	return &Handler{
		config: config,
		store:  store,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, "PARSE_ERROR", fmt.Sprintf("parse input: %v", err), 0)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		errorCode := "DATABASE_CONNECTION_FAILED"
		switch {
		case errors.Is(err, ErrMissingNotificationID):
			errorCode = "EVENT_INPUT_INVALID"
		case errors.Is(err, store.ErrNotificationNotFound):
			errorCode = "NOTIFICATION_NOT_FOUND"
		}
		h.failJob(client, job, errorCode, err.Error(), 0)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.NotificationID == "" {
		return nil, ErrMissingNotificationID
	}

	n, err := h.store.GetByID(ctx, input.NotificationID)
	if err != nil {
		return nil, err
	}

	recipients := make([]RecipientOutput, 0, len(n.Recipients))
	for _, r := range n.Recipients {
		recipients = append(recipients, RecipientOutput{
			Value:      r.Value,
			Status:     r.Status,
			RetryCount: r.RetryCount,
		})
	}

	// Two decimal places is plenty for a process variable.
	rate := math.Round(lifecycle.SuccessRate(n)*100) / 100

	h.logger.Info("status resolved", map[string]interface{}{
		"notificationId": n.ID,
		"status":         n.Status,
		"successRate":    rate,
	})

	return &Output{
		Status:      n.Status,
		SuccessRate: rate,
		RetryCount:  n.RetryCount,
		MaxRetries:  n.MaxRetries,
		Recipients:  recipients,
	}, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string, _ int32) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
	})

	_, err := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(errorCode).
		ErrorMessage(errorMessage).
		Send(context.Background())
	if err != nil {
		h.logger.Error("failed to throw error", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
