package cancelnotification

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"notification-engine/internal/common/camunda"
	"notification-engine/internal/common/clock"
	"notification-engine/internal/common/config"
	"notification-engine/internal/common/errors"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/common/metrics"
	"notification-engine/internal/common/validation"
	"notification-engine/internal/lifecycle"
	"notification-engine/internal/models"
	"notification-engine/internal/store"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "notification-cancel"

// NotificationStore is the slice of the store this worker needs: load one
// notification, write it back with an optimistic status check.
type NotificationStore interface {
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	UpdateDelivery(ctx context.Context, n *models.Notification, expectStatus string) error
}

// HistorySink records cancelled notifications, which are terminal.
type HistorySink interface {
	Index(ctx context.Context, n *models.Notification) error
}

type Handler struct {
	config    *Config
	logger    logger.Logger
	camunda   *camunda.Client
	store     NotificationStore
	history   HistorySink
	clock     clock.Clock
	jobWorker worker.JobWorker
}

type HandlerOptions struct {
	AppConfig    *config.Config
	Camunda      *camunda.Client
	CustomConfig *Config
	Store        NotificationStore
	History      HistorySink
	Clock        clock.Clock
	Logger       logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)

	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}

	if opts.Store == nil {
		return nil, fmt.Errorf("%s requires a notification store", TaskType)
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.NewReal()
	}

	var loggerInstance logger.Logger
	if opts.Logger != nil {
		loggerInstance = opts.Logger
	} else {
		loggerInstance = logger.NewStructured("info", "json")
	}

	return &Handler{
		config:  workerConfig,
		logger:  loggerInstance,
		camunda: opts.Camunda,
		store:   opts.Store,
		history: opts.History,
		clock:   clk,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("Processing cancellation request", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
		"worker":             TaskType,
	})

	if !h.config.Enabled {
		h.logger.Info("Worker disabled by configuration", map[string]interface{}{
			"worker": TaskType,
		})
		h.completeJob(ctx, client, job, &Output{Cancelled: false})
		return
	}

	input, err := h.parseInput(job)
	if err != nil {
		errorCode := extractErrorCode(err)
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, errorCode).Inc()
		h.failJob(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		errorCode := extractErrorCode(err)
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, errorCode).Inc()
		h.failJob(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

// Execute cancels one notification. A notification that is already
// terminal is reported back with cancelled=false rather than as an error,
// so processes can branch on the outcome.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.NotificationID == "" {
		return nil, errors.NewEventInputInvalidError("notificationId must be non-empty")
	}

	n, err := h.store.GetByID(ctx, input.NotificationID)
	if err != nil {
		if stderrors.Is(err, store.ErrNotificationNotFound) {
			return nil, errors.NewNotificationNotFoundError(input.NotificationID)
		}
		return nil, errors.NewDatabaseConnectionFailedError(err)
	}

	prevStatus := n.Status
	now := h.clock.Now()

	if !lifecycle.Cancel(n, now, input.Reason) {
		h.logger.Info("Notification already terminal, nothing to cancel", map[string]interface{}{
			"notificationId": n.ID,
			"status":         n.Status,
			"worker":         TaskType,
		})
		return &Output{Cancelled: false, Status: n.Status}, nil
	}

	if err := h.store.UpdateDelivery(ctx, n, prevStatus); err != nil {
		if stderrors.Is(err, store.ErrStatusConflict) {
			return nil, errors.NewCancelConflictError(n.ID, prevStatus)
		}
		return nil, errors.NewNotificationPersistFailedError(err)
	}

	if h.history != nil {
		if err := h.history.Index(ctx, n); err != nil {
			h.logger.Warn("Failed to index cancelled notification", map[string]interface{}{
				"notificationId": n.ID,
				"error":          err.Error(),
				"worker":         TaskType,
			})
		}
	}

	h.logger.Info("Notification cancelled", map[string]interface{}{
		"notificationId": n.ID,
		"previousStatus": prevStatus,
		"reason":         input.Reason,
		"worker":         TaskType,
	})

	return &Output{Cancelled: true, Status: n.Status}, nil
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, &errors.StandardError{
			Code:      "INPUT_PARSING_FAILED",
			Message:   "Failed to parse job variables",
			Details:   err.Error(),
			Retryable: false,
			Timestamp: time.Now(),
		}
	}

	schema := GetInputSchema()
	validationResult := validation.ValidateInput(variables, schema)
	if !validationResult.Valid {
		return nil, &errors.StandardError{
			Code:      errors.ErrCodeEventInputInvalid,
			Message:   "Input validation failed",
			Details:   fmt.Sprintf("Validation errors: %v", validationResult.GetErrorMessages()),
			Retryable: false,
			Timestamp: time.Now(),
		}
	}

	input := &Input{
		NotificationID: variables["notificationId"].(string),
	}

	if reason, ok := variables["reason"].(string); ok {
		input.Reason = reason
	}

	return input, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	variables := map[string]interface{}{
		"cancelled": output.Cancelled,
		"status":    output.Status,
	}

	request, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromMap(variables)
	if err != nil {
		h.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
			"worker": TaskType,
		})
		return
	}

	_, err = request.Send(ctx)
	if err != nil {
		h.logger.Error("Failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
			"worker": TaskType,
		})
	} else {
		h.logger.Info("Successfully completed cancellation", map[string]interface{}{
			"jobKey":    job.GetKey(),
			"cancelled": output.Cancelled,
			"status":    output.Status,
			"worker":    TaskType,
		})
	}
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := convertToStandardError(err)
	bpmnErr := errors.ConvertToBPMNError(stdErr)

	h.logger.Error("Cancellation job failed", map[string]interface{}{
		"jobKey":       job.GetKey(),
		"errorCode":    bpmnErr.Code,
		"errorMessage": bpmnErr.Message,
		"retryable":    bpmnErr.Retryable,
		"retries":      bpmnErr.Retries,
		"worker":       TaskType,
	})

	failCmd := client.NewFailJobCommand().
		JobKey(job.GetKey()).
		Retries(int32(bpmnErr.Retries)).
		ErrorMessage(fmt.Sprintf("[%s] %s", bpmnErr.Code, bpmnErr.Message))

	var finalCmd interface {
		Send(context.Context) (*pb.FailJobResponse, error)
	}
	if len(bpmnErr.ErrorVariables) > 0 {
		varCmd, varErr := failCmd.VariablesFromMap(bpmnErr.ToErrorVariables())
		if varErr != nil {
			h.logger.Error("Failed to set error variables, sending without them", map[string]interface{}{
				"jobKey": job.GetKey(),
				"error":  varErr.Error(),
				"worker": TaskType,
			})
			finalCmd = failCmd
		} else {
			finalCmd = varCmd
		}
	} else {
		finalCmd = failCmd
	}

	_, failErr := finalCmd.Send(ctx)
	if failErr != nil {
		h.logger.Error("Failed to send BPMN error to Camunda", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  failErr.Error(),
			"worker": TaskType,
		})
	}
}

func (h *Handler) Register() error {
	if !h.config.Enabled {
		h.logger.Info("Worker is disabled, skipping registration", map[string]interface{}{
			"worker": TaskType,
		})
		return nil
	}

	if h.camunda == nil {
		return fmt.Errorf("%s requires a camunda client to register", TaskType)
	}

	zeebeClient := h.camunda.GetClient()

	jobWorker := zeebeClient.NewJobWorker().
		JobType(TaskType).
		Handler(h.Handle).
		MaxJobsActive(h.config.MaxJobsActive).
		Timeout(h.config.Timeout).
		Name(fmt.Sprintf("%s-worker", TaskType)).
		Open()

	h.jobWorker = jobWorker

	h.logger.Info("Cancellation worker registered with Camunda", map[string]interface{}{
		"taskType":      TaskType,
		"maxJobsActive": h.config.MaxJobsActive,
		"timeout":       h.config.Timeout.String(),
		"enabled":       h.config.Enabled,
	})

	return nil
}

func (h *Handler) Close() {
	if h.jobWorker != nil {
		h.logger.Info("Shutting down worker gracefully", map[string]interface{}{
			"worker": TaskType,
		})
		h.jobWorker.Close()
		h.jobWorker = nil
	}
}

func extractErrorCode(err error) string {
	if stdErr, ok := err.(*errors.StandardError); ok {
		return string(stdErr.Code)
	}
	return "UNKNOWN_ERROR"
}

func convertToStandardError(err error) *errors.StandardError {
	if stdErr, ok := err.(*errors.StandardError); ok {
		return stdErr
	}
	return &errors.StandardError{
		Code:      errors.ErrCodeNotificationPersistFailed,
		Message:   "Failed to cancel notification",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now(),
	}
}
