package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"notification-engine/internal/common/logger"
	"notification-engine/internal/models"
)

var (
	ErrNotificationNotFound = errors.New("NOTIFICATION_NOT_FOUND")
	ErrStatusConflict       = errors.New("NOTIFICATION_STATUS_CONFLICT")
	ErrPersistFailed        = errors.New("NOTIFICATION_PERSIST_FAILED")
)

// Notifications persists constructed notifications and their delivery
// state. Delivery writes are optimistic: they carry the status the writer
// last saw, and a conflict surfaces as ErrStatusConflict instead of a
// silent overwrite.
type Notifications struct {
	db     *sql.DB
	logger logger.Logger
}

func NewNotifications(db *sql.DB, log logger.Logger) *Notifications {
	return &Notifications{db: db, logger: log}
}

const notificationColumns = `id, rule_id, business_id, franchise_id, event_type, channel,
		trigger_data, recipients, content, status, priority, scheduled_for,
		sent_at, failed_at, error, retry_count, max_retries, retry_delay_minutes,
		created_at, updated_at`

// Insert writes a batch of notifications in one transaction, so a firing
// rule's actions land together or not at all.
func (s *Notifications) Insert(ctx context.Context, notifications []*models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin failed: %v", ErrPersistFailed, err)
	}
	defer tx.Rollback()

	for _, n := range notifications {
		triggerDataJSON, recipientsJSON, contentJSON, err := marshalNotificationDocuments(n)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPersistFailed, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO notifications (
				id, rule_id, business_id, franchise_id, event_type, channel,
				trigger_data, recipients, content, status, priority, scheduled_for,
				error, retry_count, max_retries, retry_delay_minutes, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			n.ID,
			n.RuleID,
			n.BusinessID,
			nullString(n.FranchiseID),
			n.EventType,
			n.Channel,
			triggerDataJSON,
			recipientsJSON,
			contentJSON,
			n.Status,
			n.Priority,
			n.ScheduledFor,
			nullString(n.Error),
			n.RetryCount,
			n.MaxRetries,
			n.RetryDelayMinutes,
			n.CreatedAt,
			n.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("%w: insert %s failed: %v", ErrPersistFailed, n.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit failed: %v", ErrPersistFailed, err)
	}
	return nil
}

// ClaimDue atomically moves due pending notifications to processing and
// returns them. SKIP LOCKED lets multiple dispatchers poll the same table
// without handing out the same row twice. Urgent work first, then by
// schedule time.
func (s *Notifications) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE notifications SET status = 'processing', updated_at = $2
		WHERE id IN (
			SELECT id FROM notifications
			WHERE status = 'pending' AND scheduled_for <= $1
			ORDER BY
				CASE priority
					WHEN 'urgent' THEN 0
					WHEN 'high' THEN 1
					WHEN 'normal' THEN 2
					ELSE 3
				END,
				scheduled_for
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+notificationColumns,
		now, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: claim failed: %v", ErrPersistFailed, err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

// FindRetryable returns failed notifications whose retry budget and
// retry delay both allow another attempt at now.
func (s *Notifications) FindRetryable(ctx context.Context, now time.Time, limit int) ([]*models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE status = 'failed'
		  AND retry_count < max_retries
		  AND failed_at + (retry_delay_minutes * interval '1 minute') <= $1
		ORDER BY failed_at
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: retryable query failed: %v", ErrPersistFailed, err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

// GetByID loads one notification.
func (s *Notifications) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE id = $1`,
		id,
	)

	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: notification %s", ErrNotificationNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get failed: %v", ErrPersistFailed, err)
	}
	return n, nil
}

// UpdateDelivery persists the notification's delivery state, guarded by
// the status the caller read before mutating. Zero rows affected means
// another writer won the race.
func (s *Notifications) UpdateDelivery(ctx context.Context, n *models.Notification, expectStatus string) error {
	recipientsJSON, err := json.Marshal(n.Recipients)
	if err != nil {
		return fmt.Errorf("%w: marshal recipients: %v", ErrPersistFailed, err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET
			status = $3, recipients = $4, scheduled_for = $5,
			sent_at = $6, failed_at = $7, error = $8,
			retry_count = $9, updated_at = $10
		WHERE id = $1 AND status = $2`,
		n.ID,
		expectStatus,
		n.Status,
		recipientsJSON,
		n.ScheduledFor,
		nullTime(n.SentAt),
		nullTime(n.FailedAt),
		nullString(n.Error),
		n.RetryCount,
		n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: delivery update failed: %v", ErrPersistFailed, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", ErrPersistFailed, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: notification %s no longer %s", ErrStatusConflict, n.ID, expectStatus)
	}
	return nil
}

func marshalNotificationDocuments(n *models.Notification) ([]byte, []byte, []byte, error) {
	triggerDataJSON, err := json.Marshal(n.TriggerData)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal trigger data: %v", err)
	}
	recipientsJSON, err := json.Marshal(n.Recipients)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal recipients: %v", err)
	}
	contentJSON, err := json.Marshal(n.Content)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal content: %v", err)
	}
	return triggerDataJSON, recipientsJSON, contentJSON, nil
}

func collectNotifications(rows *sql.Rows) ([]*models.Notification, error) {
	var notifications []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan failed: %v", ErrPersistFailed, err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows failed: %v", ErrPersistFailed, err)
	}
	return notifications, nil
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var (
		n               models.Notification
		franchiseID     sql.NullString
		triggerDataJSON []byte
		recipientsJSON  []byte
		contentJSON     []byte
		sentAt          sql.NullTime
		failedAt        sql.NullTime
		errMessage      sql.NullString
	)

	err := row.Scan(
		&n.ID,
		&n.RuleID,
		&n.BusinessID,
		&franchiseID,
		&n.EventType,
		&n.Channel,
		&triggerDataJSON,
		&recipientsJSON,
		&contentJSON,
		&n.Status,
		&n.Priority,
		&n.ScheduledFor,
		&sentAt,
		&failedAt,
		&errMessage,
		&n.RetryCount,
		&n.MaxRetries,
		&n.RetryDelayMinutes,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if franchiseID.Valid {
		n.FranchiseID = franchiseID.String
	}
	if sentAt.Valid {
		t := sentAt.Time
		n.SentAt = &t
	}
	if failedAt.Valid {
		t := failedAt.Time
		n.FailedAt = &t
	}
	if errMessage.Valid {
		n.Error = errMessage.String
	}

	if len(triggerDataJSON) > 0 {
		if err := json.Unmarshal(triggerDataJSON, &n.TriggerData); err != nil {
			return nil, fmt.Errorf("unmarshal trigger data: %v", err)
		}
	}
	if len(recipientsJSON) > 0 {
		if err := json.Unmarshal(recipientsJSON, &n.Recipients); err != nil {
			return nil, fmt.Errorf("unmarshal recipients: %v", err)
		}
	}
	if len(contentJSON) > 0 {
		if err := json.Unmarshal(contentJSON, &n.Content); err != nil {
			return nil, fmt.Errorf("unmarshal content: %v", err)
		}
	}

	return &n, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
