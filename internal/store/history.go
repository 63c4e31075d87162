package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"notification-engine/internal/common/logger"
	"notification-engine/internal/lifecycle"
	"notification-engine/internal/models"
)

const DefaultHistoryIndex = "notification-history"

// History writes terminal notifications into Elasticsearch for audit and
// search. It is an append-only mirror of the delivery outcome; the
// Postgres row stays the source of truth.
type History struct {
	es     *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewHistory(es *elasticsearch.Client, index string, log logger.Logger) *History {
	if index == "" {
		index = DefaultHistoryIndex
	}
	return &History{es: es, index: index, logger: log}
}

type historyDocument struct {
	NotificationID string             `json:"notificationId"`
	RuleID         string             `json:"ruleId"`
	BusinessID     string             `json:"businessId"`
	FranchiseID    string             `json:"franchiseId,omitempty"`
	EventType      string             `json:"eventType"`
	Channel        string             `json:"channel"`
	Status         string             `json:"status"`
	Priority       string             `json:"priority"`
	SuccessRate    float64            `json:"successRate"`
	RetryCount     int                `json:"retryCount"`
	MaxRetries     int                `json:"maxRetries"`
	Error          string             `json:"error,omitempty"`
	Recipients     []historyRecipient `json:"recipients"`
	SentAt         *time.Time         `json:"sentAt,omitempty"`
	FailedAt       *time.Time         `json:"failedAt,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	IndexedAt      time.Time          `json:"indexedAt"`
}

type historyRecipient struct {
	Type       string `json:"type"`
	Value      string `json:"value"`
	Status     string `json:"status"`
	RetryCount int    `json:"retryCount"`
	Error      string `json:"error,omitempty"`
}

// Index writes one notification's outcome document, keyed by the
// notification ID so re-indexing overwrites rather than duplicates.
func (h *History) Index(ctx context.Context, n *models.Notification) error {
	doc := historyDocument{
		NotificationID: n.ID,
		RuleID:         n.RuleID,
		BusinessID:     n.BusinessID,
		FranchiseID:    n.FranchiseID,
		EventType:      n.EventType,
		Channel:        n.Channel,
		Status:         n.Status,
		Priority:       n.Priority,
		SuccessRate:    lifecycle.SuccessRate(n),
		RetryCount:     n.RetryCount,
		MaxRetries:     n.MaxRetries,
		Error:          n.Error,
		Recipients:     make([]historyRecipient, 0, len(n.Recipients)),
		SentAt:         n.SentAt,
		FailedAt:       n.FailedAt,
		CreatedAt:      n.CreatedAt,
		IndexedAt:      time.Now().UTC(),
	}
	for _, r := range n.Recipients {
		doc.Recipients = append(doc.Recipients, historyRecipient{
			Type:       r.Type,
			Value:      r.Value,
			Status:     r.Status,
			RetryCount: r.RetryCount,
			Error:      r.Error,
		})
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal history document: %v", err)
	}

	req := esapi.IndexRequest{
		Index:      h.index,
		DocumentID: n.ID,
		Body:       bytes.NewReader(body),
	}

	res, err := req.Do(ctx, h.es)
	if err != nil {
		return fmt.Errorf("index history document: %v", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index history document: %s", res.String())
	}

	h.logger.Debug("notification indexed to history", map[string]interface{}{
		"notificationId": n.ID,
		"status":         n.Status,
		"index":          h.index,
	})
	return nil
}
