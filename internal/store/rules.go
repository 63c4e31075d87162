// Package store persists rules and notifications in Postgres, with a
// Redis read-through cache for rule lookups and an Elasticsearch index
// for delivery history.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"notification-engine/internal/common/logger"
	"notification-engine/internal/common/metrics"
	"notification-engine/internal/common/validation"
	"notification-engine/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrRuleNotFound    = errors.New("RULE_NOT_FOUND")
	ErrRuleInvalid     = errors.New("RULE_DOCUMENT_INVALID")
	ErrRuleStoreFailed = errors.New("RULE_STORE_UNAVAILABLE")
)

// DefaultRuleCacheTTL bounds how stale a cached rule list can get.
const DefaultRuleCacheTTL = 30 * time.Second

// Rules reads and writes notification rules. Lookups go through Redis
// first; writes invalidate the affected cache key so the next lookup
// sees fresh rules within one TTL at worst.
type Rules struct {
	db     *sql.DB
	cache  *redis.Client
	logger logger.Logger
	ttl    time.Duration
}

// NewRules builds the store. cache may be nil, which disables caching.
func NewRules(db *sql.DB, cache *redis.Client, log logger.Logger, ttl time.Duration) *Rules {
	if ttl <= 0 {
		ttl = DefaultRuleCacheTTL
	}
	return &Rules{db: db, cache: cache, logger: log, ttl: ttl}
}

const ruleColumns = `id, business_id, franchise_id, name, event_type, conditions, actions, settings,
		total_triggered, total_sent, total_failed, last_triggered, created_at, updated_at`

// FindActiveRules returns the active rules for one business and event
// type in firing order: priority descending, then newest first. The
// ordering is part of the contract; callers evaluate rules as returned.
func (s *Rules) FindActiveRules(ctx context.Context, businessID, eventType string) ([]*models.Rule, error) {
	key := ruleCacheKey(businessID, eventType)

	if cached, ok := s.cacheGet(ctx, key); ok {
		metrics.RuleCacheHits.Inc()
		return cached, nil
	}
	metrics.RuleCacheMisses.Inc()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM notification_rules
		WHERE business_id = $1 AND event_type = $2 AND is_active
		ORDER BY priority DESC, created_at DESC`,
		businessID, eventType,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query failed: %v", ErrRuleStoreFailed, err)
	}
	defer rows.Close()

	var rules []*models.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan failed: %v", ErrRuleStoreFailed, err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows failed: %v", ErrRuleStoreFailed, err)
	}

	s.cacheSet(ctx, key, rules)

	return rules, nil
}

// GetByID loads one rule regardless of active state.
func (s *Rules) GetByID(ctx context.Context, id string) (*models.Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM notification_rules
		WHERE id = $1`,
		id,
	)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: rule %s", ErrRuleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get failed: %v", ErrRuleStoreFailed, err)
	}
	return rule, nil
}

// Create validates and inserts a new rule. Active flag and priority are
// denormalized into their own columns for the lookup path.
func (s *Rules) Create(ctx context.Context, rule *models.Rule) error {
	if err := validation.ValidateRule(rule); err != nil {
		return fmt.Errorf("%w: %v", ErrRuleInvalid, err)
	}

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	conditionsJSON, actionsJSON, settingsJSON, err := marshalRuleDocuments(rule)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRuleInvalid, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notification_rules (
			id, business_id, franchise_id, name, event_type,
			conditions, actions, settings, is_active, priority,
			total_triggered, total_sent, total_failed, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, 0, 0, $11, $11)`,
		rule.ID,
		rule.BusinessID,
		nullString(rule.FranchiseID),
		rule.Name,
		rule.EventType,
		conditionsJSON,
		actionsJSON,
		settingsJSON,
		rule.Settings.IsActive,
		rule.Settings.Priority,
		rule.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: insert failed: %v", ErrRuleStoreFailed, err)
	}

	s.invalidate(ctx, rule.BusinessID, rule.EventType)
	return nil
}

// Update validates and replaces a rule's definition. Statistics columns
// are deliberately untouched; RecordTrigger owns them.
func (s *Rules) Update(ctx context.Context, rule *models.Rule) error {
	if err := validation.ValidateRule(rule); err != nil {
		return fmt.Errorf("%w: %v", ErrRuleInvalid, err)
	}

	conditionsJSON, actionsJSON, settingsJSON, err := marshalRuleDocuments(rule)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRuleInvalid, err)
	}

	rule.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE notification_rules SET
			name = $2, event_type = $3, conditions = $4, actions = $5,
			settings = $6, is_active = $7, priority = $8, updated_at = $9
		WHERE id = $1`,
		rule.ID,
		rule.Name,
		rule.EventType,
		conditionsJSON,
		actionsJSON,
		settingsJSON,
		rule.Settings.IsActive,
		rule.Settings.Priority,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: update failed: %v", ErrRuleStoreFailed, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", ErrRuleStoreFailed, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: rule %s", ErrRuleNotFound, rule.ID)
	}

	s.invalidate(ctx, rule.BusinessID, rule.EventType)
	return nil
}

// RecordTrigger counts one firing outcome with a single atomic update, so
// concurrent triggers on the same rule never lose counts. The in-memory
// statistics are mirrored afterwards and the cache entry is dropped.
func (s *Rules) RecordTrigger(ctx context.Context, rule *models.Rule, success bool, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notification_rules SET
			total_triggered = total_triggered + 1,
			total_sent = total_sent + CASE WHEN $2 THEN 1 ELSE 0 END,
			total_failed = total_failed + CASE WHEN $2 THEN 0 ELSE 1 END,
			last_triggered = $3,
			updated_at = $3
		WHERE id = $1`,
		rule.ID, success, now,
	)
	if err != nil {
		return fmt.Errorf("%w: record trigger failed: %v", ErrRuleStoreFailed, err)
	}

	rule.Statistics.RecordTrigger(success, now)
	s.invalidate(ctx, rule.BusinessID, rule.EventType)
	return nil
}

func ruleCacheKey(businessID, eventType string) string {
	return fmt.Sprintf("rules:%s:%s", businessID, eventType)
}

func (s *Rules) cacheGet(ctx context.Context, key string) ([]*models.Rule, bool) {
	if s.cache == nil {
		return nil, false
	}

	raw, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("rule cache read failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		return nil, false
	}

	var rules []*models.Rule
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		s.logger.Warn("rule cache entry corrupt", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil, false
	}
	return rules, true
}

func (s *Rules) cacheSet(ctx context.Context, key string, rules []*models.Rule) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(rules)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.logger.Warn("rule cache write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

func (s *Rules) invalidate(ctx context.Context, businessID, eventType string) {
	if s.cache == nil {
		return
	}
	key := ruleCacheKey(businessID, eventType)
	if err := s.cache.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("rule cache invalidation failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

func marshalRuleDocuments(rule *models.Rule) ([]byte, []byte, []byte, error) {
	conditionsJSON, err := json.Marshal(rule.Conditions)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal conditions: %v", err)
	}
	actionsJSON, err := json.Marshal(rule.Actions)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal actions: %v", err)
	}
	settingsJSON, err := json.Marshal(rule.Settings)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal settings: %v", err)
	}
	return conditionsJSON, actionsJSON, settingsJSON, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*models.Rule, error) {
	var (
		rule           models.Rule
		franchiseID    sql.NullString
		conditionsJSON []byte
		actionsJSON    []byte
		settingsJSON   []byte
		lastTriggered  sql.NullTime
	)

	err := row.Scan(
		&rule.ID,
		&rule.BusinessID,
		&franchiseID,
		&rule.Name,
		&rule.EventType,
		&conditionsJSON,
		&actionsJSON,
		&settingsJSON,
		&rule.Statistics.TotalTriggered,
		&rule.Statistics.TotalSent,
		&rule.Statistics.TotalFailed,
		&lastTriggered,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if franchiseID.Valid {
		rule.FranchiseID = franchiseID.String
	}
	if lastTriggered.Valid {
		t := lastTriggered.Time
		rule.Statistics.LastTriggered = &t
	}

	if len(conditionsJSON) > 0 {
		if err := json.Unmarshal(conditionsJSON, &rule.Conditions); err != nil {
			return nil, fmt.Errorf("unmarshal conditions: %v", err)
		}
	}
	if len(actionsJSON) > 0 {
		if err := json.Unmarshal(actionsJSON, &rule.Actions); err != nil {
			return nil, fmt.Errorf("unmarshal actions: %v", err)
		}
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &rule.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %v", err)
		}
	}

	return &rule, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
