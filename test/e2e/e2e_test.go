// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notification-engine/internal/common/clock"
	"notification-engine/internal/common/config"
	"notification-engine/internal/common/database"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/delivery"
	"notification-engine/internal/engine"
	"notification-engine/internal/models"
	"notification-engine/internal/store"

	cancelnotification "notification-engine/internal/workers/delivery/cancel-notification"
	notificationstatus "notification-engine/internal/workers/delivery/notification-status"
	evaluaterules "notification-engine/internal/workers/rules/evaluate-rules"
)

var (
	zeebeClient zbc.Client
	zapLog      *zap.Logger
)

func TestMain(m *testing.M) {
	zapLog, _ = zap.NewProduction()

	// Only dial the broker when the suite is actually going to run.
	if os.Getenv("E2E_TESTS") != "" {
		var err error
		zeebeClient, err = zbc.NewClient(&zbc.ClientConfig{
			GatewayAddress:         "localhost:26500",
			UsePlaintextConnection: true,
		})
		if err != nil {
			panic(fmt.Sprintf("❌ Failed to connect to Zeebe: %v", err))
		}
	}

	code := m.Run()

	if zeebeClient != nil {
		zeebeClient.Close()
	}
	os.Exit(code)
}

func requireE2E(t *testing.T) {
	if os.Getenv("E2E_TESTS") == "" {
		t.Skip("set E2E_TESTS=1 to run against live services")
	}
}

// recordingSender satisfies delivery.Sender without touching a provider.
type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingSender) Send(ctx context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n.ID)
	return nil
}

func (r *recordingSender) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

func TestFullE2E(t *testing.T) {
	requireE2E(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cfg, err := config.Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	t.Log("🚀 Starting full pipeline test with real services...")

	// 🔧 FORCE LOCALHOST FOR E2E TESTS
	cfg.Database.Postgres.Host = "localhost"
	cfg.Database.Redis.Address = "localhost:6379"
	cfg.Database.Elasticsearch.URL = "http://localhost:9200"

	pg, rdb, es := connectServices(t, ctx, cfg)
	defer pg.Close()
	defer rdb.Close()

	createTables(t, ctx, pg)

	log := logger.NewTestLogger(t)
	realClock := clock.NewReal()

	ruleStore := store.NewRules(pg.DB, rdb.Client, log, 5*time.Second)
	notificationStore := store.NewNotifications(pg.DB, log)
	historyStore := store.NewHistory(es.Client, "notification-history-e2e", log)

	ruleEngine := engine.New(ruleStore, notificationStore, ruleStore, realClock, log)

	// Each run gets its own business so reruns never collide.
	businessID := fmt.Sprintf("biz-e2e-%d", time.Now().UnixNano())
	rule := seedRule(t, ctx, ruleStore, businessID)
	t.Logf("✅ Seeded rule %s for %s", rule.ID, businessID)

	// --- 1. Evaluate an event through the rules worker ---
	evalHandler, err := evaluaterules.NewHandler(evaluaterules.HandlerOptions{
		CustomConfig: &evaluaterules.Config{Enabled: true, MaxJobsActive: 1, Timeout: 30 * time.Second},
		Engine:       ruleEngine,
		Logger:       log,
	})
	require.NoError(t, err)

	evalOut, err := evalHandler.Execute(ctx, &evaluaterules.Input{
		BusinessID: businessID,
		EventType:  "rating_low",
		Payload: map[string]interface{}{
			"rating":       float64(2),
			"customerName": "Dana",
		},
	})
	require.NoError(t, err)
	require.Len(t, evalOut.NotificationIDs, 1)
	assert.Equal(t, 1, evalOut.RulesFired)
	assert.Equal(t, 1, evalOut.NotificationsCreated)
	firstID := evalOut.NotificationIDs[0]
	t.Logf("✅ Event evaluated, notification %s created", firstID)

	// --- 2. Rule statistics were recorded in the store ---
	stored, err := ruleStore.GetByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Statistics.TotalTriggered)
	assert.Equal(t, int64(1), stored.Statistics.TotalSent)
	require.NotNil(t, stored.Statistics.LastTriggered)

	// --- 3. Dispatch the pending notification ---
	sender := &recordingSender{}
	senders := delivery.NewRegistry()
	senders.Register(models.ChannelEmail, sender)

	dispatcher := delivery.NewDispatcher(notificationStore, senders, historyStore, realClock, log, delivery.Config{BatchSize: 10})
	dispatcher.DispatchDue(ctx)

	require.Equal(t, []string{firstID}, sender.ids())
	t.Log("✅ Notification dispatched")

	// --- 4. Status worker reports the delivered state ---
	statusHandler, err := notificationstatus.NewHandler(
		&notificationstatus.Config{Timeout: 10 * time.Second},
		notificationStore, log,
	)
	require.NoError(t, err)

	statusOut, err := statusHandler.Execute(ctx, &notificationstatus.Input{NotificationID: firstID})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, statusOut.Status)
	assert.Equal(t, 100.0, statusOut.SuccessRate)
	require.Len(t, statusOut.Recipients, 1)
	assert.Equal(t, models.RecipientSent, statusOut.Recipients[0].Status)
	t.Log("✅ Status reported sent")

	// --- 5. Trigger again and cancel before dispatch ---
	evalOut2, err := evalHandler.Execute(ctx, &evaluaterules.Input{
		BusinessID: businessID,
		EventType:  "rating_low",
		Payload:    map[string]interface{}{"rating": float64(1)},
	})
	require.NoError(t, err)
	require.Len(t, evalOut2.NotificationIDs, 1)
	secondID := evalOut2.NotificationIDs[0]

	cancelHandler, err := cancelnotification.NewHandler(cancelnotification.HandlerOptions{
		CustomConfig: &cancelnotification.Config{Enabled: true, MaxJobsActive: 1, Timeout: 10 * time.Second},
		Store:        notificationStore,
		History:      historyStore,
		Clock:        realClock,
		Logger:       log,
	})
	require.NoError(t, err)

	cancelOut, err := cancelHandler.Execute(ctx, &cancelnotification.Input{
		NotificationID: secondID,
		Reason:         "superseded by manual outreach",
	})
	require.NoError(t, err)
	assert.True(t, cancelOut.Cancelled)
	assert.Equal(t, models.StatusCancelled, cancelOut.Status)

	// Cancelling a second time reports the terminal state without error.
	cancelAgain, err := cancelHandler.Execute(ctx, &cancelnotification.Input{NotificationID: secondID})
	require.NoError(t, err)
	assert.False(t, cancelAgain.Cancelled)
	assert.Equal(t, models.StatusCancelled, cancelAgain.Status)

	// A cancelled notification is invisible to the dispatcher.
	dispatcher.DispatchDue(ctx)
	assert.Equal(t, []string{firstID}, sender.ids())
	t.Log("✅ Cancellation kept the notification out of delivery")

	cancelledStatus, err := statusHandler.Execute(ctx, &notificationstatus.Input{NotificationID: secondID})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelledStatus.Status)
	assert.Equal(t, 0.0, cancelledStatus.SuccessRate)

	t.Log("✅ ALL TESTS PASSED — full notification pipeline verified!")
}

func connectServices(t *testing.T, ctx context.Context, cfg *config.Config) (*database.PostgresClient, *database.RedisClient, *database.ElasticsearchClient) {
	t.Log("🔍 Checking service connectivity...")

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err, "❌ PostgreSQL connection failed")
	require.NoError(t, pg.Ping(ctx), "❌ PostgreSQL ping failed")
	t.Log("✅ PostgreSQL connected")

	rdb, err := database.NewRedis(cfg.Database.Redis)
	require.NoError(t, err, "❌ Redis client creation failed")
	require.NoError(t, rdb.Ping(ctx), "❌ Redis ping failed")
	t.Log("✅ Redis connected")

	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	require.NoError(t, err, "❌ Elasticsearch client creation failed")
	require.NoError(t, es.Ping(), "❌ Elasticsearch ping failed")
	t.Log("✅ Elasticsearch connected")

	_, err = zeebeClient.NewTopologyCommand().Send(ctx)
	require.NoError(t, err, "❌ Zeebe topology request failed")
	t.Log("✅ Zeebe connected")

	return pg, rdb, es
}

func createTables(t *testing.T, ctx context.Context, pg *database.PostgresClient) {
	t.Log("🔧 Creating database tables...")

	queries := []string{
		`CREATE TABLE IF NOT EXISTS notification_rules (
			id VARCHAR(255) PRIMARY KEY,
			business_id VARCHAR(255) NOT NULL,
			franchise_id VARCHAR(255),
			name VARCHAR(255) NOT NULL,
			event_type VARCHAR(100) NOT NULL,
			conditions JSONB,
			actions JSONB NOT NULL,
			settings JSONB NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT true,
			priority INTEGER NOT NULL DEFAULT 0,
			total_triggered BIGINT NOT NULL DEFAULT 0,
			total_sent BIGINT NOT NULL DEFAULT 0,
			total_failed BIGINT NOT NULL DEFAULT 0,
			last_triggered TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rules_lookup
			ON notification_rules (business_id, event_type, is_active)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id VARCHAR(255) PRIMARY KEY,
			rule_id VARCHAR(255) NOT NULL,
			business_id VARCHAR(255) NOT NULL,
			franchise_id VARCHAR(255),
			event_type VARCHAR(100) NOT NULL,
			channel VARCHAR(50) NOT NULL,
			trigger_data JSONB,
			recipients JSONB NOT NULL,
			content JSONB NOT NULL,
			status VARCHAR(50) NOT NULL,
			priority VARCHAR(50) NOT NULL,
			scheduled_for TIMESTAMPTZ NOT NULL,
			sent_at TIMESTAMPTZ,
			failed_at TIMESTAMPTZ,
			error TEXT,
			retry_count INTEGER NOT NULL DEFAULT 0,
			max_retries INTEGER NOT NULL DEFAULT 3,
			retry_delay_minutes INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_due
			ON notifications (status, scheduled_for)`,
	}

	for _, query := range queries {
		_, err := pg.DB.ExecContext(ctx, query)
		require.NoError(t, err, "table creation failed")
	}
	t.Log("✅ Tables ready")
}

func seedRule(t *testing.T, ctx context.Context, rules *store.Rules, businessID string) *models.Rule {
	rule := &models.Rule{
		ID:         fmt.Sprintf("rule-e2e-%d", time.Now().UnixNano()),
		BusinessID: businessID,
		Name:       "Low rating alert",
		EventType:  "rating_low",
		Conditions: []models.Condition{
			{Field: "rating", Operator: models.OpLessThan, Value: float64(3)},
		},
		Actions: []models.Action{
			{
				Type:     models.ChannelEmail,
				Template: "Rating {{rating}} from {{customerName}}",
				Recipients: []models.Recipient{
					{Type: "email", Value: "owner@example.com"},
				},
			},
		},
		Settings: models.RuleSettings{IsActive: true, Priority: 10},
	}
	require.NoError(t, rules.Create(ctx, rule))
	return rule
}
