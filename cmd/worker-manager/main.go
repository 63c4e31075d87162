// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"notification-engine/internal/common/aws"
	"notification-engine/internal/common/camunda"
	"notification-engine/internal/common/clock"
	"notification-engine/internal/common/config"
	"notification-engine/internal/common/database"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/common/observability"
	"notification-engine/internal/delivery"
	"notification-engine/internal/engine"
	"notification-engine/internal/models"
	"notification-engine/internal/store"
	"notification-engine/pkg/registry"

	cn "notification-engine/internal/workers/delivery/cancel-notification"
	ns "notification-engine/internal/workers/delivery/notification-status"
	er "notification-engine/internal/workers/rules/evaluate-rules"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting notification engine...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("notification-engine")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Camunda Client with retry ---
	var camundaClient *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		camundaClient, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         time.Duration(cfg.Camunda.RequestTimeout) * time.Millisecond,
		})
		return err
	}, 10, 2*time.Second, zapLog, "Camunda client initialization")

	if err != nil {
		zapLog.Fatal("camunda client failed after retries", zap.Error(err))
	}
	zapLog.Info("Camunda client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		// Test the connection
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		// Test the connection with context
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Stores ---
	ruleStore := store.NewRules(pg.DB, redis.Client, log,
		time.Duration(cfg.Engine.RuleCacheTTLSeconds)*time.Second)
	notificationStore := store.NewNotifications(pg.DB, log)
	historyStore := store.NewHistory(esClient.Client, cfg.Delivery.HistoryIndex, log)

	// --- Init Rule Engine ---
	realClock := clock.NewReal()
	ruleEngine := engine.New(ruleStore, notificationStore, ruleStore, realClock, log)
	zapLog.Info("Rule engine initialized")

	// --- Init Delivery Senders ---
	senders := delivery.NewRegistry()
	if cfg.AWS.SES.Enabled {
		sesClient, err := aws.NewSESClient(ctx, cfg.AWS.Region)
		if err != nil {
			zapLog.Fatal("ses client failed", zap.Error(err))
		}
		senders.Register(models.ChannelEmail, delivery.NewEmailSender(sesClient, cfg.AWS.SES.FromEmail))
		zapLog.Info("SES email sender registered")
	}
	if cfg.AWS.SNS.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.AWS.Region)
		if err != nil {
			zapLog.Fatal("sns client failed", zap.Error(err))
		}
		senders.Register(models.ChannelSMS, delivery.NewSMSSender(snsClient, cfg.AWS.SNS.DefaultSMSSenderID))
		zapLog.Info("SNS sms sender registered")
	}

	// --- Start Delivery Loops ---
	runCtx, stopLoops := context.WithCancel(context.Background())
	defer stopLoops()

	if cfg.Delivery.Enabled {
		deliveryCfg := delivery.Config{
			PollInterval:  time.Duration(cfg.Delivery.PollIntervalSeconds) * time.Second,
			RetryInterval: time.Duration(cfg.Delivery.RetryIntervalSeconds) * time.Second,
			BatchSize:     cfg.Delivery.BatchSize,
		}

		dispatcher := delivery.NewDispatcher(notificationStore, senders, historyStore, realClock, log, deliveryCfg)
		retryScheduler := delivery.NewRetryScheduler(notificationStore, realClock, log, deliveryCfg)

		go dispatcher.Run(runCtx)
		go retryScheduler.Run(runCtx)
		zapLog.Info("Delivery dispatcher and retry scheduler started")
	} else {
		zapLog.Info("Delivery loops disabled by configuration")
	}

	// --- Register Workers ---
	evaluateHandler, err := er.NewHandler(er.HandlerOptions{
		AppConfig: cfg,
		Camunda:   camundaClient,
		Engine:    ruleEngine,
		Logger:    log,
	})
	if err != nil {
		zapLog.Fatal("failed to create evaluate-rules handler", zap.Error(err))
	}
	if err := evaluateHandler.Register(); err != nil {
		zapLog.Fatal("failed to register evaluate-rules worker", zap.Error(err))
	}

	cancelHandler, err := cn.NewHandler(cn.HandlerOptions{
		AppConfig: cfg,
		Camunda:   camundaClient,
		Store:     notificationStore,
		History:   historyStore,
		Clock:     realClock,
		Logger:    log,
	})
	if err != nil {
		zapLog.Fatal("failed to create cancel-notification handler", zap.Error(err))
	}
	if err := cancelHandler.Register(); err != nil {
		zapLog.Fatal("failed to register cancel-notification worker", zap.Error(err))
	}

	var jobWorkers []worker.JobWorker
	if cfg.Workers[ns.TaskType].Enabled {
		statusHandler, err := ns.NewHandler(
			&ns.Config{
				Timeout: time.Duration(cfg.Workers[ns.TaskType].Timeout) * time.Millisecond,
			},
			notificationStore, log,
		)
		if err != nil {
			zapLog.Fatal("failed to create notification-status handler", zap.Error(err))
		}
		if jw := camunda.StartWorker(camundaClient.GetClient(), ns.TaskType, cfg.Workers[ns.TaskType], statusHandler.Handle, zapLog); jw != nil {
			jobWorkers = append(jobWorkers, jw)
		}
	}
	zapLog.Info("All workers registered successfully")

	// --- Cross-check the Activity Registry ---
	if cfg.Registry.Path != "" {
		catalog, err := registry.LoadRegistry(cfg.Registry.Path)
		if err != nil {
			zapLog.Warn("activity registry not loaded",
				zap.String("path", cfg.Registry.Path), zap.Error(err))
		} else {
			for _, taskType := range []string{er.TaskType, cn.TaskType, ns.TaskType} {
				if _, ok := catalog.FindByTaskType(taskType); !ok {
					zapLog.Warn("task type missing from activity registry",
						zap.String("taskType", taskType))
				}
			}
		}
	}

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			checkCtx, checkCancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer checkCancel()

			checks := []struct {
				name string
				err  error
			}{
				{"camunda", camundaClient.HealthCheck(checkCtx)},
				{"postgres", pg.Ping(checkCtx)},
				{"redis", redis.Ping(checkCtx)},
				{"elasticsearch", esClient.Ping()},
			}

			w.Header().Set("Content-Type", "application/json")
			for _, check := range checks {
				if check.err != nil {
					w.WriteHeader(http.StatusServiceUnavailable)
					json.NewEncoder(w).Encode(map[string]string{
						"status": "unavailable",
						"failed": check.name,
						"error":  check.err.Error(),
					})
					return
				}
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")

	evaluateHandler.Close()
	cancelHandler.Close()
	for _, jw := range jobWorkers {
		jw.Close()
	}

	stopLoops()

	if err := camundaClient.Close(); err != nil {
		zapLog.Error("Error closing Camunda client", zap.Error(err))
	}

	zapLog.Info("Notification engine stopped gracefully")
}
