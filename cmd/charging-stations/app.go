package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/Bendy545/charging-stations/internal/analytics"
	"github.com/Bendy545/charging-stations/internal/cache"
	"github.com/Bendy545/charging-stations/internal/config"
	"github.com/Bendy545/charging-stations/internal/database"
	"github.com/Bendy545/charging-stations/internal/metrics"
	"github.com/Bendy545/charging-stations/internal/notify"
	"github.com/Bendy545/charging-stations/internal/recalc"
	"github.com/Bendy545/charging-stations/internal/repository"
	"github.com/Bendy545/charging-stations/internal/service"
)

// app the wired process dependencies
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *sql.DB
	redis    *redis.Client
	influx   *repository.InfluxConsumptionSource
	notifier notify.Notifier
	metrics  *metrics.Metrics
	svc      *service.AnalyticsService
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(reg)

	var (
		repo         repository.RecordRepository
		recalculator repository.Recalculator
	)
	switch cfg.Source.Kind {
	case "http":
		upstream := repository.NewHTTPRecordRepository(cfg.Source.UpstreamURL, cfg.Source.Timeout, cfg.Source.Retries, logger)
		repo, recalculator = upstream, upstream
		logger.Info("Using upstream records API", zap.String("url", cfg.Source.UpstreamURL))
	default:
		db, dialect, err := database.Open(&cfg.Database)
		if err != nil {
			return nil, err
		}
		a.db = db
		if dialect == database.SQLite {
			if err := database.EnsureSchema(ctx, db, dialect); err != nil {
				a.Close()
				return nil, err
			}
		}
		sqlRepo := repository.NewSQLRecordRepository(db, dialect, logger)
		repo = sqlRepo
		recalculator = recalc.NewCalculator(sqlRepo, logger)
		logger.Info("Connected to database", zap.String("driver", dialect.String()))
	}

	if cfg.Influx.Enabled {
		src, err := repository.NewInfluxConsumptionSource(ctx, repository.InfluxConfig{
			URL:    cfg.Influx.URL,
			Org:    cfg.Influx.Org,
			Token:  cfg.Influx.Token,
			Bucket: cfg.Influx.Bucket,
		}, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.influx = src
		repo = repository.WithConsumptionSource(repo, src)
	}

	if cfg.Cache.Enabled || cfg.Notify.Transport == "redis" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
	}

	var reportCache *cache.ReportCache
	if cfg.Cache.Enabled {
		reportCache = cache.NewReportCache(cache.NewRedisKVStore(a.redis), cfg.Cache.KeyPrefix, cfg.Cache.TTL, a.metrics, logger)
	}

	notifier, err := buildNotifier(cfg, a.redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.notifier = notifier

	overlap, err := repository.ParseSessionOverlap(cfg.Analytics.SessionOverlap)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.svc = service.NewAnalyticsService(repo, service.Options{
		Resolver: analytics.ResolverOptions{
			SessionLimit:   cfg.Analytics.SessionLimit,
			SessionOverlap: overlap,
		},
		ConsumptionLimit: cfg.Analytics.ConsumptionLimit,
		Cache:            reportCache,
		Recalculator:     recalculator,
		Notifier:         notifier,
		Metrics:          a.metrics,
	}, logger)
	return a, nil
}

func buildNotifier(cfg *config.Config, client *redis.Client) (notify.Notifier, error) {
	switch cfg.Notify.Transport {
	case "redis":
		return notify.NewRedisStreamNotifier(client, cfg.Notify.Stream), nil
	case "mqtt":
		n, err := notify.NewMQTTNotifier(notify.MQTTConfig{
			Broker:   cfg.Notify.MQTTBroker,
			ClientID: cfg.Notify.MQTTClientID,
			Topic:    cfg.Notify.MQTTTopic,
			QoS:      1,
		})
		if err != nil {
			return nil, err
		}
		return n, nil
	case "kafka":
		n, err := notify.NewKafkaNotifier(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic)
		if err != nil {
			return nil, err
		}
		return n, nil
	default:
		return notify.NopNotifier{}, nil
	}
}

// streamConsumer returns the cache-invalidating consumer, or nil when
// events do not travel over Redis.
func (a *app) streamConsumer() *notify.StreamConsumer {
	if a.cfg.Notify.Transport != "redis" || a.redis == nil {
		return nil
	}
	return notify.NewStreamConsumer(a.redis, notify.StreamConsumerConfig{
		Stream:   a.cfg.Notify.Stream,
		Group:    a.cfg.Notify.ConsumerGroup,
		Consumer: a.cfg.Notify.ConsumerName,
	}, a.svc.HandleEvent, a.logger)
}

func (a *app) Close() {
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			a.logger.Warn("Failed to close notifier", zap.Error(err))
		}
	}
	if a.influx != nil {
		a.influx.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("Failed to close database", zap.Error(err))
	}
}
