package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/twmb/franz-go/pkg/kgo"

	aggconfig "upagg/internal/aggregation/config"
	"upagg/internal/aggregation/metrics"
	"upagg/internal/aggregation/publisher"
	"upagg/internal/aggregation/service"
	"upagg/internal/aggregation/store"
	"upagg/internal/aggregation/store/cache"
	"upagg/internal/aggregation/store/memory"
	pgstore "upagg/internal/aggregation/store/postgres"
	"upagg/internal/platform/config"
	"upagg/internal/platform/kafka"
	"upagg/internal/platform/logger"
	"upagg/internal/platform/postgres"
	"upagg/internal/platform/redis"
)

// backend holds the clients for whatever the environment configures.
// A missing DATABASE_URL falls back to an in-memory store over a dataset file.
type backend struct {
	cfg    config.Server
	logger *slog.Logger
	policy *aggconfig.Policy

	db     *sql.DB
	redis  *redis.Client
	kafka  *kgo.Client
	pg     *pgstore.Store
	memory *memory.Store
	cache  *cache.RedisCache
}

func loadPolicy(path string) (*aggconfig.Policy, error) {
	if path == "" {
		return aggconfig.DefaultPolicy(), nil
	}
	c, err := aggconfig.Load(path)
	if err != nil {
		return nil, err
	}
	return c.Compile()
}

func openBackend(ctx context.Context, policyFile, datasetFile string) (*backend, error) {
	cfg := config.FromEnv()
	if policyFile == "" {
		policyFile = cfg.PolicyFile
	}
	b := &backend{cfg: cfg, logger: logger.NewWithWriter(os.Stderr, cfg.LogLevel)}

	policy, err := loadPolicy(policyFile)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	b.policy = policy

	if b.db, err = postgres.Open(ctx, cfg.Database); err != nil {
		return nil, err
	}
	if b.db != nil {
		b.pg = pgstore.New(b.db)
	}

	if b.redis, err = redis.New(ctx, cfg.Redis); err != nil {
		b.Close()
		return nil, err
	}
	if b.redis != nil {
		b.cache = cache.NewRedis(b.redis.Client, cache.WithTTL(cfg.Redis.ResultTTL))
	}

	if b.kafka, err = kafka.New(ctx, cfg.Kafka); err != nil {
		b.Close()
		return nil, err
	}
	if b.kafka != nil {
		if err := kafka.EnsureTopic(ctx, b.kafka, cfg.Kafka.Topic, cfg.Kafka.Partitions); err != nil {
			b.Close()
			return nil, err
		}
	}

	switch {
	case datasetFile != "":
		if b.memory, err = memory.Open(datasetFile); err != nil {
			b.Close()
			return nil, err
		}
	case b.pg == nil:
		b.Close()
		return nil, errors.New("either DATABASE_URL or --dataset is required")
	}

	b.logger.InfoContext(ctx, "backend configured",
		"postgres", b.db != nil,
		"redis", b.redis != nil,
		"kafka", b.kafka != nil,
		"dataset_file", datasetFile,
	)
	return b, nil
}

// service wires the pipeline. A dataset file takes precedence over
// postgres as the input; postgres still records the run when configured.
func (b *backend) service(m *metrics.Metrics) (*service.Service, error) {
	var source service.Source
	opts := []service.Option{
		service.WithLogger(b.logger),
		service.WithMetrics(m),
		service.WithWorkers(b.cfg.Workers),
	}

	switch {
	case b.memory != nil:
		source = b.memory
	default:
		source = b.pg
	}
	switch {
	case b.pg != nil:
		opts = append(opts, service.WithSink(b.pg))
	case b.memory != nil:
		opts = append(opts, service.WithSink(b.memory))
	}
	if b.cache != nil {
		opts = append(opts, service.WithCache(b.cache))
	}
	if b.kafka != nil {
		opts = append(opts, service.WithPublisher(publisher.NewKafka(b.kafka, b.cfg.Kafka.Topic)))
	}
	return service.New(source, b.policy, opts...)
}

// reader serves lookups from redis first, then postgres or the in-memory store.
func (b *backend) reader() store.Finder {
	var primary store.Finder
	if b.pg != nil {
		primary = b.pg
	} else {
		primary = b.memory
	}
	if b.cache == nil {
		return primary
	}
	return store.NewReadThrough(b.cache, primary, b.logger)
}

func (b *backend) Close() {
	if b.kafka != nil {
		b.kafka.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.db != nil {
		_ = b.db.Close()
	}
}
