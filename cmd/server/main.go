package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/sentra/moderation/internal/api"
	"github.com/sentra/moderation/internal/config"
	"github.com/sentra/moderation/internal/events"
	"github.com/sentra/moderation/internal/metrics"
	"github.com/sentra/moderation/internal/middleware"
	"github.com/sentra/moderation/internal/mlscoring"
	"github.com/sentra/moderation/internal/moderation"
	"github.com/sentra/moderation/internal/reputation"
	"github.com/sentra/moderation/internal/review"
	"github.com/sentra/moderation/internal/storage"
	"github.com/sentra/moderation/internal/stream"
	"github.com/sentra/moderation/internal/triage"
)

// redisAdapter maps the go-redis client onto the review store interface.
type redisAdapter struct {
	client *redis.Client
}

func (a *redisAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return a.client.Set(ctx, key, value, ttl).Err()
}

func (a *redisAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	return a.client.Get(ctx, key).Bytes()
}

func (a *redisAdapter) Del(ctx context.Context, keys ...string) error {
	return a.client.Del(ctx, keys...).Err()
}

func (a *redisAdapter) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return a.client.SAdd(ctx, key, args...).Err()
}

func (a *redisAdapter) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return a.client.SRem(ctx, key, args...).Err()
}

func (a *redisAdapter) SMembers(ctx context.Context, key string) ([]string, error) {
	return a.client.SMembers(ctx, key).Result()
}

func main() {
	// Local development pulls settings from .env; in production the
	// platform injects them.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Cloud Run style port override.
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.Postgres.DSN = dsn
	}
	if project := os.Getenv("PUBSUB_PROJECT_ID"); project != "" {
		cfg.PubSub.ProjectID = project
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics()
	bus := events.NewEventBus()

	// Review queue, mirrored to Redis when an address is configured.
	var store review.Store
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Printf("Redis unreachable at %s, queue runs in-memory only: %v", cfg.Redis.Addr, err)
		} else {
			store = review.NewRedisStore(&redisAdapter{client: client}, cfg.Redis.KeyPrefix)
		}
	}
	queue := review.NewQueue(store).WithMetrics(m)

	// Rebuild the queue from the Redis mirror after a restart.
	if rs, ok := store.(*review.RedisStore); ok {
		loadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		tasks, err := rs.LoadAll(loadCtx)
		cancel()
		if err != nil {
			log.Printf("Queue rebuild failed: %v", err)
		} else {
			for _, task := range tasks {
				queue.Enqueue(task)
			}
			log.Printf("Rebuilt review queue with %d tasks", len(tasks))
		}
	}

	rep := reputation.NewEngine()
	tr := triage.NewService(cfg.Triage)
	scorer := mlscoring.NewBreakerScorer(mlscoring.NewReferenceScorer(), nil)
	ml := mlscoring.NewService(scorer, mlscoring.NewReferenceImageAnalyzer(), cfg.ML)

	orch := moderation.NewOrchestrator(cfg.Orchestrator, rep, tr, ml, queue).
		WithEmitter(bus).
		WithMetrics(m)

	// Durable event fan-out when a Pub/Sub project is configured.
	if cfg.PubSub.ProjectID != "" {
		psBus, err := events.NewPubSubEventBus(cfg.PubSub.ProjectID, cfg.PubSub.TopicID)
		if err != nil {
			log.Printf("Pub/Sub disabled: %v", err)
		} else {
			defer psBus.Close()
			orch.WithEmitter(events.NewFanoutEmitter(bus, psBus))
		}
	}

	processor := stream.NewProcessor(cfg.Stream, stream.NewMemoryBackend()).WithMetrics(m)

	server := api.NewServer(orch, processor, rep, queue, bus).
		WithRateLimiter(middleware.NewRateLimiter(middleware.RateLimitConfig{}))

	// Postgres audit trail is optional; without it decisions are only
	// observable through events and metrics.
	if cfg.Postgres.DSN != "" {
		pg, err := storage.NewStore(cfg.Postgres.DSN)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer pg.Close()
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = pg.InitSchema(initCtx)
		cancel()
		if err != nil {
			log.Fatalf("Failed to init schema: %v", err)
		}
		orch.WithSink(pg).WithDeadLetter(pg)
		server.WithChatSink(pg)
	}

	log.Printf("Starting moderation engine (env=%s)", cfg.Server.Env)
	if err := server.Start(ctx, cfg.Server.Port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	log.Println("Shutdown complete")
}
