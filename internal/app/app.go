package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/sharetube/watchparty/internal/controller"
	"github.com/sharetube/watchparty/internal/realtime"
	"github.com/sharetube/watchparty/internal/repository/inmemory"
	"github.com/sharetube/watchparty/internal/repository/postgres"
	"github.com/sharetube/watchparty/internal/repository/redis"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/pkg/ctxlogger"
	"github.com/sharetube/watchparty/pkg/redisclient"
	"github.com/sharetube/watchparty/pkg/ytvideodata"
)

const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	PubSubRedis = "redis"
	PubSubLocal = "local"
)

type AppConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	LogLevel       string        `json:"log_level"`
	Store          string        `json:"store"`
	PubSub         string        `json:"pubsub"`
	RedisHost      string        `json:"redis_host"`
	RedisPort      int           `json:"redis_port"`
	RedisPassword  string        `json:"-"`
	PostgresUrl    string        `json:"-"`
	RecordTTL      time.Duration `json:"record_ttl"`
	MembersLimit   int           `json:"members_limit"`
	OpTimeout      time.Duration `json:"op_timeout"`
	RateLimitRPS   float64       `json:"rate_limit_rps"`
	RateLimitBurst int           `json:"rate_limit_burst"`
	TrustProxy     bool          `json:"trust_proxy"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.MembersLimit < 1 {
		return fmt.Errorf("members limit must be greater than 0")
	}
	if cfg.OpTimeout <= 0 {
		return fmt.Errorf("op timeout must be greater than 0")
	}
	if cfg.RecordTTL < 0 {
		return fmt.Errorf("record ttl must not be negative")
	}
	if cfg.RateLimitRPS < 0 || cfg.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	switch cfg.Store {
	case StoreRedis, StoreMemory:
	case StorePostgres:
		if cfg.PostgresUrl == "" {
			return fmt.Errorf("postgres url is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q", cfg.Store)
	}
	switch cfg.PubSub {
	case PubSubRedis, PubSubLocal:
	default:
		return fmt.Errorf("unknown pubsub %q", cfg.PubSub)
	}
	return nil
}

func NewLogger(level string) (*slog.Logger, error) {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, err
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	return slog.New(h), nil
}

type roomStore interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	ScanByPrefix(ctx context.Context, prefix string) ([][]byte, error)
	CompareAndSwap(ctx context.Context, key string, old, value []byte) error
}

type application struct {
	handler http.Handler
	hub     *realtime.Hub
	closers []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg *AppConfig, logger *slog.Logger) (*application, error) {
	a := &application{}

	var rc *goredis.Client
	redisClient := func() (*goredis.Client, error) {
		if rc != nil {
			return rc, nil
		}

		var err error
		rc, err = redisclient.NewRedisClient(ctx, &redisclient.Config{
			Port:     cfg.RedisPort,
			Host:     cfg.RedisHost,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		a.closers = append(a.closers, func() { rc.Close() })

		return rc, nil
	}

	var store roomStore
	switch cfg.Store {
	case StoreRedis:
		client, err := redisClient()
		if err != nil {
			return nil, err
		}
		store = redis.NewRepo(client, cfg.RecordTTL, logger)
	case StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresUrl)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		pgRepo, err := postgres.NewRepo(ctx, pool, logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to init postgres store: %w", err)
		}
		store = pgRepo
	default:
		store = inmemory.NewRepo(logger)
	}

	var transport realtime.Transport
	if cfg.PubSub == PubSubRedis {
		client, err := redisClient()
		if err != nil {
			a.close()
			return nil, err
		}
		transport = redis.NewPubSub(client, logger)
	}

	roomService := room.NewService(store, &room.Config{
		MembersLimit: cfg.MembersLimit,
		OpTimeout:    cfg.OpTimeout,
	}, logger)
	a.hub = realtime.NewHub(transport, logger)

	ctrl := controller.NewController(roomService, a.hub, ytvideodata.NewClient(), &controller.Config{
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		TrustProxy:     cfg.TrustProxy,
	}, logger)
	a.handler = ctrl.GetMux()

	return a, nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: a.handler}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.hub.Run(gCtx, func() {
			logger.InfoContext(gCtx, "realtime transport ready", "pubsub", cfg.PubSub)
		})
	})
	g.Go(func() error {
		logger.InfoContext(gCtx, "starting server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	// graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), 30*time.Second)
		defer cancel()

		logger.InfoContext(shutdownCtx, "shutting down server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}
