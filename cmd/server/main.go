package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sharetube/watchparty/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
	usage        string
}

var (
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 8080,
		usage:        "Server port",
	}
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
		usage:        "Server host",
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
		usage:        "Logging level",
	}
	store = configVar[string]{
		envKey:       "SERVER_STORE",
		flagKey:      "store",
		defaultValue: app.StoreRedis,
		usage:        "Room store backend: redis, postgres or memory",
	}
	pubsub = configVar[string]{
		envKey:       "SERVER_PUBSUB",
		flagKey:      "pubsub",
		defaultValue: app.PubSubRedis,
		usage:        "Broadcast transport between server instances: redis or local",
	}
	membersLimit = configVar[int]{
		envKey:       "SERVER_MEMBERS_LIMIT",
		flagKey:      "members-limit",
		defaultValue: 2,
		usage:        "Maximum number of users in a room",
	}
	opTimeout = configVar[time.Duration]{
		envKey:       "SERVER_OP_TIMEOUT",
		flagKey:      "op-timeout",
		defaultValue: 5 * time.Second,
		usage:        "Timeout of a single room operation",
	}
	recordTTL = configVar[time.Duration]{
		envKey:       "SERVER_RECORD_TTL",
		flagKey:      "record-ttl",
		defaultValue: 24 * 14 * time.Hour,
		usage:        "Expiry of room and chat records in redis, 0 keeps them forever",
	}
	rateLimitRPS = configVar[float64]{
		envKey:       "SERVER_RATE_LIMIT_RPS",
		flagKey:      "rate-limit-rps",
		defaultValue: 20,
		usage:        "Requests per second allowed per client ip, 0 disables the limit",
	}
	rateLimitBurst = configVar[int]{
		envKey:       "SERVER_RATE_LIMIT_BURST",
		flagKey:      "rate-limit-burst",
		defaultValue: 40,
		usage:        "Burst of requests allowed per client ip",
	}
	trustProxy = configVar[bool]{
		envKey:       "SERVER_TRUST_PROXY",
		flagKey:      "trust-proxy",
		defaultValue: false,
		usage:        "Take client ips from X-Forwarded-For/X-Real-IP set by a reverse proxy",
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
		usage:        "Redis port",
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
		usage:        "Redis host",
	}
	redisPassword = configVar[string]{
		envKey:       "REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
		usage:        "Redis password",
	}
	postgresUrl = configVar[string]{
		envKey:       "POSTGRES_URL",
		flagKey:      "postgres-url",
		defaultValue: "",
		usage:        "Postgres connection string",
	}
)

func bind[T any](v configVar[T], define func(name string, value T, usage string) *T) {
	define(v.flagKey, v.defaultValue, v.usage)
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

func loadAppConfig() *app.AppConfig {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}

	bind(port, pflag.Int)
	bind(host, pflag.String)
	bind(logLevel, pflag.String)
	bind(store, pflag.String)
	bind(pubsub, pflag.String)
	bind(membersLimit, pflag.Int)
	bind(opTimeout, pflag.Duration)
	bind(recordTTL, pflag.Duration)
	bind(rateLimitRPS, pflag.Float64)
	bind(rateLimitBurst, pflag.Int)
	bind(trustProxy, pflag.Bool)
	bind(redisPort, pflag.Int)
	bind(redisHost, pflag.String)
	bind(redisPassword, pflag.String)
	bind(postgresUrl, pflag.String)
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	return &app.AppConfig{
		Host:           viper.GetString(host.flagKey),
		Port:           viper.GetInt(port.flagKey),
		LogLevel:       viper.GetString(logLevel.flagKey),
		Store:          viper.GetString(store.flagKey),
		PubSub:         viper.GetString(pubsub.flagKey),
		MembersLimit:   viper.GetInt(membersLimit.flagKey),
		OpTimeout:      viper.GetDuration(opTimeout.flagKey),
		RecordTTL:      viper.GetDuration(recordTTL.flagKey),
		RateLimitRPS:   viper.GetFloat64(rateLimitRPS.flagKey),
		RateLimitBurst: viper.GetInt(rateLimitBurst.flagKey),
		TrustProxy:     viper.GetBool(trustProxy.flagKey),
		RedisPort:      viper.GetInt(redisPort.flagKey),
		RedisHost:      viper.GetString(redisHost.flagKey),
		RedisPassword:  viper.GetString(redisPassword.flagKey),
		PostgresUrl:    viper.GetString(postgresUrl.flagKey),
	}
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	if err := app.Run(ctx, appConfig); err != nil {
		log.Fatal(err)
	}
}
