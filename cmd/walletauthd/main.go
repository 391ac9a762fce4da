package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/layer-3/walletauth/adapters/events"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/internal/config"
	"github.com/layer-3/walletauth/ports"
	"github.com/layer-3/walletauth/service"
	"github.com/layer-3/walletauth/transport/http"
	"github.com/redis/go-redis/v9"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(log)

	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	var (
		sessionStore ports.SessionStore
		userStore    ports.UserStore
		publisher    ports.EventPublisher
	)

	switch {
	case cfg.PostgresDSN != "":
		db, err := store.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		sessionStore = store.NewGormSessionStore(db)
		userStore = store.NewGormUserStore(db)
		log.Info("using postgres stores")

	case cfg.RedisURL != "":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Error("failed to parse redis URL", "error", err)
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			log.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		sessionStore = store.NewRedisSessionStore(client)
		userStore = store.NewRedisUserStore(client)

		wmPublisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: client},
			watermill.NewSlogLogger(log),
		)
		if err != nil {
			log.Error("failed to create event publisher", "error", err)
			os.Exit(1)
		}
		publisher = events.NewWatermillPublisher(wmPublisher)
		log.Info("using redis stores")

	default:
		sessionStore = store.NewMemorySessionStore()
		userStore = store.NewMemoryUserStore()
		log.Warn("using in-memory stores, state will not survive restarts")
	}

	verifier := service.NewVerifier(log)
	sessions := service.NewSessionManager(sessionStore, cfg.SessionTTL, log)
	linking := service.NewLinkingManager(userStore, publisher, log)

	sessions.StartSweeper(ctx, cfg.SweepInterval)

	handlers := http.NewAuthHandlers(cfg.AppName, verifier, sessions, linking, publisher, log)
	router := http.SetupRouter(handlers, verifier, http.AuthOptions{MaxAge: cfg.MaxMessageAge})

	log.Info("starting server", "addr", cfg.Addr)
	if err := router.Run(cfg.Addr); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
