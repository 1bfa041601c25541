package main

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/ben-southpaw/vh-board/api"
	"github.com/ben-southpaw/vh-board/board"
	"github.com/ben-southpaw/vh-board/config"
	"github.com/ben-southpaw/vh-board/feed"
	"github.com/ben-southpaw/vh-board/identity"
	"github.com/ben-southpaw/vh-board/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()

	var rc *redis.Client
	if opts := cfg.RedisOptions(); opts != nil {
		rc = redis.NewClient(opts)
	} else {
		logger.Warn("missing redis config; cache and live feed disabled")
	}

	var notifier storage.Notifier
	if rc != nil {
		notifier = feed.NewPublisher(rc, cfg.VotesChannel, logger)
	}

	var base board.Store
	if cfg.StorageConfigured() {
		base, err = storage.New(cfg.StorageURL, cfg.StorageToken, cfg.TicketsTable, cfg.VotesTable, notifier)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
	} else {
		logger.Warn("missing storage config; remote operations disabled")
		base = storage.Disabled()
	}

	store := base
	if rc != nil {
		store = storage.NewCache(base, rc, cfg.CacheTTL)
	}

	var broker *api.Broker
	var sub board.Subscriber
	if rc != nil {
		sub = func(ctx context.Context, onChange func()) func() {
			return feed.Subscribe(ctx, logger, rc, cfg.VotesChannel, func() {
				onChange()
				if broker != nil {
					broker.Notify()
				}
			})
		}
	}

	ctrl := board.NewController(store, sub, identity.GetOrCreateVoterID(), logger)
	defer ctrl.Close()

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, "X-Voter-Id"},
	}))
	broker = api.Register(e, ctrl, logger)

	if err := ctrl.Load(context.Background()); err != nil {
		// Error state is recoverable: clients see the message and can retry.
		logger.Errorf("initial load: %v", err)
	}

	e.Logger.Fatal(e.Start(cfg.ListenAddr))
}
