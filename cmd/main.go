package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/commonroom/commonroom/config"
	"github.com/commonroom/commonroom/internal/community"
	"github.com/commonroom/commonroom/internal/handlers"
	"github.com/commonroom/commonroom/internal/repositories"
	"github.com/commonroom/commonroom/internal/routers"
	"github.com/commonroom/commonroom/internal/seed"
	"github.com/commonroom/commonroom/internal/session"
	"github.com/commonroom/commonroom/internal/storage"
	"github.com/commonroom/commonroom/internal/ws"
	logger "github.com/commonroom/commonroom/middleware/log"
	"github.com/commonroom/commonroom/pkg/mq"
	"github.com/commonroom/commonroom/pkg/utils"
)

func main() {
	cfg, err := config.LoadConfig("./config.toml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zlog.Close()

	repos, tx, err := buildRepositories(cfg, zlog)
	if err != nil {
		zlog.Fatal("init storage", zap.Error(err))
	}

	slot, err := buildSlotStore(cfg)
	if err != nil {
		zlog.Fatal("init session slot", zap.Error(err))
	}

	sess := session.NewManager(repos.Users, slot, zlog,
		session.WithSimulatedLatency(cfg.Session.SimulatedLatency()))
	if err := sess.Restore(context.Background()); err != nil {
		zlog.Warn("restore session", zap.Error(err))
	}

	store := community.NewStore(repos.Groups, repos.Memberships, repos.Messages, sess, zlog,
		community.WithTransactor(tx))
	defer store.Close()

	if cfg.Seed.Demo {
		if err := seed.Demo(repos.Users, repos.Groups, repos.Memberships, repos.Messages); err != nil {
			zlog.Fatal("seed demo data", zap.Error(err))
		}
		zlog.Info("demo fixtures seeded")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			// Degraded mode: the app works without the event stream.
			zlog.Warn("kafka unavailable, event stream disabled", zap.Error(err))
		} else {
			defer producer.Close()
			store.Subscribe(func(_ community.Snapshot, event community.Event) {
				if err := producer.Publish(string(event.Type), event); err != nil {
					zlog.Warn("publish community event",
						zap.String("event", string(event.Type)), zap.Error(err))
				}
			})
		}
	}

	hub := ws.NewHub(store, zlog)
	go hub.Run()
	defer hub.Close()

	tokens := utils.NewTokenIssuer(cfg.JWT.Secret)

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())

	authHandler := handlers.NewAuthHandler(sess, tokens, zlog)
	groupHandler := handlers.NewGroupHandler(store, zlog)
	routers.SetupRoutes(r, authHandler, groupHandler, hub, tokens)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	zlog.Info("server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}

func buildRepositories(cfg *config.Config, zlog *logger.Logger) (repositories.Repos, repositories.Transactor, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		dsn := storage.BuildDSN(cfg.Postgres.Host, cfg.Postgres.Port,
			cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.DBName)
		db, err := storage.InitPostgres(dsn, cfg.Postgres.MaxIdleConns, cfg.Postgres.MaxOpenConns)
		if err != nil {
			return repositories.Repos{}, nil, err
		}
		zlog.Info("postgres backend ready", zap.String("host", cfg.Postgres.Host))
		repos := repositories.Repos{
			Users:       repositories.NewGormUserRepository(db),
			Groups:      repositories.NewGormGroupRepository(db),
			Memberships: repositories.NewGormMembershipRepository(db),
			Messages:    repositories.NewGormMessageRepository(db),
		}
		return repos, repositories.NewGormTransactor(db), nil
	default:
		zlog.Info("in-memory backend ready")
		repos := repositories.Repos{
			Users:       repositories.NewMemoryUserRepository(),
			Groups:      repositories.NewMemoryGroupRepository(),
			Memberships: repositories.NewMemoryMembershipRepository(),
			Messages:    repositories.NewMemoryMessageRepository(),
		}
		return repos, repositories.MemoryTransactor{Repos: repos}, nil
	}
}

func buildSlotStore(cfg *config.Config) (session.SlotStore, error) {
	if cfg.Session.SlotBackend != "redis" {
		return session.NewMemorySlotStore(), nil
	}
	client, err := storage.InitRedis(&cfg.Redis)
	if err != nil {
		return nil, err
	}
	return session.NewRedisSlotStore(client, cfg.Session.SlotKey), nil
}
