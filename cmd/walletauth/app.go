package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/layer-3/walletauth/adapters/events"
	"github.com/layer-3/walletauth/adapters/memory"
	"github.com/layer-3/walletauth/adapters/postgres"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/adapters/verifier"
	"github.com/layer-3/walletauth/config"
	"github.com/layer-3/walletauth/ports"
	"github.com/layer-3/walletauth/service"
	"github.com/redis/go-redis/v9"
)

// app owns every long-lived dependency of the server
type app struct {
	authService *service.AuthService
	closers     []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*app, error) {
	gin.SetMode(gin.ReleaseMode)
	a := &app{}

	privateKey, err := loadSigningKey(cfg.Auth.SigningKeyPath, logger)
	if err != nil {
		return nil, err
	}

	var (
		revocations ports.RevocationStore
		challenges  ports.ChallengeStore
		eventPub    ports.EventPublisher = events.NopPublisher{}
		accounts    ports.AccountRepository
	)

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		redisClient := redis.NewClient(opts)
		a.closers = append(a.closers, func() { _ = redisClient.Close() })

		if err := redisClient.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to reach Redis: %w", err)
		}

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client: redisClient,
			},
			watermill.NewSlogLogger(logger),
		)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create Redis publisher: %w", err)
		}
		a.closers = append(a.closers, func() { _ = publisher.Close() })

		revocations = store.NewRedisRevocations(redisClient)
		challenges = store.NewRedisChallengeStore(redisClient, cfg.Auth.ChallengeRetention)
		eventPub = events.NewWatermillPublisher(publisher, cfg.Events.LogoutTopic, cfg.Events.WalletTopic)
	} else {
		logger.Warn("Redis not configured, challenges and revocations are kept in memory")
		revocations = store.NewMemoryRevocations()
		challenges = store.NewMemoryChallengeStore(cfg.Auth.ChallengeRetention)
	}

	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		if cfg.Database.Migrate {
			if err := postgres.Migrate(pool); err != nil {
				a.Close()
				return nil, err
			}
		}
		accounts = postgres.NewAccounts(pool)
	} else {
		logger.Warn("Database not configured, accounts are kept in memory")
		accounts = memory.NewAccounts()
	}

	a.authService = service.NewAuthService(
		tokenizer.NewJWTTokenizer(privateKey, cfg.Auth.Issuer),
		revocations,
		challenges,
		accounts,
		verifier.Default(),
		eventPub,
		service.Config{
			Domain:       cfg.Server.Domain,
			URI:          cfg.Server.URI,
			Statement:    cfg.Auth.Statement,
			ChallengeTTL: cfg.Auth.ChallengeTTL,
			AccessTTL:    cfg.Auth.AccessTTL,
			RefreshTTL:   cfg.Auth.RefreshTTL,
		},
		service.WithLogger(logger),
	)

	return a, nil
}

func loadSigningKey(path string, logger *slog.Logger) (*ecdsa.PrivateKey, error) {
	if path == "" {
		logger.Warn("No signing key configured, sessions will not survive a restart")
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	return key, nil
}
