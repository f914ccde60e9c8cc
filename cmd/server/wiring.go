package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/murrou-cell/stremio-zamunda/internal/app"
	"github.com/murrou-cell/stremio-zamunda/internal/providers/omdb"
	"github.com/murrou-cell/stremio-zamunda/internal/providers/zamunda"
	"github.com/murrou-cell/stremio-zamunda/internal/streams"
)

// buildStreamService wires the tracker, the title lookup and the stream
// cache. The returned func releases the Redis connection, if any.
func buildStreamService(ctx context.Context, cfg app.Config, logger *slog.Logger) (*streams.Service, func(), error) {
	redisClient := connectRedis(ctx, cfg.RedisURL, logger)
	cleanup := func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}

	provider, err := zamunda.NewProvider(zamunda.Config{
		BaseURL:             cfg.ZamundaBaseURL,
		UserAgent:           cfg.ZamundaUserAgent,
		Client:              &http.Client{Timeout: cfg.SearchTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		MaxResults:          cfg.ZamundaMaxResults,
		DownloadConcurrency: cfg.ZamundaDownloadConcurrency,
		DownloadAttempts:    cfg.ZamundaDownloadAttempts,
		PrimaryCategories:   cfg.ZamundaPrimaryCategories,
		BroadCategories:     cfg.ZamundaBroadCategories,
		Logger:              logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	titles := omdb.NewClient(omdb.Config{
		BaseURL:  cfg.OMDBBaseURL,
		Client:   &http.Client{Timeout: cfg.OMDBTimeout},
		Redis:    redisClient,
		CacheTTL: cfg.TitleCacheTTL,
		Logger:   logger,
	})

	opts := []streams.ServiceOption{
		streams.WithLogger(logger),
		streams.WithCacheDisabled(cfg.CacheDisabled),
		streams.WithSweepInterval(cfg.CacheSweep),
	}
	if redisClient != nil {
		opts = append(opts, streams.WithCache(streams.NewRedisCache(redisClient, cfg.CacheTTL)))
	} else {
		opts = append(opts, streams.WithCache(streams.NewMemoryCache(cfg.CacheTTL)))
	}

	return streams.NewService(titles, provider, opts...), cleanup, nil
}

// connectRedis returns nil when Redis is not configured or not reachable;
// callers fall back to in-process caches.
func connectRedis(ctx context.Context, rawURL string, logger *slog.Logger) *redis.Client {
	redisURL := strings.TrimSpace(rawURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory caches only", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable, using in-memory caches only", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return client
}
