package omdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/murrou-cell/stremio-zamunda/internal/domain"
	"github.com/murrou-cell/stremio-zamunda/internal/metrics"
)

const (
	defaultBaseURL = "https://www.omdbapi.com"
	redisCacheKey  = "zamunda:omdb:title:"
)

type Client struct {
	baseURL  string
	http     *http.Client
	redis    *redis.Client
	cacheTTL time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Config.Client should not carry URL-recording instrumentation: the API key
// travels in the query string.
type Config struct {
	BaseURL  string
	Client   *http.Client
	Redis    *redis.Client
	CacheTTL time.Duration
	Logger   *slog.Logger
}

type titleResponse struct {
	Title    string `json:"Title"`
	Response string `json:"Response"`
	Error    string `json:"Error"`
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 7 * 24 * time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpClient,
		redis:    cfg.Redis,
		cacheTTL: cacheTTL,
		logger:   logger,
		tracer:   otel.Tracer("github.com/murrou-cell/stremio-zamunda/internal/providers/omdb"),
	}
}

// Title returns the display title for an IMDb id. Titles are shared across
// installs, so the cache key never includes the API key.
func (c *Client) Title(ctx context.Context, externalID, apiKey string) (string, error) {
	id := strings.TrimSpace(externalID)
	if id == "" {
		return "", fmt.Errorf("%w: empty id", domain.ErrTitleNotFound)
	}

	if c.redis != nil {
		if title, err := c.redis.Get(ctx, redisCacheKey+id).Result(); err == nil && title != "" {
			metrics.TitleLookupsTotal.WithLabelValues("cached").Inc()
			return title, nil
		} else if err != nil && !errors.Is(err, redis.Nil) {
			c.logger.Debug("omdb title cache read failed", slog.String("error", err.Error()))
		}
	}

	ctx, span := c.tracer.Start(ctx, "omdb.title", trace.WithAttributes(attribute.String("media.id", id)))
	title, err := c.fetchTitle(ctx, id, apiKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		status := "error"
		if errors.Is(err, domain.ErrTitleNotFound) {
			status = "not_found"
		}
		metrics.TitleLookupsTotal.WithLabelValues(status).Inc()
		c.logger.Info("omdb title lookup failed", slog.String("id", id), slog.String("error", err.Error()))
		return "", err
	}
	span.End()
	metrics.TitleLookupsTotal.WithLabelValues("ok").Inc()

	if c.redis != nil {
		if err := c.redis.Set(ctx, redisCacheKey+id, title, c.cacheTTL).Err(); err != nil {
			c.logger.Debug("omdb title cache write failed", slog.String("error", err.Error()))
		}
	}
	return title, nil
}

func (c *Client) fetchTitle(ctx context.Context, id, apiKey string) (string, error) {
	params := url.Values{
		"i":      {id},
		"apikey": {strings.TrimSpace(apiKey)},
	}
	reqURL := c.baseURL + "/?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error repeats the URL, and with it the API key.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return "", fmt.Errorf("omdb request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: omdb HTTP %d", domain.ErrTitleNotFound, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return "", err
	}

	var response titleResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("decode omdb response: %w", err)
	}
	if strings.EqualFold(response.Response, "False") {
		return "", fmt.Errorf("%w: %s", domain.ErrTitleNotFound, response.Error)
	}
	title := strings.TrimSpace(response.Title)
	if title == "" {
		return "", fmt.Errorf("%w: empty title for %s", domain.ErrTitleNotFound, id)
	}
	return title, nil
}
