package streams

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/murrou-cell/stremio-zamunda/internal/domain"
	"github.com/murrou-cell/stremio-zamunda/internal/episode"
	"github.com/murrou-cell/stremio-zamunda/internal/metrics"
)

const (
	queryMovie     = "movie"
	queryEpisode   = "episode"
	querySeason    = "season"
	querySeasonAlt = "season_alt"
)

// TitleResolver maps an external catalog id to a display title. It returns
// an error wrapping domain.ErrTitleNotFound when the id is unknown.
type TitleResolver interface {
	Title(ctx context.Context, externalID, apiKey string) (string, error)
}

type SearchProvider interface {
	Search(ctx context.Context, query domain.SearchQuery) ([]domain.TorrentRecord, error)
}

type Service struct {
	titles        TitleResolver
	provider      SearchProvider
	cache         Cache
	cacheDisabled bool
	sweepInterval time.Duration
	group         singleflight.Group
	logger        *slog.Logger
	tracer        trace.Tracer
	health        *healthTracker
	backgroundRun atomic.Bool
}

type ServiceOption func(*Service)

func WithCache(cache Cache) ServiceOption {
	return func(s *Service) {
		if cache != nil {
			s.cache = cache
		}
	}
}

func WithCacheDisabled(disabled bool) ServiceOption {
	return func(s *Service) {
		s.cacheDisabled = disabled
	}
}

func WithSweepInterval(interval time.Duration) ServiceOption {
	return func(s *Service) {
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(titles TitleResolver, provider SearchProvider, opts ...ServiceOption) *Service {
	svc := &Service{
		titles:        titles,
		provider:      provider,
		sweepInterval: defaultSweepInterval,
		logger:        slog.Default(),
		tracer:        otel.Tracer("github.com/murrou-cell/stremio-zamunda/internal/streams"),
		health:        newHealthTracker(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.cache == nil {
		svc.cache = NewMemoryCache(defaultCacheTTL)
	}
	return svc
}

// StartBackground starts the cache sweep when the configured cache needs
// one. The sweep stops when ctx is cancelled; the returned channel closes
// once it has.
func (s *Service) StartBackground(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	sweeper, ok := s.cache.(Sweeper)
	if !ok || s.cacheDisabled || !s.backgroundRun.CompareAndSwap(false, true) {
		close(done)
		return done
	}
	stopped, err := runSweeper(ctx, sweeper, s.sweepInterval, s.logger)
	if err != nil {
		s.logger.Error("cache sweep not started", slog.String("error", err.Error()))
		close(done)
		return done
	}
	s.logger.Info("cache sweep started", slog.Duration("interval", s.sweepInterval))
	return stopped
}

func (s *Service) Diagnostics() []domain.QueryDiagnostics {
	return s.health.diagnostics()
}

// Streams resolves the playable streams for one request, serving repeated
// lookups from the cache. Concurrent misses for the same key share a single
// resolution.
func (s *Service) Streams(ctx context.Context, cfg domain.UserConfig, request domain.StreamRequest) (domain.StreamResponse, error) {
	if err := cfg.Validate(); err != nil {
		return domain.StreamResponse{}, err
	}
	if s.cacheDisabled {
		streams, _, err := s.resolve(ctx, cfg, request)
		if err != nil {
			return domain.StreamResponse{}, err
		}
		return domain.StreamResponse{Streams: streams}, nil
	}

	key := buildCacheKey(cfg, request)
	if cached, ok := s.cacheLookup(ctx, key); ok {
		s.logger.Info("serving streams from cache", slog.String("request", request.String()), slog.Int("streams", len(cached)))
		return domain.StreamResponse{Streams: cached}, nil
	}

	value, err, shared := s.group.Do(key, func() (any, error) {
		streams, complete, err := s.resolve(ctx, cfg, request)
		if err != nil {
			return nil, err
		}
		if !complete {
			// Degraded results are served but never cached.
			s.logger.Info("degraded result not cached", slog.String("request", request.String()))
			return streams, nil
		}
		if err := s.cache.Set(ctx, key, streams); err != nil {
			s.logger.Warn("stream cache store failed", slog.String("error", err.Error()))
		}
		return streams, nil
	})
	if err != nil {
		return domain.StreamResponse{}, err
	}
	if shared {
		s.logger.Debug("shared in-flight resolution", slog.String("request", request.String()))
	}
	return domain.StreamResponse{Streams: domain.CloneStreams(value.([]domain.Stream))}, nil
}

func (s *Service) cacheLookup(ctx context.Context, key string) ([]domain.Stream, bool) {
	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("stream cache lookup failed", slog.String("error", err.Error()))
	}
	if !ok {
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	metrics.CacheHitsTotal.Inc()
	return cached, true
}

// resolve reports complete=false when a tracker query failed and the result
// may be missing streams.
func (s *Service) resolve(ctx context.Context, cfg domain.UserConfig, request domain.StreamRequest) ([]domain.Stream, bool, error) {
	ctx, span := s.tracer.Start(ctx, "streams.resolve", trace.WithAttributes(
		attribute.String("media.type", string(request.Type)),
		attribute.String("media.id", request.ID),
		attribute.Bool("filter.bg_audio", cfg.BGAudio),
	))
	defer span.End()

	startedAt := time.Now()
	var (
		streams  []domain.Stream
		complete bool
		err      error
	)
	switch request.Type {
	case domain.MediaTypeMovie:
		streams, complete, err = s.resolveMovie(ctx, cfg, request)
	case domain.MediaTypeSeries:
		streams, complete, err = s.resolveSeries(ctx, cfg, request)
	default:
		err = domain.ErrUnsupportedType
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}

	span.SetAttributes(attribute.Int("streams.count", len(streams)), attribute.Bool("streams.complete", complete))
	metrics.StreamsReturned.WithLabelValues(string(request.Type)).Observe(float64(len(streams)))
	s.logger.Info("streams resolved",
		slog.String("request", request.String()),
		slog.Int("streams", len(streams)),
		slog.Bool("complete", complete),
		slog.Duration("elapsed", time.Since(startedAt)),
	)
	return streams, complete, nil
}

func (s *Service) resolveTitle(ctx context.Context, cfg domain.UserConfig, externalID string) (string, error) {
	title, err := s.titles.Title(ctx, externalID, cfg.OMDBKey)
	if err != nil {
		if errors.Is(err, domain.ErrTitleNotFound) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s: %v", domain.ErrTitleNotFound, externalID, err)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrTitleNotFound, externalID)
	}
	return title, nil
}

func (s *Service) search(ctx context.Context, kind string, cfg domain.UserConfig, text string, broad bool) ([]domain.TorrentRecord, error) {
	ctx, span := s.tracer.Start(ctx, "streams.search", trace.WithAttributes(
		attribute.String("query.kind", kind),
		attribute.String("query.text", text),
		attribute.Bool("query.broad", broad),
	))
	defer span.End()

	startedAt := time.Now()
	records, err := s.provider.Search(ctx, domain.SearchQuery{
		Query:    text,
		Username: cfg.Username,
		Password: cfg.Password,
		Strict:   true,
		Broad:    broad,
	})
	s.health.record(kind, len(records), err, time.Since(startedAt), time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("query.results", len(records)))
	return records, nil
}

func (s *Service) resolveMovie(ctx context.Context, cfg domain.UserConfig, request domain.StreamRequest) ([]domain.Stream, bool, error) {
	title, err := s.resolveTitle(ctx, cfg, request.ExternalID)
	if err != nil {
		return nil, false, err
	}

	streams := make([]domain.Stream, 0)
	records, err := s.search(ctx, queryMovie, cfg, title, false)
	if err != nil {
		s.logger.Warn("movie search failed", slog.String("title", title), slog.String("error", err.Error()))
		return streams, false, nil
	}

	for _, record := range records {
		if stream, ok := BuildStream(record, cfg.BGAudio, nil); ok {
			streams = append(streams, stream)
		}
	}
	return streams, true, nil
}

type seriesQuery struct {
	kind  string
	text  string
	broad bool
}

func seriesQueries(title string, season, episodeNumber int) []seriesQuery {
	return []seriesQuery{
		{kind: queryEpisode, text: fmt.Sprintf("%s S%02dE%02d", title, season, episodeNumber), broad: false},
		{kind: querySeason, text: fmt.Sprintf("%s S%02d", title, season), broad: true},
		{kind: querySeasonAlt, text: fmt.Sprintf("%s Season %d", title, season), broad: true},
	}
}

func (s *Service) resolveSeries(ctx context.Context, cfg domain.UserConfig, request domain.StreamRequest) ([]domain.Stream, bool, error) {
	title, err := s.resolveTitle(ctx, cfg, request.ExternalID)
	if err != nil {
		return nil, false, err
	}

	queries := seriesQueries(title, request.Season, request.Episode)
	results := make([][]domain.TorrentRecord, len(queries))
	failed := make([]bool, len(queries))

	var wg sync.WaitGroup
	for i, query := range queries {
		wg.Add(1)
		go func(index int, query seriesQuery) {
			defer wg.Done()
			records, err := s.search(ctx, query.kind, cfg, query.text, query.broad)
			if err != nil {
				s.logger.Warn("series query failed, continuing without it",
					slog.String("query", query.kind),
					slog.String("error", err.Error()),
				)
				failed[index] = true
				return
			}
			results[index] = records
		}(i, query)
	}
	wg.Wait()

	complete := !slices.Contains(failed, true)

	merged := MergeResults(results...)
	streams := make([]domain.Stream, 0, len(merged))
	for _, record := range merged {
		match := episode.Classify(record, request.Season, request.Episode)
		metrics.MatchesTotal.WithLabelValues(match.Kind.String()).Inc()

		var (
			stream domain.Stream
			ok     bool
		)
		switch match.Kind {
		case episode.SingleEpisode:
			stream, ok = BuildStream(record, cfg.BGAudio, nil)
		case episode.SeasonPack:
			stream, ok = BuildStream(record, cfg.BGAudio, &FileSelection{
				Index:     match.FileIndex,
				SizeBytes: match.FileSizeBytes,
			})
		}
		if ok {
			streams = append(streams, stream)
		}
	}
	return streams, complete, nil
}
