package streams

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/murrou-cell/stremio-zamunda/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTitles struct {
	titles map[string]string
	calls  atomic.Int32
}

func (f *fakeTitles) Title(_ context.Context, externalID, _ string) (string, error) {
	f.calls.Add(1)
	title, ok := f.titles[externalID]
	if !ok {
		return "", domain.ErrTitleNotFound
	}
	return title, nil
}

// fakeTracker answers by exact query text. Queries listed in failing return
// an error; unknown queries return an empty list.
type fakeTracker struct {
	mu       sync.Mutex
	results  map[string][]domain.TorrentRecord
	failing  map[string]error
	delay    time.Duration
	queries  []domain.SearchQuery
	searches atomic.Int32
}

func (f *fakeTracker) Search(ctx context.Context, query domain.SearchQuery) ([]domain.TorrentRecord, error) {
	f.searches.Add(1)
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := f.failing[query.Query]; ok {
		return nil, err
	}
	return append([]domain.TorrentRecord(nil), f.results[query.Query]...), nil
}

func (f *fakeTracker) seen() []domain.SearchQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.SearchQuery(nil), f.queries...)
}

var testConfig = domain.UserConfig{OMDBKey: "key", Username: "user", Password: "pass"}

func seriesRequest(season, episode int) domain.StreamRequest {
	return domain.StreamRequest{
		Type:       domain.MediaTypeSeries,
		ID:         "tt100:1:2",
		ExternalID: "tt100",
		Season:     season,
		Episode:    episode,
	}
}

func movieRequest() domain.StreamRequest {
	return domain.StreamRequest{Type: domain.MediaTypeMovie, ID: "tt200", ExternalID: "tt200"}
}

func newTestStreamService(titles TitleResolver, tracker SearchProvider, opts ...ServiceOption) *Service {
	opts = append([]ServiceOption{WithLogger(discardLogger())}, opts...)
	return NewService(titles, tracker, opts...)
}

// ---------------------------------------------------------------------------
// series
// ---------------------------------------------------------------------------

func TestStreamsSeriesSeasonPackAndSingleEpisode(t *testing.T) {
	titles := &fakeTitles{titles: map[string]string{"tt100": "Show"}}
	tracker := &fakeTracker{results: map[string][]domain.TorrentRecord{
		"Show S01E02": {
			{Name: "Show.S01E02.1080p", InfoHash: "EP", Size: "1.2 GB", Seeders: 5},
		},
		"Show S01": {
			{
				Name:     "Show.S01.Complete",
				InfoHash: "PACK",
				Size:     "10 GB",
				Seeders:  9,
				Files: []domain.TorrentFile{
					{Name: "Show.S01E01.mkv", SizeBytes: 1},
					{Name: "Show.S01E02.mkv", SizeBytes: 2},
				},
			},
			{Name: "Show.S01E02.720p", InfoHash: "EP", Size: "700 MB", Seeders: 1},
		},
		"Show Season 1": {
			{Name: "Other.S01E05.mkv", InfoHash: "NOPE", Size: "1 GB"},
		},
	}}
	svc := newTestStreamService(titles, tracker)

	resp, err := svc.Streams(context.Background(), testConfig, seriesRequest(1, 2))
	if err != nil {
		t.Fatalf("Streams: %v", err)
	}
	if len(resp.Streams) != 2 {
		t.Fatalf("expected 2 streams, got %+v", resp.Streams)
	}

	single := resp.Streams[0]
	if single.InfoHash != "EP" || single.FileIdx != nil || single.Description != "Show.S01E02.1080p" {
		t.Fatalf("unexpected single-episode stream: %+v", single)
	}

	pack := resp.Streams[1]
	if pack.InfoHash != "PACK" || pack.FileIdx == nil || *pack.FileIdx != 1 {
		t.Fatalf("unexpected season-pack stream: %+v", pack)
	}
	if pack.BehaviorHints.BingeGroup != "zamunda-nonbg-binge" {
		t.Fatalf("unexpected binge group %q", pack.BehaviorHints.BingeGroup)
	}

	queries := map[string]domain.SearchQuery{}
	for _, query := range tracker.seen() {
		queries[query.Query] = query
	}
	if len(queries) != 3 {
		t.Fatalf("expected three distinct queries, got %+v", tracker.seen())
	}
	if queries["Show S01E02"].Broad {
		t.Fatal("episode query must use the primary categories")
	}
	if !queries["Show S01"].Broad || !queries["Show Season 1"].Broad {
		t.Fatal("season queries must use the broad categories")
	}
	for _, query := range queries {
		if !query.Strict || query.Username != "user" || query.Password != "pass" {
			t.Fatalf("unexpected query: %+v", query)
		}
	}
}

func TestStreamsSeriesPartialFailureDegrades(t *testing.T) {
	titles := &fakeTitles{titles: map[string]string{"tt100": "Show"}}
	tracker := &fakeTracker{
		results: map[string][]domain.TorrentRecord{
			"Show S01": {{Name: "Show S01E02 WEB", InfoHash: "B", Size: "1 GB"}},
		},
		failing: map[string]error{
			"Show S01E02":   errors.New("tracker down"),
			"Show Season 1": context.DeadlineExceeded,
		},
	}
	svc := newTestStreamService(titles, tracker)

	resp, err := svc.Streams(context.Background(), testConfig, seriesRequest(1, 2))
	if err != nil {
		t.Fatalf("expected partial failure to degrade, got %v", err)
	}
	if len(resp.Streams) != 1 || resp.Streams[0].InfoHash != "B" {
		t.Fatalf("unexpected streams: %+v", resp.Streams)
	}

	diagnostics := svc.Diagnostics()
	if len(diagnostics) != 3 {
		t.Fatalf("expected diagnostics for 3 query kinds, got %+v", diagnostics)
	}
	for _, item := range diagnostics {
		switch item.Query {
		case queryEpisode:
			if item.ConsecutiveFailures != 1 || item.LastError == "" {
				t.Fatalf("unexpected episode diagnostics: %+v", item)
			}
		case querySeasonAlt:
			if !item.LastTimeout || item.TimeoutCount != 1 {
				t.Fatalf("unexpected season_alt diagnostics: %+v", item)
			}
		case querySeason:
			if item.ConsecutiveFailures != 0 || item.LastResults != 1 {
				t.Fatalf("unexpected season diagnostics: %+v", item)
			}
		}
	}
}

func TestStreamsSeriesAllQueriesFailDegradesUncached(t *testing.T) {
	titles := &fakeTitles{titles: map[string]string{"tt100": "Show"}}
	down := errors.New("tracker down")
	tracker := &fakeTracker{failing: map[string]error{
		"Show S01E02":   down,
		"Show S01":      down,
		"Show Season 1": down,
	}}
	cache := NewMemoryCache(time.Hour)
	svc := newTestStreamService(titles, tracker, WithCache(cache))

	resp, err := svc.Streams(context.Background(), testConfig, seriesRequest(1, 2))
	if err != nil {
		t.Fatalf("expected tracker failure to degrade, got %v", err)
	}
	if len(resp.Streams) != 0 {
		t.Fatalf("expected no streams, got %+v", resp.Streams)
	}
	if cache.Len() != 0 {
		t.Fatal("degraded resolution must not be cached")
	}

	_, _ = svc.Streams(context.Background(), testConfig, seriesRequest(1, 2))
	if got := tracker.searches.Load(); got != 6 {
		t.Fatalf("expected the second request to query again, got %d searches", got)
	}
}

func TestStreamsSeriesEmptyResultIsValid(t *testing.T) {
	titles := &fakeTitles{titles: map[string]string{"tt100": "Show"}}
	svc := newTestStreamService(titles, &fakeTracker{})

	resp, err := svc.Streams(context.Background(), testConfig, seriesRequest(1, 2))
	if err != nil {
		t.Fatalf("Streams: %v", err)
	}
	if resp.Streams == nil || len(resp.Streams) != 0 {
		t.Fatalf("expected empty non-nil stream list, got %#v", resp.Streams)
	}
}

func TestStreamsSeriesTitleNotFoundSkipsSearch(t *testing.T) {
	tracker := &fakeTracker{}
	svc := newTestStreamService(&fakeTitles{}, tracker)

	_, err := svc.Streams(context.Background(), testConfig, seriesRequest(1, 2))
	if !errors.Is(err, domain.ErrTitleNotFound) {
		t.Fatalf("expected ErrTitleNotFound, got %v", err)
	}
	if tracker.searches.Load() != 0 {
		t.Fatalf("expected no tracker searches, got %d", tracker.searches.Load())
	}
}

// ---------------------------------------------------------------------------
// movie
// ---------------------------------------------------------------------------

func TestStreamsMovieBGAudioFilter(t *testing.T) {
	titles := &fakeTitles{titles: map[string]string{"tt200": "Film"}}
	tracker := &fakeTracker{results: map[string][]domain.TorrentRecord{
		"Film": {
			{Name: "Film 2020 BG", InfoHash: "BG", Size: "2 GB", Seeders: 4, BGAudio: true},
			{Name: "Film 2020", InfoHash: "EN", Size: "2 GB", Seeders: 8},
		},
	}}
	svc := newTestStreamService(titles, tracker)

	cfg := testConfig
	cfg.BGAudio = true
	resp, err := svc.Streams(context.Background(), cfg, movieRequest())
	if err != nil {
		t.Fatalf("Streams: %v", err)
	}
	if len(resp.Streams) != 1 || resp.Streams[0].InfoHash != "BG" {
		t.Fatalf("expected only the bg-audio stream, got %+v", resp.Streams)
	}
	if resp.Streams[0].BehaviorHints.BingeGroup != "zamunda-bg" {
		t.Fatalf("unexpected binge group %q", resp.Streams[0].BehaviorHints.BingeGroup)
	}

	seen := tracker.seen()
	if len(seen) != 1 || seen[0].Broad || !seen[0].Strict {
		t.Fatalf("expected one strict primary-category search, got %+v", seen)
	}
}

func TestStreamsMovieProviderFailureDegrades(t *testing.T) {
	titles := &fakeTitles{titles: map[string]string{"tt200": "Film"}}
	tracker := &fakeTracker{failing: map[string]error{"Film": errors.New("login failed")}}
	cache := NewMemoryCache(time.Hour)
	svc := newTestStreamService(titles, tracker, WithCache(cache))

	resp, err := svc.Streams(context.Background(), testConfig, movieRequest())
	if err != nil {
		t.Fatalf("expected provider failure to degrade, got %v", err)
	}
	if resp.Streams == nil || len(resp.Streams) != 0 {
		t.Fatalf("expected empty non-nil streams, got %#v", resp.Streams)
	}
	if cache.Len() != 0 {
		t.Fatal("degraded resolution must not be cached")
	}
}

func TestStreamsRejectsInvalidConfig(t *testing.T) {
	tracker := &fakeTracker{}
	svc := newTestStreamService(&fakeTitles{}, tracker)

	_, err := svc.Streams(context.Background(), domain.UserConfig{OMDBKey: "k"}, movieRequest())
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// caching
// ---------------------------------------------------------------------------

func TestStreamsIdempotentWithinTTL(t *testing.T) {
	titles := &fakeTitles{titles: map[string]string{"tt200": "Film"}}
	tracker := &fakeTracker{results: map[string][]domain.TorrentRecord{
		"Film": {{Name: "Film", InfoHash: "A", Size: "1 GB"}},
	}}
	svc := newTestStreamService(titles, tracker)
	ctx := context.Background()

	first, err := svc.Streams(ctx, testConfig, movieRequest())
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := svc.Streams(ctx, testConfig, movieRequest())
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if tracker.searches.Load() != 1 {
		t.Fatalf("expected one tracker search, got %d", tracker.searches.Load())
	}
	if len(first.Streams) != 1 || len(second.Streams) != 1 || first.Streams[0] != second.Streams[0] {
		t.Fatalf("expected identical responses, got %+v and %+v", first, second)
	}
}

func TestStreamsCacheExpiryResolvesAgain(t *testing.T) {
	clock := newFakeClock()
	titles := &fakeTitles{titles: map[string]string{"tt200": "Film"}}
	tracker := &fakeTracker{}
	svc := newTestStreamService(titles, tracker, WithCache(NewMemoryCache(time.Hour, WithClock(clock.Now))))
	ctx := context.Background()

	_, _ = svc.Streams(ctx, testConfig, movieRequest())
	clock.Advance(time.Hour)
	_, _ = svc.Streams(ctx, testConfig, movieRequest())

	if tracker.searches.Load() != 2 {
		t.Fatalf("expected a fresh search after expiry, got %d", tracker.searches.Load())
	}
}

func TestStreamsCacheDisabled(t *testing.T) {
	titles := &fakeTitles{titles: map[string]string{"tt200": "Film"}}
	tracker := &fakeTracker{}
	svc := newTestStreamService(titles, tracker, WithCacheDisabled(true))
	ctx := context.Background()

	_, _ = svc.Streams(ctx, testConfig, movieRequest())
	_, _ = svc.Streams(ctx, testConfig, movieRequest())

	if tracker.searches.Load() != 2 {
		t.Fatalf("expected every request to search, got %d", tracker.searches.Load())
	}
}

func TestStreamsConcurrentMissesShareResolution(t *testing.T) {
	titles := &fakeTitles{titles: map[string]string{"tt200": "Film"}}
	tracker := &fakeTracker{
		delay: 100 * time.Millisecond,
		results: map[string][]domain.TorrentRecord{
			"Film": {{Name: "Film", InfoHash: "A", Size: "1 GB"}},
		},
	}
	svc := newTestStreamService(titles, tracker)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := svc.Streams(context.Background(), testConfig, movieRequest())
			if err == nil && len(resp.Streams) != 1 {
				err = errors.New("unexpected stream count")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Streams: %v", err)
		}
	}
	if got := tracker.searches.Load(); got != 1 {
		t.Fatalf("expected concurrent misses to share one search, got %d", got)
	}
}

func TestStartBackgroundStopsWithContext(t *testing.T) {
	svc := newTestStreamService(&fakeTitles{}, &fakeTracker{}, WithSweepInterval(time.Second))
	ctx, cancel := context.WithCancel(context.Background())

	done := svc.StartBackground(ctx)
	again := svc.StartBackground(ctx)
	select {
	case <-again:
	default:
		t.Fatal("second StartBackground should return a closed channel")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("background sweep did not stop")
	}
}
