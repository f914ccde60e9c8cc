package zamunda

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"
	"golang.org/x/text/encoding/charmap"

	"github.com/murrou-cell/stremio-zamunda/internal/domain"
	"github.com/murrou-cell/stremio-zamunda/internal/metrics"
	"github.com/murrou-cell/stremio-zamunda/internal/providers/common"
)

const (
	defaultBaseURL             = "https://zamunda.net"
	defaultUserAgent           = "stremio-zamunda/1.0"
	defaultMaxResults          = 20
	defaultDownloadConcurrency = 4
	defaultDownloadAttempts    = 2

	maxPageBytes    = 4 * 1024 * 1024
	maxTorrentBytes = 10 * 1024 * 1024
)

// Movie and TV categories searched by default. Broad searches drop the
// category filter unless BroadCategories is set.
var defaultPrimaryCategories = []int{5, 7, 19, 20, 24, 31, 33, 35, 42, 46}

// ErrLoginFailed wraps domain.ErrProviderUnavailable, so callers that only
// care about availability need not know about it.
var ErrLoginFailed = fmt.Errorf("%w: zamunda login failed", domain.ErrProviderUnavailable)

var errInvalidInfoHash = errors.New("torrent has no valid infohash")

var (
	rowPattern      = regexp.MustCompile(`(?is)<tr[^>]*>.*?</tr>`)
	detailPattern   = regexp.MustCompile(`(?is)<a[^>]+href=["']?(?:[^"'>]*/)?banan\?id=(\d+)[^"'>]*["']?[^>]*>(.*?)</a>`)
	downloadPattern = regexp.MustCompile(`(?i)href=["']?([^"'\s>]*download(?:_go)?\.php/\d+/[^"'\s>]+)`)
	sizePattern     = regexp.MustCompile(`(?is)>\s*([\d]+(?:[.,]\d+)?)\s*(?:<br\s*/?>|&nbsp;|\s)\s*([KMGT]?B)\s*<`)
	seedersPattern  = regexp.MustCompile(`(?is)toseeders=1[^>]*>\s*(?:<[^>]+>\s*)*(\d+)`)
	bgAudioPattern  = regexp.MustCompile(`(?i)bgaudio`)
)

type Config struct {
	BaseURL             string
	UserAgent           string
	Client              *http.Client
	MaxResults          int
	DownloadConcurrency int
	DownloadAttempts    int
	PrimaryCategories   []int
	BroadCategories     []int
	Logger              *slog.Logger
}

type Provider struct {
	client            *http.Client
	baseURL           *url.URL
	userAgent         string
	maxResults        int
	concurrency       int64
	retry             retryPolicy
	primaryCategories []int
	broadCategories   []int
	logger            *slog.Logger
}

type row struct {
	ID          string
	Name        string
	DownloadURL string
	Size        string
	Seeders     int
	BGAudio     bool
}

func NewProvider(cfg Config) (*Provider, error) {
	rawBase := strings.TrimSpace(cfg.BaseURL)
	if rawBase == "" {
		rawBase = defaultBaseURL
	}
	baseURL, err := url.Parse(strings.TrimRight(rawBase, "/"))
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		if err == nil {
			err = errors.New("missing scheme or host")
		}
		return nil, fmt.Errorf("invalid zamunda base url: %w", err)
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	concurrency := cfg.DownloadConcurrency
	if concurrency <= 0 {
		concurrency = defaultDownloadConcurrency
	}
	attempts := cfg.DownloadAttempts
	if attempts <= 0 {
		attempts = defaultDownloadAttempts
	}
	primary := cfg.PrimaryCategories
	if len(primary) == 0 {
		primary = append([]int(nil), defaultPrimaryCategories...)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		client:            client,
		baseURL:           baseURL,
		userAgent:         userAgent,
		maxResults:        maxResults,
		concurrency:       int64(concurrency),
		retry:             defaultRetryPolicy(attempts),
		primaryCategories: primary,
		broadCategories:   cfg.BroadCategories,
		logger:            logger,
	}, nil
}

// Search logs in with the query credentials, lists matching releases and
// downloads each .torrent for its infohash and file list. Rows whose
// metadata cannot be fetched are left out.
func (p *Provider) Search(ctx context.Context, query domain.SearchQuery) ([]domain.TorrentRecord, error) {
	text := strings.TrimSpace(query.Query)
	if text == "" {
		return []domain.TorrentRecord{}, nil
	}

	client, err := p.session()
	if err != nil {
		return nil, err
	}
	if err := p.login(ctx, client, query.Username, query.Password); err != nil {
		return nil, err
	}

	payload, finalURL, err := p.fetchPage(ctx, client, p.searchURL(text, query.Broad))
	if err != nil {
		return nil, err
	}
	if isLoginPage(finalURL, payload) {
		return nil, fmt.Errorf("%w: session rejected on search", ErrLoginFailed)
	}

	rows := parseRows(payload)
	if query.Strict {
		rows = filterStrict(rows, text)
	}
	if len(rows) > p.maxResults {
		rows = rows[:p.maxResults]
	}
	if len(rows) == 0 {
		return []domain.TorrentRecord{}, nil
	}
	return p.collect(ctx, client, rows), nil
}

// session returns a copy of the configured client with a fresh cookie jar,
// so concurrent searches with different accounts never share a login.
func (p *Provider) session() (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client := *p.client
	client.Jar = jar
	return &client, nil
}

func (p *Provider) login(ctx context.Context, client *http.Client, username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		return fmt.Errorf("%w: missing credentials", ErrLoginFailed)
	}
	form := url.Values{"username": {username}, "password": {password}}
	loginURL := p.baseURL.ResolveReference(&url.URL{Path: "/takelogin.php"})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	p.setHeaders(req)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: zamunda login request: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d", ErrLoginFailed, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return err
	}
	if isLoginPage(resp.Request.URL, decodeHTML(body)) {
		return ErrLoginFailed
	}
	return nil
}

func (p *Provider) searchURL(text string, broad bool) string {
	categories := p.primaryCategories
	if broad {
		categories = p.broadCategories
	}
	params := url.Values{"search": {text}}
	for _, category := range categories {
		params.Set("c"+strconv.Itoa(category), "1")
	}
	searchURL := p.baseURL.ResolveReference(&url.URL{Path: "/bananas"})
	searchURL.RawQuery = params.Encode()
	return searchURL.String()
}

func (p *Provider) fetchPage(ctx context.Context, client *http.Client, target string) (string, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", nil, err
	}
	p.setHeaders(req)

	resp, err := client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("%w: zamunda search request: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", nil, fmt.Errorf("%w: zamunda HTTP %d: %s", domain.ErrProviderUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", nil, err
	}
	return decodeHTML(payload), resp.Request.URL, nil
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "bg-BG,bg;q=0.9,en-US;q=0.8,en;q=0.7")
}

// collect downloads torrent metadata for rows with bounded concurrency and
// keeps the page order.
func (p *Provider) collect(ctx context.Context, client *http.Client, rows []row) []domain.TorrentRecord {
	slots := make([]*domain.TorrentRecord, len(rows))
	sem := semaphore.NewWeighted(p.concurrency)

	var wg sync.WaitGroup
	for i, item := range rows {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(index int, item row) {
			defer wg.Done()
			defer sem.Release(1)

			var meta torrentMeta
			err := withRetry(ctx, p.retry, func() error {
				var downloadErr error
				meta, downloadErr = p.downloadTorrent(ctx, client, item.DownloadURL)
				return downloadErr
			})
			if err != nil {
				metrics.TorrentDownloadsTotal.WithLabelValues("error").Inc()
				p.logger.Debug("torrent metadata unavailable",
					slog.String("id", item.ID),
					slog.String("error", err.Error()),
				)
				return
			}
			metrics.TorrentDownloadsTotal.WithLabelValues("ok").Inc()
			slots[index] = &domain.TorrentRecord{
				Name:     item.Name,
				InfoHash: meta.InfoHash,
				Size:     item.Size,
				Seeders:  item.Seeders,
				BGAudio:  item.BGAudio,
				Files:    meta.Files,
			}
		}(i, item)
	}
	wg.Wait()

	records := make([]domain.TorrentRecord, 0, len(slots))
	for _, slot := range slots {
		if slot != nil {
			records = append(records, *slot)
		}
	}
	return records
}

func (p *Provider) downloadTorrent(ctx context.Context, client *http.Client, rawURL string) (torrentMeta, error) {
	ref, err := url.Parse(html.UnescapeString(rawURL))
	if err != nil {
		return torrentMeta{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL.ResolveReference(ref).String(), nil)
	if err != nil {
		return torrentMeta{}, err
	}
	p.setHeaders(req)
	req.Header.Set("Accept", "application/x-bittorrent,*/*")

	resp, err := client.Do(req)
	if err != nil {
		return torrentMeta{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return torrentMeta{}, &statusError{Code: resp.StatusCode}
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxTorrentBytes))
	if err != nil {
		return torrentMeta{}, err
	}
	meta, err := parseTorrent(payload)
	if err != nil {
		return torrentMeta{}, err
	}
	meta.InfoHash = common.NormalizeInfoHash(meta.InfoHash)
	if meta.InfoHash == "" {
		return torrentMeta{}, errInvalidInfoHash
	}
	return meta, nil
}

func parseRows(payload string) []row {
	matches := rowPattern.FindAllString(payload, -1)
	items := make([]row, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, match := range matches {
		item, ok := parseRow(match)
		if !ok {
			continue
		}
		if _, exists := seen[item.ID]; exists {
			continue
		}
		seen[item.ID] = struct{}{}
		items = append(items, item)
	}
	return items
}

func parseRow(raw string) (row, bool) {
	detail := detailPattern.FindStringSubmatch(raw)
	if len(detail) < 3 {
		return row{}, false
	}
	download := downloadPattern.FindStringSubmatch(raw)
	if len(download) < 2 {
		return row{}, false
	}
	item := row{
		ID:          detail[1],
		Name:        common.CleanHTMLText(detail[2]),
		DownloadURL: strings.TrimSpace(download[1]),
		BGAudio:     bgAudioPattern.MatchString(raw),
	}
	if item.Name == "" {
		return row{}, false
	}
	if m := sizePattern.FindStringSubmatch(raw); len(m) >= 3 {
		item.Size = strings.ReplaceAll(m[1], ",", ".") + " " + strings.ToUpper(m[2])
	}
	if m := seedersPattern.FindStringSubmatch(raw); len(m) >= 2 {
		item.Seeders, _ = strconv.Atoi(m[1])
	}
	return item, true
}

// filterStrict keeps rows whose name contains every word of the query.
// Punctuation in the query separates words and is never required.
func filterStrict(rows []row, query string) []row {
	tokens := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(tokens) == 0 {
		return rows
	}
	kept := make([]row, 0, len(rows))
	for _, item := range rows {
		name := strings.ToLower(item.Name)
		matched := true
		for _, token := range tokens {
			if !strings.Contains(name, token) {
				matched = false
				break
			}
		}
		if matched {
			kept = append(kept, item)
		}
	}
	return kept
}

func isLoginPage(finalURL *url.URL, payload string) bool {
	if finalURL != nil && strings.Contains(strings.ToLower(finalURL.Path), "login.php") && !strings.Contains(strings.ToLower(finalURL.Path), "takelogin.php") {
		return true
	}
	content := strings.ToLower(payload)
	if strings.Contains(content, "action=\"takelogin.php\"") || strings.Contains(content, "action='takelogin.php'") || strings.Contains(content, "action=\"/takelogin.php\"") {
		return true
	}
	return strings.Contains(content, "type=\"password\"") || strings.Contains(content, "type='password'")
}

func decodeHTML(payload []byte) string {
	if utf8.Valid(payload) {
		return string(payload)
	}
	decoded, err := charmap.Windows1251.NewDecoder().Bytes(payload)
	if err != nil {
		return string(payload)
	}
	return string(decoded)
}
