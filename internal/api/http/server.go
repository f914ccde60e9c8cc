package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/murrou-cell/stremio-zamunda/internal/domain"
)

type StreamService interface {
	Streams(ctx context.Context, cfg domain.UserConfig, request domain.StreamRequest) (domain.StreamResponse, error)
	Diagnostics() []domain.QueryDiagnostics
}

type Server struct {
	streams    StreamService
	manifest   domain.Manifest
	publicHost string
	rateLimit  float64
	logger     *slog.Logger
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithPublicHost sets the host used in generated install links. Without it
// the request Host header is used.
func WithPublicHost(host string) ServerOption {
	return func(s *Server) {
		s.publicHost = strings.TrimSpace(host)
	}
}

func WithRateLimit(rps float64) ServerOption {
	return func(s *Server) {
		if rps > 0 {
			s.rateLimit = rps
		}
	}
}

func WithManifest(manifest domain.Manifest) ServerOption {
	return func(s *Server) {
		s.manifest = manifest
	}
}

func NewServer(streams StreamService, options ...ServerOption) *Server {
	server := &Server{
		streams:   streams,
		manifest:  domain.DefaultManifest(),
		rateLimit: 20,
		logger:    slog.Default(),
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /manifest.json", s.handleManifest)
	mux.HandleFunc("GET /configure", s.handleConfigurePage)
	mux.HandleFunc("POST /configure", s.handleConfigureSubmit)
	mux.HandleFunc("GET /{config}/manifest.json", s.handleConfiguredManifest)
	mux.HandleFunc("GET /{config}/configure", s.handleConfigurePage)
	mux.HandleFunc("GET /{config}/stream/{type}/{id}", s.handleStream)

	traced := redactURL(otelhttp.NewHandler(loggingMiddleware(s.logger, restoreURL(mux)), "stremio-zamunda",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	))
	burst := int(s.rateLimit * 2)
	return recoveryMiddleware(s.logger,
		corsMiddleware(
			requestIDMiddleware(
				rateLimitMiddleware(s.rateLimit, burst, metricsMiddleware(traced)),
			),
		),
	)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/manifest.json", http.StatusFound)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	var queries []domain.QueryDiagnostics
	if s.streams != nil {
		queries = s.streams.Diagnostics()
	}
	if queries == nil {
		queries = []domain.QueryDiagnostics{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"queries":   queries,
	})
}

func (s *Server) handleManifest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manifest)
}

func (s *Server) handleConfiguredManifest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manifest.Configured())
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.streams == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "stream service is not configured")
		return
	}

	cfg, err := domain.ParseUserConfig(configSegment(r))
	if err != nil {
		writeStreamError(w, http.StatusBadRequest, "Invalid configuration")
		return
	}
	request, err := domain.ParseStreamRequest(r.PathValue("type"), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedType) {
			writeStreamError(w, http.StatusBadRequest, "Invalid type")
			return
		}
		writeStreamError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	response, err := s.streams.Streams(r.Context(), cfg, request)
	if err != nil {
		s.logger.Warn("stream request failed",
			slog.String("request", request.String()),
			slog.Bool("bgAudio", cfg.BGAudio),
			slog.String("error", err.Error()),
		)
		switch {
		case errors.Is(err, domain.ErrTitleNotFound):
			writeStreamError(w, http.StatusNotFound, notFoundMessage(request))
		case errors.Is(err, domain.ErrInvalidConfig):
			writeStreamError(w, http.StatusBadRequest, "Invalid configuration")
		case errors.Is(err, domain.ErrUnsupportedType):
			writeStreamError(w, http.StatusBadRequest, "Invalid type")
		case errors.Is(err, domain.ErrInvalidRequest):
			writeStreamError(w, http.StatusBadRequest, "Invalid request")
		case errors.Is(err, domain.ErrProviderUnavailable):
			writeStreamError(w, http.StatusBadGateway, notFoundMessage(request))
		default:
			writeStreamError(w, http.StatusInternalServerError, "Internal error")
		}
		return
	}
	if response.Streams == nil {
		response.Streams = []domain.Stream{}
	}
	writeJSON(w, http.StatusOK, response)
}

func notFoundMessage(request domain.StreamRequest) string {
	if request.IsSeries() {
		return "Could not find series"
	}
	return "Could not find movie"
}

// configSegment returns the first path segment exactly as the client sent
// it, so a literal separator and an escaped one inside a value stay distinct
// until ParseUserConfig decodes them.
func configSegment(r *http.Request) string {
	raw := r.RequestURI
	if raw == "" || !strings.HasPrefix(raw, "/") {
		raw = r.URL.EscapedPath()
	}
	raw, _, _ = strings.Cut(raw, "?")
	segment, _, _ := strings.Cut(strings.TrimPrefix(raw, "/"), "/")
	return segment
}

type configurePageData struct {
	InstallLink string
	Error       string
}

func (s *Server) handleConfigurePage(w http.ResponseWriter, _ *http.Request) {
	s.renderConfigure(w, http.StatusOK, configurePageData{})
}

// handleConfigureSubmit builds the install link server-side from the posted
// form. Credentials travel in the body, never in a logged query string.
func (s *Server) handleConfigureSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 16*1024)
	if err := r.ParseForm(); err != nil {
		s.renderConfigure(w, http.StatusBadRequest, configurePageData{Error: "Невалидна заявка."})
		return
	}
	cfg := domain.UserConfig{
		OMDBKey:  strings.TrimSpace(r.PostForm.Get("omdb_key")),
		Username: strings.TrimSpace(r.PostForm.Get("username")),
		Password: r.PostForm.Get("password"),
		BGAudio:  r.PostForm.Get("bg_audio") == "on",
	}
	if err := cfg.Validate(); err != nil {
		s.renderConfigure(w, http.StatusBadRequest, configurePageData{Error: "Попълнете всички полета."})
		return
	}
	s.renderConfigure(w, http.StatusOK, configurePageData{InstallLink: cfg.InstallLink(s.installHost(r))})
}

func (s *Server) installHost(r *http.Request) string {
	if s.publicHost != "" {
		return s.publicHost
	}
	return r.Host
}

// The install link is set from script and shown as text: html/template
// rewrites non-http schemes inside href attributes.
func (s *Server) renderConfigure(w http.ResponseWriter, status int, data configurePageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := configureTemplate.Execute(w, data); err != nil {
		s.logger.Warn("configure page render failed", slog.String("error", err.Error()))
	}
}

var configureTemplate = template.Must(template.New("configure").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Stremio Zamunda</title>
</head>
<body>
<h1>Конфигурация:</h1>
{{if .Error}}<p style="color:#b00">{{.Error}}</p>{{end}}
{{if .InstallLink}}
<p><a id="install" href="#">Инсталиране в Stremio</a></p>
<p><code>{{.InstallLink}}</code></p>
<script>
const link = {{.InstallLink}};
document.getElementById("install").href = link;
window.location.href = link;
</script>
{{end}}
<form method="post" action="/configure">
<label for="omdb_key">OMDB API Key (<a target="_blank" href="https://www.omdbapi.com/apikey.aspx">тук</a>):</label><br>
<input type="text" id="omdb_key" name="omdb_key" required><br>
<label for="username">Zamunda потребителско име:</label><br>
<input type="text" id="username" name="username" required><br>
<label for="password">Zamunda парола:</label><br>
<input type="password" id="password" name="password" required><br><br>
<label for="bg_audio">Само торенти с българско аудио:</label>
<input type="checkbox" id="bg_audio" name="bg_audio"><br><br>
<input type="submit" value="Инсталиране">
</form>
</body>
</html>
`))

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// writeStreamError uses the flat shape the add-on client understands.
func writeStreamError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
