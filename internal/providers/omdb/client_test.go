package omdb

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/murrou-cell/stremio-zamunda/internal/domain"
)

func newTestClient(server *httptest.Server) *Client {
	return NewClient(Config{
		BaseURL: server.URL,
		Client:  server.Client(),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestTitleReturnsTitle(t *testing.T) {
	var gotKey, gotID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("apikey")
		gotID = r.URL.Query().Get("i")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"Title":"The Office","Year":"2005","Response":"True"}`)
	}))
	defer server.Close()

	title, err := newTestClient(server).Title(context.Background(), "tt0386676", "secret")
	if err != nil {
		t.Fatalf("Title: %v", err)
	}
	if title != "The Office" {
		t.Fatalf("unexpected title %q", title)
	}
	if gotKey != "secret" || gotID != "tt0386676" {
		t.Fatalf("unexpected query: apikey=%q i=%q", gotKey, gotID)
	}
}

func TestTitleNotFoundResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"Response":"False","Error":"Incorrect IMDb ID."}`)
	}))
	defer server.Close()

	_, err := newTestClient(server).Title(context.Background(), "tt0", "secret")
	if !errors.Is(err, domain.ErrTitleNotFound) {
		t.Fatalf("expected ErrTitleNotFound, got %v", err)
	}
}

func TestTitleNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"Response":"False","Error":"Invalid API key!"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(server).Title(context.Background(), "tt1", "bad")
	if !errors.Is(err, domain.ErrTitleNotFound) {
		t.Fatalf("expected ErrTitleNotFound, got %v", err)
	}
}

func TestTitleEmptyIDSkipsRequest(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	_, err := newTestClient(server).Title(context.Background(), " ", "secret")
	if !errors.Is(err, domain.ErrTitleNotFound) {
		t.Fatalf("expected ErrTitleNotFound, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatal("expected no request for an empty id")
	}
}

func TestTitleMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>oops</html>`)
	}))
	defer server.Close()

	_, err := newTestClient(server).Title(context.Background(), "tt1", "secret")
	if err == nil {
		t.Fatal("expected decode error")
	}
	if errors.Is(err, domain.ErrTitleNotFound) {
		t.Fatal("decode failures are not a not-found answer")
	}
}

func TestTitleTransportErrorHidesAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := newTestClient(server)
	server.Close()

	_, err := client.Title(context.Background(), "tt0386676", "very-secret-key")
	if err == nil {
		t.Fatal("expected an error from a closed server")
	}
	if errors.Is(err, domain.ErrTitleNotFound) {
		t.Fatalf("transport failure should not read as not found: %v", err)
	}
	if strings.Contains(err.Error(), "very-secret-key") {
		t.Fatalf("api key leaked into error: %v", err)
	}
}
