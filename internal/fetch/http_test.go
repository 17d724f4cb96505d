package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/newsloom/ingestd/internal/ingest"
)

func newArticleServer(t *testing.T, robots string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(robots))
	})
	mux.HandleFunc("/article", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><h1>Headline</h1><p>Body text.</p></body></html>`))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPFetcher_Fetch_OK(t *testing.T) {
	t.Parallel()

	srv := newArticleServer(t, "User-agent: *\nAllow: /\n")
	f := NewHTTP(HTTPConfig{UserAgent: "ingestd-test"})

	page, err := f.Fetch(context.Background(), srv.URL+"/article")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, string(page.Body), "Headline")
}

func TestHTTPFetcher_Fetch_RobotsDisallowedIsPermanent(t *testing.T) {
	t.Parallel()

	srv := newArticleServer(t, "User-agent: *\nDisallow: /\n")
	f := NewHTTP(HTTPConfig{UserAgent: "ingestd-test"})

	_, err := f.Fetch(context.Background(), srv.URL+"/article")
	require.Error(t, err)
	require.Equal(t, ingest.KindPermanentAccessDenied, ingest.KindOf(err))
}

func TestHTTPFetcher_Fetch_NotFoundIsParseFailure(t *testing.T) {
	t.Parallel()

	srv := newArticleServer(t, "User-agent: *\nAllow: /\n")
	f := NewHTTP(HTTPConfig{UserAgent: "ingestd-test"})

	page, err := f.Fetch(context.Background(), srv.URL+"/gone")
	require.Error(t, err)
	require.Equal(t, ingest.KindParseFailure, ingest.KindOf(err))
	require.Equal(t, http.StatusNotFound, page.StatusCode)
}
