package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const oneRowPage = `<html><body><table><tbody>
	<tr><td><a href="/o/1">1</a></td><td>Street</td><td>Room</td><td>400</td><td>1</td><td>20</td></tr>
</tbody></table></body></html>`

func TestHTTPFetcherFetch(t *testing.T) {
	tests := []struct {
		name         string
		statuses     []int
		retries      int
		wantError    bool
		wantRequests int32
	}{
		{
			name:         "successful fetch",
			statuses:     []int{http.StatusOK},
			retries:      2,
			wantRequests: 1,
		},
		{
			name:         "retries server errors",
			statuses:     []int{http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusOK},
			retries:      2,
			wantRequests: 3,
		},
		{
			name:         "gives up after retries",
			statuses:     []int{http.StatusInternalServerError, http.StatusInternalServerError, http.StatusInternalServerError},
			retries:      1,
			wantError:    true,
			wantRequests: 2,
		},
		{
			name:         "does not retry client errors",
			statuses:     []int{http.StatusNotFound, http.StatusOK},
			retries:      2,
			wantError:    true,
			wantRequests: 1,
		},
		{
			name:         "single attempt without retries",
			statuses:     []int{http.StatusBadGateway, http.StatusOK},
			retries:      0,
			wantError:    true,
			wantRequests: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requests int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				// Verify User-Agent is set
				if userAgent := r.Header.Get("User-Agent"); !strings.Contains(userAgent, "stuwo-offers") {
					t.Errorf("User-Agent = %q, should contain 'stuwo-offers'", userAgent)
				}

				n := atomic.AddInt32(&requests, 1)
				status := tt.statuses[len(tt.statuses)-1]
				if int(n) <= len(tt.statuses) {
					status = tt.statuses[n-1]
				}
				w.WriteHeader(status)
				w.Write([]byte(oneRowPage))
			}))
			defer server.Close()

			fetcher := NewHTTPFetcher(server.URL, "", time.Second, tt.retries)
			fetcher.retryInterval = time.Millisecond

			body, err := fetcher.Fetch(context.Background())

			if tt.wantError {
				if err == nil {
					t.Error("Fetch() expected error, got nil")
				}
			} else {
				if err != nil {
					t.Fatalf("Fetch() unexpected error: %v", err)
				}
				if body != oneRowPage {
					t.Errorf("Fetch() body = %q, want fixture page", body)
				}
			}

			if got := atomic.LoadInt32(&requests); got != tt.wantRequests {
				t.Errorf("expected %d requests, got %d", tt.wantRequests, got)
			}
		})
	}
}

func TestHTTPFetcherDecodesCharset(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        []byte
		want        string
	}{
		{
			name:        "latin-1 declared in header",
			contentType: "text/html; charset=iso-8859-1",
			body:        []byte("<p>M\xfcnchen</p>"),
			want:        "<p>München</p>",
		},
		{
			name:        "utf-8 passes through",
			contentType: "text/html; charset=utf-8",
			body:        []byte("<p>München</p>"),
			want:        "<p>München</p>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.Write(tt.body)
			}))
			defer server.Close()

			body, err := NewHTTPFetcher(server.URL, "", time.Second, 0).Fetch(context.Background())
			if err != nil {
				t.Fatalf("Fetch() unexpected error: %v", err)
			}
			if body != tt.want {
				t.Errorf("Fetch() body = %q, want %q", body, tt.want)
			}
		})
	}
}

func TestHTTPFetcherCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := NewHTTPFetcher(server.URL, "", time.Second, 5)
	fetcher.retryInterval = time.Millisecond

	if _, err := fetcher.Fetch(ctx); err == nil {
		t.Error("Fetch() expected error for cancelled context, got nil")
	}
}

type stubFetcher struct {
	body string
	err  error
}

func (s *stubFetcher) Fetch(ctx context.Context) (string, error) {
	return s.body, s.err
}

func TestScraperFetchOffers(t *testing.T) {
	malformed := `<table><tbody>
		<tr><td><a href="/o/1">1</a></td><td>Street</td><td>Room</td><td>400</td><td>1</td><td>20</td></tr>
		<tr><td>broken</td></tr>
	</tbody></table>`

	t.Run("parses fetched page", func(t *testing.T) {
		s := New(&stubFetcher{body: oneRowPage}, false)
		result, err := s.FetchOffers(context.Background())
		if err != nil {
			t.Fatalf("FetchOffers() unexpected error: %v", err)
		}
		if len(result.Offers) != 1 || result.Offers[0].ID != "1" {
			t.Errorf("unexpected offers: %+v", result.Offers)
		}
	})

	t.Run("propagates fetch errors", func(t *testing.T) {
		fetchErr := errors.New("connection refused")
		s := New(&stubFetcher{err: fetchErr}, false)
		if _, err := s.FetchOffers(context.Background()); !errors.Is(err, fetchErr) {
			t.Errorf("FetchOffers() error = %v, want %v", err, fetchErr)
		}
	})

	t.Run("strict by default", func(t *testing.T) {
		s := New(&stubFetcher{body: malformed}, false)
		if _, err := s.FetchOffers(context.Background()); !errors.Is(err, ErrRowStructure) {
			t.Errorf("FetchOffers() error = %v, want %v", err, ErrRowStructure)
		}
	})

	t.Run("lenient skips rows", func(t *testing.T) {
		s := New(&stubFetcher{body: malformed}, true)
		result, err := s.FetchOffers(context.Background())
		if err != nil {
			t.Fatalf("FetchOffers() unexpected error: %v", err)
		}
		if len(result.Offers) != 1 || len(result.Skipped) != 1 {
			t.Errorf("expected 1 offer and 1 skipped row, got %d and %d", len(result.Offers), len(result.Skipped))
		}
	})
}

func TestBrowserFetcher(t *testing.T) {
	if os.Getenv("STUWO_TEST_CHROME") != "1" {
		t.Skip("set STUWO_TEST_CHROME=1 to run headless Chrome tests")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(oneRowPage))
	}))
	defer server.Close()

	fetcher := NewBrowserFetcher(server.URL, "", os.Getenv("CHROME_BIN"), 30*time.Second)
	body, err := fetcher.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() unexpected error: %v", err)
	}

	result, err := ParseOffers(strings.NewReader(body), true)
	if err != nil {
		t.Fatalf("ParseOffers() unexpected error: %v", err)
	}
	if len(result.Offers) != 1 {
		t.Errorf("expected 1 offer, got %d", len(result.Offers))
	}
}
