package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pfrederiksen/stuwo-offers/internal/offer"
	"github.com/pfrederiksen/stuwo-offers/internal/scraper"
	"github.com/pfrederiksen/stuwo-offers/internal/storage"
)

func newFixtureServer(t *testing.T, page string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(page))
	}))
	t.Cleanup(server.Close)
	return server
}

func loadFixture(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("../../testdata/fixtures/offers.html")
	if err != nil {
		t.Fatalf("failed to load test fixture: %v", err)
	}
	return string(data)
}

func newTestStore(t *testing.T) *storage.FileStore {
	t.Helper()
	store, err := storage.NewFileStore(filepath.Join(t.TempDir(), "offers_cache.json"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return store
}

func newTestScraper(url string) *scraper.Scraper {
	return scraper.New(scraper.NewHTTPFetcher(url, "", time.Second, 0), false)
}

func TestRunFirstRun(t *testing.T) {
	server := newFixtureServer(t, loadFixture(t))
	store := newTestStore(t)

	var out, progress bytes.Buffer
	diff, err := Run(context.Background(), newTestScraper(server.URL), store, &out, &progress, RunOptions{Format: FormatText})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	expected := strings.Join([]string{
		"Starting program!",
		"Getting new offers...",
		"Looking for stored offers...",
		`New Ids: ["10412", "10418", "10421"]`,
		"Removed Ids: []",
		"Storing new values...",
		"",
	}, "\n")
	if out.String() != expected {
		t.Errorf("unexpected output:\n%s\nwant:\n%s", out.String(), expected)
	}
	if progress.Len() != 0 {
		t.Errorf("text mode should not write to the progress writer, got %q", progress.String())
	}

	if len(diff.NewIDs) != 3 || len(diff.RemovedIDs) != 0 {
		t.Errorf("unexpected diff: new=%v removed=%v", diff.NewIDs, diff.RemovedIDs)
	}

	cached, found, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !found {
		t.Fatal("expected cache file to be written")
	}
	if got := offer.IDs(cached); strings.Join(got, ",") != "10412,10418,10421" {
		t.Errorf("cached ids = %v, want fetch order", got)
	}
}

func TestRunDetectsChanges(t *testing.T) {
	server := newFixtureServer(t, loadFixture(t))
	store := newTestStore(t)

	previous := []*offer.Offer{
		offer.NewOffer("10399", "/gone", "Old Street", "Room", "300 €", "1", "12 m²"),
		offer.NewOffer("10412", "/kept", "Leopoldstr. 12", "Room", "520 €", "1", "18 m²"),
	}
	if err := store.Save(context.Background(), previous); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	var out bytes.Buffer
	diff, err := Run(context.Background(), newTestScraper(server.URL), store, &out, &out, RunOptions{Format: FormatText})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !strings.Contains(out.String(), "Offers found on "+store.Location()+"!") {
		t.Errorf("expected cache location message, got:\n%s", out.String())
	}
	if !strings.Contains(out.String(), `New Ids: ["10418", "10421"]`) {
		t.Errorf("expected new ids, got:\n%s", out.String())
	}
	if !strings.Contains(out.String(), `Removed Ids: ["10399"]`) {
		t.Errorf("expected removed ids, got:\n%s", out.String())
	}
	if !diff.HasChanges() {
		t.Error("expected changes")
	}

	// The cache is replaced, not merged
	cached, _, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cached) != 3 || cached[0].Link != "/en/accommodation/private-accommodation-service/offers/detail/10412/" {
		t.Errorf("expected cache to hold exactly the fetched offers, got %+v", cached)
	}
}

func TestRunIdempotent(t *testing.T) {
	server := newFixtureServer(t, loadFixture(t))
	store := newTestStore(t)

	for i := 0; i < 2; i++ {
		var out bytes.Buffer
		diff, err := Run(context.Background(), newTestScraper(server.URL), store, &out, &out, RunOptions{Format: FormatText})
		if err != nil {
			t.Fatalf("run %d: Run() error = %v", i, err)
		}
		if i == 1 && diff.HasChanges() {
			t.Errorf("second run should see no changes, got new=%v removed=%v", diff.NewIDs, diff.RemovedIDs)
		}
	}
}

func TestRunEmptyTableStillStores(t *testing.T) {
	server := newFixtureServer(t, `<table><tbody></tbody></table>`)
	store := newTestStore(t)
	if err := store.Save(context.Background(), []*offer.Offer{offer.NewOffer("1", "/1", "", "", "", "", "")}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	var out bytes.Buffer
	diff, err := Run(context.Background(), newTestScraper(server.URL), store, &out, &out, RunOptions{Format: FormatText})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.Join(diff.RemovedIDs, ",") != "1" {
		t.Errorf("RemovedIDs = %v, want [1]", diff.RemovedIDs)
	}

	cached, _, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cached) != 0 {
		t.Errorf("expected empty cache after empty fetch, got %d offers", len(cached))
	}
}

func TestRunFailures(t *testing.T) {
	t.Run("missing table aborts before touching the cache", func(t *testing.T) {
		server := newFixtureServer(t, `<html><body>maintenance</body></html>`)
		store := newTestStore(t)

		var out bytes.Buffer
		_, err := Run(context.Background(), newTestScraper(server.URL), store, &out, &out, RunOptions{Format: FormatText})
		if !errors.Is(err, scraper.ErrNoTable) {
			t.Fatalf("Run() error = %v, want %v", err, scraper.ErrNoTable)
		}
		if _, err := os.Stat(store.Location()); !os.IsNotExist(err) {
			t.Error("cache should not be written after a failed fetch")
		}
	})

	t.Run("corrupt cache aborts and is left alone", func(t *testing.T) {
		server := newFixtureServer(t, loadFixture(t))
		store := newTestStore(t)
		corrupt := []byte(`[{"id":"1",`)
		if err := os.WriteFile(store.Location(), corrupt, 0644); err != nil {
			t.Fatalf("failed to write cache: %v", err)
		}

		var out bytes.Buffer
		_, err := Run(context.Background(), newTestScraper(server.URL), store, &out, &out, RunOptions{Format: FormatText})
		if !errors.Is(err, storage.ErrCorruptCache) {
			t.Fatalf("Run() error = %v, want %v", err, storage.ErrCorruptCache)
		}
		data, _ := os.ReadFile(store.Location())
		if !bytes.Equal(data, corrupt) {
			t.Error("corrupt cache should not be overwritten")
		}
	})

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		var out bytes.Buffer
		if _, err := Run(context.Background(), newTestScraper(server.URL), newTestStore(t), &out, &out, RunOptions{Format: FormatText}); err == nil {
			t.Error("Run() expected error, got nil")
		}
	})
}

func TestRunDryRun(t *testing.T) {
	server := newFixtureServer(t, loadFixture(t))
	store := newTestStore(t)

	var out bytes.Buffer
	if _, err := Run(context.Background(), newTestScraper(server.URL), store, &out, &out, RunOptions{Format: FormatText, DryRun: true}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if strings.Contains(out.String(), "Storing new values...") {
		t.Error("dry run should not store")
	}
	if _, err := os.Stat(store.Location()); !os.IsNotExist(err) {
		t.Error("dry run should not write the cache")
	}
}

func TestRunJSON(t *testing.T) {
	server := newFixtureServer(t, loadFixture(t))
	store := newTestStore(t)

	var out, progress bytes.Buffer
	if _, err := Run(context.Background(), newTestScraper(server.URL), store, &out, &progress, RunOptions{Format: FormatJSON, Source: server.URL}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var result struct {
		Source     string         `json:"source"`
		NewIDs     []string       `json:"new_ids"`
		RemovedIDs []string       `json:"removed_ids"`
		NewOffers  []*offer.Offer `json:"new_offers"`
		OfferCount int            `json:"offer_count"`
	}
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("output is not a single JSON document: %v\n%s", err, out.String())
	}

	if result.Source != server.URL {
		t.Errorf("source = %q, want %q", result.Source, server.URL)
	}
	if len(result.NewIDs) != 3 || result.RemovedIDs == nil || len(result.RemovedIDs) != 0 {
		t.Errorf("unexpected ids: new=%v removed=%v", result.NewIDs, result.RemovedIDs)
	}
	if result.OfferCount != 3 || len(result.NewOffers) != 3 {
		t.Errorf("expected 3 offers, got count=%d new_offers=%d", result.OfferCount, len(result.NewOffers))
	}
	if !strings.Contains(progress.String(), "Storing new values...") {
		t.Errorf("expected progress lines on the progress writer, got %q", progress.String())
	}
}
