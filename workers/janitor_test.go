package workers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"imoagg/httputil"
	"imoagg/models"
)

type fakeJanitorStore struct {
	listings []*models.Listing
}

func (s *fakeJanitorStore) ListStaleActive(ctx context.Context, olderThan time.Time, limit int) ([]models.Listing, error) {
	var out []models.Listing
	for _, l := range s.listings {
		if l.Status == models.StatusActive && l.LastSeenAt.Before(olderThan) {
			out = append(out, *l)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeJanitorStore) MarkInactive(ctx context.Context, id int64) error {
	for _, l := range s.listings {
		if l.ID == id {
			l.Status = models.StatusInactive
		}
	}
	return nil
}

func (s *fakeJanitorStore) TouchLastSeen(ctx context.Context, id int64, t time.Time) error {
	for _, l := range s.listings {
		if l.ID == id {
			l.LastSeenAt = t
		}
	}
	return nil
}

func staleListing(id int64, url, platform string) *models.Listing {
	return &models.Listing{
		ID:             id,
		Title:          "Apartament 2 camere",
		ListingURL:     url,
		SourcePlatform: platform,
		Status:         models.StatusActive,
		LastSeenAt:     time.Now().Add(-48 * time.Hour),
	}
}

func testJanitor(store JanitorStore, rules map[string]SiteRules) *JanitorWorker {
	w := NewJanitorWorker(store, httputil.NewClients(""), rules)
	w.minDelay, w.maxDelay = 0, 0
	return w
}

func TestJanitorHardNotFoundRetiresStatusOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	listing := staleListing(1, server.URL+"/d/oferta/ap-1", "OLX")
	before := listing.LastSeenAt
	store := &fakeJanitorStore{listings: []*models.Listing{listing}}

	w := testJanitor(store, nil)
	stats, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if stats.Retired != 1 {
		t.Fatalf("retired = %d, want 1", stats.Retired)
	}
	if listing.Status != models.StatusInactive {
		t.Fatalf("status = %s, want INACTIVE", listing.Status)
	}
	if !listing.LastSeenAt.Equal(before) {
		t.Fatalf("last_seen_at moved on retirement: %v", listing.LastSeenAt)
	}
}

func TestJanitorRetirementReachesLogger(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	listing := staleListing(7, server.URL+"/d/oferta/ap-7", "Storia")
	store := &fakeJanitorStore{listings: []*models.Listing{listing}}

	var loggedSite, loggedMessage string
	w := testJanitor(store, nil)
	w.SetLogger(func(level models.LogLevel, siteID, message string) {
		loggedSite, loggedMessage = siteID, message
	})

	if _, err := w.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if loggedSite != "Storia" {
		t.Fatalf("logged site = %q, want the listing's platform", loggedSite)
	}
	if loggedMessage == "" {
		t.Fatal("retirement produced no log entry")
	}
}

func TestJanitorDelaysBeforeFirstFetch(t *testing.T) {
	start := time.Now()
	var firstRequest time.Duration
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if firstRequest == 0 {
			firstRequest = time.Since(start)
		}
		w.Write([]byte(`<html><body>anunt activ</body></html>`))
	}))
	defer server.Close()

	listing := staleListing(1, server.URL+"/d/oferta/ap-1", "OLX")
	store := &fakeJanitorStore{listings: []*models.Listing{listing}}

	w := NewJanitorWorker(store, httputil.NewClients(""), nil)
	w.minDelay, w.maxDelay = 30*time.Millisecond, 30*time.Millisecond

	if _, err := w.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if firstRequest < 30*time.Millisecond {
		t.Fatalf("first fetch after %v, want the delay in front of it", firstRequest)
	}
}

func TestJanitorSoft404PhraseRetires(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><h1>Acest anunț a fost dezactivat</h1></body></html>`))
	}))
	defer server.Close()

	listing := staleListing(1, server.URL+"/d/oferta/ap-1", "OLX")
	store := &fakeJanitorStore{listings: []*models.Listing{listing}}

	rules := map[string]SiteRules{
		"OLX": {Soft404Phrases: []string{"acest anunt a fost dezactivat"}},
	}
	stats, err := testJanitor(store, rules).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if stats.Retired != 1 {
		t.Fatalf("retired = %d, want 1", stats.Retired)
	}
	if listing.Status != models.StatusInactive {
		t.Fatalf("status = %s, want INACTIVE", listing.Status)
	}
}

func TestJanitorRedirectOffDetailPagesRetires(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/d/oferta/ap-1", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, server.URL+"/imobiliare/", http.StatusFound)
	})
	mux.HandleFunc("/imobiliare/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>lista de rezultate</body></html>`))
	})

	listing := staleListing(1, server.URL+"/d/oferta/ap-1", "OLX")
	store := &fakeJanitorStore{listings: []*models.Listing{listing}}

	rules := map[string]SiteRules{
		"OLX": {DetailURLPrefix: "/d/oferta"},
	}
	stats, err := testJanitor(store, rules).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if stats.Retired != 1 {
		t.Fatalf("retired = %d, want 1", stats.Retired)
	}
}

func TestJanitorLivePageTouchesLastSeen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><h1>Apartament 2 camere</h1></body></html>`))
	}))
	defer server.Close()

	listing := staleListing(1, server.URL+"/d/oferta/ap-1", "OLX")
	before := listing.LastSeenAt
	store := &fakeJanitorStore{listings: []*models.Listing{listing}}

	rules := map[string]SiteRules{
		"OLX": {DetailURLPrefix: "/d/oferta", Soft404Phrases: []string{"a fost dezactivat"}},
	}
	stats, err := testJanitor(store, rules).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if stats.Confirmed != 1 {
		t.Fatalf("confirmed = %d, want 1", stats.Confirmed)
	}
	if listing.Status != models.StatusActive {
		t.Fatalf("status = %s, a live page must stay ACTIVE", listing.Status)
	}
	if !listing.LastSeenAt.After(before) {
		t.Fatal("last_seen_at not refreshed on a live page")
	}
}

func TestJanitorNetworkErrorLeavesRecordUntouched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL + "/d/oferta/ap-1"
	server.Close() // connection refused from here on

	listing := staleListing(1, url, "OLX")
	before := listing.LastSeenAt
	store := &fakeJanitorStore{listings: []*models.Listing{listing}}

	stats, err := testJanitor(store, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if stats.Errors != 1 {
		t.Fatalf("errors = %d, want 1", stats.Errors)
	}
	if listing.Status != models.StatusActive || !listing.LastSeenAt.Equal(before) {
		t.Fatalf("inconclusive check mutated the record: %s %v", listing.Status, listing.LastSeenAt)
	}
}

func TestJanitorIgnoresFreshAndInactiveListings(t *testing.T) {
	fresh := staleListing(1, "https://www.olx.ro/d/oferta/ap-1", "OLX")
	fresh.LastSeenAt = time.Now()
	inactive := staleListing(2, "https://www.olx.ro/d/oferta/ap-2", "OLX")
	inactive.Status = models.StatusInactive
	store := &fakeJanitorStore{listings: []*models.Listing{fresh, inactive}}

	stats, err := testJanitor(store, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if stats.Checked != 0 {
		t.Fatalf("checked = %d, want 0", stats.Checked)
	}
	if inactive.Status != models.StatusInactive {
		t.Fatal("an INACTIVE record was resurrected")
	}
}
