package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ekaty/ekaty-agent/internal/listing"
	"github.com/ekaty/ekaty-agent/internal/places"
	"github.com/ekaty/ekaty-agent/internal/store"
	"github.com/ekaty/ekaty-agent/internal/transform"
)

type fakeDiscoverer struct {
	stubs []places.PlaceStub
	err   error
	block chan struct{}
	enter chan struct{}
}

func (f *fakeDiscoverer) Discover(ctx context.Context, _ places.LatLng, _ int) ([]places.PlaceStub, error) {
	if f.enter != nil {
		close(f.enter)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.stubs, f.err
}

type fakeDetails struct {
	mu        sync.Mutex
	failing   map[string]bool
	flaky     map[string]int // remaining failures before success
	noPlaceID map[string]bool
	calls     map[string]int
}

func (f *fakeDetails) Details(_ context.Context, id string) (*places.PlaceDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[id]++
	if f.failing[id] {
		return nil, &places.StatusError{Op: "details " + id, Status: "UNKNOWN_ERROR"}
	}
	if f.flaky[id] > 0 {
		f.flaky[id]--
		return nil, errors.New("connection reset")
	}
	d := &places.PlaceDetail{PlaceID: id, Name: "Place " + id, Types: []string{"restaurant", "mexican_restaurant"}}
	if f.noPlaceID[id] {
		d.PlaceID = ""
	}
	return d, nil
}

func makeStubs(n int) []places.PlaceStub {
	out := make([]places.PlaceStub, n)
	for i := range out {
		out[i] = places.PlaceStub{ExternalID: fmt.Sprintf("p%d", i+1), Name: fmt.Sprintf("Place p%d", i+1)}
	}
	return out
}

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.OpenSQLite(context.Background(), ":memory:", nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newEngine(d Discoverer, src DetailSource, s store.Store, workers int, dryRun bool) *Engine {
	fetcher := NewDetailFetcher(src, FetcherOptions{
		MaxRetries: 3,
		RetryDelay: 5 * time.Second,
		Workers:    workers,
		Sleep:      func(context.Context, time.Duration) error { return nil },
	}, nil)
	return NewEngine(d, fetcher, transform.New(nil), s, Options{Radius: 15000, DryRun: dryRun}, nil)
}

func syncAudit(t *testing.T, s store.Store) []listing.AuditEntry {
	t.Helper()
	entries, err := s.AuditLog(context.Background(), listing.AuditEntityRestaurant, listing.AuditEntitySystem)
	if err != nil {
		t.Fatalf("AuditLog: %v", err)
	}
	return entries
}

func TestSyncEndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)
	src := &fakeDetails{failing: map[string]bool{"p3": true, "p7": true}}
	e := newEngine(&fakeDiscoverer{stubs: makeStubs(12)}, src, s, 1, false)

	stats, err := e.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}

	if stats.Discovered != 12 || stats.Detailed != 10 || stats.Transformed != 10 || stats.Imported != 10 {
		t.Fatalf("unexpected counts: %s", stats.Summary())
	}
	if stats.Errors != 2 {
		t.Fatalf("expected 2 errors, got %d", stats.Errors)
	}
	if !stats.Success || stats.Error != "" {
		t.Fatalf("expected success, got %+v", stats)
	}
	if stats.Total != 10 || stats.Active != 10 {
		t.Fatalf("unexpected store snapshot %+v", stats.StoreStats)
	}
	if e.Phase() != PhaseComplete {
		t.Fatalf("expected complete phase, got %s", e.Phase())
	}
	if src.calls["p3"] != 4 {
		t.Fatalf("expected 1 attempt + 3 retries for failing place, got %d", src.calls["p3"])
	}

	entries := syncAudit(t, s)
	if len(entries) != 1 || entries[0].Action != listing.ActionSync {
		t.Fatalf("expected one RESTAURANT_SYNC entry, got %+v", entries)
	}
	var logged map[string]any
	if err := json.Unmarshal(entries[0].Changes, &logged); err != nil {
		t.Fatalf("decode audit changes: %v", err)
	}
	if logged["imported"] != float64(10) || logged["errors"] != float64(2) || logged["success"] != true {
		t.Fatalf("unexpected audit payload %v", logged)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)
	e := newEngine(&fakeDiscoverer{stubs: makeStubs(5)}, &fakeDetails{}, s, 1, false)

	if _, err := e.Sync(ctx); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	first, err := s.FindBySourceID(ctx, "p1")
	if err != nil {
		t.Fatalf("FindBySourceID: %v", err)
	}

	stats, err := e.Sync(ctx)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if stats.Total != 5 || stats.Imported != 5 {
		t.Fatalf("expected 5 rows after rerun, got %+v", stats)
	}

	second, err := s.FindBySourceID(ctx, "p1")
	if err != nil {
		t.Fatalf("FindBySourceID: %v", err)
	}
	if first.ID != second.ID || first.Slug != second.Slug {
		t.Fatalf("rerun changed identity: %s/%s -> %s/%s", first.ID, first.Slug, second.ID, second.Slug)
	}
	if got := len(syncAudit(t, s)); got != 2 {
		t.Fatalf("expected 2 audit entries, got %d", got)
	}
}

func TestSyncDiscoveryFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)
	denied := &places.StatusError{Op: "nearby search", Status: "REQUEST_DENIED"}
	e := newEngine(&fakeDiscoverer{err: denied}, &fakeDetails{}, s, 1, false)

	stats, err := e.Sync(ctx)
	if !errors.Is(err, denied) {
		t.Fatalf("expected discovery error, got %v", err)
	}
	if stats == nil || stats.Success || stats.Error == "" {
		t.Fatalf("expected failed stats, got %+v", stats)
	}
	if e.Phase() != PhaseFailed {
		t.Fatalf("expected failed phase, got %s", e.Phase())
	}

	entries := syncAudit(t, s)
	if len(entries) != 1 || entries[0].Action != listing.ActionSyncFailed {
		t.Fatalf("expected one RESTAURANT_SYNC_FAILED entry, got %+v", entries)
	}
	if entries[0].Changes != nil {
		t.Fatalf("failure entry should carry no changes, got %s", entries[0].Changes)
	}
	var meta struct {
		Error string         `json:"error"`
		Stats map[string]any `json:"stats"`
	}
	if err := json.Unmarshal(entries[0].Metadata, &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta.Error == "" || meta.Stats["success"] != false {
		t.Fatalf("unexpected failure metadata %+v", meta)
	}
}

func TestSyncCountsTransformErrors(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	src := &fakeDetails{noPlaceID: map[string]bool{"p2": true}}
	e := newEngine(&fakeDiscoverer{stubs: makeStubs(4)}, src, s, 1, false)

	stats, err := e.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Detailed != 4 || stats.Transformed != 3 || stats.Imported != 3 || stats.Errors != 1 {
		t.Fatalf("unexpected counts %s", stats.Summary())
	}
}

func TestSyncDryRunWritesNothing(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	e := newEngine(&fakeDiscoverer{stubs: makeStubs(3)}, &fakeDetails{}, s, 1, true)

	stats, err := e.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Transformed != 3 || stats.Imported != 0 || stats.Total != 0 {
		t.Fatalf("dry run should not import: %+v", stats)
	}
	if got := len(syncAudit(t, s)); got != 0 {
		t.Fatalf("dry run should not audit, got %d entries", got)
	}
}

func TestSyncWithWorkersKeepsOrder(t *testing.T) {
	t.Parallel()

	stubs := makeStubs(25)
	src := &fakeDetails{
		failing: map[string]bool{"p5": true},
		flaky:   map[string]int{"p9": 2},
	}
	fetcher := NewDetailFetcher(src, FetcherOptions{
		MaxRetries: 3,
		Workers:    4,
		Sleep:      func(context.Context, time.Duration) error { return nil },
	}, nil)

	stats := &Stats{}
	details, err := fetcher.FetchAll(context.Background(), stubs, stats)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(details) != 24 || stats.Errors != 1 {
		t.Fatalf("expected 24 details and 1 error, got %d / %d", len(details), stats.Errors)
	}
	want := 0
	for _, d := range details {
		want++
		if want == 5 {
			want++
		}
		if d.PlaceID != fmt.Sprintf("p%d", want) {
			t.Fatalf("order broken: got %s, want p%d", d.PlaceID, want)
		}
	}
	if src.calls["p9"] != 3 {
		t.Fatalf("flaky place should succeed on third attempt, got %d calls", src.calls["p9"])
	}
}

func TestFetchAllSkipsEmptyIDs(t *testing.T) {
	t.Parallel()

	stubs := []places.PlaceStub{{ExternalID: "a"}, {Name: "no id"}, {ExternalID: "b"}}
	fetcher := NewDetailFetcher(&fakeDetails{}, FetcherOptions{}, nil)
	stats := &Stats{}
	details, err := fetcher.FetchAll(context.Background(), stubs, stats)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(details) != 2 || stats.Errors != 0 {
		t.Fatalf("unexpected result %d details, %d errors", len(details), stats.Errors)
	}
}

func TestSyncRejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	d := &fakeDiscoverer{stubs: makeStubs(1), block: make(chan struct{}), enter: make(chan struct{})}
	e := newEngine(d, &fakeDetails{}, s, 1, false)

	done := make(chan error, 1)
	go func() {
		_, err := e.Sync(context.Background())
		done <- err
	}()

	<-d.enter
	if e.Phase() != PhaseDiscovering {
		t.Fatalf("expected discovering phase, got %s", e.Phase())
	}
	if _, err := e.Sync(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	close(d.block)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}
}

func TestStartRunsInBackground(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	d := &fakeDiscoverer{stubs: makeStubs(2), block: make(chan struct{}), enter: make(chan struct{})}
	e := newEngine(d, &fakeDetails{}, s, 1, false)

	finished := make(chan *Stats, 1)
	if err := e.Start(context.Background(), func(st *Stats, err error) {
		if err != nil {
			t.Errorf("background run failed: %v", err)
		}
		finished <- st
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	<-d.enter
	if err := e.Start(context.Background(), nil); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	close(d.block)
	st := <-finished
	if st == nil || !st.Success || st.Imported != 2 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestVerifyRestaurant(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)
	src := &fakeDetails{failing: map[string]bool{"bad": true}}
	e := newEngine(&fakeDiscoverer{}, src, s, 1, false)

	res := e.VerifyRestaurant(ctx, "good")
	if !res.Success || res.ID == "" || res.Name != "Place good" {
		t.Fatalf("unexpected verify result %+v", res)
	}
	again := e.VerifyRestaurant(ctx, "good")
	if again.ID != res.ID {
		t.Fatalf("verify should upsert in place: %s vs %s", again.ID, res.ID)
	}

	failed := e.VerifyRestaurant(ctx, "bad")
	if failed.Success || failed.Error == "" || failed.ID != "" {
		t.Fatalf("expected structured failure, got %+v", failed)
	}

	st, err := e.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 1 {
		t.Fatalf("expected one stored listing, got %d", st.Total)
	}
}

func TestStatsJSON(t *testing.T) {
	t.Parallel()

	s := Stats{Discovered: 3, Duration: 1500 * time.Millisecond, Success: true}
	s.Total = 7
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["duration"] != 1.5 || m["discovered"] != float64(3) || m["total"] != float64(7) {
		t.Fatalf("unexpected json %s", b)
	}
}
