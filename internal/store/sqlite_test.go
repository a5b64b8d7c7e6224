package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ekaty/ekaty-agent/internal/listing"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestStore(t *testing.T) (*SQLiteStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s, err := OpenSQLite(context.Background(), ":memory:", nil, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func record(sourceID, name, slug string) *listing.Record {
	rating := 4.5
	return &listing.Record{
		Name:         name,
		Slug:         slug,
		Address:      "1 Main St, Katy, TX",
		City:         "Katy",
		State:        "TX",
		Latitude:     29.78,
		Longitude:    -95.82,
		Categories:   []string{"Restaurant", "Food"},
		CuisineTypes: []string{"BBQ"},
		Hours:        listing.Hours{"Monday": {Open: "11:00 AM", Close: "9:00 PM"}},
		PriceLevel:   listing.PriceModerate,
		Photos:       []string{"ref1", "ref2"},
		Rating:       &rating,
		ReviewCount:  10,
		Source:       listing.Source,
		SourceID:     sourceID,
		Metadata:     json.RawMessage(`{"place_id":"` + sourceID + `"}`),
		Active:       true,
	}
}

func TestUpsertInsertThenUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, clock := newTestStore(t)
	t0 := clock.Now()

	id1, err := s.Upsert(ctx, record("p1", "Joe's", "joe-s-aaaaaa"))
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	clock.Set(t0.Add(time.Hour))
	updated := record("p1", "Joe's Smokehouse", "joe-s-smokehouse-bbbbbb")
	updated.Active = false
	id2, err := s.Upsert(ctx, updated)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("upsert changed id: %s -> %s", id1, id2)
	}

	got, err := s.FindBySourceID(ctx, "p1")
	if err != nil {
		t.Fatalf("FindBySourceID: %v", err)
	}
	if got.Name != "Joe's Smokehouse" || got.Active {
		t.Fatalf("update not applied: %+v", got)
	}
	if got.Slug != "joe-s-aaaaaa" {
		t.Fatalf("slug must survive updates, got %s", got.Slug)
	}
	if !got.CreatedAt.Equal(t0) {
		t.Fatalf("created_at changed: %v", got.CreatedAt)
	}
	if !got.UpdatedAt.Equal(t0.Add(time.Hour)) || got.LastVerified == nil || !got.LastVerified.Equal(t0.Add(time.Hour)) {
		t.Fatalf("timestamps not refreshed: updated=%v verified=%v", got.UpdatedAt, got.LastVerified)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 1 {
		t.Fatalf("expected exactly one row, got %d", st.Total)
	}
}

func TestUpsertRoundTripsFields(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newTestStore(t)

	in := record("p2", "Pho House", "pho-house-cccccc")
	in.Zip = "77494"
	in.Website = "https://pho.example"
	if _, err := s.Upsert(ctx, in); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.FindBySourceID(ctx, "p2")
	if err != nil {
		t.Fatalf("FindBySourceID: %v", err)
	}
	if len(got.Categories) != 2 || got.Categories[1] != "Food" {
		t.Fatalf("unexpected categories %v", got.Categories)
	}
	if len(got.Photos) != 2 || got.Photos[0] != "ref1" {
		t.Fatalf("unexpected photos %v", got.Photos)
	}
	if got.Hours["Monday"].Close != "9:00 PM" {
		t.Fatalf("unexpected hours %v", got.Hours)
	}
	if got.Rating == nil || *got.Rating != 4.5 {
		t.Fatalf("unexpected rating %v", got.Rating)
	}
	if got.Zip != "77494" || got.Website != "https://pho.example" || got.Phone != "" {
		t.Fatalf("unexpected optional fields %+v", got)
	}
	if string(got.Metadata) != `{"place_id":"p2"}` {
		t.Fatalf("unexpected metadata %s", got.Metadata)
	}
}

func TestUpsertRequiresSourceID(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	if _, err := s.Upsert(context.Background(), record("", "x", "x-1")); !errors.Is(err, ErrMissingSourceID) {
		t.Fatalf("expected ErrMissingSourceID, got %v", err)
	}
}

func TestFindBySourceIDNotFound(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	if _, err := s.FindBySourceID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStaleOrdering(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, clock := newTestStore(t)
	base := clock.Now()

	clock.Set(base.Add(-40 * 24 * time.Hour))
	if _, err := s.Upsert(ctx, record("old", "Old", "old-1")); err != nil {
		t.Fatal(err)
	}
	clock.Set(base.Add(-35 * 24 * time.Hour))
	if _, err := s.Upsert(ctx, record("older-ish", "Less Old", "less-old-1")); err != nil {
		t.Fatal(err)
	}
	clock.Set(base.Add(-50 * 24 * time.Hour))
	if _, err := s.Upsert(ctx, record("never", "Never", "never-1")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.DB().ExecContext(ctx, `UPDATE restaurants SET last_verified = NULL WHERE source_id = 'never'`); err != nil {
		t.Fatalf("clear last_verified: %v", err)
	}
	clock.Set(base.Add(-time.Hour))
	if _, err := s.Upsert(ctx, record("fresh", "Fresh", "fresh-1")); err != nil {
		t.Fatal(err)
	}

	clock.Set(base)
	stale, err := s.Stale(ctx, 30)
	if err != nil {
		t.Fatalf("Stale: %v", err)
	}

	want := []string{"never", "old", "older-ish"}
	if len(stale) != len(want) {
		t.Fatalf("expected %d stale rows, got %d", len(want), len(stale))
	}
	for i, id := range want {
		if stale[i].SourceID != id {
			t.Fatalf("position %d: got %s, want %s", i, stale[i].SourceID, id)
		}
	}
	if stale[0].LastVerified != nil {
		t.Fatalf("expected nil last_verified for never-verified row")
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newTestStore(t)

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats on empty store: %v", err)
	}
	if st != (listing.StoreStats{}) {
		t.Fatalf("expected zero stats, got %+v", st)
	}

	a := record("a", "A", "a-1")
	r1 := 4.0
	a.Rating = &r1
	b := record("b", "B", "b-1")
	r2 := 3.335
	b.Rating = &r2
	b.Active = false
	c := record("c", "C", "c-1")
	c.Rating = nil
	for _, rec := range []*listing.Record{a, b, c} {
		if _, err := s.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert %s: %v", rec.SourceID, err)
		}
	}

	st, err = s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 3 || st.Active != 2 || st.Inactive != 1 {
		t.Fatalf("unexpected counts %+v", st)
	}
	if st.AvgRating != 3.67 {
		t.Fatalf("expected avg 3.67, got %v", st.AvgRating)
	}
}

func TestAuditLog(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, clock := newTestStore(t)

	changes := map[string]int{"imported": 3}
	if err := s.LogAudit(ctx, listing.AuditEntityRestaurant, listing.AuditEntitySystem, listing.ActionSync, changes, nil); err != nil {
		t.Fatalf("LogAudit: %v", err)
	}
	clock.Set(clock.Now().Add(time.Minute))
	meta := map[string]string{"error": "boom"}
	if err := s.LogAudit(ctx, listing.AuditEntityRestaurant, listing.AuditEntitySystem, listing.ActionSyncFailed, nil, meta); err != nil {
		t.Fatalf("LogAudit: %v", err)
	}
	if err := s.LogAudit(ctx, "Other", "x", "NOOP", nil, nil); err != nil {
		t.Fatalf("LogAudit: %v", err)
	}

	entries, err := s.AuditLog(ctx, listing.AuditEntityRestaurant, listing.AuditEntitySystem)
	if err != nil {
		t.Fatalf("AuditLog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Action != listing.ActionSync || string(entries[0].Changes) != `{"imported":3}` || entries[0].Metadata != nil {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Action != listing.ActionSyncFailed || entries[1].Changes != nil || string(entries[1].Metadata) != `{"error":"boom"}` {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
	if entries[0].ID == entries[1].ID || entries[0].ID == "" {
		t.Fatalf("expected distinct ids")
	}
}

func TestOpenSQLiteFileIsMigratedOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := t.TempDir() + "/nested/ekaty.db"

	s1, err := OpenSQLite(ctx, path, nil)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := s1.Upsert(ctx, record("p", "P", "p-1")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	s1.Close()

	s2, err := OpenSQLite(ctx, path, nil)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()
	if _, err := s2.FindBySourceID(ctx, "p"); err != nil {
		t.Fatalf("row lost across reopen: %v", err)
	}
}
