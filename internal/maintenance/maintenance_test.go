package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ekaty/ekaty-agent/internal/listing"
	"github.com/ekaty/ekaty-agent/internal/syncer"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSyncer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeSyncer) Sync(context.Context) (*syncer.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &syncer.Stats{Imported: 3}, f.err
}

func (f *fakeSyncer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStale struct {
	rows []listing.Record
	days int
}

func (f *fakeStale) Stale(_ context.Context, days int) ([]listing.Record, error) {
	f.days = days
	return f.rows, nil
}

type fakeAlert struct{ errs []error }

func (a *fakeAlert) Critical(_ context.Context, _ string, err error) error {
	a.errs = append(a.errs, err)
	return nil
}

type fakeCache struct{ prefixes []string }

func (c *fakeCache) InvalidatePrefix(p string) int {
	c.prefixes = append(c.prefixes, p)
	return 0
}

func TestRunLoopStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan time.Time)
	ran := make(chan struct{}, 2)
	done := make(chan struct{})

	go func() {
		runLoop(ctx, ch, func() { ran <- struct{}{} })
		close(done)
	}()

	ch <- time.Now()
	<-ran
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runLoop did not exit after cancel")
	}
}

func TestScheduledSync(t *testing.T) {
	t.Parallel()

	var got []error
	hook := func(_ *syncer.Stats, err error) { got = append(got, err) }

	ok := &fakeSyncer{}
	scheduledSync(context.Background(), ok, hook, discard)

	busy := &fakeSyncer{err: syncer.ErrRunInProgress}
	scheduledSync(context.Background(), busy, hook, discard)

	failing := &fakeSyncer{err: errors.New("boom")}
	scheduledSync(context.Background(), failing, hook, discard)

	if len(got) != 2 || got[0] != nil || got[1] == nil {
		t.Fatalf("expected hook for success and failure only, got %v", got)
	}
}

func TestStaleReport(t *testing.T) {
	t.Parallel()

	st := &fakeStale{rows: []listing.Record{{Name: "A"}, {Name: "B"}}}
	staleReport(context.Background(), st, 14, discard)
	if st.days != 14 {
		t.Fatalf("expected threshold 14, got %d", st.days)
	}
}

func TestStartRunsScheduledSync(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	eng := &fakeSyncer{}
	done := make(chan struct{})
	go func() {
		Start(ctx, eng, &fakeStale{}, Config{SyncInterval: 5 * time.Millisecond}, nil, discard)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for eng.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if eng.count() == 0 {
		t.Fatal("expected at least one scheduled sync")
	}
}

func TestAfterSync(t *testing.T) {
	t.Parallel()

	a := &fakeAlert{}
	c := &fakeCache{}
	hook := AfterSync(context.Background(), a, c, discard)

	hook(&syncer.Stats{Imported: 1}, nil)
	hook(&syncer.Stats{}, errors.New("discover: REQUEST_DENIED"))

	if len(a.errs) != 1 {
		t.Fatalf("expected one alert, got %d", len(a.errs))
	}
	if len(c.prefixes) != 2 || c.prefixes[0] != "listing:" {
		t.Fatalf("expected cache invalidated on every run, got %v", c.prefixes)
	}
}
