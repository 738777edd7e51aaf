package sched

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"BetLedger/internal/ledger"
	"BetLedger/internal/store"
)

type fakeSettler struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
	block chan struct{} // when set, SettleMatch blocks until closed
}

func newFakeSettler() *fakeSettler {
	return &fakeSettler{calls: make(map[string]int), fail: make(map[string]bool)}
}

func (f *fakeSettler) SettleMatch(_ context.Context, matchKey string) error {
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	f.calls[matchKey]++
	shouldFail := f.fail[matchKey]
	f.mu.Unlock()

	if shouldFail {
		return errors.New("settlement failed")
	}
	return nil
}

func (f *fakeSettler) count(matchKey string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[matchKey]
}

func seedMatches(t *testing.T, st *store.MemoryStore, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if err := st.UpsertMatch(context.Background(), &ledger.Match{Key: k}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestTickSettlesAllUnsettledMatches(t *testing.T) {
	st := store.NewMemoryStore()
	seedMatches(t, st, "m1", "m2", "m3")
	settler := newFakeSettler()

	r := New(Config{Interval: time.Hour}, st, settler, nil, zerolog.Nop())
	r.Tick(context.Background())
	r.Wait()

	for _, key := range []string{"m1", "m2", "m3"} {
		if settler.count(key) != 1 {
			t.Errorf("match %s settled %d times, want 1", key, settler.count(key))
		}
	}
}

func TestTickSkipsSettledMatches(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seedMatches(t, st, "open")
	st.UpsertMatch(ctx, &ledger.Match{Key: "done", DistributionDone: true})
	st.UpsertMatch(ctx, &ledger.Match{Key: "gone", Finished: true})
	settler := newFakeSettler()

	r := New(Config{Interval: time.Hour}, st, settler, nil, zerolog.Nop())
	r.Tick(ctx)
	r.Wait()

	if settler.count("open") != 1 {
		t.Errorf("open match settled %d times, want 1", settler.count("open"))
	}
	if settler.count("done") != 0 || settler.count("gone") != 0 {
		t.Error("settled or finished match was reprocessed")
	}
}

func TestNoOverlappingRunsPerMatch(t *testing.T) {
	st := store.NewMemoryStore()
	seedMatches(t, st, "m1")
	settler := newFakeSettler()
	settler.block = make(chan struct{})

	r := New(Config{Interval: time.Hour}, st, settler, nil, zerolog.Nop())
	ctx := context.Background()

	r.Tick(ctx) // starts a blocked settlement for m1
	r.Tick(ctx) // must skip m1 while the first run is in flight
	r.Tick(ctx)

	close(settler.block)
	r.Wait()

	if got := settler.count("m1"); got != 1 {
		t.Errorf("m1 settled %d times with overlapping ticks, want 1", got)
	}
}

func TestFailureOnOneMatchDoesNotAbortScan(t *testing.T) {
	st := store.NewMemoryStore()
	seedMatches(t, st, "bad", "good")
	settler := newFakeSettler()
	settler.fail["bad"] = true

	r := New(Config{Interval: time.Hour}, st, settler, nil, zerolog.Nop())
	r.Tick(context.Background())
	r.Wait()

	if settler.count("good") != 1 {
		t.Errorf("good match settled %d times, want 1", settler.count("good"))
	}
	// The failed match is retried on the next pass.
	r.Tick(context.Background())
	r.Wait()
	if settler.count("bad") != 2 {
		t.Errorf("bad match settled %d times after two passes, want 2", settler.count("bad"))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	st := store.NewMemoryStore()
	settler := newFakeSettler()
	r := New(Config{Interval: 5 * time.Millisecond}, st, settler, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
