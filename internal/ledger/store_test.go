package ledger

import (
	"fmt"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// TestMain ensures no goroutines outlive the store handles the tests
// open against temporary databases.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// =============================================================================
// ENTRY TESTS
// =============================================================================

func TestAppendAndRecent(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	entries := []Entry{
		{Action: "Add retry to fetcher", File: "fetcher.go", Status: StatusSuccess},
		{Action: "Refactor parser", File: "parser.go", Status: StatusFailed, Error: "Unit test failed: TestParse"},
		{Action: "Tune cache TTL", File: "cache.go", Status: StatusSuccess},
	}
	for _, e := range entries {
		if err := store.Append(e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := store.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}

	// Chronological order: oldest first
	if got[0].Action != "Add retry to fetcher" {
		t.Errorf("expected oldest entry first, got %q", got[0].Action)
	}
	if got[2].Action != "Tune cache TTL" {
		t.Errorf("expected newest entry last, got %q", got[2].Action)
	}
	if got[1].Status != StatusFailed {
		t.Errorf("expected failed status, got %q", got[1].Status)
	}
	if got[1].Error != "Unit test failed: TestParse" {
		t.Errorf("error text not preserved: %q", got[1].Error)
	}
}

func TestRecentLimit(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	for i := 0; i < 10; i++ {
		err := store.Append(Entry{
			Action: fmt.Sprintf("change %d", i),
			File:   "main.go",
			Status: StatusSuccess,
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := store.Recent(5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(got))
	}
	// The window holds the 5 newest, oldest of those first
	if got[0].Action != "change 5" {
		t.Errorf("expected window to start at change 5, got %q", got[0].Action)
	}
	if got[4].Action != "change 9" {
		t.Errorf("expected window to end at change 9, got %q", got[4].Action)
	}
}

func TestAppendDefaults(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	before := time.Now().Add(-time.Second)
	if err := store.Append(Entry{Action: "noop", File: "x.go", Status: StatusSuccess}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := store.Recent(1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].Type != "evolution" {
		t.Errorf("expected default type evolution, got %q", got[0].Type)
	}
	if got[0].Timestamp.Before(before) {
		t.Errorf("expected timestamp to be filled in, got %v", got[0].Timestamp)
	}
}

func TestCount(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	count, err := store.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty ledger, got %d", count)
	}

	for i := 0; i < 4; i++ {
		store.Append(Entry{Action: "a", File: "b.go", Status: StatusSuccess})
	}
	count, err = store.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4 entries, got %d", count)
	}
}

// =============================================================================
// GROWTH SCORE TESTS
// =============================================================================

func TestGrowthScore(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	score, err := store.GrowthScore()
	if err != nil {
		t.Fatalf("GrowthScore: %v", err)
	}
	if score != 0 {
		t.Errorf("expected initial score 0, got %d", score)
	}

	total, err := store.AddGrowth(10)
	if err != nil {
		t.Fatalf("AddGrowth: %v", err)
	}
	if total != 10 {
		t.Errorf("expected total 10, got %d", total)
	}

	total, err = store.AddGrowth(20)
	if err != nil {
		t.Fatalf("AddGrowth: %v", err)
	}
	if total != 30 {
		t.Errorf("expected total 30, got %d", total)
	}
}

func TestRecentGrowthScores(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	store.AddGrowth(10)
	store.AddGrowth(10)
	store.RecordGrowthSample()
	store.AddGrowth(5)

	scores, err := store.RecentGrowthScores(10)
	if err != nil {
		t.Fatalf("RecentGrowthScores: %v", err)
	}
	want := []int{10, 20, 20, 25}
	if len(scores) != len(want) {
		t.Fatalf("expected %d samples, got %d: %v", len(want), len(scores), scores)
	}
	for i := range want {
		if scores[i] != want[i] {
			t.Errorf("sample %d: expected %d, got %d", i, want[i], scores[i])
		}
	}
}

func TestRecentGrowthScoresWindow(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	for i := 0; i < 8; i++ {
		store.AddGrowth(1)
	}

	scores, err := store.RecentGrowthScores(5)
	if err != nil {
		t.Fatalf("RecentGrowthScores: %v", err)
	}
	want := []int{4, 5, 6, 7, 8}
	if len(scores) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(scores))
	}
	for i := range want {
		if scores[i] != want[i] {
			t.Errorf("sample %d: expected %d, got %d", i, want[i], scores[i])
		}
	}
}

// =============================================================================
// CYCLE COUNTER TESTS
// =============================================================================

func TestCycleCounter(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	count, err := store.CyclesRun()
	if err != nil {
		t.Fatalf("CyclesRun: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 cycles, got %d", count)
	}

	for i := 1; i <= 3; i++ {
		n, err := store.IncrementCycles()
		if err != nil {
			t.Fatalf("IncrementCycles: %v", err)
		}
		if n != i {
			t.Errorf("expected cycle count %d, got %d", i, n)
		}
	}
}

// =============================================================================
// PERSISTENCE TESTS
// =============================================================================

func TestPersistenceAcrossReopen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	store.Append(Entry{Action: "first", File: "a.go", Status: StatusSuccess})
	store.AddGrowth(10)
	store.Close()

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	entries, err := reopened.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != "first" {
		t.Errorf("entries not persisted: %+v", entries)
	}

	score, err := reopened.GrowthScore()
	if err != nil {
		t.Fatalf("GrowthScore: %v", err)
	}
	if score != 10 {
		t.Errorf("growth score not persisted: %d", score)
	}
}

func TestConcurrentAppends(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			store.Append(Entry{
				Action: fmt.Sprintf("concurrent %d", n),
				File:   "x.go",
				Status: StatusSuccess,
			})
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	count, err := store.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 10 {
		t.Errorf("expected 10 entries, got %d", count)
	}
}
