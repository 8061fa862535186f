package blacklist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"lms-session-manager/backend/internal/blacklist/domain"
	"lms-session-manager/backend/internal/blacklist/repository"
)

type faultyRepo struct {
	*repository.MemoryRepository
	mu   sync.Mutex
	err  error
	gets int
	puts int
}

func newFaultyRepo() *faultyRepo {
	return &faultyRepo{MemoryRepository: repository.NewMemoryRepository()}
}

func (r *faultyRepo) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *faultyRepo) Put(ctx context.Context, e *domain.Entry) error {
	r.mu.Lock()
	r.puts++
	err := r.err
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.MemoryRepository.Put(ctx, e)
}

func (r *faultyRepo) Get(ctx context.Context, fp string) (*domain.Entry, error) {
	r.mu.Lock()
	r.gets++
	err := r.err
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.MemoryRepository.Get(ctx, fp)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*Store, *faultyRepo, *fakeClock) {
	t.Helper()
	repo := newFaultyRepo()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewStore(repo, WithClock(clock.Now), WithShards(8)), repo, clock
}

func TestStore_AddAndIsBlacklisted(t *testing.T) {
	ctx := context.Background()
	store, repo, clock := newTestStore(t)

	if err := store.Add(ctx, "fp-1", "42", "logout", clock.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ok, err := store.IsBlacklisted(ctx, "fp-1")
	if err != nil || !ok {
		t.Fatalf("IsBlacklisted = %v, %v; want true, nil", ok, err)
	}
	if repo.gets != 0 {
		t.Errorf("cache hit should not touch the durable store, gets=%d", repo.gets)
	}
	if e, _ := repo.MemoryRepository.Get(ctx, "fp-1"); e == nil || e.Reason != "logout" {
		t.Errorf("durable entry = %+v", e)
	}
}

func TestStore_NotBlacklisted(t *testing.T) {
	store, _, _ := newTestStore(t)
	ok, err := store.IsBlacklisted(context.Background(), "fp-unknown")
	if err != nil || ok {
		t.Errorf("IsBlacklisted = %v, %v; want false, nil", ok, err)
	}
}

func TestStore_AddIdempotentFirstWins(t *testing.T) {
	ctx := context.Background()
	store, repo, clock := newTestStore(t)
	exp := clock.Now().Add(time.Hour)

	for i := 0; i < 3; i++ {
		if err := store.Add(ctx, "fp-1", "42", fmt.Sprintf("reason-%d", i), exp.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("Add #%d: %v", i, err)
		}
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
	e, _ := repo.MemoryRepository.Get(ctx, "fp-1")
	if e.Reason != "reason-0" || !e.ExpiresAt.Equal(exp) {
		t.Errorf("durable entry = %+v, want the first one", e)
	}
	// The first expiry governs: just after it the token is no longer listed.
	clock.Advance(time.Hour)
	if ok, _ := store.IsBlacklisted(ctx, "fp-1"); ok {
		t.Error("entry should expire with the first recorded expiry")
	}
}

func TestStore_AddEmptyFingerprint(t *testing.T) {
	store, _, clock := newTestStore(t)
	if err := store.Add(context.Background(), "", "42", "logout", clock.Now().Add(time.Hour)); !errors.Is(err, ErrEmptyFingerprint) {
		t.Errorf("Add empty: want ErrEmptyFingerprint, got %v", err)
	}
}

func TestStore_AddAlreadyExpiredIsNoop(t *testing.T) {
	ctx := context.Background()
	store, repo, clock := newTestStore(t)
	if err := store.Add(ctx, "fp-1", "42", "logout", clock.Now()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if store.Len() != 0 || repo.puts != 0 {
		t.Errorf("expired token should not be recorded: Len=%d puts=%d", store.Len(), repo.puts)
	}
}

func TestStore_AddDurableFailureStillCached(t *testing.T) {
	ctx := context.Background()
	store, repo, clock := newTestStore(t)
	wantErr := errors.New("db down")
	repo.setErr(wantErr)

	if err := store.Add(ctx, "fp-1", "42", "logout", clock.Now().Add(time.Hour)); !errors.Is(err, wantErr) {
		t.Fatalf("Add: want %v, got %v", wantErr, err)
	}
	ok, err := store.IsBlacklisted(ctx, "fp-1")
	if err != nil || !ok {
		t.Errorf("IsBlacklisted after failed durable write = %v, %v; want true, nil", ok, err)
	}
}

func TestStore_ExpiredEntryEvictedOnRead(t *testing.T) {
	ctx := context.Background()
	store, _, clock := newTestStore(t)
	_ = store.Add(ctx, "fp-1", "42", "logout", clock.Now().Add(time.Minute))

	clock.Advance(time.Minute)
	ok, err := store.IsBlacklisted(ctx, "fp-1")
	if err != nil || ok {
		t.Fatalf("IsBlacklisted after expiry = %v, %v; want false, nil", ok, err)
	}
	if store.Len() != 0 {
		t.Errorf("expired entry should be evicted, Len=%d", store.Len())
	}
}

func TestStore_DurableFallbackRepopulates(t *testing.T) {
	ctx := context.Background()
	repo := newFaultyRepo()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	writer := NewStore(repo, WithClock(clock.Now))
	reader := NewStore(repo, WithClock(clock.Now))

	if err := writer.Add(ctx, "fp-1", "42", "logout", clock.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ok, err := reader.IsBlacklisted(ctx, "fp-1")
	if err != nil || !ok {
		t.Fatalf("IsBlacklisted via durable = %v, %v", ok, err)
	}
	if reader.Len() != 1 {
		t.Fatalf("reader cache Len = %d, want 1", reader.Len())
	}
	gets := repo.gets
	_, _ = reader.IsBlacklisted(ctx, "fp-1")
	if repo.gets != gets {
		t.Error("second lookup should be served from cache")
	}
}

func TestStore_DurableExpiredNotCached(t *testing.T) {
	ctx := context.Background()
	repo := newFaultyRepo()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	_ = repo.MemoryRepository.Put(ctx, &domain.Entry{Fingerprint: "fp-old", BlacklistedAt: clock.Now().Add(-2 * time.Hour), ExpiresAt: clock.Now().Add(-time.Hour)})
	store := NewStore(repo, WithClock(clock.Now))

	ok, err := store.IsBlacklisted(ctx, "fp-old")
	if err != nil || ok {
		t.Errorf("IsBlacklisted expired durable = %v, %v; want false, nil", ok, err)
	}
	if store.Len() != 0 {
		t.Error("expired durable entry must not be cached")
	}
}

func TestStore_DurableErrorFailsClosed(t *testing.T) {
	store, repo, _ := newTestStore(t)
	wantErr := errors.New("timeout")
	repo.setErr(wantErr)
	ok, err := store.IsBlacklisted(context.Background(), "fp-1")
	if ok || !errors.Is(err, wantErr) {
		t.Errorf("IsBlacklisted = %v, %v; want false, %v", ok, err, wantErr)
	}
}

func TestStore_Sweep(t *testing.T) {
	ctx := context.Background()
	store, repo, clock := newTestStore(t)
	for i := 0; i < 4; i++ {
		_ = store.Add(ctx, fmt.Sprintf("short-%d", i), "42", "logout", clock.Now().Add(time.Minute))
		_ = store.Add(ctx, fmt.Sprintf("long-%d", i), "42", "logout", clock.Now().Add(time.Hour))
	}
	if got := store.Sweep(clock.Now().Add(time.Minute)); got != 4 {
		t.Errorf("Sweep = %d, want 4", got)
	}
	if store.Len() != 4 {
		t.Errorf("Len = %d, want 4", store.Len())
	}
	// Durable records survive a sweep.
	if e, _ := repo.MemoryRepository.Get(ctx, "short-0"); e == nil {
		t.Error("Sweep must not touch durable storage")
	}
	if store.Name() != "blacklist" {
		t.Errorf("Name = %q", store.Name())
	}
}

func TestStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store, _, clock := newTestStore(t)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				fp := fmt.Sprintf("fp-%d", i%20)
				_ = store.Add(ctx, fp, "42", "logout", clock.Now().Add(time.Hour))
				if ok, err := store.IsBlacklisted(ctx, fp); err != nil || !ok {
					t.Errorf("IsBlacklisted(%s) = %v, %v", fp, ok, err)
					return
				}
				if i%25 == 0 {
					store.Sweep(clock.Now())
				}
			}
		}(w)
	}
	wg.Wait()
	if store.Len() != 20 {
		t.Errorf("Len = %d, want 20", store.Len())
	}
}
