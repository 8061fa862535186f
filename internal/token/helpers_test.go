package token

import (
	"context"
	"sync"
	"testing"
	"time"

	"lms-session-manager/backend/internal/blacklist"
	blacklistdomain "lms-session-manager/backend/internal/blacklist/domain"
	blacklistrepo "lms-session-manager/backend/internal/blacklist/repository"
	"lms-session-manager/backend/internal/security"
	"lms-session-manager/backend/internal/session"
	sessiondomain "lms-session-manager/backend/internal/session/domain"
	sessionrepo "lms-session-manager/backend/internal/session/repository"
	"lms-session-manager/backend/internal/telemetry"
	"lms-session-manager/backend/internal/user"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	testAccessTTL  = 10 * time.Minute
	testSessionTTL = time.Hour
	testCacheTTL   = 5 * time.Minute
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

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flakySessionRepo injects write failures into the memory repository.
type flakySessionRepo struct {
	*sessionrepo.MemoryRepository
	mu           sync.Mutex
	createErr    error
	revokeErr    error
	revokeAllErr error

	// afterGet and beforeRevoke run once, at the named point.
	afterGet     func()
	beforeRevoke func()
}

func (r *flakySessionRepo) onNextGet(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterGet = fn
}

func (r *flakySessionRepo) onNextRevoke(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeRevoke = fn
}

func (r *flakySessionRepo) take(h *func()) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn := *h
	*h = nil
	return fn
}

func (r *flakySessionRepo) GetByID(ctx context.Context, id string) (*sessiondomain.Session, error) {
	s, err := r.MemoryRepository.GetByID(ctx, id)
	if fn := r.take(&r.afterGet); fn != nil {
		fn()
	}
	return s, err
}

func (r *flakySessionRepo) set(create, revoke, revokeAll error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createErr, r.revokeErr, r.revokeAllErr = create, revoke, revokeAll
}

func (r *flakySessionRepo) Create(ctx context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	err := r.createErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.MemoryRepository.Create(ctx, s)
}

func (r *flakySessionRepo) Revoke(ctx context.Context, id, userID string, at time.Time) error {
	if fn := r.take(&r.beforeRevoke); fn != nil {
		fn()
	}
	r.mu.Lock()
	err := r.revokeErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.MemoryRepository.Revoke(ctx, id, userID, at)
}

func (r *flakySessionRepo) RevokeAllSessionsByUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	r.mu.Lock()
	err := r.revokeAllErr
	r.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return r.MemoryRepository.RevokeAllSessionsByUser(ctx, userID, at)
}

// flakyBlacklistRepo injects failures into the memory blacklist repository.
type flakyBlacklistRepo struct {
	*blacklistrepo.MemoryRepository
	mu     sync.Mutex
	putErr error
	getErr error
}

func (r *flakyBlacklistRepo) set(put, get error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.putErr, r.getErr = put, get
}

func (r *flakyBlacklistRepo) Put(ctx context.Context, e *blacklistdomain.Entry) error {
	r.mu.Lock()
	err := r.putErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.MemoryRepository.Put(ctx, e)
}

func (r *flakyBlacklistRepo) Get(ctx context.Context, fp string) (*blacklistdomain.Entry, error) {
	r.mu.Lock()
	err := r.getErr
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.MemoryRepository.Get(ctx, fp)
}

// failingDirectory returns err for every lookup.
type failingDirectory struct{ err error }

func (d failingDirectory) IsActive(ctx context.Context, userID string) (bool, error) {
	return false, d.err
}

// blockingDirectory never answers until its context ends.
type blockingDirectory struct{}

func (blockingDirectory) IsActive(ctx context.Context, userID string) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

// invalidatingDirectory records Invalidate calls.
type invalidatingDirectory struct {
	*user.StaticDirectory
	mu          sync.Mutex
	invalidated []string
}

func (d *invalidatingDirectory) Invalidate(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.invalidated = append(d.invalidated, userID)
}

// livenessFailure makes IsLive fail while delegating everything else.
type livenessFailure struct {
	*session.Registry
	err error
}

func (l livenessFailure) IsLive(ctx context.Context, sessionID, userID string) (bool, error) {
	return false, l.err
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []*telemetry.Event
	ch     chan *telemetry.Event
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{ch: make(chan *telemetry.Event, 128)}
}

func (e *recordingEmitter) Emit(ctx context.Context, ev *telemetry.Event) error {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
	select {
	case e.ch <- ev:
	default:
	}
	return nil
}

// waitFor blocks until an event of type typ arrives.
func (e *recordingEmitter) waitFor(t *testing.T, typ telemetry.EventType) *telemetry.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-e.ch:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event emitted", typ)
			return nil
		}
	}
}

type harness struct {
	svc           *Service
	clock         *fakeClock
	codec         *security.Codec
	blacklist     *blacklist.Store
	sessions      *session.Registry
	sessionRepo   *flakySessionRepo
	blacklistRepo *flakyBlacklistRepo
	dir           *user.StaticDirectory
	events        *recordingEmitter
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	codec, err := security.NewTestCodec()
	if err != nil {
		t.Fatalf("NewTestCodec: %v", err)
	}
	clock := &fakeClock{now: testStart}
	h := &harness{
		clock:         clock,
		codec:         codec,
		sessionRepo:   &flakySessionRepo{MemoryRepository: sessionrepo.NewMemoryRepository()},
		blacklistRepo: &flakyBlacklistRepo{MemoryRepository: blacklistrepo.NewMemoryRepository()},
		dir:           user.NewStaticDirectory("42", "7", "8"),
		events:        newRecordingEmitter(),
	}
	h.sessions = session.NewRegistry(h.sessionRepo,
		session.WithClock(clock.Now), session.WithSessionTTL(testSessionTTL),
		session.WithCacheTTL(testCacheTTL), session.WithShards(8))
	h.blacklist = blacklist.NewStore(h.blacklistRepo, blacklist.WithClock(clock.Now), blacklist.WithShards(8))
	h.svc = h.newService(t, Deps{Codec: codec, Blacklist: h.blacklist, Sessions: h.sessions, Directory: h.dir}, opts...)
	return h
}

func (h *harness) newService(t *testing.T, deps Deps, opts ...Option) *Service {
	t.Helper()
	base := []Option{
		WithClock(h.clock.Now),
		WithAccessTTL(testAccessTTL),
		WithRefreshTTL(testSessionTTL),
		WithReaperInterval(testCacheTTL),
		WithEmitter(h.events),
	}
	svc, err := New(deps, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func (h *harness) issue(t *testing.T, userID string) TokenPair {
	t.Helper()
	pair, err := h.svc.IssueAccessAndRefresh(context.Background(), Identity{
		UserID:      userID,
		Email:       userID + "@example.edu",
		Role:        security.RoleLearner,
		Permissions: []string{"course.read", "submission.create"},
	})
	if err != nil {
		t.Fatalf("IssueAccessAndRefresh(%s): %v", userID, err)
	}
	return pair
}

func expectKind(t *testing.T, got ValidationResult, want ErrorKind) {
	t.Helper()
	if want == "" {
		if !got.Valid || got.Kind != "" {
			t.Fatalf("result = %+v, want valid", got)
		}
		return
	}
	if got.Valid || got.Kind != want {
		t.Fatalf("result valid=%v kind=%q, want kind %q", got.Valid, got.Kind, want)
	}
	if got.Claims != nil || got.Refresh != nil {
		t.Fatalf("rejected result carries claims: %+v", got)
	}
}
