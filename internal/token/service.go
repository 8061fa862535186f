// Package token issues, validates and revokes bearer tokens. A Service ties
// the JWT codec to the blacklist, the session registry and the user directory,
// and owns the reaper that sweeps their caches.
package token

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"lms-session-manager/backend/internal/reaper"
	"lms-session-manager/backend/internal/security"
	sessiondomain "lms-session-manager/backend/internal/session/domain"
	"lms-session-manager/backend/internal/telemetry"
	"lms-session-manager/backend/internal/user"
)

var (
	// ErrInvalidIdentity is returned when an identity has no user id or an unknown role.
	ErrInvalidIdentity = errors.New("token: invalid identity")
	// ErrTokenUnreadable is returned by RevokeOnLogout when neither key decodes the token.
	// The fingerprint is blacklisted regardless.
	ErrTokenUnreadable = errors.New("token: token unreadable")
	// ErrMissingDependency is returned by New when a required dependency is nil.
	ErrMissingDependency = errors.New("token: missing dependency")
)

const (
	reasonLogout     = "logout"
	kindLogout       = "logout"
	kindRevokeAll    = "revoke_all"
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Blacklist records revoked token fingerprints.
type Blacklist interface {
	Add(ctx context.Context, fingerprint, userID, reason string, expiresAt time.Time) error
	IsBlacklisted(ctx context.Context, fingerprint string) (bool, error)
	reaper.Sweeper
}

// invalidator is implemented by directories that cache account state.
type invalidator interface {
	Invalidate(userID string)
}

// Sessions tracks server-side sessions.
type Sessions interface {
	Create(ctx context.Context, userID string) (*sessiondomain.Session, error)
	IsLive(ctx context.Context, sessionID, userID string) (bool, error)
	Revoke(ctx context.Context, sessionID, userID string) error
	RevokeAll(ctx context.Context, userID string) (int, error)
	ListActive(ctx context.Context, userID string) ([]sessiondomain.Session, error)
	reaper.Sweeper
}

// Deps are the collaborators a Service needs. All are required.
type Deps struct {
	Codec     *security.Codec
	Blacklist Blacklist
	Sessions  Sessions
	Directory user.Directory
}

// Service is the token lifecycle façade.
type Service struct {
	codec     *security.Codec
	blacklist Blacklist
	sessions  Sessions
	directory user.Directory

	accessTTL      time.Duration
	refreshTTL     time.Duration
	reaperInterval time.Duration
	storeTimeout   time.Duration
	nowF           func() time.Time

	emitter        telemetry.EventEmitter
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	metrics        *instruments

	reaper *reaper.Reaper
}

// New returns a Service over deps. Call Start to begin sweeping and Shutdown to stop.
func New(deps Deps, opts ...Option) (*Service, error) {
	if deps.Codec == nil || deps.Blacklist == nil || deps.Sessions == nil || deps.Directory == nil {
		return nil, ErrMissingDependency
	}
	s := &Service{
		codec:          deps.Codec,
		blacklist:      deps.Blacklist,
		sessions:       deps.Sessions,
		directory:      deps.Directory,
		accessTTL:      DefaultAccessTTL,
		refreshTTL:     DefaultRefreshTTL,
		reaperInterval: reaper.DefaultInterval,
		storeTimeout:   DefaultStoreTimeout,
		nowF:           func() time.Time { return time.Now().UTC() },
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(s)
	}
	m, err := newInstruments(s.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("token: metrics: %w", err)
	}
	s.metrics = m
	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	s.reaper = reaper.New(s.reaperInterval, s.blacklist, s.sessions)
	s.reaper.SetReport(m.recordEvictions)
	return s, nil
}

// Start launches the background reaper. Calling it twice is a no-op.
func (s *Service) Start() {
	s.reaper.Start()
}

// Shutdown stops the reaper, waiting for an in-flight sweep or until ctx is done.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.reaper.Stop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep runs one reaper pass immediately and reports evictions per cache.
func (s *Service) Sweep() map[string]int {
	return s.reaper.RunOnce(s.nowF())
}

// IssueAccessAndRefresh creates a session for id and returns an access and a
// refresh token bound to it. The refresh token expires with the session; the
// access token never outlives it.
func (s *Service) IssueAccessAndRefresh(ctx context.Context, id Identity) (TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "token.IssueAccessAndRefresh")
	defer span.End()

	userID := strings.TrimSpace(id.UserID)
	if userID == "" || !id.Role.Valid() {
		span.SetStatus(codes.Error, ErrInvalidIdentity.Error())
		return TokenPair{}, ErrInvalidIdentity
	}
	span.SetAttributes(attribute.String("user.id", userID))

	sess, err := s.sessions.Create(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session create failed")
		return TokenPair{}, fmt.Errorf("token: issue: %w", err)
	}

	issuedAt := sess.CreatedAt
	accessExp := issuedAt.Add(s.accessTTL)
	if accessExp.After(sess.ExpiresAt) {
		accessExp = sess.ExpiresAt
	}

	access, err := s.codec.IssueAccess(security.AccessClaims{
		RegisteredClaims: registered(userID, issuedAt, accessExp),
		Email:            strings.TrimSpace(id.Email),
		Role:             id.Role,
		SessionID:        sess.ID,
		Permissions:      id.Permissions,
	})
	if err != nil {
		s.abandon(ctx, sess)
		span.RecordError(err)
		return TokenPair{}, fmt.Errorf("token: issue access: %w", err)
	}
	refresh, err := s.codec.IssueRefresh(security.RefreshClaims{
		RegisteredClaims: registered(userID, issuedAt, sess.ExpiresAt),
		SessionID:        sess.ID,
	})
	if err != nil {
		s.abandon(ctx, sess)
		span.RecordError(err)
		return TokenPair{}, fmt.Errorf("token: issue refresh: %w", err)
	}

	span.SetAttributes(attribute.String("session.id", sess.ID))
	s.metrics.issued.Add(ctx, 1)
	s.emit(&telemetry.Event{
		Type:      telemetry.EventSessionCreated,
		UserID:    userID,
		SessionID: sess.ID,
	})
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		SessionID:        sess.ID,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: sess.ExpiresAt,
	}, nil
}

// ValidateAccess checks an access token and returns the verdict. Checks run
// in a fixed order and the first failure decides the kind. A failed lookup
// rejects with the kind of the stage it belongs to.
func (s *Service) ValidateAccess(ctx context.Context, token string) ValidationResult {
	ctx, span := s.tracer.Start(ctx, "token.ValidateAccess")
	defer span.End()

	res := s.validateAccess(ctx, token)
	s.finishValidation(ctx, span, tokenTypeAccess, res)
	return res
}

func (s *Service) validateAccess(ctx context.Context, token string) ValidationResult {
	claims, err := s.codec.DecodeAccess(token)
	if err != nil {
		return reject(kindForDecode(err))
	}
	fp := security.Fingerprint(token)
	if kind, ok := s.checkBlacklist(ctx, fp); !ok {
		return reject(kind)
	}
	if !s.nowF().Before(claims.ExpiresAt.Time) {
		return reject(KindExpired)
	}
	if kind, ok := s.checkSession(ctx, claims.SessionID, claims.UserID()); !ok {
		return reject(kind)
	}
	if kind, ok := s.checkAccount(ctx, claims.UserID()); !ok {
		return reject(kind)
	}
	if !wellFormed(claims) {
		return reject(KindMalformed)
	}
	return ValidationResult{Valid: true, Claims: claims}
}

// ValidateRefresh checks a refresh token. It applies the same revocation,
// expiry and account checks as ValidateAccess but carries no role or permissions.
func (s *Service) ValidateRefresh(ctx context.Context, token string) ValidationResult {
	ctx, span := s.tracer.Start(ctx, "token.ValidateRefresh")
	defer span.End()

	res := s.validateRefresh(ctx, token)
	s.finishValidation(ctx, span, tokenTypeRefresh, res)
	return res
}

func (s *Service) validateRefresh(ctx context.Context, token string) ValidationResult {
	claims, err := s.codec.DecodeRefresh(token)
	if err != nil {
		return reject(kindForDecode(err))
	}
	if kind, ok := s.checkBlacklist(ctx, security.Fingerprint(token)); !ok {
		return reject(kind)
	}
	if !s.nowF().Before(claims.ExpiresAt.Time) {
		return reject(KindExpired)
	}
	if kind, ok := s.checkSession(ctx, claims.SessionID, claims.UserID()); !ok {
		return reject(kind)
	}
	if kind, ok := s.checkAccount(ctx, claims.UserID()); !ok {
		return reject(kind)
	}
	return ValidationResult{Valid: true, Refresh: claims}
}

// RevokeOnLogout blacklists token until its own expiry and revokes the session
// it is bound to. userID identifies the caller; when empty the token subject is
// used. Storage failures are logged and do not fail the logout. When neither
// key can decode the token its fingerprint is blacklisted for the refresh
// lifetime and ErrTokenUnreadable is returned.
func (s *Service) RevokeOnLogout(ctx context.Context, token, userID, reason string) error {
	ctx, span := s.tracer.Start(ctx, "token.RevokeOnLogout")
	defer span.End()

	if strings.TrimSpace(reason) == "" {
		reason = reasonLogout
	}
	fp := security.Fingerprint(token)
	now := s.nowF()

	subject, sessionID, expiresAt, readable := s.inspect(token)
	if !readable {
		expiresAt = now.Add(s.refreshTTL)
	}
	if userID == "" {
		userID = subject
	}

	if err := s.blacklist.Add(ctx, fp, userID, reason, expiresAt); err != nil {
		log.Printf("token: logout: blacklist %s: %v", security.ShortFingerprint(fp), err)
	}
	if sessionID != "" && userID != "" {
		if err := s.sessions.Revoke(ctx, sessionID, userID); err != nil {
			log.Printf("token: logout: revoke session %s: %v", sessionID, err)
		}
	}

	s.metrics.recordRevocation(ctx, kindLogout, 1)
	s.emit(&telemetry.Event{
		Type:        telemetry.EventTokenRevoked,
		UserID:      userID,
		SessionID:   sessionID,
		Reason:      reason,
		Fingerprint: security.ShortFingerprint(fp),
	})
	if !readable {
		span.SetStatus(codes.Error, ErrTokenUnreadable.Error())
		return ErrTokenUnreadable
	}
	return nil
}

// inspect decodes token with the access key, then the refresh key.
func (s *Service) inspect(token string) (subject, sessionID string, expiresAt time.Time, ok bool) {
	if c, err := s.codec.DecodeAccess(token); err == nil {
		return c.UserID(), c.SessionID, c.ExpiresAt.Time, true
	}
	if c, err := s.codec.DecodeRefresh(token); err == nil {
		return c.UserID(), c.SessionID, c.ExpiresAt.Time, true
	}
	return "", "", time.Time{}, false
}

// RevokeAllForUser revokes every session of userID and drops any cached
// account answer for the user. A durable failure is returned after the local
// caches have been updated.
func (s *Service) RevokeAllForUser(ctx context.Context, userID string) error {
	ctx, span := s.tracer.Start(ctx, "token.RevokeAllForUser")
	defer span.End()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidIdentity
	}
	n, err := s.sessions.RevokeAll(ctx, userID)
	if inv, ok := s.directory.(invalidator); ok {
		inv.Invalidate(userID)
	}
	s.metrics.recordRevocation(ctx, kindRevokeAll, 1)
	s.emit(&telemetry.Event{
		Type:   telemetry.EventSessionsRevokeAll,
		UserID: userID,
		Count:  n,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "revoke all failed")
		return fmt.Errorf("token: revoke all: %w", err)
	}
	return nil
}

// ListActiveSessions returns the live sessions of userID.
func (s *Service) ListActiveSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidIdentity
	}
	list, err := s.sessions.ListActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("token: list sessions: %w", err)
	}
	out := make([]SessionInfo, 0, len(list))
	for _, sess := range list {
		out = append(out, SessionInfo{ID: sess.ID, CreatedAt: sess.CreatedAt, ExpiresAt: sess.ExpiresAt})
	}
	return out, nil
}

func (s *Service) checkBlacklist(ctx context.Context, fp string) (ErrorKind, bool) {
	listed, err := s.blacklist.IsBlacklisted(ctx, fp)
	if err != nil {
		log.Printf("token: blacklist lookup %s: %v", security.ShortFingerprint(fp), err)
		return KindBlacklisted, false
	}
	if listed {
		return KindBlacklisted, false
	}
	return "", true
}

func (s *Service) checkSession(ctx context.Context, sessionID, userID string) (ErrorKind, bool) {
	live, err := s.sessions.IsLive(ctx, sessionID, userID)
	if err != nil {
		log.Printf("token: session lookup %s: %v", sessionID, err)
		return KindSessionRevoked, false
	}
	if !live {
		return KindSessionRevoked, false
	}
	return "", true
}

func (s *Service) checkAccount(ctx context.Context, userID string) (ErrorKind, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	active, err := s.directory.IsActive(ctx, userID)
	if err != nil {
		log.Printf("token: account lookup %s: %v", userID, err)
		return KindAccountInactive, false
	}
	if !active {
		return KindAccountInactive, false
	}
	return "", true
}

func (s *Service) finishValidation(ctx context.Context, span trace.Span, tokenType string, res ValidationResult) {
	s.metrics.recordValidation(ctx, tokenType, res)
	span.SetAttributes(attribute.Bool("token.valid", res.Valid))
	if !res.Valid {
		span.SetAttributes(attribute.String("token.reject_kind", string(res.Kind)))
	}
}

// abandon revokes a session whose tokens could not be signed.
func (s *Service) abandon(ctx context.Context, sess *sessiondomain.Session) {
	if err := s.sessions.Revoke(ctx, sess.ID, sess.UserID); err != nil {
		log.Printf("token: issue: revoke orphaned session %s: %v", sess.ID, err)
	}
}

func (s *Service) emit(e *telemetry.Event) {
	if s.emitter == nil {
		return
	}
	e.OccurredAt = s.nowF()
	telemetry.EmitAsync(s.emitter, e)
}

func kindForDecode(err error) ErrorKind {
	if errors.Is(err, security.ErrInvalidSignature) {
		return KindInvalidSignature
	}
	return KindMalformed
}

// wellFormed reports whether decoded access claims are internally consistent.
func wellFormed(c *security.AccessClaims) bool {
	if strings.TrimSpace(c.UserID()) == "" || strings.TrimSpace(c.SessionID) == "" {
		return false
	}
	if !c.Role.Valid() {
		return false
	}
	if !c.IssuedAt.Before(c.ExpiresAt.Time) {
		return false
	}
	seen := make(map[string]struct{}, len(c.Permissions))
	for _, p := range c.Permissions {
		if p == "" || strings.TrimSpace(p) != p {
			return false
		}
		if _, dup := seen[p]; dup {
			return false
		}
		seen[p] = struct{}{}
	}
	return true
}
