package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gluk-w/webssh/internal/logutil"
)

const (
	DefaultSessionTTL    = 60 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
	DefaultFailureDelay  = time.Second
)

// Session is the server-side record bound to a token.
type Session struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// expired reports whether the session is logically absent at now.
func (s Session) expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

type SessionStoreConfig struct {
	TTL time.Duration
	// SweepInterval drives the background expiry sweep. Zero disables it.
	SweepInterval time.Duration
	// FailureDelay is the minimum wall time of a rejected Authenticate call.
	FailureDelay time.Duration
}

// SessionStore owns the token → Session mapping. A single mutex guards the map;
// callers only ever receive copies of records.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session

	verifier     Verifier
	ttl          time.Duration
	failureDelay time.Duration
	log          zerolog.Logger

	nowFn   func() time.Time // injectable clock for testing
	sleepFn func(ctx context.Context, d time.Duration)

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewSessionStore creates a store and starts its sweep ticker when
// cfg.SweepInterval is positive. Call Stop to release it.
func NewSessionStore(cfg SessionStoreConfig, verifier Verifier, logger zerolog.Logger) *SessionStore {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	if cfg.FailureDelay < 0 {
		cfg.FailureDelay = 0
	}
	s := &SessionStore{
		sessions:     make(map[string]Session),
		verifier:     verifier,
		ttl:          cfg.TTL,
		failureDelay: cfg.FailureDelay,
		log:          logger.With().Str("component", "sessions").Logger(),
		nowFn:        time.Now,
		sleepFn:      sleepCtx,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go s.sweepLoop(cfg.SweepInterval)
	} else {
		close(s.done)
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// SetNowFunc sets the clock used for expiry decisions (tests).
func (s *SessionStore) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	s.nowFn = fn
	s.mu.Unlock()
}

func (s *SessionStore) now() time.Time {
	s.mu.RLock()
	fn := s.nowFn
	s.mu.RUnlock()
	return fn()
}

// TTL returns the configured session lifetime.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// Authenticate verifies secret and issues a new session. Every rejection takes
// at least the configured failure delay, measured from the start of the call,
// so a wrong secret and a verification error are indistinguishable by timing.
func (s *SessionStore) Authenticate(ctx context.Context, secret string) (Session, error) {
	started := time.Now()
	if secret == "" || s.verifier == nil || !s.verifier.Verify(secret) {
		s.sleepFn(ctx, s.failureDelay-time.Since(started))
		s.log.Warn().Msg("failed login attempt")
		return Session{}, ErrAuthFailure
	}

	token, err := GenerateToken()
	if err != nil {
		return Session{}, err
	}

	now := s.now()
	sess := Session{
		Token:     token,
		UserID:    "user_" + uuid.NewString()[:8],
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.sessions[token] = sess
	s.mu.Unlock()

	s.log.Info().Str("user_id", sess.UserID).Str("token", logutil.TokenPrefix(token)).Msg("session created")
	return sess, nil
}

// Validate returns the session for token. Expired records are evicted on
// lookup.
func (s *SessionStore) Validate(token string) (Session, error) {
	if token == "" {
		return Session{}, ErrInvalidSession
	}
	now := s.now()

	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return Session{}, ErrInvalidSession
	}
	if !sess.expired(now) {
		return sess, nil
	}

	s.mu.Lock()
	// A concurrent Refresh may have extended it in the meantime.
	if cur, ok := s.sessions[token]; ok && cur.expired(now) {
		delete(s.sessions, token)
		s.log.Debug().Str("token", logutil.TokenPrefix(token)).Msg("expired session evicted on lookup")
	} else if ok {
		s.mu.Unlock()
		return cur, nil
	}
	s.mu.Unlock()
	return Session{}, ErrInvalidSession
}

// Refresh extends a currently valid session to now+TTL. It never resurrects an
// expired or revoked token.
func (s *SessionStore) Refresh(token string) bool {
	if token == "" {
		return false
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return false
	}
	if sess.expired(now) {
		delete(s.sessions, token)
		return false
	}
	sess.ExpiresAt = now.Add(s.ttl)
	s.sessions[token] = sess
	return true
}

// Revoke removes token and reports whether it was present. Idempotent.
func (s *SessionStore) Revoke(token string) bool {
	s.mu.Lock()
	_, ok := s.sessions[token]
	delete(s.sessions, token)
	s.mu.Unlock()
	if ok {
		s.log.Info().Str("token", logutil.TokenPrefix(token)).Msg("session revoked")
	}
	return ok
}

// SweepExpired removes every expired record and returns how many were removed.
func (s *SessionStore) SweepExpired() int {
	now := s.now()
	removed := 0
	s.mu.Lock()
	for token, sess := range s.sessions {
		if sess.expired(now) {
			delete(s.sessions, token)
			removed++
		}
	}
	s.mu.Unlock()
	if removed > 0 {
		s.log.Debug().Int("removed", removed).Msg("swept expired sessions")
	}
	return removed
}

// Count returns the number of sessions that are currently valid.
func (s *SessionStore) Count() int {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sess := range s.sessions {
		if !sess.expired(now) {
			n++
		}
	}
	return n
}

func (s *SessionStore) sweepLoop(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.SweepExpired()
		case <-s.stop:
			return
		}
	}
}

// Stop halts the background sweep and waits for it to exit.
func (s *SessionStore) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s Session) String() string {
	return fmt.Sprintf("session(user=%s token=%s expires=%s)", s.UserID, logutil.TokenPrefix(s.Token), s.ExpiresAt.Format(time.RFC3339))
}
