package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type staticVerifier string

func (v staticVerifier) Verify(secret string) bool { return secret == string(v) }

// fakeClock is a settable clock shared by a store under test.
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
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T, ttl time.Duration) (*SessionStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := NewSessionStore(SessionStoreConfig{TTL: ttl}, staticVerifier("changeme"), zerolog.Nop())
	s.SetNowFunc(clock.Now)
	t.Cleanup(s.Stop)
	return s, clock
}

func TestAuthenticate_IssuesValidToken(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)

	sess, err := s.Authenticate(context.Background(), "changeme")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if len(sess.Token) != 2*TokenBytes {
		t.Errorf("unexpected token length %d", len(sess.Token))
	}
	if !sess.ExpiresAt.After(sess.CreatedAt) {
		t.Errorf("expiresAt %s must be after createdAt %s", sess.ExpiresAt, sess.CreatedAt)
	}
	if sess.ExpiresAt.Sub(sess.CreatedAt) != time.Hour {
		t.Errorf("expected 1h lifetime, got %s", sess.ExpiresAt.Sub(sess.CreatedAt))
	}

	got, err := s.Validate(sess.Token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.UserID != sess.UserID {
		t.Errorf("expected user %s, got %s", sess.UserID, got.UserID)
	}
}

func TestAuthenticate_WrongSecretIsDelayed(t *testing.T) {
	s := NewSessionStore(SessionStoreConfig{FailureDelay: 50 * time.Millisecond}, staticVerifier("changeme"), zerolog.Nop())
	defer s.Stop()

	start := time.Now()
	_, err := s.Authenticate(context.Background(), "wrong")
	if !errors.Is(err, ErrAuthFailure) {
		t.Fatalf("expected ErrAuthFailure, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("failure returned after %s, expected at least 50ms", elapsed)
	}
	if s.Count() != 0 {
		t.Errorf("failed login must not create a session")
	}
}

func TestAuthenticate_EmptySecretFails(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	if _, err := s.Authenticate(context.Background(), ""); !errors.Is(err, ErrAuthFailure) {
		t.Fatalf("expected ErrAuthFailure, got %v", err)
	}
}

func TestAuthenticate_DelayHonoursContext(t *testing.T) {
	s := NewSessionStore(SessionStoreConfig{FailureDelay: time.Hour}, staticVerifier("x"), zerolog.Nop())
	defer s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := s.Authenticate(ctx, "y")
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, ErrAuthFailure) {
			t.Fatalf("expected ErrAuthFailure, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Authenticate did not return after context cancellation")
	}
}

func TestValidate_ExpiresAfterTTL(t *testing.T) {
	s, clock := newTestStore(t, 10*time.Minute)
	sess, _ := s.Authenticate(context.Background(), "changeme")

	clock.Advance(10 * time.Minute)
	if _, err := s.Validate(sess.Token); err != nil {
		t.Fatalf("token must be valid exactly at expiresAt: %v", err)
	}

	clock.Advance(time.Second)
	if _, err := s.Validate(sess.Token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession after TTL, got %v", err)
	}

	// Lazily evicted: the record is physically gone too.
	s.mu.RLock()
	_, present := s.sessions[sess.Token]
	s.mu.RUnlock()
	if present {
		t.Error("expired session should be evicted on lookup")
	}
}

func TestValidate_MissingAndUnknown(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	if _, err := s.Validate(""); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("empty token: expected ErrInvalidSession, got %v", err)
	}
	if _, err := s.Validate("deadbeef"); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("unknown token: expected ErrInvalidSession, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	sess, _ := s.Authenticate(context.Background(), "changeme")

	if !s.Revoke(sess.Token) {
		t.Error("first revoke should report removal")
	}
	if s.Revoke(sess.Token) {
		t.Error("second revoke should be a no-op")
	}
	if _, err := s.Validate(sess.Token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("revoked token must be invalid, got %v", err)
	}
	if s.Revoke("never-issued") {
		t.Error("revoking an unknown token should report false")
	}
}

func TestRefresh_ExtendsValidSession(t *testing.T) {
	s, clock := newTestStore(t, 10*time.Minute)
	sess, _ := s.Authenticate(context.Background(), "changeme")

	clock.Advance(5 * time.Minute)
	if !s.Refresh(sess.Token) {
		t.Fatal("expected refresh to succeed")
	}
	got, err := s.Validate(sess.Token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !got.ExpiresAt.After(sess.ExpiresAt) {
		t.Errorf("expiresAt not extended: before %s after %s", sess.ExpiresAt, got.ExpiresAt)
	}
	if want := sess.ExpiresAt.Add(5 * time.Minute); !got.ExpiresAt.Equal(want) {
		t.Errorf("expected expiresAt %s, got %s", want, got.ExpiresAt)
	}

	// Each later refresh moves the expiry forward again.
	clock.Advance(time.Minute)
	if !s.Refresh(sess.Token) {
		t.Fatal("expected second refresh to succeed")
	}
	again, err := s.Validate(sess.Token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !again.ExpiresAt.After(got.ExpiresAt) {
		t.Errorf("second refresh did not extend: %s then %s", got.ExpiresAt, again.ExpiresAt)
	}

	// The first expiry has passed but the refreshed one has not.
	clock.Advance(9 * time.Minute)
	if _, err := s.Validate(sess.Token); err != nil {
		t.Errorf("refreshed session should still be valid: %v", err)
	}
}

func TestRefresh_DoesNotResurrect(t *testing.T) {
	s, clock := newTestStore(t, time.Minute)
	sess, _ := s.Authenticate(context.Background(), "changeme")

	clock.Advance(2 * time.Minute)
	if s.Refresh(sess.Token) {
		t.Fatal("refresh of expired token must fail")
	}
	if _, err := s.Validate(sess.Token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expired token resurrected: %v", err)
	}

	other, _ := s.Authenticate(context.Background(), "changeme")
	s.Revoke(other.Token)
	if s.Refresh(other.Token) {
		t.Fatal("refresh of revoked token must fail")
	}
	if s.Refresh("") {
		t.Fatal("refresh of empty token must fail")
	}
}

func TestSweepExpired(t *testing.T) {
	s, clock := newTestStore(t, time.Minute)
	old1, _ := s.Authenticate(context.Background(), "changeme")
	old2, _ := s.Authenticate(context.Background(), "changeme")
	clock.Advance(30 * time.Second)
	fresh, _ := s.Authenticate(context.Background(), "changeme")

	clock.Advance(45 * time.Second)
	if n := s.SweepExpired(); n != 2 {
		t.Fatalf("expected 2 swept, got %d", n)
	}
	for _, tok := range []string{old1.Token, old2.Token} {
		if _, err := s.Validate(tok); err == nil {
			t.Errorf("swept token %s still valid", tok[:8])
		}
	}
	if _, err := s.Validate(fresh.Token); err != nil {
		t.Errorf("fresh token removed by sweep: %v", err)
	}
	if s.Count() != 1 {
		t.Errorf("expected 1 active session, got %d", s.Count())
	}
}

func TestSweepLoop_RunsOnInterval(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	s := NewSessionStore(SessionStoreConfig{TTL: time.Minute, SweepInterval: 10 * time.Millisecond}, staticVerifier("pw"), zerolog.Nop())
	s.SetNowFunc(clock.Now)
	defer s.Stop()

	if _, err := s.Authenticate(context.Background(), "pw"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	clock.Advance(2 * time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.RLock()
		n := len(s.sessions)
		s.mu.RUnlock()
		if n == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("background sweep did not remove the expired session")
}

func TestSessionStore_ConcurrentAccess(t *testing.T) {
	s, clock := newTestStore(t, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sess, err := s.Authenticate(context.Background(), "changeme")
				if err != nil {
					t.Errorf("Authenticate: %v", err)
					return
				}
				s.Validate(sess.Token)
				s.Refresh(sess.Token)
				if j%3 == 0 {
					s.Revoke(sess.Token)
				}
				s.SweepExpired()
				s.Count()
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			clock.Advance(5 * time.Second)
			s.SweepExpired()
		}
	}()
	wg.Wait()
}

func TestStop_Idempotent(t *testing.T) {
	s := NewSessionStore(SessionStoreConfig{SweepInterval: time.Millisecond}, staticVerifier("x"), zerolog.Nop())
	s.Stop()
	s.Stop()
}
