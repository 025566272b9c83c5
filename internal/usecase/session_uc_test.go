// File: internal/usecase/session_uc_test.go
package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"linkedin-autopilot/internal/domain"
	"linkedin-autopilot/internal/domain/model"
)

const testAccount = "me@example.com"

func newSessions(store *memSessionStore, driver *fakeDriver) SessionManager {
	return NewSessionManager(store, driver, nil, 8*time.Hour, 2, newLogger())
}

func TestSession_Acquire_AuthenticatesWhenMissing(t *testing.T) {
	store := newMemSessionStore()
	driver := &fakeDriver{}
	s := newSessions(store, driver)
	ctx := context.Background()

	sess, err := s.Acquire(ctx, testAccount)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer s.Release(ctx, sess)

	if driver.authCalls != 1 {
		t.Fatalf("want 1 auth call, got %d", driver.authCalls)
	}
	if sess.Health != model.SessionFresh || len(sess.Cookies) == 0 {
		t.Fatalf("want fresh session with cookies, got %+v", sess)
	}
	if _, err := store.Load(ctx, testAccount); err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
}

func TestSession_Acquire_ReusesFreshSession(t *testing.T) {
	store := newMemSessionStore()
	driver := &fakeDriver{}
	s := newSessions(store, driver)
	ctx := context.Background()

	_ = store.Save(ctx, &model.Session{
		AccountID:  testAccount,
		Cookies:    []model.Cookie{{Name: "li_at", Value: "old"}},
		CreatedAt:  time.Now().Add(-time.Hour),
		LastUsedAt: time.Now().Add(-time.Hour),
		Health:     model.SessionFresh,
	})

	sess, err := s.Acquire(ctx, testAccount)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer s.Release(ctx, sess)

	if driver.authCalls != 0 {
		t.Fatalf("fresh session must not re-authenticate, got %d auth calls", driver.authCalls)
	}
	if driver.restoreCalls != 1 {
		t.Fatalf("want 1 cookie restore, got %d", driver.restoreCalls)
	}
}

func TestSession_Acquire_RefreshesStaleSession(t *testing.T) {
	store := newMemSessionStore()
	driver := &fakeDriver{}
	s := newSessions(store, driver)
	ctx := context.Background()

	_ = store.Save(ctx, &model.Session{
		AccountID: testAccount,
		Cookies:   []model.Cookie{{Name: "li_at", Value: "old"}},
		CreatedAt: time.Now().Add(-9 * time.Hour), // past the 8h threshold
		Health:    model.SessionFresh,
	})

	sess, err := s.Acquire(ctx, testAccount)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer s.Release(ctx, sess)

	if driver.authCalls != 1 {
		t.Fatalf("stale session must re-authenticate, got %d auth calls", driver.authCalls)
	}
}

func TestSession_Acquire_MutualExclusion(t *testing.T) {
	store := newMemSessionStore()
	driver := &fakeDriver{}
	s := newSessions(store, driver)
	ctx := context.Background()

	var held int32
	var maxHeld int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := s.Acquire(ctx, testAccount)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			n := atomic.AddInt32(&held, 1)
			for {
				old := atomic.LoadInt32(&maxHeld)
				if n <= old || atomic.CompareAndSwapInt32(&maxHeld, old, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&held, -1)
			s.Release(ctx, sess)
		}()
	}
	wg.Wait()

	if maxHeld != 1 {
		t.Fatalf("session lent to %d holders concurrently", maxHeld)
	}
}

func TestSession_Acquire_BlockedNeverLent(t *testing.T) {
	store := newMemSessionStore()
	driver := &fakeDriver{}
	s := newSessions(store, driver)
	ctx := context.Background()

	if err := s.MarkBlocked(ctx, testAccount); err != nil {
		t.Fatalf("mark blocked: %v", err)
	}
	_, err := s.Acquire(ctx, testAccount)
	if !errors.Is(err, domain.ErrAccountBlocked) {
		t.Fatalf("want ErrAccountBlocked, got %v", err)
	}
	// A stored block also surfaces the session-specific sentinel, so
	// callers can tell "needs reset" apart from a fresh platform block.
	if !errors.Is(err, domain.ErrSessionBlocked) {
		t.Fatalf("want ErrSessionBlocked, got %v", err)
	}
	if driver.authCalls != 0 {
		t.Fatal("blocked account must not attempt authentication")
	}

	// Reset clears the block; the next acquire re-authenticates.
	if err := s.Reset(ctx, testAccount); err != nil {
		t.Fatalf("reset: %v", err)
	}
	sess, err := s.Acquire(ctx, testAccount)
	if err != nil {
		t.Fatalf("acquire after reset: %v", err)
	}
	s.Release(ctx, sess)
}

func TestSession_Acquire_AuthFailuresBounded(t *testing.T) {
	store := newMemSessionStore()
	driver := &fakeDriver{authErrs: []error{
		errors.New("bad gateway"),
		errors.New("bad gateway"),
		nil, // would succeed, but the attempt budget is 2
	}}
	s := newSessions(store, driver)

	_, err := s.Acquire(context.Background(), testAccount)
	if !errors.Is(err, domain.ErrAuthenticationFailed) {
		t.Fatalf("want ErrAuthenticationFailed, got %v", err)
	}
	if driver.authCalls != 2 {
		t.Fatalf("want exactly 2 auth attempts, got %d", driver.authCalls)
	}
}

func TestSession_Acquire_ChallengeDuringAuthBlocksAccount(t *testing.T) {
	store := newMemSessionStore()
	driver := &fakeDriver{authErrs: []error{domain.ErrDetectionChallenge}}
	s := newSessions(store, driver)
	ctx := context.Background()

	if _, err := s.Acquire(ctx, testAccount); !errors.Is(err, domain.ErrAccountBlocked) {
		t.Fatalf("want ErrAccountBlocked, got %v", err)
	}
	stored, err := store.Load(ctx, testAccount)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.Health != model.SessionBlocked {
		t.Fatalf("account must be marked blocked, got %s", stored.Health)
	}

	// The semaphore must have been returned: a second acquire fails fast
	// instead of deadlocking.
	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if _, err := s.Acquire(ctx2, testAccount); !errors.Is(err, domain.ErrAccountBlocked) {
		t.Fatalf("second acquire: want ErrAccountBlocked, got %v", err)
	}
}

func TestSession_Release_UpdatesLastUsed(t *testing.T) {
	store := newMemSessionStore()
	s := newSessions(store, &fakeDriver{})
	ctx := context.Background()

	sess, err := s.Acquire(ctx, testAccount)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	before := sess.LastUsedAt
	time.Sleep(5 * time.Millisecond)
	s.Release(ctx, sess)

	stored, _ := store.Load(ctx, testAccount)
	if !stored.LastUsedAt.After(before) {
		t.Fatal("release must advance LastUsedAt")
	}
}
