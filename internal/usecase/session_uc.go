// File: internal/usecase/session_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"linkedin-autopilot/internal/domain"
	"linkedin-autopilot/internal/domain/model"
	"linkedin-autopilot/internal/domain/ports/adapter"
	"linkedin-autopilot/internal/domain/ports/repository"
	"linkedin-autopilot/internal/infra/logging"
	"linkedin-autopilot/internal/infra/metrics"
)

// SessionManager owns one logical browser session per account. Tasks borrow
// a handle via Acquire and must Release it after one browser interaction.
type SessionManager interface {
	Acquire(ctx context.Context, accountID string) (*model.Session, error)
	Release(ctx context.Context, session *model.Session)

	// MarkBlocked flags the account after a platform suspension signal. A
	// blocked session is never lent out again until Reset.
	MarkBlocked(ctx context.Context, accountID string) error

	// Reset clears the stored session so the next Acquire re-authenticates.
	Reset(ctx context.Context, accountID string) error

	// Refresh proactively re-authenticates a stale session. Used by the
	// freshness sweeper so tasks rarely pay the login cost themselves.
	Refresh(ctx context.Context, accountID string) error
}

// DistLocker is the cross-process account lock (Redis-backed in production).
type DistLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

var _ SessionManager = (*sessionUC)(nil)

type accountEntry struct {
	sem       chan struct{} // capacity 1: at most one borrowed handle
	lockToken string
}

// accountLockKey names the cross-process lock guarding one account's session.
func accountLockKey(accountID string) string { return "lock:account:" + accountID }

type sessionUC struct {
	store     repository.SessionStore
	driver    adapter.BrowserDriver
	locker    DistLocker
	threshold time.Duration
	attempts  int
	lockTTL   time.Duration

	mu       sync.Mutex
	accounts map[string]*accountEntry

	log *zerolog.Logger
}

func NewSessionManager(
	store repository.SessionStore,
	driver adapter.BrowserDriver,
	locker DistLocker,
	freshness time.Duration,
	authAttempts int,
	logger *zerolog.Logger,
) *sessionUC {
	sLog := logger.With().Str("component", "SessionManager").Logger()
	if freshness <= 0 {
		freshness = 8 * time.Hour
	}
	if authAttempts <= 0 {
		authAttempts = 2
	}
	return &sessionUC{
		store:     store,
		driver:    driver,
		locker:    locker,
		threshold: freshness,
		attempts:  authAttempts,
		lockTTL:   5 * time.Minute,
		accounts:  make(map[string]*accountEntry),
		log:       &sLog,
	}
}

func (s *sessionUC) entry(accountID string) *accountEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.accounts[accountID]
	if !ok {
		e = &accountEntry{sem: make(chan struct{}, 1)}
		s.accounts[accountID] = e
	}
	return e
}

func (s *sessionUC) Acquire(ctx context.Context, accountID string) (*model.Session, error) {
	e := s.entry(accountID)

	waitStart := time.Now()
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	metrics.ObserveSessionAcquireWait(float64(time.Since(waitStart).Milliseconds()))

	release := func() { <-e.sem }

	if s.locker != nil {
		token, err := s.locker.TryLock(ctx, accountLockKey(accountID), s.lockTTL)
		if err != nil {
			release()
			return nil, err
		}
		e.lockToken = token
	}

	sess, err := s.ensureLive(ctx, accountID)
	if err != nil {
		s.unlockDist(ctx, accountID, e)
		release()
		return nil, err
	}
	return sess, nil
}

// ensureLive loads the stored session and re-authenticates when it is
// missing, expired, or stale beyond the freshness threshold.
func (s *sessionUC) ensureLive(ctx context.Context, accountID string) (*model.Session, error) {
	sess, err := s.store.Load(ctx, accountID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	if sess != nil {
		switch sess.HealthAt(now, s.threshold) {
		case model.SessionBlocked:
			// Sticky until an operator resets the session through the ops
			// API; both sentinels match so callers can handle either.
			return nil, fmt.Errorf("%w: %w", domain.ErrSessionBlocked, domain.ErrAccountBlocked)
		case model.SessionFresh:
			if err := s.driver.RestoreCookies(ctx, sess.Cookies); err != nil {
				return nil, err
			}
			sess.Health = model.SessionFresh
			return sess, nil
		}
	}
	return s.reauthenticate(ctx, accountID)
}

func (s *sessionUC) reauthenticate(ctx context.Context, accountID string) (*model.Session, error) {
	defer logging.TraceDuration(s.log, "reauthenticate")()
	var lastErr error
	for i := 0; i < s.attempts; i++ {
		cookies, err := s.driver.Authenticate(ctx, accountID)
		if err == nil {
			sess := &model.Session{
				AccountID:  accountID,
				Cookies:    cookies,
				CreatedAt:  time.Now(),
				LastUsedAt: time.Now(),
				Health:     model.SessionFresh,
			}
			if err := s.store.Save(ctx, sess); err != nil {
				return nil, err
			}
			metrics.IncSessionRefresh("ok")
			s.log.Info().Str("account", accountID).Msg("session re-authenticated")
			return sess, nil
		}
		if errors.Is(err, domain.ErrAccountBlocked) || errors.Is(err, domain.ErrDetectionChallenge) {
			metrics.IncSessionRefresh("blocked")
			metrics.IncSessionBlocked()
			_ = s.markBlockedLocked(ctx, accountID)
			s.log.Error().Str("account", accountID).Msg("account blocked during re-authentication")
			return nil, domain.ErrAccountBlocked
		}
		lastErr = err
		s.log.Warn().Err(err).Str("account", accountID).Int("attempt", i+1).Msg("re-authentication attempt failed")
	}
	metrics.IncSessionRefresh("failed")
	return nil, fmt.Errorf("%w: %v", domain.ErrAuthenticationFailed, lastErr)
}

func (s *sessionUC) Release(ctx context.Context, session *model.Session) {
	if session == nil {
		return
	}
	session.LastUsedAt = time.Now()
	if err := s.store.Save(ctx, session); err != nil {
		s.log.Error().Err(err).Str("account", session.AccountID).Msg("persist session on release")
	}

	e := s.entry(session.AccountID)
	s.unlockDist(ctx, session.AccountID, e)
	select {
	case <-e.sem:
	default:
		// Release without a matching Acquire is a programming error; do not block.
		s.log.Error().Str("account", session.AccountID).Msg("release without acquire")
	}
}

func (s *sessionUC) unlockDist(ctx context.Context, accountID string, e *accountEntry) {
	if s.locker == nil || e.lockToken == "" {
		return
	}
	if err := s.locker.Unlock(ctx, accountLockKey(accountID), e.lockToken); err != nil {
		s.log.Warn().Err(err).Str("account", accountID).Msg("distributed unlock failed")
	}
	e.lockToken = ""
}

func (s *sessionUC) MarkBlocked(ctx context.Context, accountID string) error {
	return s.markBlockedLocked(ctx, accountID)
}

func (s *sessionUC) markBlockedLocked(ctx context.Context, accountID string) error {
	sess, err := s.store.Load(ctx, accountID)
	if errors.Is(err, domain.ErrNotFound) {
		sess = &model.Session{AccountID: accountID, CreatedAt: time.Now()}
	} else if err != nil {
		return err
	}
	sess.Health = model.SessionBlocked
	return s.store.Save(ctx, sess)
}

func (s *sessionUC) Reset(ctx context.Context, accountID string) error {
	s.log.Info().Str("account", accountID).Msg("session reset")
	return s.store.Delete(ctx, accountID)
}

func (s *sessionUC) Refresh(ctx context.Context, accountID string) error {
	sess, err := s.Acquire(ctx, accountID)
	if err != nil {
		return err
	}
	s.Release(ctx, sess)
	return nil
}
