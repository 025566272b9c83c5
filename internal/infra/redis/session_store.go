package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"linkedin-autopilot/internal/domain"
	"linkedin-autopilot/internal/domain/model"
	"linkedin-autopilot/internal/domain/ports/repository"
)

var _ repository.SessionStore = (*SessionStore)(nil)

// SessionStore persists authenticated cookie sets so a restart can resume a
// live platform session instead of logging in again.
type SessionStore struct {
	client RedisClient
}

func NewSessionStore(client RedisClient) *SessionStore {
	return &SessionStore{client: client}
}

func sessionKey(accountID string) string { return fmt.Sprintf("session:%s", accountID) }

func (s *SessionStore) Load(ctx context.Context, accountID string) (*model.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(accountID))
	if err != nil {
		if IsNil(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var sess model.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *SessionStore) Save(ctx context.Context, session *model.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	// Sessions carry their own freshness; no TTL so Blocked stays visible.
	return s.client.Set(ctx, sessionKey(session.AccountID), raw, 0)
}

func (s *SessionStore) Delete(ctx context.Context, accountID string) error {
	return s.client.Del(ctx, sessionKey(accountID))
}
