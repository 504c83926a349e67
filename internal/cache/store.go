// Package cache implements the TTL-backed expiry store on Redis: per-question
// timeout markers, the asked-question log, the session shadow copy and the
// ready flag that gates the first question.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"millionaire-bot/internal/model"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "mq"

// Store wraps a Redis client with typed helpers.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

// New creates a Store. An empty prefix falls back to DefaultPrefix.
func New(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) sessionKey(sessionID, suffix string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, sessionID, suffix)
}

func (s *Store) markerKey(sessionID string, question int) string {
	return s.sessionKey(sessionID, "marker:"+strconv.Itoa(question))
}

func (s *Store) readyKey(userID int64) string {
	return fmt.Sprintf("%s:user:%d:ready", s.prefix, userID)
}

// Set stores value under key for ttl.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Get returns the value under key and whether it exists.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return v, true, nil
}

// Delete removes keys.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// ArmMarker records the timeout deadline for a question. The key itself expires after ttl.
func (s *Store) ArmMarker(ctx context.Context, sessionID string, question int, deadline time.Time, ttl time.Duration) error {
	return s.Set(ctx, s.markerKey(sessionID, question), strconv.FormatInt(deadline.UnixMilli(), 10), ttl)
}

// Marker returns the armed deadline for a question, if any.
func (s *Store) Marker(ctx context.Context, sessionID string, question int) (time.Time, bool, error) {
	raw, ok, err := s.Get(ctx, s.markerKey(sessionID, question))
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid marker value %q: %w", raw, err)
	}
	return time.UnixMilli(ms), true, nil
}

// ClearMarker disarms a question's timeout marker.
func (s *Store) ClearMarker(ctx context.Context, sessionID string, question int) error {
	return s.Delete(ctx, s.markerKey(sessionID, question))
}

// AddAsked appends a question id to the session's asked log and refreshes its ttl.
func (s *Store) AddAsked(ctx context.Context, sessionID string, questionID int64, ttl time.Duration) error {
	key := s.sessionKey(sessionID, "asked")
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, questionID)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record asked question: %w", err)
	}
	return nil
}

// Asked returns every question id served in the session so far.
func (s *Store) Asked(ctx context.Context, sessionID string) ([]int64, error) {
	members, err := s.rdb.SMembers(ctx, s.sessionKey(sessionID, "asked")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read asked questions: %w", err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid asked question id %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SaveShadow caches a copy of the session row.
func (s *Store) SaveShadow(ctx context.Context, sess *model.Session, ttl time.Duration) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session shadow: %w", err)
	}
	return s.Set(ctx, s.sessionKey(sess.SessionID, "shadow"), string(b), ttl)
}

// Shadow returns the cached session copy, or nil when absent.
func (s *Store) Shadow(ctx context.Context, sessionID string) (*model.Session, error) {
	raw, ok, err := s.Get(ctx, s.sessionKey(sessionID, "shadow"))
	if err != nil || !ok {
		return nil, err
	}
	var sess model.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session shadow: %w", err)
	}
	return &sess, nil
}

// SetReady opens the window in which the user's START releases question 1.
func (s *Store) SetReady(ctx context.Context, userID int64, sessionID string, ttl time.Duration) error {
	return s.Set(ctx, s.readyKey(userID), sessionID, ttl)
}

// TakeReady atomically consumes the ready flag and returns the session it points at.
func (s *Store) TakeReady(ctx context.Context, userID int64) (string, bool, error) {
	v, err := s.rdb.GetDel(ctx, s.readyKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to take ready flag: %w", err)
	}
	return v, true, nil
}

// ClearReady drops the user's ready flag.
func (s *Store) ClearReady(ctx context.Context, userID int64) error {
	return s.Delete(ctx, s.readyKey(userID))
}

// PurgeSession deletes every key belonging to a session and returns how many were removed.
func (s *Store) PurgeSession(ctx context.Context, sessionID string) (int, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, s.sessionKey(sessionID, "*"), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan session keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to purge session keys: %w", err)
	}
	return int(n), nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
