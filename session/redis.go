// Copyright 2025 Hearth
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"hearth/shared/logger"
)

const keyPrefix = "session:"

// RedisStore persists sessions as JSON blobs in Redis with an idle TTL.
//
// Redis serializes individual commands but not the read-modify-write cycle
// AppendTurn needs, so writes to the same session id are serialized with an
// in-process mutex. This is sufficient for a single-instance orchestrator;
// running multiple instances against one Redis would need a Lua script or
// WATCH/MULTI instead.
type RedisStore struct {
	client *redis.Client
	log    *logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRedisStore creates a session store over an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		log:    logger.New("session"),
		locks:  make(map[string]*sync.Mutex),
	}
}

// NewRedisStoreFromURL connects to Redis at the given URL and verifies the
// connection.
func NewRedisStoreFromURL(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStore(client), nil
}

// lockFor returns the per-session mutex, creating it on first use. Lock
// entries are never removed; the map is bounded by the number of distinct
// session ids seen by this process within its lifetime.
func (s *RedisStore) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Get returns the session for id. Sessions past MaxAge are deleted on read
// and reported as not found.
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		// A corrupt blob is unrecoverable; drop it rather than fail
		// every future request for this id.
		s.log.Warn(id, "", "Dropping corrupt session blob", map[string]interface{}{
			"error": err.Error(),
		})
		_ = s.client.Del(ctx, keyPrefix+id).Err()
		return nil, ErrNotFound
	}

	if sess.Expired(time.Now()) {
		_ = s.client.Del(ctx, keyPrefix+id).Err()
		return nil, ErrNotFound
	}

	return &sess, nil
}

// AppendTurn adds a turn to the session, creating the session if needed.
// History is trimmed to the most recent MaxTurns turns and the idle expiry
// is reset.
func (s *RedisStore) AppendTurn(ctx context.Context, id string, turn Turn) (*Session, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.Get(ctx, id)
	if err == ErrNotFound {
		now := time.Now()
		sess = &Session{ID: id, CreatedAt: now}
	} else if err != nil {
		return nil, err
	}

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	sess.Turns = append(sess.Turns, turn)
	if len(sess.Turns) > MaxTurns {
		sess.Turns = sess.Turns[len(sess.Turns)-MaxTurns:]
	}
	sess.UpdatedAt = time.Now()

	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session %s: %w", id, err)
	}

	if err := s.client.Set(ctx, keyPrefix+id, data, IdleTTL).Err(); err != nil {
		return nil, fmt.Errorf("failed to write session %s: %w", id, err)
	}

	return sess, nil
}

// Touch resets the idle expiry without modifying the session body.
func (s *RedisStore) Touch(ctx context.Context, id string) error {
	ok, err := s.client.Expire(ctx, keyPrefix+id, IdleTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to touch session %s: %w", id, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Delete removes the session.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
