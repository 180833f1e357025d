// Package senders remembers who has messaged the Lark bot, so operators
// can look up the ids to deliver reports to.
package senders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("sender not found")

// Sender is the identity and chat context captured from one message.
type Sender struct {
	UserID      string    `json:"user_id,omitempty"`
	OpenID      string    `json:"open_id,omitempty"`
	UnionID     string    `json:"union_id,omitempty"`
	SenderType  string    `json:"sender_type,omitempty"`
	TenantKey   string    `json:"tenant_key,omitempty"`
	ChatID      string    `json:"chat_id,omitempty"`
	ChatType    string    `json:"chat_type,omitempty"`
	MessageType string    `json:"message_type,omitempty"`
	EventID     string    `json:"event_id,omitempty"`
	CapturedAt  time.Time `json:"captured_at"`
}

// Key is the id a sender is stored under: the user id when the app may
// read it, otherwise the open id.
func (s Sender) Key() string {
	if s.UserID != "" {
		return s.UserID
	}
	return s.OpenID
}

// Store keeps the latest capture per sender.
type Store interface {
	Put(ctx context.Context, s Sender) error
	Get(ctx context.Context, key string) (Sender, error)
	List(ctx context.Context) ([]Sender, error)
}

func sortByCapture(out []Sender) {
	sort.Slice(out, func(i, j int) bool { return out[i].CapturedAt.After(out[j].CapturedAt) })
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]Sender
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]Sender)}
}

func (s *MemoryStore) Put(_ context.Context, snd Sender) error {
	if snd.Key() == "" {
		return fmt.Errorf("sender has no user or open id")
	}
	s.mu.Lock()
	s.m[snd.Key()] = snd
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (Sender, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snd, ok := s.m[key]
	if !ok {
		return Sender{}, ErrNotFound
	}
	return snd, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Sender, error) {
	s.mu.RLock()
	out := make([]Sender, 0, len(s.m))
	for _, snd := range s.m {
		out = append(out, snd)
	}
	s.mu.RUnlock()
	sortByCapture(out)
	return out, nil
}

const redisKey = "lark:senders"

// RedisStore keeps senders in a Redis hash so captures survive restarts
// and are shared between replicas.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Put(ctx context.Context, snd Sender) error {
	if snd.Key() == "" {
		return fmt.Errorf("sender has no user or open id")
	}
	b, err := json.Marshal(snd)
	if err != nil {
		return fmt.Errorf("marshal sender: %w", err)
	}
	if err := s.rdb.HSet(ctx, redisKey, snd.Key(), b).Err(); err != nil {
		return fmt.Errorf("store sender: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Sender, error) {
	raw, err := s.rdb.HGet(ctx, redisKey, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Sender{}, ErrNotFound
	}
	if err != nil {
		return Sender{}, fmt.Errorf("get sender: %w", err)
	}
	var snd Sender
	if err := json.Unmarshal(raw, &snd); err != nil {
		return Sender{}, fmt.Errorf("decode sender %s: %w", key, err)
	}
	return snd, nil
}

func (s *RedisStore) List(ctx context.Context) ([]Sender, error) {
	all, err := s.rdb.HGetAll(ctx, redisKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list senders: %w", err)
	}
	out := make([]Sender, 0, len(all))
	for key, raw := range all {
		var snd Sender
		if err := json.Unmarshal([]byte(raw), &snd); err != nil {
			return nil, fmt.Errorf("decode sender %s: %w", key, err)
		}
		out = append(out, snd)
	}
	sortByCapture(out)
	return out, nil
}
