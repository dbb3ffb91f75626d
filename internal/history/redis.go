package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gluk-w/boxterm/internal/naming"
)

const defaultKeyPrefix = "boxterm:history:"

// redisStore keeps each record as a list of JSON-encoded messages.
type redisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
	logger zerolog.Logger
}

func newRedisStore(client *redis.Client, prefix string, now func() time.Time) *redisStore {
	return &redisStore{
		client: client,
		prefix: prefix,
		now:    now,
		logger: log.With().Str("component", "history").Str("backend", "redis").Logger(),
	}
}

func (s *redisStore) key(name string) string {
	return s.prefix + name
}

func (s *redisStore) Load(ctx context.Context, name string) (Record, error) {
	if !naming.Valid(name) {
		return Record{}, ErrInvalidName
	}
	vals, err := s.client.LRange(ctx, s.key(name), 0, -1).Result()
	if err != nil {
		return Record{}, fmt.Errorf("load history: %w", err)
	}

	rec := emptyRecord(name)
	for _, v := range vals {
		var msg Message
		if err := json.Unmarshal([]byte(v), &msg); err != nil {
			s.logger.Warn().Err(err).Str("container", name).Msg("skipping corrupt history entry")
			continue
		}
		rec.Messages = append(rec.Messages, msg)
	}
	finish(&rec)
	return rec, nil
}

func (s *redisStore) Append(ctx context.Context, name string, role Role, content string, extra Extra) (Message, error) {
	if !naming.Valid(name) {
		return Message{}, ErrInvalidName
	}
	msg := newMessage(role, content, extra, s.now())
	val, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("encode history: %w", err)
	}

	key := s.key(name)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, val)
		pipe.LTrim(ctx, key, -MaxMessages, -1)
		return nil
	})
	if err != nil {
		return Message{}, fmt.Errorf("append history: %w", err)
	}
	return msg, nil
}

func (s *redisStore) Remove(ctx context.Context, name string) error {
	if !naming.Valid(name) {
		return ErrInvalidName
	}
	if err := s.client.Del(ctx, s.key(name)).Err(); err != nil {
		return fmt.Errorf("remove history: %w", err)
	}
	return nil
}

func (s *redisStore) ListNames(ctx context.Context) ([]string, error) {
	var names []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		name := strings.TrimPrefix(iter.Val(), s.prefix)
		if naming.Valid(name) {
			names = append(names, name)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
