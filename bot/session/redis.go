package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "callerbot:session:"

// RedisStore keeps sessions as JSON strings under prefix+chatID.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. A zero ttl keeps records until
// they are deleted; a positive ttl expires idle sessions and is refreshed on
// every read and write.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, chatID int64) (Session, error) {
	if err := checkChatID(chatID); err != nil {
		return Session{}, err
	}
	var cmd *redis.StringCmd
	if s.ttl > 0 {
		// Reads count as activity: a logged-in chat that only looks numbers
		// up never writes its record.
		cmd = s.client.GetEx(ctx, s.key(chatID), s.ttl)
	} else {
		cmd = s.client.Get(ctx, s.key(chatID))
	}
	val, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return New(chatID), nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: redis get: %w", err)
	}
	return Unmarshal(chatID, val)
}

// Set implements Store. The whole record is written with a single SET.
func (s *RedisStore) Set(ctx context.Context, sess Session) error {
	if err := checkChatID(sess.ChatID); err != nil {
		return err
	}
	val, err := Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(sess.ChatID), val, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, chatID int64) error {
	if err := checkChatID(chatID); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.key(chatID)).Err(); err != nil {
		return fmt.Errorf("session: redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) key(chatID int64) string {
	return s.prefix + strconv.FormatInt(chatID, 10)
}
