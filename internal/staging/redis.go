package staging

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps pending quotes in redis: one JSON value per entry plus a
// per-language sorted set scored by submission time, and a set of languages
// with staged entries so the wildcard listing knows where to look. Languages
// leave the registry when their queue drains.
type RedisStore struct {
	client *redis.Client
}

const (
	pendingKeyPrefix = "pending:"
	langSetPrefix    = "pending_by_lang:"
	langRegistryKey  = "pending_langs"
)

// NewRedisStore creates a redis-backed staging store.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient creates a store from an existing redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func pendingKey(id string) string {
	return pendingKeyPrefix + id
}

func langKey(language string) string {
	return langSetPrefix + language
}

func (s *RedisStore) CountPending(ctx context.Context, language string) (int, error) {
	quotes, err := s.pendingByLanguage(ctx, language)
	if err != nil {
		return 0, err
	}
	return len(quotes), nil
}

func (s *RedisStore) Insert(ctx context.Context, quote PendingQuote) error {
	payload, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("marshal pending quote: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, pendingKey(quote.ID), payload, 0)
		pipe.ZAdd(ctx, langKey(quote.Language), redis.Z{
			Score:  float64(quote.Timestamp.UnixMilli()),
			Member: quote.ID,
		})
		pipe.SAdd(ctx, langRegistryKey, quote.Language)
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert pending quote: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (PendingQuote, error) {
	payload, err := s.client.Get(ctx, pendingKey(id)).Result()
	if err == redis.Nil {
		return PendingQuote{}, ErrNotFound
	}
	if err != nil {
		return PendingQuote{}, fmt.Errorf("get pending quote: %w", err)
	}

	var quote PendingQuote
	if err := json.Unmarshal([]byte(payload), &quote); err != nil {
		return PendingQuote{}, fmt.Errorf("unmarshal pending quote: %w", err)
	}
	return quote, nil
}

func (s *RedisStore) ListOldest(ctx context.Context, language string, limit int) ([]PendingQuote, error) {
	if limit <= 0 {
		return []PendingQuote{}, nil
	}

	var quotes []PendingQuote
	if language == AllLanguages {
		languages, err := s.client.SMembers(ctx, langRegistryKey).Result()
		if err != nil {
			return nil, fmt.Errorf("list pending languages: %w", err)
		}
		sort.Strings(languages)
		for _, lang := range languages {
			batch, err := s.pendingByLanguage(ctx, lang)
			if err != nil {
				return nil, err
			}
			quotes = append(quotes, batch...)
		}
		sort.SliceStable(quotes, func(i, j int) bool { return quotes[i].Timestamp.Before(quotes[j].Timestamp) })
	} else {
		batch, err := s.pendingByLanguage(ctx, language)
		if err != nil {
			return nil, err
		}
		quotes = batch
	}

	if len(quotes) > limit {
		quotes = quotes[:limit]
	}
	if quotes == nil {
		quotes = []PendingQuote{}
	}
	return quotes, nil
}

// pendingByLanguage reads one language queue in submission order. Entries
// deleted mid-read and entries an outside writer already resolved drop out.
func (s *RedisStore) pendingByLanguage(ctx context.Context, language string) ([]PendingQuote, error) {
	ids, err := s.client.ZRange(ctx, langKey(language), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read pending queue for %s: %w", language, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, pendingKey(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read pending queue for %s: %w", language, err)
	}

	quotes := make([]PendingQuote, 0, len(values))
	for _, value := range values {
		payload, ok := value.(string)
		if !ok {
			continue
		}
		var quote PendingQuote
		if err := json.Unmarshal([]byte(payload), &quote); err != nil {
			return nil, fmt.Errorf("unmarshal pending quote: %w", err)
		}
		if quote.Approved {
			continue
		}
		quotes = append(quotes, quote)
	}
	return quotes, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	quote, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, pendingKey(id))
		pipe.ZRem(ctx, langKey(quote.Language), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete pending quote: %w", err)
	}

	// Drop a drained language from the registry. Best effort: a racing
	// insert re-registers the language through its own SAdd.
	if remaining, err := s.client.ZCard(ctx, langKey(quote.Language)).Result(); err == nil && remaining == 0 {
		_ = s.client.SRem(ctx, langRegistryKey, quote.Language).Err()
	}
	return nil
}

// Ping checks if redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
