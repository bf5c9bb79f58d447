// Package session provides the Redis-backed record of suggestions already
// dispatched to an editor session.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 30 * 24 * time.Hour

// AppliedEntry is stored for each dispatched suggestion.
type AppliedEntry struct {
	DocumentID   string    `json:"document_id"`
	SuggestionID string    `json:"suggestion_id"`
	AppliedAt    time.Time `json:"applied_at"`
}

// RedisLedger implements the applied ledger using Redis
type RedisLedger struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisLedger connects to redisURL. A ttl of zero keeps entries for 30 days.
func NewRedisLedger(redisURL string, ttl time.Duration) (*RedisLedger, error) {
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

	return NewRedisLedgerWithClient(client, ttl), nil
}

// NewRedisLedgerWithClient creates a ledger from an existing Redis client
func NewRedisLedgerWithClient(client *redis.Client, ttl time.Duration) *RedisLedger {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisLedger{
		client: client,
		prefix: "applied:",
		ttl:    ttl,
		now:    time.Now,
	}
}

func (l *RedisLedger) key(documentID, suggestionID string) string {
	return l.prefix + documentID + ":" + suggestionID
}

// Applied reports whether the suggestion was already dispatched.
func (l *RedisLedger) Applied(ctx context.Context, documentID, suggestionID string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(documentID, suggestionID)).Result()
	if err != nil {
		return false, fmt.Errorf("lookup applied suggestion: %w", err)
	}
	return n > 0, nil
}

// MarkApplied records a dispatch. The first record wins; later calls keep its
// timestamp.
func (l *RedisLedger) MarkApplied(ctx context.Context, documentID, suggestionID string) error {
	data, err := json.Marshal(AppliedEntry{
		DocumentID:   documentID,
		SuggestionID: suggestionID,
		AppliedAt:    l.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal applied entry: %w", err)
	}
	if err := l.client.SetNX(ctx, l.key(documentID, suggestionID), data, l.ttl).Err(); err != nil {
		return fmt.Errorf("record applied suggestion: %w", err)
	}
	return nil
}

// Entry returns the stored record, or redis.Nil when there is none.
func (l *RedisLedger) Entry(ctx context.Context, documentID, suggestionID string) (AppliedEntry, error) {
	raw, err := l.client.Get(ctx, l.key(documentID, suggestionID)).Bytes()
	if err != nil {
		return AppliedEntry{}, err
	}
	var entry AppliedEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return AppliedEntry{}, fmt.Errorf("unmarshal applied entry: %w", err)
	}
	return entry, nil
}

// Close closes the Redis connection
func (l *RedisLedger) Close() error {
	return l.client.Close()
}

// Ping checks if Redis is reachable
func (l *RedisLedger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
