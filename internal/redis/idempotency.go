package redis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyPrefix = "idempotency:"

// StoredResponse is a response recorded for an idempotency key. A record
// with InFlight set marks a request that is still being processed.
type StoredResponse struct {
	InFlight   bool            `json:"in_flight,omitempty"`
	StatusCode int             `json:"status_code,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
	Headers    http.Header     `json:"headers,omitempty"`
}

// IdempotencyStore keeps responses of idempotent requests in Redis.
type IdempotencyStore struct {
	client *redis.Client
}

// NewIdempotencyStore creates a new IdempotencyStore.
func NewIdempotencyStore(client *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

// Get returns the record for key, or nil when there is none.
func (s *IdempotencyStore) Get(ctx context.Context, key string) (*StoredResponse, error) {
	data, err := s.client.Get(ctx, idempotencyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var stored StoredResponse
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// Reserve marks key as in flight. Returns false if key already has a record.
func (s *IdempotencyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(StoredResponse{InFlight: true})
	if err != nil {
		return false, err
	}
	return s.client.SetNX(ctx, idempotencyPrefix+key, data, ttl).Result()
}

// Save records the final response for key.
func (s *IdempotencyStore) Save(ctx context.Context, key string, response *StoredResponse, ttl time.Duration) error {
	data, err := json.Marshal(response)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, idempotencyPrefix+key, data, ttl).Err()
}

// Release drops the record for key so the request can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, idempotencyPrefix+key).Err()
}
