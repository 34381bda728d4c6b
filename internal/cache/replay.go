package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultReplayTTL is how long an idempotent response stays replayable.
const DefaultReplayTTL = 10 * time.Minute

// claimTTL bounds how long an abandoned claim blocks its key.
const claimTTL = time.Minute

// Replay is a stored HTTP response, or a claim on a key whose request is still running.
type Replay struct {
	Status  int    `json:"status,omitempty"`
	Body    []byte `json:"body,omitempty"`
	Pending bool   `json:"pending,omitempty"`
}

var pendingReplay = []byte(`{"pending":true}`)

// Responses stores detection responses under client-supplied idempotency keys.
type Responses struct {
	cache domain.Cache
	ttl   time.Duration
}

// NewResponses creates a replay store. A non-positive ttl uses DefaultReplayTTL.
func NewResponses(c domain.Cache, ttl time.Duration) *Responses {
	if ttl <= 0 {
		ttl = DefaultReplayTTL
	}
	return &Responses{cache: c, ttl: ttl}
}

// Lookup returns the stored response for key, or nil when there is none.
func (r *Responses) Lookup(ctx context.Context, tenantID, route, key string) (*Replay, error) {
	data, err := r.cache.Get(ctx, tenantID, replayKey(route, key))
	if err != nil || data == nil {
		return nil, err
	}

	var rep Replay
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("corrupt replay entry: %w", err)
	}
	return &rep, nil
}

// Claim marks key as in flight. It reports false when another request
// already claimed it or a response is stored.
func (r *Responses) Claim(ctx context.Context, tenantID, route, key string) (bool, error) {
	return r.cache.SetIfAbsent(ctx, tenantID, replayKey(route, key), pendingReplay, min(claimTTL, r.ttl))
}

// Release drops a claim without storing a response.
func (r *Responses) Release(ctx context.Context, tenantID, route, key string) error {
	return r.cache.Delete(ctx, tenantID, replayKey(route, key))
}

// Store records a response for key, replacing any claim.
func (r *Responses) Store(ctx context.Context, tenantID, route, key string, status int, body []byte) error {
	data, err := json.Marshal(Replay{Status: status, Body: body})
	if err != nil {
		return err
	}
	return r.cache.Set(ctx, tenantID, replayKey(route, key), data, r.ttl)
}

func replayKey(route, key string) string {
	return "idem:" + route + ":" + key
}
