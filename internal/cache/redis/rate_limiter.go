package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// ClientLimiter throttles API clients across every process sharing the Redis
// instance. Clients are the keys the HTTP middleware derives ("api:<ip>"), so
// a trader hammering /api/orders from one address is limited no matter which
// replica serves the request.
//
// Each client owns a sorted set "ratelimit:<client>" of request timestamps in
// microseconds plus a "ratelimit:<client>:seq" counter that keeps members
// unique within the same microsecond. Both expire after one window of
// inactivity.
type ClientLimiter struct {
	rdb    *redis.Client
	script *redis.Script
}

// NewRateLimiter creates a ClientLimiter backed by the given Client.
func NewRateLimiter(c *Client) *ClientLimiter {
	return &ClientLimiter{
		rdb:    c.Underlying(),
		script: redis.NewScript(slidingWindowLua),
	}
}

func clientKey(client string) string {
	return "ratelimit:" + client
}

func clientSeqKey(client string) string {
	return clientKey(client) + ":seq"
}

// Allow counts a request for client and reports whether it stays within limit
// requests per window. Rejected requests are not counted.
func (cl *ClientLimiter) Allow(ctx context.Context, client string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return false, fmt.Errorf("redis: rate limit %s: invalid limit %d per %s", client, limit, window)
	}

	res, err := cl.script.Run(ctx, cl.rdb,
		[]string{clientKey(client)},
		time.Now().UnixMicro(), window.Microseconds(), limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", client, err)
	}
	if len(res) < 2 {
		return false, fmt.Errorf("redis: rate limit %s: unexpected reply %v", client, res)
	}
	return res[0] == 1, nil
}

// Forget drops the request history of client.
func (cl *ClientLimiter) Forget(ctx context.Context, client string) error {
	if err := cl.rdb.Del(ctx, clientKey(client), clientSeqKey(client)).Err(); err != nil {
		return fmt.Errorf("redis: rate limit forget %s: %w", client, err)
	}
	return nil
}

var _ domain.RateLimiter = (*ClientLimiter)(nil)
