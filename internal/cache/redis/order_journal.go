package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// streamMaxLen is the approximate maximum length of the order stream,
// enforced via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// OrderStream implements domain.OrderJournal on a Redis stream. It is used
// when no Postgres journal is configured.
type OrderStream struct {
	rdb    *redis.Client
	stream string
}

// NewOrderStream creates an OrderStream writing to stream.
func NewOrderStream(c *Client, stream string) *OrderStream {
	return &OrderStream{rdb: c.Underlying(), stream: stream}
}

// Append adds an order to the stream.
func (s *OrderStream) Append(ctx context.Context, order domain.Order) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("redis: encode order %s: %w", order.ID, err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}
	if err := s.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", s.stream, err)
	}
	return nil
}

// List returns orders newest first, honouring opts.Limit, opts.Offset and the
// optional time window.
func (s *OrderStream) List(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	start, stop := "+", "-"
	if opts.Until != nil {
		start = strconv.FormatInt(opts.Until.UnixMilli(), 10)
	}
	if opts.Since != nil {
		stop = strconv.FormatInt(opts.Since.UnixMilli(), 10)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	msgs, err := s.rdb.XRevRangeN(ctx, s.stream, start, stop, int64(limit+opts.Offset)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: stream read %s: %w", s.stream, err)
	}

	orders := make([]domain.Order, 0, len(msgs))
	for i, msg := range msgs {
		if i < opts.Offset {
			continue
		}
		o, ok := decodeStreamOrder(msg.Values)
		if !ok {
			continue
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func decodeStreamOrder(values map[string]any) (domain.Order, bool) {
	var data []byte
	switch v := values["payload"].(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return domain.Order{}, false
	}
	var o domain.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return domain.Order{}, false
	}
	return o, true
}

// Compile-time interface check.
var _ domain.OrderJournal = (*OrderStream)(nil)
