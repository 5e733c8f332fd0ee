// Package memory implements the domain cache interfaces in-process. It backs
// single-process deployments that run without Redis.
package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// subscriberBuffer matches the buffering of the Redis-backed bus.
const subscriberBuffer = 128

// Bus is an in-process domain.SignalBus. Slow subscribers drop messages
// instead of blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[chan []byte]struct{})}
}

// Publish delivers payload to every current subscriber of channel.
func (b *Bus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[channel] {
		msg := make([]byte, len(payload))
		copy(msg, payload)
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of payloads published on channel. The returned
// channel is closed when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, subscriberBuffer)

	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan []byte]struct{})
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[channel], ch)
		close(ch)
		b.mu.Unlock()
	}()

	return ch, nil
}

// Compile-time interface check.
var _ domain.SignalBus = (*Bus)(nil)
