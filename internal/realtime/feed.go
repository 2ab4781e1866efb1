// Package realtime subscribes to the record service change feed and turns
// it into per-conversation message events.
package realtime

import (
	"context"
	"encoding/json"
	"time"
)

// RawEvent is one change notification as received from a feed
type RawEvent struct {
	Topic  string
	Action string
	Record json.RawMessage
}

// Feed is a source of change notifications for a topic. Subscribe returns
// once the subscription is confirmed; the channel is closed when ctx is
// cancelled or the stream ends for good.
type Feed interface {
	Subscribe(ctx context.Context, topic string) (<-chan RawEvent, error)
}

// TokenSource provides the auth token used to authorize subscriptions
type TokenSource interface {
	Token() (string, bool)
}

// FeedOption configures a feed
type FeedOption func(*feedConfig)

type feedConfig struct {
	reconnectDelay time.Duration
	bufferSize     int
}

func defaultFeedConfig() feedConfig {
	return feedConfig{bufferSize: 64}
}

// WithReconnectDelay makes the feed reconnect after the stream drops,
// waiting d between attempts. Zero disables reconnecting.
func WithReconnectDelay(d time.Duration) FeedOption {
	return func(c *feedConfig) { c.reconnectDelay = d }
}

// WithBufferSize sets the capacity of the event channel
func WithBufferSize(n int) FeedOption {
	return func(c *feedConfig) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// stream is one live connection of a feed
type stream interface {
	// next blocks until the next event arrives or the stream fails
	next() (RawEvent, error)
	close()
}

// run pumps events from s into out, reconnecting through dial when the
// stream drops and reconnecting is enabled. It closes out on return.
func run(ctx context.Context, cfg feedConfig, s stream, dial func(context.Context) (stream, error), out chan<- RawEvent, name string) {
	defer close(out)
	for {
		err := pump(ctx, s, out)
		s.close()
		if ctx.Err() != nil {
			return
		}
		if cfg.reconnectDelay <= 0 {
			logger().Warn().Err(err).Str("feed", name).Msg("Realtime stream ended")
			return
		}
		logger().Warn().Err(err).Str("feed", name).Dur("retry_in", cfg.reconnectDelay).Msg("Realtime stream dropped, reconnecting")

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(cfg.reconnectDelay):
			}
			s, err = dial(ctx)
			if err == nil {
				logger().Info().Str("feed", name).Msg("Realtime stream reconnected")
				break
			}
			if ctx.Err() != nil {
				return
			}
			logger().Warn().Err(err).Str("feed", name).Msg("Reconnect failed")
		}
	}
}

func pump(ctx context.Context, s stream, out chan<- RawEvent) error {
	for {
		ev, err := s.next()
		if err != nil {
			return err
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
