package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"keeper-vault/internal/domain"
)

// SubscriberConfig configures a websocket notification subscriber.
type SubscriberConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// HandshakeTimeout bounds each dial.
	HandshakeTimeout time.Duration
}

// DefaultSubscriberConfig returns default subscriber configuration.
func DefaultSubscriberConfig() SubscriberConfig {
	return SubscriberConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		HandshakeTimeout:  10 * time.Second,
	}
}

// Subscribe connects to a Hub endpoint and streams its notifications.
// The connection is re-established with exponential backoff until ctx is
// done, at which point the channel is closed. Only the first dial error is
// returned directly.
func Subscribe(ctx context.Context, endpoint string, config *SubscriberConfig, logger *log.Logger) (<-chan *domain.Event, error) {
	cfg := DefaultSubscriberConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	out := make(chan *domain.Event)
	go func() {
		defer close(out)
		delay := cfg.ReconnectDelay
		for {
			readEvents(ctx, conn, out, logger)
			conn.Close()

			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
				delay *= 2
				if delay > cfg.MaxReconnectDelay {
					delay = cfg.MaxReconnectDelay
				}
				conn, _, err = dialer.DialContext(ctx, endpoint, nil)
				if err == nil {
					delay = cfg.ReconnectDelay
					break
				}
				logger.Printf("websocket reconnect: %v", err)
			}
		}
	}()
	return out, nil
}

// readEvents forwards decoded notifications until the connection fails or ctx is done.
func readEvents(ctx context.Context, conn *websocket.Conn, out chan<- *domain.Event, logger *log.Logger) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var e domain.Event
		if err := json.Unmarshal(message, &e); err != nil {
			logger.Printf("decode notification: %v", err)
			continue
		}
		select {
		case out <- &e:
		case <-ctx.Done():
			return
		}
	}
}
