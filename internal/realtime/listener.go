package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// Channel is the PostgreSQL notification channel written by the change triggers
const Channel = "pos_changes"

const (
	minReconnectInterval = 2 * time.Second
	maxReconnectInterval = time.Minute
	pingInterval         = 90 * time.Second
)

// Broadcaster receives decoded change events
type Broadcaster interface {
	Broadcast(e Event)
}

// Listener forwards LISTEN/NOTIFY change events to a Broadcaster
type Listener struct {
	databaseURL string
	target      Broadcaster
	logger      zerolog.Logger
}

// NewListener creates a listener on Channel
func NewListener(databaseURL string, target Broadcaster, logger zerolog.Logger) *Listener {
	return &Listener{
		databaseURL: databaseURL,
		target:      target,
		logger:      logger,
	}
}

// Run listens until ctx is cancelled. pq.Listener reconnects on its own; events emitted while
// disconnected are lost and terminals catch up through their heartbeat.
func (l *Listener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.databaseURL, minReconnectInterval, maxReconnectInterval, l.onEvent)
	defer listener.Close()

	if err := listener.Listen(Channel); err != nil {
		return fmt.Errorf("listen %s: %w", Channel, err)
	}
	l.logger.Info().Str("channel", Channel).Msg("listening for changes")

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			// nil after a reconnect
			if n == nil {
				continue
			}
			l.handle(n.Extra)
		case <-ticker.C:
			if err := listener.Ping(); err != nil {
				l.logger.Warn().Err(err).Msg("listener ping failed")
			}
		}
	}
}

func (l *Listener) handle(payload string) {
	e, err := ParseNotification(payload)
	if err != nil {
		l.logger.Warn().Err(err).Msg("skip notification")
		return
	}
	l.logger.Debug().Str("type", e.Type).Str("store_id", e.StoreID).Msg("change event")
	l.target.Broadcast(e)
}

func (l *Listener) onEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		l.logger.Debug().Msg("listener connected")
	case pq.ListenerEventDisconnected:
		l.logger.Warn().Err(err).Msg("listener disconnected")
	case pq.ListenerEventReconnected:
		l.logger.Info().Msg("listener reconnected")
	case pq.ListenerEventConnectionAttemptFailed:
		l.logger.Warn().Err(err).Msg("listener connection attempt failed")
	}
}
