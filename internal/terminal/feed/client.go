// Package feed is the terminal's client for the realtime change feed.
package feed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Topics and message types of the realtime endpoint
const (
	TopicStoreSettings = "store_settings"
	TopicDeviceDeleted = "device_deleted"

	TypeStoreSettingsChanged = "store_settings_changed"
	TypeDeviceDeleted        = "device_deleted"
	typeSubscribed           = "subscribed"
)

// Close codes the server uses to refuse a connection
const (
	closeMissingToken = 4001
	closeInvalidToken = 4002
	closeForbidden    = 4003
)

// ErrRejected is returned when the server refuses the token or the subscription.
// Reconnecting would not help.
var ErrRejected = errors.New("realtime subscription rejected")

// Subscription selects a topic. StoreID filters store_settings to one store.
type Subscription struct {
	Topic   string
	StoreID string
}

// Message is one event received from the feed
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// StoreSettingsChanged is the payload of a store_settings_changed message
type StoreSettingsChanged struct {
	StoreID  string          `json:"store_id"`
	Settings json.RawMessage `json:"settings"`
}

// DeviceDeleted is the payload of a device_deleted message
type DeviceDeleted struct {
	DeviceID  string `json:"device_id"`
	StoreID   string `json:"store_id"`
	TokenHash string `json:"token_hash"`
}

// TokenHash is the hash a device_deleted message carries for the deleted device token
func TokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

type subscribeMessage struct {
	Action  string `json:"action"`
	Topic   string `json:"topic"`
	StoreID string `json:"store_id,omitempty"`
}

// Client dials the realtime endpoint and keeps subscriptions alive across reconnects
type Client struct {
	endpoint string
	dialer   *websocket.Dialer
	logger   zerolog.Logger

	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// New creates a feed client for the API at apiURL (http or https)
func New(apiURL string, logger zerolog.Logger) *Client {
	endpoint := strings.TrimRight(apiURL, "/")
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		endpoint = "ws://" + strings.TrimPrefix(endpoint, "http://")
	}
	return &Client{
		endpoint:       endpoint + "/realtime/websocket",
		dialer:         &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:         logger,
		initialBackoff: time.Second,
		maxBackoff:     time.Minute,
	}
}

// Subscribe delivers messages of sub to handle until ctx is done. Dropped connections are
// re-dialed with exponential backoff and the subscription is sent again. It returns nil when
// ctx is cancelled and ErrRejected when the server refuses the token or the store.
func (c *Client) Subscribe(ctx context.Context, token string, sub Subscription, handle func(Message)) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxInterval = c.maxBackoff

	log := c.logger.With().Str("topic", sub.Topic).Logger()
	for {
		err := c.session(ctx, token, sub, handle, b)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrRejected) {
			return err
		}

		wait := b.NextBackOff()
		log.Warn().Err(err).Dur("retry_in", wait).Msg("realtime connection lost")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (c *Client) session(ctx context.Context, token string, sub Subscription, handle func(Message), b *backoff.ExponentialBackOff) error {
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint+"?device_token="+url.QueryEscape(token), nil)
	if err != nil {
		return fmt.Errorf("dial realtime: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if err := conn.WriteJSON(subscribeMessage{Action: "subscribe", Topic: sub.Topic, StoreID: sub.StoreID}); err != nil {
		// The server may already have closed the connection with a rejection code.
		if _, _, rerr := conn.ReadMessage(); isRejection(rerr) {
			return fmt.Errorf("%w: %v", ErrRejected, rerr)
		}
		return fmt.Errorf("send subscription: %w", err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if isRejection(err) {
				return fmt.Errorf("%w: %v", ErrRejected, err)
			}
			return fmt.Errorf("read realtime: %w", err)
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug().Err(err).Msg("skipping undecodable realtime message")
			continue
		}
		if msg.Type == typeSubscribed {
			b.Reset()
			continue
		}
		handle(msg)
	}
}

func isRejection(err error) bool {
	return websocket.IsCloseError(err, closeMissingToken, closeInvalidToken, closeForbidden)
}
