package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Topics a client can subscribe to
const (
	TopicStoreSettings = "store_settings"
	TopicDeviceDeleted = "device_deleted"
)

// Event types carried on the pos_changes channel and sent to clients
const (
	EventStoreSettingsChanged = "store_settings_changed"
	EventDeviceDeleted        = "device_deleted"
	EventSubscribed           = "subscribed"
)

// Event is a decoded change notification
type Event struct {
	Type      string          `json:"type"`
	StoreID   string          `json:"store_id"`
	TenantID  string          `json:"tenant_id,omitempty"`
	DeviceID  string          `json:"device_id,omitempty"`
	TokenHash string          `json:"token_hash,omitempty"`
	Settings  json.RawMessage `json:"settings,omitempty"`
}

// Topic returns the subscription topic the event is delivered on
func (e Event) Topic() string {
	switch e.Type {
	case EventStoreSettingsChanged:
		return TopicStoreSettings
	case EventDeviceDeleted:
		return TopicDeviceDeleted
	}
	return ""
}

// Envelope is the message format sent to realtime clients
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// StoreSettingsPayload is the payload of a store_settings_changed message
type StoreSettingsPayload struct {
	StoreID  string          `json:"store_id"`
	TenantID string          `json:"tenant_id,omitempty"`
	Settings json.RawMessage `json:"settings"`
}

// DeviceDeletedPayload is the payload of a device_deleted message. Only the token hash
// of the removed device is published.
type DeviceDeletedPayload struct {
	DeviceID  string `json:"device_id"`
	StoreID   string `json:"store_id"`
	TokenHash string `json:"token_hash"`
}

// SubscribeMessage is sent by clients to change their subscriptions
type SubscribeMessage struct {
	Action  string `json:"action"`
	Topic   string `json:"topic"`
	StoreID string `json:"store_id,omitempty"`
}

// ParseNotification decodes a pos_changes notification payload
func ParseNotification(payload string) (Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return Event{}, fmt.Errorf("decode notification: %w", err)
	}
	if e.Topic() == "" {
		return Event{}, fmt.Errorf("unknown notification type %q", e.Type)
	}
	return e, nil
}

// ParseSubscribe decodes a client subscription message
func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	if msg.Topic != TopicStoreSettings && msg.Topic != TopicDeviceDeleted {
		return SubscribeMessage{}, false
	}
	return msg, true
}

// Encode builds the client envelope for an event
func (e Event) Encode(now time.Time) ([]byte, error) {
	var payload any
	switch e.Type {
	case EventStoreSettingsChanged:
		settings := e.Settings
		if len(settings) == 0 {
			settings = json.RawMessage(`{}`)
		}
		payload = StoreSettingsPayload{StoreID: e.StoreID, TenantID: e.TenantID, Settings: settings}
	case EventDeviceDeleted:
		payload = DeviceDeletedPayload{DeviceID: e.DeviceID, StoreID: e.StoreID, TokenHash: e.TokenHash}
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	return encodeEnvelope(e.Type, payload, now)
}

func encodeEnvelope(eventType string, payload any, now time.Time) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Payload: raw, CreatedAt: now.UTC()})
}
