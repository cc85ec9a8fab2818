package realtime

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func drain(c *Client) int {
	n := 0
	for {
		select {
		case <-c.Send:
			n++
		default:
			return n
		}
	}
}

func TestHub_BroadcastMatching(t *testing.T) {
	h := NewHub(zerolog.Nop())

	a := NewClient("a", "s1", 4)
	b := NewClient("b", "s2", 4)
	idle := NewClient("idle", "s1", 4)
	h.Register(a)
	h.Register(b)
	h.Register(idle)

	h.Subscribe(a, TopicStoreSettings, "s1")
	h.Subscribe(a, TopicDeviceDeleted, "")
	h.Subscribe(b, TopicStoreSettings, "s2")
	assert.Equal(t, 2, h.Subscribers(TopicStoreSettings))
	assert.Equal(t, 1, h.Subscribers(TopicDeviceDeleted))

	h.Broadcast(Event{Type: EventStoreSettingsChanged, StoreID: "s1"})
	assert.Equal(t, 1, drain(a))
	assert.Equal(t, 0, drain(b))
	assert.Equal(t, 0, drain(idle))

	h.Broadcast(Event{Type: EventDeviceDeleted, StoreID: "s2", TokenHash: "x"})
	assert.Equal(t, 1, drain(a), "deletions go to every device_deleted subscriber")
	assert.Equal(t, 0, drain(b))

	h.Unsubscribe(a, TopicStoreSettings)
	h.Broadcast(Event{Type: EventStoreSettingsChanged, StoreID: "s1"})
	assert.Equal(t, 0, drain(a))
}

func TestHub_SlowClientDropsMessages(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := NewClient("c", "s1", 1)
	h.Register(c)
	h.Subscribe(c, TopicDeviceDeleted, "")

	h.Broadcast(Event{Type: EventDeviceDeleted})
	h.Broadcast(Event{Type: EventDeviceDeleted})
	assert.Equal(t, 1, drain(c))
}

func TestHub_UnregisterClosesSendOnce(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := NewClient("c", "s1", 1)
	h.Register(c)
	assert.Equal(t, 1, h.Clients())

	h.Unregister(c)
	h.Unregister(c)
	assert.Equal(t, 0, h.Clients())

	_, open := <-c.Send
	assert.False(t, open)
}
