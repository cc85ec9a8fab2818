package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/rs/zerolog"
	"github.com/velopos/pos/internal/auth"
	"github.com/velopos/pos/internal/middleware"
)

// Prefix is the mount point of the realtime endpoint; raw websocket clients use Prefix + "/websocket"
const Prefix = "/realtime"

// Close codes sent to clients
const (
	CloseMissingToken = 4001
	CloseInvalidToken = 4002
	CloseForbidden    = 4003
	CloseServerError  = 1011
)

const sendBuffer = 16

// NewHandler returns the sockjs endpoint. Connections authenticate with the device token and
// may only subscribe to settings of their own store.
func NewHandler(h *Hub, devices middleware.DeviceResolver, logger zerolog.Logger) http.Handler {
	opts := sockjs.DefaultOptions
	opts.RawWebsocket = true
	return sockjs.NewHandler(Prefix, opts, func(session sockjs.Session) {
		serveSession(session, h, devices, logger)
	})
}

func serveSession(session sockjs.Session, h *Hub, devices middleware.DeviceResolver, logger zerolog.Logger) {
	token := ""
	if req := session.Request(); req != nil {
		token = middleware.DeviceToken(req)
	}
	if token == "" {
		_ = session.Close(CloseMissingToken, "missing device token")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	binding, err := devices.Resolve(ctx, token)
	cancel()
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidDeviceToken) {
			logger.Error().Err(err).Msg("realtime device lookup failed")
			_ = session.Close(CloseServerError, "device lookup failed")
			return
		}
		_ = session.Close(CloseInvalidToken, "invalid device token")
		return
	}

	storeID := binding.Device.StoreID.String()
	client := NewClient(uuid.NewString(), storeID, sendBuffer)
	log := logger.With().Str("client_id", client.ID).Str("device_id", binding.Device.ID.String()).Logger()
	h.Register(client)
	defer h.Unregister(client)
	log.Debug().Msg("realtime client connected")

	go func() {
		for msg := range client.Send {
			if err := session.Send(string(msg)); err != nil {
				return
			}
		}
	}()

	for {
		msg, err := session.Recv()
		if err != nil {
			log.Debug().Err(err).Msg("realtime client disconnected")
			return
		}
		parsed, ok := ParseSubscribe([]byte(msg))
		if !ok {
			continue
		}

		if parsed.Action == "unsubscribe" {
			h.Unsubscribe(client, parsed.Topic)
			continue
		}

		if parsed.Topic == TopicStoreSettings {
			if parsed.StoreID != "" && !strings.EqualFold(parsed.StoreID, storeID) {
				_ = session.Close(CloseForbidden, "store not allowed")
				return
			}
			h.Subscribe(client, TopicStoreSettings, storeID)
		} else {
			h.Subscribe(client, TopicDeviceDeleted, "")
		}

		if ack, err := encodeEnvelope(EventSubscribed, map[string]string{"topic": parsed.Topic}, time.Now()); err == nil {
			select {
			case client.Send <- ack:
			default:
			}
		}
	}
}

// ClearDeadlines removes the server read/write deadlines for long-lived connections under
// prefix. It must wrap the handler given to http.Server directly.
func ClearDeadlines(prefix string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, prefix) {
			rc := http.NewResponseController(w)
			_ = rc.SetReadDeadline(time.Time{})
			_ = rc.SetWriteDeadline(time.Time{})
		}
		next.ServeHTTP(w, r)
	})
}
