package terminal

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/velopos/pos/internal/model"
	"github.com/velopos/pos/internal/terminal/backend"
	"github.com/velopos/pos/internal/terminal/feed"
	"github.com/velopos/pos/internal/terminal/tokenstore"
	"golang.org/x/sync/errgroup"
)

const noticeBuffer = 16

// Reason explains a forced logout
type Reason string

const (
	// ReasonRevoked: the backend rejected the device token
	ReasonRevoked Reason = "revoked"
	// ReasonUnbound: the device was deleted by a store manager
	ReasonUnbound Reason = "unbound"
)

// Notice is a message for the operator
type Notice struct {
	Kind    Reason
	Message string
}

func (r Reason) message() string {
	if r == ReasonUnbound {
		return "this device was unbound from the store, please re-pair"
	}
	return "device credential revoked, please re-pair"
}

// Notices delivers operator notices. Notices are dropped when nobody reads them.
func (t *Terminal) Notices() <-chan Notice {
	return t.notices
}

// ForceLogout clears the credential and the employee session and returns to pairing.
// Only the first call per session has an effect; calls without a session are no-ops.
func (t *Terminal) ForceLogout(reason Reason) {
	t.mu.Lock()
	if !t.paired {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	if err := t.store.Clear(); err != nil {
		t.logger.Error().Err(err).Msg("failed to clear credential")
	}
	if !t.endLocalSession() {
		return
	}

	t.logger.Warn().Str("reason", string(reason)).Msg("device logged out")
	n := Notice{Kind: reason, Message: reason.message()}
	select {
	case t.notices <- n:
	default:
		t.logger.Warn().Str("reason", string(reason)).Msg("notice dropped")
	}
}

// endLocalSession drops the in-memory session and stops Run. It reports whether a session
// was active.
func (t *Terminal) endLocalSession() bool {
	t.mu.Lock()
	wasPaired := t.paired
	t.paired = false
	t.cred = tokenstore.Credential{}
	t.employee = nil
	t.screen = ScreenPairing
	t.connectivity = ConnectivityUnknown
	cancel := t.endSession
	t.endSession = nil
	t.mu.Unlock()

	t.settings.Reset()
	if cancel != nil {
		cancel()
	}
	return wasPaired
}

// Run keeps the device session alive: heartbeat, realtime settings and revocation listener.
// It returns nil when ctx is cancelled and ErrLoggedOut when the device was logged out.
// Every goroutine has exited when Run returns.
func (t *Terminal) Run(ctx context.Context) error {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.mu.Lock()
	if !t.paired {
		t.mu.Unlock()
		return ErrNotPaired
	}
	cred := t.cred
	t.endSession = cancel
	t.mu.Unlock()

	g, gctx := errgroup.WithContext(sessCtx)
	g.Go(func() error {
		return t.Heartbeat(gctx)
	})
	g.Go(func() error {
		return t.listen(gctx, cred.Token, feed.Subscription{Topic: feed.TopicStoreSettings, StoreID: cred.StoreID}, t.handleSettings)
	})
	g.Go(func() error {
		return t.listen(gctx, cred.Token, feed.Subscription{Topic: feed.TopicDeviceDeleted}, t.handleDeletion)
	})
	err := g.Wait()

	if ctx.Err() != nil {
		return nil
	}
	t.mu.Lock()
	paired := t.paired
	t.mu.Unlock()
	if !paired {
		return ErrLoggedOut
	}
	return err
}

// Heartbeat re-validates the device session every interval, starting immediately, until ctx
// is done or the device is logged out.
func (t *Terminal) Heartbeat(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		if !t.beat(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// beat runs one heartbeat. It reports whether the session is still alive.
func (t *Terminal) beat(ctx context.Context) bool {
	cred, ok := t.Credential()
	if !ok {
		return false
	}

	s, err := t.backend.Session(ctx, cred.Token)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		if errors.Is(err, backend.ErrInvalidToken) {
			t.ForceLogout(ReasonRevoked)
			return false
		}
		t.logger.Warn().Err(err).Msg("heartbeat failed")
		t.setConnectivity(ConnectivityOffline)
		return true
	}

	t.setConnectivity(ConnectivityOnline)
	t.settings.Merge(s.StoreSettings)
	return true
}

func (t *Terminal) listen(ctx context.Context, token string, sub feed.Subscription, handle func(feed.Message)) error {
	err := t.feed.Subscribe(ctx, token, sub, handle)
	if err != nil && ctx.Err() == nil {
		// The heartbeat decides whether the device is still bound.
		t.logger.Warn().Err(err).Str("topic", sub.Topic).Msg("realtime subscription ended")
	}
	return nil
}

func (t *Terminal) handleSettings(msg feed.Message) {
	if msg.Type != feed.TypeStoreSettingsChanged {
		return
	}
	var p feed.StoreSettingsChanged
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.logger.Warn().Err(err).Msg("invalid settings event")
		return
	}
	cred, ok := t.Credential()
	if !ok || !strings.EqualFold(p.StoreID, cred.StoreID) {
		return
	}

	var patch model.StoreSettings
	if len(p.Settings) > 0 {
		if err := json.Unmarshal(p.Settings, &patch); err != nil {
			t.logger.Warn().Err(err).Msg("invalid settings payload")
			return
		}
	}
	t.settings.Merge(patch)
}

func (t *Terminal) handleDeletion(msg feed.Message) {
	if msg.Type != feed.TypeDeviceDeleted {
		return
	}
	var p feed.DeviceDeleted
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.logger.Warn().Err(err).Msg("invalid deletion event")
		return
	}
	cred, ok := t.Credential()
	if !ok || p.TokenHash == "" {
		return
	}
	if strings.EqualFold(p.TokenHash, feed.TokenHash(cred.Token)) {
		t.ForceLogout(ReasonUnbound)
	}
}
