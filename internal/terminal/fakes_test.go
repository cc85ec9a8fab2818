package terminal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/velopos/pos/internal/terminal/backend"
	"github.com/velopos/pos/internal/terminal/feed"
	"github.com/velopos/pos/internal/terminal/tokenstore"
)

var errBackendDown = errors.New("connection refused")

type fakeBackend struct {
	mu           sync.Mutex
	codes        map[string]backend.Pairing
	sessions     map[string]backend.Session
	pins         map[string]backend.EmployeeLogin
	config       *backend.StoreConfig
	down         bool
	pairCalls    int
	sessionCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		codes:    map[string]backend.Pairing{},
		sessions: map[string]backend.Session{},
		pins:     map[string]backend.EmployeeLogin{},
	}
}

func (f *fakeBackend) Pair(_ context.Context, code, _ string) (backend.Pairing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pairCalls++
	if f.down {
		return backend.Pairing{}, errBackendDown
	}
	p, ok := f.codes[code]
	if !ok {
		return backend.Pairing{}, backend.ErrInvalidPairingCode
	}
	delete(f.codes, code)
	f.sessions[p.DeviceToken] = backend.Session{
		DeviceID: p.DeviceID, StoreID: p.StoreID, StoreName: p.StoreName, Role: p.Role, TenantMode: p.TenantMode,
	}
	return p, nil
}

func (f *fakeBackend) Session(_ context.Context, token string) (backend.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionCalls++
	if f.down {
		return backend.Session{}, errBackendDown
	}
	s, ok := f.sessions[token]
	if !ok {
		return backend.Session{}, backend.ErrInvalidToken
	}
	return s, nil
}

func (f *fakeBackend) Check(_ context.Context, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return false, errBackendDown
	}
	_, ok := f.sessions[token]
	return ok, nil
}

func (f *fakeBackend) StoreConfig(_ context.Context, token string) (backend.StoreConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.config == nil {
		return backend.StoreConfig{}, errBackendDown
	}
	return *f.config, nil
}

func (f *fakeBackend) EmployeeLogin(_ context.Context, token, pin string) (backend.EmployeeLogin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[token]; !ok {
		return backend.EmployeeLogin{}, backend.ErrInvalidToken
	}
	login, ok := f.pins[pin]
	if !ok {
		return backend.EmployeeLogin{}, backend.ErrInvalidPIN
	}
	return login, nil
}

func (f *fakeBackend) bind(token string, s backend.Session) {
	f.mu.Lock()
	f.sessions[token] = s
	f.mu.Unlock()
}

func (f *fakeBackend) revoke(token string) {
	f.mu.Lock()
	delete(f.sessions, token)
	f.mu.Unlock()
}

func (f *fakeBackend) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

func (f *fakeBackend) sessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessionCalls
}

// fakeFeed hands subscriptions to the test, which pushes messages through them.
type fakeFeed struct {
	mu       sync.Mutex
	handlers map[string]func(feed.Message)
	subs     map[string]feed.Subscription
	ready    chan string
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		handlers: map[string]func(feed.Message){},
		subs:     map[string]feed.Subscription{},
		ready:    make(chan string, 8),
	}
}

func (f *fakeFeed) Subscribe(ctx context.Context, _ string, sub feed.Subscription, handle func(feed.Message)) error {
	f.mu.Lock()
	f.handlers[sub.Topic] = handle
	f.subs[sub.Topic] = sub
	f.mu.Unlock()
	f.ready <- sub.Topic

	<-ctx.Done()
	f.mu.Lock()
	delete(f.handlers, sub.Topic)
	f.mu.Unlock()
	return nil
}

func (f *fakeFeed) waitSubscribed(t *testing.T, topics ...string) {
	t.Helper()
	want := map[string]bool{}
	for _, topic := range topics {
		want[topic] = true
	}
	for len(want) > 0 {
		select {
		case topic := <-f.ready:
			delete(want, topic)
		case <-time.After(5 * time.Second):
			t.Fatalf("subscriptions not established: %v", want)
		}
	}
}

func (f *fakeFeed) push(topic string, msg feed.Message) {
	f.mu.Lock()
	handle := f.handlers[topic]
	f.mu.Unlock()
	if handle != nil {
		handle(msg)
	}
}

func (f *fakeFeed) subscription(topic string) feed.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[topic]
}

func newTestTerminal(t *testing.T, b *fakeBackend, f *fakeFeed, opts ...Option) (*Terminal, *tokenstore.Store) {
	t.Helper()
	store, err := tokenstore.Open(t.TempDir())
	require.NoError(t, err)
	opts = append([]Option{
		WithHostname(func() (string, error) { return "counter-1", nil }),
		WithClock(func() time.Time { return time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC) }),
	}, opts...)
	return New(b, f, store, zerolog.Nop(), opts...), store
}

// pairedTerminal returns a terminal resolved with a stored credential for store s1.
func pairedTerminal(t *testing.T, b *fakeBackend, f *fakeFeed, role string, opts ...Option) (*Terminal, *tokenstore.Store) {
	t.Helper()
	term, store := newTestTerminal(t, b, f, opts...)
	require.NoError(t, store.Save(tokenstore.Credential{
		Token: "tok-1", DeviceID: "d1", StoreID: "s1", StoreName: "Downtown", Role: role, TenantMode: "multi",
	}))
	b.bind("tok-1", backend.Session{DeviceID: "d1", StoreID: "s1", StoreName: "Downtown", Role: role, TenantMode: "multi"})
	require.NoError(t, term.Resolve(context.Background()))
	return term, store
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 5*time.Millisecond)
}
