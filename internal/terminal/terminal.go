// Package terminal is the runtime of a paired POS or kitchen terminal: pairing, session
// resolution, heartbeat, realtime settings and revocation, and the order submission gate.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/velopos/pos/internal/model"
	"github.com/velopos/pos/internal/terminal/backend"
	"github.com/velopos/pos/internal/terminal/feed"
	"github.com/velopos/pos/internal/terminal/settings"
	"github.com/velopos/pos/internal/terminal/tokenstore"
)

// DefaultHeartbeatInterval is used when no interval is configured
const DefaultHeartbeatInterval = 30 * time.Second

var (
	// ErrNotPaired is returned by operations that need a device credential
	ErrNotPaired = errors.New("terminal is not paired")
	// ErrNoEmployee is returned by operations that need a logged in employee
	ErrNoEmployee = errors.New("no employee logged in")
	// ErrTableRequired is returned when a dine-in order has no table number
	ErrTableRequired = errors.New("table number required for dine-in")
	// ErrLoggedOut is returned by Run when the session ended with a forced logout or unbind
	ErrLoggedOut = errors.New("device session ended")
)

// Backend is the subset of the API the terminal calls
type Backend interface {
	Pair(ctx context.Context, code, deviceName string) (backend.Pairing, error)
	Session(ctx context.Context, token string) (backend.Session, error)
	Check(ctx context.Context, token string) (bool, error)
	StoreConfig(ctx context.Context, token string) (backend.StoreConfig, error)
	EmployeeLogin(ctx context.Context, token, pin string) (backend.EmployeeLogin, error)
}

// Feed subscribes to realtime topics
type Feed interface {
	Subscribe(ctx context.Context, token string, sub feed.Subscription, handle func(feed.Message)) error
}

// Screen is the top-level state of the terminal
type Screen int

const (
	ScreenLoading Screen = iota
	ScreenPairing
	ScreenEmployeeLogin
	ScreenPOS
	ScreenKitchen
)

func (s Screen) String() string {
	switch s {
	case ScreenLoading:
		return "loading"
	case ScreenPairing:
		return "pairing"
	case ScreenEmployeeLogin:
		return "employee_login"
	case ScreenPOS:
		return "pos"
	case ScreenKitchen:
		return "kitchen"
	}
	return fmt.Sprintf("screen(%d)", int(s))
}

// Connectivity is the last known reachability of the backend
type Connectivity string

const (
	ConnectivityUnknown Connectivity = "unknown"
	ConnectivityOnline  Connectivity = "online"
	ConnectivityOffline Connectivity = "offline"
)

// Option configures a Terminal
type Option func(*Terminal)

// WithHeartbeatInterval sets the heartbeat period
func WithHeartbeatInterval(d time.Duration) Option {
	return func(t *Terminal) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(t *Terminal) { t.now = now }
}

// WithHostname replaces os.Hostname for the device descriptor
func WithHostname(hostname func() (string, error)) Option {
	return func(t *Terminal) { t.hostname = hostname }
}

// Terminal holds the device session of one terminal
type Terminal struct {
	backend  Backend
	feed     Feed
	store    *tokenstore.Store
	settings *settings.Reconciler
	logger   zerolog.Logger
	notices  chan Notice

	interval time.Duration
	now      func() time.Time
	hostname func() (string, error)

	mu           sync.Mutex
	screen       Screen
	paired       bool
	cred         tokenstore.Credential
	employee     *tokenstore.EmployeeSession
	connectivity Connectivity
	endSession   context.CancelFunc
}

// New creates a terminal in the loading state
func New(b Backend, f Feed, store *tokenstore.Store, logger zerolog.Logger, opts ...Option) *Terminal {
	t := &Terminal{
		backend:      b,
		feed:         f,
		store:        store,
		settings:     settings.NewReconciler(),
		logger:       logger,
		notices:      make(chan Notice, noticeBuffer),
		interval:     DefaultHeartbeatInterval,
		now:          time.Now,
		hostname:     os.Hostname,
		screen:       ScreenLoading,
		connectivity: ConnectivityUnknown,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Settings returns the settings reconciler of this terminal
func (t *Terminal) Settings() *settings.Reconciler {
	return t.settings
}

// Screen returns the current screen
func (t *Terminal) Screen() Screen {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.screen
}

// Connectivity returns the result of the last backend contact
func (t *Terminal) Connectivity() Connectivity {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connectivity
}

// Credential returns the device credential, if paired
func (t *Terminal) Credential() (tokenstore.Credential, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cred, t.paired
}

// Employee returns the logged in employee, if any
func (t *Terminal) Employee() (tokenstore.EmployeeSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.employee == nil {
		return tokenstore.EmployeeSession{}, false
	}
	return *t.employee, true
}

// DeviceDescriptor names a device as "<os>/<arch> <hostname> <date>"
func DeviceDescriptor(hostname string, now time.Time) string {
	if hostname == "" {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s/%s %s %s", runtime.GOOS, runtime.GOARCH, hostname, now.Format("2006-01-02"))
}

// ValidCode reports whether code is exactly six ASCII digits
func ValidCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// Pair exchanges a pairing code for a device credential and persists it.
// A rejected code leaves the terminal untouched.
func (t *Terminal) Pair(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if !ValidCode(code) {
		return backend.ErrInvalidCodeFormat
	}

	host, _ := t.hostname()
	now := t.now()
	name := DeviceDescriptor(host, now)
	p, err := t.backend.Pair(ctx, code, name)
	if err != nil {
		if errors.Is(err, backend.ErrInvalidPairingCode) {
			return err
		}
		return fmt.Errorf("pair device: %w", err)
	}

	cred := tokenstore.Credential{
		Token:      p.DeviceToken,
		DeviceID:   p.DeviceID,
		StoreID:    p.StoreID,
		StoreName:  p.StoreName,
		Role:       p.Role,
		TenantMode: p.TenantMode,
		DeviceName: name,
		PairedAt:   now,
	}
	if err := t.store.Save(cred); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}

	t.settings.Reset()
	t.mu.Lock()
	t.cred = cred
	t.paired = true
	t.employee = nil
	t.screen = ScreenEmployeeLogin
	t.connectivity = ConnectivityOnline
	t.mu.Unlock()

	t.logger.Info().
		Str("device_id", cred.DeviceID).
		Str("store_id", cred.StoreID).
		Str("role", cred.Role).
		Msg("device paired")
	return nil
}

// Resolve validates the stored credential on start. Without a usable credential the terminal
// goes to pairing. A transient backend failure returns an error and keeps the credential.
func (t *Terminal) Resolve(ctx context.Context) error {
	cred, err := t.store.Load()
	if err != nil {
		if errors.Is(err, tokenstore.ErrNotFound) ||
			errors.Is(err, tokenstore.ErrUnsupportedVersion) ||
			errors.Is(err, tokenstore.ErrCorrupt) {
			if !errors.Is(err, tokenstore.ErrNotFound) {
				t.logger.Warn().Err(err).Msg("stored credential unusable, pairing required")
			}
			t.setScreen(ScreenPairing)
			return nil
		}
		return fmt.Errorf("load credential: %w", err)
	}

	t.mu.Lock()
	t.cred = cred
	t.paired = true
	t.mu.Unlock()

	s, err := t.backend.Session(ctx, cred.Token)
	if err != nil {
		if errors.Is(err, backend.ErrInvalidToken) {
			t.ForceLogout(ReasonRevoked)
			return nil
		}
		t.setConnectivity(ConnectivityOffline)
		return fmt.Errorf("resolve session: %w", err)
	}

	cred.StoreName = s.StoreName
	cred.Role = s.Role
	cred.TenantMode = s.TenantMode
	cred.LastActiveAt = t.now()
	t.seedSettings(ctx, cred.Token, s.StoreSettings)
	if err := t.store.Save(cred); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}

	screen := ScreenEmployeeLogin
	var employee *tokenstore.EmployeeSession
	if e, err := t.store.LoadEmployee(); err == nil {
		if e.ExpiresAt.IsZero() || e.ExpiresAt.After(t.now()) {
			employee = &e
			screen = roleScreen(cred.Role)
		} else {
			_ = t.store.ClearEmployee()
		}
	}

	t.mu.Lock()
	t.cred = cred
	t.employee = employee
	t.screen = screen
	t.connectivity = ConnectivityOnline
	t.mu.Unlock()

	t.logger.Info().
		Str("device_id", cred.DeviceID).
		Str("store", cred.StoreName).
		Str("screen", screen.String()).
		Msg("device session resolved")
	return nil
}

// seedSettings runs the initial settings fetch. If it fails the session settings are used alone.
func (t *Terminal) seedSettings(ctx context.Context, token string, fallback model.StoreSettings) {
	cfg, err := t.backend.StoreConfig(ctx, token)
	if err != nil {
		t.logger.Warn().Err(err).Msg("initial settings fetch failed")
		t.settings.Seed(model.StoreSettings{}, fallback)
		return
	}
	t.settings.Seed(cfg.TenantSettings, cfg.StoreSettings)
}

// Unbind removes the device credential on request of the operator
func (t *Terminal) Unbind() error {
	if err := t.store.Clear(); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	t.endLocalSession()
	t.logger.Info().Msg("device unbound locally")
	return nil
}

// LoginEmployee verifies pin and opens the screen of the device role
func (t *Terminal) LoginEmployee(ctx context.Context, pin string) error {
	cred, ok := t.Credential()
	if !ok {
		return ErrNotPaired
	}
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return backend.ErrInvalidPIN
	}

	login, err := t.backend.EmployeeLogin(ctx, cred.Token, pin)
	if err != nil {
		switch {
		case errors.Is(err, backend.ErrInvalidPIN):
			return err
		case errors.Is(err, backend.ErrInvalidToken):
			t.ForceLogout(ReasonRevoked)
			return err
		}
		return fmt.Errorf("employee login: %w", err)
	}

	e := tokenstore.EmployeeSession{
		EmployeeID: login.Employee.ID,
		Name:       login.Employee.Name,
		Role:       login.Employee.Role,
		StoreID:    login.Employee.StoreID,
		TenantID:   login.Employee.TenantID,
		Token:      login.SessionToken,
		ExpiresAt:  login.ExpiresAt,
	}
	if err := t.store.SaveEmployee(e); err != nil {
		return fmt.Errorf("save employee session: %w", err)
	}

	t.mu.Lock()
	t.employee = &e
	t.screen = roleScreen(cred.Role)
	t.mu.Unlock()

	t.logger.Info().Str("employee_id", e.EmployeeID).Str("role", e.Role).Msg("employee logged in")
	return nil
}

// LogoutEmployee ends the employee session and returns to the PIN screen
func (t *Terminal) LogoutEmployee() error {
	if err := t.store.ClearEmployee(); err != nil {
		return fmt.Errorf("clear employee session: %w", err)
	}
	t.mu.Lock()
	t.employee = nil
	if t.paired {
		t.screen = ScreenEmployeeLogin
	}
	t.mu.Unlock()
	return nil
}

func (t *Terminal) setScreen(s Screen) {
	t.mu.Lock()
	t.screen = s
	t.mu.Unlock()
}

func (t *Terminal) setConnectivity(c Connectivity) {
	t.mu.Lock()
	prev := t.connectivity
	t.connectivity = c
	t.mu.Unlock()
	if prev != c {
		t.logger.Info().Str("connectivity", string(c)).Msg("connectivity changed")
	}
}

func roleScreen(role string) Screen {
	if role == model.RoleKitchen {
		return ScreenKitchen
	}
	return ScreenPOS
}
