package tests

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/velopos/pos/internal/auth"
	"github.com/velopos/pos/internal/db"
	httphandler "github.com/velopos/pos/internal/http"
	"github.com/velopos/pos/internal/http/handlers"
	"github.com/velopos/pos/internal/middleware"
	"github.com/velopos/pos/internal/realtime"
	"github.com/velopos/pos/internal/repo"
)

const (
	testJWTSecret   = "test-jwt-secret-at-least-32-characters-long"
	testPairingSalt = "test-pairing-salt"
)

// testEnv is the full backend on an httptest server, including the realtime listener
type testEnv struct {
	Server     *httptest.Server
	DB         *sql.DB
	Hub        *realtime.Hub
	Stores     repo.StoreRepo
	Pairing    *auth.PairingService
	Fixture    Fixture
	AdminToken string
}

func newTestEnv(t *testing.T, mode string) *testEnv {
	t.Helper()
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	database, err := db.Open(ctx, databaseURL, zerolog.Nop())
	require.NoError(t, err, "database open must succeed; check DATABASE_URL and that test DB exists")
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database), "migrations must run successfully")
	require.NoError(t, TruncateTables(ctx, database))

	storeRepo := repo.NewStoreRepo(database)
	deviceRepo := repo.NewDeviceRepo(database)
	pairingRepo := repo.NewPairingRepo(database)
	employeeRepo := repo.NewEmployeeRepo(database)

	jwtService := auth.NewJWTService(testJWTSecret, time.Hour)
	pairingService := auth.NewPairingService(pairingRepo, storeRepo, deviceRepo, testPairingSalt, 10*time.Minute)
	deviceService := auth.NewDeviceService(deviceRepo)
	employeeService := auth.NewEmployeeService(employeeRepo, jwtService)

	fixture, err := Seed(ctx, storeRepo, employeeService, mode)
	require.NoError(t, err)
	adminToken, _, err := jwtService.SignEmployeeToken(fixture.Manager)
	require.NoError(t, err)

	hub := realtime.NewHub(zerolog.Nop())
	listener := realtime.NewListener(databaseURL, hub, zerolog.Nop())
	go func() { _ = listener.Run(ctx) }()

	router := httphandler.NewRouter(httphandler.RouterDeps{
		Devices:     handlers.NewDeviceHandler(pairingService, deviceService, employeeService, zerolog.Nop()),
		Admin:       handlers.NewAdminHandler(pairingService, deviceService, storeRepo, zerolog.Nop()),
		Health:      handlers.NewHealthHandler(database),
		Realtime:    realtime.NewHandler(hub, deviceService, zerolog.Nop()),
		DeviceAuth:  deviceService,
		JWT:         jwtService,
		PairLimiter: middleware.NewRateLimiter(ctx, time.Minute, 1000),
		PINLimiter:  middleware.NewRateLimiter(ctx, time.Minute, 1000),
		Logger:      zerolog.Nop(),
	})
	server := httptest.NewServer(realtime.ClearDeadlines(realtime.Prefix, router))
	t.Cleanup(server.Close)

	return &testEnv{
		Server:     server,
		DB:         database,
		Hub:        hub,
		Stores:     storeRepo,
		Pairing:    pairingService,
		Fixture:    fixture,
		AdminToken: adminToken,
	}
}

func (e *testEnv) adminURL(path string) string {
	return e.Server.URL + "/admin/stores/" + e.Fixture.Store.ID.String() + path
}

// admin sends a store manager request and decodes the JSON response into out, if given
func (e *testEnv) admin(t *testing.T, method, path string, body, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.adminURL(path), reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+e.AdminToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *testEnv) pairingCode(t *testing.T, role string) string {
	t.Helper()
	var out struct {
		Code string `json:"code"`
	}
	require.Equal(t, http.StatusCreated, e.admin(t, http.MethodPost, "/pairing-codes", map[string]string{"role": role}, &out))
	require.Len(t, out.Code, 6)
	return out.Code
}

func (e *testEnv) deviceIDs(t *testing.T) []string {
	t.Helper()
	var out struct {
		Devices []struct {
			ID string `json:"id"`
		} `json:"devices"`
	}
	require.Equal(t, http.StatusOK, e.admin(t, http.MethodGet, "/devices", nil, &out))
	ids := make([]string, 0, len(out.Devices))
	for _, d := range out.Devices {
		ids = append(ids, d.ID)
	}
	return ids
}

