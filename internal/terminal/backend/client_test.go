package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, 2*time.Second)
}

func TestClient_Pair(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/devices/pair", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["code"] != "123456" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_code"}`))
			return
		}
		assert.Equal(t, "counter", body["device_name"])
		_, _ = w.Write([]byte(`{"device_token":"tok","device_id":"d1","store_id":"s1","store_name":"Downtown","role":"pos","tenant_mode":"single"}`))
	})

	p, err := c.Pair(context.Background(), "123456", "counter")
	require.NoError(t, err)
	assert.Equal(t, Pairing{DeviceToken: "tok", DeviceID: "d1", StoreID: "s1", StoreName: "Downtown", Role: "pos", TenantMode: "single"}, p)

	_, err = c.Pair(context.Background(), "999999", "counter")
	assert.ErrorIs(t, err, ErrInvalidPairingCode)
}

func TestClient_SessionAndErrors(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Device good":
			_, _ = w.Write([]byte(`{"device_id":"d1","store_id":"s1","store_name":"Downtown","role":"kitchen","tenant_mode":"multi","store_settings":{"is_open":false}}`))
		case "Device boom":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
		}
	})

	s, err := c.Session(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "kitchen", s.Role)
	require.NotNil(t, s.StoreSettings.IsOpen)
	assert.False(t, *s.StoreSettings.IsOpen)
	assert.Nil(t, s.StoreSettings.AllowDineIn)

	_, err = c.Session(context.Background(), "revoked")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = c.Session(context.Background(), "boom")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.NotErrorIs(t, err, ErrInvalidToken)
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, time.Second).Session(context.Background(), "tok")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidToken)
}

func TestClient_CheckAndStoreConfig(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/devices/check":
			_, _ = w.Write([]byte(`{"valid":true}`))
		case "/devices/settings":
			_, _ = w.Write([]byte(`{"tenant_name":"Nova","tenant_mode":"multi","store_name":"Downtown","tenant_settings":{"service_charge_percent":5},"store_settings":{"service_charge_percent":10}}`))
		default:
			http.NotFound(w, r)
		}
	})

	ok, err := c.Check(context.Background(), "tok")
	require.NoError(t, err)
	assert.True(t, ok)

	cfg, err := c.StoreConfig(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, 5.0, *cfg.TenantSettings.ServiceChargePercent)
	assert.Equal(t, 10.0, *cfg.StoreSettings.ServiceChargePercent)
}

func TestClient_EmployeeLogin(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["pin"] != "1234" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_pin"}`))
			return
		}
		_, _ = w.Write([]byte(`{"employee":{"id":"e1","name":"Ana","role":"staff","store_id":"s1","tenant_id":"t1"},"session_token":"jwt","expires_at":"2026-10-14T20:00:00Z"}`))
	})

	login, err := c.EmployeeLogin(context.Background(), "tok", "1234")
	require.NoError(t, err)
	assert.Equal(t, "Ana", login.Employee.Name)
	assert.Equal(t, "jwt", login.SessionToken)

	_, err = c.EmployeeLogin(context.Background(), "tok", "0000")
	assert.ErrorIs(t, err, ErrInvalidPIN)
}
