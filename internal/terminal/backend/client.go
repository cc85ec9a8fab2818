// Package backend is the terminal's HTTP client for the VeloPOS API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/velopos/pos/internal/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	// ErrInvalidPairingCode is returned for wrong, expired or already used codes.
	ErrInvalidPairingCode = errors.New("invalid or expired pairing code")
	// ErrInvalidCodeFormat is returned before any request when the code is not six digits.
	ErrInvalidCodeFormat = errors.New("pairing code must be 6 digits")
	// ErrInvalidToken means the device credential was revoked or never existed.
	ErrInvalidToken = errors.New("device token rejected")
	// ErrInvalidPIN is returned when no employee matches the PIN.
	ErrInvalidPIN = errors.New("invalid pin")
)

// APIError is any other non-2xx response
type APIError struct {
	Status int
	Code   string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Code)
}

// Pairing is the result of exchanging a pairing code
type Pairing struct {
	DeviceToken string `json:"device_token"`
	DeviceID    string `json:"device_id"`
	StoreID     string `json:"store_id"`
	StoreName   string `json:"store_name"`
	Role        string `json:"role"`
	TenantMode  string `json:"tenant_mode"`
}

// Session is the result of resolving a device session
type Session struct {
	DeviceID      string              `json:"device_id"`
	StoreID       string              `json:"store_id"`
	StoreName     string              `json:"store_name"`
	Role          string              `json:"role"`
	TenantMode    string              `json:"tenant_mode"`
	StoreSettings model.StoreSettings `json:"store_settings"`
}

// StoreConfig is the initial settings fetch: tenant defaults plus store overrides
type StoreConfig struct {
	TenantName     string              `json:"tenant_name"`
	TenantMode     string              `json:"tenant_mode"`
	StoreName      string              `json:"store_name"`
	TenantSettings model.StoreSettings `json:"tenant_settings"`
	StoreSettings  model.StoreSettings `json:"store_settings"`
}

// Employee is the employee returned by a PIN login
type Employee struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	StoreID  string `json:"store_id"`
	TenantID string `json:"tenant_id"`
}

// EmployeeLogin is the result of a PIN login
type EmployeeLogin struct {
	Employee     Employee  `json:"employee"`
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Client calls the device endpoints of the API
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for baseURL. Requests are traced through otelhttp.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// BaseURL returns the API base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Pair exchanges a pairing code for a device credential
func (c *Client) Pair(ctx context.Context, code, deviceName string) (Pairing, error) {
	var out Pairing
	body := map[string]string{"code": code, "device_name": deviceName}
	if err := c.do(ctx, http.MethodPost, "/devices/pair", "", body, &out); err != nil {
		return Pairing{}, err
	}
	return out, nil
}

// Session resolves the device session for token and refreshes last-active server side
func (c *Client) Session(ctx context.Context, token string) (Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodPost, "/devices/session", token, nil, &out); err != nil {
		return Session{}, err
	}
	return out, nil
}

// Check reports whether token is still bound to a device
func (c *Client) Check(ctx context.Context, token string) (bool, error) {
	var out struct {
		Valid bool `json:"valid"`
	}
	if err := c.do(ctx, http.MethodGet, "/devices/check", token, nil, &out); err != nil {
		return false, err
	}
	return out.Valid, nil
}

// StoreConfig fetches tenant defaults and store overrides
func (c *Client) StoreConfig(ctx context.Context, token string) (StoreConfig, error) {
	var out StoreConfig
	if err := c.do(ctx, http.MethodGet, "/devices/settings", token, nil, &out); err != nil {
		return StoreConfig{}, err
	}
	return out, nil
}

// EmployeeLogin verifies an employee PIN on this device
func (c *Client) EmployeeLogin(ctx context.Context, token, pin string) (EmployeeLogin, error) {
	var out EmployeeLogin
	if err := c.do(ctx, http.MethodPost, "/devices/employees/login", token, map[string]string{"pin": pin}, &out); err != nil {
		return EmployeeLogin{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Device "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)

	if resp.StatusCode == http.StatusUnauthorized {
		switch body.Error {
		case "invalid_code":
			return ErrInvalidPairingCode
		case "invalid_token":
			return ErrInvalidToken
		case "invalid_pin":
			return ErrInvalidPIN
		}
	}
	return &APIError{Status: resp.StatusCode, Code: body.Error}
}
