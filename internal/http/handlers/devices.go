package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/velopos/pos/internal/auth"
	"github.com/velopos/pos/internal/log"
	"github.com/velopos/pos/internal/middleware"
	"github.com/velopos/pos/internal/model"
)

// PairingExchanger exchanges pairing codes for device tokens
type PairingExchanger interface {
	Exchange(ctx context.Context, code, deviceName string) (string, model.DeviceBinding, error)
}

// TokenChecker reports whether a device token is still bound
type TokenChecker interface {
	Check(ctx context.Context, token string) (bool, error)
}

// EmployeeAuthenticator verifies employee PINs
type EmployeeAuthenticator interface {
	Login(ctx context.Context, storeID uuid.UUID, pin string) (model.Employee, string, time.Time, error)
}

// DeviceHandler handles the endpoints used by paired terminals
type DeviceHandler struct {
	pairing   PairingExchanger
	tokens    TokenChecker
	employees EmployeeAuthenticator
	logger    zerolog.Logger
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(pairing PairingExchanger, tokens TokenChecker, employees EmployeeAuthenticator, logger zerolog.Logger) *DeviceHandler {
	return &DeviceHandler{
		pairing:   pairing,
		tokens:    tokens,
		employees: employees,
		logger:    logger,
	}
}

// pairRequest is the request body for POST /devices/pair
type pairRequest struct {
	Code       string `json:"code"`
	DeviceName string `json:"device_name"`
}

// pairResponse is the JSON response for pair
type pairResponse struct {
	DeviceToken string `json:"device_token"`
	DeviceID    string `json:"device_id"`
	StoreID     string `json:"store_id"`
	StoreName   string `json:"store_name"`
	Role        string `json:"role"`
	TenantMode  string `json:"tenant_mode"`
}

// sessionResponse is the JSON response for POST /devices/session
type sessionResponse struct {
	DeviceID      string              `json:"device_id"`
	StoreID       string              `json:"store_id"`
	StoreName     string              `json:"store_name"`
	Role          string              `json:"role"`
	TenantMode    string              `json:"tenant_mode"`
	StoreSettings model.StoreSettings `json:"store_settings"`
}

// settingsResponse is the JSON response for GET /devices/settings
type settingsResponse struct {
	TenantName     string              `json:"tenant_name"`
	TenantMode     string              `json:"tenant_mode"`
	StoreName      string              `json:"store_name"`
	TenantSettings model.StoreSettings `json:"tenant_settings"`
	StoreSettings  model.StoreSettings `json:"store_settings"`
}

// employeeLoginRequest is the request body for POST /devices/employees/login
type employeeLoginRequest struct {
	PIN string `json:"pin"`
}

type employeeResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	StoreID  string `json:"store_id"`
	TenantID string `json:"tenant_id"`
}

type employeeLoginResponse struct {
	Employee     employeeResponse `json:"employee"`
	SessionToken string           `json:"session_token"`
	ExpiresAt    time.Time        `json:"expires_at"`
}

// HandlePair handles POST /devices/pair
func (h *DeviceHandler) HandlePair(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, binding, err := h.pairing.Exchange(r.Context(), req.Code, strings.TrimSpace(req.DeviceName))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidPairingCode) {
			respondWithError(w, http.StatusUnauthorized, "invalid_code")
			return
		}
		h.logger.Error().Err(err).Msg("pairing exchange failed")
		respondWithError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	h.logger.Info().
		Str("device_id", binding.Device.ID.String()).
		Str("store_id", binding.Device.StoreID.String()).
		Str("role", binding.Device.Role).
		Str("token", log.MaskToken(token)).
		Msg("device paired")

	respondJSON(w, http.StatusOK, pairResponse{
		DeviceToken: token,
		DeviceID:    binding.Device.ID.String(),
		StoreID:     binding.Device.StoreID.String(),
		StoreName:   binding.StoreName,
		Role:        binding.Device.Role,
		TenantMode:  binding.TenantMode,
	})
}

// HandleSession handles POST /devices/session. DeviceAuth has already refreshed last-active.
func (h *DeviceHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	binding, ok := middleware.GetDevice(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	respondJSON(w, http.StatusOK, sessionResponse{
		DeviceID:      binding.Device.ID.String(),
		StoreID:       binding.Device.StoreID.String(),
		StoreName:     binding.StoreName,
		Role:          binding.Device.Role,
		TenantMode:    binding.TenantMode,
		StoreSettings: binding.StoreSettings,
	})
}

// HandleCheck handles GET /devices/check
func (h *DeviceHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	valid, err := h.tokens.Check(r.Context(), middleware.DeviceToken(r))
	if err != nil {
		h.logger.Error().Err(err).Msg("device check failed")
		respondWithError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

// HandleSettings handles GET /devices/settings
func (h *DeviceHandler) HandleSettings(w http.ResponseWriter, r *http.Request) {
	binding, ok := middleware.GetDevice(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	respondJSON(w, http.StatusOK, settingsResponse{
		TenantName:     binding.TenantName,
		TenantMode:     binding.TenantMode,
		StoreName:      binding.StoreName,
		TenantSettings: binding.TenantSettings,
		StoreSettings:  binding.StoreSettings,
	})
}

// HandleEmployeeLogin handles POST /devices/employees/login
func (h *DeviceHandler) HandleEmployeeLogin(w http.ResponseWriter, r *http.Request) {
	binding, ok := middleware.GetDevice(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	var req employeeLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	employee, token, expiresAt, err := h.employees.Login(r.Context(), binding.Device.StoreID, strings.TrimSpace(req.PIN))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidPIN) {
			respondWithError(w, http.StatusUnauthorized, "invalid_pin")
			return
		}
		h.logger.Error().Err(err).Msg("employee login failed")
		respondWithError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	respondJSON(w, http.StatusOK, employeeLoginResponse{
		Employee: employeeResponse{
			ID:       employee.ID.String(),
			Name:     employee.Name,
			Role:     employee.Role,
			StoreID:  employee.StoreID.String(),
			TenantID: employee.TenantID.String(),
		},
		SessionToken: token,
		ExpiresAt:    expiresAt,
	})
}
