package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/velopos/pos/internal/auth"
	"github.com/velopos/pos/internal/middleware"
	"github.com/velopos/pos/internal/model"
	"github.com/velopos/pos/internal/repo"
)

// PairingCodeIssuer generates pairing codes
type PairingCodeIssuer interface {
	Generate(ctx context.Context, storeID uuid.UUID, role string, createdBy *uuid.UUID) (string, model.PairingCode, error)
}

// DeviceManager lists and revokes devices of a store
type DeviceManager interface {
	List(ctx context.Context, storeID uuid.UUID) ([]model.Device, error)
	Revoke(ctx context.Context, storeID, deviceID uuid.UUID) error
}

// SettingsUpdater merges a partial settings document into a store
type SettingsUpdater interface {
	MergeSettings(ctx context.Context, storeID uuid.UUID, patch model.StoreSettings) (model.StoreSettings, error)
}

// AdminHandler handles the back-office endpoints for store managers
type AdminHandler struct {
	pairing  PairingCodeIssuer
	devices  DeviceManager
	settings SettingsUpdater
	logger   zerolog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(pairing PairingCodeIssuer, devices DeviceManager, settings SettingsUpdater, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		pairing:  pairing,
		devices:  devices,
		settings: settings,
		logger:   logger,
	}
}

type createPairingCodeRequest struct {
	Role string `json:"role"`
}

type pairingCodeResponse struct {
	Code      string    `json:"code"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

type deviceResponse struct {
	ID           string    `json:"id"`
	Role         string    `json:"role"`
	DeviceName   string    `json:"device_name"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// HandleCreatePairingCode handles POST /admin/stores/{storeID}/pairing-codes
func (h *AdminHandler) HandleCreatePairingCode(w http.ResponseWriter, r *http.Request) {
	storeID, ok := uuidParam(w, r, "storeID")
	if !ok {
		return
	}

	var req createPairingCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var createdBy *uuid.UUID
	if claims, ok := middleware.GetEmployee(r.Context()); ok {
		if id, err := claims.EmployeeID(); err == nil {
			createdBy = &id
		}
	}

	code, pc, err := h.pairing.Generate(r.Context(), storeID, req.Role, createdBy)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidRole):
			respondWithError(w, http.StatusBadRequest, "invalid_role")
		case errors.Is(err, auth.ErrRoleNotAllowed):
			respondWithError(w, http.StatusBadRequest, "role_not_allowed")
		case errors.Is(err, repo.ErrNotFound):
			respondWithError(w, http.StatusNotFound, "not_found")
		default:
			h.logger.Error().Err(err).Str("store_id", storeID.String()).Msg("generate pairing code failed")
			respondWithError(w, http.StatusInternalServerError, "internal_error")
		}
		return
	}

	h.logger.Info().Str("store_id", storeID.String()).Str("role", pc.Role).Time("expires_at", pc.ExpiresAt).Msg("pairing code issued")
	respondJSON(w, http.StatusCreated, pairingCodeResponse{Code: code, Role: pc.Role, ExpiresAt: pc.ExpiresAt})
}

// HandleListDevices handles GET /admin/stores/{storeID}/devices
func (h *AdminHandler) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	storeID, ok := uuidParam(w, r, "storeID")
	if !ok {
		return
	}

	devices, err := h.devices.List(r.Context(), storeID)
	if err != nil {
		h.logger.Error().Err(err).Msg("list devices failed")
		respondWithError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	out := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, deviceResponse{
			ID:           d.ID.String(),
			Role:         d.Role,
			DeviceName:   d.DeviceName,
			CreatedAt:    d.CreatedAt,
			LastActiveAt: d.LastActiveAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string][]deviceResponse{"devices": out})
}

// HandleRevokeDevice handles DELETE /admin/stores/{storeID}/devices/{deviceID}
func (h *AdminHandler) HandleRevokeDevice(w http.ResponseWriter, r *http.Request) {
	storeID, ok := uuidParam(w, r, "storeID")
	if !ok {
		return
	}
	deviceID, ok := uuidParam(w, r, "deviceID")
	if !ok {
		return
	}

	if err := h.devices.Revoke(r.Context(), storeID, deviceID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "not_found")
			return
		}
		h.logger.Error().Err(err).Msg("revoke device failed")
		respondWithError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	h.logger.Info().Str("store_id", storeID.String()).Str("device_id", deviceID.String()).Msg("device revoked")
	w.WriteHeader(http.StatusNoContent)
}

// HandleUpdateSettings handles PATCH /admin/stores/{storeID}/settings. Only the fields present
// in the body change.
func (h *AdminHandler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	storeID, ok := uuidParam(w, r, "storeID")
	if !ok {
		return
	}

	var patch model.StoreSettings
	if !decodeJSON(w, r, &patch) {
		return
	}
	if err := validateSettings(patch); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	merged, err := h.settings.MergeSettings(r.Context(), storeID, patch)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "not_found")
			return
		}
		h.logger.Error().Err(err).Msg("update settings failed")
		respondWithError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	respondJSON(w, http.StatusOK, merged)
}

func validateSettings(s model.StoreSettings) error {
	if s.ServiceChargePercent != nil && (*s.ServiceChargePercent < 0 || *s.ServiceChargePercent > 100) {
		return errors.New("invalid_service_charge_percent")
	}
	if k := s.KDS; k != nil {
		if k.OverdueMinutes != nil && *k.OverdueMinutes < 1 {
			return errors.New("invalid_overdue_minutes")
		}
		if k.AutoClearCompletedMinutes != nil && *k.AutoClearCompletedMinutes < 0 {
			return errors.New("invalid_auto_clear_completed_minutes")
		}
	}
	return nil
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_id")
		return uuid.Nil, false
	}
	return id, true
}
