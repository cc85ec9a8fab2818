package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/velopos/pos/internal/auth"
	"github.com/velopos/pos/internal/model"
)

type contextKey string

const (
	deviceBindingKey contextKey = "device_binding"
	deviceTokenKey   contextKey = "device_token"
	employeeKey      contextKey = "employee_claims"
)

// DeviceResolver resolves a device token to its binding
type DeviceResolver interface {
	Resolve(ctx context.Context, token string) (model.DeviceBinding, error)
}

// DeviceToken extracts the device token from "Authorization: Device <token>".
// Realtime connections may pass it as the device_token query parameter instead.
func DeviceToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Device" {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("device_token"))
}

// DeviceAuth validates the device token, refreshes last-active and attaches the binding to context
func DeviceAuth(devices DeviceResolver, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := DeviceToken(r)
			if token == "" {
				respondWithError(w, http.StatusUnauthorized, "invalid_token")
				return
			}

			binding, err := devices.Resolve(r.Context(), token)
			if err != nil {
				if errors.Is(err, auth.ErrInvalidDeviceToken) {
					respondWithError(w, http.StatusUnauthorized, "invalid_token")
					return
				}
				logger.Error().Err(err).Msg("resolve device failed")
				respondWithError(w, http.StatusInternalServerError, "internal_error")
				return
			}

			ctx := context.WithValue(r.Context(), deviceBindingKey, binding)
			ctx = context.WithValue(ctx, deviceTokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetDevice returns the device binding attached by DeviceAuth
func GetDevice(ctx context.Context) (model.DeviceBinding, bool) {
	b, ok := ctx.Value(deviceBindingKey).(model.DeviceBinding)
	return b, ok
}

// EmployeeAuth validates the employee session JWT and attaches its claims to context
func EmployeeAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondWithError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				respondWithError(w, http.StatusUnauthorized, "missing token")
				return
			}

			claims, err := jwtService.VerifyToken(tokenString)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), employeeKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetEmployee returns the employee claims attached by EmployeeAuth
func GetEmployee(ctx context.Context) (*auth.EmployeeClaims, bool) {
	c, ok := ctx.Value(employeeKey).(*auth.EmployeeClaims)
	return c, ok
}

// RequireStoreManager allows only store managers of the store named by the {storeID} URL parameter
func RequireStoreManager(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetEmployee(r.Context())
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		storeID, err := uuid.Parse(chi.URLParam(r, "storeID"))
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid_store_id")
			return
		}

		if claims.Role != model.EmployeeRoleStoreManager || claims.StoreID != storeID {
			respondWithError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{"error": message}
	_ = json.NewEncoder(w).Encode(response)
}
