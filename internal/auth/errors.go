package auth

import "errors"

var (
	// ErrInvalidPairingCode is returned for wrong, expired or already used pairing codes.
	ErrInvalidPairingCode = errors.New("invalid pairing code")
	// ErrInvalidDeviceToken is returned when no device is bound to the presented token.
	ErrInvalidDeviceToken = errors.New("invalid device token")
	// ErrInvalidPIN is returned when no active employee of the store matches the PIN.
	ErrInvalidPIN = errors.New("invalid pin")
	// ErrInvalidRole is returned for device roles other than pos and kitchen.
	ErrInvalidRole = errors.New("invalid device role")
	// ErrRoleNotAllowed is returned when the tenant mode does not permit the role.
	ErrRoleNotAllowed = errors.New("role not allowed for tenant mode")
)
