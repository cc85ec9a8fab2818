package model

import (
	"time"

	"github.com/google/uuid"
)

// Device roles
const (
	RolePOS     = "pos"
	RoleKitchen = "kitchen"
)

// Tenant operating modes
const (
	TenantModeSingle = "single"
	TenantModeMulti  = "multi"
)

// Employee roles
const (
	EmployeeRoleStaff        = "staff"
	EmployeeRoleStoreManager = "store_manager"
)

// ValidDeviceRole reports whether role is one a device can be paired as.
func ValidDeviceRole(role string) bool {
	return role == RolePOS || role == RoleKitchen
}

// Tenant represents a brand operating one or more stores
type Tenant struct {
	ID        uuid.UUID
	Name      string
	Mode      string
	Settings  StoreSettings
	CreatedAt time.Time
}

// Store represents a single shop of a tenant
type Store struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	Settings  StoreSettings
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Device represents a paired terminal bound to a store
type Device struct {
	ID           uuid.UUID
	StoreID      uuid.UUID
	Role         string
	DeviceName   string
	TokenHash    string
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// DeviceBinding is a device together with the store and tenant it is bound to
type DeviceBinding struct {
	Device     Device
	StoreName  string
	TenantID   uuid.UUID
	TenantName string
	TenantMode string
	// TenantSettings are the brand defaults, StoreSettings the per-store overrides.
	TenantSettings StoreSettings
	StoreSettings  StoreSettings
}

// PairingCode represents a one-time code used to pair a device
type PairingCode struct {
	ID               uuid.UUID
	StoreID          uuid.UUID
	Role             string
	CodeHash         string
	ExpiresAt        time.Time
	ConsumedAt       *time.Time
	ConsumedByDevice *uuid.UUID
	CreatedBy        *uuid.UUID
	CreatedAt        time.Time
}

// IsExpired reports whether the code has passed its expiry at now.
func (c PairingCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Employee represents a staff member who logs in on a paired terminal with a PIN
type Employee struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	StoreID   uuid.UUID
	Name      string
	Role      string
	PinHash   string
	Active    bool
	CreatedAt time.Time
}
