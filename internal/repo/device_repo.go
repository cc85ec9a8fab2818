package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/velopos/pos/internal/db"
	"github.com/velopos/pos/internal/model"
)

// DeviceRepo defines the interface for device repository operations
type DeviceRepo interface {
	GetBindingByTokenHash(ctx context.Context, tokenHash string) (model.DeviceBinding, error)
	Touch(ctx context.Context, deviceID uuid.UUID) error
	ExistsByTokenHash(ctx context.Context, tokenHash string) (bool, error)
	ListByStore(ctx context.Context, storeID uuid.UUID) ([]model.Device, error)
	Delete(ctx context.Context, storeID, deviceID uuid.UUID) error
}

type deviceRepo struct {
	db *sql.DB
}

// NewDeviceRepo creates a new DeviceRepo instance
func NewDeviceRepo(db *sql.DB) DeviceRepo {
	return &deviceRepo{db: db}
}

// GetBindingByTokenHash loads the device with its store and tenant for a device token hash
func (r *deviceRepo) GetBindingByTokenHash(ctx context.Context, tokenHash string) (model.DeviceBinding, error) {
	query := `
		SELECT d.id, d.store_id, d.role, d.device_name, d.token_hash, d.created_at, d.last_active_at,
		       s.name, s.settings, t.id, t.name, t.mode, t.settings
		FROM pos_devices d
		JOIN stores s ON s.id = d.store_id
		JOIN tenants t ON t.id = s.tenant_id
		WHERE d.token_hash = $1
	`

	var b model.DeviceBinding
	var storeSettings, tenantSettings []byte
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&b.Device.ID,
		&b.Device.StoreID,
		&b.Device.Role,
		&b.Device.DeviceName,
		&b.Device.TokenHash,
		&b.Device.CreatedAt,
		&b.Device.LastActiveAt,
		&b.StoreName,
		&storeSettings,
		&b.TenantID,
		&b.TenantName,
		&b.TenantMode,
		&tenantSettings,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return model.DeviceBinding{}, fmt.Errorf("device: %w", ErrNotFound)
		}
		return model.DeviceBinding{}, fmt.Errorf("query device binding: %w", err)
	}

	if err := decodeSettings(storeSettings, &b.StoreSettings); err != nil {
		return model.DeviceBinding{}, err
	}
	if err := decodeSettings(tenantSettings, &b.TenantSettings); err != nil {
		return model.DeviceBinding{}, err
	}
	return b, nil
}

// Touch sets last_active_at = now() for the device
func (r *deviceRepo) Touch(ctx context.Context, deviceID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE pos_devices SET last_active_at = now() WHERE id = $1
	`, deviceID)
	if err != nil {
		return fmt.Errorf("touch device: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("device: %w", ErrNotFound)
	}
	return nil
}

// ExistsByTokenHash reports whether a device with the token hash is still bound
func (r *deviceRepo) ExistsByTokenHash(ctx context.Context, tokenHash string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM pos_devices WHERE token_hash = $1)
	`, tokenHash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check device: %w", err)
	}
	return exists, nil
}

// ListByStore returns the devices bound to a store, most recently active first
func (r *deviceRepo) ListByStore(ctx context.Context, storeID uuid.UUID) ([]model.Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, store_id, role, device_name, created_at, last_active_at
		FROM pos_devices
		WHERE store_id = $1
		ORDER BY last_active_at DESC
	`, storeID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []model.Device
	for rows.Next() {
		var d model.Device
		if err := rows.Scan(&d.ID, &d.StoreID, &d.Role, &d.DeviceName, &d.CreatedAt, &d.LastActiveAt); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// Delete removes a device of a store. The delete fires the device-deleted notification.
func (r *deviceRepo) Delete(ctx context.Context, storeID, deviceID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM pos_devices WHERE id = $1 AND store_id = $2
	`, deviceID, storeID)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
	}
	return nil
}
