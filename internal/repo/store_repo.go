package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/velopos/pos/internal/db"
	"github.com/velopos/pos/internal/model"
)

// StoreRepo defines the interface for tenant and store repository operations
type StoreRepo interface {
	CreateTenant(ctx context.Context, name, mode string, settings model.StoreSettings) (model.Tenant, error)
	CreateStore(ctx context.Context, tenantID uuid.UUID, name string, settings model.StoreSettings) (model.Store, error)
	GetStore(ctx context.Context, storeID uuid.UUID) (model.Store, error)
	GetTenant(ctx context.Context, tenantID uuid.UUID) (model.Tenant, error)
	MergeSettings(ctx context.Context, storeID uuid.UUID, patch model.StoreSettings) (model.StoreSettings, error)
}

type storeRepo struct {
	db *sql.DB
}

// NewStoreRepo creates a new StoreRepo instance
func NewStoreRepo(db *sql.DB) StoreRepo {
	return &storeRepo{db: db}
}

// CreateTenant inserts a tenant (brand) with its default settings
func (r *storeRepo) CreateTenant(ctx context.Context, name, mode string, settings model.StoreSettings) (model.Tenant, error) {
	raw, err := json.Marshal(settings)
	if err != nil {
		return model.Tenant{}, fmt.Errorf("encode tenant settings: %w", err)
	}

	t := model.Tenant{Name: name, Mode: mode, Settings: settings}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO tenants (name, mode, settings)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, name, mode, string(raw)).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return model.Tenant{}, fmt.Errorf("insert tenant: %w", err)
	}
	return t, nil
}

// CreateStore inserts a store under a tenant
func (r *storeRepo) CreateStore(ctx context.Context, tenantID uuid.UUID, name string, settings model.StoreSettings) (model.Store, error) {
	raw, err := json.Marshal(settings)
	if err != nil {
		return model.Store{}, fmt.Errorf("encode store settings: %w", err)
	}

	s := model.Store{TenantID: tenantID, Name: name, Settings: settings}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO stores (tenant_id, name, settings)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`, tenantID, name, string(raw)).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return model.Store{}, fmt.Errorf("insert store: %w", err)
	}
	return s, nil
}

// GetStore retrieves a store by ID
func (r *storeRepo) GetStore(ctx context.Context, storeID uuid.UUID) (model.Store, error) {
	var s model.Store
	var raw []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, settings, created_at, updated_at
		FROM stores
		WHERE id = $1
	`, storeID).Scan(&s.ID, &s.TenantID, &s.Name, &raw, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Store{}, fmt.Errorf("store %s: %w", storeID, ErrNotFound)
		}
		return model.Store{}, fmt.Errorf("query store: %w", err)
	}
	if err := decodeSettings(raw, &s.Settings); err != nil {
		return model.Store{}, err
	}
	return s, nil
}

// GetTenant retrieves a tenant by ID
func (r *storeRepo) GetTenant(ctx context.Context, tenantID uuid.UUID) (model.Tenant, error) {
	var t model.Tenant
	var raw []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, mode, settings, created_at
		FROM tenants
		WHERE id = $1
	`, tenantID).Scan(&t.ID, &t.Name, &t.Mode, &raw, &t.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Tenant{}, fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
		}
		return model.Tenant{}, fmt.Errorf("query tenant: %w", err)
	}
	if err := decodeSettings(raw, &t.Settings); err != nil {
		return model.Tenant{}, err
	}
	return t, nil
}

// MergeSettings overlays patch onto the stored settings of a store and returns the result.
// The row is locked for the read-modify-write; the update fires the settings-changed notification.
func (r *storeRepo) MergeSettings(ctx context.Context, storeID uuid.UUID, patch model.StoreSettings) (model.StoreSettings, error) {
	var merged model.StoreSettings
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var raw []byte
		err := tx.QueryRowContext(ctx, `SELECT settings FROM stores WHERE id = $1 FOR UPDATE`, storeID).Scan(&raw)
		if err != nil {
			if db.IsNoRows(err) {
				return fmt.Errorf("store %s: %w", storeID, ErrNotFound)
			}
			return fmt.Errorf("lock store: %w", err)
		}

		var current model.StoreSettings
		if err := decodeSettings(raw, &current); err != nil {
			return err
		}
		merged = current.Overlay(patch)

		out, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("encode store settings: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE stores SET settings = $2, updated_at = now() WHERE id = $1
		`, storeID, string(out)); err != nil {
			return fmt.Errorf("update store settings: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.StoreSettings{}, err
	}
	return merged, nil
}

func decodeSettings(raw []byte, dst *model.StoreSettings) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	return nil
}
