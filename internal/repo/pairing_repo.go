package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/velopos/pos/internal/db"
	"github.com/velopos/pos/internal/model"
)

// PairingRepo defines the interface for pairing code repository operations
type PairingRepo interface {
	Create(ctx context.Context, storeID uuid.UUID, role, codeHash string, expiresAt time.Time, createdBy *uuid.UUID) (model.PairingCode, error)
	Exchange(ctx context.Context, codeHash, deviceName, tokenHash string) (model.Device, error)
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

type pairingRepo struct {
	db *sql.DB
}

// NewPairingRepo creates a new PairingRepo instance
func NewPairingRepo(db *sql.DB) PairingRepo {
	return &pairingRepo{db: db}
}

// Create stores a new pairing code. Expired live rows with the same hash are retired first;
// if an unexpired live code with the same hash exists, ErrCodeCollision is returned and the
// caller should generate another code.
func (r *pairingRepo) Create(ctx context.Context, storeID uuid.UUID, role, codeHash string, expiresAt time.Time, createdBy *uuid.UUID) (model.PairingCode, error) {
	code := model.PairingCode{
		StoreID:   storeID,
		Role:      role,
		CodeHash:  codeHash,
		ExpiresAt: expiresAt,
		CreatedBy: createdBy,
	}

	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		// Serialize concurrent generation of the same hash.
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(2, hashtext($1))`, codeHash); err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE pairing_codes
			SET consumed_at = now()
			WHERE code_hash = $1 AND consumed_at IS NULL AND expires_at <= now()
		`, codeHash); err != nil {
			return fmt.Errorf("retire expired codes: %w", err)
		}

		err := tx.QueryRowContext(ctx, `
			INSERT INTO pairing_codes (store_id, role, code_hash, expires_at, created_by)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at
		`, storeID, role, codeHash, expiresAt, createdBy).Scan(&code.ID, &code.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrCodeCollision
			}
			return fmt.Errorf("insert pairing code: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.PairingCode{}, err
	}
	return code, nil
}

// Exchange consumes the live, unexpired code with the given hash and creates a device bound to
// the code's store and role in the same transaction. Returns ErrNotFound if no such code exists,
// so an invalid, expired or already used code is indistinguishable to the caller.
func (r *pairingRepo) Exchange(ctx context.Context, codeHash, deviceName, tokenHash string) (model.Device, error) {
	var device model.Device
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var codeID uuid.UUID
		err := tx.QueryRowContext(ctx, `
			SELECT id, store_id, role
			FROM pairing_codes
			WHERE code_hash = $1
			  AND consumed_at IS NULL
			  AND expires_at > now()
			FOR UPDATE
		`, codeHash).Scan(&codeID, &device.StoreID, &device.Role)
		if err != nil {
			if db.IsNoRows(err) {
				return fmt.Errorf("pairing code: %w", ErrNotFound)
			}
			return fmt.Errorf("lock pairing code: %w", err)
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO pos_devices (store_id, role, device_name, token_hash)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at, last_active_at
		`, device.StoreID, device.Role, deviceName, tokenHash).Scan(&device.ID, &device.CreatedAt, &device.LastActiveAt)
		if err != nil {
			return fmt.Errorf("insert device: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE pairing_codes
			SET consumed_at = now(), consumed_by_device = $2
			WHERE id = $1
		`, codeID, device.ID); err != nil {
			return fmt.Errorf("consume pairing code: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Device{}, err
	}

	device.DeviceName = deviceName
	device.TokenHash = tokenHash
	return device, nil
}

// DeleteStale removes codes that expired or were consumed before the given time
func (r *pairingRepo) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM pairing_codes
		WHERE expires_at < $1 OR consumed_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("delete stale pairing codes: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
