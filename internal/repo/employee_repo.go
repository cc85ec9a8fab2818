package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/velopos/pos/internal/db"
	"github.com/velopos/pos/internal/model"
)

// EmployeeRepo defines the interface for employee repository operations
type EmployeeRepo interface {
	Create(ctx context.Context, storeID uuid.UUID, name, role, pinHash string) (model.Employee, error)
	ListActiveByStore(ctx context.Context, storeID uuid.UUID) ([]model.Employee, error)
}

type employeeRepo struct {
	db *sql.DB
}

// NewEmployeeRepo creates a new EmployeeRepo instance
func NewEmployeeRepo(db *sql.DB) EmployeeRepo {
	return &employeeRepo{db: db}
}

// Create inserts an employee of a store; the tenant is taken from the store
func (r *employeeRepo) Create(ctx context.Context, storeID uuid.UUID, name, role, pinHash string) (model.Employee, error) {
	e := model.Employee{
		StoreID: storeID,
		Name:    name,
		Role:    role,
		PinHash: pinHash,
		Active:  true,
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO employees (tenant_id, store_id, name, role, pin_hash)
		SELECT tenant_id, id, $2, $3, $4 FROM stores WHERE id = $1
		RETURNING id, tenant_id, created_at
	`, storeID, name, role, pinHash).Scan(&e.ID, &e.TenantID, &e.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Employee{}, fmt.Errorf("store %s: %w", storeID, ErrNotFound)
		}
		return model.Employee{}, fmt.Errorf("insert employee: %w", err)
	}
	return e, nil
}

// ListActiveByStore returns the active employees of a store
func (r *employeeRepo) ListActiveByStore(ctx context.Context, storeID uuid.UUID) ([]model.Employee, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, store_id, name, role, pin_hash, active, created_at
		FROM employees
		WHERE store_id = $1 AND active
		ORDER BY created_at
	`, storeID)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	var employees []model.Employee
	for rows.Next() {
		var e model.Employee
		if err := rows.Scan(&e.ID, &e.TenantID, &e.StoreID, &e.Name, &e.Role, &e.PinHash, &e.Active, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}
