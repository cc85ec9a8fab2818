// Package tests holds the integration tests that run against a real PostgreSQL database.
// They are skipped when DATABASE_URL is not set.
package tests

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/velopos/pos/internal/auth"
	"github.com/velopos/pos/internal/model"
	"github.com/velopos/pos/internal/repo"
)

// TruncateTables empties every table for a clean test state
func TruncateTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, "TRUNCATE TABLE pairing_codes, pos_devices, employees, stores, tenants RESTART IDENTITY CASCADE")
	if err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}

// Fixture is one tenant with one store, a store manager and a staff member
type Fixture struct {
	Tenant  model.Tenant
	Store   model.Store
	Manager model.Employee
	Staff   model.Employee
}

// Fixture PINs
const (
	ManagerPIN = "9999"
	StaffPIN   = "1234"
)

// Seed creates the fixture for the given tenant mode
func Seed(ctx context.Context, stores repo.StoreRepo, employees *auth.EmployeeService, mode string) (Fixture, error) {
	var f Fixture
	var err error

	f.Tenant, err = stores.CreateTenant(ctx, "Nova Coffee", mode, model.StoreSettings{ServiceChargePercent: model.Float(5)})
	if err != nil {
		return f, err
	}
	f.Store, err = stores.CreateStore(ctx, f.Tenant.ID, "Downtown "+uuid.NewString()[:4], model.StoreSettings{ServiceChargePercent: model.Float(10)})
	if err != nil {
		return f, err
	}
	f.Manager, err = employees.Create(ctx, f.Store.ID, "Mia", model.EmployeeRoleStoreManager, ManagerPIN)
	if err != nil {
		return f, err
	}
	f.Staff, err = employees.Create(ctx, f.Store.ID, "Ana", model.EmployeeRoleStaff, StaffPIN)
	if err != nil {
		return f, err
	}
	return f, nil
}
