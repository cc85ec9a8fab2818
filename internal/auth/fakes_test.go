package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/velopos/pos/internal/model"
	"github.com/velopos/pos/internal/repo"
)

type fakeCode struct {
	model.PairingCode
}

// fakeStore backs every repo interface the services need with in-memory maps.
type fakeStore struct {
	mu        sync.Mutex
	tenant    model.Tenant
	store     model.Store
	codes     map[string]*fakeCode
	devices   map[string]model.Device
	// collisions makes the next n Create calls fail with ErrCodeCollision.
	collisions int
}

func newFakeStore(mode string) *fakeStore {
	tenant := model.Tenant{ID: uuid.New(), Name: "Nova Coffee", Mode: mode}
	return &fakeStore{
		tenant:  tenant,
		store:   model.Store{ID: uuid.New(), TenantID: tenant.ID, Name: "Nova Coffee Downtown"},
		codes:   map[string]*fakeCode{},
		devices: map[string]model.Device{},
	}
}

func (f *fakeStore) CreateTenant(ctx context.Context, name, mode string, settings model.StoreSettings) (model.Tenant, error) {
	return f.tenant, nil
}

func (f *fakeStore) CreateStore(ctx context.Context, tenantID uuid.UUID, name string, settings model.StoreSettings) (model.Store, error) {
	return f.store, nil
}

func (f *fakeStore) GetStore(ctx context.Context, storeID uuid.UUID) (model.Store, error) {
	if storeID != f.store.ID {
		return model.Store{}, repo.ErrNotFound
	}
	return f.store, nil
}

func (f *fakeStore) GetTenant(ctx context.Context, tenantID uuid.UUID) (model.Tenant, error) {
	if tenantID != f.tenant.ID {
		return model.Tenant{}, repo.ErrNotFound
	}
	return f.tenant, nil
}

func (f *fakeStore) MergeSettings(ctx context.Context, storeID uuid.UUID, patch model.StoreSettings) (model.StoreSettings, error) {
	f.store.Settings = f.store.Settings.Overlay(patch)
	return f.store.Settings, nil
}

func (f *fakeStore) Create(ctx context.Context, storeID uuid.UUID, role, codeHash string, expiresAt time.Time, createdBy *uuid.UUID) (model.PairingCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.collisions > 0 {
		f.collisions--
		return model.PairingCode{}, repo.ErrCodeCollision
	}
	pc := model.PairingCode{ID: uuid.New(), StoreID: storeID, Role: role, CodeHash: codeHash, ExpiresAt: expiresAt, CreatedBy: createdBy}
	f.codes[codeHash] = &fakeCode{PairingCode: pc}
	return pc, nil
}

func (f *fakeStore) Exchange(ctx context.Context, codeHash, deviceName, tokenHash string) (model.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.codes[codeHash]
	if !ok || c.ConsumedAt != nil || c.IsExpired(time.Now()) {
		return model.Device{}, repo.ErrNotFound
	}
	d := model.Device{ID: uuid.New(), StoreID: c.StoreID, Role: c.Role, DeviceName: deviceName, TokenHash: tokenHash, CreatedAt: time.Now(), LastActiveAt: time.Now()}
	now := time.Now()
	c.ConsumedAt = &now
	c.ConsumedByDevice = &d.ID
	f.devices[tokenHash] = d
	return d, nil
}

func (f *fakeStore) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeStore) GetBindingByTokenHash(ctx context.Context, tokenHash string) (model.DeviceBinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[tokenHash]
	if !ok {
		return model.DeviceBinding{}, repo.ErrNotFound
	}
	return model.DeviceBinding{
		Device:        d,
		StoreName:     f.store.Name,
		TenantID:      f.tenant.ID,
		TenantName:    f.tenant.Name,
		TenantMode:    f.tenant.Mode,
		StoreSettings: f.store.Settings,
	}, nil
}

func (f *fakeStore) Touch(ctx context.Context, deviceID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for h, d := range f.devices {
		if d.ID == deviceID {
			d.LastActiveAt = time.Now()
			f.devices[h] = d
			return nil
		}
	}
	return repo.ErrNotFound
}

func (f *fakeStore) ExistsByTokenHash(ctx context.Context, tokenHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.devices[tokenHash]
	return ok, nil
}

func (f *fakeStore) ListByStore(ctx context.Context, storeID uuid.UUID) ([]model.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Device
	for _, d := range f.devices {
		if d.StoreID == storeID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) Delete(ctx context.Context, storeID, deviceID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for h, d := range f.devices {
		if d.ID == deviceID && d.StoreID == storeID {
			delete(f.devices, h)
			return nil
		}
	}
	return repo.ErrNotFound
}

// fakeEmployees implements repo.EmployeeRepo.
type fakeEmployees struct {
	employees []model.Employee
}

func (f *fakeEmployees) Create(ctx context.Context, storeID uuid.UUID, name, role, pinHash string) (model.Employee, error) {
	e := model.Employee{ID: uuid.New(), StoreID: storeID, Name: name, Role: role, PinHash: pinHash, Active: true}
	f.employees = append(f.employees, e)
	return e, nil
}

func (f *fakeEmployees) ListActiveByStore(ctx context.Context, storeID uuid.UUID) ([]model.Employee, error) {
	var out []model.Employee
	for _, e := range f.employees {
		if e.StoreID == storeID && e.Active {
			out = append(out, e)
		}
	}
	return out, nil
}
