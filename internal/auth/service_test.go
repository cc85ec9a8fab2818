package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velopos/pos/internal/model"
	"github.com/velopos/pos/internal/repo"
)

func pairDevice(t *testing.T, fs *fakeStore) (string, model.DeviceBinding) {
	t.Helper()
	svc := newPairing(fs)
	code, _, err := svc.Generate(context.Background(), fs.store.ID, model.RolePOS, nil)
	require.NoError(t, err)
	token, binding, err := svc.Exchange(context.Background(), code, "pos-1")
	require.NoError(t, err)
	return token, binding
}

func TestDeviceService_Resolve(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore(model.TenantModeMulti)
	token, binding := pairDevice(t, fs)
	svc := NewDeviceService(fs)

	got, err := svc.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, binding.Device.ID, got.Device.ID)
	assert.Equal(t, model.TenantModeMulti, got.TenantMode)

	_, err = svc.Resolve(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidDeviceToken)

	_, err = svc.Resolve(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidDeviceToken)
}

func TestDeviceService_RevokeInvalidatesToken(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore(model.TenantModeMulti)
	token, binding := pairDevice(t, fs)
	svc := NewDeviceService(fs)

	ok, err := svc.Check(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, svc.Revoke(ctx, fs.store.ID, binding.Device.ID))

	ok, err = svc.Check(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidDeviceToken)

	err = svc.Revoke(ctx, fs.store.ID, binding.Device.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestDeviceService_RevokeScopedToStore(t *testing.T) {
	fs := newFakeStore(model.TenantModeMulti)
	_, binding := pairDevice(t, fs)
	svc := NewDeviceService(fs)

	err := svc.Revoke(context.Background(), uuid.New(), binding.Device.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	devices, err := svc.List(context.Background(), fs.store.ID)
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestEmployeeService_Login(t *testing.T) {
	ctx := context.Background()
	storeID := uuid.New()
	employees := &fakeEmployees{}
	jwtSvc := NewJWTService("secret", time.Hour)
	svc := NewEmployeeService(employees, jwtSvc)

	_, err := svc.Create(ctx, storeID, "Ana", model.EmployeeRoleStaff, "1111")
	require.NoError(t, err)
	manager, err := svc.Create(ctx, storeID, "Ben", model.EmployeeRoleStoreManager, "2222")
	require.NoError(t, err)

	e, token, expiresAt, err := svc.Login(ctx, storeID, "2222")
	require.NoError(t, err)
	assert.Equal(t, manager.ID, e.ID)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := jwtSvc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, model.EmployeeRoleStoreManager, claims.Role)
	assert.Equal(t, storeID, claims.StoreID)

	_, _, _, err = svc.Login(ctx, storeID, "9999")
	assert.ErrorIs(t, err, ErrInvalidPIN)

	_, _, _, err = svc.Login(ctx, uuid.New(), "1111")
	assert.ErrorIs(t, err, ErrInvalidPIN)
}
