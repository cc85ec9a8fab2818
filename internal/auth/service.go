package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/velopos/pos/internal/model"
	"github.com/velopos/pos/internal/repo"
)

// DeviceService resolves device tokens to their store binding and manages bound devices
type DeviceService struct {
	deviceRepo repo.DeviceRepo
}

// NewDeviceService creates a new device service
func NewDeviceService(deviceRepo repo.DeviceRepo) *DeviceService {
	return &DeviceService{deviceRepo: deviceRepo}
}

// Resolve looks up the device bound to token and refreshes its last-active timestamp
func (s *DeviceService) Resolve(ctx context.Context, token string) (model.DeviceBinding, error) {
	if token == "" {
		return model.DeviceBinding{}, ErrInvalidDeviceToken
	}

	binding, err := s.deviceRepo.GetBindingByTokenHash(ctx, HashDeviceToken(token))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.DeviceBinding{}, ErrInvalidDeviceToken
		}
		return model.DeviceBinding{}, fmt.Errorf("resolve device: %w", err)
	}

	if err := s.deviceRepo.Touch(ctx, binding.Device.ID); err != nil {
		// Deleted between lookup and touch.
		if errors.Is(err, repo.ErrNotFound) {
			return model.DeviceBinding{}, ErrInvalidDeviceToken
		}
		return model.DeviceBinding{}, fmt.Errorf("touch device: %w", err)
	}
	binding.Device.LastActiveAt = time.Now()
	return binding, nil
}

// Check reports whether token is still bound to a device
func (s *DeviceService) Check(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	ok, err := s.deviceRepo.ExistsByTokenHash(ctx, HashDeviceToken(token))
	if err != nil {
		return false, fmt.Errorf("check device: %w", err)
	}
	return ok, nil
}

// List returns the devices bound to a store
func (s *DeviceService) List(ctx context.Context, storeID uuid.UUID) ([]model.Device, error) {
	devices, err := s.deviceRepo.ListByStore(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

// Revoke unbinds a device from its store. Connected terminals learn about it from the
// device-deleted change feed.
func (s *DeviceService) Revoke(ctx context.Context, storeID, deviceID uuid.UUID) error {
	if err := s.deviceRepo.Delete(ctx, storeID, deviceID); err != nil {
		return fmt.Errorf("revoke device: %w", err)
	}
	return nil
}

// EmployeeService verifies employee PINs on paired terminals
type EmployeeService struct {
	employeeRepo repo.EmployeeRepo
	jwtService   *JWTService
}

// NewEmployeeService creates a new employee service
func NewEmployeeService(employeeRepo repo.EmployeeRepo, jwtService *JWTService) *EmployeeService {
	return &EmployeeService{
		employeeRepo: employeeRepo,
		jwtService:   jwtService,
	}
}

// Create adds an employee to a store with a hashed PIN
func (s *EmployeeService) Create(ctx context.Context, storeID uuid.UUID, name, role, pin string) (model.Employee, error) {
	pinHash, err := HashPIN(pin)
	if err != nil {
		return model.Employee{}, fmt.Errorf("hash pin: %w", err)
	}
	e, err := s.employeeRepo.Create(ctx, storeID, name, role, pinHash)
	if err != nil {
		return model.Employee{}, fmt.Errorf("create employee: %w", err)
	}
	return e, nil
}

// Login matches pin against the active employees of the device's store and issues a session token
func (s *EmployeeService) Login(ctx context.Context, storeID uuid.UUID, pin string) (model.Employee, string, time.Time, error) {
	if pin == "" {
		return model.Employee{}, "", time.Time{}, ErrInvalidPIN
	}

	employees, err := s.employeeRepo.ListActiveByStore(ctx, storeID)
	if err != nil {
		return model.Employee{}, "", time.Time{}, fmt.Errorf("load employees: %w", err)
	}

	for _, e := range employees {
		ok, err := VerifyPIN(pin, e.PinHash)
		if err != nil {
			// A malformed hash only disqualifies that employee.
			continue
		}
		if !ok {
			continue
		}

		token, expiresAt, err := s.jwtService.SignEmployeeToken(e)
		if err != nil {
			return model.Employee{}, "", time.Time{}, fmt.Errorf("failed to generate token: %w", err)
		}
		return e, token, expiresAt, nil
	}
	return model.Employee{}, "", time.Time{}, ErrInvalidPIN
}
