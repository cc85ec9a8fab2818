package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/velopos/pos/internal/model"
	"github.com/velopos/pos/internal/repo"
)

const (
	pairingCodeLength  = 6
	maxGenerateRetries = 5
)

// PairingService issues one-time pairing codes and exchanges them for device tokens.
// Only a salted hash of each code is stored.
type PairingService struct {
	pairingRepo repo.PairingRepo
	storeRepo   repo.StoreRepo
	deviceRepo  repo.DeviceRepo
	salt        string
	ttl         time.Duration
	now         func() time.Time
}

// NewPairingService creates a new pairing service
func NewPairingService(pairingRepo repo.PairingRepo, storeRepo repo.StoreRepo, deviceRepo repo.DeviceRepo, salt string, ttl time.Duration) *PairingService {
	return &PairingService{
		pairingRepo: pairingRepo,
		storeRepo:   storeRepo,
		deviceRepo:  deviceRepo,
		salt:        salt,
		ttl:         ttl,
		now:         time.Now,
	}
}

// Generate creates a pairing code for a store and role. The plaintext code is returned once
// and never persisted. Tenants in single mode cannot pair kitchen displays.
func (s *PairingService) Generate(ctx context.Context, storeID uuid.UUID, role string, createdBy *uuid.UUID) (string, model.PairingCode, error) {
	if !model.ValidDeviceRole(role) {
		return "", model.PairingCode{}, ErrInvalidRole
	}

	store, err := s.storeRepo.GetStore(ctx, storeID)
	if err != nil {
		return "", model.PairingCode{}, fmt.Errorf("load store: %w", err)
	}
	tenant, err := s.storeRepo.GetTenant(ctx, store.TenantID)
	if err != nil {
		return "", model.PairingCode{}, fmt.Errorf("load tenant: %w", err)
	}
	if tenant.Mode == model.TenantModeSingle && role == model.RoleKitchen {
		return "", model.PairingCode{}, ErrRoleNotAllowed
	}

	expiresAt := s.now().Add(s.ttl)
	for attempt := 0; attempt < maxGenerateRetries; attempt++ {
		code, err := generatePairingCode()
		if err != nil {
			return "", model.PairingCode{}, fmt.Errorf("generate code: %w", err)
		}

		pc, err := s.pairingRepo.Create(ctx, storeID, role, hashCodeHex(code, s.salt), expiresAt, createdBy)
		if errors.Is(err, repo.ErrCodeCollision) {
			continue
		}
		if err != nil {
			return "", model.PairingCode{}, fmt.Errorf("create pairing code: %w", err)
		}
		return code, pc, nil
	}
	return "", model.PairingCode{}, fmt.Errorf("create pairing code: %w", repo.ErrCodeCollision)
}

// Exchange consumes a pairing code and binds a new device to the code's store and role.
// Wrong, expired and already used codes all yield ErrInvalidPairingCode.
func (s *PairingService) Exchange(ctx context.Context, code, deviceName string) (string, model.DeviceBinding, error) {
	code = strings.TrimSpace(code)
	if !ValidPairingCodeFormat(code) {
		return "", model.DeviceBinding{}, ErrInvalidPairingCode
	}

	token, tokenHash, err := GenerateDeviceToken()
	if err != nil {
		return "", model.DeviceBinding{}, fmt.Errorf("generate device token: %w", err)
	}

	if _, err := s.pairingRepo.Exchange(ctx, hashCodeHex(code, s.salt), deviceName, tokenHash); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", model.DeviceBinding{}, ErrInvalidPairingCode
		}
		return "", model.DeviceBinding{}, fmt.Errorf("exchange pairing code: %w", err)
	}

	binding, err := s.deviceRepo.GetBindingByTokenHash(ctx, tokenHash)
	if err != nil {
		return "", model.DeviceBinding{}, fmt.Errorf("load device binding: %w", err)
	}
	return token, binding, nil
}

// ValidPairingCodeFormat reports whether code is exactly six ASCII digits
func ValidPairingCodeFormat(code string) bool {
	if len(code) != pairingCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func generatePairingCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// hashCodeHex returns SHA-256(code:salt) as hex for DB storage
func hashCodeHex(code, salt string) string {
	return hex.EncodeToString(hashCodeBytes(code, salt))
}

func hashCodeBytes(code, salt string) []byte {
	hash := sha256.Sum256([]byte(code + ":" + salt))
	return hash[:]
}
