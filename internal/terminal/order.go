package terminal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/velopos/pos/internal/model"
	"github.com/velopos/pos/internal/terminal/backend"
	"github.com/velopos/pos/internal/terminal/settings"
)

// Quote is the priced header of the order being built
type Quote struct {
	OrderType     string
	Subtotal      float64
	ServiceCharge float64
	Total         float64
	InitialStatus string
}

// Quote prices subtotal with the current settings. Single-store tenants skip the kitchen,
// so their orders start completed.
func (t *Terminal) Quote(subtotal float64) Quote {
	snap := t.settings.Snapshot()
	charge := snap.ServiceCharge(subtotal)

	status := settings.StatusPending
	if cred, ok := t.Credential(); ok && cred.TenantMode == model.TenantModeSingle {
		status = settings.StatusCompleted
	}
	return Quote{
		OrderType:     snap.OrderType,
		Subtotal:      subtotal,
		ServiceCharge: charge,
		Total:         subtotal + charge,
		InitialStatus: status,
	}
}

// CheckSubmit gates order submission. The device token is re-checked with the backend; a
// token that is no longer bound logs the device out.
func (t *Terminal) CheckSubmit(ctx context.Context, tableNumber string) error {
	cred, ok := t.Credential()
	if !ok {
		return ErrNotPaired
	}
	if _, ok := t.Employee(); !ok {
		return ErrNoEmployee
	}

	snap := t.settings.Snapshot()
	if snap.Closed() {
		return settings.ErrStoreClosed
	}
	if snap.OrderType == settings.OrderTypeDineIn && strings.TrimSpace(tableNumber) == "" {
		return ErrTableRequired
	}

	valid, err := t.backend.Check(ctx, cred.Token)
	if err != nil && !errors.Is(err, backend.ErrInvalidToken) {
		t.setConnectivity(ConnectivityOffline)
		return fmt.Errorf("check device: %w", err)
	}
	if !valid {
		t.ForceLogout(ReasonRevoked)
		return backend.ErrInvalidToken
	}
	return nil
}
