// Package settings keeps the terminal's resolved store settings and the effects derived from them.
package settings

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/velopos/pos/internal/model"
)

// Order types
const (
	OrderTypeDineIn  = "dine_in"
	OrderTypeTakeOut = "take_out"
)

// Order statuses
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusClosed     = "closed"
)

var (
	// ErrOrderTypeNotAllowed is returned when the store does not accept the order type
	ErrOrderTypeNotAllowed = errors.New("order type not allowed by store settings")
	// ErrStoreClosed is returned when an order is submitted while the store is closed
	ErrStoreClosed = errors.New("store is closed")
)

// Defaults returns the built-in settings used when neither tenant nor store defines a field
func Defaults() model.StoreSettings {
	return model.StoreSettings{
		IsOpen:               model.Bool(true),
		AllowDineIn:          model.Bool(true),
		AllowTakeOut:         model.Bool(true),
		ServiceChargePercent: model.Float(0),
		KDS: &model.KDSSettings{
			OverdueMinutes:            model.Int(15),
			ShowDineIn:                model.Bool(true),
			ShowTakeOut:               model.Bool(true),
			AutoClearCompletedMinutes: model.Int(10),
		},
	}
}

// Snapshot is a fully resolved view of the settings plus the current order type
type Snapshot struct {
	IsOpen                    bool
	AllowDineIn               bool
	AllowTakeOut              bool
	ServiceChargePercent      float64
	OverdueMinutes            int
	ShowDineIn                bool
	ShowTakeOut               bool
	AutoClearCompletedMinutes int
	OrderType                 string
}

// Closed reports whether new orders must be refused
func (s Snapshot) Closed() bool {
	return !s.IsOpen
}

// ServiceCharge returns the service charge for subtotal. Only dine-in orders are charged.
func (s Snapshot) ServiceCharge(subtotal float64) float64 {
	if s.OrderType != OrderTypeDineIn || s.ServiceChargePercent <= 0 {
		return 0
	}
	return math.Round(subtotal * s.ServiceChargePercent / 100)
}

// KitchenVisible reports whether the kitchen display shows an order
func (s Snapshot) KitchenVisible(orderType, status string, updatedAt, now time.Time) bool {
	if orderType == OrderTypeDineIn && !s.ShowDineIn {
		return false
	}
	if orderType == OrderTypeTakeOut && !s.ShowTakeOut {
		return false
	}
	switch status {
	case StatusClosed:
		return false
	case StatusCompleted:
		if s.AutoClearCompletedMinutes > 0 &&
			now.Sub(updatedAt) > time.Duration(s.AutoClearCompletedMinutes)*time.Minute {
			return false
		}
	}
	return true
}

// Overdue reports whether an unfinished order has waited at least the overdue threshold.
// Elapsed time counts whole minutes.
func (s Snapshot) Overdue(status string, createdAt, now time.Time) bool {
	if status == StatusCompleted || status == StatusClosed {
		return false
	}
	elapsed := int(now.Sub(createdAt) / time.Minute)
	return elapsed >= s.OverdueMinutes
}

func (s Snapshot) allows(orderType string) bool {
	switch orderType {
	case OrderTypeDineIn:
		return s.AllowDineIn
	case OrderTypeTakeOut:
		return s.AllowTakeOut
	}
	return false
}

// Reconciler owns the terminal's settings. Every source (initial fetch, heartbeat, realtime
// push) goes through Merge.
type Reconciler struct {
	mu        sync.Mutex
	current   model.StoreSettings
	orderType string
	observers []func(Snapshot)
}

// NewReconciler starts from the built-in defaults with dine-in selected
func NewReconciler() *Reconciler {
	return &Reconciler{current: Defaults(), orderType: OrderTypeDineIn}
}

// OnChange registers fn to be called with the new snapshot after every change
func (r *Reconciler) OnChange(fn func(Snapshot)) {
	r.mu.Lock()
	r.observers = append(r.observers, fn)
	r.mu.Unlock()
}

// Seed applies the initial fetch: built-in defaults, then tenant defaults, then store overrides
func (r *Reconciler) Seed(tenant, store model.StoreSettings) Snapshot {
	return r.Merge(Defaults().Overlay(tenant).Overlay(store))
}

// Merge overwrites the fields present in patch and keeps the rest. The order type is switched
// to the other one when the current one is no longer allowed.
func (r *Reconciler) Merge(patch model.StoreSettings) Snapshot {
	r.mu.Lock()
	r.current = r.current.Overlay(patch)
	snap := r.snapshotLocked()
	switch {
	case snap.OrderType == OrderTypeDineIn && !snap.AllowDineIn:
		r.orderType = OrderTypeTakeOut
	case snap.OrderType == OrderTypeTakeOut && !snap.AllowTakeOut:
		r.orderType = OrderTypeDineIn
	}
	snap.OrderType = r.orderType
	observers := r.observers
	r.mu.Unlock()

	notify(observers, snap)
	return snap
}

// SetOrderType selects the order type for the next order
func (r *Reconciler) SetOrderType(orderType string) error {
	r.mu.Lock()
	snap := r.snapshotLocked()
	if !snap.allows(orderType) {
		r.mu.Unlock()
		return ErrOrderTypeNotAllowed
	}
	r.orderType = orderType
	snap.OrderType = orderType
	observers := r.observers
	r.mu.Unlock()

	notify(observers, snap)
	return nil
}

// Snapshot returns the current resolved settings
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Settings returns a copy of the current settings with every field set
func (r *Reconciler) Settings() model.StoreSettings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Defaults().Overlay(r.current)
}

// Reset returns to the built-in defaults, used when the device is unbound
func (r *Reconciler) Reset() {
	r.mu.Lock()
	r.current = Defaults()
	r.orderType = OrderTypeDineIn
	r.mu.Unlock()
}

func (r *Reconciler) snapshotLocked() Snapshot {
	c := Defaults().Overlay(r.current)
	return Snapshot{
		IsOpen:                    *c.IsOpen,
		AllowDineIn:               *c.AllowDineIn,
		AllowTakeOut:              *c.AllowTakeOut,
		ServiceChargePercent:      *c.ServiceChargePercent,
		OverdueMinutes:            *c.KDS.OverdueMinutes,
		ShowDineIn:                *c.KDS.ShowDineIn,
		ShowTakeOut:               *c.KDS.ShowTakeOut,
		AutoClearCompletedMinutes: *c.KDS.AutoClearCompletedMinutes,
		OrderType:                 r.orderType,
	}
}

func notify(observers []func(Snapshot), snap Snapshot) {
	for _, fn := range observers {
		fn(snap)
	}
}
