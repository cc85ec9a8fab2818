package model

// StoreSettings holds the operational flags of a tenant or a store.
// Every field is optional: a nil field means "not set here" and is inherited
// from the layer below (store over tenant over built-in defaults).
type StoreSettings struct {
	IsOpen               *bool        `json:"is_open,omitempty"`
	AllowDineIn          *bool        `json:"allow_dine_in,omitempty"`
	AllowTakeOut         *bool        `json:"allow_take_out,omitempty"`
	ServiceChargePercent *float64     `json:"service_charge_percent,omitempty"`
	KDS                  *KDSSettings `json:"kds_settings,omitempty"`
}

// KDSSettings configures the kitchen display
type KDSSettings struct {
	OverdueMinutes            *int  `json:"overdue_minutes,omitempty"`
	ShowDineIn                *bool `json:"show_dine_in,omitempty"`
	ShowTakeOut               *bool `json:"show_take_out,omitempty"`
	AutoClearCompletedMinutes *int  `json:"auto_clear_completed_minutes,omitempty"`
}

// IsZero reports whether no field is set.
func (s StoreSettings) IsZero() bool {
	return s.IsOpen == nil && s.AllowDineIn == nil && s.AllowTakeOut == nil &&
		s.ServiceChargePercent == nil && (s.KDS == nil || s.KDS.IsZero())
}

// IsZero reports whether no field is set.
func (k KDSSettings) IsZero() bool {
	return k.OverdueMinutes == nil && k.ShowDineIn == nil && k.ShowTakeOut == nil &&
		k.AutoClearCompletedMinutes == nil
}

// Overlay returns s with every field present in patch overwritten.
// Fields absent from patch keep their value from s. Nested kitchen
// settings are overlaid field by field.
func (s StoreSettings) Overlay(patch StoreSettings) StoreSettings {
	out := s
	if patch.IsOpen != nil {
		out.IsOpen = Bool(*patch.IsOpen)
	}
	if patch.AllowDineIn != nil {
		out.AllowDineIn = Bool(*patch.AllowDineIn)
	}
	if patch.AllowTakeOut != nil {
		out.AllowTakeOut = Bool(*patch.AllowTakeOut)
	}
	if patch.ServiceChargePercent != nil {
		out.ServiceChargePercent = Float(*patch.ServiceChargePercent)
	}
	if patch.KDS != nil {
		var base KDSSettings
		if s.KDS != nil {
			base = *s.KDS
		}
		merged := base.Overlay(*patch.KDS)
		out.KDS = &merged
	}
	return out
}

// Overlay returns k with every field present in patch overwritten.
func (k KDSSettings) Overlay(patch KDSSettings) KDSSettings {
	out := k
	if patch.OverdueMinutes != nil {
		out.OverdueMinutes = Int(*patch.OverdueMinutes)
	}
	if patch.ShowDineIn != nil {
		out.ShowDineIn = Bool(*patch.ShowDineIn)
	}
	if patch.ShowTakeOut != nil {
		out.ShowTakeOut = Bool(*patch.ShowTakeOut)
	}
	if patch.AutoClearCompletedMinutes != nil {
		out.AutoClearCompletedMinutes = Int(*patch.AutoClearCompletedMinutes)
	}
	return out
}

// Bool returns a pointer to v
func Bool(v bool) *bool { return &v }

// Int returns a pointer to v
func Int(v int) *int { return &v }

// Float returns a pointer to v
func Float(v float64) *float64 { return &v }
