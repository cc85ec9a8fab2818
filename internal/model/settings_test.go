package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlay_presentFieldsOverwrite(t *testing.T) {
	base := StoreSettings{
		IsOpen:               Bool(true),
		AllowDineIn:          Bool(true),
		AllowTakeOut:         Bool(true),
		ServiceChargePercent: Float(0),
	}
	patch := StoreSettings{AllowDineIn: Bool(false), ServiceChargePercent: Float(10)}

	got := base.Overlay(patch)

	assert.Equal(t, true, *got.IsOpen)
	assert.Equal(t, false, *got.AllowDineIn)
	assert.Equal(t, true, *got.AllowTakeOut)
	assert.Equal(t, 10.0, *got.ServiceChargePercent)
	// base must not be aliased by the result
	assert.Equal(t, true, *base.AllowDineIn)
}

func TestOverlay_nestedKDS(t *testing.T) {
	base := StoreSettings{KDS: &KDSSettings{OverdueMinutes: Int(15), ShowDineIn: Bool(true)}}
	got := base.Overlay(StoreSettings{KDS: &KDSSettings{ShowDineIn: Bool(false)}})

	require.NotNil(t, got.KDS)
	assert.Equal(t, 15, *got.KDS.OverdueMinutes)
	assert.Equal(t, false, *got.KDS.ShowDineIn)
	assert.Nil(t, got.KDS.AutoClearCompletedMinutes)
	assert.Equal(t, true, *base.KDS.ShowDineIn)
}

func TestStoreSettings_JSONOmitsUnset(t *testing.T) {
	b, err := json.Marshal(StoreSettings{IsOpen: Bool(false)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"is_open":false}`, string(b))

	var decoded StoreSettings
	require.NoError(t, json.Unmarshal([]byte(`{"allow_take_out":false}`), &decoded))
	assert.Nil(t, decoded.AllowDineIn)
	require.NotNil(t, decoded.AllowTakeOut)
	assert.False(t, *decoded.AllowTakeOut)
	assert.False(t, decoded.IsZero())
	assert.True(t, StoreSettings{KDS: &KDSSettings{}}.IsZero())
}

func TestPairingCode_IsExpired(t *testing.T) {
	var c PairingCode
	assert.True(t, c.IsExpired(c.ExpiresAt))
	assert.True(t, ValidDeviceRole(RoleKitchen))
	assert.False(t, ValidDeviceRole("admin"))
}
