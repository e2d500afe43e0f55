package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeVariantRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		vt   ValueType
		v    any
	}{
		{"double", ValueDouble, float64(3.5)},
		{"float", ValueFloat, float32(1.25)},
		{"int64", ValueInt64, int64(-7)},
		{"uint64", ValueUint64, uint64(9)},
		{"int", ValueInt, int32(-3)},
		{"uint", ValueUint, uint32(3)},
		{"short", ValueShort, int16(-1)},
		{"ushort", ValueUshort, uint16(1)},
		{"char", ValueChar, int8(-1)},
		{"uchar", ValueUchar, uint8(1)},
		{"bool", ValueBool, true},
		{"string", ValueString, "hello"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			variant, err := EncodeVariant(tc.vt, 42, 1000, tc.v)
			require.NoError(t, err)
			assert.Equal(t, uint32(42), variant.NodeID)
			assert.Equal(t, int64(1000), variant.TimestampNS)

			got, err := DecodeVariant(variant)
			require.NoError(t, err)
			assert.Equal(t, tc.v, got)
		})
	}
}

// TestVariantFieldMapping guards against reintroducing the upstream
// field-swap bug spec.md §9 flags (e.g. UINT64 reading f_value): each
// ValueType must round-trip through its own field only.
func TestVariantFieldMapping(t *testing.T) {
	v, err := EncodeVariant(ValueUint64, 1, 0, uint64(123))
	require.NoError(t, err)
	assert.Equal(t, uint64(123), v.UI64Value)
	assert.Zero(t, v.FValue)

	v, err = EncodeVariant(ValueDouble, 1, 0, float64(4.5))
	require.NoError(t, err)
	assert.Equal(t, 4.5, v.DValue)
	assert.Zero(t, v.I64Value)
}

func TestEncodeVariantTypeMismatch(t *testing.T) {
	_, err := EncodeVariant(ValueDouble, 1, 0, "not a float")
	assert.Error(t, err)
}

func TestZeroValue(t *testing.T) {
	assert.Equal(t, float64(0), ZeroValue(ValueDouble))
	assert.Equal(t, "", ZeroValue(ValueString))
	assert.Equal(t, false, ZeroValue(ValueBool))
	assert.Nil(t, ZeroValue(ValueUndefined))
}
