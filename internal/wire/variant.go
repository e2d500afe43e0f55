package wire

import "fmt"

// Variant is a tagged scalar value carried by getter/setter messages. Only
// the field matching ValueType is meaningful; the rest are zero.
//
// spec.md §9 flags the original implementation's value-type-to-field
// mapping as buggy (several scalar fields were swapped, e.g. UINT64 read
// f_value, FLOAT read i64_value). This implementation maps each ValueType
// to its obviously corresponding field and does not replicate the swap.
type Variant struct {
	NodeID      uint32    `json:"node_id"`
	TimestampNS int64     `json:"timestamp"`
	ValueType   ValueType `json:"value_type"`

	DValue      float64 `json:"d_value,omitempty"`
	FValue      float32 `json:"f_value,omitempty"`
	I64Value    int64   `json:"i64_value,omitempty"`
	UI64Value   uint64  `json:"ui64_value,omitempty"`
	IValue      int32   `json:"i_value,omitempty"`
	UIValue     uint32  `json:"ui_value,omitempty"`
	ShortValue  int16   `json:"short_value,omitempty"`
	UShortValue uint16  `json:"ushort_value,omitempty"`
	CharValue   int8    `json:"char_value,omitempty"`
	UCharValue  uint8   `json:"uchar_value,omitempty"`
	BoolValue   bool    `json:"bool_value,omitempty"`
	StringValue string  `json:"string_value,omitempty"`
}

// EncodeVariant builds a Variant of the given ValueType carrying v, which
// must be the Go type corresponding to vt (see DecodeVariant for the
// mapping). It is used by Node.SetValue to build a SetterRequest payload.
func EncodeVariant(vt ValueType, nodeID uint32, timestampNS int64, v any) (Variant, error) {
	variant := Variant{NodeID: nodeID, TimestampNS: timestampNS, ValueType: vt}
	var ok bool
	switch vt {
	case ValueDouble:
		variant.DValue, ok = v.(float64)
	case ValueFloat:
		variant.FValue, ok = v.(float32)
	case ValueInt64:
		variant.I64Value, ok = v.(int64)
	case ValueUint64:
		variant.UI64Value, ok = v.(uint64)
	case ValueInt:
		variant.IValue, ok = v.(int32)
	case ValueUint:
		variant.UIValue, ok = v.(uint32)
	case ValueShort:
		variant.ShortValue, ok = v.(int16)
	case ValueUshort:
		variant.UShortValue, ok = v.(uint16)
	case ValueChar:
		variant.CharValue, ok = v.(int8)
	case ValueUchar:
		variant.UCharValue, ok = v.(uint8)
	case ValueBool:
		variant.BoolValue, ok = v.(bool)
	case ValueString:
		variant.StringValue, ok = v.(string)
	default:
		return Variant{}, fmt.Errorf("wire: unsupported value type %d", vt)
	}
	if !ok {
		return Variant{}, fmt.Errorf("wire: value %v (%T) does not match value type %d", v, v, vt)
	}
	return variant, nil
}

// DecodeVariant extracts the scalar carried by the Variant as the Go type
// corresponding to its ValueType.
func DecodeVariant(v Variant) (any, error) {
	switch v.ValueType {
	case ValueDouble:
		return v.DValue, nil
	case ValueFloat:
		return v.FValue, nil
	case ValueInt64:
		return v.I64Value, nil
	case ValueUint64:
		return v.UI64Value, nil
	case ValueInt:
		return v.IValue, nil
	case ValueUint:
		return v.UIValue, nil
	case ValueShort:
		return v.ShortValue, nil
	case ValueUshort:
		return v.UShortValue, nil
	case ValueChar:
		return v.CharValue, nil
	case ValueUchar:
		return v.UCharValue, nil
	case ValueBool:
		return v.BoolValue, nil
	case ValueString:
		return v.StringValue, nil
	default:
		return nil, fmt.Errorf("wire: unsupported value type %d", v.ValueType)
	}
}

// ZeroValue returns the type-default scalar for vt, used to initialise a
// freshly created Node's last_value (spec.md §3).
func ZeroValue(vt ValueType) any {
	switch vt {
	case ValueDouble:
		return float64(0)
	case ValueFloat:
		return float32(0)
	case ValueInt64:
		return int64(0)
	case ValueUint64:
		return uint64(0)
	case ValueInt:
		return int32(0)
	case ValueUint:
		return uint32(0)
	case ValueShort:
		return int16(0)
	case ValueUshort:
		return uint16(0)
	case ValueChar:
		return int8(0)
	case ValueUchar:
		return uint8(0)
	case ValueBool:
		return false
	case ValueString:
		return ""
	default:
		return nil
	}
}
