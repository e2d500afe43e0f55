package main

import (
	"fmt"
	"strconv"

	"github.com/cdptech/cdpclient/internal/wire"
)

// parseValueForType parses raw as the Go type EncodeVariant expects for vt,
// so `cdpcli set` can accept a plain command-line string for any scalar
// node (spec.md §3 value types).
func parseValueForType(vt wire.ValueType, raw string) (any, error) {
	switch vt {
	case wire.ValueDouble:
		return strconv.ParseFloat(raw, 64)
	case wire.ValueFloat:
		f, err := strconv.ParseFloat(raw, 32)
		return float32(f), err
	case wire.ValueInt64:
		return strconv.ParseInt(raw, 10, 64)
	case wire.ValueUint64:
		return strconv.ParseUint(raw, 10, 64)
	case wire.ValueInt:
		i, err := strconv.ParseInt(raw, 10, 32)
		return int32(i), err
	case wire.ValueUint:
		u, err := strconv.ParseUint(raw, 10, 32)
		return uint32(u), err
	case wire.ValueShort:
		i, err := strconv.ParseInt(raw, 10, 16)
		return int16(i), err
	case wire.ValueUshort:
		u, err := strconv.ParseUint(raw, 10, 16)
		return uint16(u), err
	case wire.ValueChar:
		i, err := strconv.ParseInt(raw, 10, 8)
		return int8(i), err
	case wire.ValueUchar:
		u, err := strconv.ParseUint(raw, 10, 8)
		return uint8(u), err
	case wire.ValueBool:
		return strconv.ParseBool(raw)
	case wire.ValueString:
		return raw, nil
	default:
		return nil, fmt.Errorf("cdpcli: node has unsupported value type %d", vt)
	}
}
