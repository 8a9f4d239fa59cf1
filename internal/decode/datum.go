package decode

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindBytes
	KindTime
	KindArray
	KindObject
)

// Value is the tagged union every decoded datum is rewritten into,
// replacing the dynamic any-typed JSON value the wire protocol
// otherwise hands back. Reserved `$reql_type$` objects are resolved at
// decode time: TIME becomes a time.Time, BINARY becomes raw bytes.
type Value struct {
	Kind   ValueKind
	Bool   bool
	Number float64
	String string
	Bytes  []byte
	Time   time.Time
	Array  []Value
	Object map[string]Value

	// Warning carries a note about an unrecognized $reql_type$ that was
	// passed through unchanged as an Object instead of being rewritten.
	Warning string
}

// decodeDatum converts a raw JSON value into a Value, applying the
// $reql_type$ rewrite to any object that carries the reserved key.
func decodeDatum(raw json.RawMessage) (Value, error) {
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Value{}, fmt.Errorf("decode datum: %w", err)
	}
	return datumFromAny(generic)
}

func datumFromAny(v interface{}) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Value{Kind: KindNull}, nil
	case bool:
		return Value{Kind: KindBool, Bool: x}, nil
	case float64:
		return Value{Kind: KindNumber, Number: x}, nil
	case string:
		return Value{Kind: KindString, String: x}, nil
	case []interface{}:
		arr := make([]Value, 0, len(x))
		for _, elem := range x {
			dv, err := datumFromAny(elem)
			if err != nil {
				return Value{}, err
			}
			arr = append(arr, dv)
		}
		return Value{Kind: KindArray, Array: arr}, nil
	case map[string]interface{}:
		return datumFromObject(x)
	default:
		return Value{}, fmt.Errorf("decode datum: unsupported JSON type %T", v)
	}
}

func datumFromObject(obj map[string]interface{}) (Value, error) {
	reqlType, tagged := obj["$reql_type$"].(string)
	if !tagged {
		out := make(map[string]Value, len(obj))
		for k, v := range obj {
			dv, err := datumFromAny(v)
			if err != nil {
				return Value{}, err
			}
			out[k] = dv
		}
		return Value{Kind: KindObject, Object: out}, nil
	}

	switch reqlType {
	case "TIME":
		return decodeTime(obj)
	case "BINARY":
		return decodeBinary(obj)
	default:
		out := make(map[string]Value, len(obj))
		for k, v := range obj {
			dv, err := datumFromAny(v)
			if err != nil {
				return Value{}, err
			}
			out[k] = dv
		}
		return Value{
			Kind:    KindObject,
			Object:  out,
			Warning: fmt.Sprintf("unrecognized $reql_type$ %q passed through unchanged", reqlType),
		}, nil
	}
}

func decodeTime(obj map[string]interface{}) (Value, error) {
	epoch, ok := obj["epoch_time"].(float64)
	if !ok {
		return Value{}, fmt.Errorf("decode datum: TIME missing epoch_time")
	}
	tzStr, _ := obj["timezone"].(string)
	loc, err := parseTimezone(tzStr)
	if err != nil {
		return Value{}, err
	}

	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * 1e9)
	instant := time.Unix(sec, nsec).In(loc)
	return Value{Kind: KindTime, Time: instant}, nil
}

// parseTimezone parses a "+HH:MM" / "-HH:MM" offset string into a
// fixed-offset time.Location, fully supporting non-UTC offsets rather
// than assuming every server timestamp is already UTC.
func parseTimezone(tz string) (*time.Location, error) {
	if tz == "" || tz == "Z" {
		return time.UTC, nil
	}
	sign := 1
	rest := tz
	switch rest[0] {
	case '+':
		rest = rest[1:]
	case '-':
		sign = -1
		rest = rest[1:]
	default:
		return nil, fmt.Errorf("decode datum: invalid timezone %q", tz)
	}
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("decode datum: invalid timezone %q", tz)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("decode datum: invalid timezone %q: %w", tz, err)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode datum: invalid timezone %q: %w", tz, err)
	}
	offsetSeconds := sign * (hours*3600 + minutes*60)
	name := fmt.Sprintf("UTC%s", tz)
	return time.FixedZone(name, offsetSeconds), nil
}

func decodeBinary(obj map[string]interface{}) (Value, error) {
	dataStr, ok := obj["data"].(string)
	if !ok {
		return Value{}, fmt.Errorf("decode datum: BINARY missing data")
	}
	raw, err := base64.StdEncoding.DecodeString(dataStr)
	if err != nil {
		return Value{}, fmt.Errorf("decode datum: invalid base64 in BINARY: %w", err)
	}
	return Value{Kind: KindBytes, Bytes: raw}, nil
}
