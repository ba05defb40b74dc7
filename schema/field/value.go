package field

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// timeLayouts are the textual layouts drivers use for stored timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Canonical converts a property value read from an object, a driver or a
// cache entry into the canonical Go representation of the type:
//
//	TypeBool                          bool
//	TypeInt, TypeInt64                int64
//	TypeFloat64                       float64
//	TypeString, TypeText, TypeEnum,
//	TypeDecimal                       string
//	TypeBytes, TypeJSON               []byte
//	TypeTime                          time.Time
//	TypeUUID                          uuid.UUID
//
// nil stays nil. Values of other types are returned unchanged when they
// cannot be converted and have no textual form to parse.
func (t Type) Canonical(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		v = rv.Elem().Interface()
	}
	switch t {
	case TypeBool:
		return toBool(v)
	case TypeInt, TypeInt64:
		return toInt64(v)
	case TypeFloat64:
		return toFloat64(v)
	case TypeString, TypeText, TypeEnum, TypeDecimal:
		return toString(v)
	case TypeBytes:
		return toBytes(v)
	case TypeJSON:
		switch v := v.(type) {
		case []byte, string, json.RawMessage:
			return toBytes(v)
		default:
			return json.Marshal(v)
		}
	case TypeTime:
		return toTime(v)
	case TypeUUID:
		return toUUID(v)
	default:
		return v, nil
	}
}

func toBool(v any) (any, error) {
	switch v := v.(type) {
	case bool:
		return v, nil
	case []byte:
		return strconv.ParseBool(string(v))
	case string:
		return strconv.ParseBool(v)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0, nil
	case reflect.Bool:
		return rv.Bool(), nil
	}
	return nil, fmt.Errorf("field: cannot convert %T to bool", v)
}

func toInt64(v any) (any, error) {
	switch v := v.(type) {
	case int64:
		return v, nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return int64(rv.Float()), nil
	}
	return nil, fmt.Errorf("field: cannot convert %T to int64", v)
}

func toFloat64(v any) (any, error) {
	switch v := v.(type) {
	case float64:
		return v, nil
	case []byte:
		return strconv.ParseFloat(string(v), 64)
	case string:
		return strconv.ParseFloat(v, 64)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	}
	return nil, fmt.Errorf("field: cannot convert %T to float64", v)
}

func toString(v any) (any, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	}
	return nil, fmt.Errorf("field: cannot convert %T to string", v)
}

func toBytes(v any) (any, error) {
	switch v := v.(type) {
	case []byte:
		return append([]byte(nil), v...), nil
	case json.RawMessage:
		return append([]byte(nil), v...), nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("field: cannot convert %T to []byte", v)
}

func toTime(v any) (any, error) {
	var s string
	switch v := v.(type) {
	case time.Time:
		return v, nil
	case []byte:
		s = string(v)
	case string:
		s = v
	case int64:
		return time.Unix(v, 0).UTC(), nil
	default:
		return nil, fmt.Errorf("field: cannot convert %T to time.Time", v)
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return nil, fmt.Errorf("field: cannot parse time %q", s)
}

func toUUID(v any) (any, error) {
	switch v := v.(type) {
	case uuid.UUID:
		return v, nil
	case [16]byte:
		return uuid.UUID(v), nil
	case []byte:
		if len(v) == 16 {
			return uuid.FromBytes(v)
		}
		return uuid.ParseBytes(v)
	case string:
		return uuid.Parse(v)
	case fmt.Stringer:
		return uuid.Parse(v.String())
	}
	return nil, fmt.Errorf("field: cannot convert %T to uuid.UUID", v)
}
