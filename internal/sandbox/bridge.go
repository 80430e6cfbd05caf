package sandbox

import (
	"errors"
	"fmt"
	"reflect"
)

// The transport between host and context may only carry plain,
// structurally-cloneable data: scalars, ordered sequences and string-keyed
// maps. Capability behavior never crosses the boundary, only capability
// results do. Sanitize enforces that invariant on everything that crosses:
// initial bindings, host-call arguments and replies, and script results.

var ErrNotPlainData = errors.New("value is not plain cloneable data")

const maxSanitizeDepth = 64

// Sanitize deep-converts v into plain data or reports why it cannot.
func Sanitize(v interface{}) (interface{}, error) {
	return sanitize(v, 0)
}

// SanitizeBindings validates a caller-supplied binding map. A function or
// any other live value anywhere in the map is rejected outright rather
// than silently dropped, so callers learn about the mistake.
func SanitizeBindings(bindings map[string]interface{}) (map[string]interface{}, error) {
	if bindings == nil {
		return nil, nil
	}
	out, err := sanitizeMap(reflect.ValueOf(bindings), 0)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func sanitize(v interface{}, depth int) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if depth > maxSanitizeDepth {
		return nil, fmt.Errorf("%w: nesting exceeds depth %d", ErrNotPlainData, maxSanitizeDepth)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item, err := sanitize(rv.Index(i).Interface(), depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case reflect.Map:
		return sanitizeMap(rv, depth)
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return sanitize(rv.Elem().Interface(), depth+1)
	case reflect.Func:
		return nil, fmt.Errorf("%w: function values cannot cross the isolation boundary", ErrNotPlainData)
	case reflect.Chan:
		return nil, fmt.Errorf("%w: channel values cannot cross the isolation boundary", ErrNotPlainData)
	default:
		return nil, fmt.Errorf("%w: unsupported kind %s", ErrNotPlainData, rv.Kind())
	}
}

func sanitizeMap(rv reflect.Value, depth int) (map[string]interface{}, error) {
	if rv.Type().Key().Kind() != reflect.String {
		return nil, fmt.Errorf("%w: map keys must be strings, got %s", ErrNotPlainData, rv.Type().Key().Kind())
	}

	out := make(map[string]interface{}, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		val, err := sanitize(iter.Value().Interface(), depth+1)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", iter.Key().String(), err)
		}
		out[iter.Key().String()] = val
	}
	return out, nil
}
