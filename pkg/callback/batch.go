package callback

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/boristopalov/armtrain/pkg/core"
)

// normalizeBatch turns the polymorphic infos/dones pair into two slices of
// equal length. ok is false when either value is missing.
func normalizeBatch(locals core.Locals) (infos []any, dones []bool, ok bool, err error) {
	rawInfos, found := locals[core.LocalInfos]
	if !found || rawInfos == nil {
		return nil, nil, false, nil
	}
	rawDones, found := locals[core.LocalDones]
	if !found || rawDones == nil {
		return nil, nil, false, nil
	}

	switch d := rawDones.(type) {
	case bool:
		dones = []bool{d}
	case []bool:
		dones = d
	default:
		return nil, nil, false, fmt.Errorf("%w: %T", ErrUnsupportedDones, rawDones)
	}

	seq, isSeq := asSequence(rawInfos)
	if !isSeq {
		infos = make([]any, len(dones))
		for i := range infos {
			infos[i] = rawInfos
		}
		return infos, dones, true, nil
	}
	if len(seq) < len(dones) {
		return nil, nil, false, fmt.Errorf("%w: %d infos for %d dones", ErrInfosMismatch, len(seq), len(dones))
	}
	return seq[:len(dones)], dones, true, nil
}

func asSequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []core.Info:
		out := make([]any, len(s))
		for i, info := range s {
			out[i] = info
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(s))
		for i, info := range s {
			out[i] = info
		}
		return out, true
	}
	return nil, false
}

func asRecord(v any) (map[string]any, bool) {
	switch r := v.(type) {
	case core.Info:
		return r, r != nil
	case map[string]any:
		return r, r != nil
	}
	return nil, false
}

// Flag coerces a boolean-like value to 0 or 1.
func Flag(v any) int {
	if Truthy(v) {
		return 1
	}
	return 0
}

// Truthy reports whether v counts as true: true, non-zero numbers (NaN
// included), non-empty slices, maps and arrays, and non-nil pointers to a
// truthy value. Strings are stricter than a plain non-empty check: "false",
// "0" and other strings that parse as a false or zero value count as false.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int:
		return x != 0
	case int8:
		return x != 0
	case int16:
		return x != 0
	case int32:
		return x != 0
	case int64:
		return x != 0
	case uint:
		return x != 0
	case uint8:
		return x != 0
	case uint16:
		return x != 0
	case uint32:
		return x != 0
	case uint64:
		return x != 0
	case float32:
		return x != 0
	case float64:
		return x != 0 || math.IsNaN(x)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return false
		}
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f != 0
		}
		return true
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	case core.Info:
		return len(x) > 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.Chan:
		return rv.Len() > 0
	case reflect.String:
		return Truthy(rv.String())
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return Truthy(rv.Float())
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return Truthy(rv.Elem().Interface())
	case reflect.Func:
		return !rv.IsNil()
	}
	return true
}

// isNil reports whether v is nil or a nil pointer, interface, map or slice.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
