package datapath

import (
	"math"
	"reflect"

	"github.com/mitchellh/copystructure"
)

// IsContainer reports whether v is a map or slice that paths can descend into.
func IsContainer(v any) bool {
	_, ok := Len(v)
	return ok
}

// Len returns the number of elements of a slice or array, or of keys of a
// string-keyed map. Typed containers such as []int or map[string]string are
// measured through reflect.
func Len(v any) (int, bool) {
	switch t := v.(type) {
	case map[string]any:
		return len(t), true
	case []any:
		return len(t), true
	case nil:
		return 0, false
	}
	rv, ok := deref(v)
	if !ok {
		return 0, false
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len(), true
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			return rv.Len(), true
		}
	}
	return 0, false
}

// AsMap returns v as a map[string]any. A map[string]any is returned as is;
// other string-keyed maps are copied shallowly.
func AsMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case nil, []any:
		return nil, false
	}
	rv, ok := deref(v)
	if !ok || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// AsList returns v as a []any. A []any is returned as is; other slices and
// arrays are copied shallowly.
func AsList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case nil, map[string]any:
		return nil, false
	}
	rv, ok := deref(v)
	if !ok || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func deref(v any) (reflect.Value, bool) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return reflect.Value{}, false
		}
		rv = rv.Elem()
	}
	return rv, rv.IsValid()
}

// Clone returns a deep copy of v. Scalars are returned as-is. Values that
// cannot be copied structurally (funcs, channels) are shared.
func Clone(v any) any {
	switch t := v.(type) {
	case nil, bool, string, int, int64, float64:
		return v
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	}
	c, err := copystructure.Copy(v)
	if err != nil {
		return v
	}
	return c
}

// Equal compares two data values structurally. Numbers compare by value
// across Go numeric types, so int(3) equals float64(3), and NaN equals NaN.
// Maps and slices compare element-wise whatever their Go element type, so
// []int{1, 2} equals []any{1, 2}. Everything else falls back to
// reflect.DeepEqual.
func Equal(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && (af == bf || (math.IsNaN(af) && math.IsNaN(bf)))
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	if am, ok := AsMap(a); ok {
		bm, ok := AsMap(b)
		if !ok || len(am) != len(bm) {
			return false
		}
		for k, ae := range am {
			be, ok := bm[k]
			if !ok || !Equal(ae, be) {
				return false
			}
		}
		return true
	}
	if al, ok := AsList(a); ok {
		bl, ok := AsList(b)
		if !ok || len(al) != len(bl) {
			return false
		}
		for i := range al {
			if !Equal(al[i], bl[i]) {
				return false
			}
		}
		return true
	}
	if IsContainer(b) {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// ToFloat converts any Go numeric value to float64.
func ToFloat(v any) (float64, bool) {
	return toFloat(v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
