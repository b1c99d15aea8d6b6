package message

import (
	"reflect"
)

// Cloner lets a value stored in a message supply its own deep copy.
type Cloner interface {
	Clone() any
}

// Clone returns an independent deep copy of m. Maps, slices and arrays are
// copied recursively, as are the exported fields of structs; values
// implementing Cloner copy themselves. Unexported struct fields, functions,
// channels and pointers are carried over as the same reference rather than
// dropped.
func Clone(m Msg) Msg {
	if m == nil {
		return nil
	}
	out := make(Msg, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies a single message value.
func CloneValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string, bool, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return t
	case Msg:
		return Clone(t)
	case map[string]any:
		if t == nil {
			return t
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = CloneValue(e)
		}
		return out
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	case []byte:
		if t == nil {
			return t
		}
		return append([]byte(nil), t...)
	case Cloner:
		return t.Clone()
	}
	return cloneReflect(reflect.ValueOf(v)).Interface()
}

func cloneReflect(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneElem(iter.Value(), v.Type().Elem()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(cloneElem(v.Index(i), v.Type().Elem()))
		}
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(cloneElem(v.Index(i), v.Type().Elem()))
		}
		return out
	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for i := 0; i < v.NumField(); i++ {
			if f := out.Field(i); f.CanSet() {
				f.Set(cloneElem(v.Field(i), f.Type()))
			}
		}
		return out
	default:
		// Pointers, funcs and channels keep identity.
		return v
	}
}

func cloneElem(e reflect.Value, typ reflect.Type) reflect.Value {
	if typ.Kind() == reflect.Interface {
		if e.IsNil() {
			return reflect.Zero(typ)
		}
		return reflect.ValueOf(CloneValue(e.Interface()))
	}
	return cloneReflect(e)
}
