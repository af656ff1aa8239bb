// Package sanitize converts arbitrary form payloads into plain values that
// serialize deterministically: maps, slices, strings, numbers, bools, and nil.
package sanitize

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"time"
)

// Clean returns a copy of v containing only plain serializable values.
//
// Rules:
//   - time.Time becomes an RFC 3339 UTC string
//   - []byte becomes a base64 string
//   - functions, channels, and unsafe pointers are dropped
//   - non-string map keys are stringified
//   - cyclic references are replaced with nil at the point of the cycle
//   - anything else unrecognized falls back to its fmt representation
//
// Clean is idempotent: Clean(Clean(v)) equals Clean(v).
func Clean(v any) any {
	return clean(reflect.ValueOf(v), map[uintptr]bool{})
}

func clean(v reflect.Value, seen map[uintptr]bool) any {
	if !v.IsValid() {
		return nil
	}

	// Unwrap interfaces and pointers before switching on kind.
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		if v.Kind() == reflect.Pointer {
			ptr := v.Pointer()
			if seen[ptr] {
				return nil
			}
			seen[ptr] = true
			defer delete(seen, ptr)
		}
		v = v.Elem()
	}

	if t, ok := v.Interface().(time.Time); ok {
		return t.UTC().Format(time.RFC3339)
	}

	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint()
	case reflect.Float32, reflect.Float64:
		return v.Float()

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice {
			if v.IsNil() {
				return nil
			}
			if v.Type().Elem().Kind() == reflect.Uint8 {
				return base64.StdEncoding.EncodeToString(v.Bytes())
			}
			ptr := v.Pointer()
			if seen[ptr] {
				return nil
			}
			seen[ptr] = true
			defer delete(seen, ptr)
		}
		out := make([]any, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			out = append(out, clean(v.Index(i), seen))
		}
		return out

	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		ptr := v.Pointer()
		if seen[ptr] {
			return nil
		}
		seen[ptr] = true
		defer delete(seen, ptr)
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key := mapKey(iter.Key())
			out[key] = clean(iter.Value(), seen)
		}
		return out

	case reflect.Struct:
		out := make(map[string]any, v.NumField())
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name := f.Name
			if tag, ok := f.Tag.Lookup("json"); ok {
				parsed := parseJSONTag(tag)
				if parsed == "-" {
					continue
				}
				if parsed != "" {
					name = parsed
				}
			}
			out[name] = clean(v.Field(i), seen)
		}
		return out

	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return nil

	default:
		return fmt.Sprint(v.Interface())
	}
}

func mapKey(k reflect.Value) string {
	for k.Kind() == reflect.Interface || k.Kind() == reflect.Pointer {
		if k.IsNil() {
			return "<nil>"
		}
		k = k.Elem()
	}
	if k.Kind() == reflect.String {
		return k.String()
	}
	return fmt.Sprint(k.Interface())
}

func parseJSONTag(tag string) string {
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			return tag[:i]
		}
	}
	return tag
}
