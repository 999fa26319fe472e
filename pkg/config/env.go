package config

import (
	"os"
	"reflect"
	"strings"
)

// expandEnvStrings resolves ${VAR} and ${VAR:-fallback} in every string field
// of cfg, descending into slices and the free-form vendor settings maps.
func expandEnvStrings(cfg *Config) {
	walkStrings(reflect.ValueOf(cfg).Elem())
}

func expandEnv(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return os.Expand(s, func(ref string) string {
		name, fallback, ok := strings.Cut(ref, ":-")
		if v, set := os.LookupEnv(name); set && (v != "" || !ok) {
			return v
		}
		return fallback
	})
}

func walkStrings(v reflect.Value) {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if !v.IsNil() {
			walkStrings(v.Elem())
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).IsExported() {
				walkStrings(v.Field(i))
			}
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(expandEnv(v.String()))
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			if el := v.Index(i); el.Kind() == reflect.Interface {
				if out := expandLoose(el.Interface()); out != nil {
					el.Set(reflect.ValueOf(out))
				}
				continue
			}
			walkStrings(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return
		}
		iter := v.MapRange()
		for iter.Next() {
			out := expandLoose(iter.Value().Interface())
			if out != nil {
				v.SetMapIndex(iter.Key(), reflect.ValueOf(out))
			}
		}
	}
}

// expandLoose handles values decoded from YAML without a schema. Nested maps
// with non-string keys are normalised to map[string]any.
func expandLoose(v any) any {
	switch val := v.(type) {
	case string:
		return expandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandLoose(val[i])
		}
		return val
	case map[string]any:
		for k, item := range val {
			val[k] = expandLoose(item)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if ks, ok := k.(string); ok {
				out[ks] = expandLoose(item)
			}
		}
		return out
	default:
		return v
	}
}
