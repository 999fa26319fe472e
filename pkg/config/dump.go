package config

import (
	"reflect"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const mask = "****"

var secretKeys = []string{"key", "token", "secret", "password"}

// MaskedYAML renders the effective configuration with secrets masked.
func (c Config) MaskedYAML() ([]byte, error) {
	return yaml.Marshal(toNode(reflect.ValueOf(c), ""))
}

// toNode converts v into maps keyed by mapstructure tags so the dump reads like
// the config file.
func toNode(v reflect.Value, key string) any {
	if !v.IsValid() {
		return nil
	}
	if v.Type() == reflect.TypeOf(time.Duration(0)) {
		return time.Duration(v.Int()).String()
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return toNode(v.Elem(), key)
	case reflect.Struct:
		out := &yaml.Node{Kind: yaml.MappingNode}
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name := strings.Split(f.Tag.Get("mapstructure"), ",")[0]
			if name == "-" {
				continue
			}
			if name == "" {
				name = strings.ToLower(f.Name)
			}
			appendPair(out, name, toNode(v.Field(i), name))
		}
		return out
	case reflect.Map:
		out := &yaml.Node{Kind: yaml.MappingNode}
		keys := make([]string, 0, v.Len())
		for _, k := range v.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		for _, k := range keys {
			appendPair(out, k, toNode(v.MapIndex(reflect.ValueOf(k)), k))
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			out = append(out, toNode(v.Index(i), key))
		}
		return out
	case reflect.String:
		return maskValue(key, v.String())
	default:
		return v.Interface()
	}
}

func appendPair(n *yaml.Node, key string, value any) {
	var vn yaml.Node
	if node, ok := value.(*yaml.Node); ok {
		vn = *node
	} else if err := vn.Encode(value); err != nil {
		vn = yaml.Node{Kind: yaml.ScalarNode, Value: ""}
	}
	n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, &vn)
}

func maskValue(key, value string) string {
	if value == "" {
		return value
	}
	k := strings.ToLower(key)
	if k == "dsn" && strings.Contains(value, "@") {
		return mask
	}
	for _, s := range secretKeys {
		if strings.Contains(k, s) && k != "key_prefix" {
			return mask
		}
	}
	return value
}
