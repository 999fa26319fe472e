package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Schema defines required and optional keys for a settings map.
type Schema struct {
	Required     []string
	Optional     []string
	AllowUnknown bool
}

// LLMSettings are the settings of providers.llm for every provider.
type LLMSettings struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	// ResponseText is the canned reply of the mock provider.
	ResponseText string `mapstructure:"response_text"`
}

var llmSchemas = map[string]Schema{
	"openai":    {Required: []string{"api_key"}, Optional: []string{"model", "base_url", "timeout", "temperature", "max_tokens"}},
	"anthropic": {Required: []string{"api_key"}, Optional: []string{"model", "base_url", "timeout", "temperature", "max_tokens"}},
	"mock":      {Optional: []string{"response_text", "model", "temperature", "max_tokens"}},
}

// Name is the normalized provider name; empty means no language model.
func (v VendorConfig) Name() string {
	return strings.ToLower(strings.TrimSpace(v.Provider))
}

// Validate checks the provider name and its settings against the provider schema.
func (v VendorConfig) Validate() error {
	name := v.Name()
	if name == "" {
		return nil
	}
	schema, ok := llmSchemas[name]
	if !ok {
		return fmt.Errorf("unknown provider %q", v.Provider)
	}
	if err := ValidateSettings(v.Settings, schema); err != nil {
		return fmt.Errorf("%s settings: %w", name, err)
	}
	return nil
}

// LLMSettings decodes the vendor settings.
func (v VendorConfig) LLMSettings() (LLMSettings, error) {
	var s LLMSettings
	err := DecodeSettings(v.Settings, &s)
	return s, err
}

// ValidateSettings validates a settings map against a schema.
// Keys are normalized to be case/underscore/hyphen insensitive.
func ValidateSettings(input map[string]any, schema Schema) error {
	required := make(map[string]string, len(schema.Required))
	allowed := make(map[string]struct{}, len(schema.Required)+len(schema.Optional))
	for _, k := range schema.Required {
		required[normalizeKey(k)] = k
		allowed[normalizeKey(k)] = struct{}{}
	}
	for _, k := range schema.Optional {
		allowed[normalizeKey(k)] = struct{}{}
	}

	var missing, unknown []string
	seen := make(map[string]bool, len(input))
	for k, v := range input {
		nk := normalizeKey(k)
		seen[nk] = true
		if _, ok := allowed[nk]; !ok && !schema.AllowUnknown {
			unknown = append(unknown, k)
		}
		if reqKey, ok := required[nk]; ok && isEmptyValue(v) {
			missing = append(missing, reqKey)
		}
	}
	for nk, reqKey := range required {
		if !seen[nk] {
			missing = append(missing, reqKey)
		}
	}

	if len(missing) == 0 && len(unknown) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(unknown)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(missing, ", "))
	}
	if len(unknown) > 0 {
		parts = append(parts, "unknown: "+strings.Join(unknown, ", "))
	}
	return errors.New(strings.Join(parts, "; "))
}

// DecodeSettings decodes a free-form settings map into a typed struct.
func DecodeSettings(input map[string]any, out any) error {
	if len(input) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		MatchName: func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		},
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// RequireString ensures a value is present for a required config field.
func RequireString(value, path string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", path)
	}
	return nil
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func normalizeKey(value string) string {
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "_", "")
	value = strings.ReplaceAll(value, "-", "")
	return value
}
