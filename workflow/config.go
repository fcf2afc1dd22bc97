package workflow

import (
	"fmt"
	"net/url"
	"strings"
)

// validateStepConfig dispatches to the per-kind configuration checker.
// Required fields produce errors; optional-but-recommended fields produce
// warnings. The config payload is otherwise opaque to the engine.
func validateStepConfig(s Step, path string) []Diagnostic {
	switch s.Kind {
	case KindDataSource:
		return validateDataSourceConfig(s, path)
	case KindAIProcessor:
		return validateAIProcessorConfig(s, path)
	case KindTransform:
		return validateTransformConfig(s, path)
	case KindDelivery:
		return validateDeliveryConfig(s, path)
	}
	return nil
}

func validateDataSourceConfig(s Step, path string) []Diagnostic {
	diags := make([]Diagnostic, 0)

	if configString(s.Config, "engine") == "" {
		diags = append(diags, errDiag("CF-101",
			fmt.Sprintf("Data source step %q is missing required field \"engine\"", s.ID),
			path+".engine"))
	}
	if configString(s.Config, "host") == "" {
		diags = append(diags, errDiag("CF-102",
			fmt.Sprintf("Data source step %q is missing required field \"host\"", s.ID),
			path+".host"))
	}

	for _, field := range []string{"database", "username", "password"} {
		if configString(s.Config, field) == "" {
			diags = append(diags, warnDiag("CF-110",
				fmt.Sprintf("Data source step %q has no %q configured", s.ID, field),
				path+"."+field))
		}
	}

	return diags
}

func validateAIProcessorConfig(s Step, path string) []Diagnostic {
	diags := make([]Diagnostic, 0)

	if configString(s.Config, "model") == "" {
		diags = append(diags, errDiag("CF-201",
			fmt.Sprintf("AI step %q is missing required field \"model\"", s.ID),
			path+".model"))
	}
	if configString(s.Config, "prompt") == "" {
		diags = append(diags, errDiag("CF-202",
			fmt.Sprintf("AI step %q is missing required field \"prompt\"", s.ID),
			path+".prompt"))
	}

	if temp, ok := configNumber(s.Config, "temperature"); ok {
		if temp < 0 || temp > 1 {
			diags = append(diags, errDiag("CF-203",
				fmt.Sprintf("AI step %q temperature %v is outside [0, 1]", s.ID, temp),
				path+".temperature"))
		}
	}
	if maxTokens, ok := configNumber(s.Config, "max_tokens"); ok {
		if maxTokens < 1 {
			diags = append(diags, errDiag("CF-204",
				fmt.Sprintf("AI step %q max_tokens must be at least 1", s.ID),
				path+".max_tokens"))
		}
	}

	return diags
}

func validateTransformConfig(s Step, path string) []Diagnostic {
	diags := make([]Diagnostic, 0)

	if configString(s.Config, "operation") == "" {
		diags = append(diags, errDiag("CF-301",
			fmt.Sprintf("Transform step %q is missing required field \"operation\"", s.ID),
			path+".operation"))
	}
	if configString(s.Config, "script") == "" {
		diags = append(diags, errDiag("CF-302",
			fmt.Sprintf("Transform step %q is missing required field \"script\"", s.ID),
			path+".script"))
	}

	return diags
}

func validateDeliveryConfig(s Step, path string) []Diagnostic {
	diags := make([]Diagnostic, 0)

	destination := configString(s.Config, "destination")
	if destination == "" {
		diags = append(diags, errDiag("CF-401",
			fmt.Sprintf("Delivery step %q is missing required field \"destination\"", s.ID),
			path+".destination"))
		return diags
	}

	switch destination {
	case "webhook":
		raw := configString(s.Config, "url")
		if raw == "" {
			diags = append(diags, errDiag("CF-402",
				fmt.Sprintf("Webhook delivery step %q is missing required field \"url\"", s.ID),
				path+".url"))
		} else if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			diags = append(diags, errDiag("CF-403",
				fmt.Sprintf("Webhook delivery step %q has invalid url %q", s.ID, raw),
				path+".url"))
		}
	case "email":
		if len(configStringSlice(s.Config, "recipients")) == 0 {
			diags = append(diags, errDiag("CF-404",
				fmt.Sprintf("Email delivery step %q has no recipients", s.ID),
				path+".recipients"))
		}
	case "chat":
		if configString(s.Config, "webhook_url") == "" {
			diags = append(diags, errDiag("CF-405",
				fmt.Sprintf("Chat delivery step %q is missing required field \"webhook_url\"", s.ID),
				path+".webhook_url"))
		}
	default:
		diags = append(diags, errDiag("CF-406",
			fmt.Sprintf("Delivery step %q has unknown destination %q", s.ID, destination),
			path+".destination"))
	}

	return diags
}

// configString reads a string field from a config map, trimming whitespace.
func configString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

// configNumber reads a numeric field from a config map. JSON decoding
// produces float64; YAML may produce int.
func configNumber(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// configStringSlice reads a list of strings from a config map. Both
// []string and []any (the JSON decode shape) are accepted.
func configStringSlice(m map[string]any, key string) []string {
	if m == nil {
		return nil
	}
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
