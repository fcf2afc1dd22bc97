package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// Transform operations. The step config selects one via "operation"; the
// "script" field carries the operation's argument: the template text for
// template, a comma-separated field list for pick and omit, and the
// format name for parse and stringify.
const (
	OpTemplate  = "template"
	OpPick      = "pick"
	OpOmit      = "omit"
	OpParse     = "parse"
	OpStringify = "stringify"
)

// Transform reshapes step input using declarative operations. It is a
// pure capability: no I/O, output depends only on config and input.
type Transform struct{}

// NewTransform creates the transform capability.
func NewTransform() *Transform {
	return &Transform{}
}

// Execute applies the configured operation to the input.
func (t *Transform) Execute(ctx context.Context, config map[string]any, input any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	op := cfgString(config, "operation")
	script := cfgString(config, "script")
	if op == "" {
		return nil, fmt.Errorf("transform: operation is required")
	}
	if script == "" {
		return nil, fmt.Errorf("transform: script is required")
	}

	switch op {
	case OpTemplate:
		return t.renderTemplate(script, input)
	case OpPick:
		return t.pick(parseFieldList(script), input)
	case OpOmit:
		return t.omit(parseFieldList(script), input)
	case OpParse:
		return t.parse(script, input)
	case OpStringify:
		return t.stringify(script, input)
	default:
		return nil, fmt.Errorf("transform: unknown operation %q", op)
	}
}

func (t *Transform) renderTemplate(text string, input any) (any, error) {
	tmpl, err := template.New("transform").Funcs(transformTemplateFuncs()).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("transform: invalid template: %w", err)
	}

	data := map[string]any{"input": input}
	if m, ok := toMap(input); ok {
		for k, v := range m {
			data[k] = v
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("transform: template execution failed: %w", err)
	}
	return buf.String(), nil
}

func (t *Transform) pick(fields []string, input any) (any, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("transform: pick requires a field list")
	}
	inputMap, ok := toMap(input)
	if !ok {
		return nil, fmt.Errorf("transform: pick requires map input, got %T", input)
	}

	result := make(map[string]any)
	for _, field := range fields {
		if val, found := getNestedValue(inputMap, field); found {
			setNestedValue(result, field, val)
		}
	}
	return result, nil
}

func (t *Transform) omit(fields []string, input any) (any, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("transform: omit requires a field list")
	}
	inputMap, ok := toMap(input)
	if !ok {
		return nil, fmt.Errorf("transform: omit requires map input, got %T", input)
	}

	result := deepCopyMap(inputMap)
	for _, field := range fields {
		deleteNestedValue(result, field)
	}
	return result, nil
}

func (t *Transform) parse(format string, input any) (any, error) {
	text, ok := input.(string)
	if !ok {
		return nil, fmt.Errorf("transform: parse requires string input, got %T", input)
	}

	switch format {
	case "json":
		var result any
		if err := json.Unmarshal([]byte(text), &result); err != nil {
			return nil, fmt.Errorf("transform: json parse failed: %w", err)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("transform: unsupported parse format %q", format)
	}
}

func (t *Transform) stringify(format string, input any) (any, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(input, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("transform: json marshal failed: %w", err)
		}
		return string(data), nil
	case "text":
		return fmt.Sprintf("%v", input), nil
	default:
		return nil, fmt.Errorf("transform: unsupported stringify format %q", format)
	}
}

// parseFieldList splits a comma-separated field list, dropping blanks.
func parseFieldList(script string) []string {
	parts := strings.Split(script, ",")
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		if f := strings.TrimSpace(p); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

func transformTemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"json": func(v any) string {
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			return string(data)
		},
		"jsonPretty": func(v any) string {
			data, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			return string(data)
		},
		"join":      strings.Join,
		"split":     strings.Split,
		"upper":     strings.ToUpper,
		"lower":     strings.ToLower,
		"trim":      strings.TrimSpace,
		"contains":  strings.Contains,
		"hasPrefix": strings.HasPrefix,
		"hasSuffix": strings.HasSuffix,
		"default": func(defaultVal, val any) any {
			if val == nil || val == "" {
				return defaultVal
			}
			return val
		},
	}
}
