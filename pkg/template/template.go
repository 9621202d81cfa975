// Package template provides templating for edge conditions and node
// configuration against the data accumulated during a run.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// Scope is the data visible to templates while a run executes.
type Scope struct {
	RunID      string
	WorkflowID string
	Input      map[string]any
	Nodes      map[string]any
	Variables  map[string]any
}

// RenderWithScope evaluates a template string against the run scope. Node
// outputs are addressed as .nodes.<id>, the initial input as .input.
func RenderWithScope(input string, scope *Scope) (any, error) {
	data := map[string]any{
		"input": scope.Input,
		"nodes": scope.Nodes,
		"vars":  scope.Variables,
		"env":   getEnvVars(),
		"run": map[string]any{
			"id":          scope.RunID,
			"workflow_id": scope.WorkflowID,
		},
	}

	return Render(input, data)
}

func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("transform").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}
				num := make([]byte, 1)
				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return jsonResult, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderConfig renders every string value of a node configuration map,
// recursing into nested maps and slices.
func RenderConfig(config map[string]any, scope *Scope) (map[string]any, error) {
	rendered := make(map[string]any, len(config))

	for key, value := range config {
		out, err := renderValue(value, scope)
		if err != nil {
			return nil, err
		}

		rendered[key] = out
	}

	return rendered, nil
}

func renderValue(value any, scope *Scope) (any, error) {
	switch v := value.(type) {
	case string:
		if !NeedsTemplating(v) {
			return v, nil
		}

		return RenderWithScope(v, scope)
	case map[string]any:
		return RenderConfig(v, scope)
	case []any:
		out := make([]any, len(v))

		for i, item := range v {
			rendered, err := renderValue(item, scope)
			if err != nil {
				return nil, err
			}

			out[i] = rendered
		}

		return out, nil
	default:
		return value, nil
	}
}

// EvaluateCondition renders an edge condition and reports whether it holds.
// An empty condition always holds.
func EvaluateCondition(condition string, scope *Scope) (bool, error) {
	if strings.TrimSpace(condition) == "" {
		return true, nil
	}

	result, err := RenderWithScope(condition, scope)
	if err != nil {
		return false, err
	}

	return Truthy(result), nil
}

// Truthy reports whether a rendered value counts as true for edge traversal.
func Truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		s := strings.TrimSpace(strings.ToLower(v))

		return s != "" && s != "false" && s != "0" && s != "<no value>"
	case float64:
		return v != 0
	case int:
		return v != 0
	case nil:
		return false
	default:
		return true
	}
}

// NeedsTemplating checks if a string contains template expressions.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{")
}

// getEnvVars returns environment variables as a map.
func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
