// Package validation coerces raw agent output into a task's declared result
// shape and, on mismatch, produces the corrective feedback sent back to the
// agent.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ShayCichocki/weave/pkg/models"
)

// Mismatch describes every way a raw output failed to conform to the
// declared shape. It satisfies error so callers can surface it directly.
type Mismatch struct {
	// Problems lists the individual conformance failures.
	Problems []string
	// Raw is the output that failed validation.
	Raw string
}

// Error returns the problems joined into one diagnostic line.
func (m *Mismatch) Error() string {
	return "output does not match result shape: " + strings.Join(m.Problems, "; ")
}

// Validator coerces raw output into declared result shapes. It is stateless
// and safe for concurrent use.
type Validator struct{}

// New creates a validator.
func New() *Validator {
	return &Validator{}
}

// Validate attempts to coerce raw output into the declared shape. On success
// it returns the coerced value (string, int64, float64, bool, []any, or
// map[string]any per the shape). On failure it returns a Mismatch describing
// exactly what was wrong.
func (v *Validator) Validate(raw string, shape models.ResultShape) (any, *Mismatch) {
	trimmed := strings.TrimSpace(raw)

	switch shape.Kind {
	case "", models.ShapeAny:
		return trimmed, nil

	case models.ShapeString:
		value := unquote(trimmed)
		if value == "" {
			return nil, mismatch(raw, "expected a text value, got empty output")
		}
		if len(shape.Enum) > 0 && !contains(shape.Enum, value) {
			return nil, mismatch(raw, fmt.Sprintf("value %q is not one of the allowed values %v", value, shape.Enum))
		}
		return value, nil

	case models.ShapeInt:
		n, err := parseInt(trimmed)
		if err != nil {
			return nil, mismatch(raw, fmt.Sprintf("expected an integer, got %q", clip(trimmed)))
		}
		return n, nil

	case models.ShapeNumber:
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, mismatch(raw, fmt.Sprintf("expected a number, got %q", clip(trimmed)))
		}
		return f, nil

	case models.ShapeBool:
		b, err := strconv.ParseBool(strings.ToLower(trimmed))
		if err != nil {
			return nil, mismatch(raw, fmt.Sprintf("expected true or false, got %q", clip(trimmed)))
		}
		return b, nil

	case models.ShapeList, models.ShapeObject:
		jsonStr, ok := extractJSON(trimmed)
		if !ok {
			return nil, mismatch(raw, "no JSON found in output; respond with JSON only")
		}
		var decoded any
		if err := json.Unmarshal([]byte(jsonStr), &decoded); err != nil {
			return nil, mismatch(raw, fmt.Sprintf("invalid JSON: %v", err))
		}
		var problems []string
		value := coerce(decoded, shape, "", &problems)
		if len(problems) > 0 {
			return nil, &Mismatch{Problems: problems, Raw: raw}
		}
		return value, nil

	default:
		return nil, mismatch(raw, fmt.Sprintf("unknown result shape kind %q", shape.Kind))
	}
}

// coerce recursively checks and converts a decoded JSON value against a
// shape, accumulating problems with their field paths.
func coerce(v any, shape models.ResultShape, path string, problems *[]string) any {
	switch shape.Kind {
	case "", models.ShapeAny:
		return v

	case models.ShapeString:
		s, ok := asString(v)
		if !ok {
			*problems = append(*problems, fmt.Sprintf("%s: expected string, got %s", at(path), typeName(v)))
			return nil
		}
		if len(shape.Enum) > 0 && !contains(shape.Enum, s) {
			*problems = append(*problems, fmt.Sprintf("%s: value %q is not one of the allowed values %v", at(path), s, shape.Enum))
			return nil
		}
		return s

	case models.ShapeInt:
		switch n := v.(type) {
		case float64:
			if n != math.Trunc(n) {
				*problems = append(*problems, fmt.Sprintf("%s: expected integer, got %v", at(path), n))
				return nil
			}
			return int64(n)
		case string:
			parsed, err := parseInt(n)
			if err == nil {
				return parsed
			}
		}
		*problems = append(*problems, fmt.Sprintf("%s: expected integer, got %s", at(path), typeName(v)))
		return nil

	case models.ShapeNumber:
		switch n := v.(type) {
		case float64:
			return n
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				return f
			}
		}
		*problems = append(*problems, fmt.Sprintf("%s: expected number, got %s", at(path), typeName(v)))
		return nil

	case models.ShapeBool:
		switch b := v.(type) {
		case bool:
			return b
		case string:
			if parsed, err := strconv.ParseBool(strings.ToLower(b)); err == nil {
				return parsed
			}
		}
		*problems = append(*problems, fmt.Sprintf("%s: expected bool, got %s", at(path), typeName(v)))
		return nil

	case models.ShapeList:
		list, ok := v.([]any)
		if !ok {
			*problems = append(*problems, fmt.Sprintf("%s: expected list, got %s", at(path), typeName(v)))
			return nil
		}
		elem := models.AnyShape()
		if shape.Elem != nil {
			elem = *shape.Elem
		}
		out := make([]any, len(list))
		for i, item := range list {
			out[i] = coerce(item, elem, fmt.Sprintf("%s[%d]", path, i), problems)
		}
		return out

	case models.ShapeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			*problems = append(*problems, fmt.Sprintf("%s: expected object, got %s", at(path), typeName(v)))
			return nil
		}
		out := make(map[string]any, len(shape.Fields))
		for name, fieldShape := range shape.Fields {
			fieldValue, present := obj[name]
			if !present {
				*problems = append(*problems, fmt.Sprintf("missing required field %q", joinPath(path, name)))
				continue
			}
			out[name] = coerce(fieldValue, fieldShape, joinPath(path, name), problems)
		}
		return out

	default:
		*problems = append(*problems, fmt.Sprintf("%s: unknown shape kind %q", at(path), shape.Kind))
		return nil
	}
}

// extractJSON finds the JSON payload inside a possibly chatty response.
// Agents often wrap JSON in prose or code fences; take the outermost
// bracket-delimited span.
func extractJSON(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start == -1 {
		return "", false
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func mismatch(raw string, problem string) *Mismatch {
	return &Mismatch{Problems: []string{problem}, Raw: raw}
}

func parseInt(s string) (int64, error) {
	if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int64(f), nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if unquoted, err := strconv.Unquote(s); err == nil {
			return unquoted
		}
	}
	return s
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "bool"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func at(path string) string {
	if path == "" {
		return "value"
	}
	return "field " + strconv.Quote(strings.TrimPrefix(path, "."))
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func clip(s string) string {
	const maxLen = 120
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
