package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ShapeKind identifies the top-level type of a result shape.
type ShapeKind string

const (
	// ShapeAny accepts the raw output verbatim without coercion.
	ShapeAny ShapeKind = "any"
	// ShapeString expects a single text value.
	ShapeString ShapeKind = "string"
	// ShapeInt expects an integer value.
	ShapeInt ShapeKind = "int"
	// ShapeNumber expects a numeric value.
	ShapeNumber ShapeKind = "number"
	// ShapeBool expects a boolean value.
	ShapeBool ShapeKind = "bool"
	// ShapeList expects an ordered collection of Elem-shaped values.
	ShapeList ShapeKind = "list"
	// ShapeObject expects a JSON object with the declared Fields.
	ShapeObject ShapeKind = "object"
)

// ResultShape describes the structure a task's output must conform to.
// Shapes nest: a list carries an element shape, an object carries field shapes.
type ResultShape struct {
	// Kind is the top-level type of the shape.
	Kind ShapeKind `json:"kind"`
	// Fields maps field names to their shapes. Only set for ShapeObject;
	// every declared field is required.
	Fields map[string]ResultShape `json:"fields,omitempty"`
	// Elem is the shape of each list element. Only set for ShapeList.
	Elem *ResultShape `json:"elem,omitempty"`
	// Enum restricts a string value to an enumerated set. Only meaningful
	// for ShapeString.
	Enum []string `json:"enum,omitempty"`
}

// AnyShape returns an open-ended shape that accepts raw output verbatim.
func AnyShape() ResultShape { return ResultShape{Kind: ShapeAny} }

// StringShape returns a shape expecting a single text value.
func StringShape() ResultShape { return ResultShape{Kind: ShapeString} }

// IntShape returns a shape expecting an integer value.
func IntShape() ResultShape { return ResultShape{Kind: ShapeInt} }

// BoolShape returns a shape expecting a boolean value.
func BoolShape() ResultShape { return ResultShape{Kind: ShapeBool} }

// EnumShape returns a string shape restricted to the given values.
func EnumShape(values ...string) ResultShape {
	return ResultShape{Kind: ShapeString, Enum: values}
}

// ListOf returns a shape expecting a list of elem-shaped values.
func ListOf(elem ResultShape) ResultShape {
	return ResultShape{Kind: ShapeList, Elem: &elem}
}

// ObjectOf returns a shape expecting a JSON object with the given fields.
// All fields are required.
func ObjectOf(fields map[string]ResultShape) ResultShape {
	return ResultShape{Kind: ShapeObject, Fields: fields}
}

// Zero returns true if the shape was never declared. An undeclared shape is
// treated as ShapeAny.
func (s ResultShape) Zero() bool {
	return s.Kind == ""
}

// Describe renders the shape in a compact human-readable form, e.g.
// {title: string, points: list<string>}. Used in agent prompts and in
// mismatch diagnostics.
func (s ResultShape) Describe() string {
	switch s.Kind {
	case "", ShapeAny:
		return "any"
	case ShapeString:
		if len(s.Enum) > 0 {
			return "enum(" + strings.Join(s.Enum, "|") + ")"
		}
		return "string"
	case ShapeInt:
		return "int"
	case ShapeNumber:
		return "number"
	case ShapeBool:
		return "bool"
	case ShapeList:
		if s.Elem == nil {
			return "list<any>"
		}
		return "list<" + s.Elem.Describe() + ">"
	case ShapeObject:
		names := make([]string, 0, len(s.Fields))
		for name := range s.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s: %s", name, s.Fields[name].Describe()))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return string(s.Kind)
	}
}

// Structured returns true if the shape requires JSON output from the agent.
func (s ResultShape) Structured() bool {
	switch s.Kind {
	case ShapeList, ShapeObject:
		return true
	default:
		return false
	}
}

// Result holds a validated, coerced task output.
type Result struct {
	// TaskID is the ID of the task that produced this result.
	TaskID string `json:"task_id"`
	// Value is the coerced value. Its dynamic type follows the declared shape:
	// string, int64, float64, bool, []any, or map[string]any.
	Value any `json:"value"`
	// Raw is the agent output the value was coerced from.
	Raw string `json:"raw,omitempty"`
	// CreatedAt is when the result was validated.
	CreatedAt time.Time `json:"created_at"`
}

// Text renders the result value for inclusion in a dependent task's prompt.
// Scalar values render as plain text, composite values as JSON.
func (r *Result) Text() string {
	switch v := r.Value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
