package flow

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/weave/pkg/models"
)

// File is a declarative flow loaded from YAML.
type File struct {
	// Version is the flow file format version.
	Version int `yaml:"version"`
	// Name is an optional human-readable flow name.
	Name string `yaml:"name,omitempty"`
	// Tasks is the declared task set.
	Tasks []TaskDecl `yaml:"tasks"`
}

// TaskDecl is one task declaration in a flow file.
type TaskDecl struct {
	// ID is the unique task identifier.
	ID string `yaml:"id"`
	// Objective is the instruction text for the agent.
	Objective string `yaml:"objective"`
	// DependsOn lists IDs of tasks that must succeed first.
	DependsOn []string `yaml:"depends_on,omitempty"`
	// Interactive marks the task as able to suspend for human input.
	Interactive bool `yaml:"interactive,omitempty"`
	// Agent names an explicit agent binding.
	Agent string `yaml:"agent,omitempty"`
	// Result is the declared result shape. It accepts either the compact
	// scalar syntax ("string", "list<string>", "enum(a|b|c)", ...) or an
	// expanded mapping with type/fields/elem keys.
	Result yaml.Node `yaml:"result,omitempty"`
}

// Load reads and parses a flow file from disk.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow file: %w", err)
	}
	return Parse(data)
}

// Parse parses flow file contents.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse flow file: %w", err)
	}
	if len(f.Tasks) == 0 {
		return nil, fmt.Errorf("flow file declares no tasks")
	}
	for i, decl := range f.Tasks {
		if decl.ID == "" {
			return nil, fmt.Errorf("task %d: missing id", i)
		}
		if decl.Objective == "" {
			return nil, fmt.Errorf("task %s: missing objective", decl.ID)
		}
	}
	return &f, nil
}

// BuildTasks converts the declarations into task entities in declaration
// order.
func (f *File) BuildTasks() ([]*models.Task, error) {
	tasks := make([]*models.Task, 0, len(f.Tasks))
	for _, decl := range f.Tasks {
		shape, err := parseShapeNode(&decl.Result)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", decl.ID, err)
		}
		tasks = append(tasks, &models.Task{
			ID:          decl.ID,
			Objective:   decl.Objective,
			DependsOn:   decl.DependsOn,
			Shape:       shape,
			Interactive: decl.Interactive,
			Agent:       decl.Agent,
		})
	}
	return tasks, nil
}

// parseShapeNode interprets a result declaration. An absent node means the
// output is accepted verbatim.
func parseShapeNode(node *yaml.Node) (models.ResultShape, error) {
	if node == nil || node.Kind == 0 {
		return models.AnyShape(), nil
	}

	switch node.Kind {
	case yaml.ScalarNode:
		return ParseCompactShape(node.Value)
	case yaml.MappingNode:
		return parseShapeMapping(node)
	default:
		return models.ResultShape{}, fmt.Errorf("result shape must be a string or mapping")
	}
}

// shapeMapping mirrors the expanded YAML form of a result shape.
type shapeMapping struct {
	Type   string               `yaml:"type"`
	Fields map[string]yaml.Node `yaml:"fields,omitempty"`
	Elem   *yaml.Node           `yaml:"elem,omitempty"`
	Enum   []string             `yaml:"enum,omitempty"`
}

func parseShapeMapping(node *yaml.Node) (models.ResultShape, error) {
	var m shapeMapping
	if err := node.Decode(&m); err != nil {
		return models.ResultShape{}, fmt.Errorf("decode result shape: %w", err)
	}

	switch models.ShapeKind(m.Type) {
	case models.ShapeObject:
		if len(m.Fields) == 0 {
			return models.ResultShape{}, fmt.Errorf("object shape declares no fields")
		}
		fields := make(map[string]models.ResultShape, len(m.Fields))
		for name, fieldNode := range m.Fields {
			n := fieldNode
			shape, err := parseShapeNode(&n)
			if err != nil {
				return models.ResultShape{}, fmt.Errorf("field %s: %w", name, err)
			}
			fields[name] = shape
		}
		return models.ObjectOf(fields), nil
	case models.ShapeList:
		if m.Elem == nil {
			return models.ListOf(models.AnyShape()), nil
		}
		elem, err := parseShapeNode(m.Elem)
		if err != nil {
			return models.ResultShape{}, fmt.Errorf("list elem: %w", err)
		}
		return models.ListOf(elem), nil
	case models.ShapeString:
		if len(m.Enum) > 0 {
			return models.EnumShape(m.Enum...), nil
		}
		return models.StringShape(), nil
	case models.ShapeAny, models.ShapeInt, models.ShapeNumber, models.ShapeBool:
		return models.ResultShape{Kind: models.ShapeKind(m.Type)}, nil
	default:
		return models.ResultShape{}, fmt.Errorf("unknown shape type %q", m.Type)
	}
}

// ParseCompactShape parses the compact scalar shape syntax:
// any, string, int, number, bool, list<X>, enum(a|b|c).
func ParseCompactShape(s string) (models.ResultShape, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "any":
		return models.AnyShape(), nil
	case "string":
		return models.StringShape(), nil
	case "int":
		return models.IntShape(), nil
	case "number":
		return models.ResultShape{Kind: models.ShapeNumber}, nil
	case "bool":
		return models.BoolShape(), nil
	}

	if strings.HasPrefix(s, "list<") && strings.HasSuffix(s, ">") {
		elem, err := ParseCompactShape(s[len("list<") : len(s)-1])
		if err != nil {
			return models.ResultShape{}, err
		}
		return models.ListOf(elem), nil
	}

	if strings.HasPrefix(s, "enum(") && strings.HasSuffix(s, ")") {
		body := s[len("enum(") : len(s)-1]
		values := strings.Split(body, "|")
		for i := range values {
			values[i] = strings.TrimSpace(values[i])
		}
		if len(values) == 0 || (len(values) == 1 && values[0] == "") {
			return models.ResultShape{}, fmt.Errorf("enum shape declares no values")
		}
		return models.EnumShape(values...), nil
	}

	return models.ResultShape{}, fmt.Errorf("unknown result shape %q", s)
}
