package flow

import (
	"testing"

	"github.com/ShayCichocki/weave/pkg/models"
)

const sampleFlow = `
version: 1
name: release-notes
tasks:
  - id: outline
    objective: Draft an outline for the release notes
    result: string
  - id: notes
    objective: Write the release notes from the outline
    depends_on: [outline]
    result:
      type: object
      fields:
        title: string
        points: list<string>
  - id: review
    objective: Ask the maintainer to approve the notes
    depends_on: [notes]
    interactive: true
    agent: reviewer
    result: enum(approved|rejected)
`

func TestParseFlowFile(t *testing.T) {
	f, err := Parse([]byte(sampleFlow))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if f.Name != "release-notes" {
		t.Errorf("expected name release-notes, got %q", f.Name)
	}
	if len(f.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(f.Tasks))
	}

	tasks, err := f.BuildTasks()
	if err != nil {
		t.Fatalf("build tasks: %v", err)
	}

	if tasks[0].Shape.Kind != models.ShapeString {
		t.Errorf("outline shape = %s, want string", tasks[0].Shape.Kind)
	}

	notes := tasks[1]
	if notes.Shape.Kind != models.ShapeObject {
		t.Fatalf("notes shape = %s, want object", notes.Shape.Kind)
	}
	if notes.Shape.Fields["title"].Kind != models.ShapeString {
		t.Errorf("title field = %s, want string", notes.Shape.Fields["title"].Kind)
	}
	points := notes.Shape.Fields["points"]
	if points.Kind != models.ShapeList || points.Elem == nil || points.Elem.Kind != models.ShapeString {
		t.Errorf("points field = %s, want list<string>", points.Describe())
	}
	if len(notes.DependsOn) != 1 || notes.DependsOn[0] != "outline" {
		t.Errorf("notes deps = %v", notes.DependsOn)
	}

	review := tasks[2]
	if !review.Interactive {
		t.Error("review should be interactive")
	}
	if review.Agent != "reviewer" {
		t.Errorf("review agent = %q", review.Agent)
	}
	if len(review.Shape.Enum) != 2 {
		t.Errorf("review enum = %v", review.Shape.Enum)
	}
}

func TestParseFlowFileErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"no tasks", "version: 1\ntasks: []\n"},
		{"missing id", "version: 1\ntasks:\n  - objective: x\n"},
		{"missing objective", "version: 1\ntasks:\n  - id: a\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.in)); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestParseCompactShape(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"string", "string"},
		{"any", "any"},
		{"", "any"},
		{"int", "int"},
		{"bool", "bool"},
		{"list<string>", "list<string>"},
		{"list<list<int>>", "list<list<int>>"},
		{"enum(a|b|c)", "enum(a|b|c)"},
	}

	for _, tt := range tests {
		shape, err := ParseCompactShape(tt.in)
		if err != nil {
			t.Errorf("ParseCompactShape(%q): %v", tt.in, err)
			continue
		}
		if got := shape.Describe(); got != tt.want {
			t.Errorf("ParseCompactShape(%q).Describe() = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := ParseCompactShape("map<string>"); err == nil {
		t.Error("expected error for unknown shape")
	}
}
