package validation

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/weave/pkg/models"
)

// CorrectionPrompt builds the corrective follow-up instruction sent to the
// agent after a shape mismatch. The feedback is generated from the schema
// diff: it names each problem and restates the required shape.
func CorrectionPrompt(shape models.ResultShape, m *Mismatch) string {
	var b strings.Builder

	b.WriteString("Your previous reply did not match the required result shape.\n\nProblems:\n")
	for _, problem := range m.Problems {
		fmt.Fprintf(&b, "- %s\n", problem)
	}

	fmt.Fprintf(&b, "\nReply again with a value matching this shape exactly: %s\n", shape.Describe())
	if shape.Structured() {
		b.WriteString("Respond with JSON only, no surrounding prose.")
	} else {
		b.WriteString("Respond with the value only, no surrounding prose.")
	}

	return b.String()
}

// InstructionPrompt renders the shape requirement appended to a task's
// initial instruction so the agent knows the expected output format up
// front.
func InstructionPrompt(shape models.ResultShape) string {
	if shape.Zero() || shape.Kind == models.ShapeAny {
		return ""
	}
	if shape.Structured() {
		return fmt.Sprintf("Respond with JSON only, matching this shape exactly: %s", shape.Describe())
	}
	return fmt.Sprintf("Respond with a single %s value, no surrounding prose.", shape.Describe())
}
