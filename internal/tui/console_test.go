package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/weave/internal/orchestrator"
	"github.com/ShayCichocki/weave/pkg/models"
)

func sendEvent(c *Console, e orchestrator.Event) *Console {
	model, _ := c.Update(FlowEventMsg{Event: e})
	return model.(*Console)
}

func TestConsoleTracksTaskStates(t *testing.T) {
	c := NewConsole(nil, nil)

	c = sendEvent(c, orchestrator.Event{Type: orchestrator.EventTaskStarted, TaskID: "draft"})
	c = sendEvent(c, orchestrator.Event{Type: orchestrator.EventTaskSucceeded, TaskID: "draft"})
	c = sendEvent(c, orchestrator.Event{Type: orchestrator.EventTaskStarted, TaskID: "review"})
	c = sendEvent(c, orchestrator.Event{Type: orchestrator.EventTaskFailed, TaskID: "review", Message: "boom"})

	if len(c.tasks) != 2 {
		t.Fatalf("expected 2 task lines, got %d", len(c.tasks))
	}
	if c.tasks[0].state != models.TaskStateSucceeded {
		t.Errorf("expected draft succeeded, got %q", c.tasks[0].state)
	}
	if c.tasks[1].state != models.TaskStateFailed || c.tasks[1].note != "boom" {
		t.Errorf("expected review failed with note, got %q/%q", c.tasks[1].state, c.tasks[1].note)
	}
}

func TestConsoleAnswerFlow(t *testing.T) {
	var gotTask, gotAnswer string
	c := NewConsole(func(taskID, answer string) error {
		gotTask, gotAnswer = taskID, answer
		return nil
	}, nil)

	c = sendEvent(c, orchestrator.Event{
		Type:     orchestrator.EventTaskAwaitingInput,
		TaskID:   "summary",
		Question: "What tone?",
	})
	if len(c.questions) != 1 {
		t.Fatalf("expected 1 pending question, got %d", len(c.questions))
	}

	c.input.SetValue("formal")
	model, _ := c.Update(tea.KeyMsg{Type: tea.KeyEnter})
	c = model.(*Console)

	if gotTask != "summary" || gotAnswer != "formal" {
		t.Errorf("expected answer delivered to summary, got %q/%q", gotTask, gotAnswer)
	}
	if len(c.questions) != 0 {
		t.Errorf("expected question queue drained, got %d", len(c.questions))
	}
	if c.input.Value() != "" {
		t.Errorf("expected input reset, got %q", c.input.Value())
	}
}

func TestConsoleQueuesMultipleQuestions(t *testing.T) {
	c := NewConsole(func(string, string) error { return nil }, nil)

	c = sendEvent(c, orchestrator.Event{Type: orchestrator.EventTaskAwaitingInput, TaskID: "a", Question: "Q1"})
	c = sendEvent(c, orchestrator.Event{Type: orchestrator.EventTaskAwaitingInput, TaskID: "b", Question: "Q2"})

	c.input.SetValue("first")
	model, _ := c.Update(tea.KeyMsg{Type: tea.KeyEnter})
	c = model.(*Console)

	if len(c.questions) != 1 || c.questions[0].taskID != "b" {
		t.Errorf("expected question for b to remain, got %+v", c.questions)
	}
}

func TestConsoleEmptyAnswerIgnored(t *testing.T) {
	called := false
	c := NewConsole(func(string, string) error {
		called = true
		return nil
	}, nil)

	c = sendEvent(c, orchestrator.Event{Type: orchestrator.EventTaskAwaitingInput, TaskID: "a", Question: "Q"})

	c.input.SetValue("   ")
	model, _ := c.Update(tea.KeyMsg{Type: tea.KeyEnter})
	c = model.(*Console)

	if called {
		t.Error("expected blank answer to be ignored")
	}
	if len(c.questions) != 1 {
		t.Errorf("expected question to remain pending, got %d", len(c.questions))
	}
}

func TestConsoleAbortCancelsContext(t *testing.T) {
	// The abort hook is wired from a context.CancelFunc; the conversion at
	// construction time must carry through to ctrl+c.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewConsole(nil, AbortFunc(cancel))

	model, cmd := c.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	c = model.(*Console)

	if ctx.Err() == nil {
		t.Error("expected abort to cancel the flow context")
	}
	if !c.quitting {
		t.Error("expected console to be quitting after ctrl+c")
	}
	if cmd == nil {
		t.Error("expected a quit command after ctrl+c")
	}
}

func TestConsoleDone(t *testing.T) {
	c := NewConsole(nil, nil)
	model, _ := c.Update(FlowDoneMsg{State: models.FlowCompleted})
	c = model.(*Console)

	if !c.done {
		t.Error("expected done flag set")
	}

	model, _ = c.Update(tea.KeyMsg{Type: tea.KeyEnter})
	c = model.(*Console)
	if !c.quitting {
		t.Error("expected enter after done to quit")
	}
}
