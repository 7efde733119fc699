package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/weave/internal/orchestrator"
	"github.com/ShayCichocki/weave/pkg/models"
)

// FlowEventMsg carries one orchestrator event into the console.
type FlowEventMsg struct {
	Event orchestrator.Event
}

// FlowDoneMsg signals that the flow reached a terminal state.
type FlowDoneMsg struct {
	State models.FlowState
	Err   error
}

// AnswerFunc delivers an answer to a suspended task. It is called from the
// console's update loop when the user submits input.
type AnswerFunc func(taskID, answer string) error

// AbortFunc cancels the running flow.
type AbortFunc func()

// taskLine is one row in the task status view.
type taskLine struct {
	id    string
	state models.TaskState
	note  string
}

// question is one pending question from a suspended task.
type question struct {
	taskID string
	text   string
}

// Console is the bubbletea model for the interactive flow view.
type Console struct {
	input     textinput.Model
	tasks     []taskLine
	questions []question
	logLines  []string
	flowState models.FlowState
	done      bool
	err       error
	quitting  bool
	width     int

	onAnswer AnswerFunc
	onAbort  AbortFunc
}

// NewConsole creates the console model.
func NewConsole(onAnswer AnswerFunc, onAbort AbortFunc) *Console {
	ti := textinput.New()
	ti.Placeholder = "Type an answer and press Enter..."
	ti.CharLimit = 2000
	ti.Width = 60

	return &Console{
		input:    ti,
		width:    80,
		onAnswer: onAnswer,
		onAbort:  onAbort,
	}
}

// NewConsoleProgram creates a tea.Program wrapping a new Console.
func NewConsoleProgram(onAnswer AnswerFunc, onAbort AbortFunc) (*tea.Program, *Console) {
	console := NewConsole(onAnswer, onAbort)
	program := tea.NewProgram(console)
	return program, console
}

// Init implements tea.Model.
func (c *Console) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (c *Console) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.width = msg.Width
		c.input.Width = msg.Width - 6
		return c, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			c.quitting = true
			if c.onAbort != nil && !c.done {
				c.onAbort()
			}
			return c, tea.Quit

		case "enter":
			if c.done {
				c.quitting = true
				return c, tea.Quit
			}
			return c, c.submitAnswer()
		}

	case FlowEventMsg:
		c.apply(msg.Event)
		return c, nil

	case FlowDoneMsg:
		c.done = true
		c.flowState = msg.State
		c.err = msg.Err
		c.input.Blur()
		return c, nil
	}

	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	return c, cmd
}

// submitAnswer delivers the typed answer to the oldest pending question.
func (c *Console) submitAnswer() tea.Cmd {
	text := strings.TrimSpace(c.input.Value())
	if text == "" || len(c.questions) == 0 {
		return nil
	}

	q := c.questions[0]
	c.questions = c.questions[1:]
	c.input.Reset()

	if c.onAnswer != nil {
		if err := c.onAnswer(q.taskID, text); err != nil {
			c.logLines = append(c.logLines, fmt.Sprintf("answer for %s rejected: %v", q.taskID, err))
		}
	}
	return nil
}

// apply folds one flow event into the view state.
func (c *Console) apply(e orchestrator.Event) {
	switch e.Type {
	case orchestrator.EventTaskStarted:
		c.setTask(e.TaskID, models.TaskStateRunning, "")
	case orchestrator.EventTaskResumed:
		c.setTask(e.TaskID, models.TaskStateRunning, "resumed")
	case orchestrator.EventTaskSucceeded:
		c.setTask(e.TaskID, models.TaskStateSucceeded, "")
	case orchestrator.EventTaskFailed:
		c.setTask(e.TaskID, models.TaskStateFailed, e.Message)
	case orchestrator.EventTaskSkipped:
		c.setTask(e.TaskID, models.TaskStateSkipped, e.Message)
	case orchestrator.EventTaskAwaitingInput:
		c.setTask(e.TaskID, models.TaskStateAwaitingInput, "")
		c.questions = append(c.questions, question{taskID: e.TaskID, text: e.Question})
		if !c.input.Focused() {
			c.input.Focus()
		}
	}
}

// setTask updates or appends the status line for a task.
func (c *Console) setTask(id string, state models.TaskState, note string) {
	for i := range c.tasks {
		if c.tasks[i].id == id {
			c.tasks[i].state = state
			c.tasks[i].note = note
			return
		}
	}
	c.tasks = append(c.tasks, taskLine{id: id, state: state, note: note})
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	questionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boxStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// stateGlyphs maps task states to their status indicators.
var stateGlyphs = map[models.TaskState]string{
	models.TaskStatePending:       "·",
	models.TaskStateReady:         "·",
	models.TaskStateRunning:       "▸",
	models.TaskStateAwaitingInput: "?",
	models.TaskStateSucceeded:     "✓",
	models.TaskStateFailed:        "✗",
	models.TaskStateSkipped:       "−",
}

var stateColors = map[models.TaskState]lipgloss.Color{
	models.TaskStateRunning:       lipgloss.Color("39"),
	models.TaskStateAwaitingInput: lipgloss.Color("214"),
	models.TaskStateSucceeded:     lipgloss.Color("42"),
	models.TaskStateFailed:        lipgloss.Color("196"),
	models.TaskStateSkipped:       lipgloss.Color("243"),
}

// View implements tea.Model.
func (c *Console) View() string {
	if c.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("weave") + "\n\n")

	for _, t := range c.tasks {
		glyph := stateGlyphs[t.state]
		style := lipgloss.NewStyle()
		if color, ok := stateColors[t.state]; ok {
			style = style.Foreground(color)
		}
		line := fmt.Sprintf(" %s %s", glyph, t.id)
		if t.note != "" {
			line += dimStyle.Render("  " + clipNote(t.note))
		}
		b.WriteString(style.Render(line) + "\n")
	}

	for _, line := range c.logLines {
		b.WriteString(errStyle.Render(" " + line + "\n"))
	}

	if len(c.questions) > 0 {
		q := c.questions[0]
		b.WriteString("\n" + questionStyle.Render(fmt.Sprintf("[%s] %s", q.taskID, q.text)) + "\n")
		b.WriteString(boxStyle.Width(c.width - 2).Render(c.input.View()) + "\n")
		if len(c.questions) > 1 {
			b.WriteString(dimStyle.Render(fmt.Sprintf(" %d more question(s) queued\n", len(c.questions)-1)))
		}
	}

	if c.done {
		b.WriteString("\n")
		if c.err != nil {
			b.WriteString(errStyle.Render(fmt.Sprintf("flow %s: %v", c.flowState, c.err)) + "\n")
		} else {
			b.WriteString(titleStyle.Render(fmt.Sprintf("flow %s", c.flowState)) + "\n")
		}
		b.WriteString(dimStyle.Render("press Enter to exit") + "\n")
	} else {
		b.WriteString("\n" + dimStyle.Render("ctrl+c to abort") + "\n")
	}

	return b.String()
}

func clipNote(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
