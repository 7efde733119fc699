package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ShayCichocki/weave/internal/agent"
	"github.com/ShayCichocki/weave/internal/interaction"
	"github.com/ShayCichocki/weave/internal/validation"
	"github.com/ShayCichocki/weave/pkg/models"
)

// outcomeKind classifies how one execution of a task ended.
type outcomeKind int

const (
	outcomeSucceeded outcomeKind = iota
	outcomeFailed
	outcomeAwaiting
)

// completion is sent by an executor goroutine when its task reaches a
// terminal or suspended state.
type completion struct {
	taskID   string
	kind     outcomeKind
	result   *models.Result
	reason   models.FailureReason
	detail   string
	question string
}

// execute runs one task to completion, failure, or suspension. The agent
// call plus the validation correction loop are sequential within the task;
// only sibling tasks run concurrently. The completion is delivered on ch.
func (f *Flow) execute(ctx context.Context, task *models.Task, resumed bool, ch chan<- completion) {
	prompt, history := f.composePrompt(task, resumed)

	for round := 1; ; round++ {
		// On resumption the prompt is the user's answer, which the session
		// already recorded; only fresh instructions are appended.
		if round > 1 || !resumed {
			if err := f.fctx.Append(task.ID, models.RoleInstruction, prompt); err != nil {
				ch <- completion{taskID: task.ID, kind: outcomeFailed, reason: models.FailureCancelled, detail: err.Error()}
				return
			}
		}

		raw, err := f.o.binding.Execute(ctx, task, agent.Request{Prompt: prompt, History: history})
		if err != nil {
			ch <- failureFor(task.ID, err)
			return
		}

		if appendErr := f.fctx.Append(task.ID, models.RoleOutput, raw); appendErr != nil {
			ch <- completion{taskID: task.ID, kind: outcomeFailed, reason: models.FailureCancelled, detail: appendErr.Error()}
			return
		}

		if task.Interactive {
			if question, ok := interaction.DetectQuestion(raw); ok {
				ch <- completion{taskID: task.ID, kind: outcomeAwaiting, question: question}
				return
			}
		}

		value, mismatch := f.o.validator.Validate(raw, task.Shape)
		if mismatch == nil {
			ch <- completion{
				taskID: task.ID,
				kind:   outcomeSucceeded,
				result: &models.Result{TaskID: task.ID, Value: value, Raw: raw},
			}
			return
		}

		if round >= f.o.correctionRounds {
			detail := fmt.Sprintf("%s\nlast output: %s", mismatch.Error(), clipDetail(raw))
			ch <- completion{
				taskID: task.ID,
				kind:   outcomeFailed,
				reason: models.FailureResultShapeMismatch,
				detail: detail,
			}
			return
		}

		// Re-invoke with corrective feedback; the conversation so far
		// becomes the history for the next round.
		history = f.fctx.TaskHistory(task.ID)
		prompt = validation.CorrectionPrompt(task.Shape, mismatch)
	}
}

// composePrompt builds the instruction for a dispatch and the history
// snapshot replayed ahead of it. On first dispatch the prompt carries the
// objective, dependency results verbatim, the output-format requirement, and
// the question protocol for interactive tasks. On resumption the task's
// conversation already ends with the user's answer, which becomes the
// prompt.
func (f *Flow) composePrompt(task *models.Task, resumed bool) (string, []models.Exchange) {
	if resumed {
		history := f.fctx.TaskHistory(task.ID)
		if n := len(history); n > 0 && history[n-1].Role == models.RoleUser {
			return history[n-1].Content, history[:n-1]
		}
		return "Continue the task.", f.fctx.TaskHistory(task.ID)
	}

	var b strings.Builder
	b.WriteString(task.Objective)

	if len(task.DependsOn) > 0 {
		b.WriteString("\n\nResults from completed dependencies:")
		for _, depID := range task.DependsOn {
			if result, ok := f.fctx.Result(depID); ok {
				fmt.Fprintf(&b, "\n[%s]\n%s", depID, result.Text())
			}
		}
	}

	if task.Interactive {
		fmt.Fprintf(&b, "\n\nIf you need information from the user before you can finish, reply with a line starting with %q followed by your question.", interaction.QuestionMarker)
	}

	if format := validation.InstructionPrompt(task.Shape); format != "" {
		b.WriteString("\n\n" + format)
	}

	return b.String(), f.fctx.TaskHistory(task.ID)
}

// failureFor maps a binding error onto a task failure.
func failureFor(taskID string, err error) completion {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return completion{taskID: taskID, kind: outcomeFailed, reason: models.FailureCancelled, detail: err.Error()}
	}
	return completion{taskID: taskID, kind: outcomeFailed, reason: models.FailureAgentUnavailable, detail: err.Error()}
}

func clipDetail(s string) string {
	const maxLen = 400
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
