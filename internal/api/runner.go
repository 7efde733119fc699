package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/weave/pkg/models"
)

const defaultMaxTokens = 8192

// Runner provides text-in/text-out Claude API calls over a flow's
// conversation history. Tool use is out of scope: a Weave agent turns an
// instruction plus context into raw text, nothing more.
type Runner struct {
	client    *Client
	system    string
	maxTokens int64
}

// NewRunner creates a new API runner.
func NewRunner(client *Client) *Runner {
	return &Runner{client: client, maxTokens: defaultMaxTokens}
}

// SetSystemPrompt sets an optional system message sent with every call.
func (r *Runner) SetSystemPrompt(system string) {
	r.system = system
}

// SetMaxTokens overrides the response token cap.
func (r *Runner) SetMaxTokens(n int64) {
	if n > 0 {
		r.maxTokens = n
	}
}

// Run executes a prompt against the model, replaying the given conversation
// history ahead of it, and returns the text response.
func (r *Runner) Run(ctx context.Context, history []models.Exchange, prompt string) (string, error) {
	messages := historyMessages(history)
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))

	params := anthropic.MessageNewParams{
		Model:     r.client.Model(),
		MaxTokens: r.maxTokens,
		Messages:  messages,
	}
	if r.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: r.system}}
	}

	resp, err := r.client.sdk().Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("API call failed: %w", err)
	}

	r.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var result strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			result.WriteString(variant.Text)
		}
	}

	return result.String(), nil
}

// historyMessages converts flow history into alternating API messages.
// Instructions and user input replay as user turns, agent output as
// assistant turns. Adjacent entries of the same side are merged, since the
// API requires alternating roles.
func historyMessages(history []models.Exchange) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	var pending strings.Builder
	var pendingAssistant bool

	flush := func() {
		if pending.Len() == 0 {
			return
		}
		block := anthropic.NewTextBlock(pending.String())
		if pendingAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
		pending.Reset()
	}

	for _, ex := range history {
		assistant := ex.Role == models.RoleOutput
		if pending.Len() > 0 && assistant != pendingAssistant {
			flush()
		}
		if pending.Len() > 0 {
			pending.WriteString("\n\n")
		}
		pending.WriteString(ex.Content)
		pendingAssistant = assistant
	}
	flush()

	return messages
}
