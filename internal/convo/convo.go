// Package convo talks to the conversational backend.
package convo

import (
	"context"
	"fmt"
	"net/http"

	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"parley/internal/orchestrator"
)

const defaultSystemPrompt = `You are Parley, a friendly voice assistant.
Answer briefly; your replies are spoken aloud, so keep them to a sentence
or two of plain text without markup or lists.`

type Config struct {
	APIKey       string
	Model        string // defaults to gpt-5-nano
	SystemPrompt string
	HTTPClient   *http.Client // optional, e.g. a SOCKS proxy client
}

type Client struct {
	api    openai.Client
	model  string
	system string
}

func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing API key")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT5Nano
	}
	system := cfg.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}

	return &Client{api: openai.NewClient(opts...), model: model, system: system}, nil
}

// GetResponse sends the prompt with the prior dialogue as chat context
// and returns the reply text. Any transport or backend failure surfaces
// as a plain error; the caller treats it like an empty reply.
func (c *Client) GetResponse(ctx context.Context, prompt string, history []orchestrator.Turn) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	msgs = append(msgs, openai.SystemMessage(c.system))
	for _, t := range history {
		switch t.Role {
		case orchestrator.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(t.Text))
		default:
			msgs = append(msgs, openai.UserMessage(t.Text))
		}
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    c.model,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	log.Debug("backend replied", "chars", len(content))
	return content, nil
}
