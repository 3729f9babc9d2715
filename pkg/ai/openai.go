package ai

import (
	"context"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAI asks an OpenAI-compatible chat completion endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
	cfg    Config
}

// NewOpenAI builds the client; BaseURL points it at a compatible server.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, eris.New("openai: api key is empty")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{client: openai.NewClientWithConfig(oc), model: model, cfg: cfg}, nil
}

// Provider names the backend.
func (o *OpenAI) Provider() string { return "openai" }

// Ask sends the prompt as a single user message.
func (o *OpenAI) Ask(ctx context.Context, text, instruction string) (string, error) {
	ctx, cancel := withTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(text, instruction)},
		},
	})
	if err != nil {
		return "", eris.Wrapf(err, "openai: chat completion with %s", o.model)
	}
	if len(resp.Choices) == 0 {
		return "", eris.New("openai: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
