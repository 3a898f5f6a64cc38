package notice

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const DefaultModel = "gpt-4o-mini"

const systemPrompt = `あなたは天気アカウントの編集者です。与えられた告知文を、数値と事実を変えずに自然で読みやすい日本語に整えてください。` +
	`140文字以内で、告知文のみを返してください。`

// Polisher rewrites notices with a chat model.
type Polisher struct {
	client openai.Client
	model  string
}

// NewPolisher creates a Polisher. Extra options are passed to the client.
func NewPolisher(apiKey, model string, opts ...option.RequestOption) (*Polisher, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key not set")
	}
	if model == "" {
		model = DefaultModel
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &Polisher{client: client, model: model}, nil
}

// Polish returns the rewritten text.
func (p *Polisher) Polish(ctx context.Context, text string) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", errors.New("empty completion returned")
	}
	return out, nil
}

// PolishOrKeep returns the rewritten text, or text unchanged if the model
// call fails.
func (p *Polisher) PolishOrKeep(ctx context.Context, text string) string {
	if p == nil {
		return text
	}
	out, err := p.Polish(ctx, text)
	if err != nil {
		log.Printf("notice: polish failed, using original text: %v", err)
		return text
	}
	return out
}
