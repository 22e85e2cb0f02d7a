package textgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChain generates through any langchaingo chat model.
type LangChain struct {
	Model llms.Model
}

// NewOpenAI builds an OpenAI-compatible backend (OpenAI, OpenRouter, ...).
func NewOpenAI(apiKey, model, baseURL string) (*LangChain, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: api key is not set", ErrUnavailable)
	}
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return &LangChain{Model: llm}, nil
}

func (l *LangChain) Generate(ctx context.Context, prompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	resp, err := l.Model.GenerateContent(ctx, messages, llms.WithTemperature(0.2))
	if err != nil {
		return "", fmt.Errorf("llm generate: %w", unreachable(err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: %w", ErrEmptyResponse)
	}
	choice := resp.Choices[0]
	if choice.StopReason == "content_filter" {
		return "", fmt.Errorf("%w: content filter", ErrBlocked)
	}
	if strings.TrimSpace(choice.Content) == "" {
		return "", fmt.Errorf("llm: %w", ErrEmptyResponse)
	}
	return choice.Content, nil
}
