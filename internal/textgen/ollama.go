package textgen

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const ollamaDefault = "phi4:latest"

// Ollama generates through a local Ollama server.
type Ollama struct {
	client *api.Client
	model  string
}

// NewOllama connects to host, or to OLLAMA_HOST when host is empty.
func NewOllama(host, model string) (*Ollama, error) {
	var c *api.Client
	if host == "" {
		var err error
		c, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client init: %w", err)
		}
	} else {
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("ollama: bad host %q: %w", host, err)
		}
		c = api.NewClient(u, http.DefaultClient)
	}
	if strings.TrimSpace(model) == "" {
		model = ollamaDefault
	}
	return &Ollama{client: c, model: model}, nil
}

func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: &stream,
	}
	var out strings.Builder
	if err := o.client.Generate(ctx, req, func(gr api.GenerateResponse) error {
		out.WriteString(gr.Response)
		return nil
	}); err != nil {
		return "", fmt.Errorf("ollama generate: %w", unreachable(err))
	}
	if strings.TrimSpace(out.String()) == "" {
		return "", fmt.Errorf("ollama: %w", ErrEmptyResponse)
	}
	return out.String(), nil
}
