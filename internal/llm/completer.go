package llm

import (
	"context"

	"github.com/sevigo/goframe/llms"
)

//go:generate mockgen -destination=../../mocks/mock_completer.go -package=mocks . Completer

// Completer sends one prompt to the external model and returns its answer.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type modelCompleter struct {
	model llms.Model
}

// NewCompleter adapts a goframe model (Gemini or Ollama) to Completer.
func NewCompleter(model llms.Model) Completer {
	return &modelCompleter{model: model}
}

func (c *modelCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, c.model, prompt)
}
