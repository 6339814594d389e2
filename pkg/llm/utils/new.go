// Package llmutils is the llm client utility package
package llmutils

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/storyloom/loom/pkg/llm"
	"github.com/storyloom/loom/pkg/llm/ollama"
	"github.com/storyloom/loom/pkg/llm/openai"
)

type NewClientOpts struct {
	ProviderType string
	TargetURL    string
	APIKey       string
	Model        string
	Logger       *zap.Logger
}

func NewClient(o *NewClientOpts) (llm.Client, error) {
	switch o.ProviderType {
	case "ollama":
		return ollama.NewClient(ollama.Config{
			BaseURL: o.TargetURL,
			Model:   o.Model,
		}, o.Logger), nil
	case "openai":
		return openai.NewClient(openai.Config{
			BaseURL: o.TargetURL,
			APIKey:  o.APIKey,
			Model:   o.Model,
		}, o.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", o.ProviderType)
	}
}
