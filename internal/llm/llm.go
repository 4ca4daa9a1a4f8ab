// Package llm generates answers over assembled context. It is a thin
// boundary: retrieval works fully without it, and the MCP surface only
// wires it in when a provider is configured.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/kestrelhq/coderag/internal/config"
)

// ErrNoProvider is returned when no LLM provider is configured.
var ErrNoProvider = errors.New("no llm provider configured")

// Client generates a completion from a system prompt and user prompt.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Name() string
}

// NewFromConfig builds the configured LLM client, or ErrNoProvider
// when generation is disabled.
func NewFromConfig(cfg *config.Config) (Client, error) {
	switch cfg.LLMProvider {
	case "":
		return nil, ErrNoProvider
	case "openai":
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.LLMModel)
	case "ollama":
		return NewOllamaClient(cfg.OllamaURL, cfg.LLMModel)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

// AnswerSystemPrompt frames the model as a code assistant that cites
// the supplied evidence and admits when it is missing.
const AnswerSystemPrompt = `You are a code assistant. Answer using only the provided code context and conversation memory. Cite evidence headers like [file:lines] when you reference code. If the context does not contain the answer, say so.`

// BuildUserPrompt joins the question with the assembled context.
func BuildUserPrompt(question, contextText string) string {
	if contextText == "" {
		return question
	}
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, question)
}
