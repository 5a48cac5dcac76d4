package ai

import "context"

// ChatBackend is the inference surface the chat core depends on. The
// concrete Ollama client implements it; tests substitute fakes.
type ChatBackend interface {
	Chat(ctx context.Context, model string, messages []ChatMessage) (string, error)
	Warmup(ctx context.Context, model string) error
}
