package providers

import "context"

// Client is the AI completion service the tool router calls.
type Client interface {
	// Complete sends a rendered prompt and returns the response text.
	Complete(ctx context.Context, prompt string) (string, error)

	// AnalyzeImage runs a vision completion over raw image bytes.
	AnalyzeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)

	// AnalyzeDocument runs a completion over an attached document.
	AnalyzeDocument(ctx context.Context, prompt string, doc []byte, fileName string) (string, error)

	// Name returns the provider identifier.
	Name() string
}

// Message represents a conversation message on the wire.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content any    `json:"content"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
