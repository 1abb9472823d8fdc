// Package llm defines the provider-neutral contract for the streaming chat
// model behind a relay session. The session treats the model as an opaque
// token source: it hands over the ordered conversation and pulls text deltas
// one at a time.
package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn. Order is semantically significant and is
// sent verbatim to the provider.
type Message struct {
	Role    string
	Content string
}

// TokenStream iterates over the text deltas of one generation.
// Next returns io.EOF when the stream is complete.
type TokenStream interface {
	Next() (string, error)
	Close() error
}

// Provider issues a streaming chat completion for the given conversation.
type Provider interface {
	StreamChat(ctx context.Context, messages []Message) (TokenStream, error)
}
