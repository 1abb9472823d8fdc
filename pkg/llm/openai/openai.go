// Package openai implements llm.Provider over the OpenAI Chat Completions
// streaming API using the official SDK.
package openai

import (
	"context"
	"errors"
	"io"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/kaiwa-labs/kaiwa-relay/pkg/llm"
)

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 500
	DefaultTemperature = 0.7
)

type Client struct {
	client      openaisdk.Client
	model       string
	maxTokens   int64
	temperature float64
	requestOpts []option.RequestOption
}

type Option func(*Client)

func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

func WithMaxTokens(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

func WithTemperature(t float64) Option {
	return func(c *Client) {
		if t >= 0 {
			c.temperature = t
		}
	}
}

// WithBaseURL overrides the API endpoint. Used by tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.requestOpts = append(c.requestOpts, option.WithBaseURL(baseURL))
		}
	}
}

func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		model:       DefaultModel,
		maxTokens:   DefaultMaxTokens,
		temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.client = openaisdk.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, c.requestOpts...)...)
	return c
}

func (c *Client) StreamChat(ctx context.Context, messages []llm.Message) (llm.TokenStream, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    buildMessages(messages),
		MaxTokens:   openaisdk.Int(c.maxTokens),
		Temperature: openaisdk.Float(c.temperature),
	}
	return &tokenStream{stream: c.client.Chat.Completions.NewStreaming(ctx, params)}, nil
}

func buildMessages(messages []llm.Message) []openaisdk.ChatCompletionMessageParamUnion {
	params := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			params = append(params, openaisdk.SystemMessage(m.Content))
		case llm.RoleUser:
			params = append(params, openaisdk.UserMessage(m.Content))
		case llm.RoleAssistant:
			params = append(params, openaisdk.AssistantMessage(m.Content))
		}
	}
	return params
}

type tokenStream struct {
	stream *ssestream.Stream[openaisdk.ChatCompletionChunk]
}

// Next returns the next non-empty text delta, or io.EOF on completion.
// Chunks without text content (role announcements, usage updates) are skipped.
func (s *tokenStream) Next() (string, error) {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			return chunk.Choices[0].Delta.Content, nil
		}
	}
	if err := s.stream.Err(); err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return "", io.EOF
}

func (s *tokenStream) Close() error {
	return s.stream.Close()
}
