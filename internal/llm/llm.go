// Package llm bridges stored chat history to a streaming completion provider.
package llm

import (
	"context"
	"errors"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/models"
)

// ErrEmptyHistory is returned when a completion is requested with no messages.
var ErrEmptyHistory = errors.New("llm: empty message history")

// Turn is one role/content pair in provider-facing form.
type Turn struct {
	Role    models.Role
	Content string
}

// Stream produces assistant text incrementally. Recv returns io.EOF when the
// provider has finished; any other error means the stream failed mid-flight.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Provider opens completion streams; it is easy to mock in tests.
type Provider interface {
	StreamCompletion(ctx context.Context, history []Turn) (Stream, error)
}

// OpenAIProvider implements Provider against an OpenAI-compatible API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	system string
}

// NewOpenAIProvider creates a provider from config.
func NewOpenAIProvider(cfg *config.Config) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		system: cfg.SystemPrompt,
	}
}

// StreamCompletion opens a chat completion stream with the fixed system
// directive prepended to the mapped history.
func (p *OpenAIProvider) StreamCompletion(ctx context.Context, history []Turn) (Stream, error) {
	if len(history) == 0 {
		return nil, ErrEmptyHistory
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: p.system,
	})
	for _, turn := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    providerRole(turn.Role),
			Content: turn.Content,
		})
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}

	return &openaiStream{inner: stream}, nil
}

// providerRole maps the closed role enum to the SDK's role constants.
// BuildHistory has already rejected anything outside the enum.
func providerRole(role models.Role) string {
	switch role {
	case models.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case models.RoleTool:
		return openai.ChatMessageRoleTool
	case models.RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}

type openaiStream struct {
	inner *openai.ChatCompletionStream
}

func (s *openaiStream) Recv() (string, error) {
	resp, err := s.inner.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Delta.Content, nil
}

func (s *openaiStream) Close() error {
	return s.inner.Close()
}
