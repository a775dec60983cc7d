package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/conversations"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"

	"tgvisor/pkg/assistant/types"
	"tgvisor/pkg/config"
)

const defaultAPIKeyEnv = "OPENAI_API_KEY"

// Client talks to the OpenAI Responses API and keeps one server-side
// conversation per local conversation key.
type Client struct {
	client         osdk.Client
	model          string
	systemPrompt   string
	requestTimeout time.Duration
	conversations  types.Conversations
	log            *slog.Logger
}

func New(cfg config.AssistantConfig, log *slog.Logger, extra ...option.RequestOption) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}

	apiKey := resolveAPIKey(cfg.OpenAI)
	if apiKey == "" {
		return nil, errors.New("modules.assistant.openai.api_key_env is required or OPENAI_API_KEY must be set")
	}

	model, err := normalizeModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.OpenAI.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(cfg.OpenAI.Organization); organization != "" {
		opts = append(opts, option.WithOrganization(organization))
	}
	if project := strings.TrimSpace(cfg.OpenAI.Project); project != "" {
		opts = append(opts, option.WithProject(project))
	}

	requestTimeout := time.Duration(cfg.OpenAI.RequestTimeoutSeconds) * time.Second
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}
	opts = append(opts, extra...)

	return &Client{
		client:         osdk.NewClient(opts...),
		model:          model,
		systemPrompt:   strings.TrimSpace(cfg.SystemPrompt),
		requestTimeout: requestTimeout,
		log:            log.With("component", "assistant.openai"),
	}, nil
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if _, err := c.client.Models.List(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Ask sends prompt within the conversation identified by key.
func (c *Client) Ask(ctx context.Context, key string, prompt string) (types.Reply, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return types.Reply{}, errors.New("prompt is required")
	}

	conversationID, err := c.conversation(ctx, key)
	if err != nil {
		return types.Reply{}, err
	}

	log := c.log.With("operation", "ask", "conversation_id", conversationID)
	startedAt := time.Now()
	log.Debug("Assistant request started", "model", c.model, "prompt_length", len(prompt))

	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{OfString: osdk.String(prompt)},
		Conversation: responses.ResponseNewParamsConversationUnion{
			OfConversationObject: &responses.ResponseConversationParam{ID: conversationID},
		},
	}
	if c.systemPrompt != "" {
		params.Instructions = osdk.String(c.systemPrompt)
	}

	response, err := c.client.Responses.New(ctx, params)
	if err != nil {
		log.Debug("Assistant request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return types.Reply{}, fmt.Errorf("prompt failed: %w", err)
	}

	text := strings.TrimSpace(response.OutputText())
	if text == "" {
		return types.Reply{}, errors.New("prompt succeeded but returned no text")
	}
	log.Debug("Assistant request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(text))

	usage := types.TokenUsage{
		InputTokens:     response.Usage.InputTokens,
		OutputTokens:    response.Usage.OutputTokens,
		TotalTokens:     response.Usage.TotalTokens,
		ReasoningTokens: response.Usage.OutputTokensDetails.ReasoningTokens,
		CacheReadTokens: response.Usage.InputTokensDetails.CachedTokens,
	}
	reply := types.Reply{Text: text, Provider: "openai", Model: c.model}
	if !usage.IsZero() {
		reply.Usage = &usage
	}
	return reply, nil
}

// Reset forgets the conversation bound to key.
func (c *Client) Reset(key string) {
	c.conversations.Forget(key)
}

func (c *Client) conversation(ctx context.Context, key string) (string, error) {
	if id, ok := c.conversations.Lookup(key); ok {
		return id, nil
	}

	conversation, err := c.client.Conversations.New(ctx, conversations.ConversationNewParams{})
	if err != nil {
		return "", fmt.Errorf("create conversation failed: %w", err)
	}
	id := strings.TrimSpace(conversation.ID)
	if id == "" {
		return "", errors.New("create conversation returned empty id")
	}

	c.conversations.Store(key, id)
	return id, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

func resolveAPIKey(cfg config.OpenAIConfig) string {
	if apiKeyEnv := strings.TrimSpace(cfg.APIKeyEnv); apiKeyEnv != "" {
		if apiKey := strings.TrimSpace(os.Getenv(apiKeyEnv)); apiKey != "" {
			return apiKey
		}
	}

	return strings.TrimSpace(os.Getenv(defaultAPIKeyEnv))
}

// ResolveAPIKey exposes the key lookup shared with other OpenAI-backed clients.
func ResolveAPIKey(cfg config.OpenAIConfig) string {
	return resolveAPIKey(cfg)
}

// NormalizeModel strips an "openai/" prefix and rejects other providers.
func NormalizeModel(model string) (string, error) {
	return normalizeModel(model)
}

func normalizeModel(model string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", errors.New("model is required")
	}

	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 {
		return model, nil
	}

	providerID := strings.TrimSpace(parts[0])
	modelID := strings.TrimSpace(parts[1])
	if providerID == "" || modelID == "" {
		return "", errors.New("model is invalid")
	}
	if providerID != "openai" {
		return "", fmt.Errorf("model provider %q is not supported by openai backend", providerID)
	}

	return modelID, nil
}
