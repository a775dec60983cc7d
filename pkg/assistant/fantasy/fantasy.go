package fantasy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	core "charm.land/fantasy"
	provideropenai "charm.land/fantasy/providers/openai"

	backendopenai "tgvisor/pkg/assistant/openai"
	"tgvisor/pkg/assistant/types"
	"tgvisor/pkg/config"
)

const defaultHistoryLimit = 40

type languageModelProvider interface {
	LanguageModel(ctx context.Context, modelID string) (core.LanguageModel, error)
}

type generateFunc func(context.Context, core.LanguageModel, core.AgentCall) (*core.AgentResult, error)

// Client runs a fantasy agent over an OpenAI language model and keeps the
// conversation history in memory, bounded per key.
type Client struct {
	provider        languageModelProvider
	requestTimeout  time.Duration
	modelID         string
	systemPrompt    string
	maxOutputTokens *int64
	temperature     *float64
	historyLimit    int
	generate        generateFunc
	log             *slog.Logger

	mu       sync.Mutex
	sessions map[string][]core.Message
}

func New(cfg config.AssistantConfig, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}

	apiKey := backendopenai.ResolveAPIKey(cfg.OpenAI)
	if apiKey == "" {
		return nil, errors.New("modules.assistant.openai.api_key_env is required or OPENAI_API_KEY must be set")
	}

	modelID, err := backendopenai.NormalizeModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	providerOptions := []provideropenai.Option{provideropenai.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.OpenAI.BaseURL); baseURL != "" {
		providerOptions = append(providerOptions, provideropenai.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(cfg.OpenAI.Organization); organization != "" {
		providerOptions = append(providerOptions, provideropenai.WithOrganization(organization))
	}
	if project := strings.TrimSpace(cfg.OpenAI.Project); project != "" {
		providerOptions = append(providerOptions, provideropenai.WithProject(project))
	}

	fantasyProvider, err := provideropenai.New(providerOptions...)
	if err != nil {
		return nil, fmt.Errorf("initialize fantasy openai provider: %w", err)
	}

	client := &Client{
		provider:       fantasyProvider,
		requestTimeout: time.Duration(cfg.OpenAI.RequestTimeoutSeconds) * time.Second,
		modelID:        modelID,
		systemPrompt:   strings.TrimSpace(cfg.SystemPrompt),
		historyLimit:   defaultHistoryLimit,
		generate:       generateWithFantasyAgent,
		log:            log.With("component", "assistant.fantasy"),
		sessions:       make(map[string][]core.Message),
	}
	if cfg.MaxTokens > 0 {
		maxTokens := int64(cfg.MaxTokens)
		client.maxOutputTokens = &maxTokens
	}
	if cfg.Temperature > 0 {
		temp := cfg.Temperature
		client.temperature = &temp
	}

	return client, nil
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if _, err := c.provider.LanguageModel(ctx, c.modelID); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func (c *Client) Ask(ctx context.Context, key string, prompt string) (types.Reply, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return types.Reply{}, errors.New("prompt is required")
	}

	history := c.history(key)
	if c.systemPrompt != "" {
		history = append([]core.Message{{
			Role:    core.MessageRoleSystem,
			Content: []core.MessagePart{core.TextPart{Text: c.systemPrompt}},
		}}, history...)
	}

	languageModel, err := c.provider.LanguageModel(ctx, c.modelID)
	if err != nil {
		return types.Reply{}, fmt.Errorf("resolve language model: %w", err)
	}

	call := core.AgentCall{
		Prompt:          prompt,
		Messages:        history,
		MaxOutputTokens: c.maxOutputTokens,
		Temperature:     c.temperature,
	}

	generate := c.generate
	if generate == nil {
		generate = generateWithFantasyAgent
	}

	startedAt := time.Now()
	result, err := generate(ctx, languageModel, call)
	if err != nil {
		return types.Reply{}, fmt.Errorf("prompt failed: %w", err)
	}

	text := extractText(result.Response.Content)
	if text == "" {
		return types.Reply{}, errors.New("prompt succeeded but returned no text")
	}
	c.log.Debug("Assistant request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "history", len(history))

	c.appendHistory(key,
		core.NewUserMessage(prompt),
		core.Message{
			Role:    core.MessageRoleAssistant,
			Content: []core.MessagePart{core.TextPart{Text: text}},
		},
	)

	usage := types.TokenUsage{
		InputTokens:     result.TotalUsage.InputTokens,
		OutputTokens:    result.TotalUsage.OutputTokens,
		TotalTokens:     result.TotalUsage.TotalTokens,
		ReasoningTokens: result.TotalUsage.ReasoningTokens,
		CacheReadTokens: result.TotalUsage.CacheReadTokens,
	}
	reply := types.Reply{Text: text, Provider: "openai", Model: c.modelID}
	if !usage.IsZero() {
		reply.Usage = &usage
	}
	return reply, nil
}

func (c *Client) Reset(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, strings.TrimSpace(key))
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

func (c *Client) history(key string) []core.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	history := c.sessions[strings.TrimSpace(key)]
	out := make([]core.Message, len(history))
	copy(out, history)
	return out
}

// appendHistory records messages and drops the oldest turns past the limit.
func (c *Client) appendHistory(key string, messages ...core.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessions == nil {
		c.sessions = make(map[string][]core.Message)
	}
	key = strings.TrimSpace(key)
	history := append(c.sessions[key], messages...)
	if c.historyLimit > 0 && len(history) > c.historyLimit {
		history = append([]core.Message(nil), history[len(history)-c.historyLimit:]...)
	}
	c.sessions[key] = history
}

func extractText(content core.ResponseContent) string {
	lines := make([]string, 0)
	for _, part := range content {
		if part.GetType() != core.ContentTypeText {
			continue
		}

		textPart, ok := core.AsContentType[core.TextContent](part)
		if !ok {
			continue
		}

		if line := strings.TrimSpace(textPart.Text); line != "" {
			lines = append(lines, line)
		}
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func generateWithFantasyAgent(ctx context.Context, model core.LanguageModel, call core.AgentCall) (*core.AgentResult, error) {
	return core.NewAgent(model).Generate(ctx, call)
}
