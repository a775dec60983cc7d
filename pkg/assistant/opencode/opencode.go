package opencode

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	sdk "github.com/sst/opencode-sdk-go"
	"github.com/sst/opencode-sdk-go/option"

	"tgvisor/pkg/assistant/types"
	"tgvisor/pkg/config"
)

// Client prompts an OpenCode server, one server session per conversation key.
type Client struct {
	client         *sdk.Client
	model          string
	systemPrompt   string
	requestTimeout time.Duration
	sessions       types.Conversations
	log            *slog.Logger
}

type healthResponse struct {
	Healthy bool   `json:"healthy"`
	Version string `json:"version"`
}

func New(cfg config.AssistantConfig, log *slog.Logger, extra ...option.RequestOption) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}

	baseURL := strings.TrimSpace(cfg.OpenCode.BaseURL)
	if baseURL == "" {
		return nil, errors.New("modules.assistant.opencode.base_url is required")
	}

	opts := []option.RequestOption{option.WithBaseURL(baseURL)}
	if authHeader, ok := buildBasicAuthHeader(cfg.OpenCode); ok {
		opts = append(opts, option.WithHeader("Authorization", authHeader))
	}
	opts = append(opts, extra...)

	return &Client{
		client:         sdk.NewClient(opts...),
		model:          strings.TrimSpace(cfg.Model),
		systemPrompt:   strings.TrimSpace(cfg.SystemPrompt),
		requestTimeout: time.Duration(cfg.OpenCode.RequestTimeoutSeconds) * time.Second,
		log:            log.With("component", "assistant.opencode"),
	}, nil
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var response healthResponse
	if err := c.client.Get(ctx, "/global/health", nil, &response); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if !response.Healthy {
		return errors.New("opencode server reported unhealthy status")
	}
	c.log.Debug("Assistant backend healthy", "version", response.Version)
	return nil
}

func (c *Client) Ask(ctx context.Context, key string, prompt string) (types.Reply, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return types.Reply{}, errors.New("prompt is required")
	}

	sessionID, fresh, err := c.session(ctx, key)
	if err != nil {
		return types.Reply{}, err
	}

	log := c.log.With("operation", "ask", "session_id", sessionID)
	startedAt := time.Now()
	log.Debug("Assistant request started", "model", c.model, "prompt_length", len(prompt))

	parts := make([]sdk.SessionPromptParamsPartUnion, 0, 2)
	if fresh && c.systemPrompt != "" {
		parts = append(parts, sdk.TextPartInputParam{
			Type: sdk.F(sdk.TextPartInputTypeText),
			Text: sdk.F(c.systemPrompt),
		})
	}
	parts = append(parts, sdk.TextPartInputParam{
		Type: sdk.F(sdk.TextPartInputTypeText),
		Text: sdk.F(prompt),
	})

	params := sdk.SessionPromptParams{Parts: sdk.F(parts)}
	if providerID, modelID, ok := parseModelRef(c.model); ok {
		params.Model = sdk.F(sdk.SessionPromptParamsModel{
			ProviderID: sdk.F(providerID),
			ModelID:    sdk.F(modelID),
		})
	}

	response, err := c.client.Session.Prompt(ctx, sessionID, params)
	if err != nil {
		log.Debug("Assistant request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return types.Reply{}, fmt.Errorf("prompt failed: %w", err)
	}

	text := extractText(response.Parts)
	if text == "" {
		return types.Reply{}, errors.New("prompt succeeded but returned no text parts")
	}
	log.Debug("Assistant request completed",
		"duration_ms", time.Since(startedAt).Milliseconds(),
		"response_length", len(text),
		"parts_count", len(response.Parts),
	)

	usage := types.TokenUsage{
		InputTokens:     tokenCount(response.Info.Tokens.Input),
		OutputTokens:    tokenCount(response.Info.Tokens.Output),
		TotalTokens:     tokenCount(response.Info.Tokens.Input) + tokenCount(response.Info.Tokens.Output),
		ReasoningTokens: tokenCount(response.Info.Tokens.Reasoning),
		CacheReadTokens: tokenCount(response.Info.Tokens.Cache.Read),
	}
	reply := types.Reply{
		Text:     text,
		Provider: strings.TrimSpace(response.Info.ProviderID),
		Model:    strings.TrimSpace(response.Info.ModelID),
	}
	if !usage.IsZero() {
		reply.Usage = &usage
	}
	return reply, nil
}

func (c *Client) Reset(key string) {
	c.sessions.Forget(key)
}

// session returns the server session for key, creating it on first use.
func (c *Client) session(ctx context.Context, key string) (string, bool, error) {
	if id, ok := c.sessions.Lookup(key); ok {
		return id, false, nil
	}

	params := sdk.SessionNewParams{}
	if title := strings.TrimSpace(key); title != "" {
		params.Title = sdk.F("tgvisor " + title)
	}

	session, err := c.client.Session.New(ctx, params)
	if err != nil {
		return "", false, fmt.Errorf("create session failed: %w", err)
	}
	if session.ID == "" {
		return "", false, errors.New("create session returned empty session id")
	}

	c.sessions.Store(key, session.ID)
	return session.ID, true, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

func buildBasicAuthHeader(cfg config.OpenCodeConfig) (string, bool) {
	passwordEnv := strings.TrimSpace(cfg.PasswordEnv)
	if passwordEnv == "" {
		return "", false
	}

	password := strings.TrimSpace(os.Getenv(passwordEnv))
	if password == "" {
		return "", false
	}

	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "opencode"
	}

	token := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return "Basic " + token, true
}

func parseModelRef(input string) (providerID string, modelID string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(input), "/", 2)
	if len(parts) != 2 {
		return "", "", false
	}

	providerID = strings.TrimSpace(parts[0])
	modelID = strings.TrimSpace(parts[1])
	if providerID == "" || modelID == "" {
		return "", "", false
	}

	return providerID, modelID, true
}

func extractText(parts []sdk.Part) string {
	var lines []string
	for _, part := range parts {
		if part.Type != sdk.PartTypeText {
			continue
		}
		if text := strings.TrimSpace(part.Text); text != "" {
			lines = append(lines, text)
		}
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func tokenCount(value float64) int64 {
	if value <= 0 {
		return 0
	}

	return int64(math.Round(value))
}
