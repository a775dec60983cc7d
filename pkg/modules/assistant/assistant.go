// Package assistant exposes an LLM backend through /ask and /reset commands.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"unicode/utf8"

	"tgvisor/pkg/assistant/types"
	"tgvisor/pkg/client"
	"tgvisor/pkg/module"
	"tgvisor/pkg/update"
)

const (
	ModuleID = "assistant"

	usageText = "usage: /ask <question>"
	resetText = "Conversation reset."
	// maxReplyRunes keeps replies under the Bot API message limit.
	maxReplyRunes = 4000
)

// Backend is the slice of assistant.Client the module needs.
type Backend interface {
	Ask(ctx context.Context, key string, prompt string) (types.Reply, error)
	Reset(key string)
}

func New(backend Backend, log *slog.Logger) (module.Module, error) {
	if backend == nil {
		return module.Module{}, errors.New("assistant backend is required")
	}
	if log == nil {
		log = slog.Default()
	}
	a := &asker{backend: backend, log: log.With("component", "modules.assistant")}

	return module.Module{
		ID:   ModuleID,
		Name: "Assistant",
		Handlers: []module.Handler{
			{ID: "ask", Process: module.NewMessage(module.MessageFunc(a.ask))},
			{ID: "reset", Process: module.NewMessage(module.MessageFunc(a.reset))},
		},
	}, nil
}

type asker struct {
	backend Backend
	log     *slog.Logger
}

func (a *asker) ask(ctx context.Context, conn client.Conn, msg *update.Message) (bool, error) {
	name, question, ok := module.ParseCommand(msg.Text)
	if !ok || name != "ask" {
		return false, nil
	}
	if question == "" {
		if err := conn.SendText(ctx, msg.Chat.ID, usageText); err != nil {
			return false, fmt.Errorf("send usage: %w", err)
		}
		return true, nil
	}

	reply, err := a.backend.Ask(ctx, conversationKey(msg), question)
	if err != nil {
		return false, fmt.Errorf("ask assistant: %w", err)
	}

	attrs := []any{"chat_id", msg.Chat.ID, "provider", reply.Provider, "model", reply.Model}
	if reply.Usage != nil {
		attrs = append(attrs, "total_tokens", reply.Usage.TotalTokens)
	}
	a.log.Info("Assistant replied", attrs...)

	if err := conn.SendText(ctx, msg.Chat.ID, truncate(reply.Text)); err != nil {
		return false, fmt.Errorf("send reply: %w", err)
	}
	return true, nil
}

func (a *asker) reset(ctx context.Context, conn client.Conn, msg *update.Message) (bool, error) {
	name, _, ok := module.ParseCommand(msg.Text)
	if !ok || name != "reset" {
		return false, nil
	}

	a.backend.Reset(conversationKey(msg))
	if err := conn.SendText(ctx, msg.Chat.ID, resetText); err != nil {
		return false, fmt.Errorf("send reset confirmation: %w", err)
	}
	return true, nil
}

// conversationKey scopes a conversation to its chat.
func conversationKey(msg *update.Message) string {
	return strconv.FormatInt(msg.Chat.ID, 10)
}

func truncate(text string) string {
	if utf8.RuneCountInString(text) <= maxReplyRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxReplyRunes]) + "…"
}
