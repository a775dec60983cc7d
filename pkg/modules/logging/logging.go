// Package logging is a passive module that logs traffic and never claims it.
package logging

import (
	"context"
	"log/slog"

	"tgvisor/pkg/client"
	"tgvisor/pkg/module"
	"tgvisor/pkg/update"
)

const (
	ModuleID = "logging"

	previewLimit = 120
)

// New returns the logging module. Its catch-all handler sees every update in
// the update pass; the edit and delete handlers add detail in the kind pass.
func New(log *slog.Logger) module.Module {
	if log == nil {
		log = slog.Default()
	}
	l := &logger{log: log.With("component", "modules.logging")}

	return module.Module{
		ID:   ModuleID,
		Name: "Update logger",
		Handlers: []module.Handler{
			{ID: "all", Process: module.Update(module.UpdateFunc(l.update))},
			{ID: "edited", Process: module.MessageEdited(module.MessageFunc(l.edited))},
			{ID: "deleted", Process: module.MessageDeleted(module.DeletionFunc(l.deleted))},
		},
	}
}

type logger struct {
	log *slog.Logger
}

func (l *logger) update(ctx context.Context, _ client.Conn, u *update.Update) (bool, error) {
	attrs := []any{"update_id", u.ID, "kind", u.Kind.String()}

	switch {
	case u.Message != nil:
		attrs = append(attrs, "chat_id", u.Message.Chat.ID, "message_id", u.Message.ID)
		if u.Message.HasSender() {
			attrs = append(attrs, "sender", u.Message.Sender.DisplayName())
		}
		attrs = append(attrs, "text", preview(u.Message.Text))
	case u.CallbackQuery != nil:
		attrs = append(attrs, "query_id", u.CallbackQuery.ID, "from", u.CallbackQuery.From.DisplayName())
	case u.InlineQuery != nil:
		attrs = append(attrs, "query_id", u.InlineQuery.ID, "query", preview(u.InlineQuery.Query))
	case u.Deletion != nil:
		attrs = append(attrs, "deleted", len(u.Deletion.MessageIDs))
	}

	l.log.InfoContext(ctx, "Update received", attrs...)
	return false, nil
}

func (l *logger) edited(ctx context.Context, _ client.Conn, msg *update.Message) (bool, error) {
	l.log.InfoContext(ctx, "Message edited",
		"chat_id", msg.Chat.ID,
		"message_id", msg.ID,
		"edited_at", msg.EditedAt,
		"text", preview(msg.Text),
	)
	return false, nil
}

func (l *logger) deleted(ctx context.Context, _ client.Conn, deletion *update.MessageDeletion) (bool, error) {
	attrs := []any{"message_ids", deletion.MessageIDs}
	if deletion.Chat != nil {
		attrs = append(attrs, "chat_id", deletion.Chat.ID)
	}

	l.log.InfoContext(ctx, "Messages deleted", attrs...)
	return false, nil
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLimit {
		return text
	}
	return string(runes[:previewLimit]) + "..."
}
