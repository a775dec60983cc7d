// Package ping answers liveness probes sent from chat.
package ping

import (
	"context"
	"fmt"
	"log/slog"

	"tgvisor/pkg/client"
	"tgvisor/pkg/module"
	"tgvisor/pkg/update"
)

const (
	ModuleID = "ping"

	reply = "pong"
)

// New returns the ping module: /ping replies "pong" and callback queries are
// answered with their own data.
func New(log *slog.Logger) module.Module {
	if log == nil {
		log = slog.Default()
	}
	p := &pinger{log: log.With("component", "modules.ping")}

	return module.Module{
		ID:   ModuleID,
		Name: "Ping",
		Handlers: []module.Handler{
			{ID: "command", Process: module.NewMessage(module.MessageFunc(p.command))},
			{ID: "callback", Process: module.CallbackQuery(module.CallbackQueryFunc(p.callback))},
		},
	}
}

type pinger struct {
	log *slog.Logger
}

func (p *pinger) command(ctx context.Context, conn client.Conn, msg *update.Message) (bool, error) {
	name, _, ok := module.ParseCommand(msg.Text)
	if !ok || name != "ping" {
		return false, nil
	}

	if err := conn.SendText(ctx, msg.Chat.ID, reply); err != nil {
		return false, fmt.Errorf("reply to ping: %w", err)
	}
	p.log.Debug("Answered ping", "chat_id", msg.Chat.ID)
	return true, nil
}

func (p *pinger) callback(ctx context.Context, conn client.Conn, query *update.CallbackQuery) (bool, error) {
	if err := conn.AnswerCallback(ctx, query.ID, query.Data); err != nil {
		return false, fmt.Errorf("answer callback: %w", err)
	}
	p.log.Debug("Answered callback query", "query_id", query.ID)
	return true, nil
}
