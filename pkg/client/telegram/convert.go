package telegram

import (
	"time"

	"github.com/mymmrac/telego"

	"tgvisor/pkg/client"
	"tgvisor/pkg/update"
)

func toUpdate(u telego.Update) *update.Update {
	id := int64(u.UpdateID)

	switch {
	case u.Message != nil:
		return update.NewMessage(id, toMessage(u.Message))
	case u.ChannelPost != nil:
		return update.NewMessage(id, toMessage(u.ChannelPost))
	case u.BusinessMessage != nil:
		return update.NewMessage(id, toMessage(u.BusinessMessage))
	case u.EditedMessage != nil:
		return update.MessageEdited(id, toMessage(u.EditedMessage))
	case u.EditedChannelPost != nil:
		return update.MessageEdited(id, toMessage(u.EditedChannelPost))
	case u.EditedBusinessMessage != nil:
		return update.MessageEdited(id, toMessage(u.EditedBusinessMessage))
	case u.DeletedBusinessMessages != nil:
		chat := toChat(u.DeletedBusinessMessages.Chat)
		ids := make([]int64, 0, len(u.DeletedBusinessMessages.MessageIDs))
		for _, messageID := range u.DeletedBusinessMessages.MessageIDs {
			ids = append(ids, int64(messageID))
		}
		return update.MessageDeleted(id, &update.MessageDeletion{Chat: &chat, MessageIDs: ids})
	case u.CallbackQuery != nil:
		return update.NewCallbackQuery(id, toCallbackQuery(u.CallbackQuery))
	case u.InlineQuery != nil:
		return update.NewInlineQuery(id, &update.InlineQuery{
			ID:     u.InlineQuery.ID,
			From:   toUser(u.InlineQuery.From),
			Query:  u.InlineQuery.Query,
			Offset: u.InlineQuery.Offset,
		})
	default:
		return update.NewRaw(id, u)
	}
}

func toMessage(m *telego.Message) *update.Message {
	msg := &update.Message{
		ID:     int64(m.MessageID),
		Chat:   toChat(m.Chat),
		Text:   m.Text,
		SentAt: unixTime(m.Date),
	}
	if msg.Text == "" {
		msg.Text = m.Caption
	}
	if m.EditDate != 0 {
		msg.EditedAt = unixTime(m.EditDate)
	}
	if m.From != nil {
		sender := toUser(*m.From)
		msg.Sender = &sender
	}

	return msg
}

func toCallbackQuery(q *telego.CallbackQuery) *update.CallbackQuery {
	// The originating message is left out; it may be inaccessible to the bot.
	return &update.CallbackQuery{
		ID:   q.ID,
		From: toUser(q.From),
		Data: q.Data,
	}
}

func toChat(c telego.Chat) update.Chat {
	chat := update.Chat{
		ID:       c.ID,
		Title:    c.Title,
		Username: c.Username,
	}

	switch c.Type {
	case telego.ChatTypePrivate:
		chat.Type = update.ChatPrivate
	case telego.ChatTypeGroup:
		chat.Type = update.ChatGroup
	case telego.ChatTypeSupergroup:
		chat.Type = update.ChatSupergroup
	case telego.ChatTypeChannel:
		chat.Type = update.ChatChannel
	}
	if chat.Title == "" && chat.Type == update.ChatPrivate {
		chat.Title = joinName(c.FirstName, c.LastName)
	}

	return chat
}

func toUser(u telego.User) update.User {
	return update.User{
		ID:        u.ID,
		IsBot:     u.IsBot,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
	}
}

func toIdentity(u *telego.User) client.Identity {
	if u == nil {
		return client.Identity{}
	}

	return client.Identity{
		ID:       u.ID,
		Username: u.Username,
		Name:     joinName(u.FirstName, u.LastName),
		IsBot:    u.IsBot,
	}
}

func joinName(first, last string) string {
	if last == "" {
		return first
	}
	if first == "" {
		return last
	}
	return first + " " + last
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
