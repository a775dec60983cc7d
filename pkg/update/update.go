// Package update defines the transport-neutral inbound update model routed to modules.
package update

import (
	"fmt"
	"time"
)

// Kind classifies one inbound update.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNewMessage
	KindMessageEdited
	KindMessageDeleted
	KindCallbackQuery
	KindInlineQuery
	KindRaw
)

// String returns the stable snake_case name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindNewMessage:
		return "new_message"
	case KindMessageEdited:
		return "message_edited"
	case KindMessageDeleted:
		return "message_deleted"
	case KindCallbackQuery:
		return "callback_query"
	case KindInlineQuery:
		return "inline_query"
	case KindRaw:
		return "raw"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Update is one decoded inbound event. Exactly one payload field matches Kind;
// Raw always carries the transport-native value when the transport has one.
type Update struct {
	ID         int64
	Kind       Kind
	ReceivedAt time.Time

	Message       *Message
	Deletion      *MessageDeletion
	CallbackQuery *CallbackQuery
	InlineQuery   *InlineQuery
	Raw           any
}

// ChatType mirrors the remote service chat categories.
type ChatType string

const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSupergroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
)

type Chat struct {
	ID       int64
	Type     ChatType
	Title    string
	Username string
}

// IsUser reports whether the chat is a one-to-one conversation.
func (c Chat) IsUser() bool {
	return c.Type == ChatPrivate
}

// IsGroup reports whether the chat is a basic group or a supergroup.
func (c Chat) IsGroup() bool {
	return c.Type == ChatGroup || c.Type == ChatSupergroup
}

func (c Chat) IsChannel() bool {
	return c.Type == ChatChannel
}

type User struct {
	ID        int64
	IsBot     bool
	FirstName string
	LastName  string
	Username  string
}

// DisplayName returns the username when present, otherwise the first name.
func (u User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}

	return u.FirstName
}

type Message struct {
	ID       int64
	Chat     Chat
	Sender   *User
	Text     string
	SentAt   time.Time
	EditedAt time.Time
}

// HasSender reports whether the message carries a sender. Channel posts usually do not.
func (m *Message) HasSender() bool {
	return m != nil && m.Sender != nil
}

func (m *Message) IsUser() bool    { return m != nil && m.Chat.IsUser() }
func (m *Message) IsGroup() bool   { return m != nil && m.Chat.IsGroup() }
func (m *Message) IsChannel() bool { return m != nil && m.Chat.IsChannel() }

// MessageDeletion lists message ids removed from one chat. Chat is nil when the
// remote service does not report which chat the messages belonged to.
type MessageDeletion struct {
	Chat       *Chat
	MessageIDs []int64
}

type CallbackQuery struct {
	ID        string
	From      User
	ChatID    int64
	MessageID int64
	Data      string
}

type InlineQuery struct {
	ID     string
	From   User
	Query  string
	Offset string
}

// NewMessage builds a KindNewMessage update.
func NewMessage(id int64, msg *Message) *Update {
	return &Update{ID: id, Kind: KindNewMessage, ReceivedAt: time.Now().UTC(), Message: msg}
}

func MessageEdited(id int64, msg *Message) *Update {
	return &Update{ID: id, Kind: KindMessageEdited, ReceivedAt: time.Now().UTC(), Message: msg}
}

func MessageDeleted(id int64, deletion *MessageDeletion) *Update {
	return &Update{ID: id, Kind: KindMessageDeleted, ReceivedAt: time.Now().UTC(), Deletion: deletion}
}

func NewCallbackQuery(id int64, query *CallbackQuery) *Update {
	return &Update{ID: id, Kind: KindCallbackQuery, ReceivedAt: time.Now().UTC(), CallbackQuery: query}
}

func NewInlineQuery(id int64, query *InlineQuery) *Update {
	return &Update{ID: id, Kind: KindInlineQuery, ReceivedAt: time.Now().UTC(), InlineQuery: query}
}

// NewRaw wraps a transport-level update that has no typed model.
func NewRaw(id int64, raw any) *Update {
	return &Update{ID: id, Kind: KindRaw, ReceivedAt: time.Now().UTC(), Raw: raw}
}
