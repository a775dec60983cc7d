package module

import (
	"context"

	"tgvisor/pkg/client"
	"tgvisor/pkg/update"
)

// Capability names the update kind a Process accepts. CapabilityUpdate accepts
// every kind and is walked in its own pass.
type Capability string

const (
	CapabilityNewMessage    Capability = "new_message"
	CapabilityMessageEdited Capability = "message_edited"
	CapabilityMessageDelete Capability = "message_deleted"
	CapabilityCallbackQuery Capability = "callback_query"
	CapabilityInlineQuery   Capability = "inline_query"
	CapabilityRaw           Capability = "raw"
	CapabilityUpdate        Capability = "update"
)

// CapabilityFor maps an update kind to the capability whose handlers run in the kind pass.
func CapabilityFor(kind update.Kind) (Capability, bool) {
	switch kind {
	case update.KindNewMessage:
		return CapabilityNewMessage, true
	case update.KindMessageEdited:
		return CapabilityMessageEdited, true
	case update.KindMessageDeleted:
		return CapabilityMessageDelete, true
	case update.KindCallbackQuery:
		return CapabilityCallbackQuery, true
	case update.KindInlineQuery:
		return CapabilityInlineQuery, true
	case update.KindRaw:
		return CapabilityRaw, true
	default:
		return "", false
	}
}

// Process is a sealed sum over capabilities. Values are built with NewMessage,
// MessageEdited, MessageDeleted, CallbackQuery, InlineQuery, Raw and Update.
type Process interface {
	Capability() Capability
	// handle returns claimed=false without calling the handler when the update
	// does not carry the payload this variant needs.
	handle(ctx context.Context, conn client.Conn, u *update.Update) (bool, error)
	// accepts reports whether u carries the payload the wrapped handler takes.
	accepts(u *update.Update) bool
	empty() bool
}

// Invoke runs p against u. It exists for the router; modules never call it.
func Invoke(ctx context.Context, p Process, conn client.Conn, u *update.Update) (bool, error) {
	return p.handle(ctx, conn, u)
}

// Accepts reports whether Invoke would reach p's handler for u.
func Accepts(p Process, u *update.Update) bool {
	return u != nil && p.accepts(u)
}

type MessageHandler interface {
	Handle(ctx context.Context, conn client.Conn, msg *update.Message) (bool, error)
}

type DeletionHandler interface {
	Handle(ctx context.Context, conn client.Conn, deletion *update.MessageDeletion) (bool, error)
}

type CallbackQueryHandler interface {
	Handle(ctx context.Context, conn client.Conn, query *update.CallbackQuery) (bool, error)
}

type InlineQueryHandler interface {
	Handle(ctx context.Context, conn client.Conn, query *update.InlineQuery) (bool, error)
}

// RawHandler receives the transport-native payload of KindRaw updates.
type RawHandler interface {
	Handle(ctx context.Context, conn client.Conn, raw any) (bool, error)
}

// UpdateHandler receives every update regardless of kind.
type UpdateHandler interface {
	Handle(ctx context.Context, conn client.Conn, u *update.Update) (bool, error)
}

type MessageFunc func(ctx context.Context, conn client.Conn, msg *update.Message) (bool, error)

func (f MessageFunc) Handle(ctx context.Context, conn client.Conn, msg *update.Message) (bool, error) {
	return f(ctx, conn, msg)
}

type DeletionFunc func(ctx context.Context, conn client.Conn, deletion *update.MessageDeletion) (bool, error)

func (f DeletionFunc) Handle(ctx context.Context, conn client.Conn, deletion *update.MessageDeletion) (bool, error) {
	return f(ctx, conn, deletion)
}

type CallbackQueryFunc func(ctx context.Context, conn client.Conn, query *update.CallbackQuery) (bool, error)

func (f CallbackQueryFunc) Handle(ctx context.Context, conn client.Conn, query *update.CallbackQuery) (bool, error) {
	return f(ctx, conn, query)
}

type InlineQueryFunc func(ctx context.Context, conn client.Conn, query *update.InlineQuery) (bool, error)

func (f InlineQueryFunc) Handle(ctx context.Context, conn client.Conn, query *update.InlineQuery) (bool, error) {
	return f(ctx, conn, query)
}

type RawFunc func(ctx context.Context, conn client.Conn, raw any) (bool, error)

func (f RawFunc) Handle(ctx context.Context, conn client.Conn, raw any) (bool, error) {
	return f(ctx, conn, raw)
}

type UpdateFunc func(ctx context.Context, conn client.Conn, u *update.Update) (bool, error)

func (f UpdateFunc) Handle(ctx context.Context, conn client.Conn, u *update.Update) (bool, error) {
	return f(ctx, conn, u)
}

type messageProcess struct {
	capability Capability
	h          MessageHandler
}

func (p messageProcess) Capability() Capability { return p.capability }

func (p messageProcess) empty() bool { return p.h == nil }

func (messageProcess) accepts(u *update.Update) bool { return u.Message != nil }

func (p messageProcess) handle(ctx context.Context, conn client.Conn, u *update.Update) (bool, error) {
	if !p.accepts(u) {
		return false, nil
	}
	return p.h.Handle(ctx, conn, u.Message)
}

type deletionProcess struct{ h DeletionHandler }

func (deletionProcess) Capability() Capability { return CapabilityMessageDelete }

func (p deletionProcess) empty() bool { return p.h == nil }

func (deletionProcess) accepts(u *update.Update) bool { return u.Deletion != nil }

func (p deletionProcess) handle(ctx context.Context, conn client.Conn, u *update.Update) (bool, error) {
	if !p.accepts(u) {
		return false, nil
	}
	return p.h.Handle(ctx, conn, u.Deletion)
}

type callbackQueryProcess struct{ h CallbackQueryHandler }

func (callbackQueryProcess) Capability() Capability { return CapabilityCallbackQuery }

func (p callbackQueryProcess) empty() bool { return p.h == nil }

func (callbackQueryProcess) accepts(u *update.Update) bool { return u.CallbackQuery != nil }

func (p callbackQueryProcess) handle(ctx context.Context, conn client.Conn, u *update.Update) (bool, error) {
	if !p.accepts(u) {
		return false, nil
	}
	return p.h.Handle(ctx, conn, u.CallbackQuery)
}

type inlineQueryProcess struct{ h InlineQueryHandler }

func (inlineQueryProcess) Capability() Capability { return CapabilityInlineQuery }

func (p inlineQueryProcess) empty() bool { return p.h == nil }

func (inlineQueryProcess) accepts(u *update.Update) bool { return u.InlineQuery != nil }

func (p inlineQueryProcess) handle(ctx context.Context, conn client.Conn, u *update.Update) (bool, error) {
	if !p.accepts(u) {
		return false, nil
	}
	return p.h.Handle(ctx, conn, u.InlineQuery)
}

type rawProcess struct{ h RawHandler }

func (rawProcess) Capability() Capability { return CapabilityRaw }

func (p rawProcess) empty() bool { return p.h == nil }

func (rawProcess) accepts(*update.Update) bool { return true }

func (p rawProcess) handle(ctx context.Context, conn client.Conn, u *update.Update) (bool, error) {
	return p.h.Handle(ctx, conn, u.Raw)
}

type updateProcess struct{ h UpdateHandler }

func (updateProcess) Capability() Capability { return CapabilityUpdate }

func (p updateProcess) empty() bool { return p.h == nil }

func (updateProcess) accepts(*update.Update) bool { return true }

func (p updateProcess) handle(ctx context.Context, conn client.Conn, u *update.Update) (bool, error) {
	return p.h.Handle(ctx, conn, u)
}

func NewMessage(h MessageHandler) Process {
	return messageProcess{capability: CapabilityNewMessage, h: h}
}

func MessageEdited(h MessageHandler) Process {
	return messageProcess{capability: CapabilityMessageEdited, h: h}
}

func MessageDeleted(h DeletionHandler) Process {
	return deletionProcess{h: h}
}

func CallbackQuery(h CallbackQueryHandler) Process {
	return callbackQueryProcess{h: h}
}

func InlineQuery(h InlineQueryHandler) Process {
	return inlineQueryProcess{h: h}
}

func Raw(h RawHandler) Process {
	return rawProcess{h: h}
}

// Update builds a catch-all process that sees every update in the generic pass.
func Update(h UpdateHandler) Process {
	return updateProcess{h: h}
}
