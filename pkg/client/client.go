// Package client declares the remote-session collaborator consumed by the supervisor.
//
// A Dialer produces Conn values; a Conn pulls updates, carries the authentication
// operations and exports its session blob. Concrete transports live in subpackages.
package client

import (
	"context"
	"errors"
	"fmt"

	"tgvisor/pkg/update"
)

var (
	// ErrPasswordRequired is returned by SignIn when the account has a second factor.
	ErrPasswordRequired = errors.New("two-factor password required")
	// ErrNotAuthorized is returned by operations that need an authorized session.
	ErrNotAuthorized = errors.New("session is not authorized")
	// ErrUnsupported is returned when a transport cannot perform an operation.
	ErrUnsupported = errors.New("operation not supported by transport")
	// ErrClosed is returned by a Conn after Close.
	ErrClosed = errors.New("connection closed")
)

// Config is passed to a Dialer for each fresh connection.
type Config struct {
	Session  []byte
	AppID    int
	AppHash  string
	ProxyURL string
}

// Identity is the authenticated account behind a session.
type Identity struct {
	ID       int64
	Username string
	Name     string
	IsBot    bool
}

func (i Identity) String() string {
	if i.Username != "" {
		return fmt.Sprintf("%d (@%s)", i.ID, i.Username)
	}

	return fmt.Sprintf("%d", i.ID)
}

// LoginToken is the opaque value returned by RequestLoginCode and consumed by SignIn.
type LoginToken struct {
	Phone string
	Hash  string
}

// Dialer constructs live connections.
type Dialer interface {
	Dial(ctx context.Context, cfg Config) (Conn, error)
}

// DialerFunc adapts a function into a Dialer.
type DialerFunc func(ctx context.Context, cfg Config) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, cfg Config) (Conn, error) {
	return f(ctx, cfg)
}

// Puller yields inbound updates. NextUpdate blocks until an update arrives, the
// context is done or the connection fails. A nil update with a nil error means the
// pull completed without an update and should simply be retried.
type Puller interface {
	NextUpdate(ctx context.Context) (*update.Update, error)
}

// Authenticator covers the session authorization protocol.
type Authenticator interface {
	IsAuthorized(ctx context.Context) (bool, error)
	Identity(ctx context.Context) (Identity, error)
	RequestLoginCode(ctx context.Context, phone string) (LoginToken, error)
	SignIn(ctx context.Context, token LoginToken, code string) (Identity, error)
	CheckPassword(ctx context.Context, password string) (Identity, error)
	BotSignIn(ctx context.Context, token string) (Identity, error)
	ExportSession() ([]byte, error)
}

// Sender is the outbound surface handlers use to reply.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	AnswerCallback(ctx context.Context, queryID string, text string) error
}

// Conn is one live connection to the remote service.
type Conn interface {
	Puller
	Authenticator
	Sender
	Close() error
}
