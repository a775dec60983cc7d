// Package clienttest provides a scripted in-memory client.Conn for tests.
package clienttest

import (
	"context"
	"errors"
	"sync"

	"tgvisor/pkg/client"
	"tgvisor/pkg/update"
)

// Pull is one scripted NextUpdate result.
type Pull struct {
	Update *update.Update
	Err    error
}

// SentText records one SendText call.
type SentText struct {
	ChatID int64
	Text   string
}

// Answer records one AnswerCallback call.
type Answer struct {
	QueryID string
	Text    string
}

// Conn is a fake connection. Scripted pulls are returned in order; once exhausted
// NextUpdate blocks until the context is done. All fields may be set before use.
type Conn struct {
	Authorized      bool
	AuthorizedErr   error
	Me              client.Identity
	IdentityErr     error
	Session         []byte
	NeedPassword    bool
	LoginCodeErr    error
	SignInErr       error
	PasswordErr     error
	BotSignInErr    error
	SendErr         error
	ExportErr       error
	WantCode        string
	WantPassword    string
	WantBotToken    string
	ExportedSession []byte

	mu        sync.Mutex
	pulls     []Pull
	calls     []string
	sent      []SentText
	answered  []Answer
	closed    bool
	exhausted chan struct{}
}

// NewConn returns a fake connection with the given scripted pulls.
func NewConn(pulls ...Pull) *Conn {
	return &Conn{pulls: pulls, exhausted: make(chan struct{})}
}

// Push appends a scripted pull.
func (c *Conn) Push(p Pull) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pulls = append(c.pulls, p)
}

// Exhausted is closed the first time NextUpdate runs out of scripted pulls.
func (c *Conn) Exhausted() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exhausted == nil {
		c.exhausted = make(chan struct{})
	}
	return c.exhausted
}

func (c *Conn) record(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

// Calls returns the recorded method names in call order.
func (c *Conn) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

// Sent returns recorded SendText calls.
func (c *Conn) Sent() []SentText {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SentText, len(c.sent))
	copy(out, c.sent)
	return out
}

// Answered returns callback answers recorded so far.
func (c *Conn) Answered() []Answer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Answer, len(c.answered))
	copy(out, c.answered)
	return out
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) NextUpdate(ctx context.Context) (*update.Update, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, client.ErrClosed
	}
	if len(c.pulls) > 0 {
		next := c.pulls[0]
		c.pulls = c.pulls[1:]
		c.mu.Unlock()
		return next.Update, next.Err
	}
	if c.exhausted == nil {
		c.exhausted = make(chan struct{})
	}
	select {
	case <-c.exhausted:
	default:
		close(c.exhausted)
	}
	c.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *Conn) IsAuthorized(context.Context) (bool, error) {
	c.record("IsAuthorized")
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Authorized, c.AuthorizedErr
}

func (c *Conn) Identity(context.Context) (client.Identity, error) {
	c.record("Identity")
	return c.Me, c.IdentityErr
}

func (c *Conn) RequestLoginCode(_ context.Context, phone string) (client.LoginToken, error) {
	c.record("RequestLoginCode")
	if c.LoginCodeErr != nil {
		return client.LoginToken{}, c.LoginCodeErr
	}
	return client.LoginToken{Phone: phone, Hash: "hash"}, nil
}

func (c *Conn) SignIn(_ context.Context, _ client.LoginToken, code string) (client.Identity, error) {
	c.record("SignIn")
	if c.SignInErr != nil {
		return client.Identity{}, c.SignInErr
	}
	if c.WantCode != "" && code != c.WantCode {
		return client.Identity{}, errors.New("invalid code")
	}
	if c.NeedPassword {
		return client.Identity{}, client.ErrPasswordRequired
	}
	c.authorize()
	return c.Me, nil
}

func (c *Conn) CheckPassword(_ context.Context, password string) (client.Identity, error) {
	c.record("CheckPassword")
	if c.PasswordErr != nil {
		return client.Identity{}, c.PasswordErr
	}
	if c.WantPassword != "" && password != c.WantPassword {
		return client.Identity{}, errors.New("invalid password")
	}
	c.authorize()
	return c.Me, nil
}

func (c *Conn) BotSignIn(_ context.Context, token string) (client.Identity, error) {
	c.record("BotSignIn")
	if c.BotSignInErr != nil {
		return client.Identity{}, c.BotSignInErr
	}
	if c.WantBotToken != "" && token != c.WantBotToken {
		return client.Identity{}, errors.New("invalid bot token")
	}
	c.authorize()
	return c.Me, nil
}

func (c *Conn) authorize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Authorized = true
}

func (c *Conn) ExportSession() ([]byte, error) {
	c.record("ExportSession")
	if c.ExportErr != nil {
		return nil, c.ExportErr
	}
	if c.ExportedSession != nil {
		return c.ExportedSession, nil
	}
	return c.Session, nil
}

func (c *Conn) SendText(_ context.Context, chatID int64, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	c.sent = append(c.sent, SentText{ChatID: chatID, Text: text})
	return nil
}

func (c *Conn) AnswerCallback(_ context.Context, queryID string, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	c.answered = append(c.answered, Answer{QueryID: queryID, Text: text})
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

var _ client.Conn = (*Conn)(nil)
