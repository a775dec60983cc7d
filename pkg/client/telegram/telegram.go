// Package telegram is a client.Dialer backed by the Telegram Bot API with long
// polling. Only the bot-token flow is available; phone login operations return
// client.ErrUnsupported.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"

	"tgvisor/pkg/client"
	"tgvisor/pkg/update"
)

const (
	defaultPollTimeout  = 30 * time.Second
	messagePreviewLimit = 240
)

var allowedUpdates = []string{
	"message",
	"edited_message",
	"channel_post",
	"edited_channel_post",
	"business_message",
	"edited_business_message",
	"deleted_business_messages",
	"callback_query",
	"inline_query",
	"my_chat_member",
	"chat_member",
}

// sessionState is the exported session blob.
type sessionState struct {
	Token  string `json:"token"`
	BotID  int64  `json:"bot_id,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

type DialerOptions struct {
	// APIServer overrides the Bot API base URL, for a local bot API server.
	APIServer   string
	PollTimeout time.Duration
	Logger      *slog.Logger
}

// Dialer builds Bot API connections. It remembers the highest polled offset so
// a reconnect does not replay updates already handed out.
type Dialer struct {
	apiServer   string
	pollTimeout time.Duration
	log         *slog.Logger

	mu     sync.Mutex
	offset int
}

func NewDialer(opts DialerOptions) *Dialer {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := opts.PollTimeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}

	return &Dialer{
		apiServer:   strings.TrimSpace(opts.APIServer),
		pollTimeout: timeout,
		log:         log.With("component", "client.telegram"),
	}
}

func (d *Dialer) Dial(ctx context.Context, cfg client.Config) (client.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var state sessionState
	if len(cfg.Session) > 0 {
		if err := json.Unmarshal(cfg.Session, &state); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
	}
	state.Offset = max(state.Offset, d.currentOffset())

	httpClient, err := newHTTPClient(cfg.ProxyURL)
	if err != nil {
		return nil, err
	}

	conn := &Conn{
		dialer:     d,
		httpClient: httpClient,
		state:      state,
		log:        d.log,
	}
	if state.Token != "" {
		if err := conn.open(state.Token); err != nil {
			return nil, err
		}
	}

	d.log.Debug("Connection created", "has_session", state.Token != "", "offset", state.Offset, "proxy", cfg.ProxyURL != "")
	return conn, nil
}

func (d *Dialer) currentOffset() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.offset
}

func (d *Dialer) advance(offset int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if offset > d.offset {
		d.offset = offset
	}
}

func newHTTPClient(proxy string) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy = strings.TrimSpace(proxy); proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &http.Client{Transport: transport}, nil
}

// Conn is one Bot API session. NextUpdate is called from a single goroutine;
// the send methods may be used concurrently by handlers.
type Conn struct {
	dialer     *Dialer
	httpClient *http.Client
	log        *slog.Logger

	mu      sync.Mutex
	bot     *telego.Bot
	state   sessionState
	me      *client.Identity
	pending []telego.Update
	closed  bool
}

func (c *Conn) open(token string) error {
	opts := []telego.BotOption{
		telego.WithHTTPClient(c.httpClient),
		telego.WithDiscardLogger(),
	}
	if c.dialer.apiServer != "" {
		opts = append(opts, telego.WithAPIServer(c.dialer.apiServer))
	}

	bot, err := telego.NewBot(strings.TrimSpace(token), opts...)
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	c.mu.Lock()
	c.bot = bot
	c.mu.Unlock()
	return nil
}

func (c *Conn) currentBot() (*telego.Bot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, client.ErrClosed
	}
	if c.bot == nil {
		return nil, client.ErrNotAuthorized
	}
	return c.bot, nil
}

func (c *Conn) IsAuthorized(ctx context.Context) (bool, error) {
	bot, err := c.currentBot()
	if errors.Is(err, client.ErrNotAuthorized) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	user, err := bot.GetMe(ctx)
	if err != nil {
		if isUnauthorized(err) {
			return false, nil
		}
		return false, fmt.Errorf("get me: %w", err)
	}

	c.remember(user)
	return true, nil
}

func (c *Conn) Identity(ctx context.Context) (client.Identity, error) {
	c.mu.Lock()
	if c.me != nil {
		me := *c.me
		c.mu.Unlock()
		return me, nil
	}
	c.mu.Unlock()

	bot, err := c.currentBot()
	if err != nil {
		return client.Identity{}, err
	}
	user, err := bot.GetMe(ctx)
	if err != nil {
		if isUnauthorized(err) {
			return client.Identity{}, client.ErrNotAuthorized
		}
		return client.Identity{}, fmt.Errorf("get me: %w", err)
	}

	return c.remember(user), nil
}

func (c *Conn) remember(user *telego.User) client.Identity {
	me := toIdentity(user)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.me = &me
	c.state.BotID = me.ID
	return me
}

func (c *Conn) RequestLoginCode(context.Context, string) (client.LoginToken, error) {
	return client.LoginToken{}, fmt.Errorf("request login code: %w", client.ErrUnsupported)
}

func (c *Conn) SignIn(context.Context, client.LoginToken, string) (client.Identity, error) {
	return client.Identity{}, fmt.Errorf("sign in: %w", client.ErrUnsupported)
}

func (c *Conn) CheckPassword(context.Context, string) (client.Identity, error) {
	return client.Identity{}, fmt.Errorf("check password: %w", client.ErrUnsupported)
}

func (c *Conn) BotSignIn(ctx context.Context, token string) (client.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return client.Identity{}, errors.New("bot token is required")
	}
	if err := c.open(token); err != nil {
		return client.Identity{}, err
	}

	bot, err := c.currentBot()
	if err != nil {
		return client.Identity{}, err
	}
	user, err := bot.GetMe(ctx)
	if err != nil {
		c.mu.Lock()
		c.bot = nil
		c.mu.Unlock()
		return client.Identity{}, fmt.Errorf("verify bot token: %w", err)
	}

	c.mu.Lock()
	c.state.Token = token
	c.mu.Unlock()
	return c.remember(user), nil
}

func (c *Conn) ExportSession() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Token == "" {
		return nil, client.ErrNotAuthorized
	}

	return json.Marshal(c.state)
}

// NextUpdate returns buffered updates first and long-polls when the buffer is
// empty. An empty poll yields nil, nil.
func (c *Conn) NextUpdate(ctx context.Context) (*update.Update, error) {
	if next, ok := c.popPending(); ok {
		return toUpdate(next), nil
	}

	bot, err := c.currentBot()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	offset := c.state.Offset
	c.mu.Unlock()

	updates, err := bot.GetUpdates(ctx, &telego.GetUpdatesParams{
		Offset:         offset,
		Timeout:        int(c.dialer.pollTimeout / time.Second),
		AllowedUpdates: allowedUpdates,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("get updates: %w", err)
	}
	if len(updates) == 0 {
		return nil, nil
	}

	next := updates[len(updates)-1].UpdateID + 1
	c.mu.Lock()
	c.pending = append(c.pending, updates...)
	c.state.Offset = next
	c.mu.Unlock()
	c.dialer.advance(next)

	first, _ := c.popPending()
	return toUpdate(first), nil
}

func (c *Conn) popPending() (telego.Update, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || len(c.pending) == 0 {
		return telego.Update{}, false
	}
	next := c.pending[0]
	c.pending = c.pending[1:]
	return next, true
}

func (c *Conn) SendText(ctx context.Context, chatID int64, text string) error {
	bot, err := c.currentBot()
	if err != nil {
		return err
	}

	c.log.Info("Sending message", "chat_id", chatID, "content", previewText(text))
	if _, err := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (c *Conn) AnswerCallback(ctx context.Context, queryID string, text string) error {
	bot, err := c.currentBot()
	if err != nil {
		return err
	}

	if err := bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{CallbackQueryID: queryID, Text: text}); err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}
	return nil
}

// Close marks the connection dead. It never logs the bot out remotely.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.pending = nil
	c.httpClient.CloseIdleConnections()
	return nil
}

func isUnauthorized(err error) bool {
	var apiErr *telegoapi.Error
	return errors.As(err, &apiErr) && apiErr.ErrorCode == http.StatusUnauthorized
}

// previewText returns a log-safe preview of at most messagePreviewLimit runes.
func previewText(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= messagePreviewLimit {
		return string(runes)
	}

	return string(runes[:messagePreviewLimit]) + "..."
}

var (
	_ client.Dialer = (*Dialer)(nil)
	_ client.Conn   = (*Conn)(nil)
)
