// Package bootstrap drives a fresh connection through authentication once per
// process start.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tgvisor/pkg/client"
	"tgvisor/pkg/credentials"
	"tgvisor/pkg/session"
)

// Flow selects the handshake used when the stored session is not authorized.
type Flow string

const (
	FlowPhone Flow = "phone"
	FlowBot   Flow = "bot"
)

func ParseFlow(raw string) (Flow, error) {
	switch Flow(strings.ToLower(strings.TrimSpace(raw))) {
	case FlowPhone:
		return FlowPhone, nil
	case FlowBot, "":
		return FlowBot, nil
	default:
		return "", fmt.Errorf("unknown auth mode %q (want %q or %q)", raw, FlowPhone, FlowBot)
	}
}

// Steps reported by AuthenticationError.
const (
	StepCheck         = "check_authorization"
	StepIdentity      = "identity"
	StepPhone         = "phone"
	StepRequestCode   = "request_code"
	StepCode          = "code"
	StepSignIn        = "sign_in"
	StepPassword      = "password"
	StepCheckPassword = "check_password"
	StepBotToken      = "bot_token"
	StepBotSignIn     = "bot_sign_in"
	StepExportSession = "export_session"
	StepSaveSession   = "save_session"
)

// AuthenticationError is fatal at startup and never retried.
type AuthenticationError struct {
	Step string
	Err  error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed at %s: %v", e.Step, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

func fail(step string, err error) error {
	return &AuthenticationError{Step: step, Err: err}
}

type Bootstrapper struct {
	flow  Flow
	creds credentials.Provider
	store session.Store
	log   *slog.Logger
}

func New(flow Flow, creds credentials.Provider, store session.Store, log *slog.Logger) *Bootstrapper {
	if log == nil {
		log = slog.Default()
	}

	return &Bootstrapper{
		flow:  flow,
		creds: creds,
		store: store,
		log:   log.With("component", "bootstrap"),
	}
}

func (b *Bootstrapper) Flow() Flow {
	return b.flow
}

// EnsureAuthenticated returns the identity behind conn, running the configured
// handshake and persisting the exported session when conn is not yet authorized.
// An already authorized session only costs an identity lookup.
func (b *Bootstrapper) EnsureAuthenticated(ctx context.Context, conn client.Authenticator) (client.Identity, error) {
	authorized, err := conn.IsAuthorized(ctx)
	if err != nil {
		return client.Identity{}, fail(StepCheck, err)
	}
	if authorized {
		me, err := conn.Identity(ctx)
		if err != nil {
			return client.Identity{}, fail(StepIdentity, err)
		}
		b.log.Info("Session already authorized", "identity", me.String())
		return me, nil
	}

	b.log.Info("Session not authorized, signing in", "flow", string(b.flow))

	var me client.Identity
	switch b.flow {
	case FlowPhone:
		me, err = b.phoneSignIn(ctx, conn)
	case FlowBot:
		me, err = b.botSignIn(ctx, conn)
	default:
		err = fail(StepCheck, fmt.Errorf("unknown auth flow %q", b.flow))
	}
	if err != nil {
		return client.Identity{}, err
	}

	blob, err := conn.ExportSession()
	if err != nil {
		return client.Identity{}, fail(StepExportSession, err)
	}
	if err := b.store.Save(ctx, blob); err != nil {
		return client.Identity{}, fail(StepSaveSession, err)
	}

	b.log.Info("Signed in", "identity", me.String(), "bot", me.IsBot)
	return me, nil
}

func (b *Bootstrapper) phoneSignIn(ctx context.Context, conn client.Authenticator) (client.Identity, error) {
	phone, err := b.creds.Phone(ctx)
	if err != nil {
		return client.Identity{}, fail(StepPhone, err)
	}

	token, err := conn.RequestLoginCode(ctx, phone)
	if err != nil {
		return client.Identity{}, fail(StepRequestCode, err)
	}

	code, err := b.creds.Code(ctx, phone)
	if err != nil {
		return client.Identity{}, fail(StepCode, err)
	}

	me, err := conn.SignIn(ctx, token, code)
	if err == nil {
		return me, nil
	}
	if !errors.Is(err, client.ErrPasswordRequired) {
		return client.Identity{}, fail(StepSignIn, err)
	}

	b.log.Info("Second factor required")
	password, err := b.creds.Password(ctx)
	if err != nil {
		return client.Identity{}, fail(StepPassword, err)
	}

	me, err = conn.CheckPassword(ctx, password)
	if err != nil {
		return client.Identity{}, fail(StepCheckPassword, err)
	}

	return me, nil
}

func (b *Bootstrapper) botSignIn(ctx context.Context, conn client.Authenticator) (client.Identity, error) {
	token, err := b.creds.BotToken(ctx)
	if err != nil {
		return client.Identity{}, fail(StepBotToken, err)
	}

	me, err := conn.BotSignIn(ctx, token)
	if err != nil {
		return client.Identity{}, fail(StepBotSignIn, err)
	}

	return me, nil
}

// EnsureAuthenticated is the one-shot form of Bootstrapper.EnsureAuthenticated.
func EnsureAuthenticated(ctx context.Context, conn client.Authenticator, flow Flow, creds credentials.Provider, store session.Store) (client.Identity, error) {
	return New(flow, creds, store, nil).EnsureAuthenticated(ctx, conn)
}
