// Package credentials supplies the phone number, login code, password and bot
// token requested during session bootstrap.
package credentials

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotProvided means the provider has no value for the requested field.
	ErrNotProvided = errors.New("credential not provided")
	// ErrPromptCanceled is returned when the operator aborts an interactive prompt.
	ErrPromptCanceled = errors.New("credential prompt canceled")
)

// Provider is asked for each credential on demand. Implementations may block.
type Provider interface {
	Phone(ctx context.Context) (string, error)
	Code(ctx context.Context, phone string) (string, error)
	Password(ctx context.Context) (string, error)
	BotToken(ctx context.Context) (string, error)
}

// Static serves values known up front, typically from config or environment.
type Static struct {
	PhoneNumber string
	LoginCode   string
	TwoFactor   string
	Token       string
}

func (s Static) Phone(ctx context.Context) (string, error) { return value(ctx, s.PhoneNumber) }

func (s Static) Code(ctx context.Context, _ string) (string, error) {
	return value(ctx, s.LoginCode)
}

func (s Static) Password(ctx context.Context) (string, error) { return value(ctx, s.TwoFactor) }
func (s Static) BotToken(ctx context.Context) (string, error) { return value(ctx, s.Token) }

func value(ctx context.Context, v string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", ErrNotProvided
	}

	return v, nil
}

type fallback struct {
	providers []Provider
}

// Fallback asks each provider in order and moves on only when one reports
// ErrNotProvided. Any other error stops the chain.
func Fallback(providers ...Provider) Provider {
	kept := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			kept = append(kept, p)
		}
	}

	return &fallback{providers: kept}
}

func (f *fallback) Phone(ctx context.Context) (string, error) {
	return f.first(func(p Provider) (string, error) { return p.Phone(ctx) })
}

func (f *fallback) Code(ctx context.Context, phone string) (string, error) {
	return f.first(func(p Provider) (string, error) { return p.Code(ctx, phone) })
}

func (f *fallback) Password(ctx context.Context) (string, error) {
	return f.first(func(p Provider) (string, error) { return p.Password(ctx) })
}

func (f *fallback) BotToken(ctx context.Context) (string, error) {
	return f.first(func(p Provider) (string, error) { return p.BotToken(ctx) })
}

func (f *fallback) first(ask func(Provider) (string, error)) (string, error) {
	for _, p := range f.providers {
		v, err := ask(p)
		if errors.Is(err, ErrNotProvided) {
			continue
		}
		return v, err
	}

	return "", ErrNotProvided
}
