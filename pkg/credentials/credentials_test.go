package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

func TestStaticReportsMissingValues(t *testing.T) {
	s := Static{PhoneNumber: " +100 ", Token: ""}

	phone, err := s.Phone(context.Background())
	if err != nil || phone != "+100" {
		t.Fatalf("Phone = %q, %v; want +100, nil", phone, err)
	}
	if _, err := s.BotToken(context.Background()); !errors.Is(err, ErrNotProvided) {
		t.Fatalf("BotToken error = %v, want ErrNotProvided", err)
	}
}

func TestStaticHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := (Static{Token: "t"}).BotToken(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

type failingProvider struct {
	Static
	err error
}

func (f failingProvider) Password(context.Context) (string, error) { return "", f.err }

func TestFallbackSkipsOnlyNotProvided(t *testing.T) {
	p := Fallback(Static{PhoneNumber: "+1"}, nil, Static{PhoneNumber: "+2", LoginCode: "777"})

	phone, err := p.Phone(context.Background())
	if err != nil || phone != "+1" {
		t.Fatalf("Phone = %q, %v; want +1", phone, err)
	}
	code, err := p.Code(context.Background(), phone)
	if err != nil || code != "777" {
		t.Fatalf("Code = %q, %v; want 777", code, err)
	}
	if _, err := p.BotToken(context.Background()); !errors.Is(err, ErrNotProvided) {
		t.Fatalf("BotToken error = %v, want ErrNotProvided", err)
	}

	boom := errors.New("boom")
	p = Fallback(failingProvider{err: boom}, Static{TwoFactor: "secret"})
	if _, err := p.Password(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Password error = %v, want boom", err)
	}
}

func TestPromptModelSubmitsTrimmedValue(t *testing.T) {
	m := newPromptModel(field{title: "Phone number"})
	m.input.SetValue("  +15550000 ")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected quit command on submit")
	}
	if m.value != "+15550000" {
		t.Fatalf("value = %q, want %q", m.value, "+15550000")
	}
	if m.View() != "" {
		t.Fatal("expected empty view after submit")
	}
}

func TestPromptModelRejectsEmptyValue(t *testing.T) {
	m := newPromptModel(field{title: "Login code"})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Fatal("empty submit must not quit")
	}
	if m.lastErr == "" {
		t.Fatal("expected validation message")
	}
}

func TestPromptModelCancel(t *testing.T) {
	m := newPromptModel(field{title: "Bot token", secret: true})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil || !m.canceled {
		t.Fatal("expected esc to cancel the prompt")
	}
}

func TestPromptModelMasksSecrets(t *testing.T) {
	if m := newPromptModel(field{secret: true}); m.input.EchoMode != textinput.EchoPassword {
		t.Fatalf("EchoMode = %v, want EchoPassword", m.input.EchoMode)
	}
	if m := newPromptModel(field{}); m.input.EchoMode != textinput.EchoNormal {
		t.Fatalf("EchoMode = %v, want EchoNormal", m.input.EchoMode)
	}
}
