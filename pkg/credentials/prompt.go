package credentials

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type field struct {
	title       string
	hint        string
	placeholder string
	secret      bool
}

type promptModel struct {
	theme    theme
	field    field
	input    textinput.Model
	value    string
	lastErr  string
	canceled bool
}

func newPromptModel(f field) *promptModel {
	in := textinput.New()
	in.Prompt = "> "
	in.Placeholder = f.placeholder
	in.CharLimit = 256
	in.Focus()
	if f.secret {
		in.EchoMode = textinput.EchoPassword
		in.EchoCharacter = '•'
	}

	return &promptModel{theme: defaultTheme(), field: f, input: in}
}

func (m *promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			m.canceled = true
			return m, tea.Quit
		case "enter":
			v := strings.TrimSpace(m.input.Value())
			if v == "" {
				m.lastErr = "a value is required"
				return m, nil
			}
			m.value = v
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.lastErr = ""
	return m, cmd
}

func (m *promptModel) View() string {
	if m.value != "" || m.canceled {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.theme.title.Render(m.field.title))
	b.WriteString("\n")
	if m.field.hint != "" {
		b.WriteString(m.theme.hint.Render(m.field.hint))
		b.WriteString("\n")
	}
	b.WriteString(m.theme.input.Render(m.input.View()))
	b.WriteString("\n")
	if m.lastErr != "" {
		b.WriteString(m.theme.err.Render(m.lastErr))
		b.WriteString("\n")
	}
	b.WriteString(m.theme.hint.Render("enter to submit, esc to cancel"))
	b.WriteString("\n")

	return b.String()
}

// Prompt asks the operator in the terminal, one bubbletea program per credential.
type Prompt struct {
	in  io.Reader
	out io.Writer
}

// NewPrompt builds a terminal prompt. Nil reader or writer falls back to the
// process terminal.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: in, out: out}
}

func (p *Prompt) Phone(ctx context.Context) (string, error) {
	return p.ask(ctx, field{
		title:       "Phone number",
		hint:        "International format, including the country code.",
		placeholder: "+15551234567",
	})
}

func (p *Prompt) Code(ctx context.Context, phone string) (string, error) {
	return p.ask(ctx, field{
		title:       "Login code",
		hint:        fmt.Sprintf("Enter the code sent to %s.", phone),
		placeholder: "12345",
	})
}

func (p *Prompt) Password(ctx context.Context) (string, error) {
	return p.ask(ctx, field{
		title:  "Two-factor password",
		hint:   "This account is protected by a cloud password.",
		secret: true,
	})
}

func (p *Prompt) BotToken(ctx context.Context) (string, error) {
	return p.ask(ctx, field{
		title:       "Bot token",
		hint:        "Token issued by @BotFather.",
		placeholder: "123456:ABC-DEF",
		secret:      true,
	})
}

func (p *Prompt) ask(ctx context.Context, f field) (string, error) {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if p.in != nil {
		opts = append(opts, tea.WithInput(p.in))
	}
	if p.out != nil {
		opts = append(opts, tea.WithOutput(p.out))
	}

	final, err := tea.NewProgram(newPromptModel(f), opts...).Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, tea.ErrProgramKilled) {
			return "", ctxErr
		}
		return "", fmt.Errorf("run %s prompt: %w", strings.ToLower(f.title), err)
	}

	result, ok := final.(*promptModel)
	if !ok || result.canceled {
		return "", ErrPromptCanceled
	}

	return result.value, nil
}
