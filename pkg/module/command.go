package module

import "strings"

// ParseCommand splits a "/name@bot args" message into its lowercased name and
// trimmed arguments. ok is false when text is not a command.
func ParseCommand(text string) (name string, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) == 1 {
		return "", "", false
	}

	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}

	return strings.ToLower(head), strings.TrimSpace(rest), true
}
