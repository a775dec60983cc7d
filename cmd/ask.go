/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"tgvisor/pkg/assistant"

	"github.com/spf13/cobra"
)

// cliConversation is the conversation key used for terminal sessions.
const cliConversation = "cli"

var promptText string

// askCmd talks to the assistant backend directly, without Telegram.
var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Check the assistant backend with one prompt or an interactive chat",
	Long:  "Loads the assistant module configuration, checks the backend health, and sends one prompt or starts an interactive chat in the terminal.",
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := resolvePrompt(args)

		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		closer, err := setupLogger(cfg)
		if err != nil {
			return err
		}
		defer closer.Close()

		client, err := assistant.New(cfg, slog.Default())
		if err != nil {
			return fmt.Errorf("initialize assistant: %w", err)
		}

		ctx := cmd.Context()
		if err := client.Health(ctx); err != nil {
			return fmt.Errorf("assistant health check failed: %w", err)
		}

		if prompt != "" {
			return runSinglePrompt(ctx, client, prompt, cmd.OutOrStdout())
		}

		return runInteractive(ctx, client, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&promptText, "prompt", "p", "", "prompt text to send")
}

func resolvePrompt(args []string) string {
	if value := strings.TrimSpace(promptText); value != "" {
		return value
	}

	return strings.TrimSpace(strings.Join(args, " "))
}

func runSinglePrompt(ctx context.Context, client assistant.Client, prompt string, out io.Writer) error {
	reply, err := client.Ask(ctx, cliConversation, prompt)
	if err != nil {
		return fmt.Errorf("prompt failed: %w", err)
	}

	fmt.Fprintln(out, reply.Text)
	return nil
}

func runInteractive(ctx context.Context, client assistant.Client, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			continue
		}
		if isExitCommand(prompt) {
			return nil
		}
		if strings.EqualFold(prompt, "/reset") {
			client.Reset(cliConversation)
			fmt.Fprintln(out, "conversation reset")
			continue
		}

		reply, err := client.Ask(ctx, cliConversation, prompt)
		if err != nil {
			fmt.Fprintf(out, "prompt failed: %v\n", err)
			continue
		}

		printAssistantMessage(out, reply.Text)
	}
}

func printAssistantMessage(out io.Writer, message string) {
	lines := assistantLines(message)
	for _, line := range lines {
		fmt.Fprintf(out, "🤖 %s\n", line)
	}
	if len(lines) > 0 {
		fmt.Fprintln(out)
	}
}

func assistantLines(message string) []string {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil
	}

	return strings.Split(trimmed, "\n")
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit", ":q":
		return true
	default:
		return false
	}
}
