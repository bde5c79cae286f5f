package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hewlab/hew/internal/agent/ai"
	"github.com/hewlab/hew/internal/agent/session"
)

// ChatCmd creates the chat command
func ChatCmd() *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Chat with the assistant without the tool loop",
		Long: `Send a message and stream the response. Unlike 'hew run', chat
never touches your files; it is plain conversation with history.

Examples:
  hew chat "explain this stack trace"
  hew chat --interactive`,
		Run: func(cmd *cobra.Command, args []string) {
			runChat(args, interactive)
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "start interactive chat session")
	return cmd
}

func runChat(args []string, interactive bool) {
	rt, err := initRuntime(loadHostConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer rt.close()

	if interactive {
		runInteractiveChat(rt)
		return
	}

	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: hew chat \"prompt\" (or --interactive)")
		os.Exit(1)
	}

	if err := streamChat(rt, strings.Join(args, " ")); err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		os.Exit(1)
	}
}

func runInteractiveChat(rt *runtime) {
	fmt.Println("Interactive chat. Type 'exit' or Ctrl+D to quit.")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}
		if err := streamChat(rt, line); err != nil {
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		}
	}
}

// streamChat sends one prompt through the router with session history
// and prints the streamed reply.
func streamChat(rt *runtime, prompt string) error {
	sess, err := rt.sessions.GetOrCreate(sessionKey)
	if err != nil {
		return err
	}
	err = rt.sessions.AppendMessage(sess.ID, session.Message{
		SessionID: sess.ID,
		Role:      "user",
		Content:   prompt,
	})
	if err != nil {
		return err
	}

	messages, err := rt.sessions.GetMessages(sess.ID, rt.cfg.MaxContext)
	if err != nil {
		return err
	}

	events, err := rt.router.ChatStream(context.Background(), providerArg, &ai.ChatRequest{
		Messages: messages,
		Model:    modelArg,
	})
	if err != nil {
		return err
	}

	var reply strings.Builder
	for event := range events {
		switch event.Type {
		case ai.EventTypeText:
			fmt.Print(event.Text)
			reply.WriteString(event.Text)
		case ai.EventTypeError:
			return event.Error
		}
	}
	fmt.Println()

	if reply.Len() > 0 {
		return rt.sessions.AppendMessage(sess.ID, session.Message{
			SessionID: sess.ID,
			Role:      "assistant",
			Content:   reply.String(),
		})
	}
	return nil
}
