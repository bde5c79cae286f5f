package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hewlab/hew/internal/agent/ai"
	"github.com/hewlab/hew/internal/agent/runner"
)

// RunCmd creates the run command
func RunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run an agentic task in the current directory",
		Long: `Run the full agentic loop against the current project: the model
plans, reads and edits files, executes commands, and keeps iterating
until it calls task_complete or hits the iteration limit.

Examples:
  hew run "add a --version flag to the CLI"
  hew run -p ollama "write unit tests for the parser"`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runTask(strings.Join(args, " "))
		},
	}
	return cmd
}

func runTask(prompt string) {
	cfg := loadHostConfig()
	if cfg.WorkspaceDir == "" {
		cfg.WorkspaceDir, _ = os.Getwd()
	}

	rt, err := initRuntime(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer rt.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nCancelling...")
		rt.runner.Cancel()
		cancel()
	}()

	events, err := rt.runner.Run(ctx, &runner.RunRequest{
		SessionKey: sessionKey,
		Prompt:     prompt,
		Provider:   providerArg,
		Model:      modelArg,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	exitCode := 0
	for event := range events {
		switch event.Type {
		case ai.EventTypeText:
			fmt.Print(event.Text)
		case ai.EventTypeThinking:
			if verbose {
				fmt.Printf("\033[90m%s\033[0m", event.Text)
			}
		case ai.EventTypeToolCall:
			fmt.Printf("\n\033[36m[tool] %s\033[0m\n", event.ToolCall.Name)
		case ai.EventTypeToolResult:
			if verbose {
				fmt.Printf("\033[90m%s\033[0m\n", truncateForTerminal(event.Text))
			}
		case ai.EventTypeProgress:
			fmt.Printf("\r\033[90m%s\033[0m\033[K", event.Text)
		case ai.EventTypeError:
			fmt.Fprintf(os.Stderr, "\nError: %v\n", event.Error)
			exitCode = 1
		}
	}
	fmt.Println()
	os.Exit(exitCode)
}

func truncateForTerminal(s string) string {
	const limit = 500
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "... (truncated)"
}
