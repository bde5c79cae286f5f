package cli

import (
	"github.com/spf13/cobra"

	"github.com/hewlab/hew/internal/config"
)

// Shared CLI flags (used across multiple command files)
var (
	cfgFile     string
	sessionKey  string
	providerArg string
	modelArg    string
	verbose     bool
)

// SetupRootCmd configures the root command with all subcommands and flags
func SetupRootCmd(c *config.Config) *cobra.Command {
	hostConfig = c

	rootCmd := &cobra.Command{
		Use:   "hew",
		Short: "Hew - local coding assistant",
		Long: `Hew is a local coding assistant host. It routes chat requests across
AI providers, runs an agentic tool loop against your project, and keeps
conversation history in a local SQLite database.

Just type 'hew serve' to start the host, or 'hew run "task"' for a
one-shot agentic run in the current directory.`,
		Run: func(cmd *cobra.Command, args []string) {
			RunServe()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.hew/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&sessionKey, "session", "s", "default", "session key for conversation history")
	rootCmd.PersistentFlags().StringVarP(&providerArg, "provider", "p", "", "provider to use (default: first available)")
	rootCmd.PersistentFlags().StringVarP(&modelArg, "model", "m", "", "model override within the provider")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(RunCmd())
	rootCmd.AddCommand(ChatCmd())
	rootCmd.AddCommand(ModelsCmd())
	rootCmd.AddCommand(SessionCmd())

	return rootCmd
}

// hostConfig holds the loaded configuration (set by main)
var hostConfig *config.Config
