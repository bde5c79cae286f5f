package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// SessionCmd creates the session command with its subcommands
func SessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage conversation sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sessions",
		Run: func(cmd *cobra.Command, args []string) {
			listSessions()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear [key]",
		Short: "Clear a session's history (default: current session)",
		Run: func(cmd *cobra.Command, args []string) {
			key := sessionKey
			if len(args) > 0 {
				key = args[0]
			}
			clearSession(key)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a session and its history",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			deleteSession(args[0])
		},
	})

	return cmd
}

func listSessions() {
	rt, err := initRuntime(loadHostConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer rt.close()

	sessions, err := rt.sessions.ListSessions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tID\tUPDATED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.SessionKey, s.ID, s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
}

func clearSession(key string) {
	rt, err := initRuntime(loadHostConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer rt.close()

	sess, err := rt.sessions.GetOrCreate(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := rt.sessions.Reset(sess.ID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Cleared session %q\n", key)
}

func deleteSession(key string) {
	rt, err := initRuntime(loadHostConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer rt.close()

	sess, err := rt.sessions.GetOrCreate(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := rt.sessions.DeleteSession(sess.ID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted session %q\n", key)
}
