package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hewlab/hew/internal/provider"
)

// ModelsCmd creates the models command
func ModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models available across configured providers",
		Run: func(cmd *cobra.Command, args []string) {
			listModels()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the models.yaml location",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(provider.GetModelsFilePath())
		},
	})

	return cmd
}

func listModels() {
	rt, err := initRuntime(loadHostConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer rt.close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	models, err := rt.router.ListModels(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(models) == 0 {
		fmt.Println("No models available. Check provider credentials in", provider.GetModelsFilePath())
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tMODEL\tNAME\tCONTEXT")
	for _, m := range models {
		ctxWindow := ""
		if m.ContextWindow > 0 {
			ctxWindow = fmt.Sprintf("%d", m.ContextWindow)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Provider, m.ID, m.DisplayName, ctxWindow)
	}
	w.Flush()
}
