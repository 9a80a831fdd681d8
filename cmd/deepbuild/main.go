package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"deepbuild/internal/gateway/app"
	"deepbuild/internal/gateway/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "deepbuild",
		Short: "Turn an app description into a generated multi-file project",
		Long: `deepbuild asks a language model for a project brief, walks through its
clarifying questions, then generates every declared file one at a time.
Run "deepbuild serve" for the HTTP API or use the project commands directly.`,
		SilenceUsage: true,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newServeCmd(),
		newNewCmd(),
		newAnswerCmd(),
		newGenerateCmd(),
		newRegenerateCmd(),
		newListCmd(),
		newShowCmd(),
		newDeleteCmd(),
		newExportCmd(),
	)
	return root
}

// appOptions is swapped in tests to script the model.
var appOptions app.Options

// openApp loads configuration from the command's flags and wires the app.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return app.New(cmd.Context(), cfg, appOptions)
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
