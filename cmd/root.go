// Package cmd defines the pagewatch command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/pagewatch/internal/config"
	"github.com/JakeFAU/pagewatch/internal/monitor"
	"github.com/JakeFAU/pagewatch/internal/server"
)

// skipAppAnnotation marks commands that run without building the application.
const skipAppAnnotation = "pagewatch/skip-app"

type appKeyType struct{}

// App is what the commands need from the application container.
type App interface {
	Run(ctx context.Context) error
	RunPass(ctx context.Context, mode monitor.PassMode) (monitor.PassSummary, error)
	Close(ctx context.Context) error
}

// newApp is a variable so tests can swap in a fake.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	app, err := server.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return app, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "pagewatch",
		Short:         "Watch web pages and get notified when their text changes.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipAppAnnotation] == "true" {
				return nil
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			app, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKeyType{}, app))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json, or toml)")
	cmd.AddCommand(newServeCmd(), newCheckCmd(), newDiffCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	app, ok := ctx.Value(appKeyType{}).(App)
	if !ok || app == nil {
		return nil, errors.New("application services not initialized")
	}
	return app, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "pagewatch:", err)
		os.Exit(1)
	}
}
