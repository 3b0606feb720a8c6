package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/aunum/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	for _, envFile := range []string{
		".env",
		"../../.env",
		"../../../.env",
	} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		log.Warningf("interrupted, finishing current step")
		cancel()
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "armtrain",
		Short:        "armtrain runs reach experiments and records per-episode success.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to a YAML experiment config")

	rootCmd.AddCommand(
		newRunCmd(),
		newEvalCmd(),
		newPlotCmd(),
		newRunsCmd(),
	)
	return rootCmd
}
