package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	env        string
	logLevel   string
}

func main() {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "gqlclient",
		Short: "GraphQL client for queries, mutations and subscriptions",
		Long: `gqlclient talks to a GraphQL server over HTTP for queries and mutations
and over a single graphql-transport-ws connection for subscriptions.

Documents can be given inline or read from a file with @path.

Examples:
  gqlclient query '{ authors { id name } }'
  gqlclient query --one @queries/author.graphql --vars '{"id": 1}'
  gqlclient mutate @mutations/create_author.graphql --vars '{"name": "a"}'
  gqlclient subscribe 'subscription { authorUpdated { id name } }'`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to config file (.json, .yaml)")
	rootCmd.PersistentFlags().StringVarP(&flags.env, "env", "e", "", "environment to use instead of the configured default")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		queryCmd(flags),
		mutateCmd(flags),
		subscribeCmd(flags),
		validateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// readDocument returns arg, or the contents of the file it names when it starts with @
func readDocument(arg string) (string, error) {
	if !strings.HasPrefix(arg, "@") {
		return arg, nil
	}
	data, err := os.ReadFile(strings.TrimPrefix(arg, "@"))
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	return string(data), nil
}

// setupLogger configures the zerolog logger
func setupLogger(level string) zerolog.Logger {
	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	// Logs go to stderr so results on stdout stay machine readable
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(output).With().Timestamp().Logger()
}
