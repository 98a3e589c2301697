package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gqlclient/internal/batch"
	"gqlclient/internal/client"
	"gqlclient/internal/httpexec"
	"gqlclient/internal/protocol"
)

const shutdownTimeout = 30 * time.Second

func queryCmd(flags *rootFlags) *cobra.Command {
	var (
		one  bool
		raw  bool
		vars string
	)

	cmd := &cobra.Command{
		Use:   "query <document|@file>",
		Short: "Run a query and print its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			if err := batch.ValidateQuery(doc); err != nil {
				return err
			}
			variables, err := parseVariables(vars)
			if err != nil {
				return err
			}

			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.shutdown(context.Background())

			var opts []httpexec.Option
			if raw {
				opts = append(opts, httpexec.WithoutFlatten())
			}
			if one {
				opts = append(opts, httpexec.WithSingleChild())
			}
			data, errs := a.client.Query(cmd.Context(), doc, variables, opts...)
			return a.printResult(cmd.OutOrStdout(), data, errs)
		},
	}

	cmd.Flags().BoolVar(&one, "one", false, "collapse a single-element result list")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the whole response instead of the flattened data")
	cmd.Flags().StringVar(&vars, "vars", "", "variables as a JSON object")

	return cmd
}

func mutateCmd(flags *rootFlags) *cobra.Command {
	var (
		raw  bool
		vars string
	)

	cmd := &cobra.Command{
		Use:   "mutate <document|@file>",
		Short: "Run a mutation and print its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			if err := batch.ValidateMutation(doc); err != nil {
				return err
			}
			variables, err := parseVariables(vars)
			if err != nil {
				return err
			}

			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.shutdown(context.Background())

			var opts []httpexec.Option
			if raw {
				opts = append(opts, httpexec.WithoutFlatten())
			}
			data, errs := a.client.Mutate(cmd.Context(), doc, variables, opts...)
			return a.printResult(cmd.OutOrStdout(), data, errs)
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "do not flatten the result")
	cmd.Flags().StringVar(&vars, "vars", "", "variables as a JSON object")

	return cmd
}

func subscribeCmd(flags *rootFlags) *cobra.Command {
	var (
		raw  bool
		vars string
	)

	cmd := &cobra.Command{
		Use:   "subscribe <document|@file>",
		Short: "Print subscription messages until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			if err := batch.ValidateSubscription(doc); err != nil {
				return err
			}
			variables, err := parseVariables(vars)
			if err != nil {
				return err
			}

			a, err := newApp(flags)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			handler := func(message json.RawMessage) {
				fmt.Fprintln(out, string(message))
			}
			onError := func(f *protocol.Frame) {
				a.logger.Error().Str("id", f.ID).Str("payload", string(f.Payload)).Msg("subscription error")
			}

			_, err = a.client.Subscribe(cmd.Context(), doc, variables, handler,
				client.WithErrorHandler(onError),
				client.WithFlatten(!raw),
			)
			if err != nil {
				_ = a.shutdown(context.Background())
				return err
			}

			// Wait for shutdown signal
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			sig := <-quit

			a.logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")

			// Graceful shutdown with timeout
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			return a.shutdown(ctx)
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "do not flatten messages")
	cmd.Flags().StringVar(&vars, "vars", "", "variables as a JSON object")

	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <document|@file>",
		Short: "Check that a document parses and print its operation type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			op, err := batch.Validate(doc)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), op)
			return nil
		},
	}
}
