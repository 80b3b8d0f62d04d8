// Package main implements urql, a command line GraphQL client. It
// executes a query, mutation or subscription against an endpoint
// described by flags or a YAML configuration file and prints results
// as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/Bipboy/urql/client"
	"github.com/Bipboy/urql/config"
	"github.com/Bipboy/urql/debug"
	"github.com/Bipboy/urql/gql"
	"github.com/Bipboy/urql/stream"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "urql"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, shouldExit := parseFlags()
	if shouldExit {
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	c, err := buildClient(cliCfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if cliCfg.Debug {
		debugSub := c.OnDebugEvent(func(e debug.Event) {
			logger.Debug("pipeline event",
				"type", e.Type, "source", e.Source, "message", e.Message)
		})
		defer debugSub.Unsubscribe()
	}

	query, err := readQuery(cliCfg)
	if err != nil {
		return err
	}

	variables, err := parseVariables(cliCfg.Variables)
	if err != nil {
		return err
	}

	var opts []gql.ContextOption
	if cliCfg.Policy != "" {
		opts = append(opts, gql.WithPolicy(gql.RequestPolicy(cliCfg.Policy)))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch operationKind(query) {
	case gql.OperationSubscription:
		return streamSubscription(ctx, c, query, variables, opts)
	case gql.OperationMutation:
		ctx, cancel := context.WithTimeout(ctx, cliCfg.Timeout)
		defer cancel()
		result, err := c.Mutation(ctx, query, variables, opts...)
		if err != nil {
			return err
		}
		return printResult(result)
	default:
		ctx, cancel := context.WithTimeout(ctx, cliCfg.Timeout)
		defer cancel()
		result, err := c.Query(ctx, query, variables, opts...)
		if err != nil {
			return err
		}
		return printResult(result)
	}
}

func buildClient(cliCfg *CLIConfig, logger *slog.Logger) (*client.Client, error) {
	opts := []client.Option{client.WithLogger(logger)}

	if cliCfg.ConfigPath != "" {
		cfg, err := config.Load(cliCfg.ConfigPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, cfg.ClientOptions()...)
	}
	if cliCfg.URL != "" {
		opts = append(opts, client.WithURL(cliCfg.URL))
	}

	return client.New(opts...)
}

func readQuery(cliCfg *CLIConfig) (string, error) {
	if cliCfg.Query != "" {
		return cliCfg.Query, nil
	}
	if cliCfg.QueryFile != "" {
		data, err := os.ReadFile(cliCfg.QueryFile)
		if err != nil {
			return "", fmt.Errorf("reading query file: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading query from stdin: %w", err)
	}
	return string(data), nil
}

func parseVariables(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var variables map[string]any
	if err := json.Unmarshal([]byte(raw), &variables); err != nil {
		return nil, fmt.Errorf("parsing -variables: %w", err)
	}
	return variables, nil
}

// operationKind infers the kind from the document's leading keyword;
// the client parses and validates the document properly afterwards.
func operationKind(query string) gql.OperationType {
	trimmed := strings.TrimSpace(query)
	switch {
	case strings.HasPrefix(trimmed, "mutation"):
		return gql.OperationMutation
	case strings.HasPrefix(trimmed, "subscription"):
		return gql.OperationSubscription
	default:
		return gql.OperationQuery
	}
}

// streamSubscription prints results as JSON lines until the stream
// completes or the process is signalled.
func streamSubscription(
	ctx context.Context, c *client.Client, query string,
	variables map[string]any, opts []gql.ContextOption,
) error {
	req, err := c.CreateRequest(query, variables)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	encoder := json.NewEncoder(os.Stdout)
	sub := c.ExecuteSubscription(req, opts...)(stream.Observer[gql.OperationResult]{
		Next: func(r gql.OperationResult) {
			if r.Error != nil {
				slog.Error("subscription error", "error", r.Error)
				return
			}
			_ = encoder.Encode(json.RawMessage(r.Data))
		},
		Complete: func() { close(done) },
	})
	defer sub.Unsubscribe()

	select {
	case <-ctx.Done():
		return nil
	case <-done:
		return nil
	}
}

func printResult(result gql.OperationResult) error {
	if result.Error != nil {
		return result.Error
	}
	out, err := json.MarshalIndent(json.RawMessage(result.Data), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
