package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/polisai/polis-authz/pkg/attributes"
	"github.com/polisai/polis-authz/pkg/extauthz"
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate one synthetic request offline and print the check response",
		Long: `Evaluate builds a CheckRequest from the flags, runs it through the configured
policy pipeline and prints the resulting CheckResponse as JSON.

Example:
  polis-authz eval --path /api/data --ext environment=production --at 2024-06-03T20:00:00Z`,
		Args: cobra.NoArgs,
		RunE: runEval,
	}

	cmd.Flags().String("method", "GET", "HTTP method")
	cmd.Flags().String("path", "/", "Request path including query")
	cmd.Flags().String("host", "", "Host header / authority")
	cmd.Flags().String("scheme", "http", "Request scheme")
	cmd.Flags().String("sni", "", "TLS server name indication")
	cmd.Flags().StringArray("header", nil, "Request header as name=value (repeatable)")
	cmd.Flags().StringArray("ext", nil, "Context extension as key=value (repeatable)")
	cmd.Flags().String("at", "", "Evaluation instant (RFC3339); defaults to now")
	return cmd
}

func runEval(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging)

	flags := cmd.Flags()
	method, _ := flags.GetString("method")
	path, _ := flags.GetString("path")
	host, _ := flags.GetString("host")
	scheme, _ := flags.GetString("scheme")
	sni, _ := flags.GetString("sni")
	headerArgs, _ := flags.GetStringArray("header")
	extArgs, _ := flags.GetStringArray("ext")
	atArg, _ := flags.GetString("at")

	headers, err := parseKeyValues(headerArgs)
	if err != nil {
		return fmt.Errorf("--header: %w", err)
	}
	extensions, err := parseKeyValues(extArgs)
	if err != nil {
		return fmt.Errorf("--ext: %w", err)
	}

	now := time.Now()
	if atArg != "" {
		now, err = time.Parse(time.RFC3339, atArg)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
	}

	req := attributes.Synthetic{
		Method:     strings.ToUpper(method),
		Path:       path,
		Host:       host,
		Scheme:     scheme,
		Headers:    headers,
		Extensions: extensions,
		SNI:        sni,
		Time:       now,
	}.CheckRequest()

	ac, err := attributes.FromCheckRequest(req)
	if err != nil {
		return err
	}

	pipeline, err := buildPipeline(cmd.Context(), cfg.Policy, logger)
	if err != nil {
		return err
	}
	decision, err := pipeline.EvaluateAt(cmd.Context(), ac, now)
	if err != nil {
		return err
	}
	logger.Debug("Evaluated synthetic request", "allowed", decision.Allowed, "rule", decision.Rule, "request", ac)

	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(extauthz.Translate(decision))
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

// parseKeyValues splits name=value pairs. Values may contain '='.
func parseKeyValues(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		out[key] = value
	}
	return out, nil
}
