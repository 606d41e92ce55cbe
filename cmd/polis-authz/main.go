// Package main is the entry point for the polis-authz binary, an envoy ext_authz
// decision service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/polisai/polis-authz/pkg/config"
	"github.com/polisai/polis-authz/pkg/logging"
	"github.com/polisai/polis-authz/pkg/policy"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for polis-authz
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "polis-authz",
		Short: "External authorization service for envoy",
		Long: `polis-authz answers envoy ext_authz v3 Check calls with allow or deny
decisions from an ordered chain of request policies.

Example:
  polis-authz serve --config /etc/polis-authz/config.yaml
  polis-authz eval --method POST --path /api/orders --header authorization=Bearer\ t`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "Log level (debug, info, warn, error); overrides the config file")
	rootCmd.PersistentFlags().Bool("pretty", false, "Enable human readable log output")

	rootCmd.AddCommand(newServeCmd(), newEvalCmd(), newCertCmd())
	return rootCmd
}

// loadConfig reads the configuration named by --config and applies the logging flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
		if err := cfg.Logging.Validate(); err != nil {
			return nil, err
		}
	}
	if pretty, _ := cmd.Flags().GetBool("pretty"); pretty {
		cfg.Logging.Pretty = true
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	return logging.NewLogger(logging.Config{
		Level:  cfg.Level,
		Pretty: cfg.Pretty,
		Output: os.Stderr,
	})
}

// buildPipeline selects the decision engine named in the policy section.
func buildPipeline(ctx context.Context, cfg config.PolicyConfig, logger *slog.Logger) (*policy.Pipeline, error) {
	rules := cfg.ToPolicy()

	switch cfg.Engine {
	case config.EngineRego:
		src, name, err := cfg.RegoModule()
		if err != nil {
			return nil, err
		}
		evaluator, err := policy.NewRegoEvaluator(ctx, policy.RegoOptions{
			Module:     src,
			ModuleName: name,
			Config:     rules,
		})
		if err != nil {
			return nil, err
		}
		module := name
		if module == "" {
			module = "embedded"
		}
		logger.Info("Policy engine ready", "engine", config.EngineRego, "module", module)
		return policy.NewPipeline(evaluator), nil

	default:
		chain := policy.NewBaselineChain(rules)
		logger.Info("Policy engine ready", "engine", config.EngineBuiltin, "rules", chain.Names())
		return policy.NewPipeline(chain), nil
	}
}
