// Package config provides configuration structures and loading logic for the
// authorization service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/polisai/polis-authz/pkg/domain"
	"github.com/polisai/polis-authz/pkg/policy"
	"github.com/polisai/polis-authz/pkg/telemetry"
)

// Policy engines.
const (
	EngineBuiltin = "builtin"
	EngineRego    = "rego"
)

// Default listener addresses.
const (
	DefaultGRPCAddress  = ":7070"
	DefaultAdminAddress = ":19090"
	DefaultServiceName  = "polis-authz"
)

// Config holds the global configuration for the authorization service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Policy    PolicyConfig    `yaml:"policy"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the listener configuration.
type ServerConfig struct {
	GRPCAddress  string     `yaml:"grpc_address"`
	AdminAddress string     `yaml:"admin_address"`
	TLS          *TLSConfig `yaml:"tls,omitempty"`
}

// PolicyConfig selects the decision engine and parameterizes the baseline rules.
type PolicyConfig struct {
	Engine               string                 `yaml:"engine"`
	RegoFile             string                 `yaml:"rego_file,omitempty"`
	RestrictedPathPrefix string                 `yaml:"restricted_path_prefix"`
	BusinessHours        BusinessHoursConfig    `yaml:"business_hours"`
	ProductionEnv        string                 `yaml:"production_environment"`
	ProductionAccess     ProductionAccessConfig `yaml:"production_access"`
	BotSubstrings        []string               `yaml:"bot_substrings"`
}

// BusinessHoursConfig is a half-open [Start, End) window of local hours.
type BusinessHoursConfig struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// ProductionAccessConfig names the header that unlocks the production environment.
type ProductionAccessConfig struct {
	Header string `yaml:"header"`
	Value  string `yaml:"value"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	Environment  string `yaml:"environment"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	base := policy.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			GRPCAddress:  DefaultGRPCAddress,
			AdminAddress: DefaultAdminAddress,
		},
		Policy: PolicyConfig{
			Engine:               EngineBuiltin,
			RestrictedPathPrefix: base.RestrictedPathPrefix,
			BusinessHours: BusinessHoursConfig{
				Start: base.BusinessHours.Start,
				End:   base.BusinessHours.End,
			},
			ProductionEnv: base.ProductionEnvironment,
			ProductionAccess: ProductionAccessConfig{
				Header: base.ProductionAccessHeader,
				Value:  base.ProductionAccessValue,
			},
			BotSubstrings: append([]string(nil), base.BotSubstrings...),
		},
		Telemetry: TelemetryConfig{
			ServiceName: DefaultServiceName,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a file and applies environment variable overrides.
// An empty path yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is controlled by admin/operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfigInvalid, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: configuration validation failed: %w", domain.ErrConfigInvalid, err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("AUTHZ_GRPC_ADDR"); val != "" {
		cfg.Server.GRPCAddress = val
	}
	if val := os.Getenv("AUTHZ_ADMIN_ADDR"); val != "" {
		cfg.Server.AdminAddress = val
	}

	if val := os.Getenv("AUTHZ_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("AUTHZ_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}

	if val := os.Getenv("AUTHZ_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}

	if val := os.Getenv("AUTHZ_POLICY_ENGINE"); val != "" {
		cfg.Policy.Engine = val
	}
	if val := os.Getenv("AUTHZ_RESTRICTED_PATH_PREFIX"); val != "" {
		cfg.Policy.RestrictedPathPrefix = val
	}
	if val := os.Getenv("AUTHZ_BUSINESS_HOURS"); val != "" {
		window, err := parseHourRange(val)
		if err != nil {
			return fmt.Errorf("AUTHZ_BUSINESS_HOURS: %w", err)
		}
		cfg.Policy.BusinessHours = window
	}

	if val := os.Getenv("AUTHZ_TLS_CERT_FILE"); val != "" {
		if cfg.Server.TLS == nil {
			cfg.Server.TLS = &TLSConfig{}
		}
		cfg.Server.TLS.Enabled = true
		cfg.Server.TLS.CertFile = val
	}
	if val := os.Getenv("AUTHZ_TLS_KEY_FILE"); val != "" {
		if cfg.Server.TLS == nil {
			cfg.Server.TLS = &TLSConfig{}
		}
		cfg.Server.TLS.KeyFile = val
	}
	return nil
}

// parseHourRange parses "start-end", for example "9-17".
func parseHourRange(val string) (BusinessHoursConfig, error) {
	startStr, endStr, ok := strings.Cut(strings.TrimSpace(val), "-")
	if !ok {
		return BusinessHoursConfig{}, fmt.Errorf("expected start-end, got %q", val)
	}
	start, err := strconv.Atoi(strings.TrimSpace(startStr))
	if err != nil {
		return BusinessHoursConfig{}, fmt.Errorf("invalid start hour %q", startStr)
	}
	end, err := strconv.Atoi(strings.TrimSpace(endStr))
	if err != nil {
		return BusinessHoursConfig{}, fmt.Errorf("invalid end hour %q", endStr)
	}
	return BusinessHoursConfig{Start: start, End: end}, nil
}

// Validate performs validation of the entire configuration.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration: %w", err)
	}

	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy configuration: %w", err)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry configuration: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}

	return nil
}

// Validate performs validation of server configuration.
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.GRPCAddress) == "" {
		c.GRPCAddress = DefaultGRPCAddress
	}
	if strings.TrimSpace(c.AdminAddress) == "" {
		c.AdminAddress = DefaultAdminAddress
	}
	if c.GRPCAddress == c.AdminAddress {
		return fmt.Errorf("grpc_address %q conflicts with admin_address", c.GRPCAddress)
	}

	if c.TLS != nil {
		if err := c.TLS.Validate(); err != nil {
			return fmt.Errorf("TLS configuration: %w", err)
		}
	}
	return nil
}

// Validate checks the engine selection and the rule parameters.
func (c *PolicyConfig) Validate() error {
	engine := strings.ToLower(strings.TrimSpace(c.Engine))
	if engine == "" {
		engine = EngineBuiltin
	}
	switch engine {
	case EngineBuiltin, EngineRego:
		c.Engine = engine
	default:
		return fmt.Errorf("invalid engine %q, supported engines: %s, %s", c.Engine, EngineBuiltin, EngineRego)
	}

	if engine == EngineRego && c.RegoFile != "" {
		if _, err := os.Stat(c.RegoFile); err != nil {
			return fmt.Errorf("rego_file: %w", err)
		}
	}

	return c.ToPolicy().Validate()
}

// ToPolicy converts the section into the rule chain parameters.
func (c PolicyConfig) ToPolicy() policy.Config {
	return policy.Config{
		RestrictedPathPrefix: c.RestrictedPathPrefix,
		BusinessHours: policy.HourWindow{
			Start: c.BusinessHours.Start,
			End:   c.BusinessHours.End,
		},
		ProductionEnvironment:  c.ProductionEnv,
		ProductionAccessHeader: c.ProductionAccess.Header,
		ProductionAccessValue:  c.ProductionAccess.Value,
		BotSubstrings:          append([]string(nil), c.BotSubstrings...),
	}
}

// RegoModule returns the configured module source and its name. An empty source means
// the embedded default module.
func (c PolicyConfig) RegoModule() (string, string, error) {
	if c.RegoFile == "" {
		return "", "", nil
	}
	//nolint:gosec // Policy file path is controlled by admin/operator
	data, err := os.ReadFile(c.RegoFile)
	if err != nil {
		return "", "", fmt.Errorf("failed to read rego file %s: %w", c.RegoFile, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", "", errors.New("rego file " + c.RegoFile + " is empty")
	}
	return string(data), c.RegoFile, nil
}

// Validate performs validation of telemetry configuration.
func (c *TelemetryConfig) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		c.ServiceName = DefaultServiceName
	}
	return nil
}

// Tracing converts the section into tracer provider settings.
func (c TelemetryConfig) Tracing() telemetry.Config {
	return telemetry.Config{
		ServiceName: c.ServiceName,
		Endpoint:    c.OTLPEndpoint,
		Environment: c.Environment,
		Insecure:    c.Insecure,
	}
}

// Validate performs validation of logging configuration.
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}

	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
		return nil
	default:
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, error", c.Level)
	}
}
