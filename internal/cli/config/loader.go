package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment variables read as config keys.
const EnvPrefix = "QMGOV_"

// loggerKey is used to store the logger in context.
type loggerKey struct{}

// configKey is used to store the config in context.
type configKey struct{}

// flagKeys maps flags whose names differ from their config keys.
var flagKeys = map[string]string{
	"server":       "server_url",
	"user":         "username",
	"insecure":     "insecure_skip_verify",
	"project-area": "project_area_id",
	"stream":       "stream_id",
}

// findConfigFile finds the config file to use.
// Priority: explicit path > qmgov.yaml > qmgov.yml > config.json
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range ConfigFileNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// foldedParser lower-cases top-level keys so data_governance_TP and
// data_governance_tp are the same key.
type foldedParser struct {
	koanf.Parser
}

func (p foldedParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	m, err := p.Parser.Unmarshal(b)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out, nil
}

// Load loads configuration from defaults, file, environment variables and
// flags. Precedence (highest to lowest): flags > env vars > config file >
// defaults. Only flags that were explicitly set are applied.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"timeout":     DefaultTimeout,
		"retries":     DefaultRetries,
		"concurrency": DefaultConcurrency,
		"report_dir":  DefaultReportDir,
		"output":      DefaultOutput,
		"verbose":     false,
	}, "."), nil); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}

	// 2. Config file
	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), foldedParser{yaml.Parser()}); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", used)
		}
	}

	// 3. Environment: QMGOV_SERVER_URL -> server_url
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env vars")
	}

	// 4. Flags
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, errors.Wrap(err, "load flags")
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.DecodeHookFuncType(secondsToDuration),
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.ConfigFile = used

	cfg.Username = expandEnvVars(cfg.Username)
	cfg.Password = expandEnvVars(cfg.Password)
	cfg.ServerURL = strings.TrimRight(expandEnvVars(cfg.ServerURL), "/")

	return &cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsToDuration reads bare numbers as seconds, so "timeout: 60" in a
// config file means one minute rather than 60ns.
func secondsToDuration(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case uint64:
		return time.Duration(v) * time.Second, nil //nolint:gosec // config values are small
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return time.Duration(n) * time.Second, nil
		}
	}
	return data, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Return original if not found
	})
}

// WithConfig returns a context carrying cfg.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext returns the config stored in ctx, or defaults.
func FromContext(ctx context.Context) *Config {
	if c, ok := ctx.Value(configKey{}).(*Config); ok && c != nil {
		return c
	}
	return &Config{
		Timeout:      DefaultTimeout,
		Retries:      DefaultRetries,
		Concurrency:  DefaultConcurrency,
		ReportDir:    DefaultReportDir,
		OutputFormat: DefaultOutput,
	}
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

// NewLogger returns a text logger writing to w: warnings and errors by
// default, everything when verbose.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
