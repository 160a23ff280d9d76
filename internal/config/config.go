package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/efebarandurmaz/bbsearch/internal/enumerate"
)

// ErrInvalidConfig is returned by Check for settings a search cannot run with.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all application configuration.
type Config struct {
	Search  SearchConfig  `mapstructure:"search"`
	Log     LogConfig     `mapstructure:"log"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Report  ReportConfig  `mapstructure:"report"`
}

type SearchConfig struct {
	States    int    `mapstructure:"states"`
	MaxSteps  uint32 `mapstructure:"max_steps"`
	Workers   int    `mapstructure:"workers"`
	Generator string `mapstructure:"generator"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type ReportConfig struct {
	HistogramHeight int    `mapstructure:"histogram_height"`
	HistogramCutoff int    `mapstructure:"histogram_cutoff"`
	HideHistogram   bool   `mapstructure:"hide_histogram"`
	Progress        bool   `mapstructure:"progress"`
	JSON            bool   `mapstructure:"json"`
	Journal         string `mapstructure:"journal"`
	SnapshotDir     string `mapstructure:"snapshot_dir"`
	Tag             string `mapstructure:"tag"`
	Baseline        string `mapstructure:"baseline"`
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"states":           "search.states",
	"max-steps":        "search.max_steps",
	"workers":          "search.workers",
	"generator":        "search.generator",
	"log-level":        "log.level",
	"log-format":       "log.format",
	"log-file":         "log.file",
	"otlp-endpoint":    "tracing.endpoint",
	"metrics-addr":     "metrics.addr",
	"histogram-height": "report.histogram_height",
	"histogram-cutoff": "report.histogram_cutoff",
	"hide-histogram":   "report.hide_histogram",
	"progress":         "report.progress",
	"json":             "report.json",
	"journal":          "report.journal",
	"snapshot-dir":     "report.snapshot_dir",
	"tag":              "report.tag",
	"baseline":         "report.baseline",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("search.states", 0)
	v.SetDefault("search.max_steps", 200)
	v.SetDefault("search.workers", runtime.NumCPU())
	v.SetDefault("search.generator", "canonical")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "bbsearch")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("report.histogram_height", 15)
	v.SetDefault("report.histogram_cutoff", 30)
	v.SetDefault("report.hide_histogram", false)
	v.SetDefault("report.progress", false)
	v.SetDefault("report.json", false)
	v.SetDefault("report.journal", "")
	v.SetDefault("report.snapshot_dir", "")
	v.SetDefault("report.tag", "")
	v.SetDefault("report.baseline", "")
}

// RegisterFlags defines the search flags on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.IntP("states", "n", 0, "number of states N (1-6)")
	fs.Uint32("max-steps", 200, "step bound per machine")
	fs.IntP("workers", "j", runtime.NumCPU(), "number of worker goroutines")
	fs.StringP("generator", "g", "canonical", "enumerated space: canonical, all, no-symmetries or optimized")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.String("log-format", "text", "log format: text or json")
	fs.String("log-file", "", "also write JSON logs to this file")
	fs.String("otlp-endpoint", "", "OTLP gRPC endpoint for traces (e.g. localhost:4317)")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address during the run")
	fs.Int("histogram-height", 15, "height of the step histogram in rows")
	fs.Int("histogram-cutoff", 30, "largest step count shown in the histogram, exclusive")
	fs.Bool("hide-histogram", false, "do not print the step histogram")
	fs.Bool("progress", false, "show an interactive progress bar")
	fs.Bool("json", false, "print the report as JSON")
	fs.String("journal", "", "append run events as JSON lines to this file")
	fs.String("snapshot-dir", "", "save the result as a snapshot in this directory")
	fs.String("tag", "", "tag for the saved snapshot")
	fs.String("baseline", "", "compare the result with this snapshot ID or tag")
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Search.States >= 5 {
		warnings = append(warnings, fmt.Sprintf("search of %d-state machines enumerates more than 10^13 machines and will not finish in practical time", c.Search.States))
	}

	if c.Search.Workers > 4*runtime.NumCPU() {
		warnings = append(warnings, fmt.Sprintf("workers %d exceeds 4x the %d available CPUs", c.Search.Workers, runtime.NumCPU()))
	}

	if c.Search.MaxSteps > 1_000_000 {
		warnings = append(warnings, fmt.Sprintf("max_steps %d makes every non-halting machine very slow to classify", c.Search.MaxSteps))
	}

	if c.Report.HistogramCutoff > int(c.Search.MaxSteps)+1 && c.Search.MaxSteps > 0 {
		warnings = append(warnings, fmt.Sprintf("histogram_cutoff %d is above max_steps %d", c.Report.HistogramCutoff, c.Search.MaxSteps))
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}

	return warnings
}

// Check returns an error for settings that make a search impossible.
func (c *Config) Check() error {
	var problems []string

	if c.Search.States < 1 || c.Search.States > 6 {
		problems = append(problems, fmt.Sprintf("states %d is outside 1..6", c.Search.States))
	}
	if c.Search.MaxSteps < 1 {
		problems = append(problems, "max_steps must be at least 1")
	}
	if c.Search.Workers < 1 {
		problems = append(problems, fmt.Sprintf("workers %d must be at least 1", c.Search.Workers))
	}
	if _, err := enumerate.ParseGenerator(c.Search.Generator); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Report.HistogramHeight < 2 {
		problems = append(problems, fmt.Sprintf("histogram_height %d must be at least 2", c.Report.HistogramHeight))
	}
	if c.Report.SnapshotDir == "" && (c.Report.Tag != "" || c.Report.Baseline != "") {
		problems = append(problems, "tag and baseline need a snapshot_dir")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json", "":
	default:
		problems = append(problems, fmt.Sprintf("log format %q is not text or json", c.Log.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Generator returns the configured generator. It is only meaningful after
// Check succeeded.
func (c *Config) Generator() enumerate.Generator {
	g, _ := enumerate.ParseGenerator(c.Search.Generator)
	return g
}

// Load reads configuration from an optional file, the environment
// (prefix BBSEARCH_) and flags registered with RegisterFlags, in increasing
// order of precedence. path may be empty; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("BBSEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
