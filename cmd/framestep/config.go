package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is the framestep configuration file. Pointer fields distinguish
// "not set" from zero values.
type Config struct {
	// Session defaults
	Backend     string   `yaml:"backend"`
	MaxTokens   *int64   `yaml:"max_tokens"`
	Prompt      []uint32 `yaml:"prompt"`
	EOSToken    *uint32  `yaml:"eos_token"`
	YieldEvery  *int64   `yaml:"yield_every"`
	RefuseAfter *int64   `yaml:"refuse_after"`
	Rate        *float64 `yaml:"rate"`
	Burst       *int64   `yaml:"burst"`

	// Sample backend
	Vocab       *int64   `yaml:"vocab"`
	Seed        *int64   `yaml:"seed"`
	Temperature *float64 `yaml:"temperature"`
	TopK        *int64   `yaml:"top_k"`
	TopP        *float64 `yaml:"top_p"`

	// Output
	OutputFormat string `yaml:"output_format"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`

	// Server
	ServerAddress  string         `yaml:"server_address"`
	RunTimeout     *time.Duration `yaml:"run_timeout"`
	MaxTokensLimit *int64         `yaml:"max_tokens_limit"`
}

// LoadConfig reads the file chosen by resolveConfigPath. A missing default
// file yields a zero Config; a missing explicit file is an error.
func LoadConfig(flag string) (Config, error) {
	path, explicit := resolveConfigPath(flag)
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyRunConfig fills run options from the config file when the matching
// flag was not set on the command line.
func applyRunConfig(c *cli.Command, cfg Config, o *runOptions) {
	if cfg.Backend != "" && !c.IsSet("backend") {
		o.backend = cfg.Backend
	}
	if cfg.MaxTokens != nil && !c.IsSet("max-tokens") {
		o.maxTokens = *cfg.MaxTokens
	}
	if len(cfg.Prompt) > 0 && !c.IsSet("prompt") {
		o.prompt = joinIDs(cfg.Prompt, ",")
	}
	if cfg.EOSToken != nil && !c.IsSet("eos") {
		o.eos = int64(*cfg.EOSToken)
	}
	if cfg.YieldEvery != nil && !c.IsSet("yield-every") {
		o.yieldEvery = *cfg.YieldEvery
	}
	if cfg.RefuseAfter != nil && !c.IsSet("refuse-after") {
		o.refuseAfter = *cfg.RefuseAfter
	}
	if cfg.Rate != nil && !c.IsSet("rate") {
		o.rate = *cfg.Rate
	}
	if cfg.Burst != nil && !c.IsSet("burst") {
		o.burst = *cfg.Burst
	}
	if cfg.Vocab != nil && !c.IsSet("vocab") {
		o.vocab = *cfg.Vocab
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		o.seed = *cfg.Seed
	}
	if cfg.Temperature != nil && !c.IsSet("temperature") && !c.IsSet("temp") {
		o.temperature = *cfg.Temperature
	}
	if cfg.TopK != nil && !c.IsSet("top-k") {
		o.topK = *cfg.TopK
	}
	if cfg.TopP != nil && !c.IsSet("top-p") {
		o.topP = *cfg.TopP
	}
	if cfg.OutputFormat != "" && !c.IsSet("output") {
		o.output = cfg.OutputFormat
	}
}

func applyServeConfig(c *cli.Command, cfg Config, o *serveOptions) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		o.addr = cfg.ServerAddress
	}
	if cfg.RunTimeout != nil && !c.IsSet("run-timeout") {
		o.runTimeout = *cfg.RunTimeout
	}
	if cfg.MaxTokensLimit != nil && !c.IsSet("max-tokens-limit") {
		o.maxTokensLimit = *cfg.MaxTokensLimit
	}
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}
