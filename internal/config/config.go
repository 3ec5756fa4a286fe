// Package config provides configuration management for the relay CLI.
// It loads configuration from environment variables with sensible defaults,
// with an optional YAML file supplying values for anything the environment
// leaves unset.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// Verbosity represents the output verbosity level
type Verbosity string

const (
	// VerbosityNormal shows only essential output
	VerbosityNormal Verbosity = "normal"
	// VerbosityVerbose includes per-poll progress detail
	VerbosityVerbose Verbosity = "verbose"
	// VerbosityDebug provides full debug logging
	VerbosityDebug Verbosity = "debug"
)

// Config holds all configuration for the relay CLI
type Config struct {
	// Owner is the repository owner (user or organization)
	Owner string

	// Repo is the repository name
	Repo string

	// Token is the API token used for all workflow calls
	Token string

	// Workflow is the workflow file name to dispatch, e.g. "deploy.yml"
	Workflow string

	// Ref is the git ref the dispatched run executes on
	Ref string

	// Inputs is the dispatch input payload, always a JSON object
	Inputs map[string]any

	// Interval is the sleep between polls
	Interval time.Duration

	// Timeout bounds both run discovery and per-run waiting
	Timeout time.Duration

	// PropagateFailure controls whether a failing run fails the process
	PropagateFailure bool

	// TriggerWorkflow controls whether the dispatch stage runs
	TriggerWorkflow bool

	// WaitWorkflow controls whether the wait stage runs
	WaitWorkflow bool

	// Correlation enables injecting a correlation token into the
	// dispatch inputs and matching it against run display names
	Correlation bool

	// CommentURL is an optional downstream endpoint notified on completion
	CommentURL string

	// CommentToken authenticates against CommentURL
	CommentToken string

	// Verbosity controls output level
	Verbosity Verbosity
}

// fileConfig mirrors the YAML config file. Pointer fields distinguish
// "absent" from zero values so the environment can always win.
type fileConfig struct {
	Owner            *string `yaml:"owner"`
	Repo             *string `yaml:"repo"`
	Workflow         *string `yaml:"workflow"`
	Ref              *string `yaml:"ref"`
	Inputs           *string `yaml:"inputs"`
	Interval         *int    `yaml:"interval"`
	Timeout          *int    `yaml:"timeout"`
	PropagateFailure *bool   `yaml:"propagate_failure"`
	TriggerWorkflow  *bool   `yaml:"trigger_workflow"`
	WaitWorkflow     *bool   `yaml:"wait_workflow"`
	Correlation      *bool   `yaml:"correlation"`
	CommentURL       *string `yaml:"comment_url"`
	CommentToken     *string `yaml:"comment_token"`
}

// New creates a new Config instance from environment variables,
// consulting the optional RELAY_CONFIG_FILE for defaults first.
func New() (*Config, error) {
	cfg := &Config{
		Ref:              "main",
		Interval:         10 * time.Second,
		Timeout:          30 * time.Minute,
		PropagateFailure: true,
		TriggerWorkflow:  true,
		WaitWorkflow:     true,
		Verbosity:        VerbosityNormal,
	}

	rawInputs := "{}"

	if path := os.Getenv("RELAY_CONFIG_FILE"); path != "" {
		fc, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		applyFile(cfg, fc, &rawInputs)
	}

	if v, ok := os.LookupEnv("RELAY_OWNER"); ok {
		cfg.Owner = v
	}
	if v, ok := os.LookupEnv("RELAY_REPO"); ok {
		cfg.Repo = v
	}
	if v, ok := os.LookupEnv("RELAY_WORKFLOW"); ok {
		cfg.Workflow = v
	}
	if v, ok := os.LookupEnv("RELAY_REF"); ok {
		if v == "" {
			return nil, fmt.Errorf("RELAY_REF cannot be empty")
		}
		cfg.Ref = v
	}

	// Token falls back to the conventional GITHUB_TOKEN
	cfg.Token = os.Getenv("RELAY_TOKEN")
	if cfg.Token == "" {
		cfg.Token = os.Getenv("GITHUB_TOKEN")
	}

	if v, ok := os.LookupEnv("RELAY_INPUTS"); ok {
		rawInputs = v
	}
	inputs, err := ParseInputs(rawInputs)
	if err != nil {
		return nil, fmt.Errorf("invalid RELAY_INPUTS: %w", err)
	}
	cfg.Inputs = inputs

	interval, err := parseSecondsEnv("RELAY_INTERVAL", cfg.Interval)
	if err != nil {
		return nil, err
	}
	cfg.Interval = interval

	timeout, err := parseSecondsEnv("RELAY_TIMEOUT", cfg.Timeout)
	if err != nil {
		return nil, err
	}
	cfg.Timeout = timeout

	propagate, err := parseBoolEnv("RELAY_PROPAGATE_FAILURE", cfg.PropagateFailure)
	if err != nil {
		return nil, err
	}
	cfg.PropagateFailure = propagate

	trigger, err := parseBoolEnv("RELAY_TRIGGER", cfg.TriggerWorkflow)
	if err != nil {
		return nil, err
	}
	cfg.TriggerWorkflow = trigger

	wait, err := parseBoolEnv("RELAY_WAIT", cfg.WaitWorkflow)
	if err != nil {
		return nil, err
	}
	cfg.WaitWorkflow = wait

	correlation, err := parseBoolEnv("RELAY_CORRELATION", cfg.Correlation)
	if err != nil {
		return nil, err
	}
	cfg.Correlation = correlation

	if v, ok := os.LookupEnv("RELAY_COMMENT_URL"); ok {
		cfg.CommentURL = v
	}
	if v, ok := os.LookupEnv("RELAY_COMMENT_TOKEN"); ok {
		cfg.CommentToken = v
	}

	// Load Verbosity - defaults to normal
	verbosity := os.Getenv("RELAY_VERBOSITY")
	if verbosity != "" {
		switch Verbosity(verbosity) {
		case VerbosityNormal, VerbosityVerbose, VerbosityDebug:
			cfg.Verbosity = Verbosity(verbosity)
		default:
			return nil, fmt.Errorf("RELAY_VERBOSITY must be one of: normal, verbose, debug; got: %s", verbosity)
		}
	}

	return cfg, nil
}

// ValidateRequired checks that every value needed by the enabled stages is
// present. A fully skipped invocation needs no credentials at all.
func (c *Config) ValidateRequired() error {
	if !c.TriggerWorkflow && !c.WaitWorkflow {
		return nil
	}
	if c.Owner == "" {
		return fmt.Errorf("RELAY_OWNER is required")
	}
	if c.Repo == "" {
		return fmt.Errorf("RELAY_REPO is required")
	}
	if c.Token == "" {
		return fmt.Errorf("RELAY_TOKEN (or GITHUB_TOKEN) is required")
	}
	if c.Workflow == "" {
		return fmt.Errorf("RELAY_WORKFLOW is required")
	}
	return nil
}

// IsVerbose returns true if verbosity is verbose or debug
func (c *Config) IsVerbose() bool {
	return c.Verbosity == VerbosityVerbose || c.Verbosity == VerbosityDebug
}

// IsDebug returns true if verbosity is debug
func (c *Config) IsDebug() bool {
	return c.Verbosity == VerbosityDebug
}

func loadFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &fc, nil
}

func applyFile(cfg *Config, fc *fileConfig, rawInputs *string) {
	if fc.Owner != nil {
		cfg.Owner = *fc.Owner
	}
	if fc.Repo != nil {
		cfg.Repo = *fc.Repo
	}
	if fc.Workflow != nil {
		cfg.Workflow = *fc.Workflow
	}
	if fc.Ref != nil {
		cfg.Ref = *fc.Ref
	}
	if fc.Inputs != nil {
		*rawInputs = *fc.Inputs
	}
	if fc.Interval != nil {
		cfg.Interval = time.Duration(*fc.Interval) * time.Second
	}
	if fc.Timeout != nil {
		cfg.Timeout = time.Duration(*fc.Timeout) * time.Second
	}
	if fc.PropagateFailure != nil {
		cfg.PropagateFailure = *fc.PropagateFailure
	}
	if fc.TriggerWorkflow != nil {
		cfg.TriggerWorkflow = *fc.TriggerWorkflow
	}
	if fc.WaitWorkflow != nil {
		cfg.WaitWorkflow = *fc.WaitWorkflow
	}
	if fc.Correlation != nil {
		cfg.Correlation = *fc.Correlation
	}
	if fc.CommentURL != nil {
		cfg.CommentURL = *fc.CommentURL
	}
	if fc.CommentToken != nil {
		cfg.CommentToken = *fc.CommentToken
	}
}

// ParseInputs validates and decodes a dispatch input payload.
// The Actions API only accepts a JSON object here, so anything else
// (arrays, scalars, malformed text) is a configuration error.
func ParseInputs(raw string) (map[string]any, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("inputs payload is not valid JSON: %s", raw)
	}
	if !gjson.Parse(raw).IsObject() {
		return nil, fmt.Errorf("inputs payload must be a JSON object, got: %s", raw)
	}
	var inputs map[string]any
	if err := json.Unmarshal([]byte(raw), &inputs); err != nil {
		return nil, fmt.Errorf("failed to decode inputs payload: %w", err)
	}
	return inputs, nil
}

// parseBoolEnv parses a boolean environment variable with a default value
func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	switch value {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("%s must be true or false, got: %s", key, value)
	}
}

// parseSecondsEnv parses a positive integer number of seconds
func parseSecondsEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	secs, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if secs <= 0 {
		return 0, fmt.Errorf("%s must be positive, got: %d", key, secs)
	}
	return time.Duration(secs) * time.Second, nil
}
