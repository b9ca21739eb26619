package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"nextedit/engine"
	"nextedit/types"

	"github.com/pelletier/go-toml/v2"
)

const (
	configEnv     = "NEXTEDIT_CONFIG"
	configFileEnv = "NEXTEDIT_CONFIG_FILE"
)

type Config struct {
	NsID                   int    `json:"ns_id" toml:"ns_id"`
	LogLevel               string `json:"log_level" toml:"log_level"` // trace, debug, info, warn, error
	Debounce               int    `json:"debounce" toml:"debounce"`                     // in milliseconds
	CompletionTimeout      int    `json:"completion_timeout" toml:"completion_timeout"` // in milliseconds
	ServiceURL             string `json:"service_url" toml:"service_url"`
	APIKey                 string `json:"api_key" toml:"api_key"`
	Primary                string `json:"primary" toml:"primary"` // inline_completion or next_edit
	Fallback               bool   `json:"fallback" toml:"fallback"`
	NextEditEnabled        bool   `json:"next_edit_enabled" toml:"next_edit_enabled"`
	Autoshow               bool   `json:"autoshow" toml:"autoshow"`
	AutoTrigger            bool   `json:"auto_trigger" toml:"auto_trigger"`
	TabAccept              bool   `json:"tab_accept" toml:"tab_accept"`
	DebugImmediateShutdown bool   `json:"debug_immediate_shutdown" toml:"debug_immediate_shutdown"`
	MetricsEnabled         bool   `json:"metrics_enabled" toml:"metrics_enabled"`
	TracesEnabled          bool   `json:"traces_enabled" toml:"traces_enabled"` // writes nextedit-traces.jsonl
}

// ConfigFileError reports a TOML file that could not be decoded.
type ConfigFileError struct {
	Path   string
	Row    int
	Column int
	Err    error
}

func (e *ConfigFileError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("%s:%d:%d: %v", e.Path, e.Row, e.Column, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ConfigFileError) Unwrap() error { return e.Err }

func defaultConfig() Config {
	return Config{
		LogLevel:          "info",
		Debounce:          75,
		CompletionTimeout: 5000,
		Primary:           types.SourceInlineCompletion.String(),
		NextEditEnabled:   true,
		AutoTrigger:       true,
		TabAccept:         true,
	}
}

// parseConfig layers the JSON from the environment and then the TOML file
// over the defaults. Keys missing from a layer keep the value below.
func parseConfig(jsonData string, tomlData []byte, tomlPath string) (Config, error) {
	config := defaultConfig()
	if jsonData != "" {
		if err := json.Unmarshal([]byte(jsonData), &config); err != nil {
			return config, fmt.Errorf("invalid %s: %w", configEnv, err)
		}
	}
	if len(tomlData) > 0 {
		if err := toml.Unmarshal(tomlData, &config); err != nil {
			var decodeErr *toml.DecodeError
			if errors.As(err, &decodeErr) {
				row, col := decodeErr.Position()
				return config, &ConfigFileError{Path: tomlPath, Row: row, Column: col, Err: decodeErr}
			}
			return config, &ConfigFileError{Path: tomlPath, Err: err}
		}
	}
	if _, err := parseSource(config.Primary); err != nil {
		return config, err
	}
	return config, nil
}

func loadConfig() (Config, error) {
	var tomlData []byte
	path := os.Getenv(configFileEnv)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		tomlData = data
	}
	return parseConfig(os.Getenv(configEnv), tomlData, path)
}

func parseSource(s string) (types.CompletionSource, error) {
	switch s {
	case "", types.SourceInlineCompletion.String():
		return types.SourceInlineCompletion, nil
	case types.SourceNextEdit.String():
		return types.SourceNextEdit, nil
	}
	return 0, fmt.Errorf("unknown primary backend %q", s)
}

// EngineConfig converts the configuration for the engine, clamping the
// debounce delay.
func (c Config) EngineConfig() engine.EngineConfig {
	primary, _ := parseSource(c.Primary)
	return engine.EngineConfig{
		Debounce:          engine.ClampDebounce(time.Duration(c.Debounce) * time.Millisecond),
		CompletionTimeout: time.Duration(c.CompletionTimeout) * time.Millisecond,
		TabAccept:         c.TabAccept,
		Source: engine.SuggestionSource{
			Primary:         primary,
			Fallback:        c.Fallback,
			NextEditEnabled: c.NextEditEnabled || primary == types.SourceNextEdit,
			Autoshow:        c.Autoshow,
			AutoTrigger:     c.AutoTrigger,
		},
	}
}
