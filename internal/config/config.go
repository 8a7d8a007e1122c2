// Package config loads the driftwatch.json file and environment overrides
// and turns target records into wired pipeline definitions.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/driftwatch/driftwatch/internal/orchestrator"
	"github.com/driftwatch/driftwatch/internal/stage"
)

const DefaultPath = "driftwatch.json"

type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Field + ": " + e.Reason
}

type Config struct {
	ListenAddr    string
	WebhookSecret string
	RunLogDSN     string
	Tick          time.Duration
	Targets       []orchestrator.Target
}

type fileConfig struct {
	ListenAddr    string       `json:"listenAddr"`
	WebhookSecret string       `json:"webhookSecret"`
	RunLogDSN     string       `json:"runLogDSN"`
	TickInterval  string       `json:"tickInterval"`
	Targets       []fileTarget `json:"targets"`
}

type fileTarget struct {
	ID                string      `json:"id"`
	Source            string      `json:"source"`
	Path              string      `json:"path"`
	Repository        string      `json:"repository"`
	DebounceWindow    string      `json:"debounceWindow"`
	IncludeExtensions []string    `json:"includeExtensions"`
	IgnorePatterns    []string    `json:"ignorePatterns"`
	RunOnStart        bool        `json:"runOnStart"`
	Stages            []fileStage `json:"stages"`
}

type fileStage struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Command []string `json:"command"`
	Dir     string   `json:"dir"`
	Schema  string   `json:"schema"`
	Docs    string   `json:"docs"`
	Timeout string   `json:"timeout"`
}

// Load reads the config file, applies environment overrides, and builds the
// target definitions. Relative paths inside the file resolve against the
// file's own directory.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &ConfigError{Field: "file", Reason: err.Error()}
	}
	var raw fileConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, &ConfigError{Field: "file", Reason: "invalid json: " + err.Error()}
	}

	baseDir := filepath.Dir(path)
	cfg := Config{
		ListenAddr:    raw.ListenAddr,
		WebhookSecret: raw.WebhookSecret,
		RunLogDSN:     raw.RunLogDSN,
	}
	if raw.TickInterval != "" {
		tick, err := time.ParseDuration(raw.TickInterval)
		if err != nil {
			return Config{}, &ConfigError{Field: "tickInterval", Reason: err.Error()}
		}
		cfg.Tick = tick
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}

	cfg.ListenAddr = stringEnv("DRIFTWATCH_ADDR", cfg.ListenAddr)
	cfg.WebhookSecret = stringEnv("DRIFTWATCH_WEBHOOK_SECRET", cfg.WebhookSecret)
	cfg.RunLogDSN = stringEnv("DRIFTWATCH_RUNLOG_DSN", cfg.RunLogDSN)

	if cfg.WebhookSecret == "" {
		return Config{}, &ConfigError{Field: "webhookSecret", Reason: "must be set in the file or DRIFTWATCH_WEBHOOK_SECRET"}
	}
	if len(raw.Targets) == 0 {
		return Config{}, &ConfigError{Field: "targets", Reason: "at least one target is required"}
	}

	for _, record := range raw.Targets {
		target, err := buildTarget(record, baseDir)
		if err != nil {
			return Config{}, err
		}
		cfg.Targets = append(cfg.Targets, target)
	}
	return cfg, nil
}

func buildTarget(record fileTarget, baseDir string) (orchestrator.Target, error) {
	if strings.TrimSpace(record.ID) == "" {
		return orchestrator.Target{}, &ConfigError{Field: "targets", Reason: "missing target id"}
	}
	field := "targets." + record.ID

	target := orchestrator.Target{
		ID:                strings.TrimSpace(record.ID),
		Repository:        strings.TrimSpace(record.Repository),
		IncludeExtensions: record.IncludeExtensions,
		IgnorePatterns:    record.IgnorePatterns,
		RunOnStart:        record.RunOnStart,
	}
	switch record.Source {
	case "filesystem":
		target.Source = orchestrator.SourceFilesystem
		target.Path = resolvePath(baseDir, record.Path)
	case "webhook-repository":
		target.Source = orchestrator.SourceWebhookRepository
	default:
		return orchestrator.Target{}, &ConfigError{Field: field + ".source", Reason: fmt.Sprintf("unsupported source %q", record.Source)}
	}
	if record.DebounceWindow != "" {
		window, err := time.ParseDuration(record.DebounceWindow)
		if err != nil {
			return orchestrator.Target{}, &ConfigError{Field: field + ".debounceWindow", Reason: err.Error()}
		}
		target.DebounceWindow = window
	}

	for _, stageRecord := range record.Stages {
		pipelineStage, err := buildStage(stageRecord, field, baseDir)
		if err != nil {
			return orchestrator.Target{}, err
		}
		target.Stages = append(target.Stages, pipelineStage)
	}
	return target, nil
}

func buildStage(record fileStage, field, baseDir string) (orchestrator.PipelineStage, error) {
	field = field + ".stages." + record.Name
	var timeout time.Duration
	if record.Timeout != "" {
		parsed, err := time.ParseDuration(record.Timeout)
		if err != nil {
			return orchestrator.PipelineStage{}, &ConfigError{Field: field + ".timeout", Reason: err.Error()}
		}
		timeout = parsed
	}

	switch record.Type {
	case "exec":
		execStage, err := stage.NewExecStage(record.Name, record.Command)
		if err != nil {
			return orchestrator.PipelineStage{}, &ConfigError{Field: field, Reason: err.Error()}
		}
		if record.Dir != "" {
			execStage.SetDir(resolvePath(baseDir, record.Dir))
		}
		return orchestrator.PipelineStage{Stage: execStage, Timeout: timeout}, nil
	case "schema":
		schemaStage, err := stage.NewSchemaStage(record.Name, resolvePath(baseDir, record.Schema), resolvePath(baseDir, record.Docs))
		if err != nil {
			return orchestrator.PipelineStage{}, &ConfigError{Field: field, Reason: err.Error()}
		}
		return orchestrator.PipelineStage{Stage: schemaStage, Timeout: timeout}, nil
	default:
		return orchestrator.PipelineStage{}, &ConfigError{Field: field + ".type", Reason: fmt.Sprintf("unsupported stage type %q", record.Type)}
	}
}

func resolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

func stringEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
