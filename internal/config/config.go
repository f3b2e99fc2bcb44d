// Package config handles Sherpa configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// StateDirName is the per-project state directory
const StateDirName = ".sherpa"

// Config holds Sherpa configuration. Values load in three layers:
// defaults, then the project config file, then SHERPA_* environment
// overrides.
type Config struct {
	// Engine connection
	EngineBaseURL string
	EngineAPIKey  string
	EngineModel   string
	EngineTimeout time.Duration

	// Execution settings
	TaskDelay    time.Duration
	MaxPlanSteps int
	Unattended   bool

	// State paths (relative to the project state dir unless absolute)
	KnowledgePath string
	HistoryPath   string

	// Project directory (detected)
	ProjectDir string

	// Verbose mode for debugging
	Verbose bool
}

// fileConfig mirrors the config file. Durations are strings so the file
// can use forms like "500ms" or "2m".
type fileConfig struct {
	EngineBaseURL string `yaml:"engine_base_url"`
	EngineAPIKey  string `yaml:"engine_api_key"`
	EngineModel   string `yaml:"engine_model"`
	EngineTimeout string `yaml:"engine_timeout"`
	TaskDelay     string `yaml:"task_delay"`
	MaxPlanSteps  *int   `yaml:"max_plan_steps"`
	Unattended    *bool  `yaml:"unattended"`
	KnowledgePath string `yaml:"knowledge_path"`
	HistoryPath   string `yaml:"history_path"`
	Verbose       *bool  `yaml:"verbose"`
}

// Load loads configuration for a project directory
func Load(projectDir string) (*Config, error) {
	cfg := &Config{
		EngineBaseURL: "http://localhost:11434",
		EngineModel:   "qwen2.5-coder:latest",
		EngineTimeout: 5 * time.Minute,
		TaskDelay:     2 * time.Second,
		MaxPlanSteps:  10,
		KnowledgePath: "knowledge.json",
		HistoryPath:   "history.db",
		ProjectDir:    projectDir,
	}

	// Project config file, if present
	path := filepath.Join(projectDir, StateDirName, "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		applyFile(cfg, &fc)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Environment overrides
	if v := os.Getenv("SHERPA_ENGINE_BASE_URL"); v != "" {
		cfg.EngineBaseURL = v
	}
	if v := os.Getenv("SHERPA_ENGINE_API_KEY"); v != "" {
		cfg.EngineAPIKey = v
	}
	if v := os.Getenv("SHERPA_ENGINE_MODEL"); v != "" {
		cfg.EngineModel = v
	}
	if v := os.Getenv("SHERPA_ENGINE_TIMEOUT"); v != "" {
		cfg.EngineTimeout = parseDurationOrDefault(v, cfg.EngineTimeout)
	}
	if v := os.Getenv("SHERPA_TASK_DELAY"); v != "" {
		cfg.TaskDelay = parseDurationOrDefault(v, cfg.TaskDelay)
	}
	if v := os.Getenv("SHERPA_MAX_PLAN_STEPS"); v != "" {
		cfg.MaxPlanSteps = parseIntOrDefault(v, cfg.MaxPlanSteps)
	}
	if v := os.Getenv("SHERPA_UNATTENDED"); v != "" {
		cfg.Unattended = v == "true" || v == "1"
	}
	if v := os.Getenv("SHERPA_VERBOSE"); v != "" {
		cfg.Verbose = v == "true" || v == "1"
	}

	return cfg, nil
}

func applyFile(cfg *Config, fc *fileConfig) {
	if fc.EngineBaseURL != "" {
		cfg.EngineBaseURL = fc.EngineBaseURL
	}
	if fc.EngineAPIKey != "" {
		cfg.EngineAPIKey = fc.EngineAPIKey
	}
	if fc.EngineModel != "" {
		cfg.EngineModel = fc.EngineModel
	}
	if fc.EngineTimeout != "" {
		cfg.EngineTimeout = parseDurationOrDefault(fc.EngineTimeout, cfg.EngineTimeout)
	}
	if fc.TaskDelay != "" {
		cfg.TaskDelay = parseDurationOrDefault(fc.TaskDelay, cfg.TaskDelay)
	}
	if fc.MaxPlanSteps != nil {
		cfg.MaxPlanSteps = *fc.MaxPlanSteps
	}
	if fc.Unattended != nil {
		cfg.Unattended = *fc.Unattended
	}
	if fc.KnowledgePath != "" {
		cfg.KnowledgePath = fc.KnowledgePath
	}
	if fc.HistoryPath != "" {
		cfg.HistoryPath = fc.HistoryPath
	}
	if fc.Verbose != nil {
		cfg.Verbose = *fc.Verbose
	}
}

// StateDir returns the project's state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.ProjectDir, StateDirName)
}

// KnowledgeFile returns the resolved knowledge store path
func (c *Config) KnowledgeFile() string {
	return c.statePath(c.KnowledgePath)
}

// HistoryFile returns the resolved run-history database path
func (c *Config) HistoryFile() string {
	return c.statePath(c.HistoryPath)
}

func (c *Config) statePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.StateDir(), p)
}

func parseIntOrDefault(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseDurationOrDefault(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}
