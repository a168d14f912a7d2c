// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config holds the ingestion engine configuration.
//
// Configuration is resolved with priority: environment > file > defaults.
// All knobs that shape the analysis (worker counts, kind-policy thresholds,
// token budgets, oracle transport) live here so runs are reproducible from a
// single YAML file.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that YAML-decodes from strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the top-level engine configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after load.
type Config struct {
	// Analyzer contains per-file extraction settings.
	Analyzer AnalyzerConfig `json:"analyzer" yaml:"analyzer"`

	// Candidates contains component selection settings.
	Candidates CandidatesConfig `json:"candidates" yaml:"candidates"`

	// Partition contains module tree construction settings.
	Partition PartitionConfig `json:"partition" yaml:"partition"`

	// Oracle contains grouping LLM transport settings.
	Oracle OracleConfig `json:"oracle" yaml:"oracle"`

	// Cache contains parse cache settings.
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Logging contains log output settings.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Telemetry contains trace/metric export settings.
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
}

// AnalyzerConfig contains per-file extraction settings.
type AnalyzerConfig struct {
	// Workers bounds concurrent file parses.
	Workers int `json:"workers" yaml:"workers" validate:"gte=1,lte=256"`

	// MaxFileBytes is the per-file size cap; larger files are skipped.
	MaxFileBytes int `json:"max_file_bytes" yaml:"max_file_bytes" validate:"gte=1024"`
}

// CandidatesConfig contains component selection settings. The ratio and
// count thresholds drive the per-repository kind policy: repositories with
// few object-oriented components admit standalone functions as candidates.
type CandidatesConfig struct {
	MaxCandidates int     `json:"max_candidates" yaml:"max_candidates" validate:"gte=1"`
	FuncOOPRatio  float64 `json:"func_oop_ratio" yaml:"func_oop_ratio" validate:"gte=0,lte=1"`
	FuncMinCount  int     `json:"func_min_count" yaml:"func_min_count" validate:"gte=0"`
	FewOOPCount   int     `json:"few_oop_count" yaml:"few_oop_count" validate:"gte=0"`
	ManyFuncCount int     `json:"many_func_count" yaml:"many_func_count" validate:"gte=0"`
}

// PartitionConfig contains module tree construction settings.
type PartitionConfig struct {
	// TokenBudget is the with-source rendering size below which a module is
	// left whole.
	TokenBudget int `json:"token_budget" yaml:"token_budget" validate:"gte=100"`

	// MaxRetries is the number of additional oracle attempts after the
	// first failure.
	MaxRetries int `json:"max_retries" yaml:"max_retries" validate:"gte=0,lte=10"`

	// MaxDepth bounds the recursion.
	MaxDepth int `json:"max_depth" yaml:"max_depth" validate:"gte=1,lte=20"`

	// MinClusterSize is the directory pre-clustering merge threshold.
	MinClusterSize int `json:"min_cluster_size" yaml:"min_cluster_size" validate:"gte=1"`

	// MaxSuggestedModules caps the pre-clustering proposals in the prompt.
	MaxSuggestedModules int `json:"max_suggested_modules" yaml:"max_suggested_modules" validate:"gte=1,lte=64"`

	// Encoding names the tiktoken encoding used for budget sizing.
	Encoding string `json:"encoding" yaml:"encoding" validate:"required"`
}

// OracleConfig contains grouping LLM transport settings. The API key is
// never stored in the file; it is read from APIKeyEnv at startup.
type OracleConfig struct {
	Model             string   `json:"model" yaml:"model" validate:"required"`
	BaseURL           string   `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"omitempty,url"`
	Temperature       float64  `json:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	Timeout           Duration `json:"timeout" yaml:"timeout" validate:"gt=0"`
	RequestsPerMinute int      `json:"requests_per_minute" yaml:"requests_per_minute" validate:"gte=1"`
	APIKeyEnv         string   `json:"api_key_env" yaml:"api_key_env" validate:"required"`
}

// CacheConfig contains parse cache settings.
type CacheConfig struct {
	// Enabled toggles the on-disk parse cache.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Dir is the badger database directory. Empty means a per-user default.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	Level string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `json:"json" yaml:"json"`
	Dir   string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// TelemetryConfig contains trace/metric export settings.
type TelemetryConfig struct {
	// Exporter selects the backend: prometheus, stdout, otlp, or none.
	Exporter string `json:"exporter" yaml:"exporter" validate:"oneof=prometheus stdout otlp none"`

	// ServiceName is attached to every span and metric.
	ServiceName string `json:"service_name" yaml:"service_name" validate:"required"`

	// Endpoint is the OTLP collector address. Required for the otlp exporter.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" validate:"required_if=Exporter otlp"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Analyzer: AnalyzerConfig{
			Workers:      8,
			MaxFileBytes: 1 << 20,
		},
		Candidates: CandidatesConfig{
			MaxCandidates: 400,
			FuncOOPRatio:  0.1,
			FuncMinCount:  20,
			FewOOPCount:   5,
			ManyFuncCount: 50,
		},
		Partition: PartitionConfig{
			TokenBudget:         40000,
			MaxRetries:          2,
			MaxDepth:            5,
			MinClusterSize:      2,
			MaxSuggestedModules: 8,
			Encoding:            "cl100k_base",
		},
		Oracle: OracleConfig{
			Model:             "gpt-4o",
			Temperature:       0.2,
			Timeout:           Duration(2 * time.Minute),
			RequestsPerMinute: 30,
			APIKeyEnv:         "OPENAI_API_KEY",
		},
		Cache: CacheConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
		Telemetry: TelemetryConfig{
			Exporter:    "none",
			ServiceName: "codeatlas",
		},
	}
}

var validate = validator.New()

// Validate checks the configuration against its struct tags.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("invalid config field %s: failed %q", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
