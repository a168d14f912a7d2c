// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load resolves the configuration with priority: env > file > defaults.
//
// An empty path skips the file layer. A path that does not exist is not an
// error; a path that exists but fails to parse is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	loadEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

func loadEnv(cfg *Config) {
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				*dst = i
			}
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	setInt("CODEATLAS_ANALYZER_WORKERS", &cfg.Analyzer.Workers)
	setInt("CODEATLAS_MAX_FILE_BYTES", &cfg.Analyzer.MaxFileBytes)

	setInt("CODEATLAS_MAX_CANDIDATES", &cfg.Candidates.MaxCandidates)
	setFloat("CODEATLAS_FUNC_OOP_RATIO", &cfg.Candidates.FuncOOPRatio)

	setInt("CODEATLAS_TOKEN_BUDGET", &cfg.Partition.TokenBudget)
	setInt("CODEATLAS_MAX_RETRIES", &cfg.Partition.MaxRetries)
	setInt("CODEATLAS_MAX_DEPTH", &cfg.Partition.MaxDepth)
	setString("CODEATLAS_ENCODING", &cfg.Partition.Encoding)

	setString("CODEATLAS_ORACLE_MODEL", &cfg.Oracle.Model)
	setString("CODEATLAS_ORACLE_BASE_URL", &cfg.Oracle.BaseURL)
	setFloat("CODEATLAS_ORACLE_TEMPERATURE", &cfg.Oracle.Temperature)
	setInt("CODEATLAS_ORACLE_RPM", &cfg.Oracle.RequestsPerMinute)
	if v := os.Getenv("CODEATLAS_ORACLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Oracle.Timeout = Duration(d)
		}
	}

	setBool("CODEATLAS_CACHE_ENABLED", &cfg.Cache.Enabled)
	setString("CODEATLAS_CACHE_DIR", &cfg.Cache.Dir)

	setString("CODEATLAS_LOG_LEVEL", &cfg.Logging.Level)
	setBool("CODEATLAS_LOG_JSON", &cfg.Logging.JSON)
	setString("CODEATLAS_LOG_DIR", &cfg.Logging.Dir)

	setString("CODEATLAS_TELEMETRY_EXPORTER", &cfg.Telemetry.Exporter)
	setString("CODEATLAS_SERVICE_NAME", &cfg.Telemetry.ServiceName)
	setString("CODEATLAS_OTLP_ENDPOINT", &cfg.Telemetry.Endpoint)
}

// APIKey reads the oracle API key from the configured environment variable.
func (c OracleConfig) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}
