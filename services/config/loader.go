// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

var validate = validator.New()

// Load reads the configuration.
//
// Description:
//
//	Starts from Default(), overlays the YAML file at path and then the
//	environment (see ApplyEnv). An empty path, or DefaultFile when it does
//	not exist, means defaults only. Validation is left to the caller so
//	command-line flags can be applied first.
//
// Inputs:
//
//	path - The YAML file, or "".
//
// Outputs:
//
//	Config - The merged configuration.
//	error - The file could not be read or parsed.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && filepath.Base(path) == DefaultFile:
		default:
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// ApplyEnv overlays the environment variables existing deployments
// used. Unset or empty variables leave the value alone.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Oracle.APIKey, "OPENAI_API_KEY")
	set(&c.Oracle.BaseURL, "OPENAI_API_BASE")
	set(&c.Oracle.Model, "OPENAI_MODEL")
	set(&c.Python.Interpreter, "USER_PYTHON_PATH")
	set(&c.Embedding.URL, "EMBEDDING_SERVICE_URL")
	set(&c.Embedding.Model, "EMBEDDING_MODEL")
	set(&c.Logging.Level, "TESTSYNTH_LOG_LEVEL")
	set(&c.Sinks.Influx.URL, "INFLUXDB_URL")
	set(&c.Sinks.Influx.Token, "INFLUXDB_TOKEN")
	set(&c.Sinks.Influx.Org, "INFLUXDB_ORG")
	set(&c.Sinks.Influx.Bucket, "INFLUXDB_BUCKET")
	set(&c.Sinks.GCS.Bucket, "TESTSYNTH_GCS_BUCKET")
	set(&c.Sinks.GCS.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	if host := strings.TrimSpace(getenv("WEAVIATE_HOST")); host != "" {
		c.Retrieval.WeaviateHost = host
		c.Retrieval.Backend = "weaviate"
	}
	if v := strings.TrimSpace(getenv("TESTSYNTH_WORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Project.Workers = n
		}
	}
}

// Validate checks the configuration, including the project paths.
func (c *Config) Validate() error {
	if c.Project.Root == "" || c.Project.SourceDir == "" {
		return fmt.Errorf("%w: project root and source dir are required", ErrInvalid)
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	info, err := os.Stat(filepath.Join(c.Project.Root, c.Project.SourceDir))
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: source dir %s is not a directory under %s", ErrInvalid, c.Project.SourceDir, c.Project.Root)
	}
	return nil
}
