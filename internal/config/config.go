// Package config loads the typed configuration for the banking workflow
// engine from environment variables, with an optional YAML override file
// parsed with gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds every enumerated option from the external interfaces spec.
type Config struct {
	HIL struct {
		Threshold      float64 `yaml:"threshold"`
		LoanThreshold  float64 `yaml:"loan_threshold"`
		AutoApprove    bool    `yaml:"auto_approve"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`

		// TransferRule/LoanRule are optional boolean expressions over the
		// workflow state (e.g. "amount >= 2000 || needs_approval") that
		// replace the built-in threshold predicate of the corresponding
		// gate when set.
		TransferRule string `yaml:"transfer_rule"`
		LoanRule     string `yaml:"loan_rule"`
	} `yaml:"hil"`

	Confidence struct {
		Threshold float64 `yaml:"threshold"`
	} `yaml:"confidence"`

	Downstream struct {
		BaseURL   string `yaml:"base_url"`
		TimeoutMS int    `yaml:"timeout_ms"`
	} `yaml:"downstream"`

	Storage struct {
		Backend   string `yaml:"backend"` // embedded | shared-cache
		PathOrURL string `yaml:"path_or_url"`
	} `yaml:"storage"`

	Classifier struct {
		Backend string `yaml:"backend"` // rules | llm
		APIKey  string `yaml:"-"`
	} `yaml:"classifier"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Log struct {
		Format string `yaml:"format"` // text | json
	} `yaml:"log"`
}

// Default returns the configuration with every documented default.
func Default() *Config {
	c := &Config{}
	c.HIL.Threshold = 5000
	c.HIL.LoanThreshold = 10000
	c.HIL.AutoApprove = false
	c.HIL.TimeoutSeconds = 3600
	c.Confidence.Threshold = 0.80
	c.Downstream.TimeoutMS = 60000
	c.Storage.Backend = "embedded"
	c.Storage.PathOrURL = "bankflow.db"
	c.Classifier.Backend = "rules"
	c.Server.Addr = ":8080"
	c.Log.Format = "text"
	return c
}

// Load builds a Config starting from Default, applying a YAML file (if
// yamlPath is non-empty and exists), then applying BANKFLOW_-prefixed
// environment variables on top.
func Load(yamlPath string) (*Config, error) {
	c := Default()
	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	applyEnv(c)
	return c, nil
}

func applyEnv(c *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv("BANKFLOW_" + key); ok {
			*dst = v
		}
	}
	flt := func(key string, dst *float64) {
		if v, ok := os.LookupEnv("BANKFLOW_" + key); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	intg := func(key string, dst *int) {
		if v, ok := os.LookupEnv("BANKFLOW_" + key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv("BANKFLOW_" + key); ok {
			*dst = strings.EqualFold(v, "true") || v == "1"
		}
	}

	flt("HIL_THRESHOLD", &c.HIL.Threshold)
	flt("HIL_LOAN_THRESHOLD", &c.HIL.LoanThreshold)
	boolean("HIL_AUTO_APPROVE", &c.HIL.AutoApprove)
	intg("HIL_TIMEOUT_SECONDS", &c.HIL.TimeoutSeconds)
	str("HIL_TRANSFER_RULE", &c.HIL.TransferRule)
	str("HIL_LOAN_RULE", &c.HIL.LoanRule)
	flt("CONFIDENCE_THRESHOLD", &c.Confidence.Threshold)
	str("DOWNSTREAM_BASE_URL", &c.Downstream.BaseURL)
	intg("DOWNSTREAM_TIMEOUT_MS", &c.Downstream.TimeoutMS)
	str("STORAGE_BACKEND", &c.Storage.Backend)
	str("STORAGE_PATH_OR_URL", &c.Storage.PathOrURL)
	str("CLASSIFIER_BACKEND", &c.Classifier.Backend)
	str("CLASSIFIER_API_KEY", &c.Classifier.APIKey)
	str("SERVER_ADDR", &c.Server.Addr)
	str("LOG_FORMAT", &c.Log.Format)
}
