// Package config resolves the run configuration: defaults, then the YAML
// config file, then command-line flag overrides applied by the CLI layer.
// The merged document is validated against an embedded CUE schema before
// the engine sees it.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultFilename is the config file looked up inside --config-folder.
const DefaultFilename = "schemachange-config.yml"

// ContinueOnError holds the per-type continue-on-error flags.
// All implies the other three.
type ContinueOnError struct {
	All        bool `yaml:"all"`
	Versioned  bool `yaml:"versioned"`
	Repeatable bool `yaml:"repeatable"`
	Always     bool `yaml:"always"`
}

// Connection describes the target backend and the default session context
// scripts run under.
type Connection struct {
	Driver    string `yaml:"driver"`
	DSN       string `yaml:"dsn"`
	Role      string `yaml:"role"`
	Warehouse string `yaml:"warehouse"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
}

// Config is the resolved run configuration.
type Config struct {
	RootFolder               string          `yaml:"root-folder"`
	ModulesFolder            string          `yaml:"modules-folder"`
	Vars                     map[string]any  `yaml:"vars"`
	ChangeHistoryTable       string          `yaml:"change-history-table"`
	CreateChangeHistoryTable bool            `yaml:"create-change-history-table"`
	InitialDeployment        bool            `yaml:"initial-deployment"`
	DryRun                   bool            `yaml:"dry-run"`
	ContinueOnError          ContinueOnError `yaml:"continue-on-error"`
	QueryTagPrefix           string          `yaml:"query-tag"`
	Connection               Connection      `yaml:"connection"`
	Verbose                  bool            `yaml:"verbose"`
}

// Default returns the configuration used when no file or flags override it.
func Default() Config {
	return Config{
		RootFolder:         ".",
		ChangeHistoryTable: "CHANGE_HISTORY",
		Connection: Connection{
			Driver: "sqlite3",
		},
	}
}

// Load resolves the configuration from configFolder. A missing config
// file is not an error: defaults apply and flags may still override.
// The file, when present, is schema-validated before it is decoded, so a
// typoed key fails loudly instead of being silently ignored.
//
// The connection DSN supports ${ENV_VAR} expansion so credentials stay
// out of the config file.
func Load(configFolder string) (Config, error) {
	cfg := Default()

	path := filepath.Join(configFolder, DefaultFilename)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	// Validate the raw document against the CUE schema first: unknown
	// keys and wrong types are configuration mistakes, not data.
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := validateDocument(raw); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}

	cfg.Connection.DSN = os.ExpandEnv(cfg.Connection.DSN)
	return cfg, nil
}
