// Package core provides the fundamental building blocks of the patchwork ORM.
// This file loads the routing configuration consumed by the registry.
package core

import (
	"fmt"
	"os"

	"github.com/united-manufacturing-hub/umh-utils/env"
	"gopkg.in/yaml.v3"
)

// DefaultDatabaseEnv overrides Config.DefaultDatabase when set.
const DefaultDatabaseEnv = "PATCHWORK_DEFAULT_DATABASE"

// Config routes entity types to storage locations.
//
// Example:
//
//	defaultDatabase: app
//	entities:
//	  User:
//	    collection: users
//	  AuditEntry:
//	    database: audit
//	    collection: entries
type Config struct {
	DefaultDatabase string              `yaml:"defaultDatabase"`
	Entities        map[string]Location `yaml:"entities"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("core: reading config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses a YAML config and applies the environment override.
func ParseConfig(data []byte) (Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("core: parsing config: %w", err)
	}
	database, err := env.GetAsString(DefaultDatabaseEnv, false, config.DefaultDatabase)
	if err != nil {
		return Config{}, fmt.Errorf("core: reading %s: %w", DefaultDatabaseEnv, err)
	}
	config.DefaultDatabase = database
	if config.Entities == nil {
		config.Entities = make(map[string]Location)
	}
	return config, nil
}
