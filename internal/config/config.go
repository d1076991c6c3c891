// Copyright 2025 Pathmapd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EnvConfigFile overrides the config file location; used for test
// isolation.
const EnvConfigFile = "PATHMAPD_CONFIG"

// Cassandra holds the index-store connection settings.
type Cassandra struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	Keyspace          string `yaml:"keyspace"`
	ReplicationFactor int    `yaml:"replication_factor"`
	ReconnectDelayMS  int64  `yaml:"reconnect_delay_ms"`
}

// GC holds the reclamation settings.
type GC struct {
	GracePeriodHours int `yaml:"grace_period_hours"`
}

// FileStore configures the file-tree physical store.
type FileStore struct {
	BaseDir string `yaml:"base_dir"`
}

// ObjectStore configures the object-store physical backend.
type ObjectStore struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Config is the top-level pathmapd configuration.
type Config struct {
	Cassandra   Cassandra   `yaml:"cassandra"`
	GC          GC          `yaml:"gc"`
	FileStore   FileStore   `yaml:"file_store"`
	ObjectStore ObjectStore `yaml:"object_store"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Cassandra: Cassandra{
			Host:              "localhost",
			Port:              9042,
			Keyspace:          "pathmapd",
			ReplicationFactor: 1,
			ReconnectDelayMS:  60000,
		},
		GC: GC{GracePeriodHours: 24},
	}
}

// DefaultPath returns the config file location, honoring the
// PATHMAPD_CONFIG override.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigFile); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pathmapd", "pathmapd.yaml")
}

// Load reads the config file at path, applying defaults for missing
// keys. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Cassandra.ReplicationFactor <= 0 {
		cfg.Cassandra.ReplicationFactor = 1
	}
	if cfg.Cassandra.ReconnectDelayMS <= 0 {
		cfg.Cassandra.ReconnectDelayMS = 60000
	}
	return cfg, nil
}
