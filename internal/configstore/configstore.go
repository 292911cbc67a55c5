// Package configstore implements the ConfigStore capability as a YAML file
// under the `psn` namespace the original firmware used for its flash-backed
// preferences, persisted with gopkg.in/yaml.v3 instead of a flash driver.
package configstore

import (
	"context"
	"fmt"
	"os"

	"github.com/henryshunt/psn-node-go/internal/corestate"
	"gopkg.in/yaml.v3"
)

// document is the on-disk shape, keyed exactly as the original firmware's
// persisted configuration keys so an operator's YAML file reads the same as
// its NVS namespace dump.
type document struct {
	NetworkSSID       string `yaml:"nnam"`
	NetworkEnterprise bool   `yaml:"nent"`
	NetworkUsername   string `yaml:"nunm"`
	NetworkPassword   string `yaml:"npwd"`
	ServerAddress     string `yaml:"ladr"`
	ServerPort        uint16 `yaml:"lprt"`
	NetworkTimeout    uint8  `yaml:"tnet"`
	LoggerTimeout     uint8  `yaml:"tlog"`
}

func toConfiguration(d document) corestate.Configuration {
	return corestate.Configuration{
		NetworkSSID:        d.NetworkSSID,
		NetworkEnterprise:  d.NetworkEnterprise,
		NetworkUsername:    d.NetworkUsername,
		NetworkPassword:    d.NetworkPassword,
		ServerAddress:      d.ServerAddress,
		ServerPort:         d.ServerPort,
		NetworkTimeoutSecs: d.NetworkTimeout,
		LoggerTimeoutSecs:  d.LoggerTimeout,
	}
}

func fromConfiguration(c corestate.Configuration) document {
	return document{
		NetworkSSID:       c.NetworkSSID,
		NetworkEnterprise: c.NetworkEnterprise,
		NetworkUsername:   c.NetworkUsername,
		NetworkPassword:   c.NetworkPassword,
		ServerAddress:     c.ServerAddress,
		ServerPort:        c.ServerPort,
		NetworkTimeout:    c.NetworkTimeoutSecs,
		LoggerTimeout:     c.LoggerTimeoutSecs,
	}
}

// FileStore is a ConfigStore backed by a single YAML file. It implements
// corestate.ConfigStore.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore rooted at path. The file need not exist
// yet; Load reports an error until the first Save, which the orchestrator
// treats as cause to sleep permanently on cold boot.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads and validates the persisted configuration.
func (s *FileStore) Load(ctx context.Context) (corestate.Configuration, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return corestate.Configuration{}, fmt.Errorf("configstore: read %s: %w", s.path, err)
	}

	var d document
	if err := yaml.Unmarshal(data, &d); err != nil {
		return corestate.Configuration{}, fmt.Errorf("configstore: parse %s: %w", s.path, err)
	}

	cfg := toConfiguration(d)
	if err := cfg.Validate(); err != nil {
		return corestate.Configuration{}, fmt.Errorf("configstore: %w", err)
	}
	return cfg, nil
}

// Save validates and atomically replaces the persisted configuration
// (write-to-temp-then-rename, so a crash mid-write cannot corrupt the file a
// concurrent cold boot would read).
func (s *FileStore) Save(ctx context.Context, cfg corestate.Configuration) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configstore: %w", err)
	}

	data, err := yaml.Marshal(fromConfiguration(cfg))
	if err != nil {
		return fmt.Errorf("configstore: marshal: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("configstore: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("configstore: rename %s -> %s: %w", tmp, s.path, err)
	}
	return nil
}

var _ corestate.ConfigStore = (*FileStore)(nil)
