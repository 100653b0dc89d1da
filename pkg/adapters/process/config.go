package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProcessConfig describes one operation implemented by an external command.
type ProcessConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
	// Params maps parameter names to validator tags, e.g. "required,min=1".
	Params map[string]string `yaml:"params" json:"params"`
}

// ConfigFile represents the structure of operations.yaml.
type ConfigFile struct {
	Operations []ProcessConfig `yaml:"operations" json:"operations"`
}

// LoadOperations reads a configuration file (YAML or JSON) and returns the
// operations keyed by name. A missing file yields no operations.
func LoadOperations(path string) (map[string]ProcessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]ProcessConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read operations config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	ops := make(map[string]ProcessConfig)
	for _, op := range cfg.Operations {
		if op.Name == "" || op.Command == "" {
			continue
		}
		ops[op.Name] = op
	}
	return ops, nil
}
