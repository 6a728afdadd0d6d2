package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML station files. The
// document layout mirrors the TOML schema: a mapping of station name to
// location, shortname and settings.
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}
	return y.parse(cfgFile)
}

func (y *YAMLProvider) parse(doc []byte) (*ConfigData, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(doc, &raw); err != nil {
		return nil, fmt.Errorf("could not parse station file %s: %w", y.filename, err)
	}

	cfg, err := decodeStations(raw)
	if err != nil {
		return nil, err
	}
	y.config = cfg
	return cfg, nil
}

// GetStation returns one station profile, loading the file on first use
func (y *YAMLProvider) GetStation(name string) (*StationProfile, error) {
	if y.config == nil {
		if _, err := y.LoadConfig(); err != nil {
			return nil, err
		}
	}
	return y.config.Station(name)
}

// IsReadOnly returns true as YAML files are read-only
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}
