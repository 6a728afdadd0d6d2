package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// TOMLProvider implements ConfigProvider for TOML station files, one table
// per station keyed by station name. Keys are case-insensitive.
type TOMLProvider struct {
	filename string
	config   *ConfigData
}

// NewTOMLProvider creates a new TOML configuration provider
func NewTOMLProvider(filename string) *TOMLProvider {
	return &TOMLProvider{
		filename: filename,
	}
}

// LoadConfig reads and validates every station profile in the file
func (p *TOMLProvider) LoadConfig() (*ConfigData, error) {
	v := viper.New()
	v.SetConfigFile(p.filename)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("could not read station file %s: %w", p.filename, err)
	}

	cfg, err := decodeStations(v.AllSettings())
	if err != nil {
		return nil, err
	}
	p.config = cfg
	return cfg, nil
}

// GetStation returns one station profile, loading the file on first use
func (p *TOMLProvider) GetStation(name string) (*StationProfile, error) {
	if p.config == nil {
		if _, err := p.LoadConfig(); err != nil {
			return nil, err
		}
	}
	return p.config.Station(name)
}

// IsReadOnly returns true, TOML files are never written back
func (p *TOMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for file-backed providers
func (p *TOMLProvider) Close() error {
	return nil
}
