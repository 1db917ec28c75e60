package config

import (
	"encoding/json"
	"os"
)

type Config struct {
	Manifest             string `json:"manifest"`
	ReportDir            string `json:"report_dir"`
	LogFile              string `json:"log_file"`
	LogLevel             string `json:"log_level"`
	TaxonomyBaseURL      string `json:"taxonomy_base_url"`
	TaxonomyCachePath    string `json:"taxonomy_cache_path"`
	TaxonomyCacheTTLSecs int64  `json:"taxonomy_cache_ttl_seconds"`
	Offline              bool   `json:"offline"`
}

// LoadConfig loads a JSON config from the given path. If path is empty, looks for ./config.json.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}
	f, err := os.Open(path)
	if err != nil {
		// not fatal: return defaults
		return &Config{}, nil
	}
	defer f.Close()
	var c Config
	dec := json.NewDecoder(f)
	if err := dec.Decode(&c); err != nil {
		return nil, err
	}
	return &c, nil
}
