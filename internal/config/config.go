package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds tool-wide settings. All fields have working defaults; the
// YAML file and environment are overlays.
type Config struct {
	Store struct {
		// Path overrides the per-repo default (<repo>/.routelens/index.db).
		Path string `yaml:"path"`
	} `yaml:"store"`
	Scan struct {
		MaxFiles     int   `yaml:"max_files"`
		MaxFileBytes int64 `yaml:"max_file_bytes"`
	} `yaml:"scan"`
}

// Load reads configuration in three layers: defaults, an optional YAML file,
// then environment variables (a .env file is loaded first if present).
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.Scan.MaxFileBytes = 2_000_000

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if v := os.Getenv("ROUTELENS_DB"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("ROUTELENS_MAX_FILE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Scan.MaxFileBytes = n
		}
	}
	if v := os.Getenv("ROUTELENS_MAX_FILES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Scan.MaxFiles = n
		}
	}

	return cfg, nil
}
