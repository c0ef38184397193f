package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Paths          Paths          `yaml:"paths"`
	Images         Images         `yaml:"images"`
	Streams        Streams        `yaml:"streams"`
	Classification Classification `yaml:"classification"`
	Output         Output         `yaml:"output"`
	Logging        Logging        `yaml:"logging"`
}

type Paths struct {
	ArchiveDir   string `yaml:"archive_dir"`
	HomepageFile string `yaml:"homepage_file"`
}

type Images struct {
	Dir                string        `yaml:"dir"`
	MinBytes           int64         `yaml:"min_bytes"`
	Timeout            time.Duration `yaml:"timeout"`
	UserAgent          string        `yaml:"user_agent"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	Files              []ImageFile   `yaml:"files"`
}

// ImageFile maps a local filename to the URL it is downloaded from.
type ImageFile struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type Streams struct {
	ConfigFile string `yaml:"config_file"`
	OutputFile string `yaml:"output_file"`
	APIKeyEnv  string `yaml:"api_key_env"`
	MaxResults int64  `yaml:"max_results"`
}

type Classification struct {
	Timezone        string         `yaml:"timezone"`
	DefaultCategory string         `yaml:"default_category"`
	Categories      []Category     `yaml:"categories"`
	FalsePositives  FalsePositives `yaml:"false_positives"`
}

// Category is one entry of the classification vocabulary. Categories are
// matched in the order they are listed.
type Category struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type FalsePositives struct {
	BlockedSources  []string `yaml:"blocked_sources"`
	ExcludeKeywords []string `yaml:"exclude_keywords"`
	Rules           []FPRule `yaml:"rules"`
}

// FPRule drops an item whose title hits one of Keywords, optionally only for
// the listed Sources, unless the title also contains one of Unless.
type FPRule struct {
	Keywords []string `yaml:"keywords"`
	Sources  []string `yaml:"sources"`
	Unless   []string `yaml:"unless"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for newsops.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "newsops")
}

// DataDir returns the XDG data directory for newsops.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "newsops")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/newsops/config.yaml > ./config.yaml.
// An empty path with a nil error means no file was found and the embedded
// defaults should be used.
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", nil
}

// Load reads and parses a config YAML file. An empty path loads the embedded
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return parse(DefaultConfigYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Paths: Paths{
			ArchiveDir:   "public/archive",
			HomepageFile: "public/data.json",
		},
		Images: Images{
			Dir:       "public/images/cities",
			MinBytes:  30000,
			Timeout:   20 * time.Second,
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		},
		Streams: Streams{
			ConfigFile: "scripts/stream_config.json",
			OutputFile: "public/live_data.json",
			APIKeyEnv:  "YOUTUBE_API_KEY",
			MaxResults: 50,
		},
		Classification: Classification{
			Timezone:        "Asia/Tokyo",
			DefaultCategory: "其他",
		},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields every job depends on.
func (c *Config) Validate() error {
	if c.Images.MinBytes < 0 {
		return fmt.Errorf("images.min_bytes cannot be negative")
	}
	if c.Images.Timeout <= 0 {
		return fmt.Errorf("images.timeout must be positive")
	}
	for i, f := range c.Images.Files {
		if f.Name == "" || f.URL == "" {
			return fmt.Errorf("images.files[%d]: name and url are required", i)
		}
		if filepath.Base(f.Name) != f.Name {
			return fmt.Errorf("images.files[%d]: name %q must be a bare filename", i, f.Name)
		}
	}
	if c.Streams.MaxResults <= 0 || c.Streams.MaxResults > 50 {
		return fmt.Errorf("streams.max_results must be between 1 and 50")
	}
	if c.Streams.APIKeyEnv == "" {
		return fmt.Errorf("streams.api_key_env is required")
	}
	if c.Classification.DefaultCategory == "" {
		return fmt.Errorf("classification.default_category is required")
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
