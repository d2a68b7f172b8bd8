package komida

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/komidabot/komida/fetch"
	"github.com/komidabot/komida/menu"
)

// Config holds all configuration for the komida engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.komida/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "menu".
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set: "home" (default) uses ~/.komida/, "local"
	// uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// Campuses lists the campuses whose menus are known.
	Campuses []Campus `json:"campuses" yaml:"campuses"`

	// DefaultCampus answers queries that name no campus.
	DefaultCampus string `json:"default_campus" yaml:"default_campus"`

	// Layout tables
	LayoutVersion string `json:"layout_version" yaml:"layout_version"` // empty selects the newest
	LayoutPath    string `json:"layout_path" yaml:"layout_path"`       // optional extra table file

	// Locale of the menu documents
	Locale     string `json:"locale" yaml:"locale"`
	LocalePath string `json:"locale_path" yaml:"locale_path"` // overrides Locale

	// StalenessDays is how far the last day of a menu week may lie after
	// today before the document is rejected.
	StalenessDays int `json:"staleness_days" yaml:"staleness_days"`

	// Fetching
	BaseURL      string `json:"base_url" yaml:"base_url"`
	FetchTimeout int    `json:"fetch_timeout" yaml:"fetch_timeout"` // seconds
	UserAgent    string `json:"user_agent" yaml:"user_agent"`

	// Concurrency caps the number of campus pipelines run at once.
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// Schedule is the cron spec of the background refresh in serve mode.
	Schedule string `json:"schedule" yaml:"schedule"`
}

// Campus describes one campus restaurant.
type Campus struct {
	Code    string   `json:"code" yaml:"code"`
	Heading string   `json:"heading" yaml:"heading"` // <h2> text on the week menu page
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`

	// Refresh includes the campus in scheduled refreshes.
	Refresh bool `json:"refresh" yaml:"refresh"`
}

// DefaultConfig returns a Config for the university's four campus
// restaurants. Database is stored in ~/.komida/menu.db by default.
func DefaultConfig() Config {
	return Config{
		DBName:     "menu",
		StorageDir: "home",
		Campuses: []Campus{
			{Code: "cde", Heading: "Campus Drie Eiken", Aliases: []string{"drie eiken"}, Refresh: true},
			{Code: "cgb", Heading: "Campus Groenenborger", Aliases: []string{"groenenborger"}},
			{Code: "cmi", Heading: "Campus Middelheim", Aliases: []string{"middelheim"}, Refresh: true},
			{Code: "cst", Heading: "Stadscampus", Aliases: []string{"stad", "city"}, Refresh: true},
		},
		DefaultCampus: "cmi",
		Locale:        "nl",
		StalenessDays: menu.DefaultWindow,
		BaseURL:       fetch.DefaultBaseURL,
		FetchTimeout:  30,
		UserAgent:     "komida/1.0",
		Concurrency:   4,
		Schedule:      "@hourly",
	}
}

// LoadConfig reads a YAML or JSON config file on top of DefaultConfig.
// The format follows the file extension; anything but .json is YAML.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if len(c.Campuses) == 0 {
		return fmt.Errorf("%w: no campuses", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Campuses))
	for _, cp := range c.Campuses {
		if cp.Code == "" {
			return fmt.Errorf("%w: campus without code", ErrInvalidConfig)
		}
		if seen[cp.Code] {
			return fmt.Errorf("%w: duplicate campus %q", ErrInvalidConfig, cp.Code)
		}
		seen[cp.Code] = true
	}
	if c.DefaultCampus != "" && !seen[c.DefaultCampus] {
		return fmt.Errorf("%w: default campus %q is not configured", ErrInvalidConfig, c.DefaultCampus)
	}
	if c.StalenessDays < 0 {
		return fmt.Errorf("%w: staleness_days must not be negative", ErrInvalidConfig)
	}
	if c.Locale == "" && c.LocalePath == "" {
		return fmt.Errorf("%w: no locale", ErrInvalidConfig)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("%w: concurrency must not be negative", ErrInvalidConfig)
	}
	return nil
}

// campus returns the configured campus with the given code.
func (c *Config) campus(code string) (Campus, bool) {
	for _, cp := range c.Campuses {
		if cp.Code == code {
			return cp, true
		}
	}
	return Campus{}, false
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "menu"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db"
		}
		return filepath.Join(home, ".komida", name+".db")
	}
}
