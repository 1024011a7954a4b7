// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment overrides. Key levels are separated by a
// double underscore: PREMERGE_ANALYSIS__CACHE_TTL=2m.
const EnvPrefix = "PREMERGE_"

// DefaultPaths are tried in order when no config file is given.
var DefaultPaths = []string{"premerge.toml", ".premerge/config.toml"}

type Config struct {
	Environment string `koanf:"environment"` // development, production
	LogLevel    string `koanf:"log_level"`   // debug, info, warn, error

	Server struct {
		Host string `koanf:"host"`
		Port int    `koanf:"port"`
	} `koanf:"server"`

	Database struct {
		Path string `koanf:"path"`
	} `koanf:"database"`

	Analysis Analysis `koanf:"analysis"`
}

type Analysis struct {
	TrackedBranches []string      `koanf:"tracked_branches"`
	Backend         string        `koanf:"backend"`        // git, gogit
	DiffAlgorithm   string        `koanf:"diff_algorithm"` // lcs, myers
	CacheTTL        time.Duration `koanf:"cache_ttl"`
	CacheSize       int           `koanf:"cache_size"`
	CacheBase       bool          `koanf:"cache_base"`
	PersistentCache bool          `koanf:"persistent_cache"`
	DebounceDelay   time.Duration `koanf:"debounce_delay"`
	MaxParallel     int           `koanf:"max_parallel"`
	GitTimeout      time.Duration `koanf:"git_timeout"`
	CoalesceRegions bool          `koanf:"coalesce_regions"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"environment":               "development",
		"log_level":                 "info",
		"server.host":               "127.0.0.1",
		"server.port":               7717,
		"database.path":             ".premerge/db",
		"analysis.tracked_branches": []string{"main", "develop"},
		"analysis.backend":          "git",
		"analysis.diff_algorithm":   "lcs",
		"analysis.cache_ttl":        "5m",
		"analysis.cache_size":       512,
		"analysis.cache_base":       true,
		"analysis.persistent_cache": true,
		"analysis.debounce_delay":   "1500ms",
		"analysis.max_parallel":     4,
		"analysis.git_timeout":      "10s",
		"analysis.coalesce_regions": false,
	}
}

// Default returns the built-in configuration, ignoring files and environment.
func Default() *Config {
	k := koanf.New(".")
	k.Load(confmap.Provider(defaults(), "."), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		panic(fmt.Sprintf("built-in configuration is invalid: %v", err))
	}
	return &cfg
}

// Load layers defaults, a TOML file and PREMERGE_ environment variables.
// An explicit path must exist; without one the DefaultPaths are tried.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	} else {
		for _, p := range DefaultPaths {
			if _, err := os.Stat(p); err != nil {
				continue
			}
			if err := k.Load(file.Provider(p), toml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config %s: %w", p, err)
			}
			break
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	a := c.Analysis
	switch a.Backend {
	case "git", "gogit":
	default:
		return fmt.Errorf("analysis.backend must be git or gogit, got %q", a.Backend)
	}
	switch a.DiffAlgorithm {
	case "lcs", "myers":
	default:
		return fmt.Errorf("analysis.diff_algorithm must be lcs or myers, got %q", a.DiffAlgorithm)
	}

	for name, d := range map[string]time.Duration{
		"analysis.cache_ttl":      a.CacheTTL,
		"analysis.debounce_delay": a.DebounceDelay,
		"analysis.git_timeout":    a.GitTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if a.CacheSize <= 0 {
		return fmt.Errorf("analysis.cache_size must be positive, got %d", a.CacheSize)
	}
	if a.MaxParallel <= 0 {
		return fmt.Errorf("analysis.max_parallel must be positive, got %d", a.MaxParallel)
	}
	return nil
}

// Addr is the daemon listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// InitConfig writes a starter configuration file.
func InitConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists at %s", path)
	}

	sample := `# premerge configuration
log_level = "info"

[server]
host = "127.0.0.1"
port = 7717

[analysis]
tracked_branches = ["main", "develop"]
backend = "git"
diff_algorithm = "lcs"
cache_ttl = "5m"
debounce_delay = "1500ms"
`

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return os.WriteFile(path, []byte(sample), 0644)
}
