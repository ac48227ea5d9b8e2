package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config holds all server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	JWT       JWTConfig       `yaml:"jwt"`
	Redis     RedisConfig     `yaml:"redis"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Inventory InventoryConfig `yaml:"inventory"`
}

// ServerConfig holds server-specific settings
type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	TickRate   int    `yaml:"tick_rate"` // Hz
	MaxPlayers int    `yaml:"max_players"`
	// Authority is false on nodes that only mirror inventories for
	// prediction; those refuse every mutating request.
	Authority *bool `yaml:"authority"`
}

// IsAuthority reports the effective authority flag (true when unset).
func (s ServerConfig) IsAuthority() bool {
	return s.Authority == nil || *s.Authority
}

// JWTConfig holds JWT authentication settings
type JWTConfig struct {
	Issuer              string `yaml:"issuer"`
	PublicKeyURL        string `yaml:"public_key_url"`
	PublicKeyRefreshHrs int    `yaml:"public_key_refresh_hours"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address         string `yaml:"address"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	BlacklistPrefix string `yaml:"blacklist_prefix"`
	SnapshotPrefix  string `yaml:"snapshot_prefix"`
}

// SQLiteConfig holds the snapshot database location
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig selects where container snapshots are persisted
type StorageConfig struct {
	Backend       string        `yaml:"backend"` // redis | sqlite | file
	Format        string        `yaml:"format"`  // json | msgpack
	Dir           string        `yaml:"dir"`     // file backend root
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// LoggingConfig holds zap logger settings
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"` // json | console
	Development bool   `yaml:"development"`
	OutputPath  string `yaml:"output_path"`
	Service     string `yaml:"service"`
}

// CatalogConfig points at the item definition file
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// ContainerPreset describes one container created for a new owner
type ContainerPreset struct {
	Name    string `yaml:"name"`
	Purpose string `yaml:"purpose"`
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
}

// InventoryConfig holds the container layouts handed to new owners
type InventoryConfig struct {
	Player []ContainerPreset `yaml:"player"`
	Crate  []ContainerPreset `yaml:"crate"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse decodes YAML configuration and fills defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Set defaults if not provided
	if cfg.Server.TickRate == 0 {
		cfg.Server.TickRate = 20
	}
	if cfg.Server.MaxPlayers == 0 {
		cfg.Server.MaxPlayers = 100
	}
	if cfg.JWT.PublicKeyRefreshHrs == 0 {
		cfg.JWT.PublicKeyRefreshHrs = 24
	}
	if cfg.Redis.BlacklistPrefix == "" {
		cfg.Redis.BlacklistPrefix = "jwt:blacklist:"
	}
	if cfg.Redis.SnapshotPrefix == "" {
		cfg.Redis.SnapshotPrefix = "inventory:"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "redis"
	}
	if cfg.Storage.Format == "" {
		cfg.Storage.Format = "msgpack"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "./data/inventories"
	}
	if cfg.Storage.FlushInterval == 0 {
		cfg.Storage.FlushInterval = 5 * time.Second
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = "./data/inventories.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if len(cfg.Inventory.Player) == 0 {
		cfg.Inventory.Player = []ContainerPreset{
			{Name: "backpack", Purpose: "backpack", Width: 6, Height: 4},
			{Name: "pocket_left", Purpose: "pockets", Width: 2, Height: 2},
			{Name: "pocket_right", Purpose: "pockets", Width: 2, Height: 2},
		}
	}
	if len(cfg.Inventory.Crate) == 0 {
		cfg.Inventory.Crate = []ContainerPreset{
			{Name: "storage", Purpose: "storage", Width: 8, Height: 6},
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "redis", "sqlite", "file":
	default:
		return errors.Newf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Storage.Format {
	case "json", "msgpack":
	default:
		return errors.Newf("unknown storage format %q", c.Storage.Format)
	}
	seen := make(map[string]bool)
	for _, p := range c.Inventory.Player {
		if p.Name == "" || p.Width < 1 || p.Height < 1 {
			return errors.Newf("invalid player container preset %+v", p)
		}
		if seen[p.Name] {
			return errors.Newf("duplicate player container preset %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}
