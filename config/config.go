package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"vela/exchange"
)

// Config is the server configuration, loaded from a YAML file with the
// environment overriding the file path via VELA_CONFIG.
type Config struct {
	Listen string `yaml:"listen"`

	DataDir     string `yaml:"dataDir"`
	SnapshotDir string `yaml:"snapshotDir"`
	JournalDir  string `yaml:"journalDir"`
	OutboxDir   string `yaml:"outboxDir"`
	TradeDB     string `yaml:"tradeDb"`

	Kafka struct {
		Brokers  []string      `yaml:"brokers"`
		Topic    string        `yaml:"topic"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"kafka"`

	SnapshotInterval time.Duration `yaml:"snapshotInterval"`

	// SelfTradePolicy is "allow" (default) or "cancel-taker".
	SelfTradePolicy string `yaml:"selfTradePolicy"`

	Assets []exchange.AssetSpec `yaml:"assets"`
	Pairs  []exchange.PairSpec  `yaml:"pairs"`

	// Seed funds accounts at startup for development setups.
	Seed []SeedBalance `yaml:"seed"`
}

type SeedBalance struct {
	UserID string          `yaml:"userId"`
	Asset  string          `yaml:"asset"`
	Amount decimal.Decimal `yaml:"amount"`
}

// Load reads .env, then the YAML config file, then applies defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	path := os.Getenv("VELA_CONFIG")
	if path == "" {
		path = "vela.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.SnapshotDir == "" {
		c.SnapshotDir = c.DataDir + "/snapshot"
	}
	if c.JournalDir == "" {
		c.JournalDir = c.DataDir + "/journal"
	}
	if c.OutboxDir == "" {
		c.OutboxDir = c.DataDir + "/outbox"
	}
	if c.TradeDB == "" {
		c.TradeDB = c.DataDir + "/trades.db"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "vela.events"
	}
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = time.Minute
	}
}
