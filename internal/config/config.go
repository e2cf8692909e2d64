package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Reporting  ReportingConfig  `yaml:"reporting"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	Counters   CountersConfig   `yaml:"counters"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Rollup     RollupConfig     `yaml:"rollup"`
	Backfill   BackfillConfig   `yaml:"backfill"`
	GeoIP      GeoIPConfig      `yaml:"geoip"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type ReportingConfig struct {
	// Timezone is the single fixed timezone used for every daily window
	// and hour-of-day bucket, independent of where events originate.
	Timezone string `yaml:"timezone"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type CountersConfig struct {
	// Which distinct-count primitives the counter backend is allowed to
	// use. Fixed at startup; never probed per call.
	ApproxDistinct bool          `yaml:"approx_distinct"`
	ExactSets      bool          `yaml:"exact_sets"`
	IdentityTTL    time.Duration `yaml:"identity_ttl"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type ArchiveConfig struct {
	Dir string `yaml:"dir"`
}

type RollupConfig struct {
	Schedule string        `yaml:"schedule"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type BackfillConfig struct {
	MaxInFlight int           `yaml:"max_in_flight"`
	Timeout     time.Duration `yaml:"timeout"`
}

type GeoIPConfig struct {
	DatabasePath string `yaml:"database_path"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Reporting.Timezone == "" {
		cfg.Reporting.Timezone = "Asia/Kolkata"
	}
	if !cfg.Counters.ApproxDistinct && !cfg.Counters.ExactSets {
		cfg.Counters.ApproxDistinct = true
		cfg.Counters.ExactSets = true
	}
	if cfg.Counters.IdentityTTL == 0 {
		cfg.Counters.IdentityTTL = 7 * 24 * time.Hour
	}
	if cfg.Archive.Dir == "" {
		cfg.Archive.Dir = "archives/events"
	}
	if cfg.Rollup.Schedule == "" {
		cfg.Rollup.Schedule = "0 5 * * *"
	}
	if cfg.Rollup.LockTTL == 0 {
		cfg.Rollup.LockTTL = 30 * time.Minute
	}
	if cfg.Backfill.MaxInFlight == 0 {
		cfg.Backfill.MaxInFlight = 8
	}
	if cfg.Backfill.Timeout == 0 {
		cfg.Backfill.Timeout = 30 * time.Second
	}

	return &cfg, nil
}
