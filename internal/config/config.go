// Package config is the YAML configuration envelope for the moderation
// service. Every threshold in the pipeline defaults to its production
// value; the file only needs to name what it overrides.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/sentra/moderation/internal/mlscoring"
	"github.com/sentra/moderation/internal/moderation"
	"github.com/sentra/moderation/internal/stream"
	"github.com/sentra/moderation/internal/triage"
)

type Config struct {
	Server       ServerConfig         `yaml:"server"`
	Triage       triage.Config        `yaml:"triage"`
	ML           mlscoring.Thresholds `yaml:"ml"`
	Orchestrator moderation.Config    `yaml:"orchestrator"`
	Stream       stream.Config        `yaml:"stream"`
	Redis        RedisConfig          `yaml:"redis"`
	Postgres     PostgresConfig       `yaml:"postgres"`
	PubSub       PubSubConfig         `yaml:"pubsub"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type PubSubConfig struct {
	ProjectID string `yaml:"project_id"`
	TopicID   string `yaml:"topic_id"`
}

// DefaultConfig returns the full production parameter set.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Env:  "development",
		},
		Triage:       triage.DefaultConfig(),
		ML:           mlscoring.DefaultThresholds(),
		Orchestrator: moderation.DefaultConfig(),
		Stream:       stream.DefaultConfig(),
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "moderation:review:",
		},
		PubSub: PubSubConfig{
			TopicID: "moderation-decisions",
		},
	}
}

// LoadConfig reads a YAML file over the defaults. A missing file is not
// an error: the defaults stand.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

// normalize backfills zero values the YAML override may have clobbered.
func (c *Config) normalize() {
	d := moderation.DefaultConfig()
	if c.Orchestrator.TriageTimeout == 0 {
		c.Orchestrator.TriageTimeout = d.TriageTimeout
	}
	if c.Orchestrator.MLTimeout == 0 {
		c.Orchestrator.MLTimeout = d.MLTimeout
	}
	if c.Orchestrator.EndToEndTimeout == 0 {
		c.Orchestrator.EndToEndTimeout = d.EndToEndTimeout
	}

	s := stream.DefaultConfig()
	if c.Stream.AllowedLateness == 0 {
		c.Stream.AllowedLateness = s.AllowedLateness
	}
	if c.Stream.SweepEvery == 0 {
		c.Stream.SweepEvery = s.SweepEvery
	}
	if c.Stream.RecentHashCapacity == 0 {
		c.Stream.RecentHashCapacity = s.RecentHashCapacity
	}
	if c.Stream.DecisionBudget == 0 {
		c.Stream.DecisionBudget = 10 * time.Millisecond
	}
	if c.Triage.DuplicateCacheSize == 0 {
		c.Triage.DuplicateCacheSize = 10000
	}
}
