package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/scribble/go/internal/bridge"
	"github.com/mcdev12/scribble/go/internal/room"
)

// Config is the engine's YAML configuration. Every field has a sane default;
// the file and every key in it are optional.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Room   RoomConfig   `yaml:"room"`
	Bridge BridgeConfig `yaml:"bridge"`
}

type ServerConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

type RoomConfig struct {
	StalenessWindowSec int `yaml:"staleness_window_sec"`
	SweepIntervalSec   int `yaml:"sweep_interval_sec"`
	GracePeriodSec     int `yaml:"grace_period_sec"`
	MaxParticipants    int `yaml:"max_participants"`
}

type BridgeConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     "8080",
			LogLevel: "info",
		},
	}
}

// loadConfig reads the YAML config file and applies environment overrides. A
// missing file is not an error; defaults apply.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config.Server.Port = getEnv("PORT", config.Server.Port)
	config.Server.LogLevel = getEnv("LOG_LEVEL", config.Server.LogLevel)
	if url := os.Getenv("NATS_URL"); url != "" {
		config.Bridge.Enabled = true
		config.Bridge.URL = url
	}
	config.Room.MaxParticipants = getEnvAsInt("ROOM_MAX_PARTICIPANTS", config.Room.MaxParticipants)

	return config, nil
}

// RoomConfig converts the YAML section to the room package's config, falling
// back to its defaults for unset values.
func (c *Config) RoomConfig() room.Config {
	cfg := room.DefaultConfig()
	if c.Room.StalenessWindowSec > 0 {
		cfg.StalenessWindow = time.Duration(c.Room.StalenessWindowSec) * time.Second
	}
	if c.Room.SweepIntervalSec > 0 {
		cfg.SweepInterval = time.Duration(c.Room.SweepIntervalSec) * time.Second
	}
	if c.Room.GracePeriodSec > 0 {
		cfg.GracePeriod = time.Duration(c.Room.GracePeriodSec) * time.Second
	}
	if c.Room.MaxParticipants > 0 {
		cfg.MaxParticipants = c.Room.MaxParticipants
	}
	return cfg
}

// BridgeConfig converts the YAML section to the bridge package's config.
func (c *Config) BridgeConfig() bridge.Config {
	cfg := bridge.DefaultConfig()
	if c.Bridge.URL != "" {
		cfg.URL = c.Bridge.URL
	}
	if c.Bridge.SubjectPrefix != "" {
		cfg.SubjectPrefix = c.Bridge.SubjectPrefix
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
