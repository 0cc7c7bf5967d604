package server

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/tmt-csw/gocsw/internal/assembly"
	"github.com/tmt-csw/gocsw/internal/dispatch"
	"github.com/tmt-csw/gocsw/internal/secrets"
	"github.com/tmt-csw/gocsw/pkg/eventservice"
	"github.com/tmt-csw/gocsw/pkg/protocol"
	"github.com/tmt-csw/gocsw/pkg/sockpath"
)

// Config is the top-level daemon configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Component ComponentConfig `mapstructure:"component"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Events    EventsConfig    `mapstructure:"events"`
	Web       WebConfig       `mapstructure:"web"`
	Log       LogConfig       `mapstructure:"log"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// ServerConfig holds the command server and control socket settings.
type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	Socket   string `mapstructure:"socket"`
	Metrics  bool   `mapstructure:"metrics"`
	Announce bool   `mapstructure:"announce"`
}

// ComponentConfig identifies the hosted component.
type ComponentConfig struct {
	Type   string        `mapstructure:"type"`
	Name   string        `mapstructure:"name"`
	Prefix string        `mapstructure:"prefix"`
	Step   time.Duration `mapstructure:"step"`
	// Script, when set, serves the component from a Lua file instead of
	// the built-in test assembly.
	Script        string        `mapstructure:"script"`
	ScriptTimeout time.Duration `mapstructure:"script_timeout"`
	// Retention is how long a finished runId stays queryable. Zero keeps
	// every runId.
	Retention time.Duration `mapstructure:"retention"`
}

// NATSConfig holds embedded or external NATS settings.
type NATSConfig struct {
	Embedded bool   `mapstructure:"embedded"`
	URL      string `mapstructure:"url"`
	DataDir  string `mapstructure:"data_dir"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Token    string `mapstructure:"token"`
}

// EventsConfig holds event service settings.
type EventsConfig struct {
	Bucket   string `mapstructure:"bucket"`
	History  uint8  `mapstructure:"history"`
	InMemory bool   `mapstructure:"in_memory"`
}

// WebConfig holds dashboard settings. An empty Listen disables it.
type WebConfig struct {
	Listen   string `mapstructure:"listen"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LoadConfig reads configuration from file, env, and flags.
func LoadConfig(cfgFile string) (Config, error) {
	v := viper.New()

	v.SetDefault("server.listen", "127.0.0.1:7654")
	v.SetDefault("server.socket", sockpath.DefaultSocketPath())
	v.SetDefault("server.metrics", true)
	v.SetDefault("server.announce", true)

	v.SetDefault("component.type", protocol.ComponentAssembly)
	v.SetDefault("component.name", "pycswTest")
	v.SetDefault("component.prefix", assembly.DefaultPrefix)
	v.SetDefault("component.step", time.Second)
	v.SetDefault("component.script_timeout", 5*time.Second)
	v.SetDefault("component.retention", dispatch.DefaultRetention)

	v.SetDefault("nats.embedded", true)
	homeDir, _ := os.UserHomeDir()
	v.SetDefault("nats.data_dir", filepath.Join(homeDir, ".local", "share", "csw", "nats"))

	v.SetDefault("events.bucket", eventservice.DefaultBucket)
	v.SetDefault("events.history", 1)

	v.SetDefault("web.listen", "127.0.0.1:7655")

	v.SetDefault("log.level", "info")

	v.SetConfigType("toml")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("csw")
		v.AddConfigPath("/etc/csw")
		v.AddConfigPath("$HOME/.config/csw")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CSW")
	v.AutomaticEnv()

	v.BindEnv("nats.token", "CSW_NATS_TOKEN")
	v.BindEnv("nats.url", "CSW_NATS_URL")
	v.BindEnv("server.listen", "CSW_SERVER_LISTEN")
	v.BindEnv("log.level", "CSW_LOG_LEVEL")
	v.BindEnv("web.username", "CSW_WEB_USERNAME")
	v.BindEnv("web.password", "CSW_WEB_PASSWORD")

	// Config file is optional.
	_ = v.ReadInConfig()

	if err := secrets.DecryptConfig(v); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if _, err := os.Stat(v.ConfigFileUsed()); err == nil {
		cfg.File = v.ConfigFileUsed()
	}
	return cfg, nil
}
