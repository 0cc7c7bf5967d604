package mcp

import (
	"github.com/spf13/viper"

	"github.com/tmt-csw/gocsw/internal/assembly"
	"github.com/tmt-csw/gocsw/internal/secrets"
	"github.com/tmt-csw/gocsw/pkg/eventservice"
	"github.com/tmt-csw/gocsw/pkg/protocol"
	"github.com/tmt-csw/gocsw/pkg/sockpath"
)

// Config holds all configuration for the MCP server.
type Config struct {
	NATS      NATSConfig      `mapstructure:"nats"`
	Daemon    DaemonConfig    `mapstructure:"daemon"`
	Component ComponentConfig `mapstructure:"component"`
	Events    EventsConfig    `mapstructure:"events"`
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

// DaemonConfig holds settings for connecting to the cswd daemon API.
type DaemonConfig struct {
	Socket string `mapstructure:"socket"`
}

// ComponentConfig addresses the component commands are sent to.
type ComponentConfig struct {
	URL    string `mapstructure:"url"`
	Type   string `mapstructure:"type"`
	Name   string `mapstructure:"name"`
	Prefix string `mapstructure:"prefix"`
}

// EventsConfig names the event service bucket.
type EventsConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// LoadConfig reads the MCP server configuration from file, env vars, and defaults.
func LoadConfig(cfgFile string) (Config, error) {
	v := viper.New()

	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("daemon.socket", sockpath.DefaultSocketPath())
	v.SetDefault("component.url", "http://127.0.0.1:7654")
	v.SetDefault("component.type", protocol.ComponentAssembly)
	v.SetDefault("component.name", "pycswTest")
	v.SetDefault("component.prefix", assembly.DefaultPrefix)
	v.SetDefault("events.bucket", eventservice.DefaultBucket)

	v.SetConfigType("toml")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("csw-mcp")
		v.AddConfigPath("/etc/csw")
		v.AddConfigPath("$HOME/.config/csw")
		v.AddConfigPath(".")
	}

	v.BindEnv("nats.url", "CSW_NATS_URL")
	v.BindEnv("nats.token", "CSW_NATS_TOKEN")
	v.BindEnv("daemon.socket", "CSW_DAEMON_SOCKET")
	v.BindEnv("component.url", "CSW_COMPONENT_URL")

	_ = v.ReadInConfig() // config file is optional

	if err := secrets.DecryptConfig(v); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
