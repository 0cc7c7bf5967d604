package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tmt-csw/gocsw/internal/secrets"
)

// settings are the resolved global flags. Precedence is flag, then
// CSW_* environment variable, then config file, then flag default.
type settings struct {
	Socket        string `mapstructure:"socket"`
	URL           string `mapstructure:"url"`
	ComponentType string `mapstructure:"component-type"`
	ComponentName string `mapstructure:"component-name"`
	Prefix        string `mapstructure:"prefix"`
	NATSURL       string `mapstructure:"nats-url"`
	NATSToken     string `mapstructure:"nats-token"`
	Bucket        string `mapstructure:"bucket"`
}

func loadSettings(root *cobra.Command) (settings, error) {
	v := viper.New()
	if err := v.BindPFlags(root.PersistentFlags()); err != nil {
		return settings{}, err
	}

	v.SetConfigType("toml")
	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("cswctl")
		v.AddConfigPath("$HOME/.config/csw")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CSW")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Config file is optional.
	_ = v.ReadInConfig()

	if err := secrets.DecryptConfig(v); err != nil {
		return settings{}, err
	}

	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return s, err
	}
	return s, nil
}
