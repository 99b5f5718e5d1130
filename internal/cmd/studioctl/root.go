// Package studioctl implements the operator CLI: preloading a site from the
// terminal and managing asset cache generations.
package studioctl

import (
	"fmt"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/louisbranch/portfolio.studio/internal/platform/logging"
)

const envPrefix = "STUDIOCTL"

// Config is the merged flag, env and file configuration.
type Config struct {
	Site         string `mapstructure:"site"`
	CacheDB      string `mapstructure:"cache_db"`
	CacheVersion string `mapstructure:"cache_version"`
	LogLevel     string `mapstructure:"log_level"`
}

type app struct {
	v       *viper.Viper
	cfgFile string
}

// NewRootCommand returns the studioctl command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}
	root := &cobra.Command{
		Use:           "studioctl",
		Short:         "Operate the portfolio studio site",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.initConfig()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.studioctl.yaml)")
	root.PersistentFlags().String("log-level", "warn", "log level")
	root.PersistentFlags().String("cache-db", "", "asset cache database path")
	a.bind(root, "log_level", "log-level")
	a.bind(root, "cache_db", "cache-db")

	root.AddCommand(a.preloadCommand(), a.cacheCommand())
	return root
}

func (a *app) bind(cmd *cobra.Command, key, flag string) {
	f := cmd.PersistentFlags().Lookup(flag)
	if f == nil {
		f = cmd.Flags().Lookup(flag)
	}
	_ = a.v.BindPFlag(key, f)
}

func (a *app) initConfig() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return fmt.Errorf("find home directory: %w", err)
		}
		a.v.AddConfigPath(home)
		a.v.SetConfigName(".studioctl")
		a.v.SetConfigType("yaml")
	}
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		if _, missing := err.(viper.ConfigFileNotFoundError); !missing || a.cfgFile != "" {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func (a *app) config() (Config, error) {
	var cfg Config
	if err := a.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func (a *app) logger() (*zap.Logger, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	return logging.New(cfg.LogLevel)
}
