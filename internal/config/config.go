// Package config loads the tool configuration: two tenant connections, the
// API pacing interval, and the local staging directories. Values come from
// backmig.yaml, the environment (BACKMIG_*), and an optional .env file for
// API keys that should stay out of the config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Tenant is one Backlog space connection.
type Tenant struct {
	Space      string `mapstructure:"space"`
	SiteJP     bool   `mapstructure:"site_jp"`
	APIKey     string `mapstructure:"api_key"`
	ProjectID  int64  `mapstructure:"project_id"`
	ProjectKey string `mapstructure:"project_key"`
}

// Config is the full tool configuration.
type Config struct {
	Source Tenant `mapstructure:"source"`
	Target Tenant `mapstructure:"target"`

	// APIIntervalMillis is the pause between remote calls.
	APIIntervalMillis int `mapstructure:"api_interval_millis"`

	DirDB              string `mapstructure:"dir_db"`
	DirAttachments     string `mapstructure:"dir_attachments"`
	DirWikiAttachments string `mapstructure:"dir_wiki_attachments"`
	DirSharedFiles     string `mapstructure:"dir_shared_files"`

	Debug bool `mapstructure:"debug"`
}

// APIInterval returns the pacing interval as a duration.
func (c *Config) APIInterval() time.Duration {
	return time.Duration(c.APIIntervalMillis) * time.Millisecond
}

// Load reads configuration from path (or ./backmig.yaml when empty). A
// missing config file is fine as long as the environment supplies the
// tenant settings; a malformed one is not.
func Load(path string) (*Config, error) {
	// .env is optional and only feeds the environment.
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("api_interval_millis", 1000)
	v.SetDefault("dir_db", "./backmig/db")
	v.SetDefault("dir_attachments", "./backmig/res/attachment")
	v.SetDefault("dir_wiki_attachments", "./backmig/res/wikiattachment")
	v.SetDefault("dir_shared_files", "./backmig/res/file")

	v.SetEnvPrefix("BACKMIG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("backmig")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings a migration phase cannot run without.
func (c *Config) Validate(needSource, needTarget bool) error {
	if needSource {
		if c.Source.Space == "" || c.Source.APIKey == "" || c.Source.ProjectID == 0 {
			return fmt.Errorf("config: source tenant requires space, api_key and project_id")
		}
	}
	if needTarget {
		if c.Target.Space == "" || c.Target.APIKey == "" || c.Target.ProjectID == 0 {
			return fmt.Errorf("config: target tenant requires space, api_key and project_id")
		}
	}
	return nil
}
