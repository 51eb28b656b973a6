// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig            `yaml:"server"`
	Discord   DiscordConfig           `yaml:"discord"`
	Nodes     []NodeConfig            `yaml:"nodes" validate:"required,min=1,dive"`
	Player    PlayerConfig            `yaml:"player"`
	Autoplay  AutoplayConfig          `yaml:"autoplay"`
	Spotify   SpotifyConfig           `yaml:"spotify"`
	Store     StoreConfig             `yaml:"store"`
	Admission map[string]FilterConfig `yaml:"admission"` // Keyed by filter name
}

// ServerConfig represents the control API configuration.
type ServerConfig struct {
	Addr       string `yaml:"addr" default:":8080"`
	AdminToken string `yaml:"admin_token" validate:"required"`
}

// DiscordConfig represents the chat platform connection.
type DiscordConfig struct {
	Token string `yaml:"token" validate:"required"`
	// Outbound voice state updates per second, shared by every guild.
	VoiceRate  float64 `yaml:"voice_rate" default:"2" validate:"gt=0"`
	VoiceBurst int     `yaml:"voice_burst" default:"5" validate:"gte=1"`
}

// NodeConfig represents a single audio node.
type NodeConfig struct {
	Name          string        `yaml:"name" validate:"required"`
	Host          string        `yaml:"host" validate:"required"`
	Port          int           `yaml:"port" default:"2333" validate:"gt=0,lte=65535"`
	Password      string        `yaml:"password" validate:"required"`
	Secure        bool          `yaml:"secure"`
	Priority      int           `yaml:"priority" validate:"gte=0"`
	Regions       []string      `yaml:"regions"`
	RetryAmount   int           `yaml:"retry_amount" default:"5" validate:"gte=0"`
	RetryDelay    time.Duration `yaml:"retry_delay" default:"1s"`
	Resume        bool          `yaml:"resume"`
	ResumeTimeout time.Duration `yaml:"resume_timeout" default:"60s"`
}

// PlayerConfig represents the defaults of new players.
type PlayerConfig struct {
	DefaultVolume int              `yaml:"default_volume" default:"100" validate:"gte=0,lte=100"`
	HistorySize   int              `yaml:"history_size" default:"50" validate:"gte=1"`
	VoiceTimeout  time.Duration    `yaml:"voice_timeout" default:"15s"`
	SelfDeaf      *bool            `yaml:"self_deaf" default:"true"`
	Inactivity    InactivityConfig `yaml:"inactivity"`
}

// InactivityConfig represents automatic teardown delays. Zero disables a class.
type InactivityConfig struct {
	Idle       time.Duration `yaml:"idle" default:"5m"`
	Paused     time.Duration `yaml:"paused" default:"10m"`
	EmptyQueue time.Duration `yaml:"empty_queue" default:"3m"`
}

// AutoplayConfig represents the recommendation engine.
type AutoplayConfig struct {
	Enabled       bool             `yaml:"enabled"`
	Count         int              `yaml:"count" default:"5" validate:"gte=1,lte=50"`
	SearchPrefix  string           `yaml:"search_prefix" default:"ytsearch"`
	HistoryWindow int              `yaml:"history_window" default:"20" validate:"gte=0"`
	Providers     []ProviderConfig `yaml:"providers" validate:"required_if=Enabled true,dive"`
}

// ProviderConfig represents a single autoplay provider configuration.
type ProviderConfig struct {
	Type        string         `yaml:"type" validate:"required"`
	DisplayName string         `yaml:"display_name" validate:"required"`
	Settings    map[string]any `yaml:"settings"`
}

// FilterConfig represents an admission filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// IsFilterEnabled checks if an admission filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Admission[filterName]; ok {
		return f.Enabled
	}
	return false
}

// SpotifyConfig represents Spotify API configuration.
// Only required when a spotify autoplay provider is configured.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"US"`
}

// StoreConfig represents the player snapshot store.
type StoreConfig struct {
	Type         string         `yaml:"type" default:"memory" validate:"oneof=memory file sqlite"`
	KeyPrefix    string         `yaml:"key_prefix" default:"audiolink:"`
	TTL          time.Duration  `yaml:"ttl"`
	SaveInterval time.Duration  `yaml:"save_interval" default:"30s"`
	Settings     map[string]any `yaml:"settings"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse decodes, completes and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

func (c *Config) setDefaults() error {
	if err := defaults.Set(c); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	for i := range c.Nodes {
		if err := defaults.Set(&c.Nodes[i]); err != nil {
			return errors.Wrapf(err, "failed to set defaults of node %d", i)
		}
	}
	return nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.Server.AdminToken = v
	}
	if v := os.Getenv("LAVALINK_PASSWORD"); v != "" {
		for i := range c.Nodes {
			if c.Nodes[i].Password == "" {
				c.Nodes[i].Password = v
			}
		}
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		for i := range c.Autoplay.Providers {
			p := &c.Autoplay.Providers[i]
			if p.Type != "lastfm" {
				continue
			}
			if p.Settings == nil {
				p.Settings = make(map[string]any)
			}
			p.Settings["api_key"] = v
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	seen := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if seen[n.Name] {
			return errors.Newf("duplicate node name: %s", n.Name)
		}
		seen[n.Name] = true
	}

	if c.UsesProvider("spotify") && (c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "") {
		return errors.New("spotify provider requires spotify.client_id and spotify.client_secret")
	}

	return nil
}

// UsesProvider reports whether an autoplay provider of the given type is configured.
func (c *Config) UsesProvider(providerType string) bool {
	for _, p := range c.Autoplay.Providers {
		if p.Type == providerType {
			return true
		}
	}
	return false
}

// SelfDeafOrDefault returns the effective self-deaf default.
func (p PlayerConfig) SelfDeafOrDefault() bool {
	return p.SelfDeaf == nil || *p.SelfDeaf
}
