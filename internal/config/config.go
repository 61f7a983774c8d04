// Package config loads taskhub configuration from defaults, an optional YAML
// file, .env files and TASKHUB_* environment variables, in increasing order
// of precedence. Command-line flags are bound on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. TASKHUB_CLIENT_HUB_URL.
const EnvPrefix = "TASKHUB"

// Config holds the whole taskhub configuration.
type Config struct {
	Log    Log
	Client Client
	Hub    Hub

	// ConfigFile is the file the values were read from, if any.
	ConfigFile string
}

// Log configures the zerolog logger.
type Log struct {
	Level   string
	Format  string
	Output  string
	NoColor bool
}

// Client configures the realtime client.
type Client struct {
	HubURL string
	Token  string

	BackoffBase       time.Duration
	BackoffMax        time.Duration
	MaxAttempts       int
	HeartbeatInterval time.Duration
	// HeartbeatFailureLimit forces a reconnect after that many consecutive
	// heartbeat failures. Zero only logs them.
	HeartbeatFailureLimit int
	// QueueCapacity bounds the outbound queue. Zero is unbounded.
	QueueCapacity int

	// JournalPath enables the SQLite event journal when set.
	JournalPath  string
	JournalKeep  int
	DesktopNotes bool
}

// Hub configures the development hub.
type Hub struct {
	Host           string
	Port           int
	DBPath         string
	AllowAnonymous bool
	CORSEnabled    bool

	ShutdownTimeout time.Duration
}

// Addr returns host:port.
func (h Hub) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// SetDefaults registers every key with its default so environment overrides
// are picked up by AutomaticEnv.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.no_color", false)

	v.SetDefault("client.hub_url", "http://localhost:8080/hub")
	v.SetDefault("client.token", "")
	v.SetDefault("client.backoff_base", time.Second)
	v.SetDefault("client.backoff_max", 30*time.Second)
	v.SetDefault("client.max_attempts", 5)
	v.SetDefault("client.heartbeat_interval", 30*time.Second)
	v.SetDefault("client.heartbeat_failure_limit", 0)
	v.SetDefault("client.queue_capacity", 0)
	v.SetDefault("client.journal_path", "")
	v.SetDefault("client.journal_keep", 10000)
	v.SetDefault("client.desktop_notifications", false)

	v.SetDefault("hub.host", "localhost")
	v.SetDefault("hub.port", 8080)
	v.SetDefault("hub.db_path", "data/hub.db")
	v.SetDefault("hub.allow_anonymous", false)
	v.SetDefault("hub.cors_enabled", true)
	v.SetDefault("hub.shutdown_timeout", 10*time.Second)
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadEnvFiles loads .env and .env.local when present. Existing environment
// variables win.
func LoadEnvFiles(files ...string) {
	if len(files) == 0 {
		files = []string{".env", ".env.local"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// Load reads configFile, or .taskhub.yaml from the working and home
// directories when empty, into v and decodes the result. A missing default
// file is not an error; a missing explicit file is.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(".taskhub")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := Decode(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode builds a Config from v without validating it.
func Decode(v *viper.Viper) *Config {
	return &Config{
		Log: Log{
			Level:   v.GetString("log.level"),
			Format:  v.GetString("log.format"),
			Output:  v.GetString("log.output"),
			NoColor: v.GetBool("log.no_color"),
		},
		Client: Client{
			HubURL:                v.GetString("client.hub_url"),
			Token:                 v.GetString("client.token"),
			BackoffBase:           v.GetDuration("client.backoff_base"),
			BackoffMax:            v.GetDuration("client.backoff_max"),
			MaxAttempts:           v.GetInt("client.max_attempts"),
			HeartbeatInterval:     v.GetDuration("client.heartbeat_interval"),
			HeartbeatFailureLimit: v.GetInt("client.heartbeat_failure_limit"),
			QueueCapacity:         v.GetInt("client.queue_capacity"),
			JournalPath:           v.GetString("client.journal_path"),
			JournalKeep:           v.GetInt("client.journal_keep"),
			DesktopNotes:          v.GetBool("client.desktop_notifications"),
		},
		Hub: Hub{
			Host:            v.GetString("hub.host"),
			Port:            v.GetInt("hub.port"),
			DBPath:          v.GetString("hub.db_path"),
			AllowAnonymous:  v.GetBool("hub.allow_anonymous"),
			CORSEnabled:     v.GetBool("hub.cors_enabled"),
			ShutdownTimeout: v.GetDuration("hub.shutdown_timeout"),
		},
		ConfigFile: v.ConfigFileUsed(),
	}
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch {
	case c.Client.HubURL == "":
		return errors.New("client.hub_url is required")
	case c.Client.BackoffBase <= 0:
		return fmt.Errorf("client.backoff_base must be positive, got %s", c.Client.BackoffBase)
	case c.Client.BackoffMax < c.Client.BackoffBase:
		return fmt.Errorf("client.backoff_max (%s) is below client.backoff_base (%s)", c.Client.BackoffMax, c.Client.BackoffBase)
	case c.Client.MaxAttempts < 0:
		return fmt.Errorf("client.max_attempts must not be negative, got %d", c.Client.MaxAttempts)
	case c.Client.QueueCapacity < 0:
		return fmt.Errorf("client.queue_capacity must not be negative, got %d", c.Client.QueueCapacity)
	case c.Hub.Port <= 0 || c.Hub.Port > 65535:
		return fmt.Errorf("hub.port out of range: %d", c.Hub.Port)
	}
	return nil
}
