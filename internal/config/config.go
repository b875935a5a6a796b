package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
)

// Config represents the application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Email    EmailConfig    `mapstructure:"email"`
	IMAP     IMAPConfig     `mapstructure:"imap"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Campaign CampaignConfig `mapstructure:"campaign"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Debug   bool   `mapstructure:"debug"`
	BaseURL string `mapstructure:"base_url"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	WebhookSecret   string        `mapstructure:"webhook_secret"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	JWT struct {
		Secret         string        `mapstructure:"secret"`
		Issuer         string        `mapstructure:"issuer"`
		AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	} `mapstructure:"jwt"`
	Password struct {
		MinLength  int `mapstructure:"min_length"`
		BcryptCost int `mapstructure:"bcrypt_cost"`
	} `mapstructure:"password"`
}

type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
	SMTP     struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		TLS      bool   `mapstructure:"tls"`
	} `mapstructure:"smtp"`
	Templates struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"templates"`
}

// IMAPConfig drives the inbound mailbox poller. The environment names
// (IMAP_HOST, IMAP_USER, ...) are the deployment contract and bound in Load.
type IMAPConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	Secure         bool   `mapstructure:"secure"`
	Folder         string `mapstructure:"folder"`
	PollIntervalMS int    `mapstructure:"poll_interval_ms"`
}

type StorageConfig struct {
	Path        string   `mapstructure:"path"`
	PublicPath  string   `mapstructure:"public_path"`
	MaxSize     int64    `mapstructure:"max_size"`
	AllowedMIME []string `mapstructure:"allowed_mime"`
}

type CampaignConfig struct {
	BatchSize  int           `mapstructure:"batch_size"`
	BatchPause time.Duration `mapstructure:"batch_pause"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load initializes the configuration with hot reload support
func Load(configPath string) error {
	var err error
	once.Do(func() {
		v := viper.New()
		v.SetConfigType("yaml")
		v.SetConfigName("config")
		v.AddConfigPath(configPath)

		setDefaults(v)
		bindMailboxEnv(v)

		if readErr := v.ReadInConfig(); readErr != nil {
			if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok {
				err = fmt.Errorf("failed to read config: %w", readErr)
				return
			}
		}

		v.SetEnvPrefix("PHARMEAST")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		cfg = &Config{}
		if err = v.Unmarshal(cfg); err != nil {
			err = fmt.Errorf("failed to unmarshal config: %w", err)
			return
		}

		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			mu.Lock()
			defer mu.Unlock()
			newCfg := &Config{}
			if uerr := v.Unmarshal(newCfg); uerr != nil {
				fmt.Printf("Failed to reload config: %v\n", uerr)
				return
			}
			cfg = newCfg
		})
	})

	return err
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pharmeast")
	v.SetDefault("app.env", "development")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("auth.jwt.issuer", "pharmeast")
	v.SetDefault("auth.jwt.access_token_ttl", 12*time.Hour)
	v.SetDefault("auth.password.min_length", 8)
	v.SetDefault("auth.password.bcrypt_cost", 12)
	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.secure", true)
	v.SetDefault("imap.folder", "INBOX")
	v.SetDefault("imap.poll_interval_ms", 30000)
	v.SetDefault("storage.path", "./uploads")
	v.SetDefault("storage.public_path", "/uploads")
	v.SetDefault("storage.max_size", 10*1024*1024)
	v.SetDefault("campaign.batch_size", 50)
	v.SetDefault("campaign.batch_pause", 2*time.Second)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// bindMailboxEnv keeps the unprefixed IMAP_* variables working; operations
// configures the mailbox with these exact names.
func bindMailboxEnv(v *viper.Viper) {
	v.BindEnv("imap.enabled", "IMAP_ENABLED")
	v.BindEnv("imap.host", "IMAP_HOST")
	v.BindEnv("imap.port", "IMAP_PORT")
	v.BindEnv("imap.user", "IMAP_USER")
	v.BindEnv("imap.password", "IMAP_PASS")
	v.BindEnv("imap.secure", "IMAP_SECURE")
	v.BindEnv("imap.poll_interval_ms", "IMAP_POLL_INTERVAL_MS")
}

// Get returns the current configuration (thread-safe)
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// LoadFromFile loads configuration from a specific file (useful for testing)
func LoadFromFile(configFile string) error {
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")
	setDefaults(v)
	bindMailboxEnv(v)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis server address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetServerAddr returns the server listen address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PollInterval returns the mailbox poll interval with the 30s default.
func (c *IMAPConfig) PollInterval() time.Duration {
	if c.PollIntervalMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// Configured reports whether the poller has enough settings to run.
func (c *IMAPConfig) Configured() bool {
	return c.Enabled && c.Host != "" && c.User != "" && c.Password != ""
}

// IsProduction returns true if running in production mode
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}
