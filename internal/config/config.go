package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	AI       AI       `mapstructure:"ai"`
	Generate Generate `mapstructure:"generate"`
	Publish  Publish  `mapstructure:"publish"`
	Products Products `mapstructure:"products"`
	Logging  Logging  `mapstructure:"logging"`
}

// AI holds text-generation backend configuration
type AI struct {
	Relay  RelayConfig  `mapstructure:"relay"`
	Chat   ChatConfig   `mapstructure:"chat"`
	Router RouterConfig `mapstructure:"router"`
}

// RelayConfig holds configuration for the primary HTTP relay backend
type RelayConfig struct {
	URL        string `mapstructure:"url"`
	Timeout    string `mapstructure:"timeout"`
	MaxRetries int    `mapstructure:"max_retries"`
	RetryWait  string `mapstructure:"retry_wait"`
}

// ChatConfig holds configuration for the chat-completions fallback backend
type ChatConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	Model        string `mapstructure:"model"`
	KeysFile     string `mapstructure:"keys_file"`
	KeyCacheFile string `mapstructure:"key_cache_file"`
	Timeout      string `mapstructure:"timeout"`
}

// RouterConfig holds provider-router tunables
type RouterConfig struct {
	PacingDelay string `mapstructure:"pacing_delay"`
}

// Generate holds content-generation tunables
type Generate struct {
	MaxAttempts     int    `mapstructure:"max_attempts"`
	WaveConcurrency int    `mapstructure:"wave_concurrency"`
	CompletionDelay string `mapstructure:"completion_delay"`
	Intro           Intro  `mapstructure:"intro"`
}

// Intro holds the accepted word band for cleaned intro paragraphs
type Intro struct {
	MinWords int `mapstructure:"min_words"`
	MaxWords int `mapstructure:"max_words"`
}

// Publish holds WordPress publishing configuration
type Publish struct {
	SiteURL     string `mapstructure:"site_url"`
	Username    string `mapstructure:"username"`
	AppPassword string `mapstructure:"app_password"`
	AuthorID    int    `mapstructure:"author_id"`
	CategoryID  int    `mapstructure:"category_id"`
	Status      string `mapstructure:"status"`
}

// Products holds product source configuration
type Products struct {
	FixtureFile string `mapstructure:"fixture_file"`
	MaxCount    int    `mapstructure:"max_count"`
}

// Logging holds logging configuration
type Logging struct {
	Level string `mapstructure:"level"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	// Configure viper
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".postforge")
		viper.SetConfigType("yaml")
	}

	// Set defaults
	setDefaults()

	// Bind environment variables
	bindEnvironmentVariables()

	// Enable automatic environment variable reading
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal into struct
	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Apply post-processing
	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	// Relay backend defaults
	viper.SetDefault("ai.relay.url", "http://localhost:3001")
	viper.SetDefault("ai.relay.timeout", "120s")
	viper.SetDefault("ai.relay.max_retries", 3)
	viper.SetDefault("ai.relay.retry_wait", "10s")

	// Chat-completions backend defaults
	viper.SetDefault("ai.chat.base_url", "https://api.cerebras.ai/v1")
	viper.SetDefault("ai.chat.model", "gpt-oss-120b")
	viper.SetDefault("ai.chat.keys_file", "keys.txt")
	viper.SetDefault("ai.chat.key_cache_file", ".key_index")
	viper.SetDefault("ai.chat.timeout", "120s")

	// Router defaults
	viper.SetDefault("ai.router.pacing_delay", "3s")

	// Generation defaults
	viper.SetDefault("generate.max_attempts", 3)
	viper.SetDefault("generate.wave_concurrency", 2)
	viper.SetDefault("generate.completion_delay", "1s")
	viper.SetDefault("generate.intro.min_words", 40)
	viper.SetDefault("generate.intro.max_words", 140)

	// Publishing defaults
	viper.SetDefault("publish.status", "draft")
	viper.SetDefault("publish.author_id", 0)
	viper.SetDefault("publish.category_id", 0)

	// Product source defaults
	viper.SetDefault("products.fixture_file", "products.json")
	viper.SetDefault("products.max_count", 10)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	// Relay service URL - support multiple formats
	bindEnvKeys("ai.relay.url", []string{
		"CHAT_ZAI_API_URL",
		"RELAY_API_URL",
	})

	// Chat-completions backend
	bindEnvKeys("ai.chat.base_url", []string{
		"CEREBRAS_BASE_URL",
		"CHAT_BASE_URL",
	})

	bindEnvKeys("ai.chat.keys_file", []string{
		"CEREBRAS_KEYS_FILE",
		"CHAT_KEYS_FILE",
	})

	bindEnvKeys("ai.chat.model", []string{
		"CEREBRAS_MODEL",
	})

	// WordPress credentials
	bindEnvKeys("publish.site_url", []string{
		"WORDPRESS_SITE_URL",
		"WP_SITE_URL",
	})

	bindEnvKeys("publish.username", []string{
		"WORDPRESS_USERNAME",
		"WP_USERNAME",
	})

	bindEnvKeys("publish.app_password", []string{
		"WORDPRESS_APP_PASSWORD",
		"WP_APP_PASSWORD",
	})

	// General settings
	bindEnvKeys("logging.level", []string{
		"LOG_LEVEL",
		"POSTFORGE_LOG_LEVEL",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	// Expand paths
	if config.AI.Chat.KeysFile != "" {
		config.AI.Chat.KeysFile = expandPath(config.AI.Chat.KeysFile)
	}
	if config.AI.Chat.KeyCacheFile != "" {
		config.AI.Chat.KeyCacheFile = expandPath(config.AI.Chat.KeyCacheFile)
	}
	if config.Products.FixtureFile != "" {
		config.Products.FixtureFile = expandPath(config.Products.FixtureFile)
	}

	// Validate durations
	durations := map[string]string{
		"ai.relay.timeout":          config.AI.Relay.Timeout,
		"ai.relay.retry_wait":       config.AI.Relay.RetryWait,
		"ai.chat.timeout":           config.AI.Chat.Timeout,
		"ai.router.pacing_delay":    config.AI.Router.PacingDelay,
		"generate.completion_delay": config.Generate.CompletionDelay,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig ensures required configuration is present
func validateConfig(config *Config) error {
	var errors []string

	if config.AI.Relay.URL == "" {
		errors = append(errors, "relay URL is required. Set CHAT_ZAI_API_URL or ai.relay.url in config file")
	}

	if config.Generate.MaxAttempts < 1 {
		errors = append(errors, "generate.max_attempts must be at least 1")
	}

	if config.Generate.WaveConcurrency < 1 {
		errors = append(errors, "generate.wave_concurrency must be at least 1")
	}

	if config.Generate.Intro.MinWords >= config.Generate.Intro.MaxWords {
		errors = append(errors, "generate.intro.min_words must be below generate.intro.max_words")
	}

	// WordPress settings are validated together; leaving all empty disables publishing
	if config.Publish.SiteURL != "" || config.Publish.Username != "" || config.Publish.AppPassword != "" {
		if config.Publish.SiteURL == "" {
			errors = append(errors, "publish.site_url is required when publishing is configured")
		}
		if config.Publish.Username == "" {
			errors = append(errors, "publish.username is required when publishing is configured")
		}
		if config.Publish.AppPassword == "" {
			errors = append(errors, "publish.app_password is required when publishing is configured")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Convenience getters for commonly used configuration values
func GetAI() AI             { return Get().AI }
func GetGenerate() Generate { return Get().Generate }
func GetPublish() Publish   { return Get().Publish }
func GetProducts() Products { return Get().Products }
func GetLogging() Logging   { return Get().Logging }

// Duration helpers with defaults applied at load time

// TimeoutDuration returns the parsed relay request timeout.
func (r RelayConfig) TimeoutDuration() time.Duration { return parseDuration(r.Timeout, 120*time.Second) }

// RetryWaitDuration returns the parsed wait between relay retry attempts.
func (r RelayConfig) RetryWaitDuration() time.Duration {
	return parseDuration(r.RetryWait, 10*time.Second)
}

// TimeoutDuration returns the parsed chat request timeout.
func (c ChatConfig) TimeoutDuration() time.Duration { return parseDuration(c.Timeout, 120*time.Second) }

// PacingDelayDuration returns the parsed post-success pacing delay.
func (r RouterConfig) PacingDelayDuration() time.Duration {
	return parseDuration(r.PacingDelay, 3*time.Second)
}

// CompletionDelayDuration returns the parsed inter-completion scheduler delay.
func (g Generate) CompletionDelayDuration() time.Duration {
	return parseDuration(g.CompletionDelay, time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
