// internal/config/config.go
package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel string `mapstructure:"LOG_LEVEL"`
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	DBURL    string `mapstructure:"DB_URL"`

	GithubAppID         int64  `mapstructure:"GITHUB_APP_ID"`
	GithubAppSlug       string `mapstructure:"GITHUB_APP_SLUG"`
	GithubPrivateKey    string `mapstructure:"GITHUB_PRIVATE_KEY"`
	GithubWebhookSecret string `mapstructure:"GITHUB_WEBHOOK_SECRET"`
	GithubAPIBaseURL    string `mapstructure:"GITHUB_API_BASE_URL"`

	OAuthClientID     string `mapstructure:"GITHUB_OAUTH_CLIENT_ID"`
	OAuthClientSecret string `mapstructure:"GITHUB_OAUTH_CLIENT_SECRET"`
	OAuthRedirectURL  string `mapstructure:"GITHUB_OAUTH_REDIRECT_URL"`
	StateTokenSecret  string `mapstructure:"STATE_TOKEN_SECRET"`

	AMQPURL     string `mapstructure:"AMQP_URL"`
	SyncQueue   string `mapstructure:"SYNC_QUEUE"`
	SyncWorkers int    `mapstructure:"SYNC_WORKERS"`

	KafkaBrokers   []string `mapstructure:"KAFKA_BROKERS"`
	KafkaUserTopic string   `mapstructure:"KAFKA_USER_TOPIC"`
	KafkaGroupID   string   `mapstructure:"KAFKA_GROUP_ID"`

	FrontendConnectedURL string `mapstructure:"FRONTEND_CONNECTED_URL"`
	FrontendErrorURL     string `mapstructure:"FRONTEND_ERROR_URL"`
	OAuthSuccessRedirect string `mapstructure:"OAUTH_SUCCESS_REDIRECT"`
	OAuthErrorRedirect   string `mapstructure:"OAUTH_ERROR_REDIRECT"`
}

// Load reads configuration from file and/or environment variables.
func Load() (*Config, error) {
	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("HTTP_ADDR", ":8084")
	viper.SetDefault("SYNC_QUEUE", "commit.fetch")
	viper.SetDefault("SYNC_WORKERS", 3)
	viper.SetDefault("KAFKA_USER_TOPIC", "user.created")
	viper.SetDefault("KAFKA_GROUP_ID", "project-service")
	viper.SetDefault("FRONTEND_CONNECTED_URL", "http://localhost:3000/projects/create?github=connected")
	viper.SetDefault("FRONTEND_ERROR_URL", "http://localhost:3000/projects/create?error=callback_failed")
	viper.SetDefault("OAUTH_SUCCESS_REDIRECT", "http://localhost:3000/projects?github=connected")
	viper.SetDefault("OAUTH_ERROR_REDIRECT", "http://localhost:3000/projects?github=oauth_error")

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.DBURL == "" {
		return nil, errors.New("DB_URL is a required configuration field")
	}
	if cfg.GithubAppID == 0 {
		return nil, errors.New("GITHUB_APP_ID is a required configuration field")
	}
	if cfg.GithubPrivateKey == "" {
		return nil, errors.New("GITHUB_PRIVATE_KEY is a required configuration field")
	}
	if cfg.GithubWebhookSecret == "" {
		return nil, errors.New("GITHUB_WEBHOOK_SECRET is a required configuration field")
	}
	if cfg.AMQPURL == "" {
		return nil, errors.New("AMQP_URL is a required configuration field")
	}
	if cfg.StateTokenSecret == "" {
		return nil, errors.New("STATE_TOKEN_SECRET is a required configuration field")
	}
	if cfg.SyncWorkers <= 0 {
		return nil, errors.New("SYNC_WORKERS must be a positive integer")
	}

	return &cfg, nil
}
