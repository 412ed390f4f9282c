package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// expandEnvVars expands environment variables in the format ${VAR} or $VAR
// Uses Go's built-in os.ExpandEnv which is the idiomatic way to handle this
func expandEnvVars(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}

// WebServerConfig represents the web server configuration
type WebServerConfig struct {
	Server      HTTPServer     `yaml:"server"`
	Database    DatabaseConfig `yaml:"database"`
	OAuth       OAuthConfig    `yaml:"oauth"`
	Session     SessionConfig  `yaml:"session"`
	App         AppConfig      `yaml:"app"`
	Logging     LoggingConfig  `yaml:"logging"`
	Environment string         `yaml:"environment" default:"local"` // local, dev, prod
}

// HTTPServer holds HTTP server configuration
type HTTPServer struct {
	Host        string `yaml:"host" default:"localhost"`
	Port        int    `yaml:"port" default:"8080"`
	MetricsPort int    `yaml:"metrics_port" default:"0"` // 0 means Port+10
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific configuration
type PostgresConfig struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"5432"`
	Database string `yaml:"database" default:"skillacademy"`
	User     string `yaml:"user" default:"postgres"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode" default:"disable"` // disable, require, verify-ca, verify-full
}

// OAuthConfig holds the SecondMe OAuth application configuration.
// Client id and secret are deliberately not validated here; a missing id
// surfaces as a provider-side error during login.
type OAuthConfig struct {
	AuthorizationURL string   `yaml:"authorization_url" default:"https://go.second.me/oauth/"`
	TokenEndpoint    string   `yaml:"token_endpoint" default:"https://app.mindos.com/gate/lab/api/oauth/token"`
	RefreshEndpoint  string   `yaml:"refresh_endpoint" default:"https://app.mindos.com/gate/lab/api/oauth/token/refresh"`
	APIBaseURL       string   `yaml:"api_base_url" default:"https://app.mindos.com/gate/lab"`
	ClientID         string   `yaml:"client_id"`
	ClientSecret     string   `yaml:"client_secret"`
	RedirectURI      string   `yaml:"redirect_uri" default:"http://localhost:8080/callback"`
	Scopes           []string `yaml:"scopes"`
}

// SessionConfig holds session configuration
type SessionConfig struct {
	Secret string `yaml:"secret"` // 32-byte base64-encoded string
}

// AppConfig holds the front-end redirect targets
type AppConfig struct {
	HomeURL      string `yaml:"home_url" default:"/"`
	DashboardURL string `yaml:"dashboard_url" default:"/dashboard"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" default:"info"`  // Log level: debug, info, warn, error
	Format string `yaml:"format" default:"json"` // Log format: json, text
}

// DefaultScopes are requested from SecondMe when none are configured
var DefaultScopes = []string{"user.info", "user.info.shades", "user.info.softmemory"}

// DefaultConfigPaths defines the default locations to search for web configuration files
var DefaultConfigPaths = []string{
	"./config.yaml",
	"./config.yml",
	"./configs/web.yaml",
	"./configs/web.yml",
	"./configs/development.yaml",
	"/etc/skillacademy/config.yaml",
	"/etc/skillacademy/config.yml",
}

// Load loads the web server configuration from the specified file or default locations
func Load(configPath string) (*WebServerConfig, error) {
	// Set default values
	config := &WebServerConfig{
		Server: HTTPServer{
			Host: "localhost",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "skillacademy",
				User:     "postgres",
				SSLMode:  "disable",
			},
		},
		OAuth: OAuthConfig{
			AuthorizationURL: "https://go.second.me/oauth/",
			TokenEndpoint:    "https://app.mindos.com/gate/lab/api/oauth/token",
			RefreshEndpoint:  "https://app.mindos.com/gate/lab/api/oauth/token/refresh",
			APIBaseURL:       "https://app.mindos.com/gate/lab",
			RedirectURI:      "http://localhost:8080/callback",
		},
		App: AppConfig{
			HomeURL:      "/",
			DashboardURL: "/dashboard",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Environment: "local",
	}

	// If no config path is provided, search in default locations
	if configPath == "" {
		configPath = findConfigFile()
	}

	// Load configuration from file if it exists
	if configPath != "" && fileExists(configPath) {
		fmt.Printf("[CONFIG] Loading web config from: %s\n", configPath)
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in the config
		data = expandEnvVars(data)

		// Parse YAML
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else {
		fmt.Printf("[CONFIG] No web config file found, using defaults\n")
	}

	// Environment variables take precedence for secrets
	if clientID := os.Getenv("SECONDME_CLIENT_ID"); clientID != "" {
		config.OAuth.ClientID = clientID
	}
	if clientSecret := os.Getenv("SECONDME_CLIENT_SECRET"); clientSecret != "" {
		config.OAuth.ClientSecret = clientSecret
	}
	if redirectURI := os.Getenv("SECONDME_REDIRECT_URI"); redirectURI != "" {
		config.OAuth.RedirectURI = redirectURI
	}

	if len(config.OAuth.Scopes) == 0 {
		config.OAuth.Scopes = DefaultScopes
	}

	// Validate
	if err := validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// IsProduction reports whether the service runs with production hardening
// (secure cookies require HTTPS)
func (c *WebServerConfig) IsProduction() bool {
	return c.Environment == "prod"
}

// ConnectionString returns the PostgreSQL connection string
func (p *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// findConfigFile searches for a configuration file in default locations
func findConfigFile() string {
	for _, path := range DefaultConfigPaths {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// fileExists checks if a file exists and is not a directory
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}

// validate performs basic validation on the web configuration
func validate(config *WebServerConfig) error {
	// Validate HTTP port is reasonable
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if config.OAuth.TokenEndpoint == "" {
		return fmt.Errorf("oauth.token_endpoint cannot be empty")
	}

	if config.OAuth.RedirectURI == "" {
		return fmt.Errorf("oauth.redirect_uri cannot be empty")
	}

	return nil
}
