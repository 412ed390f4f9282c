package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hzshumeng/skillacademy/internal/auth/secondme"
	"github.com/hzshumeng/skillacademy/internal/infrastructure/database/postgres"
	"github.com/hzshumeng/skillacademy/internal/pkg/idgen"
	"github.com/hzshumeng/skillacademy/internal/pkg/logger"
	"github.com/hzshumeng/skillacademy/migrations"
	"github.com/hzshumeng/skillacademy/web/internal/config"
	"github.com/hzshumeng/skillacademy/web/internal/handlers"
	"github.com/hzshumeng/skillacademy/web/internal/middleware"
	"github.com/hzshumeng/skillacademy/web/internal/session"
)

// Version is stamped at build time
var Version = "dev"

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		forceVersion int
		configPath   string
		logLevel     string
		logFormat    string
	)

	cmd := &cobra.Command{
		Use:   "web",
		Short: "Skill academy web service",
		Long:  "Backend-for-frontend serving the SecondMe OAuth login flow",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return setupWebLogging(logLevel, logFormat)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(configPath, forceVersion)
		},
	}

	cmd.Flags().IntVar(&forceVersion, "force-migration", -1, "Force migration version (use to fix dirty migration state)")
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file (optional)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFormat, "log-format", "json", "Log format (text, json)")

	return cmd
}

// setupWebLogging configures the global logger for the web service
func setupWebLogging(logLevel, logFormat string) error {
	cfg := logger.Config{
		Level:       logger.ParseLevel(logLevel),
		LogToStderr: true, // Web service always logs to stderr
		Format:      logFormat,
	}

	globalLogger, err := logger.SetupLogger(cfg)
	if err != nil {
		return err
	}

	// Set as default logger so all slog.Info/Warn/Error calls use our configured logger
	slog.SetDefault(globalLogger)

	return nil
}

func runServer(configPath string, forceVersion int) error {
	log := slog.Default().With("component", "web")
	log.Info("starting skill academy web service")

	// Initialize Snowflake ID generator
	if err := idgen.Initialize(1); err != nil {
		return fmt.Errorf("failed to initialize ID generator: %w", err)
	}

	// Load web configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Connect to PostgreSQL with retries (for Kubernetes startup)
	pgConn, err := connectWithRetries(cfg.Database.Postgres.ConnectionString(), log)
	if err != nil {
		return err
	}
	defer pgConn.Close()

	// Handle force migration if requested
	if forceVersion >= 0 {
		log.Info("force setting migration version", slog.Int("version", forceVersion))
		if err := pgConn.ForceMigrationVersion(migrations.FS, forceVersion); err != nil {
			return fmt.Errorf("failed to force migration version: %w", err)
		}
		log.Info("migration version forced, exiting")
		return nil
	}

	// Run migrations
	if err := pgConn.RunMigrations(migrations.FS); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	userRepo := postgres.NewUserRepository(pgConn.DB)

	// Initialize session manager
	sessionSecret, err := loadSessionSecret(cfg, log)
	if err != nil {
		return err
	}
	sessionMgr := session.NewManager(sessionSecret, cfg.IsProduction())

	// Initialize the SecondMe client
	smClient := secondme.NewClient(secondme.Config{
		AuthorizationURL: cfg.OAuth.AuthorizationURL,
		TokenEndpoint:    cfg.OAuth.TokenEndpoint,
		RefreshEndpoint:  cfg.OAuth.RefreshEndpoint,
		APIBaseURL:       cfg.OAuth.APIBaseURL,
		ClientID:         cfg.OAuth.ClientID,
		ClientSecret:     cfg.OAuth.ClientSecret,
		RedirectURI:      cfg.OAuth.RedirectURI,
		Scopes:           cfg.OAuth.Scopes,
	})

	h := handlers.New(smClient, userRepo, sessionMgr, cfg.App.HomeURL, cfg.App.DashboardURL, slog.Default())

	router := createRouter(h)

	// Metrics server on its own port
	metricsPort := cfg.Server.MetricsPort
	if metricsPort == 0 {
		metricsPort = cfg.Server.Port + 10
	}
	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", metricsPort)
		log.Info("starting metrics server", slog.String("address", addr))
		if err := http.ListenAndServe(addr, metricsMux); err != nil {
			log.Error("metrics server failed", slog.Any("error", err))
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("listening", slog.String("address", addr))

	if err := http.ListenAndServe(addr, router); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// connectWithRetries connects to PostgreSQL with exponential backoff
func connectWithRetries(connString string, log *slog.Logger) (*postgres.Connection, error) {
	maxRetries := 10
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		pgConn, err := postgres.NewConnection(connString)
		if err == nil {
			log.Info("connected to PostgreSQL")
			return pgConn, nil
		}

		if i < maxRetries-1 {
			log.Warn("failed to connect to PostgreSQL",
				slog.Int("attempt", i+1),
				slog.Int("max_retries", maxRetries),
				slog.Any("error", err),
				slog.Duration("retry_delay", retryDelay))
			time.Sleep(retryDelay)
			retryDelay *= 2
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}
		} else {
			return nil, fmt.Errorf("failed to connect to PostgreSQL after %d attempts: %w", maxRetries, err)
		}
	}

	return nil, fmt.Errorf("unreachable")
}

// loadSessionSecret resolves the cookie signing secret.
// Priority: env var > config file > random (dev only, sessions won't persist)
func loadSessionSecret(cfg *config.WebServerConfig, log *slog.Logger) ([]byte, error) {
	if envSecret := os.Getenv("SESSION_SECRET"); envSecret != "" {
		secret, err := base64.StdEncoding.DecodeString(envSecret)
		if err == nil {
			log.Info("using session secret from environment variable")
			return secret, nil
		}
		log.Warn("failed to decode SESSION_SECRET env var, trying config", slog.Any("error", err))
	}

	if cfg.Session.Secret != "" {
		secret, err := base64.StdEncoding.DecodeString(cfg.Session.Secret)
		if err == nil {
			log.Info("using session secret from config file")
			return secret, nil
		}
		log.Warn("failed to decode session secret from config", slog.Any("error", err))
	}

	log.Warn("no session secret configured, generating random one (sessions won't persist)")
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate session secret: %w", err)
	}
	return secret, nil
}

// createRouter sets up the HTTP router with all routes and middleware
func createRouter(h *handlers.Handler) http.Handler {
	router := mux.NewRouter()

	// Health check endpoint (no auth required)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")

	// Version info endpoint
	router.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"version":"%s"}`, Version)
	}).Methods("GET")

	// OAuth flow
	router.HandleFunc("/login", h.Login).Methods("GET")
	router.HandleFunc("/callback", h.Callback).Methods("GET")
	router.HandleFunc("/logout", h.Logout).Methods("GET", "POST")

	// Authenticated API
	router.HandleFunc("/user/info", h.UserInfo).Methods("GET")

	// Wrap router with logging middleware
	return middleware.LogRequest(router)
}
