package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ConvoBridge/ConvoBridge/internal/api"
	"github.com/ConvoBridge/ConvoBridge/internal/chatwoot"
	"github.com/ConvoBridge/ConvoBridge/internal/dialogflow"
	"github.com/ConvoBridge/ConvoBridge/internal/util"
)

// Default configuration constants
const (
	// DefaultLocation is the Dialogflow CX agent location used when none is configured
	DefaultLocation = "us-central1"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Build remote service clients
	helpdesk, err := chatwoot.NewClient(*flags.chatwootURL, *flags.chatwootKey)
	if err != nil {
		slog.Error("Failed to create Chatwoot client", "error", err)
		os.Exit(1)
	}
	agent, err := dialogflow.NewClient(ctx, *flags.projectID, *flags.location, *flags.agentID)
	if err != nil {
		slog.Error("Failed to create Dialogflow client", "error", err)
		os.Exit(1)
	}

	// Start the service
	slog.Info("Bootstrapping ConvoBridge", "addr", *flags.apiAddr, "location", *flags.location)
	server := api.NewServer(helpdesk, agent, buildAPIOptions(flags)...)
	if err := server.Run(ctx); err != nil {
		slog.Error("ConvoBridge failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ConvoBridge exited successfully")
}

// Config holds environment configuration
type Config struct {
	ChatwootURL string
	ChatwootKey string
	ProjectID   string
	Location    string
	AgentID     string
	APIAddr     string
}

// Flags holds command line flag values
type Flags struct {
	chatwootURL *string
	chatwootKey *string
	projectID   *string
	location    *string
	agentID     *string
	apiAddr     *string
}

// initializeLogger sets up structured logging; debug level is opt-in
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("CONVOBRIDGE_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		ChatwootURL: os.Getenv("CHATWOOT_URL"),
		ChatwootKey: os.Getenv("CHATWOOT_API_KEY"),
		ProjectID:   os.Getenv("PROJECT_ID"),
		Location:    os.Getenv("LOCATION"),
		AgentID:     os.Getenv("AGENT_ID"),
		APIAddr:     os.Getenv("API_ADDR"),
	}

	if config.Location == "" {
		config.Location = DefaultLocation
		slog.Debug("No LOCATION set, using default", "default_location", config.Location)
	}

	slog.Debug("environment variables loaded",
		"CHATWOOT_URL", config.ChatwootURL,
		"CHATWOOT_API_KEY_SET", config.ChatwootKey != "",
		"PROJECT_ID", config.ProjectID,
		"LOCATION", config.Location,
		"AGENT_ID", config.AgentID,
		"API_ADDR", config.APIAddr)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		chatwootURL: flag.String("chatwoot-url", config.ChatwootURL, "Chatwoot instance base URL (overrides $CHATWOOT_URL)"),
		chatwootKey: flag.String("chatwoot-api-key", config.ChatwootKey, "Chatwoot API access token (overrides $CHATWOOT_API_KEY)"),
		projectID:   flag.String("project-id", config.ProjectID, "Google Cloud project of the Dialogflow agent (overrides $PROJECT_ID)"),
		location:    flag.String("location", config.Location, "Dialogflow agent location (overrides $LOCATION)"),
		agentID:     flag.String("agent-id", config.AgentID, "Dialogflow CX agent id (overrides $AGENT_ID)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"chatwootURL", *flags.chatwootURL,
		"chatwootKeySet", *flags.chatwootKey != "",
		"projectID", *flags.projectID,
		"location", *flags.location,
		"agentID", *flags.agentID,
		"apiAddr", *flags.apiAddr)

	return flags
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}
