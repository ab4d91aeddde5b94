package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the runtime configuration for the recommendation engine.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Data is the directory holding index artifacts and the sqlite database
	Data string
	// DSN points to where medirank stores feedback and catalog data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of the engine
	Version string

	// Embedding gateway configuration
	EmbeddingProvider   string // MEDIRANK_EMBEDDING_PROVIDER (default: openai)
	EmbeddingModel      string // MEDIRANK_EMBEDDING_MODEL (default: text-embedding-3-small)
	EmbeddingDimensions int    // MEDIRANK_EMBEDDING_DIMENSIONS (default: 1536)
	OpenAIAPIKey        string // MEDIRANK_OPENAI_API_KEY
	OpenAIBaseURL       string // MEDIRANK_OPENAI_BASE_URL (default: https://api.openai.com/v1)

	// Travel-time provider configuration
	DirectionsBaseURL string // MEDIRANK_DIRECTIONS_BASE_URL
	DirectionsAPIKey  string // MEDIRANK_DIRECTIONS_API_KEY

	// Feedback cache configuration
	RedisAddr     string // MEDIRANK_CACHE_REDIS_ADDR (empty disables the L2 cache)
	RedisPassword string // MEDIRANK_CACHE_REDIS_PASSWORD
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsEmbeddingEnabled returns true if an embedding gateway is configured.
func (p *Profile) IsEmbeddingEnabled() bool {
	return p.OpenAIAPIKey != ""
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads configuration from MEDIRANK_* environment variables.
func (p *Profile) FromEnv() {
	p.EmbeddingProvider = getEnvOrDefault("MEDIRANK_EMBEDDING_PROVIDER", "openai")
	p.EmbeddingModel = getEnvOrDefault("MEDIRANK_EMBEDDING_MODEL", "text-embedding-3-small")
	p.OpenAIAPIKey = os.Getenv("MEDIRANK_OPENAI_API_KEY")
	p.OpenAIBaseURL = getEnvOrDefault("MEDIRANK_OPENAI_BASE_URL", "https://api.openai.com/v1")

	if dims := os.Getenv("MEDIRANK_EMBEDDING_DIMENSIONS"); dims != "" {
		if n, err := strconv.Atoi(dims); err == nil && n > 0 {
			p.EmbeddingDimensions = n
		}
	}
	if p.EmbeddingDimensions == 0 {
		p.EmbeddingDimensions = 1536
	}

	p.DirectionsBaseURL = os.Getenv("MEDIRANK_DIRECTIONS_BASE_URL")
	p.DirectionsAPIKey = os.Getenv("MEDIRANK_DIRECTIONS_API_KEY")

	p.RedisAddr = os.Getenv("MEDIRANK_CACHE_REDIS_ADDR")
	p.RedisPassword = os.Getenv("MEDIRANK_CACHE_REDIS_PASSWORD")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		p.Data = "/var/opt/medirank"
		if _, err := os.Stat(p.Data); os.IsNotExist(err) {
			if err := os.MkdirAll(p.Data, 0770); err != nil {
				slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
				return err
			}
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("medirank_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	return nil
}
