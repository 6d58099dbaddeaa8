package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/nobadaofficial/noba-da3/internal/version"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where noba-da3 stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string
	// InstanceURL is the url of your noba-da3 instance.
	InstanceURL string

	// Generation Configuration
	GenProvider    string        // NOBADA_GEN_PROVIDER (default: openai)
	GenAPIKey      string        // NOBADA_GEN_API_KEY
	GenBaseURL     string        // NOBADA_GEN_BASE_URL (default: https://api.openai.com/v1)
	GenModel       string        // NOBADA_GEN_MODEL (default: gpt-4o-mini)
	GenTimeout     time.Duration // NOBADA_GEN_TIMEOUT_SECONDS (default: 30s)
	GenMaxInflight int64         // NOBADA_GEN_MAX_INFLIGHT (default: 8)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsGenEnabled returns true if a live response generator is configured.
// Without an API key the server falls back to the scripted generator.
func (p *Profile) IsGenEnabled() bool {
	return p.GenAPIKey != ""
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads generation configuration from NOBADA_* environment variables.
func (p *Profile) FromEnv() {
	p.GenProvider = getEnvOrDefault("NOBADA_GEN_PROVIDER", "openai")
	p.GenAPIKey = os.Getenv("NOBADA_GEN_API_KEY")
	p.GenBaseURL = getEnvOrDefault("NOBADA_GEN_BASE_URL", "https://api.openai.com/v1")
	p.GenModel = getEnvOrDefault("NOBADA_GEN_MODEL", "gpt-4o-mini")

	seconds, err := strconv.Atoi(getEnvOrDefault("NOBADA_GEN_TIMEOUT_SECONDS", "30"))
	if err != nil || seconds <= 0 {
		seconds = 30
	}
	p.GenTimeout = time.Duration(seconds) * time.Second

	inflight, err := strconv.ParseInt(getEnvOrDefault("NOBADA_GEN_MAX_INFLIGHT", "8"), 10, 64)
	if err != nil || inflight <= 0 {
		inflight = 8
	}
	p.GenMaxInflight = inflight
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
		p.Data = "/var/opt/nobada"
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
		dbFile := fmt.Sprintf("nobada_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn is required for postgres driver")
	}

	if p.Version == "" {
		p.Version = version.GetCurrentVersion(p.Mode)
	}

	return nil
}
