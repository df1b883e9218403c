package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/alexjbarnes/marginalio/internal/logging"
	"github.com/alexjbarnes/marginalio/internal/store"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Config holds all environment-based configuration for marginalio.
type Config struct {
	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Path of the library database. Defaults to ~/.marginalio/library.db.
	DBPath string `env:"MARGINALIO_DB_PATH"`

	// Service flags. At least one must be true.
	EnableSync bool `env:"ENABLE_SYNC" envDefault:"true"`
	EnableMCP  bool `env:"ENABLE_MCP" envDefault:"false"`

	// Backend project (required when sync is enabled)
	SupabaseURL     string `env:"SUPABASE_URL"`
	SupabaseAnonKey string `env:"SUPABASE_ANON_KEY"`

	// Account credentials. Only needed when no cached token is valid.
	Email    string `env:"MARGINALIO_EMAIL"`
	Password string `env:"MARGINALIO_PASSWORD"`

	// Window in which an identical realtime event is treated as a repeat.
	RealtimeDebounce time.Duration `env:"REALTIME_DEBOUNCE" envDefault:"500ms"`

	// Metadata extractor endpoint. Saving by URL is disabled when empty.
	MetadataURL     string        `env:"METADATA_URL"`
	MetadataTimeout time.Duration `env:"METADATA_TIMEOUT" envDefault:"15s"`

	// MCP server settings (required when MCP is enabled)
	MCPListenAddr string `env:"MCP_LISTEN_ADDR" envDefault:":8090"`
	MCPAPIKeys    string `env:"MCP_API_KEYS"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.DBPath == "" {
		p, err := store.DefaultPath()
		if err != nil {
			return nil, err
		}

		cfg.DBPath = p
	}

	absPath, err := filepath.Abs(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("resolving db path to absolute path: %w", err)
	}

	cfg.DBPath = absPath

	return cfg, nil
}

func (c *Config) validate() error {
	if !c.EnableSync && !c.EnableMCP {
		return fmt.Errorf("at least one of ENABLE_SYNC or ENABLE_MCP must be true")
	}

	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel)
	}

	if c.EnableSync {
		if c.SupabaseURL == "" {
			return fmt.Errorf("SUPABASE_URL is required when sync is enabled")
		}

		if c.SupabaseAnonKey == "" {
			return fmt.Errorf("SUPABASE_ANON_KEY is required when sync is enabled")
		}

		if c.RealtimeDebounce <= 0 {
			return fmt.Errorf("REALTIME_DEBOUNCE must be positive")
		}
	}

	if c.MetadataURL != "" && c.MetadataTimeout <= 0 {
		return fmt.Errorf("METADATA_TIMEOUT must be positive")
	}

	if c.EnableMCP {
		if c.MCPAPIKeys == "" {
			return fmt.Errorf("MCP_API_KEYS is required when MCP is enabled")
		}

		if _, err := c.ParseMCPAPIKeys(); err != nil {
			return err
		}
	}

	return nil
}

// HasCredentials reports whether email and password are both set.
func (c *Config) HasCredentials() bool {
	return c.Email != "" && c.Password != ""
}

// APIKeyEntry holds a user identity and the bcrypt hash of its API key,
// parsed from MCP_API_KEYS.
type APIKeyEntry struct {
	UserID string
	Hash   string
}

// ParseMCPAPIKeys parses the MCP_API_KEYS string.
// Format: "user1:$2a$10$...,user2:$2a$10$..."
func (c *Config) ParseMCPAPIKeys() ([]APIKeyEntry, error) {
	if c.MCPAPIKeys == "" {
		return nil, nil
	}

	seenUsers := make(map[string]struct{})

	var entries []APIKeyEntry

	for _, pair := range strings.Split(c.MCPAPIKeys, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		idx := strings.Index(pair, ":")
		if idx < 0 {
			return nil, fmt.Errorf("invalid API key entry (missing ':')")
		}

		userID := pair[:idx]

		hash := pair[idx+1:]
		if userID == "" || hash == "" {
			return nil, fmt.Errorf("empty user or hash in entry %d", len(entries)+1)
		}

		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("API key for %q is not a bcrypt hash in entry %d", userID, len(entries)+1)
		}

		if _, dup := seenUsers[userID]; dup {
			return nil, fmt.Errorf("duplicate user_id %q in MCP_API_KEYS", userID)
		}

		seenUsers[userID] = struct{}{}
		entries = append(entries, APIKeyEntry{UserID: userID, Hash: hash})
	}

	return entries, nil
}
