package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Port is the HTTP server port.
	Port int

	// DBPath is the SQLite database file.
	DBPath string

	// Servers maps server slugs to their base URLs.
	Servers map[string]string

	// Tokens maps server slugs to access tokens for remote actions.
	// Servers without a token still sync; only follow/favourite need one.
	Tokens map[string]string

	// PageLimit is the timeline page size, capped at 40 by the remote API.
	PageLimit int

	// SyncInterval enables the background sync job when non-zero.
	SyncInterval time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	port := 3000
	if p := os.Getenv("TRIAGE_PORT"); p != "" {
		var err error
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid TRIAGE_PORT: %w", err)
		}
	}

	dbPath := os.Getenv("TRIAGE_DB_PATH")
	if dbPath == "" {
		dbPath = "triage.db"
	}

	servers, err := parsePairs(os.Getenv("TRIAGE_SERVERS"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRIAGE_SERVERS: %w", err)
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("TRIAGE_SERVERS is required (e.g. \"mastodon=https://mastodon.social\")")
	}

	tokens, err := parsePairs(os.Getenv("TRIAGE_TOKENS"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRIAGE_TOKENS: %w", err)
	}
	for slug := range tokens {
		if _, ok := servers[slug]; !ok {
			return nil, fmt.Errorf("TRIAGE_TOKENS names unknown server %q", slug)
		}
	}

	pageLimit := 40
	if l := os.Getenv("TRIAGE_PAGE_LIMIT"); l != "" {
		pageLimit, err = strconv.Atoi(l)
		if err != nil || pageLimit < 1 || pageLimit > 40 {
			return nil, fmt.Errorf("TRIAGE_PAGE_LIMIT must be between 1 and 40")
		}
	}

	var syncInterval time.Duration
	if v := os.Getenv("TRIAGE_SYNC_INTERVAL"); v != "" {
		syncInterval, err = time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TRIAGE_SYNC_INTERVAL: %w", err)
		}
	}

	return &Config{
		Port:         port,
		DBPath:       dbPath,
		Servers:      servers,
		Tokens:       tokens,
		PageLimit:    pageLimit,
		SyncInterval: syncInterval,
	}, nil
}

// parsePairs parses comma-separated slug=value pairs.
func parsePairs(raw string) (map[string]string, error) {
	pairs := make(map[string]string)
	if raw == "" {
		return pairs, nil
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		slug, value, ok := strings.Cut(part, "=")
		if !ok || slug == "" || value == "" {
			return nil, fmt.Errorf("malformed pair %q, want slug=value", part)
		}
		pairs[slug] = value
	}
	return pairs, nil
}
