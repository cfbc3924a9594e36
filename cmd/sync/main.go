package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/blackmichael/mastodon-triage/internal/domain"
	"github.com/blackmichael/mastodon-triage/internal/mastodon"
	"github.com/blackmichael/mastodon-triage/internal/sqlite"
	"github.com/sethvargo/go-retry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dbPath    string
		server    string
		baseURL   string
		direction string
		pages     int
		reset     bool
	)

	flag.StringVar(&dbPath, "db", envOrDefault("TRIAGE_DB_PATH", "triage.db"), "SQLite database file")
	flag.StringVar(&server, "server", "", "Server slug to sync (e.g. mastodon)")
	flag.StringVar(&baseURL, "url", "", "Server base URL (e.g. https://mastodon.social)")
	flag.StringVar(&direction, "direction", "newer", "Sync direction: newer or older")
	flag.IntVar(&pages, "pages", 1, "Maximum number of pages to fetch")
	flag.BoolVar(&reset, "reset", false, "Delete stored posts for the server instead of syncing")
	flag.Parse()

	if server == "" {
		return fmt.Errorf("--server is required")
	}
	if pages < 1 {
		return fmt.Errorf("--pages must be at least 1")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	repo, err := sqlite.NewRepository(dbPath, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	if reset {
		// Reset never fetches; it is the opposite of a sync.
		if err := repo.ResetServer(context.Background(), server); err != nil {
			return err
		}
		fmt.Printf("Deleted all stored posts for %s\n", server)
		return nil
	}

	if baseURL == "" {
		return fmt.Errorf("--url is required when syncing")
	}

	dir, err := domain.ParseDirection(direction)
	if err != nil {
		return fmt.Errorf("--direction must be newer or older")
	}

	triage, err := domain.NewTriageService(
		[]domain.ServerConfig{{Slug: server, BaseURL: baseURL}},
		repo, repo, mastodon.NewClient(), 0, logger,
	)
	if err != nil {
		return err
	}

	ctx := context.Background()
	total := 0

	for page := 0; page < pages; page++ {
		result, err := syncPage(ctx, triage, server, dir)
		if err != nil {
			return fmt.Errorf("page %d: %w", page+1, err)
		}

		total += result.Count
		fmt.Printf("Page %d: fetched %d posts", page+1, result.Count)
		if result.First != nil {
			fmt.Printf(" (%s .. %s)", result.First.ID, result.Last.ID)
		}
		fmt.Println()

		// A short page means the remote has no more posts in this direction.
		if result.Count < triage.PageLimit() {
			break
		}
	}

	fmt.Printf("Done: %d posts fetched for %s\n", total, server)
	return nil
}

// syncPage runs one sync invocation with exponential backoff. Each attempt is
// independently safe to replay because page upserts are idempotent.
func syncPage(ctx context.Context, triage *domain.TriageService, server string, dir domain.Direction) (*domain.SyncResult, error) {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))

	var result *domain.SyncResult
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		result, err = triage.Sync(ctx, server, dir)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
