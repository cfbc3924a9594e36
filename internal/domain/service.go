package domain

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// maxPageLimit is the largest page the public timeline API will serve.
const maxPageLimit = 40

// Direction selects which end of the stored timeline a sync extends.
type Direction string

const (
	// DirectionNewer fetches posts strictly newer than the newest stored one.
	DirectionNewer Direction = "newer"

	// DirectionOlder fetches posts strictly older than the oldest stored one.
	DirectionOlder Direction = "older"
)

// ParseDirection validates a caller-supplied direction. An empty string
// defaults to newer.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "", string(DirectionNewer):
		return DirectionNewer, nil
	case string(DirectionOlder):
		return DirectionOlder, nil
	}
	return "", ErrUnknownDirection
}

// ServerConfig describes one remote server the service syncs from.
type ServerConfig struct {
	// Slug is the local identifier stored on every post from this server.
	Slug string

	// BaseURL is the server's root URL, e.g. https://mastodon.social.
	BaseURL string

	// AccessToken authorizes remote actions (follow, favourite). Optional;
	// the public timeline needs no authentication.
	AccessToken string
}

// PostRef identifies one post and its timestamp in a sync report.
type PostRef struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// SyncResult reports what a single sync invocation fetched. A zero Count is a
// valid outcome meaning the local store is caught up in that direction.
type SyncResult struct {
	Server    string    `json:"server"`
	Direction Direction `json:"direction"`
	Count     int       `json:"count"`
	First     *PostRef  `json:"first,omitempty"`
	Last      *PostRef  `json:"last,omitempty"`
}

// TriageService is the core domain service. It owns the sync state machine,
// the seen-state and statistics operations, and the account-tag bookkeeping,
// all on top of the repository and timeline ports.
type TriageService struct {
	servers   map[string]ServerConfig
	repo      PostRepository
	tags      TagRepository
	timeline  Timeline
	pageLimit int
	logger    *slog.Logger
}

// NewTriageService creates a TriageService for the given servers.
func NewTriageService(
	servers []ServerConfig,
	repo PostRepository,
	tags TagRepository,
	timeline Timeline,
	pageLimit int,
	logger *slog.Logger,
) (*TriageService, error) {
	if len(servers) == 0 {
		return nil, fmt.Errorf("at least one server is required")
	}
	if pageLimit <= 0 || pageLimit > maxPageLimit {
		pageLimit = maxPageLimit
	}

	bySlug := make(map[string]ServerConfig, len(servers))
	for _, sc := range servers {
		if sc.Slug == "" || sc.BaseURL == "" {
			return nil, fmt.Errorf("server config needs both slug and base URL, got %+v", sc)
		}
		bySlug[sc.Slug] = sc
	}

	return &TriageService{
		servers:   bySlug,
		repo:      repo,
		tags:      tags,
		timeline:  timeline,
		pageLimit: pageLimit,
		logger:    logger,
	}, nil
}

// ServerSlugs returns the configured server slugs.
func (s *TriageService) ServerSlugs() []string {
	slugs := make([]string, 0, len(s.servers))
	for slug := range s.servers {
		slugs = append(slugs, slug)
	}
	return slugs
}

// PageLimit returns the page size used for timeline fetches. A sync that
// returns fewer posts than this signals the remote has no more pages in that
// direction.
func (s *TriageService) PageLimit() int {
	return s.pageLimit
}

// Server returns the configuration for a slug.
func (s *TriageService) Server(slug string) (ServerConfig, error) {
	sc, ok := s.servers[slug]
	if !ok {
		return ServerConfig{}, fmt.Errorf("%w: %s", ErrUnknownServer, slug)
	}
	return sc, nil
}

// Sync fetches one page of the server's public timeline in the given
// direction and persists it. The cursor comes from the stored frontier: the
// newest stored post bounds a "newer" fetch via min_id, the oldest bounds an
// "older" fetch via max_id. With nothing stored yet the fetch is unbounded
// and returns the most recent page.
//
// Replaying a page is safe: every record is upserted by (id, server) and the
// upsert never touches locally-owned state.
func (s *TriageService) Sync(ctx context.Context, server string, dir Direction) (*SyncResult, error) {
	sc, err := s.Server(server)
	if err != nil {
		return nil, err
	}

	q := TimelineQuery{BaseURL: sc.BaseURL, Limit: s.pageLimit}

	switch dir {
	case DirectionNewer:
		newest, err := s.repo.GetNewestPost(ctx, server)
		if err != nil {
			return nil, fmt.Errorf("get newest post: %w", err)
		}
		if newest != nil {
			q.MinID = newest.ID
		}
	case DirectionOlder:
		oldest, err := s.repo.GetOldestPost(ctx, server)
		if err != nil {
			return nil, fmt.Errorf("get oldest post: %w", err)
		}
		if oldest != nil {
			q.MaxID = oldest.ID
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDirection, dir)
	}

	statuses, err := s.timeline.PublicTimeline(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch public timeline: %w", err)
	}

	for _, st := range statuses {
		for _, post := range PostsFromStatus(server, st) {
			if err := s.repo.UpsertPost(ctx, post); err != nil {
				return nil, fmt.Errorf("upsert post %s: %w", post.ID, err)
			}
		}
	}

	result := &SyncResult{
		Server:    server,
		Direction: dir,
		Count:     len(statuses),
	}
	if len(statuses) > 0 {
		first, last := statuses[0], statuses[len(statuses)-1]
		result.First = &PostRef{ID: first.ID, CreatedAt: first.CreatedAt}
		result.Last = &PostRef{ID: last.ID, CreatedAt: last.CreatedAt}
	}

	s.logger.Info("sync complete",
		"server", server,
		"direction", dir,
		"count", result.Count,
	)

	return result, nil
}

// GetPage returns one page of the server's posts in the given bucket,
// newest first.
func (s *TriageService) GetPage(ctx context.Context, server string, bucket Bucket, limit, offset int) ([]*Post, error) {
	if _, err := s.Server(server); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.pageLimit
	}
	if offset < 0 {
		offset = 0
	}
	posts, err := s.repo.GetPostsPage(ctx, server, bucket, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get posts page: %w", err)
	}
	return posts, nil
}

// MarkSeen marks the server's posts in the bucket whose timestamps fall in
// [from, to] as seen and returns how many rows changed. The caller supplies
// the window from its own paginated view; the engine never infers one.
func (s *TriageService) MarkSeen(ctx context.Context, server string, bucket Bucket, from, to time.Time) (int64, error) {
	if _, err := s.Server(server); err != nil {
		return 0, err
	}
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return 0, ErrInvalidWindow
	}
	updated, err := s.repo.MarkSeen(ctx, server, bucket, from, to)
	if err != nil {
		return 0, fmt.Errorf("mark seen: %w", err)
	}
	return updated, nil
}

// SetSaved flips the saved flag on one stored post.
func (s *TriageService) SetSaved(ctx context.Context, server, id string, saved bool) error {
	if _, err := s.Server(server); err != nil {
		return err
	}
	return s.repo.SetSaved(ctx, server, id, saved)
}

// Stats recomputes aggregates for one server, or for every server with
// stored posts when the slug is empty.
func (s *TriageService) Stats(ctx context.Context, server string) ([]*ServerStats, error) {
	if server != "" {
		if _, err := s.Server(server); err != nil {
			return nil, err
		}
		st, err := s.repo.ServerStats(ctx, server)
		if err != nil {
			return nil, fmt.Errorf("server stats: %w", err)
		}
		return []*ServerStats{st}, nil
	}

	servers, err := s.repo.Servers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}

	stats := make([]*ServerStats, 0, len(servers))
	for _, slug := range servers {
		st, err := s.repo.ServerStats(ctx, slug)
		if err != nil {
			return nil, fmt.Errorf("server stats for %s: %w", slug, err)
		}
		stats = append(stats, st)
	}
	return stats, nil
}

// Reset deletes all stored posts for one server, or everything when the slug
// is empty. There is no undo.
func (s *TriageService) Reset(ctx context.Context, server string) error {
	if server == "" {
		if err := s.repo.ResetAll(ctx); err != nil {
			return fmt.Errorf("reset all: %w", err)
		}
		s.logger.Info("reset all servers")
		return nil
	}
	if _, err := s.Server(server); err != nil {
		return err
	}
	if err := s.repo.ResetServer(ctx, server); err != nil {
		return fmt.Errorf("reset server %s: %w", server, err)
	}
	s.logger.Info("reset server", "server", server)
	return nil
}

// TagAccount attaches a moderation tag to an account, incrementing the count
// on repeat application.
func (s *TriageService) TagAccount(ctx context.Context, accountID, tag string) error {
	if accountID == "" || tag == "" {
		return fmt.Errorf("account id and tag are required")
	}
	return s.tags.AddAccountTag(ctx, accountID, tag)
}

// AccountTags lists the moderation tags applied to an account.
func (s *TriageService) AccountTags(ctx context.Context, accountID string) ([]AccountTag, error) {
	return s.tags.GetAccountTags(ctx, accountID)
}

// StartSyncJob runs a "newer" sync for every configured server at the given
// interval. It runs once immediately and blocks until ctx is cancelled. A
// failed sync for one server is logged and never blocks the others.
func (s *TriageService) StartSyncJob(ctx context.Context, interval time.Duration) {
	s.syncAll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncAll(ctx)
		}
	}
}

func (s *TriageService) syncAll(ctx context.Context) {
	for slug := range s.servers {
		if _, err := s.Sync(ctx, slug, DirectionNewer); err != nil {
			s.logger.Error("scheduled sync failed", "server", slug, "error", err)
		}
	}
}
