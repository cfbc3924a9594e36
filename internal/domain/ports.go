package domain

import (
	"context"
	"time"
)

// PostRepository defines persistence operations for ingested posts. It is the
// single source of truth for what has been ingested.
type PostRepository interface {
	// UpsertPost inserts or replaces a post by (ID, ServerSlug). Replacing
	// refreshes remote-sourced fields only: CreatedAt, Seen and Saved are
	// never overwritten for an already-stored post.
	UpsertPost(ctx context.Context, post *Post) error

	// GetNewestPost returns the post with the greatest CreatedAt for a
	// server, ties broken by ID descending. Returns nil when the server has
	// no stored posts.
	GetNewestPost(ctx context.Context, server string) (*Post, error)

	// GetOldestPost returns the post with the smallest CreatedAt for a
	// server, ties broken by ID ascending. Returns nil when the server has
	// no stored posts.
	GetOldestPost(ctx context.Context, server string) (*Post, error)

	// GetPostsPage returns the posts classified into bucket for a server,
	// ordered by CreatedAt descending, paginated by offset and limit. The
	// bucket is a derived filter, not a stored column.
	GetPostsPage(ctx context.Context, server string, bucket Bucket, limit, offset int) ([]*Post, error)

	// CountsByBucket returns, for every bucket, how many of the server's
	// posts classify into it.
	CountsByBucket(ctx context.Context, server string) (map[Bucket]int, error)

	// MarkSeen sets Seen on every post for the server whose CreatedAt falls
	// in [from, to] and whose derived bucket matches. Returns the number of
	// rows updated.
	MarkSeen(ctx context.Context, server string, bucket Bucket, from, to time.Time) (int64, error)

	// SetSaved flips the locally-owned saved flag on one post. Returns
	// ErrNotFound when the post is not stored.
	SetSaved(ctx context.Context, server, id string, saved bool) error

	// ServerStats recomputes the aggregate view of one server's posts.
	ServerStats(ctx context.Context, server string) (*ServerStats, error)

	// Servers lists every server slug with at least one stored post.
	Servers(ctx context.Context) ([]string, error)

	// ResetServer irreversibly deletes all posts for one server.
	ResetServer(ctx context.Context, server string) error

	// ResetAll irreversibly deletes all stored posts.
	ResetAll(ctx context.Context) error
}

// TagRepository defines persistence for account moderation tags.
type TagRepository interface {
	// AddAccountTag attaches a tag to an account, incrementing its count if
	// the tag was already applied.
	AddAccountTag(ctx context.Context, accountID, tag string) error

	// GetAccountTags lists the tags applied to an account.
	GetAccountTags(ctx context.Context, accountID string) ([]AccountTag, error)
}

// TimelineQuery bounds a single public-timeline page fetch. At most one of
// MinID and MaxID is set: MinID asks for strictly-newer posts, MaxID for
// strictly-older ones, neither for the most recent unbounded page.
type TimelineQuery struct {
	BaseURL string
	Limit   int
	MinID   string
	MaxID   string
}

// Timeline is the remote timeline API consumed by the sync engine. A failed
// fetch is fatal for the invocation; retry policy belongs to the caller.
type Timeline interface {
	PublicTimeline(ctx context.Context, q TimelineQuery) ([]*RemoteStatus, error)
}
