// Package sqlite implements the domain repositories on a local SQLite file.
//
// The posts table is the single source of truth for what has been ingested.
// Every mutation is a single statement or one short transaction; there are no
// long-held transactions spanning network calls. Bucket membership is derived
// by the classifier at read time and is deliberately not a stored column, so
// bucket-scoped reads and updates classify candidate rows in Go.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/blackmichael/mastodon-triage/internal/domain"
	"github.com/blackmichael/mastodon-triage/internal/sqlite/migrations"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// Repository implements domain.PostRepository and domain.TagRepository.
type Repository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRepository opens (and creates if needed) the SQLite database at the
// given path, applies migrations, and returns a new Repository. The caller
// should call Close when the repository is no longer needed.
func NewRepository(dbPath string, logger *slog.Logger) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode for concurrent reads while a sync writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Repository{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

const postColumns = `id, server_slug, created_at, content, language,
	in_reply_to_id, parent_id, url,
	account_id, account_username, account_display_name, account_url, account_avatar, account_bot,
	media_attachments, visibility, favourites_count, reblogs_count, replies_count,
	seen, saved`

// UpsertPost inserts or replaces a post by (id, server_slug). Re-ingesting a
// known post refreshes the remote-sourced fields, including the engagement
// counters; created_at, seen and saved belong to the first insert and the
// local review operations and are never touched by the update arm.
func (r *Repository) UpsertPost(ctx context.Context, post *domain.Post) error {
	query := `
		INSERT INTO posts (` + postColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0)
		ON CONFLICT (id, server_slug) DO UPDATE SET
			content = excluded.content,
			language = excluded.language,
			in_reply_to_id = excluded.in_reply_to_id,
			parent_id = excluded.parent_id,
			url = excluded.url,
			account_id = excluded.account_id,
			account_username = excluded.account_username,
			account_display_name = excluded.account_display_name,
			account_url = excluded.account_url,
			account_avatar = excluded.account_avatar,
			account_bot = excluded.account_bot,
			media_attachments = excluded.media_attachments,
			visibility = excluded.visibility,
			favourites_count = excluded.favourites_count,
			reblogs_count = excluded.reblogs_count,
			replies_count = excluded.replies_count`

	_, err := r.db.ExecContext(ctx, query,
		post.ID,
		post.ServerSlug,
		post.CreatedAt.UTC(),
		post.Content,
		post.Language,
		post.InReplyToID,
		post.ParentID,
		post.URL,
		post.AccountID,
		post.AccountUsername,
		post.AccountDisplayName,
		post.AccountURL,
		post.AccountAvatar,
		post.AccountBot,
		domain.EncodeMedia(post.MediaAttachments),
		post.Visibility,
		post.FavouritesCount,
		post.ReblogsCount,
		post.RepliesCount,
	)
	if err != nil {
		return fmt.Errorf("upsert post: %w", err)
	}
	return nil
}

// GetNewestPost returns the newest stored post for a server, or nil when the
// server has nothing stored. Timestamp ties break by id descending so the
// cursor choice is deterministic.
func (r *Repository) GetNewestPost(ctx context.Context, server string) (*domain.Post, error) {
	return r.frontierPost(ctx, server, "DESC")
}

// GetOldestPost returns the oldest stored post for a server, or nil when the
// server has nothing stored. Timestamp ties break by id ascending.
func (r *Repository) GetOldestPost(ctx context.Context, server string) (*domain.Post, error) {
	return r.frontierPost(ctx, server, "ASC")
}

func (r *Repository) frontierPost(ctx context.Context, server, order string) (*domain.Post, error) {
	query := fmt.Sprintf(`
		SELECT `+postColumns+`
		FROM posts
		WHERE server_slug = ?
		ORDER BY created_at %s, id %s
		LIMIT 1`, order, order)

	row := r.db.QueryRowContext(ctx, query, server)
	post, err := r.scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query frontier post: %w", err)
	}
	return post, nil
}

// GetPostsPage returns the server's posts classified into bucket, newest
// first, paginated by offset and limit. The query streams the server's rows
// in order and applies the classifier as a filter, stopping as soon as the
// page is full.
func (r *Repository) GetPostsPage(ctx context.Context, server string, bucket domain.Bucket, limit, offset int) ([]*domain.Post, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM posts
		WHERE server_slug = ?
		ORDER BY created_at DESC, id DESC`,
		server,
	)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var (
		posts   []*domain.Post
		skipped int
	)
	for rows.Next() {
		post, err := r.scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		if domain.Classify(post) != bucket {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		posts = append(posts, post)
		if len(posts) == limit {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}

	return posts, nil
}

// CountsByBucket classifies every stored post for the server and returns the
// count per bucket. Buckets with no posts are present with a zero count.
func (r *Repository) CountsByBucket(ctx context.Context, server string) (map[domain.Bucket]int, error) {
	counts := make(map[domain.Bucket]int, len(domain.Buckets))
	for _, b := range domain.Buckets {
		counts[b] = 0
	}

	err := r.scanServerPosts(ctx, server, func(post *domain.Post) {
		counts[domain.Classify(post)]++
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// MarkSeen sets seen on every post for the server whose created_at falls in
// [from, to] and whose derived bucket matches. Classification and update run
// in one transaction so the returned count reflects exactly the rows updated.
func (r *Repository) MarkSeen(ctx context.Context, server string, bucket domain.Bucket, from, to time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM posts
		WHERE server_slug = ? AND created_at >= ? AND created_at <= ?`,
		server, from.UTC(), to.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("query window: %w", err)
	}

	var ids []any
	for rows.Next() {
		post, err := r.scanPost(rows)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan post: %w", err)
		}
		if domain.Classify(post) == bucket {
			ids = append(ids, post.ID)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate window: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return 0, tx.Commit()
	}

	placeholders := strings.Repeat("?, ", len(ids)-1) + "?"
	args := append([]any{server}, ids...)
	res, err := tx.ExecContext(ctx,
		`UPDATE posts SET seen = 1 WHERE server_slug = ? AND id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("mark seen: %w", err)
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return updated, nil
}

// SetSaved flips the saved flag on one post.
func (r *Repository) SetSaved(ctx context.Context, server, id string, saved bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE posts SET saved = ? WHERE server_slug = ? AND id = ?`,
		saved, server, id,
	)
	if err != nil {
		return fmt.Errorf("set saved: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s on %s", domain.ErrNotFound, id, server)
	}
	return nil
}

// ServerStats recomputes the aggregate view of one server's posts in a
// single scan: totals, seen count, date range, and the per-bucket seen/unseen
// split produced by the classifier.
func (r *Repository) ServerStats(ctx context.Context, server string) (*domain.ServerStats, error) {
	stats := &domain.ServerStats{
		Server:  server,
		Buckets: make(map[domain.Bucket]domain.BucketStats, len(domain.Buckets)),
	}
	for _, b := range domain.Buckets {
		stats.Buckets[b] = domain.BucketStats{}
	}

	err := r.scanServerPosts(ctx, server, func(post *domain.Post) {
		stats.TotalPosts++
		if post.Seen {
			stats.SeenPosts++
		}

		created := post.CreatedAt
		if stats.OldestPost == nil || created.Before(*stats.OldestPost) {
			stats.OldestPost = &created
		}
		if stats.NewestPost == nil || created.After(*stats.NewestPost) {
			stats.NewestPost = &created
		}

		bucket := domain.Classify(post)
		bs := stats.Buckets[bucket]
		if post.Seen {
			bs.Seen++
		} else {
			bs.Unseen++
		}
		stats.Buckets[bucket] = bs
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Servers lists every server slug with at least one stored post.
func (r *Repository) Servers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT server_slug FROM posts ORDER BY server_slug`,
	)
	if err != nil {
		return nil, fmt.Errorf("query servers: %w", err)
	}
	defer rows.Close()

	var servers []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("scan server: %w", err)
		}
		servers = append(servers, slug)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate servers: %w", err)
	}
	return servers, nil
}

// ResetServer deletes every post for one server.
func (r *Repository) ResetServer(ctx context.Context, server string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE server_slug = ?`, server); err != nil {
		return fmt.Errorf("reset server: %w", err)
	}
	return nil
}

// ResetAll deletes every stored post.
func (r *Repository) ResetAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM posts`); err != nil {
		return fmt.Errorf("reset all: %w", err)
	}
	return nil
}

// AddAccountTag attaches a tag to an account, incrementing its count when the
// tag was already applied.
func (r *Repository) AddAccountTag(ctx context.Context, accountID, tag string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO account_tags (account_id, tag, count, created_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (account_id, tag) DO UPDATE SET count = count + 1`,
		accountID, tag, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("add account tag: %w", err)
	}
	return nil
}

// GetAccountTags lists the tags applied to an account, oldest first.
func (r *Repository) GetAccountTags(ctx context.Context, accountID string) ([]domain.AccountTag, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT account_id, tag, count, created_at
		FROM account_tags
		WHERE account_id = ?
		ORDER BY created_at, tag`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("query account tags: %w", err)
	}
	defer rows.Close()

	var tags []domain.AccountTag
	for rows.Next() {
		var t domain.AccountTag
		if err := rows.Scan(&t.AccountID, &t.Tag, &t.Count, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account tags: %w", err)
	}
	return tags, nil
}

// scanServerPosts streams every post for a server through fn.
func (r *Repository) scanServerPosts(ctx context.Context, server string, fn func(*domain.Post)) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM posts
		WHERE server_slug = ?`,
		server,
	)
	if err != nil {
		return fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		post, err := r.scanPost(rows)
		if err != nil {
			return fmt.Errorf("scan post: %w", err)
		}
		fn(post)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate posts: %w", err)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanPost scans one posts row. Malformed media_attachments data never fails
// the read: it decodes to an empty sequence with a warning.
func (r *Repository) scanPost(row scanner) (*domain.Post, error) {
	var (
		post     domain.Post
		rawMedia string
	)
	err := row.Scan(
		&post.ID,
		&post.ServerSlug,
		&post.CreatedAt,
		&post.Content,
		&post.Language,
		&post.InReplyToID,
		&post.ParentID,
		&post.URL,
		&post.AccountID,
		&post.AccountUsername,
		&post.AccountDisplayName,
		&post.AccountURL,
		&post.AccountAvatar,
		&post.AccountBot,
		&rawMedia,
		&post.Visibility,
		&post.FavouritesCount,
		&post.ReblogsCount,
		&post.RepliesCount,
		&post.Seen,
		&post.Saved,
	)
	if err != nil {
		return nil, err
	}

	media, err := domain.DecodeMedia(rawMedia)
	if err != nil {
		r.logger.Warn("malformed media attachments, treating as empty",
			"post", post.ID,
			"server", post.ServerSlug,
			"error", err,
		)
	}
	post.MediaAttachments = media

	return &post, nil
}
