package sqlite

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/blackmichael/mastodon-triage/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo, err := NewRepository(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testPost(server, id string, created time.Time, mut ...func(*domain.Post)) *domain.Post {
	post := &domain.Post{
		ID:              id,
		ServerSlug:      server,
		CreatedAt:       created,
		Content:         "<p>hello</p>",
		Language:        "en",
		AccountID:       "a1",
		AccountUsername: "alice",
	}
	for _, m := range mut {
		m(post)
	}
	return post
}

var baseTime = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func TestUpsertIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	post := testPost("mastodon", "123", baseTime)
	require.NoError(t, repo.UpsertPost(ctx, post))
	require.NoError(t, repo.UpsertPost(ctx, post))

	counts, err := repo.CountsByBucket(ctx, "mastodon")
	require.NoError(t, err)

	total := 0
	for _, n := range counts {
		total += n
	}
	assert.Equal(t, 1, total)

	got, err := repo.GetNewestPost(ctx, "mastodon")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "123", got.ID)
	assert.Equal(t, "<p>hello</p>", got.Content)
}

func TestUpsertRefreshesRemoteFieldsOnly(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	post := testPost("mastodon", "123", baseTime)
	post.FavouritesCount = 2
	require.NoError(t, repo.UpsertPost(ctx, post))

	// local review state, owned outside ingestion
	_, err := repo.MarkSeen(ctx, "mastodon", domain.BucketRegular, baseTime.Add(-time.Minute), baseTime.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, repo.SetSaved(ctx, "mastodon", "123", true))

	// re-ingest with newer engagement numbers and a drifted timestamp
	replay := testPost("mastodon", "123", baseTime.Add(time.Hour))
	replay.FavouritesCount = 9
	replay.Content = "<p>edited</p>"
	require.NoError(t, repo.UpsertPost(ctx, replay))

	got, err := repo.GetNewestPost(ctx, "mastodon")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, 9, got.FavouritesCount)
	assert.Equal(t, "<p>edited</p>", got.Content)
	assert.True(t, got.Seen, "seen must survive re-ingestion")
	assert.True(t, got.Saved, "saved must survive re-ingestion")
	assert.True(t, got.CreatedAt.Equal(baseTime), "created_at is immutable, got %v", got.CreatedAt)
}

func TestFrontierPosts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	newest, err := repo.GetNewestPost(ctx, "mastodon")
	require.NoError(t, err)
	assert.Nil(t, newest)

	oldest, err := repo.GetOldestPost(ctx, "mastodon")
	require.NoError(t, err)
	assert.Nil(t, oldest)

	require.NoError(t, repo.UpsertPost(ctx, testPost("mastodon", "100", baseTime)))
	require.NoError(t, repo.UpsertPost(ctx, testPost("mastodon", "110", baseTime.Add(time.Hour))))

	newest, err = repo.GetNewestPost(ctx, "mastodon")
	require.NoError(t, err)
	require.NotNil(t, newest)
	assert.Equal(t, "110", newest.ID)

	oldest, err = repo.GetOldestPost(ctx, "mastodon")
	require.NoError(t, err)
	require.NotNil(t, oldest)
	assert.Equal(t, "100", oldest.ID)
}

func TestFrontierTieBreaksOnID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertPost(ctx, testPost("mastodon", "200", baseTime)))
	require.NoError(t, repo.UpsertPost(ctx, testPost("mastodon", "201", baseTime)))

	newest, err := repo.GetNewestPost(ctx, "mastodon")
	require.NoError(t, err)
	assert.Equal(t, "201", newest.ID)

	oldest, err := repo.GetOldestPost(ctx, "mastodon")
	require.NoError(t, err)
	assert.Equal(t, "200", oldest.ID)
}

func TestGetPostsPage(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	withImage := func(p *domain.Post) {
		p.MediaAttachments = []domain.MediaAttachment{{Type: "image", URL: "https://files.example/1.png"}}
	}

	require.NoError(t, repo.UpsertPost(ctx, testPost("mastodon", "1", baseTime)))
	require.NoError(t, repo.UpsertPost(ctx, testPost("mastodon", "2", baseTime.Add(1*time.Minute), withImage)))
	require.NoError(t, repo.UpsertPost(ctx, testPost("mastodon", "3", baseTime.Add(2*time.Minute))))
	require.NoError(t, repo.UpsertPost(ctx, testPost("mastodon", "4", baseTime.Add(3*time.Minute))))
	require.NoError(t, repo.UpsertPost(ctx, testPost("other", "5", baseTime.Add(4*time.Minute))))

	// bucket is a derived filter, newest first
	posts, err := repo.GetPostsPage(ctx, "mastodon", domain.BucketRegular, 10, 0)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, "4", posts[0].ID)
	assert.Equal(t, "3", posts[1].ID)
	assert.Equal(t, "1", posts[2].ID)

	// offset and limit page through the filtered sequence
	posts, err = repo.GetPostsPage(ctx, "mastodon", domain.BucketRegular, 2, 1)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "3", posts[0].ID)
	assert.Equal(t, "1", posts[1].ID)

	posts, err = repo.GetPostsPage(ctx, "mastodon", domain.BucketWithImages, 10, 0)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "2", posts[0].ID)
}

func TestCountsByBucket(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertPost(ctx, testPost("mastodon", "1", baseTime)))
	require.NoError(t, repo.UpsertPost(ctx, testPost("mastodon", "2", baseTime.Add(time.Minute), func(p *domain.Post) {
		p.AccountBot = true
	})))
	require.NoError(t, repo.UpsertPost(ctx, testPost("mastodon", "3", baseTime.Add(2*time.Minute), func(p *domain.Post) {
		p.Language = "de"
	})))

	counts, err := repo.CountsByBucket(ctx, "mastodon")
	require.NoError(t, err)

	// every bucket is present, including empty ones
	assert.Len(t, counts, len(domain.Buckets))
	assert.Equal(t, 1, counts[domain.BucketRegular])
	assert.Equal(t, 1, counts[domain.BucketFromBots])
	assert.Equal(t, 1, counts[domain.BucketNonEnglish])
	assert.Equal(t, 0, counts[domain.BucketWithImages])
}

func TestMarkSeenScoping(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	withImage := func(p *domain.Post) {
		p.MediaAttachments = []domain.MediaAttachment{{Type: "image"}}
	}

	require.NoError(t, repo.UpsertPost(ctx, testPost("mastodon", "1", baseTime, withImage)))
	require.NoError(t, repo.UpsertPost(ctx, testPost("mastodon", "2", baseTime.Add(time.Minute))))
	require.NoError(t, repo.UpsertPost(ctx, testPost("mastodon", "3", baseTime.Add(2*time.Minute), withImage)))
	// outside the window
	require.NoError(t, repo.UpsertPost(ctx, testPost("mastodon", "4", baseTime.Add(time.Hour), withImage)))

	updated, err := repo.MarkSeen(ctx, "mastodon", domain.BucketWithImages, baseTime, baseTime.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	seen := map[string]bool{}
	for _, bucket := range []domain.Bucket{domain.BucketWithImages, domain.BucketRegular} {
		posts, err := repo.GetPostsPage(ctx, "mastodon", bucket, 10, 0)
		require.NoError(t, err)
		for _, p := range posts {
			seen[p.ID] = p.Seen
		}
	}

	assert.True(t, seen["1"])
	assert.True(t, seen["3"])
	assert.False(t, seen["2"], "other buckets stay unseen")
	assert.False(t, seen["4"], "posts outside the window stay unseen")
}

func TestMarkSeenEmptyWindow(t *testing.T) {
	repo := newTestRepo(t)

	updated, err := repo.MarkSeen(context.Background(), "mastodon", domain.BucketRegular, baseTime, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, updated)
}

func TestSetSavedUnknownPost(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.SetSaved(context.Background(), "mastodon", "999", true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestServerStatsConsistency(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertPost(ctx, testPost("mastodon", "1", baseTime)))
	require.NoError(t, repo.UpsertPost(ctx, testPost("mastodon", "2", baseTime.Add(time.Minute), func(p *domain.Post) {
		p.AccountBot = true
	})))
	require.NoError(t, repo.UpsertPost(ctx, testPost("mastodon", "3", baseTime.Add(2*time.Minute), func(p *domain.Post) {
		p.InReplyToID = "1"
	})))

	_, err := repo.MarkSeen(ctx, "mastodon", domain.BucketAsReplies, baseTime, baseTime.Add(time.Hour))
	require.NoError(t, err)

	stats, err := repo.ServerStats(ctx, "mastodon")
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalPosts)
	assert.Equal(t, 1, stats.SeenPosts)
	require.NotNil(t, stats.OldestPost)
	require.NotNil(t, stats.NewestPost)
	assert.True(t, stats.OldestPost.Equal(baseTime))
	assert.True(t, stats.NewestPost.Equal(baseTime.Add(2*time.Minute)))

	// the bucket split always sums back to the total
	sum := 0
	for _, bs := range stats.Buckets {
		sum += bs.Seen + bs.Unseen
	}
	assert.Equal(t, stats.TotalPosts, sum)
	assert.Equal(t, domain.BucketStats{Seen: 1, Unseen: 0}, stats.Buckets[domain.BucketAsReplies])
}

func TestReviewScenario(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertPost(ctx, testPost("mastodon", "123", baseTime)))
	require.NoError(t, repo.UpsertPost(ctx, testPost("mastodon", "124", baseTime.Add(time.Minute), func(p *domain.Post) {
		p.MediaAttachments = []domain.MediaAttachment{{Type: "image", URL: "https://files.example/1.png"}}
	})))

	newest, err := repo.GetNewestPost(ctx, "mastodon")
	require.NoError(t, err)
	assert.Equal(t, "124", newest.ID)

	counts, err := repo.CountsByBucket(ctx, "mastodon")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.BucketWithImages])
	assert.Equal(t, 1, counts[domain.BucketRegular])

	updated, err := repo.MarkSeen(ctx, "mastodon", domain.BucketRegular, baseTime, baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	regular, err := repo.GetPostsPage(ctx, "mastodon", domain.BucketRegular, 10, 0)
	require.NoError(t, err)
	require.Len(t, regular, 1)
	assert.True(t, regular[0].Seen)

	images, err := repo.GetPostsPage(ctx, "mastodon", domain.BucketWithImages, 10, 0)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.False(t, images[0].Seen)
}

func TestResetServer(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertPost(ctx, testPost("mastodon", "1", baseTime)))
	require.NoError(t, repo.UpsertPost(ctx, testPost("hachyderm", "1", baseTime)))

	require.NoError(t, repo.ResetServer(ctx, "mastodon"))

	gone, err := repo.GetNewestPost(ctx, "mastodon")
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := repo.GetNewestPost(ctx, "hachyderm")
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, "1", kept.ID)

	servers, err := repo.Servers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"hachyderm"}, servers)

	require.NoError(t, repo.ResetAll(ctx))
	servers, err = repo.Servers(ctx)
	require.NoError(t, err)
	assert.Empty(t, servers)
}

func TestAccountTags(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.AddAccountTag(ctx, "a1", "spammer"))
	require.NoError(t, repo.AddAccountTag(ctx, "a1", "spammer"))
	require.NoError(t, repo.AddAccountTag(ctx, "a1", "artist"))

	tags, err := repo.GetAccountTags(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, tags, 2)

	byTag := map[string]int{}
	for _, tag := range tags {
		byTag[tag.Tag] = tag.Count
	}
	assert.Equal(t, 2, byTag["spammer"])
	assert.Equal(t, 1, byTag["artist"])

	none, err := repo.GetAccountTags(ctx, "someone-else")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMalformedMediaIsSoftFailure(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertPost(ctx, testPost("mastodon", "1", baseTime)))

	// corrupt the stored media payload behind the repository's back
	_, err := repo.db.ExecContext(ctx,
		`UPDATE posts SET media_attachments = '{broken' WHERE id = '1'`)
	require.NoError(t, err)

	got, err := repo.GetNewestPost(ctx, "mastodon")
	require.NoError(t, err, "malformed media must not fail the read")
	require.NotNil(t, got)
	assert.Empty(t, got.MediaAttachments)
	assert.Equal(t, domain.BucketRegular, domain.Classify(got))
}
