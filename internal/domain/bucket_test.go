package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		post Post
		want Bucket
	}{
		{
			name: "reblog wrapper",
			post: Post{ParentID: "200"},
			want: BucketReblogs,
		},
		{
			name: "reblog beats reply",
			post: Post{ParentID: "200", InReplyToID: "100"},
			want: BucketReblogs,
		},
		{
			name: "bot author",
			post: Post{AccountBot: true},
			want: BucketFromBots,
		},
		{
			name: "bot beats hashtag content",
			post: Post{AccountBot: true, Content: `<p><a href="https://example.social/tags/go" class="mention hashtag">#go</a></p>`},
			want: BucketFromBots,
		},
		{
			name: "non-english language",
			post: Post{Language: "de"},
			want: BucketNonEnglish,
		},
		{
			name: "english language falls through",
			post: Post{Language: "en"},
			want: BucketRegular,
		},
		{
			name: "absent language treated as english",
			post: Post{},
			want: BucketRegular,
		},
		{
			name: "non-english beats media",
			post: Post{Language: "fr", MediaAttachments: []MediaAttachment{{Type: "image"}}},
			want: BucketNonEnglish,
		},
		{
			name: "media attachment",
			post: Post{MediaAttachments: []MediaAttachment{{Type: "image", URL: "https://files.example/1.png"}}},
			want: BucketWithImages,
		},
		{
			name: "media beats hashtag content",
			post: Post{
				MediaAttachments: []MediaAttachment{{Type: "image"}},
				Content:          `<p><a href="https://example.social/tags/go" class="hashtag">#go</a></p>`,
			},
			want: BucketWithImages,
		},
		{
			name: "hashtag anchor",
			post: Post{Content: `<p>new release <a href="https://example.social/tags/golang" class="mention hashtag">#golang</a></p>`},
			want: BucketHashtags,
		},
		{
			name: "bare hashtag class",
			post: Post{Content: `<p><a href="https://example.social/tags/foss" class="hashtag">#foss</a></p>`},
			want: BucketHashtags,
		},
		{
			name: "hashtag beats mention-only shape",
			post: Post{Content: `<p><a href="https://example.social/@bob" class="u-url mention">@bob</a> <a href="https://example.social/tags/go" class="hashtag">#go</a></p>`},
			want: BucketHashtags,
		},
		{
			name: "mentions only",
			post: Post{Content: `<p><a href="https://example.social/@bob" class="u-url mention">@bob</a> hi!</p>`},
			want: BucketNetworkMentions,
		},
		{
			name: "invisible span anchor counts as network link",
			post: Post{Content: `<p><a href="https://example.social/@bob/1"><span class="invisible">https://</span>example.social/@bob/1</a></p>`},
			want: BucketNetworkMentions,
		},
		{
			name: "mention plus external link",
			post: Post{Content: `<p><a href="https://example.social/@bob" class="u-url mention">@bob</a> see <a href="https://blog.example">this</a></p>`},
			want: BucketWithLinks,
		},
		{
			name: "plain external link",
			post: Post{Content: `<p>read <a href="https://blog.example/post">my post</a></p>`},
			want: BucketWithLinks,
		},
		{
			name: "zero links never match network mentions",
			post: Post{Content: `<p>just text</p>`},
			want: BucketRegular,
		},
		{
			name: "reply with no links",
			post: Post{InReplyToID: "100", Content: `<p>agreed!</p>`},
			want: BucketAsReplies,
		},
		{
			name: "link beats reply",
			post: Post{InReplyToID: "100", Content: `<p><a href="https://blog.example">src</a></p>`},
			want: BucketWithLinks,
		},
		{
			name: "empty post",
			post: Post{Content: ""},
			want: BucketRegular,
		},
		{
			name: "malformed html",
			post: Post{Content: `<p><a class="hashtag">#oops`},
			want: BucketHashtags,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(&tt.post)
			assert.Equal(t, tt.want, got)

			// pure function: same record, same bucket
			assert.Equal(t, got, Classify(&tt.post))
		})
	}
}

func TestClassifyTotality(t *testing.T) {
	known := make(map[Bucket]bool, len(Buckets))
	for _, b := range Buckets {
		known[b] = true
	}

	posts := []Post{
		{},
		{ParentID: "1"},
		{AccountBot: true},
		{Language: "ja"},
		{MediaAttachments: []MediaAttachment{{}}},
		{Content: `<a class="hashtag">#x</a>`},
		{Content: `<a class="u-url mention">@x</a>`},
		{Content: `<a href="https://x.example">x</a>`},
		{InReplyToID: "2"},
	}
	for _, p := range posts {
		assert.True(t, known[Classify(&p)], "classification must land in the enumeration")
	}
}

func TestParseBucket(t *testing.T) {
	for _, b := range Buckets {
		got, err := ParseBucket(string(b))
		require.NoError(t, err)
		assert.Equal(t, b, got)
	}

	_, err := ParseBucket("trending")
	assert.ErrorIs(t, err, ErrUnknownBucket)
}
