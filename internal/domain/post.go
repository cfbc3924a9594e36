package domain

import (
	"encoding/json"
	"time"
)

// Post represents one stored timeline post. A post is unique per
// (ID, ServerSlug) pair; IDs are opaque strings assigned by the remote server
// and collide across servers.
type Post struct {
	// ID is the remote server's identifier for this post.
	ID string

	// ServerSlug identifies which configured server this post came from.
	ServerSlug string

	// CreatedAt is the remote-assigned creation time. It is immutable once
	// stored and drives all ordering and cursor selection.
	CreatedAt time.Time

	// Content is the raw HTML body of the post.
	Content string

	// Language is the ISO language code, or empty when the remote server did
	// not set one. An empty language is treated as English.
	Language string

	// InReplyToID references the post this one replies to, if any.
	InReplyToID string

	// ParentID is set when this record is a reblog wrapper around another
	// post; it references the wrapped post's ID on the same server.
	ParentID string

	URL string

	// Flattened author attributes, denormalized at ingestion time.
	AccountID          string
	AccountUsername    string
	AccountDisplayName string
	AccountURL         string
	AccountAvatar      string
	AccountBot         bool

	// MediaAttachments holds the post's media descriptors, empty by default.
	MediaAttachments []MediaAttachment

	Visibility      string
	FavouritesCount int
	ReblogsCount    int
	RepliesCount    int

	// Seen and Saved are locally owned review flags. Ingestion never writes
	// them; they belong to the seen-state updater and the save toggle.
	Seen  bool
	Saved bool
}

// MediaAttachment describes one attached media item.
type MediaAttachment struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	PreviewURL  string `json:"preview_url"`
	Description string `json:"description"`
}

// EncodeMedia serializes media attachments for storage. A nil or empty slice
// encodes as an empty JSON array so the stored form is always valid.
func EncodeMedia(media []MediaAttachment) string {
	if len(media) == 0 {
		return "[]"
	}
	b, err := json.Marshal(media)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// DecodeMedia deserializes stored media attachments. Malformed data returns
// an empty slice and a non-nil error; callers log and continue, they never
// fail a read over one bad row.
func DecodeMedia(raw string) ([]MediaAttachment, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var media []MediaAttachment
	if err := json.Unmarshal([]byte(raw), &media); err != nil {
		return nil, err
	}
	return media, nil
}

// AccountTag is a moderation label attached to an author. Applying the same
// tag again increments Count rather than adding a second row.
type AccountTag struct {
	AccountID string    `json:"account_id"`
	Tag       string    `json:"tag"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
}

// RemoteAccount is the author data carried by a remote status.
type RemoteAccount struct {
	ID          string
	Username    string
	DisplayName string
	URL         string
	Avatar      string
	Bot         bool
}

// RemoteStatus is a post as returned by the remote timeline API, before
// normalization. A reblog carries the wrapped original status nested inside.
type RemoteStatus struct {
	ID              string
	CreatedAt       time.Time
	Content         string
	Language        string
	InReplyToID     string
	URL             string
	Visibility      string
	FavouritesCount int
	ReblogsCount    int
	RepliesCount    int
	Account         RemoteAccount
	Media           []MediaAttachment
	Reblog          *RemoteStatus
}

// PostsFromStatus normalizes a remote status into flat post records for the
// given server. A reblog wrapper becomes two rows: the wrapper with ParentID
// set and, recursively, the wrapped original post as its own record.
func PostsFromStatus(serverSlug string, st *RemoteStatus) []*Post {
	post := &Post{
		ID:                 st.ID,
		ServerSlug:         serverSlug,
		CreatedAt:          st.CreatedAt,
		Content:            st.Content,
		Language:           st.Language,
		InReplyToID:        st.InReplyToID,
		URL:                st.URL,
		AccountID:          st.Account.ID,
		AccountUsername:    st.Account.Username,
		AccountDisplayName: st.Account.DisplayName,
		AccountURL:         st.Account.URL,
		AccountAvatar:      st.Account.Avatar,
		AccountBot:         st.Account.Bot,
		MediaAttachments:   st.Media,
		Visibility:         st.Visibility,
		FavouritesCount:    st.FavouritesCount,
		ReblogsCount:       st.ReblogsCount,
		RepliesCount:       st.RepliesCount,
	}

	if st.Reblog == nil {
		return []*Post{post}
	}

	post.ParentID = st.Reblog.ID
	return append([]*Post{post}, PostsFromStatus(serverSlug, st.Reblog)...)
}
