package mastodon

import (
	"time"

	"github.com/blackmichael/mastodon-triage/internal/domain"
)

// status is the raw JSON shape of a Mastodon status. Nullable fields use
// pointers so a missing language or reply reference decodes cleanly.
type status struct {
	ID               string            `json:"id"`
	CreatedAt        time.Time         `json:"created_at"`
	InReplyToID      *string           `json:"in_reply_to_id"`
	Content          string            `json:"content"`
	Language         *string           `json:"language"`
	URL              string            `json:"url"`
	Visibility       string            `json:"visibility"`
	FavouritesCount  int               `json:"favourites_count"`
	ReblogsCount     int               `json:"reblogs_count"`
	RepliesCount     int               `json:"replies_count"`
	Account          account           `json:"account"`
	MediaAttachments []mediaAttachment `json:"media_attachments"`
	Reblog           *status           `json:"reblog"`
}

// account is the nested author data on a status.
type account struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
	Avatar      string `json:"avatar"`
	Bot         bool   `json:"bot"`
}

// mediaAttachment is one attached media item on a status.
type mediaAttachment struct {
	Type        string  `json:"type"`
	URL         string  `json:"url"`
	PreviewURL  string  `json:"preview_url"`
	Description *string `json:"description"`
}

func (s *status) toDomain() *domain.RemoteStatus {
	remote := &domain.RemoteStatus{
		ID:              s.ID,
		CreatedAt:       s.CreatedAt,
		Content:         s.Content,
		URL:             s.URL,
		Visibility:      s.Visibility,
		FavouritesCount: s.FavouritesCount,
		ReblogsCount:    s.ReblogsCount,
		RepliesCount:    s.RepliesCount,
		Account:         s.Account.toDomain(),
	}
	if s.Language != nil {
		remote.Language = *s.Language
	}
	if s.InReplyToID != nil {
		remote.InReplyToID = *s.InReplyToID
	}
	if len(s.MediaAttachments) > 0 {
		remote.Media = make([]domain.MediaAttachment, len(s.MediaAttachments))
		for i, m := range s.MediaAttachments {
			remote.Media[i] = m.toDomain()
		}
	}
	if s.Reblog != nil {
		remote.Reblog = s.Reblog.toDomain()
	}
	return remote
}

func (a account) toDomain() domain.RemoteAccount {
	return domain.RemoteAccount{
		ID:          a.ID,
		Username:    a.Username,
		DisplayName: a.DisplayName,
		URL:         a.URL,
		Avatar:      a.Avatar,
		Bot:         a.Bot,
	}
}

func (m mediaAttachment) toDomain() domain.MediaAttachment {
	att := domain.MediaAttachment{
		Type:       m.Type,
		URL:        m.URL,
		PreviewURL: m.PreviewURL,
	}
	if m.Description != nil {
		att.Description = *m.Description
	}
	return att
}
