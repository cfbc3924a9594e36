package domain

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Bucket is the single derived content category assigned to a post. Buckets
// are computed on demand from the stored row and are never persisted, so the
// same record always classifies the same way at read and at statistics time.
type Bucket string

const (
	BucketReblogs         Bucket = "reblogs"
	BucketFromBots        Bucket = "fromBots"
	BucketNonEnglish      Bucket = "nonEnglish"
	BucketWithImages      Bucket = "withImages"
	BucketHashtags        Bucket = "hashtags"
	BucketNetworkMentions Bucket = "networkMentions"
	BucketWithLinks       Bucket = "withLinks"
	BucketAsReplies       Bucket = "asReplies"
	BucketRegular         Bucket = "regular"
)

// Buckets lists every bucket in classification precedence order.
var Buckets = []Bucket{
	BucketReblogs,
	BucketFromBots,
	BucketNonEnglish,
	BucketWithImages,
	BucketHashtags,
	BucketNetworkMentions,
	BucketWithLinks,
	BucketAsReplies,
	BucketRegular,
}

// ParseBucket validates a caller-supplied bucket name.
func ParseBucket(s string) (Bucket, error) {
	for _, b := range Buckets {
		if string(b) == s {
			return b, nil
		}
	}
	return "", ErrUnknownBucket
}

// Anchor class markers emitted by Mastodon-compatible servers. A hashtag link
// renders as class="mention hashtag" (or bare "hashtag"), a user mention as
// class="u-url mention". Anything else without an "invisible" inner span is
// an ordinary external link.
const (
	classHashtag        = "hashtag"
	classMentionHashtag = "mention hashtag"
	classMention        = "u-url mention"
)

type anchorKind int

const (
	anchorHashtag anchorKind = iota
	anchorMention
	anchorInvisible
	anchorExternal
)

// Classify maps a post to exactly one bucket. The rules run in a fixed
// precedence order and the first match wins: structural author-level facts
// (reblog, bot, language) dominate content-shape heuristics, media and
// hashtag detection run before the generic link rule, and "is a reply" is the
// weakest signal of all.
func Classify(p *Post) Bucket {
	switch {
	case p.ParentID != "":
		return BucketReblogs
	case p.AccountBot:
		return BucketFromBots
	case p.Language != "" && p.Language != "en":
		return BucketNonEnglish
	case len(p.MediaAttachments) > 0:
		return BucketWithImages
	}

	anchors := scanAnchors(p.Content)

	hasHashtag := false
	allNetwork := len(anchors) > 0
	for _, kind := range anchors {
		if kind == anchorHashtag {
			hasHashtag = true
		}
		if kind == anchorExternal {
			allNetwork = false
		}
	}

	switch {
	case hasHashtag:
		return BucketHashtags
	case allNetwork:
		return BucketNetworkMentions
	case len(anchors) > 0:
		return BucketWithLinks
	case p.InReplyToID != "":
		return BucketAsReplies
	}
	return BucketRegular
}

// scanAnchors extracts every anchor element from the post's HTML content and
// reports its kind. Content that cannot be parsed at all yields no anchors.
func scanAnchors(content string) []anchorKind {
	if !strings.Contains(content, "<a") {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil
	}

	var kinds []anchorKind
	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		kinds = append(kinds, classifyAnchor(sel))
	})
	return kinds
}

func classifyAnchor(sel *goquery.Selection) anchorKind {
	class := strings.TrimSpace(sel.AttrOr("class", ""))
	switch class {
	case classHashtag, classMentionHashtag:
		return anchorHashtag
	case classMention:
		return anchorMention
	}
	if sel.Find("span.invisible").Length() > 0 {
		return anchorInvisible
	}
	return anchorExternal
}
