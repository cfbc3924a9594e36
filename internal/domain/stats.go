package domain

import "time"

// BucketStats is the seen/unseen split for one bucket.
type BucketStats struct {
	Seen   int `json:"seen"`
	Unseen int `json:"unseen"`
}

// ServerStats is the aggregate view of one server's stored posts. It is
// recomputed in full on every request; with tens of thousands of rows per
// server that trade keeps the numbers exactly consistent with the classifier
// with no cached state to invalidate.
type ServerStats struct {
	Server     string                 `json:"server"`
	TotalPosts int                    `json:"total_posts"`
	SeenPosts  int                    `json:"seen_posts"`
	OldestPost *time.Time             `json:"oldest_post,omitempty"`
	NewestPost *time.Time             `json:"newest_post,omitempty"`
	Buckets    map[Bucket]BucketStats `json:"buckets"`
}
