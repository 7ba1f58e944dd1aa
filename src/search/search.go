/*
Package search keeps a full-text index of topics in Meilisearch. The index is
fed by a background job that picks up anything whose reindex_at moved, and it
is queried with the requester's visible categories as a filter, so access
rules stay with forumdata.
*/
package search

import (
	"context"
	"strings"
)

// Document is what gets indexed for one topic.
type Document struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	CategoryID int    `json:"category_id"`
	UserID     int    `json:"user_id"`
	LastActive int64  `json:"last_active"`
}

type Query struct {
	Text string

	// Only topics in these categories match. An empty list matches nothing.
	CategoryIDs []int

	Limit, Offset int
}

type Result struct {
	TopicID    int
	CategoryID int
	Title      string
	Snippet    string
}

type Index interface {
	IndexTopics(ctx context.Context, docs []Document) error
	DeleteTopics(ctx context.Context, topicIDs []int) error
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

const maxBodyLength = 5000

// Keeps documents a reasonable size; the start of a topic is what people search for.
func truncateBody(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxBodyLength {
		return s
	}
	cut := maxBodyLength
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
