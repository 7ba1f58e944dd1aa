package models

import "time"

type Topic struct {
	ID int `db:"id"`

	CategoryID int `db:"category_id"`
	UserID     int `db:"user_id"`

	Title string    `db:"title"`
	Slug  string    `db:"slug"`
	Date  time.Time `db:"date"`

	LastActive      time.Time `db:"last_active"`
	LastCommenterID *int      `db:"last_commenter_id"`

	IsPinned         bool `db:"is_pinned"`
	IsGloballyPinned bool `db:"is_globally_pinned"`
	IsClosed         bool `db:"is_closed"`
	IsRemoved        bool `db:"is_removed"`

	CommentCount int `db:"comment_count"`
	ViewCount    int `db:"view_count"`

	ReindexAt time.Time `db:"reindex_at"`
}
