package models

import "time"

type NotificationAction int

const (
	NotificationComment NotificationAction = iota + 1
	NotificationMention
)

type TopicNotification struct {
	ID int `db:"id"`

	UserID    int                `db:"user_id"`
	TopicID   int                `db:"topic_id"`
	CommentID int                `db:"comment_id"`
	Action    NotificationAction `db:"action"`
	Date      time.Time          `db:"date"`
	IsRead    bool               `db:"is_read"`
	IsActive  bool               `db:"is_active"`
}
