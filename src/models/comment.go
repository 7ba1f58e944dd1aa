package models

import "time"

type CommentAction int

const (
	CommentActionComment CommentAction = iota
	CommentActionMoved
	CommentActionClosed
	CommentActionUnclosed
	CommentActionPinned
	CommentActionUnpinned
	CommentActionRemoved
	CommentActionRestored
	CommentActionGloballyPinned
	CommentActionGloballyUnpinned
)

var commentActionNames = map[CommentAction]string{
	CommentActionComment:          "comment",
	CommentActionMoved:            "moved",
	CommentActionClosed:           "closed",
	CommentActionUnclosed:         "unclosed",
	CommentActionPinned:           "pinned",
	CommentActionUnpinned:         "unpinned",
	CommentActionRemoved:          "removed",
	CommentActionRestored:         "restored",
	CommentActionGloballyPinned:   "globally pinned",
	CommentActionGloballyUnpinned: "globally unpinned",
}

func (a CommentAction) String() string {
	if name, ok := commentActionNames[a]; ok {
		return name
	}
	return "unknown"
}

// Moderation actions are logged as comments so they show up in the thread.
func (a CommentAction) IsModeration() bool {
	return a != CommentActionComment
}

type Comment struct {
	ID int `db:"id"`

	TopicID int `db:"topic_id"`
	UserID  int `db:"user_id"`

	Date         time.Time  `db:"date"`
	LastModified *time.Time `db:"last_modified"`
	EditCount    int        `db:"edit_count"`

	Markdown string `db:"comment"`
	HTML     string `db:"comment_html"`

	Action    CommentAction `db:"action"`
	IsRemoved bool          `db:"is_removed"`
	IPAddress string        `db:"ip_address"`
}

type CommentHistory struct {
	ID        int       `db:"id"`
	CommentID int       `db:"comment_id"`
	Date      time.Time `db:"date"`
	HTML      string    `db:"comment_html"`
}
