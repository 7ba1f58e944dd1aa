package templates

import (
	"html/template"

	"git.handmade.network/hmn/forum/src/forumurl"
	"git.handmade.network/hmn/forum/src/models"
)

func UserToTemplate(u *models.User) *User {
	if u == nil {
		return nil
	}
	return &User{
		ID:          u.ID,
		Username:    u.Username,
		IsStaff:     u.IsStaff,
		IsModerator: u.IsModerator,
	}
}

func CategoryToTemplate(c *models.Category) *Category {
	if c == nil {
		return nil
	}
	return &Category{
		ID:          c.ID,
		Title:       c.DisplayTitle(),
		Description: c.Description,
		Url:         forumurl.BuildCategory(c.ID, c.Slug, 1),
		Color:       c.Color,

		IsClosed:  c.IsClosed,
		IsRemoved: c.IsRemoved,
		IsPrivate: c.IsPrivate,

		PublishUrl: forumurl.BuildTopicPublish(c.ID),
	}
}

func TopicToTemplate(t *models.Topic, category *models.Category, author, lastCommenter *models.User) Topic {
	return Topic{
		ID:    t.ID,
		Title: t.Title,
		Url:   forumurl.BuildTopic(t.ID, t.Slug, 1),

		Category: CategoryToTemplate(category),
		Author:   UserToTemplate(author),

		Date:          t.Date,
		LastActive:    t.LastActive,
		LastCommenter: UserToTemplate(lastCommenter),
		CommentCount:  t.CommentCount,
		ViewCount:     t.ViewCount,

		IsPinned:         t.IsPinned,
		IsGloballyPinned: t.IsGloballyPinned,
		IsClosed:         t.IsClosed,
		IsRemoved:        t.IsRemoved,
	}
}

// CommentToTemplate leaves the edit and delete urls blank. The caller knows
// whether the viewer is allowed to use them.
func CommentToTemplate(c *models.Comment, author *models.User) Comment {
	result := Comment{
		ID:     c.ID,
		Url:    forumurl.BuildCommentFind(c.ID),
		Anchor: forumurl.CommentAnchor(c.ID),

		Author:  UserToTemplate(author),
		Content: template.HTML(c.HTML),
		Date:    c.Date,

		LastModified: c.LastModified,
		EditCount:    c.EditCount,

		IsRemoved: c.IsRemoved,
	}
	if c.Action.IsModeration() {
		result.Action = c.Action.String()
	}
	return result
}

func SessionToTemplate(s *models.Session) *Session {
	if s == nil {
		return nil
	}
	return &Session{CSRFToken: s.CSRFToken}
}
