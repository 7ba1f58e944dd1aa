package website

import (
	"net/http"

	"git.handmade.network/hmn/forum/src/forumdata"
	"git.handmade.network/hmn/forum/src/forumurl"
	"git.handmade.network/hmn/forum/src/models"
	"git.handmade.network/hmn/forum/src/oops"
	"git.handmade.network/hmn/forum/src/templates"
)

type notificationsData struct {
	templates.BaseData
	Notifications []templates.Notification
}

const notificationsPageLimit = 100

func Notifications(c *RequestContext) ResponseData {
	notifications, err := forumdata.FetchUnreadNotifications(c, c.Conn, c.Access, notificationsPageLimit)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, oops.New(err, "failed to fetch notifications"))
	}

	var tmplNotifications []templates.Notification
	for _, n := range notifications {
		comment := templates.CommentToTemplate(&n.Comment, n.Author)
		tmplNotifications = append(tmplNotifications, templates.Notification{
			Topic:   templates.TopicToTemplate(&n.Topic, nil, nil, nil),
			Url:     forumurl.BuildCommentFind(n.Comment.ID),
			Reason:  notificationReason(n.Notification.Action),
			Comment: &comment,
		})
	}

	var res ResponseData
	res.MustWriteTemplate("notifications.html", notificationsData{
		BaseData:      getBaseData(c, "Notifications", []templates.Breadcrumb{{Name: "Notifications", Url: forumurl.BuildNotifications()}}),
		Notifications: tmplNotifications,
	}, c.Perf)
	return res
}

func notificationReason(action models.NotificationAction) string {
	switch action {
	case models.NotificationMention:
		return "You were mentioned"
	default:
		return "New comment"
	}
}
