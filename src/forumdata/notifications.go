package forumdata

import (
	"context"
	"strings"

	"git.handmade.network/hmn/forum/src/db"
	"git.handmade.network/hmn/forum/src/models"
	"git.handmade.network/hmn/forum/src/oops"
)

// Subscribes the author to the topic; their own comment counts as read.
func subscribeAuthor(ctx context.Context, tx db.ConnOrTx, comment *models.Comment) error {
	_, err := tx.Exec(ctx,
		`
		---- Subscribe author
		INSERT INTO topic_notification (user_id, topic_id, comment_id, action, date, is_read, is_active)
		VALUES ($1, $2, $3, $4, NOW(), TRUE, TRUE)
		ON CONFLICT (user_id, topic_id) DO UPDATE SET
			comment_id = EXCLUDED.comment_id,
			date = EXCLUDED.date,
			is_read = TRUE,
			is_active = TRUE
		`,
		comment.UserID,
		comment.TopicID,
		comment.ID,
		models.NotificationComment,
	)
	if err != nil {
		return oops.New(err, "failed to subscribe author to topic")
	}
	return nil
}

// Marks the topic unread for everyone else subscribed to it.
func notifyParticipants(ctx context.Context, tx db.ConnOrTx, comment *models.Comment) error {
	_, err := tx.Exec(ctx,
		`
		---- Notify participants
		UPDATE topic_notification
		SET
			comment_id = $3,
			action = $4,
			date = NOW(),
			is_read = FALSE
		WHERE
			topic_id = $1
			AND user_id <> $2
			AND is_active
		`,
		comment.TopicID,
		comment.UserID,
		comment.ID,
		models.NotificationComment,
	)
	if err != nil {
		return oops.New(err, "failed to notify topic participants")
	}
	return nil
}

// Notifies mentioned users, skipping the author and anyone who cannot see the
// topic's category.
func notifyMentions(ctx context.Context, tx db.ConnOrTx, category *models.Category, comment *models.Comment, usernames []string) error {
	if len(usernames) == 0 {
		return nil
	}

	lowered := make([]string, 0, len(usernames))
	for _, name := range usernames {
		lowered = append(lowered, strings.ToLower(name))
	}

	users, err := FetchUsers(ctx, tx, UsersQuery{Usernames: lowered})
	if err != nil {
		return oops.New(err, "failed to look up mentioned users")
	}

	for _, user := range users {
		if user.ID == comment.UserID {
			continue
		}
		if category != nil {
			access, err := LoadAccess(ctx, tx, user)
			if err != nil {
				return err
			}
			if !Visible(access, category) {
				continue
			}
		}

		_, err := tx.Exec(ctx,
			`
			---- Notify mention
			INSERT INTO topic_notification (user_id, topic_id, comment_id, action, date, is_read, is_active)
			VALUES ($1, $2, $3, $4, NOW(), FALSE, TRUE)
			ON CONFLICT (user_id, topic_id) DO UPDATE SET
				comment_id = EXCLUDED.comment_id,
				action = EXCLUDED.action,
				date = EXCLUDED.date,
				is_read = FALSE
			`,
			user.ID,
			comment.TopicID,
			comment.ID,
			models.NotificationMention,
		)
		if err != nil {
			return oops.New(err, "failed to notify mentioned user")
		}
	}
	return nil
}

type NotificationAndStuff struct {
	Notification models.TopicNotification `db:"topic_notification"`
	Topic        models.Topic             `db:"topic"`
	Comment      models.Comment           `db:"comment"`
	Author       *models.User             `db:"author"`
}

// FetchUnreadNotifications returns the user's unread notifications, newest first,
// restricted to topics they can still see.
func FetchUnreadNotifications(ctx context.Context, conn db.ConnOrTx, access *Access, limit int) ([]NotificationAndStuff, error) {
	if !access.IsAuthenticated() {
		return nil, nil
	}
	cats, err := FetchCategories(ctx, conn, access)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query[NotificationAndStuff](ctx, conn,
		`
		---- Fetch unread notifications
		SELECT $columns
		FROM
			topic_notification
			JOIN topic ON topic.id = topic_notification.topic_id
			JOIN comment ON comment.id = topic_notification.comment_id
			LEFT JOIN forum_user AS author ON author.id = comment.user_id
		WHERE
			topic_notification.user_id = $1
			AND topic_notification.is_active
			AND NOT topic_notification.is_read
			AND topic.category_id = ANY($2)
			AND NOT topic.is_removed
			AND NOT comment.is_removed
		ORDER BY topic_notification.date DESC
		LIMIT $3
		`,
		access.UserID(),
		ids(cats),
		limit,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch notifications")
	}

	result := make([]NotificationAndStuff, len(rows))
	for i, row := range rows {
		result[i] = *row
	}
	return result, nil
}

func CountUnreadNotifications(ctx context.Context, conn db.ConnOrTx, access *Access) (int, error) {
	if !access.IsAuthenticated() {
		return 0, nil
	}
	cats, err := FetchCategories(ctx, conn, access)
	if err != nil {
		return 0, err
	}

	count, err := db.QueryOneScalar[int](ctx, conn,
		`
		---- Count unread notifications
		SELECT COUNT(*)
		FROM
			topic_notification
			JOIN topic ON topic.id = topic_notification.topic_id
			JOIN comment ON comment.id = topic_notification.comment_id
		WHERE
			topic_notification.user_id = $1
			AND topic_notification.is_active
			AND NOT topic_notification.is_read
			AND topic.category_id = ANY($2)
			AND NOT topic.is_removed
			AND NOT comment.is_removed
		`,
		access.UserID(),
		ids(cats),
	)
	if err != nil {
		return 0, oops.New(err, "failed to count notifications")
	}
	return count, nil
}

// MarkTopicRead clears the user's notification for a topic once they view it.
func MarkTopicRead(ctx context.Context, conn db.ConnOrTx, userID, topicID int) error {
	_, err := conn.Exec(ctx,
		`
		---- Mark topic read
		UPDATE topic_notification
		SET is_read = TRUE
		WHERE user_id = $1 AND topic_id = $2 AND NOT is_read
		`,
		userID,
		topicID,
	)
	if err != nil {
		return oops.New(err, "failed to mark topic read")
	}
	return nil
}
