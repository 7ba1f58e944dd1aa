package forumdata

import (
	"context"
	"errors"
	"strconv"

	"git.handmade.network/hmn/forum/src/db"
	"git.handmade.network/hmn/forum/src/idempotency"
	"git.handmade.network/hmn/forum/src/logging"
	"git.handmade.network/hmn/forum/src/models"
	"git.handmade.network/hmn/forum/src/oops"
	"git.handmade.network/hmn/forum/src/ratelimit"
	"git.handmade.network/hmn/forum/src/utils"
)

// Deps are the shared services the write paths need besides the database.
type Deps struct {
	Guard       idempotency.Guard
	Limiter     ratelimit.Limiter
	PublishRate ratelimit.Rate
	Limits      Limits

	// Optional. Lets admins change the publish rate without a restart.
	Settings SettingsProvider
}

type Result struct {
	Topic   *models.Topic
	Comment *models.Comment

	// The submission repeated the user's previous one and nothing new was
	// written. Comment (and Topic) point at what was already posted, or are
	// nil if the earlier post has not been committed yet.
	Duplicate bool
}

func (d Deps) publishRate(ctx context.Context) ratelimit.Rate {
	if d.Settings != nil {
		if override := d.Settings.Settings(ctx).PublishRate; override != "" {
			if rate, err := ratelimit.ParseRate(override); err == nil {
				return rate
			}
		}
	}
	return d.PublishRate
}

func (d Deps) checkRate(ctx context.Context, user *models.User) error {
	decision := d.Limiter.Allow(ctx, "publish:"+strconv.Itoa(user.ID), d.publishRate(ctx))
	if !decision.Allowed {
		return ErrRateLimited
	}
	return nil
}

// checkDuplicate reports whether hash repeats the user's last submission. Guard
// failures are logged and treated as "not a duplicate" so posting keeps
// working when Redis is down.
func (d Deps) checkDuplicate(ctx context.Context, userID int, ns idempotency.Namespace, hash string) bool {
	duplicate, err := d.Guard.CheckAndRecord(ctx, userID, ns, hash)
	if err != nil {
		logging.ExtractLogger(ctx).Warn().Err(err).Str("namespace", string(ns)).Msg("idempotency check failed")
		return false
	}
	return duplicate
}

func (d Deps) forget(ctx context.Context, userID int, ns idempotency.Namespace, hash string) {
	if err := d.Guard.Forget(ctx, userID, ns, hash); err != nil {
		logging.ExtractLogger(ctx).Warn().Err(err).Str("namespace", string(ns)).Msg("failed to forget idempotency hash")
	}
}

/*
PublishComment adds a comment to a topic.

The topic must be visible, open and unremoved, in a category the user may
comment in. Anything else is ErrNotFound. The checks then run in order: rate
limit, validation, duplicate submission. A duplicate returns the user's
previous comment with Result.Duplicate set. If that comment is not visible
(still being written by a concurrent request, or removed since) the result
has only the topic.
*/
func PublishComment(ctx context.Context, conn db.ConnOrTx, deps Deps, user *models.User, topicID int, input CommentInput) (Result, error) {
	if !user.IsAuthenticated() {
		return Result{}, ErrPermissionDenied
	}

	access, err := LoadAccess(ctx, conn, user)
	if err != nil {
		return Result{}, err
	}
	topic, err := FetchTopic(ctx, conn, access, topicID, TopicsQuery{Unremoved: true})
	if err != nil {
		if errors.Is(err, db.NotFound) {
			return Result{}, ErrNotFound
		}
		return Result{}, err
	}
	if !access.CanCommentOnTopic(&topic.Topic, topic.Category) {
		return Result{}, ErrNotFound
	}

	if err := deps.checkRate(ctx, user); err != nil {
		return Result{}, err
	}

	rendered, errs := ValidateComment(input, deps.Limits)
	if errs.Any() {
		return Result{}, errs
	}

	hash := idempotency.Hash(topicID, input.Markdown)
	if deps.checkDuplicate(ctx, user.ID, idempotency.NamespaceComment, hash) {
		last, err := latestComment(ctx, conn, user.ID, topicID)
		if errors.Is(err, db.NotFound) {
			return Result{Topic: &topic.Topic, Duplicate: true}, nil
		} else if err != nil {
			return Result{}, err
		}
		return Result{Topic: &topic.Topic, Comment: last, Duplicate: true}, nil
	}

	comment, err := func() (*models.Comment, error) {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return nil, oops.New(err, "failed to start transaction")
		}
		defer tx.Rollback(ctx)

		comment, err := insertComment(ctx, tx, newComment{
			TopicID:   topicID,
			UserID:    user.ID,
			Action:    models.CommentActionComment,
			Markdown:  idempotency.Normalize(input.Markdown),
			HTML:      rendered.HTML,
			IPAddress: input.IPAddress,
		})
		if err != nil {
			return nil, err
		}
		if err := commentPosted(ctx, tx, topic.Category, comment, rendered.Mentions); err != nil {
			return nil, err
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, oops.New(err, "failed to commit comment")
		}
		return comment, nil
	}()
	if err != nil {
		deps.forget(ctx, user.ID, idempotency.NamespaceComment, hash)
		return Result{}, err
	}

	return Result{Topic: &topic.Topic, Comment: comment}, nil
}

/*
PublishTopic creates a topic along with its first comment. Same rules as
PublishComment, except the category must allow the user to create topics. A
duplicate whose topic is not visible yet comes back with an empty Result
apart from Duplicate.
*/
func PublishTopic(ctx context.Context, conn db.ConnOrTx, deps Deps, user *models.User, categoryID int, input TopicInput) (Result, error) {
	if !user.IsAuthenticated() {
		return Result{}, ErrPermissionDenied
	}

	access, err := LoadAccess(ctx, conn, user)
	if err != nil {
		return Result{}, err
	}
	category, err := FetchCategory(ctx, conn, access, categoryID, CanCreateTopic)
	if err != nil {
		if errors.Is(err, db.NotFound) {
			return Result{}, ErrNotFound
		}
		return Result{}, err
	}

	if err := deps.checkRate(ctx, user); err != nil {
		return Result{}, err
	}

	title, rendered, errs := ValidateTopic(input, deps.Limits)
	if errs.Any() {
		return Result{}, errs
	}

	hash := idempotency.Hash(categoryID, title, input.Markdown)
	if deps.checkDuplicate(ctx, user.ID, idempotency.NamespaceTopic, hash) {
		topic, first, err := latestTopic(ctx, conn, user.ID, categoryID)
		if errors.Is(err, db.NotFound) {
			return Result{Duplicate: true}, nil
		} else if err != nil {
			return Result{}, err
		}
		return Result{Topic: topic, Comment: first, Duplicate: true}, nil
	}

	result, err := func() (Result, error) {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return Result{}, oops.New(err, "failed to start transaction")
		}
		defer tx.Rollback(ctx)

		topic, err := db.QueryOne[models.Topic](ctx, tx,
			`
			---- Insert topic
			INSERT INTO topic (category_id, user_id, title, slug, date, last_active, reindex_at)
			VALUES ($1, $2, $3, $4, NOW(), NOW(), NOW())
			RETURNING $columns
			`,
			categoryID,
			user.ID,
			title,
			TopicSlug(title),
		)
		if err != nil {
			return Result{}, oops.New(err, "failed to insert topic")
		}

		comment, err := insertComment(ctx, tx, newComment{
			TopicID:   topic.ID,
			UserID:    user.ID,
			Action:    models.CommentActionComment,
			Markdown:  idempotency.Normalize(input.Markdown),
			HTML:      rendered.HTML,
			IPAddress: input.IPAddress,
		})
		if err != nil {
			return Result{}, err
		}
		if err := commentPosted(ctx, tx, category, comment, rendered.Mentions); err != nil {
			return Result{}, err
		}

		if err := tx.Commit(ctx); err != nil {
			return Result{}, oops.New(err, "failed to commit topic")
		}
		topic.CommentCount = 1
		topic.LastActive = comment.Date
		topic.LastCommenterID = &comment.UserID
		return Result{Topic: topic, Comment: comment}, nil
	}()
	if err != nil {
		deps.forget(ctx, user.ID, idempotency.NamespaceTopic, hash)
		return Result{}, err
	}

	return result, nil
}

func TopicSlug(title string) string {
	return utils.OrDefault(utils.Slugify(title), "topic")
}

type newComment struct {
	TopicID   int
	UserID    int
	Action    models.CommentAction
	Markdown  string
	HTML      string
	IPAddress string
}

// insertComment writes the row and updates the topic's counters and activity.
func insertComment(ctx context.Context, tx db.ConnOrTx, c newComment) (*models.Comment, error) {
	comment, err := db.QueryOne[models.Comment](ctx, tx,
		`
		---- Insert comment
		INSERT INTO comment (topic_id, user_id, date, comment, comment_html, action, ip_address)
		VALUES ($1, $2, NOW(), $3, $4, $5, $6)
		RETURNING $columns
		`,
		c.TopicID,
		c.UserID,
		c.Markdown,
		c.HTML,
		int(c.Action),
		c.IPAddress,
	)
	if err != nil {
		return nil, oops.New(err, "failed to insert comment")
	}

	_, err = tx.Exec(ctx,
		`
		---- Count new comment
		UPDATE topic
		SET
			comment_count = comment_count + 1,
			last_active = $2,
			last_commenter_id = $3
		WHERE id = $1
		`,
		comment.TopicID,
		comment.Date,
		comment.UserID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to update topic counters")
	}

	return comment, nil
}

/*
commentPosted runs everything that follows a comment landing in a topic:
subscriptions, notifications for participants and mentioned users, and
search reindexing. Moving comments runs it again for the destination with no
mentions.
*/
func commentPosted(ctx context.Context, tx db.ConnOrTx, category *models.Category, comment *models.Comment, mentions []string) error {
	if comment.Action == models.CommentActionComment {
		if err := subscribeAuthor(ctx, tx, comment); err != nil {
			return err
		}
	}
	if err := notifyParticipants(ctx, tx, comment); err != nil {
		return err
	}
	if err := notifyMentions(ctx, tx, category, comment, mentions); err != nil {
		return err
	}
	if err := bumpTopicReindex(ctx, tx, comment.TopicID); err != nil {
		return err
	}
	if category != nil {
		if err := bumpCategoryReindex(ctx, tx, category.ID); err != nil {
			return err
		}
	}
	return nil
}

func latestComment(ctx context.Context, conn db.ConnOrTx, userID, topicID int) (*models.Comment, error) {
	return db.QueryOne[models.Comment](ctx, conn,
		`
		---- Latest comment by user
		SELECT $columns
		FROM comment
		WHERE
			user_id = $1
			AND topic_id = $2
			AND action = $3
			AND NOT is_removed
		ORDER BY date DESC, id DESC
		LIMIT 1
		`,
		userID,
		topicID,
		int(models.CommentActionComment),
	)
}

func latestTopic(ctx context.Context, conn db.ConnOrTx, userID, categoryID int) (*models.Topic, *models.Comment, error) {
	topic, err := db.QueryOne[models.Topic](ctx, conn,
		`
		---- Latest topic by user
		SELECT $columns
		FROM topic
		WHERE
			user_id = $1
			AND category_id = $2
			AND NOT is_removed
		ORDER BY date DESC, id DESC
		LIMIT 1
		`,
		userID,
		categoryID,
	)
	if err != nil {
		return nil, nil, err
	}

	first, err := db.QueryOne[models.Comment](ctx, conn,
		`
		---- First comment of topic
		SELECT $columns
		FROM comment
		WHERE topic_id = $1
		ORDER BY date ASC, id ASC
		LIMIT 1
		`,
		topic.ID,
	)
	if err != nil {
		return nil, nil, err
	}
	return topic, first, nil
}
