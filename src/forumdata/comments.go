package forumdata

import (
	"context"

	"git.handmade.network/hmn/forum/src/db"
	"git.handmade.network/hmn/forum/src/models"
	"git.handmade.network/hmn/forum/src/oops"
	"git.handmade.network/hmn/forum/src/perf"
)

type CommentsQuery struct {
	// Ignored when using FetchComment.
	CommentIDs []int

	TopicIDs []int                  // if empty, all visible topics
	UserIDs  []int                  // if empty, all authors
	Actions  []models.CommentAction // if empty, all actions

	// Only comments that come at or before this one in thread order.
	UpTo *models.Comment

	// Hide removed comments even from moderators.
	Unremoved bool

	// Ignored when using FetchComment or CountComments.
	Limit, Offset int
	NewestFirst   bool
}

type CommentAndStuff struct {
	Comment models.Comment `db:"comment"`
	Topic   models.Topic   `db:"topic"`
	Author  *models.User   `db:"author"` // nil if the user is gone
}

func (a *Access) addCommentVisibility(ctx context.Context, conn db.ConnOrTx, qb *db.QueryBuilder, q CommentsQuery) (bool, error) {
	cats, err := FetchCategories(ctx, conn, a)
	if err != nil {
		return false, err
	}
	if len(cats) == 0 {
		return false, nil
	}

	qb.Add(`AND topic.category_id = ANY($?)`, ids(cats))
	qb.AddIf(q.Unremoved || !a.CanModerate(), `AND NOT topic.is_removed AND NOT comment.is_removed`)
	qb.AddIf(len(q.CommentIDs) > 0, `AND comment.id = ANY($?)`, q.CommentIDs)
	qb.AddIf(len(q.TopicIDs) > 0, `AND comment.topic_id = ANY($?)`, q.TopicIDs)
	qb.AddIf(len(q.UserIDs) > 0, `AND comment.user_id = ANY($?)`, q.UserIDs)
	if len(q.Actions) > 0 {
		actions := make([]int, len(q.Actions))
		for i, action := range q.Actions {
			actions[i] = int(action)
		}
		qb.Add(`AND comment.action = ANY($?)`, actions)
	}
	if q.UpTo != nil {
		qb.Add(`AND (comment.date, comment.id) <= ($?, $?)`, q.UpTo.Date, q.UpTo.ID)
	}
	return true, nil
}

/*
Fetches comments in thread order (oldest first). A comment belongs to whatever
topic it currently points at, so comments moved elsewhere never show up under
their old topic.
*/
func FetchComments(ctx context.Context, conn db.ConnOrTx, access *Access, q CommentsQuery) ([]CommentAndStuff, error) {
	p := perf.ExtractPerf(ctx)
	block := p.StartBlock("SQL", "Fetch comments")
	defer block.End()

	var qb db.QueryBuilder
	qb.Add(`
		---- Fetch comments
		SELECT $columns
		FROM
			comment
			JOIN topic ON topic.id = comment.topic_id
			LEFT JOIN forum_user AS author ON author.id = comment.user_id
		WHERE
			TRUE
	`)
	ok, err := access.addCommentVisibility(ctx, conn, &qb, q)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if q.NewestFirst {
		qb.Add(`ORDER BY comment.date DESC, comment.id DESC`)
	} else {
		qb.Add(`ORDER BY comment.date ASC, comment.id ASC`)
	}
	qb.AddIf(q.Limit > 0, `LIMIT $? OFFSET $?`, q.Limit, q.Offset)

	rows, err := db.Query[CommentAndStuff](ctx, conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to fetch comments")
	}

	result := make([]CommentAndStuff, len(rows))
	for i, row := range rows {
		result[i] = *row
	}
	return result, nil
}

// Returns db.NotFound if the comment does not exist or cannot be seen.
func FetchComment(ctx context.Context, conn db.ConnOrTx, access *Access, commentID int, q CommentsQuery) (CommentAndStuff, error) {
	q.CommentIDs = []int{commentID}
	q.Limit = 1
	q.Offset = 0

	res, err := FetchComments(ctx, conn, access, q)
	if err != nil {
		return CommentAndStuff{}, oops.New(err, "failed to fetch comment")
	}
	if len(res) == 0 {
		return CommentAndStuff{}, db.NotFound
	}
	return res[0], nil
}

func CountComments(ctx context.Context, conn db.ConnOrTx, access *Access, q CommentsQuery) (int, error) {
	p := perf.ExtractPerf(ctx)
	block := p.StartBlock("SQL", "Count comments")
	defer block.End()

	var qb db.QueryBuilder
	qb.Add(`
		---- Count comments
		SELECT COUNT(*)
		FROM
			comment
			JOIN topic ON topic.id = comment.topic_id
		WHERE
			TRUE
	`)
	ok, err := access.addCommentVisibility(ctx, conn, &qb, q)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	count, err := db.QueryOneScalar[int](ctx, conn, qb.String(), qb.Args()...)
	if err != nil {
		return 0, oops.New(err, "failed to count comments")
	}
	return count, nil
}

// FetchCommentHistory returns the saved pre-edit versions of a comment, newest first.
func FetchCommentHistory(ctx context.Context, conn db.ConnOrTx, commentID int) ([]*models.CommentHistory, error) {
	history, err := db.Query[models.CommentHistory](ctx, conn,
		`
		---- Fetch comment history
		SELECT $columns
		FROM comment_history
		WHERE comment_id = $1
		ORDER BY date DESC, id DESC
		`,
		commentID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch comment history")
	}
	return history, nil
}
