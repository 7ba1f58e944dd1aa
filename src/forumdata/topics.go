package forumdata

import (
	"context"

	"git.handmade.network/hmn/forum/src/db"
	"git.handmade.network/hmn/forum/src/models"
	"git.handmade.network/hmn/forum/src/oops"
	"git.handmade.network/hmn/forum/src/perf"
)

type TopicOrder int

const (
	// Pinned topics first, then most recently active. For category pages.
	TopicOrderCategory TopicOrder = iota
	// Globally pinned topics first, then most recently active. For the active feed.
	TopicOrderActive
	// Newest first, ignoring pins.
	TopicOrderCreated
)

type TopicsQuery struct {
	// Ignored when using FetchTopic.
	TopicIDs []int

	CategoryIDs []int            // if empty, every visible category
	UserIDs     []int            // if empty, all authors
	Filters     []CategoryFilter // extra category filters on top of Visible

	// Hide removed topics even from moderators.
	Unremoved bool

	// Ignored when using FetchTopic or CountTopics.
	Limit, Offset int
	Order         TopicOrder
}

type TopicAndStuff struct {
	Topic         models.Topic `db:"topic"`
	Author        *models.User `db:"author"`         // nil if the user is gone
	LastCommenter *models.User `db:"last_commenter"` // nil if nobody has replied
	Category      *models.Category
}

// Returns the SQL-side visibility conditions for topics. ok is false when the
// requester can see no categories at all, in which case there is nothing to
// query.
func (a *Access) addTopicVisibility(ctx context.Context, conn db.ConnOrTx, qb *db.QueryBuilder, q TopicsQuery) (map[int]*models.Category, bool, error) {
	cats, err := FetchCategories(ctx, conn, a, q.Filters...)
	if err != nil {
		return nil, false, err
	}
	if len(cats) == 0 {
		return nil, false, nil
	}

	qb.Add(`AND topic.category_id = ANY($?)`, ids(cats))
	qb.AddIf(q.Unremoved || !a.CanModerate(), `AND NOT topic.is_removed`)
	qb.AddIf(len(q.CategoryIDs) > 0, `AND topic.category_id = ANY($?)`, q.CategoryIDs)
	qb.AddIf(len(q.TopicIDs) > 0, `AND topic.id = ANY($?)`, q.TopicIDs)
	qb.AddIf(len(q.UserIDs) > 0, `AND topic.user_id = ANY($?)`, q.UserIDs)

	return categoryMap(cats), true, nil
}

func FetchTopics(ctx context.Context, conn db.ConnOrTx, access *Access, q TopicsQuery) ([]TopicAndStuff, error) {
	p := perf.ExtractPerf(ctx)
	block := p.StartBlock("SQL", "Fetch topics")
	defer block.End()

	var qb db.QueryBuilder
	qb.Add(`
		---- Fetch topics
		SELECT $columns
		FROM
			topic
			LEFT JOIN forum_user AS author ON author.id = topic.user_id
			LEFT JOIN forum_user AS last_commenter ON last_commenter.id = topic.last_commenter_id
		WHERE
			TRUE
	`)
	catsByID, ok, err := access.addTopicVisibility(ctx, conn, &qb, q)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	switch q.Order {
	case TopicOrderActive:
		qb.Add(`ORDER BY topic.is_globally_pinned DESC, topic.last_active DESC, topic.id DESC`)
	case TopicOrderCreated:
		qb.Add(`ORDER BY topic.date DESC, topic.id DESC`)
	default:
		qb.Add(`ORDER BY topic.is_pinned DESC, topic.last_active DESC, topic.id DESC`)
	}
	qb.AddIf(q.Limit > 0, `LIMIT $? OFFSET $?`, q.Limit, q.Offset)

	rows, err := db.Query[TopicAndStuff](ctx, conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to fetch topics")
	}

	result := make([]TopicAndStuff, len(rows))
	for i, row := range rows {
		row.Category = catsByID[row.Topic.CategoryID]
		result[i] = *row
	}
	return result, nil
}

// Returns db.NotFound if the topic does not exist or cannot be seen.
func FetchTopic(ctx context.Context, conn db.ConnOrTx, access *Access, topicID int, q TopicsQuery) (TopicAndStuff, error) {
	q.TopicIDs = []int{topicID}
	q.Limit = 1
	q.Offset = 0

	res, err := FetchTopics(ctx, conn, access, q)
	if err != nil {
		return TopicAndStuff{}, oops.New(err, "failed to fetch topic")
	}
	if len(res) == 0 {
		return TopicAndStuff{}, db.NotFound
	}
	return res[0], nil
}

func CountTopics(ctx context.Context, conn db.ConnOrTx, access *Access, q TopicsQuery) (int, error) {
	p := perf.ExtractPerf(ctx)
	block := p.StartBlock("SQL", "Count topics")
	defer block.End()

	var qb db.QueryBuilder
	qb.Add(`
		---- Count topics
		SELECT COUNT(*)
		FROM topic
		WHERE
			TRUE
	`)
	_, ok, err := access.addTopicVisibility(ctx, conn, &qb, q)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	count, err := db.QueryOneScalar[int](ctx, conn, qb.String(), qb.Args()...)
	if err != nil {
		return 0, oops.New(err, "failed to count topics")
	}
	return count, nil
}

func IncrementViewCount(ctx context.Context, conn db.ConnOrTx, topicID int) error {
	_, err := conn.Exec(ctx,
		`
		---- Increment topic views
		UPDATE topic
		SET view_count = view_count + 1
		WHERE id = $1
		`,
		topicID,
	)
	if err != nil {
		return oops.New(err, "failed to increment view count")
	}
	return nil
}

func bumpTopicReindex(ctx context.Context, tx db.ConnOrTx, topicIDs ...int) error {
	_, err := tx.Exec(ctx,
		`
		---- Bump topic reindex
		UPDATE topic
		SET reindex_at = NOW()
		WHERE id = ANY($1)
		`,
		topicIDs,
	)
	if err != nil {
		return oops.New(err, "failed to bump topic reindex time")
	}
	return nil
}

// Recomputes the denormalized activity fields from the topic's unremoved comments.
func refreshTopicActivity(ctx context.Context, tx db.ConnOrTx, topicIDs ...int) error {
	_, err := tx.Exec(ctx,
		`
		---- Refresh topic activity
		UPDATE topic
		SET
			last_active = COALESCE(latest.date, topic.date),
			last_commenter_id = latest.user_id
		FROM topic AS t
			LEFT JOIN LATERAL (
				SELECT c.date, c.user_id
				FROM comment AS c
				WHERE c.topic_id = t.id AND NOT c.is_removed
				ORDER BY c.date DESC, c.id DESC
				LIMIT 1
			) AS latest ON TRUE
		WHERE topic.id = t.id AND t.id = ANY($1)
		`,
		topicIDs,
	)
	if err != nil {
		return oops.New(err, "failed to refresh topic activity")
	}
	return nil
}
