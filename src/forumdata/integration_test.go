//go:build integration

package forumdata_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"git.handmade.network/hmn/forum/src/db"
	"git.handmade.network/hmn/forum/src/forumdata"
	"git.handmade.network/hmn/forum/src/idempotency"
	"git.handmade.network/hmn/forum/src/migration"
	"git.handmade.network/hmn/forum/src/migration/types"
	"git.handmade.network/hmn/forum/src/models"
	"git.handmade.network/hmn/forum/src/pagination"
	"git.handmade.network/hmn/forum/src/ratelimit"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Run with: go test -tags=integration ./src/forumdata/...
func startDatabase(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("forum"),
		postgres.WithUsername("forum"),
		postgres.WithPassword("forum"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.Nil(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.Nil(t, err)

	conn, err := pgx.Connect(ctx, connStr)
	require.Nil(t, err)
	require.Nil(t, migration.MigrateConn(ctx, conn, types.MigrationVersion{}, io.Discard))
	require.Nil(t, conn.Close(ctx))

	pool, err := pgxpool.New(ctx, connStr)
	require.Nil(t, err)
	t.Cleanup(pool.Close)
	return pool
}

type fixture struct {
	pool *pgxpool.Pool
	deps forumdata.Deps

	alice, bob, mod *models.User
	general         *models.Category
	private         *models.Category
}

func newFixture(t *testing.T) *fixture {
	ctx := context.Background()
	pool := startDatabase(t)

	f := &fixture{
		pool: pool,
		deps: forumdata.Deps{
			Guard:       idempotency.NewMemoryGuard(10 * time.Minute),
			Limiter:     ratelimit.NewInMemory(),
			PublishRate: ratelimit.MustParseRate("1000/m"),
			Limits:      forumdata.Limits{MaxCommentLength: 1000, MaxTitleLength: 100},
		},
	}

	mkUser := func(name string, moderator bool) *models.User {
		u, err := db.QueryOne[models.User](ctx, pool,
			`INSERT INTO forum_user (username, is_moderator) VALUES ($1, $2) RETURNING $columns`,
			name, moderator,
		)
		require.Nil(t, err)
		return u
	}
	f.alice = mkUser("alice", false)
	f.bob = mkUser("bob", false)
	f.mod = mkUser("mod", true)

	groupID, err := db.QueryOneScalar[int](ctx, pool, `INSERT INTO forum_group (name) VALUES ('members') RETURNING id`)
	require.Nil(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO user_group (user_id, group_id) VALUES ($1, $2)`, f.alice.ID, groupID)
	require.Nil(t, err)

	mkCategory := func(title string, private bool) *models.Category {
		c, err := db.QueryOne[models.Category](ctx, pool,
			`INSERT INTO category (title, slug, is_private) VALUES ($1, $2, $3) RETURNING $columns`,
			title, strings.ToLower(title), private,
		)
		require.Nil(t, err)
		return c
	}
	f.general = mkCategory("General", false)
	f.private = mkCategory("Private", true)
	_, err = pool.Exec(ctx,
		`INSERT INTO category_restriction (category_id, group_id, kind) VALUES ($1, $2, $3)`,
		f.private.ID, groupID, int(models.RestrictAccess),
	)
	require.Nil(t, err)

	return f
}

var topicCounter int

func (f *fixture) topic(t *testing.T, author *models.User, category *models.Category) *models.Topic {
	topicCounter++
	res, err := forumdata.PublishTopic(context.Background(), f.pool, f.deps, author, category.ID, forumdata.TopicInput{
		Title:    fmt.Sprintf("Topic number %d", topicCounter),
		Markdown: fmt.Sprintf("First post of topic %d", topicCounter),
	})
	require.Nil(t, err)
	require.False(t, res.Duplicate)
	return res.Topic
}

func (f *fixture) comment(t *testing.T, author *models.User, topic *models.Topic, body string) *models.Comment {
	res, err := forumdata.PublishComment(context.Background(), f.pool, f.deps, author, topic.ID, forumdata.CommentInput{Markdown: body})
	require.Nil(t, err)
	require.False(t, res.Duplicate)
	return res.Comment
}

func (f *fixture) reloadTopic(t *testing.T, topicID int) *models.Topic {
	topic, err := db.QueryOne[models.Topic](context.Background(), f.pool, `SELECT $columns FROM topic WHERE id = $1`, topicID)
	require.Nil(t, err)
	return topic
}

func access(t *testing.T, f *fixture, user *models.User) *forumdata.Access {
	a, err := forumdata.LoadAccess(context.Background(), f.pool, user)
	require.Nil(t, err)
	return a
}

type countingGuard struct {
	idempotency.Guard
	calls int
}

func (g *countingGuard) CheckAndRecord(ctx context.Context, userID int, ns idempotency.Namespace, hash string) (bool, error) {
	g.calls++
	return g.Guard.CheckAndRecord(ctx, userID, ns, hash)
}

// alwaysDuplicate behaves as if another request recorded the same submission
// a moment ago and has not committed it yet.
type alwaysDuplicate struct{}

func (alwaysDuplicate) CheckAndRecord(context.Context, int, idempotency.Namespace, string) (bool, error) {
	return true, nil
}

func (alwaysDuplicate) Forget(context.Context, int, idempotency.Namespace, string) error {
	return nil
}

func (f *fixture) countTopicsTitled(t *testing.T, title string) int {
	count, err := db.QueryOneScalar[int](context.Background(), f.pool, `SELECT COUNT(*) FROM topic WHERE title = $1`, title)
	require.Nil(t, err)
	return count
}

func TestForumWorkflows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("private categories are hidden from non-members", func(t *testing.T) {
		privateTopic := f.topic(t, f.alice, f.private)

		cats, err := forumdata.FetchCategories(ctx, f.pool, access(t, f, f.bob))
		require.Nil(t, err)
		for _, c := range cats {
			assert.NotEqual(t, f.private.ID, c.ID)
		}

		_, err = forumdata.FetchTopic(ctx, f.pool, access(t, f, f.bob), privateTopic.ID, forumdata.TopicsQuery{})
		assert.ErrorIs(t, err, db.NotFound)
		_, err = forumdata.PublishComment(ctx, f.pool, f.deps, f.bob, privateTopic.ID, forumdata.CommentInput{Markdown: "let me in"})
		assert.ErrorIs(t, err, forumdata.ErrNotFound)

		seen, err := forumdata.FetchTopic(ctx, f.pool, access(t, f, f.alice), privateTopic.ID, forumdata.TopicsQuery{})
		require.Nil(t, err)
		assert.Equal(t, privateTopic.ID, seen.Topic.ID)
	})

	t.Run("identical comment twice is stored once", func(t *testing.T) {
		topic := f.topic(t, f.alice, f.general)
		first := f.comment(t, f.bob, topic, "Same thing twice")

		res, err := forumdata.PublishComment(ctx, f.pool, f.deps, f.bob, topic.ID, forumdata.CommentInput{Markdown: "Same thing twice\r\n"})
		require.Nil(t, err)
		assert.True(t, res.Duplicate)
		assert.Equal(t, first.ID, res.Comment.ID)

		count, err := forumdata.CountComments(ctx, f.pool, access(t, f, f.bob), forumdata.CommentsQuery{TopicIDs: []int{topic.ID}})
		require.Nil(t, err)
		assert.Equal(t, 2, count)
		assert.Equal(t, 2, f.reloadTopic(t, topic.ID).CommentCount)
	})

	t.Run("identical topic twice is stored once", func(t *testing.T) {
		input := forumdata.TopicInput{Title: "Posted twice", Markdown: "Did this go through?"}
		first, err := forumdata.PublishTopic(ctx, f.pool, f.deps, f.alice, f.general.ID, input)
		require.Nil(t, err)
		require.False(t, first.Duplicate)

		input.Markdown += "\r\n"
		second, err := forumdata.PublishTopic(ctx, f.pool, f.deps, f.alice, f.general.ID, input)
		require.Nil(t, err)
		assert.True(t, second.Duplicate)
		require.NotNil(t, second.Topic)
		assert.Equal(t, first.Topic.ID, second.Topic.ID)
		assert.Equal(t, first.Comment.ID, second.Comment.ID)
		assert.Equal(t, 1, f.countTopicsTitled(t, "Posted twice"))
	})

	t.Run("duplicate of an uncommitted post writes nothing", func(t *testing.T) {
		deps := f.deps
		deps.Guard = alwaysDuplicate{}

		topic := f.topic(t, f.alice, f.general)
		before := f.reloadTopic(t, topic.ID).CommentCount

		res, err := forumdata.PublishComment(ctx, f.pool, deps, f.bob, topic.ID, forumdata.CommentInput{Markdown: "First reply from bob"})
		require.Nil(t, err)
		assert.True(t, res.Duplicate)
		assert.Nil(t, res.Comment)
		require.NotNil(t, res.Topic)
		assert.Equal(t, topic.ID, res.Topic.ID)
		assert.Equal(t, before, f.reloadTopic(t, topic.ID).CommentCount)

		topicRes, err := forumdata.PublishTopic(ctx, f.pool, deps, f.bob, f.general.ID, forumdata.TopicInput{
			Title:    "Never written",
			Markdown: "Nothing to see",
		})
		require.Nil(t, err)
		assert.True(t, topicRes.Duplicate)
		assert.Nil(t, topicRes.Topic)
		assert.Equal(t, 0, f.countTopicsTitled(t, "Never written"))
	})

	t.Run("editing never consults the duplicate guard", func(t *testing.T) {
		guard := &countingGuard{Guard: f.deps.Guard}
		deps := f.deps
		deps.Guard = guard

		topic := f.topic(t, f.alice, f.general)
		comment := f.comment(t, f.bob, topic, "Original text")

		unchanged, err := forumdata.UpdateComment(ctx, f.pool, deps, f.bob, comment.ID, forumdata.CommentInput{Markdown: "Original text"})
		require.Nil(t, err)
		assert.Equal(t, 0, unchanged.EditCount)

		edited, err := forumdata.UpdateComment(ctx, f.pool, deps, f.bob, comment.ID, forumdata.CommentInput{Markdown: "Edited text @alice"})
		require.Nil(t, err)
		assert.Equal(t, 1, edited.EditCount)
		assert.Contains(t, edited.HTML, "Edited text")
		assert.Equal(t, 0, guard.calls)

		history, err := forumdata.FetchCommentHistory(ctx, f.pool, comment.ID)
		require.Nil(t, err)
		require.Len(t, history, 1)
		assert.Contains(t, history[0].HTML, "Original text")

		_, err = forumdata.UpdateComment(ctx, f.pool, deps, f.alice, comment.ID, forumdata.CommentInput{Markdown: "hijacked"})
		assert.ErrorIs(t, err, forumdata.ErrPermissionDenied)

		var mentions int
		err = f.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM topic_notification WHERE user_id = $1 AND topic_id = $2 AND action = $3`,
			f.alice.ID, topic.ID, int(models.NotificationMention),
		).Scan(&mentions)
		require.Nil(t, err)
		assert.Equal(t, 1, mentions)
	})

	t.Run("moving comments updates both topics", func(t *testing.T) {
		source := f.topic(t, f.alice, f.general)
		dest := f.topic(t, f.bob, f.general)
		var moving []int
		for i := 0; i < 3; i++ {
			moving = append(moving, f.comment(t, f.bob, source, fmt.Sprintf("moving %d", i)).ID)
		}
		f.comment(t, f.alice, source, "staying")

		before := f.reloadTopic(t, source.ID)
		destBefore := f.reloadTopic(t, dest.ID)

		moved, err := forumdata.MoveComments(ctx, f.pool, f.deps, f.mod, dest.ID, moving)
		require.Nil(t, err)
		assert.Equal(t, 3, moved)

		assert.Equal(t, before.CommentCount-3, f.reloadTopic(t, source.ID).CommentCount)
		assert.Equal(t, destBefore.CommentCount+3, f.reloadTopic(t, dest.ID).CommentCount)

		remaining, err := forumdata.FetchComments(ctx, f.pool, access(t, f, f.mod), forumdata.CommentsQuery{TopicIDs: []int{source.ID}})
		require.Nil(t, err)
		for _, c := range remaining {
			assert.NotContains(t, moving, c.Comment.ID)
		}

		again, err := forumdata.MoveComments(ctx, f.pool, f.deps, f.mod, dest.ID, moving)
		require.Nil(t, err)
		assert.Equal(t, 0, again)

		_, err = forumdata.MoveComments(ctx, f.pool, f.deps, f.bob, dest.ID, moving)
		assert.ErrorIs(t, err, forumdata.ErrPermissionDenied)
	})

	t.Run("removing twice is a no-op", func(t *testing.T) {
		topic := f.topic(t, f.alice, f.general)
		comment := f.comment(t, f.bob, topic, "remove me")
		before := f.reloadTopic(t, topic.ID).CommentCount

		require.Nil(t, forumdata.RemoveComment(ctx, f.pool, f.mod, comment.ID, true))
		assert.Equal(t, before-1, f.reloadTopic(t, topic.ID).CommentCount)
		require.Nil(t, forumdata.RemoveComment(ctx, f.pool, f.mod, comment.ID, true))
		assert.Equal(t, before-1, f.reloadTopic(t, topic.ID).CommentCount)

		_, err := forumdata.FetchComment(ctx, f.pool, access(t, f, f.bob), comment.ID, forumdata.CommentsQuery{})
		assert.ErrorIs(t, err, db.NotFound)

		require.Nil(t, forumdata.RemoveComment(ctx, f.pool, f.mod, comment.ID, false))
		assert.Equal(t, before, f.reloadTopic(t, topic.ID).CommentCount)
	})

	t.Run("rate limited submissions change nothing", func(t *testing.T) {
		deps := f.deps
		deps.Limiter = ratelimit.NewInMemory()
		deps.PublishRate = ratelimit.MustParseRate("1/m")

		topic := f.topic(t, f.alice, f.general)
		before := f.reloadTopic(t, topic.ID).CommentCount

		_, err := forumdata.PublishComment(ctx, f.pool, deps, f.bob, topic.ID, forumdata.CommentInput{Markdown: "one"})
		require.Nil(t, err)
		_, err = forumdata.PublishComment(ctx, f.pool, deps, f.bob, topic.ID, forumdata.CommentInput{Markdown: ""})
		assert.ErrorIs(t, err, forumdata.ErrRateLimited)
		assert.Equal(t, before+1, f.reloadTopic(t, topic.ID).CommentCount)
	})

	t.Run("moderating a topic logs and enforces the change", func(t *testing.T) {
		topic := f.topic(t, f.alice, f.general)

		require.Nil(t, forumdata.ModerateTopic(ctx, f.pool, f.mod, topic.ID, forumdata.ModerateClose))
		require.Nil(t, forumdata.ModerateTopic(ctx, f.pool, f.mod, topic.ID, forumdata.ModerateClose))

		logged, err := forumdata.CountComments(ctx, f.pool, access(t, f, f.mod), forumdata.CommentsQuery{
			TopicIDs: []int{topic.ID},
			Actions:  []models.CommentAction{models.CommentActionClosed},
		})
		require.Nil(t, err)
		assert.Equal(t, 1, logged)

		_, err = forumdata.PublishComment(ctx, f.pool, f.deps, f.bob, topic.ID, forumdata.CommentInput{Markdown: "too late"})
		assert.ErrorIs(t, err, forumdata.ErrNotFound)
	})

	t.Run("moving a topic logs a moved comment", func(t *testing.T) {
		other, err := db.QueryOne[models.Category](ctx, f.pool,
			`INSERT INTO category (title, slug) VALUES ('Other', 'other') RETURNING $columns`,
		)
		require.Nil(t, err)
		topic := f.topic(t, f.alice, f.general)

		updated, err := forumdata.UpdateTopic(ctx, f.pool, f.deps, f.alice, topic.ID, forumdata.TopicUpdateInput{
			Title:      "Renamed topic",
			CategoryID: other.ID,
		})
		require.Nil(t, err)
		assert.Equal(t, other.ID, updated.CategoryID)
		assert.Equal(t, "renamed-topic", updated.Slug)

		moved, err := forumdata.CountComments(ctx, f.pool, access(t, f, f.alice), forumdata.CommentsQuery{
			TopicIDs: []int{topic.ID},
			Actions:  []models.CommentAction{models.CommentActionMoved},
		})
		require.Nil(t, err)
		assert.Equal(t, 1, moved)
	})

	t.Run("thread pages", func(t *testing.T) {
		topic := f.topic(t, f.alice, f.general)
		for i := 2; i <= 25; i++ {
			f.comment(t, f.bob, topic, fmt.Sprintf("comment %d", i))
		}
		a := access(t, f, f.bob)

		total, err := forumdata.CountComments(ctx, f.pool, a, forumdata.CommentsQuery{TopicIDs: []int{topic.ID}})
		require.Nil(t, err)
		assert.Equal(t, 25, total)

		info, err := pagination.Compute(total, 20, 2, pagination.Clamp)
		require.Nil(t, err)
		page, err := forumdata.FetchComments(ctx, f.pool, a, forumdata.CommentsQuery{
			TopicIDs: []int{topic.ID},
			Limit:    info.Limit(),
			Offset:   info.Offset(),
		})
		require.Nil(t, err)
		require.Len(t, page, 5)
		assert.Equal(t, "<p>comment 21</p>\n", page[0].Comment.HTML)

		last := page[len(page)-1].Comment
		position, err := forumdata.CountComments(ctx, f.pool, a, forumdata.CommentsQuery{TopicIDs: []int{topic.ID}, UpTo: &last})
		require.Nil(t, err)
		assert.Equal(t, 25, position)
		assert.Equal(t, 2, pagination.PageOf(position, 20))
	})

	t.Run("settings round trip", func(t *testing.T) {
		provider := forumdata.DBSettings{Conn: f.pool}
		assert.Equal(t, forumdata.DefaultSettings, provider.Settings(ctx))

		require.Nil(t, forumdata.StoreSettings(ctx, f.pool, forumdata.Settings{CommentsPerPage: 7, OutOfRange: "notfound"}))
		settings := provider.Settings(ctx)
		assert.Equal(t, 7, settings.CommentsPerPage)
		assert.Equal(t, pagination.NotFound, settings.PagePolicy())
	})
}
