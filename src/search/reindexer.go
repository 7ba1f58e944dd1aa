package search

import (
	"context"
	"errors"
	"time"

	"git.handmade.network/hmn/forum/src/db"
	"git.handmade.network/hmn/forum/src/forumdata"
	"git.handmade.network/hmn/forum/src/jobs"
	"git.handmade.network/hmn/forum/src/logging"
	"git.handmade.network/hmn/forum/src/models"
	"git.handmade.network/hmn/forum/src/oops"
	"git.handmade.network/hmn/forum/src/parsing"
	"git.handmade.network/hmn/forum/src/utils"
	"github.com/jpillora/backoff"
)

const reindexBatchSize = 200

type changedTopic struct {
	Topic        models.Topic `db:"topic"`
	FirstComment *string      `db:"first_comment"`
}

// Staff see every category, which is what the indexer needs. Visibility is
// applied at query time instead.
var indexerAccess = forumdata.NewAccess(&models.User{IsStaff: true}, nil)

// RunReindexer keeps the search index in step with the database. Failed runs
// are retried with a growing delay, and the marker only moves forward after a
// run fully succeeds.
func RunReindexer(conn db.ConnOrTx, index Index, interval time.Duration) *jobs.Job {
	job := jobs.New("search reindexer")
	go func() {
		defer job.Finish()

		boff := backoff.Backoff{
			Min: 5 * time.Second,
			Max: 5 * time.Minute,
		}

		t := utils.NewInstaTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if m, ok := index.(*Meili); ok && !m.CheckHealth(job.Ctx) {
					continue
				}

				err := func() (err error) {
					defer utils.RecoverPanicAsError(&err)
					return RunOnce(job.Ctx, conn, index)
				}()
				if err == nil {
					boff.Reset()
					continue
				}

				dur := boff.Duration()
				job.Logger.Error().Err(err).Dur("retry in", dur).Msg("failed to update search index")
				if err := utils.SleepContext(job.Ctx, dur); err != nil {
					return
				}
			case <-job.Canceled():
				return
			}
		}
	}()
	return job
}

// RunOnce indexes every topic that changed since the last successful run.
func RunOnce(ctx context.Context, conn db.ConnOrTx, index Index) error {
	var since time.Time
	marker, err := forumdata.FetchPersistentVar[time.Time](ctx, conn, forumdata.VarNameSearchIndexedAt)
	if err == nil {
		since = *marker
	} else if !errors.Is(err, db.NotFound) {
		return oops.New(err, "failed to fetch search marker")
	}

	// Taken from the database so the marker and reindex_at share a clock.
	startedAt, err := db.QueryOneScalar[time.Time](ctx, conn, `SELECT NOW()`)
	if err != nil {
		return oops.New(err, "failed to get current time")
	}

	categories, err := forumdata.FetchCategories(ctx, conn, indexerAccess)
	if err != nil {
		return err
	}
	live := make(map[int]*models.Category, len(categories))
	for _, c := range indexerAccess.Filter(categories, forumdata.Unremoved) {
		live[c.ID] = c
	}

	it, err := db.QueryIterator[changedTopic](ctx, conn,
		`
		---- Topics changed since last index
		SELECT $columns
		FROM
			topic
			JOIN category ON category.id = topic.category_id
			LEFT JOIN category AS parent ON parent.id = category.parent_id
			LEFT JOIN LATERAL (
				SELECT c.comment AS first_comment
				FROM comment AS c
				WHERE c.topic_id = topic.id AND c.action = $2
				ORDER BY c.date ASC, c.id ASC
				LIMIT 1
			) AS first ON TRUE
		WHERE
			topic.reindex_at > $1
			OR category.reindex_at > $1
			OR parent.reindex_at > $1
		ORDER BY topic.id
		`,
		since,
		int(models.CommentActionComment),
	)
	if err != nil {
		return oops.New(err, "failed to fetch changed topics")
	}
	defer it.Close()

	var indexed, deleted int
	var docs []Document
	var gone []int
	flush := func() error {
		if err := index.IndexTopics(ctx, docs); err != nil {
			return err
		}
		if err := index.DeleteTopics(ctx, gone); err != nil {
			return err
		}
		indexed += len(docs)
		deleted += len(gone)
		docs, gone = docs[:0], gone[:0]
		return nil
	}

	for {
		row, ok := it.Next()
		if !ok {
			break
		}
		if doc, keep := topicDocument(row, live); keep {
			docs = append(docs, doc)
		} else {
			gone = append(gone, row.Topic.ID)
		}
		if len(docs)+len(gone) >= reindexBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := it.Err(); err != nil {
		return oops.New(err, "failed to iterate changed topics")
	}
	if err := flush(); err != nil {
		return err
	}

	if err := forumdata.StorePersistentVar(ctx, conn, forumdata.VarNameSearchIndexedAt, &startedAt); err != nil {
		return err
	}

	if indexed+deleted > 0 {
		logging.ExtractLogger(ctx).Info().Int("indexed", indexed).Int("deleted", deleted).Msg("updated search index")
	}
	return nil
}

// topicDocument decides whether a topic belongs in the index and builds its
// document if it does.
func topicDocument(row *changedTopic, live map[int]*models.Category) (Document, bool) {
	t := row.Topic
	if t.IsRemoved {
		return Document{}, false
	}
	if _, ok := live[t.CategoryID]; !ok {
		return Document{}, false
	}

	var body string
	if row.FirstComment != nil {
		body = truncateBody(parsing.PlainText(*row.FirstComment))
	}
	return Document{
		ID:         t.ID,
		Title:      t.Title,
		Body:       body,
		CategoryID: t.CategoryID,
		UserID:     t.UserID,
		LastActive: t.LastActive.Unix(),
	}, true
}
