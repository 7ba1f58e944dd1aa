package forumdata

import (
	"context"
	"errors"
	"fmt"

	"git.handmade.network/hmn/forum/src/db"
	"git.handmade.network/hmn/forum/src/idempotency"
	"git.handmade.network/hmn/forum/src/models"
	"git.handmade.network/hmn/forum/src/oops"
	"git.handmade.network/hmn/forum/src/parsing"
	"git.handmade.network/hmn/forum/src/utils"
)

/*
UpdateComment edits a comment's body. Owners and moderators may edit. The old
HTML is kept in comment_history, and users mentioned for the first time get
notified. Submitting the body unchanged writes nothing.
*/
func UpdateComment(ctx context.Context, conn db.ConnOrTx, deps Deps, user *models.User, commentID int, input CommentInput) (*models.Comment, error) {
	if !user.IsAuthenticated() {
		return nil, ErrPermissionDenied
	}

	access, err := LoadAccess(ctx, conn, user)
	if err != nil {
		return nil, err
	}
	current, err := FetchComment(ctx, conn, access, commentID, CommentsQuery{})
	if err != nil {
		if errors.Is(err, db.NotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if current.Comment.Action != models.CommentActionComment || !access.CanEdit(current.Comment.UserID) {
		return nil, ErrPermissionDenied
	}

	rendered, errs := ValidateComment(input, deps.Limits)
	if errs.Any() {
		return nil, errs
	}

	markdown := idempotency.Normalize(input.Markdown)
	if markdown == current.Comment.Markdown {
		return &current.Comment, nil
	}

	category, err := access.lookupCategory(ctx, conn, current.Topic.CategoryID)
	if err != nil {
		return nil, oops.New(err, "failed to look up category of comment")
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, oops.New(err, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	// Snapshot before the edit.
	_, err = tx.Exec(ctx,
		`
		---- Save comment history
		INSERT INTO comment_history (comment_id, date, comment_html)
		VALUES ($1, COALESCE($2, $3), $4)
		`,
		current.Comment.ID,
		current.Comment.LastModified,
		current.Comment.Date,
		current.Comment.HTML,
	)
	if err != nil {
		return nil, oops.New(err, "failed to save comment history")
	}

	updated, err := db.QueryOne[models.Comment](ctx, tx,
		`
		---- Update comment
		UPDATE comment
		SET
			comment = $2,
			comment_html = $3,
			last_modified = NOW(),
			edit_count = edit_count + 1
		WHERE id = $1
		RETURNING $columns
		`,
		current.Comment.ID,
		markdown,
		rendered.HTML,
	)
	if err != nil {
		return nil, oops.New(err, "failed to update comment")
	}

	if err := notifyMentions(ctx, tx, category, updated, newMentions(current.Comment.Markdown, rendered.Mentions)); err != nil {
		return nil, err
	}
	if err := bumpTopicReindex(ctx, tx, updated.TopicID); err != nil {
		return nil, err
	}
	if err := bumpCategoryReindex(ctx, tx, category.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, oops.New(err, "failed to commit comment update")
	}
	return updated, nil
}

// Mentions in the new version that the old version did not already have.
func newMentions(oldMarkdown string, mentions []string) []string {
	old := make(map[string]bool)
	for _, name := range parsing.ExtractMentions(oldMarkdown) {
		old[name] = true
	}
	var result []string
	for _, name := range mentions {
		if !old[name] {
			result = append(result, name)
		}
	}
	return result
}

/*
UpdateTopic changes a topic's title and category. Owners may only move a
topic into categories they could create topics in; moderators may use any
unremoved visible category. Moving logs a MOVED comment in the topic.
*/
func UpdateTopic(ctx context.Context, conn db.ConnOrTx, deps Deps, user *models.User, topicID int, input TopicUpdateInput) (*models.Topic, error) {
	if !user.IsAuthenticated() {
		return nil, ErrPermissionDenied
	}

	access, err := LoadAccess(ctx, conn, user)
	if err != nil {
		return nil, err
	}
	current, err := FetchTopic(ctx, conn, access, topicID, TopicsQuery{})
	if err != nil {
		if errors.Is(err, db.NotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !access.CanEdit(current.Topic.UserID) {
		return nil, ErrPermissionDenied
	}

	errs := ValidationErrors{}
	title := validateTitle(errs, input.Title, deps.Limits.MaxTitleLength)

	dest := current.Category
	if input.CategoryID != 0 && input.CategoryID != current.Topic.CategoryID {
		filter := CanCreateTopic
		if access.CanModerate() {
			filter = Unremoved
		}
		dest, err = FetchCategory(ctx, conn, access, input.CategoryID, filter)
		if errors.Is(err, db.NotFound) {
			errs.Add(FieldCategory, "Select a valid choice.")
		} else if err != nil {
			return nil, err
		}
	}
	if errs.Any() {
		return nil, errs
	}
	moved := dest.ID != current.Topic.CategoryID

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, oops.New(err, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	updated, err := db.QueryOne[models.Topic](ctx, tx,
		`
		---- Update topic
		UPDATE topic
		SET
			title = $2,
			slug = $3,
			category_id = $4,
			reindex_at = NOW()
		WHERE id = $1
		RETURNING $columns
		`,
		topicID,
		title,
		TopicSlug(title),
		dest.ID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to update topic")
	}

	if moved {
		if err := logModeration(ctx, tx, dest, user, topicID, models.CommentActionMoved); err != nil {
			return nil, err
		}
		if err := bumpCategoryReindex(ctx, tx, current.Topic.CategoryID); err != nil {
			return nil, err
		}
	}
	if err := bumpCategoryReindex(ctx, tx, dest.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, oops.New(err, "failed to commit topic update")
	}
	return updated, nil
}

func logModeration(ctx context.Context, tx db.ConnOrTx, category *models.Category, moderator *models.User, topicID int, action models.CommentAction) error {
	comment, err := insertComment(ctx, tx, newComment{
		TopicID: topicID,
		UserID:  moderator.ID,
		Action:  action,
	})
	if err != nil {
		return err
	}
	return commentPosted(ctx, tx, category, comment, nil)
}

/*
MoveComments moves comments into another topic and returns how many moved.
Comments already in the destination are skipped. Counters move with the
unremoved comments, and both sides get their last activity recomputed.
*/
func MoveComments(ctx context.Context, conn db.ConnOrTx, deps Deps, moderator *models.User, destTopicID int, commentIDs []int) (int, error) {
	if !moderator.CanModerate() {
		return 0, ErrPermissionDenied
	}

	access, err := LoadAccess(ctx, conn, moderator)
	if err != nil {
		return 0, err
	}

	errs := ValidationErrors{}
	commentIDs = utils.Dedupe(commentIDs)
	if len(commentIDs) == 0 {
		errs.Add(FieldComments, "This field is required.")
	}
	dest, err := FetchTopic(ctx, conn, access, destTopicID, TopicsQuery{})
	if errors.Is(err, db.NotFound) {
		errs.Add(FieldTopic, "Select a valid choice.")
	} else if err != nil {
		return 0, err
	}
	if errs.Any() {
		return 0, errs
	}

	visible, err := FetchComments(ctx, conn, access, CommentsQuery{CommentIDs: commentIDs})
	if err != nil {
		return 0, err
	}
	var toMove []int
	for _, c := range visible {
		if c.Comment.TopicID != destTopicID {
			toMove = append(toMove, c.Comment.ID)
		}
	}
	if len(toMove) == 0 {
		return 0, nil
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, oops.New(err, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	sources, err := db.Query[models.Comment](ctx, tx,
		`
		---- Lock comments to move
		SELECT $columns
		FROM comment
		WHERE id = ANY($1) AND topic_id <> $2
		ORDER BY date ASC, id ASC
		FOR UPDATE
		`,
		toMove,
		destTopicID,
	)
	if err != nil {
		return 0, oops.New(err, "failed to lock comments")
	}
	if len(sources) == 0 {
		return 0, nil
	}

	movedIDs := make([]int, len(sources))
	removedFrom := make(map[int]int)
	var sourceTopicIDs []int
	var sourceCategoryIDs []int
	added := 0
	for i, c := range sources {
		movedIDs[i] = c.ID
		if _, seen := removedFrom[c.TopicID]; !seen {
			removedFrom[c.TopicID] = 0
			sourceTopicIDs = append(sourceTopicIDs, c.TopicID)
		}
		if !c.IsRemoved {
			removedFrom[c.TopicID]++
			added++
		}
	}

	_, err = tx.Exec(ctx,
		`
		---- Move comments
		UPDATE comment
		SET topic_id = $2
		WHERE id = ANY($1)
		`,
		movedIDs,
		destTopicID,
	)
	if err != nil {
		return 0, oops.New(err, "failed to move comments")
	}

	for _, topicID := range sourceTopicIDs {
		categoryID, err := db.QueryOneScalar[int](ctx, tx,
			`
			---- Decrement source topic
			UPDATE topic
			SET comment_count = GREATEST(comment_count - $2, 0)
			WHERE id = $1
			RETURNING category_id
			`,
			topicID,
			removedFrom[topicID],
		)
		if err != nil {
			return 0, oops.New(err, "failed to update source topic counters")
		}
		sourceCategoryIDs = append(sourceCategoryIDs, categoryID)
	}

	_, err = tx.Exec(ctx,
		`
		---- Increment destination topic
		UPDATE topic
		SET comment_count = comment_count + $2
		WHERE id = $1
		`,
		destTopicID,
		added,
	)
	if err != nil {
		return 0, oops.New(err, "failed to update destination topic counters")
	}

	if err := refreshTopicActivity(ctx, tx, append(sourceTopicIDs, destTopicID)...); err != nil {
		return 0, err
	}

	for _, c := range sources {
		c.TopicID = destTopicID
		if err := commentPosted(ctx, tx, dest.Category, c, nil); err != nil {
			return 0, err
		}
	}
	if err := bumpTopicReindex(ctx, tx, sourceTopicIDs...); err != nil {
		return 0, err
	}
	if err := bumpCategoryReindex(ctx, tx, utils.Dedupe(sourceCategoryIDs)...); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, oops.New(err, "failed to commit comment move")
	}
	return len(sources), nil
}

/*
RemoveComment soft-deletes (remove=true) or restores (remove=false) a comment.
Asking for the state the comment is already in does nothing and is not an
error. Counters only change on a real transition.
*/
func RemoveComment(ctx context.Context, conn db.ConnOrTx, moderator *models.User, commentID int, remove bool) error {
	if !moderator.CanModerate() {
		return ErrPermissionDenied
	}

	access, err := LoadAccess(ctx, conn, moderator)
	if err != nil {
		return err
	}
	if _, err := FetchComment(ctx, conn, access, commentID, CommentsQuery{}); err != nil {
		if errors.Is(err, db.NotFound) {
			return ErrNotFound
		}
		return err
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return oops.New(err, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	topicID, err := db.QueryOneScalar[int](ctx, tx,
		`
		---- Set comment removed
		UPDATE comment
		SET is_removed = $2
		WHERE id = $1 AND is_removed <> $2
		RETURNING topic_id
		`,
		commentID,
		remove,
	)
	if errors.Is(err, db.NotFound) {
		return nil
	} else if err != nil {
		return oops.New(err, "failed to update comment")
	}

	delta := 1
	if remove {
		delta = -1
	}
	categoryID, err := db.QueryOneScalar[int](ctx, tx,
		`
		---- Adjust topic comment count
		UPDATE topic
		SET comment_count = GREATEST(comment_count + $2, 0)
		WHERE id = $1
		RETURNING category_id
		`,
		topicID,
		delta,
	)
	if err != nil {
		return oops.New(err, "failed to update topic counters")
	}

	if err := refreshTopicActivity(ctx, tx, topicID); err != nil {
		return err
	}
	if err := bumpTopicReindex(ctx, tx, topicID); err != nil {
		return err
	}
	if err := bumpCategoryReindex(ctx, tx, categoryID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.New(err, "failed to commit comment removal")
	}
	return nil
}

type TopicModeration string

const (
	ModerateClose       TopicModeration = "close"
	ModerateOpen        TopicModeration = "open"
	ModeratePin         TopicModeration = "pin"
	ModerateUnpin       TopicModeration = "unpin"
	ModerateGlobalPin   TopicModeration = "globalpin"
	ModerateGlobalUnpin TopicModeration = "globalunpin"
	ModerateRemove      TopicModeration = "remove"
	ModerateRestore     TopicModeration = "restore"
)

type topicFlagChange struct {
	column string
	value  bool
	action models.CommentAction
}

var topicModerations = map[TopicModeration]topicFlagChange{
	ModerateClose:       {"is_closed", true, models.CommentActionClosed},
	ModerateOpen:        {"is_closed", false, models.CommentActionUnclosed},
	ModeratePin:         {"is_pinned", true, models.CommentActionPinned},
	ModerateUnpin:       {"is_pinned", false, models.CommentActionUnpinned},
	ModerateGlobalPin:   {"is_globally_pinned", true, models.CommentActionGloballyPinned},
	ModerateGlobalUnpin: {"is_globally_pinned", false, models.CommentActionGloballyUnpinned},
	ModerateRemove:      {"is_removed", true, models.CommentActionRemoved},
	ModerateRestore:     {"is_removed", false, models.CommentActionRestored},
}

func ParseTopicModeration(s string) (TopicModeration, bool) {
	_, ok := topicModerations[TopicModeration(s)]
	return TopicModeration(s), ok
}

/*
ModerateTopic flips one of a topic's moderation flags and logs the change as
a moderation comment. Like RemoveComment, repeating an action is a no-op.
*/
func ModerateTopic(ctx context.Context, conn db.ConnOrTx, moderator *models.User, topicID int, action TopicModeration) error {
	change, ok := topicModerations[action]
	if !ok {
		return oops.New(nil, "unknown topic moderation action '%s'", action)
	}
	if !moderator.CanModerate() {
		return ErrPermissionDenied
	}

	access, err := LoadAccess(ctx, conn, moderator)
	if err != nil {
		return err
	}
	topic, err := FetchTopic(ctx, conn, access, topicID, TopicsQuery{})
	if err != nil {
		if errors.Is(err, db.NotFound) {
			return ErrNotFound
		}
		return err
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return oops.New(err, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	// column comes from the fixed table above, never from input.
	tag, err := tx.Exec(ctx,
		fmt.Sprintf(
			`
			---- Moderate topic
			UPDATE topic
			SET %[1]s = $2, reindex_at = NOW()
			WHERE id = $1 AND %[1]s <> $2
			`,
			change.column,
		),
		topicID,
		change.value,
	)
	if err != nil {
		return oops.New(err, "failed to moderate topic")
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	if err := logModeration(ctx, tx, topic.Category, moderator, topicID, change.action); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.New(err, "failed to commit topic moderation")
	}
	return nil
}
