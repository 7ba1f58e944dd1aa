package website

import (
	"errors"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"

	"git.handmade.network/hmn/forum/src/assets"
	"git.handmade.network/hmn/forum/src/forumdata"
	"git.handmade.network/hmn/forum/src/forumurl"
	"git.handmade.network/hmn/forum/src/models"
	"git.handmade.network/hmn/forum/src/oops"
	"git.handmade.network/hmn/forum/src/pagination"
	"git.handmade.network/hmn/forum/src/templates"
)

func CommentPublish(c *RequestContext) ResponseData {
	topicID, err := strconv.Atoi(c.PathParams["topicid"])
	if err != nil {
		return FourOhFour(c)
	}

	input := forumdata.CommentInput{
		Markdown:  c.Req.Form.Get("comment"),
		IPAddress: c.IPString(),
	}
	result, err := forumdata.PublishComment(c, c.Conn, c.Services.Posting, c.CurrentUser, topicID, input)
	if err != nil {
		reply := replyState{Value: input.Markdown}
		status := http.StatusBadRequest

		var verrs forumdata.ValidationErrors
		switch {
		case errors.Is(err, forumdata.ErrRateLimited):
			reply.RateLimitErrors = []string{rateLimitMessage}
			status = http.StatusTooManyRequests
		case errors.As(err, &verrs):
			reply.Errors = templates.FormErrors(verrs)
		default:
			return forumErrorResponse(c, err, "failed to publish comment")
		}

		topic, err := forumdata.FetchTopic(c, c.Conn, c.Access, topicID, forumdata.TopicsQuery{})
		if err != nil {
			return forumErrorResponse(c, err, "failed to fetch topic")
		}
		res, _ := renderTopic(c, topic, reply)
		return withStatus(res, status)
	}

	var dest string
	if result.Comment != nil {
		dest, err = commentUrl(c, result.Comment)
		if err != nil {
			return c.ErrorResponse(http.StatusInternalServerError, err)
		}
	} else {
		lastPage := pagination.PageOf(result.Topic.CommentCount, c.Services.Settings.Settings(c).CommentsPerPage)
		dest = forumurl.BuildTopic(result.Topic.ID, result.Topic.Slug, lastPage)
	}
	res := c.Redirect(dest, http.StatusSeeOther)
	if result.Duplicate {
		res.AddFutureNotice("warn", "You already posted that. Here it is.")
	}
	return res
}

type commentFormData struct {
	templates.BaseData

	Topic     templates.Topic
	SubmitUrl string

	CommentValue string
	Errors       templates.FormErrors
	UploadUrl    string

	History []templates.CommentRevision
}

func CommentUpdateForm(c *RequestContext) ResponseData {
	comment, res, ok := fetchEditableComment(c)
	if !ok {
		return res
	}
	return renderCommentUpdateForm(c, comment, comment.Comment.Markdown, nil)
}

func CommentUpdate(c *RequestContext) ResponseData {
	comment, res, ok := fetchEditableComment(c)
	if !ok {
		return res
	}

	input := forumdata.CommentInput{
		Markdown:  c.Req.Form.Get("comment"),
		IPAddress: c.IPString(),
	}
	updated, err := forumdata.UpdateComment(c, c.Conn, c.Services.Posting, c.CurrentUser, comment.Comment.ID, input)
	if err != nil {
		var verrs forumdata.ValidationErrors
		if errors.As(err, &verrs) {
			return withStatus(renderCommentUpdateForm(c, comment, input.Markdown, templates.FormErrors(verrs)), http.StatusBadRequest)
		}
		return forumErrorResponse(c, err, "failed to update comment")
	}

	dest, err := commentUrl(c, updated)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, err)
	}
	res = c.Redirect(dest, http.StatusSeeOther)
	res.AddFutureNotice("success", "Comment updated.")
	return res
}

func fetchEditableComment(c *RequestContext) (forumdata.CommentAndStuff, ResponseData, bool) {
	commentID, err := strconv.Atoi(c.PathParams["commentid"])
	if err != nil {
		return forumdata.CommentAndStuff{}, FourOhFour(c), false
	}
	comment, err := forumdata.FetchComment(c, c.Conn, c.Access, commentID, forumdata.CommentsQuery{})
	if err != nil {
		return forumdata.CommentAndStuff{}, forumErrorResponse(c, err, "failed to fetch comment"), false
	}
	if comment.Comment.Action.IsModeration() || !c.Access.CanEdit(comment.Comment.UserID) {
		return forumdata.CommentAndStuff{}, PermissionDenied(c), false
	}
	return comment, ResponseData{}, true
}

func renderCommentUpdateForm(c *RequestContext, comment forumdata.CommentAndStuff, value string, errs templates.FormErrors) ResponseData {
	history, err := forumdata.FetchCommentHistory(c, c.Conn, comment.Comment.ID)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, oops.New(err, "failed to fetch comment history"))
	}
	var revisions []templates.CommentRevision
	for _, h := range history {
		revisions = append(revisions, templates.CommentRevision{
			Date:    h.Date,
			Content: template.HTML(h.HTML),
		})
	}

	topic := templates.TopicToTemplate(&comment.Topic, nil, nil, nil)
	var res ResponseData
	res.MustWriteTemplate("comment_form.html", commentFormData{
		BaseData: getBaseData(c, "Edit comment", append(categoryBreadcrumbs(c, comment.Topic.CategoryID),
			templates.Breadcrumb{Name: comment.Topic.Title, Url: topic.Url},
			templates.Breadcrumb{Name: "Edit comment", Url: forumurl.BuildCommentUpdate(comment.Comment.ID)},
		)),
		Topic:        topic,
		SubmitUrl:    forumurl.BuildCommentUpdate(comment.Comment.ID),
		CommentValue: value,
		Errors:       errs,
		UploadUrl:    forumurl.BuildCommentImageUpload(),
		History:      revisions,
	}, c.Perf)
	return res
}

// Removes a comment, or restores it when the form says remove=false.
func CommentDelete(c *RequestContext) ResponseData {
	commentID, err := strconv.Atoi(c.PathParams["commentid"])
	if err != nil {
		return FourOhFour(c)
	}
	remove := c.Req.Form.Get("remove") != "false"

	err = forumdata.RemoveComment(c, c.Conn, c.CurrentUser, commentID, remove)
	if err != nil {
		return forumErrorResponse(c, err, "failed to remove comment")
	}

	comment, err := forumdata.FetchComment(c, c.Conn, c.Access, commentID, forumdata.CommentsQuery{})
	if err != nil {
		return forumErrorResponse(c, err, "failed to fetch comment")
	}
	dest, err := commentUrl(c, &comment.Comment)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, err)
	}

	res := c.Redirect(dest, http.StatusSeeOther)
	if remove {
		res.AddFutureNotice("success", "Comment removed.")
	} else {
		res.AddFutureNotice("success", "Comment restored.")
	}
	return res
}

func CommentMove(c *RequestContext) ResponseData {
	back := safeRedirect(c.Req.Referer())

	fail := func(msgs ...string) ResponseData {
		res := c.Redirect(back, http.StatusSeeOther)
		for _, msg := range msgs {
			res.AddFutureNotice("failure", msg)
		}
		return res
	}

	destTopicID, err := strconv.Atoi(strings.TrimSpace(c.Req.Form.Get("topic")))
	if err != nil {
		return fail("Enter the id of the topic to move the comments to.")
	}
	var commentIDs []int
	for _, raw := range c.Req.Form["comments"] {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return fail("Invalid comment selection.")
		}
		commentIDs = append(commentIDs, id)
	}

	moved, err := forumdata.MoveComments(c, c.Conn, c.Services.Posting, c.CurrentUser, destTopicID, commentIDs)
	if err != nil {
		var verrs forumdata.ValidationErrors
		if errors.As(err, &verrs) {
			var msgs []string
			for _, fieldMsgs := range verrs {
				msgs = append(msgs, fieldMsgs...)
			}
			return fail(msgs...)
		}
		return forumErrorResponse(c, err, "failed to move comments")
	}

	dest, err := forumdata.FetchTopic(c, c.Conn, c.Access, destTopicID, forumdata.TopicsQuery{})
	if err != nil {
		return forumErrorResponse(c, err, "failed to fetch destination topic")
	}
	res := c.Redirect(forumurl.BuildTopic(dest.Topic.ID, dest.Topic.Slug, 1), http.StatusSeeOther)
	if moved == 1 {
		res.AddFutureNotice("success", "Moved 1 comment.")
	} else {
		res.AddFutureNotice("success", "Moved "+strconv.Itoa(moved)+" comments.")
	}
	return res
}

// Permalinks for comments. The page a comment is on changes as comments
// around it come and go, so it is worked out on every visit.
func CommentFind(c *RequestContext) ResponseData {
	commentID, err := strconv.Atoi(c.PathParams["commentid"])
	if err != nil {
		return FourOhFour(c)
	}
	comment, err := forumdata.FetchComment(c, c.Conn, c.Access, commentID, forumdata.CommentsQuery{})
	if err != nil {
		return forumErrorResponse(c, err, "failed to fetch comment")
	}

	dest, err := commentUrl(c, &comment.Comment)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, err)
	}
	return c.Redirect(dest, http.StatusFound)
}

func commentUrl(c *RequestContext, comment *models.Comment) (string, error) {
	topic, err := forumdata.FetchTopic(c, c.Conn, c.Access, comment.TopicID, forumdata.TopicsQuery{})
	if err != nil {
		return "", oops.New(err, "failed to fetch topic of comment")
	}
	position, err := forumdata.CountComments(c, c.Conn, c.Access, forumdata.CommentsQuery{
		TopicIDs: []int{comment.TopicID},
		UpTo:     comment,
	})
	if err != nil {
		return "", oops.New(err, "failed to find comment position")
	}
	page := pagination.PageOf(position, c.Services.Settings.Settings(c).CommentsPerPage)
	return forumurl.BuildTopicComment(topic.Topic.ID, topic.Topic.Slug, page, comment.ID), nil
}

type imageUploadResponse struct {
	Url   string              `json:"url,omitempty"`
	Error map[string][]string `json:"error,omitempty"`
}

func CommentImageUpload(c *RequestContext) ResponseData {
	fail := func(status int, msg string) ResponseData {
		var res ResponseData
		res.StatusCode = status
		res.WriteJson(imageUploadResponse{
			Error: map[string][]string{forumdata.FieldImage: {msg}},
		}, c.Perf)
		return res
	}

	decision := c.Services.Posting.Limiter.Allow(c, "upload:"+strconv.Itoa(c.CurrentUser.ID), c.Services.UploadRate)
	if !decision.Allowed {
		return fail(http.StatusTooManyRequests, "You're uploading too quickly. Try again later.")
	}

	file, header, err := c.Req.FormFile(forumdata.FieldImage)
	if err != nil {
		return fail(http.StatusBadRequest, "No image was uploaded.")
	}
	defer file.Close()

	maxSize := c.Services.MaxImageSize
	var reader io.Reader = file
	if maxSize > 0 {
		reader = io.LimitReader(file, maxSize+1)
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		return fail(http.StatusBadRequest, "The upload could not be read.")
	}

	asset, err := assets.CreateImage(c, c.Conn, c.Services.Assets, assets.CreateInput{
		Content:    content,
		Filename:   header.Filename,
		UploaderID: c.CurrentUser.ID,
		MaxSize:    maxSize,
	})
	if err != nil {
		if assets.IsInvalidAsset(err) {
			return fail(http.StatusBadRequest, err.Error())
		}
		c.Logger.Error().Err(err).Msg("failed to save uploaded image")
		return fail(http.StatusInternalServerError, "The image could not be saved.")
	}

	var res ResponseData
	res.WriteJson(imageUploadResponse{Url: c.Services.Assets.URL(asset.StorageKey)}, c.Perf)
	return res
}
