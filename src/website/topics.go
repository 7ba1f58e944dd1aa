package website

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"git.handmade.network/hmn/forum/src/forumdata"
	"git.handmade.network/hmn/forum/src/forumurl"
	"git.handmade.network/hmn/forum/src/models"
	"git.handmade.network/hmn/forum/src/oops"
	"git.handmade.network/hmn/forum/src/pagination"
	"git.handmade.network/hmn/forum/src/templates"
	"git.handmade.network/hmn/forum/src/utils"
)

type topicData struct {
	templates.BaseData

	Topic             templates.Topic
	EditTopicUrl      string
	ModerationActions []templates.ModerationAction

	Comments   []templates.Comment
	Pagination templates.Pagination
	MoveUrl    string

	// The reply box. Empty ReplyUrl means the viewer can't reply.
	ReplyUrl        string
	ReplyValue      string
	Errors          templates.FormErrors
	RateLimitErrors []string
	UploadUrl       string
}

// State carried over from a failed reply, so the topic page can show it again.
type replyState struct {
	Value           string
	Errors          templates.FormErrors
	RateLimitErrors []string
}

func TopicDetail(c *RequestContext) ResponseData {
	topicID, err := strconv.Atoi(c.PathParams["topicid"])
	if err != nil {
		return FourOhFour(c)
	}

	c.Perf.StartBlock("SQL", "Fetch topic")
	topic, err := forumdata.FetchTopic(c, c.Conn, c.Access, topicID, forumdata.TopicsQuery{})
	c.Perf.EndBlock()
	if err != nil {
		return forumErrorResponse(c, err, "failed to fetch topic")
	}

	if c.PathParams["slug"] != topic.Topic.Slug {
		return c.Redirect(forumurl.BuildTopic(topic.Topic.ID, topic.Topic.Slug, pageOrFirst(c)), http.StatusMovedPermanently)
	}

	res, ok := renderTopic(c, topic, replyState{})
	if !ok {
		return res
	}

	if err := forumdata.IncrementViewCount(c, c.Conn, topic.Topic.ID); err != nil {
		c.Logger.Warn().Err(err).Msg("failed to count topic view")
	}
	if c.CurrentUser != nil {
		if err := forumdata.MarkTopicRead(c, c.Conn, c.CurrentUser.ID, topic.Topic.ID); err != nil {
			c.Logger.Warn().Err(err).Msg("failed to mark topic read")
		}
	}

	return res
}

/*
Renders a page of a topic. ok is false when the response is something other
than the topic page, like a redirect to a clamped page number.

A failed reply re-renders the last page, where the reply box is, with the
user's text and the errors filled in.
*/
func renderTopic(c *RequestContext, topic forumdata.TopicAndStuff, reply replyState) (ResponseData, bool) {
	settings := c.Services.Settings.Settings(c)
	q := forumdata.CommentsQuery{TopicIDs: []int{topic.Topic.ID}}

	numComments, err := forumdata.CountComments(c, c.Conn, c.Access, q)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, oops.New(err, "failed to count comments")), false
	}

	buildUrl := func(page int) string {
		return forumurl.BuildTopic(topic.Topic.ID, topic.Topic.Slug, page)
	}

	var page pageResult
	if c.Req.Method == http.MethodPost {
		page = pageResult{Info: lastPage(numComments, settings.CommentsPerPage)}
	} else {
		page = resolvePage(c, numComments, settings.CommentsPerPage, settings.PagePolicy(), buildUrl)
		if page.Response != nil {
			return *page.Response, false
		}
	}

	q.Limit = page.Info.Limit()
	q.Offset = page.Info.Offset()
	c.Perf.StartBlock("SQL", "Fetch comments")
	comments, err := forumdata.FetchComments(c, c.Conn, c.Access, q)
	c.Perf.EndBlock()
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, oops.New(err, "failed to fetch comments")), false
	}

	tmplTopic := templates.TopicToTemplate(&topic.Topic, topic.Category, topic.Author, topic.LastCommenter)

	data := topicData{
		BaseData:        getBaseData(c, topic.Topic.Title, append(categoryBreadcrumbs(c, topic.Topic.CategoryID), templates.Breadcrumb{Name: topic.Topic.Title, Url: tmplTopic.Url})),
		Topic:           tmplTopic,
		Comments:        commentsToTemplate(c, comments),
		Pagination:      makePagination(page.Info, buildUrl),
		ReplyValue:      reply.Value,
		Errors:          reply.Errors,
		RateLimitErrors: reply.RateLimitErrors,
	}
	data.BaseData.CanonicalLink = buildUrl(page.Info.Page)

	if c.CurrentUser != nil {
		if c.Access.CanEdit(topic.Topic.UserID) {
			data.EditTopicUrl = forumurl.BuildTopicUpdate(topic.Topic.ID)
		}
		if c.Access.CanCommentOnTopic(&topic.Topic, topic.Category) {
			data.ReplyUrl = forumurl.BuildCommentPublish(topic.Topic.ID)
			data.UploadUrl = forumurl.BuildCommentImageUpload()
		}
		if c.CurrentUser.CanModerate() {
			data.ModerationActions = moderationActions(&topic.Topic)
			data.MoveUrl = forumurl.BuildCommentMove()
		}
	}

	var res ResponseData
	res.MustWriteTemplate("topic.html", data, c.Perf)
	return res, true
}

func lastPage(totalItems, pageSize int) pagination.Info {
	info, _ := pagination.Compute(totalItems, pageSize, utils.NumPages(totalItems, pageSize), pagination.Clamp)
	return info
}

func commentsToTemplate(c *RequestContext, comments []forumdata.CommentAndStuff) []templates.Comment {
	result := make([]templates.Comment, 0, len(comments))
	for _, comment := range comments {
		tmplComment := templates.CommentToTemplate(&comment.Comment, comment.Author)
		if c.CurrentUser != nil && !comment.Comment.Action.IsModeration() {
			if c.Access.CanEdit(comment.Comment.UserID) {
				tmplComment.EditUrl = forumurl.BuildCommentUpdate(comment.Comment.ID)
			}
			if c.CurrentUser.CanModerate() {
				tmplComment.DeleteUrl = forumurl.BuildCommentDelete(comment.Comment.ID)
			}
		}
		result = append(result, tmplComment)
	}
	return result
}

func moderationActions(t *models.Topic) []templates.ModerationAction {
	var actions []forumdata.TopicModeration
	if t.IsClosed {
		actions = append(actions, forumdata.ModerateOpen)
	} else {
		actions = append(actions, forumdata.ModerateClose)
	}
	if t.IsPinned {
		actions = append(actions, forumdata.ModerateUnpin)
	} else {
		actions = append(actions, forumdata.ModeratePin)
	}
	if t.IsGloballyPinned {
		actions = append(actions, forumdata.ModerateGlobalUnpin)
	} else {
		actions = append(actions, forumdata.ModerateGlobalPin)
	}
	if t.IsRemoved {
		actions = append(actions, forumdata.ModerateRestore)
	} else {
		actions = append(actions, forumdata.ModerateRemove)
	}

	result := make([]templates.ModerationAction, len(actions))
	for i, action := range actions {
		result[i] = templates.ModerationAction{
			Name:  string(action),
			Label: moderationLabels[action],
			Url:   forumurl.BuildTopicModerate(t.ID, string(action)),
		}
	}
	return result
}

var moderationLabels = map[forumdata.TopicModeration]string{
	forumdata.ModerateClose:       "Close",
	forumdata.ModerateOpen:        "Reopen",
	forumdata.ModeratePin:         "Pin",
	forumdata.ModerateUnpin:       "Unpin",
	forumdata.ModerateGlobalPin:   "Pin everywhere",
	forumdata.ModerateGlobalUnpin: "Unpin everywhere",
	forumdata.ModerateRemove:      "Remove",
	forumdata.ModerateRestore:     "Restore",
}

type activeTopicsData struct {
	templates.BaseData
	Topics     []templates.Topic
	Pagination templates.Pagination
}

// The feed covers every visible category marked global, newest activity
// first, with globally pinned topics on top.
func ActiveTopics(c *RequestContext) ResponseData {
	settings := c.Services.Settings.Settings(c)
	q := forumdata.TopicsQuery{
		Filters: []forumdata.CategoryFilter{forumdata.GlobalOnly},
		Order:   forumdata.TopicOrderActive,
	}

	numTopics, err := forumdata.CountTopics(c, c.Conn, c.Access, q)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, oops.New(err, "failed to count active topics"))
	}

	page := resolvePage(c, numTopics, settings.TopicsPerPage, settings.PagePolicy(), forumurl.BuildActiveTopics)
	if page.Response != nil {
		return *page.Response
	}

	q.Limit = page.Info.Limit()
	q.Offset = page.Info.Offset()
	topics, err := forumdata.FetchTopics(c, c.Conn, c.Access, q)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, oops.New(err, "failed to fetch active topics"))
	}

	var res ResponseData
	res.MustWriteTemplate("active.html", activeTopicsData{
		BaseData:   getBaseData(c, "Active topics", []templates.Breadcrumb{{Name: "Active topics", Url: forumurl.BuildActiveTopics(1)}}),
		Topics:     topicsToTemplate(c, topics),
		Pagination: makePagination(page.Info, forumurl.BuildActiveTopics),
	}, c.Perf)
	return res
}

type topicFormData struct {
	templates.BaseData

	IsUpdate  bool
	Category  *templates.Category
	SubmitUrl string

	TitleValue     string
	MaxTitleLength int

	Categories       []templates.Category
	SelectedCategory int

	CommentValue string
	UploadUrl    string

	Errors          templates.FormErrors
	RateLimitErrors []string
}

func TopicPublishForm(c *RequestContext) ResponseData {
	category, res, ok := fetchPublishCategory(c)
	if !ok {
		return res
	}
	return renderTopicPublishForm(c, category, topicFormData{})
}

func TopicPublish(c *RequestContext) ResponseData {
	category, res, ok := fetchPublishCategory(c)
	if !ok {
		return res
	}

	input := forumdata.TopicInput{
		Title:     c.Req.Form.Get("title"),
		Markdown:  c.Req.Form.Get("comment"),
		IPAddress: c.IPString(),
	}
	result, err := forumdata.PublishTopic(c, c.Conn, c.Services.Posting, c.CurrentUser, category.ID, input)
	if err != nil {
		form := topicFormData{
			TitleValue:   input.Title,
			CommentValue: input.Markdown,
		}
		var verrs forumdata.ValidationErrors
		switch {
		case errors.Is(err, forumdata.ErrRateLimited):
			form.RateLimitErrors = []string{rateLimitMessage}
			return withStatus(renderTopicPublishForm(c, category, form), http.StatusTooManyRequests)
		case errors.As(err, &verrs):
			form.Errors = templates.FormErrors(verrs)
			return withStatus(renderTopicPublishForm(c, category, form), http.StatusBadRequest)
		default:
			return forumErrorResponse(c, err, "failed to publish topic")
		}
	}

	if result.Topic == nil {
		// Duplicate of a topic that is still being saved.
		res = c.Redirect(forumurl.BuildCategory(category.ID, category.Slug, 1), http.StatusSeeOther)
	} else {
		res = c.Redirect(forumurl.BuildTopic(result.Topic.ID, result.Topic.Slug, 1), http.StatusSeeOther)
	}
	if result.Duplicate {
		res.AddFutureNotice("warn", "You already posted that. Here it is.")
	}
	return res
}

func fetchPublishCategory(c *RequestContext) (*models.Category, ResponseData, bool) {
	categoryID, err := strconv.Atoi(c.PathParams["categoryid"])
	if err != nil {
		return nil, FourOhFour(c), false
	}
	category, err := forumdata.FetchCategory(c, c.Conn, c.Access, categoryID, forumdata.CanCreateTopic)
	if err != nil {
		return nil, forumErrorResponse(c, err, "failed to fetch category"), false
	}
	return category, ResponseData{}, true
}

func renderTopicPublishForm(c *RequestContext, category *models.Category, form topicFormData) ResponseData {
	tmplCategory := templates.CategoryToTemplate(category)
	form.BaseData = getBaseData(c, "New topic", append(categoryBreadcrumbs(c, category.ID), templates.Breadcrumb{Name: "New topic", Url: tmplCategory.PublishUrl}))
	form.Category = tmplCategory
	form.SubmitUrl = forumurl.BuildTopicPublish(category.ID)
	form.MaxTitleLength = c.Services.Posting.Limits.MaxTitleLength
	form.UploadUrl = forumurl.BuildCommentImageUpload()

	var res ResponseData
	res.MustWriteTemplate("topic_form.html", form, c.Perf)
	return res
}

func TopicUpdateForm(c *RequestContext) ResponseData {
	topic, res, ok := fetchEditableTopic(c)
	if !ok {
		return res
	}
	return renderTopicUpdateForm(c, topic, topicFormData{
		TitleValue:       topic.Topic.Title,
		SelectedCategory: topic.Topic.CategoryID,
	})
}

func TopicUpdate(c *RequestContext) ResponseData {
	topic, res, ok := fetchEditableTopic(c)
	if !ok {
		return res
	}

	input := forumdata.TopicUpdateInput{Title: c.Req.Form.Get("title")}
	if rawCategory := strings.TrimSpace(c.Req.Form.Get("category")); rawCategory != "" {
		categoryID, err := strconv.Atoi(rawCategory)
		if err != nil {
			return withStatus(renderTopicUpdateForm(c, topic, topicFormData{
				TitleValue:       input.Title,
				SelectedCategory: topic.Topic.CategoryID,
				Errors:           templates.FormErrors{forumdata.FieldCategory: {"Select a valid choice."}},
			}), http.StatusBadRequest)
		}
		input.CategoryID = categoryID
	}

	updated, err := forumdata.UpdateTopic(c, c.Conn, c.Services.Posting, c.CurrentUser, topic.Topic.ID, input)
	if err != nil {
		var verrs forumdata.ValidationErrors
		if errors.As(err, &verrs) {
			return withStatus(renderTopicUpdateForm(c, topic, topicFormData{
				TitleValue:       input.Title,
				SelectedCategory: utils.OrDefault(input.CategoryID, topic.Topic.CategoryID),
				Errors:           templates.FormErrors(verrs),
			}), http.StatusBadRequest)
		}
		return forumErrorResponse(c, err, "failed to update topic")
	}

	res = c.Redirect(forumurl.BuildTopic(updated.ID, updated.Slug, 1), http.StatusSeeOther)
	res.AddFutureNotice("success", "Topic updated.")
	return res
}

func fetchEditableTopic(c *RequestContext) (forumdata.TopicAndStuff, ResponseData, bool) {
	topicID, err := strconv.Atoi(c.PathParams["topicid"])
	if err != nil {
		return forumdata.TopicAndStuff{}, FourOhFour(c), false
	}
	topic, err := forumdata.FetchTopic(c, c.Conn, c.Access, topicID, forumdata.TopicsQuery{})
	if err != nil {
		return forumdata.TopicAndStuff{}, forumErrorResponse(c, err, "failed to fetch topic"), false
	}
	if !c.Access.CanEdit(topic.Topic.UserID) {
		return forumdata.TopicAndStuff{}, PermissionDenied(c), false
	}
	return topic, ResponseData{}, true
}

// Owners may move a topic to anywhere they could have started it. Moderators
// can use any live category.
func renderTopicUpdateForm(c *RequestContext, topic forumdata.TopicAndStuff, form topicFormData) ResponseData {
	filter := forumdata.CanCreateTopic
	if c.CurrentUser.CanModerate() {
		filter = forumdata.Unremoved
	}
	cats, err := forumdata.FetchCategories(c, c.Conn, c.Access, filter)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, oops.New(err, "failed to fetch categories"))
	}

	hasCurrent := false
	for _, cat := range cats {
		form.Categories = append(form.Categories, *templates.CategoryToTemplate(cat))
		hasCurrent = hasCurrent || cat.ID == topic.Topic.CategoryID
	}
	if !hasCurrent && topic.Category != nil {
		// A topic can always stay where it is, even in a closed category.
		form.Categories = append([]templates.Category{*templates.CategoryToTemplate(topic.Category)}, form.Categories...)
	}

	topicUrl := forumurl.BuildTopic(topic.Topic.ID, topic.Topic.Slug, 1)
	form.BaseData = getBaseData(c, "Edit topic", append(categoryBreadcrumbs(c, topic.Topic.CategoryID),
		templates.Breadcrumb{Name: topic.Topic.Title, Url: topicUrl},
		templates.Breadcrumb{Name: "Edit", Url: forumurl.BuildTopicUpdate(topic.Topic.ID)},
	))
	form.IsUpdate = true
	form.Category = templates.CategoryToTemplate(topic.Category)
	form.SubmitUrl = forumurl.BuildTopicUpdate(topic.Topic.ID)
	form.MaxTitleLength = c.Services.Posting.Limits.MaxTitleLength

	var res ResponseData
	res.MustWriteTemplate("topic_form.html", form, c.Perf)
	return res
}

func TopicModerate(c *RequestContext) ResponseData {
	topicID, err := strconv.Atoi(c.PathParams["topicid"])
	if err != nil {
		return FourOhFour(c)
	}
	action, ok := forumdata.ParseTopicModeration(c.PathParams["action"])
	if !ok {
		return FourOhFour(c)
	}

	err = forumdata.ModerateTopic(c, c.Conn, c.CurrentUser, topicID, action)
	if err != nil {
		return forumErrorResponse(c, err, "failed to moderate topic")
	}

	// Removed topics stay visible to moderators, so going back to it is fine.
	topic, err := forumdata.FetchTopic(c, c.Conn, c.Access, topicID, forumdata.TopicsQuery{})
	if err != nil {
		return forumErrorResponse(c, err, "failed to fetch moderated topic")
	}
	res := c.Redirect(forumurl.BuildTopic(topic.Topic.ID, topic.Topic.Slug, 1), http.StatusSeeOther)
	res.AddFutureNotice("success", "Topic updated: "+moderationLabels[action]+".")
	return res
}

const rateLimitMessage = "You're posting too quickly. Wait a minute and try again."

func withStatus(res ResponseData, status int) ResponseData {
	if res.StatusCode == 0 || res.StatusCode == http.StatusOK {
		res.StatusCode = status
	}
	return res
}
