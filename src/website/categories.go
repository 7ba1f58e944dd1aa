package website

import (
	"net/http"
	"strconv"

	"git.handmade.network/hmn/forum/src/forumdata"
	"git.handmade.network/hmn/forum/src/forumurl"
	"git.handmade.network/hmn/forum/src/models"
	"git.handmade.network/hmn/forum/src/oops"
	"git.handmade.network/hmn/forum/src/templates"
)

type categoryIndexData struct {
	templates.BaseData
	Categories []templates.Category
}

func CategoryIndex(c *RequestContext) ResponseData {
	c.Perf.StartBlock("SQL", "Fetch categories")
	cats, err := forumdata.FetchCategories(c, c.Conn, c.Access)
	c.Perf.EndBlock()
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, oops.New(err, "failed to fetch categories"))
	}

	var tmplCats []templates.Category
	for _, root := range c.Access.Filter(cats, forumdata.ParentsOnly) {
		tmplCat := *templates.CategoryToTemplate(root)
		for _, child := range forumdata.Children(cats, root) {
			tmplCat.Subcategories = append(tmplCat.Subcategories, *templates.CategoryToTemplate(child))
		}
		tmplCats = append(tmplCats, tmplCat)
	}

	var res ResponseData
	res.MustWriteTemplate("index.html", categoryIndexData{
		BaseData:   getBaseData(c, "", nil),
		Categories: tmplCats,
	}, c.Perf)
	return res
}

type categoryData struct {
	templates.BaseData
	Category       *templates.Category
	Subcategories  []templates.Category
	CanCreateTopic bool
	Topics         []templates.Topic
	Pagination     templates.Pagination
}

func CategoryDetail(c *RequestContext) ResponseData {
	categoryID, err := strconv.Atoi(c.PathParams["categoryid"])
	if err != nil {
		return FourOhFour(c)
	}

	cats, err := forumdata.FetchCategories(c, c.Conn, c.Access)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, oops.New(err, "failed to fetch categories"))
	}
	var category *models.Category
	for _, cat := range cats {
		if cat.ID == categoryID {
			category = cat
		}
	}
	if category == nil {
		return FourOhFour(c)
	}

	if c.PathParams["slug"] != category.Slug {
		return c.Redirect(forumurl.BuildCategory(category.ID, category.Slug, pageOrFirst(c)), http.StatusMovedPermanently)
	}

	settings := c.Services.Settings.Settings(c)
	q := forumdata.TopicsQuery{
		CategoryIDs: []int{category.ID},
		Order:       forumdata.TopicOrderCategory,
	}

	numTopics, err := forumdata.CountTopics(c, c.Conn, c.Access, q)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, oops.New(err, "failed to count topics"))
	}

	buildUrl := func(page int) string {
		return forumurl.BuildCategory(category.ID, category.Slug, page)
	}
	page := resolvePage(c, numTopics, settings.TopicsPerPage, settings.PagePolicy(), buildUrl)
	if page.Response != nil {
		return *page.Response
	}

	q.Limit = page.Info.Limit()
	q.Offset = page.Info.Offset()
	topics, err := forumdata.FetchTopics(c, c.Conn, c.Access, q)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, oops.New(err, "failed to fetch topics"))
	}

	var subcategories []templates.Category
	for _, child := range forumdata.Children(cats, category) {
		subcategories = append(subcategories, *templates.CategoryToTemplate(child))
	}

	var res ResponseData
	res.MustWriteTemplate("category.html", categoryData{
		BaseData:       getBaseData(c, category.DisplayTitle(), categoryBreadcrumbs(c, category.ID)),
		Category:       templates.CategoryToTemplate(category),
		Subcategories:  subcategories,
		CanCreateTopic: c.CurrentUser != nil && c.Access.Allows(category, forumdata.CanCreateTopic),
		Topics:         topicsToTemplate(c, topics),
		Pagination:     makePagination(page.Info, buildUrl),
	}, c.Perf)
	return res
}

// For redirects that keep whatever page was asked for, as long as it's a real page number.
func pageOrFirst(c *RequestContext) int {
	page := pageParam(c)
	if page < 1 {
		return 1
	}
	return page
}

func topicsToTemplate(c *RequestContext, topics []forumdata.TopicAndStuff) []templates.Topic {
	unread := unreadTopicIDs(c)

	result := make([]templates.Topic, 0, len(topics))
	for _, t := range topics {
		tmplTopic := templates.TopicToTemplate(&t.Topic, t.Category, t.Author, t.LastCommenter)
		tmplTopic.Unread = unread[t.Topic.ID]
		result = append(result, tmplTopic)
	}
	return result
}

// Enough to mark up any listing page; older notifications just don't get highlighted.
const unreadLookupLimit = 200

func unreadTopicIDs(c *RequestContext) map[int]bool {
	if c.CurrentUser == nil {
		return nil
	}
	notifications, err := forumdata.FetchUnreadNotifications(c, c.Conn, c.Access, unreadLookupLimit)
	if err != nil {
		c.Logger.Warn().Err(err).Msg("failed to fetch unread topics")
		return nil
	}
	result := make(map[int]bool, len(notifications))
	for _, n := range notifications {
		result[n.Topic.ID] = true
	}
	return result
}
