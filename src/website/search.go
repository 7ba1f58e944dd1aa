package website

import (
	"errors"
	"html"
	"html/template"
	"net/http"
	"strings"

	"git.handmade.network/hmn/forum/src/forumdata"
	"git.handmade.network/hmn/forum/src/forumurl"
	"git.handmade.network/hmn/forum/src/oops"
	"git.handmade.network/hmn/forum/src/pagination"
	"git.handmade.network/hmn/forum/src/search"
	"git.handmade.network/hmn/forum/src/templates"
)

type searchData struct {
	templates.BaseData

	SearchUrl    string
	Query        string
	Unavailable  bool
	TotalResults int
	Results      []templates.SearchResult
	Pagination   templates.Pagination
}

const maxQueryLength = 200

func Search(c *RequestContext) ResponseData {
	query := strings.TrimSpace(c.Req.URL.Query().Get("q"))
	if runes := []rune(query); len(runes) > maxQueryLength {
		query = string(runes[:maxQueryLength])
	}

	data := searchData{
		BaseData:  getBaseData(c, "Search", []templates.Breadcrumb{{Name: "Search", Url: forumurl.BuildSearch("", 1)}}),
		SearchUrl: forumurl.BuildSearch("", 1),
		Query:     query,
	}
	render := func() ResponseData {
		var res ResponseData
		res.MustWriteTemplate("search.html", data, c.Perf)
		return res
	}

	if query == "" {
		return render()
	}
	if !c.Services.Search.Healthy() {
		data.Unavailable = true
		return withStatus(render(), http.StatusServiceUnavailable)
	}

	cats, err := forumdata.FetchCategories(c, c.Conn, c.Access)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, oops.New(err, "failed to fetch categories for search"))
	}
	var categoryIDs []int
	for _, cat := range cats {
		categoryIDs = append(categoryIDs, cat.ID)
	}

	settings := c.Services.Settings.Settings(c)
	pageSize := settings.TopicsPerPage
	requested := pageParam(c)
	searchPage := requested
	if searchPage < 1 {
		searchPage = 1
	}

	c.Perf.StartBlock("SEARCH", "Query search index")
	results, total, err := c.Services.Search.Search(c, search.Query{
		Text:        query,
		CategoryIDs: categoryIDs,
		Limit:       pageSize,
		Offset:      (searchPage - 1) * pageSize,
	})
	c.Perf.EndBlock()
	if err != nil {
		c.Logger.Error().Err(err).Msg("search failed")
		data.Unavailable = true
		return withStatus(render(), http.StatusServiceUnavailable)
	}

	buildUrl := func(page int) string {
		return forumurl.BuildSearch(query, page)
	}
	info, err := pagination.Compute(total, pageSize, requested, settings.PagePolicy())
	if err != nil {
		if errors.Is(err, pagination.ErrPageOutOfRange) {
			return FourOhFour(c)
		}
		return c.ErrorResponse(http.StatusInternalServerError, err)
	}
	if info.Clamped {
		return c.Redirect(buildUrl(info.Page), http.StatusSeeOther)
	}

	// The index can lag behind the database, so results are checked against
	// what the viewer can see right now.
	var topicIDs []int
	for _, r := range results {
		topicIDs = append(topicIDs, r.TopicID)
	}
	var topics []forumdata.TopicAndStuff
	if len(topicIDs) > 0 {
		topics, err = forumdata.FetchTopics(c, c.Conn, c.Access, forumdata.TopicsQuery{TopicIDs: topicIDs})
		if err != nil {
			return c.ErrorResponse(http.StatusInternalServerError, oops.New(err, "failed to fetch topics for search results"))
		}
	}
	topicsByID := make(map[int]forumdata.TopicAndStuff, len(topics))
	for _, t := range topics {
		topicsByID[t.Topic.ID] = t
	}

	for _, r := range results {
		t, ok := topicsByID[r.TopicID]
		if !ok {
			continue
		}
		data.Results = append(data.Results, templates.SearchResult{
			Title:    highlighted(r.Title),
			Snippet:  highlighted(r.Snippet),
			Url:      forumurl.BuildTopic(t.Topic.ID, t.Topic.Slug, 1),
			Category: templates.CategoryToTemplate(t.Category),
		})
	}
	data.TotalResults = total
	data.Pagination = makePagination(info, buildUrl)

	return render()
}

// Index text comes back with <mark> around matches and is otherwise plain
// text. Everything but the marks gets escaped.
func highlighted(s string) template.HTML {
	escaped := html.EscapeString(s)
	escaped = strings.ReplaceAll(escaped, "&lt;mark&gt;", "<mark>")
	escaped = strings.ReplaceAll(escaped, "&lt;/mark&gt;", "</mark>")
	return template.HTML(escaped)
}
