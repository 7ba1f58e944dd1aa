package forumurl

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"git.handmade.network/hmn/forum/src/oops"
)

var RegexHomepage = regexp.MustCompile("^/$")

func BuildHomepage() string {
	return Url("/", nil)
}

var RegexLogin = regexp.MustCompile("^/login$")

func BuildLogin() string {
	return Url("/login", nil)
}

func BuildLoginPage(redirectTo string) string {
	var query []Q
	if redirectTo != "" {
		query = append(query, Q{Name: "redirect", Value: redirectTo})
	}
	return Url("/login", query)
}

var RegexLogout = regexp.MustCompile("^/logout$")

func BuildLogout() string {
	return Url("/logout", nil)
}

func pageQuery(page int) []Q {
	if page < 1 {
		panic(oops.New(nil, "Invalid page (%d), must be >= 1", page))
	}
	if page == 1 {
		return nil
	}
	return []Q{{Name: "page", Value: strconv.Itoa(page)}}
}

func slugSegment(slug string) string {
	slug = strings.TrimSpace(slug)
	if strings.Contains(slug, "/") {
		panic(oops.New(nil, "Tried building url with / in slug"))
	}
	return url.PathEscape(slug)
}

var RegexCategory = regexp.MustCompile(`^/category/(?P<categoryid>\d+)(/(?P<slug>[^/]*))?$`)

func BuildCategory(categoryID int, slug string, page int) string {
	return Url(fmt.Sprintf("/category/%d/%s", categoryID, slugSegment(slug)), pageQuery(page))
}

var RegexTopic = regexp.MustCompile(`^/topic/(?P<topicid>\d+)(/(?P<slug>[^/]*))?$`)

func BuildTopic(topicID int, slug string, page int) string {
	return Url(fmt.Sprintf("/topic/%d/%s", topicID, slugSegment(slug)), pageQuery(page))
}

func CommentAnchor(commentID int) string {
	return fmt.Sprintf("c%d", commentID)
}

func BuildTopicComment(topicID int, slug string, page int, commentID int) string {
	return UrlWithFragment(fmt.Sprintf("/topic/%d/%s", topicID, slugSegment(slug)), pageQuery(page), CommentAnchor(commentID))
}

var RegexTopicPublish = regexp.MustCompile(`^/topic/publish/(?P<categoryid>\d+)$`)

func BuildTopicPublish(categoryID int) string {
	return Url(fmt.Sprintf("/topic/publish/%d", categoryID), nil)
}

var RegexTopicUpdate = regexp.MustCompile(`^/topic/update/(?P<topicid>\d+)$`)

func BuildTopicUpdate(topicID int) string {
	return Url(fmt.Sprintf("/topic/update/%d", topicID), nil)
}

var RegexTopicModerate = regexp.MustCompile(`^/topic/moderate/(?P<topicid>\d+)/(?P<action>[a-z]+)$`)

func BuildTopicModerate(topicID int, action string) string {
	if action == "" || strings.ContainsAny(action, "/?#") {
		panic(oops.New(nil, "Invalid moderation action '%s'", action))
	}
	return Url(fmt.Sprintf("/topic/moderate/%d/%s", topicID, action), nil)
}

var RegexActiveTopics = regexp.MustCompile(`^/topics/active$`)

func BuildActiveTopics(page int) string {
	return Url("/topics/active", pageQuery(page))
}

var RegexCommentPublish = regexp.MustCompile(`^/topic/(?P<topicid>\d+)/comment/publish$`)

func BuildCommentPublish(topicID int) string {
	return Url(fmt.Sprintf("/topic/%d/comment/publish", topicID), nil)
}

var RegexCommentUpdate = regexp.MustCompile(`^/comment/(?P<commentid>\d+)/update$`)

func BuildCommentUpdate(commentID int) string {
	return Url(fmt.Sprintf("/comment/%d/update", commentID), nil)
}

var RegexCommentDelete = regexp.MustCompile(`^/comment/(?P<commentid>\d+)/delete$`)

func BuildCommentDelete(commentID int) string {
	return Url(fmt.Sprintf("/comment/%d/delete", commentID), nil)
}

var RegexCommentMove = regexp.MustCompile(`^/comment/move$`)

func BuildCommentMove() string {
	return Url("/comment/move", nil)
}

var RegexCommentFind = regexp.MustCompile(`^/comment/(?P<commentid>\d+)/find$`)

func BuildCommentFind(commentID int) string {
	return Url(fmt.Sprintf("/comment/%d/find", commentID), nil)
}

var RegexCommentImageUpload = regexp.MustCompile(`^/comment/image-upload$`)

func BuildCommentImageUpload() string {
	return Url("/comment/image-upload", nil)
}

var RegexSearch = regexp.MustCompile(`^/search$`)

func BuildSearch(query string, page int) string {
	var q []Q
	if query != "" {
		q = append(q, Q{Name: "q", Value: query})
	}
	return Url("/search", append(q, pageQuery(page)...))
}

var RegexNotifications = regexp.MustCompile(`^/notifications$`)

func BuildNotifications() string {
	return Url("/notifications", nil)
}

var RegexPerfmon = regexp.MustCompile(`^/admin/perf$`)

func BuildPerfmon() string {
	return Url("/admin/perf", nil)
}

var RegexPublic = regexp.MustCompile("^/public/.+$")

func BuildPublic(filepath string) string {
	filepath = strings.Trim(filepath, "/")
	if len(strings.TrimSpace(filepath)) == 0 {
		panic(oops.New(nil, "Attempted to build a /public url with no path"))
	}
	var builder strings.Builder
	builder.WriteString(StaticPath)
	pathParts := strings.Split(filepath, "/")
	for _, part := range pathParts {
		part = strings.TrimSpace(part)
		if len(part) == 0 {
			panic(oops.New(nil, "Attempted to build a /public url with blank path segments: %s", filepath))
		}
		builder.WriteRune('/')
		builder.WriteString(part)
	}
	return Url(builder.String(), nil)
}

var RegexCatchAll = regexp.MustCompile("^")
