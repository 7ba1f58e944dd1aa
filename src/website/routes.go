package website

import (
	"net/http"

	"git.handmade.network/hmn/forum/src/db"
	"git.handmade.network/hmn/forum/src/forumurl"
	"git.handmade.network/hmn/forum/src/perf"
)

// Where static files live, relative to the working directory.
var PublicDir = "public"

func NewWebsiteRoutes(conn db.ConnOrTx, perfCollector *perf.PerfCollector, services *Services) http.Handler {
	router := &Router{}
	routes := RouteBuilder{
		Router: router,
		Middlewares: []Middleware{
			withServices(conn, services),
			trackRequestPerf(perfCollector),
			logContextErrorsMiddleware,
			panicCatcherMiddleware,
		},
	}

	routes.GET(forumurl.RegexPublic, func(c *RequestContext) ResponseData {
		var res ResponseData
		http.StripPrefix(forumurl.StaticPath, http.FileServer(http.Dir(PublicDir))).ServeHTTP(&res, c.Req)
		return res
	})

	anyone := routes.WithMiddleware(
		storeNoticesInCookieMiddleware,
		loadCommonData,
	)
	users := anyone.WithMiddleware(needsAuth)
	userForms := users.WithMiddleware(csrfMiddleware)

	// Things people can see but not change get a 403. Everything about
	// moderation stays hidden from non-moderators.
	owners := users.WithMiddleware(denyWith(ShowForbidden))
	ownerForms := owners.WithMiddleware(csrfMiddleware)
	moderators := userForms.WithMiddleware(denyWith(HideExistence), moderatorsOnly)

	anyone.GET(forumurl.RegexHomepage, CategoryIndex)

	anyone.GET(forumurl.RegexLogin, LoginPage)
	anyone.POST(forumurl.RegexLogin, Login)
	userForms.POST(forumurl.RegexLogout, Logout)

	anyone.GET(forumurl.RegexCategory, CategoryDetail)
	anyone.GET(forumurl.RegexActiveTopics, ActiveTopics)
	anyone.GET(forumurl.RegexSearch, Search)
	users.GET(forumurl.RegexNotifications, Notifications)

	users.GET(forumurl.RegexTopicPublish, TopicPublishForm)
	userForms.POST(forumurl.RegexTopicPublish, TopicPublish)
	owners.GET(forumurl.RegexTopicUpdate, TopicUpdateForm)
	ownerForms.POST(forumurl.RegexTopicUpdate, TopicUpdate)
	moderators.POST(forumurl.RegexTopicModerate, TopicModerate)

	userForms.POST(forumurl.RegexCommentPublish, CommentPublish)
	owners.GET(forumurl.RegexCommentUpdate, CommentUpdateForm)
	ownerForms.POST(forumurl.RegexCommentUpdate, CommentUpdate)
	moderators.POST(forumurl.RegexCommentDelete, CommentDelete)
	moderators.POST(forumurl.RegexCommentMove, CommentMove)
	anyone.GET(forumurl.RegexCommentFind, CommentFind)
	userAjaxForms := users.WithMiddleware(ajaxOnly, csrfMiddleware)
	userAjaxForms.POST(forumurl.RegexCommentImageUpload, CommentImageUpload)

	staff := users.WithMiddleware(staffOnly)
	staff.GET(forumurl.RegexPerfmon, Perfmon)

	// Last of the topic routes, so nothing under /topic/ is mistaken for a slug.
	anyone.GET(forumurl.RegexTopic, TopicDetail)

	anyone.AnyMethod(forumurl.RegexCatchAll, FourOhFour)

	return router
}
