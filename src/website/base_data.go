package website

import (
	"git.handmade.network/hmn/forum/src/forumdata"
	"git.handmade.network/hmn/forum/src/forumurl"
	"git.handmade.network/hmn/forum/src/templates"
)

const siteName = "Forum"

// NOTE(asaf): If you set breadcrumbs, the breadcrumb for the forum index will automatically be prepended when necessary.
//
//	If you pass nil, no breadcrumbs will be created.
func getBaseData(c *RequestContext, title string, breadcrumbs []templates.Breadcrumb) templates.BaseData {
	if len(breadcrumbs) > 0 {
		rootUrl := forumurl.BuildHomepage()
		if breadcrumbs[0].Url != rootUrl {
			rootBreadcrumb := templates.Breadcrumb{
				Name: siteName,
				Url:  rootUrl,
			}
			breadcrumbs = append([]templates.Breadcrumb{rootBreadcrumb}, breadcrumbs...)
		}
	}

	if title == "" {
		title = siteName
	}

	baseData := templates.BaseData{
		Title:       title,
		Breadcrumbs: breadcrumbs,
		Notices:     getNoticesFromCookie(c),

		CurrentUrl:   c.FullUrl(),
		LoginPageUrl: forumurl.BuildLoginPage(c.FullUrl()),

		User:    templates.UserToTemplate(c.CurrentUser),
		Session: templates.SessionToTemplate(c.CurrentSession),

		Header: templates.Header{
			HomepageUrl:      forumurl.BuildHomepage(),
			ActiveTopicsUrl:  forumurl.BuildActiveTopics(1),
			SearchUrl:        forumurl.BuildSearch("", 1),
			NotificationsUrl: forumurl.BuildNotifications(),
			LoginUrl:         forumurl.BuildLoginPage(c.FullUrl()),
			LogoutUrl:        forumurl.BuildLogout(),
		},
	}

	if c.CurrentUser != nil && c.Access != nil && c.Conn != nil {
		unread, err := forumdata.CountUnreadNotifications(c, c.Conn, c.Access)
		if err != nil {
			c.Logger.Warn().Err(err).Msg("failed to count unread notifications")
		}
		baseData.Header.UnreadNotifications = unread
	}

	return baseData
}

func categoryBreadcrumbs(c *RequestContext, categoryID int) []templates.Breadcrumb {
	var result []templates.Breadcrumb
	cats, err := forumdata.FetchCategories(c, c.Conn, c.Access)
	if err != nil {
		c.Logger.Warn().Err(err).Msg("failed to fetch categories for breadcrumbs")
		return nil
	}
	for _, cat := range cats {
		if cat.ID != categoryID {
			continue
		}
		for cur := cat; cur != nil; cur = cur.Parent {
			result = append([]templates.Breadcrumb{{
				Name: cur.Title,
				Url:  forumurl.BuildCategory(cur.ID, cur.Slug, 1),
			}}, result...)
		}
		break
	}
	return result
}
