package website

import (
	"errors"
	"html"
	"html/template"
	"net/http"
	"strings"
	"time"

	"git.handmade.network/hmn/forum/src/config"
	"git.handmade.network/hmn/forum/src/templates"
)

// Notices survive a redirect in a cookie holding class|content pairs
// separated by tabs.
const (
	NoticesCookieName = "forum_notices"

	noticesMaxBytes = 1024
	noticesLifetime = 5 * time.Minute
)

func noticesCookie(value string, maxAge time.Duration) *http.Cookie {
	cookie := &http.Cookie{
		Name:     NoticesCookieName,
		Value:    value,
		Path:     "/",
		Domain:   config.Config.Auth.CookieDomain,
		Secure:   config.Config.Auth.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	}
	if maxAge <= 0 {
		cookie.MaxAge = -1
	}
	return cookie
}

func getNoticesFromCookie(c *RequestContext) []templates.Notice {
	cookie, err := c.Req.Cookie(NoticesCookieName)
	if errors.Is(err, http.ErrNoCookie) {
		return nil
	} else if err != nil {
		c.Logger.Warn().Err(err).Msg("failed to get notices cookie")
		return nil
	}
	return deserializeNoticesFromCookie(cookie.Value)
}

// storeNoticesInCookie saves the response's notices for the next page. A
// response with nothing to say clears old notices, unless it is a redirect
// and the notices have not been shown yet.
func storeNoticesInCookie(c *RequestContext, res *ResponseData) {
	isRedirect := res.StatusCode >= 300 && res.StatusCode < 400
	if serialized := serializeNoticesForCookie(c, res.FutureNotices); serialized != "" {
		res.SetCookie(noticesCookie(serialized, noticesLifetime))
	} else if !isRedirect {
		res.SetCookie(noticesCookie("", 0))
	}
}

func serializeNoticesForCookie(c *RequestContext, notices []templates.Notice) string {
	var entries []string
	size := 0
	for _, notice := range notices {
		entry := notice.Class + "|" + string(notice.Content)
		grown := size + len(entry)
		if len(entries) > 0 {
			grown++ // tab
		}
		if grown > noticesMaxBytes {
			c.Logger.Warn().Interface("Notices", notices).Msg("Notices too big for cookie")
			break
		}
		entries = append(entries, entry)
		size = grown
	}
	return strings.Join(entries, "\t")
}

// Cookie contents come back from the browser, so they are only ever shown as text.
func deserializeNoticesFromCookie(cookieVal string) []templates.Notice {
	var result []templates.Notice
	for _, entry := range strings.Split(cookieVal, "\t") {
		class, content, ok := strings.Cut(entry, "|")
		if !ok {
			continue
		}
		result = append(result, templates.Notice{
			Class:   class,
			Content: template.HTML(html.EscapeString(content)),
		})
	}
	return result
}

func storeNoticesInCookieMiddleware(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		res := h(c)
		storeNoticesInCookie(c, &res)
		return res
	}
}
