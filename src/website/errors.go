package website

import (
	"errors"
	"net/http"
	"strings"

	"git.handmade.network/hmn/forum/src/forumdata"
	"git.handmade.network/hmn/forum/src/oops"
	"git.handmade.network/hmn/forum/src/templates"
)

func FourOhFour(c *RequestContext) ResponseData {
	var res ResponseData
	res.StatusCode = http.StatusNotFound

	if wantsHTML(c) {
		templateData := struct {
			templates.BaseData
			Wanted string
		}{
			BaseData: getBaseData(c, "Page not found", nil),
			Wanted:   c.FullUrl(),
		}
		res.MustWriteTemplate("404.html", templateData, c.Perf)
	} else {
		res.Write([]byte("Not Found"))
	}
	return res
}

func Forbidden(c *RequestContext) ResponseData {
	var res ResponseData
	res.StatusCode = http.StatusForbidden

	if wantsHTML(c) {
		res.MustWriteTemplate("403.html", getBaseData(c, "Forbidden", nil), c.Perf)
	} else {
		res.Write([]byte("Forbidden"))
	}
	return res
}

// PermissionDenied answers with a 404 or a 403 depending on the route.
func PermissionDenied(c *RequestContext) ResponseData {
	if c.DenyPolicy == ShowForbidden {
		return Forbidden(c)
	}
	return FourOhFour(c)
}

/*
Turns an error from forumdata into a response. Handlers deal with validation
errors and rate limits themselves, since those re-render a form; everything
left over ends up here.
*/
func forumErrorResponse(c *RequestContext, err error, msg string) ResponseData {
	switch {
	case errors.Is(err, forumdata.ErrNotFound):
		return FourOhFour(c)
	case errors.Is(err, forumdata.ErrPermissionDenied):
		return PermissionDenied(c)
	default:
		return c.ErrorResponse(http.StatusInternalServerError, oops.New(err, msg))
	}
}

func wantsHTML(c *RequestContext) bool {
	accept := c.Req.Header.Get("Accept")
	return accept == "" || strings.Contains(accept, "text/html") || strings.Contains(accept, "*/*")
}
