package website

import (
	"errors"
	"net/http"
	"strconv"

	"git.handmade.network/hmn/forum/src/pagination"
	"git.handmade.network/hmn/forum/src/templates"
)

// Reads ?page=. A missing page means the first one; garbage is reported as
// page 0 so the policy decides what to do with it.
func pageParam(c *RequestContext) int {
	raw := c.Req.URL.Query().Get("page")
	if raw == "" {
		return 1
	}
	page, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return page
}

type pageResult struct {
	Info pagination.Info

	// Set when the request must end here, with a redirect to the clamped page
	// or a 404.
	Response *ResponseData
}

/*
Works out the page for a listing of totalItems. When the requested page is out
of range, the Clamp policy redirects to the nearest real page, since serving it
under the wrong number would make links lie. The NotFound policy 404s.
*/
func resolvePage(c *RequestContext, totalItems, pageSize int, policy pagination.Policy, buildUrl func(page int) string) pageResult {
	info, err := pagination.Compute(totalItems, pageSize, pageParam(c), policy)
	if err != nil {
		var res ResponseData
		if errors.Is(err, pagination.ErrPageOutOfRange) {
			res = FourOhFour(c)
		} else {
			res = c.ErrorResponse(http.StatusInternalServerError, err)
		}
		return pageResult{Response: &res}
	}
	if info.Clamped {
		res := c.Redirect(buildUrl(info.Page), http.StatusSeeOther)
		return pageResult{Info: info, Response: &res}
	}
	return pageResult{Info: info}
}

func makePagination(info pagination.Info, buildUrl func(page int) string) templates.Pagination {
	result := templates.Pagination{
		Current:  info.Page,
		Total:    info.TotalPages,
		FirstUrl: buildUrl(1),
		LastUrl:  buildUrl(info.TotalPages),
	}
	if info.HasPrevious() {
		result.PreviousUrl = buildUrl(info.Page - 1)
	}
	if info.HasNext() {
		result.NextUrl = buildUrl(info.Page + 1)
	}
	return result
}
