package website

import (
	"html/template"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"git.handmade.network/hmn/forum/src/templates"
	"github.com/stretchr/testify/assert"
)

func TestNoticesCookie(t *testing.T) {
	c := newTestContext(httptest.NewRequest(http.MethodGet, "/", nil))

	notices := []templates.Notice{
		{Class: "success", Content: "Comment updated."},
		{Class: "warn", Content: "You already posted that. Here it is."},
	}
	serialized := serializeNoticesForCookie(c, notices)
	assert.Equal(t, notices, deserializeNoticesFromCookie(serialized))
}

func TestNoticesCookieEscapesContent(t *testing.T) {
	result := deserializeNoticesFromCookie("failure|<script>alert(1)</script>")
	if assert.Len(t, result, 1) {
		assert.Equal(t, "failure", result[0].Class)
		assert.Equal(t, template.HTML("&lt;script&gt;alert(1)&lt;/script&gt;"), result[0].Content)
	}
}

func TestNoticesCookieGarbage(t *testing.T) {
	assert.Empty(t, deserializeNoticesFromCookie(""))
	assert.Empty(t, deserializeNoticesFromCookie("no separator here"))
}

func TestNoticesCookieSizeLimit(t *testing.T) {
	c := newTestContext(httptest.NewRequest(http.MethodGet, "/", nil))

	big := template.HTML(strings.Repeat("a", 600))
	serialized := serializeNoticesForCookie(c, []templates.Notice{
		{Class: "info", Content: big},
		{Class: "info", Content: big},
	})
	assert.Len(t, deserializeNoticesFromCookie(serialized), 1)
}

func TestStoreNoticesKeepsCookieOnRedirect(t *testing.T) {
	c := newTestContext(httptest.NewRequest(http.MethodGet, "/", nil))

	res := c.Redirect("/", http.StatusSeeOther)
	storeNoticesInCookie(c, &res)
	assert.Empty(t, res.Header().Values("Set-Cookie"))

	var page ResponseData
	storeNoticesInCookie(c, &page)
	if assert.Len(t, page.Header().Values("Set-Cookie"), 1) {
		assert.Contains(t, page.Header().Get("Set-Cookie"), NoticesCookieName+"=;")
	}
}
