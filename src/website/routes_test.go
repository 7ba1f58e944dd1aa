package website

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"testing"

	"git.handmade.network/hmn/forum/src/forumurl"
	"git.handmade.network/hmn/forum/src/templates"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	templates.Init()
	os.Exit(m.Run())
}

func newTestContext(req *http.Request) *RequestContext {
	logger := zerolog.Nop()
	return &RequestContext{
		Logger: &logger,
		Req:    req,
		ctx:    context.Background(),
	}
}

func TestLogContextErrors(t *testing.T) {
	err1 := errors.New("test error 1")
	err2 := errors.New("test error 2")

	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())
	zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	logger.Print("sanity check")

	assert.Contains(t, buf.String(), "sanity check")

	router := &Router{}
	routes := RouteBuilder{
		Router: router,
		Middlewares: []Middleware{
			func(h Handler) Handler {
				return func(c *RequestContext) (res ResponseData) {
					c.Logger = &logger
					defer logContextErrorsMiddleware(h)
					return h(c)
				}
			},
		},
	}

	routes.GET(regexp.MustCompile("^/test$"), func(c *RequestContext) ResponseData {
		return c.ErrorResponse(http.StatusInternalServerError, err1, err2)
	})

	srv := httptest.NewServer(router)
	defer srv.Close()

	res, err := http.Get(srv.URL + "/test")
	if assert.Nil(t, err) {
		defer res.Body.Close()

		t.Logf("Log contents: %s", buf.String())

		assert.Equal(t, http.StatusInternalServerError, res.StatusCode)

		assert.Contains(t, buf.String(), err1.Error())
		assert.Contains(t, buf.String(), err2.Error())
	}
}

func TestRouter(t *testing.T) {
	router := &Router{}
	routes := RouteBuilder{Router: router}

	var gotParams map[string]string
	routes.GET(forumurl.RegexTopic, func(c *RequestContext) ResponseData {
		gotParams = c.PathParams
		var res ResponseData
		res.Write([]byte("topic"))
		return res
	})
	routes.POST(forumurl.RegexCommentMove, func(c *RequestContext) ResponseData {
		var res ResponseData
		res.Write([]byte("move"))
		return res
	})
	routes.AnyMethod(forumurl.RegexCatchAll, func(c *RequestContext) ResponseData {
		var res ResponseData
		res.StatusCode = http.StatusNotFound
		res.Write([]byte("nope"))
		return res
	})

	srv := httptest.NewServer(router)
	defer srv.Close()

	do := func(method, path string) (int, string) {
		req, err := http.NewRequest(method, srv.URL+path, nil)
		require.Nil(t, err)
		res, err := http.DefaultClient.Do(req)
		require.Nil(t, err)
		defer res.Body.Close()
		body, err := io.ReadAll(res.Body)
		require.Nil(t, err)
		return res.StatusCode, string(body)
	}

	t.Run("params", func(t *testing.T) {
		status, body := do(http.MethodGet, "/topic/12/a-slug")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "topic", body)
		assert.Equal(t, "12", gotParams["topicid"])
		assert.Equal(t, "a-slug", gotParams["slug"])
	})
	t.Run("trailing slash", func(t *testing.T) {
		status, _ := do(http.MethodGet, "/topic/12/")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "12", gotParams["topicid"])
	})
	t.Run("head is routed like get", func(t *testing.T) {
		status, body := do(http.MethodHead, "/topic/12")
		assert.Equal(t, http.StatusOK, status)
		assert.Empty(t, body)
	})
	t.Run("wrong method falls through", func(t *testing.T) {
		status, body := do(http.MethodGet, "/comment/move")
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "nope", body)
	})
	t.Run("method match", func(t *testing.T) {
		status, body := do(http.MethodPost, "/comment/move")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "move", body)
	})
	t.Run("catch all", func(t *testing.T) {
		status, _ := do(http.MethodGet, "/no/such/page")
		assert.Equal(t, http.StatusNotFound, status)
	})
}

func TestPanicCatcher(t *testing.T) {
	router := &Router{}
	routes := RouteBuilder{
		Router:      router,
		Middlewares: []Middleware{panicCatcherMiddleware},
	}
	routes.GET(regexp.MustCompile("^/boom$"), func(c *RequestContext) ResponseData {
		panic("boom")
	})

	srv := httptest.NewServer(router)
	defer srv.Close()

	res, err := http.Get(srv.URL + "/boom")
	if assert.Nil(t, err) {
		defer res.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	}
}

func TestRedirect(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		dest     string
		expected string
	}{
		{"absolute path", "/topic/5/slug", "/category/2", "/category/2"},
		{"relative to current path", "/topic/5/slug", "edit", "/topic/5/edit"},
		{"dot segments", "/a/b/c", "../x?y=1", "/a/x?y=1"},
		{"trailing slash kept", "/a/b", "/foo/", "/foo/"},
		{"full url", "/a", "http://localhost:9001/topic/1", "http://localhost:9001/topic/1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestContext(httptest.NewRequest(http.MethodPost, tt.current, nil))
			res := c.Redirect(tt.dest, http.StatusSeeOther)
			assert.Equal(t, http.StatusSeeOther, res.StatusCode)
			assert.Equal(t, tt.expected, res.Header().Get("Location"))
			assert.Nil(t, res.Body, "POST redirects have no body")
		})
	}

	t.Run("get redirects link to the destination", func(t *testing.T) {
		c := newTestContext(httptest.NewRequest(http.MethodGet, "/", nil))
		res := c.Redirect("/a?b=1&c=2", http.StatusFound)
		require.NotNil(t, res.Body)
		assert.Contains(t, res.Body.String(), `href="/a?b=1&amp;c=2"`)
		assert.Equal(t, "text/html; charset=utf-8", res.Header().Get("Content-Type"))
	})
}

func TestIPString(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expected   string
	}{
		{"remote addr", nil, "192.0.2.1:1234", "192.0.2.1"},
		{"remote ipv6", nil, "[::1]:1234", "::1"},
		{"cloudflare first", map[string]string{"CF-Connecting-IP": "1.2.3.4", "X-Forwarded-For": "5.6.7.8"}, "192.0.2.1:1234", "1.2.3.4"},
		{"first forwarded hop", map[string]string{"X-Forwarded-For": "5.6.7.8, 10.0.0.1"}, "192.0.2.1:1234", "5.6.7.8"},
		{"bad header falls back", map[string]string{"X-Forwarded-For": "unknown"}, "192.0.2.1:1234", "192.0.2.1"},
		{"nothing usable", nil, "pipe", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, newTestContext(req).IPString())
		})
	}
}
