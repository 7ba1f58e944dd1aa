package website

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"html/template"
	"net/http"
	"net/netip"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"git.handmade.network/hmn/forum/src/db"
	"git.handmade.network/hmn/forum/src/forumdata"
	"git.handmade.network/hmn/forum/src/forumurl"
	"git.handmade.network/hmn/forum/src/logging"
	"git.handmade.network/hmn/forum/src/models"
	"git.handmade.network/hmn/forum/src/perf"
	"git.handmade.network/hmn/forum/src/templates"
	"git.handmade.network/hmn/forum/src/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Router struct {
	Routes []Route
}

type Route struct {
	Method  string // empty for any method
	Regex   *regexp.Regexp
	Handler Handler
}

func (r *Route) String() string {
	return strings.TrimSpace(r.Method + " " + r.Regex.String())
}

// match reports whether the route serves method and path, along with the
// named groups of its regex.
func (r *Route) match(method, path string) (map[string]string, bool) {
	if r.Method != "" && r.Method != method {
		return nil, false
	}
	groups := r.Regex.FindStringSubmatch(path)
	if groups == nil {
		return nil, false
	}

	params := map[string]string{}
	for i, name := range r.Regex.SubexpNames() {
		if name != "" {
			params[name] = groups[i]
		}
	}
	return params, true
}

type Handler func(c *RequestContext) ResponseData
type Middleware func(h Handler) Handler

// RouteBuilder registers routes on a Router, wrapping each handler in the
// builder's middlewares. The first middleware runs outermost.
type RouteBuilder struct {
	Router      *Router
	Middlewares []Middleware
}

func (rb *RouteBuilder) Handle(methods []string, regex *regexp.Regexp, h Handler) {
	if !strings.HasPrefix(regex.String(), "^") {
		panic(fmt.Sprintf("route regex %q must begin with '^'", regex))
	}

	for i := len(rb.Middlewares) - 1; i >= 0; i-- {
		h = rb.Middlewares[i](h)
	}
	for _, method := range methods {
		rb.Router.Routes = append(rb.Router.Routes, Route{Method: method, Regex: regex, Handler: h})
	}
}

func (rb *RouteBuilder) AnyMethod(regex *regexp.Regexp, h Handler) {
	rb.Handle([]string{""}, regex, h)
}

func (rb *RouteBuilder) GET(regex *regexp.Regexp, h Handler) {
	rb.Handle([]string{http.MethodGet}, regex, h)
}

func (rb *RouteBuilder) POST(regex *regexp.Regexp, h Handler) {
	rb.Handle([]string{http.MethodPost}, regex, h)
}

// WithMiddleware returns a builder that adds ms after the current middlewares.
// The receiver is left untouched.
func (rb *RouteBuilder) WithMiddleware(ms ...Middleware) RouteBuilder {
	return RouteBuilder{
		Router:      rb.Router,
		Middlewares: append(slices.Clip(rb.Middlewares), ms...),
	}
}

// ServeHTTP runs the first registered route that matches. HEAD is routed as
// GET and trailing slashes are ignored.
func (r *Router) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	method := req.Method
	if method == http.MethodHead {
		method = http.MethodGet
	}
	path := strings.TrimSuffix(req.URL.Path, "/")
	if path == "" {
		path = "/"
	}

	for i := range r.Routes {
		route := &r.Routes[i]
		params, ok := route.match(method, path)
		if !ok {
			continue
		}

		logger := logging.GlobalLogger().With().
			Str("route", route.String()).
			Str("requestId", uuid.New().String()).
			Logger()
		c := &RequestContext{
			Route:      route.String(),
			Logger:     &logger,
			Req:        req,
			Res:        rw,
			PathParams: params,

			ctx: logging.AttachLoggerToContext(&logger, req.Context()),
		}
		serve(rw, c, route.Handler)
		return
	}

	panic(fmt.Sprintf("no route matched %s %s; register a catch-all route for 404s", req.Method, req.URL))
}

// What a handler answers when the viewer lacks permission for something.
type DenyPolicy int

const (
	// Answer 404, as if the thing did not exist. The default, since most
	// forum content is hidden rather than forbidden.
	HideExistence DenyPolicy = iota
	// Answer 403. For things the viewer already knows exist, like a comment
	// they can see but not edit.
	ShowForbidden
)

type RequestContext struct {
	Route      string
	Logger     *zerolog.Logger
	Req        *http.Request
	PathParams map[string]string

	// NOTE(asaf): This is the http package's internal response object. Not just a ResponseWriter.
	//             We sometimes need the original response object so that some functions of the http package can set connection-management flags on it.
	Res http.ResponseWriter

	Conn           db.ConnOrTx
	Services       *Services
	CurrentUser    *models.User
	CurrentSession *models.Session
	Access         *forumdata.Access
	DenyPolicy     DenyPolicy

	Perf          *perf.RequestPerf
	PerfCollector *perf.PerfCollector

	ctx context.Context
}

// Our RequestContext is a context.Context

var _ context.Context = &RequestContext{}

func (c *RequestContext) Deadline() (time.Time, bool) {
	return c.ctx.Deadline()
}

func (c *RequestContext) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *RequestContext) Err() error {
	return c.ctx.Err()
}

func (c *RequestContext) Value(key any) any {
	switch key {
	case perf.PerfContextKey{}:
		return c.Perf
	default:
		return c.ctx.Value(key)
	}
}

// Plus it does many other things specific to us

func (c *RequestContext) FullUrl() string {
	scheme := "http"
	if proto := c.Req.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if c.Req.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Req.Host + c.Req.URL.String()
}

// Set by the proxies in front of us, checked in order.
var clientIPHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For"}

// The address stored with new comments. Empty when we can't tell.
func (c *RequestContext) IPString() string {
	for _, header := range clientIPHeaders {
		first, _, _ := strings.Cut(c.Req.Header.Get(header), ",")
		if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return addr.String()
		}
	}
	if addrPort, err := netip.ParseAddrPort(c.Req.RemoteAddr); err == nil {
		return addrPort.Addr().String()
	}
	return ""
}

func (c *RequestContext) GetFormValues() (url.Values, error) {
	err := c.Req.ParseForm()
	if err != nil {
		return nil, err
	}

	return c.Req.PostForm, nil
}

// Redirect answers with a Location header. Relative destinations resolve
// against the current path the way a browser would resolve them.
func (c *RequestContext) Redirect(dest string, code int) ResponseData {
	current := &url.URL{Path: utils.OrDefault(c.Req.URL.Path, "/")}
	target, err := current.Parse(dest)
	if err != nil {
		c.Logger.Warn().Err(err).Str("dest", dest).Msg("Failed to parse redirect URI")
		return c.Redirect(forumurl.BuildHomepage(), http.StatusSeeOther)
	}
	location := target.String()

	var res ResponseData
	res.StatusCode = code
	res.Header().Set("Location", location)
	switch c.Req.Method {
	case http.MethodGet:
		res.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(&res, "<a href=\"%s\">%s</a>.\n", html.EscapeString(location), http.StatusText(code))
	case http.MethodHead:
		res.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	return res
}

func (c *RequestContext) ErrorResponse(status int, errs ...error) ResponseData {
	defer func() {
		if r := recover(); r != nil {
			logContextErrors(c, errs...)
			panic(r)
		}
	}()

	res := ResponseData{
		StatusCode: status,
		Errors:     errs,
	}
	res.MustWriteTemplate("error.html", getBaseData(c, "Error", nil), c.Perf)
	return res
}

type ResponseData struct {
	StatusCode    int
	Body          *bytes.Buffer
	Errors        []error
	FutureNotices []templates.Notice

	header http.Header
}

var _ http.ResponseWriter = &ResponseData{}

func (rd *ResponseData) Header() http.Header {
	if rd.header == nil {
		rd.header = make(http.Header)
	}

	return rd.header
}

func (rd *ResponseData) Write(p []byte) (n int, err error) {
	if rd.Body == nil {
		rd.Body = new(bytes.Buffer)
	}

	return rd.Body.Write(p)
}

func (rd *ResponseData) WriteHeader(status int) {
	rd.StatusCode = status
}

func (rd *ResponseData) SetCookie(cookie *http.Cookie) {
	rd.Header().Add("Set-Cookie", cookie.String())
}

func (rd *ResponseData) AddFutureNotice(class string, content string) {
	rd.FutureNotices = append(rd.FutureNotices, templates.Notice{Class: class, Content: template.HTML(content)})
}

func (rd *ResponseData) WriteTemplate(name string, data interface{}, rp *perf.RequestPerf) error {
	if rp != nil {
		b := rp.StartBlock("TEMPLATE", name)
		defer b.End()
	}
	return templates.GetTemplate(name).Execute(rd, data)
}

func (rd *ResponseData) MustWriteTemplate(name string, data interface{}, rp *perf.RequestPerf) {
	err := rd.WriteTemplate(name, data, rp)
	if err != nil {
		panic(err)
	}
}

func (rd *ResponseData) WriteJson(data any, rp *perf.RequestPerf) {
	if rp != nil {
		b := rp.StartBlock("JSON", "Encode response")
		defer b.End()
	}
	dataJson, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	rd.Header().Set("Content-Type", "application/json")
	rd.Write(dataJson)
}

func serve(rw http.ResponseWriter, c *RequestContext, h Handler) {
	defer func() {
		/*
			This panic recovery is the last resort. If you want to render
			an error page or something, make it a request wrapper.
		*/
		if recovered := recover(); recovered != nil {
			rw.WriteHeader(http.StatusInternalServerError)
			logging.LogPanicValue(c.Logger, recovered, "request panicked and was not handled")
			rw.Write([]byte("There was a problem handling your request.\nPlease notify an admin."))
		}
	}()

	writeResponse(rw, c.Req, h(c))
}

// writeResponse sends res. HEAD requests get the same Content-Type and
// Content-Length headers a GET would, with no body.
func writeResponse(rw http.ResponseWriter, req *http.Request, res ResponseData) {
	for name, vals := range res.Header() {
		for _, val := range vals {
			rw.Header().Add(name, val)
		}
	}

	var body []byte
	if res.Body != nil {
		body = res.Body.Bytes()
		if rw.Header().Get("Content-Type") == "" {
			rw.Header().Set("Content-Type", http.DetectContentType(body))
		}
		if rw.Header().Get("Content-Length") == "" {
			rw.Header().Set("Content-Length", strconv.Itoa(len(body)))
		}
	}

	rw.WriteHeader(utils.OrDefault(res.StatusCode, http.StatusOK))
	if req.Method == http.MethodHead || body == nil {
		return
	}

	if _, err := rw.Write(body); err != nil {
		if errors.Is(err, syscall.EPIPE) {
			// NOTE(asaf): Can be triggered when other side hangs up
			logging.Debug().Msg("Broken pipe")
		} else {
			logging.Error().Err(err).Msg("Failed to write response body")
		}
	}
}
