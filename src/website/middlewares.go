package website

import (
	"fmt"
	"net/http"
	"time"

	"git.handmade.network/hmn/forum/src/auth"
	"git.handmade.network/hmn/forum/src/db"
	"git.handmade.network/hmn/forum/src/forumurl"
	"git.handmade.network/hmn/forum/src/oops"
	"git.handmade.network/hmn/forum/src/perf"
)

// Large enough for an image upload plus the form around it.
const maxFormMemory = 32 * 1024 * 1024

func panicCatcherMiddleware(h Handler) Handler {
	return func(c *RequestContext) (res ResponseData) {
		defer func() {
			if recovered := recover(); recovered != nil {
				maybeError, ok := recovered.(*error)
				var err error
				if ok {
					err = *maybeError
				} else if asErr, isErr := recovered.(error); isErr {
					err = oops.New(asErr, "recovered from panic")
				} else {
					err = oops.New(nil, fmt.Sprintf("Recovered from panic with value: %v", recovered))
				}
				res = c.ErrorResponse(http.StatusInternalServerError, err)
			}
		}()

		return h(c)
	}
}

func trackRequestPerf(perfCollector *perf.PerfCollector) func(Handler) Handler {
	return func(h Handler) Handler {
		return func(c *RequestContext) ResponseData {
			c.Perf = perf.MakeNewRequestPerf(c.Route, c.Req.Method, c.Req.URL.Path)
			c.PerfCollector = perfCollector
			defer func() {
				c.Perf.EndRequest()
				log := c.Logger.Info()
				blockStack := make([]time.Time, 0)
				for i, block := range c.Perf.Blocks {
					for len(blockStack) > 0 && block.End.After(blockStack[len(blockStack)-1]) {
						blockStack = blockStack[:len(blockStack)-1]
					}
					log.Str(fmt.Sprintf("[%4.d] At %9.2fms", i, c.Perf.MsFromStart(&block)), fmt.Sprintf("%*.s[%s] %s (%.4fms)", len(blockStack)*2, "", block.Category, block.Description, block.DurationMs()))
					blockStack = append(blockStack, block.End)
				}
				log.Msg(fmt.Sprintf("Served [%s] %s in %.4fms", c.Perf.Method, c.Perf.Path, float64(c.Perf.End.Sub(c.Perf.Start).Nanoseconds())/1000/1000))
				if perfCollector != nil {
					perfCollector.SubmitRun(c.Perf)
				}
			}()

			return h(c)
		}
	}
}

func needsAuth(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		if c.CurrentUser == nil {
			return c.Redirect(forumurl.BuildLoginPage(c.FullUrl()), http.StatusSeeOther)
		}

		return h(c)
	}
}

// Fails the request according to the route's DenyPolicy.
func moderatorsOnly(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		if !c.CurrentUser.CanModerate() {
			return PermissionDenied(c)
		}

		return h(c)
	}
}

func denyWith(policy DenyPolicy) Middleware {
	return func(h Handler) Handler {
		return func(c *RequestContext) ResponseData {
			c.DenyPolicy = policy
			return h(c)
		}
	}
}

// Marks endpoints that only our own scripts call. Browsers never add this
// header to a plain form post.
func ajaxOnly(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		if c.Req.Header.Get("X-Requested-With") != "XMLHttpRequest" {
			return FourOhFour(c)
		}

		return h(c)
	}
}

func csrfMiddleware(h Handler) Handler {
	// CSRF mitigation actions per the OWASP cheat sheet:
	// https://cheatsheetseries.owasp.org/cheatsheets/Cross-Site_Request_Forgery_Prevention_Cheat_Sheet.html
	return func(c *RequestContext) ResponseData {
		c.Req.ParseMultipartForm(maxFormMemory)
		csrfToken := c.Req.Form.Get(auth.CSRFFieldName)
		if !auth.ValidateCSRFToken(c.CurrentSession, csrfToken) {
			username := ""
			if c.CurrentUser != nil {
				username = c.CurrentUser.Username
			}
			c.Logger.Warn().Str("username", username).Msg("user failed CSRF validation - potential attack?")

			res := c.Redirect(forumurl.BuildHomepage(), http.StatusSeeOther)
			logoutUser(c, &res)

			return res
		}

		return h(c)
	}
}

// Puts the pool and the shared services on every request.
func withServices(conn db.ConnOrTx, services *Services) Middleware {
	return func(h Handler) Handler {
		return func(c *RequestContext) ResponseData {
			c.Conn = conn
			c.Services = services
			return h(c)
		}
	}
}

func logContextErrors(c *RequestContext, errs ...error) {
	for _, err := range errs {
		c.Logger.Error().Timestamp().Stack().Str("Requested", c.FullUrl()).Err(err).Msg("error occurred during request")
	}
}

func logContextErrorsMiddleware(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		res := h(c)
		logContextErrors(c, res.Errors...)
		return res
	}
}

func staffOnly(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		if c.CurrentUser == nil || !c.CurrentUser.IsStaff {
			return FourOhFour(c)
		}

		return h(c)
	}
}
