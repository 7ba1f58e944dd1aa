package website

import (
	"errors"
	"net/http"
	"strings"

	"git.handmade.network/hmn/forum/src/auth"
	"git.handmade.network/hmn/forum/src/db"
	"git.handmade.network/hmn/forum/src/forumdata"
	"git.handmade.network/hmn/forum/src/forumurl"
	"git.handmade.network/hmn/forum/src/models"
	"git.handmade.network/hmn/forum/src/oops"
	"git.handmade.network/hmn/forum/src/templates"
)

type LoginPageData struct {
	templates.BaseData
	LoginUrl     string
	RedirectUrl  string
	ErrorMessage string
	Username     string
}

func LoginPage(c *RequestContext) ResponseData {
	redirect := safeRedirect(c.Req.URL.Query().Get("redirect"))
	if c.CurrentUser != nil {
		return c.Redirect(redirect, http.StatusSeeOther)
	}

	var res ResponseData
	res.MustWriteTemplate("login.html", LoginPageData{
		BaseData:    getBaseData(c, "Log in", nil),
		LoginUrl:    forumurl.BuildLogin(),
		RedirectUrl: redirect,
	}, c.Perf)
	return res
}

func Login(c *RequestContext) ResponseData {
	form, err := c.GetFormValues()
	if err != nil {
		return c.ErrorResponse(http.StatusBadRequest, oops.New(err, "request must contain form data"))
	}

	redirect := safeRedirect(form.Get("redirect"))
	if c.CurrentUser != nil {
		return c.Redirect(redirect, http.StatusSeeOther)
	}

	username := strings.TrimSpace(form.Get("username"))
	password := form.Get("password")

	showLoginWithFailure := func(msg string) ResponseData {
		var res ResponseData
		res.StatusCode = http.StatusUnauthorized
		res.MustWriteTemplate("login.html", LoginPageData{
			BaseData:     getBaseData(c, "Log in", nil),
			LoginUrl:     forumurl.BuildLogin(),
			RedirectUrl:  redirect,
			ErrorMessage: msg,
			Username:     username,
		}, c.Perf)
		return res
	}

	if username == "" || password == "" {
		return showLoginWithFailure("You must provide both a username and password")
	}

	user, err := forumdata.FetchUserByUsername(c, c.Conn, username, forumdata.UsersQuery{})
	if err != nil {
		if errors.Is(err, db.NotFound) {
			return showLoginWithFailure("Incorrect username or password")
		}
		return c.ErrorResponse(http.StatusInternalServerError, oops.New(err, "failed to look up user by username"))
	}

	success, err := tryLogin(c, user, password)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, err)
	}
	if !success {
		return showLoginWithFailure("Incorrect username or password")
	}

	res := c.Redirect(redirect, http.StatusSeeOther)
	err = loginUser(c, user, &res)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, err)
	}
	return res
}

func Logout(c *RequestContext) ResponseData {
	res := c.Redirect(forumurl.BuildHomepage(), http.StatusSeeOther)
	logoutUser(c, &res)
	return res
}

func tryLogin(c *RequestContext, user *models.User, password string) (bool, error) {
	c.Perf.StartBlock("AUTH", "Checking password")
	defer c.Perf.EndBlock()
	hashed, err := auth.ParsePasswordString(user.Password)
	if err != nil {
		return false, oops.New(err, "failed to parse password string")
	}

	passwordsMatch, err := auth.CheckPassword(password, hashed)
	if err != nil {
		return false, oops.New(err, "failed to check password against hash")
	}

	if !passwordsMatch {
		return false, nil
	}

	// re-hash and save the user's password if necessary
	if hashed.IsOutdated() {
		newHashed := auth.HashPassword(password)
		err := auth.UpdatePassword(c, c.Conn, user.Username, newHashed)
		if err != nil {
			c.Logger.Error().Err(err).Msg("failed to update user's password")
		}
		// If errors happen here, we can still continue with logging them in
	}

	return true, nil
}

func loginUser(c *RequestContext, user *models.User, responseData *ResponseData) error {
	c.Perf.StartBlock("SQL", "Creating session")
	defer c.Perf.EndBlock()

	session, err := auth.CreateSession(c, c.Conn, user.ID)
	if err != nil {
		return oops.New(err, "failed to create session")
	}
	responseData.SetCookie(auth.NewSessionCookie(session))
	return nil
}

func logoutUser(c *RequestContext, res *ResponseData) {
	if c.CurrentSession != nil {
		err := auth.DeleteSession(c, c.Conn, c.CurrentSession.ID)
		if err != nil {
			c.Logger.Error().Err(err).Msg("failed to delete session on logout")
		}
	}
	res.SetCookie(auth.DeleteSessionCookie())
}

// Only redirect within the site after logging in.
func safeRedirect(dest string) string {
	if dest == "" || !forumurl.IsLocal(dest) {
		return forumurl.BuildHomepage()
	}
	return dest
}
