package website

import (
	"errors"
	"net/http"

	"git.handmade.network/hmn/forum/src/auth"
	"git.handmade.network/hmn/forum/src/db"
	"git.handmade.network/hmn/forum/src/forumdata"
	"git.handmade.network/hmn/forum/src/models"
	"git.handmade.network/hmn/forum/src/oops"
)

func loadCommonData(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		c.Perf.StartBlock("MIDDLEWARE", "Load common website data")
		{
			// get user
			{
				sessionCookie, err := c.Req.Cookie(auth.SessionCookieName)
				if err == nil {
					user, session, err := getCurrentUserAndSession(c, sessionCookie.Value)
					if err != nil {
						c.Perf.EndBlock()
						return c.ErrorResponse(http.StatusInternalServerError, oops.New(err, "failed to get current user"))
					}

					c.CurrentUser = user
					c.CurrentSession = session
				}
				// http.ErrNoCookie is the only error Cookie ever returns, so no further handling to do here.
			}

			// get the user's view of the forum
			{
				access, err := forumdata.LoadAccess(c, c.Conn, c.CurrentUser)
				if err != nil {
					c.Perf.EndBlock()
					return c.ErrorResponse(http.StatusInternalServerError, oops.New(err, "failed to load category access"))
				}
				c.Access = access
			}

			if c.CurrentUser != nil {
				err := forumdata.TouchLastSeen(c, c.Conn, c.CurrentUser.ID)
				if err != nil {
					c.Logger.Warn().Err(err).Msg("failed to update last seen")
				}
			}
		}
		c.Perf.EndBlock()

		return h(c)
	}
}

// Given a session id, fetches user data from the database. Will return nil if
// the user cannot be found, and will only return an error if it's serious.
func getCurrentUserAndSession(c *RequestContext, sessionId string) (*models.User, *models.Session, error) {
	session, err := auth.GetSession(c, c.Conn, sessionId)
	if err != nil {
		if errors.Is(err, auth.ErrNoSession) {
			return nil, nil, nil
		} else {
			return nil, nil, oops.New(err, "failed to get current session")
		}
	}

	user, err := forumdata.FetchUser(c, c.Conn, session.UserID)
	if err != nil {
		if errors.Is(err, db.NotFound) {
			c.Logger.Debug().Int("userID", session.UserID).Msg("returning no current user for this request because the user for the session couldn't be found")
			return nil, nil, nil // user was deactivated or something
		} else {
			return nil, nil, oops.New(err, "failed to get user for session")
		}
	}

	return user, session, nil
}
