package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"time"

	"git.handmade.network/hmn/forum/src/config"
	"git.handmade.network/hmn/forum/src/db"
	"git.handmade.network/hmn/forum/src/jobs"
	"git.handmade.network/hmn/forum/src/models"
	"git.handmade.network/hmn/forum/src/oops"
	"git.handmade.network/hmn/forum/src/utils"
)

const SessionCookieName = "ForumSession"
const CSRFFieldName = "csrf_token"

const sessionDuration = time.Hour * 24 * 14

func makeToken(length int) string {
	idBytes := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, idBytes); err != nil {
		panic(oops.New(err, "failed to read random bytes"))
	}
	return base64.RawURLEncoding.EncodeToString(idBytes)[:length]
}

var ErrNoSession = errors.New("no session found")

func GetSession(ctx context.Context, conn db.ConnOrTx, id string) (*models.Session, error) {
	sess, err := db.QueryOne[models.Session](ctx, conn,
		`
		SELECT $columns
		FROM session
		WHERE id = $1 AND expires_at > CURRENT_TIMESTAMP
		`,
		id,
	)
	if err != nil {
		if errors.Is(err, db.NotFound) {
			return nil, ErrNoSession
		}
		return nil, oops.New(err, "failed to get session")
	}
	return sess, nil
}

func CreateSession(ctx context.Context, conn db.ConnOrTx, userID int) (*models.Session, error) {
	session := models.Session{
		ID:        makeToken(40),
		UserID:    userID,
		ExpiresAt: time.Now().Add(sessionDuration),
		CSRFToken: makeToken(30),
	}

	_, err := conn.Exec(ctx,
		"INSERT INTO session (id, user_id, expires_at, csrf_token) VALUES ($1, $2, $3, $4)",
		session.ID, session.UserID, session.ExpiresAt, session.CSRFToken,
	)
	if err != nil {
		return nil, oops.New(err, "failed to persist session")
	}

	return &session, nil
}

// Deletes a session by id. Deleting a session that does not exist is not an error.
func DeleteSession(ctx context.Context, conn db.ConnOrTx, id string) error {
	_, err := conn.Exec(ctx, "DELETE FROM session WHERE id = $1", id)
	if err != nil {
		return oops.New(err, "failed to delete session")
	}
	return nil
}

func NewSessionCookie(session *models.Session) *http.Cookie {
	return &http.Cookie{
		Name:  SessionCookieName,
		Value: session.ID,

		Domain:  config.Config.Auth.CookieDomain,
		Path:    "/",
		Expires: session.ExpiresAt,

		Secure:   config.Config.Auth.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func DeleteSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:   SessionCookieName,
		Domain: config.Config.Auth.CookieDomain,
		Path:   "/",
		MaxAge: -1,
	}
}

func ValidateCSRFToken(session *models.Session, token string) bool {
	if session == nil || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(session.CSRFToken), []byte(token)) == 1
}

func DeleteExpiredSessions(ctx context.Context, conn db.ConnOrTx) (int64, error) {
	tag, err := conn.Exec(ctx, "DELETE FROM session WHERE expires_at <= CURRENT_TIMESTAMP")
	if err != nil {
		return 0, oops.New(err, "failed to delete expired sessions")
	}
	return tag.RowsAffected(), nil
}

func PeriodicallyDeleteExpiredSessions(conn db.ConnOrTx) *jobs.Job {
	job := jobs.New("delete expired sessions")
	go func() {
		defer job.Finish()

		t := utils.NewInstaTicker(1 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				err := func() (err error) {
					defer utils.RecoverPanicAsError(&err)

					n, err := DeleteExpiredSessions(job.Ctx, conn)
					if err == nil && n > 0 {
						job.Logger.Info().Int64("num deleted sessions", n).Msg("Deleted expired sessions")
					}
					return err
				}()
				if err != nil {
					job.Logger.Error().Err(err).Msg("Failed to delete expired sessions")
				}
			case <-job.Canceled():
				return
			}
		}
	}()
	return job
}
