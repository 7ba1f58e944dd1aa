package forumdata

import (
	"context"
	"strings"

	"git.handmade.network/hmn/forum/src/db"
	"git.handmade.network/hmn/forum/src/models"
	"git.handmade.network/hmn/forum/src/oops"
	"git.handmade.network/hmn/forum/src/perf"
)

type UsersQuery struct {
	// Ignored when using FetchUser
	UserIDs   []int    // if empty, all users
	Usernames []string // if empty, all users; compared case-insensitively

	IncludeInactive bool
}

func FetchUsers(ctx context.Context, conn db.ConnOrTx, q UsersQuery) ([]*models.User, error) {
	p := perf.ExtractPerf(ctx)
	block := p.StartBlock("SQL", "Fetch users")
	defer block.End()

	usernames := make([]string, len(q.Usernames))
	for i, name := range q.Usernames {
		usernames[i] = strings.ToLower(name)
	}

	var qb db.QueryBuilder
	qb.Add(`
		---- Fetch users
		SELECT $columns
		FROM forum_user
		WHERE
			TRUE
	`)
	qb.AddIf(len(q.UserIDs) > 0, `AND id = ANY($?)`, q.UserIDs)
	qb.AddIf(len(usernames) > 0, `AND LOWER(username) = ANY($?)`, usernames)
	qb.AddIf(!q.IncludeInactive, `AND is_active`)
	qb.Add(`ORDER BY id`)

	users, err := db.Query[models.User](ctx, conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to fetch users")
	}
	return users, nil
}

// Returns db.NotFound if no active user has that id.
func FetchUser(ctx context.Context, conn db.ConnOrTx, userID int) (*models.User, error) {
	users, err := FetchUsers(ctx, conn, UsersQuery{UserIDs: []int{userID}})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, db.NotFound
	}
	return users[0], nil
}

func FetchUserByUsername(ctx context.Context, conn db.ConnOrTx, username string, q UsersQuery) (*models.User, error) {
	q.UserIDs = nil
	q.Usernames = []string{username}
	users, err := FetchUsers(ctx, conn, q)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, db.NotFound
	}
	return users[0], nil
}

func TouchLastSeen(ctx context.Context, conn db.ConnOrTx, userID int) error {
	_, err := conn.Exec(ctx,
		`
		---- Touch last seen
		UPDATE forum_user
		SET last_seen = NOW()
		WHERE id = $1 AND (last_seen IS NULL OR last_seen < NOW() - INTERVAL '5 minutes')
		`,
		userID,
	)
	if err != nil {
		return oops.New(err, "failed to update last seen")
	}
	return nil
}
