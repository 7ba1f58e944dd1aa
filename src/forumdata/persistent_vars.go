package forumdata

import (
	"context"
	"encoding/json"

	"git.handmade.network/hmn/forum/src/db"
	"git.handmade.network/hmn/forum/src/models"
	"git.handmade.network/hmn/forum/src/oops"
)

type PersistentVarName string

const (
	VarNameForumSettings   PersistentVarName = "forum_settings"
	VarNameSearchIndexedAt PersistentVarName = "search_indexed_at"
)

// NOTE(asaf): Returns db.NotFound if the variable isn't in the db.
func FetchPersistentVar[T any](
	ctx context.Context,
	dbConn db.ConnOrTx,
	varName PersistentVarName,
) (*T, error) {
	persistentVar, err := db.QueryOne[models.PersistentVar](ctx, dbConn,
		`
		---- Fetch persistent var
		SELECT $columns
		FROM persistent_var
		WHERE name = $1
		`,
		varName,
	)
	if err != nil {
		return nil, err
	}

	var result T
	err = json.Unmarshal([]byte(persistentVar.Value), &result)
	if err != nil {
		return nil, oops.New(err, "failed to unmarshal persistent var value")
	}

	return &result, nil
}

func StorePersistentVar[T any](
	ctx context.Context,
	dbConn db.ConnOrTx,
	name PersistentVarName,
	value *T,
) error {
	jsonString, err := json.Marshal(value)
	if err != nil {
		return oops.New(err, "failed to marshal variable")
	}

	_, err = dbConn.Exec(ctx,
		`
		---- Store persistent var
		INSERT INTO persistent_var (name, value)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET
			value = EXCLUDED.value
		`,
		name,
		string(jsonString),
	)
	if err != nil {
		return oops.New(err, "failed to insert variable")
	}

	return nil
}
