/*
This package contains lowish-level APIs for making queries to the forum's Postgres database. It
maps query results onto Go types while still letting you write arbitrary SQL.

The primary functions are Query, QueryOne, QueryScalar and QueryIterator.

# Query syntax

Arguments use the normal pgx placeholders ($1, $2, ...). To match against a set of values, pass a
slice and use a Postgres array instead of IN:

	topicIDs, err := db.QueryScalar[int](ctx, conn,
		`
		SELECT id
		FROM topic
		WHERE
			category_id = ANY($1)
			AND NOT is_removed
		`,
		[]int{1, 4, 9},
	)

To query multiple columns at once, use a struct type with `db:"column_name"` tags and the
special $columns placeholder:

	type Topic struct {
		ID    int    `db:"id"`
		Title string `db:"title"`
	}
	topics, err := db.Query[Topic](ctx, conn, `SELECT $columns FROM topic`)
	// SELECT id, title FROM topic

When joining, give the placeholder a table prefix with $columns{prefix}. Nested structs with a db
tag are flattened using the tag as a sub-prefix, so a struct like

	type topicAndAuthor struct {
		Topic  models.Topic `db:"topic"`
		Author *models.User `db:"author"`
	}

is selected with `SELECT $columns FROM topic JOIN forum_user AS author ...` and expands to
topic.id, topic.title, ..., author.id, author.username, .... Pointer fields stay nil when every
one of their columns is NULL, which is what you want for LEFT JOINs.

For optional WHERE clauses, build the query with a QueryBuilder and its $? placeholders.
*/
package db
