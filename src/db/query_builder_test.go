package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryBuilder(t *testing.T) {
	t.Run("numbers placeholders in order", func(t *testing.T) {
		var qb QueryBuilder
		qb.Add("SELECT id FROM topic WHERE category_id = $?", 3)
		qb.Add("AND (is_removed = $? OR user_id = $?)", false, 7)
		qb.AddIf(false, "AND is_closed = $?", true)
		qb.AddIf(true, "LIMIT $?", 20)

		assert.Equal(t,
			"SELECT id FROM topic WHERE category_id = $1\nAND (is_removed = $2 OR user_id = $3)\nLIMIT $4\n",
			qb.String(),
		)
		assert.Equal(t, []any{3, false, 7, 20}, qb.Args())
	})
	t.Run("argument mismatch", func(t *testing.T) {
		var qb QueryBuilder
		assert.Panics(t, func() {
			qb.Add("WHERE a = $? AND b = $?", 1)
		})
	})
}
