package search

import (
	"context"
	"strings"
	"testing"
	"time"

	"git.handmade.network/hmn/forum/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIndex(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.Nil(t, idx.IndexTopics(ctx, []Document{
		{ID: 1, Title: "Arena allocators", Body: "Bump pointers all the way down.", CategoryID: 1, LastActive: 100},
		{ID: 2, Title: "Hot reloading", Body: "Reload your game code with arena state intact.", CategoryID: 1, LastActive: 200},
		{ID: 3, Title: "Secret arena plans", Body: "Only for members.", CategoryID: 2, LastActive: 300},
	}))

	t.Run("filters by category", func(t *testing.T) {
		results, total, err := idx.Search(ctx, Query{Text: "arena", CategoryIDs: []int{1}, Limit: 10})
		require.Nil(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, results, 2)
		assert.Equal(t, 2, results[0].TopicID, "most recently active first")
		assert.Equal(t, 1, results[1].TopicID)
		assert.Equal(t, "<mark>Arena</mark> allocators", results[1].Title)
	})
	t.Run("no categories matches nothing", func(t *testing.T) {
		results, total, err := idx.Search(ctx, Query{Text: "arena", Limit: 10})
		require.Nil(t, err)
		assert.Equal(t, 0, total)
		assert.Empty(t, results)
	})
	t.Run("blank query", func(t *testing.T) {
		results, _, err := idx.Search(ctx, Query{Text: "  ", CategoryIDs: []int{1, 2}})
		require.Nil(t, err)
		assert.Empty(t, results)
	})
	t.Run("paging", func(t *testing.T) {
		results, total, err := idx.Search(ctx, Query{Text: "arena", CategoryIDs: []int{1, 2}, Limit: 1, Offset: 1})
		require.Nil(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, results, 1)
		assert.Equal(t, 2, results[0].TopicID)

		results, _, err = idx.Search(ctx, Query{Text: "arena", CategoryIDs: []int{1, 2}, Limit: 1, Offset: 5})
		require.Nil(t, err)
		assert.Empty(t, results)
	})
	t.Run("delete", func(t *testing.T) {
		require.Nil(t, idx.DeleteTopics(ctx, []int{3, 99}))
		assert.Equal(t, 2, idx.Len())
	})
}

func TestTopicDocument(t *testing.T) {
	first := "Hello **world**, from @alice"
	live := map[int]*models.Category{1: {ID: 1}}
	active := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		row  changedTopic
		keep bool
	}{
		{
			name: "live topic",
			row:  changedTopic{Topic: models.Topic{ID: 5, CategoryID: 1, Title: "Hi", LastActive: active}, FirstComment: &first},
			keep: true,
		},
		{
			name: "removed topic",
			row:  changedTopic{Topic: models.Topic{ID: 6, CategoryID: 1, IsRemoved: true}},
		},
		{
			name: "removed category",
			row:  changedTopic{Topic: models.Topic{ID: 7, CategoryID: 2}},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			doc, keep := topicDocument(&test.row, live)
			assert.Equal(t, test.keep, keep)
			if keep {
				assert.Equal(t, test.row.Topic.ID, doc.ID)
				assert.Equal(t, active.Unix(), doc.LastActive)
				assert.NotContains(t, doc.Body, "**")
				assert.Contains(t, doc.Body, "world")
			}
		})
	}
}

func TestTruncateBody(t *testing.T) {
	short := "  just a little  "
	assert.Equal(t, "just a little", truncateBody(short))

	long := strings.Repeat("é", maxBodyLength)
	cut := truncateBody(long)
	assert.LessOrEqual(t, len(cut), maxBodyLength)
	assert.True(t, strings.HasSuffix(cut, "é"), "must not split a rune")
}

func TestSnippet(t *testing.T) {
	body := strings.Repeat("a", 200) + " needle " + strings.Repeat("b", 200)
	s := snippet(body, "needle", 40)
	assert.Contains(t, s, "needle")
	assert.True(t, strings.HasPrefix(s, "…"))
	assert.True(t, strings.HasSuffix(s, "…"))

	assert.Equal(t, "short", snippet("short", "sh", 40))
}

func TestCategoryFilter(t *testing.T) {
	assert.Equal(t, "category_id IN [1, 4, 9]", categoryFilter([]int{1, 4, 9}))
}
