package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numbers(n int) []int {
	result := make([]int, n)
	for i := range result {
		result[i] = i + 1
	}
	return result
}

func TestPaginate(t *testing.T) {
	items := numbers(25)

	t.Run("first page", func(t *testing.T) {
		page, err := Paginate(items, 20, 1, Clamp)
		require.Nil(t, err)
		assert.Equal(t, numbers(20), page.Items)
		assert.Equal(t, 2, page.TotalPages)
		assert.False(t, page.HasPrevious())
		assert.True(t, page.HasNext())
		assert.False(t, page.Clamped)
	})
	t.Run("last page", func(t *testing.T) {
		page, err := Paginate(items, 20, 2, Clamp)
		require.Nil(t, err)
		assert.Equal(t, []int{21, 22, 23, 24, 25}, page.Items)
		assert.True(t, page.HasPrevious())
		assert.False(t, page.HasNext())
	})
	t.Run("past the end, clamp", func(t *testing.T) {
		page, err := Paginate(items, 20, 3, Clamp)
		require.Nil(t, err)
		assert.Equal(t, 2, page.Page)
		assert.True(t, page.Clamped)
		assert.Equal(t, []int{21, 22, 23, 24, 25}, page.Items)

		again, err := Paginate(items, 20, 3, Clamp)
		require.Nil(t, err)
		assert.Equal(t, page, again, "the policy must be applied the same way every time")
	})
	t.Run("past the end, not found", func(t *testing.T) {
		_, err := Paginate(items, 20, 3, NotFound)
		assert.ErrorIs(t, err, ErrPageOutOfRange)
		_, err = Paginate(items, 20, 3, NotFound)
		assert.ErrorIs(t, err, ErrPageOutOfRange)
	})
	t.Run("below one", func(t *testing.T) {
		page, err := Paginate(items, 20, 0, Clamp)
		require.Nil(t, err)
		assert.Equal(t, 1, page.Page)
		assert.True(t, page.Clamped)

		_, err = Paginate(items, 20, -5, NotFound)
		assert.ErrorIs(t, err, ErrPageOutOfRange)
	})
	t.Run("empty", func(t *testing.T) {
		page, err := Paginate([]int{}, 20, 1, NotFound)
		require.Nil(t, err)
		assert.Equal(t, 1, page.TotalPages)
		assert.Empty(t, page.Items)

		page, err = Paginate([]int{}, 20, 4, Clamp)
		require.Nil(t, err)
		assert.Equal(t, 1, page.Page)
	})
	t.Run("bad page size", func(t *testing.T) {
		_, err := Paginate(items, 0, 1, Clamp)
		assert.NotNil(t, err)
	})
}

func TestComputeOffsets(t *testing.T) {
	info, err := Compute(85, 10, 3, Clamp)
	require.Nil(t, err)
	assert.Equal(t, 20, info.Offset())
	assert.Equal(t, 10, info.Limit())
	assert.Equal(t, 9, info.TotalPages)
}

func TestPageOf(t *testing.T) {
	for _, tc := range []struct {
		position, pageSize, page int
	}{
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{25, 20, 2},
		{41, 20, 3},
		{0, 20, 1},
	} {
		assert.Equal(t, tc.page, PageOf(tc.position, tc.pageSize), "position %d", tc.position)
	}
}

func TestParsePolicy(t *testing.T) {
	for input, expected := range map[string]Policy{
		"":         Clamp,
		"clamp":    Clamp,
		"NotFound": NotFound,
		"404":      NotFound,
	} {
		p, err := ParsePolicy(input)
		assert.Nil(t, err)
		assert.Equal(t, expected, p)
	}
	_, err := ParsePolicy("whatever")
	assert.NotNil(t, err)

	assert.Equal(t, "notfound", NotFound.String())
	assert.Equal(t, "clamp", Clamp.String())
}
