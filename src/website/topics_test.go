package website

import (
	"testing"

	"git.handmade.network/hmn/forum/src/models"
	"github.com/stretchr/testify/assert"
)

func TestModerationActions(t *testing.T) {
	names := func(t *models.Topic) []string {
		var result []string
		for _, action := range moderationActions(t) {
			result = append(result, action.Name)
		}
		return result
	}

	assert.Equal(t,
		[]string{"close", "pin", "globalpin", "remove"},
		names(&models.Topic{ID: 1}),
	)
	assert.Equal(t,
		[]string{"open", "unpin", "globalunpin", "restore"},
		names(&models.Topic{ID: 1, IsClosed: true, IsPinned: true, IsGloballyPinned: true, IsRemoved: true}),
	)

	for _, action := range moderationActions(&models.Topic{ID: 7}) {
		assert.NotEmpty(t, action.Label, action.Name)
		assert.Contains(t, action.Url, "/topic/moderate/7/"+action.Name)
	}
}
