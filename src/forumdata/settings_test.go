package forumdata

import (
	"context"
	"testing"

	"git.handmade.network/hmn/forum/src/pagination"
	"git.handmade.network/hmn/forum/src/ratelimit"
	"github.com/stretchr/testify/assert"
)

func TestSettingsNormalized(t *testing.T) {
	assert.Equal(t, DefaultSettings, Settings{}.Normalized())
	assert.Equal(t, DefaultSettings, Settings{CommentsPerPage: -1, OutOfRange: "sideways"}.Normalized())

	custom := Settings{CommentsPerPage: 5, TopicsPerPage: 3, OutOfRange: "notfound"}
	assert.Equal(t, custom, custom.Normalized())
}

func TestSettingsPagePolicy(t *testing.T) {
	assert.Equal(t, pagination.Clamp, DefaultSettings.PagePolicy())
	assert.Equal(t, pagination.NotFound, Settings{OutOfRange: "notfound"}.PagePolicy())
}

func TestStaticSettings(t *testing.T) {
	var provider SettingsProvider = StaticSettings{CommentsPerPage: 25}
	settings := provider.Settings(context.Background())
	assert.Equal(t, 25, settings.CommentsPerPage)
	assert.Equal(t, DefaultSettings.TopicsPerPage, settings.TopicsPerPage)
}

func TestSettingsPublishRate(t *testing.T) {
	assert.Equal(t, "", Settings{PublishRate: "lots"}.Normalized().PublishRate)
	assert.Equal(t, "5/m", Settings{PublishRate: "5/m"}.Normalized().PublishRate)

	deps := Deps{PublishRate: ratelimit.MustParseRate("10/m")}
	assert.Equal(t, ratelimit.MustParseRate("10/m"), deps.publishRate(context.Background()))

	deps.Settings = StaticSettings{PublishRate: "2/s"}
	assert.Equal(t, ratelimit.MustParseRate("2/s"), deps.publishRate(context.Background()))

	deps.Settings = StaticSettings{PublishRate: "garbage"}
	assert.Equal(t, ratelimit.MustParseRate("10/m"), deps.publishRate(context.Background()))
}
