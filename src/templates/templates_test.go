package templates

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplatesParse(t *testing.T) {
	Init()
	for _, name := range []string{"index.html", "category.html", "topic.html", "active.html", "topic_form.html", "comment_form.html", "search.html", "notifications.html", "login.html", "error.html", "404.html", "403.html"} {
		assert.NotNil(t, embeddedTemplates[name], name)
	}
}

func TestRender404(t *testing.T) {
	Init()
	data := struct {
		BaseData
		Wanted string
	}{
		BaseData: BaseData{
			Title:   "Page not found",
			User:    &User{Username: "alice"},
			Session: &Session{CSRFToken: "tok<en>"},
		},
		Wanted: "/topic/<script>",
	}

	var buf bytes.Buffer
	require.Nil(t, GetTemplate("404.html").Execute(&buf, data))
	out := buf.String()
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, `value="tok&lt;en&gt;"`)
	assert.NotContains(t, out, "<script>")
}

func TestRelativeDate(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago      time.Duration
		expected string
	}{
		{10 * time.Second, "Less than a minute ago"},
		{1 * time.Minute, "1 minute ago"},
		{5 * time.Minute, "5 minutes ago"},
		{2*time.Hour + 1*time.Minute, "2 hours, 1 minute ago"},
		{Dayish + 3*time.Hour, "1 day, 3 hours ago"},
		{2 * Weekish, "2 weeks ago"},
		{Yearish + Monthish, "1 year, 1 month ago"},
	}
	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, RelativeDate(now.Add(-test.ago), now))
		})
	}
}

func TestCategoryColor(t *testing.T) {
	assert.Equal(t, CategoryColor("cd4e31"), CategoryColor("bogus"))
	assert.Equal(t, CategoryColor("#336699"), CategoryColor("336699"))
}
