package forumurl

import (
	"net/url"
	"regexp"
	"testing"

	"git.handmade.network/hmn/forum/src/config"
	"github.com/stretchr/testify/assert"
)

func TestUrl(t *testing.T) {
	defer func() {
		SetGlobalBaseUrl(config.Config.BaseUrl)
	}()
	SetGlobalBaseUrl("http://forum.test/")

	t.Run("no query", func(t *testing.T) {
		result := Url("/test/foo", nil)
		assert.Equal(t, "http://forum.test/test/foo", result)
	})
	t.Run("yes query", func(t *testing.T) {
		result := Url("/test/foo", []Q{{"bar", "baz"}, {"zig??", "zig & zag!!"}})
		assert.Equal(t, "http://forum.test/test/foo?bar=baz&zig%3F%3F=zig+%26+zag%21%21", result)
	})
	t.Run("fragment", func(t *testing.T) {
		result := UrlWithFragment("/topic/1/hi", []Q{{"page", "2"}}, "c5")
		assert.Equal(t, "http://forum.test/topic/1/hi?page=2#c5", result)
	})
}

func TestIsLocal(t *testing.T) {
	tests := []struct {
		dest  string
		local bool
	}{
		{"/topic/1/hi", true},
		{BuildActiveTopics(2), true},
		{"//evil.example/", false},
		{`/\evil.example/`, false},
		{"https://evil.example/topic/1", false},
		{"", false},
	}
	for _, test := range tests {
		assert.Equal(t, test.local, IsLocal(test.dest), test.dest)
	}
}

func TestHomepage(t *testing.T) {
	AssertRegexMatch(t, BuildHomepage(), RegexHomepage, nil)
}

func TestLogin(t *testing.T) {
	AssertRegexMatch(t, BuildLogin(), RegexLogin, nil)
	AssertRegexMatch(t, BuildLoginPage("/topics/active"), RegexLogin, nil)
	parsed, err := url.Parse(BuildLoginPage("/topics/active"))
	assert.Nil(t, err)
	assert.Equal(t, "/topics/active", parsed.Query().Get("redirect"))
}

func TestLogout(t *testing.T) {
	AssertRegexMatch(t, BuildLogout(), RegexLogout, nil)
}

func TestCategory(t *testing.T) {
	AssertRegexMatch(t, BuildCategory(3, "general", 1), RegexCategory, map[string]string{"categoryid": "3", "slug": "general"})
	AssertRegexMatch(t, "/category/3", RegexCategory, map[string]string{"categoryid": "3"})
	AssertQuery(t, BuildCategory(3, "general", 2), "page", "2")
	assert.Panics(t, func() { BuildCategory(3, "general", 0) })
	assert.Panics(t, func() { BuildCategory(3, "a/b", 1) })
}

func TestTopic(t *testing.T) {
	AssertRegexMatch(t, BuildTopic(12, "arena-allocators", 1), RegexTopic, map[string]string{"topicid": "12", "slug": "arena-allocators"})
	AssertRegexMatch(t, "/topic/12", RegexTopic, map[string]string{"topicid": "12"})
	AssertQuery(t, BuildTopic(12, "x", 3), "page", "3")
	AssertQuery(t, BuildTopic(12, "x", 1), "page", "")
	AssertRegexMatch(t, BuildTopic(12, "ünïcode", 1), RegexTopic, map[string]string{"slug": "ünïcode"})
	assert.Panics(t, func() { BuildTopic(12, "x", -1) })

	assert.NotRegexp(t, RegexTopic, "/topic/12/comment/publish")
	assert.NotRegexp(t, RegexTopic, "/topic/update/12")
}

func TestTopicComment(t *testing.T) {
	full := BuildTopicComment(12, "hi", 2, 99)
	AssertRegexMatch(t, full, RegexTopic, map[string]string{"topicid": "12"})
	parsed, err := url.Parse(full)
	assert.Nil(t, err)
	assert.Equal(t, "c99", parsed.Fragment)
	assert.Equal(t, "2", parsed.Query().Get("page"))
}

func TestTopicActions(t *testing.T) {
	AssertRegexMatch(t, BuildTopicPublish(4), RegexTopicPublish, map[string]string{"categoryid": "4"})
	AssertRegexMatch(t, BuildTopicUpdate(9), RegexTopicUpdate, map[string]string{"topicid": "9"})
	AssertRegexMatch(t, BuildTopicModerate(9, "close"), RegexTopicModerate, map[string]string{"topicid": "9", "action": "close"})
	assert.Panics(t, func() { BuildTopicModerate(9, "") })
	assert.Panics(t, func() { BuildTopicModerate(9, "close/now") })
}

func TestActiveTopics(t *testing.T) {
	AssertRegexMatch(t, BuildActiveTopics(1), RegexActiveTopics, nil)
	AssertQuery(t, BuildActiveTopics(4), "page", "4")
}

func TestComments(t *testing.T) {
	AssertRegexMatch(t, BuildCommentPublish(7), RegexCommentPublish, map[string]string{"topicid": "7"})
	AssertRegexMatch(t, BuildCommentUpdate(8), RegexCommentUpdate, map[string]string{"commentid": "8"})
	AssertRegexMatch(t, BuildCommentDelete(8), RegexCommentDelete, map[string]string{"commentid": "8"})
	AssertRegexMatch(t, BuildCommentMove(), RegexCommentMove, nil)
	AssertRegexMatch(t, BuildCommentFind(8), RegexCommentFind, map[string]string{"commentid": "8"})
	AssertRegexMatch(t, BuildCommentImageUpload(), RegexCommentImageUpload, nil)
}

func TestSearch(t *testing.T) {
	AssertRegexMatch(t, BuildSearch("", 1), RegexSearch, nil)
	AssertQuery(t, BuildSearch("hot reload", 2), "q", "hot reload")
	AssertQuery(t, BuildSearch("hot reload", 2), "page", "2")
}

func TestNotifications(t *testing.T) {
	AssertRegexMatch(t, BuildNotifications(), RegexNotifications, nil)
}

func TestPerfmon(t *testing.T) {
	AssertRegexMatch(t, BuildPerfmon(), RegexPerfmon, nil)
}

func TestPublic(t *testing.T) {
	AssertRegexMatch(t, BuildPublic("test"), RegexPublic, nil)
	AssertRegexMatch(t, BuildPublic("/test"), RegexPublic, nil)
	AssertRegexMatch(t, BuildPublic("/test/"), RegexPublic, nil)
	AssertRegexMatch(t, BuildPublic("/test/thing/image.png"), RegexPublic, nil)
	assert.Panics(t, func() { BuildPublic("") })
	assert.Panics(t, func() { BuildPublic("/") })
	assert.Panics(t, func() { BuildPublic("/thing//image.png") })
	assert.Panics(t, func() { BuildPublic("/thing/ /image.png") })
}

func AssertQuery(t *testing.T, fullUrl string, name string, expected string) {
	parsed, err := url.Parse(fullUrl)
	ok := assert.Nilf(t, err, "Full url could not be parsed: %s", fullUrl)
	if !ok {
		return
	}
	assert.Equalf(t, expected, parsed.Query().Get(name), "Query param mismatch for [%s]", name)
}

func AssertRegexMatch(t *testing.T, fullUrl string, regex *regexp.Regexp, paramsToVerify map[string]string) {
	parsed, err := url.Parse(fullUrl)
	ok := assert.Nilf(t, err, "Full url could not be parsed: %s", fullUrl)
	if !ok {
		return
	}

	requestPath := parsed.Path
	if len(requestPath) == 0 {
		requestPath = "/"
	}
	match := regex.FindStringSubmatch(requestPath)
	assert.NotNilf(t, match, "Url did not match regex: [%s] vs [%s]", requestPath, regex.String())

	if paramsToVerify != nil {
		subexpNames := regex.SubexpNames()
		for i, matchedValue := range match {
			paramName := subexpNames[i]
			expectedValue, ok := paramsToVerify[paramName]
			if ok {
				assert.Equalf(t, expectedValue, matchedValue, "Param mismatch for [%s]", paramName)
				delete(paramsToVerify, paramName)
			}
		}
		if len(paramsToVerify) > 0 {
			unmatchedParams := make([]string, 0, len(paramsToVerify))
			for paramName := range paramsToVerify {
				unmatchedParams = append(unmatchedParams, paramName)
			}
			assert.Fail(t, "Expected match groups not found", unmatchedParams)
		}
	}
}
