package forumurl

import (
	"net/url"
	"strings"

	"git.handmade.network/hmn/forum/src/config"
)

const StaticPath = "/public"

var baseUrl string
var baseUrlParsed url.URL

func init() {
	SetGlobalBaseUrl(config.Config.BaseUrl)
}

func SetGlobalBaseUrl(fullBaseUrl string) {
	baseUrl = strings.TrimRight(fullBaseUrl, "/")
	parsed, err := url.Parse(baseUrl)
	if err != nil {
		panic("invalid base url: " + err.Error())
	}
	baseUrlParsed = *parsed
}

type Q struct {
	Name  string
	Value string
}

func Url(path string, query []Q) string {
	return UrlWithFragment(path, query, "")
}

func UrlWithFragment(path string, query []Q, fragment string) string {
	result := baseUrl + "/" + trim(path)
	if q := encodeQuery(query); q != "" {
		result += "?" + q
	}
	if fragment != "" {
		result += "#" + fragment
	}
	return result
}

func StaticUrl(path string, query []Q) string {
	return Url(StaticPath+"/"+trim(path), query)
}

// Whether a redirect target stays on this site. Anything else is an open redirect.
func IsLocal(dest string) bool {
	if dest == "" {
		return false
	}
	if strings.HasPrefix(dest, "/") {
		return !strings.HasPrefix(dest, "//") && !strings.HasPrefix(dest, `/\`)
	}
	parsed, err := url.Parse(dest)
	if err != nil {
		return false
	}
	return parsed.Scheme == baseUrlParsed.Scheme && parsed.Host == baseUrlParsed.Host
}

func trim(path string) string {
	if len(path) > 0 && path[0] == '/' {
		return path[1:]
	}
	return path
}

func encodeQuery(query []Q) string {
	result := url.Values{}
	for _, q := range query {
		result.Set(q.Name, q.Value)
	}
	return result.Encode()
}
