package localstore

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketKey(t *testing.T) {
	tests := []struct {
		path, bucket, key string
	}{
		{"/forum-dev", "forum-dev", ""},
		{"/forum-dev/", "forum-dev", ""},
		{"/forum-dev/comments/1/abc/cat.png", "forum-dev", "comments~1~abc~cat.png"},
	}
	for _, test := range tests {
		bucket, key := bucketKey(test.path)
		assert.Equal(t, test.bucket, bucket, test.path)
		assert.Equal(t, test.key, key, test.path)
	}
}

func TestHandler(t *testing.T) {
	h := Handler(t.TempDir())

	do := func(method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rec
	}

	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/bucket", "").Code)
	require.Equal(t, http.StatusOK, do(http.MethodPut, "/bucket", "").Code)
	require.Equal(t, http.StatusOK, do(http.MethodPut, "/bucket/a/b.png", "pixels").Code)

	rec := do(http.MethodGet, "/bucket/a/b.png", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pixels", rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/bucket/missing", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(http.MethodGet, "/../etc", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(http.MethodDelete, "/bucket/a/b.png", "").Code)
}
