package forumdata

import (
	"errors"
	"sort"
	"strings"

	"git.handmade.network/hmn/forum/src/db"
)

// ErrNotFound is db.NotFound, so either one works with errors.Is. Anything
// the requester may not see is reported this way.
var ErrNotFound = db.NotFound

var ErrRateLimited = errors.New("rate limited")

// Returned when the requester can see a thing but may not change it.
var ErrPermissionDenied = errors.New("permission denied")

// ValidationErrors maps form field names to messages.
type ValidationErrors map[string][]string

func (v ValidationErrors) Add(field, msg string) {
	v[field] = append(v[field], msg)
}

func (v ValidationErrors) Any() bool {
	return len(v) > 0
}

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("invalid input")
	for _, field := range fields {
		b.WriteString("; ")
		b.WriteString(field)
		b.WriteString(": ")
		b.WriteString(strings.Join(v[field], ", "))
	}
	return b.String()
}
