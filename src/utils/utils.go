package utils

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"git.handmade.network/hmn/forum/src/oops"
)

// Returns the provided value, or a default value if the input was zero.
func OrDefault[T comparable](v T, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func IntMin(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func IntMax(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func IntClamp(min, t, max int) int {
	return IntMax(min, IntMin(t, max))
}

// NumPages is never less than one, so an empty list still has a page to show.
func NumPages(numThings, thingsPerPage int) int {
	if thingsPerPage <= 0 || numThings <= 0 {
		return 1
	}
	return (numThings + thingsPerPage - 1) / thingsPerPage
}

// Panics if err is not nil. The generic parameter lets typed nil errors like
// (*MyError)(nil) count as nil.
func Must[E error](err E) {
	v := reflect.ValueOf(err)
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Ptr && v.IsNil() {
		return
	}
	panic(err)
}

func Must1[T any, E error](v T, err E) T {
	Must(err)
	return v
}

/*
Recover a panic and convert it to a returned error. Call it like so:

	func MyFunc() (err error) {
		defer utils.RecoverPanicAsError(&err)
	}

If an error was already present, the panicked error takes precedence.
*/
func RecoverPanicAsError(err *error) {
	if r := recover(); r != nil {
		var recoveredErr error
		if rerr, ok := r.(error); ok {
			recoveredErr = rerr
		} else {
			recoveredErr = fmt.Errorf("panic with value: %v", r)
		}
		*err = oops.New(recoveredErr, "panic recovered as error")
	}
}

var ErrSleepInterrupted = errors.New("sleep interrupted by context cancellation")

func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ErrSleepInterrupted
	case <-timer.C:
		return nil
	}
}

// Slugify turns a title into a lowercase, dash-separated URL fragment.
func Slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastDash = false
		} else if !lastDash {
			b.WriteRune('-')
			lastDash = true
		}
		if b.Len() >= 80 {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}

// Dedupe keeps the first occurrence of each value.
func Dedupe[T comparable](things []T) []T {
	seen := make(map[T]bool, len(things))
	result := make([]T, 0, len(things))
	for _, t := range things {
		if !seen[t] {
			seen[t] = true
			result = append(result, t)
		}
	}
	return result
}
