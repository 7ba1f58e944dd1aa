package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"git.handmade.network/hmn/forum/src/oops"
	"github.com/stretchr/testify/assert"
)

type MyError struct{}

func (err *MyError) Error() string {
	return "I want to get off MR BONES WILD RIDE"
}

func TestMust(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		f := func() error { return nil }
		Must(f())
	})
	t.Run("non-nil error", func(t *testing.T) {
		f := func() error { return &MyError{} }
		assert.Panics(t, func() {
			Must(f())
		})
	})
	t.Run("nil *MyError", func(t *testing.T) {
		f := func() *MyError { return nil }
		Must(f())
	})
	t.Run("non-nil *MyError", func(t *testing.T) {
		f := func() *MyError { return &MyError{} }
		assert.Panics(t, func() {
			Must(f())
		})
	})
}

func TestMust1(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		f := func() (int, error) { return 3, nil }
		assert.Equal(t, 3, Must1(f()))
	})
	t.Run("non-nil error", func(t *testing.T) {
		f := func() (int, error) { return 0, &MyError{} }
		assert.Panics(t, func() {
			Must1(f())
		})
	})
}

func TestRecoverPanicAsError(t *testing.T) {
	sentinel := errors.New("kaboom")
	f := func() (err error) {
		defer RecoverPanicAsError(&err)
		panic(sentinel)
	}
	err := f()
	assert.ErrorIs(t, err, sentinel)
	var oopsErr *oops.Error
	assert.ErrorAs(t, err, &oopsErr)

	g := func() (err error) {
		defer RecoverPanicAsError(&err)
		panic(12)
	}
	assert.EqualError(t, g(), "panic recovered as error: panic with value: 12")
}

func TestNumPages(t *testing.T) {
	for _, tc := range []struct {
		things, perPage, expected int
	}{
		{0, 20, 1},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{25, 20, 2},
		{41, 20, 3},
		{5, 0, 1},
	} {
		assert.Equal(t, tc.expected, NumPages(tc.things, tc.perPage), "%d things, %d per page", tc.things, tc.perPage)
	}
}

func TestClampAndDefault(t *testing.T) {
	assert.Equal(t, 1, IntClamp(1, -4, 10))
	assert.Equal(t, 10, IntClamp(1, 40, 10))
	assert.Equal(t, 5, IntClamp(1, 5, 10))

	assert.Equal(t, "default", OrDefault("", "default"))
	assert.Equal(t, "set", OrDefault("set", "default"))
	assert.Equal(t, 20, OrDefault(0, 20))
}

func TestSlugify(t *testing.T) {
	for input, expected := range map[string]string{
		"Hello, World!":              "hello-world",
		"  leading and trailing  ":   "leading-and-trailing",
		"Ünïcödé stays":              "ünïcödé-stays",
		"C++ vs. Go -- a discussion": "c-vs-go-a-discussion",
		"!!!":                        "",
	} {
		assert.Equal(t, expected, Slugify(input), input)
	}
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []int{3, 1, 2}, Dedupe([]int{3, 1, 3, 2, 1}))
	assert.Equal(t, []string{}, Dedupe[string](nil))
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), ErrSleepInterrupted)
	assert.Nil(t, SleepContext(context.Background(), time.Millisecond))
}
