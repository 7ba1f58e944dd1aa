package oops

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var SampleErrorValue = errors.New("some error occurred that you should handle")

type SampleErrorType struct {
	Message string
}

func (s SampleErrorType) Error() string {
	return s.Message
}

func init() {
	zerolog.ErrorStackMarshaler = ZerologStackMarshaler
}

func TestNew(t *testing.T) {
	t.Run("errors.Is", func(t *testing.T) {
		err := New(SampleErrorValue, "test error")
		assert.ErrorIs(t, err, SampleErrorValue)
	})
	t.Run("errors.As", func(t *testing.T) {
		err := New(SampleErrorType{Message: "some fancy error type has occurred"}, "test error")
		var sErr SampleErrorType
		assert.ErrorAs(t, err, &sErr)
	})
	t.Run("message", func(t *testing.T) {
		assert.Equal(t, "loading topic 12: some error occurred that you should handle", New(SampleErrorValue, "loading topic %d", 12).Error())
		assert.Equal(t, "no wrapped error", New(nil, "no wrapped error").Error())
	})
	t.Run("stack starts at caller", func(t *testing.T) {
		err := New(nil, "here").(*Error)
		require.NotEmpty(t, err.Stack)
		assert.True(t, strings.HasSuffix(err.Stack[0].Function, "TestNew.func4"), err.Stack[0].Function)
	})
}

func TestStackMarshaler(t *testing.T) {
	inner := New(SampleErrorValue, "inner")
	outer := fmt.Errorf("outer: %w", inner)

	stack := ZerologStackMarshaler(outer)
	assert.Equal(t, inner.(*Error).Stack, stack)

	assert.Nil(t, ZerologStackMarshaler(SampleErrorValue))
}
