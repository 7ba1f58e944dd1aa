package logging

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	color "git.handmade.network/hmn/forum/src/ansicolor"
	"git.handmade.network/hmn/forum/src/oops"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func init() {
	color.Disable()
}

func TestPrettyWriter(t *testing.T) {
	var out bytes.Buffer
	logger := zerolog.New(NewPrettyZerologWriter(&out))

	logger.Info().Msg("server started")
	assert.Equal(t, " INFO: server started\n", out.String())

	out.Reset()
	logger.Error().
		Err(oops.New(errors.New("connection refused"), "failed to reach redis")).
		Int("topic", 12).
		Msg("publish failed")
	pretty := out.String()
	assert.True(t, strings.HasPrefix(pretty, "---------------------------------------\n"))
	assert.Contains(t, pretty, "ERROR: publish failed")
	assert.Contains(t, pretty, "ERROR: failed to reach redis: connection refused")
	assert.Contains(t, pretty, "    topic: 12")
}

func TestPrettyWriterPassesThroughGarbage(t *testing.T) {
	var out bytes.Buffer
	w := NewPrettyZerologWriter(&out)
	n, err := w.Write([]byte("not json\n"))
	assert.Nil(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, "not json\n", out.String())
}

func TestContextLogger(t *testing.T) {
	assert.Equal(t, GlobalLogger(), ExtractLogger(context.Background()))

	logger := zerolog.Nop()
	ctx := AttachLoggerToContext(&logger, context.Background())
	assert.Equal(t, &logger, ExtractLogger(ctx))
}
