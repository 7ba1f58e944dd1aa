package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInstaTicker(t *testing.T) {
	t.Run("ticks immediately", func(t *testing.T) {
		it := NewInstaTicker(time.Hour)
		defer it.Stop()
		select {
		case <-it.C:
		case <-time.After(time.Second):
			assert.Fail(t, "no initial tick")
		}
	})
	t.Run("no ticks after stop", func(t *testing.T) {
		it := NewInstaTicker(time.Millisecond * 20)
		<-it.C
		<-it.C
		it.Stop()
		time.Sleep(time.Millisecond * 100)
		select {
		case <-it.C:
			assert.Fail(t, "No more ticks should be received after stop")
		default:
		}
	})
	t.Run("stop without consuming", func(t *testing.T) {
		it := NewInstaTicker(time.Second * 100)
		it.Stop()
	})
}
