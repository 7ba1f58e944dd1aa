package assets

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, out string
	}{
		{"cat.png", "cat.png"},
		{"cool filename.txt.wow", "cool_filename.txt.wow"},
		{"😎 hi doggy 🐶.jpg", "hi_doggy_.jpg"},
		{"newlines\naretotallylegal", "newlines_aretotallylegal"},
		{`C:\Users\me\Desktop\shot.png`, "shot.png"},
		{"../../etc/passwd", "passwd"},
		{"", "unnamed"},
		{"...", "unnamed"},
	}
	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			assert.Equal(t, test.out, SanitizeFilename(test.in))
		})
	}
}

func encode(t *testing.T, format string, w, h int) []byte {
	img := image.NewPaletted(image.Rect(0, 0, w, h), []color.Color{color.Black, color.White})
	var buf bytes.Buffer
	switch format {
	case "png":
		require.Nil(t, png.Encode(&buf, img))
	case "gif":
		require.Nil(t, gif.Encode(&buf, img, nil))
	}
	return buf.Bytes()
}

func TestDetectImage(t *testing.T) {
	t.Run("png", func(t *testing.T) {
		info, err := DetectImage(encode(t, "png", 12, 7))
		require.Nil(t, err)
		assert.Equal(t, "image/png", info.MimeType)
		assert.Equal(t, ".png", info.Ext)
		assert.Equal(t, 12, info.Width)
		assert.Equal(t, 7, info.Height)
	})
	t.Run("gif", func(t *testing.T) {
		info, err := DetectImage(encode(t, "gif", 3, 3))
		require.Nil(t, err)
		assert.Equal(t, "image/gif", info.MimeType)
	})
	t.Run("not an image", func(t *testing.T) {
		_, err := DetectImage([]byte("<svg onload=alert(1)>"))
		assert.True(t, IsInvalidAsset(err))
	})
}

func TestSplitEndpoint(t *testing.T) {
	host, secure, err := splitEndpoint("https://objects.example.com:9000")
	require.Nil(t, err)
	assert.Equal(t, "objects.example.com:9000", host)
	assert.True(t, secure)

	host, secure, err = splitEndpoint("localhost:9003")
	require.Nil(t, err)
	assert.Equal(t, "localhost:9003", host)
	assert.False(t, secure)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "10MB", FormatSize(10*1024*1024))
	assert.Equal(t, "1.5KB", FormatSize(1536))
	assert.Equal(t, "12B", FormatSize(12))
}
