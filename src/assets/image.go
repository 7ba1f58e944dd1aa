package assets

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

type ImageInfo struct {
	MimeType string
	Ext      string
	Width    int
	Height   int
}

var imageFormats = map[string]ImageInfo{
	"jpeg": {MimeType: "image/jpeg", Ext: ".jpg"},
	"png":  {MimeType: "image/png", Ext: ".png"},
	"gif":  {MimeType: "image/gif", Ext: ".gif"},
	"webp": {MimeType: "image/webp", Ext: ".webp"},
}

const maxImageDimension = 10000

// DetectImage reads just the image header, so it's cheap even for large files.
func DetectImage(content []byte) (ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return ImageInfo{}, &InvalidAssetError{Msg: "Unsupported image format. Use JPEG, PNG, GIF or WebP."}
	}
	info, ok := imageFormats[format]
	if !ok {
		return ImageInfo{}, &InvalidAssetError{Msg: "Unsupported image format. Use JPEG, PNG, GIF or WebP."}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > maxImageDimension || cfg.Height > maxImageDimension {
		return ImageInfo{}, &InvalidAssetError{Msg: "Image dimensions are out of range."}
	}
	info.Width = cfg.Width
	info.Height = cfg.Height
	return info, nil
}
