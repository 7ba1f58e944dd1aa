/*
Package assets stores uploaded comment images in an S3-compatible bucket and
records them in the asset table.
*/
package assets

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"git.handmade.network/hmn/forum/src/config"
	"git.handmade.network/hmn/forum/src/db"
	"git.handmade.network/hmn/forum/src/models"
	"git.handmade.network/hmn/forum/src/oops"
	"github.com/google/uuid"
)

// A Store puts objects somewhere they can be served from.
type Store interface {
	Put(ctx context.Context, key, contentType string, content []byte) error
	URL(key string) string
}

// NewStore builds the Store named by cfg.Backend.
func NewStore(ctx context.Context, cfg config.AssetsConfig) (Store, error) {
	switch cfg.Backend {
	case config.AssetsBackendS3, "":
		return NewS3Store(ctx, cfg)
	case config.AssetsBackendMinio:
		return NewMinioStore(cfg)
	default:
		return nil, oops.New(nil, "unknown assets backend '%s'", cfg.Backend)
	}
}

type CreateInput struct {
	Content  []byte
	Filename string

	UploaderID int
	MaxSize    int64
}

// An InvalidAssetError is the uploader's fault, and its message is safe to show them.
type InvalidAssetError struct {
	Msg string
}

func (e *InvalidAssetError) Error() string {
	return e.Msg
}

func IsInvalidAsset(err error) bool {
	var invalid *InvalidAssetError
	return errors.As(err, &invalid)
}

var reIllegalFilenameChars = regexp.MustCompile(`[^\w\-.]+`)

func SanitizeFilename(filename string) string {
	// Browsers on Windows have been known to send the whole path.
	if i := strings.LastIndexAny(filename, `/\`); i >= 0 {
		filename = filename[i+1:]
	}
	filename = strings.Trim(reIllegalFilenameChars.ReplaceAllString(filename, "_"), "_.")
	if filename == "" {
		return "unnamed"
	}
	if len(filename) > 200 {
		filename = filename[len(filename)-200:]
	}
	return filename
}

func AssetKey(uploaderID int, id uuid.UUID, filename string) string {
	return fmt.Sprintf("comments/%d/%s/%s", uploaderID, id, filename)
}

// CreateImage checks that the upload is an image we accept, stores it, and
// records it. The stored filename always carries the extension of the
// detected format, whatever the client called it.
func CreateImage(ctx context.Context, conn db.ConnOrTx, store Store, in CreateInput) (*models.Asset, error) {
	if len(in.Content) == 0 {
		return nil, &InvalidAssetError{Msg: "No image was uploaded."}
	}
	if in.MaxSize > 0 && int64(len(in.Content)) > in.MaxSize {
		return nil, &InvalidAssetError{Msg: fmt.Sprintf("Images can be at most %s.", FormatSize(in.MaxSize))}
	}

	info, err := DetectImage(in.Content)
	if err != nil {
		return nil, err
	}

	filename := SanitizeFilename(in.Filename)
	filename = strings.TrimSuffix(filename, extensionOf(filename)) + info.Ext

	id := uuid.New()
	key := AssetKey(in.UploaderID, id, filename)
	checksum := fmt.Sprintf("%x", sha1.Sum(in.Content))

	if err := store.Put(ctx, key, info.MimeType, in.Content); err != nil {
		return nil, err
	}

	asset, err := db.QueryOne[models.Asset](ctx, conn,
		`
		---- Create asset
		INSERT INTO asset (id, uploader_id, storage_key, filename, size, mime_type, sha1sum, width, height)
		VALUES            ($1, $2,          $3,          $4,       $5,   $6,        $7,      $8,    $9)
		RETURNING $columns
		`,
		id,
		in.UploaderID,
		key,
		filename,
		len(in.Content),
		info.MimeType,
		checksum,
		info.Width,
		info.Height,
	)
	if err != nil {
		return nil, oops.New(err, "failed to save asset record")
	}
	return asset, nil
}

func extensionOf(filename string) string {
	i := strings.LastIndexByte(filename, '.')
	if i <= 0 {
		return ""
	}
	return filename[i:]
}

func FormatSize(n int64) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.4gMB", float64(n)/(1024*1024))
	case n >= 1024:
		return fmt.Sprintf("%.4gKB", float64(n)/1024)
	default:
		return fmt.Sprintf("%dB", n)
	}
}
