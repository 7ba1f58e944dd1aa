/*
Package localstore is a tiny S3 stand-in for development. It understands just
enough of the protocol for the assets package: bucket creation, object PUT
and GET, all backed by the filesystem.
*/
package localstore

import (
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"git.handmade.network/hmn/forum/src/logging"
	"git.handmade.network/hmn/forum/src/website"
	"github.com/spf13/cobra"
)

func init() {
	var addr string
	s3Command := &cobra.Command{
		Use:   "localstore [storage folder]",
		Short: "Run a local S3 server that stores in the filesystem",
		Run: func(cmd *cobra.Command, args []string) {
			targetFolder := "./tmp/localstore"
			if len(args) > 0 {
				targetFolder = args[0]
			}
			if err := os.MkdirAll(targetFolder, fs.ModePerm); err != nil {
				panic(err)
			}

			logging.Info().Str("addr", addr).Str("folder", targetFolder).Msg("Serving local object storage")
			if err := http.ListenAndServe(addr, Handler(targetFolder)); err != nil {
				logging.Error().Err(err).Msg("local object storage stopped")
				os.Exit(1)
			}
		},
	}
	s3Command.Flags().StringVar(&addr, "addr", ":9003", "Address to listen on")

	website.WebsiteCommand.AddCommand(s3Command)
}

// Handler serves buckets as directories under root. Object keys are flattened
// into a single file name per object.
func Handler(root string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bucket, key := bucketKey(r.URL.Path)
		if bucket == "" || !validName(bucket) {
			http.Error(w, "bad bucket", http.StatusBadRequest)
			return
		}
		logging.Debug().Str("method", r.Method).Str("bucket", bucket).Str("key", key).Msg("localstore request")

		bucketDir := filepath.Join(root, bucket)
		switch r.Method {
		case http.MethodPut:
			if err := os.MkdirAll(bucketDir, fs.ModePerm); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Location", "/"+bucket)
			if key == "" {
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := os.WriteFile(filepath.Join(bucketDir, key), body, 0o644); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		case http.MethodGet, http.MethodHead:
			if key == "" {
				if _, err := os.Stat(bucketDir); err != nil {
					http.Error(w, "NoSuchBucket", http.StatusNotFound)
				}
				return
			}
			content, err := os.ReadFile(filepath.Join(bucketDir, key))
			if err != nil {
				http.Error(w, "NoSuchKey", http.StatusNotFound)
				return
			}
			if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
				w.Header().Set("Content-Type", ct)
			}
			if r.Method == http.MethodGet {
				w.Write(content)
			}
		default:
			http.Error(w, "unimplemented method", http.StatusMethodNotAllowed)
		}
	})
}

func bucketKey(path string) (string, string) {
	path = strings.TrimPrefix(path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	return bucket, strings.ReplaceAll(key, "/", "~")
}

func validName(name string) bool {
	return name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}
