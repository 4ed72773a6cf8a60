package rpc

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
)

// ReadUploads loads attachment files from disk. An unreadable file aborts
// the whole set so a message never goes out with silently missing files.
func ReadUploads(paths []string) ([]Upload, error) {
	uploads := make([]Upload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read attachment: %w", err)
		}
		uploads = append(uploads, Upload{
			Name: filepath.Base(p),
			Type: ContentType(p, data),
			Data: data,
		})
	}
	return uploads, nil
}

// ContentType guesses a MIME type from the extension, then from the content.
func ContentType(path string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}
