package api

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// uploads holds the temp files decoded for one request.
type uploads struct {
	dir   string
	paths []string
}

func (s *Server) newUploads() *uploads {
	return &uploads{dir: s.tempDir}
}

// save decodes a base64 image, with or without a data URI header, into a
// new temp file and returns its path.
func (u *uploads) save(encoded string) (string, error) {
	data, err := decodeBase64Image(encoded)
	if err != nil {
		return "", err
	}
	path := filepath.Join(u.dir, "lovart_upload_"+uuid.NewString()+".png")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	u.paths = append(u.paths, path)
	return path, nil
}

// resolve returns ref unchanged when it is a file path and decodes it
// otherwise.
func (u *uploads) resolve(ref string) (string, error) {
	if !isInlineImage(ref) {
		return ref, nil
	}
	return u.save(ref)
}

// cleanup removes every file saved so far.
func (u *uploads) cleanup() {
	for _, p := range u.paths {
		os.Remove(p)
	}
	u.paths = nil
}

func decodeBase64Image(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if i := strings.IndexByte(encoded, ','); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("base64 decode failed: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("base64 decode failed: empty image")
	}
	return data, nil
}

// isInlineImage tells data URIs and bare base64 blobs apart from paths.
// Base64 may contain '/', so long values that do not look rooted count as
// inline.
func isInlineImage(ref string) bool {
	if strings.HasPrefix(ref, "data:") {
		return true
	}
	if len(ref) <= 256 || strings.ContainsAny(ref, `\.`) {
		return false
	}
	return !strings.HasPrefix(ref, "/") && !strings.HasPrefix(ref, "~")
}
