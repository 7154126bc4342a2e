package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"bidline/internal/domain"
)

// Document kinds and the directory each is stored under.
const (
	KindSignature = "signature"
	KindWork      = "work"
	KindKYC       = "kyc"
)

var kindDirs = map[string]string{
	KindSignature: "signatures",
	KindWork:      "work",
	KindKYC:       "kyc",
}

var allowedExt = map[string]map[string]bool{
	KindSignature: {".png": true, ".jpg": true, ".pdf": true},
	KindWork:      {".pdf": true},
	KindKYC:       {".png": true, ".jpg": true, ".pdf": true},
}

// ValidKind reports whether kind names a document kind.
func ValidKind(kind string) bool {
	_, ok := kindDirs[kind]
	return ok
}

// KindOf returns the kind a reference was stored under.
func KindOf(ref string) string {
	dir, _, _ := strings.Cut(ref, "/")
	for kind, d := range kindDirs {
		if d == dir {
			return kind
		}
	}
	return ""
}

var contentExt = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"application/pdf": ".pdf",
}

// FileStore keeps uploaded artifacts on local disk. References are
// slash-separated paths relative to Root and never change once issued.
type FileStore struct {
	Root     string
	MaxBytes int64
}

func (s FileStore) limit() int64 {
	if s.MaxBytes > 0 {
		return s.MaxBytes
	}
	return 10 << 20
}

// Store writes content as a new document of kind and returns its reference.
// The stored extension always comes from the sniffed content type; a
// filename extension that disagrees with the content is rejected.
func (s FileStore) Store(ctx context.Context, content []byte, kind, filename string) (string, error) {
	dir, ok := kindDirs[kind]
	if !ok {
		return "", domain.Invalid("unknown document kind %q", kind)
	}
	if len(content) == 0 {
		return "", domain.Invalid("document is empty")
	}
	if int64(len(content)) > s.limit() {
		return "", domain.Invalid("document exceeds %d bytes", s.limit())
	}
	sniffed := http.DetectContentType(content)
	ext, ok := contentExt[sniffed]
	if !ok || !allowedExt[kind][ext] {
		return "", domain.Invalid("%s documents do not accept %s content", kind, sniffed)
	}
	if given := strings.ToLower(filepath.Ext(filename)); given != "" {
		if given == ".jpeg" {
			given = ".jpg"
		}
		if given != ext {
			return "", domain.Invalid("file %q holds %s content", filename, sniffed)
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := path.Join(dir, uuid.NewString()+ext)
	full := filepath.Join(s.Root, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create document dir: %w", err)
	}
	tmp := full + ".part"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return "", fmt.Errorf("write document: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit document: %w", err)
	}
	return ref, nil
}

// Remove deletes the document behind ref. Missing documents are not an error.
func (s FileStore) Remove(ref string) error {
	full, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove document: %w", err)
	}
	return nil
}

// Open returns the document behind ref.
func (s FileStore) Open(ref string) (io.ReadCloser, int64, error) {
	full, err := s.resolve(ref)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, domain.NotFound("document", ref)
	}
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// ContentType guesses the media type of ref from its extension.
func ContentType(ref string) string {
	for ct, ext := range contentExt {
		if strings.EqualFold(path.Ext(ref), ext) {
			return ct
		}
	}
	if strings.EqualFold(path.Ext(ref), ".jpeg") {
		return "image/jpeg"
	}
	return "application/octet-stream"
}

func (s FileStore) resolve(ref string) (string, error) {
	clean := path.Clean("/" + ref)[1:]
	if clean == "" || clean != ref || strings.HasPrefix(clean, ".") {
		return "", domain.NotFound("document", ref)
	}
	dir, _, ok := strings.Cut(clean, "/")
	if !ok {
		return "", domain.NotFound("document", ref)
	}
	known := false
	for _, d := range kindDirs {
		if d == dir {
			known = true
		}
	}
	if !known {
		return "", domain.NotFound("document", ref)
	}
	return filepath.Join(s.Root, filepath.FromSlash(clean)), nil
}
