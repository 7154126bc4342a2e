package documents

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"bidline/internal/domain"
)

var (
	pdf = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n%%EOF\n")
	png = []byte("\x89PNG\r\n\x1a\n\x00\x00")
)

func TestStoreAndOpen(t *testing.T) {
	s := FileStore{Root: t.TempDir()}
	ref, err := s.Store(context.Background(), pdf, KindWork, "deliverable.PDF")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !strings.HasPrefix(ref, "work/") || !strings.HasSuffix(ref, ".pdf") {
		t.Fatalf("unexpected ref %s", ref)
	}
	rc, size, err := s.Open(ref)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if size != int64(len(pdf)) || string(data) != string(pdf) {
		t.Fatalf("round trip mismatch")
	}
	if ContentType(ref) != "application/pdf" {
		t.Fatalf("content type %s", ContentType(ref))
	}
}

func TestStoreSniffsMissingExtension(t *testing.T) {
	s := FileStore{Root: t.TempDir()}
	ref, err := s.Store(context.Background(), pdf, KindSignature, "")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !strings.HasPrefix(ref, "signatures/") || !strings.HasSuffix(ref, ".pdf") {
		t.Fatalf("unexpected ref %s", ref)
	}
}

func TestStoreRejects(t *testing.T) {
	s := FileStore{Root: t.TempDir(), MaxBytes: 16}
	cases := map[string]struct {
		content  []byte
		kind     string
		filename string
	}{
		"unknown kind":   {pdf[:8], "avatar", "a.png"},
		"empty":          {nil, KindWork, "a.pdf"},
		"too large":      {pdf, KindWork, "a.pdf"},
		"work not a pdf": {[]byte("hello"), KindWork, "a.exe"},
		"text named pdf": {[]byte("hello"), KindWork, "x.pdf"},
		"png named pdf":  {png, KindSignature, "x.pdf"},
		"png as work":    {png, KindWork, "x.png"},
	}
	for name, tc := range cases {
		if _, err := s.Store(context.Background(), tc.content, tc.kind, tc.filename); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestStoreNamesByContent(t *testing.T) {
	s := FileStore{Root: t.TempDir()}
	ref, err := s.Store(context.Background(), png, KindKYC, "passport")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !strings.HasPrefix(ref, "kyc/") || !strings.HasSuffix(ref, ".png") || KindOf(ref) != KindKYC {
		t.Fatalf("unexpected ref %s", ref)
	}
	if err := s.Remove(ref); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, _, err := s.Open(ref); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected removed document to be gone, got %v", err)
	}
}

func TestOpenRefusesTraversal(t *testing.T) {
	s := FileStore{Root: t.TempDir()}
	for _, ref := range []string{"../etc/passwd", "work/../../x", "/work/a.pdf", "other/a.pdf", "work", ""} {
		if _, _, err := s.Open(ref); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("%q: expected ErrNotFound, got %v", ref, err)
		}
	}
}
