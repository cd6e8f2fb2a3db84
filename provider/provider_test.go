package provider

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRegistryTextRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guide.txt")
	content := "CHAPTER 1\n\n1.1 Policy\nLoans require documentation."
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	doc, err := NewRegistry().Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if doc.Text != content {
		t.Error("text round-trip mismatch")
	}
	if doc.MIME != "text/plain" {
		t.Errorf("MIME = %s", doc.MIME)
	}
	if doc.SizeBytes != int64(len(content)) {
		t.Errorf("SizeBytes = %d, want %d", doc.SizeBytes, len(content))
	}
}

func TestRegistryUnsupported(t *testing.T) {
	_, err := NewRegistry().Read(context.Background(), "matrix.heic")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestRegistryOverride(t *testing.T) {
	r := NewRegistry()
	r.Register("txt", stub{text: "override"})
	doc, err := r.Read(context.Background(), "anything.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if doc.Text != "override" {
		t.Error("registered provider not used")
	}
}

type stub struct{ text string }

func (s stub) SupportedFormats() []string { return []string{"txt"} }
func (s stub) Read(ctx context.Context, ref string) (*Document, error) {
	return &Document{Text: s.text, MIME: "text/plain", SizeBytes: int64(len(s.text))}, nil
}

func TestProviderFormats(t *testing.T) {
	for _, p := range []Provider{&Text{}, &PDF{}, &XLSX{}} {
		formats := p.SupportedFormats()
		if len(formats) == 0 {
			t.Errorf("%T supports no formats", p)
		}
		for _, f := range formats {
			if f != strings.ToLower(f) {
				t.Errorf("%T format %q not lowercase", p, f)
			}
		}
	}
}
