package safeio

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidatePath(t *testing.T) {
	good := []string{"main.go", "src/app/index.ts", "./README.md", "a/./b.txt"}
	for _, p := range good {
		if err := ValidatePath(p); err != nil {
			t.Fatalf("ValidatePath(%q): %v", p, err)
		}
	}
	bad := []string{"", "  ", "../x", "a/../../x", "/etc/passwd", `..\x`, ".", "a/.."}
	for _, p := range bad {
		if err := ValidatePath(p); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("ValidatePath(%q) = %v, want ErrInvalidPath", p, err)
		}
	}
}

func TestValidateContent(t *testing.T) {
	if err := ValidateContent(strings.Repeat("x", MaxContentBytes)); err != nil {
		t.Fatalf("at limit: %v", err)
	}
	if err := ValidateContent(strings.Repeat("x", MaxContentBytes+1)); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("over limit: %v", err)
	}
}

func TestSafeWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewSafeFS(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("NewSafeFS: %v", err)
	}
	p, err := fs.SafeWriteFile("src/main.go", []byte("package main"))
	if err != nil {
		t.Fatalf("SafeWriteFile: %v", err)
	}
	if !strings.HasPrefix(p, fs.Root()) {
		t.Fatalf("written outside root: %s", p)
	}
	b, err := fs.SafeReadFile("src/main.go")
	if err != nil || string(b) != "package main" {
		t.Fatalf("SafeReadFile = %q, %v", b, err)
	}
}

func TestSafeWriteRejectsSymlinkEscape(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	fs, err := NewSafeFS(dir)
	if err != nil {
		t.Fatalf("NewSafeFS: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(dir, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if _, err := fs.SafeWriteFile("link/x.txt", []byte("x")); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(outside, "x.txt")); !os.IsNotExist(err) {
		t.Fatal("file escaped the root")
	}
}
