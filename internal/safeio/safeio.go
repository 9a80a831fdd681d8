package safeio

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
)

// MaxContentBytes caps a single generated file.
const MaxContentBytes = 1 << 20

var (
	ErrInvalidPath = errors.New("safeio: invalid path")
	ErrTooLarge    = errors.New("safeio: content too large")
)

// ValidatePath accepts relative, slash-separated project paths that stay
// inside the project root.
func ValidatePath(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.ContainsRune(p, 0) {
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidPath, p)
	}
	norm := strings.ReplaceAll(p, `\`, "/")
	if strings.HasPrefix(norm, "/") || filepath.VolumeName(p) != "" {
		return fmt.Errorf("%w: %q is absolute", ErrInvalidPath, p)
	}
	for _, seg := range strings.Split(norm, "/") {
		if seg == ".." {
			return fmt.Errorf("%w: %q escapes the project root", ErrInvalidPath, p)
		}
	}
	if c := path.Clean(norm); c == "." {
		return fmt.Errorf("%w: %q names the project root", ErrInvalidPath, p)
	}
	return nil
}

// ValidateContent rejects content over MaxContentBytes.
func ValidateContent(content string) error {
	if len(content) > MaxContentBytes {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(content), MaxContentBytes)
	}
	return nil
}

// SafeFS resolves project paths against a fixed root directory.
type SafeFS struct {
	absRoot string // absolute root with symlinks resolved
}

// NewSafeFS locks all future operations to root, creating it if needed.
func NewSafeFS(root string) (*SafeFS, error) {
	if root == "" {
		return nil, errors.New("safeio: empty root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	return &SafeFS{absRoot: abs}, nil
}

// Root returns the absolute root directory bound to this SafeFS.
func (s *SafeFS) Root() string {
	if s == nil {
		return ""
	}
	return s.absRoot
}

// SafeWriteFile writes data to a project path under the root, creating parent
// directories. Symlinked parents that lead outside the root are rejected.
func (s *SafeFS) SafeWriteFile(projectPath string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("safeio: filesystem not configured")
	}
	if err := ValidatePath(projectPath); err != nil {
		return "", err
	}
	if err := ValidateContent(string(data)); err != nil {
		return "", err
	}
	target := filepath.Join(s.absRoot, filepath.FromSlash(strings.ReplaceAll(projectPath, `\`, "/")))
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	resolvedDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", err
	}
	if !hasPathPrefix(resolvedDir, s.absRoot) {
		return "", fmt.Errorf("%w: resolved outside root (root=%s, path=%s)", ErrInvalidPath, s.absRoot, resolvedDir)
	}
	final := filepath.Join(resolvedDir, filepath.Base(target))
	if info, err := os.Lstat(final); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", fmt.Errorf("%w: %s is a symlink", ErrInvalidPath, projectPath)
	}
	if err := os.WriteFile(final, data, 0o644); err != nil {
		return "", err
	}
	return final, nil
}

// SafeReadFile reads a project path under the root.
func (s *SafeFS) SafeReadFile(projectPath string) ([]byte, error) {
	if s == nil {
		return nil, errors.New("safeio: filesystem not configured")
	}
	if err := ValidatePath(projectPath); err != nil {
		return nil, err
	}
	p := filepath.Join(s.absRoot, filepath.FromSlash(projectPath))
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return nil, err
	}
	if !hasPathPrefix(resolved, s.absRoot) {
		return nil, fmt.Errorf("%w: resolved outside root (root=%s, path=%s)", ErrInvalidPath, s.absRoot, resolved)
	}
	return os.ReadFile(resolved)
}

func hasPathPrefix(p, root string) bool {
	p = filepath.Clean(p)
	root = filepath.Clean(root)
	if runtime.GOOS == "windows" {
		p = strings.ToLower(p)
		root = strings.ToLower(root)
	}
	if p == root {
		return true
	}
	sep := string(os.PathSeparator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	return strings.HasPrefix(p+sep, root)
}
