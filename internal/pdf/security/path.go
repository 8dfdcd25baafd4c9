package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathValidator confines tool file access to one directory tree
type PathValidator struct {
	root string
}

// NewPathValidator creates a validator rooted at dir. The directory does not
// have to exist yet; symlinks in it are resolved when it does.
func NewPathValidator(dir string) (*PathValidator, error) {
	if dir == "" {
		return nil, fmt.Errorf("configured directory cannot be empty")
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve configured directory: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	return &PathValidator{root: filepath.Clean(root)}, nil
}

// Root returns the directory paths are confined to
func (v *PathValidator) Root() string {
	return v.root
}

// Resolve returns the absolute form of path. Relative paths are taken from
// the root. The result, with symlinks resolved, must stay inside the root.
func (v *PathValidator) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("path contains a null byte")
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(v.root, path)
	}
	clean := filepath.Clean(path)

	real, err := realPath(clean)
	if err != nil {
		return "", err
	}
	if !v.within(real) {
		return "", fmt.Errorf("path is outside configured directory: %s", path)
	}

	return clean, nil
}

// ResolvePDF resolves path and requires a .pdf extension
func (v *PathValidator) ResolvePDF(path string) (string, error) {
	resolved, err := v.Resolve(path)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(filepath.Ext(resolved), ".pdf") {
		return "", fmt.Errorf("not a PDF file: %s", path)
	}
	return resolved, nil
}

func (v *PathValidator) within(path string) bool {
	if path == v.root {
		return true
	}
	return strings.HasPrefix(path, v.root+string(filepath.Separator))
}

// realPath resolves symlinks in the longest existing prefix of path, so
// files that are about to be created are checked through their parent
func realPath(path string) (string, error) {
	existing := path
	var rest []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return path, nil
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", existing, err)
	}
	return filepath.Join(append([]string{resolved}, rest...)...), nil
}
